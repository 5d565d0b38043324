package queue

import (
	"context"
	"fmt"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/message"
	"github.com/anp-network/node/pkg/provider"
)

// RunInbound pops inbound messages and processes them until ctx is
// cancelled. Intended to run as a single long-lived goroutine. Each popped
// message is handled in its own detached goroutine so a slow or failing
// handler (a provider timeout, a store write error) never blocks or kills
// the loop — a handler error is logged and the message stays wherever
// classify() already left it.
func (m *Manager) RunInbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-m.inbound:
			go m.handleInbound(ctx, rec)
		}
	}
}

func (m *Manager) handleInbound(ctx context.Context, rec map[string]interface{}) {
	if err := m.processInbound(ctx, rec); err != nil {
		if m.log != nil {
			m.log.Error("inbound message processing failed", logger.Error(err))
		}
	}
}

func (m *Manager) processInbound(ctx context.Context, rec map[string]interface{}) error {
	threadID, _ := rec["thread_id"].(string)
	fromDID, _ := rec["from_did"].(string)
	typ, _ := rec["type"].(string)

	if message.Type(typ) == message.PeerIntro {
		known := stringSlice(rec["known_peers"])
		if _, err := m.trust.MergeGossip(ctx, known, fromDID); err != nil {
			return fmt.Errorf("merge gossip: %w", err)
		}
		if err := m.trust.RecordInteraction(ctx, fromDID, true); err != nil {
			return fmt.Errorf("record interaction: %w", err)
		}
		return nil
	}

	m.emit("agent_thinking", map[string]interface{}{"thread_id": threadID})

	history, err := m.store.ReadThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("read thread: %w", err)
	}
	turns := buildHistory(history, m.self.DID())

	content, _ := rec["content"].(string)
	proposed, err := m.engine.Generate(ctx, content, turns, 512)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	rec["proposed_reply"] = proposed

	if err := updateThreadField(ctx, m.store, threadID, "proposed_reply", proposed); err != nil {
		return fmt.Errorf("persist proposed reply: %w", err)
	}

	status, _ := rec["status"].(string)
	if status == string(message.StatusAutoApproved) {
		m.mu.Lock()
		m.pending[threadID] = rec
		m.mu.Unlock()
		if _, err := m.Approve(ctx, threadID, nil); err != nil {
			return fmt.Errorf("auto-approve: %w", err)
		}
		m.emit("auto_approved", map[string]interface{}{
			"thread_id":      threadID,
			"proposed_reply": proposed,
		})
		return nil
	}

	m.mu.Lock()
	m.pending[threadID] = rec
	m.mu.Unlock()

	m.emit("review_ready", map[string]interface{}{
		"thread_id":      threadID,
		"proposed_reply": proposed,
		"message":        rec,
	})
	return nil
}

// buildHistory maps up to the last historyLimit thread entries to provider
// turns: an entry authored by self is the assistant's turn, everything
// else is the user's.
func buildHistory(messages []map[string]interface{}, selfDID string) []provider.Turn {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	turns := make([]provider.Turn, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if from, _ := msg["from_did"].(string); from == selfDID {
			role = "assistant"
		}
		content, _ := msg["content"].(string)
		turns = append(turns, provider.Turn{Role: role, Content: content})
	}
	return turns
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
