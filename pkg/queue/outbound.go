package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/message"
)

// EnqueueOutbound queues msg for delivery without going through admission
// or approval — used for node-originated traffic such as gossip.
func (m *Manager) EnqueueOutbound(ctx context.Context, msg *message.Message) error {
	if msg.ThreadID == "" {
		msg.ThreadID = uuid.NewString()
	}
	rec, err := toThreadRecord(msg)
	if err != nil {
		return err
	}
	if err := m.store.AppendToThread(ctx, msg.ThreadID, rec); err != nil {
		return fmt.Errorf("queue: persist outbound message: %w", err)
	}
	select {
	case m.outbound <- rec:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.emit("outbound_queued", rec)
	return nil
}

// RunOutbound pops outbound messages and delivers them until ctx is
// cancelled. Intended to run as a single long-lived goroutine. Each popped
// message is delivered from its own detached goroutine so a slow peer or a
// failed send never blocks or kills the loop — a failed send marks the
// thread pending_human_review, and any other handler error is logged.
func (m *Manager) RunOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-m.outbound:
			go m.handleOutbound(ctx, rec)
		}
	}
}

func (m *Manager) handleOutbound(ctx context.Context, rec map[string]interface{}) {
	if err := m.processOutbound(ctx, rec); err != nil {
		if m.log != nil {
			m.log.Error("outbound message processing failed", logger.Error(err))
		}
	}
}

func (m *Manager) processOutbound(ctx context.Context, rec map[string]interface{}) error {
	threadID, _ := rec["thread_id"].(string)
	toDID, _ := rec["to_did"].(string)

	msg, err := message.Parse(rec)
	if err != nil {
		return fmt.Errorf("parse outbound payload: %w", err)
	}

	sendErr := m.sender.Send(ctx, msg, m.self)

	status := string(message.StatusSent)
	if sendErr != nil {
		status = string(message.StatusPendingHumanReview)
	}
	if err := updateThreadField(ctx, m.store, threadID, "status", status); err != nil {
		return fmt.Errorf("mark outbound status: %w", err)
	}

	if sendErr == nil {
		if err := m.trust.RecordInteraction(ctx, toDID, true); err != nil {
			return fmt.Errorf("record outbound interaction: %w", err)
		}
	}
	return nil
}
