package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	imetrics "github.com/anp-network/node/internal/metrics"
	"github.com/anp-network/node/pkg/maturity"
	"github.com/anp-network/node/pkg/message"
	"github.com/anp-network/node/pkg/store"
)

// admissionReason labels why a message was routed the way it was, for
// metrics only — it never affects behavior.
type admissionReason string

const (
	reasonBlockedPeer   admissionReason = "blocked_peer"
	reasonDND           admissionReason = "dnd"
	reasonAutoApprove   admissionReason = "auto_approve_flag"
	reasonMoodAvailable admissionReason = "mood_available_trust"
	reasonMoodModerate  admissionReason = "mood_moderate_maturity_trust"
	reasonDefault       admissionReason = "default_pending"
)

// toThreadRecord renders msg as the plain map stored in a thread file,
// signature included.
func toThreadRecord(msg *message.Message) (map[string]interface{}, error) {
	raw, err := msg.Serialize()
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// classify applies the §4.7 admission rules, in order, and returns the
// resulting status and the reason it was chosen.
func (m *Manager) classify(ctx context.Context, fromDID string) (message.Status, admissionReason, error) {
	peer, err := m.trust.GetPeer(ctx, fromDID)
	if err != nil {
		return "", "", fmt.Errorf("queue: lookup peer: %w", err)
	}
	if peer != nil && peer.Blocked {
		return message.StatusRejected, reasonBlockedPeer, nil
	}

	mood, err := m.store.GetMood(ctx)
	if err != nil {
		return "", "", fmt.Errorf("queue: read mood: %w", err)
	}
	if mood == store.MoodDND {
		return message.StatusRejected, reasonDND, nil
	}

	autoApprove, err := m.store.GetAutoApprove(ctx)
	if err != nil {
		return "", "", fmt.Errorf("queue: read auto-approve: %w", err)
	}
	if autoApprove {
		return message.StatusAutoApproved, reasonAutoApprove, nil
	}

	trustScore := 0.0
	if peer != nil {
		trustScore = peer.Trust
	}

	if mood == store.MoodAvailable && trustScore >= 0.3 {
		return message.StatusAutoApproved, reasonMoodAvailable, nil
	}

	if mood == store.MoodModerate {
		score, err := maturity.Calculate(ctx, m.store)
		if err != nil {
			return "", "", fmt.Errorf("queue: calculate maturity: %w", err)
		}
		budget, err := m.store.ReadBudget(ctx)
		if err != nil {
			return "", "", fmt.Errorf("queue: read budget: %w", err)
		}
		threshold := budget.AutonomyThreshold
		if threshold == 0 {
			threshold = defaultAutonomyThreshold
		}
		if score >= threshold && trustScore >= 0.5 {
			return message.StatusAutoApproved, reasonMoodModerate, nil
		}
		return message.StatusPendingHumanReview, reasonMoodModerate, nil
	}

	return message.StatusPendingHumanReview, reasonDefault, nil
}

// EnqueueInbound classifies an inbound message, persists it to its thread,
// queues it for processing, and — when pending — adds it to the review
// map. It always returns the (possibly defaulted) thread ID.
func (m *Manager) EnqueueInbound(ctx context.Context, msg *message.Message) (string, error) {
	if msg.ThreadID == "" {
		msg.ThreadID = uuid.NewString()
	}

	status, reason, err := m.classify(ctx, msg.FromDID)
	if err != nil {
		return msg.ThreadID, err
	}
	msg.Status = status

	imetrics.AdmissionDecisions.WithLabelValues(string(status), string(reason)).Inc()

	if status == message.StatusRejected {
		rec, err := toThreadRecord(msg)
		if err != nil {
			return msg.ThreadID, err
		}
		if err := m.store.AppendToThread(ctx, msg.ThreadID, rec); err != nil {
			return msg.ThreadID, fmt.Errorf("queue: persist rejected message: %w", err)
		}
		m.emit("rejected", map[string]interface{}{"thread_id": msg.ThreadID})
		return msg.ThreadID, nil
	}

	rec, err := toThreadRecord(msg)
	if err != nil {
		return msg.ThreadID, err
	}
	if err := m.store.AppendToThread(ctx, msg.ThreadID, rec); err != nil {
		return msg.ThreadID, fmt.Errorf("queue: persist inbound message: %w", err)
	}

	if status == message.StatusPendingHumanReview {
		m.mu.Lock()
		m.pending[msg.ThreadID] = rec
		m.mu.Unlock()
		imetrics.PendingDepth.Set(float64(m.PendingCount()))
	}

	select {
	case m.inbound <- rec:
	case <-ctx.Done():
		return msg.ThreadID, ctx.Err()
	}

	m.emit("inbound_message", rec)
	return msg.ThreadID, nil
}
