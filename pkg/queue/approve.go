package queue

import (
	"context"
	"fmt"
	"time"

	imetrics "github.com/anp-network/node/internal/metrics"
	"github.com/anp-network/node/pkg/message"
	"github.com/anp-network/node/pkg/store"
)

// Approve approves a pending thread, optionally overriding the proposed
// reply with edited. Whenever the proposed reply is non-empty, a correction
// record of proposal and final content is logged, even when the two are
// identical, and, on every patternExtractionEvery-th correction,
// pattern extraction is scheduled in the background. Returns nil if
// threadID was not pending.
func (m *Manager) Approve(ctx context.Context, threadID string, edited *string) (map[string]interface{}, error) {
	m.mu.Lock()
	rec, ok := m.pending[threadID]
	if ok {
		delete(m.pending, threadID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	imetrics.PendingDepth.Set(float64(m.PendingCount()))

	proposed, _ := rec["proposed_reply"].(string)
	final := proposed
	if edited != nil {
		final = *edited
	}

	if proposed != "" {
		fromDID, _ := rec["from_did"].(string)
		correction := store.Correction{
			Original:  proposed,
			Edited:    final,
			ThreadID:  threadID,
			FromDID:   fromDID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := m.store.AppendCorrection(ctx, correction); err != nil {
			return nil, fmt.Errorf("queue: append correction: %w", err)
		}
		imetrics.CorrectionsLogged.Inc()

		corrections, err := m.store.ReadCorrections(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue: read corrections: %w", err)
		}
		count := len(corrections)
		m.emit("correction_logged", map[string]interface{}{"count": count, "thread_id": threadID})

		if count > 0 && count%patternExtractionEvery == 0 && m.patternsFn != nil {
			go m.runPatternExtraction()
		}
	}

	if final != "" {
		rec["content"] = final
	}
	rec["status"] = string(message.StatusApproved)

	if err := updateThreadField(ctx, m.store, threadID, "status", string(message.StatusApproved)); err != nil {
		return nil, err
	}
	if err := updateThreadField(ctx, m.store, threadID, "content", rec["content"]); err != nil {
		return nil, err
	}

	select {
	case m.outbound <- rec:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	m.emit("outbound_queued", rec)

	return rec, nil
}

func (m *Manager) runPatternExtraction() {
	added, err := m.patternsFn()
	if err != nil || added == 0 {
		return
	}
	imetrics.PatternExtractions.Inc()
	m.emit("patterns_updated", map[string]interface{}{"new_patterns": added})
}

// Reject removes threadID from pending and marks its stored status
// rejected.
func (m *Manager) Reject(ctx context.Context, threadID string) error {
	m.mu.Lock()
	_, ok := m.pending[threadID]
	delete(m.pending, threadID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	imetrics.PendingDepth.Set(float64(m.PendingCount()))

	if err := updateThreadField(ctx, m.store, threadID, "status", string(message.StatusRejected)); err != nil {
		return fmt.Errorf("queue: mark rejected: %w", err)
	}
	m.emit("rejected", map[string]interface{}{"thread_id": threadID})
	return nil
}

// RestorePending scans every thread and restores into the pending map any
// thread whose last entry is still pending human review, for use at
// startup.
func (m *Manager) RestorePending(ctx context.Context) error {
	threadIDs, err := m.store.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("queue: list threads: %w", err)
	}
	for _, threadID := range threadIDs {
		messages, err := m.store.ReadThread(ctx, threadID)
		if err != nil {
			return fmt.Errorf("queue: read thread %s: %w", threadID, err)
		}
		if len(messages) == 0 {
			continue
		}
		last := messages[len(messages)-1]
		if status, _ := last["status"].(string); status == string(message.StatusPendingHumanReview) {
			m.mu.Lock()
			m.pending[threadID] = last
			m.mu.Unlock()
		}
	}
	imetrics.PendingDepth.Set(float64(m.PendingCount()))
	return nil
}
