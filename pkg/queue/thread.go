package queue

import (
	"context"
	"fmt"

	"github.com/anp-network/node/pkg/store"
)

// updateThreadField sets field on every entry of threadID's thread whose
// own thread_id matches (in practice, the thread's only entries), then
// persists the whole thread.
func updateThreadField(ctx context.Context, s store.Store, threadID, field string, value interface{}) error {
	messages, err := s.ReadThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("read thread: %w", err)
	}
	for _, msg := range messages {
		if id, _ := msg["thread_id"].(string); id == threadID {
			msg[field] = value
		}
	}
	if err := s.WriteThread(ctx, threadID, messages); err != nil {
		return fmt.Errorf("write thread: %w", err)
	}
	return nil
}
