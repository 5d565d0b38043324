// Package queue implements the inbound/outbound message lifecycle: admission
// classification by presence mood and peer trust, a pending-review map,
// proposed-reply generation, approval/rejection, correction logging, and
// outbound dispatch.
package queue

import (
	"sync"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/engine"
	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/store"
	"github.com/anp-network/node/pkg/transport"
	"github.com/anp-network/node/pkg/trust"
)

// patternExtractionEvery is the correction-count cadence that triggers a
// pattern-extraction pass.
const patternExtractionEvery = 5

// historyLimit bounds how much thread history is handed to the provider as
// conversational context.
const historyLimit = 10

// defaultAutonomyThreshold is used when a budget record has never set its
// own autonomy_threshold. It mirrors store.DefaultAutonomyThreshold, the
// same value a freshly written budget record persists.
const defaultAutonomyThreshold = store.DefaultAutonomyThreshold

// channelCapacity sizes the inbound/outbound channels well past any
// realistic single-node message volume. Go has no unbounded channel
// primitive; a generously buffered channel is the idiomatic stand-in and
// keeps producers (the HTTP handler) from ever blocking on a full queue in
// practice.
const channelCapacity = 4096

// Subscriber receives every lifecycle event the queue emits: inbound_message,
// agent_thinking, review_ready, correction_logged, auto_approved, rejected,
// outbound_queued, patterns_updated.
type Subscriber func(eventType string, data map[string]interface{})

// Manager owns the inbound/outbound channels, the pending-review map, and
// the subscriber list. All of its exported methods are safe for concurrent
// use by the HTTP endpoint and the two processing loops.
type Manager struct {
	mu          sync.Mutex
	store       store.Store
	trust       *trust.Manager
	engine      *engine.Engine
	sender      *transport.Sender
	self        *identity.Identity
	log         logger.Logger
	patternsFn  func() (int, error)
	inbound     chan map[string]interface{}
	outbound    chan map[string]interface{}
	pending     map[string]map[string]interface{}
	subscribers []Subscriber
}

// New returns a Manager wired to the given store, trust manager, generation
// engine, and outbound sender. extractPatterns is called every
// patternExtractionEvery corrections; it may be nil to disable the cadence
// (useful in tests that don't care about pattern extraction). log receives
// the errors RunInbound/RunOutbound swallow so a single failed handler never
// has to kill either loop.
func New(s store.Store, tm *trust.Manager, eng *engine.Engine, sender *transport.Sender, self *identity.Identity, log logger.Logger, extractPatterns func() (int, error)) *Manager {
	return &Manager{
		store:      s,
		trust:      tm,
		engine:     eng,
		sender:     sender,
		self:       self,
		log:        log,
		patternsFn: extractPatterns,
		inbound:    make(chan map[string]interface{}, channelCapacity),
		outbound:   make(chan map[string]interface{}, channelCapacity),
		pending:    make(map[string]map[string]interface{}),
	}
}

// Subscribe registers a callback invoked for every lifecycle event. Panics
// from a subscriber are not caught here; callers that want isolation should
// wrap their own callback.
func (m *Manager) Subscribe(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

func (m *Manager) emit(eventType string, data map[string]interface{}) {
	m.mu.Lock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, sub := range subs {
		sub(eventType, data)
	}
}

// QSizeInbound returns the number of messages currently buffered inbound.
func (m *Manager) QSizeInbound() int { return len(m.inbound) }

// QSizeOutbound returns the number of messages currently buffered outbound.
func (m *Manager) QSizeOutbound() int { return len(m.outbound) }

// PendingCount returns how many threads are awaiting human review.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// GetPending returns the stored pending record for threadID without
// removing it, or false if none exists.
func (m *Manager) GetPending(threadID string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pending[threadID]
	return rec, ok
}

// PeekPending returns every message currently awaiting human review.
func (m *Manager) PeekPending() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(m.pending))
	for _, rec := range m.pending {
		out = append(out, rec)
	}
	return out
}
