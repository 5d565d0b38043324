// Package message implements the wire protocol's tagged message record: its
// four variants, canonical signable serialization, and parse/validate
// dispatch.
package message

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Version is the protocol version stamped on every message this node
// produces.
const Version = "0.2"

// Type identifies which message variant a record carries.
type Type string

const (
	ThreadMessage  Type = "thread_message"
	ThreadReply    Type = "thread_reply"
	PeerIntro      Type = "peer_intro"
	CapacityStatus Type = "capacity_status"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusPendingHumanReview Status = "pending_human_review"
	StatusAutoApproved       Status = "auto_approved"
	StatusApproved           Status = "approved"
	StatusSent               Status = "sent"
	StatusAnswered           Status = "answered"
	StatusRejected           Status = "rejected"
)

// Message is the tagged record carried over the wire. Type-specific fields
// (Subject, InReplyTo, PublicKey, KnownPeers, AvailablePct,
// MonthlyRemaining) are populated only for the variant they belong to; the
// canonical serialization includes only the fields applicable to Type.
type Message struct {
	Version   string                 `json:"version"`
	Type      Type                   `json:"type"`
	ThreadID  string                 `json:"thread_id"`
	FromDID   string                 `json:"from_did"`
	ToDID     string                 `json:"to_did"`
	Content   string                 `json:"content"`
	Status    Status                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Signature string                 `json:"signature,omitempty"`
	Metadata  map[string]interface{} `json:"metadata"`

	Subject          string   `json:"-"`
	InReplyTo        string   `json:"-"`
	PublicKey        string   `json:"-"`
	KnownPeers       []string `json:"-"`
	AvailablePct     float64  `json:"-"`
	MonthlyRemaining int      `json:"-"`
}

// New constructs a message of the given variant with defaulted version,
// thread ID, status, and timestamp. Callers fill in variant-specific fields
// afterward.
func New(typ Type, fromDID, toDID, content string) *Message {
	return &Message{
		Version:   Version,
		Type:      typ,
		ThreadID:  uuid.NewString(),
		FromDID:   fromDID,
		ToDID:     toDID,
		Content:   content,
		Status:    StatusPendingHumanReview,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metadata:  make(map[string]interface{}),
	}
}

// toMap renders m as a plain map containing only the fields applicable to
// its Type. Map keys come out sorted when marshaled because encoding/json
// sorts map[string]any keys lexicographically.
func (m *Message) toMap(includeSignature bool) map[string]interface{} {
	out := map[string]interface{}{
		"version":    m.Version,
		"type":       string(m.Type),
		"thread_id":  m.ThreadID,
		"from_did":   m.FromDID,
		"to_did":     m.ToDID,
		"content":    m.Content,
		"status":     string(m.Status),
		"timestamp":  m.Timestamp,
		"metadata":   m.Metadata,
	}
	if m.Metadata == nil {
		out["metadata"] = map[string]interface{}{}
	}
	if includeSignature && m.Signature != "" {
		out["signature"] = m.Signature
	}

	switch m.Type {
	case ThreadMessage:
		out["subject"] = m.Subject
	case ThreadReply:
		out["in_reply_to"] = m.InReplyTo
	case PeerIntro:
		out["public_key"] = m.PublicKey
		peers := m.KnownPeers
		if peers == nil {
			peers = []string{}
		}
		out["known_peers"] = peers
	case CapacityStatus:
		out["available_pct"] = clampPct(m.AvailablePct)
		out["monthly_remaining"] = m.MonthlyRemaining
	}

	return out
}

// SignableBytes returns the canonical serialization of m with the signature
// field omitted. It is the sole input to sign/verify, and is a pure
// function of m's non-signature fields.
func (m *Message) SignableBytes() []byte {
	data, err := json.Marshal(m.toMap(false))
	if err != nil {
		// toMap only ever contains JSON-safe primitives/maps/slices.
		panic(fmt.Sprintf("message: signable form failed to marshal: %v", err))
	}
	return data
}

// Serialize renders the full wire form of m, signature included when set.
func (m *Message) Serialize() ([]byte, error) {
	return json.Marshal(m.toMap(true))
}

func clampPct(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
