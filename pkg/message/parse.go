package message

import (
	"encoding/json"
	"fmt"
)

// ErrUnknownType is returned by Parse when the "type" field does not match
// any known variant.
type ErrUnknownType struct {
	Type string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("message: unknown type %q", e.Type)
}

// ErrMissingField is returned by Parse when a required field is absent or
// the wrong shape.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("message: missing or invalid field %q", e.Field)
}

// Parse dispatches on data["type"] to the matching variant, validates the
// required fields, and returns the populated Message. Unknown type values
// are rejected. Status defaults to pending_human_review when absent.
func Parse(data map[string]interface{}) (*Message, error) {
	typ, ok := data["type"].(string)
	if !ok || typ == "" {
		return nil, &ErrMissingField{Field: "type"}
	}

	switch Type(typ) {
	case ThreadMessage, ThreadReply, PeerIntro, CapacityStatus:
	default:
		return nil, &ErrUnknownType{Type: typ}
	}

	m := &Message{Type: Type(typ)}

	m.Version, _ = data["version"].(string)
	if m.Version == "" {
		m.Version = Version
	}

	if m.ThreadID, ok = data["thread_id"].(string); !ok || m.ThreadID == "" {
		return nil, &ErrMissingField{Field: "thread_id"}
	}
	if m.FromDID, ok = data["from_did"].(string); !ok || m.FromDID == "" {
		return nil, &ErrMissingField{Field: "from_did"}
	}
	if m.ToDID, ok = data["to_did"].(string); !ok || m.ToDID == "" {
		return nil, &ErrMissingField{Field: "to_did"}
	}
	// content may legitimately be empty (e.g. capacity_status pings).
	m.Content, _ = data["content"].(string)

	if status, ok := data["status"].(string); ok && status != "" {
		m.Status = Status(status)
	} else {
		m.Status = StatusPendingHumanReview
	}

	if ts, ok := data["timestamp"].(string); ok && ts != "" {
		m.Timestamp = ts
	} else {
		return nil, &ErrMissingField{Field: "timestamp"}
	}

	m.Signature, _ = data["signature"].(string)

	if meta, ok := data["metadata"].(map[string]interface{}); ok {
		m.Metadata = meta
	} else {
		m.Metadata = make(map[string]interface{})
	}

	switch m.Type {
	case ThreadMessage:
		m.Subject, _ = data["subject"].(string)
	case ThreadReply:
		m.InReplyTo, _ = data["in_reply_to"].(string)
	case PeerIntro:
		m.PublicKey, _ = data["public_key"].(string)
		if raw, ok := data["known_peers"].([]interface{}); ok {
			peers := make([]string, 0, len(raw))
			for _, p := range raw {
				if s, ok := p.(string); ok {
					peers = append(peers, s)
				}
			}
			m.KnownPeers = peers
		}
	case CapacityStatus:
		if pct, ok := data["available_pct"].(float64); ok {
			m.AvailablePct = clampPct(pct)
		}
		if remaining, ok := data["monthly_remaining"].(float64); ok {
			m.MonthlyRemaining = int(remaining)
		}
	}

	return m, nil
}

// ParseBytes unmarshals raw JSON into a map and dispatches to Parse.
func ParseBytes(raw []byte) (*Message, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return Parse(data)
}
