package transport

import (
	"context"
	"time"

	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/message"
)

// maxMessageAge is the largest allowed gap between a message's timestamp
// and the time it's received, beyond which it's treated as stale/replayed.
const maxMessageAge = 300 * time.Second

// Receiver verifies inbound message signatures against resolved sender DID
// documents.
type Receiver struct {
	resolver *Resolver
	clock    func() time.Time
}

// NewReceiver returns a Receiver using resolver for sender DID lookups.
func NewReceiver(resolver *Resolver) *Receiver {
	return &Receiver{resolver: resolver, clock: time.Now}
}

// Verify parses payload, checks the sender DID's format and the message's
// freshness, then resolves the sender and checks its signature. Once the
// payload parses, it returns the parsed message (even when invalid)
// alongside whether it's admissible, so callers can log the reason without
// re-parsing; a payload that does not parse returns nil and the parse error.
func (r *Receiver) Verify(ctx context.Context, payload map[string]interface{}) (*message.Message, bool, error) {
	msg, err := message.Parse(payload)
	if err != nil {
		return nil, false, err
	}

	if !identity.Valid(msg.FromDID) {
		return msg, false, nil
	}

	sentAt, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		return msg, false, nil
	}
	age := r.clock().UTC().Sub(sentAt.UTC())
	if age < 0 {
		age = -age
	}
	if age > maxMessageAge {
		return msg, false, nil
	}

	if msg.Signature == "" {
		return msg, false, nil
	}

	doc, err := r.resolver.Resolve(ctx, msg.FromDID)
	if err != nil {
		return msg, false, nil
	}

	pubKeyB64, ok := publicKey(doc)
	if !ok {
		return msg, false, nil
	}

	unsigned := *msg
	unsigned.Signature = ""
	valid := identity.VerifyWith(pubKeyB64, unsigned.SignableBytes(), msg.Signature)

	return msg, valid, nil
}
