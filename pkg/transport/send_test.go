package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context"

	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/message"
)

func TestSend_SignsAndDeliversMessage(t *testing.T) {
	id, err := identity.Generate("alice", "alice.example")
	require.NoError(t, err)

	var received map[string]interface{}
	var didDocHits int

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/did.json", func(w http.ResponseWriter, r *http.Request) {
		didDocHits++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(id.ToDocument())
	})
	mux.HandleFunc("/anp/message", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	recipientHost := srv.Listener.Addr().String()
	toDID := identity.Derive(recipientHost, "bob")

	resolver := NewResolver(time.Second)
	sender := NewSender(resolver, time.Second)

	msg := message.New(message.ThreadMessage, "did:wba:irrelevant:sender", toDID, "hello")
	err = sender.Send(context.Background(), msg, id)
	require.NoError(t, err)

	assert.Equal(t, "hello", received["content"])
	assert.NotEmpty(t, received["signature"])
	assert.Equal(t, 1, didDocHits)
}

func TestSend_FailsWhenRecipientUnresolvable(t *testing.T) {
	id, err := identity.Generate("alice", "alice.example")
	require.NoError(t, err)

	resolver := NewResolver(100 * time.Millisecond)
	sender := NewSender(resolver, time.Second)

	msg := message.New(message.ThreadMessage, "did:wba:irrelevant:sender", identity.Derive("127.0.0.1:1", "nobody"), "hello")
	err = sender.Send(context.Background(), msg, id)
	assert.Error(t, err)
}
