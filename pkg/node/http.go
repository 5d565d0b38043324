package node

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/message"
	"github.com/anp-network/node/pkg/store"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
)

// runHTTPServer builds the full HTTP surface — the unauthenticated wire
// protocol, the read-only WebSocket event stream, and the bearer-gated
// owner API — and serves it until ctx is cancelled.
func (n *Node) runHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /anp/message", n.handleReceiveMessage)
	mux.HandleFunc("GET /.well-known/did.json", n.handleDIDDocument)
	mux.Handle("/ws", n.hub.Handler())

	mux.HandleFunc("GET /api/state", n.requireBearerAuth(n.handleGetState))
	mux.HandleFunc("GET /api/health", n.requireBearerAuth(n.handleGetState))
	mux.HandleFunc("GET /api/identity", n.requireBearerAuth(n.handleGetIdentity))
	mux.HandleFunc("GET /api/maturity", n.requireBearerAuth(n.handleGetMaturity))

	mux.HandleFunc("GET /api/pending", n.requireBearerAuth(n.handleListPending))
	mux.HandleFunc("POST /api/approve/{thread_id}", n.requireBearerAuth(n.handleApprove))
	mux.HandleFunc("POST /api/reject/{thread_id}", n.requireBearerAuth(n.handleReject))

	mux.HandleFunc("GET /api/threads", n.requireBearerAuth(n.handleListThreads))
	mux.HandleFunc("GET /api/threads/{thread_id}", n.requireBearerAuth(n.handleGetThread))
	mux.HandleFunc("DELETE /api/threads/{thread_id}", n.requireBearerAuth(n.handleDeleteThread))

	mux.HandleFunc("GET /api/peers", n.requireBearerAuth(n.handleListPeers))
	mux.HandleFunc("POST /api/peers", n.requireBearerAuth(n.handleAddPeer))
	mux.HandleFunc("DELETE /api/peers/{did}", n.requireBearerAuth(n.handleDeletePeer))
	mux.HandleFunc("POST /api/peers/{did}/block", n.requireBearerAuth(n.handleBlockPeer))
	mux.HandleFunc("POST /api/peers/{did}/unblock", n.requireBearerAuth(n.handleUnblockPeer))

	mux.HandleFunc("GET /api/context", n.requireBearerAuth(n.handleGetContext))
	mux.HandleFunc("POST /api/context", n.requireBearerAuth(n.handleAppendContext))

	mux.HandleFunc("GET /api/patterns", n.requireBearerAuth(n.handleListPatterns))

	mux.HandleFunc("GET /api/mood", n.requireBearerAuth(n.handleGetMood))
	mux.HandleFunc("POST /api/mood", n.requireBearerAuth(n.handleSetMood))

	mux.HandleFunc("GET /api/autoapprove", n.requireBearerAuth(n.handleGetAutoApprove))
	mux.HandleFunc("POST /api/autoapprove", n.requireBearerAuth(n.handleSetAutoApprove))

	mux.HandleFunc("POST /api/send", n.requireBearerAuth(n.handleSend))

	n.mu.Lock()
	n.httpServer = &http.Server{
		Addr:              net.JoinHostPort(n.cfg.Domain, strconv.Itoa(n.cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	srv := n.httpServer
	n.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		n.log.Info("http server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleReceiveMessage is the wire-protocol entry point every peer POSTs
// to. It rate-limits by source IP, verifies the message signature (unless
// dev_skip_sig is set), and hands it to the queue for admission.
func (n *Node) handleReceiveMessage(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !n.limiter.Allow(ip) {
		n.log.Warn("inbound message rejected", logger.Error(logger.RateLimited(ip)))
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var msg *message.Message
	if n.cfg.DevSkipSig {
		parsed, err := message.Parse(payload)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid message: "+err.Error())
			return
		}
		msg = parsed
	} else {
		parsed, valid, err := n.receiver.Verify(r.Context(), payload)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid message: "+err.Error())
			return
		}
		if !valid {
			writeJSONError(w, http.StatusUnauthorized, "message signature could not be verified")
			return
		}
		msg = parsed
	}

	threadID, err := n.queue.EnqueueInbound(r.Context(), msg)
	if err != nil {
		n.log.Error("failed to admit inbound message", logger.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received", "thread_id": threadID})
}

// handleDIDDocument serves this node's DID document, the other half of the
// trust-on-first-use resolution flow implemented by pkg/transport.Resolver.
func (n *Node) handleDIDDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.identity.ToDocument())
}

func (n *Node) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := n.GetState(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (n *Node) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	record, err := n.store.ReadIdentity(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"did":          n.identity.DID(),
		"display_name": record.DisplayName,
		"domain":       record.Domain,
		"languages":    record.Languages,
		"values":       record.Values,
	})
}

func (n *Node) handleGetMaturity(w http.ResponseWriter, r *http.Request) {
	state, err := n.GetState(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score": state.Maturity,
		"label": state.MaturityLabel,
	})
}

func (n *Node) handleListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.queue.PeekPending())
}

func (n *Node) handleApprove(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	var body struct {
		Edited *string `json:"edited"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	rec, err := n.queue.Approve(r.Context(), threadID, body.Edited)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeJSONError(w, http.StatusNotFound, "no pending review for thread")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (n *Node) handleReject(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if err := n.queue.Reject(r.Context(), threadID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"thread_id": threadID, "status": "rejected"})
}

func (n *Node) handleListThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := n.store.ListThreads(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (n *Node) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	messages, err := n.store.ReadThread(r.Context(), threadID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (n *Node) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if err := n.store.DeleteThread(r.Context(), threadID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := n.trust.GetAll(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (n *Node) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DID   string `json:"did"`
		Alias string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DID == "" {
		writeJSONError(w, http.StatusBadRequest, "did is required")
		return
	}
	peer, err := n.trust.AddManual(r.Context(), body.DID, body.Alias)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, peer)
}

func (n *Node) handleDeletePeer(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if err := n.trust.Remove(r.Context(), did); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleBlockPeer(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if err := n.trust.Block(r.Context(), did); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleUnblockPeer(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if err := n.trust.Unblock(r.Context(), did); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleGetContext(w http.ResponseWriter, r *http.Request) {
	content, err := n.store.ReadContext(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (n *Node) handleAppendContext(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Section string `json:"section"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := n.store.AppendContext(r.Context(), body.Section, body.Content); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := n.store.ReadPatterns(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (n *Node) handleGetMood(w http.ResponseWriter, r *http.Request) {
	mood, err := n.store.GetMood(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mood": mood})
}

func (n *Node) handleSetMood(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mood string `json:"mood"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := n.store.SetMood(r.Context(), body.Mood); err != nil {
		if _, ok := err.(*store.ErrInvalidMood); ok {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleGetAutoApprove(w http.ResponseWriter, r *http.Request) {
	enabled, err := n.store.GetAutoApprove(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"auto_approve": enabled})
}

func (n *Node) handleSetAutoApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"auto_approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := n.store.SetAutoApprove(r.Context(), body.Enabled); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSend lets the owner speak as the node directly, bypassing admission
// and review entirely — the message is composed and queued for outbound
// delivery, where it's signed and sent like any other outbound message.
func (n *Node) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToDID   string `json:"to_did"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ToDID == "" || body.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "to_did and content are required")
		return
	}

	msg := message.New(message.ThreadReply, n.identity.DID(), body.ToDID, body.Content)
	msg.InReplyTo = randomHex(8)

	if err := n.queue.EnqueueOutbound(r.Context(), msg); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"thread_id": msg.ThreadID})
}
