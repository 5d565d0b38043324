// Package transport resolves peer DID documents over HTTP, signs and sends
// outbound messages, and verifies and admits inbound ones, with per-IP rate
// limiting on the receiving side.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/identity"
)

const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	doc      identity.Document
	cachedAt time.Time
}

// Resolver fetches and caches DID documents published at a peer's
// /.well-known/did.json.
type Resolver struct {
	mu         sync.Mutex
	cache      map[string]cacheEntry
	httpClient *http.Client
	clock      func() time.Time
}

// NewResolver returns a Resolver with the given request timeout.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{
		cache:      make(map[string]cacheEntry),
		httpClient: &http.Client{Timeout: timeout},
		clock:      time.Now,
	}
}

// baseURL picks http for local-development hosts and https otherwise. host
// is the authority as identity.Host returns it, already percent-decoded.
func baseURL(host string) string {
	scheme := "https"
	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		scheme = "http"
	}
	return scheme + "://" + host
}

// Resolve returns the DID document for did, serving from cache when the
// entry is younger than the 5-minute TTL.
func (r *Resolver) Resolve(ctx context.Context, did string) (identity.Document, error) {
	r.mu.Lock()
	if entry, ok := r.cache[did]; ok {
		if r.clock().Sub(entry.cachedAt) < cacheTTL {
			r.mu.Unlock()
			return entry.doc, nil
		}
		delete(r.cache, did)
	}
	r.mu.Unlock()

	host, err := identity.Host(did)
	if err != nil {
		return identity.Document{}, err
	}

	url := baseURL(host) + "/.well-known/did.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return identity.Document{}, logger.New(logger.ErrCodeInternal, "failed to build resolution request", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return identity.Document{}, logger.New(logger.ErrCodeNetworkError, "failed to resolve DID document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Document{}, logger.New(logger.ErrCodeNetworkError, fmt.Sprintf("DID resolution returned HTTP %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return identity.Document{}, logger.New(logger.ErrCodeNetworkError, "failed to read DID document", err)
	}

	var doc identity.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return identity.Document{}, logger.New(logger.ErrCodeInternal, "failed to parse DID document", err)
	}

	r.mu.Lock()
	r.cache[did] = cacheEntry{doc: doc, cachedAt: r.clock()}
	r.mu.Unlock()

	return doc, nil
}

// publicKey extracts the publicKeyMultibase of the first verification
// method, stripping the leading 'z' multibase prefix.
func publicKey(doc identity.Document) (string, bool) {
	if len(doc.VerificationMethod) == 0 {
		return "", false
	}
	multibase := doc.VerificationMethod[0].PublicKeyMultibase
	if !strings.HasPrefix(multibase, "z") {
		return "", false
	}
	return strings.TrimPrefix(multibase, "z"), true
}
