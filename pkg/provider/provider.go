// Package provider defines the interface a node uses to generate reply text
// through a language model, and a small set of implementations: an HTTP
// client for Anthropic-compatible completion APIs and a deterministic mock
// used by tests.
package provider

import (
	"context"
)

// Turn is one message in a conversation history passed to Complete.
type Turn struct {
	Role    string
	Content string
}

// Response is a provider's normalized reply.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens is the sum of input and output tokens billed for this call.
func (r Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the interface every language-model backend implements.
type Provider interface {
	// Complete generates a full reply given a system prompt and history.
	Complete(ctx context.Context, system string, history []Turn, maxTokens int) (Response, error)

	// Name identifies the provider for logging and config selection.
	Name() string
}

// StreamingProvider is implemented by providers with native token streaming.
// A Provider that doesn't implement it can still be driven via
// CompleteThenChunk, which delegates to Complete and emits the whole
// response as a single chunk.
type StreamingProvider interface {
	Provider
	Stream(ctx context.Context, system string, history []Turn, maxTokens int, chunks chan<- string) error
}

// CompleteThenChunk calls Complete and writes its text to chunks as one
// chunk, mirroring the default streaming behavior of providers with no
// native stream support. The caller owns closing chunks.
func CompleteThenChunk(ctx context.Context, p Provider, system string, history []Turn, maxTokens int, chunks chan<- string) error {
	resp, err := p.Complete(ctx, system, history, maxTokens)
	if err != nil {
		return err
	}
	chunks <- resp.Text
	return nil
}
