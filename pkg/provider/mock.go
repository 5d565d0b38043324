package provider

import (
	"context"
	"fmt"
)

// MockProvider is a deterministic Provider for tests: it never makes a
// network call and its token counts are a pure function of input size, so
// assertions on budget accounting don't depend on a real model's output.
type MockProvider struct {
	// Reply is returned verbatim by Complete, unless ReplyFunc is set.
	Reply string
	// ReplyFunc, if set, computes the reply from the request instead of
	// returning the fixed Reply string.
	ReplyFunc func(system string, history []Turn) string
	// Err, if set, is returned by Complete instead of a response.
	Err error
}

// NewMockProvider returns a MockProvider that always answers with reply.
func NewMockProvider(reply string) *MockProvider {
	return &MockProvider{Reply: reply}
}

// Complete returns the configured reply and token counts derived from the
// length of the inputs and output, so tests can assert on usage accounting
// without depending on a real model.
func (p *MockProvider) Complete(ctx context.Context, system string, history []Turn, maxTokens int) (Response, error) {
	if p.Err != nil {
		return Response{}, p.Err
	}

	text := p.Reply
	if p.ReplyFunc != nil {
		text = p.ReplyFunc(system, history)
	}

	inputTokens := len(system)
	for _, t := range history {
		inputTokens += len(t.Content)
	}
	outputTokens := len(text)
	if maxTokens > 0 && outputTokens > maxTokens {
		outputTokens = maxTokens
		text = text[:maxTokens]
	}

	return Response{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// Name identifies this mock instance for logging.
func (p *MockProvider) Name() string {
	return "mock"
}

// Stream emits the full reply as a single chunk, satisfying StreamingProvider
// for tests that exercise the streaming path without a real backend.
func (p *MockProvider) Stream(ctx context.Context, system string, history []Turn, maxTokens int, chunks chan<- string) error {
	resp, err := p.Complete(ctx, system, history, maxTokens)
	if err != nil {
		return err
	}
	chunks <- resp.Text
	return nil
}

var (
	_ Provider          = (*MockProvider)(nil)
	_ StreamingProvider = (*MockProvider)(nil)
)

// ErrProviderUnavailable is a canned error MockProvider.Err can be set to,
// for tests exercising provider-failure handling.
var ErrProviderUnavailable = fmt.Errorf("provider: unavailable")
