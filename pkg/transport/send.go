package transport

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/anp-network/node/internal/logger"
	"github.com/anp-network/node/pkg/identity"
	"github.com/anp-network/node/pkg/message"
)

// Sender resolves recipients, signs outbound messages, and POSTs them to
// the recipient's wire endpoint.
type Sender struct {
	resolver   *Resolver
	httpClient *http.Client
}

// NewSender returns a Sender using resolver for DID lookups and timeout for
// its own outbound HTTP requests.
func NewSender(resolver *Resolver, timeout time.Duration) *Sender {
	return &Sender{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send resolves msg.ToDID, signs msg with id, and POSTs it to the
// recipient's /anp/message endpoint. Returns an error without sending when
// resolution fails; a non-2xx response is also an error.
func (s *Sender) Send(ctx context.Context, msg *message.Message, id *identity.Identity) error {
	if _, err := s.resolver.Resolve(ctx, msg.ToDID); err != nil {
		return logger.New(logger.ErrCodeNetworkError, "failed to resolve recipient DID", err)
	}

	msg.Signature = id.Sign(msg.SignableBytes())

	host, err := identity.Host(msg.ToDID)
	if err != nil {
		return err
	}
	url := baseURL(host) + "/anp/message"

	body, err := msg.Serialize()
	if err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to serialize outbound message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to build outbound request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return logger.New(logger.ErrCodeNetworkError, "failed to deliver message", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return logger.New(logger.ErrCodeNetworkError, "recipient rejected message", nil)
	}

	return nil
}
