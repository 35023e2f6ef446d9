package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultWebhookTimeout applies when a Webhook carries no timeout.
const DefaultWebhookTimeout = 30 * time.Second

// UserAgent identifies webhook calls made by the engine.
const UserAgent = "doctype-engine-webhook/1.0"

// HTTPWebhookSender posts webhooks with net/http.
type HTTPWebhookSender struct {
	Client *http.Client
}

// NewHTTPWebhookSender creates a sender using client, or
// http.DefaultClient when nil.
func NewHTTPWebhookSender(client *http.Client) *HTTPWebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPWebhookSender{Client: client}
}

// Send POSTs the payload. Content-Type and User-Agent are set first so a
// hook's own headers can override them.
func (s *HTTPWebhookSender) Send(ctx context.Context, w Webhook) (*WebhookResponse, error) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(w.Payload))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return &WebhookResponse{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
