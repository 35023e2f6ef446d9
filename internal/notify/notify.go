// Package notify defines the outbound collaborators of the document
// engine: email, webhook, in-app notification and security audit.
//
// The engine depends only on the interfaces. Default implementations send
// webhooks over HTTP and write everything else to a slog.Logger; Recorder
// captures calls in memory for tests and scenario traces.
package notify

import (
	"context"
	"time"
)

// Email is one message to a list of recipients.
type Email struct {
	To      []string `json:"to"`
	From    string   `json:"from,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// DefaultEmailTimeout bounds one SendEmail call when no timeout is
// configured.
const DefaultEmailTimeout = 30 * time.Second

// Mailer delivers email. It returns how many recipients were reached; an
// error means none were.
type Mailer interface {
	SendEmail(ctx context.Context, e Email) (int, error)
}

// Webhook is an outbound POST.
type Webhook struct {
	URL     string
	Headers map[string]string
	Payload []byte
	Timeout time.Duration
}

// WebhookResponse is what came back. Body is truncated to MaxResponseBody
// bytes.
type WebhookResponse struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// OK reports a 2xx status.
func (r *WebhookResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// MaxResponseBody bounds the response text kept from a webhook call.
const MaxResponseBody = 500

// WebhookSender performs webhook calls. A non-2xx status is returned as a
// response, not an error; transport failures are errors.
type WebhookSender interface {
	Send(ctx context.Context, w Webhook) (*WebhookResponse, error)
}

// Notification is an in-app message about a document.
type Notification struct {
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Message    string   `json:"message"`
	Doctype    string   `json:"doctype"`
	DocumentID string   `json:"document_id"`
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Severity grades a security event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Security event types emitted by the engine.
const (
	EventIntegrityFail = "integrity_fail"
	EventDataRetention = "data_retention"
)

// SecurityEvent is an audit record.
type SecurityEvent struct {
	Type        string            `json:"type"`
	Severity    Severity          `json:"severity"`
	Actor       string            `json:"actor"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AuditSink records security events. It is fire-and-forget: the engine
// never waits on or checks the outcome.
type AuditSink interface {
	LogSecurityEvent(ctx context.Context, e SecurityEvent)
}
