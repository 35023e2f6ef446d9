package notify

import (
	"context"
	"log/slog"
)

// SlogMailer writes emails to a logger instead of sending them. Every
// recipient counts as delivered.
type SlogMailer struct {
	Logger *slog.Logger
}

func (m SlogMailer) SendEmail(ctx context.Context, e Email) (int, error) {
	logger(m.Logger).InfoContext(ctx, "email", "to", e.To, "subject", e.Subject)
	return len(e.To), nil
}

// SlogNotifier writes notifications to a logger.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (n SlogNotifier) Notify(ctx context.Context, msg Notification) error {
	logger(n.Logger).InfoContext(ctx, "notification",
		"doctype", msg.Doctype,
		"document", msg.DocumentID,
		"recipients", msg.Recipients,
		"message", msg.Message)
	return nil
}

// SlogAuditSink writes security events to a logger at a level matching
// their severity.
type SlogAuditSink struct {
	Logger *slog.Logger
}

func (a SlogAuditSink) LogSecurityEvent(ctx context.Context, e SecurityEvent) {
	level := slog.LevelInfo
	switch e.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	attrs := []any{"type", e.Type, "severity", string(e.Severity), "actor", e.Actor}
	for k, v := range e.Metadata {
		attrs = append(attrs, k, v)
	}
	logger(a.Logger).Log(ctx, level, e.Description, attrs...)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
