package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Email(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	n, err := r.SendEmail(ctx, Email{To: []string{"a@x.io", "b@x.io"}, Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r.FailFor("b@x.io")
	n, err = r.SendEmail(ctx, Email{To: []string{"a@x.io", "b@x.io"}, Subject: "again"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.SendEmail(ctx, Email{To: []string{"b@x.io"}, Subject: "lost"})
	require.Error(t, err)

	emails := r.Emails()
	require.Len(t, emails, 2)
	assert.Equal(t, []string{"a@x.io"}, emails[1].To)
}

func TestRecorder_NotificationsAndEvents(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Notify(ctx, Notification{Message: "approved", Doctype: "Invoice", DocumentID: "d1"}))
	r.LogSecurityEvent(ctx, SecurityEvent{Type: EventIntegrityFail, Severity: SeverityCritical})

	r.FailFor("ops@x.io")
	require.Error(t, r.Notify(ctx, Notification{Recipients: []string{"ops@x.io"}}))

	assert.Len(t, r.Notifications(), 1)
	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventIntegrityFail, events[0].Type)
}

func TestSlogAuditSink_LevelFollowsSeverity(t *testing.T) {
	var buf bytes.Buffer
	sink := SlogAuditSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	sink.LogSecurityEvent(context.Background(), SecurityEvent{
		Type:        EventIntegrityFail,
		Severity:    SeverityCritical,
		Actor:       "system",
		Description: "hash mismatch",
		Metadata:    map[string]string{"document_id": "d1"},
	})

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "document_id=d1")
	assert.Contains(t, out, "hash mismatch")
}

func TestSlogMailer_CountsRecipients(t *testing.T) {
	var buf bytes.Buffer
	n, err := SlogMailer{Logger: slog.New(slog.NewTextHandler(&buf, nil))}.SendEmail(context.Background(), Email{
		To: []string{"a@x.io", "b@x.io", "c@x.io"}, Subject: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, buf.String(), "subject=s")
}
