package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Recorder captures emails, notifications and security events in memory.
// It implements Mailer, Notifier and AuditSink and is safe for concurrent
// use.
type Recorder struct {
	mu            sync.Mutex
	emails        []Email
	notifications []Notification
	events        []SecurityEvent
	failing       map[string]bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{failing: make(map[string]bool)}
}

// FailFor makes deliveries to the given addresses fail.
func (r *Recorder) FailFor(addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		r.failing[a] = true
	}
}

// SendEmail records e and counts the recipients that are not failing.
func (r *Recorder) SendEmail(_ context.Context, e Email) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	var failed []string
	for _, to := range e.To {
		if r.failing[to] {
			failed = append(failed, to)
			continue
		}
		delivered++
	}
	if delivered == 0 && len(failed) > 0 {
		return 0, fmt.Errorf("deliver to %v: %w", failed, errDeliveryFailed)
	}
	e.To = slices.DeleteFunc(slices.Clone(e.To), func(to string) bool { return r.failing[to] })
	r.emails = append(r.emails, e)
	return delivered, nil
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, to := range n.Recipients {
		if r.failing[to] {
			return fmt.Errorf("notify %s: %w", to, errDeliveryFailed)
		}
	}
	r.notifications = append(r.notifications, n)
	return nil
}

// LogSecurityEvent records e.
func (r *Recorder) LogSecurityEvent(_ context.Context, e SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Emails returns the delivered emails in order.
func (r *Recorder) Emails() []Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.emails)
}

// Notifications returns the delivered notifications in order.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notifications)
}

// Events returns the recorded security events in order.
func (r *Recorder) Events() []SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

var errDeliveryFailed = errors.New("delivery failed")
