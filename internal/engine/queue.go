package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/doctype/internal/hook"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/store"
)

// outbox holds the messages a unit of work wants sent. It is filled inside
// the transaction and drained only after commit; a rolled-back write
// discards it.
type outbox struct {
	mu            sync.Mutex
	notifications []notify.Notification
	emails        []notify.Email
	hooks         []heldHooks
}

// heldHooks are the after-hook actions one document write deferred.
type heldHooks struct {
	doc  *model.Document
	at   time.Time
	held []hook.Deferred
}

func newOutbox() *outbox {
	return &outbox{}
}

func (o *outbox) addNotifications(ns ...notify.Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, ns...)
}

func (o *outbox) addEmails(es ...notify.Email) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails = append(o.emails, es...)
}

func (o *outbox) addHooks(doc *model.Document, at time.Time, held []hook.Deferred) {
	if len(held) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, heldHooks{doc: doc, at: at, held: held})
}

func (o *outbox) drainHooks() []heldHooks {
	o.mu.Lock()
	defer o.mu.Unlock()
	hs := o.hooks
	o.hooks = nil
	return hs
}

// drain empties the outbox and returns what it held, in FIFO order.
func (o *outbox) drain() ([]notify.Notification, []notify.Email) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ns, es := o.notifications, o.emails
	o.notifications, o.emails = nil, nil
	return ns, es
}

// size returns the number of queued messages.
func (o *outbox) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.notifications) + len(o.emails) + len(o.hooks)
}

// write runs fn in one transaction. Once it commits, the hook actions fn
// deferred are performed and their failures recorded. The returned
// outbox still holds fn's notifications and emails.
func (e *Engine) write(ctx context.Context, fn func(tx *store.Store, box *outbox) error) (*outbox, error) {
	box := newOutbox()
	if err := e.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(tx, box)
	}); err != nil {
		return nil, err
	}
	e.runHeld(ctx, box)
	return box, nil
}

// runHeld performs deferred after-hook actions outside any transaction
// and appends their failures to the documents in a short write of their
// own. The in-memory documents are updated too.
func (e *Engine) runHeld(ctx context.Context, box *outbox) {
	for _, h := range box.drainHooks() {
		failures := hookFailures(e.hooks.Run(ctx, h.held), h.at)
		if len(failures) == 0 {
			continue
		}
		err := e.store.WithTx(ctx, func(tx *store.Store) error {
			cur, err := tx.GetDocument(ctx, h.doc.ID)
			if err != nil {
				return err
			}
			bounded := boundFailures(append(cur.HookFailures, failures...), e.settings.HookFailureLimit)
			if err := tx.SetHookFailures(ctx, cur.ID, bounded); err != nil {
				return err
			}
			h.doc.HookFailures = bounded
			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "recording hook failures failed",
				"doctype", h.doc.Doctype, "document", h.doc.ID, "failures", len(failures), "error", err)
		}
	}
}

// deliver sends everything queued in box. Email recipients are actor ids
// resolved through the directory; ids without an address are skipped.
// Delivery failures are logged and never fail the committed write.
func (e *Engine) deliver(ctx context.Context, box *outbox) Delivery {
	var d Delivery
	notifications, emails := box.drain()
	for _, n := range notifications {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.logger.WarnContext(ctx, "notification failed", "doctype", n.Doctype, "document", n.DocumentID, "error", err)
			continue
		}
		d.Notifications++
	}
	for _, m := range emails {
		m.To = e.addresses(ctx, m.To)
		if len(m.To) == 0 {
			e.logger.WarnContext(ctx, "email has no resolvable recipients", "subject", m.Subject)
			continue
		}
		if m.From == "" {
			m.From = e.settings.MailFrom
		}
		n, err := e.mailer.SendEmail(ctx, m)
		if err != nil {
			e.logger.WarnContext(ctx, "email failed", "subject", m.Subject, "error", err)
		}
		d.Emails += n
	}
	return d
}

// addresses maps actor ids to email addresses, dropping ids the
// directory does not know and duplicates.
func (e *Engine) addresses(ctx context.Context, ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		addr, ok := e.directory.Email(ctx, id)
		if !ok {
			e.logger.DebugContext(ctx, "no address for recipient", "actor", id)
			continue
		}
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// Delivery counts what was sent after a commit.
type Delivery struct {
	Notifications int `json:"notifications"`
	Emails        int `json:"emails"`
}
