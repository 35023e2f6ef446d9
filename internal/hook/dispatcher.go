package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/value"
)

// Source lists the active hooks of a doctype for one hook type, ordered
// by order then id. *store.Store implements it.
type Source interface {
	ListHooks(ctx context.Context, doctype string, hookType model.HookType) ([]model.Hook, error)
}

// Event is one lifecycle occurrence on a document.
type Event struct {
	Type model.HookType

	// Document is the document as it will be stored. Scripts write into
	// Document.Data.
	Document *model.Document

	// OldData is the stored data before the write, nil on insert.
	OldData value.Object

	Actor model.Actor
	Time  time.Time
}

// Result is the outcome of one hook.
type Result struct {
	HookID     int64            `json:"hook_id"`
	HookName   string           `json:"hook_name"`
	HookType   model.HookType   `json:"hook_type"`
	ActionType model.HookAction `json:"action_type"`
	Success    bool             `json:"success"`
	Skipped    bool             `json:"skipped,omitempty"`
	Output     string           `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`

	// Trace is the operator-facing detail of a failure: expression
	// position or the wrapped error chain.
	Trace string `json:"trace,omitempty"`
}

// Failed reports whether the hook ran and failed.
func (r Result) Failed() bool {
	return !r.Success && !r.Skipped
}

// Dispatcher runs hooks. It is safe for concurrent use.
type Dispatcher struct {
	webhooks       notify.WebhookSender
	mailer         notify.Mailer
	notifier       notify.Notifier
	logger         *slog.Logger
	webhookTimeout time.Duration
	emailTimeout   time.Duration
	mailFrom       string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWebhookSender sets the webhook transport.
func WithWebhookSender(s notify.WebhookSender) Option {
	return func(d *Dispatcher) { d.webhooks = s }
}

// WithMailer sets the email transport.
func WithMailer(m notify.Mailer) Option {
	return func(d *Dispatcher) { d.mailer = m }
}

// WithNotifier sets the notification transport.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTimeouts bounds webhook and email actions.
func WithTimeouts(webhook, email time.Duration) Option {
	return func(d *Dispatcher) {
		d.webhookTimeout = webhook
		d.emailTimeout = email
	}
}

// WithMailFrom sets the sender address of hook emails.
func WithMailFrom(from string) Option {
	return func(d *Dispatcher) { d.mailFrom = from }
}

// NewDispatcher creates a Dispatcher. Without options webhooks go over
// HTTP and emails and notifications are written to the logger.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:         slog.Default(),
		webhookTimeout: notify.DefaultWebhookTimeout,
		emailTimeout:   notify.DefaultEmailTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.webhooks == nil {
		d.webhooks = notify.NewHTTPWebhookSender(nil)
	}
	if d.mailer == nil {
		d.mailer = notify.SlogMailer{Logger: d.logger}
	}
	if d.notifier == nil {
		d.notifier = notify.SlogNotifier{Logger: d.logger}
	}
	return d
}

// Dispatch runs the hooks of ev.Type for the event's doctype.
//
// on_change is a no-op unless old and new data differ canonically. A
// failing before_* hook stops dispatch; the results so far are returned
// together with an errs.KindHookExecution error. Other failures are
// reported only through the results.
func (d *Dispatcher) Dispatch(ctx context.Context, src Source, ev Event) ([]Result, error) {
	results, _, err := d.dispatch(ctx, src, ev, false)
	return results, err
}

// Deferred is a webhook, email or notification action held back until
// the write that triggered it has committed. Its event carries a copy of
// the document as the hook saw it.
type Deferred struct {
	Hook  model.Hook
	Event Event
}

// DispatchDeferred is Dispatch for the after-hooks of a write that has
// not committed yet. Conditions are evaluated and scripts run now;
// webhook, email and notification actions whose condition holds are
// returned instead of run, for Run to perform after commit. Before-hooks
// are never held.
func (d *Dispatcher) DispatchDeferred(ctx context.Context, src Source, ev Event) ([]Result, []Deferred, error) {
	return d.dispatch(ctx, src, ev, !ev.Type.IsBefore())
}

// Run performs held actions in order, one result each.
func (d *Dispatcher) Run(ctx context.Context, held []Deferred) []Result {
	results := make([]Result, 0, len(held))
	for _, h := range held {
		res := d.act(ctx, h.Hook, h.Event)
		if res.Failed() {
			doc := h.Event.Document
			d.logger.WarnContext(ctx, "hook failed",
				"doctype", doc.Doctype, "document", doc.ID, "hook", h.Hook.Name, "hook_type", h.Event.Type, "error", res.Error)
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) dispatch(ctx context.Context, src Source, ev Event, hold bool) ([]Result, []Deferred, error) {
	doc := ev.Document
	if ev.Type == model.OnChange && value.Equal(orEmpty(ev.OldData), orEmpty(doc.Data)) {
		return nil, nil, nil
	}

	hooks, err := src.ListHooks(ctx, doc.Doctype, ev.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s hooks for %s: %w", ev.Type, doc.Doctype, err)
	}

	results := make([]Result, 0, len(hooks))
	var held []Deferred
	for _, h := range hooks {
		if !d.admit(ctx, h, ev) {
			results = append(results, Result{HookID: h.ID, HookName: h.Name, HookType: ev.Type, ActionType: h.Action, Skipped: true})
			continue
		}
		if hold && external(h.Action) {
			held = append(held, Deferred{Hook: h, Event: detach(ev)})
			continue
		}
		res := d.act(ctx, h, ev)
		results = append(results, res)
		if !res.Failed() {
			continue
		}
		if ev.Type.IsBefore() {
			d.logger.InfoContext(ctx, "before hook aborted write",
				"doctype", doc.Doctype, "document", doc.ID, "hook", h.Name, "error", res.Error)
			e := errs.New(errs.KindHookExecution, "%s hook %q failed: %s", ev.Type, h.Name, res.Error).
				WithDocument(doc.Doctype, doc.ID).
				WithDetail("hook_id", strconv.FormatInt(h.ID, 10)).
				WithDetail("hook_type", string(h.Type)).
				WithDetail("action_type", string(h.Action))
			e.Trace = res.Trace
			return results, nil, e
		}
		d.logger.WarnContext(ctx, "hook failed",
			"doctype", doc.Doctype, "document", doc.ID, "hook", h.Name, "hook_type", ev.Type, "error", res.Error)
	}
	return results, held, nil
}

// admit reports whether the hook's condition holds. A condition that
// fails to evaluate counts as false.
func (d *Dispatcher) admit(ctx context.Context, h model.Hook, ev Event) bool {
	if h.Condition == "" {
		return true
	}
	ok, err := expr.EvalBool(h.Condition, ConditionEnv(ev.Document, ev.Actor, ev.OldData))
	if err != nil {
		d.logger.WarnContext(ctx, "hook condition failed, skipping",
			"hook", h.Name, "condition", h.Condition, "error", err)
	}
	if !ok {
		d.logger.DebugContext(ctx, "hook skipped", "hook", h.Name, "condition", h.Condition)
	}
	return ok
}

// act runs the hook's action unconditionally.
func (d *Dispatcher) act(ctx context.Context, h model.Hook, ev Event) Result {
	res := Result{HookID: h.ID, HookName: h.Name, HookType: ev.Type, ActionType: h.Action}

	var (
		out string
		err error
	)
	switch h.Action {
	case model.ActionScript:
		out, err = d.runScript(h, ev)
	case model.ActionWebhook:
		out, err = d.runWebhook(ctx, h, ev)
	case model.ActionEmail:
		out, err = d.runEmail(ctx, h, ev)
	case model.ActionNotification:
		out, err = d.runNotification(ctx, h, ev)
	default:
		err = actionErrorf(nil, "unknown action type %q", h.Action)
	}
	if err != nil {
		res.Error, res.Trace = describe(h, err)
		return res
	}
	d.logger.DebugContext(ctx, "hook ran", "hook", h.Name, "hook_type", ev.Type, "output", out)
	res.Success = true
	res.Output = out
	return res
}

// external reports whether an action leaves the process.
func external(a model.HookAction) bool {
	switch a {
	case model.ActionWebhook, model.ActionEmail, model.ActionNotification:
		return true
	}
	return false
}

// detach copies ev so later hooks and writes cannot change what a held
// action sends.
func detach(ev Event) Event {
	doc := *ev.Document
	doc.Data = orEmpty(ev.Document.Data).Clone()
	doc.HookFailures = append([]model.HookFailure(nil), ev.Document.HookFailures...)
	ev.Document = &doc
	if ev.OldData != nil {
		ev.OldData = ev.OldData.Clone()
	}
	return ev
}

// actionError separates the short message shown to callers from the
// underlying cause kept for operators.
type actionError struct {
	msg   string
	cause error
}

func (e *actionError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *actionError) Unwrap() error { return e.cause }

func actionErrorf(cause error, format string, args ...any) error {
	return &actionError{msg: fmt.Sprintf(format, args...), cause: cause}
}

func describe(h model.Hook, err error) (msg, trace string) {
	msg = err.Error()
	var ae *actionError
	if errors.As(err, &ae) {
		msg = ae.msg
	}
	trace = fmt.Sprintf("hook %d (%s, %s %s): %v", h.ID, h.Name, h.Type, h.Action, err)
	var xe *expr.Error
	if errors.As(err, &xe) && xe.Line > 0 {
		trace += fmt.Sprintf(" [line %d, col %d]", xe.Line, xe.Col)
	}
	return msg, trace
}
