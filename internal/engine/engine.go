package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/config"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/hook"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/notify"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/version"
)

// DefaultHookFailureLimit bounds the hook failures kept per document.
const DefaultHookFailureLimit = 10

// Engine is the document engine.
//
// Thread-safety: every method is safe for concurrent use. Writes to one
// document are serialized; writes to different documents run in their
// own transactions.
type Engine struct {
	store     *store.Store
	clock     Clock
	ids       IDGenerator
	auth      access.Authorizer
	directory access.Directory
	webhooks  notify.WebhookSender
	mailer    notify.Mailer
	notifier  notify.Notifier
	audit     notify.AuditSink
	logger    *slog.Logger
	settings  config.Settings

	hooks    *hook.Dispatcher
	versions *version.Engine
	locks    *keyedMutex
	doctypes *doctypeCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the document id generator.
func WithIDs(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithAuthorizer sets the permission checker. Default: access.AllowAll.
func WithAuthorizer(a access.Authorizer) Option {
	return func(e *Engine) { e.auth = a }
}

// WithDirectory sets how workflow recipients are resolved to addresses.
func WithDirectory(d access.Directory) Option {
	return func(e *Engine) { e.directory = d }
}

// WithWebhookSender sets the transport of webhook hooks.
func WithWebhookSender(s notify.WebhookSender) Option {
	return func(e *Engine) { e.webhooks = s }
}

// WithMailer sets the transport of email hooks and workflow emails.
func WithMailer(m notify.Mailer) Option {
	return func(e *Engine) { e.mailer = m }
}

// WithNotifier sets the transport of in-app notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithAuditSink sets where security events go.
func WithAuditSink(a notify.AuditSink) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSettings sets the system settings.
func WithSettings(s config.Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// New creates an Engine over an open store.
//
// Without options the engine uses the system clock, UUIDv7 ids, allows
// every actor everything, sends webhooks over HTTP and writes emails,
// notifications and audit events to the logger.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
		auth:      access.AllowAll{},
		directory: access.StaticDirectory{},
		logger:    slog.Default(),
		settings:  config.DefaultSettings(),
		locks:     newKeyedMutex(),
		doctypes:  newDoctypeCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.settings.HookFailureLimit <= 0 {
		e.settings.HookFailureLimit = DefaultHookFailureLimit
	}
	if e.webhooks == nil {
		e.webhooks = notify.NewHTTPWebhookSender(nil)
	}
	if e.mailer == nil {
		e.mailer = notify.SlogMailer{Logger: e.logger}
	}
	if e.notifier == nil {
		e.notifier = notify.SlogNotifier{Logger: e.logger}
	}
	if e.audit == nil {
		e.audit = notify.SlogAuditSink{Logger: e.logger}
	}

	e.hooks = hook.NewDispatcher(
		hook.WithWebhookSender(e.webhooks),
		hook.WithMailer(e.mailer),
		hook.WithNotifier(e.notifier),
		hook.WithLogger(e.logger),
		hook.WithTimeouts(e.settings.WebhookTimeout, e.settings.EmailTimeout),
		hook.WithMailFrom(e.settings.MailFrom),
	)
	e.versions = version.New(version.WithAuditSink(e.audit), version.WithLogger(e.logger))
	return e
}

// Settings returns the settings in effect.
func (e *Engine) Settings() config.Settings {
	return e.settings
}

// authorize checks one permission and returns errs.KindPermission on
// denial.
func (e *Engine) authorize(ctx context.Context, actor model.Actor, doc *model.Document, p access.Permission) error {
	if e.auth.HasPermission(ctx, actor, doc, p) {
		return nil
	}
	e.logger.InfoContext(ctx, "permission denied",
		"actor", actor.ID, "doctype", doc.Doctype, "document", doc.ID, "permission", p)
	return errs.New(errs.KindPermission, "actor %q may not %s %s documents", actor.ID, p, doc.Doctype).
		WithDocument(doc.Doctype, doc.ID).
		WithDetail("permission", string(p))
}

// requireSuperuser guards administrative operations.
func requireSuperuser(actor model.Actor, action string) error {
	if actor.Superuser {
		return nil
	}
	return errs.New(errs.KindPermission, "actor %q may not %s", actor.ID, action)
}

// doctypeCache holds loaded doctypes by name. Entries are shared and must
// not be modified.
type doctypeCache struct {
	mu sync.RWMutex
	m  map[string]*model.Doctype
}

func newDoctypeCache() *doctypeCache {
	return &doctypeCache{m: make(map[string]*model.Doctype)}
}

func (c *doctypeCache) get(name string) (*model.Doctype, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dt, ok := c.m[name]
	return dt, ok
}

func (c *doctypeCache) put(dt *model.Doctype) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[dt.Name] = dt
}

func (c *doctypeCache) invalidate(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		delete(c.m, n)
	}
}

// doctype loads a doctype through st, which must be the transaction store
// when called inside a transaction.
func (e *Engine) doctype(ctx context.Context, st *store.Store, name string) (*model.Doctype, error) {
	if dt, ok := e.doctypes.get(name); ok {
		return dt, nil
	}
	dt, err := st.GetDoctype(ctx, name)
	if err != nil {
		return nil, err
	}
	e.doctypes.put(dt)
	return dt, nil
}

// activeDoctype is doctype for writes: disabled doctypes are refused.
func (e *Engine) activeDoctype(ctx context.Context, st *store.Store, name string) (*model.Doctype, error) {
	dt, err := e.doctype(ctx, st, name)
	if err != nil {
		return nil, err
	}
	if !dt.IsActive {
		return nil, errs.New(errs.KindInvalidState, "doctype %q is disabled", name).WithDocument(name, "")
	}
	return dt, nil
}

// lookup resolves child doctypes for the validator.
func (e *Engine) lookup(ctx context.Context, st *store.Store) schema.DoctypeLookup {
	return func(name string) (*model.Doctype, error) {
		return e.doctype(ctx, st, name)
	}
}
