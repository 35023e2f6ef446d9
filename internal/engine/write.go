package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/hook"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/value"
)

// unit describes one document write. It runs inside a transaction as:
// validate, before-hooks, validate again if the hooks changed data,
// prepare, persist, sync links, after-hooks, snapshot. After-hook
// webhook, email and notification actions are held in box and run once
// the transaction commits.
type unit struct {
	doc *model.Document
	box *outbox

	// old is the stored data before the write, nil on insert.
	old    value.Object
	insert bool

	before   []model.HookType
	after    []model.HookType
	onChange bool

	validate bool
	snapshot bool
	comment  string

	// prepare runs after the before-hooks, right before the row is
	// written. Inserts use it to assign the name.
	prepare func(ctx context.Context, tx *store.Store) error
}

// apply runs u against tx. On success the document row, links, hook
// failures and version are written; the caller commits.
func (e *Engine) apply(ctx context.Context, tx *store.Store, dt *model.Doctype, u *unit, actor model.Actor, now time.Time) (*model.Version, error) {
	doc := u.doc
	if doc.Data == nil {
		doc.Data = value.Object{}
	}

	var plan *linkPlan
	if u.validate {
		p, err := e.check(ctx, tx, dt, doc, u.old)
		if err != nil {
			return nil, err
		}
		plan = p
	}

	if len(u.before) > 0 {
		seen := doc.Data.Clone()
		for _, t := range u.before {
			if _, err := e.hooks.Dispatch(ctx, tx, hook.Event{Type: t, Document: doc, OldData: u.old, Actor: actor, Time: now}); err != nil {
				return nil, err
			}
		}
		if u.validate && !value.Equal(seen, doc.Data) {
			p, err := e.check(ctx, tx, dt, doc, u.old)
			if err != nil {
				return nil, err
			}
			plan = p
		}
	}

	if u.prepare != nil {
		if err := u.prepare(ctx, tx); err != nil {
			return nil, err
		}
	}

	if u.insert {
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return nil, err
		}
	} else if err := tx.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if plan != nil {
		if err := plan.apply(ctx, tx, doc.ID, now); err != nil {
			return nil, err
		}
	}

	after := u.after
	if u.onChange {
		after = append(append([]model.HookType(nil), after...), model.OnChange)
	}
	var failures []model.HookFailure
	for _, t := range after {
		view := cloneDocument(doc)
		results, held, err := e.hooks.DispatchDeferred(ctx, tx, hook.Event{Type: t, Document: view, OldData: u.old, Actor: actor, Time: now})
		if err != nil {
			return nil, err
		}
		failures = append(failures, hookFailures(results, now)...)
		u.box.addHooks(doc, now, held)
	}
	if len(failures) > 0 {
		doc.HookFailures = boundFailures(append(doc.HookFailures, failures...), e.settings.HookFailureLimit)
	}

	var v *model.Version
	if u.snapshot {
		var err error
		v, err = e.versions.Snapshot(ctx, tx, doc, actor, u.comment, now)
		if err != nil {
			return nil, err
		}
		if keep := e.settings.VersionRetention; keep > 0 {
			if _, err := e.versions.Prune(ctx, tx, actor, doc.ID, keep); err != nil {
				return nil, err
			}
		}
	}
	if u.snapshot || len(failures) > 0 {
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// hookFailures turns the failed results into recorded failures.
func hookFailures(results []hook.Result, at time.Time) []model.HookFailure {
	var out []model.HookFailure
	for _, r := range results {
		if r.Failed() {
			out = append(out, model.HookFailure{
				HookID:     r.HookID,
				HookType:   r.HookType,
				ActionType: string(r.ActionType),
				Error:      r.Error,
				OccurredAt: at,
			})
		}
	}
	return out
}

// boundFailures keeps the most recent limit entries.
func boundFailures(failures []model.HookFailure, limit int) []model.HookFailure {
	if limit <= 0 || len(failures) <= limit {
		return failures
	}
	return append([]model.HookFailure(nil), failures[len(failures)-limit:]...)
}

// check validates doc against dt and the stored documents: field types and
// required values, unique fields among live documents and link targets.
// It returns the link rows to write.
func (e *Engine) check(ctx context.Context, tx *store.Store, dt *model.Doctype, doc *model.Document, old value.Object) (*linkPlan, error) {
	if err := schema.NewValidator(e.lookup(ctx, tx)).Validate(dt, doc.Data); err != nil {
		if ee, ok := errs.As(err); ok {
			ee.WithDocument(dt.Name, doc.ID)
		}
		return nil, err
	}

	var issues []errs.Issue
	for _, f := range dt.Fields {
		if !f.Unique {
			continue
		}
		v, ok := doc.Data[f.Name]
		if !ok || value.IsNull(v) {
			continue
		}
		ids, err := tx.FindByField(ctx, dt.Name, f.Name, v)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id != doc.ID {
				issues = append(issues, errs.Issue{Field: f.Name, Code: schema.ErrUnique,
					Message: "value is already used by another document"})
				break
			}
		}
	}

	plan, linkIssues, err := e.resolveLinks(ctx, tx, dt, doc.Data, old)
	if err != nil {
		return nil, err
	}
	issues = append(issues, linkIssues...)
	if len(issues) > 0 {
		return nil, errs.NewValidation(dt.Name, issues).WithDocument(dt.Name, doc.ID)
	}
	return plan, nil
}

// cloneDocument copies doc deeply enough that hooks cannot change the
// original.
func cloneDocument(doc *model.Document) *model.Document {
	c := *doc
	c.Data = doc.Data.Clone()
	c.HookFailures = append([]model.HookFailure(nil), doc.HookFailures...)
	return &c
}

// frozen reports a data edit on a submitted or cancelled document.
func frozen(doc *model.Document) error {
	return errs.New(errs.KindFrozen, "document %q is %s and cannot be edited", doc.Name, doc.DocStatus).
		WithDocument(doc.Doctype, doc.ID)
}

// deleted reports a write to a soft-deleted document.
func deleted(doc *model.Document) error {
	return errs.New(errs.KindInvalidState, "document %q is deleted", doc.Name).
		WithDocument(doc.Doctype, doc.ID)
}

func versionNumber(v *model.Version) int64 {
	if v == nil {
		return 0
	}
	return v.Number
}

func statusError(doc *model.Document, format string, args ...any) error {
	return errs.New(errs.KindInvalidState, "%s", fmt.Sprintf(format, args...)).
		WithDocument(doc.Doctype, doc.ID).
		WithDetail("doc_status", doc.DocStatus.String())
}
