package engine

import (
	"context"
	"fmt"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/hook"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/workflow"
)

// Schema error codes raised while defining (S150-S159)
const (
	ErrUnknownDoctype = "S151" // reference to a doctype that does not exist
	ErrNotChild       = "S152" // table field pointing at a non-child doctype
	ErrDoctypeTwice   = "S153" // doctype declared twice in one set
)

// DefinedDoctype reports what happened to one doctype.
type DefinedDoctype struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
	Changed bool   `json:"changed"`
}

// DefineResult summarizes a Define call.
type DefineResult struct {
	Doctypes  []DefinedDoctype `json:"doctypes"`
	Hooks     []string         `json:"hooks,omitempty"`
	Workflows []string         `json:"workflows,omitempty"`
	Warnings  []errs.Issue     `json:"warnings,omitempty"`
}

// Define registers the doctypes, hooks and workflows of a definition file
// in one transaction. Any invalid definition rejects the whole set.
//
// Redefining a doctype with an identical definition keeps its version.
// Link targets and child doctypes must be defined in the same set or
// already exist.
func (e *Engine) Define(ctx context.Context, actor model.Actor, defs *schema.Definitions) (*DefineResult, error) {
	if err := requireSuperuser(actor, "define doctypes"); err != nil {
		return nil, err
	}

	doctypes := make([]model.Doctype, len(defs.Doctypes))
	batch := make(map[string]*model.Doctype, len(defs.Doctypes))
	for i := range defs.Doctypes {
		dt := defs.Doctypes[i]
		dt.Fields = append([]model.Field(nil), dt.Fields...)
		schema.Normalize(&dt)
		if err := schema.CheckDoctype(&dt); err != nil {
			return nil, err
		}
		if _, dup := batch[dt.Name]; dup {
			return nil, errs.NewSchema(dt.Name, []errs.Issue{{Field: "name", Message: "doctype defined twice", Code: ErrDoctypeTwice}})
		}
		doctypes[i] = dt
		batch[dt.Name] = &doctypes[i]
	}
	for i := range defs.Hooks {
		if err := hook.CheckHook(&defs.Hooks[i]); err != nil {
			return nil, err
		}
	}
	opts := workflow.Options{StrictFinalStates: e.settings.StrictFinalStates}

	res := &DefineResult{}
	now := e.clock.Now()
	err := e.store.WithTx(ctx, func(tx *store.Store) error {
		known := func(name string) (*model.Doctype, error) {
			if dt, ok := batch[name]; ok {
				return dt, nil
			}
			return tx.GetDoctype(ctx, name)
		}

		for i := range doctypes {
			if err := checkReferences(&doctypes[i], known); err != nil {
				return err
			}
		}
		for i := range doctypes {
			dt := &doctypes[i]
			changed, err := tx.PutDoctype(ctx, dt, now)
			if err != nil {
				return err
			}
			res.Doctypes = append(res.Doctypes, DefinedDoctype{Name: dt.Name, Version: dt.Version, Changed: changed})
		}

		for i := range defs.Hooks {
			h := defs.Hooks[i]
			if _, err := known(h.Doctype); err != nil {
				return unknownDoctype(h.Doctype, "hook", err)
			}
			if err := tx.PutHook(ctx, &h); err != nil {
				return err
			}
			res.Hooks = append(res.Hooks, h.Name)
		}

		for i := range defs.Workflows {
			wf := defs.Workflows[i]
			if _, err := known(wf.Doctype); err != nil {
				return unknownDoctype(wf.Doctype, "workflow "+wf.Name, err)
			}
			warnings, err := workflow.ValidateWorkflow(&wf, opts)
			if err != nil {
				return err
			}
			res.Warnings = append(res.Warnings, warnings...)
			if err := tx.PutWorkflow(ctx, &wf, now); err != nil {
				return err
			}
			res.Workflows = append(res.Workflows, wf.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doctypes))
	for _, dt := range doctypes {
		names = append(names, dt.Name)
	}
	e.doctypes.invalidate(names...)
	e.logger.InfoContext(ctx, "definitions applied",
		"doctypes", len(res.Doctypes), "hooks", len(res.Hooks), "workflows", len(res.Workflows), "warnings", len(res.Warnings))
	return res, nil
}

// checkReferences verifies that link targets and child doctypes exist and
// that table fields point at child doctypes.
func checkReferences(dt *model.Doctype, known schema.DoctypeLookup) error {
	var issues []errs.Issue
	for _, f := range dt.Fields {
		switch {
		case f.LinkTarget != "":
			if _, err := known(f.LinkTarget); err != nil {
				if !errs.IsNotFound(err) {
					return err
				}
				issues = append(issues, errs.Issue{Field: "fields." + f.Name + ".link_target",
					Message: fmt.Sprintf("unknown doctype %q", f.LinkTarget), Code: ErrUnknownDoctype})
			}
		case f.Type == model.FieldTable:
			child, err := known(f.ChildDoctype)
			if err != nil {
				if !errs.IsNotFound(err) {
					return err
				}
				issues = append(issues, errs.Issue{Field: "fields." + f.Name + ".child_doctype",
					Message: fmt.Sprintf("unknown doctype %q", f.ChildDoctype), Code: ErrUnknownDoctype})
				continue
			}
			if !child.Child {
				issues = append(issues, errs.Issue{Field: "fields." + f.Name + ".child_doctype",
					Message: fmt.Sprintf("doctype %q is not a child doctype", f.ChildDoctype), Code: ErrNotChild})
			}
		}
	}
	if len(issues) > 0 {
		return errs.NewSchema(dt.Name, issues)
	}
	return nil
}

func unknownDoctype(name, owner string, err error) error {
	if !errs.IsNotFound(err) {
		return err
	}
	return errs.NewSchema(owner, []errs.Issue{{Field: "doctype", Message: fmt.Sprintf("unknown doctype %q", name), Code: ErrUnknownDoctype}})
}

// Doctype returns one doctype, active or not.
func (e *Engine) Doctype(ctx context.Context, name string) (*model.Doctype, error) {
	return e.doctype(ctx, e.store, name)
}

// Doctypes lists every doctype by name.
func (e *Engine) Doctypes(ctx context.Context) ([]*model.Doctype, error) {
	return e.store.ListDoctypes(ctx)
}

// DisableDoctype stops all writes to a doctype. Existing documents stay
// readable. Defining the doctype again re-enables it.
func (e *Engine) DisableDoctype(ctx context.Context, actor model.Actor, name string) error {
	if err := requireSuperuser(actor, "disable doctypes"); err != nil {
		return err
	}
	if err := e.store.SetDoctypeActive(ctx, name, false, e.clock.Now()); err != nil {
		return err
	}
	e.doctypes.invalidate(name)
	e.logger.InfoContext(ctx, "doctype disabled", "doctype", name, "actor", actor.ID)
	return nil
}
