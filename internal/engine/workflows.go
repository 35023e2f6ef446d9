package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/workflow"
)

// startWorkflow puts a new document in the initial state of its
// doctype's active workflow, if there is one.
func (e *Engine) startWorkflow(ctx context.Context, tx *store.Store, doc *model.Document, actor model.Actor, now time.Time) error {
	wf, err := tx.ActiveWorkflow(ctx, doc.Doctype)
	if errs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = e.putInitialState(ctx, tx, wf, doc, actor, now)
	return err
}

func (e *Engine) putInitialState(ctx context.Context, tx *store.Store, wf *model.Workflow, doc *model.Document, actor model.Actor, now time.Time) (*model.DocumentWorkflowState, error) {
	initial, err := workflow.Initialize(wf)
	if err != nil {
		return nil, err
	}
	st := model.DocumentWorkflowState{
		DocumentID:   doc.ID,
		Workflow:     wf.Name,
		CurrentState: initial,
		ChangedBy:    actor.ID,
		ChangedAt:    now,
	}
	if err := tx.PutWorkflowState(ctx, st); err != nil {
		return nil, err
	}
	return &st, nil
}

// activeWorkflow returns the doctype's active workflow or an
// errs.KindInvalidState error naming the doctype.
func activeWorkflow(ctx context.Context, st *store.Store, doc *model.Document) (*model.Workflow, error) {
	wf, err := st.ActiveWorkflow(ctx, doc.Doctype)
	if errs.IsNotFound(err) {
		return nil, errs.New(errs.KindInvalidState, "doctype %q has no active workflow", doc.Doctype).
			WithDocument(doc.Doctype, doc.ID)
	}
	return wf, err
}

// currentState returns where doc is in wf. A document without a state,
// or with a state from a workflow that has since been replaced, is in
// wf's initial state.
func currentState(ctx context.Context, st *store.Store, wf *model.Workflow, doc *model.Document) (string, error) {
	ws, err := st.GetWorkflowState(ctx, doc.ID)
	switch {
	case errs.IsNotFound(err):
	case err != nil:
		return "", err
	case ws.Workflow == wf.Name:
		return ws.CurrentState, nil
	}
	return workflow.Initialize(wf)
}

// InitializeWorkflow puts an existing document in the initial state of
// its doctype's active workflow. Documents created after the workflow
// was defined start there automatically; this is for the ones created
// before. A document already in the active workflow keeps its state.
func (e *Engine) InitializeWorkflow(ctx context.Context, actor model.Actor, id string) (*model.DocumentWorkflowState, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var out *model.DocumentWorkflowState
	err := e.store.WithTx(ctx, func(tx *store.Store) error {
		doc, err := e.load(ctx, tx, actor, id, access.Write)
		if err != nil {
			return err
		}
		wf, err := activeWorkflow(ctx, tx, doc)
		if err != nil {
			return err
		}
		ws, err := tx.GetWorkflowState(ctx, doc.ID)
		if err == nil && ws.Workflow == wf.Name {
			out = ws
			return nil
		}
		if err != nil && !errs.IsNotFound(err) {
			return err
		}
		out, err = e.putInitialState(ctx, tx, wf, doc, actor, e.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WorkflowStatus is where a document is in its workflow.
type WorkflowStatus struct {
	model.DocumentWorkflowState
	IsFinal   bool `json:"is_final"`
	IsSuccess bool `json:"is_success"`
}

// WorkflowState returns the document's current workflow state.
func (e *Engine) WorkflowState(ctx context.Context, actor model.Actor, id string) (*WorkflowStatus, error) {
	doc, err := e.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	wf, err := activeWorkflow(ctx, e.store, doc)
	if err != nil {
		return nil, err
	}
	ws, err := e.store.GetWorkflowState(ctx, doc.ID)
	if err != nil && !errs.IsNotFound(err) {
		return nil, err
	}
	if err != nil || ws.Workflow != wf.Name {
		initial, err := workflow.Initialize(wf)
		if err != nil {
			return nil, err
		}
		ws = &model.DocumentWorkflowState{DocumentID: doc.ID, Workflow: wf.Name, CurrentState: initial}
	}
	return &WorkflowStatus{
		DocumentWorkflowState: *ws,
		IsFinal:               workflow.IsFinal(wf, ws.CurrentState),
		IsSuccess:             workflow.IsSuccess(wf, ws.CurrentState),
	}, nil
}

// AvailableTransitions lists the transitions the actor may take from the
// document's current state. Conditions are not evaluated.
func (e *Engine) AvailableTransitions(ctx context.Context, actor model.Actor, id string) ([]model.Transition, error) {
	doc, err := e.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	wf, err := activeWorkflow(ctx, e.store, doc)
	if err != nil {
		return nil, err
	}
	state, err := currentState(ctx, e.store, wf, doc)
	if err != nil {
		return nil, err
	}
	return workflow.AvailableTransitions(wf, state, actor), nil
}

// CanTransition reports whether the actor could take the transition
// labelled label from the document's current state with the given
// comment, and why not when it could not. Nothing is written.
func (e *Engine) CanTransition(ctx context.Context, actor model.Actor, id, label, comment string) (bool, string, error) {
	doc, err := e.Get(ctx, actor, id)
	if err != nil {
		return false, "", err
	}
	wf, err := activeWorkflow(ctx, e.store, doc)
	if err != nil {
		return false, "", err
	}
	state, err := currentState(ctx, e.store, wf, doc)
	if err != nil {
		return false, "", err
	}
	ok, reason := workflow.CanTransition(wf, state, doc, label, actor, comment)
	return ok, reason, nil
}

// TransitionResult is the outcome of a committed transition.
type TransitionResult struct {
	Document   *model.Document `json:"document"`
	Transition string          `json:"transition"`
	From       string          `json:"from_state"`
	To         string          `json:"to_state"`
	Version    int64           `json:"version_number"`
	Warnings   []string        `json:"warnings,omitempty"`
	Delivered  Delivery        `json:"delivered"`
}

// Transition moves a document along the transition labelled label.
//
// The transition is checked (state, roles, comment, condition), its
// actions run, the history entry is appended to the data and the document
// is saved like an update: before_save may abort, after_save and
// on_change failures are recorded, and a version is recorded. The new
// state is stored in the same transaction. Notifications and emails are
// sent after commit. Transitions are allowed on submitted documents.
func (e *Engine) Transition(ctx context.Context, actor model.Actor, id, label, comment string) (*TransitionResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	res := &TransitionResult{Transition: label}
	box, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		doc, err := e.load(ctx, tx, actor, id, access.Write)
		if err != nil {
			return err
		}
		dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
		if err != nil {
			return err
		}
		wf, err := activeWorkflow(ctx, tx, doc)
		if err != nil {
			return err
		}
		state, err := currentState(ctx, tx, wf, doc)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		old := doc.Data.Clone()
		req := workflow.Request{
			Workflow: wf,
			State:    state,
			Document: doc,
			Label:    label,
			Actor:    actor,
			Comment:  comment,
			Time:     now,
			Slug:     dt.Slug,
			SiteURL:  e.settings.SiteURL,
			Logger:   e.logger,
		}
		out, err := workflow.Execute(req)
		if err != nil {
			return err
		}

		doc.UpdatedBy, doc.UpdatedAt = actor.ID, now
		v, err := e.apply(ctx, tx, dt, &unit{
			doc:      doc,
			box:      box,
			old:      old,
			before:   []model.HookType{model.BeforeSave},
			after:    []model.HookType{model.AfterSave},
			onChange: true,
			validate: true,
			snapshot: true,
			comment:  transitionComment(out, comment),
		}, actor, now)
		if err != nil {
			return err
		}
		if err := tx.PutWorkflowState(ctx, out.State(req)); err != nil {
			return err
		}

		box.addNotifications(out.Notifications...)
		box.addEmails(out.Emails...)
		res.Document = doc
		res.From, res.To = out.From, out.To
		res.Version = versionNumber(v)
		res.Warnings = out.Warnings
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "workflow transition",
		"doctype", res.Document.Doctype, "document", id, "transition", label,
		"from", res.From, "to", res.To, "actor", actor.ID)
	res.Delivered = e.deliver(ctx, box)
	return res, nil
}

func transitionComment(out *workflow.Outcome, comment string) string {
	s := fmt.Sprintf("%s: %s -> %s", out.Transition.Label, out.From, out.To)
	if comment != "" {
		s += ": " + comment
	}
	return s
}
