package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/queryir"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/value"
	"github.com/roach88/doctype/internal/workflow"
)

// CreateOptions are the optional inputs of Create.
type CreateOptions struct {
	// Name overrides the doctype's naming strategy. Required for prompt
	// naming.
	Name string

	// ParentID is the parent document of tree and child doctypes.
	ParentID string

	// Comment is stored on the first version.
	Comment string
}

// Create validates data, runs before_insert and before_save hooks,
// names and stores the document, runs after_insert and after_save hooks
// and records version 1. A doctype with an active workflow puts the new
// document in its initial state.
func (e *Engine) Create(ctx context.Context, actor model.Actor, doctype string, data value.Object, opts CreateOptions) (*model.Document, error) {
	now := e.clock.Now()
	doc := &model.Document{
		ID:        e.ids.NewID(),
		Doctype:   doctype,
		Data:      data.Clone(),
		DocStatus: model.Draft,
		ParentID:  opts.ParentID,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedBy: actor.ID,
		UpdatedAt: now,
	}
	if err := e.authorize(ctx, actor, doc, access.Write); err != nil {
		return nil, err
	}

	comment := opts.Comment
	if comment == "" {
		comment = "Created"
	}
	_, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		return e.insert(ctx, tx, box, actor, doc, opts.Name, comment)
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "document created",
		"doctype", doc.Doctype, "document", doc.ID, "name", doc.Name, "actor", actor.ID)
	return doc, nil
}

// insert is the create unit of work shared by Create and Amend.
func (e *Engine) insert(ctx context.Context, tx *store.Store, box *outbox, actor model.Actor, doc *model.Document, name, comment string) error {
	dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
	if err != nil {
		return err
	}
	doc.Doctype = dt.Name
	if err := e.checkPlacement(ctx, tx, dt, doc); err != nil {
		return err
	}

	_, err = e.apply(ctx, tx, dt, &unit{
		doc:      doc,
		box:      box,
		insert:   true,
		before:   []model.HookType{model.BeforeInsert, model.BeforeSave},
		after:    []model.HookType{model.AfterInsert, model.AfterSave},
		validate: true,
		snapshot: true,
		comment:  comment,
		prepare: func(ctx context.Context, tx *store.Store) error {
			return e.assignName(ctx, tx, dt, doc, name)
		},
	}, actor, doc.CreatedAt)
	if err != nil {
		return err
	}
	return e.startWorkflow(ctx, tx, doc, actor, doc.CreatedAt)
}

// checkPlacement enforces single, tree and child doctype rules on insert.
func (e *Engine) checkPlacement(ctx context.Context, tx *store.Store, dt *model.Doctype, doc *model.Document) error {
	if dt.Single {
		n, err := tx.CountLive(ctx, dt.Name)
		if err != nil {
			return err
		}
		if n > 0 {
			return errs.New(errs.KindConflict, "single doctype %q already has a document", dt.Name).
				WithDocument(dt.Name, "")
		}
	}

	issue := func(msg string) error {
		return errs.NewValidation(dt.Name, []errs.Issue{{Field: "parent_id", Message: msg, Code: schema.ErrStructure}}).
			WithDocument(dt.Name, doc.ID)
	}
	switch {
	case doc.ParentID == "" && dt.Child:
		return issue("child documents need a parent")
	case doc.ParentID == "":
		return nil
	case !dt.Tree && !dt.Child:
		return issue(fmt.Sprintf("doctype %q does not take a parent", dt.Name))
	}

	parent, err := tx.GetDocument(ctx, doc.ParentID)
	if errs.IsNotFound(err) {
		return issue(fmt.Sprintf("parent %q does not exist", doc.ParentID))
	}
	if err != nil {
		return err
	}
	if parent.IsDeleted {
		return issue(fmt.Sprintf("parent %q is deleted", parent.Name))
	}
	if dt.Tree && parent.Doctype != dt.Name {
		return issue(fmt.Sprintf("parent must be a %s document, got %s", dt.Name, parent.Doctype))
	}
	return nil
}

// Get returns a document, including soft-deleted ones.
func (e *Engine) Get(ctx context.Context, actor model.Actor, id string) (*model.Document, error) {
	doc, err := e.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, actor, doc, access.Read); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetByName returns a document by its name within a doctype.
func (e *Engine) GetByName(ctx context.Context, actor model.Actor, doctype, name string) (*model.Document, error) {
	doc, err := e.store.GetDocumentByName(ctx, doctype, name)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, actor, doc, access.Read); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the documents matching sel that the actor may read.
// Soft-deleted documents are left out unless sel.IncludeDeleted is set.
func (e *Engine) List(ctx context.Context, actor model.Actor, sel queryir.Select) ([]*model.Document, error) {
	docs, err := e.store.ListDocuments(ctx, sel)
	if err != nil {
		return nil, err
	}
	return e.readable(ctx, actor, docs), nil
}

// Update replaces the data of a draft document. before_save, after_save
// and on_change hooks run and a version is recorded. The workflow history
// is kept when data leaves it out.
func (e *Engine) Update(ctx context.Context, actor model.Actor, id string, data value.Object, comment string) (*model.Document, error) {
	return e.edit(ctx, actor, id, comment, func(_ *model.Doctype, cur value.Object) error {
		history, kept := cur[workflow.HistoryField]
		for k := range cur {
			delete(cur, k)
		}
		for k, v := range data {
			cur[k] = value.Clone(v)
		}
		if _, ok := cur[workflow.HistoryField]; kept && !ok {
			cur[workflow.HistoryField] = history
		}
		return nil
	})
}

// edit runs a save of a draft document whose data is changed by mutate.
func (e *Engine) edit(ctx context.Context, actor model.Actor, id, comment string, mutate func(dt *model.Doctype, data value.Object) error) (*model.Document, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var doc *model.Document
	var v *model.Version
	_, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		var err error
		doc, err = e.load(ctx, tx, actor, id, access.Write)
		if err != nil {
			return err
		}
		if doc.IsFrozen() {
			return frozen(doc)
		}
		dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
		if err != nil {
			return err
		}

		if doc.Data == nil {
			doc.Data = value.Object{}
		}
		old := doc.Data.Clone()
		if err := mutate(dt, doc.Data); err != nil {
			return err
		}
		now := e.clock.Now()
		doc.UpdatedBy, doc.UpdatedAt = actor.ID, now
		v, err = e.apply(ctx, tx, dt, &unit{
			doc:      doc,
			box:      box,
			old:      old,
			before:   []model.HookType{model.BeforeSave},
			after:    []model.HookType{model.AfterSave},
			onChange: true,
			validate: true,
			snapshot: true,
			comment:  comment,
		}, actor, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "document updated",
		"doctype", doc.Doctype, "document", doc.ID, "version", versionNumber(v), "actor", actor.ID)
	return doc, nil
}

// load reads a live document inside tx and checks one permission.
func (e *Engine) load(ctx context.Context, tx *store.Store, actor model.Actor, id string, p access.Permission) (*model.Document, error) {
	doc, err := tx.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, actor, doc, p); err != nil {
		return nil, err
	}
	if doc.IsDeleted {
		return nil, deleted(doc)
	}
	return doc, nil
}

// SoftDelete marks a document deleted. Documents still linked from live
// documents, or with live children, cannot be deleted; submitted
// documents must be cancelled first. before_delete may abort;
// after_delete failures are recorded on the document.
func (e *Engine) SoftDelete(ctx context.Context, actor model.Actor, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	_, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		doc, err := e.load(ctx, tx, actor, id, access.Delete)
		if err != nil {
			return err
		}
		if doc.DocStatus == model.Submitted {
			return statusError(doc, "submitted document %q must be cancelled before it is deleted", doc.Name)
		}
		dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
		if err != nil {
			return err
		}
		if err := e.checkReferrers(ctx, tx, doc); err != nil {
			return err
		}

		now := e.clock.Now()
		doc.IsDeleted = true
		doc.DeletedBy, doc.DeletedAt = actor.ID, &now
		doc.UpdatedBy, doc.UpdatedAt = actor.ID, now
		_, err = e.apply(ctx, tx, dt, &unit{
			doc:    doc,
			box:    box,
			old:    doc.Data.Clone(),
			before: []model.HookType{model.BeforeDelete},
			after:  []model.HookType{model.AfterDelete},
		}, actor, now)
		return err
	})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "document deleted", "document", id, "actor", actor.ID)
	return nil
}

// checkReferrers refuses to delete a document other live documents
// depend on.
func (e *Engine) checkReferrers(ctx context.Context, tx *store.Store, doc *model.Document) error {
	links, err := tx.IncomingLinks(ctx, doc.ID)
	if err != nil {
		return err
	}
	var sources []string
	seen := map[string]bool{}
	for _, l := range links {
		if l.SourceID != doc.ID && !seen[l.SourceID] {
			seen[l.SourceID] = true
			sources = append(sources, l.SourceID)
		}
	}
	if len(sources) > 0 {
		return errs.New(errs.KindReferential, "document %q is linked from %d other document(s)", doc.Name, len(sources)).
			WithDocument(doc.Doctype, doc.ID).
			WithDetail("linked_from", strings.Join(sources, ","))
	}

	children, err := tx.Children(ctx, doc.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		ids := make([]string, len(children))
		for i, c := range children {
			ids[i] = c.ID
		}
		return errs.New(errs.KindReferential, "document %q has %d child document(s)", doc.Name, len(children)).
			WithDocument(doc.Doctype, doc.ID).
			WithDetail("children", strings.Join(ids, ","))
	}
	return nil
}

// Submit moves a draft of a submittable doctype to Submitted, running
// before_submit and after_submit hooks. Submitted data is frozen.
func (e *Engine) Submit(ctx context.Context, actor model.Actor, id string) (*model.Document, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var doc *model.Document
	_, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		var err error
		doc, err = e.load(ctx, tx, actor, id, access.Submit)
		if err != nil {
			return err
		}
		dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
		if err != nil {
			return err
		}
		if !dt.Submittable {
			return statusError(doc, "doctype %q is not submittable", dt.Name)
		}
		if doc.DocStatus != model.Draft {
			return statusError(doc, "document %q is already %s", doc.Name, doc.DocStatus)
		}

		now := e.clock.Now()
		doc.DocStatus = model.Submitted
		doc.SubmittedBy, doc.SubmittedAt = actor.ID, &now
		doc.UpdatedBy, doc.UpdatedAt = actor.ID, now
		_, err = e.apply(ctx, tx, dt, &unit{
			doc:      doc,
			box:      box,
			old:      doc.Data.Clone(),
			before:   []model.HookType{model.BeforeSubmit},
			after:    []model.HookType{model.AfterSubmit},
			validate: true,
			snapshot: true,
			comment:  "Submitted",
		}, actor, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "document submitted", "doctype", doc.Doctype, "document", doc.ID, "actor", actor.ID)
	return doc, nil
}

// Cancel moves a submitted document to Cancelled.
func (e *Engine) Cancel(ctx context.Context, actor model.Actor, id string) (*model.Document, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var doc *model.Document
	_, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		var err error
		doc, err = e.load(ctx, tx, actor, id, access.Submit)
		if err != nil {
			return err
		}
		if doc.DocStatus != model.Submitted {
			return statusError(doc, "only submitted documents can be cancelled, %q is %s", doc.Name, doc.DocStatus)
		}
		dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		doc.DocStatus = model.Cancelled
		doc.UpdatedBy, doc.UpdatedAt = actor.ID, now
		_, err = e.apply(ctx, tx, dt, &unit{
			doc:      doc,
			box:      box,
			old:      doc.Data.Clone(),
			snapshot: true,
			comment:  "Cancelled",
		}, actor, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "document cancelled", "doctype", doc.Doctype, "document", doc.ID, "actor", actor.ID)
	return doc, nil
}

// Amend creates a new draft from a cancelled document. The copy is named
// after the original with a "-N" suffix, keeps its parent and data, and
// starts a fresh workflow history.
func (e *Engine) Amend(ctx context.Context, actor model.Actor, id string) (*model.Document, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var doc *model.Document
	_, err := e.write(ctx, func(tx *store.Store, box *outbox) error {
		src, err := e.load(ctx, tx, actor, id, access.Write)
		if err != nil {
			return err
		}
		if src.DocStatus != model.Cancelled {
			return statusError(src, "only cancelled documents can be amended, %q is %s", src.Name, src.DocStatus)
		}
		name, err := amendedName(ctx, tx, src)
		if err != nil {
			return err
		}

		data := src.Data.Clone()
		delete(data, workflow.HistoryField)
		now := e.clock.Now()
		doc = &model.Document{
			ID:          e.ids.NewID(),
			Doctype:     src.Doctype,
			Data:        data,
			DocStatus:   model.Draft,
			ParentID:    src.ParentID,
			AmendedFrom: src.ID,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedBy:   actor.ID,
			UpdatedAt:   now,
		}
		if err := e.authorize(ctx, actor, doc, access.Write); err != nil {
			return err
		}
		return e.insert(ctx, tx, box, actor, doc, name, fmt.Sprintf("Amended from %s", src.Name))
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "document amended",
		"doctype", doc.Doctype, "document", doc.ID, "amended_from", doc.AmendedFrom, "actor", actor.ID)
	return doc, nil
}

// amendedName picks the first free "<base>-N". Amending an amendment
// continues its counter: X-1 becomes X-2.
func amendedName(ctx context.Context, tx *store.Store, src *model.Document) (string, error) {
	base, n := src.Name, 0
	if src.AmendedFrom != "" {
		if i := strings.LastIndexByte(src.Name, '-'); i > 0 {
			if k, err := strconv.Atoi(src.Name[i+1:]); err == nil {
				base, n = src.Name[:i], k
			}
		}
	}
	for k := n + 1; ; k++ {
		name := fmt.Sprintf("%s-%d", base, k)
		_, err := tx.GetDocumentByName(ctx, src.Doctype, name)
		if errs.IsNotFound(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// HookFailures returns the recorded after-hook failures of a document,
// oldest first.
func (e *Engine) HookFailures(ctx context.Context, actor model.Actor, id string) ([]model.HookFailure, error) {
	doc, err := e.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return doc.HookFailures, nil
}
