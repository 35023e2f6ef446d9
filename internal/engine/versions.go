package engine

import (
	"context"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/version"
)

// Versions lists the verified versions of a document, newest first.
func (e *Engine) Versions(ctx context.Context, actor model.Actor, id string) ([]*model.Version, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.versions.List(ctx, e.store, actor, id)
}

// Version returns one verified version.
func (e *Engine) Version(ctx context.Context, actor model.Actor, id string, number int64) (*model.Version, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.versions.Get(ctx, e.store, actor, id, number)
}

// History summarizes every version of a document, newest first.
func (e *Engine) History(ctx context.Context, actor model.Actor, id string) ([]version.Entry, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.versions.History(ctx, e.store, actor, id)
}

// Compare returns the changes between two versions of a document.
func (e *Engine) Compare(ctx context.Context, actor model.Actor, id string, v1, v2 int64) (model.Changes, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return model.Changes{}, err
	}
	return e.versions.Compare(ctx, e.store, actor, id, v1, v2)
}

// DiffText renders the difference between two versions as a unified
// diff, of the whole data or of one field.
func (e *Engine) DiffText(ctx context.Context, actor model.Actor, id string, v1, v2 int64, field string) (string, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return "", err
	}
	return e.versions.DiffText(ctx, e.store, actor, id, v1, v2, field)
}

// Verify reports the integrity of every version of a document.
func (e *Engine) Verify(ctx context.Context, actor model.Actor, id string) ([]version.Check, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.versions.Verify(ctx, e.store, actor, id)
}

// Prune deletes the oldest versions of a document so that keep remain.
func (e *Engine) Prune(ctx context.Context, actor model.Actor, id string, keep int) (int64, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	var n int64
	err := e.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := e.load(ctx, tx, actor, id, access.Delete); err != nil {
			return err
		}
		var err error
		n, err = e.versions.Prune(ctx, tx, actor, id, keep)
		return err
	})
	return n, err
}

// Restore copies the data of version number back onto the document and
// saves it as a new version. The target version is verified first;
// submitted and cancelled documents cannot be restored.
func (e *Engine) Restore(ctx context.Context, actor model.Actor, id string, number int64, comment string) (*model.Document, *model.Version, error) {
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
		target, err := e.versions.Get(ctx, tx, actor, id, number)
		if err != nil {
			return err
		}
		dt, err := e.activeDoctype(ctx, tx, doc.Doctype)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		old := doc.Data
		doc.Data = target.Snapshot.Clone()
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
			comment:  version.RestoreComment(number, comment),
		}, actor, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.InfoContext(ctx, "document restored",
		"doctype", doc.Doctype, "document", id, "from_version", number, "version", v.Number, "actor", actor.ID)
	return doc, v, nil
}
