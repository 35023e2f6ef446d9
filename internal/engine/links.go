package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/doctype/internal/access"
	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/schema"
	"github.com/roach88/doctype/internal/store"
	"github.com/roach88/doctype/internal/value"
)

// linkPlan is the link rows a document's data implies, keyed by field.
// Link values in data are target names; rows hold target ids.
type linkPlan struct {
	single map[string]string
	multi  map[string][]string
}

func (p *linkPlan) apply(ctx context.Context, tx *store.Store, sourceID string, now time.Time) error {
	for field, target := range p.single {
		if err := tx.SetLink(ctx, sourceID, field, target, now); err != nil {
			return err
		}
	}
	for field, targets := range p.multi {
		if err := tx.SetLinks(ctx, sourceID, field, targets, now); err != nil {
			return err
		}
	}
	return nil
}

// resolveLinks maps every link and multi-link field of data to target
// ids. A target must exist in the link's doctype. New links may not point
// at soft-deleted documents; links already stored keep resolving after
// their target is deleted.
func (e *Engine) resolveLinks(ctx context.Context, tx *store.Store, dt *model.Doctype, data, old value.Object) (*linkPlan, []errs.Issue, error) {
	plan := &linkPlan{single: map[string]string{}, multi: map[string][]string{}}
	var issues []errs.Issue

	resolve := func(f model.Field, name string, unchanged bool) (string, bool, error) {
		target, err := tx.GetDocumentByName(ctx, f.LinkTarget, name)
		if errs.IsNotFound(err) {
			issues = append(issues, errs.Issue{Field: f.Name, Code: schema.ErrLink,
				Message: fmt.Sprintf("no %s document named %q", f.LinkTarget, name)})
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		if target.IsDeleted && !unchanged {
			issues = append(issues, errs.Issue{Field: f.Name, Code: schema.ErrLink,
				Message: fmt.Sprintf("%s document %q is deleted", f.LinkTarget, name)})
			return "", false, nil
		}
		return target.ID, true, nil
	}

	for _, f := range dt.Fields {
		switch {
		case f.Type == model.FieldLink:
			v := data[f.Name]
			name, ok := v.(value.String)
			if !ok || name == "" {
				plan.single[f.Name] = ""
				continue
			}
			unchanged := old != nil && value.Equal(old[f.Name], v)
			id, ok, err := resolve(f, string(name), unchanged)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				plan.single[f.Name] = id
			}

		case f.IsMultiLink():
			list, _ := data[f.Name].(value.Array)
			before := map[string]bool{}
			if prev, ok := old[f.Name].(value.Array); ok {
				for _, item := range prev {
					if s, ok := item.(value.String); ok {
						before[string(s)] = true
					}
				}
			}
			ids := make([]string, 0, len(list))
			for _, item := range list {
				name, ok := item.(value.String)
				if !ok {
					continue
				}
				id, ok, err := resolve(f, string(name), before[string(name)])
				if err != nil {
					return nil, nil, err
				}
				if ok {
					ids = append(ids, id)
				}
			}
			plan.multi[f.Name] = ids
		}
	}
	return plan, issues, nil
}

// SetLink points a link field at the document named target, or clears it
// when target is empty. The change is an ordinary save: hooks run and a
// version is recorded.
func (e *Engine) SetLink(ctx context.Context, actor model.Actor, id, field, target string) (*model.Document, error) {
	return e.edit(ctx, actor, id, "", func(dt *model.Doctype, data value.Object) error {
		f, ok := dt.Field(field)
		if !ok || f.Type != model.FieldLink {
			return fieldError(dt, field, "is not a link field")
		}
		if target == "" {
			data[field] = value.Null{}
		} else {
			data[field] = value.String(target)
		}
		return nil
	})
}

// SetLinks replaces the ordered targets of a multi-link field.
func (e *Engine) SetLinks(ctx context.Context, actor model.Actor, id, field string, targets []string) (*model.Document, error) {
	return e.edit(ctx, actor, id, "", func(dt *model.Doctype, data value.Object) error {
		f, ok := dt.Field(field)
		if !ok || !f.IsMultiLink() {
			return fieldError(dt, field, "is not a multi-link field")
		}
		list := make(value.Array, len(targets))
		for i, t := range targets {
			list[i] = value.String(t)
		}
		data[field] = list
		return nil
	})
}

// Links returns the outgoing links of a document.
func (e *Engine) Links(ctx context.Context, actor model.Actor, id string) ([]model.Link, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.store.Links(ctx, id)
}

// Children returns the live documents whose parent is id, oldest first.
// Documents the actor may not read are left out.
func (e *Engine) Children(ctx context.Context, actor model.Actor, id string) ([]*model.Document, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	docs, err := e.store.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.readable(ctx, actor, docs), nil
}

func (e *Engine) readable(ctx context.Context, actor model.Actor, docs []*model.Document) []*model.Document {
	out := docs[:0]
	for _, d := range docs {
		if e.auth.HasPermission(ctx, actor, d, access.Read) {
			out = append(out, d)
		}
	}
	return out
}

func fieldError(dt *model.Doctype, field, msg string) error {
	return errs.NewValidation(dt.Name, []errs.Issue{{Field: field, Message: msg, Code: schema.ErrInvalidValue}})
}
