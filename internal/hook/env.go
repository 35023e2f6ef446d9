package hook

import (
	"time"

	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

// ConditionEnv builds the names visible to hook and transition
// conditions: document, data, actor and old_data. The values are copies;
// evaluating against them cannot change doc.
func ConditionEnv(doc *model.Document, actor model.Actor, old value.Object) expr.Env {
	if old == nil {
		old = value.Object{}
	}
	return expr.Env{
		"document": DocumentValue(doc),
		"data":     orEmpty(doc.Data).Clone(),
		"actor":    ActorValue(actor),
		"old_data": old.Clone(),
	}
}

// DocumentValue renders the document header and data as one object.
func DocumentValue(doc *model.Document) value.Object {
	obj := value.Object{
		"id":             value.String(doc.ID),
		"name":           value.String(doc.Name),
		"doctype":        value.String(doc.Doctype),
		"doc_status":     value.Int(doc.DocStatus),
		"version_number": value.Int(doc.VersionNumber),
		"is_deleted":     value.Bool(doc.IsDeleted),
		"created_by":     value.String(doc.CreatedBy),
		"updated_by":     value.String(doc.UpdatedBy),
		"created_at":     timeValue(doc.CreatedAt),
		"updated_at":     timeValue(doc.UpdatedAt),
		"data":           orEmpty(doc.Data).Clone(),
	}
	if doc.ParentID != "" {
		obj["parent_id"] = value.String(doc.ParentID)
	}
	if doc.AmendedFrom != "" {
		obj["amended_from"] = value.String(doc.AmendedFrom)
	}
	return obj
}

// ActorValue renders an actor for expressions and payloads.
func ActorValue(a model.Actor) value.Object {
	roles := make(value.Array, len(a.Roles))
	for i, r := range a.Roles {
		roles[i] = value.String(r)
	}
	return value.Object{
		"id":        value.String(a.ID),
		"email":     value.String(a.Email),
		"roles":     roles,
		"superuser": value.Bool(a.Superuser),
	}
}

func timeValue(t time.Time) value.Value {
	if t.IsZero() {
		return value.Null{}
	}
	return value.String(t.UTC().Format(time.RFC3339Nano))
}

func orEmpty(obj value.Object) value.Object {
	if obj == nil {
		return value.Object{}
	}
	return obj
}
