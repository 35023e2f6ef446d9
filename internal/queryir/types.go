package queryir

import (
	"strings"

	"github.com/roach88/doctype/internal/value"
)

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select lists documents of one doctype.
//
// Semantics:
//
//	SELECT <document> FROM documents
//	WHERE doctype = <Doctype> AND NOT is_deleted AND <Filter>
//	ORDER BY <OrderBy>, id
//
// Soft-deleted documents are excluded unless IncludeDeleted is set.
// Limit 0 means no limit.
type Select struct {
	Doctype        string
	Filter         Predicate
	IncludeDeleted bool
	OrderBy        []Order
	Limit          int
	Offset         int
}

// Order sorts by a column or data path.
type Order struct {
	Field string
	Desc  bool
}

// Equals represents a field-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "status", Value: value.String("open")}
//
// A Null value matches documents where the field is missing or null.
type Equals struct {
	Field string
	Value value.Value
}

func (Equals) predicateNode() {}

// Contains matches list fields holding Value, or string fields containing
// Value as a substring.
//
// Example:
//
//	Contains{Field: "tags", Value: value.String("vip")}
type Contains struct {
	Field string
	Value value.Value
}

func (Contains) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Columns are the document columns a predicate may reference directly.
var Columns = map[string]bool{
	"id":           true,
	"name":         true,
	"doc_status":   true,
	"parent_id":    true,
	"amended_from": true,
	"created_by":   true,
	"updated_by":   true,
	"submitted_by": true,
	"created_at":   true,
	"updated_at":   true,
}

// Ref is a resolved field reference.
type Ref struct {
	// Column is set for document columns.
	Column string
	// Path is the data path segments for payload fields.
	Path []string
}

// IsColumn reports whether the reference names a document column.
func (r Ref) IsColumn() bool { return r.Column != "" }

// JSONPath renders the SQLite JSON path for a data reference, quoting
// each segment: $."address"."city".
func (r Ref) JSONPath() string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range r.Path {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String()
}

// Resolve maps a field name to a column or data path. It does not check
// segment syntax; see Validate.
func Resolve(field string) Ref {
	if rest, ok := strings.CutPrefix(field, "data."); ok {
		return Ref{Path: strings.Split(rest, ".")}
	}
	if Columns[field] {
		return Ref{Column: field}
	}
	return Ref{Path: strings.Split(field, ".")}
}
