// Package model holds the type definitions shared by every engine package:
// doctypes and their fields, documents, versions, hooks, workflows and the
// acting user. It contains no behavior beyond small accessors.
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// FieldType names an entry of the fixed field type catalog.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldText        FieldType = "text"
	FieldInteger     FieldType = "integer"
	FieldDecimal     FieldType = "decimal"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldDatetime    FieldType = "datetime"
	FieldJSON        FieldType = "json"
	FieldLink        FieldType = "link"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldTable       FieldType = "table"
	FieldFile        FieldType = "file"
	FieldImage       FieldType = "image"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
	FieldURL         FieldType = "url"
	FieldColor       FieldType = "color"
	FieldRating      FieldType = "rating"
	FieldCurrency    FieldType = "currency"
	FieldPercent     FieldType = "percent"
	FieldDuration    FieldType = "duration"
	FieldComputed    FieldType = "computed"
)

// Field declares one entry of a doctype's field list.
// Default is a plain JSON-compatible value (string, number, bool, list, map).
type Field struct {
	Name         string    `json:"name"`
	Type         FieldType `json:"type"`
	Label        string    `json:"label,omitempty"`
	Required     bool      `json:"required,omitempty"`
	Unique       bool      `json:"unique,omitempty"`
	Default      any       `json:"default,omitempty"`
	LinkTarget   string    `json:"link_target,omitempty"`
	Options      []string  `json:"options,omitempty"`
	Formula      string    `json:"formula,omitempty"`
	ChildDoctype string    `json:"child_doctype,omitempty"`
	MaxLength    int       `json:"max_length,omitempty"`
}

// IsMultiLink reports whether the field holds an ordered list of links.
func (f Field) IsMultiLink() bool {
	return f.Type == FieldMultiselect && f.LinkTarget != ""
}

// NamingStrategy selects how new documents are named.
type NamingStrategy string

const (
	// NamingSequence allocates prefix + zero-padded counter.
	NamingSequence NamingStrategy = "sequence"
	// NamingUUID uses the document id as its name.
	NamingUUID NamingStrategy = "uuid"
	// NamingField copies the name from a data field.
	NamingField NamingStrategy = "field"
	// NamingPrompt requires the caller to supply the name.
	NamingPrompt NamingStrategy = "prompt"
)

// DefaultPadding is the zero-padding width of sequence names.
const DefaultPadding = 4

// Naming configures document naming for a doctype.
type Naming struct {
	Strategy NamingStrategy `json:"strategy,omitempty"`
	Prefix   string         `json:"prefix,omitempty"`
	Padding  int            `json:"padding,omitempty"`
	Field    string         `json:"field,omitempty"`
}

// Doctype is a user-declared record type.
type Doctype struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
	Submittable bool    `json:"submittable,omitempty"`
	Single      bool    `json:"single,omitempty"`
	Tree        bool    `json:"tree,omitempty"`
	Child       bool    `json:"child,omitempty"`
	Naming      Naming  `json:"naming,omitempty"`
	IsActive    bool    `json:"is_active"`

	// Set by the store.
	Version   int64     `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON applies definition defaults: doctypes are active unless
// they say otherwise.
func (d *Doctype) UnmarshalJSON(data []byte) error {
	type raw Doctype
	r := raw{IsActive: true}
	if err := decodeDefinition(data, &r); err != nil {
		return err
	}
	*d = Doctype(r)
	return nil
}

// decodeDefinition decodes with json.Number so numeric defaults and action
// values keep their exact text.
func decodeDefinition(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Field returns the named field declaration.
func (d *Doctype) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldsOfType returns the declarations of the given type in order.
func (d *Doctype) FieldsOfType(t FieldType) []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// Definition returns a copy with the store-managed fields cleared, the
// form that is hashed to detect real definition changes.
func (d Doctype) Definition() Doctype {
	d.IsActive = false
	d.Version = 0
	d.CreatedAt = time.Time{}
	d.UpdatedAt = time.Time{}
	return d
}
