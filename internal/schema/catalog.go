// Package schema holds the doctype registry rules: the fixed field type
// catalog, authoring checks for doctype definitions, document validation
// with coercion and computed fields, and loading of definition files.
package schema

import "github.com/roach88/doctype/internal/model"

// kind groups catalog types that share coercion rules.
type kind int

const (
	kindText kind = iota
	kindInteger
	kindDecimal
	kindBoolean
	kindDate
	kindDatetime
	kindJSON
	kindLink
	kindSelect
	kindMultiselect
	kindTable
	kindComputed
)

// catalog is the fixed set of field types. Anything else is rejected at
// authoring time.
var catalog = map[model.FieldType]kind{
	model.FieldString:      kindText,
	model.FieldText:        kindText,
	model.FieldFile:        kindText,
	model.FieldImage:       kindText,
	model.FieldEmail:       kindText,
	model.FieldPhone:       kindText,
	model.FieldURL:         kindText,
	model.FieldColor:       kindText,
	model.FieldInteger:     kindInteger,
	model.FieldRating:      kindInteger,
	model.FieldDuration:    kindInteger,
	model.FieldDecimal:     kindDecimal,
	model.FieldCurrency:    kindDecimal,
	model.FieldPercent:     kindDecimal,
	model.FieldBoolean:     kindBoolean,
	model.FieldDate:        kindDate,
	model.FieldDatetime:    kindDatetime,
	model.FieldJSON:        kindJSON,
	model.FieldLink:        kindLink,
	model.FieldSelect:      kindSelect,
	model.FieldMultiselect: kindMultiselect,
	model.FieldTable:       kindTable,
	model.FieldComputed:    kindComputed,
}

// catalogOrder is the documented order of the catalog.
var catalogOrder = []model.FieldType{
	model.FieldString, model.FieldText, model.FieldInteger, model.FieldDecimal,
	model.FieldBoolean, model.FieldDate, model.FieldDatetime, model.FieldJSON,
	model.FieldLink, model.FieldSelect, model.FieldMultiselect, model.FieldTable,
	model.FieldFile, model.FieldImage, model.FieldEmail, model.FieldPhone,
	model.FieldURL, model.FieldColor, model.FieldRating, model.FieldCurrency,
	model.FieldPercent, model.FieldDuration, model.FieldComputed,
}

// Catalog returns every supported field type.
func Catalog() []model.FieldType {
	out := make([]model.FieldType, len(catalogOrder))
	copy(out, catalogOrder)
	return out
}

// IsKnownType reports whether t is in the catalog.
func IsKnownType(t model.FieldType) bool {
	_, ok := catalog[t]
	return ok
}

// MaxRating is the upper bound of rating fields.
const MaxRating = 5

// Payload limits applied to every document.
const (
	MaxDepth      = 10
	MaxObjectKeys = 1000
	MaxArrayItems = 10000
)
