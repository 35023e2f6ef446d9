package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/model"
)

func codes(issues []errs.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func TestValidateDoctype_Valid(t *testing.T) {
	dt := &model.Doctype{
		Name: "Customer",
		Fields: []model.Field{
			{Name: "customer_name", Type: model.FieldString, Required: true},
			{Name: "email", Type: model.FieldEmail, Unique: true},
			{Name: "tier", Type: model.FieldSelect, Options: []string{"gold", "silver"}, Default: "silver"},
			{Name: "score", Type: model.FieldComputed, Formula: "len(data.customer_name)"},
		},
		Naming: model.Naming{Strategy: model.NamingField, Field: "customer_name"},
	}
	assert.Empty(t, ValidateDoctype(dt))
	assert.NoError(t, CheckDoctype(dt))
}

func TestValidateDoctype_CollectsAllIssues(t *testing.T) {
	dt := &model.Doctype{
		Name: " ",
		Slug: "Not A Slug",
		Fields: []model.Field{
			{Name: "", Type: model.FieldString},
			{Name: "1bad", Type: model.FieldString},
			{Name: "dup", Type: model.FieldString},
			{Name: "dup", Type: model.FieldInteger},
			{Name: "notype"},
			{Name: "weird", Type: "hologram"},
			{Name: "ref", Type: model.FieldLink},
			{Name: "calc", Type: model.FieldComputed},
			{Name: "calc2", Type: model.FieldComputed, Formula: "data.a +"},
			{Name: "rows", Type: model.FieldTable},
			{Name: "choice", Type: model.FieldSelect, Options: []string{"a", "a", ""}},
			{Name: "count", Type: model.FieldInteger, Default: "many"},
			{Name: "short", Type: model.FieldString, MaxLength: -1},
		},
		Single: true,
		Child:  true,
		Naming: model.Naming{Strategy: "random"},
	}

	got := codes(ValidateDoctype(dt))
	for _, want := range []string{
		ErrDoctypeNameEmpty, ErrSlugInvalid, ErrFlagConflict,
		ErrFieldNameMissing, ErrFieldNameInvalid, ErrDuplicateField,
		ErrFieldTypeMissing, ErrUnknownFieldType, ErrLinkTargetMissing,
		ErrFormulaMissing, ErrFormulaInvalid, ErrChildDoctypeMissing,
		ErrSelectOptions, ErrDefaultInvalid, ErrNegativeLength, ErrNamingStrategy,
	} {
		assert.Contains(t, got, want)
	}

	err := CheckDoctype(dt)
	require.Error(t, err)
	assert.True(t, errs.IsSchema(err))
}

func TestValidateDoctype_NoFields(t *testing.T) {
	got := codes(ValidateDoctype(&model.Doctype{Name: "Empty"}))
	assert.Equal(t, []string{ErrNoFields}, got)
}

func TestValidateDoctype_FieldNaming(t *testing.T) {
	base := []model.Field{
		{Name: "title", Type: model.FieldString},
		{Name: "lines", Type: model.FieldTable, ChildDoctype: "Line"},
	}
	tests := []struct {
		name   string
		naming model.Naming
		want   []string
	}{
		{"missing field", model.Naming{Strategy: model.NamingField}, []string{ErrNamingField}},
		{"undeclared field", model.Naming{Strategy: model.NamingField, Field: "nope"}, []string{ErrNamingField}},
		{"non scalar", model.Naming{Strategy: model.NamingField, Field: "lines"}, []string{ErrNamingField}},
		{"ok", model.Naming{Strategy: model.NamingField, Field: "title"}, []string{}},
		{"negative padding", model.Naming{Strategy: model.NamingSequence, Padding: -2}, []string{ErrNegativeLength}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt := &model.Doctype{Name: "Post", Fields: base, Naming: tt.naming}
			assert.Equal(t, tt.want, codes(ValidateDoctype(dt)))
		})
	}
}

func TestNormalize(t *testing.T) {
	dt := &model.Doctype{Name: "  Purchase Order ", Naming: model.Naming{Strategy: model.NamingSequence}}
	Normalize(dt)
	assert.Equal(t, "Purchase Order", dt.Name)
	assert.Equal(t, "purchase-order", dt.Slug)
	assert.Equal(t, "PURCHASE-ORDER-", dt.Naming.Prefix)
	assert.Equal(t, model.DefaultPadding, dt.Naming.Padding)

	plain := &model.Doctype{Name: "Note"}
	Normalize(plain)
	assert.Equal(t, model.NamingUUID, plain.Naming.Strategy)
	assert.Zero(t, plain.Naming.Padding)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "sales-invoice", Slugify("Sales Invoice"))
	assert.Equal(t, "a-b-c", Slugify("--A__b  C!!"))
	assert.Equal(t, "", Slugify("***"))
}

func TestCatalog(t *testing.T) {
	types := Catalog()
	assert.Len(t, types, 23)
	for _, ft := range types {
		assert.True(t, IsKnownType(ft), ft)
	}
	assert.False(t, IsKnownType("structured"))
}
