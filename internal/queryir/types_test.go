package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/doctype/internal/value"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		field  string
		column string
		path   []string
	}{
		{"name", "name", nil},
		{"doc_status", "doc_status", nil},
		{"customer", "", []string{"customer"}},
		{"address.city", "", []string{"address", "city"}},
		// The data. prefix reaches payload keys that shadow columns.
		{"data.name", "", []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			ref := Resolve(tt.field)
			assert.Equal(t, tt.column, ref.Column)
			assert.Equal(t, tt.path, ref.Path)
			assert.Equal(t, tt.column != "", ref.IsColumn())
		})
	}
}

func TestRef_JSONPath(t *testing.T) {
	assert.Equal(t, `$."customer"`, Resolve("customer").JSONPath())
	assert.Equal(t, `$."address"."city"`, Resolve("address.city").JSONPath())
}

func TestPredicate_Sealed(t *testing.T) {
	preds := []Predicate{
		Equals{Field: "status", Value: value.String("open")},
		Contains{Field: "tags", Value: value.String("vip")},
		And{},
	}
	for _, p := range preds {
		switch p.(type) {
		case Equals, Contains, And:
		default:
			t.Fatalf("unexpected predicate %T", p)
		}
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Predicate
	}{
		{"status=open", Equals{Field: "status", Value: value.String("open")}},
		{"qty=3", Equals{Field: "qty", Value: value.Int(3)}},
		{"qty=3.0", Equals{Field: "qty", Value: value.Int(3)}},
		{"paid=true", Equals{Field: "paid", Value: value.Bool(true)}},
		{"note=null", Equals{Field: "note", Value: value.Null{}}},
		{`code="42"`, Equals{Field: "code", Value: value.String("42")}},
		{"note=", Equals{Field: "note", Value: value.String("")}},
		{"tags~vip", Contains{Field: "tags", Value: value.String("vip")}},
		{" customer = ACME ", Equals{Field: "customer", Value: value.String("ACME")}},
		{"expr=a=b", Equals{Field: "expr", Value: value.String("a=b")}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCondition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCondition_Malformed(t *testing.T) {
	for _, in := range []string{"", "status", "=open", "~vip"} {
		_, err := ParseCondition(in)
		assert.Error(t, err, in)
	}
}

func TestParseConditions(t *testing.T) {
	p, err := ParseConditions(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ParseConditions([]string{"status=open"})
	require.NoError(t, err)
	assert.Equal(t, Equals{Field: "status", Value: value.String("open")}, p)

	p, err = ParseConditions([]string{"status=open", "tags~vip"})
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "status", Value: value.String("open")},
		Contains{Field: "tags", Value: value.String("vip")},
	}}, p)

	_, err = ParseConditions([]string{"status=open", "broken"})
	assert.Error(t, err)
}
