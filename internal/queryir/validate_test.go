package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/doctype/internal/value"
)

func TestValidate_Valid(t *testing.T) {
	sel := Select{
		Doctype: "Customer",
		Filter: And{Predicates: []Predicate{
			Equals{Field: "status", Value: value.String("open")},
			&Contains{Field: "tags", Value: value.String("vip")},
			Equals{Field: "address.city", Value: value.Null{}},
		}},
		OrderBy: []Order{{Field: "created_at", Desc: true}, {Field: "data.name"}},
		Limit:   10,
	}
	assert.NoError(t, Validate(sel))
}

func TestValidate_NilFilter(t *testing.T) {
	assert.NoError(t, Validate(Select{Doctype: "Customer"}))
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name string
		sel  Select
		want string
	}{
		{
			name: "missing doctype",
			sel:  Select{},
			want: "doctype is required",
		},
		{
			name: "negative limit",
			sel:  Select{Doctype: "Customer", Limit: -1},
			want: "cannot be negative",
		},
		{
			name: "bad path segment",
			sel:  Select{Doctype: "Customer", Filter: Equals{Field: `a."b`, Value: value.Int(1)}},
			want: "is not an identifier",
		},
		{
			name: "empty field",
			sel:  Select{Doctype: "Customer", OrderBy: []Order{{Field: ""}}},
			want: "empty field name",
		},
		{
			name: "missing value",
			sel:  Select{Doctype: "Customer", Filter: Equals{Field: "status"}},
			want: "missing value",
		},
		{
			name: "contains with object",
			sel:  Select{Doctype: "Customer", Filter: Contains{Field: "tags", Value: value.Object{}}},
			want: "contains needs a scalar value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.sel)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Validate(Select{
		Limit: -1,
		Filter: And{Predicates: []Predicate{
			Equals{Field: "a b", Value: value.Int(1)},
			Contains{Field: "tags", Value: value.Null{}},
		}},
	})
	if assert.Error(t, err) {
		msg := err.Error()
		assert.Contains(t, msg, "doctype is required")
		assert.Contains(t, msg, "cannot be negative")
		assert.Contains(t, msg, "is not an identifier")
		assert.Contains(t, msg, "contains needs a scalar value")
	}
}
