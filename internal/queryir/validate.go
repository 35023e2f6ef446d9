package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/doctype/internal/value"
)

var segmentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that a query can be compiled: the doctype is set, every
// field resolves to a column or a well-formed data path, and predicate
// values are usable.
//
// All problems are reported together. Validate is a pure function.
func Validate(sel Select) error {
	v := &validator{}
	if sel.Doctype == "" {
		v.addf("doctype is required")
	}
	if sel.Limit < 0 || sel.Offset < 0 {
		v.addf("limit and offset cannot be negative")
	}
	for _, o := range sel.OrderBy {
		v.validateField(o.Field)
	}
	v.validatePredicate(sel.Filter)
	return errors.Join(v.problems...)
}

type validator struct {
	problems []error
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Errorf(format, args...))
}

func (v *validator) validateField(field string) {
	if field == "" {
		v.addf("empty field name")
		return
	}
	ref := Resolve(field)
	if ref.IsColumn() {
		return
	}
	for _, seg := range ref.Path {
		if !segmentRe.MatchString(seg) {
			v.addf("field %q: segment %q is not an identifier", field, seg)
			return
		}
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateField(pred.Field)
		if pred.Value == nil {
			v.addf("field %q: missing value", pred.Field)
		}
	case *Equals:
		v.validatePredicate(*pred)
	case Contains:
		v.validateField(pred.Field)
		switch pred.Value.(type) {
		case value.String, value.Int, value.Decimal, value.Bool:
		default:
			v.addf("field %q: contains needs a scalar value, got %s", pred.Field, value.TypeName(pred.Value))
		}
	case *Contains:
		v.validatePredicate(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		v.validatePredicate(*pred)
	default:
		v.addf("unknown predicate type %T", p)
	}
}
