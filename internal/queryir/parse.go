package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/value"
)

// ParseCondition reads the textual filter form used by the CLI and
// scenario files:
//
//	field=value    Equals
//	field~value    Contains
//
// The value is read as JSON when it parses (42, true, null, "quoted",
// [1,2]) and as a plain string otherwise.
func ParseCondition(s string) (Predicate, error) {
	i := strings.IndexAny(s, "=~")
	if i <= 0 {
		return nil, fmt.Errorf("condition %q: want field=value or field~value", s)
	}
	field := strings.TrimSpace(s[:i])
	raw := strings.TrimSpace(s[i+1:])
	val := literal(raw)
	if s[i] == '~' {
		return Contains{Field: field, Value: val}, nil
	}
	return Equals{Field: field, Value: val}, nil
}

// ParseConditions combines several conditions with And. No conditions
// yields a nil predicate.
func ParseConditions(conds []string) (Predicate, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	preds := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		p, err := ParseCondition(c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return And{Predicates: preds}, nil
}

func literal(raw string) value.Value {
	if raw == "" {
		return value.String("")
	}
	if v, err := value.Parse([]byte(raw)); err == nil {
		return value.Normalize(v)
	}
	return value.String(raw)
}
