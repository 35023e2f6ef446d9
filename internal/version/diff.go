package version

import (
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

// Diff computes the field-level changes from old to new. Values are
// compared canonically, so 1.50 and 1.5 are the same value.
func Diff(old, new value.Object) model.Changes {
	c := model.Changes{
		Added:    value.Object{},
		Modified: map[string]model.Modification{},
		Removed:  value.Object{},
	}
	for k, nv := range new {
		ov, ok := old[k]
		if !ok {
			c.Added[k] = value.Clone(nv)
			continue
		}
		if !value.Equal(ov, nv) {
			c.Modified[k] = model.Modification{Old: value.Clone(ov), New: value.Clone(nv)}
		}
	}
	for k, ov := range old {
		if _, ok := new[k]; !ok {
			c.Removed[k] = value.Clone(ov)
		}
	}
	return c
}

// Summarize renders changes as a one-line history summary such as
// "1 field added, 2 fields modified".
func Summarize(c model.Changes) string {
	var parts []string
	count := func(n int, verb string) {
		if n == 0 {
			return
		}
		noun := "fields"
		if n == 1 {
			noun = "field"
		}
		parts = append(parts, fmt.Sprintf("%d %s %s", n, noun, verb))
	}
	count(len(c.Added), "added")
	count(len(c.Modified), "modified")
	count(len(c.Removed), "removed")
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, ", ")
}

// RestoreComment is the comment recorded on the version a restore creates.
func RestoreComment(number int64, comment string) string {
	base := fmt.Sprintf("Restored to version %d", number)
	if comment == "" {
		return base
	}
	return base + ": " + comment
}

func encodeChanges(c model.Changes) value.Object {
	modified := value.Object{}
	for k, m := range c.Modified {
		modified[k] = value.Object{"old": orNull(m.Old), "new": orNull(m.New)}
	}
	return value.Object{
		"added":    orEmpty(c.Added),
		"modified": modified,
		"removed":  orEmpty(c.Removed),
	}
}

func decodeChanges(obj value.Object) (model.Changes, error) {
	c := model.Changes{
		Added:    value.Object{},
		Modified: map[string]model.Modification{},
		Removed:  value.Object{},
	}
	for _, key := range []string{"added", "modified", "removed"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		part, ok := raw.(value.Object)
		if !ok {
			return c, fmt.Errorf("changes.%s: want object, got %s", key, value.TypeName(raw))
		}
		switch key {
		case "added":
			c.Added = part
		case "removed":
			c.Removed = part
		case "modified":
			for field, m := range part {
				pair, ok := m.(value.Object)
				if !ok {
					return c, fmt.Errorf("changes.modified.%s: want object, got %s", field, value.TypeName(m))
				}
				c.Modified[field] = model.Modification{Old: orNull(pair["old"]), New: orNull(pair["new"])}
			}
		}
	}
	return c, nil
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}

func orEmpty(obj value.Object) value.Object {
	if obj == nil {
		return value.Object{}
	}
	return obj
}
