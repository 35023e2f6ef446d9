package schema

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

// Validation error codes (V200-V299)
const (
	ErrRequired     = "V201" // required field missing, null or empty
	ErrInvalidValue = "V202" // value does not coerce to the field type
	ErrPayloadLimit = "V203" // nesting, key count or list length exceeded
	ErrComputed     = "V204" // computed formula failed
	ErrUnique       = "V205" // unique field value already used
	ErrLink         = "V206" // link target missing or of the wrong doctype
	ErrStructure    = "V207" // single, tree or child constraint violated
	ErrName         = "V208" // document name cannot be derived
)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{3,30}$`)
	colorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// DoctypeLookup resolves a doctype by name. The validator uses it for the
// child doctypes of table fields.
type DoctypeLookup func(name string) (*model.Doctype, error)

// Validator checks and coerces document data against a doctype.
type Validator struct {
	lookup DoctypeLookup
}

// NewValidator creates a validator. lookup may be nil, in which case table
// rows are only checked to be objects.
func NewValidator(lookup DoctypeLookup) *Validator {
	return &Validator{lookup: lookup}
}

// Validate applies defaults, checks required fields, coerces known fields
// and evaluates computed fields. data is modified in place. Unknown keys
// are left untouched. Every problem is reported in one validation error.
func (v *Validator) Validate(dt *model.Doctype, data value.Object) error {
	if msg := checkLimits(data, 1); msg != "" {
		return errs.NewValidation(dt.Name, []errs.Issue{{Field: "data", Message: msg, Code: ErrPayloadLimit}})
	}
	if issues := v.validate(dt, data, "", 0); len(issues) > 0 {
		return errs.NewValidation(dt.Name, issues)
	}
	return nil
}

func (v *Validator) validate(dt *model.Doctype, data value.Object, prefix string, nesting int) []errs.Issue {
	var issues []errs.Issue
	add := func(field, code, msg string) {
		issues = append(issues, errs.Issue{Field: prefix + field, Message: msg, Code: code})
	}

	for _, f := range dt.Fields {
		if f.Type == model.FieldComputed {
			continue
		}
		cur, present := data[f.Name]
		if (!present || value.IsNull(cur)) && f.Default != nil {
			def, err := value.FromAny(f.Default)
			if err != nil {
				add(f.Name, ErrInvalidValue, fmt.Sprintf("default: %v", err))
				continue
			}
			cur = value.Clone(def)
			data[f.Name] = cur
			present = true
		}
		if isBlank(cur) {
			if f.Required {
				add(f.Name, ErrRequired, "is required")
			} else if present && catalog[f.Type] != kindText {
				data[f.Name] = value.Null{}
			}
			continue
		}

		coerced, msg := coerce(f, cur)
		if msg != "" {
			add(f.Name, ErrInvalidValue, msg)
			continue
		}
		data[f.Name] = coerced

		if f.Type == model.FieldTable && v.lookup != nil {
			issues = append(issues, v.validateRows(f, coerced.(value.Array), prefix, nesting)...)
		}
	}

	env := expr.Env{"data": data}
	for _, f := range dt.Fields {
		if f.Type != model.FieldComputed {
			continue
		}
		result, err := expr.Eval(f.Formula, env)
		if err != nil {
			add(f.Name, ErrComputed, fmt.Sprintf("formula failed: %v", err))
			continue
		}
		data[f.Name] = result
	}
	return issues
}

func (v *Validator) validateRows(f model.Field, rows value.Array, prefix string, nesting int) []errs.Issue {
	field := prefix + f.Name
	if nesting >= MaxDepth {
		return []errs.Issue{{Field: field, Message: "child tables nested too deeply", Code: ErrPayloadLimit}}
	}
	child, err := v.lookup(f.ChildDoctype)
	if err != nil {
		return []errs.Issue{{Field: field, Message: fmt.Sprintf("child doctype %s: %v", f.ChildDoctype, err), Code: ErrInvalidValue}}
	}
	var issues []errs.Issue
	for i, row := range rows {
		issues = append(issues, v.validate(child, row.(value.Object), fmt.Sprintf("%s[%d].", field, i), nesting+1)...)
	}
	return issues
}

// isBlank reports whether a value counts as absent for required checks.
func isBlank(v value.Value) bool {
	if value.IsNull(v) {
		return true
	}
	s, ok := v.(value.String)
	return ok && s == ""
}

// checkLimits walks the payload and reports the first exceeded limit.
func checkLimits(v value.Value, depth int) string {
	switch val := v.(type) {
	case value.Object:
		if depth > MaxDepth {
			return fmt.Sprintf("data nested deeper than %d levels", MaxDepth)
		}
		if len(val) > MaxObjectKeys {
			return fmt.Sprintf("object has %d keys, the limit is %d", len(val), MaxObjectKeys)
		}
		for _, child := range val {
			if msg := checkLimits(child, depth+1); msg != "" {
				return msg
			}
		}
	case value.Array:
		if depth > MaxDepth {
			return fmt.Sprintf("data nested deeper than %d levels", MaxDepth)
		}
		if len(val) > MaxArrayItems {
			return fmt.Sprintf("list has %d items, the limit is %d", len(val), MaxArrayItems)
		}
		for _, child := range val {
			if msg := checkLimits(child, depth+1); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// Coerce converts v to the representation of field f. It is exported for
// callers that write single fields, such as workflow set_field actions.
func Coerce(f model.Field, v value.Value) (value.Value, error) {
	if value.IsNull(v) {
		return value.Null{}, nil
	}
	out, msg := coerce(f, v)
	if msg != "" {
		return nil, errs.NewValidation("", []errs.Issue{{Field: f.Name, Message: msg, Code: ErrInvalidValue}})
	}
	return out, nil
}

// coerce returns the coerced value, or a non-empty problem description.
func coerce(f model.Field, v value.Value) (value.Value, string) {
	switch catalog[f.Type] {
	case kindText:
		s, ok := asText(v)
		if !ok {
			return nil, fmt.Sprintf("must be a string, got %s", value.TypeName(v))
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
			return nil, fmt.Sprintf("must be at most %d characters", f.MaxLength)
		}
		if msg := checkFormat(f.Type, s); msg != "" {
			return nil, msg
		}
		return value.String(s), ""

	case kindInteger:
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Sprintf("must be an integer, got %s", describe(v))
		}
		switch f.Type {
		case model.FieldRating:
			if n < 0 || n > MaxRating {
				return nil, fmt.Sprintf("must be between 0 and %d", MaxRating)
			}
		case model.FieldDuration:
			if n < 0 {
				return nil, "must not be negative"
			}
		}
		return value.Int(n), ""

	case kindDecimal:
		d, ok := asDecimal(v)
		if !ok {
			return nil, fmt.Sprintf("must be a number, got %s", describe(v))
		}
		return value.Normalize(d), ""

	case kindBoolean:
		b, ok := asBool(v)
		if !ok {
			return nil, fmt.Sprintf("must be a boolean, got %s", describe(v))
		}
		return value.Bool(b), ""

	case kindDate:
		s, ok := v.(value.String)
		if !ok {
			return nil, fmt.Sprintf("must be a date string, got %s", value.TypeName(v))
		}
		d, ok := parseDate(strings.TrimSpace(string(s)))
		if !ok {
			return nil, fmt.Sprintf("must be a date in YYYY-MM-DD form, got %q", string(s))
		}
		return value.String(d), ""

	case kindDatetime:
		s, ok := v.(value.String)
		if !ok {
			return nil, fmt.Sprintf("must be a datetime string, got %s", value.TypeName(v))
		}
		t, ok := parseDatetime(strings.TrimSpace(string(s)))
		if !ok {
			return nil, fmt.Sprintf("must be an RFC 3339 datetime, got %q", string(s))
		}
		return value.String(t.UTC().Format(time.RFC3339Nano)), ""

	case kindLink:
		s, ok := asText(v)
		if !ok || s == "" {
			return nil, fmt.Sprintf("must be the name of a %s document", f.LinkTarget)
		}
		return value.String(s), ""

	case kindSelect:
		s, ok := asText(v)
		if !ok {
			return nil, fmt.Sprintf("must be a string, got %s", value.TypeName(v))
		}
		if len(f.Options) > 0 && !hasOption(f.Options, s) {
			return nil, fmt.Sprintf("must be one of %s", strings.Join(f.Options, ", "))
		}
		return value.String(s), ""

	case kindMultiselect:
		list, ok := v.(value.Array)
		if !ok {
			return nil, fmt.Sprintf("must be a list, got %s", value.TypeName(v))
		}
		out := make(value.Array, 0, len(list))
		seen := make(map[string]bool, len(list))
		for i, item := range list {
			s, ok := asText(item)
			if !ok {
				return nil, fmt.Sprintf("item %d must be a string, got %s", i, value.TypeName(item))
			}
			if f.LinkTarget == "" && len(f.Options) > 0 && !hasOption(f.Options, s) {
				return nil, fmt.Sprintf("item %q must be one of %s", s, strings.Join(f.Options, ", "))
			}
			if seen[s] {
				return nil, fmt.Sprintf("item %q is listed twice", s)
			}
			seen[s] = true
			out = append(out, value.String(s))
		}
		return out, ""

	case kindTable:
		list, ok := v.(value.Array)
		if !ok {
			return nil, fmt.Sprintf("must be a list of rows, got %s", value.TypeName(v))
		}
		for i, row := range list {
			if _, ok := row.(value.Object); !ok {
				return nil, fmt.Sprintf("row %d must be an object, got %s", i, value.TypeName(row))
			}
		}
		return list, ""
	}
	// json and computed accept anything.
	return v, ""
}

func checkFormat(t model.FieldType, s string) string {
	if s == "" {
		return ""
	}
	switch t {
	case model.FieldEmail:
		if !emailRe.MatchString(s) {
			return fmt.Sprintf("%q is not a valid email address", s)
		}
	case model.FieldPhone:
		if !phoneRe.MatchString(s) {
			return fmt.Sprintf("%q is not a valid phone number", s)
		}
	case model.FieldColor:
		if !colorRe.MatchString(s) {
			return fmt.Sprintf("%q is not a hex color", s)
		}
	case model.FieldURL:
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Sprintf("%q is not an http(s) URL", s)
		}
	}
	return ""
}

func hasOption(opts []string, s string) bool {
	for _, o := range opts {
		if o == s {
			return true
		}
	}
	return false
}

func describe(v value.Value) string {
	if s, ok := v.(value.String); ok {
		return strconv.Quote(string(s))
	}
	return value.TypeName(v)
}

func asText(v value.Value) (string, bool) {
	switch val := v.(type) {
	case value.String:
		return string(val), true
	case value.Int:
		return strconv.FormatInt(int64(val), 10), true
	case value.Decimal:
		return val.String(), true
	}
	return "", false
}

func asInt(v value.Value) (int64, bool) {
	switch val := v.(type) {
	case value.Int:
		return int64(val), true
	case value.Decimal:
		return val.Int64()
	case value.String:
		d, err := value.ParseDecimal(strings.TrimSpace(string(val)))
		if err != nil {
			return 0, false
		}
		return d.Int64()
	}
	return 0, false
}

func asDecimal(v value.Value) (value.Value, bool) {
	switch val := v.(type) {
	case value.Int, value.Decimal:
		return val, true
	case value.String:
		d, err := value.ParseDecimal(strings.TrimSpace(string(val)))
		if err != nil {
			return nil, false
		}
		return d, true
	}
	return nil, false
}

func asBool(v value.Value) (bool, bool) {
	switch val := v.(type) {
	case value.Bool:
		return bool(val), true
	case value.Int:
		switch val {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	case value.String:
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	}
	return false, false
}

func parseDate(s string) (string, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Format(time.DateOnly), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Format(time.DateOnly), true
	}
	return "", false
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

// parseDatetime accepts RFC 3339 and the common zone-less forms, which
// are read as UTC.
func parseDatetime(s string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
