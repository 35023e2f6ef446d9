package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/doctype/internal/errs"
	"github.com/roach88/doctype/internal/expr"
	"github.com/roach88/doctype/internal/model"
	"github.com/roach88/doctype/internal/value"
)

// Schema error codes (S100-S199)
const (
	ErrDoctypeNameEmpty    = "S101" // doctype name is required
	ErrNoFields            = "S102" // at least one field required
	ErrDuplicateField      = "S103" // duplicate field name
	ErrFieldNameMissing    = "S104" // field has no name
	ErrFieldNameInvalid    = "S105" // field name is not an identifier
	ErrFieldTypeMissing    = "S106" // field has no type
	ErrUnknownFieldType    = "S107" // type not in the catalog
	ErrLinkTargetMissing   = "S108" // link field without link_target
	ErrFormulaMissing      = "S109" // computed field without formula
	ErrFormulaInvalid      = "S110" // formula does not parse
	ErrChildDoctypeMissing = "S111" // table field without child_doctype
	ErrSelectOptions       = "S112" // empty or duplicate select option
	ErrNamingStrategy      = "S113" // unknown naming strategy
	ErrNamingField         = "S114" // field naming without a valid field
	ErrDefaultInvalid      = "S115" // default does not coerce to the field type
	ErrFlagConflict        = "S116" // incompatible feature flags
	ErrNegativeLength      = "S117" // negative max_length or padding
	ErrSlugInvalid         = "S118" // slug is not lower-kebab
)

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	slugRe  = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	nonSlug = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify derives a lower-kebab slug from a display name.
func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Normalize fills the derived parts of a definition: the slug, the naming
// strategy (uuid when unset) and sequence padding and prefix.
func Normalize(dt *model.Doctype) {
	dt.Name = strings.TrimSpace(dt.Name)
	if dt.Slug == "" {
		dt.Slug = Slugify(dt.Name)
	}
	if dt.Naming.Strategy == "" {
		dt.Naming.Strategy = model.NamingUUID
	}
	if dt.Naming.Strategy == model.NamingSequence {
		if dt.Naming.Padding == 0 {
			dt.Naming.Padding = model.DefaultPadding
		}
		if dt.Naming.Prefix == "" {
			dt.Naming.Prefix = strings.ToUpper(dt.Slug) + "-"
		}
	}
}

// ValidateDoctype checks a definition for structural problems.
// Returns all issues found (does not fail-fast).
func ValidateDoctype(dt *model.Doctype) []errs.Issue {
	var issues []errs.Issue
	add := func(field, code, format string, args ...any) {
		issues = append(issues, errs.Issue{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(dt.Name) == "" {
		add("name", ErrDoctypeNameEmpty, "doctype name is required")
	}
	if dt.Slug != "" && !slugRe.MatchString(dt.Slug) {
		add("slug", ErrSlugInvalid, "slug %q must be lower-case words joined by '-'", dt.Slug)
	}
	if len(dt.Fields) == 0 {
		add("fields", ErrNoFields, "at least one field is required")
	}
	if dt.Single && (dt.Child || dt.Tree) {
		add("single", ErrFlagConflict, "a single doctype cannot also be a child or tree doctype")
	}

	seen := make(map[string]bool)
	for i, f := range dt.Fields {
		path := fmt.Sprintf("fields[%d]", i)
		if f.Name != "" {
			path = "fields." + f.Name
		}

		switch {
		case f.Name == "":
			add(fmt.Sprintf("fields[%d].name", i), ErrFieldNameMissing, "field name is required")
		case !identRe.MatchString(f.Name):
			add(path, ErrFieldNameInvalid, "field name %q must start with a letter or '_' and contain only letters, digits and '_'", f.Name)
		case seen[f.Name]:
			add(path, ErrDuplicateField, "duplicate field name: %q", f.Name)
		}
		seen[f.Name] = true

		if f.Type == "" {
			add(path+".type", ErrFieldTypeMissing, "field type is required")
			continue
		}
		if !IsKnownType(f.Type) {
			add(path+".type", ErrUnknownFieldType, "unknown field type %q", f.Type)
			continue
		}
		if f.MaxLength < 0 {
			add(path+".max_length", ErrNegativeLength, "max_length cannot be negative")
		}

		switch f.Type {
		case model.FieldLink:
			if f.LinkTarget == "" {
				add(path+".link_target", ErrLinkTargetMissing, "link field %q must declare link_target", f.Name)
			}
		case model.FieldComputed:
			if strings.TrimSpace(f.Formula) == "" {
				add(path+".formula", ErrFormulaMissing, "computed field %q must declare a formula", f.Name)
			} else if _, err := expr.Compile(f.Formula); err != nil {
				add(path+".formula", ErrFormulaInvalid, "formula does not parse: %v", err)
			}
		case model.FieldTable:
			if f.ChildDoctype == "" {
				add(path+".child_doctype", ErrChildDoctypeMissing, "table field %q must declare child_doctype", f.Name)
			}
		case model.FieldSelect, model.FieldMultiselect:
			opts := make(map[string]bool)
			for _, o := range f.Options {
				if strings.TrimSpace(o) == "" {
					add(path+".options", ErrSelectOptions, "options cannot be empty strings")
				} else if opts[o] {
					add(path+".options", ErrSelectOptions, "duplicate option %q", o)
				}
				opts[o] = true
			}
		}

		if f.Default != nil && f.Type != model.FieldComputed {
			def, err := value.FromAny(f.Default)
			if err != nil {
				add(path+".default", ErrDefaultInvalid, "default: %v", err)
			} else if _, issue := coerce(f, def); issue != "" {
				add(path+".default", ErrDefaultInvalid, "default %s", issue)
			}
		}
	}

	issues = append(issues, validateNaming(dt)...)
	return issues
}

func validateNaming(dt *model.Doctype) []errs.Issue {
	n := dt.Naming
	var issues []errs.Issue
	if n.Padding < 0 {
		issues = append(issues, errs.Issue{Field: "naming.padding", Message: "padding cannot be negative", Code: ErrNegativeLength})
	}
	switch n.Strategy {
	case "", model.NamingSequence, model.NamingUUID, model.NamingPrompt:
	case model.NamingField:
		f, ok := dt.Field(n.Field)
		switch {
		case n.Field == "":
			issues = append(issues, errs.Issue{Field: "naming.field", Message: "field naming requires naming.field", Code: ErrNamingField})
		case !ok:
			issues = append(issues, errs.Issue{Field: "naming.field", Message: fmt.Sprintf("naming field %q is not declared", n.Field), Code: ErrNamingField})
		case catalog[f.Type] == kindTable || catalog[f.Type] == kindJSON || catalog[f.Type] == kindMultiselect:
			issues = append(issues, errs.Issue{Field: "naming.field", Message: fmt.Sprintf("naming field %q must hold a scalar", n.Field), Code: ErrNamingField})
		}
	default:
		issues = append(issues, errs.Issue{Field: "naming.strategy", Message: fmt.Sprintf("unknown naming strategy %q", n.Strategy), Code: ErrNamingStrategy})
	}
	return issues
}

// CheckDoctype returns a schema error listing every issue, or nil.
func CheckDoctype(dt *model.Doctype) error {
	if issues := ValidateDoctype(dt); len(issues) > 0 {
		return errs.NewSchema(dt.Name, issues)
	}
	return nil
}
