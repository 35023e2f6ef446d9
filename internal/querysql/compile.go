// Package querysql compiles document queries to parameterized SQLite SQL.
//
// Document columns are referenced directly; payload fields are reached
// with json_extract over the data column. Every value, including JSON
// paths, is passed as a parameter.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/queryir"
	"github.com/roach88/doctype/internal/value"
)

// DefaultColumns selects the whole document row.
const DefaultColumns = "d.*"

// SQLCompiler compiles queryir.Select to parameterized SQL for SQLite.
//
// Every query ends with ORDER BY ... d.id so that ties are broken the
// same way on every run. Values are never interpolated.
type SQLCompiler struct {
	// Columns is the select list, written against the alias d.
	Columns string
}

// NewSQLCompiler creates a compiler selecting columns. An empty list
// selects every column.
func NewSQLCompiler(columns string) *SQLCompiler {
	if columns == "" {
		columns = DefaultColumns
	}
	return &SQLCompiler{Columns: columns}
}

// Compile converts a select to SQL over the documents table.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(sel queryir.Select) (string, []any, error) {
	if err := queryir.Validate(sel); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	var b strings.Builder
	params := []any{sel.Doctype}
	fmt.Fprintf(&b, "SELECT %s FROM documents d WHERE d.doctype = ?", c.Columns)
	if !sel.IncludeDeleted {
		b.WriteString(" AND d.is_deleted = 0")
	}
	if sel.Filter != nil {
		where, whereParams, err := c.compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" AND (")
		b.WriteString(where)
		b.WriteString(")")
		params = append(params, whereParams...)
	}

	b.WriteString(" ORDER BY ")
	for _, o := range sel.OrderBy {
		expr, exprParams := c.fieldExpr(queryir.Resolve(o.Field))
		b.WriteString(expr)
		if o.Desc {
			b.WriteString(" DESC, ")
		} else {
			b.WriteString(" ASC, ")
		}
		params = append(params, exprParams...)
	}
	b.WriteString("d.id COLLATE BINARY ASC")

	switch {
	case sel.Limit > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, sel.Limit, sel.Offset)
	case sel.Offset > 0:
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, sel.Offset)
	}
	return b.String(), params, nil
}

// fieldExpr renders the SQL expression of a resolved field. Column names
// come from queryir.Columns and are safe to inline.
func (c *SQLCompiler) fieldExpr(ref queryir.Ref) (string, []any) {
	if ref.IsColumn() {
		return "d." + ref.Column, nil
	}
	return "json_extract(d.data, ?)", []any{ref.JSONPath()}
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Contains:
		return c.compileContains(pred)
	case *queryir.Contains:
		return c.compileContains(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles to "<field> = ?". A null literal matches a
// missing or null field.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	expr, params := c.fieldExpr(queryir.Resolve(eq.Field))
	if value.IsNull(eq.Value) {
		return expr + " IS NULL", params, nil
	}
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", eq.Field, err)
	}
	return expr + " = ?", append(params, param), nil
}

// compileContains matches list elements equal to the needle and text
// values holding it as a substring.
func (c *SQLCompiler) compileContains(ct queryir.Contains) (string, []any, error) {
	needle, err := valueToParam(ct.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", ct.Field, err)
	}
	ref := queryir.Resolve(ct.Field)
	if ref.IsColumn() {
		return fmt.Sprintf("instr(d.%s, ?) > 0", ref.Column), []any{needle}, nil
	}
	path := ref.JSONPath()
	sql := "(EXISTS (SELECT 1 FROM json_each(d.data, ?) WHERE json_each.value = ?)" +
		" OR (json_type(d.data, ?) = 'text' AND instr(json_extract(d.data, ?), ?) > 0))"
	return sql, []any{path, needle, path, path, needle}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// valueToParam converts a literal to the SQLite representation produced
// by json_extract: booleans are integers, lists and objects are compact
// JSON text.
func valueToParam(v value.Value) (any, error) {
	switch val := v.(type) {
	case value.String:
		return string(val), nil
	case value.Int:
		return int64(val), nil
	case value.Decimal:
		f, _ := val.Apd().Float64()
		return f, nil
	case value.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case value.Array, value.Object:
		text, err := value.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(text), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %s", value.TypeName(v))
	}
}
