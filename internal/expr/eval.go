// Package expr implements the sandboxed expression language used by hook
// conditions, scripted hooks, transition conditions and computed fields.
//
// The language has literals, field access (data.total, data["key"],
// items[0]), arithmetic, comparisons, boolean operators and a closed set
// of builtin functions. There is no way to reach the filesystem, network,
// process or host runtime: evaluation only reads the Env it is given and,
// for programs, writes under the "data" root.
//
// Conditions are compiled with Compile and are read-only. Scripted hooks
// are compiled with CompileProgram and may assign to data fields.
package expr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/doctype/internal/value"
)

// Env binds the top-level names visible to an expression.
// Typical names: data, document, actor, old_data.
type Env map[string]value.Value

// maxSteps bounds the work a single evaluation may do.
const maxSteps = 100_000

// maxStringLen bounds strings built by concatenation.
const maxStringLen = 1 << 20

// maxListLen bounds lists built by concatenation.
const maxListLen = 10_000

// maxStoredNodes bounds the size of a value a program assigns.
const maxStoredNodes = 100_000

// Expr is a compiled read-only expression.
type Expr struct {
	src  string
	root node
}

// Program is a compiled statement list that may assign to data fields.
type Program struct {
	src   string
	stmts []node
}

// Compile parses a single expression. Assignment is rejected.
func Compile(src string) (*Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, locate(err, src)
	}
	root, err := p.parseExpression()
	if err != nil {
		return nil, locate(err, src)
	}
	return &Expr{src: src, root: root}, nil
}

// CompileProgram parses statements separated by newlines or semicolons.
func CompileProgram(src string) (*Program, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, locate(err, src)
	}
	stmts, err := p.parseProgram()
	if err != nil {
		return nil, locate(err, src)
	}
	return &Program{src: src, stmts: stmts}, nil
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Eval evaluates the expression against env. env is not modified.
func (e *Expr) Eval(env Env) (result value.Value, err error) {
	in := &interp{env: env}
	defer in.recoverInto(&err, e.src)
	v, err := in.eval(e.root)
	if err != nil {
		return nil, locate(err, e.src)
	}
	return v, nil
}

// EvalBool evaluates the expression and applies truthiness.
func (e *Expr) EvalBool(env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Exec runs the program. Assignments write into env["data"], which must
// be a value.Object; callers pass a copy when they need to discard writes.
func (p *Program) Exec(env Env) (err error) {
	in := &interp{env: env}
	defer in.recoverInto(&err, p.src)
	if _, ok := env["data"].(value.Object); !ok {
		return &Error{Msg: "program requires a data object"}
	}
	for _, stmt := range p.stmts {
		if _, err := in.eval(stmt); err != nil {
			return locate(err, p.src)
		}
	}
	return nil
}

// Eval compiles and evaluates src in one step.
func Eval(src string, env Env) (value.Value, error) {
	e, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return e.Eval(env)
}

// EvalBool compiles and evaluates src as a condition.
func EvalBool(src string, env Env) (bool, error) {
	e, err := Compile(src)
	if err != nil {
		return false, err
	}
	return e.EvalBool(env)
}

// Truthy maps a value to a boolean: null, false, zero, empty string and
// empty collections are false.
func Truthy(v value.Value) bool {
	switch val := v.(type) {
	case nil, value.Null:
		return false
	case value.Bool:
		return bool(val)
	case value.Int:
		return val != 0
	case value.Decimal:
		return val.String() != "0"
	case value.String:
		return val != ""
	case value.Array:
		return len(val) > 0
	case value.Object:
		return len(val) > 0
	}
	return false
}

func locate(err error, src string) error {
	if e, ok := err.(*Error); ok && e.Line == 0 {
		return e.locate(src)
	}
	return err
}

type interp struct {
	env   Env
	steps int
}

// recoverInto converts an unexpected panic into an *Error so callers never
// see a Go stack trace from user-authored code.
func (in *interp) recoverInto(err *error, src string) {
	if r := recover(); r != nil {
		*err = (&Error{Msg: fmt.Sprintf("internal evaluation error: %v", r)}).locate(src)
	}
}

func (in *interp) tick(n node) error {
	in.steps++
	if in.steps > maxSteps {
		return &Error{Pos: n.position(), Msg: "evaluation step limit exceeded"}
	}
	return nil
}

func errAt(n node, format string, args ...any) *Error {
	return &Error{Pos: n.position(), Msg: fmt.Sprintf(format, args...)}
}

func (in *interp) eval(n node) (value.Value, error) {
	if err := in.tick(n); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case literal:
		return n.val, nil

	case ident:
		v, ok := in.env[n.name]
		if !ok {
			return nil, errAt(n, "unknown name %s", n.name)
		}
		return v, nil

	case attr:
		x, err := in.eval(n.x)
		if err != nil {
			return nil, err
		}
		return getAttr(n, x, n.name)

	case index:
		x, err := in.eval(n.x)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(n.idx)
		if err != nil {
			return nil, err
		}
		return getIndex(n, x, idx)

	case call:
		return in.call(n)

	case unary:
		x, err := in.eval(n.x)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "not":
			return value.Bool(!Truthy(x)), nil
		case "-":
			d, ok := toApd(x)
			if !ok {
				return nil, errAt(n, "cannot negate %s", value.TypeName(x))
			}
			return fromApd(n, new(apd.Decimal).Neg(d))
		}
		return nil, errAt(n, "unknown operator %s", n.op)

	case binary:
		return in.binary(n)

	case listLit:
		out := make(value.Array, 0, len(n.elems))
		for _, e := range n.elems {
			v, err := in.eval(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case objectLit:
		out := make(value.Object, len(n.keys))
		for i, k := range n.keys {
			v, err := in.eval(n.vals[i])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil

	case assign:
		v, err := in.eval(n.val)
		if err != nil {
			return nil, err
		}
		budget := maxStoredNodes
		if !fits(v, &budget) {
			return nil, errAt(n, "assigned value too large")
		}
		if err := in.assign(n.target, value.Clone(v)); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, errAt(n, "unsupported expression")
}

func getAttr(n node, x value.Value, name string) (value.Value, error) {
	switch obj := x.(type) {
	case value.Object:
		if v, ok := obj[name]; ok {
			return v, nil
		}
		return value.Null{}, nil
	case value.Null, nil:
		return value.Null{}, nil
	}
	return nil, errAt(n, "cannot read field %s of %s", name, value.TypeName(x))
}

func getIndex(n node, x, idx value.Value) (value.Value, error) {
	switch coll := x.(type) {
	case value.Object:
		key, ok := idx.(value.String)
		if !ok {
			return nil, errAt(n, "object key must be a string, got %s", value.TypeName(idx))
		}
		if v, ok := coll[string(key)]; ok {
			return v, nil
		}
		return value.Null{}, nil
	case value.Array:
		i, ok := value.Normalize(idx).(value.Int)
		if !ok {
			return nil, errAt(n, "list index must be an integer, got %s", value.TypeName(idx))
		}
		if i < 0 {
			i += value.Int(len(coll))
		}
		if i < 0 || int(i) >= len(coll) {
			return value.Null{}, nil
		}
		return coll[i], nil
	case value.String:
		i, ok := value.Normalize(idx).(value.Int)
		if !ok {
			return nil, errAt(n, "string index must be an integer, got %s", value.TypeName(idx))
		}
		runes := []rune(string(coll))
		if i < 0 {
			i += value.Int(len(runes))
		}
		if i < 0 || int(i) >= len(runes) {
			return value.Null{}, nil
		}
		return value.String(runes[i]), nil
	case value.Null, nil:
		return value.Null{}, nil
	}
	return nil, errAt(n, "cannot index %s", value.TypeName(x))
}

// assign writes v at target, creating intermediate objects for missing
// field paths. Targets were checked at parse time to be rooted at data.
func (in *interp) assign(target node, v value.Value) error {
	switch t := target.(type) {
	case attr:
		parent, err := in.container(t.x)
		if err != nil {
			return err
		}
		obj, ok := parent.(value.Object)
		if !ok {
			return errAt(t, "cannot set field %s on %s", t.name, value.TypeName(parent))
		}
		obj[t.name] = v
		return nil
	case index:
		parent, err := in.container(t.x)
		if err != nil {
			return err
		}
		idx, err := in.eval(t.idx)
		if err != nil {
			return err
		}
		switch coll := parent.(type) {
		case value.Object:
			key, ok := idx.(value.String)
			if !ok {
				return errAt(t, "object key must be a string, got %s", value.TypeName(idx))
			}
			coll[string(key)] = v
			return nil
		case value.Array:
			i, ok := value.Normalize(idx).(value.Int)
			if !ok || i < 0 || int(i) >= len(coll) {
				return errAt(t, "list index out of range")
			}
			coll[i] = v
			return nil
		}
		return errAt(t, "cannot index %s", value.TypeName(parent))
	}
	return errAt(target, "invalid assignment target")
}

// container resolves the collection an assignment writes into. Missing
// object fields along the path are created.
func (in *interp) container(n node) (value.Value, error) {
	switch t := n.(type) {
	case ident:
		v, ok := in.env[t.name]
		if !ok {
			return nil, errAt(t, "unknown name %s", t.name)
		}
		return v, nil
	case attr:
		parent, err := in.container(t.x)
		if err != nil {
			return nil, err
		}
		obj, ok := parent.(value.Object)
		if !ok {
			return nil, errAt(t, "cannot read field %s of %s", t.name, value.TypeName(parent))
		}
		child, ok := obj[t.name]
		if !ok || value.IsNull(child) {
			child = value.Object{}
			obj[t.name] = child
		}
		return child, nil
	case index:
		parent, err := in.container(t.x)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(t.idx)
		if err != nil {
			return nil, err
		}
		return getIndex(t, parent, idx)
	}
	return nil, errAt(n, "invalid assignment target")
}

func (in *interp) binary(n binary) (value.Value, error) {
	l, err := in.eval(n.l)
	if err != nil {
		return nil, err
	}

	// Short-circuit: the right side is only evaluated when needed.
	switch n.op {
	case "and":
		if !Truthy(l) {
			return value.Bool(false), nil
		}
		r, err := in.eval(n.r)
		if err != nil {
			return nil, err
		}
		return value.Bool(Truthy(r)), nil
	case "or":
		if Truthy(l) {
			return value.Bool(true), nil
		}
		r, err := in.eval(n.r)
		if err != nil {
			return nil, err
		}
		return value.Bool(Truthy(r)), nil
	}

	r, err := in.eval(n.r)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return value.Bool(value.Equal(l, r)), nil
	case "!=":
		return value.Bool(!value.Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		c, err := compare(n, l, r)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "<":
			return value.Bool(c < 0), nil
		case "<=":
			return value.Bool(c <= 0), nil
		case ">":
			return value.Bool(c > 0), nil
		default:
			return value.Bool(c >= 0), nil
		}
	case "in":
		ok, err := contains(n, r, l)
		return value.Bool(ok), err
	case "not in":
		ok, err := contains(n, r, l)
		return value.Bool(!ok), err
	case "+":
		return add(n, l, r)
	case "-", "*", "/", "%":
		return arith(n, n.op, l, r)
	}
	return nil, errAt(n, "unknown operator %s", n.op)
}

// compare orders two numbers or two strings.
func compare(n node, l, r value.Value) (int, error) {
	if ld, ok := toApd(l); ok {
		if rd, ok := toApd(r); ok {
			return ld.Cmp(rd), nil
		}
	}
	if ls, ok := l.(value.String); ok {
		if rs, ok := r.(value.String); ok {
			return strings.Compare(string(ls), string(rs)), nil
		}
	}
	return 0, errAt(n, "cannot compare %s with %s", value.TypeName(l), value.TypeName(r))
}

// contains implements "x in coll": list membership, object key lookup or
// substring search.
func contains(n node, coll, x value.Value) (bool, error) {
	switch c := coll.(type) {
	case value.Array:
		for _, elem := range c {
			if value.Equal(elem, x) {
				return true, nil
			}
		}
		return false, nil
	case value.Object:
		key, ok := x.(value.String)
		if !ok {
			return false, nil
		}
		_, found := c[string(key)]
		return found, nil
	case value.String:
		s, ok := x.(value.String)
		if !ok {
			return false, errAt(n, "cannot search for %s in a string", value.TypeName(x))
		}
		return strings.Contains(string(c), string(s)), nil
	case value.Null, nil:
		return false, nil
	}
	return false, errAt(n, "cannot test membership in %s", value.TypeName(coll))
}

func add(n node, l, r value.Value) (value.Value, error) {
	switch lv := l.(type) {
	case value.String:
		rv, ok := r.(value.String)
		if !ok {
			return nil, errAt(n, "cannot add %s to string; use str()", value.TypeName(r))
		}
		if len(lv)+len(rv) > maxStringLen {
			return nil, errAt(n, "string too long")
		}
		return lv + rv, nil
	case value.Array:
		rv, ok := r.(value.Array)
		if !ok {
			return nil, errAt(n, "cannot add %s to list", value.TypeName(r))
		}
		if len(lv)+len(rv) > maxListLen {
			return nil, errAt(n, "list too long")
		}
		out := make(value.Array, 0, len(lv)+len(rv))
		out = append(out, lv...)
		return append(out, rv...), nil
	}
	return arith(n, "+", l, r)
}

// fits counts the nodes of v against budget and reports whether they
// all fit. Counting stops as soon as the budget is spent.
func fits(v value.Value, budget *int) bool {
	*budget--
	if *budget < 0 {
		return false
	}
	switch val := v.(type) {
	case value.Array:
		for _, item := range val {
			if !fits(item, budget) {
				return false
			}
		}
	case value.Object:
		for _, item := range val {
			if !fits(item, budget) {
				return false
			}
		}
	}
	return true
}

// decimalCtx is used for all arithmetic. Integer results that fit in
// int64 fold back to value.Int.
var decimalCtx = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}()

func arith(n node, op string, l, r value.Value) (value.Value, error) {
	ld, lok := toApd(l)
	rd, rok := toApd(r)
	if !lok || !rok {
		return nil, errAt(n, "unsupported operand types for %s: %s and %s", op, value.TypeName(l), value.TypeName(r))
	}

	res := new(apd.Decimal)
	var err error
	switch op {
	case "+":
		_, err = decimalCtx.Add(res, ld, rd)
	case "-":
		_, err = decimalCtx.Sub(res, ld, rd)
	case "*":
		_, err = decimalCtx.Mul(res, ld, rd)
	case "/":
		if rd.IsZero() {
			return nil, errAt(n, "division by zero")
		}
		_, err = decimalCtx.Quo(res, ld, rd)
	case "%":
		if rd.IsZero() {
			return nil, errAt(n, "modulo by zero")
		}
		_, err = decimalCtx.Rem(res, ld, rd)
	}
	if err != nil {
		return nil, errAt(n, "arithmetic error: %v", err)
	}
	return fromApd(n, res)
}

func toApd(v value.Value) (*apd.Decimal, bool) {
	switch val := v.(type) {
	case value.Int:
		return apd.New(int64(val), 0), true
	case value.Decimal:
		return val.Apd(), true
	}
	return nil, false
}

func fromApd(n node, d *apd.Decimal) (value.Value, error) {
	dec, err := value.DecimalFromApd(d)
	if err != nil {
		return nil, errAt(n, "%v", err)
	}
	return value.Normalize(dec), nil
}
