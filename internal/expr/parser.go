package expr

import (
	"fmt"
	"strconv"

	"github.com/roach88/doctype/internal/value"
)

// Source and nesting limits. Expressions are authored by administrators,
// not end users, but they still run inside every write.
const (
	maxSourceLen = 16 * 1024
	maxDepth     = 64
)

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true, "null": true,
	"True": true, "False": true, "None": true,
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func newParser(src string) (*parser, error) {
	if len(src) > maxSourceLen {
		return nil, &Error{Msg: fmt.Sprintf("expression longer than %d bytes", maxSourceLen)}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) expectOp(text string) (token, error) {
	t := p.next()
	if t.kind != tokOp || t.text != text {
		return t, p.unexpected(t, fmt.Sprintf("expected %q", text))
	}
	return t, nil
}

func (p *parser) unexpected(t token, want string) error {
	got := t.kind.String()
	if t.kind == tokOp || t.kind == tokIdent {
		got = fmt.Sprintf("%q", t.text)
	}
	return &Error{Pos: t.pos, Msg: fmt.Sprintf("%s, found %s", want, got)}
}

func (p *parser) skipSeparators() {
	for p.peek().kind == tokNewline || p.isOp(";") {
		p.next()
	}
}

// parseExpression parses a single expression and requires end of input.
func (p *parser) parseExpression() (node, error) {
	p.skipNewlines()
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokOp && t.text == "=" {
			return nil, &Error{Pos: t.pos, Msg: "assignment is not allowed in a condition"}
		}
		return nil, p.unexpected(t, "expected end of expression")
	}
	return n, nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.next()
	}
}

// parseProgram parses statements separated by newlines or semicolons.
func (p *parser) parseProgram() ([]node, error) {
	var stmts []node
	p.skipSeparators()
	for p.peek().kind != tokEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		t := p.peek()
		if t.kind != tokEOF && t.kind != tokNewline && !p.isOp(";") {
			return nil, p.unexpected(t, "expected end of statement")
		}
		p.skipSeparators()
	}
	return stmts, nil
}

func (p *parser) parseStatement() (node, error) {
	lhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isOp("=") {
		return lhs, nil
	}
	eq := p.next()
	if err := checkAssignable(lhs); err != nil {
		return nil, err
	}
	rhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	return assign{pos: eq.pos, target: lhs, val: rhs}, nil
}

// checkAssignable accepts data.x, data["x"], data.x.y[0] and so on.
// Only the document data map may be written.
func checkAssignable(n node) error {
	switch t := n.(type) {
	case attr:
		if id, ok := t.x.(ident); ok {
			if id.name != "data" {
				return &Error{Pos: t.pos, Msg: fmt.Sprintf("cannot assign to %s: only data fields are writable", id.name)}
			}
			return nil
		}
		return checkAssignable(t.x)
	case index:
		if id, ok := t.x.(ident); ok {
			if id.name != "data" {
				return &Error{Pos: t.pos, Msg: fmt.Sprintf("cannot assign to %s: only data fields are writable", id.name)}
			}
			return nil
		}
		return checkAssignable(t.x)
	default:
		return &Error{Pos: n.position(), Msg: "invalid assignment target: expected data.<field>"}
	}
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > maxDepth {
		return &Error{Pos: pos, Msg: fmt.Sprintf("expression nested deeper than %d", maxDepth)}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr() (node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") || p.isOp("||") {
		t := p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = binary{pos: t.pos, op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") || p.isOp("&&") {
		t := p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = binary{pos: t.pos, op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword("not") || p.isOp("!") {
		t := p.next()
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unary{pos: t.pos, op: "not", x: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	var op string
	switch {
	case t.kind == tokOp && (t.text == "==" || t.text == "!=" || t.text == "<" ||
		t.text == "<=" || t.text == ">" || t.text == ">="):
		op = t.text
		p.next()
	case p.isKeyword("in"):
		op = "in"
		p.next()
	case p.isKeyword("not") && p.toks[p.pos+1].kind == tokIdent && p.toks[p.pos+1].text == "in":
		op = "not in"
		p.next()
		p.next()
	default:
		return l, nil
	}

	r, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return binary{pos: t.pos, op: op, l: l, r: r}, nil
}

func (p *parser) parseAdditive() (node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		t := p.next()
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = binary{pos: t.pos, op: t.text, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		t := p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binary{pos: t.pos, op: t.text, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") {
		t := p.next()
		if err := p.enter(t.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary{pos: t.pos, op: "-", x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			dot := p.next()
			name := p.next()
			if name.kind != tokIdent {
				return nil, p.unexpected(name, "expected field name after '.'")
			}
			x = attr{pos: dot.pos, x: x, name: name.text}
		case p.isOp("["):
			open := p.next()
			if err := p.enter(open.pos); err != nil {
				return nil, err
			}
			idx, err := p.parseOr()
			p.leave()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = index{pos: open.pos, x: x, idx: idx}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			d, derr := value.ParseDecimal(t.text)
			if derr != nil {
				return nil, &Error{Pos: t.pos, Msg: fmt.Sprintf("invalid number %s", t.text)}
			}
			return literal{pos: t.pos, val: d}, nil
		}
		return literal{pos: t.pos, val: value.Int(n)}, nil

	case tokDecimal:
		d, err := value.ParseDecimal(t.text)
		if err != nil {
			return nil, &Error{Pos: t.pos, Msg: fmt.Sprintf("invalid number %s", t.text)}
		}
		return literal{pos: t.pos, val: value.Normalize(d)}, nil

	case tokString:
		return literal{pos: t.pos, val: value.String(t.text)}, nil

	case tokIdent:
		switch t.text {
		case "true", "True":
			return literal{pos: t.pos, val: value.Bool(true)}, nil
		case "false", "False":
			return literal{pos: t.pos, val: value.Bool(false)}, nil
		case "null", "None":
			return literal{pos: t.pos, val: value.Null{}}, nil
		}
		if keywords[t.text] {
			return nil, p.unexpected(t, "expected a value")
		}
		if p.isOp("(") {
			return p.parseCall(t)
		}
		return ident{pos: t.pos, name: t.text}, nil

	case tokOp:
		switch t.text {
		case "(":
			if err := p.enter(t.pos); err != nil {
				return nil, err
			}
			defer p.leave()
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			if err := p.enter(t.pos); err != nil {
				return nil, err
			}
			defer p.leave()
			elems, err := p.parseList("]")
			if err != nil {
				return nil, err
			}
			return listLit{pos: t.pos, elems: elems}, nil
		case "{":
			if err := p.enter(t.pos); err != nil {
				return nil, err
			}
			defer p.leave()
			return p.parseObject(t)
		}
	}
	return nil, p.unexpected(t, "expected a value")
}

func (p *parser) parseCall(name token) (node, error) {
	if _, ok := builtins[name.text]; !ok && name.text != "if" {
		return nil, &Error{Pos: name.pos, Msg: fmt.Sprintf("unknown function %s", name.text)}
	}
	open := p.next() // (
	if err := p.enter(open.pos); err != nil {
		return nil, err
	}
	defer p.leave()
	args, err := p.parseList(")")
	if err != nil {
		return nil, err
	}
	return call{pos: name.pos, fn: name.text, args: args}, nil
}

// parseList parses comma separated expressions up to the closing bracket.
// A trailing comma is allowed.
func (p *parser) parseList(closing string) ([]node, error) {
	var items []node
	for !p.isOp(closing) {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	if _, err := p.expectOp(closing); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *parser) parseObject(open token) (node, error) {
	obj := objectLit{pos: open.pos}
	for !p.isOp("}") {
		k := p.next()
		if k.kind != tokString && k.kind != tokIdent {
			return nil, p.unexpected(k, "expected object key")
		}
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		v, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		obj.keys = append(obj.keys, k.text)
		obj.vals = append(obj.vals, v)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	if _, err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return obj, nil
}
