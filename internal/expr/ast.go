package expr

import (
	"fmt"
	"strings"

	"github.com/roach88/doctype/internal/value"
)

// Error is a compile or evaluation failure. Pos is a byte offset into the
// source; Line and Col are filled in once the source is known.
type Error struct {
	Pos  int
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
	}
	return e.Msg
}

// locate fills Line and Col from src.
func (e *Error) locate(src string) *Error {
	if e.Pos > len(src) {
		e.Pos = len(src)
	}
	before := src[:e.Pos]
	e.Line = strings.Count(before, "\n") + 1
	e.Col = e.Pos - strings.LastIndex(before, "\n")
	return e
}

// node is a sealed interface over the expression AST.
type node interface {
	position() int
}

type literal struct {
	pos int
	val value.Value
}

type ident struct {
	pos  int
	name string
}

type attr struct {
	pos  int
	x    node
	name string
}

type index struct {
	pos int
	x   node
	idx node
}

type call struct {
	pos  int
	fn   string
	args []node
}

type unary struct {
	pos int
	op  string
	x   node
}

type binary struct {
	pos  int
	op   string
	l, r node
}

type listLit struct {
	pos   int
	elems []node
}

type objectLit struct {
	pos  int
	keys []string
	vals []node
}

type assign struct {
	pos    int
	target node
	val    node
}

func (n literal) position() int   { return n.pos }
func (n ident) position() int     { return n.pos }
func (n attr) position() int      { return n.pos }
func (n index) position() int     { return n.pos }
func (n call) position() int      { return n.pos }
func (n unary) position() int     { return n.pos }
func (n binary) position() int    { return n.pos }
func (n listLit) position() int   { return n.pos }
func (n objectLit) position() int { return n.pos }
func (n assign) position() int    { return n.pos }
