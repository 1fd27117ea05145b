// Package lql implements the lightweight query language used by column
// mappings and row filters: column references, literals, a small scalar
// function library, and the |> pipe operator.
//
//	upper(trim(name))
//	name |> trim() |> upper()
//	concat(first_name, ' ', last_name)
package lql

import (
	"fmt"
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

// Expr is a parsed expression, reusable across rows.
type Expr struct {
	root node
	src  string
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

type node interface {
	eval(row Row) value
}

// Row supplies column values during evaluation. Keys are matched
// case-insensitively; a missing column evaluates to the empty string.
type Row map[string]interface{}

// value carries evaluation results. Null tracks SQL NULL distinctly
// from the empty string so concat can skip nulls.
type value struct {
	s    string
	null bool
}

type columnNode struct{ name string }

func (n columnNode) eval(row Row) value {
	for k, v := range row {
		if strings.EqualFold(k, n.name) {
			if v == nil {
				return value{null: true}
			}
			return value{s: fmt.Sprintf("%v", v)}
		}
	}
	return value{}
}

type literalNode struct{ text string }

func (n literalNode) eval(Row) value { return value{s: n.text} }

type callNode struct {
	name string
	args []node
}

func (n callNode) eval(row Row) value {
	args := make([]value, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(row)
	}
	return callFunc(n.name, args)
}

// Parse compiles an expression. Unknown functions and arity mistakes
// are reported here, not at evaluation time.
func Parse(src string) (*Expr, error) {
	p := &parser{lex: newLexer(src)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, types.InvalidArgumentf("lql: %s in %q", err, src)
	}
	if tok := p.next(); tok.kind != tokEOF {
		return nil, types.InvalidArgumentf("lql: unexpected %q in %q", tok.text, src)
	}
	return &Expr{root: root, src: src}, nil
}

// Eval runs the expression against one row. Evaluation is total:
// missing columns read as empty, bad dates pass through, so the only
// failures are caught at Parse time.
func (e *Expr) Eval(row Row) string {
	return e.root.eval(row).s
}

// EvalNull is Eval plus a null indicator for callers that must
// distinguish NULL from the empty string.
func (e *Expr) EvalNull(row Row) (string, bool) {
	v := e.root.eval(row)
	return v.s, v.null
}

// --- lexer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
	tokPipe
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: src} }

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	case c == '|':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '>' {
			l.pos += 2
			return token{kind: tokPipe, text: "|>"}, nil
		}
		return token{}, fmt.Errorf("stray '|'")
	case c == '\'':
		return l.lexString()
	case isDigit(c) || c == '-':
		return l.lexNumber()
	case isIdentStart(c):
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos]}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q", string(c))
}

// lexString reads a single-quoted literal; '' escapes a quote.
func (l *lexer) lexString() (token, error) {
	var b strings.Builder
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return token{kind: tokString, text: b.String()}, nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string literal")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	text := l.src[start:l.pos]
	if text == "-" {
		return token{}, fmt.Errorf("stray '-'")
	}
	return token{kind: tokNumber, text: text}, nil
}

func isSpace(c byte) bool      { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// --- parser ---

type parser struct {
	lex    *lexer
	peeked *token
	err    error
}

func (p *parser) next() token {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t
	}
	t, err := p.lex.next()
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}

func (p *parser) peek() token {
	if p.peeked == nil {
		t := p.next()
		p.peeked = &t
	}
	return *p.peeked
}

// parseExpr handles the pipe chain: term (|> call)*.
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPipe {
		p.next()
		tok := p.next()
		if tok.kind != tokIdent {
			return nil, fmt.Errorf("expected function after |>")
		}
		call, err := p.parseCall(tok.text)
		if err != nil {
			return nil, err
		}
		// The piped value becomes the function's first argument.
		call.args = append([]node{left}, call.args...)
		if err := checkArity(call.name, len(call.args)); err != nil {
			return nil, err
		}
		left = call
	}
	if p.err != nil {
		return nil, p.err
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokString, tokNumber:
		return literalNode{text: tok.text}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			call, err := p.parseCall(tok.text)
			if err != nil {
				return nil, err
			}
			if err := checkArity(call.name, len(call.args)); err != nil {
				return nil, err
			}
			return call, nil
		}
		return columnNode{name: tok.text}, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if p.err != nil {
		return nil, p.err
	}
	return nil, fmt.Errorf("unexpected %q", tok.text)
}

// parseCall parses the parenthesized argument list for name. Arity is
// checked by the caller, after any piped argument is prepended.
func (p *parser) parseCall(name string) (callNode, error) {
	call := callNode{name: strings.ToLower(name)}
	if !knownFunc(call.name) {
		return call, fmt.Errorf("unknown function %q", name)
	}
	if tok := p.next(); tok.kind != tokLParen {
		return call, fmt.Errorf("expected '(' after %q", name)
	}
	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return call, err
		}
		call.args = append(call.args, arg)
		tok := p.next()
		if tok.kind == tokRParen {
			return call, nil
		}
		if tok.kind != tokComma {
			return call, fmt.Errorf("expected ',' or ')' in %s()", name)
		}
	}
}
