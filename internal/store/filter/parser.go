// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Parse errors
var (
	// ErrSyntax matches every *SyntaxError.
	ErrSyntax = errors.New("invalid filter syntax")

	ErrEmptyFilter      = errors.New("empty filter")
	ErrUnbalancedParens = errors.New("unbalanced parentheses")
	ErrUnterminated     = errors.New("unterminated expression")
	ErrUnknownOperator  = errors.New("missing or unknown operator")
	ErrMissingField     = errors.New("missing field name")
	ErrInvalidField     = errors.New("wildcard in field name")
	ErrMissingValue     = errors.New("missing value")
	ErrTrailingInput    = errors.New("unexpected input after expression")
)

// SyntaxError describes where and why filter text failed to parse.
type SyntaxError struct {
	Input  string
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter %q: %v at offset %d", e.Input, e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// Parse parses filter text into an expression tree. Text that does not start
// with '(' is treated as a single parenthesized expression, so "year<1980"
// and "(year<1980)" are the same filter.
func Parse(text string) (Expr, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &SyntaxError{Input: text, Err: ErrEmptyFilter}
	}
	if trimmed[0] != '(' {
		trimmed = "(" + trimmed + ")"
	}

	p := &parser{input: trimmed}
	expr, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.fail(ErrTrailingInput)
	}
	return expr, nil
}

// Format substitutes args into a filter template with fmt verbs. Byte slice
// arguments are rendered as [h<hex>] literals and %s accepts any value. Without
// args the template is returned untouched.
func Format(template string, args ...interface{}) string {
	if len(args) == 0 {
		return template
	}
	converted := make([]interface{}, len(args))
	for i, arg := range args {
		if b, ok := arg.([]byte); ok {
			converted[i] = EncodeBinary(b)
			continue
		}
		converted[i] = textArg{arg}
	}
	return fmt.Sprintf(template, converted...)
}

// textArg prints its value as text for %s and defers to the value for every
// other verb
type textArg struct{ v interface{} }

func (a textArg) Format(f fmt.State, verb rune) {
	if verb == 's' {
		fmt.Fprintf(f, fmt.FormatString(f, verb), fmt.Sprint(a.v))
		return
	}
	fmt.Fprintf(f, fmt.FormatString(f, verb), a.v)
}

type parser struct {
	input string
	pos   int
}

// char is one input byte, flagged when it was preceded by a backslash
type char struct {
	c       byte
	escaped bool
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

func (p *parser) peek() byte { return p.input[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && isSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) fail(err error) *SyntaxError {
	return &SyntaxError{Input: p.input, Offset: p.pos, Err: err}
}

func (p *parser) expr() (Expr, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.fail(ErrUnterminated)
	}
	if p.peek() != '(' {
		return nil, p.fail(ErrUnbalancedParens)
	}
	p.pos++
	p.skipSpace()
	if p.eof() {
		return nil, p.fail(ErrUnterminated)
	}

	switch p.peek() {
	case '&', '|', '!':
		op := p.peek()
		p.pos++
		children, err := p.children()
		if err != nil {
			return nil, err
		}
		switch op {
		case '&':
			return &And{Children: children}, nil
		case '|':
			return &Or{Children: children}, nil
		default:
			return &Not{Children: children}, nil
		}
	}
	return p.comparison()
}

func (p *parser) children() ([]Expr, error) {
	var children []Expr
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.fail(ErrUnterminated)
		}
		switch p.peek() {
		case ')':
			p.pos++
			return children, nil
		case '(':
			child, err := p.expr()
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		default:
			return nil, p.fail(ErrUnbalancedParens)
		}
	}
}

func (p *parser) comparison() (Expr, error) {
	start := p.pos
	var body []char
	for {
		if p.eof() {
			return nil, p.fail(ErrUnbalancedParens)
		}
		c := p.peek()
		p.pos++
		switch c {
		case '\\':
			if p.eof() {
				return nil, p.fail(ErrUnterminated)
			}
			body = append(body, char{c: p.peek(), escaped: true})
			p.pos++
			continue
		case '(':
			p.pos--
			return nil, p.fail(ErrUnbalancedParens)
		case ')':
		default:
			body = append(body, char{c: c})
			continue
		}
		break
	}

	opAt := -1
	for i, ch := range body {
		if !ch.escaped && strings.IndexByte("=<>~", ch.c) >= 0 {
			opAt = i
			break
		}
	}
	if opAt < 0 {
		return nil, &SyntaxError{Input: p.input, Offset: start, Err: ErrUnknownOperator}
	}

	var op Operator
	valueAt := opAt + 1
	followedByEq := valueAt < len(body) && body[valueAt].c == '=' && !body[valueAt].escaped
	switch body[opAt].c {
	case '=':
		op = Equal
	case '<':
		op = Less
		if followedByEq {
			op, valueAt = LessOrEqual, valueAt+1
		}
	case '>':
		op = Greater
		if followedByEq {
			op, valueAt = GreaterOrEqual, valueAt+1
		}
	case '~':
		if !followedByEq {
			return nil, &SyntaxError{Input: p.input, Offset: start + opAt, Err: ErrUnknownOperator}
		}
		op, valueAt = Matches, valueAt+1
	}

	field := trim(body[:opAt])
	if len(field) == 0 {
		return nil, &SyntaxError{Input: p.input, Offset: start, Err: ErrMissingField}
	}
	for _, ch := range field {
		if ch.c == '*' && !ch.escaped {
			return nil, &SyntaxError{Input: p.input, Offset: start, Err: ErrInvalidField}
		}
	}
	value := trim(body[valueAt:])
	if len(value) == 0 {
		return nil, &SyntaxError{Input: p.input, Offset: start + valueAt, Err: ErrMissingValue}
	}

	cmp := &Comparison{Field: literal(field), Op: op}
	switch op {
	case Matches:
		cmp.Value = literal(value)
		cmp.Fold = true
	case Equal:
		segments := split(value)
		switch {
		case len(segments) == 1 && segments[0] == ".*":
			cmp.Op = Exists
		case len(segments) == 1:
			cmp.Value = segments[0]
			cmp.Binary, _ = DecodeBinary(cmp.Value)
		case len(segments) == 2 && segments[1] == "" && (segments[0] == "" || segments[0] == "."):
			cmp.Op = Exists
		default:
			cmp.Op = Matches
			cmp.Pattern = segments
		}
	default:
		cmp.Value = literal(value)
		cmp.Binary, _ = DecodeBinary(cmp.Value)
	}
	return cmp, nil
}

// trim drops unescaped whitespace at both ends
func trim(chars []char) []char {
	for len(chars) > 0 && !chars[0].escaped && isSpace(chars[0].c) {
		chars = chars[1:]
	}
	for len(chars) > 0 && !chars[len(chars)-1].escaped && isSpace(chars[len(chars)-1].c) {
		chars = chars[:len(chars)-1]
	}
	return chars
}

func literal(chars []char) string {
	b := make([]byte, len(chars))
	for i, ch := range chars {
		b[i] = ch.c
	}
	return string(b)
}

// split cuts a value at its unescaped '*' wildcards
func split(chars []char) []string {
	var segments []string
	var current []byte
	for _, ch := range chars {
		if ch.c == '*' && !ch.escaped {
			segments = append(segments, string(current))
			current = current[:0:0]
			continue
		}
		current = append(current, ch.c)
	}
	return append(segments, string(current))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
