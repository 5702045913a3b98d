// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package filter parses the extended LDAP filter language used to select
// documents, e.g. "(&(name=M*)(year<1980)(!(tag=draft)))".
package filter

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

// Operator is the comparison operator of a Comparison node.
type Operator int

const (
	Equal Operator = iota
	Greater
	GreaterOrEqual
	Less
	LessOrEqual
	Matches
	Exists
)

var operatorText = map[Operator]string{
	Equal:          "=",
	Greater:        ">",
	GreaterOrEqual: ">=",
	Less:           "<",
	LessOrEqual:    "<=",
	Matches:        "~=",
	Exists:         "=",
}

func (o Operator) String() string {
	switch o {
	case Equal:
		return "EQ"
	case Greater:
		return "GT"
	case GreaterOrEqual:
		return "GTE"
	case Less:
		return "LT"
	case LessOrEqual:
		return "LTE"
	case Matches:
		return "MATCHES"
	case Exists:
		return "EXISTS"
	}
	return "UNKNOWN"
}

// Expr is a node of a parsed filter.
type Expr interface {
	// String renders the node back to filter text that parses to an
	// equivalent tree.
	String() string
	node()
}

// Comparison constrains a single field.
type Comparison struct {
	Field string
	Op    Operator

	// Value is the unescaped literal. For a case-insensitive Matches it is
	// the regular expression.
	Value string

	// Pattern holds the literal segments around '*' wildcards of an '='
	// comparison. It is nil unless Op is Matches and Fold is false.
	Pattern []string

	// Fold marks a '~=' comparison.
	Fold bool

	// Binary is the decoded payload of a [h..] or [b..] literal.
	Binary []byte
}

// And matches when every child matches.
type And struct{ Children []Expr }

// Or matches when any child matches.
type Or struct{ Children []Expr }

// Not matches when no child matches.
type Not struct{ Children []Expr }

func (*Comparison) node() {}
func (*And) node()        {}
func (*Or) node()         {}
func (*Not) node()        {}

func (c *Comparison) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(Escape(c.Field))
	if c.Op == Matches && !c.Fold {
		// wildcard patterns are written with '='
		sb.WriteString(operatorText[Equal])
	} else {
		sb.WriteString(operatorText[c.Op])
	}
	switch {
	case c.Op == Exists:
		sb.WriteByte('*')
	case c.Op == Matches && !c.Fold:
		for i, seg := range c.Pattern {
			if i > 0 {
				sb.WriteByte('*')
			}
			sb.WriteString(escapeSegment(seg, i == 0, i == len(c.Pattern)-1))
		}
	default:
		sb.WriteString(Escape(c.Value))
	}
	sb.WriteByte(')')
	return sb.String()
}

func (a *And) String() string { return compound('&', a.Children) }
func (o *Or) String() string  { return compound('|', o.Children) }
func (n *Not) String() string { return compound('!', n.Children) }

func compound(op byte, children []Expr) string {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteByte(op)
	for _, child := range children {
		sb.WriteString(child.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// special characters that must be escaped to be read literally
const special = `\()*=<>~`

// Escape returns s with every filter metacharacter preceded by a backslash,
// so it can be embedded in filter text as a literal. Leading and trailing
// whitespace is escaped too, otherwise the parser would trim it.
func Escape(s string) string {
	return escapeSegment(s, true, true)
}

func escapeSegment(s string, leading, trailing bool) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case strings.IndexByte(special, c) >= 0:
			sb.WriteByte('\\')
		case isSpace(c) && leading && strings.TrimSpace(s[:i]) == "":
			sb.WriteByte('\\')
		case isSpace(c) && trailing && strings.TrimSpace(s[i:]) == "":
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

var (
	hexLiteral    = regexp.MustCompile(`^\[h((?:[a-fA-F0-9][a-fA-F0-9])+)\]$`)
	base64Literal = regexp.MustCompile(`^\[b([a-zA-Z0-9+/]+={0,2})\]$`)
)

// DecodeBinary decodes a bracketed [h<hex>] or [b<base64>] literal.
func DecodeBinary(literal string) ([]byte, bool) {
	if m := hexLiteral.FindStringSubmatch(literal); m != nil {
		b, err := hex.DecodeString(m[1])
		return b, err == nil
	}
	if m := base64Literal.FindStringSubmatch(literal); m != nil {
		b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(m[1], "="))
		return b, err == nil
	}
	return nil, false
}

// EncodeBinary renders b as a [h<hex>] literal.
func EncodeBinary(b []byte) string {
	return "[h" + hex.EncodeToString(b) + "]"
}
