package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComparison(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Comparison
	}{
		{"equality", "(name=Peter)", &Comparison{Field: "name", Op: Equal, Value: "Peter"}},
		{"auto wrapped", "year<1980", &Comparison{Field: "year", Op: Less, Value: "1980"}},
		{"less or equal", "(year<=1980)", &Comparison{Field: "year", Op: LessOrEqual, Value: "1980"}},
		{"greater", "(year>1980)", &Comparison{Field: "year", Op: Greater, Value: "1980"}},
		{"greater or equal", "(year>=1980)", &Comparison{Field: "year", Op: GreaterOrEqual, Value: "1980"}},
		{"case insensitive", "(name~=^pe)", &Comparison{Field: "name", Op: Matches, Value: "^pe", Fold: true}},
		{"wildcard", "(name=M*)", &Comparison{Field: "name", Op: Matches, Pattern: []string{"M", ""}}},
		{"inner wildcards", "(name=*a*b)", &Comparison{Field: "name", Op: Matches, Pattern: []string{"", "a", "b"}}},
		{"exists literal", "(name=.*)", &Comparison{Field: "name", Op: Exists}},
		{"exists star", "(name=*)", &Comparison{Field: "name", Op: Exists}},
		{"escaped star", `(name=a\*b)`, &Comparison{Field: "name", Op: Equal, Value: "a*b"}},
		{"escaped parens", `(name=f\(x\))`, &Comparison{Field: "name", Op: Equal, Value: "f(x)"}},
		{"empty sequence", "(tags=[])", &Comparison{Field: "tags", Op: Equal, Value: "[]"}},
		{"hex literal", "(key=[h0a0B])", &Comparison{Field: "key", Op: Equal, Value: "[h0a0B]", Binary: []byte{0x0a, 0x0b}}},
		{"base64 literal", "(key=[bAQI=])", &Comparison{Field: "key", Op: Equal, Value: "[bAQI=]", Binary: []byte{1, 2}}},
		{"binary on ordered op", "(key>[h01])", &Comparison{Field: "key", Op: Greater, Value: "[h01]", Binary: []byte{1}}},
		{"spaces are trimmed", "( name = Peter Kriens )", &Comparison{Field: "name", Op: Equal, Value: "Peter Kriens"}},
		{"escaped space survives", `(name=\ x)`, &Comparison{Field: "name", Op: Equal, Value: " x"}},
		{"dotted field", "(address.city=Paris)", &Comparison{Field: "address.city", Op: Equal, Value: "Paris"}},
		{"value with equals", "(expr=a=b)", &Comparison{Field: "expr", Op: Equal, Value: "a=b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCompound(t *testing.T) {
	got, err := Parse("(&(name=M*)(|(year<1980)(year>2000))(!(tag=draft)))")
	require.NoError(t, err)

	want := &And{Children: []Expr{
		&Comparison{Field: "name", Op: Matches, Pattern: []string{"M", ""}},
		&Or{Children: []Expr{
			&Comparison{Field: "year", Op: Less, Value: "1980"},
			&Comparison{Field: "year", Op: Greater, Value: "2000"},
		}},
		&Not{Children: []Expr{
			&Comparison{Field: "tag", Op: Equal, Value: "draft"},
		}},
	}}
	assert.Equal(t, want, got)
}

func TestParseWhitespaceBetweenChildren(t *testing.T) {
	got, err := Parse("  ( & (a=1)\n\t(b=2) )  ")
	require.NoError(t, err)
	assert.Equal(t, "(&(a=1)(b=2))", got.String())
}

func TestParseEmptyCompound(t *testing.T) {
	got, err := Parse("(&)")
	require.NoError(t, err)
	assert.Equal(t, &And{}, got)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"empty", "   ", ErrEmptyFilter},
		{"unterminated compound", "(&(a=1)", ErrUnterminated},
		{"unclosed comparison", "(a=1", ErrUnbalancedParens},
		{"extra close", "(a=1))", ErrTrailingInput},
		{"trailing expression", "(a=1)(b=2)", ErrTrailingInput},
		{"unterminated escape", `(a=1\`, ErrUnterminated},
		{"no operator", "(name)", ErrUnknownOperator},
		{"tilde without equals", "(name~x)", ErrUnknownOperator},
		{"missing field", "(=x)", ErrMissingField},
		{"missing value", "(name=)", ErrMissingValue},
		{"wildcard in field", "(na*me=x)", ErrInvalidField},
		{"paren in comparison", "(a=(b)", ErrUnbalancedParens},
		{"garbage in compound", "(&x)", ErrUnbalancedParens},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
			assert.True(t, errors.Is(err, ErrSyntax))

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr))
			assert.GreaterOrEqual(t, syntaxErr.Offset, 0)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	inputs := []string{
		"(name=Peter)",
		"year<1980",
		"(&(name=M*)(|(year<=1980)(year>=2000))(!(tag=draft)))",
		"(name~=^p.*r$)",
		"(name=*a*b*)",
		"(name=.*)",
		"(name=*)",
		`(name=a\*b\(c\)\\d)`,
		`(name=\ padded\ )`,
		"(tags=[])",
		"(key=[h0a0b])",
		"(key=[bAQI=])",
		`(expr=a\<b)`,
		"(|)",
		"(!(&))",
		"(x=tab\there)",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := Parse(input)
			require.NoError(t, err)

			second, err := Parse(first.String())
			require.NoError(t, err, "serialized as %s", first.String())
			assert.Equal(t, first, second)
			assert.Equal(t, first.String(), second.String())
		})
	}
}

func TestWildcardSerializesAsEqual(t *testing.T) {
	for input, want := range map[string]string{
		"name=M*":      "(name=M*)",
		"(name=*a*b*)": "(name=*a*b*)",
		"(name~=M*)":   `(name~=M\*)`,
	} {
		expr, err := Parse(input)
		require.NoError(t, err)
		assert.Equal(t, want, expr.String())
	}

	expr, err := Parse("(name=M*)")
	require.NoError(t, err)
	again, err := Parse(expr.String())
	require.NoError(t, err)
	cmp := again.(*Comparison)
	assert.False(t, cmp.Fold)
	assert.Equal(t, []string{"M", ""}, cmp.Pattern)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "year<1980", Format("year<%s", 1980))
	assert.Equal(t, "year<1980", Format("year<%d", 1980))
	assert.Equal(t, "(key=[h0102ff])", Format("(key=%s)", []byte{1, 2, 0xff}))
	assert.Equal(t, "(pct=100%)", Format("(pct=100%)"))
	assert.Equal(t, "(&(rating>=7.5)(done=true))", Format("(&(rating>=%s)(done=%s))", 7.5, true))
	assert.Equal(t, "(year=  42)", Format("(year=%4s)", 42))
	assert.Equal(t, "(n=0x2a)", Format("(n=%#x)", 42))

	first, err := Parse(Format("year<%s", 1980))
	require.NoError(t, err)
	second, err := Parse("year<1980")
	require.NoError(t, err)
	assert.Equal(t, second, first)
}

func TestBinaryLiterals(t *testing.T) {
	samples := [][]byte{{0}, {1, 2, 3}, []byte("some longer payload"), {0xde, 0xad, 0xbe, 0xef}}
	for _, b := range samples {
		got, err := Parse(Format("(key=%s)", b))
		require.NoError(t, err)
		assert.Equal(t, b, got.(*Comparison).Binary)
	}

	_, ok := DecodeBinary("[hxyz]")
	assert.False(t, ok)
	_, ok = DecodeBinary("[h012]")
	assert.False(t, ok)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\*b\(c\)`, Escape("a*b(c)"))
	assert.Equal(t, `\ x\ `, Escape(" x "))
	assert.Equal(t, `x\=y`, Escape("x=y"))

	got, err := Parse("(name=" + Escape("(*) tricky ~= value ") + ")")
	require.NoError(t, err)
	assert.Equal(t, "(*) tricky ~= value ", got.(*Comparison).Value)
}

func TestOperatorString(t *testing.T) {
	assert.Equal(t, "EQ", Equal.String())
	assert.Equal(t, "MATCHES", Matches.String())
	assert.Equal(t, "EXISTS", Exists.String())
}
