package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTerms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"mixed quoting", `aaa "bb cc" 'dd+ee'`, []string{"aaa", "bb cc", `dd\+ee`}},
		{"quoted only", `"foo" 'bar baz'`, []string{"foo", "bar baz"}},
		{"empty input", ``, nil},
		{"whitespace only", "  \t \n", nil},
		{"explicit empty term", `""`, []string{""}},
		{"explicit empty single quotes", `'' x`, []string{"", "x"}},
		{"surrounding whitespace", "  one   two  ", []string{"one", "two"}},
		{"escaped quote in unquoted term", `say\"hi`, []string{`say"hi`}},
		{"escaped quote in quoted term", `"a \" b"`, []string{`a " b`}},
		{"escaped backslash", `a\\b`, []string{`a\\b`}},
		{"escaped space joins term", `a\ b`, []string{"a b"}},
		{"escape starts term", `\'quoted`, []string{"'quoted"}},
		{"apostrophe inside unquoted term", `don't`, []string{"don't"}},
		{"metacharacters", `"a.b+c" (x|y) [z]{2} ^$ *?`, []string{
			`a\.b\+c`, `\(x\|y\)`, `\[z\]\{2\}`, `\^\$`, `\*\?`,
		}},
		{"other quote inside quoted term", `"it's here"`, []string{"it's here"}},
		{"adjacent quoted terms", `"a""b"`, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTerms(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTerms_UnterminatedQuote(t *testing.T) {
	for _, input := range []string{`"open`, `ok 'open`, `"a \"`} {
		t.Run(input, func(t *testing.T) {
			terms, err := ParseTerms(input)
			require.Error(t, err)
			assert.Nil(t, terms)
			assert.True(t, IsSyntaxError(err))
			assert.True(t, errors.Is(err, ErrUnterminatedDelimiter))
		})
	}
}

func TestParseTerms_DanglingEscape(t *testing.T) {
	terms, err := ParseTerms(`abc\`)
	require.Error(t, err)
	assert.Nil(t, terms)
	assert.ErrorIs(t, err, ErrDanglingEscape)

	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Offset)
}

func TestParseTerms_MetacharactersMatchLiterally(t *testing.T) {
	terms, err := ParseTerms(`"a.b+c"`)
	require.NoError(t, err)
	require.Len(t, terms, 1)

	re, err := Compile(terms[0])
	require.NoError(t, err)

	assert.True(t, re.MatchString("a.b+c"))
	assert.True(t, re.MatchString("xx A.B+C yy"), "match is case-insensitive")
	assert.False(t, re.MatchString("aXbc"))
	assert.False(t, re.MatchString("aXbcc"))
}

func TestParseTerms_EscapedBackslashMatchesLiterally(t *testing.T) {
	terms, err := ParseTerms(`c:\\temp`)
	require.NoError(t, err)
	require.Len(t, terms, 1)

	re, err := Compile(terms[0])
	require.NoError(t, err)
	assert.True(t, re.MatchString(`C:\TEMP`))
	assert.False(t, re.MatchString(`c:temp`))
}

func TestParseTerms_EveryTermCompiles(t *testing.T) {
	inputs := []string{
		`\\ \. \* "(((" '[' }{ $^ | ? + \q`,
		`"\\\\" 'a\'b'`,
	}
	for _, input := range inputs {
		terms, err := ParseTerms(input)
		require.NoError(t, err, input)
		for _, term := range terms {
			_, err := Compile(term)
			assert.NoError(t, err, "term %q from %q", term, input)
		}
	}
}

func TestSyntaxError_Message(t *testing.T) {
	_, err := ParseTerms(`x "y`)
	require.Error(t, err)
	assert.Equal(t, "query syntax error at offset 2: unterminated delimiter", err.Error())
}
