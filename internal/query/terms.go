package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrUnterminatedDelimiter is returned when input ends inside a quoted term
	ErrUnterminatedDelimiter = errors.New("unterminated delimiter")
	// ErrDanglingEscape is returned when input ends with a lone backslash
	ErrDanglingEscape = errors.New("dangling escape at end of input")
)

// SyntaxError describes malformed search input
type SyntaxError struct {
	Input  string
	Offset int // Byte offset of the offending character
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// IsSyntaxError reports whether err is (or wraps) a *SyntaxError
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// scanner state for ParseTerms
type scanner struct {
	terms   []string
	current strings.Builder
	inTerm  bool
	quote   rune // 0 for an unquoted term
}

func (s *scanner) open(quote rune) {
	s.inTerm = true
	s.quote = quote
}

func (s *scanner) close() {
	s.terms = append(s.terms, s.current.String())
	s.current.Reset()
	s.inTerm = false
	s.quote = 0
}

// appendLiteral adds r to the current term, escaped for use in a regexp
func (s *scanner) appendLiteral(r rune) {
	s.current.WriteString(regexp.QuoteMeta(string(r)))
}

// ParseTerms splits raw into regex-safe search terms.
//
// Whitespace separates unquoted terms; '"' and '\'' open a quoted term that
// runs to the matching quote. A backslash copies the next character into the
// current term regardless of state. Explicitly quoted empty terms are kept,
// whitespace-only input yields no terms.
func ParseTerms(raw string) ([]string, error) {
	var s scanner
	escaped := false
	escapeAt := 0
	quoteAt := 0

	for i, r := range raw {
		if escaped {
			escaped = false
			if !s.inTerm {
				s.open(0)
			}
			s.appendLiteral(r)
			continue
		}

		if r == '\\' {
			escaped = true
			escapeAt = i
			continue
		}

		if !s.inTerm {
			switch {
			case unicode.IsSpace(r):
			case r == '"' || r == '\'':
				s.open(r)
				quoteAt = i
			default:
				s.open(0)
				s.appendLiteral(r)
			}
			continue
		}

		if (s.quote != 0 && r == s.quote) || (s.quote == 0 && unicode.IsSpace(r)) {
			s.close()
			continue
		}
		s.appendLiteral(r)
	}

	if escaped {
		return nil, &SyntaxError{Input: raw, Offset: escapeAt, Err: ErrDanglingEscape}
	}
	if s.inTerm {
		if s.quote != 0 {
			return nil, &SyntaxError{Input: raw, Offset: quoteAt, Err: ErrUnterminatedDelimiter}
		}
		s.close()
	}
	return s.terms, nil
}

// Compile builds the case-insensitive matcher used for a term
func Compile(term string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + term)
	if err != nil {
		return nil, fmt.Errorf("failed to compile term %q: %w", term, err)
	}
	return re, nil
}
