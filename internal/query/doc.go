// Package query turns free-text search strings into regex-safe terms.
//
// A search string is a whitespace-separated list of terms. Terms may be
// wrapped in double or single quotes to include whitespace, and a
// backslash escapes the following character wherever it appears:
//
//	terms, err := query.ParseTerms(`aaa "bb cc" 'dd+ee'`)
//	// terms == []string{"aaa", "bb cc", `dd\+ee`}
//
// Every regular-expression metacharacter inside a term is escaped, so
// each returned term is a literal substring pattern that the storage layer
// matches case-insensitively against document bodies. All terms must match
// for a document to be selected.
//
// Malformed input (an unterminated quote or a trailing backslash) yields a
// *SyntaxError and no terms. Callers should report it as bad input rather
// than as an infrastructure failure.
package query
