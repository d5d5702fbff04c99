package storage

import (
	"fmt"
	"strings"

	"github.com/dshills/docstore-mcp/pkg/types"
)

// MaxFilterPairs is the largest number of distinct (kind, value) pairs a
// filter may carry. Each pair is one term of a compound SELECT, and SQLite
// caps compound terms at 500 by default.
const MaxFilterPairs = 500

// checkFilter rejects filters the intersect query cannot express
func checkFilter(filter types.AttributeFilter) error {
	if n := len(filter.Pairs()); n > MaxFilterPairs {
		return fmt.Errorf("%w: %d attribute values, at most %d", ErrFilterTooLarge, n, MaxFilterPairs)
	}
	return nil
}

// intersectSubquery selects the ids of documents carrying every (kind, value)
// pair of the filter: one subquery per pair, combined with INTERSECT.
// It returns an empty string for a filter without constraints.
func intersectSubquery(ts *tableSet, filter types.AttributeFilter) (string, []interface{}) {
	pairs := filter.Pairs()
	if len(pairs) == 0 {
		return "", nil
	}

	parts := make([]string, len(pairs))
	args := make([]interface{}, 0, len(pairs)*2)
	for i, p := range pairs {
		parts[i] = "SELECT document_id FROM " + ts.attributes + " WHERE kind = ? AND value = ?"
		args = append(args, p.Kind, p.Value)
	}
	return strings.Join(parts, " INTERSECT "), args
}

// documentPredicate builds the WHERE clause (without the keyword) shared by
// QueryOne, QueryMany and Count.
func documentPredicate(ts *tableSet, q Query) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if sub, subArgs := intersectSubquery(ts, q.Filter); sub != "" {
		clauses = append(clauses, "id IN ("+sub+")")
		args = append(args, subArgs...)
	}

	for _, term := range q.Terms {
		clauses = append(clauses, RegexpFunctionName+"(?, body)")
		args = append(args, term)
	}

	return strings.Join(clauses, " AND "), args
}

// whereClause prefixes a non-empty predicate with WHERE
func whereClause(predicate string) string {
	if predicate == "" {
		return ""
	}
	return " WHERE " + predicate
}

// placeholders returns n comma-separated parameter markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
