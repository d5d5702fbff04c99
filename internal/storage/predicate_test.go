package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docstore-mcp/pkg/types"
)

func TestDocumentPredicate(t *testing.T) {
	ts, err := newTableSet("quote")
	require.NoError(t, err)

	predicate, args := documentPredicate(ts, Query{
		Filter: types.AttributeFilter{types.KindSpeaker: {"b", "a"}},
		Terms:  []string{"x", `y\.z`},
	})

	assert.Equal(t,
		`id IN (SELECT document_id FROM "quote_attributes" WHERE kind = ? AND value = ?`+
			` INTERSECT SELECT document_id FROM "quote_attributes" WHERE kind = ? AND value = ?)`+
			` AND iregexp(?, body) AND iregexp(?, body)`,
		predicate)
	assert.Equal(t, []interface{}{"speaker", "a", "speaker", "b", "x", `y\.z`}, args)
}

func TestDocumentPredicate_Empty(t *testing.T) {
	ts, err := newTableSet("quote")
	require.NoError(t, err)

	predicate, args := documentPredicate(ts, Query{})
	assert.Empty(t, predicate)
	assert.Empty(t, args)
	assert.Empty(t, whereClause(predicate))
}

func TestTableNames(t *testing.T) {
	docs, attrs := TableNames("quote")
	assert.Equal(t, "quote_documents", docs)
	assert.Equal(t, "quote_attributes", attrs)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}

func TestMatchPattern(t *testing.T) {
	ok, err := matchPattern(`a\.b`, "xx A.B yy")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = matchPattern(`a\.b`, "aXb")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = matchPattern(`(`, "x")
	assert.Error(t, err)
}
