package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docstore-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func setupCollection(t *testing.T, name string) (*SQLiteStorage, context.Context) {
	storage := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, storage.Connect(ctx, name))
	return storage, ctx
}

func insert(t *testing.T, s *SQLiteStorage, collection, body string, attrs ...types.Attribute) *DocumentRecord {
	t.Helper()
	doc := &DocumentRecord{Submitter: "tester", Body: body}
	require.NoError(t, s.InsertDocument(context.Background(), collection, doc, FromTypesAttributes(attrs)))
	return doc
}

func speaker(v string) types.Attribute { return types.Attribute{Kind: types.KindSpeaker, Value: v} }
func mention(v string) types.Attribute { return types.Attribute{Kind: types.KindMention, Value: v} }

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
	assert.Empty(t, storage.tables)
}

func TestConnectionPragmas_EveryPooledConnection(t *testing.T) {
	const conns = 4
	storage, err := NewSQLiteStorageWithOptions(filepath.Join(t.TempDir(), "docstore.db"), Options{
		MaxOpenConns: conns,
		BusyTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	ctx := context.Background()
	require.NoError(t, storage.Connect(ctx, "quote"))
	docs := make([]*DocumentRecord, conns)
	for i := range docs {
		docs[i] = insert(t, storage, "quote", fmt.Sprintf("doc %d", i), speaker("A"), mention("B"))
	}

	// Hold every pooled connection at once so each one is checked
	held := make([]*sql.Conn, conns)
	for i := range held {
		held[i], err = storage.db.Conn(ctx)
		require.NoError(t, err)
	}
	defer func() {
		for _, c := range held {
			_ = c.Close()
		}
	}()

	for i, c := range held {
		var foreignKeys, busyTimeout int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, 1, foreignKeys, "conn %d", i)
		assert.Equal(t, 1000, busyTimeout, "conn %d", i)

		_, err := c.ExecContext(ctx, "DELETE FROM quote_documents WHERE id = ?", docs[i].ID)
		require.NoError(t, err)
		var orphans int
		require.NoError(t, c.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM quote_attributes WHERE document_id = ?", docs[i].ID).Scan(&orphans))
		assert.Zero(t, orphans, "conn %d: attributes cascade with their document", i)
	}
}

func TestConnect_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.Connect(ctx, "quote"))
	insert(t, storage, "quote", "kept across reconnect")
	require.NoError(t, storage.Connect(ctx, "quote"))

	count, err := storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConnect_InvalidName(t *testing.T) {
	storage := setupTestDB(t)
	for _, name := range []string{"", "Quote", "1quote", "quote; DROP TABLE x", "quo_te", "a-b"} {
		err := storage.Connect(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidCollectionName, name)
	}
}

func TestOperations_RequireConnect(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.Count(ctx, "quote", Query{})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = storage.InsertDocument(ctx, "quote", &DocumentRecord{Body: "x"}, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestInsertDocument(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")

	attrs := FromTypesAttributes([]types.Attribute{speaker("alice"), speaker("bob"), mention("carol"), speaker("alice")})
	doc := &DocumentRecord{Submitter: "dave", Body: "hello world"}
	require.NoError(t, storage.InsertDocument(ctx, "quote", doc, attrs))

	assert.Greater(t, doc.ID, int64(0))
	assert.False(t, doc.CreatedAt.IsZero())
	assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)

	seen := make(map[int64]bool)
	for _, a := range attrs {
		assert.Equal(t, doc.ID, a.DocumentID)
		assert.Greater(t, a.ID, int64(0))
		assert.False(t, seen[a.ID], "attribute ids must be distinct")
		seen[a.ID] = true
	}

	loaded, err := storage.LoadAttributes(ctx, "quote", []int64{doc.ID})
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	for _, a := range loaded {
		assert.True(t, seen[a.ID])
	}
}

func TestInsertDocument_EmptyBody(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	err := storage.InsertDocument(ctx, "quote", &DocumentRecord{Submitter: "x"}, nil)
	assert.ErrorIs(t, err, types.ErrEmptyBody)
}

func TestInsertDocument_AttributeFailureRollsBack(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	ts, err := storage.tableSet("quote")
	require.NoError(t, err)

	// Force the attribute insert to fail after the document row is written
	_, err = storage.db.ExecContext(ctx, "DROP TABLE "+ts.attributes)
	require.NoError(t, err)

	doc := &DocumentRecord{Body: "orphan candidate"}
	err = storage.InsertDocument(ctx, "quote", doc, FromTypesAttributes([]types.Attribute{speaker("x")}))
	require.Error(t, err)
	assert.Zero(t, doc.ID, "ids are not assigned on failure")

	var n int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ts.documents).Scan(&n))
	assert.Equal(t, 0, n, "document row must be rolled back with its attributes")
}

func TestQueryOne(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	first := insert(t, storage, "quote", "alpha one", speaker("X"))
	insert(t, storage, "quote", "beta two")
	third := insert(t, storage, "quote", "alpha three", speaker("X"))

	t.Run("latest", func(t *testing.T) {
		doc, err := storage.QueryOne(ctx, "quote", Query{Terms: []string{"alpha"}}, OrderLatest)
		require.NoError(t, err)
		assert.Equal(t, third.ID, doc.ID)
		assert.Equal(t, "alpha three", doc.Body)
		assert.Equal(t, "tester", doc.Submitter)
	})

	t.Run("random stays within matches", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			doc, err := storage.QueryOne(ctx, "quote",
				Query{Filter: types.AttributeFilter{types.KindSpeaker: {"X"}}}, OrderRandom)
			require.NoError(t, err)
			assert.Contains(t, []int64{first.ID, third.ID}, doc.ID)
		}
	})

	t.Run("case-insensitive terms", func(t *testing.T) {
		doc, err := storage.QueryOne(ctx, "quote", Query{Terms: []string{"BETA", "TWO"}}, OrderLatest)
		require.NoError(t, err)
		assert.Equal(t, "beta two", doc.Body)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := storage.QueryOne(ctx, "quote",
			Query{Filter: types.AttributeFilter{types.KindSpeaker: {"X"}}, Terms: []string{"beta"}}, OrderRandom)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestQuery_AttributeIntersection(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "a only", speaker("A"))
	insert(t, storage, "quote", "b only", speaker("B"))
	both := insert(t, storage, "quote", "a and b", speaker("A"), speaker("B"))

	q := Query{Filter: types.AttributeFilter{types.KindSpeaker: {"A", "B"}}}

	docs, err := storage.QueryMany(ctx, "quote", q, Page{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, both.ID, docs[0].ID)

	count, err := storage.Count(ctx, "quote", q)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQuery_IntersectionAcrossKinds(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "speaker only", speaker("A"))
	match := insert(t, storage, "quote", "speaker and mention", speaker("A"), mention("B"))
	insert(t, storage, "quote", "mention only", mention("B"))

	q := Query{Filter: types.AttributeFilter{types.KindSpeaker: {"A"}, types.KindMention: {"B"}}}
	docs, err := storage.QueryMany(ctx, "quote", q, Page{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, match.ID, docs[0].ID)
}

func TestQuery_ParameterizedValues(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	hostile := `x' OR 1=1; DROP TABLE "quote_documents"; --`
	insert(t, storage, "quote", hostile, speaker(hostile))
	insert(t, storage, "quote", "innocent")

	count, err := storage.Count(ctx, "quote", Query{Filter: types.AttributeFilter{types.KindSpeaker: {hostile}}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, count, "table must survive")
}

func TestQueryMany_PaginationStability(t *testing.T) {
	for _, n := range []int{0, 1, 7, 20} {
		for _, k := range []int{1, 3, 20, 50} {
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				storage, ctx := setupCollection(t, "quote")
				var want []int64
				for i := 0; i < n; i++ {
					want = append(want, insert(t, storage, "quote", fmt.Sprintf("doc %d", i)).ID)
				}

				var got []int64
				var after int64
				for pages := 0; pages <= n+1; pages++ {
					docs, err := storage.QueryMany(ctx, "quote", Query{}, Page{Limit: k, After: after})
					require.NoError(t, err)
					if len(docs) == 0 {
						break
					}
					for _, d := range docs {
						got = append(got, d.ID)
					}
					after = docs[len(docs)-1].ID
				}
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestCount(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "alpha one", speaker("X"))
	insert(t, storage, "quote", "beta two")
	insert(t, storage, "quote", "alpha three", speaker("X"), speaker("X"))

	tests := []struct {
		name string
		q    Query
		want int
	}{
		{"everything", Query{}, 3},
		{"terms only", Query{Terms: []string{"alpha"}}, 2},
		{"attributes only counts documents not rows", Query{Filter: types.AttributeFilter{types.KindSpeaker: {"X"}}}, 2},
		{"attributes and terms", Query{Filter: types.AttributeFilter{types.KindSpeaker: {"X"}}, Terms: []string{"three"}}, 1},
		{"unknown value", Query{Filter: types.AttributeFilter{types.KindSpeaker: {"nobody"}}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := storage.Count(ctx, "quote", tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestLoadAttributes_Empty(t *testing.T) {
	storage := setupTestDB(t)
	// Returns before touching the collection, connected or not
	attrs, err := storage.LoadAttributes(context.Background(), "quote", nil)
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestLoadAttributes_Batch(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	a := insert(t, storage, "quote", "a", speaker("A"), mention("M"))
	b := insert(t, storage, "quote", "b", speaker("B"))
	insert(t, storage, "quote", "c", speaker("C"))

	attrs, err := storage.LoadAttributes(ctx, "quote", []int64{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, attrs, 3)
	assert.Equal(t, a.ID, attrs[0].DocumentID)
	assert.Equal(t, a.ID, attrs[1].DocumentID)
	assert.Equal(t, b.ID, attrs[2].DocumentID)
	assert.Equal(t, types.Attribute{Kind: types.KindSpeaker, Value: "B"}, attrs[2].ToTypesAttribute())
}

func TestAttributeStats(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "1", speaker("A"), mention("B"))
	insert(t, storage, "quote", "2", speaker("A"), speaker("A"))
	insert(t, storage, "quote", "3", speaker("B"), types.Attribute{Kind: types.KindSubject, Value: "A"})

	counts, err := storage.AttributeStats(ctx, "quote", []string{types.KindSpeaker, types.KindMention})
	require.NoError(t, err)
	assert.Equal(t, []AttributeCount{
		{Kind: types.KindSpeaker, Value: "A", Count: 2},
		{Kind: types.KindMention, Value: "B", Count: 1},
		{Kind: types.KindSpeaker, Value: "B", Count: 1},
	}, counts)
	for _, c := range counts {
		assert.Greater(t, c.Count, 0)
	}

	none, err := storage.AttributeStats(ctx, "quote", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteMatching(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	gone := insert(t, storage, "quote", "gone", speaker("A"), mention("B"))
	insert(t, storage, "quote", "kept", speaker("B"))

	deleted, err := storage.DeleteMatching(ctx, "quote", types.AttributeFilter{types.KindSpeaker: {"A"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	attrs, err := storage.LoadAttributes(ctx, "quote", []int64{gone.ID})
	require.NoError(t, err)
	assert.Empty(t, attrs, "attributes cascade with their document")

	count, err := storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteMatching_EmptyFilter(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "kept")

	_, err := storage.DeleteMatching(ctx, "quote", types.AttributeFilter{})
	assert.ErrorIs(t, err, ErrEmptyFilter)

	count, err := storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQuery_FilterTooLarge(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "a", speaker("v0"))

	filter := func(n int) types.AttributeFilter {
		values := make([]string, n)
		for i := range values {
			values[i] = fmt.Sprintf("v%d", i)
		}
		return types.AttributeFilter{types.KindSpeaker: values}
	}

	count, err := storage.Count(ctx, "quote", Query{Filter: filter(MaxFilterPairs)})
	require.NoError(t, err)
	assert.Zero(t, count)

	tooLarge := filter(MaxFilterPairs + 1)
	_, err = storage.Count(ctx, "quote", Query{Filter: tooLarge})
	assert.ErrorIs(t, err, ErrFilterTooLarge)
	_, err = storage.QueryOne(ctx, "quote", Query{Filter: tooLarge}, OrderLatest)
	assert.ErrorIs(t, err, ErrFilterTooLarge)
	_, err = storage.QueryMany(ctx, "quote", Query{Filter: tooLarge}, Page{})
	assert.ErrorIs(t, err, ErrFilterTooLarge)
	_, err = storage.DeleteMatching(ctx, "quote", tooLarge)
	assert.ErrorIs(t, err, ErrFilterTooLarge)
}

func TestTruncate(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	doc := insert(t, storage, "quote", "a", speaker("A"))

	require.NoError(t, storage.Truncate(ctx, "quote"))

	count, err := storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	assert.Zero(t, count)
	attrs, err := storage.LoadAttributes(ctx, "quote", []int64{doc.ID})
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestDestroy_EvictsCachedTables(t *testing.T) {
	storage, ctx := setupCollection(t, "quote")
	insert(t, storage, "quote", "a", speaker("A"))

	require.NoError(t, storage.Destroy(ctx, "quote"))
	_, err := storage.Count(ctx, "quote", Query{})
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, storage.Connect(ctx, "quote"))
	count, err := storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	assert.Zero(t, count, "recreated collection starts empty")
}

func TestCollectionsAreIsolated(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, storage.Connect(ctx, "quote"))
	require.NoError(t, storage.Connect(ctx, "limerick"))

	insert(t, storage, "quote", "q", speaker("A"))
	insert(t, storage, "limerick", "l1")
	insert(t, storage, "limerick", "l2")

	q, err := storage.Count(ctx, "quote", Query{})
	require.NoError(t, err)
	l, err := storage.Count(ctx, "limerick", Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, q)
	assert.Equal(t, 2, l)
}

func TestCatalog(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	info := &CollectionInfo{Name: "quote", NotFoundMessage: "No quotes."}
	require.NoError(t, storage.RegisterCollection(ctx, info))
	assert.False(t, info.CreatedAt.IsZero())

	require.NoError(t, storage.RegisterCollection(ctx, &CollectionInfo{Name: "limerick"}))
	require.NoError(t, storage.RegisterCollection(ctx, &CollectionInfo{Name: "quote", NotFoundMessage: "Still none."}))

	infos, err := storage.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "limerick", infos[0].Name)
	assert.Equal(t, "quote", infos[1].Name)
	assert.Equal(t, "Still none.", infos[1].NotFoundMessage)

	kept := &CollectionInfo{Name: "quote"}
	require.NoError(t, storage.RegisterCollection(ctx, kept))
	assert.Equal(t, "Still none.", kept.NotFoundMessage)

	require.NoError(t, storage.ForgetCollection(ctx, "quote"))
	infos, err = storage.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	err = storage.RegisterCollection(ctx, &CollectionInfo{Name: "Bad Name"})
	assert.ErrorIs(t, err, ErrInvalidCollectionName)
}
