package docset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docstore-mcp/internal/storage"
)

func newRegistry(t *testing.T, backend storage.Backend) *Registry {
	t.Helper()
	r, err := NewRegistry(backend, RegistryOptions{Defaults: Options{NotFoundMessage: "Nothing."}})
	require.NoError(t, err)
	return r
}

func TestNewRegistry_NoStorage(t *testing.T) {
	_, err := NewRegistry(nil, RegistryOptions{})
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestRegistry_OpenReusesHandle(t *testing.T) {
	backend := newBackend(t)
	r := newRegistry(t, backend)
	ctx := context.Background()

	first, err := r.Open(ctx, "quote", "No quote found.")
	require.NoError(t, err)
	second, err := r.Open(ctx, "quote", "")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "No quote found.", first.NullDocument().Body())

	got, err := r.Get("quote")
	require.NoError(t, err)
	assert.Same(t, first, got)

	// A message given to an open handle is applied and catalogued
	third, err := r.Open(ctx, "quote", "Still no quote.")
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, "Still no quote.", first.NullDocument().Body())
	doc, err := first.RandomMatching(ctx, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "Still no quote.", doc.Body())

	infos, err := r.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Still no quote.", infos[0].NotFoundMessage)

	_, err = r.Get("limerick")
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = r.Open(ctx, "Bad Name", "")
	assert.ErrorIs(t, err, storage.ErrInvalidCollectionName)
}

func TestRegistry_NamesAndCatalog(t *testing.T) {
	r := newRegistry(t, newBackend(t))
	ctx := context.Background()

	for _, name := range []string{"quote", "fact", "limerick"} {
		_, err := r.Open(ctx, name, "")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"fact", "limerick", "quote"}, r.Names())

	infos, err := r.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "fact", infos[0].Name)
}

func TestRegistry_Destroy(t *testing.T) {
	r := newRegistry(t, newBackend(t))
	ctx := context.Background()

	set, err := r.Open(ctx, "quote", "")
	require.NoError(t, err)
	add(t, set, "soon gone")

	require.NoError(t, r.Destroy(ctx, "quote"))
	assert.Empty(t, r.Names())

	infos, err := r.Catalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = set.CountMatching(ctx, nil, "")
	assert.ErrorIs(t, err, ErrDestroyed)

	// Reopening starts from an empty collection
	reopened, err := r.Open(ctx, "quote", "")
	require.NoError(t, err)
	count, err := reopened.CountMatching(ctx, nil, "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegistry_DestroyUnopened(t *testing.T) {
	r := newRegistry(t, newBackend(t))
	assert.NoError(t, r.Destroy(context.Background(), "never"))
}

func TestRegistry_Restore(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	first := newRegistry(t, backend)
	quotes, err := first.Open(ctx, "quote", "No quote found.")
	require.NoError(t, err)
	add(t, quotes, "persisted", speaker("A"))
	_, err = first.Open(ctx, "fact", "")
	require.NoError(t, err)

	second := newRegistry(t, backend)
	assert.Empty(t, second.Names())
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, []string{"fact", "quote"}, second.Names())

	restored, err := second.Get("quote")
	require.NoError(t, err)
	assert.Equal(t, "No quote found.", restored.NullDocument().Body())
	count, err := restored.CountMatching(ctx, nil, "persisted")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	fact, err := second.Get("fact")
	require.NoError(t, err)
	assert.Equal(t, "Nothing.", fact.NullDocument().Body())
}
