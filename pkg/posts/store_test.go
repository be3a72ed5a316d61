package posts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, Post{Title: "Hello", Content: "<p>World</p>", Status: StatusPublish, AuthorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Len(t, created.GUID, 21)
	assert.False(t, created.CreatedAt.IsZero())

	loaded, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, created.CreatedAt.Equal(loaded.CreatedAt))
	loaded.CreatedAt = created.CreatedAt
	assert.Equal(t, created, loaded)
}

func TestSQLiteStore_DefaultsToDraft(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(context.Background(), Post{Title: "T", Content: "C"})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, created.Status)
}

func TestSQLiteStore_RejectsUnknownStatus(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(context.Background(), Post{Title: "T", Content: "C", Status: "archived"})
	assert.Error(t, err)
}

func TestSQLiteStore_UniqueIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	guids := map[string]bool{}
	for i := 0; i < 10; i++ {
		p, err := store.Create(ctx, Post{Title: "T", Content: "C"})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), p.ID)
		assert.False(t, guids[p.GUID])
		guids[p.GUID] = true
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestSQLiteStore_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	created, err := store.Create(context.Background(), Post{Title: "T", Content: "C"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.GUID, loaded.GUID)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}
