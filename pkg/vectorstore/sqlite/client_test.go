package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/vectorstore"
	"github.com/engram-ai/engram-go/pkg/vectorstore/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath:             filepath.Join(t.TempDir(), "vectors.db"),
		EmbeddingModelDims: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func point(id, userID, text string, vector []float32) vectorstore.Point {
	return vectorstore.Point{
		ID:     id,
		Vector: vector,
		Payload: vectorstore.Payload{
			UserID:    userID,
			Text:      text,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := point("m1", "alice", "likes tea", []float32{1, 0, 0})
	p.Payload.Metadata = map[string]interface{}{"source": "chat"}
	require.NoError(t, store.Insert(ctx, []vectorstore.Point{p}))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "likes tea", got.Payload.Text)
	assert.Equal(t, "alice", got.Payload.UserID)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)
	assert.Equal(t, "chat", got.Payload.Metadata["source"])
}

func TestGetMissingReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, []vectorstore.Point{point("m1", "alice", "v1", []float32{1, 0, 0})}))
	updated := point("m1", "alice", "v2", []float32{0, 1, 0})
	updated.Payload.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Insert(ctx, []vectorstore.Point{updated}))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Payload.Text)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, []vectorstore.Point{
		point("exact", "alice", "exact match", []float32{1, 0, 0}),
		point("close", "alice", "close match", []float32{0.9, 0.1, 0}),
		point("far", "alice", "far away", []float32{0, 0, 1}),
	}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{
		Limit:   2,
		Filters: vectorstore.Filters{UserID: "alice"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchHonorsScopeFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, []vectorstore.Point{
		point("a", "alice", "alice memory", []float32{1, 0, 0}),
		point("b", "bob", "bob memory", []float32{1, 0, 0}),
	}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{
		Limit:   10,
		Filters: vectorstore.Filters{UserID: "bob"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestSearchMetadataFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p1 := point("a", "alice", "from chat", []float32{1, 0, 0})
	p1.Payload.Metadata = map[string]interface{}{"source": "chat"}
	p2 := point("b", "alice", "from import", []float32{1, 0, 0})
	p2.Payload.Metadata = map[string]interface{}{"source": "import"}
	require.NoError(t, store.Insert(ctx, []vectorstore.Point{p1, p2}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{
		Limit: 10,
		Filters: vectorstore.Filters{
			UserID:   "alice",
			Metadata: map[string]interface{}{"source": "import"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestUpdateVectorOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, []vectorstore.Point{point("m1", "alice", "text", []float32{1, 0, 0})}))
	require.NoError(t, store.Update(ctx, "m1", []float32{0, 1, 0}, nil))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
	assert.Equal(t, "text", got.Payload.Text)
}

func TestUpdateMissingFails(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(context.Background(), "nope", []float32{1, 0, 0}, nil)
	assert.Error(t, err)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, []vectorstore.Point{
		point("a", "alice", "one", []float32{1, 0, 0}),
		point("b", "alice", "two", []float32{0, 1, 0}),
		point("c", "bob", "three", []float32{0, 0, 1}),
	}))

	require.NoError(t, store.Delete(ctx, "a"))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, store.Delete(ctx, "a"))

	require.NoError(t, store.DeleteAll(ctx, &vectorstore.Filters{UserID: "alice"}))

	remaining, err := store.List(ctx, &vectorstore.ListOptions{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c", remaining[0].ID)
}

func TestListLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(ctx, []vectorstore.Point{point(id, "alice", id, []float32{1, 0, 0})}))
	}

	results, err := store.List(ctx, &vectorstore.ListOptions{
		Limit:   2,
		Filters: vectorstore.Filters{UserID: "alice"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestResetDropsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, []vectorstore.Point{point("a", "alice", "one", []float32{1, 0, 0})}))
	require.NoError(t, store.Reset(ctx))

	results, err := store.List(ctx, &vectorstore.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	// The store stays usable after a reset.
	require.NoError(t, store.Insert(ctx, []vectorstore.Point{point("b", "bob", "two", []float32{0, 1, 0})}))
}
