package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/graphstore"
	"github.com/engram-ai/engram-go/pkg/graphstore/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "graph.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func aliceScope() *graphstore.Filters {
	return &graphstore.Filters{UserID: "alice"}
}

func livesIn(city string) graphstore.Triple {
	return graphstore.Triple{
		Source:          "maria",
		SourceType:      "person",
		Relationship:    "lives_in",
		Destination:     city,
		DestinationType: "city",
	}
}

func TestUpsertAddsTriples(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")}, aliceScope())
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Empty(t, result.Deleted)

	triples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "porto", triples[0].Destination)
	assert.Equal(t, "person", triples[0].SourceType)
}

func TestUpsertExactDuplicateIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")}, aliceScope())
	require.NoError(t, err)

	result, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")}, aliceScope())
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Deleted)

	triples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	assert.Len(t, triples, 1)
}

func TestUpsertConflictOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")}, aliceScope())
	require.NoError(t, err)

	result, err := store.Upsert(ctx, []graphstore.Triple{livesIn("braga")}, aliceScope())
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "braga", result.Added[0].Destination)
	require.Len(t, result.Deleted, 1)
	assert.Equal(t, "porto", result.Deleted[0].Destination)

	triples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "braga", triples[0].Destination)
}

func TestUpsertDifferentRelationshipsCoexist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []graphstore.Triple{
		livesIn("porto"),
		{Source: "maria", Relationship: "works_at", Destination: "studio"},
	}, aliceScope())
	require.NoError(t, err)

	triples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	assert.Len(t, triples, 2)
}

func TestSearchMatchesSourceOrDestination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []graphstore.Triple{
		livesIn("porto"),
		{Source: "bob", Relationship: "visited", Destination: "porto"},
		{Source: "carol", Relationship: "likes", Destination: "tea"},
	}, aliceScope())
	require.NoError(t, err)

	triples, err := store.Search(ctx, []string{"porto"}, aliceScope(), 10)
	require.NoError(t, err)
	assert.Len(t, triples, 2)

	triples, err = store.Search(ctx, []string{"MARIA"}, aliceScope(), 10)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "maria", triples[0].Source)

	triples, err = store.Search(ctx, nil, aliceScope(), 10)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestScopeIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")}, aliceScope())
	require.NoError(t, err)
	_, err = store.Upsert(ctx, []graphstore.Triple{livesIn("lisbon")}, &graphstore.Filters{UserID: "bob"})
	require.NoError(t, err)

	// Same source and relationship under a different scope does not
	// trigger the overwrite.
	aliceTriples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	require.Len(t, aliceTriples, 1)
	assert.Equal(t, "porto", aliceTriples[0].Destination)

	require.NoError(t, store.DeleteAll(ctx, aliceScope()))

	aliceTriples, err = store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	assert.Empty(t, aliceTriples)

	bobTriples, err := store.GetAll(ctx, &graphstore.Filters{UserID: "bob"}, 10)
	require.NoError(t, err)
	assert.Len(t, bobTriples, 1)
}

func TestPartialScopeReachesFullerScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Written with a run component on top of the user scope.
	_, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")},
		&graphstore.Filters{UserID: "alice", RunID: "run-1"})
	require.NoError(t, err)

	// A user-only scope still reaches the triple.
	triples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	require.Len(t, triples, 1)

	triples, err = store.Search(ctx, []string{"maria"}, aliceScope(), 10)
	require.NoError(t, err)
	assert.Len(t, triples, 1)

	require.NoError(t, store.DeleteAll(ctx, aliceScope()))

	triples, err = store.GetAll(ctx, &graphstore.Filters{UserID: "alice", RunID: "run-1"}, 10)
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestResetDropsAllScopes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []graphstore.Triple{livesIn("porto")}, aliceScope())
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))

	triples, err := store.GetAll(ctx, aliceScope(), 10)
	require.NoError(t, err)
	assert.Empty(t, triples)
}
