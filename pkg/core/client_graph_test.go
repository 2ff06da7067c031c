package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/core"
	"github.com/engram-ai/engram-go/pkg/graphstore"
)

func newGraphTestClient(t *testing.T, responses ...string) *core.Client {
	t.Helper()

	dir := t.TempDir()
	config := &core.Config{
		LLM:      core.LLMConfig{Provider: "scripted"},
		Embedder: core.EmbedderConfig{Provider: "mock", Dimensions: 64},
		VectorStore: core.VectorStoreConfig{
			Provider: "sqlite",
			DBPath:   filepath.Join(dir, "memories.db"),
		},
		GraphStore: &core.GraphStoreConfig{
			Provider: "sqlite",
			DBPath:   filepath.Join(dir, "graph.db"),
		},
	}

	client, err := core.NewClientWithProviders(config, core.Providers{
		LLM: &scriptedLLM{responses: responses},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAddWritesGraphTriples(t *testing.T) {
	client := newGraphTestClient(t,
		`{"facts": ["Sister Maria lives in Porto"]}`,
		`{"memory": [{"text": "Sister Maria lives in Porto", "event": "ADD"}]}`,
		`{"relations": [
			{"source": "maria", "source_type": "person", "relationship": "lives_in", "destination": "porto", "destination_type": "city"},
			{"source": "bob", "source_type": "person", "relationship": "has_sister", "destination": "maria", "destination_type": "person"}
		]}`,
	)
	ctx := context.Background()

	result, err := client.Add(ctx, userMessage("My sister Maria lives in Porto"), core.WithUserID("bob"))
	require.NoError(t, err)
	require.NotNil(t, result.Relations)
	assert.Len(t, result.Relations.Added, 2)
	assert.Empty(t, result.Relations.Deleted)
}

func TestGraphConflictOverwrites(t *testing.T) {
	client := newGraphTestClient(t,
		`{"facts": ["Maria lives in Porto"]}`,
		`{"memory": [{"text": "Maria lives in Porto", "event": "ADD"}]}`,
		`{"relations": [{"source": "maria", "source_type": "person", "relationship": "lives_in", "destination": "porto", "destination_type": "city"}]}`,
		`{"facts": ["Maria moved to Braga"]}`,
		`{"memory": [{"id": "0", "text": "Maria lives in Braga", "event": "UPDATE", "old_memory": "Maria lives in Porto"}]}`,
		`{"relations": [{"source": "maria", "source_type": "person", "relationship": "lives_in", "destination": "braga", "destination_type": "city"}]}`,
	)
	ctx := context.Background()

	_, err := client.Add(ctx, userMessage("Maria lives in Porto"), core.WithUserID("bob"))
	require.NoError(t, err)

	result, err := client.Add(ctx, userMessage("Maria moved to Braga"), core.WithUserID("bob"))
	require.NoError(t, err)
	require.NotNil(t, result.Relations)
	require.Len(t, result.Relations.Added, 1)
	assert.Equal(t, "braga", result.Relations.Added[0].Destination)
	// Same source and relationship, different destination: the old
	// edge is overwritten, not kept alongside.
	require.Len(t, result.Relations.Deleted, 1)
	assert.Equal(t, "porto", result.Relations.Deleted[0].Destination)
}

func TestSearchReturnsGraphRelations(t *testing.T) {
	client := newGraphTestClient(t,
		`{"facts": ["Maria lives in Porto"]}`,
		`{"memory": [{"text": "Maria lives in Porto", "event": "ADD"}]}`,
		`{"relations": [{"source": "maria", "source_type": "person", "relationship": "lives_in", "destination": "porto", "destination_type": "city"}]}`,
		`{"entities": [{"entity": "maria", "entity_type": "person"}]}`,
	)
	ctx := context.Background()

	_, err := client.Add(ctx, userMessage("Maria lives in Porto"), core.WithUserID("bob"))
	require.NoError(t, err)

	result, err := client.Search(ctx, "where does Maria live?", core.WithUserIDForSearch("bob"))
	require.NoError(t, err)
	require.Len(t, result.Relations, 1)
	assert.Equal(t, "maria", result.Relations[0].Source)
	assert.Equal(t, "lives_in", result.Relations[0].Relationship)
	assert.Equal(t, "porto", result.Relations[0].Destination)
}

// failingGraphStore rejects writes, everything else succeeds empty.
type failingGraphStore struct{}

func (f *failingGraphStore) Upsert(context.Context, []graphstore.Triple, *graphstore.Filters) (*graphstore.UpsertResult, error) {
	return nil, errors.New("graph backend down")
}

func (f *failingGraphStore) Search(context.Context, []string, *graphstore.Filters, int) ([]graphstore.Triple, error) {
	return nil, nil
}

func (f *failingGraphStore) GetAll(context.Context, *graphstore.Filters, int) ([]graphstore.Triple, error) {
	return nil, nil
}

func (f *failingGraphStore) DeleteAll(context.Context, *graphstore.Filters) error { return nil }

func (f *failingGraphStore) Reset(context.Context) error { return nil }

func (f *failingGraphStore) Close() error { return nil }

func TestAddPropagatesGraphWriteFailure(t *testing.T) {
	dir := t.TempDir()
	config := &core.Config{
		LLM:      core.LLMConfig{Provider: "scripted"},
		Embedder: core.EmbedderConfig{Provider: "mock", Dimensions: 64},
		VectorStore: core.VectorStoreConfig{
			Provider: "sqlite",
			DBPath:   filepath.Join(dir, "memories.db"),
		},
	}
	client, err := core.NewClientWithProviders(config, core.Providers{
		LLM: &scriptedLLM{responses: []string{
			`{"facts": ["Maria lives in Porto"]}`,
			`{"memory": [{"text": "Maria lives in Porto", "event": "ADD"}]}`,
			`{"relations": [{"source": "maria", "relationship": "lives_in", "destination": "porto"}]}`,
		}},
		GraphStore: &failingGraphStore{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	_, err = client.Add(ctx, userMessage("Maria lives in Porto"), core.WithUserID("bob"))
	require.Error(t, err)
	assert.Equal(t, core.KindBackend, core.KindOf(err))

	// The vector write landed before the graph failed and stays put.
	memories, err := client.GetAll(ctx, core.WithUserIDForGetAll("bob"))
	require.NoError(t, err)
	assert.Len(t, memories, 1)
}

func TestAddToleratesGraphExtractionFailure(t *testing.T) {
	// The scripted queue runs dry before the triple extraction call,
	// which fails it with a provider error.
	client := newGraphTestClient(t,
		`{"facts": ["Maria lives in Porto"]}`,
		`{"memory": [{"text": "Maria lives in Porto", "event": "ADD"}]}`,
	)
	ctx := context.Background()

	result, err := client.Add(ctx, userMessage("Maria lives in Porto"), core.WithUserID("bob"))
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Nil(t, result.Relations)
}

func TestGraphScopeIsolation(t *testing.T) {
	client := newGraphTestClient(t,
		`{"facts": ["Maria lives in Porto"]}`,
		`{"memory": [{"text": "Maria lives in Porto", "event": "ADD"}]}`,
		`{"relations": [{"source": "maria", "source_type": "person", "relationship": "lives_in", "destination": "porto", "destination_type": "city"}]}`,
		`{"entities": [{"entity": "maria", "entity_type": "person"}]}`,
	)
	ctx := context.Background()

	_, err := client.Add(ctx, userMessage("Maria lives in Porto"), core.WithUserID("bob"))
	require.NoError(t, err)

	// A different user sees no triples even for the same entity.
	result, err := client.Search(ctx, "where does Maria live?", core.WithUserIDForSearch("eve"))
	require.NoError(t, err)
	assert.Empty(t, result.Relations)
}
