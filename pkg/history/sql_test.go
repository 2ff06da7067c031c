package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/history"
)

func newTestLedger(t *testing.T) *history.SQLLedger {
	t.Helper()
	ledger, err := history.NewSQLLedger(&history.SQLConfig{
		Driver: history.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func strPtr(s string) *string { return &s }

func TestAppendAssignsIDs(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	first := &history.Record{
		MemoryID:  "m1",
		NewValue:  strPtr("likes tea"),
		Event:     "ADD",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, ledger.Append(ctx, first))
	assert.NotZero(t, first.ID)

	second := &history.Record{
		MemoryID:  "m1",
		PrevValue: strPtr("likes tea"),
		NewValue:  strPtr("likes green tea"),
		Event:     "UPDATE",
		CreatedAt: first.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, ledger.Append(ctx, second))
	// Snowflake IDs are monotonic, so later records sort after
	// earlier ones.
	assert.Greater(t, second.ID, first.ID)
}

func TestListReturnsLifecycleInOrder(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	created := time.Now().UTC()
	records := []*history.Record{
		{MemoryID: "m1", NewValue: strPtr("v1"), Event: "ADD", CreatedAt: created, UpdatedAt: created},
		{MemoryID: "m1", PrevValue: strPtr("v1"), NewValue: strPtr("v2"), Event: "UPDATE", CreatedAt: created, UpdatedAt: created.Add(time.Second)},
		{MemoryID: "m1", PrevValue: strPtr("v2"), Event: "DELETE", CreatedAt: created, UpdatedAt: created.Add(2 * time.Second), IsDeleted: true},
		{MemoryID: "other", NewValue: strPtr("unrelated"), Event: "ADD", CreatedAt: created, UpdatedAt: created},
	}
	for _, r := range records {
		require.NoError(t, ledger.Append(ctx, r))
	}

	got, err := ledger.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "ADD", got[0].Event)
	assert.Nil(t, got[0].PrevValue)
	require.NotNil(t, got[0].NewValue)
	assert.Equal(t, "v1", *got[0].NewValue)

	assert.Equal(t, "UPDATE", got[1].Event)
	require.NotNil(t, got[1].PrevValue)
	assert.Equal(t, "v1", *got[1].PrevValue)

	assert.Equal(t, "DELETE", got[2].Event)
	assert.Nil(t, got[2].NewValue)
	assert.True(t, got[2].IsDeleted)
}

func TestListUnknownMemoryIsEmpty(t *testing.T) {
	ledger := newTestLedger(t)

	got, err := ledger.List(context.Background(), "never-existed")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestActorAndRoleRoundTrip(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	record := &history.Record{
		MemoryID:  "m1",
		NewValue:  strPtr("likes tea"),
		Event:     "ADD",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		ActorID:   "alice",
		Role:      "user",
	}
	require.NoError(t, ledger.Append(ctx, record))

	got, err := ledger.List(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].ActorID)
	assert.Equal(t, "user", got[0].Role)
}

func TestResetClearsRecords(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Append(ctx, &history.Record{
		MemoryID: "m1", NewValue: strPtr("v1"), Event: "ADD",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, ledger.Reset(ctx))

	got, err := ledger.List(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
