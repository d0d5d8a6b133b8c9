package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()

	s := New("wf-1", "fix the login bug")
	s.Status = StatusExecuting
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)
	assert.Equal(t, StatusExecuting, loaded.Status)
}

func TestMapStoreLoadMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()

	_, err := store.Load(ctx, "missing")
	require.Error(t, err)
}

func TestMapStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()

	a := New("wf-a", "q")
	a.Status = StatusWaitingApproval
	b := New("wf-b", "q")
	b.Status = StatusExecuting

	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	pending, err := store.ListPendingApproval(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wf-a"}, pending)
}

func TestMapStoreSaveIsolatesCallerMutation(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore()

	s := New("wf-1", "q")
	require.NoError(t, store.Save(ctx, s))

	s.Status = StatusFailed // mutate the caller's copy after saving
	loaded, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPlanning, loaded.Status)
}

func TestSQLiteStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	s := New("wf-sqlite", "review the PR")
	s.ExecutionPlan = nil
	s.Status = StatusWaitingApproval
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "wf-sqlite")
	require.NoError(t, err)
	assert.Equal(t, "review the PR", loaded.UserQuery)
	assert.Equal(t, StatusWaitingApproval, loaded.Status)

	pending, err := store.ListPendingApproval(ctx)
	require.NoError(t, err)
	assert.Contains(t, pending, "wf-sqlite")
}

func TestSQLiteStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	s := New("wf-1", "q")
	require.NoError(t, store.Save(ctx, s))

	s.Status = StatusCompleted
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loaded.Status)
}
