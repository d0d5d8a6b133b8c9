package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThenResolveInvokesResumeOnce(t *testing.T) {
	var mu sync.Mutex
	var calls []Resolution
	m := NewManager(func(ctx context.Context, res Resolution) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, res)
	})

	id, err := m.Create("wf-1", "architecture_proposal", map[string]any{"plan": "x"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, m.ListPending(), 1)

	m.Resolve(context.Background(), "wf-1", Approved, "", nil)
	m.Resolve(context.Background(), "wf-1", Approved, "", nil) // duplicate, must be a no-op

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, Approved, calls[0].Decision)
	assert.Empty(t, m.ListPending())
}

func TestResolveUnknownWorkflowIsNoop(t *testing.T) {
	called := false
	m := NewManager(func(ctx context.Context, res Resolution) { called = true })

	m.Resolve(context.Background(), "unknown", Approved, "", nil)
	assert.False(t, called)
}

func TestRestoreReinstatesPendingWithoutResumeCall(t *testing.T) {
	called := false
	m := NewManager(func(ctx context.Context, res Resolution) { called = true })

	created := time.Now().Add(-time.Minute)
	timeout := created.Add(time.Hour)
	m.Restore(Pending{
		ApprovalID:      "approval-1",
		WorkflowID:      "wf-1",
		ActionType:      "architecture_proposal",
		ProposalPayload: map[string]any{"plan": "x"},
		CreatedAt:       created,
		TimeoutAt:       timeout,
	})

	assert.False(t, called)
	assert.Len(t, m.ListPending(), 1)

	m.Resolve(context.Background(), "wf-1", Approved, "", nil)
	assert.True(t, called)
	assert.Empty(t, m.ListPending())
}

func TestTimeoutSweepRejectsExpired(t *testing.T) {
	var got Resolution
	m := NewManager(func(ctx context.Context, res Resolution) { got = res })

	_, err := m.Create("wf-1", "architecture_proposal", nil, -time.Second)
	require.NoError(t, err)

	m.TimeoutSweep(context.Background())

	assert.Equal(t, Rejected, got.Decision)
	assert.True(t, got.TimedOut)
	assert.Empty(t, m.ListPending())
}
