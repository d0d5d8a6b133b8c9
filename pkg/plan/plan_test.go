package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendStepAssignsSequentialIDs(t *testing.T) {
	var p Plan
	p = AppendStep(p, Step{Agent: "architect", Task: "design"})
	p = AppendStep(p, Step{Agent: "codesmith", Task: "implement"})

	require.Len(t, p, 2)
	assert.Equal(t, 1, p[0].ID)
	assert.Equal(t, 2, p[1].ID)
	assert.Equal(t, StepPending, p[0].Status)
}

func TestAppendStepDoesNotMutateCaller(t *testing.T) {
	base := AppendStep(nil, Step{Agent: "architect"})
	extended := AppendStep(base, Step{Agent: "codesmith"})

	assert.Len(t, base, 1)
	assert.Len(t, extended, 2)
}

func TestNextEligibleRespectsDependencies(t *testing.T) {
	p := Plan{
		{ID: 1, Agent: "architect", Status: StepCompleted},
		{ID: 2, Agent: "codesmith", Status: StepPending, Dependencies: []int{1}},
		{ID: 3, Agent: "reviewer", Status: StepPending, Dependencies: []int{2}},
	}

	next, ok := NextEligible(p)
	require.True(t, ok)
	assert.Equal(t, 2, next.ID)
}

func TestNextEligibleDeadlock(t *testing.T) {
	p := Plan{
		{ID: 1, Agent: "codesmith", Status: StepPending, Dependencies: []int{99}},
	}
	_, ok := NextEligible(p)
	assert.False(t, ok)
	assert.True(t, AnyPending(p))
}

func TestNextEligibleTreatsSkippedDependencyAsSatisfied(t *testing.T) {
	p := Plan{
		{ID: 1, Agent: "reviewer", Status: StepCompleted},
		{ID: 2, Agent: "fixer", Status: StepSkipped, Dependencies: []int{1}},
		{ID: 3, Agent: "docbot", Status: StepPending, Dependencies: []int{2}},
	}

	next, ok := NextEligible(p)
	require.True(t, ok)
	assert.Equal(t, 3, next.ID)
}

func TestAnyInProgress(t *testing.T) {
	p := Plan{{ID: 1, Status: StepInProgress}}
	assert.True(t, AnyInProgress(p))
	cur, ok := InProgress(p)
	require.True(t, ok)
	assert.Equal(t, 1, cur.ID)
}

func TestParallelBatchGroupsSameDependencySet(t *testing.T) {
	p := Plan{
		{ID: 1, Status: StepCompleted},
		{ID: 2, Status: StepPending, Dependencies: []int{1}},
		{ID: 3, Status: StepPending, Dependencies: []int{1}},
		{ID: 4, Status: StepPending, Dependencies: []int{2}},
	}
	batch := ParallelBatch(p)
	ids := []int{batch[0].ID}
	for _, s := range batch[1:] {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []int{2, 3}, ids)
}

func TestSetReplacesStepImmutably(t *testing.T) {
	p := Plan{{ID: 1, Status: StepPending}}
	updated := Set(p, Step{ID: 1, Status: StepCompleted})

	assert.Equal(t, StepPending, p[0].Status)
	assert.Equal(t, StepCompleted, updated[0].Status)
}
