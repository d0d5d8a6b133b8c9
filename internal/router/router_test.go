package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/state"
)

func TestRouteFreshWorkflowGoesToPlanner(t *testing.T) {
	s := state.New("wf-1", "q")

	d := Route(s)
	assert.Equal(t, Planner, d.Label)
}

func TestRouteReplanTakesPrecedence(t *testing.T) {
	s := state.New("wf-1", "q")
	s.NeedsReplan = true
	s.Status = state.StatusWaitingApproval

	d := Route(s)
	assert.Equal(t, Planner, d.Label)
}

func TestRouteApprovalSuspension(t *testing.T) {
	s := state.New("wf-1", "q")
	s.Status = state.StatusWaitingApproval

	d := Route(s)
	assert.Equal(t, Approval, d.Label)
}

func TestRouteInProgressNeverEnds(t *testing.T) {
	s := state.New("wf-1", "q")
	s.Status = state.StatusExecuting
	s.ExecutionPlan = plan.Plan{{ID: 1, Agent: "fixer", Status: plan.StepInProgress}}

	d := Route(s)
	assert.Equal(t, Label("fixer"), d.Label)
	assert.NotEqual(t, End, d.Label)
}

func TestRouteNextEligibleBreaksTiesBySmallestID(t *testing.T) {
	s := state.New("wf-1", "q")
	s.Status = state.StatusExecuting
	s.ExecutionPlan = plan.Plan{
		{ID: 1, Agent: "reviewer", Status: plan.StepPending},
		{ID: 2, Agent: "fixer", Status: plan.StepPending},
	}

	d := Route(s)
	assert.Equal(t, Label("reviewer"), d.Label)
	assert.Equal(t, 1, d.Step.ID)
}

func TestRouteDeadlock(t *testing.T) {
	s := state.New("wf-1", "q")
	s.Status = state.StatusExecuting
	s.ExecutionPlan = plan.Plan{
		{ID: 1, Agent: "codesmith", Status: plan.StepPending, Dependencies: []int{3}},
	}

	d := Route(s)
	assert.Equal(t, End, d.Label)
	assert.True(t, d.Deadlock)
}

func TestRouteEnd(t *testing.T) {
	s := state.New("wf-1", "q")
	s.Status = state.StatusExecuting
	s.ExecutionPlan = plan.Plan{{ID: 1, Status: plan.StepCompleted}}

	d := Route(s)
	assert.Equal(t, End, d.Label)
	assert.False(t, d.Deadlock)
}
