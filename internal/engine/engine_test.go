// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hectorflow/orchestrator/config"
	"github.com/hectorflow/orchestrator/internal/approval"
	"github.com/hectorflow/orchestrator/internal/planner"
	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/registry"
	"github.com/hectorflow/orchestrator/pkg/state"
)

func engineConfigs() (config.EngineConfig, config.ApprovalConfig) {
	var ec config.EngineConfig
	ec.SetDefaults()
	var ac config.ApprovalConfig
	ac.SetDefaults()
	return ec, ac
}

func newTestEngine(t *testing.T, mode string, execs map[string]agents.Executor) (*Engine, *registry.BaseRegistry[agents.Executor]) {
	t.Helper()
	reg := registry.NewBaseRegistry[agents.Executor]()
	for name, ex := range execs {
		require.NoError(t, reg.Register(name, ex))
	}

	var pc config.PlannerConfig
	pc.SetDefaults()
	pc.Mode = mode

	pl := planner.New(pc, reg, nil)
	ec, ac := engineConfigs()
	return New(state.NewMapStore(), reg, pl, ec, ac), reg
}

func okExecutor(name string) agents.Executor {
	return agents.Func{AgentName: name, Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{Status: agents.StatusSuccess, Content: name + " done"}, nil
	}}
}

func TestEngineSimpleBugFixHappyPath(t *testing.T) {
	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{
		"fixer": okExecutor("fixer"),
	})

	s, err := e.Start(context.Background(), "wf-1", "fix bug in auth")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	require.Len(t, s.ExecutionPlan, 1)
	assert.Equal(t, plan.StepCompleted, s.ExecutionPlan[0].Status)
	assert.Equal(t, "fixer done", s.ExecutionPlan[0].Result)
}

func TestEngineTemplateChainSkipsFixerWhenReviewerIsClean(t *testing.T) {
	var order []string
	record := func(name string) agents.Executor {
		return agents.Func{AgentName: name, Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
			order = append(order, name)
			return agents.Result{Status: agents.StatusSuccess, Content: name}, nil
		}}
	}

	e, _ := newTestEngine(t, "template", map[string]agents.Executor{
		"architect": record("architect"),
		"codesmith": record("codesmith"),
		"reviewer":  record("reviewer"),
		"fixer":     record("fixer"),
	})

	s, err := e.Start(context.Background(), "wf-2", "Entwickle eine Tetris Webapplikation")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	require.Len(t, s.ExecutionPlan, 4)
	// The reviewer reported no issues, so the trailing fixer is marked
	// skipped instead of being dispatched.
	assert.Equal(t, []string{"architect", "codesmith", "reviewer"}, order)
	assert.Equal(t, plan.StepSkipped, s.ExecutionPlan[3].Status)
	assert.Equal(t, "skipped: no issues found", s.ExecutionPlan[3].Result)
}

func TestEngineTemplateFixerRunsWhenReviewerFlagsIssues(t *testing.T) {
	reviewer := agents.Func{AgentName: "reviewer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "found an issue",
			Hints:   &agents.CollaborationHints{NeedsReplan: true, SuggestedAgent: "fixer", SuggestedQuery: "fix it"},
		}, nil
	}}
	fixed := map[string]bool{}
	fixer := agents.Func{AgentName: "fixer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		fixed[task.Description] = true
		return agents.Result{Status: agents.StatusSuccess, Content: "patched"}, nil
	}}

	e, _ := newTestEngine(t, "template", map[string]agents.Executor{
		"architect": okExecutor("architect"),
		"codesmith": okExecutor("codesmith"),
		"reviewer":  reviewer,
		"fixer":     fixer,
	})

	s, err := e.Start(context.Background(), "wf-2b", "Entwickle eine Tetris Webapplikation")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	require.Len(t, s.ExecutionPlan, 5)
	// The template's guarded fixer runs (issues were flagged) and the
	// replan appends a second fixer step with the reviewer's task.
	assert.Equal(t, plan.StepCompleted, s.ExecutionPlan[3].Status)
	assert.True(t, fixed["fix it"])
}

func TestEngineReplanCycleInsertsFollowUpStep(t *testing.T) {
	reviewCalls := 0
	reviewer := agents.Func{AgentName: "reviewer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		reviewCalls++
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "found an issue",
			Hints:   &agents.CollaborationHints{NeedsReplan: true, SuggestedAgent: "fixer", SuggestedQuery: "fix the issue"},
		}, nil
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{
		"reviewer": reviewer,
		"fixer":    okExecutor("fixer"),
	})

	s, err := e.Start(context.Background(), "wf-3", "review this code")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	assert.Equal(t, 1, reviewCalls)
	assert.Equal(t, 1, s.ReplanCount)
	require.Len(t, s.ExecutionPlan, 2)
	assert.Equal(t, "reviewer", s.ExecutionPlan[0].Agent)
	assert.Equal(t, "fixer", s.ExecutionPlan[1].Agent)
	assert.Equal(t, plan.StepCompleted, s.ExecutionPlan[1].Status)
}

func TestEngineReviewerFixerReviewerCycle(t *testing.T) {
	reviewerCalls := 0
	reviewer := agents.Func{AgentName: "reviewer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		reviewerCalls++
		if reviewerCalls == 1 {
			return agents.Result{
				Status:  agents.StatusSuccess,
				Content: "found SQL injection",
				Hints:   &agents.CollaborationHints{NeedsReplan: true, SuggestedAgent: "fixer", SuggestedQuery: "Fix SQL injection in auth.py"},
			}, nil
		}
		return agents.Result{Status: agents.StatusSuccess, Content: "clean"}, nil
	}}
	fixerCalls := 0
	fixer := agents.Func{AgentName: "fixer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		fixerCalls++
		if task.Description == "Fix SQL injection in auth.py" {
			return agents.Result{
				Status:  agents.StatusSuccess,
				Content: "patched",
				Hints:   &agents.CollaborationHints{NeedsReplan: true, SuggestedAgent: "reviewer", SuggestedQuery: "Re-review fixed code"},
			}, nil
		}
		return agents.Result{Status: agents.StatusSuccess, Content: "nothing to fix"}, nil
	}}

	e, _ := newTestEngine(t, "template", map[string]agents.Executor{
		"architect": okExecutor("architect"),
		"codesmith": okExecutor("codesmith"),
		"reviewer":  reviewer,
		"fixer":     fixer,
	})

	s, err := e.Start(context.Background(), "wf-cycle", "Entwickle eine Tetris Webapplikation")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	require.Len(t, s.ExecutionPlan, 6)
	assert.Equal(t, "fixer", s.ExecutionPlan[4].Agent)
	assert.Equal(t, "Fix SQL injection in auth.py", s.ExecutionPlan[4].Task)
	assert.Equal(t, "reviewer", s.ExecutionPlan[5].Agent)
	assert.Equal(t, "Re-review fixed code", s.ExecutionPlan[5].Task)
	assert.Equal(t, 2, s.ReplanCount)
}

func TestEngineReplanGuardFailsWorkflowAfterLimit(t *testing.T) {
	loop := agents.Func{AgentName: "reviewer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "again",
			Hints:   &agents.CollaborationHints{NeedsReplan: true, SuggestedAgent: "reviewer", SuggestedQuery: "go again"},
		}, nil
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"reviewer": loop})
	e.cfg.ReplanLoopGuard = 2

	s, err := e.Start(context.Background(), "wf-loop", "review this code")
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, s.Status)
	assert.Greater(t, len(s.Errors), 0)
	assert.Equal(t, "replan loop guard exceeded", s.Errors[len(s.Errors)-1].Message)
}

func TestEngineReplanRejectsUnregisteredAgentButWorkflowStillCompletes(t *testing.T) {
	reviewer := agents.Func{AgentName: "reviewer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "needs a ghost",
			Hints:   &agents.CollaborationHints{NeedsReplan: true, SuggestedAgent: "ghost", SuggestedQuery: "do something"},
		}, nil
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"reviewer": reviewer})

	s, err := e.Start(context.Background(), "wf-4", "review this code")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	require.Len(t, s.ExecutionPlan, 1)
	assert.False(t, s.NeedsReplan)
}

func TestEngineApprovalGateSuspendsThenResumesOnApproval(t *testing.T) {
	architect := agents.Func{AgentName: "architect", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "design doc",
			Metadata: map[string]any{
				"requires_approval": true,
				"action_type":       "architecture_proposal",
				"proposal":          "use a hexagonal layout",
			},
		}, nil
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"architect": architect})

	s, err := e.Start(context.Background(), "wf-5", "design the system architecture")
	require.NoError(t, err)
	assert.Equal(t, state.StatusWaitingApproval, s.Status)
	require.Len(t, e.Approvals().ListPending(), 1)

	e.Approvals().Resolve(context.Background(), "wf-5", approval.Approved, "", nil)

	final, err := e.store.Load(context.Background(), "wf-5")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t, true, final.Context["architecture_approved"])
}

func TestEngineApprovalRejectionTriggersReplanOnResume(t *testing.T) {
	calls := 0
	architect := agents.Func{AgentName: "architect", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		calls++
		if calls == 1 {
			return agents.Result{
				Status:  agents.StatusSuccess,
				Content: "v1 design",
				Metadata: map[string]any{
					"requires_approval": true,
					"action_type":       "architecture_proposal",
					"proposal":          "v1",
				},
			}, nil
		}
		return agents.Result{Status: agents.StatusSuccess, Content: "v2 design"}, nil
	}}

	e, reg := newTestEngine(t, "keyword", map[string]agents.Executor{"architect": architect})
	require.NoError(t, reg.Register("fixer", okExecutor("fixer")))

	s, err := e.Start(context.Background(), "wf-6", "design the system architecture")
	require.NoError(t, err)
	assert.Equal(t, state.StatusWaitingApproval, s.Status)

	e.Approvals().Resolve(context.Background(), "wf-6", approval.Rejected, "use layered design instead", nil)

	final, err := e.store.Load(context.Background(), "wf-6")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t, 2, calls)
	require.Len(t, final.ExecutionPlan, 2)
	assert.Equal(t, "architect", final.ExecutionPlan[1].Agent)
	assert.Equal(t, "use layered design instead", final.ExecutionPlan[1].Task)
}

func TestEngineApprovalTimeoutEndsWorkflowWithoutReplan(t *testing.T) {
	architect := agents.Func{AgentName: "architect", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "design doc",
			Metadata: map[string]any{
				"requires_approval": true,
			},
		}, nil
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"architect": architect})
	e.approvalCfg.TimeoutSeconds = -1 // every approval is already expired

	s, err := e.Start(context.Background(), "wf-timeout", "design the system architecture")
	require.NoError(t, err)
	assert.Equal(t, state.StatusWaitingApproval, s.Status)

	e.Approvals().TimeoutSweep(context.Background())

	final, err := e.store.Load(context.Background(), "wf-timeout")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t, false, final.Context["architecture_approved"])
	require.Len(t, final.ExecutionPlan, 1, "timeout must not replan a revision step")
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "approval timed out", final.Errors[0].Message)
}

func TestEngineApprovalSurvivesRestartBeforeResolve(t *testing.T) {
	architect := agents.Func{AgentName: "architect", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{
			Status:  agents.StatusSuccess,
			Content: "design doc",
			Metadata: map[string]any{
				"requires_approval": true,
				"action_type":       "architecture_proposal",
				"proposal":          "use a hexagonal layout",
			},
		}, nil
	}}

	store := state.NewMapStore()
	reg := registry.NewBaseRegistry[agents.Executor]()
	require.NoError(t, reg.Register("architect", architect))
	var pc config.PlannerConfig
	pc.SetDefaults()
	pc.Mode = "keyword"
	pl := planner.New(pc, reg, nil)
	ec, ac := engineConfigs()

	e1 := New(store, reg, pl, ec, ac)
	s, err := e1.Start(context.Background(), "wf-crash", "design the system architecture")
	require.NoError(t, err)
	assert.Equal(t, state.StatusWaitingApproval, s.Status)
	require.Len(t, e1.Approvals().ListPending(), 1)

	// Simulate a crash: e1 and its in-memory Approval Manager are discarded;
	// a fresh Engine is built over the same durable store and recovers.
	e2 := New(store, reg, pl, ec, ac)
	require.NoError(t, e2.RecoverOnStartup(context.Background()))
	require.Len(t, e2.Approvals().ListPending(), 1, "pending approval must survive restart")

	e2.Approvals().Resolve(context.Background(), "wf-crash", approval.Approved, "", nil)

	final, err := store.Load(context.Background(), "wf-crash")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, final.Status)
	assert.Equal(t, true, final.Context["architecture_approved"])
}

func TestEngineRecordsMemoryEntryOnCompletion(t *testing.T) {
	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{
		"fixer": okExecutor("fixer"),
	})
	idx := memory.NewKeywordIndex()
	e.SetMemoryIndex(idx)

	s, err := e.Start(context.Background(), "wf-mem", "fix bug in auth")
	require.NoError(t, err)
	require.Equal(t, state.StatusCompleted, s.Status)

	results, err := idx.Search(context.Background(), "fix bug in auth", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Entry.Success)
	require.Len(t, results[0].Entry.Decomposition.Steps, 1)
	assert.Equal(t, "fixer", results[0].Entry.Decomposition.Steps[0].Agent)
	assert.Equal(t, "fix", results[0].Entry.Decomposition.Steps[0].Role)
}

func TestEngineDeadlockFailsWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"fixer": okExecutor("fixer")})

	s := state.New("wf-7", "impossible")
	s.Status = state.StatusExecuting
	s.ExecutionPlan = plan.Plan{{ID: 1, Agent: "fixer", Status: plan.StepPending, Dependencies: []int{99}}}

	out, err := e.runLoop(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, out.Status)
	require.Len(t, out.Errors, 1)
}

func TestEngineAgentTimeoutFailsStepNotWorkflow(t *testing.T) {
	blocker := agents.Func{AgentName: "fixer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		<-ctx.Done()
		return agents.Result{}, ctx.Err()
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"fixer": blocker})
	e.cfg.AgentTimeouts = map[string]time.Duration{"fixer": 10 * time.Millisecond}

	s, err := e.Start(context.Background(), "wf-8", "fix bug in auth")
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, s.Status)
	require.Len(t, s.ExecutionPlan, 1)
	assert.Equal(t, plan.StepFailed, s.ExecutionPlan[0].Status)
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0].Message, "timed out")
}

func TestEngineCancelStopsLoopBetweenNodes(t *testing.T) {
	gate := make(chan struct{})
	release := make(chan struct{})
	slow := agents.Func{AgentName: "fixer", Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
		close(gate)
		<-release
		return agents.Result{Status: agents.StatusSuccess, Content: "done"}, nil
	}}

	e, _ := newTestEngine(t, "keyword", map[string]agents.Executor{"fixer": slow})

	done := make(chan *state.WorkflowState, 1)
	go func() {
		s, _ := e.Start(context.Background(), "wf-9", "fix bug in auth")
		done <- s
	}()

	<-gate
	assert.True(t, e.Cancel("wf-9"))
	close(release)

	s := <-done
	// The in-flight step still finishes (cancellation is cooperative, checked
	// only between nodes), but the loop stops before starting another one.
	assert.Equal(t, state.StatusFailed, s.Status)
	assert.True(t, s.CancelRequested)
	assert.Equal(t, plan.StepCompleted, s.ExecutionPlan[0].Status)
}
