package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hectorflow/orchestrator/config"
	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/registry"
)

func samplePlan() plan.Plan {
	return plan.Plan{{ID: 1, Agent: "reviewer", Status: plan.StepCompleted}}
}

func testConfig() config.PlannerConfig {
	cfg := config.PlannerConfig{}
	cfg.SetDefaults()
	return cfg
}

func newRegistry(names ...string) *registry.BaseRegistry[agents.Executor] {
	reg := registry.NewBaseRegistry[agents.Executor]()
	for _, n := range names {
		name := n
		_ = reg.Register(name, agents.Func{AgentName: name, Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
			return agents.Result{Status: agents.StatusSuccess, Content: "ok"}, nil
		}})
	}
	return reg
}

func TestClassifySimple(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, Simple, Classify("Fix bug in auth", cfg))
	assert.Equal(t, Simple, Classify("ok?", cfg))
}

func TestClassifyComplex(t *testing.T) {
	cfg := testConfig()
	q := "Build a full application with authentication, a database layer, a REST API, a frontend and comprehensive tests"
	assert.Equal(t, Complex, Classify(q, cfg))
	assert.Equal(t, Complex, Classify("Integrate the payment gateway with tests and documentation", cfg))
}

func TestClassifyModerate(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, Moderate, Classify("Add a caching layer to the search endpoint", cfg))
}

func TestSynthesizeSimpleBugFix(t *testing.T) {
	reg := newRegistry("fixer", "orchestrator")
	p := New(testConfig(), reg, nil)

	pl, err := p.Synthesize(context.Background(), "Fix bug in auth")
	require.NoError(t, err)
	require.Len(t, pl, 1)
	assert.Equal(t, "fixer", pl[0].Agent)
	assert.Equal(t, "Fix bug in auth", pl[0].Task)
}

func TestSynthesizeModerateTemplate(t *testing.T) {
	reg := newRegistry("architect", "codesmith", "reviewer", "fixer", "orchestrator")
	p := New(testConfig(), reg, nil)

	pl, err := p.Synthesize(context.Background(), "Entwickle eine Tetris Webapplikation")
	require.NoError(t, err)
	require.Len(t, pl, 4)
	assert.Equal(t, []string{"architect", "codesmith", "reviewer", "fixer"},
		[]string{pl[0].Agent, pl[1].Agent, pl[2].Agent, pl[3].Agent})
}

func TestSynthesizeComplexFallsBackToTemplateWithoutOrchestrator(t *testing.T) {
	reg := newRegistry("architect", "codesmith", "reviewer", "fixer")
	p := New(testConfig(), reg, nil)

	q := "Build a full application with authentication, a database layer, a REST API, a frontend and comprehensive tests"
	pl, err := p.Synthesize(context.Background(), q)
	require.NoError(t, err)
	assert.NotEmpty(t, pl)
}

func TestSynthesizeComplexUsesMemoryFastPath(t *testing.T) {
	reg := newRegistry("architect", "codesmith", "reviewer", "orchestrator")
	idx := memory.NewKeywordIndex()
	require.NoError(t, idx.Store(context.Background(), memory.Entry{
		TaskText: "Build a full application with authentication, a database layer, a REST API, a frontend and comprehensive tests",
		Success:  true,
		Decomposition: memory.Decomposition{Steps: []memory.DecompositionStep{
			{Agent: "architect", Role: "design"},
			{Agent: "codesmith", Role: "implement", Dependencies: []int{1}},
		}},
	}))
	p := New(testConfig(), reg, idx)

	q := "Build a full application with authentication, a database layer, a REST API, a frontend and comprehensive tests"
	pl, err := p.Synthesize(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, pl, 2)
	assert.Contains(t, pl[0].Task, "design")
}

func TestReplanRejectsUnregisteredAgent(t *testing.T) {
	reg := newRegistry("reviewer")
	p := New(testConfig(), reg, nil)

	base := samplePlan()
	result := p.Replan(base, agents.CollaborationHints{
		NeedsReplan:    true,
		SuggestedAgent: "nonexistent",
		SuggestedQuery: "do something",
	})

	assert.True(t, result.Rejected)
	assert.Equal(t, base, result.Plan)
}

func TestReplanAppendsEligibleStep(t *testing.T) {
	reg := newRegistry("reviewer", "fixer")
	p := New(testConfig(), reg, nil)

	base := samplePlan()
	result := p.Replan(base, agents.CollaborationHints{
		NeedsReplan:    true,
		SuggestedAgent: "fixer",
		SuggestedQuery: "Fix SQL injection in auth.py",
	})

	require.False(t, result.Rejected)
	require.Len(t, result.Plan, len(base)+1)
	last := result.Plan[len(result.Plan)-1]
	assert.Equal(t, "fixer", last.Agent)
	assert.Empty(t, last.Dependencies)
	assert.Equal(t, last, result.Appended)
}
