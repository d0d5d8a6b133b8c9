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

package planner

import (
	"context"
	"fmt"

	"github.com/hectorflow/orchestrator/config"
	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/observability"
	"github.com/hectorflow/orchestrator/pkg/orcherr"
	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/registry"
)

// Planner synthesizes an initial execution plan from a user query and
// handles re-planning requests raised by agent collaboration hints.
type Planner struct {
	cfg    config.PlannerConfig
	agents *registry.BaseRegistry[agents.Executor]
	memory memory.Index
	obs    *observability.Manager
}

// New builds a Planner. reg is the Agent Registry used both to validate
// replan targets and, for the LLM tier, to look up the
// "orchestrator" executor. idx may be nil, in which case the complex tier
// always falls through to the LLM/template path.
func New(cfg config.PlannerConfig, reg *registry.BaseRegistry[agents.Executor], idx memory.Index) *Planner {
	return &Planner{cfg: cfg, agents: reg, memory: idx, obs: observability.NoopManager()}
}

// SetObservability wires a live Metrics/Tracer pair into the planner,
// mirroring engine.Engine.SetObservability. Safe to skip: the planner
// defaults to a no-op Manager so memory lookups never nil-check it.
func (p *Planner) SetObservability(m *observability.Manager) {
	if m != nil {
		p.obs = m
	}
}

// Synthesize runs the three-tier synthesis for a fresh
// workflow's initial plan.
func (p *Planner) Synthesize(ctx context.Context, userQuery string) (plan.Plan, error) {
	mode := p.cfg.Mode
	complexity := Classify(userQuery, p.cfg)

	if mode == "keyword" {
		if pl := p.keywordPlan(userQuery); pl != nil {
			return pl, nil
		}
		return p.templatePlan(userQuery), nil
	}
	if mode == "template" {
		return p.templatePlan(userQuery), nil
	}
	if mode == "llm" {
		return p.complexPlan(ctx, userQuery)
	}

	switch complexity {
	case Simple:
		if pl := p.keywordPlan(userQuery); pl != nil {
			return pl, nil
		}
		return p.templatePlan(userQuery), nil
	case Complex:
		return p.complexPlan(ctx, userQuery)
	default:
		return p.templatePlan(userQuery), nil
	}
}

// keywordPlan implements tier 1: a one-step plan from the highest-scoring
// keyword match, or nil if nothing scores above the 1.0 floor.
func (p *Planner) keywordPlan(query string) plan.Plan {
	agent, _, ok := KeywordMatch(query)
	if !ok {
		return nil
	}
	return plan.AppendStep(nil, plan.Step{Agent: agent, Task: query})
}

// templatePlan implements tier 2: a fixed ordered agent sequence chained by
// dependencies. A template agent flagged SkipIfNoIssues keeps its step in
// the plan; the engine marks it skipped at dispatch time when no earlier
// step reported issues.
func (p *Planner) templatePlan(query string) plan.Plan {
	tmpl := SelectTemplate(query)
	var pl plan.Plan
	for _, ta := range tmpl.Agents {
		deps := []int{}
		if len(pl) > 0 {
			deps = []int{pl[len(pl)-1].ID}
		}
		pl = plan.AppendStep(pl, plan.Step{
			Agent:          ta.Agent,
			Task:           query,
			Dependencies:   deps,
			SkipIfNoIssues: ta.SkipIfNoIssues,
		})
	}
	return pl
}

// complexPlan implements tier 3: memory-adapted fast path first, LLM
// decomposition second, template fallback on any LLM failure.
func (p *Planner) complexPlan(ctx context.Context, query string) (plan.Plan, error) {
	if pl, ok := p.tracedAdaptFromMemory(ctx, query); ok {
		return pl, nil
	}

	orchestrator, found := p.agents.Get("orchestrator")
	if !found {
		return p.templatePlan(query), nil
	}

	decomp, err := requestLLMDecomposition(ctx, orchestrator, query)
	if err != nil {
		return p.templatePlan(query), nil
	}

	pl, err := p.planFromDecomposition(*decomp)
	if err != nil {
		return p.templatePlan(query), nil
	}
	return pl, nil
}

func (p *Planner) planFromDecomposition(decomp LLMDecomposition) (plan.Plan, error) {
	var pl plan.Plan
	idMap := make(map[int]int, len(decomp.Subtasks))
	for _, st := range decomp.Subtasks {
		if _, ok := p.agents.Get(st.Agent); !ok {
			return nil, fmt.Errorf("decomposition references unregistered agent %q", st.Agent)
		}
		pl = plan.AppendStep(pl, plan.Step{Agent: st.Agent, Task: st.Description})
		idMap[st.ID] = pl[len(pl)-1].ID
	}
	for i, st := range decomp.Subtasks {
		var deps []int
		for _, d := range st.Dependencies {
			mapped, ok := idMap[d]
			if !ok {
				return nil, fmt.Errorf("decomposition subtask %d depends on unknown id %d", st.ID, d)
			}
			deps = append(deps, mapped)
		}
		pl[i].Dependencies = deps
	}
	return pl, nil
}

// ReplanResult is the outcome of validating and applying a collaboration
// request.
type ReplanResult struct {
	Plan      plan.Plan
	Rejected  bool
	Appended  plan.Step
}

// Replan produces a follow-up step in response to a collaboration hint. It
// validates that hints.SuggestedAgent is registered; if not, the replan is
// rejected and the caller must clear the collaboration flags without
// modifying the plan. Otherwise it appends a new immediately-eligible step
// and returns it.
func (p *Planner) Replan(current plan.Plan, hints agents.CollaborationHints) ReplanResult {
	if !hints.NeedsReplan {
		return ReplanResult{Plan: current}
	}
	if _, ok := p.agents.Get(hints.SuggestedAgent); !ok {
		return ReplanResult{Plan: current, Rejected: true}
	}

	next := plan.AppendStep(current, plan.Step{
		Agent:        hints.SuggestedAgent,
		Task:         hints.SuggestedQuery,
		Dependencies: []int{},
	})
	return ReplanResult{Plan: next, Appended: next[len(next)-1]}
}

// ErrUnregisteredAgent is the sentinel a caller can use to surface a
// rejected replan as an orcherr-shaped error (e.g. for logging); Replan
// itself never returns an error: an unregistered agent is reported to the
// caller as ReplanResult.Rejected instead of aborting the workflow.
var ErrUnregisteredAgent = orcherr.ErrUnknownAgent
