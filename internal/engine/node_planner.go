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
	"time"

	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/orcherr"
	"github.com/hectorflow/orchestrator/pkg/state"
)

// runPlannerNode covers both the initial synthesis (status=planning) and a
// re-planning request (needs_replan=true) raised by an agent's
// collaboration hints.
func (e *Engine) runPlannerNode(ctx context.Context, s *state.WorkflowState) *state.WorkflowState {
	out := s.Clone()

	if out.Status == state.StatusPlanning {
		pl, err := e.planner.Synthesize(ctx, out.UserQuery)
		if err != nil {
			out.Status = state.StatusFailed
			out.Errors = append(out.Errors, state.StepError{Agent: "planner", Message: err.Error(), Timestamp: time.Now()})
			return out
		}
		out.ExecutionPlan = pl
		out.Status = state.StatusExecuting
		out.Phase = state.PhasePreStep
		return out
	}

	out.ReplanCount++
	if out.ReplanCount > e.cfg.ReplanLoopGuard {
		out.Status = state.StatusFailed
		out.NeedsReplan = false
		out.SuggestedAgent = ""
		out.SuggestedQuery = ""
		out.Errors = append(out.Errors, state.StepError{Agent: "planner", Message: orcherr.ErrReplanLimit.Error(), Timestamp: time.Now()})
		return out
	}

	hints := agents.CollaborationHints{
		NeedsReplan:    out.NeedsReplan,
		SuggestedAgent: out.SuggestedAgent,
		SuggestedQuery: out.SuggestedQuery,
	}
	result := e.planner.Replan(out.ExecutionPlan, hints)
	out.ExecutionPlan = result.Plan
	out.NeedsReplan = false
	out.SuggestedAgent = ""
	out.SuggestedQuery = ""
	out.Status = state.StatusExecuting
	out.Phase = state.PhasePreStep
	return out
}
