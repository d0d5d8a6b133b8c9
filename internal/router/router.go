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

// Package router implements the pure, side-effect-free function from
// workflow state to next-node label. The router never mutates
// state; all transitions happen in nodes.
package router

import (
	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/state"
)

// Label identifies the node the engine should invoke next.
type Label string

const (
	Planner  Label = "planner"
	Approval Label = "approval"
	End      Label = "END"
)

// Decision is the router's output: a label, plus (when the label names an
// agent node) the step being dispatched and the full batch of steps
// currently eligible alongside it (Batch always contains Step as its first
// element), and (on a dependency deadlock) an error label rather than a
// silent END.
type Decision struct {
	Label    Label
	Step     plan.Step
	Batch    []plan.Step
	Deadlock bool
}

// Route implements the router's decision order:
//  1. needs_replan -> planner (so does status=planning: a fresh workflow
//     has no plan yet and must synthesize one before anything else)
//  2. waiting_architecture_approval -> approval
//  3. any step in_progress -> resume that step's agent (P5: never END)
//  4. any step pending -> the next eligible one, by smallest id, plus every
//     other pending step sharing its dependency set (Batch); if none is
//     eligible while pending steps remain, report a deadlock instead of END.
//  5. otherwise -> END
//
// Route itself never decides whether a Batch larger than one step is
// actually dispatched concurrently — that policy (config-gated) lives in the
// engine, keeping Route a pure function of state alone.
func Route(s *state.WorkflowState) Decision {
	if s.NeedsReplan || s.Status == state.StatusPlanning {
		return Decision{Label: Planner}
	}
	if s.Status == state.StatusWaitingApproval {
		return Decision{Label: Approval}
	}
	if step, ok := plan.InProgress(s.ExecutionPlan); ok {
		return Decision{Label: Label(step.Agent), Step: step, Batch: []plan.Step{step}}
	}
	if plan.AnyPending(s.ExecutionPlan) {
		if batch := plan.ParallelBatch(s.ExecutionPlan); len(batch) > 0 {
			return Decision{Label: Label(batch[0].Agent), Step: batch[0], Batch: batch}
		}
		return Decision{Label: End, Deadlock: true}
	}
	return Decision{Label: End}
}
