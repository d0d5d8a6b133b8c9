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
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/trace"

	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/state"
)

// stepOutcome is the result of dispatching one step to its executor, carried
// from the concurrent dispatch phase to the sequential merge phase.
type stepOutcome struct {
	step     plan.Step
	result   agents.Result
	err      error
	timedOut bool
	timeout  time.Duration
}

// runAgentNode dispatches one step to its registered executor, applying the
// step's timeout and folding any collaboration hints and approval request
// back into the workflow state.
func (e *Engine) runAgentNode(ctx context.Context, s *state.WorkflowState, step plan.Step) *state.WorkflowState {
	out := s.Clone()
	e.markStarted(out, step)
	oc := e.dispatchStep(ctx, out, step)
	return e.mergeStepOutcome(out, oc)
}

// runAgentBatch dispatches every step in batch concurrently via an
// errgroup, then merges their outcomes back into state sequentially in
// ascending step id order — the deterministic merge order parallel groups
// require. All steps in batch share the same already-satisfied dependency
// set, so their dispatch-time context is identical; none of them can
// observe another's result until the merge phase runs.
func (e *Engine) runAgentBatch(ctx context.Context, s *state.WorkflowState, batch []plan.Step) *state.WorkflowState {
	out := s.Clone()
	for _, step := range batch {
		e.markStarted(out, step)
	}

	outcomes := make([]stepOutcome, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, step := range batch {
		i, step := i, step
		g.Go(func() error {
			outcomes[i] = e.dispatchStep(gctx, out, step)
			return nil
		})
	}
	_ = g.Wait() // dispatchStep never returns a group-aborting error; failures travel in stepOutcome

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].step.ID < outcomes[j].step.ID })
	for _, oc := range outcomes {
		out = e.mergeStepOutcome(out, oc)
	}
	return out
}

// markStarted transitions step to in_progress in out and emits the started
// event. Called once per step before dispatch, sequentially, so a batch's
// EventStepStarted events are emitted in a deterministic order even though
// the dispatches themselves run concurrently.
func (e *Engine) markStarted(out *state.WorkflowState, step plan.Step) {
	started := time.Now()
	step.Status = plan.StepInProgress
	step.StartedAt = &started
	out.ExecutionPlan = plan.Set(out.ExecutionPlan, step)
	out.CurrentAgent = step.Agent
	out.Phase = state.PhasePreStep
	emit(e.events, Event{Type: EventStepStarted, WorkflowID: out.WorkflowID, StepID: step.ID, Agent: step.Agent})
}

// dispatchStep runs one step's executor under its timeout and a tracing
// span, without mutating s. Safe to call concurrently for distinct steps
// sharing the same s, since it only reads from it.
func (e *Engine) dispatchStep(ctx context.Context, s *state.WorkflowState, step plan.Step) stepOutcome {
	metrics := e.obs.Metrics()

	exec, ok := e.agents.Get(step.Agent)
	if !ok {
		metrics.RecordAgentError(step.Agent, "unregistered")
		return stepOutcome{step: step, err: fmt.Errorf("agent %q is not registered", step.Agent)}
	}

	timeout := e.cfg.DefaultAgentTimeout
	if d, ok := e.cfg.AgentTimeouts[step.Agent]; ok {
		timeout = d
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tracedCtx := stepCtx
	if tr := e.obs.Tracer(); tr != nil {
		var sp trace.Span
		tracedCtx, sp = tr.StartAgentRun(stepCtx, s.WorkflowID, strconv.Itoa(step.ID), step.Agent, step.Task, string(s.Phase))
		defer sp.End()
	}

	metrics.IncAgentActiveRuns(step.Agent)
	started := time.Now()
	result, err := exec.Execute(tracedCtx, agents.Task{
		Description:   step.Task,
		Context:       s.Context,
		WorkspacePath: workspacePath(s),
	})
	metrics.DecAgentActiveRuns(step.Agent)
	metrics.RecordAgentCall(step.Agent, time.Since(started))

	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			metrics.RecordAgentError(step.Agent, "timeout")
			return stepOutcome{step: step, err: err, timedOut: true, timeout: timeout}
		}
		metrics.RecordAgentError(step.Agent, "execution")
		return stepOutcome{step: step, err: err, timeout: timeout}
	}
	if result.Status == agents.StatusError {
		metrics.RecordAgentError(step.Agent, "result_error")
	}
	return stepOutcome{step: step, result: result, timeout: timeout}
}

// mergeStepOutcome folds one step's dispatch outcome into out: failure,
// completion, collaboration hints, and any approval suspension it raised.
func (e *Engine) mergeStepOutcome(out *state.WorkflowState, oc stepOutcome) *state.WorkflowState {
	step := oc.step
	if oc.err != nil {
		if oc.timedOut {
			return e.failStep(out, step, fmt.Sprintf("agent %q timed out after %s", step.Agent, oc.timeout))
		}
		return e.failStep(out, step, oc.err.Error())
	}
	if oc.result.Status == agents.StatusError {
		return e.failStep(out, step, oc.result.Content)
	}

	completed := time.Now()
	step.Status = plan.StepCompleted
	step.CompletedAt = &completed
	step.Result = oc.result.Content
	out.ExecutionPlan = plan.Set(out.ExecutionPlan, step)
	out.Phase = state.PhasePostStep
	out.SetContext("previous_step_result", oc.result.Content, step.Agent)
	emit(e.events, Event{Type: EventStepCompleted, WorkflowID: out.WorkflowID, StepID: step.ID, Agent: step.Agent, Content: oc.result.Content})

	if oc.result.Hints != nil && oc.result.Hints.NeedsReplan {
		out.NeedsReplan = true
		out.SuggestedAgent = oc.result.Hints.SuggestedAgent
		out.SuggestedQuery = oc.result.Hints.SuggestedQuery
		// A replan request is the protocol's signal that issues were found;
		// it arms any pending SkipIfNoIssues step so it actually runs.
		out.SetContext("issues_found", true, step.Agent)
	}

	if requiresApproval(oc.result) {
		e.suspendForApproval(out, step, oc.result)
	}

	return out
}

func (e *Engine) failStep(s *state.WorkflowState, step plan.Step, message string) *state.WorkflowState {
	completed := time.Now()
	step.Status = plan.StepFailed
	step.CompletedAt = &completed
	step.Error = message
	s.ExecutionPlan = plan.Set(s.ExecutionPlan, step)
	s.Errors = append(s.Errors, state.StepError{StepID: step.ID, Agent: step.Agent, Message: message, Timestamp: time.Now()})
	emit(e.events, Event{Type: EventStepFailed, WorkflowID: s.WorkflowID, StepID: step.ID, Agent: step.Agent, Content: message})
	return s
}

func requiresApproval(result agents.Result) bool {
	v, ok := result.Metadata["requires_approval"].(bool)
	return ok && v
}

// issuesFound reports whether any earlier step flagged issues (set by
// mergeStepOutcome when a collaboration hint requests a replan).
func issuesFound(s *state.WorkflowState) bool {
	v, _ := s.Context["issues_found"].(bool)
	return v
}

// skipStep marks a SkipIfNoIssues step skipped without dispatching it. A
// skipped step satisfies its dependents the way a completed one does.
func (e *Engine) skipStep(s *state.WorkflowState, step plan.Step) *state.WorkflowState {
	out := s.Clone()
	completed := time.Now()
	step.Status = plan.StepSkipped
	step.CompletedAt = &completed
	step.Result = "skipped: no issues found"
	out.ExecutionPlan = plan.Set(out.ExecutionPlan, step)
	out.Phase = state.PhasePostStep
	emit(e.events, Event{Type: EventStepCompleted, WorkflowID: out.WorkflowID, StepID: step.ID, Agent: step.Agent, Content: "skipped: no issues found"})
	return out
}

// suspendForApproval registers a pending approval and transitions the
// workflow into the durable suspension status. The engine loop sees the
// new status right after this node and returns control to the caller.
func (e *Engine) suspendForApproval(s *state.WorkflowState, step plan.Step, result agents.Result) {
	actionType, _ := result.Metadata["action_type"].(string)
	if actionType == "" {
		actionType = "architecture_proposal"
	}
	payload := result.Metadata["proposal"]
	if payload == nil {
		payload = result.Content
	}

	id, err := e.approvals.Create(s.WorkflowID, actionType, payload, e.approvalCfg.Timeout())
	if err != nil {
		s.Errors = append(s.Errors, state.StepError{StepID: step.ID, Agent: step.Agent, Message: err.Error(), Timestamp: time.Now()})
		return
	}

	s.Status = state.StatusWaitingApproval
	s.Phase = state.PhaseSuspended
	s.SetContext("pending_approval_id", id, step.Agent)
	s.SetContext("pending_approval_agent", step.Agent, step.Agent)
	// Mirrored into context (not just the in-memory Approval Manager) so a
	// crash between suspension and decision can be recovered: RecoverOnStartup
	// rebuilds the Manager's pending entry from this state alone — the
	// durable record is the workflow checkpoint, not process memory.
	s.SetContext("pending_approval_action_type", actionType, step.Agent)
	s.SetContext("pending_approval_payload", payload, step.Agent)
}

func workspacePath(s *state.WorkflowState) string {
	if v, ok := s.Context["workspace_path"].(string); ok {
		return v
	}
	return ""
}
