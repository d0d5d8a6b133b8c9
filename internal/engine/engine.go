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

// Package engine drives a WorkflowState through the plan DAG until it
// reaches a terminal status or suspends on an approval gate.
// Every node invocation is checkpointed; on restart, RecoverOnStartup
// re-enters every workflow whose status is non-terminal.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hectorflow/orchestrator/config"
	"github.com/hectorflow/orchestrator/internal/approval"
	"github.com/hectorflow/orchestrator/internal/planner"
	"github.com/hectorflow/orchestrator/internal/router"
	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/observability"
	"github.com/hectorflow/orchestrator/pkg/orcherr"
	"github.com/hectorflow/orchestrator/pkg/plan"
	"github.com/hectorflow/orchestrator/pkg/registry"
	"github.com/hectorflow/orchestrator/pkg/state"
)

// Engine executes Workflow State through the plan DAG, applying the Router
// at every step and persisting a checkpoint after every node.
type Engine struct {
	store    state.Store
	agents   *registry.BaseRegistry[agents.Executor]
	planner  *planner.Planner
	approvals *approval.Manager

	cfg        config.EngineConfig
	approvalCfg config.ApprovalConfig

	sem    *semaphore.Weighted
	events chan Event
	memory memory.Index

	cancels sync.Map // workflow id -> *int32, checked between node invocations

	obs   *observability.Manager
	hooks Hooks
}

// Hooks are optional callbacks fired around the run loop's node
// transitions, letting a caller (metrics, audit logging, a UI push
// channel) observe a workflow without threading its own logic through the
// loop itself. Every field may be left nil; the engine always nil-checks
// before calling.
type Hooks struct {
	// BeforeNode fires once a node has been chosen and before it runs.
	BeforeNode func(ctx context.Context, s *state.WorkflowState, label router.Label)
	// AfterNode fires once a node has run and its result merged into s.
	AfterNode func(ctx context.Context, s *state.WorkflowState, label router.Label)
	// OnApprovalRequired fires when a step suspends the workflow for
	// approval.
	OnApprovalRequired func(ctx context.Context, s *state.WorkflowState, stepID int, agent string)
	// OnComplete fires once, when the workflow reaches StatusCompleted.
	OnComplete func(ctx context.Context, s *state.WorkflowState)
	// OnError fires once, when the workflow reaches StatusFailed, for any
	// reason (deadlock, cancellation, replan-limit or a planner error). A
	// failed step does not by itself fail the workflow.
	OnError func(ctx context.Context, s *state.WorkflowState, reason string)
}

// SetHooks installs h, replacing any previously set hooks.
func (e *Engine) SetHooks(h Hooks) {
	e.hooks = h
}

// New builds an Engine. reg must already contain every agent the planner or
// a running plan may reference; the registry is immutable once the engine
// starts.
func New(store state.Store, reg *registry.BaseRegistry[agents.Executor], pl *planner.Planner, cfg config.EngineConfig, approvalCfg config.ApprovalConfig) *Engine {
	e := &Engine{
		store:       store,
		agents:      reg,
		planner:     pl,
		cfg:         cfg,
		approvalCfg: approvalCfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentWorkflows)),
		events:      newEventBus(),
		obs:         observability.NoopManager(),
	}
	e.approvals = approval.NewManager(e.handleResolution)
	e.approvals.SetAutoRejectOnTimeout(approvalCfg.ShouldAutoRejectOnTimeout())
	return e
}

// RunApprovalSweeper periodically sweeps for timed-out approvals until ctx
// is cancelled; intended to run in its own goroutine for the lifetime of a
// long-running process (the CLI's run and serve commands both start one).
func (e *Engine) RunApprovalSweeper(ctx context.Context, interval time.Duration) {
	e.approvals.RunSweeper(ctx, interval)
}

// Events returns the engine's outbound event stream.
func (e *Engine) Events() <-chan Event { return e.events }

// Approvals exposes the Approval Manager so an external transport can call
// Resolve directly when a decision arrives.
func (e *Engine) Approvals() *approval.Manager { return e.approvals }

// SetObservability wires a live Metrics/Tracer pair into the engine. Safe
// to skip: the engine defaults to a no-op Manager so node execution never
// nil-checks observability itself.
func (e *Engine) SetObservability(m *observability.Manager) {
	if m != nil {
		e.obs = m
	}
}

// Start creates a fresh WorkflowState for a client request and drives it to
// completion or suspension. It blocks on the engine's concurrency limit
// — callers needing FIFO queuing across many
// concurrent Start calls should bound the number of goroutines calling it.
func (e *Engine) Start(ctx context.Context, workflowID, userQuery string) (*state.WorkflowState, error) {
	return e.StartInWorkspace(ctx, workflowID, userQuery, "")
}

// StartInWorkspace is Start with the workspace path every step's executor
// receives in its Task; an empty path leaves it unset.
func (e *Engine) StartInWorkspace(ctx context.Context, workflowID, userQuery, workspacePath string) (*state.WorkflowState, error) {
	s := state.New(workflowID, userQuery)
	s.Metadata["start_time"] = time.Now()
	if workspacePath != "" {
		s.Context["workspace_path"] = workspacePath
	}
	if err := e.store.Save(ctx, s); err != nil {
		return nil, orcherr.New("engine.Engine", "Start", "failed to persist initial state", orcherr.ErrStoreUnavailable)
	}
	emit(e.events, Event{Type: EventPlanningStarted, WorkflowID: workflowID})

	return e.withSlot(ctx, s)
}

// RecoverOnStartup re-enters every workflow whose persisted status is
// non-terminal, restoring in-flight work after a restart. It does not block on individual workflows completing.
func (e *Engine) RecoverOnStartup(ctx context.Context) error {
	for _, status := range []state.Status{state.StatusPlanning, state.StatusExecuting, state.StatusWaitingApproval} {
		ids, err := e.store.ListByStatus(ctx, status)
		if err != nil {
			return orcherr.New("engine.Engine", "RecoverOnStartup", "failed to list pending workflows", orcherr.ErrStoreUnavailable)
		}
		for _, id := range ids {
			s, err := e.store.Load(ctx, id)
			if err != nil {
				slog.Warn("skipping unrecoverable workflow", "workflow_id", id, "error", err)
				continue
			}
			if s.Status == state.StatusWaitingApproval {
				// Still suspended: nothing to resume until a decision
				// arrives, but the Approval Manager's in-memory pending map
				// does not survive a restart, so it must be rebuilt from
				// the checkpointed context or a later Resolve would find no
				// matching entry and silently no-op.
				e.restoreApproval(s)
				continue
			}
			go func(s *state.WorkflowState) {
				if _, err := e.withSlot(context.Background(), s); err != nil {
					slog.Error("recovered workflow failed to resume", "workflow_id", s.WorkflowID, "error", err)
				}
			}(s)
		}
	}
	return nil
}

// Cancel requests cooperative cancellation of a running workflow. The
// engine honors it between node invocations; it
// returns false if workflowID has no actively running loop.
func (e *Engine) Cancel(workflowID string) bool {
	v, ok := e.cancels.Load(workflowID)
	if !ok {
		return false
	}
	atomic.StoreInt32(v.(*int32), 1)
	return true
}

// withSlot acquires a concurrency slot, runs the loop, and releases it.
func (e *Engine) withSlot(ctx context.Context, s *state.WorkflowState) (*state.WorkflowState, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire engine slot: %w", err)
	}
	defer e.sem.Release(1)
	return e.runLoop(ctx, s)
}

// runLoop is the engine's execution loop: route, invoke, checkpoint,
// repeat until END or suspension.
func (e *Engine) runLoop(ctx context.Context, s *state.WorkflowState) (*state.WorkflowState, error) {
	cancelFlag := new(int32)
	e.cancels.Store(s.WorkflowID, cancelFlag)
	defer e.cancels.Delete(s.WorkflowID)

	for {
		if atomic.LoadInt32(cancelFlag) == 1 {
			s = s.Clone()
			s.CancelRequested = true
			s.Status = state.StatusFailed
			s.Errors = append(s.Errors, state.StepError{Agent: s.CurrentAgent, Message: "cancelled", Timestamp: time.Now()})
			e.checkpoint(ctx, s, state.CheckpointEvent)
			e.recordOutcome(ctx, s)
			e.obs.Metrics().RecordWorkflowCompleted(string(state.StatusFailed), workflowDuration(s))
			emit(e.events, Event{Type: EventWorkflowFailed, WorkflowID: s.WorkflowID, Content: "cancelled"})
			e.fireError(ctx, s, "cancelled")
			return s, nil
		}

		decision := router.Route(s)
		switch decision.Label {
		case router.End:
			if decision.Deadlock {
				s = s.Clone()
				s.Status = state.StatusFailed
				s.Errors = append(s.Errors, state.StepError{Message: orcherr.ErrDeadlock.Error(), Timestamp: time.Now()})
				e.checkpoint(ctx, s, state.CheckpointEvent)
				e.recordOutcome(ctx, s)
				e.obs.Metrics().RecordWorkflowCompleted(string(state.StatusFailed), workflowDuration(s))
				emit(e.events, Event{Type: EventWorkflowFailed, WorkflowID: s.WorkflowID, Content: "deadlock"})
				e.fireError(ctx, s, "deadlock")
				return s, nil
			}
			s = s.Clone()
			s.Status = state.StatusCompleted
			now := time.Now()
			if md, ok := s.Metadata["end_time"]; !ok || md == nil {
				s.Metadata["end_time"] = now
			}
			e.checkpoint(ctx, s, state.CheckpointEvent)
			e.recordOutcome(ctx, s)
			e.obs.Metrics().RecordWorkflowCompleted(string(state.StatusCompleted), workflowDuration(s))
			emit(e.events, Event{Type: EventWorkflowCompleted, WorkflowID: s.WorkflowID})
			if e.hooks.OnComplete != nil {
				e.hooks.OnComplete(ctx, s)
			}
			return s, nil

		case router.Approval:
			// A prior node already set status=waiting_architecture_approval
			// and was checkpointed; suspend and return control to the
			// caller without invoking another node.
			return s, nil

		case router.Planner:
			e.fireBeforeNode(ctx, s, decision.Label)
			replanning := s.NeedsReplan
			suggestedAgent := s.SuggestedAgent
			s = e.runPlannerNode(ctx, s)
			e.checkpoint(ctx, s, state.CheckpointEvent)
			e.fireAfterNode(ctx, s, decision.Label)
			if replanning {
				e.obs.Metrics().RecordReplan(suggestedAgent)
			}
			if s.Status == state.StatusFailed {
				e.recordOutcome(ctx, s)
				e.obs.Metrics().RecordWorkflowCompleted(string(state.StatusFailed), workflowDuration(s))
				emit(e.events, Event{Type: EventWorkflowFailed, WorkflowID: s.WorkflowID})
				e.fireError(ctx, s, "planner")
				return s, nil
			}

		default:
			if decision.Step.SkipIfNoIssues && !issuesFound(s) {
				s = e.skipStep(s, decision.Step)
				e.checkpoint(ctx, s, state.CheckpointEvent)
				continue
			}
			batch := decision.Batch
			if !issuesFound(s) {
				// A guarded step sharing the batch's dependency set gets its
				// own skip check once it surfaces as the primary step.
				kept := make([]plan.Step, 0, len(batch))
				for _, st := range batch {
					if !st.SkipIfNoIssues {
						kept = append(kept, st)
					}
				}
				batch = kept
			}
			e.fireBeforeNode(ctx, s, decision.Label)
			if e.cfg.ParallelGroupsEnabled() && len(batch) > 1 {
				s = e.runAgentBatch(ctx, s, batch)
			} else {
				s = e.runAgentNode(ctx, s, decision.Step)
			}
			e.checkpoint(ctx, s, state.CheckpointEvent)
			e.fireAfterNode(ctx, s, decision.Label)
			if s.Status == state.StatusWaitingApproval {
				emit(e.events, Event{Type: EventApprovalRequired, WorkflowID: s.WorkflowID, StepID: decision.Step.ID, Agent: decision.Step.Agent})
				if e.hooks.OnApprovalRequired != nil {
					e.hooks.OnApprovalRequired(ctx, s, decision.Step.ID, decision.Step.Agent)
				}
				return s, nil
			}
		}
	}
}

func (e *Engine) fireBeforeNode(ctx context.Context, s *state.WorkflowState, label router.Label) {
	if e.hooks.BeforeNode != nil {
		e.hooks.BeforeNode(ctx, s, label)
	}
}

func (e *Engine) fireAfterNode(ctx context.Context, s *state.WorkflowState, label router.Label) {
	if e.hooks.AfterNode != nil {
		e.hooks.AfterNode(ctx, s, label)
	}
}

func (e *Engine) fireError(ctx context.Context, s *state.WorkflowState, reason string) {
	if e.hooks.OnError != nil {
		e.hooks.OnError(ctx, s, reason)
	}
}

// workflowDuration returns the elapsed time since the workflow's recorded
// start_time, or zero if it was never set (should not happen outside tests
// that construct a WorkflowState by hand).
func workflowDuration(s *state.WorkflowState) time.Duration {
	start, ok := s.Metadata["start_time"].(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// restoreApproval reconstructs the Approval Manager's pending entry for a
// workflow recovered in StatusWaitingApproval, from the fields
// suspendForApproval mirrored into context at suspension time.
func (e *Engine) restoreApproval(s *state.WorkflowState) {
	id, _ := s.Context["pending_approval_id"].(string)
	if id == "" {
		slog.Warn("recovered suspended workflow missing pending_approval_id", "workflow_id", s.WorkflowID)
		return
	}
	actionType, _ := s.Context["pending_approval_action_type"].(string)
	e.approvals.Restore(approval.Pending{
		ApprovalID:      id,
		WorkflowID:      s.WorkflowID,
		ActionType:      actionType,
		ProposalPayload: s.Context["pending_approval_payload"],
		CreatedAt:       s.CheckpointTime,
		TimeoutAt:       s.CheckpointTime.Add(e.approvalCfg.Timeout()),
	})
}

// checkpoint persists s, tagging it with typ so an operator inspecting the
// State Store can tell whether it was written by a node transition
// (CheckpointEvent) or by the Approval Manager's ticker-driven sweep
// (CheckpointInterval).
func (e *Engine) checkpoint(ctx context.Context, s *state.WorkflowState, typ state.CheckpointType) {
	s.CheckpointTime = time.Now()
	s.CheckpointType = typ
	if err := e.store.Save(ctx, s); err != nil {
		slog.Error("checkpoint save failed", "workflow_id", s.WorkflowID, "error", err)
	}
}

// handleResolution is the Approval Manager's ResumeFunc: it loads the
// suspended state, merges the decision, and re-enters the loop.
func (e *Engine) handleResolution(ctx context.Context, res approval.Resolution) {
	s, err := e.store.Load(ctx, res.WorkflowID)
	if err != nil {
		slog.Error("failed to load workflow for approval resolution", "workflow_id", res.WorkflowID, "error", err)
		return
	}

	decisionLabel := string(res.Decision)
	if res.TimedOut {
		decisionLabel = "timeout"
	}
	e.obs.Metrics().RecordApprovalWait(decisionLabel, time.Since(s.CheckpointTime))

	s = s.Clone()
	requestingAgent, _ := s.Context["pending_approval_agent"].(string)
	s.Status = state.StatusExecuting
	s.Phase = state.PhasePostStep

	switch {
	case res.Decision == approval.Approved:
		s.SetContext("architecture_approved", true, "approval")
	case res.TimedOut:
		// Nobody is left to give feedback, so a replan would be pointless;
		// record the timeout and let the router finish whatever remains.
		s.SetContext("architecture_approved", false, "approval")
		s.Errors = append(s.Errors, state.StepError{Agent: requestingAgent, Message: orcherr.ErrApprovalTimeout.Error(), Timestamp: time.Now()})
	default:
		s.SetContext("architecture_approved", false, "approval")
		s.SetContext("feedback", res.Feedback, "approval")
		if len(res.Modifications) > 0 {
			s.SetContext("modifications", res.Modifications, "approval")
		}
		s.NeedsReplan = true
		s.SuggestedAgent = requestingAgent
		s.SuggestedQuery = res.Feedback
		if s.SuggestedQuery == "" {
			s.SuggestedQuery = "Revise the proposal based on the rejection"
		}
	}

	checkpointType := state.CheckpointEvent
	if res.TimedOut {
		checkpointType = state.CheckpointInterval
	}
	e.checkpoint(ctx, s, checkpointType)
	if _, err := e.withSlot(ctx, s); err != nil {
		slog.Error("failed to resume workflow after approval resolution", "workflow_id", s.WorkflowID, "error", err)
	}
}
