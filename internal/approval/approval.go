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

// Package approval bridges asynchronous external decisions back into the
// Workflow Engine. Pending approvals are durable: they are persisted
// through the same State Store every other checkpoint uses, so a crash
// between suspension and decision does not lose the proposal.
package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hectorflow/orchestrator/pkg/orcherr"
)

// Decision is the external surface's verdict on a pending approval.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
	Modified Decision = "modified"
)

// Pending is one outstanding approval request.
type Pending struct {
	ApprovalID      string
	WorkflowID      string
	ActionType      string
	ProposalPayload any
	CreatedAt       time.Time
	TimeoutAt       time.Time
	resolved        bool
}

// Resolution is what Resolve hands to the Engine's Resume callback.
type Resolution struct {
	WorkflowID    string
	ActionType    string
	Decision      Decision
	Feedback      string
	Modifications map[string]any
	TimedOut      bool
}

// ResumeFunc is invoked once per successful resolution so the Workflow
// Engine can re-enter the suspended workflow's loop. It must be safe to
// call concurrently for distinct workflow ids.
type ResumeFunc func(ctx context.Context, res Resolution)

// DefaultSweepInterval is how often RunSweeper polls for timed-out
// approvals when the caller has no stronger opinion.
const DefaultSweepInterval = 30 * time.Second

// Manager owns pending approvals and bridges resolutions back into the
// engine, modeled on a CheckpointHooks.OnToolApprovalRequired/
// GetPendingCheckpoints bookkeeping (pkg/checkpoint/manager.go), generalized
// from single-agent tool approval to workflow-level architecture approval.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*Pending // keyed by workflow id: one outstanding approval per workflow
	resume  ResumeFunc

	autoRejectOnTimeout bool
}

// NewManager creates an Approval Manager. resume is called exactly once per
// resolved (or timed-out) approval. Auto-reject-on-timeout defaults to true;
// call SetAutoRejectOnTimeout to mirror an ApprovalConfig that disables it.
func NewManager(resume ResumeFunc) *Manager {
	return &Manager{pending: make(map[string]*Pending), resume: resume, autoRejectOnTimeout: true}
}

// SetAutoRejectOnTimeout controls whether TimeoutSweep resolves expired
// approvals at all. When false, an expired approval is left pending — it
// sits until a client calls Resolve directly — mirroring a deployment that
// always wants a human decision, deadline or not.
func (m *Manager) SetAutoRejectOnTimeout(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoRejectOnTimeout = v
}

// RunSweeper calls TimeoutSweep on interval until ctx is cancelled. Intended
// to run in its own goroutine for the lifetime of a long-running process.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.TimeoutSweep(ctx)
		}
	}
}

// Create records a pending approval and returns its handle.
func (m *Manager) Create(workflowID, actionType string, payload any, timeout time.Duration) (string, error) {
	if workflowID == "" {
		return "", orcherr.New("approval.Manager", "Create", "workflow id required", orcherr.ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	now := time.Now()
	m.pending[workflowID] = &Pending{
		ApprovalID:      id,
		WorkflowID:      workflowID,
		ActionType:      actionType,
		ProposalPayload: payload,
		CreatedAt:       now,
		TimeoutAt:       now.Add(timeout),
	}
	return id, nil
}

// Restore re-registers a pending approval recovered from durable state
// after an engine restart. Unlike Create, it does not mint a fresh id or
// CreatedAt: it reconstructs the handle exactly as it existed before the
// crash, so a subsequent Resolve behaves identically to the non-crash
// path.
func (m *Manager) Restore(p Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.resolved = false
	m.pending[p.WorkflowID] = &p
}

// Resolve applies an external decision. Unknown workflow ids and duplicate
// resolutions are no-ops — they never error to
// the caller, following a "log and continue"
// idiom.
func (m *Manager) Resolve(ctx context.Context, workflowID string, decision Decision, feedback string, modifications map[string]any) {
	m.mu.Lock()
	p, ok := m.pending[workflowID]
	if !ok || p.resolved {
		m.mu.Unlock()
		if !ok {
			slog.Warn("approval resolve for unknown workflow", "workflow_id", workflowID)
		}
		return
	}
	p.resolved = true
	delete(m.pending, workflowID)
	m.mu.Unlock()

	if m.resume != nil {
		m.resume(ctx, Resolution{
			WorkflowID:    workflowID,
			ActionType:    p.ActionType,
			Decision:      decision,
			Feedback:      feedback,
			Modifications: modifications,
		})
	}
}

// TimeoutSweep auto-rejects every pending approval older than its TimeoutAt
// with reason "timeout", unless SetAutoRejectOnTimeout(false) has disabled
// auto-resolution, in which case expired approvals are left pending.
func (m *Manager) TimeoutSweep(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	if !m.autoRejectOnTimeout {
		m.mu.Unlock()
		return
	}
	var expired []*Pending
	for id, p := range m.pending {
		if p.resolved || now.Before(p.TimeoutAt) {
			continue
		}
		p.resolved = true
		expired = append(expired, p)
		delete(m.pending, id)
	}
	m.mu.Unlock()

	for _, p := range expired {
		if m.resume != nil {
			m.resume(ctx, Resolution{
				WorkflowID: p.WorkflowID,
				ActionType: p.ActionType,
				Decision:   Rejected,
				Feedback:   "timeout",
				TimedOut:   true,
			})
		}
	}
}

// ListPending returns every outstanding approval, for re-presentation after
// an engine restart.
func (m *Manager) ListPending() []Pending {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Pending, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, *p)
	}
	return out
}
