// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package state defines the persisted WorkflowState record and the Store
// interface that saves/loads it, generalizing a session-scoped
// checkpoint envelope into a workflow-scoped one.
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hectorflow/orchestrator/pkg/plan"
)

// SchemaVersion is bumped whenever the persisted WorkflowState shape changes
// incompatibly. Loads of a mismatched version fail closed.
const SchemaVersion = 1

// Status is the overall workflow lifecycle.
type Status string

const (
	StatusPlanning              Status = "planning"
	StatusExecuting             Status = "executing"
	StatusWaitingApproval       Status = "waiting_architecture_approval"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
)

// Phase tags why a checkpoint was written, mirroring the
// pkg/checkpoint Phase enum but keyed to workflow execution rather than a
// single agent turn.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhasePreStep   Phase = "pre_step"
	PhasePostStep  Phase = "post_step"
	PhaseSuspended Phase = "suspended"
	PhaseError     Phase = "error"
)

// CheckpointType distinguishes a checkpoint written because of a concrete
// state transition from one written by a time-driven sweep, mirroring the
// pkg/checkpoint Type enum.
type CheckpointType string

const (
	// CheckpointEvent is a checkpoint written directly from a node
	// transition: a step starting, completing, failing, or a workflow
	// suspending for approval.
	CheckpointEvent CheckpointType = "event"
	// CheckpointInterval is a checkpoint written by the Approval Manager's
	// ticker-driven TimeoutSweep auto-rejecting an expired approval, rather
	// than by any node the engine itself just ran.
	CheckpointInterval CheckpointType = "interval"
)

// StepError records a failure attributable to a specific step.
type StepError struct {
	StepID    int       `json:"step_id"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StateChange is one entry in the bounded audit trail of context mutations.
type StateChange struct {
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	Key       string    `json:"key"`
}

// MaxHistorySize bounds the audit trail the way team.SharedState bounds its
// History slice.
const MaxHistorySize = 1000

// WorkflowState is the single mutable object threaded through every node.
type WorkflowState struct {
	SchemaVersion int    `json:"schema_version"`
	WorkflowID    string `json:"workflow_id"`
	UserQuery     string `json:"user_query"`
	CurrentAgent  string `json:"current_agent"`

	ExecutionPlan plan.Plan `json:"execution_plan"`

	Status Status `json:"status"`

	NeedsReplan     bool   `json:"needs_replan"`
	SuggestedAgent  string `json:"suggested_agent,omitempty"`
	SuggestedQuery  string `json:"suggested_query,omitempty"`
	ReplanCount     int    `json:"replan_count"`

	Errors []StepError `json:"errors,omitempty"`

	Context  map[string]any `json:"context,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	History []StateChange `json:"history,omitempty"`

	Phase          Phase          `json:"phase"`
	CheckpointTime time.Time      `json:"checkpoint_time"`
	CheckpointType CheckpointType `json:"checkpoint_type,omitempty"`

	CancelRequested bool `json:"cancel_requested"`
}

// New creates a fresh WorkflowState for a new client request.
func New(workflowID, userQuery string) *WorkflowState {
	return &WorkflowState{
		SchemaVersion: SchemaVersion,
		WorkflowID:    workflowID,
		UserQuery:     userQuery,
		Status:        StatusPlanning,
		Context:       make(map[string]any),
		Metadata:      make(map[string]any),
		Phase:         PhasePlanning,
	}
}

// Clone returns a deep-enough copy so node functions can treat state as
// immutable: the plan slice and maps are copied, values within maps are
// shared by reference (shallow-copy semantics).
func (s *WorkflowState) Clone() *WorkflowState {
	out := *s
	out.ExecutionPlan = append(plan.Plan(nil), s.ExecutionPlan...)
	out.Errors = append([]StepError(nil), s.Errors...)
	out.History = append([]StateChange(nil), s.History...)
	out.Context = make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	out.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// SetContext records a context mutation and appends a bounded audit entry.
func (s *WorkflowState) SetContext(key string, value any, agent string) {
	s.Context[key] = value
	s.History = append(s.History, StateChange{
		Timestamp: time.Now(),
		Agent:     agent,
		Action:    "set_context",
		Key:       key,
	})
	if len(s.History) > MaxHistorySize {
		s.History = s.History[len(s.History)-MaxHistorySize:]
	}
}

// IsTerminal reports whether the workflow has finished, successfully or not.
func (s *WorkflowState) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// NeedsUserInput reports whether the workflow is durably suspended awaiting
// an external approval decision.
func (s *WorkflowState) NeedsUserInput() bool {
	return s.Status == StatusWaitingApproval
}

// Serialize encodes the state as its persisted JSON envelope.
func (s *WorkflowState) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// Deserialize decodes a persisted envelope, rejecting schema mismatches.
func Deserialize(data []byte) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("incompatible schema_version %d (want %d)", s.SchemaVersion, SchemaVersion)
	}
	return &s, nil
}
