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
	"log/slog"
	"time"

	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/state"
)

// SetMemoryIndex wires the Plan Memory Store into the engine so every
// terminal workflow records its decomposition and outcome. Safe to skip:
// with no index set, outcomes are simply not remembered, so this engine adds
// nothing for the planner's memory-adapted tier to draw on.
func (e *Engine) SetMemoryIndex(idx memory.Index) {
	e.memory = idx
}

// roleForAgent maps an agent name onto the role verb the memory-adapted
// planning tier substitutes the next task into ("design X", "implement X").
var roleForAgent = map[string]string{
	"architect": "design",
	"codesmith": "implement",
	"reviewer":  "review",
	"fixer":     "fix",
	"research":  "research",
	"docbot":    "document",
}

// recordOutcome writes a Plan Memory Entry for a workflow that just reached
// a terminal status. Best effort: a Memory Store failure is logged, never
// surfaced, since remembering an outcome must not fail the workflow that
// produced it.
func (e *Engine) recordOutcome(ctx context.Context, s *state.WorkflowState) {
	if e.memory == nil || len(s.ExecutionPlan) == 0 {
		return
	}

	steps := make([]memory.DecompositionStep, 0, len(s.ExecutionPlan))
	for _, step := range s.ExecutionPlan {
		role := roleForAgent[step.Agent]
		if role == "" {
			role = "implement"
		}
		steps = append(steps, memory.DecompositionStep{
			Agent:        step.Agent,
			Role:         role,
			Dependencies: step.Dependencies,
		})
	}

	errorSummary := ""
	if len(s.Errors) > 0 {
		errorSummary = s.Errors[len(s.Errors)-1].Message
	}

	entry := memory.Entry{
		TaskText:        s.UserQuery,
		Decomposition:   memory.Decomposition{Steps: steps},
		Success:         s.Status == state.StatusCompleted,
		DurationSeconds: workflowDuration(s).Seconds(),
		ErrorSummary:    errorSummary,
		CreatedAt:       time.Now(),
	}
	if err := e.memory.Store(ctx, entry); err != nil {
		slog.Warn("failed to record plan memory entry", "workflow_id", s.WorkflowID, "error", err)
		return
	}
	e.obs.Metrics().RecordMemoryIndexed(e.memory.Name(), 1)
}
