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

// Package agents defines the uniform contract every agent executor must
// satisfy to be callable from the Agent Registry, plus the collaboration
// hints an executor may return to request that another agent be inserted
// into the running plan.
package agents

import "context"

// Status is the terminal disposition of a single agent invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// CollaborationHints lets any agent ask the planner to insert another
// agent's step into the plan at runtime.
type CollaborationHints struct {
	NeedsReplan    bool   `json:"needs_replan"`
	SuggestedAgent string `json:"suggested_agent,omitempty"`
	SuggestedQuery string `json:"suggested_query,omitempty"`
}

// Result is what an Executor returns for one step.
type Result struct {
	Content  string         `json:"content"`
	Status   Status         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Hints    *CollaborationHints `json:"collaboration_hints,omitempty"`
}

// Task is the uniform input handed to an Executor: the free-form task
// string, the cross-step context map, and the workspace the agent should
// operate in.
type Task struct {
	Description   string
	Context       map[string]any
	WorkspacePath string
}

// Executor is a named, registrable unit of work. The engine dispatches to
// executors by name only — never by concrete type — so any capability set
// can be added to the registry without touching the engine or router
//.
type Executor interface {
	// Name is the stable, lowercase identifier this executor is registered
	// under (e.g. "architect", "reviewer", "fixer").
	Name() string
	// Execute runs task and returns a Result, or an error for a transient
	// failure the node contract must convert into Result{Status: StatusError}
	// at the node boundary.
	Execute(ctx context.Context, task Task) (Result, error)
}

// Func adapts a plain function to the Executor interface, so callers can
// register closures alongside struct implementations.
type Func struct {
	AgentName string
	Fn        func(ctx context.Context, task Task) (Result, error)
}

func (f Func) Name() string { return f.AgentName }

func (f Func) Execute(ctx context.Context, task Task) (Result, error) {
	return f.Fn(ctx, task)
}

var _ Executor = Func{}
