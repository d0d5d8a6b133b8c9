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

// Package demoagents supplies deterministic, LLM-free stand-ins for the
// agent roles the planner's keyword and template tables reference
// (architect, codesmith, reviewer, fixer, research, docbot), plus the
// LLM tier's orchestrator and an opus_arbitrator that no planner tier
// references. Agent implementations normally live outside this
// module entirely; this package exists only so `orchestrator run` is
// runnable end to end without wiring a real LLM-backed agent.
package demoagents

import (
	"context"
	"fmt"

	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/registry"
)

// Names lists every stand-in this package registers, in registration order.
var Names = []string{
	"architect", "codesmith", "reviewer", "fixer",
	"research", "docbot", "orchestrator", "opus_arbitrator",
}

// Register adds one deterministic Executor per name in Names to reg,
// skipping any name already registered (so callers can override a subset
// with real executors before calling Register).
func Register(reg *registry.BaseRegistry[agents.Executor]) {
	for _, name := range Names {
		if _, ok := reg.Get(name); ok {
			continue
		}
		_ = reg.Register(name, echoExecutor(name))
	}
}

// echoExecutor returns a stub Executor that reports success and restates
// its task, so a plan can be driven to completion and its shape inspected
// without a real agent backing it.
func echoExecutor(name string) agents.Executor {
	return agents.Func{
		AgentName: name,
		Fn: func(ctx context.Context, task agents.Task) (agents.Result, error) {
			return agents.Result{
				Status:  agents.StatusSuccess,
				Content: fmt.Sprintf("%s: %s", name, task.Description),
			}, nil
		},
	}
}
