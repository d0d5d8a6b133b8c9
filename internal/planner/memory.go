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
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/plan"
)

// tracedAdaptFromMemory wraps adaptFromMemory in a tracing span and a
// memory-search metric covering the Memory Store lookup.
func (p *Planner) tracedAdaptFromMemory(ctx context.Context, taskText string) (plan.Plan, bool) {
	spanCtx := ctx
	if tr := p.obs.Tracer(); tr != nil {
		var span trace.Span
		spanCtx, span = tr.StartMemorySearch(ctx, taskText, p.cfg.MemorySearchK)
		defer span.End()
	}
	started := time.Now()
	pl, ok := adaptFromMemory(spanCtx, p.memory, taskText, p.cfg.MemorySearchK, p.cfg.MemorySimilarityThreshold)
	if p.memory != nil {
		p.obs.Metrics().RecordMemorySearch(p.memory.Name(), time.Since(started))
	}
	return pl, ok
}

// adaptFromMemory queries the Memory Store for up to k successful prior
// decompositions and, if one scores above threshold, rewrites its step task
// strings for the current task text.
//
// An ok=false return means no sufficiently similar
// successful prior plan exists; the caller must fall through to the LLM
// tier. Any Memory Store error is swallowed here — the planner tolerates a
// total store failure by falling back to fresh planning.
func adaptFromMemory(ctx context.Context, idx memory.Index, taskText string, k int, threshold float64) (plan.Plan, bool) {
	if idx == nil {
		return nil, false
	}
	results, err := idx.Search(ctx, taskText, k)
	if err != nil {
		return nil, false
	}
	successful := memory.FilterSuccess(results)
	if len(successful) == 0 {
		return nil, false
	}

	best := successful[0]
	for _, candidate := range successful[1:] {
		if candidate.Score > best.Score {
			best = candidate
		}
	}
	if best.Score < threshold {
		return nil, false
	}

	return rewriteDecomposition(best.Entry.Decomposition, taskText), true
}

// rewriteDecomposition preserves the agent sequence and dependency shape of
// a stored Decomposition, substituting the current task into each step's
// positionally-matching role description.
func rewriteDecomposition(d memory.Decomposition, taskText string) plan.Plan {
	var p plan.Plan
	for _, step := range d.Steps {
		role := step.Role
		if role == "" {
			role = "implement"
		}
		p = plan.AppendStep(p, plan.Step{
			Agent:        step.Agent,
			Task:         fmt.Sprintf("%s %s", role, taskText),
			Dependencies: step.Dependencies,
		})
	}
	return p
}
