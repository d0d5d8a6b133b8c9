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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/hectorflow/orchestrator/pkg/agents"
)

// LLMSubtask is one entry of the orchestrator agent's required JSON
// decomposition.
type LLMSubtask struct {
	ID                 int    `json:"id" jsonschema:"required"`
	Description        string `json:"description" jsonschema:"required"`
	Agent              string `json:"agent" jsonschema:"required"`
	Dependencies       []int  `json:"dependencies"`
	EstimatedDuration  string `json:"estimated_duration,omitempty"`
}

// LLMDecomposition is the strict JSON object the orchestrator executor must
// return for the complex/LLM-decomposed tier.
type LLMDecomposition struct {
	Subtasks        []LLMSubtask `json:"subtasks" jsonschema:"required"`
	Parallelizable  bool         `json:"parallelizable"`
	Reasoning       string       `json:"reasoning,omitempty"`
}

// decompositionSchema is generated on each decomposition request and handed
// to the orchestrator executor (as the task's "response_schema" context
// entry) so the LLM has the exact shape to emit.
func decompositionSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(LLMDecomposition))
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal decomposition schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode decomposition schema: %w", err)
	}
	return m, nil
}

// requestLLMDecomposition invokes the registered "orchestrator" executor,
// asking it to decompose task into LLMSubtasks, and parses the strict JSON
// object it must return. Any parse or schema failure is returned to the
// caller, which falls back to the template tier.
func requestLLMDecomposition(ctx context.Context, orchestratorAgent agents.Executor, task string) (*LLMDecomposition, error) {
	schema, err := decompositionSchema()
	if err != nil {
		return nil, err
	}

	result, err := orchestratorAgent.Execute(ctx, agents.Task{
		Description: task,
		Context: map[string]any{
			"mode":               "plan_decomposition",
			"response_schema":    schema,
			"response_format":    "strict_json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator decomposition call failed: %w", err)
	}
	if result.Status != agents.StatusSuccess {
		return nil, fmt.Errorf("orchestrator decomposition returned status %q", result.Status)
	}

	var decomp LLMDecomposition
	if err := json.Unmarshal([]byte(result.Content), &decomp); err != nil {
		return nil, fmt.Errorf("invalid decomposition JSON: %w", err)
	}
	if len(decomp.Subtasks) == 0 {
		return nil, fmt.Errorf("decomposition has no subtasks")
	}
	for _, st := range decomp.Subtasks {
		if st.Agent == "" {
			return nil, fmt.Errorf("subtask %d missing agent", st.ID)
		}
	}
	return &decomp, nil
}
