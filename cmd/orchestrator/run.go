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

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hectorflow/orchestrator/config"
	"github.com/hectorflow/orchestrator/internal/approval"
	"github.com/hectorflow/orchestrator/internal/engine"
	"github.com/hectorflow/orchestrator/internal/planner"
	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/demoagents"
	"github.com/hectorflow/orchestrator/pkg/memory"
	"github.com/hectorflow/orchestrator/pkg/observability"
	"github.com/hectorflow/orchestrator/pkg/registry"
	"github.com/hectorflow/orchestrator/pkg/state"
	"github.com/hectorflow/orchestrator/pkg/vector"
)

// RunCmd drives a single workflow through the Workflow Engine to
// completion or suspension. Outstanding approvals are auto-approved after
// being printed, since this CLI has no interactive approval surface of
// its own.
type RunCmd struct {
	Query      string `help:"Natural-language task to plan and execute." required:""`
	WorkflowID string `name:"workflow-id" help:"Workflow id; a fresh uuid is minted if omitted."`
	Workspace  string `help:"Workspace path handed to every agent." type:"path"`
	AutoApprove bool  `name:"auto-approve" default:"true" negatable:"" help:"Automatically approve architecture proposals instead of leaving the workflow suspended."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := loadOrDefaultConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := newStore(cfg.StateStore)
	if err != nil {
		return fmt.Errorf("build state store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	idx, err := newMemoryIndex(cfg.MemoryStore)
	if err != nil {
		return fmt.Errorf("build memory index: %w", err)
	}

	reg := registry.NewBaseRegistry[agents.Executor]()
	demoagents.Register(reg)

	pl := planner.New(cfg.Planner, reg, idx)
	e := engine.New(store, reg, pl, cfg.Engine, cfg.Approval)
	e.SetMemoryIndex(idx)

	obs, err := observability.NewManager(ctx, &cfg.Observability)
	if err != nil {
		return fmt.Errorf("build observability manager: %w", err)
	}
	defer obs.Shutdown(ctx) //nolint:errcheck
	e.SetObservability(obs)
	pl.SetObservability(obs)

	if err := e.RecoverOnStartup(ctx); err != nil {
		return fmt.Errorf("recover pending workflows: %w", err)
	}

	go e.RunApprovalSweeper(ctx, approval.DefaultSweepInterval)
	go printEvents(e)

	workflowID := c.WorkflowID
	if workflowID == "" {
		workflowID = newWorkflowID()
	}

	s, err := e.StartInWorkspace(ctx, workflowID, c.Query, c.Workspace)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}

	if s.Status == state.StatusWaitingApproval && c.AutoApprove {
		fmt.Printf("workflow %s suspended for approval; auto-approving\n", s.WorkflowID)
		e.Approvals().Resolve(ctx, s.WorkflowID, approval.Approved, "", nil)
		s, err = store.Load(ctx, s.WorkflowID)
		if err != nil {
			return fmt.Errorf("reload workflow after approval: %w", err)
		}
	}

	fmt.Printf("\nworkflow %s: status=%s steps=%d\n", s.WorkflowID, s.Status, len(s.ExecutionPlan))
	for _, step := range s.ExecutionPlan {
		fmt.Printf("  [%d] %-12s %-10s %s\n", step.ID, step.Agent, step.Status, step.Task)
	}
	if len(s.Errors) > 0 {
		fmt.Println("errors:")
		for _, e := range s.Errors {
			fmt.Printf("  step=%d agent=%s %s\n", e.StepID, e.Agent, e.Message)
		}
	}
	return nil
}

func printEvents(e *engine.Engine) {
	for ev := range e.Events() {
		slog.Info("event", "type", ev.Type, "workflow_id", ev.WorkflowID, "step_id", ev.StepID, "agent", ev.Agent)
	}
}

func newStore(cfg config.StoreConfig) (state.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return state.NewSQLiteStore(cfg.SQLitePath)
	default:
		return state.NewMapStore(), nil
	}
}

func newMemoryIndex(cfg config.MemoryStoreConfig) (memory.Index, error) {
	mc := memory.Config{Backend: memory.Backend(cfg.Backend)}
	if mc.Backend == memory.BackendVector {
		mc.Vector = &vector.ProviderConfig{
			Type:    vector.ProviderChromem,
			Chromem: &vector.ChromemConfig{PersistPath: cfg.VectorPath},
		}
	}
	mc.SetDefaults()
	if err := mc.Validate(); err != nil {
		return nil, err
	}
	return memory.NewIndex(&mc)
}
