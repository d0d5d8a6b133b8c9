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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hectorflow/orchestrator/config"
	"github.com/hectorflow/orchestrator/internal/approval"
	"github.com/hectorflow/orchestrator/internal/engine"
	"github.com/hectorflow/orchestrator/internal/planner"
	"github.com/hectorflow/orchestrator/pkg/agents"
	"github.com/hectorflow/orchestrator/pkg/demoagents"
	"github.com/hectorflow/orchestrator/pkg/observability"
	"github.com/hectorflow/orchestrator/pkg/registry"
)

const shutdownGrace = 5 * time.Second

// ServeCmd runs the engine as a long-lived process, recovering any
// checkpointed workflows and exposing the Observability Metrics Recorder's
// scrape endpoint over HTTP. It starts no workflow of its own; pair it with
// a State Store backend shared by a run invocation, or extend it with a
// transport of your own.
type ServeCmd struct {
	Watch bool `help:"Watch the config file for changes and validate edits as they land."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

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

	if c.Watch && cli.Config != "" {
		watcher, werr := config.NewWatcher(cli.Config)
		if werr != nil {
			return fmt.Errorf("watch config: %w", werr)
		}
		defer watcher.Close() //nolint:errcheck
		changes, werr := watcher.Watch(ctx)
		if werr != nil {
			return fmt.Errorf("watch config: %w", werr)
		}
		go func() {
			// Reloads validate the edited file as it lands; running
			// workflows keep the config they started with, so applying a
			// change still takes a restart.
			for range changes {
				slog.Info("config file changed and validated; restart to apply", "path", cli.Config)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Observability.Metrics.Endpoint, obs.MetricsHandler())
	handler := observability.HTTPMiddleware(obs.Tracer(), obs.Metrics())(mux)

	srv := &http.Server{Addr: cfg.Serve.Addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", cfg.Serve.Addr, "endpoint", cfg.Observability.Metrics.Endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
