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

// Command orchestrator is the CLI for the Workflow Engine.
//
// Usage:
//
//	orchestrator run --query "Fix bug in auth"
//	orchestrator run --config orchestrator.yaml --query "Entwickle eine Tetris Webapplikation"
//	orchestrator serve --config orchestrator.yaml
//	orchestrator validate orchestrator.yaml
//	orchestrator schema
package main

import (
	"fmt"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/hectorflow/orchestrator/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run a workflow to completion or suspension."`
	Serve    ServeCmd    `cmd:"" help:"Run the engine as a long-lived process and expose a metrics endpoint."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("orchestrator version %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	parser := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Multi-agent workflow orchestration engine."),
		kong.UsageOnError(),
	)

	_, _, _, cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		parser.FatalIfErrorf(err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = parser.Run(&cli)
	parser.FatalIfErrorf(err)
}

// loadOrDefaultConfig loads path if non-empty, otherwise returns
// config.Default() for zero-config startup.
func loadOrDefaultConfig(path string) (*config.OrchestratorConfig, error) {
	_ = config.LoadEnvFiles()
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// newWorkflowID mints a fresh workflow id for a CLI-initiated request.
func newWorkflowID() string {
	return uuid.NewString()
}
