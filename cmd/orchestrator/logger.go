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
	"fmt"
	"os"

	"github.com/hectorflow/orchestrator/pkg/logger"
)

const (
	// LogFileEnvVar overrides the log file path when no CLI flag is given.
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar overrides the log level when no CLI flag is given.
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar overrides the log format when no CLI flag is given.
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLoggerFromCLI initializes the global logger from CLI flags, falling
// back to environment variables and finally hard defaults. Priority: CLI
// flag > env var > default.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (level, file, format string, cleanup func(), err error) {
	level = cliLogLevel
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		level = "info"
	}

	file = cliLogFile
	if file == "" {
		file = os.Getenv(LogFileEnvVar)
	}

	format = cliLogFormat
	if format == "" {
		format = os.Getenv(LogFormatEnvVar)
	}
	if format == "" {
		format = "simple"
	}

	parsed, perr := logger.ParseLevel(level)
	if perr != nil {
		return "", "", "", nil, fmt.Errorf("invalid log level: %w", perr)
	}

	output := os.Stderr
	if file != "" {
		f, cleanupFn, oerr := logger.OpenLogFile(file)
		if oerr != nil {
			return "", "", "", nil, fmt.Errorf("failed to open log file: %w", oerr)
		}
		output = f
		cleanup = cleanupFn
	}

	logger.Init(parsed, output, format)
	return level, file, format, cleanup, nil
}
