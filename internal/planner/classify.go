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

// Package planner turns a user query into an initial execution plan
// (three-tier synthesis: keyword, template, memory-adapted/LLM) and handles
// re-planning requests raised by agent collaboration hints.
package planner

import (
	"strings"

	"github.com/hectorflow/orchestrator/config"
)

// Complexity is the outcome of classifying a user query.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

var imperativeVerbs = map[string]bool{
	"fix": true, "review": true, "explain": true, "show": true, "list": true,
}

var conjunctionMarkers = []string{" and ", " und "}

var multiObjectiveKeywords = []string{
	"integrate", "with tests and documentation",
	"mit tests und dokumentation",
}

// Classify implements the simple/complex classification rules, using cfg's
// configurable thresholds in place of the hard-coded defaults.
func Classify(query string, cfg config.PlannerConfig) Complexity {
	q := strings.TrimSpace(query)
	tokens := strings.Fields(q)
	lower := strings.ToLower(q)

	if isComplex(q, lower, tokens, cfg) {
		return Complex
	}
	if isSimple(q, lower, tokens, cfg) {
		return Simple
	}
	return Moderate
}

func isSimple(q, lower string, tokens []string, cfg config.PlannerConfig) bool {
	if len(tokens) <= cfg.SimpleMaxTokens {
		return true
	}
	firstWord := ""
	if len(tokens) > 0 {
		firstWord = strings.ToLower(strings.Trim(tokens[0], ".,!?"))
	}
	if imperativeVerbs[firstWord] {
		return true
	}
	if strings.HasSuffix(q, "?") && len(tokens) <= 6 {
		return true
	}
	return false
}

func isComplex(q, lower string, tokens []string, cfg config.PlannerConfig) bool {
	if len(tokens) > cfg.ComplexMinTokens {
		return true
	}
	if strings.Count(q, ",") > cfg.ComplexMinCommaClauses-1 {
		return true
	}
	for _, marker := range conjunctionMarkers {
		if strings.Count(lower, marker) >= 2 {
			return true
		}
	}
	for _, kw := range multiObjectiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
