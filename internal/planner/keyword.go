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

import "strings"

// keywordTable maps a lexical cue to the agent it favors and a confidence in
// [0, 5], modeled on a getDefaultCapabilities/keyword-ish agent
// matching idiom (team.go), generalized into an explicit static table.
var keywordTable = map[string]struct {
	Agent      string
	Confidence float64
}{
	"fix":        {"fixer", 4.5},
	"bug":        {"fixer", 4.0},
	"bugfix":     {"fixer", 4.5},
	"repair":     {"fixer", 3.5},
	"review":     {"reviewer", 4.5},
	"audit":      {"reviewer", 3.5},
	"explain":    {"docbot", 4.0},
	"document":   {"docbot", 4.0},
	"docs":       {"docbot", 3.5},
	"show":       {"docbot", 2.5},
	"list":       {"docbot", 2.0},
	"research":   {"research", 4.5},
	"investigate": {"research", 4.0},
	"find":       {"research", 2.5},
	"design":     {"architect", 4.0},
	"architecture": {"architect", 4.5},
	"build":      {"codesmith", 3.0},
	"implement":  {"codesmith", 4.0},
	"write":      {"codesmith", 3.0},
	"create":     {"codesmith", 3.0},
	"develop":    {"codesmith", 3.0},
	"entwickle":  {"codesmith", 3.0},
}

// KeywordMatch scores query tokens against keywordTable and returns the
// highest-confidence agent match, if any exceeds a confidence of 1.0. If no
// keyword clears that bar, the caller falls through to the next tier.
func KeywordMatch(query string) (agent string, confidence float64, ok bool) {
	lower := strings.ToLower(query)
	best := 0.0
	bestAgent := ""
	for word, m := range keywordTable {
		if strings.Contains(lower, word) && m.Confidence > best {
			best = m.Confidence
			bestAgent = m.Agent
		}
	}
	if best > 1.0 {
		return bestAgent, best, true
	}
	return "", 0, false
}
