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

// Template is a fixed ordered agent sequence keyed by intent cues. A
// SkipIfNoIssues agent stays in every plan built from the template; the
// engine marks its step skipped at dispatch time unless an earlier step
// reported issues (via a needs_replan collaboration hint).
type Template struct {
	ID     string
	Agents []TemplateAgent
}

type TemplateAgent struct {
	Agent          string
	SkipIfNoIssues bool
}

var templates = []struct {
	ID   string
	Cues []string
	Tmpl Template
}{
	{
		ID:   "build_app",
		Cues: []string{"build app", "build a", "entwickle", "app", "application", "webapp"},
		Tmpl: Template{
			ID: "build_app",
			Agents: []TemplateAgent{
				{Agent: "architect"},
				{Agent: "codesmith"},
				{Agent: "reviewer"},
				{Agent: "fixer", SkipIfNoIssues: true},
			},
		},
	},
	{
		ID:   "fix_bug",
		Cues: []string{"fix bug", "fix a bug", "bugfix"},
		Tmpl: Template{
			ID: "fix_bug",
			Agents: []TemplateAgent{
				{Agent: "research"},
				{Agent: "fixer"},
				{Agent: "reviewer"},
			},
		},
	},
	{
		ID:   "refactor",
		Cues: []string{"refactor", "clean up", "cleanup"},
		Tmpl: Template{
			ID: "refactor",
			Agents: []TemplateAgent{
				{Agent: "architect"},
				{Agent: "codesmith"},
				{Agent: "reviewer"},
			},
		},
	},
}

// defaultTemplate is used when no cue matches: a generic implement+review
// pipeline, the template-tier's fallback for an otherwise-unclassified
// moderate task.
var defaultTemplate = Template{
	ID: "generic",
	Agents: []TemplateAgent{
		{Agent: "codesmith"},
		{Agent: "reviewer"},
	},
}

// SelectTemplate picks the template whose cues best match query, falling
// back to defaultTemplate.
func SelectTemplate(query string) Template {
	lower := strings.ToLower(query)
	for _, t := range templates {
		for _, cue := range t.Cues {
			if strings.Contains(lower, cue) {
				return t.Tmpl
			}
		}
	}
	return defaultTemplate
}
