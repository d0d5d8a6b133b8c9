// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory stores past plan decompositions keyed by the task text that
// produced them, so the planner can adapt a previously successful plan
// instead of re-decomposing from scratch.
package memory

import (
	"context"
	"time"
)

// Entry is one Plan Memory Entry: a past task, the decomposition the
// planner produced for it, and whether running that plan succeeded.
type Entry struct {
	TaskText       string         `json:"task_text"`
	Decomposition  Decomposition  `json:"decomposition"`
	Success        bool           `json:"success"`
	DurationSeconds float64       `json:"duration_seconds"`
	ErrorSummary   string         `json:"error_summary,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Decomposition captures the agent sequence and dependency shape of a past
// plan, independent of the concrete task text, so it can be replayed against
// a new task by substituting role-positional descriptions.
type Decomposition struct {
	Steps []DecompositionStep `json:"steps"`
}

// DecompositionStep is one step of a stored decomposition.
type DecompositionStep struct {
	Agent        string `json:"agent"`
	Role         string `json:"role"` // e.g. "design", "implement", "test"
	Dependencies []int  `json:"dependencies,omitempty"`
}

// ScoredEntry pairs a stored Entry with the similarity score it achieved
// against a search query.
type ScoredEntry struct {
	Entry Entry
	Score float64
}

// Index is the Memory Store contract. Implementations must be deterministic
// for identical inputs, and callers must tolerate an empty result or a
// total backend failure (the planner falls back to fresh planning).
type Index interface {
	Store(ctx context.Context, entry Entry) error
	Search(ctx context.Context, taskText string, k int) ([]ScoredEntry, error)
	// Name identifies the backend ("keyword", "vector") for metric labels.
	Name() string
}

// FilterSuccess retains only entries flagged as successful, preserving
// order.
func FilterSuccess(entries []ScoredEntry) []ScoredEntry {
	out := make([]ScoredEntry, 0, len(entries))
	for _, e := range entries {
		if e.Entry.Success {
			out = append(out, e)
		}
	}
	return out
}
