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

package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// KeywordIndex is a deterministic, dependency-free lexical scorer: term
// frequency over a normalized token set, with no embedding model and no
// network calls. It is the default Index backend and the one required for
// the memory fast-path's determinism guarantee, since it needs nothing
// external to run in tests or CI.
type KeywordIndex struct {
	mu      sync.Mutex
	entries []Entry
}

// NewKeywordIndex creates an empty in-memory keyword index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{}
}

func (k *KeywordIndex) Name() string { return string(BackendKeyword) }

func (k *KeywordIndex) Store(_ context.Context, entry Entry) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries = append(k.entries, entry)
	return nil
}

func (k *KeywordIndex) Search(_ context.Context, taskText string, n int) ([]ScoredEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	query := tokenize(taskText)
	if len(query) == 0 || len(k.entries) == 0 {
		return nil, nil
	}

	scored := make([]ScoredEntry, 0, len(k.entries))
	for _, e := range k.entries {
		score := calculateScore(query, tokenize(e.TaskText))
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredEntry{Entry: e, Score: score})
	}

	// Stable sort by descending score, ties broken by original insertion
	// order (sort.SliceStable preserves it).
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

// tokenize lower-cases and splits on non-letter/non-digit runes, dropping
// empty tokens. Deterministic for identical input.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// calculateScore is the cosine similarity of the two token lists'
// term-frequency vectors: shared terms weighted by how often they recur in
// both, divided by the product of both vectors' Euclidean norms so longer
// candidates are not unfairly favored.
func calculateScore(query, candidate []string) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}

	queryFreq := termFrequency(query)
	candidateFreq := termFrequency(candidate)

	var dot, queryNorm, candidateNorm float64
	for term, qf := range queryFreq {
		cf := candidateFreq[term]
		dot += qf * cf
	}
	for _, qf := range queryFreq {
		queryNorm += qf * qf
	}
	for _, cf := range candidateFreq {
		candidateNorm += cf * cf
	}
	if queryNorm == 0 || candidateNorm == 0 {
		return 0
	}
	return dot / (math.Sqrt(queryNorm) * math.Sqrt(candidateNorm))
}

func termFrequency(tokens []string) map[string]float64 {
	freq := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	total := float64(len(tokens))
	for t := range freq {
		freq[t] /= total
	}
	return freq
}

var _ Index = (*KeywordIndex)(nil)
