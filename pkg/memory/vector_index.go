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
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/hectorflow/orchestrator/pkg/vector"
)

const vectorDims = 64

const memoryCollection = "plan_memory"

// VectorIndex is an Index backed by an embedded chromem-go vector.Provider.
// Because the core never calls an LLM or embedding API, the embedding used
// is a deterministic local hashed bag-of-words vector: repeatable across
// runs, exercisable offline, and good enough to rank lexically related
// tasks above unrelated ones.
type VectorIndex struct {
	provider vector.Provider
}

// NewVectorIndex wraps a vector.Provider as an Index.
func NewVectorIndex(provider vector.Provider) *VectorIndex {
	return &VectorIndex{provider: provider}
}

func (v *VectorIndex) Name() string { return string(BackendVector) }

func (v *VectorIndex) Store(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal memory entry: %w", err)
	}
	id := uuid.NewString()
	metadata := map[string]any{
		"content": entry.TaskText,
		"payload": string(payload),
		"success": entry.Success,
	}
	return v.provider.Upsert(ctx, memoryCollection, id, hashEmbed(entry.TaskText), metadata)
}

func (v *VectorIndex) Search(ctx context.Context, taskText string, k int) ([]ScoredEntry, error) {
	results, err := v.provider.Search(ctx, memoryCollection, hashEmbed(taskText), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]ScoredEntry, 0, len(results))
	for _, r := range results {
		payload, _ := r.Metadata["payload"].(string)
		var entry Entry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			continue
		}
		out = append(out, ScoredEntry{Entry: entry, Score: float64(r.Score)})
	}
	return out, nil
}

// hashEmbed deterministically maps text onto a fixed-width float vector by
// hashing each token into a bucket and counting tokens per bucket, then
// scaling to unit length (a minimal, dependency-free feature-hashing
// embedding). Identical text
// always produces an identical vector, satisfying the determinism
// requirement without any external embedding model.
func hashEmbed(text string) []float32 {
	vec := make([]float32, vectorDims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := h.Sum32() % uint32(vectorDims)
		vec[bucket]++
	}
	normalize(vec)
	return vec
}

// normalize scales vec to unit length in place so cosine similarity search
// behaves consistently regardless of token count.
func normalize(vec []float32) {
	var sumSquares float32
	for _, x := range vec {
		sumSquares += x * x
	}
	length := sqrtApprox(sumSquares)
	if length == 0 {
		return
	}
	for i := range vec {
		vec[i] /= length
	}
}

func sqrtApprox(x float32) float32 {
	if x == 0 {
		return 0
	}
	guess := x
	for i := 0; i < 20; i++ {
		guess = 0.5 * (guess + x/guess)
	}
	return guess
}

var _ Index = (*VectorIndex)(nil)
