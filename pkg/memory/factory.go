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

package memory

import (
	"fmt"

	"github.com/hectorflow/orchestrator/pkg/vector"
)

// Backend selects which Index implementation NewIndex constructs.
type Backend string

const (
	// BackendKeyword is the default: dependency-free, deterministic lexical
	// scoring, no vector store required.
	BackendKeyword Backend = "keyword"
	// BackendVector layers a vector.Provider-backed similarity search on
	// top of the same deterministic hashed embedding.
	BackendVector Backend = "vector"
)

// Config selects and configures a Memory Store backend.
type Config struct {
	Backend Backend               `yaml:"backend"`
	Vector  *vector.ProviderConfig `yaml:"vector,omitempty"`
}

// SetDefaults applies the keyword backend unless otherwise specified.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendKeyword
	}
	if c.Backend == BackendVector && c.Vector == nil {
		c.Vector = &vector.ProviderConfig{}
	}
	if c.Vector != nil {
		c.Vector.SetDefaults()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendKeyword, BackendVector, "":
	default:
		return fmt.Errorf("unknown memory backend: %q", c.Backend)
	}
	if c.Vector != nil {
		return c.Vector.Validate()
	}
	return nil
}

// NewIndex builds the configured Index backend. A vector backend with no
// vector config uses the default provider; provider type "none" yields the
// keyword index.
func NewIndex(cfg *Config) (Index, error) {
	if cfg == nil || cfg.Backend == BackendKeyword || cfg.Backend == "" {
		return NewKeywordIndex(), nil
	}

	vcfg := cfg.Vector
	if vcfg == nil {
		vcfg = &vector.ProviderConfig{}
		vcfg.SetDefaults()
	}
	if vcfg.Type == vector.ProviderNone {
		return NewKeywordIndex(), nil
	}

	provider, err := vector.NewProvider(vcfg)
	if err != nil {
		return nil, fmt.Errorf("build vector provider: %w", err)
	}
	return NewVectorIndex(provider), nil
}
