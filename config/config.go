// Package config provides configuration types and utilities for the
// orchestration engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hectorflow/orchestrator/pkg/observability"
)

// ============================================================================
// MAIN UNIFIED CONFIGURATION
// ============================================================================

// OrchestratorConfig is the single entry point for all configuration
// recognized by the core.
type OrchestratorConfig struct {
	Version     string            `yaml:"version,omitempty"`
	Name        string            `yaml:"name,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`

	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Performance PerformanceConfig `yaml:"performance,omitempty"`

	Planner  PlannerConfig  `yaml:"planner,omitempty"`
	Engine   EngineConfig   `yaml:"engine,omitempty"`
	Approval ApprovalConfig `yaml:"approval,omitempty"`

	StateStore  StoreConfig       `yaml:"state_store,omitempty"`
	MemoryStore MemoryStoreConfig `yaml:"memory_store,omitempty"`

	Observability observability.Config `yaml:"observability,omitempty"`
	Serve         ServeConfig           `yaml:"serve,omitempty"`
}

// Validate implements Config.Validate for OrchestratorConfig
func (c *OrchestratorConfig) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	if err := c.Performance.Validate(); err != nil {
		return fmt.Errorf("performance config validation failed: %w", err)
	}
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("planner config validation failed: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config validation failed: %w", err)
	}
	if err := c.Approval.Validate(); err != nil {
		return fmt.Errorf("approval config validation failed: %w", err)
	}
	if err := c.StateStore.Validate(); err != nil {
		return fmt.Errorf("state store config validation failed: %w", err)
	}
	if err := c.MemoryStore.Validate(); err != nil {
		return fmt.Errorf("memory store config validation failed: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability config validation failed: %w", err)
	}
	if err := c.Serve.Validate(); err != nil {
		return fmt.Errorf("serve config validation failed: %w", err)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for OrchestratorConfig, cascading
// into every nested section.
func (c *OrchestratorConfig) SetDefaults() {
	c.Logging.SetDefaults()
	c.Performance.SetDefaults()
	c.Planner.SetDefaults()
	c.Engine.SetDefaults()
	c.Approval.SetDefaults()
	c.StateStore.SetDefaults()
	c.MemoryStore.SetDefaults()
	c.Observability.SetDefaults()
	c.Serve.SetDefaults()
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
}

// ============================================================================
// CONFIGURATION LOADING
// ============================================================================

// LoadConfig loads the complete configuration from a YAML file, expanding
// ${VAR}/${VAR:-default}/$VAR references against the process environment
// before defaults are applied.
func LoadConfig(filePath string) (*OrchestratorConfig, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return LoadConfigFromString(string(raw))
}

// LoadConfigFromString loads configuration from a YAML string.
func LoadConfigFromString(yamlContent string) (*OrchestratorConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	expanded := ExpandEnvVarsInData(raw)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode expanded config: %w", err)
	}

	var cfg OrchestratorConfig
	if err := yaml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns an OrchestratorConfig with every section set to its
// documented default, suitable for zero-config startup.
func Default() *OrchestratorConfig {
	cfg := &OrchestratorConfig{}
	cfg.SetDefaults()
	return cfg
}
