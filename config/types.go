// Package config provides configuration types and utilities for the
// orchestration engine.
package config

import (
	"fmt"
	"time"
)

// ============================================================================
// GLOBAL CONFIGURATIONS
// ============================================================================

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // Log level
	Format string `yaml:"format"` // Log format
	Output string `yaml:"output"` // Output destination
}

// Validate implements Config.Validate for LoggingConfig
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	validFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	validOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validOutputs[c.Output] {
		return fmt.Errorf("invalid output destination: %s", c.Output)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for LoggingConfig
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

// PerformanceConfig represents performance configuration
type PerformanceConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"` // Max concurrency
	Timeout        time.Duration `yaml:"timeout"`         // Global timeout
}

// Validate implements Config.Validate for PerformanceConfig
func (c *PerformanceConfig) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for PerformanceConfig
func (c *PerformanceConfig) SetDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Minute
	}
}

// PlannerConfig holds the configurable thresholds and mode for the Planner
//.
type PlannerConfig struct {
	// Mode selects which synthesis tier is forced; "auto" lets the
	// classifier decide (default).
	Mode string `yaml:"planner_mode"`

	// SimpleMaxTokens: queries at or below this token count are simple.
	SimpleMaxTokens int `yaml:"simple_max_tokens"`
	// ComplexMinTokens: queries above this token count are complex.
	ComplexMinTokens int `yaml:"complex_min_tokens"`
	// ComplexMinCommaClauses: comma-separated clauses above this count push
	// a query to complex.
	ComplexMinCommaClauses int `yaml:"complex_min_comma_clauses"`

	// MemorySimilarityThreshold: minimum similarity for the memory
	// fast-path to be taken instead of an LLM decomposition call.
	MemorySimilarityThreshold float64 `yaml:"memory_similarity_threshold"`
	// MemorySearchK: number of candidate memory entries considered.
	MemorySearchK int `yaml:"memory_search_k"`
}

// Validate implements Config.Validate for PlannerConfig
func (c *PlannerConfig) Validate() error {
	switch c.Mode {
	case "keyword", "template", "llm", "auto":
	default:
		return fmt.Errorf("invalid planner_mode: %s", c.Mode)
	}
	if c.SimpleMaxTokens <= 0 {
		return fmt.Errorf("simple_max_tokens must be positive")
	}
	if c.ComplexMinTokens <= c.SimpleMaxTokens {
		return fmt.Errorf("complex_min_tokens must exceed simple_max_tokens")
	}
	if c.ComplexMinCommaClauses <= 0 {
		return fmt.Errorf("complex_min_comma_clauses must be positive")
	}
	if c.MemorySimilarityThreshold < 0 || c.MemorySimilarityThreshold > 1 {
		return fmt.Errorf("memory_similarity_threshold must be in [0,1]")
	}
	if c.MemorySearchK <= 0 {
		return fmt.Errorf("memory_search_k must be positive")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for PlannerConfig
func (c *PlannerConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "auto"
	}
	if c.SimpleMaxTokens == 0 {
		c.SimpleMaxTokens = 3
	}
	if c.ComplexMinTokens == 0 {
		c.ComplexMinTokens = 15
	}
	if c.ComplexMinCommaClauses == 0 {
		c.ComplexMinCommaClauses = 2
	}
	if c.MemorySimilarityThreshold == 0 {
		c.MemorySimilarityThreshold = 0.85
	}
	if c.MemorySearchK == 0 {
		c.MemorySearchK = 3
	}
}

// EngineConfig holds the Workflow Engine's concurrency and guard-rail
// settings.
type EngineConfig struct {
	// MaxConcurrentWorkflows caps the number of workflows executing at
	// once; excess requests queue FIFO.
	MaxConcurrentWorkflows int `yaml:"max_concurrent_workflows"`
	// ReplanLoopGuard caps the number of replans a single workflow may
	// accumulate before it is failed with "replan_limit".
	ReplanLoopGuard int `yaml:"replan_loop_guard"`
	// AgentTimeouts maps agent name to its per-invocation timeout.
	AgentTimeouts map[string]time.Duration `yaml:"agent_timeouts"`
	// DefaultAgentTimeout applies to any agent absent from AgentTimeouts.
	DefaultAgentTimeout time.Duration `yaml:"default_agent_timeout"`
	// EnableParallelGroups turns on concurrent dispatch (via errgroup) of a
	// batch of pending steps that share the same satisfied dependency set.
	// nil means "use the default" (enabled); a plan with no such batches
	// runs exactly as it would sequentially either way.
	EnableParallelGroups *bool `yaml:"enable_parallel_groups,omitempty"`
}

// ParallelGroupsEnabled returns whether the engine should dispatch
// same-dependency-set step batches concurrently, defaulting to true when
// unset.
func (c *EngineConfig) ParallelGroupsEnabled() bool {
	return c.EnableParallelGroups == nil || *c.EnableParallelGroups
}

// Validate implements Config.Validate for EngineConfig
func (c *EngineConfig) Validate() error {
	if c.MaxConcurrentWorkflows <= 0 {
		return fmt.Errorf("max_concurrent_workflows must be positive")
	}
	if c.ReplanLoopGuard <= 0 {
		return fmt.Errorf("replan_loop_guard must be positive")
	}
	if c.DefaultAgentTimeout <= 0 {
		return fmt.Errorf("default_agent_timeout must be positive")
	}
	for name, d := range c.AgentTimeouts {
		if d <= 0 {
			return fmt.Errorf("agent_timeouts[%s] must be positive", name)
		}
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for EngineConfig
func (c *EngineConfig) SetDefaults() {
	if c.EnableParallelGroups == nil {
		enabled := true
		c.EnableParallelGroups = &enabled
	}
	if c.MaxConcurrentWorkflows == 0 {
		c.MaxConcurrentWorkflows = 16
	}
	if c.ReplanLoopGuard == 0 {
		c.ReplanLoopGuard = 10
	}
	if c.DefaultAgentTimeout == 0 {
		c.DefaultAgentTimeout = 300 * time.Second
	}
	if c.AgentTimeouts == nil {
		c.AgentTimeouts = make(map[string]time.Duration)
	}
	if _, ok := c.AgentTimeouts["reviewer"]; !ok {
		c.AgentTimeouts["reviewer"] = 60 * time.Second
	}
	if _, ok := c.AgentTimeouts["research"]; !ok {
		c.AgentTimeouts["research"] = 300 * time.Second
	}
	for _, codeAgent := range []string{"codesmith", "fixer", "architect"} {
		if _, ok := c.AgentTimeouts[codeAgent]; !ok {
			c.AgentTimeouts[codeAgent] = 900 * time.Second
		}
	}
}

// ApprovalConfig holds the Approval Manager's defaults.
type ApprovalConfig struct {
	TimeoutSeconds int `yaml:"approval_timeout_seconds"`
	// AutoRejectOnTimeout controls what the sweep does with an approval
	// past its deadline: true (default) auto-rejects it and resumes the
	// workflow with rejection semantics; false leaves it pending until a
	// client resolves it directly, for deployments that want a human to
	// always have the final say even on a missed deadline.
	AutoRejectOnTimeout *bool `yaml:"auto_reject_on_timeout,omitempty"`
}

// Validate implements Config.Validate for ApprovalConfig
func (c *ApprovalConfig) Validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("approval_timeout_seconds must be positive")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for ApprovalConfig
func (c *ApprovalConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 1800
	}
	if c.AutoRejectOnTimeout == nil {
		autoReject := true
		c.AutoRejectOnTimeout = &autoReject
	}
}

// ShouldAutoRejectOnTimeout reports whether the Approval Manager's sweep
// should auto-resume a timed-out approval with a rejection, defaulting to
// true when unset.
func (c *ApprovalConfig) ShouldAutoRejectOnTimeout() bool {
	return c.AutoRejectOnTimeout == nil || *c.AutoRejectOnTimeout
}

// Timeout returns the approval timeout as a time.Duration.
func (c *ApprovalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StoreConfig selects and configures the State Store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// SQLitePath is the database file path when Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path"`
}

// Validate implements Config.Validate for StoreConfig
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required when backend is sqlite")
		}
	default:
		return fmt.Errorf("invalid state store backend: %s", c.Backend)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for StoreConfig
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.SQLitePath == "" {
		c.SQLitePath = "orchestrator.db"
	}
}

// MemoryStoreConfig selects and configures the Plan Memory Store backend
//.
type MemoryStoreConfig struct {
	// Backend is "keyword" or "vector".
	Backend string `yaml:"backend"`
	// VectorPath is the chromem-go persistence directory when Backend is
	// "vector"; empty means in-memory only.
	VectorPath string `yaml:"vector_path"`
}

// Validate implements Config.Validate for MemoryStoreConfig
func (c *MemoryStoreConfig) Validate() error {
	switch c.Backend {
	case "keyword", "vector":
	default:
		return fmt.Errorf("invalid memory store backend: %s", c.Backend)
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for MemoryStoreConfig
func (c *MemoryStoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "keyword"
	}
}

// ServeConfig configures the HTTP listener the serve command binds for the
// Observability Metrics Recorder's scrape endpoint. It has no effect on the
// run command, which exports metrics only through whatever exporter
// Observability.Config itself is configured with.
type ServeConfig struct {
	// Addr is the listener address, e.g. ":9090" or "127.0.0.1:9090".
	Addr string `yaml:"addr,omitempty"`
}

// Validate implements Config.Validate for ServeConfig
func (c *ServeConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	return nil
}

// SetDefaults implements Config.SetDefaults for ServeConfig
func (c *ServeConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":9090"
	}
}
