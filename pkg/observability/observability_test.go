package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecording(t *testing.T) {
	cfg := &MetricsConfig{Enabled: true}
	m, err := NewMetrics(cfg)
	require.NoError(t, err)

	m.RecordAgentCall("fixer", 100*time.Millisecond)
	m.RecordAgentError("fixer", "timeout")
	m.IncAgentActiveRuns("fixer")
	m.DecAgentActiveRuns("fixer")

	var rec Recorder = m
	rec.RecordMemorySearch("keyword", 5*time.Millisecond)
	rec.RecordWorkflowCompleted("completed", time.Second)
}

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	// A nil *Metrics still satisfies Recorder and must not panic.
	var rec Recorder = m
	rec.RecordAgentCall("fixer", time.Millisecond)
}

func TestNoopMetricsSatisfiesRecorder(t *testing.T) {
	var rec Recorder = NoopMetrics{}
	rec.RecordAgentCall("fixer", time.Millisecond)
	rec.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0, 0)
}

func TestNoopTracerSatisfiesSpanTracer(t *testing.T) {
	var tracer SpanTracer = NoopTracer{}
	ctx, span := tracer.Start(context.Background(), "test_span")
	defer span.End()
	_, span2 := tracer.StartAgentRun(ctx, "wf-1", "1", "fixer", "do it", "pre_step")
	span2.End()
	assert.Nil(t, tracer.DebugExporter())
	assert.NoError(t, tracer.Shutdown(ctx))
}

func TestNewTracerStdoutExporter(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, Exporter: "stdout", ServiceName: "orchestrator-test"}
	cfg.SetDefaults()

	debug := NewDebugExporter()
	tracer, err := NewTracer(context.Background(), cfg, WithDebugExporter(debug), WithCapturePayloads(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	_, span := tracer.StartAgentRun(context.Background(), "wf-1", "1", "fixer", "fix the bug", "pre_step")
	tracer.AddPayload(span, "agent.output", "patched auth.go")
	span.End()

	assert.Equal(t, debug, tracer.DebugExporter())
}

func TestNewTracerRejectsUnvendoredExporter(t *testing.T) {
	cfg := &TracingConfig{Enabled: true, Exporter: "jaeger", ServiceName: "orchestrator-test"}
	cfg.SetDefaults()

	_, err := NewTracer(context.Background(), cfg)
	assert.Error(t, err)
}

func TestManagerDisabledIsSafeToUse(t *testing.T) {
	m, err := NewManager(context.Background(), &Config{})
	require.NoError(t, err)
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.Nil(t, m.Tracer())
	assert.Nil(t, m.Metrics())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerEnablesTracingAndMetrics(t *testing.T) {
	cfg := &Config{
		Tracing: TracingConfig{Enabled: true, Exporter: "stdout", DebugExporter: boolPtr(true)},
		Metrics: MetricsConfig{Enabled: true},
	}

	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.True(t, m.TracingEnabled())
	assert.True(t, m.MetricsEnabled())
	require.NotNil(t, m.DebugExporter())

	_, span := m.Tracer().Start(context.Background(), "manager_test_span")
	span.End()
}

func TestNoopManagerIsSafe(t *testing.T) {
	m := NoopManager()
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestStringTruncation(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"", 5, ""},
		{"test", 4, "test"},
		{"toolongstring", 4, "tool..."},
	}

	for _, tt := range tests {
		result := truncateString(tt.input, tt.maxLen)
		assert.Equal(t, tt.expected, result)
	}
}

func boolPtr(b bool) *bool { return &b }
