package observability

const (
	AttrServiceName      = "service.name"
	AttrServiceVersion   = "service.version"
	AttrAgentName        = "agent.name"
	AttrErrorType        = "error.type"
	AttrEventID          = "orchestrator.event_id"
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	// Span names captured by the in-memory DebugExporter.
	SpanAgentRun     = "orchestrator.agent_run"
	SpanMemorySearch = "orchestrator.memory_search"
	SpanHTTPRequest  = "http.request"

	DefaultServiceName  = "orchestrator"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
