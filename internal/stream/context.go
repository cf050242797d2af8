// Package stream implements the SSE stream processor and its per-attempt
// StreamContext (spec.md §3, §4.6), generalizing the teacher's raw
// line-by-line SSE forwarding (relay/adaptor/gemini/main.go's stream
// handling, relay/adaptor/openai's response_api_stream_handler.go) into a
// family-neutral pipeline driven by the convert.Registry.
package stream

import "net/http"

// Context is the per-attempt mutable record of spec.md §3's StreamContext.
type Context struct {
	Model     string
	APIFormat string

	ProviderName      string
	ProviderID        int64
	EndpointID        int64
	KeyID             int64
	AttemptID         int
	ProviderAPIFormat string
	MappedModel       string

	InputTokens         int
	OutputTokens        int
	CachedTokens        int
	CacheCreationTokens int

	CollectedText  string
	StatusCode     int
	ErrorMessage   string
	HasCompletion  bool

	ResponseHeaders    http.Header
	UpstreamRequestHeaders http.Header
	UpstreamRequestBody    []byte

	DataCount    int
	ChunkCount   int
	ParsedChunks []map[string]any
}

// NewContext builds a fresh Context for model/apiFormat with StatusCode
// defaulted to 200 per spec.md §3.
func NewContext(model, apiFormat string) *Context {
	return &Context{Model: model, APIFormat: apiFormat, StatusCode: http.StatusOK}
}

// ResetForRetry preserves only Model and APIFormat; every other counter
// and buffer returns to its initial value, per spec.md §3's invariant.
func (c *Context) ResetForRetry() {
	model, apiFormat := c.Model, c.APIFormat
	*c = Context{Model: model, APIFormat: apiFormat, StatusCode: http.StatusOK}
}
