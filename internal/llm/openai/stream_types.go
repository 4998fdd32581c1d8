package openai

// StreamOptions configures OpenAI-compatible stream behavior.
type StreamOptions struct {
	// IncludeUsage requests token usage in the final stream payload.
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChunkSink receives raw stream chunks in arrival order.
// Returning an error stops the stream.
type ChunkSink func(raw any) error

// StreamSummary captures metadata from a streaming response.
type StreamSummary struct {
	// ID is the stream request id.
	ID string
	// Model is the model identifier.
	Model string
	// Usage reports token usage if available.
	Usage Usage
	// HasUsage reports whether Usage is populated.
	HasUsage bool
	// Chunks counts delivered payloads, excluding the sentinel.
	Chunks int
	// Done reports whether the gateway sent the completion sentinel.
	Done bool
}
