// Package agent launches generations and pumps their chunks into a stream router.
package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openclaude/streamhub/internal/llm/openai"
	"github.com/openclaude/streamhub/internal/stream"
)

// ErrNoClient is returned when a launcher has no transport.
var ErrNoClient = errors.New("client is required")

// ErrNoRouter is returned when a launcher has no router.
var ErrNoRouter = errors.New("router is required")

// Streamer is the transport half the launcher needs.
type Streamer interface {
	// StreamChunks runs one streaming request, delivering raw chunks to sink.
	StreamChunks(ctx context.Context, streamID string, req *openai.ChatRequest, sink openai.ChunkSink) (*openai.StreamSummary, error)
}

// Target is a consumer that can host a new assistant message.
type Target interface {
	stream.Consumer
	// BeginAssistant appends the streaming placeholder for streamID.
	BeginAssistant(streamID string) error
	// Snapshot returns copies of the current history.
	Snapshot() []stream.Message
}

// ChunkRecorder captures raw chunks, typically into a transcript.
type ChunkRecorder interface {
	// RecordStart marks the beginning of a stream.
	RecordStart(streamID string, consumerID string) error
	// Record stores one raw chunk for streamID.
	Record(streamID string, raw any) error
	// RecordEnd marks the end of a stream with its transport error, if any.
	RecordEnd(streamID string, cause error) error
}

// Generation is the outcome of one launched stream.
type Generation struct {
	// StreamID identifies the stream.
	StreamID string
	// ConsumerID identifies the target.
	ConsumerID string
	// Summary is the transport summary, possibly partial.
	Summary *openai.StreamSummary
	// Err is the transport error, if any.
	Err error
}

// Launcher starts generations for targets.
type Launcher struct {
	// Client executes streaming requests.
	Client Streamer
	// Router receives every chunk and terminal event.
	Router *stream.Router
	// Model is the provider model identifier.
	Model string
	// SystemPrompt is prepended to every request when non-empty.
	SystemPrompt string
	// Recorder captures raw chunks when set.
	Recorder ChunkRecorder
	// Callbacks observe the stream lifecycle.
	Callbacks *StreamCallbacks
	// Logger records launcher events.
	Logger *slog.Logger
	// StreamIDs mints stream ids; nil uses random UUIDs.
	StreamIDs func() string
}

// requestMessages converts consumer history into chat request messages.
// Streaming and errored messages are skipped.
func requestMessages(history []stream.Message, systemPrompt string) []openai.Message {
	messages := make([]openai.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.Message{Role: "system", Content: systemPrompt})
	}
	for _, message := range history {
		if message.IsStreaming || message.Content == "" {
			continue
		}
		switch message.Role {
		case stream.RoleUser:
			messages = append(messages, openai.Message{Role: "user", Content: message.Content})
		case stream.RoleAssistant, stream.RoleDecision:
			messages = append(messages, openai.Message{Role: "assistant", Content: message.Content})
		}
	}
	return messages
}
