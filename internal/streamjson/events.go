package streamjson

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaude/streamhub/internal/stream"
)

const (
	// SubtypeStreamRegistered announces a stream bound to a consumer.
	SubtypeStreamRegistered = "stream_registered"
	// SubtypeActivity reports a change of the global streaming indicator.
	SubtypeActivity = "activity"
	// SubtypeTranscriptFailed reports a transcript that could not be replayed.
	SubtypeTranscriptFailed = "transcript_failed"
)

// Message represents the high-level message payload used in stream-json events.
type Message struct {
	// ID is the consumer-side message id.
	ID string `json:"id"`
	// Role is one of user, assistant, decision, or error.
	Role string `json:"role"`
	// Content is the ordered list of content blocks.
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents one typed part of a message.
type ContentBlock struct {
	// Type determines how the content block is interpreted.
	Type string `json:"type"`
	// Text carries text or thinking content.
	Text string `json:"text,omitempty"`
	// ID identifies a tool call, when Type == tool_use.
	ID string `json:"id,omitempty"`
	// Name specifies the tool name for tool_use blocks.
	Name string `json:"name,omitempty"`
	// Input holds the parsed tool arguments for tool_use blocks.
	Input any `json:"input,omitempty"`
	// Status is the latest tool execution phase.
	Status string `json:"status,omitempty"`
	// Content carries the tool result preview.
	Content string `json:"content,omitempty"`
}

// SystemEvent represents a stream-json system event.
type SystemEvent struct {
	// Type is always "system".
	Type string `json:"type"`
	// Subtype categorizes the system event.
	Subtype string `json:"subtype"`
	// StreamID names the stream the event concerns, if any.
	StreamID string `json:"stream_id,omitempty"`
	// ConsumerID names the consumer the event concerns, if any.
	ConsumerID string `json:"consumer_id,omitempty"`
	// Active carries the indicator value for activity events.
	Active *bool `json:"active,omitempty"`
	// Detail carries a human-readable explanation.
	Detail string `json:"detail,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// StreamEvent wraps a low-level streaming event.
type StreamEvent struct {
	// Type is always "stream_event".
	Type string `json:"type"`
	// StreamID names the stream that produced the event.
	StreamID string `json:"stream_id"`
	// Event contains the streaming payload.
	Event any `json:"event"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
}

// ContentBlockDeltaEvent represents one decoded increment.
type ContentBlockDeltaEvent struct {
	// Type is always "content_block_delta".
	Type string `json:"type"`
	// Delta contains the incremental update.
	Delta StreamDelta `json:"delta"`
}

// StreamDelta represents a delta payload.
type StreamDelta struct {
	// Type is text_delta, thinking_delta, tool_call_delta, or role_delta.
	Type string `json:"type"`
	// Text is the streamed text chunk.
	Text string `json:"text,omitempty"`
	// Role is set for role_delta.
	Role string `json:"role,omitempty"`
	// ToolCall is set for tool_call_delta.
	ToolCall *stream.ToolCallFragment `json:"tool_call,omitempty"`
}

// MessageStopEvent represents the done sentinel of a stream.
type MessageStopEvent struct {
	// Type is always "message_stop".
	Type string `json:"type"`
}

// AssistantEvent represents a finalized assistant message snapshot.
type AssistantEvent struct {
	// Type is always "assistant".
	Type string `json:"type"`
	// Message carries the assistant message payload.
	Message Message `json:"message"`
	// ConsumerID names the consumer holding the message.
	ConsumerID string `json:"consumer_id"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
	// Error indicates the message ended on a transport error.
	Error bool `json:"error,omitempty"`
}

// ResultEvent represents the terminal stream-json result.
type ResultEvent struct {
	// Type is always "result".
	Type string `json:"type"`
	// Subtype is success or error_during_execution.
	Subtype string `json:"subtype"`
	// IsError reports whether the result indicates an error.
	IsError bool `json:"is_error"`
	// DurationMS is the total runtime in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// NumStreams is the number of streams processed.
	NumStreams int `json:"num_streams"`
	// Result contains the last assistant text.
	Result string `json:"result,omitempty"`
	// Stats aggregates the processed conversations.
	Stats *stream.Stats `json:"stats,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
	// Errors holds error messages for error subtypes.
	Errors []string `json:"errors,omitempty"`
}

// Writer emits stream-json events as JSON Lines. It is safe for concurrent use.
type Writer struct {
	// mu serializes lines from concurrent streams.
	mu sync.Mutex
	// writer receives the encoded lines.
	writer io.Writer
}

// NewWriter constructs a stream-json writer.
func NewWriter(writer io.Writer) *Writer {
	return &Writer{writer: writer}
}

// Write emits a single event as a JSON line.
func (w *Writer) Write(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream-json event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stream-json event: %w", err)
	}
	return nil
}

// NewUUID returns a new UUID string for stream-json events.
func NewUUID() string {
	return uuid.NewString()
}

// NewSystemEvent builds a system event for a stream.
func NewSystemEvent(sessionID string, subtype string, streamID string, consumerID string) SystemEvent {
	return SystemEvent{
		Type:       "system",
		Subtype:    subtype,
		StreamID:   streamID,
		ConsumerID: consumerID,
		SessionID:  sessionID,
		UUID:       NewUUID(),
	}
}

// NewActivityEvent builds a system event for an indicator transition.
func NewActivityEvent(sessionID string, active bool) SystemEvent {
	event := NewSystemEvent(sessionID, SubtypeActivity, "", "")
	event.Active = &active
	return event
}

// BuildDeltaEvents converts one decoded chunk into stream events. Dropped
// chunks yield nothing.
func BuildDeltaEvents(sessionID string, streamID string, decoded stream.Decoded) []StreamEvent {
	wrap := func(event any) StreamEvent {
		return StreamEvent{Type: "stream_event", StreamID: streamID, Event: event, SessionID: sessionID}
	}
	delta := func(payload StreamDelta) StreamEvent {
		return wrap(ContentBlockDeltaEvent{Type: "content_block_delta", Delta: payload})
	}

	switch decoded.Outcome {
	case stream.OutcomeDone:
		return []StreamEvent{wrap(MessageStopEvent{Type: "message_stop"})}
	case stream.OutcomeDelta:
	default:
		return nil
	}

	var events []StreamEvent
	if decoded.Delta.Role != "" {
		events = append(events, delta(StreamDelta{Type: "role_delta", Role: string(decoded.Delta.Role)}))
	}
	if decoded.Delta.ReasoningFragment != "" {
		events = append(events, delta(StreamDelta{Type: "thinking_delta", Text: decoded.Delta.ReasoningFragment}))
	}
	if decoded.Delta.ContentFragment != "" {
		events = append(events, delta(StreamDelta{Type: "text_delta", Text: decoded.Delta.ContentFragment}))
	}
	for _, fragment := range decoded.Delta.ToolCallFragments {
		events = append(events, delta(StreamDelta{Type: "tool_call_delta", ToolCall: &fragment}))
	}
	return events
}

// BuildMessage converts an engine message into content blocks: thinking,
// then text, then one tool_use block per tool call.
func BuildMessage(message stream.Message) Message {
	blocks := make([]ContentBlock, 0, 2+len(message.ToolCalls))
	if message.ReasoningContent != "" {
		blocks = append(blocks, ContentBlock{Type: "thinking", Text: message.ReasoningContent})
	}
	if message.Content != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: message.Content})
	}
	for _, call := range message.ToolCalls {
		blocks = append(blocks, ContentBlock{
			Type:    "tool_use",
			ID:      call.ID,
			Name:    call.Function.Name,
			Input:   toolInput(call.Function.Arguments),
			Status:  string(call.Status),
			Content: call.ResultPreview,
		})
	}
	return Message{ID: message.ID, Role: string(message.Role), Content: blocks}
}

// BuildAssistantEvent builds the snapshot event for a finalized message.
func BuildAssistantEvent(sessionID string, consumerID string, message stream.Message) AssistantEvent {
	return AssistantEvent{
		Type:       "assistant",
		Message:    BuildMessage(message),
		ConsumerID: consumerID,
		SessionID:  sessionID,
		UUID:       NewUUID(),
		Error:      message.Role == stream.RoleError,
	}
}

// BuildResultEvent builds the terminal event for a run.
func BuildResultEvent(sessionID string, messages []stream.Message, stats *stream.Stats, elapsed time.Duration, errs []string) ResultEvent {
	result := ResultEvent{
		Type:       "result",
		Subtype:    "success",
		DurationMS: elapsed.Milliseconds(),
		Stats:      stats,
		SessionID:  sessionID,
		UUID:       NewUUID(),
		Errors:     errs,
	}
	for _, message := range messages {
		if message.Role == stream.RoleUser {
			continue
		}
		result.NumStreams++
		if message.Role == stream.RoleError {
			result.Errors = append(result.Errors, fmt.Sprintf("stream %s ended with an error", message.ID))
		}
		result.Result = message.Content
	}
	if len(result.Errors) > 0 {
		result.Subtype = "error_during_execution"
		result.IsError = true
	}
	return result
}

// toolInput parses tool arguments, keeping unparseable text under "raw".
func toolInput(arguments string) any {
	if arguments == "" {
		return nil
	}
	input := map[string]any{}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		input["raw"] = arguments
	}
	return input
}

// Emitter writes observation events for chunks flowing into a router.
type Emitter struct {
	// writer receives the events.
	writer *Writer
	// decoder classifies chunks for delta events.
	decoder *stream.Decoder
	// sessionID scopes every event.
	sessionID string
	// logger records write failures.
	logger *slog.Logger
}

// NewEmitter constructs an emitter writing to writer.
func NewEmitter(writer *Writer, sessionID string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Emitter{
		writer:    writer,
		decoder:   stream.NewDecoder(logger),
		sessionID: sessionID,
		logger:    logger,
	}
}

// SessionID returns the session scope of emitted events.
func (e *Emitter) SessionID() string {
	return e.sessionID
}

// Registered announces a stream bound to consumerID.
func (e *Emitter) Registered(streamID string, consumerID string) {
	e.emit(NewSystemEvent(e.sessionID, SubtypeStreamRegistered, streamID, consumerID))
}

// Activity reports an indicator transition. It matches the router activity hook.
func (e *Emitter) Activity(active bool) {
	e.emit(NewActivityEvent(e.sessionID, active))
}

// Chunk decodes raw and writes its delta events.
func (e *Emitter) Chunk(streamID string, raw any) {
	for _, event := range BuildDeltaEvents(e.sessionID, streamID, e.decoder.Decode(raw)) {
		e.emit(event)
	}
}

// Finalized writes the snapshot of a message that left the streaming state.
func (e *Emitter) Finalized(consumerID string, message stream.Message) {
	e.emit(BuildAssistantEvent(e.sessionID, consumerID, message))
}

// Failed reports a stream or transcript that could not be processed.
func (e *Emitter) Failed(streamID string, err error) {
	event := NewSystemEvent(e.sessionID, SubtypeTranscriptFailed, streamID, "")
	event.Detail = err.Error()
	e.emit(event)
}

// Result writes the terminal event.
func (e *Emitter) Result(messages []stream.Message, stats *stream.Stats, elapsed time.Duration, errs []string) {
	e.emit(BuildResultEvent(e.sessionID, messages, stats, elapsed, errs))
}

// emit writes one event and logs failures.
func (e *Emitter) emit(event any) {
	if err := e.writer.Write(event); err != nil {
		e.logger.Warn("stream-json write failed", "error", err)
	}
}
