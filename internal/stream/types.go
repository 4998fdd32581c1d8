package stream

// Role identifies the author kind of a message.
type Role string

const (
	// RoleUser marks messages typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks model output.
	RoleAssistant Role = "assistant"
	// RoleDecision marks model output the transport flagged as a decision.
	RoleDecision Role = "decision"
	// RoleError marks a message that terminated with a transport error.
	RoleError Role = "error"
)

// SessionState is the lifecycle state of one registered stream.
type SessionState int

const (
	// SessionActive accepts chunks.
	SessionActive SessionState = iota
	// SessionCompleted finished normally.
	SessionCompleted
	// SessionErrored terminated on a transport error.
	SessionErrored
	// SessionInterrupted was cancelled locally.
	SessionInterrupted
	// SessionDisposed was retired through its subscription without a terminal event.
	SessionDisposed
)

// String returns the lowercase state name for logs.
func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionCompleted:
		return "completed"
	case SessionErrored:
		return "errored"
	case SessionInterrupted:
		return "interrupted"
	case SessionDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// ToolStatus reports the execution phase of a tool call.
type ToolStatus string

const (
	// ToolStatusRunning means the tool started and has not reported back.
	ToolStatusRunning ToolStatus = "running"
	// ToolStatusComplete means the tool finished successfully.
	ToolStatusComplete ToolStatus = "complete"
	// ToolStatusError means the tool failed.
	ToolStatusError ToolStatus = "error"
)

// ToolCallFragment is one partial update for a tool call.
// Every field is optional; an empty string means "not supplied".
type ToolCallFragment struct {
	// ID is the tool call id, when the transport provides one.
	ID string `json:"id,omitempty"`
	// Name is the function name.
	Name string `json:"name,omitempty"`
	// ArgumentsFragment is the serialized arguments snapshot.
	ArgumentsFragment string `json:"arguments,omitempty"`
	// Status is the execution phase.
	Status ToolStatus `json:"status,omitempty"`
	// ResultPreview is a short excerpt of the tool output or error.
	ResultPreview string `json:"result_preview,omitempty"`
}

// Delta is one normalized increment of a generation.
type Delta struct {
	// ContentFragment is appended to the message content.
	ContentFragment string `json:"content,omitempty"`
	// ReasoningFragment is appended to the reasoning trace.
	ReasoningFragment string `json:"reasoning_content,omitempty"`
	// Role is set only when the chunk flags the message as a decision.
	Role Role `json:"role,omitempty"`
	// ToolCallFragments are merged into the tool call list in order.
	ToolCallFragments []ToolCallFragment `json:"tool_calls,omitempty"`
}

// IsEmpty reports whether the delta carries no content, reasoning or tool updates.
func (d Delta) IsEmpty() bool {
	return d.ContentFragment == "" && d.ReasoningFragment == "" && len(d.ToolCallFragments) == 0
}

// ToolCallFunction holds the function name and its serialized arguments.
type ToolCallFunction struct {
	// Name identifies which tool was invoked.
	Name string `json:"name"`
	// Arguments is the latest arguments snapshot.
	Arguments string `json:"arguments"`
}

// ToolCall is an assembled tool invocation owned by its message.
type ToolCall struct {
	// ID is the tool call id, possibly empty.
	ID string `json:"id"`
	// Type is always "function".
	Type string `json:"type"`
	// Function carries the name and arguments.
	Function ToolCallFunction `json:"function"`
	// Status is the latest reported execution phase.
	Status ToolStatus `json:"status,omitempty"`
	// ResultPreview is the latest reported output excerpt.
	ResultPreview string `json:"result_preview,omitempty"`
}

// Message is a consumer-owned conversation entry the engine mutates while streaming.
type Message struct {
	// ID is stable for the life of the message. It equals StreamID while streaming.
	ID string `json:"id"`
	// Role is the author kind.
	Role Role `json:"role"`
	// Content is the accumulated visible text.
	Content string `json:"content"`
	// ReasoningContent is the accumulated reasoning trace.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	// ToolCalls lists tool invocations in first-seen order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// IsStreaming is true until a terminal transition.
	IsStreaming bool `json:"is_streaming"`
	// StreamID binds the message to its live stream; empty once terminal.
	StreamID string `json:"stream_id,omitempty"`
}

// NewStreamingMessage returns the placeholder assistant message for a new stream.
func NewStreamingMessage(streamID string) *Message {
	return &Message{
		ID:          streamID,
		Role:        RoleAssistant,
		IsStreaming: true,
		StreamID:    streamID,
	}
}

// Clone returns a deep copy safe to hand to readers outside the engine.
func (m *Message) Clone() Message {
	if m == nil {
		return Message{}
	}
	copied := *m
	if m.ToolCalls != nil {
		copied.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return copied
}

// finish moves the message out of the streaming state, keeping its id.
func (m *Message) finish() {
	m.IsStreaming = false
	m.StreamID = ""
}

// FileContext is an open file handed to the edit extractor.
type FileContext struct {
	// Path is the workspace-relative path.
	Path string `json:"path"`
	// Content is the current file text.
	Content string `json:"content"`
}

// ProposedChange is one file edit extracted from a finalized response.
type ProposedChange struct {
	// Path is the file the change targets.
	Path string `json:"path"`
	// Original is the file content before the change, when known.
	Original string `json:"original,omitempty"`
	// Proposed is the full replacement content, when the response carried one.
	Proposed string `json:"proposed,omitempty"`
	// Patch is the unified diff for the file, when the response carried one.
	Patch string `json:"patch,omitempty"`
	// LinesAdded counts added lines.
	LinesAdded int `json:"lines_added"`
	// LinesRemoved counts removed lines.
	LinesRemoved int `json:"lines_removed"`
}

// Stats aggregates a consumer's conversation.
type Stats struct {
	// Messages counts all messages.
	Messages int `json:"messages"`
	// UserMessages counts user-authored messages.
	UserMessages int `json:"user_messages"`
	// AssistantMessages counts assistant and decision messages.
	AssistantMessages int `json:"assistant_messages"`
	// ErrorMessages counts messages that ended in an error.
	ErrorMessages int `json:"error_messages"`
	// ToolCalls counts tool invocations across all messages.
	ToolCalls int `json:"tool_calls"`
	// Characters counts content runes.
	Characters int `json:"characters"`
	// EstimatedTokens approximates content plus reasoning tokens.
	EstimatedTokens int `json:"estimated_tokens"`
}
