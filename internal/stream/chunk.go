package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ssePrefix introduces an SSE data frame.
const ssePrefix = "data:"

// doneSentinel terminates an SSE stream.
const doneSentinel = "[DONE]"

// ChunkKind discriminates the inbound chunk shapes.
type ChunkKind int

const (
	// ChunkUnknown matches no supported shape and is dropped.
	ChunkUnknown ChunkKind = iota
	// ChunkString is plain text without SSE framing.
	ChunkString
	// ChunkSSE is a "data:" framed string.
	ChunkSSE
	// ChunkChoices is an object carrying a choices array.
	ChunkChoices
	// ChunkToolEvent is an object carrying a type discriminator.
	ChunkToolEvent
)

// String returns the kind name used in logs and decode output.
func (k ChunkKind) String() string {
	switch k {
	case ChunkString:
		return "string"
	case ChunkSSE:
		return "sse"
	case ChunkChoices:
		return "choices"
	case ChunkToolEvent:
		return "tool_event"
	default:
		return "unknown"
	}
}

// Chunk is the closed union of inbound chunk shapes.
type Chunk interface {
	// Kind reports the discriminator for the chunk.
	Kind() ChunkKind
}

// StringChunk is a plain text chunk.
type StringChunk struct {
	// Text is the whole chunk.
	Text string
}

// SSEChunk is an SSE data frame with the prefix stripped and whitespace trimmed.
type SSEChunk struct {
	// Payload is the frame body.
	Payload string
}

// ChoicesChunk is a structured object carrying a choices array.
type ChoicesChunk struct {
	// Body is the parsed object.
	Body gjson.Result
}

// ToolEventChunk is a structured tool lifecycle event.
type ToolEventChunk struct {
	// Type is the event discriminator.
	Type string
	// Body is the parsed object.
	Body gjson.Result
}

// UnknownChunk matches nothing the decoder understands.
type UnknownChunk struct{}

// Kind reports ChunkString.
func (StringChunk) Kind() ChunkKind { return ChunkString }

// Kind reports ChunkSSE.
func (SSEChunk) Kind() ChunkKind { return ChunkSSE }

// Kind reports ChunkChoices.
func (ChoicesChunk) Kind() ChunkKind { return ChunkChoices }

// Kind reports ChunkToolEvent.
func (ToolEventChunk) Kind() ChunkKind { return ChunkToolEvent }

// Kind reports ChunkUnknown.
func (UnknownChunk) Kind() ChunkKind { return ChunkUnknown }

// Classify maps an arbitrary transport value onto the chunk union.
// Strings and byte payloads that are not JSON objects take the string path;
// maps, structs and JSON object payloads take the structured path.
func Classify(raw any) Chunk {
	switch typed := raw.(type) {
	case nil:
		return UnknownChunk{}
	case string:
		return classifyString(typed)
	case []byte:
		return classifyBytes(typed)
	case json.RawMessage:
		return classifyBytes(typed)
	case gjson.Result:
		return classifyObject(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return UnknownChunk{}
		}
		return classifyObject(gjson.ParseBytes(encoded))
	}
}

// classifyString separates SSE frames from plain text.
func classifyString(text string) Chunk {
	if strings.HasPrefix(text, ssePrefix) {
		return SSEChunk{Payload: strings.TrimSpace(strings.TrimPrefix(text, ssePrefix))}
	}
	return StringChunk{Text: text}
}

// classifyBytes treats JSON objects as structured values and everything else as text.
func classifyBytes(data []byte) Chunk {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' && gjson.ValidBytes(trimmed) {
		return classifyObject(gjson.ParseBytes(trimmed))
	}
	return classifyString(string(data))
}

// classifyObject probes a structured value for choices first, then a type field.
func classifyObject(body gjson.Result) Chunk {
	if !body.IsObject() {
		return UnknownChunk{}
	}
	if body.Get("choices").IsArray() {
		return ChoicesChunk{Body: body}
	}
	if kind := body.Get("type"); kind.Type == gjson.String {
		return ToolEventChunk{Type: kind.Str, Body: body}
	}
	return UnknownChunk{}
}
