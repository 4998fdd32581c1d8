package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// Outcome classifies the result of decoding one chunk.
type Outcome int

const (
	// OutcomeDropped means the chunk produced nothing.
	OutcomeDropped Outcome = iota
	// OutcomeDelta means the chunk produced a Delta.
	OutcomeDelta
	// OutcomeDone means the chunk was the completion sentinel.
	OutcomeDone
)

// String returns the outcome name used by the decode command.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelta:
		return "delta"
	case OutcomeDone:
		return "done"
	default:
		return "dropped"
	}
}

// Decoded is the result of decoding one chunk.
type Decoded struct {
	// Outcome reports what the chunk meant.
	Outcome Outcome
	// Delta is populated when Outcome is OutcomeDelta.
	Delta Delta
	// Kind is the shape the chunk was classified as.
	Kind ChunkKind
}

// Tool lifecycle event types carried by structured chunks.
const (
	eventToolExecutionStart = "tool_execution_start"
	eventToolStart          = "tool_start"
	eventToolComplete       = "tool_complete"
	eventToolError          = "tool_error"
)

// Decoder normalizes inbound chunks into deltas. It never panics.
type Decoder struct {
	// logger records dropped and malformed chunks at debug level.
	logger *slog.Logger
}

// NewDecoder constructs a decoder. A nil logger discards output.
func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: orDiscard(logger)}
}

// Decode turns one raw chunk into zero or one Delta, or the completion signal.
func (d *Decoder) Decode(raw any) (result Decoded) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("chunk decode panicked; using raw text fallback", "panic", recovered)
			result = fallbackDecoded(raw)
		}
	}()

	switch chunk := Classify(raw).(type) {
	case SSEChunk:
		return d.decodeSSE(chunk)
	case StringChunk:
		return Decoded{Outcome: OutcomeDelta, Kind: ChunkString, Delta: Delta{ContentFragment: chunk.Text}}
	case ChoicesChunk:
		return Decoded{Outcome: OutcomeDelta, Kind: ChunkChoices, Delta: choicesDelta(chunk.Body)}
	case ToolEventChunk:
		return d.decodeToolEvent(chunk)
	default:
		d.logger.Debug("dropping chunk with unknown shape", "type", typeName(raw))
		return Decoded{Outcome: OutcomeDropped, Kind: ChunkUnknown}
	}
}

// decodeSSE handles the sentinel, JSON payloads and the raw-text fallback.
func (d *Decoder) decodeSSE(chunk SSEChunk) Decoded {
	if chunk.Payload == doneSentinel {
		return Decoded{Outcome: OutcomeDone, Kind: ChunkSSE}
	}
	if !gjson.Valid(chunk.Payload) {
		d.logger.Debug("sse payload is not json; treating as text", "error", &DecodeError{Payload: chunk.Payload})
		return Decoded{Outcome: OutcomeDelta, Kind: ChunkSSE, Delta: Delta{ContentFragment: chunk.Payload}}
	}
	return Decoded{Outcome: OutcomeDelta, Kind: ChunkSSE, Delta: choicesDelta(gjson.Parse(chunk.Payload))}
}

// decodeToolEvent maps tool lifecycle events onto tool call fragments.
func (d *Decoder) decodeToolEvent(chunk ToolEventChunk) Decoded {
	var fragments []ToolCallFragment
	switch chunk.Type {
	case eventToolExecutionStart:
		chunk.Body.Get("tool_calls").ForEach(func(_, entry gjson.Result) bool {
			fragments = append(fragments, executionEntryFragment(entry))
			return true
		})
	case eventToolStart, eventToolComplete, eventToolError:
		fragment := ToolCallFragment{
			ID:                textOf(chunk.Body.Get("id")),
			Name:              textOf(chunk.Body.Get("name")),
			ArgumentsFragment: stringifyArguments(chunk.Body.Get("args")),
			Status:            statusForEvent(chunk.Type),
			ResultPreview:     textOf(chunk.Body.Get("result_preview")),
		}
		if chunk.Type == eventToolError && fragment.ResultPreview == "" {
			fragment.ResultPreview = textOf(chunk.Body.Get("error"))
		}
		fragments = []ToolCallFragment{fragment}
	default:
		d.logger.Debug("dropping structured chunk with unsupported type", "type", chunk.Type)
		return Decoded{Outcome: OutcomeDropped, Kind: ChunkToolEvent}
	}
	return Decoded{Outcome: OutcomeDelta, Kind: ChunkToolEvent, Delta: Delta{ToolCallFragments: fragments}}
}

// choicesDelta reads the first choice's delta fields.
func choicesDelta(body gjson.Result) Delta {
	delta := body.Get("choices.0.delta")
	result := Delta{
		ContentFragment:   textOf(delta.Get("content")),
		ReasoningFragment: textOf(delta.Get("reasoning_content")),
	}
	if textOf(delta.Get("role")) == string(RoleDecision) {
		result.Role = RoleDecision
	}
	return result
}

// executionEntryFragment converts one tool_execution_start entry.
func executionEntryFragment(entry gjson.Result) ToolCallFragment {
	name := textOf(entry.Get("function.name"))
	if name == "" {
		name = textOf(entry.Get("name"))
	}
	arguments := stringifyArguments(entry.Get("function.arguments"))
	if arguments == "" {
		arguments = stringifyArguments(entry.Get("args"))
	}
	status := ToolStatus(textOf(entry.Get("status")))
	if status == "" {
		status = ToolStatusRunning
	}
	return ToolCallFragment{
		ID:                textOf(entry.Get("id")),
		Name:              name,
		ArgumentsFragment: arguments,
		Status:            status,
		ResultPreview:     textOf(entry.Get("result_preview")),
	}
}

// statusForEvent derives the tool status from a single-call event type.
func statusForEvent(eventType string) ToolStatus {
	switch eventType {
	case eventToolError:
		return ToolStatusError
	case eventToolComplete:
		return ToolStatusComplete
	default:
		return ToolStatusRunning
	}
}

// textOf renders a scalar as text; missing and null values are empty.
func textOf(value gjson.Result) string {
	switch value.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return value.Str
	default:
		return value.Raw
	}
}

// stringifyArguments returns strings verbatim and compacts structured values.
func stringifyArguments(value gjson.Result) string {
	if value.Type != gjson.JSON {
		return textOf(value)
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, []byte(value.Raw)); err != nil {
		return value.Raw
	}
	return compacted.String()
}

// fallbackDecoded applies the raw-text rule when decoding failed unexpectedly.
func fallbackDecoded(raw any) Decoded {
	text, ok := raw.(string)
	if !ok {
		return Decoded{Outcome: OutcomeDropped, Kind: ChunkUnknown}
	}
	if strings.HasPrefix(text, ssePrefix) {
		return Decoded{Outcome: OutcomeDelta, Kind: ChunkSSE, Delta: Delta{
			ContentFragment: strings.TrimSpace(strings.TrimPrefix(text, ssePrefix)),
		}}
	}
	return Decoded{Outcome: OutcomeDelta, Kind: ChunkString, Delta: Delta{ContentFragment: text}}
}

// typeName describes a raw value for logs without dumping it.
func typeName(raw any) string {
	return fmt.Sprintf("%T", raw)
}

// orDiscard substitutes a discarding logger for nil.
func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
