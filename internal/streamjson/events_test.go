package streamjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaude/streamhub/internal/stream"
	"github.com/openclaude/streamhub/internal/testutil"
)

// decodeLines parses every JSON line written to buffer.
func decodeLines(testingHandle *testing.T, buffer *bytes.Buffer) []map[string]any {
	testingHandle.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buffer.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		require.NoError(testingHandle, json.Unmarshal([]byte(line), &event))
		events = append(events, event)
	}
	return events
}

// TestBuildMessageOrdersBlocks verifies thinking, text, then tool blocks.
func TestBuildMessageOrdersBlocks(testingHandle *testing.T) {
	// Arrange.
	message := stream.Message{
		ID:               "m1",
		Role:             stream.RoleAssistant,
		Content:          "hello",
		ReasoningContent: "pondering",
		ToolCalls: []stream.ToolCall{
			{ID: "c1", Type: "function", Function: stream.ToolCallFunction{Name: "ls", Arguments: `{"path":"."}`}, Status: stream.ToolStatusComplete, ResultPreview: "a.go"},
			{ID: "c2", Type: "function", Function: stream.ToolCallFunction{Name: "cat", Arguments: "{broken"}},
		},
	}

	// Act.
	built := BuildMessage(message)

	// Assert.
	require.Len(testingHandle, built.Content, 4)
	assert.Equal(testingHandle, "thinking", built.Content[0].Type)
	assert.Equal(testingHandle, "text", built.Content[1].Type)
	assert.Equal(testingHandle, map[string]any{"path": "."}, built.Content[2].Input)
	assert.Equal(testingHandle, "complete", built.Content[2].Status)
	assert.Equal(testingHandle, "a.go", built.Content[2].Content)
	assert.Equal(testingHandle, map[string]any{"raw": "{broken"}, built.Content[3].Input)
}

// TestBuildDeltaEvents verifies each delta part becomes its own event.
func TestBuildDeltaEvents(testingHandle *testing.T) {
	tests := []struct {
		name    string
		decoded stream.Decoded
		types   []string
	}{
		{name: "dropped", decoded: stream.Decoded{Outcome: stream.OutcomeDropped}},
		{name: "done", decoded: stream.Decoded{Outcome: stream.OutcomeDone}, types: []string{"message_stop"}},
		{
			name: "full",
			decoded: stream.Decoded{Outcome: stream.OutcomeDelta, Delta: stream.Delta{
				ContentFragment:   "x",
				ReasoningFragment: "y",
				Role:              stream.RoleDecision,
				ToolCallFragments: []stream.ToolCallFragment{{ID: "a"}, {ID: "b"}},
			}},
			types: []string{"role_delta", "thinking_delta", "text_delta", "tool_call_delta", "tool_call_delta"},
		},
	}
	for _, test := range tests {
		testingHandle.Run(test.name, func(testingHandle *testing.T) {
			events := BuildDeltaEvents("sess", "s1", test.decoded)

			var types []string
			for _, event := range events {
				assert.Equal(testingHandle, "s1", event.StreamID)
				switch payload := event.Event.(type) {
				case ContentBlockDeltaEvent:
					types = append(types, payload.Delta.Type)
				case MessageStopEvent:
					types = append(types, payload.Type)
				}
			}
			assert.Equal(testingHandle, test.types, types)
		})
	}

	fragments := BuildDeltaEvents("sess", "s1", stream.Decoded{Outcome: stream.OutcomeDelta, Delta: stream.Delta{
		ToolCallFragments: []stream.ToolCallFragment{{ID: "a"}, {ID: "b"}},
	}})
	require.Len(testingHandle, fragments, 2)
	assert.Equal(testingHandle, "a", fragments[0].Event.(ContentBlockDeltaEvent).Delta.ToolCall.ID)
	assert.Equal(testingHandle, "b", fragments[1].Event.(ContentBlockDeltaEvent).Delta.ToolCall.ID)
}

// TestBuildResultEventReportsErrors verifies error messages flip the subtype.
func TestBuildResultEventReportsErrors(testingHandle *testing.T) {
	messages := []stream.Message{
		{ID: "u", Role: stream.RoleUser, Content: "hi"},
		{ID: "a", Role: stream.RoleAssistant, Content: "first"},
		{ID: "b", Role: stream.RoleError, Content: "second\n\n[Error: reset]"},
	}

	ok := BuildResultEvent("sess", messages[:2], nil, 1500*time.Millisecond, nil)
	failed := BuildResultEvent("sess", messages, nil, 0, nil)

	assert.Equal(testingHandle, "success", ok.Subtype)
	assert.False(testingHandle, ok.IsError)
	assert.Equal(testingHandle, int64(1500), ok.DurationMS)
	assert.Equal(testingHandle, 1, ok.NumStreams)
	assert.Equal(testingHandle, "first", ok.Result)
	assert.Equal(testingHandle, "error_during_execution", failed.Subtype)
	assert.True(testingHandle, failed.IsError)
	assert.Equal(testingHandle, 2, failed.NumStreams)
	assert.Len(testingHandle, failed.Errors, 1)
}

// TestEmitterWritesJSONLines verifies the emitted sequence for one stream.
func TestEmitterWritesJSONLines(testingHandle *testing.T) {
	// Arrange.
	var buffer bytes.Buffer
	emitter := NewEmitter(NewWriter(&buffer), "sess", nil)

	// Act.
	emitter.Registered("s1", "chat")
	emitter.Activity(true)
	emitter.Chunk("s1", testutil.ContentChunk("Hi"))
	emitter.Chunk("s1", 42)
	emitter.Chunk("s1", testutil.DoneChunk)
	emitter.Finalized("chat", stream.Message{ID: "s1", Role: stream.RoleAssistant, Content: "Hi"})
	emitter.Failed("s2", errors.New("bad transcript"))
	emitter.Result(nil, nil, 0, nil)

	// Assert.
	events := decodeLines(testingHandle, &buffer)
	require.Len(testingHandle, events, 7)
	assert.Equal(testingHandle, "stream_registered", events[0]["subtype"])
	assert.Equal(testingHandle, true, events[1]["active"])
	assert.Equal(testingHandle, "Hi", events[2]["event"].(map[string]any)["delta"].(map[string]any)["text"])
	assert.Equal(testingHandle, "message_stop", events[3]["event"].(map[string]any)["type"])
	assert.Equal(testingHandle, "assistant", events[4]["type"])
	assert.Equal(testingHandle, "bad transcript", events[5]["detail"])
	assert.Equal(testingHandle, "result", events[6]["type"])
	for _, event := range events {
		assert.Equal(testingHandle, "sess", event["session_id"])
	}
}

// TestWriterSerializesConcurrentWrites verifies lines never interleave.
func TestWriterSerializesConcurrentWrites(testingHandle *testing.T) {
	var buffer bytes.Buffer
	writer := NewWriter(&buffer)

	var group sync.WaitGroup
	for index := 0; index < 16; index++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for range 20 {
				assert.NoError(testingHandle, writer.Write(NewActivityEvent("sess", index%2 == 0)))
			}
		}()
	}
	group.Wait()

	assert.Len(testingHandle, decodeLines(testingHandle, &buffer), 320)
}
