package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMarkerDetectorWindow verifies only the last window user messages count.
func TestMarkerDetectorWindow(testingHandle *testing.T) {
	detect := MarkerDetector(DefaultAgentMarkers, 2)
	history := []*Message{
		userMessage("u1", "/agent fix it"),
		userMessage("u2", "thanks"),
		{ID: "a1", Role: RoleAssistant, Content: "/agent"},
		userMessage("u3", "again"),
	}

	assert.False(testingHandle, detect(history))
	assert.True(testingHandle, MarkerDetector(DefaultAgentMarkers, 3)(history))
	assert.True(testingHandle, detect(append(history, userMessage("u4", "[mode:agent] go"))))
	assert.False(testingHandle, detect(nil))
}

// TestCompletionRunsExtractionInAgenticMode verifies edits reach the reviewer once.
func TestCompletionRunsExtractionInAgenticMode(testingHandle *testing.T) {
	// Arrange a workspace consumer with an agentic request.
	var extractedFrom string
	var extractedFiles []FileContext
	extractCalls := 0
	coordinator := NewCoordinator(CoordinatorOptions{
		Extract: func(content string, files []FileContext) []ProposedChange {
			extractCalls++
			extractedFrom = content
			extractedFiles = files
			return []ProposedChange{{Path: "main.go", Proposed: "package main"}}
		},
		Stats: func(messages []*Message) Stats { return Stats{Messages: len(messages)} },
	})
	router := NewRouter(WithCoordinator(coordinator))
	consumer := &workspaceConsumer{
		recordingConsumer: newRecordingConsumer("pane", userMessage("u1", "/agent rewrite main.go")),
		files:             []FileContext{{Path: "main.go", Content: "package old"}},
	}
	consumer.startStream("s1")
	_, err := router.Register("s1", consumer)
	require.NoError(testingHandle, err)

	// Act.
	router.Dispatch("s1", "here is the change")
	router.Dispatch("s1", "data: [DONE]")

	// Assert.
	assert.Equal(testingHandle, 1, extractCalls)
	assert.Equal(testingHandle, "here is the change", extractedFrom)
	assert.Equal(testingHandle, consumer.files, extractedFiles)
	require.Len(testingHandle, consumer.reviewed, 1)
	assert.Equal(testingHandle, "main.go", consumer.reviewed[0][0].Path)
	assert.Equal(testingHandle, []Stats{{Messages: 2}}, consumer.recorded)
}

// TestCompletionSkipsExtractionInChatMode verifies ordinary chat never extracts edits.
func TestCompletionSkipsExtractionInChatMode(testingHandle *testing.T) {
	extractCalls := 0
	coordinator := NewCoordinator(CoordinatorOptions{
		Extract: func(string, []FileContext) []ProposedChange {
			extractCalls++
			return nil
		},
	})
	consumer := newRecordingConsumer("pane", userMessage("u1", "just chatting"))
	consumer.startStream("s1")

	result := coordinator.Finalize(consumer, "s1")

	assert.True(testingHandle, result.Found)
	assert.False(testingHandle, result.Agentic)
	assert.Zero(testingHandle, extractCalls)
	assert.Nil(testingHandle, result.Stats)
	assert.False(testingHandle, consumer.snapshot("s1").IsStreaming)
	assert.Equal(testingHandle, 1, consumer.notifications())
}

// TestCompletionWithoutMessage verifies a missing message is tolerated.
func TestCompletionWithoutMessage(testingHandle *testing.T) {
	coordinator := NewCoordinator(CoordinatorOptions{})
	consumer := newRecordingConsumer("pane")

	result := coordinator.Finalize(consumer, "ghost")

	assert.False(testingHandle, result.Found)
	assert.Zero(testingHandle, consumer.notifications())
}
