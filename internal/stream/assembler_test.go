package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestApplyConcatenatesFragmentsInOrder verifies content is the ordered concatenation.
func TestApplyConcatenatesFragmentsInOrder(testingHandle *testing.T) {
	message := NewStreamingMessage("s")
	fragments := []string{"The ", "quick ", "", "brown ", "fox"}

	for _, fragment := range fragments {
		Apply(message, Delta{ContentFragment: fragment, ReasoningFragment: fragment})
	}

	assert.Equal(testingHandle, strings.Join(fragments, ""), message.Content)
	assert.Equal(testingHandle, strings.Join(fragments, ""), message.ReasoningContent)
	assert.True(testingHandle, message.IsStreaming)
}

// TestApplyEmptyDeltaKeepsText verifies empty deltas leave content untouched.
func TestApplyEmptyDeltaKeepsText(testingHandle *testing.T) {
	message := NewStreamingMessage("s")
	message.Content = "kept"

	Apply(message, Delta{})

	assert.Equal(testingHandle, "kept", message.Content)
	assert.Equal(testingHandle, RoleAssistant, message.Role)
}

// TestApplyDecisionRoleSticks verifies the decision role survives later deltas.
func TestApplyDecisionRoleSticks(testingHandle *testing.T) {
	message := NewStreamingMessage("s")

	Apply(message, Delta{Role: RoleDecision, ContentFragment: "a"})
	Apply(message, Delta{ContentFragment: "b"})

	assert.Equal(testingHandle, RoleDecision, message.Role)
	assert.Equal(testingHandle, "ab", message.Content)
}

// TestApplyMergesToolFragments verifies tool fragments accumulate into calls.
func TestApplyMergesToolFragments(testingHandle *testing.T) {
	message := NewStreamingMessage("s")

	Apply(message, Delta{ToolCallFragments: []ToolCallFragment{{ID: "1", Name: "read", Status: ToolStatusRunning}}})
	Apply(message, Delta{ToolCallFragments: []ToolCallFragment{{ID: "1", Status: ToolStatusComplete, ResultPreview: "ok"}}})

	assert.Len(testingHandle, message.ToolCalls, 1)
	assert.Equal(testingHandle, ToolStatusComplete, message.ToolCalls[0].Status)
	assert.Equal(testingHandle, "ok", message.ToolCalls[0].ResultPreview)
}

// TestApplyNilMessage verifies a nil message is ignored.
func TestApplyNilMessage(testingHandle *testing.T) {
	assert.NotPanics(testingHandle, func() { Apply(nil, Delta{ContentFragment: "x"}) })
}
