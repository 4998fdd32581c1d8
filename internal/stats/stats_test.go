package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaude/streamhub/internal/stream"
)

// TestComputeCountsRolesAndToolCalls verifies per-role counters.
func TestComputeCountsRolesAndToolCalls(testingHandle *testing.T) {
	messages := []*stream.Message{
		{ID: "u1", Role: stream.RoleUser, Content: "héllo"},
		{ID: "a1", Role: stream.RoleAssistant, Content: "hi", ToolCalls: []stream.ToolCall{{ID: "t1"}, {ID: "t2"}}},
		{ID: "d1", Role: stream.RoleDecision, Content: "yes"},
		{ID: "e1", Role: stream.RoleError, Content: "oops"},
		nil,
	}

	result := Compute(messages)

	assert.Equal(testingHandle, 4, result.Messages)
	assert.Equal(testingHandle, 1, result.UserMessages)
	assert.Equal(testingHandle, 2, result.AssistantMessages)
	assert.Equal(testingHandle, 1, result.ErrorMessages)
	assert.Equal(testingHandle, 2, result.ToolCalls)
	assert.Equal(testingHandle, 14, result.Characters)
	assert.Positive(testingHandle, result.EstimatedTokens)
}

// TestEstimateTokensEmpty verifies empty text costs nothing.
func TestEstimateTokensEmpty(testingHandle *testing.T) {
	assert.Zero(testingHandle, EstimateTokens(""))
	assert.Positive(testingHandle, EstimateTokens("streaming engines route chunks"))
}

// TestComputeEmptyHistory verifies the zero value for no messages.
func TestComputeEmptyHistory(testingHandle *testing.T) {
	assert.Equal(testingHandle, stream.Stats{}, Compute(nil))
}
