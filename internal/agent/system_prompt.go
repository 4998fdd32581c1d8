package agent

import "strings"

// DefaultSystemPrompt returns the base system prompt. Markers switch the
// conversation into agentic mode, where file edits must be machine readable.
func DefaultSystemPrompt(agentMarkers []string) string {
	builder := strings.Builder{}
	builder.WriteString("You are StreamHub, a coding assistant.\n")
	if len(agentMarkers) > 0 {
		builder.WriteString("When a user message contains ")
		builder.WriteString(strings.Join(agentMarkers, " or "))
		builder.WriteString(", propose file changes.\n")
	}
	builder.WriteString("Write each proposed change as a unified diff in a ```diff block, ")
	builder.WriteString("or as the full new file in a fenced block labelled with its path, such as ```go cmd/main.go.\n")
	builder.WriteString("Provide clear, concise responses.")
	return builder.String()
}
