package stream

// Apply folds one delta into a streaming message.
// Content and reasoning are appended, tool fragments are merged in order and
// the decision role, once set, sticks for the rest of the stream.
// Empty deltas leave the text untouched.
func Apply(message *Message, delta Delta) {
	if message == nil {
		return
	}
	if delta.Role == RoleDecision {
		message.Role = RoleDecision
	}
	message.Content += delta.ContentFragment
	message.ReasoningContent += delta.ReasoningFragment
	for _, fragment := range delta.ToolCallFragments {
		message.ToolCalls = MergeToolCall(message.ToolCalls, fragment)
	}
}
