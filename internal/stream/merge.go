package stream

// toolCallType is the only tool call type the engine produces.
const toolCallType = "function"

// MergeToolCall folds one fragment into a tool call list and returns the new list.
// The input slice is not modified.
//
// A fragment with an id matches the entry carrying that id. When no entry has
// the id yet, it adopts the first id-less entry with the same name, so a call
// announced by name and later confirmed by id stays one entry. A fragment
// without an id matches the first entry with the same name, so an anonymous
// fragment updates the first unnamed entry. Unmatched fragments append a new
// entry.
//
// On a match, status and result preview are overwritten when supplied and the
// arguments snapshot replaces the stored one when non-empty.
func MergeToolCall(existing []ToolCall, fragment ToolCallFragment) []ToolCall {
	merged := make([]ToolCall, len(existing), len(existing)+1)
	copy(merged, existing)

	index := matchToolCall(merged, fragment)
	if index < 0 {
		return append(merged, ToolCall{
			ID:   fragment.ID,
			Type: toolCallType,
			Function: ToolCallFunction{
				Name:      fragment.Name,
				Arguments: fragment.ArgumentsFragment,
			},
			Status:        fragment.Status,
			ResultPreview: fragment.ResultPreview,
		})
	}

	call := &merged[index]
	if call.ID == "" && fragment.ID != "" {
		call.ID = fragment.ID
	}
	if call.Function.Name == "" && fragment.Name != "" {
		call.Function.Name = fragment.Name
	}
	if fragment.Status != "" {
		call.Status = fragment.Status
	}
	if fragment.ResultPreview != "" {
		call.ResultPreview = fragment.ResultPreview
	}
	if fragment.ArgumentsFragment != "" {
		call.Function.Arguments = fragment.ArgumentsFragment
	}
	return merged
}

// matchToolCall returns the index of the entry a fragment updates, or -1.
func matchToolCall(calls []ToolCall, fragment ToolCallFragment) int {
	if fragment.ID != "" {
		for index := range calls {
			if calls[index].ID == fragment.ID {
				return index
			}
		}
		if fragment.Name == "" {
			return -1
		}
		for index := range calls {
			if calls[index].ID == "" && calls[index].Function.Name == fragment.Name {
				return index
			}
		}
		return -1
	}
	for index := range calls {
		if calls[index].Function.Name == fragment.Name {
			return index
		}
	}
	return -1
}
