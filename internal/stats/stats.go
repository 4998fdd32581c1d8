// Package stats aggregates conversation statistics for stream consumers.
package stats

import (
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"

	"github.com/openclaude/streamhub/internal/stream"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// charsPerToken is the fallback ratio when the tokenizer is unavailable.
const charsPerToken = 4

// getCodec returns the shared cl100k_base tokenizer.
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens returns an approximate token count for text.
// It falls back to a character ratio when the tokenizer cannot be loaded.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	encoder, err := getCodec()
	if err == nil {
		ids, _, encodeErr := encoder.Encode(text)
		if encodeErr == nil {
			return len(ids)
		}
	}
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}

// Compute aggregates a message list. It matches stream.StatsFunc.
func Compute(messages []*stream.Message) stream.Stats {
	var result stream.Stats
	for _, message := range messages {
		if message == nil {
			continue
		}
		result.Messages++
		switch message.Role {
		case stream.RoleUser:
			result.UserMessages++
		case stream.RoleAssistant, stream.RoleDecision:
			result.AssistantMessages++
		case stream.RoleError:
			result.ErrorMessages++
		}
		result.ToolCalls += len(message.ToolCalls)
		result.Characters += utf8.RuneCountInString(message.Content)
		result.EstimatedTokens += EstimateTokens(message.Content) + EstimateTokens(message.ReasoningContent)
	}
	return result
}
