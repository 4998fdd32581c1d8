package stream

import (
	"context"
	"sync"
)

// Consumer owns the messages a stream mutates.
//
// When a Consumer also implements sync.Locker the engine holds that lock
// around FindMessage, Messages and every message mutation, and releases it
// before calling NotifyMutated. Implementations must not take their own lock
// inside FindMessage or Messages.
type Consumer interface {
	// ID identifies the consumer in logs.
	ID() string
	// FindMessage returns the message with the given id, or nil.
	FindMessage(id string) *Message
	// Messages returns the conversation history in order.
	Messages() []*Message
	// NotifyMutated asks the consumer to re-render.
	NotifyMutated()
}

// Workspace is implemented by consumers that expose editable files.
// Both methods are called without the consumer lock held.
type Workspace interface {
	// OpenFiles returns the files visible to the extractor.
	OpenFiles() []FileContext
	// ReviewChanges presents extracted edits for approval.
	ReviewChanges(changes []ProposedChange)
}

// StatsRecorder is implemented by consumers that display conversation stats.
// RecordStats is called without the consumer lock held.
type StatsRecorder interface {
	// RecordStats stores freshly computed stats.
	RecordStats(stats Stats)
}

// Interrupter asks the upstream transport to stop a generation.
type Interrupter interface {
	// Interrupt requests cancellation of the stream with the given id.
	Interrupt(ctx context.Context, streamID string) error
}

// InterrupterFunc adapts a function to Interrupter.
type InterrupterFunc func(ctx context.Context, streamID string) error

// Interrupt calls the function.
func (f InterrupterFunc) Interrupt(ctx context.Context, streamID string) error {
	return f(ctx, streamID)
}

// ExtractFunc derives proposed edits from a finalized response.
type ExtractFunc func(content string, files []FileContext) []ProposedChange

// StatsFunc aggregates a conversation.
type StatsFunc func(messages []*Message) Stats

// lockConsumer takes the consumer lock when it has one and returns the release.
func lockConsumer(consumer Consumer) func() {
	locker, ok := consumer.(sync.Locker)
	if !ok {
		return func() {}
	}
	locker.Lock()
	return locker.Unlock
}

// withConsumerLock runs fn under the consumer lock, releasing it even on panic.
func withConsumerLock(consumer Consumer, fn func()) {
	unlock := lockConsumer(consumer)
	defer unlock()
	fn()
}

// streamingMessageID returns the stream id of the most recent streaming message.
func streamingMessageID(consumer Consumer) string {
	unlock := lockConsumer(consumer)
	defer unlock()
	messages := consumer.Messages()
	for index := len(messages) - 1; index >= 0; index-- {
		message := messages[index]
		if message != nil && message.IsStreaming && message.StreamID != "" {
			return message.StreamID
		}
	}
	return ""
}
