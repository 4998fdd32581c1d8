package session

import (
	"errors"
	"fmt"

	"github.com/openclaude/streamhub/internal/stream"
)

// RecordedStream is the chunk sequence of one stream in a transcript.
type RecordedStream struct {
	// StreamID is the recorded stream id.
	StreamID string
	// ConsumerID is the consumer that owned the stream, when recorded.
	ConsumerID string
	// Chunks are the raw chunks in arrival order.
	Chunks []any
	// Ended reports whether a stream_end entry was recorded.
	Ended bool
	// Error is the recorded transport error, if any.
	Error string
}

// GroupStreams splits transcript entries into per-stream sequences in first-seen order.
func GroupStreams(entries []Entry) []RecordedStream {
	var order []string
	byID := make(map[string]*RecordedStream)
	get := func(streamID string) *RecordedStream {
		recorded, ok := byID[streamID]
		if !ok {
			recorded = &RecordedStream{StreamID: streamID}
			byID[streamID] = recorded
			order = append(order, streamID)
		}
		return recorded
	}

	for _, entry := range entries {
		if entry.StreamID == "" {
			continue
		}
		recorded := get(entry.StreamID)
		switch entry.Type {
		case EntryStreamStart:
			recorded.ConsumerID = entry.ConsumerID
		case EntryChunk:
			if chunk := entry.Chunk(); chunk != nil {
				recorded.Chunks = append(recorded.Chunks, chunk)
			}
		case EntryStreamEnd:
			recorded.Ended = true
			recorded.Error = entry.Error
		}
	}

	streams := make([]RecordedStream, 0, len(order))
	for _, streamID := range order {
		streams = append(streams, *byID[streamID])
	}
	return streams
}

// Host is a consumer that can host a replayed assistant message.
type Host interface {
	stream.Consumer
	// BeginAssistant appends the streaming placeholder for streamID.
	BeginAssistant(streamID string) error
}

// Replay feeds a recorded stream through router into host, then routes the
// recorded terminal event. Streams that ended without a sentinel or error
// are completed so the message does not stay streaming.
func Replay(router *stream.Router, recorded RecordedStream, host Host) error {
	if err := host.BeginAssistant(recorded.StreamID); err != nil {
		return fmt.Errorf("begin replay message: %w", err)
	}
	subscription, err := router.Register(recorded.StreamID, host)
	if err != nil {
		return fmt.Errorf("register replay stream: %w", err)
	}
	defer subscription.Close()

	for _, chunk := range recorded.Chunks {
		router.Dispatch(recorded.StreamID, chunk)
	}
	if recorded.Error != "" {
		router.Error(recorded.StreamID, errors.New(recorded.Error))
		return nil
	}
	router.Complete(recorded.StreamID)
	return nil
}
