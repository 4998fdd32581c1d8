package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openclaude/streamhub/internal/llm/openai"
)

// StreamCallbacks wires streaming lifecycle hooks. Callback errors are logged
// and never stop the stream.
type StreamCallbacks struct {
	// OnStreamStart fires after the stream is registered and before the request is sent.
	OnStreamStart func(streamID string, consumerID string, model string) error
	// OnChunk receives every raw chunk before it is dispatched.
	OnChunk func(streamID string, raw any) error
	// OnStreamComplete fires after the terminal event was routed.
	OnStreamComplete func(generation Generation) error
}

// Start launches a generation for target and returns its stream id and a
// channel yielding the outcome once.
func (l *Launcher) Start(ctx context.Context, target Target) (string, <-chan Generation, error) {
	if l.Client == nil {
		return "", nil, ErrNoClient
	}
	if l.Router == nil {
		return "", nil, ErrNoRouter
	}
	logger := l.logger()

	streamID := l.newStreamID()
	request := &openai.ChatRequest{
		Model:    l.Model,
		Messages: requestMessages(target.Snapshot(), l.SystemPrompt),
	}
	subscription, err := l.Router.Register(streamID, target)
	if err != nil {
		return "", nil, fmt.Errorf("register stream: %w", err)
	}
	if err := target.BeginAssistant(streamID); err != nil {
		subscription.Close()
		return "", nil, fmt.Errorf("begin assistant message: %w", err)
	}
	l.record(streamID, func(recorder ChunkRecorder) error { return recorder.RecordStart(streamID, target.ID()) })
	l.callback("stream start", func(callbacks *StreamCallbacks) error {
		if callbacks.OnStreamStart == nil {
			return nil
		}
		return callbacks.OnStreamStart(streamID, target.ID(), l.Model)
	})

	done := make(chan Generation, 1)
	go func() {
		defer close(done)
		defer subscription.Close()

		summary, streamErr := l.Client.StreamChunks(ctx, streamID, request, func(raw any) error {
			l.record(streamID, func(recorder ChunkRecorder) error { return recorder.Record(streamID, raw) })
			l.callback("chunk", func(callbacks *StreamCallbacks) error {
				if callbacks.OnChunk == nil {
					return nil
				}
				return callbacks.OnChunk(streamID, raw)
			})
			l.Router.Dispatch(streamID, raw)
			return nil
		})

		l.record(streamID, func(recorder ChunkRecorder) error { return recorder.RecordEnd(streamID, streamErr) })
		switch {
		case streamErr != nil:
			l.Router.Error(streamID, streamErr)
		case summary == nil || !summary.Done:
			// The body ended without the sentinel; treat it as a normal end.
			l.Router.Complete(streamID)
		}

		generation := Generation{StreamID: streamID, ConsumerID: target.ID(), Summary: summary, Err: streamErr}
		if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
			logger.Warn("stream failed", "stream_id", streamID, "error", streamErr)
		}
		l.callback("stream complete", func(callbacks *StreamCallbacks) error {
			if callbacks.OnStreamComplete == nil {
				return nil
			}
			return callbacks.OnStreamComplete(generation)
		})
		done <- generation
	}()
	return streamID, done, nil
}

// Run launches a generation and waits for it to end.
func (l *Launcher) Run(ctx context.Context, target Target) (Generation, error) {
	_, done, err := l.Start(ctx, target)
	if err != nil {
		return Generation{}, err
	}
	return <-done, nil
}

// RunAll launches one generation per target concurrently and waits for all.
// Transport failures are reported per generation; only launch failures
// return an error.
func (l *Launcher) RunAll(ctx context.Context, targets []Target) ([]Generation, error) {
	generations := make([]Generation, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, target := range targets {
		group.Go(func() error {
			generation, err := l.Run(groupCtx, target)
			if err != nil {
				return fmt.Errorf("launch %s: %w", target.ID(), err)
			}
			generations[index] = generation
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return generations, err
	}
	return generations, nil
}

// record writes to the recorder when one is configured and logs failures.
func (l *Launcher) record(streamID string, write func(recorder ChunkRecorder) error) {
	if l.Recorder == nil {
		return
	}
	if err := write(l.Recorder); err != nil {
		l.logger().Warn("transcript write failed", "stream_id", streamID, "error", err)
	}
}

// newStreamID mints a stream id with the configured generator or a UUID.
func (l *Launcher) newStreamID() string {
	if l.StreamIDs != nil {
		return l.StreamIDs()
	}
	return uuid.NewString()
}

// callback runs one lifecycle hook and logs its error.
func (l *Launcher) callback(name string, invoke func(callbacks *StreamCallbacks) error) {
	if l.Callbacks == nil {
		return
	}
	if err := invoke(l.Callbacks); err != nil {
		l.logger().Warn("stream callback failed", "callback", name, "error", err)
	}
}

// logger returns the configured logger or a discarding one.
func (l *Launcher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
