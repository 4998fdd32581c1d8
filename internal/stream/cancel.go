package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterruptTimeout bounds the upstream interrupt request.
const DefaultInterruptTimeout = 10 * time.Second

// Canceller performs the local and upstream halves of an interrupt.
type Canceller struct {
	// transport receives the upstream interrupt; nil skips it.
	transport Interrupter
	// annotations holds the interrupted and failure texts.
	annotations Annotations
	// timeout bounds the upstream request.
	timeout time.Duration
	// logger records upstream failures.
	logger *slog.Logger
}

// NewCanceller builds a canceller. Empty annotation fields and a non-positive
// timeout fall back to the defaults.
func NewCanceller(transport Interrupter, annotations Annotations, timeout time.Duration, logger *slog.Logger) *Canceller {
	defaults := DefaultAnnotations()
	if annotations.Interrupted == "" {
		annotations.Interrupted = defaults.Interrupted
	}
	if annotations.InterruptFailed == "" {
		annotations.InterruptFailed = defaults.InterruptFailed
	}
	if timeout <= 0 {
		timeout = DefaultInterruptTimeout
	}
	return &Canceller{
		transport:   transport,
		annotations: annotations,
		timeout:     timeout,
		logger:      orDiscard(logger),
	}
}

// markInterrupted appends the interrupt annotation and ends streaming.
// It reports whether the message was found.
func (c *Canceller) markInterrupted(consumer Consumer, streamID string) bool {
	var message *Message
	withConsumerLock(consumer, func() {
		message = consumer.FindMessage(streamID)
		if message != nil && message.IsStreaming {
			message.Content += c.annotations.Interrupted
			message.finish()
		}
	})
	if message == nil {
		return false
	}
	consumer.NotifyMutated()
	return true
}

// requestUpstream asks the transport to stop and annotates the message when it refuses.
func (c *Canceller) requestUpstream(consumer Consumer, streamID string) (err error) {
	if c.transport == nil {
		return nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: transport panicked: %v", ErrInterruptFailed, recovered)
			c.logger.Error("interrupt transport panicked", "stream_id", streamID, "panic", recovered)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	upstreamErr := c.transport.Interrupt(ctx, streamID)
	if upstreamErr == nil {
		return nil
	}
	c.logger.Warn("upstream interrupt failed", "stream_id", streamID, "error", upstreamErr)

	var message *Message
	withConsumerLock(consumer, func() {
		message = consumer.FindMessage(streamID)
		if message != nil {
			message.Content += annotate(c.annotations.InterruptFailed, upstreamErr.Error())
		}
	})
	if message != nil {
		consumer.NotifyMutated()
	}
	return fmt.Errorf("%w: %w", ErrInterruptFailed, upstreamErr)
}
