package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrDuplicateStream is returned when a stream id is registered twice.
	ErrDuplicateStream = errors.New("stream already registered")
	// ErrInvalidRegistration is returned for an empty stream id or nil consumer.
	ErrInvalidRegistration = errors.New("stream registration requires an id and a consumer")
	// ErrUnknownStream is returned for operations on unregistered stream ids.
	ErrUnknownStream = errors.New("unknown stream")
	// ErrNoActiveStream is returned when an interrupt finds nothing to stop.
	ErrNoActiveStream = errors.New("no active stream")
	// ErrInterruptFailed wraps upstream interrupt failures.
	ErrInterruptFailed = errors.New("interrupt request failed")
)

// DecodeError describes an SSE payload that was not valid JSON.
type DecodeError struct {
	// Payload is the offending frame body.
	Payload string
}

// Error implements error.
func (e *DecodeError) Error() string {
	const limit = 64
	payload := e.Payload
	if len(payload) > limit {
		payload = payload[:limit] + "..."
	}
	return fmt.Sprintf("invalid json payload %q", payload)
}

// TransportError is a failure reported by the transport for one stream.
type TransportError struct {
	// StreamID is the failed stream.
	StreamID string
	// Err is the transport's cause.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %s", e.StreamID, describeCause(e.Err))
}

// Unwrap exposes the cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// describeCause renders a cause for annotations, tolerating nil.
func describeCause(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// Annotations are the texts appended to a message on abnormal termination.
type Annotations struct {
	// Interrupted is appended when the user cancels.
	Interrupted string
	// InterruptFailed is a format with one %s verb for the upstream error.
	InterruptFailed string
	// Error is a format with one %s verb for the transport error message.
	Error string
}

// annotate renders an annotation format for cause. Formats without exactly
// one %s or %v verb are treated as literal text followed by the cause.
func annotate(format string, cause string) string {
	if strings.Count(format, "%s")+strings.Count(format, "%v") != 1 {
		return format + cause
	}
	return fmt.Sprintf(format, cause)
}

// DefaultAnnotations returns the standard annotation texts.
func DefaultAnnotations() Annotations {
	return Annotations{
		Interrupted:     "\n\n[Generation interrupted by user]",
		InterruptFailed: "\n\n[Interrupt request failed: %s]",
		Error:           "\n\n[Error: %s]",
	}
}

// ErrorHandler converts a transport error into a terminal error message.
type ErrorHandler struct {
	// format is the annotation format.
	format string
	// logger records handled errors.
	logger *slog.Logger
}

// NewErrorHandler builds a handler. An empty format uses the default annotation.
func NewErrorHandler(format string, logger *slog.Logger) *ErrorHandler {
	if format == "" {
		format = DefaultAnnotations().Error
	}
	return &ErrorHandler{format: format, logger: orDiscard(logger)}
}

// Handle annotates the stream's message, marks it as an error and notifies the consumer.
func (h *ErrorHandler) Handle(consumer Consumer, failure *TransportError) {
	h.logger.Warn("stream failed", "stream_id", failure.StreamID, "consumer", consumer.ID(), "error", failure)

	var message *Message
	withConsumerLock(consumer, func() {
		message = consumer.FindMessage(failure.StreamID)
		if message != nil {
			message.Content += annotate(h.format, describeCause(failure.Err))
			message.Role = RoleError
			message.finish()
		}
	})
	if message != nil {
		consumer.NotifyMutated()
	}
}
