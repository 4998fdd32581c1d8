package stream

import (
	"log/slog"
	"strings"
)

// DefaultAgentMarkers flag a user message as an agentic request.
var DefaultAgentMarkers = []string{"/agent", "[mode:agent]"}

// DefaultModeWindow is how many recent user messages the detector inspects.
const DefaultModeWindow = 3

// ModeDetector decides from history whether a completed stream ran in agentic mode.
type ModeDetector func(history []*Message) bool

// MarkerDetector reports agentic mode when any of the last window user
// messages contains one of the markers. A window of zero or less uses
// DefaultModeWindow.
func MarkerDetector(markers []string, window int) ModeDetector {
	if window <= 0 {
		window = DefaultModeWindow
	}
	markers = append([]string(nil), markers...)
	return func(history []*Message) bool {
		inspected := 0
		for index := len(history) - 1; index >= 0 && inspected < window; index-- {
			message := history[index]
			if message == nil || message.Role != RoleUser {
				continue
			}
			inspected++
			for _, marker := range markers {
				if marker != "" && strings.Contains(message.Content, marker) {
					return true
				}
			}
		}
		return false
	}
}

// CoordinatorOptions configures a Coordinator. Nil hooks are skipped.
type CoordinatorOptions struct {
	// Detect decides agentic mode; nil uses MarkerDetector with the defaults.
	Detect ModeDetector
	// Extract derives proposed edits in agentic mode.
	Extract ExtractFunc
	// Stats aggregates the conversation after every completion.
	Stats StatsFunc
	// Logger records completion outcomes.
	Logger *slog.Logger
}

// Completion summarizes what Finalize did.
type Completion struct {
	// Found reports whether the stream's message existed.
	Found bool
	// Agentic reports the detected mode.
	Agentic bool
	// Changes are the extracted edits, if any.
	Changes []ProposedChange
	// Stats are the recomputed stats, when a stats hook is configured.
	Stats *Stats
}

// Coordinator runs the completion sequence for a finished stream.
type Coordinator struct {
	// detect decides agentic mode.
	detect ModeDetector
	// extract derives proposed edits.
	extract ExtractFunc
	// stats aggregates the conversation.
	stats StatsFunc
	// logger records completion outcomes.
	logger *slog.Logger
}

// NewCoordinator builds a coordinator from options.
func NewCoordinator(options CoordinatorOptions) *Coordinator {
	detect := options.Detect
	if detect == nil {
		detect = MarkerDetector(DefaultAgentMarkers, DefaultModeWindow)
	}
	return &Coordinator{
		detect:  detect,
		extract: options.Extract,
		stats:   options.Stats,
		logger:  orDiscard(options.Logger),
	}
}

// Finalize ends streaming on the message, runs edit extraction in agentic
// mode, refreshes stats and notifies the consumer.
func (c *Coordinator) Finalize(consumer Consumer, streamID string) Completion {
	var result Completion
	var content string
	withConsumerLock(consumer, func() {
		message := consumer.FindMessage(streamID)
		if message == nil {
			return
		}
		message.finish()
		content = message.Content
		history := consumer.Messages()
		result = Completion{Found: true, Agentic: c.detect(history)}
		if c.stats != nil {
			stats := c.stats(history)
			result.Stats = &stats
		}
	})
	if !result.Found {
		c.logger.Debug("completed stream has no message", "stream_id", streamID, "consumer", consumer.ID())
		return result
	}

	workspace, hasWorkspace := consumer.(Workspace)
	if result.Agentic && c.extract != nil {
		var files []FileContext
		if hasWorkspace {
			files = workspace.OpenFiles()
		}
		result.Changes = c.extract(content, files)
		switch {
		case len(result.Changes) == 0:
			c.logger.Info("agentic response proposed no file changes", "stream_id", streamID)
		case hasWorkspace:
			workspace.ReviewChanges(result.Changes)
		default:
			c.logger.Info("consumer cannot review changes", "stream_id", streamID, "changes", len(result.Changes))
		}
	}

	if recorder, ok := consumer.(StatsRecorder); ok && result.Stats != nil {
		recorder.RecordStats(*result.Stats)
	}

	consumer.NotifyMutated()
	c.logger.Debug("stream completed", "stream_id", streamID, "agentic", result.Agentic, "changes", len(result.Changes))
	return result
}
