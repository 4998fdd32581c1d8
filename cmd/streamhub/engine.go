package main

import (
	"log/slog"

	"github.com/openclaude/streamhub/internal/config"
	"github.com/openclaude/streamhub/internal/edits"
	"github.com/openclaude/streamhub/internal/llm/openai"
	"github.com/openclaude/streamhub/internal/stats"
	"github.com/openclaude/streamhub/internal/stream"
)

// newRouter wires the engine collaborators from configuration. A nil
// transport skips upstream interrupts.
func newRouter(cfg *config.Config, logger *slog.Logger, transport stream.Interrupter, onActivity func(active bool)) *stream.Router {
	annotations := cfg.Annotations()
	options := []stream.Option{
		stream.WithLogger(logger),
		stream.WithDecoder(stream.NewDecoder(logger)),
		stream.WithCoordinator(stream.NewCoordinator(stream.CoordinatorOptions{
			Detect:  stream.MarkerDetector(cfg.Engine.AgenticMarkers, cfg.Engine.AgenticHistoryWindow),
			Extract: edits.Extract,
			Stats:   stats.Compute,
			Logger:  logger,
		})),
		stream.WithErrorHandler(stream.NewErrorHandler(annotations.Error, logger)),
		stream.WithCanceller(stream.NewCanceller(transport, annotations, cfg.InterruptTimeout(), logger)),
	}
	if onActivity != nil {
		options = append(options, stream.WithActivityHook(onActivity))
	}
	return stream.NewRouter(options...)
}

// newClient builds the gateway client.
func newClient(cfg *config.Config, logger *slog.Logger) *openai.Client {
	return openai.NewClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIKey,
		cfg.Timeout(),
		openai.WithInterruptPath(cfg.Gateway.InterruptPath),
		openai.WithLogger(logger),
	)
}
