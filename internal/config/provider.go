package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openclaude/streamhub/internal/stream"
)

const (
	// DefaultTimeoutMS bounds one streaming request.
	DefaultTimeoutMS = 600000
	// DefaultInterruptTimeoutMS bounds the upstream interrupt call.
	DefaultInterruptTimeoutMS = 10000
	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"
	// DefaultLogFormat is used when no format is configured.
	DefaultLogFormat = "text"
	// DefaultLogOutput is used when no output is configured.
	DefaultLogOutput = "stderr"
	// APIKeyEnv overrides gateway.api_key when set.
	APIKeyEnv = "STREAMHUB_API_KEY"
)

// ErrGatewayConfigInvalid is returned when required gateway fields are missing.
var ErrGatewayConfigInvalid = errors.New("gateway config invalid")

// Config is the merged streamhub configuration.
type Config struct {
	// Gateway configures the OpenAI-compatible transport.
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
	// Engine configures annotations, agentic detection and interrupts.
	Engine EngineConfig `yaml:"engine" json:"engine"`
	// Logging configures the slog logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	// Transcripts configures chunk capture.
	Transcripts TranscriptsConfig `yaml:"transcripts" json:"transcripts"`
	// Sources lists the files merged into this config, lowest precedence first.
	Sources []string `yaml:"-" json:"-"`
}

// GatewayConfig defines how streamhub connects to an OpenAI-compatible gateway.
type GatewayConfig struct {
	// BaseURL is the base URL for chat completions.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is the bearer token used for Authorization.
	APIKey string `yaml:"api_key" json:"api_key"`
	// TimeoutMS configures request timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`
	// InterruptPath is the optional upstream cancel endpoint, relative to BaseURL.
	InterruptPath string `yaml:"interrupt_path" json:"interrupt_path"`
	// Model is used when no CLI override is provided.
	Model string `yaml:"model" json:"model"`
	// ModelAliases maps friendly names to provider model ids.
	ModelAliases map[string]string `yaml:"model_aliases" json:"model_aliases"`
}

// EngineConfig tunes the stream engine.
type EngineConfig struct {
	// InterruptedAnnotation is appended when the user interrupts.
	InterruptedAnnotation string `yaml:"interrupted_annotation" json:"interrupted_annotation"`
	// InterruptFailedAnnotation is a format with one %s for the failure.
	InterruptFailedAnnotation string `yaml:"interrupt_failed_annotation" json:"interrupt_failed_annotation"`
	// ErrorAnnotationFormat is a format with one %s for the transport error.
	ErrorAnnotationFormat string `yaml:"error_annotation_format" json:"error_annotation_format"`
	// AgenticMarkers switch a conversation into agentic mode.
	AgenticMarkers []string `yaml:"agentic_markers" json:"agentic_markers"`
	// AgenticHistoryWindow is how many recent user messages are scanned.
	AgenticHistoryWindow int `yaml:"agentic_history_window" json:"agentic_history_window"`
	// InterruptTimeoutMS bounds the upstream interrupt call.
	InterruptTimeoutMS int `yaml:"interrupt_timeout_ms" json:"interrupt_timeout_ms"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" json:"level"`
	// Format is text or json.
	Format string `yaml:"format" json:"format"`
	// Output is stderr, stdout, or a file path.
	Output string `yaml:"output" json:"output"`
}

// TranscriptsConfig configures transcript capture.
type TranscriptsConfig struct {
	// Dir holds transcript files.
	Dir string `yaml:"dir" json:"dir"`
}

// applyDefaults fills optional fields left empty by every layer.
func (c *Config) applyDefaults(home string) {
	if c.Gateway.TimeoutMS <= 0 {
		c.Gateway.TimeoutMS = DefaultTimeoutMS
	}
	if c.Gateway.ModelAliases == nil {
		c.Gateway.ModelAliases = make(map[string]string)
	}

	annotations := stream.DefaultAnnotations()
	if c.Engine.InterruptedAnnotation == "" {
		c.Engine.InterruptedAnnotation = annotations.Interrupted
	}
	if c.Engine.InterruptFailedAnnotation == "" {
		c.Engine.InterruptFailedAnnotation = annotations.InterruptFailed
	}
	if c.Engine.ErrorAnnotationFormat == "" {
		c.Engine.ErrorAnnotationFormat = annotations.Error
	}
	if len(c.Engine.AgenticMarkers) == 0 {
		c.Engine.AgenticMarkers = append([]string(nil), stream.DefaultAgentMarkers...)
	}
	if c.Engine.AgenticHistoryWindow <= 0 {
		c.Engine.AgenticHistoryWindow = stream.DefaultModeWindow
	}
	if c.Engine.InterruptTimeoutMS <= 0 {
		c.Engine.InterruptTimeoutMS = DefaultInterruptTimeoutMS
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}

	if c.Transcripts.Dir == "" && home != "" {
		c.Transcripts.Dir = defaultTranscriptDir(home)
	}
}

// ValidateGateway reports whether the gateway section can drive a live session.
func (c *Config) ValidateGateway() error {
	var missing []string
	if c.Gateway.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.Gateway.Model == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrGatewayConfigInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Timeout returns the request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutMS) * time.Millisecond
}

// InterruptTimeout returns the upstream interrupt timeout.
func (c *Config) InterruptTimeout() time.Duration {
	return time.Duration(c.Engine.InterruptTimeoutMS) * time.Millisecond
}

// Annotations returns the engine annotation set.
func (c *Config) Annotations() stream.Annotations {
	return stream.Annotations{
		Interrupted:     c.Engine.InterruptedAnnotation,
		InterruptFailed: c.Engine.InterruptFailedAnnotation,
		Error:           c.Engine.ErrorAnnotationFormat,
	}
}

// ResolveModel returns the model for the session. A CLI value takes
// precedence over the configured model; both go through the alias table.
func (c *Config) ResolveModel(cliModel string) string {
	if cliModel != "" {
		return c.aliasModel(cliModel)
	}
	return c.aliasModel(c.Gateway.Model)
}

// aliasModel resolves an alias to a provider model name.
func (c *Config) aliasModel(name string) string {
	if aliased, ok := c.Gateway.ModelAliases[name]; ok {
		return aliased
	}
	return name
}
