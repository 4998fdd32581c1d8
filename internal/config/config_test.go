package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaude/streamhub/internal/stream"
)

// writeFile creates path with content, making parent directories.
func writeFile(testingHandle *testing.T, path string, content string) {
	testingHandle.Helper()
	require.NoError(testingHandle, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(testingHandle, os.WriteFile(path, []byte(content), 0o600))
}

// layeredTree builds a home, repo and nested cwd with one config per layer.
func layeredTree(testingHandle *testing.T) (home string, repo string, local string) {
	testingHandle.Helper()
	root := testingHandle.TempDir()
	home = filepath.Join(root, "home")
	repo = filepath.Join(root, "repo")
	local = filepath.Join(repo, "sub")
	require.NoError(testingHandle, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))

	writeFile(testingHandle, filepath.Join(home, ".streamhub", "config.yaml"), `
gateway:
  base_url: https://user.example/v1
  api_key: user-key
  model: user-model
  model_aliases:
    fast: tiny-1
logging:
  level: debug
`)
	writeFile(testingHandle, filepath.Join(repo, ".streamhub", "config.json"), `{
  "gateway": {"model": "project-model", "interrupt_path": "/interrupt"},
  "engine": {"agentic_markers": ["@agent"]}
}`)
	writeFile(testingHandle, filepath.Join(local, ".streamhub", "config.yml"), `
gateway:
  model: local-model
engine:
  agentic_history_window: 5
`)
	testingHandle.Setenv("HOME", home)
	testingHandle.Setenv(APIKeyEnv, "")
	return home, repo, local
}

// TestLoadLayerPrecedence verifies later layers override earlier ones key by key.
func TestLoadLayerPrecedence(testingHandle *testing.T) {
	// Arrange.
	home, _, local := layeredTree(testingHandle)

	// Act.
	cfg, err := Load(LoadOptions{Cwd: local})

	// Assert.
	require.NoError(testingHandle, err)
	assert.Equal(testingHandle, "local-model", cfg.Gateway.Model)
	assert.Equal(testingHandle, "https://user.example/v1", cfg.Gateway.BaseURL)
	assert.Equal(testingHandle, "user-key", cfg.Gateway.APIKey)
	assert.Equal(testingHandle, "/interrupt", cfg.Gateway.InterruptPath)
	assert.Equal(testingHandle, []string{"@agent"}, cfg.Engine.AgenticMarkers)
	assert.Equal(testingHandle, 5, cfg.Engine.AgenticHistoryWindow)
	assert.Equal(testingHandle, "debug", cfg.Logging.Level)
	assert.Len(testingHandle, cfg.Sources, 3)
	assert.Equal(testingHandle, filepath.Join(home, ".streamhub", "transcripts"), cfg.Transcripts.Dir)
}

// TestLoadSourcesAndExplicitFile verifies source filtering and the explicit layer.
func TestLoadSourcesAndExplicitFile(testingHandle *testing.T) {
	_, _, local := layeredTree(testingHandle)
	explicit := filepath.Join(testingHandle.TempDir(), "override.yaml")
	writeFile(testingHandle, explicit, "gateway:\n  model: explicit-model\n")

	userOnly, err := Load(LoadOptions{Cwd: local, Sources: []string{" USER "}})
	require.NoError(testingHandle, err)
	withExplicit, err := Load(LoadOptions{Cwd: local, ExplicitPath: explicit})
	require.NoError(testingHandle, err)
	_, missingErr := Load(LoadOptions{Cwd: local, ExplicitPath: explicit + ".missing"})

	assert.Equal(testingHandle, "user-model", userOnly.Gateway.Model)
	assert.Equal(testingHandle, "explicit-model", withExplicit.Gateway.Model)
	assert.ErrorIs(testingHandle, missingErr, os.ErrNotExist)
}

// TestLoadDefaultsAndEnvironment verifies defaults and the API key override.
func TestLoadDefaultsAndEnvironment(testingHandle *testing.T) {
	root := testingHandle.TempDir()
	testingHandle.Setenv("HOME", filepath.Join(root, "home"))
	testingHandle.Setenv(APIKeyEnv, "env-key")

	cfg, err := Load(LoadOptions{Cwd: root})

	require.NoError(testingHandle, err)
	assert.Equal(testingHandle, "env-key", cfg.Gateway.APIKey)
	assert.Equal(testingHandle, 10*time.Minute, cfg.Timeout())
	assert.Equal(testingHandle, 10*time.Second, cfg.InterruptTimeout())
	assert.Equal(testingHandle, stream.DefaultAnnotations(), cfg.Annotations())
	assert.Equal(testingHandle, stream.DefaultAgentMarkers, cfg.Engine.AgenticMarkers)
	assert.Equal(testingHandle, stream.DefaultModeWindow, cfg.Engine.AgenticHistoryWindow)
	assert.Equal(testingHandle, "text", cfg.Logging.Format)
	assert.Empty(testingHandle, cfg.Sources)
	assert.ErrorIs(testingHandle, cfg.ValidateGateway(), ErrGatewayConfigInvalid)
}

// TestLoadRejectsMalformedLayer verifies parse errors surface.
func TestLoadRejectsMalformedLayer(testingHandle *testing.T) {
	root := testingHandle.TempDir()
	testingHandle.Setenv("HOME", root)
	writeFile(testingHandle, filepath.Join(root, ".streamhub", "config.json"), "{not json")

	_, err := Load(LoadOptions{Cwd: root})

	assert.ErrorContains(testingHandle, err, "parse config")
}

// TestResolveModelAliases verifies alias resolution and CLI precedence.
func TestResolveModelAliases(testingHandle *testing.T) {
	cfg := &Config{Gateway: GatewayConfig{
		Model:        "base-model",
		ModelAliases: map[string]string{"opus": "alias-model"},
	}}

	assert.Equal(testingHandle, "base-model", cfg.ResolveModel(""))
	assert.Equal(testingHandle, "alias-model", cfg.ResolveModel("opus"))
	assert.Equal(testingHandle, "custom", cfg.ResolveModel("custom"))
}
