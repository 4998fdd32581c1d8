package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openclaude/streamhub/internal/config"
)

// loadTestConfig loads configuration from an isolated home with yaml as the explicit layer.
func loadTestConfig(testingHandle *testing.T, yaml string) *config.Config {
	testingHandle.Helper()
	home := testingHandle.TempDir()
	testingHandle.Setenv("HOME", home)
	testingHandle.Setenv(config.APIKeyEnv, "")

	path := filepath.Join(home, "streamhub.yaml")
	require.NoError(testingHandle, os.WriteFile(path, []byte(yaml), 0o600))
	cfg, err := config.Load(config.LoadOptions{Cwd: home, ExplicitPath: path})
	require.NoError(testingHandle, err)
	return cfg
}

// writeFile writes content with test permissions.
func writeFile(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
