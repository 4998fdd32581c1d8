// Package config loads layered streamhub configuration from YAML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// configDirName is the per-user and per-project config directory.
const configDirName = ".streamhub"

// configFileNames are probed in order inside each config directory.
var configFileNames = []string{"config.yaml", "config.yml", "config.json"}

// LoadOptions selects the layers merged by Load.
type LoadOptions struct {
	// Cwd anchors project and local layers; empty uses the process cwd.
	Cwd string
	// Sources restricts layers to user, project, and/or local; empty allows all.
	Sources []string
	// ExplicitPath is merged last; a missing explicit file is an error.
	ExplicitPath string
}

// configSource names one candidate layer.
type configSource struct {
	// Source is user, project, or local.
	Source string
	// Dir is the config directory probed for configFileNames.
	Dir string
}

// Load merges user, project, local and explicit layers, applies defaults and
// the environment override. Missing layer files are ignored.
func Load(options LoadOptions) (*Config, error) {
	cwd := options.Cwd
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve cwd: %w", err)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}

	sourceSet := normalizeSources(options.Sources)
	merged := map[string]any{}
	var loaded []string
	seen := make(map[string]bool)
	for _, item := range configSources(home, cwd) {
		if len(sourceSet) > 0 && !sourceSet[item.Source] {
			continue
		}
		path, ok := findConfigFile(item.Dir)
		if !ok || seen[path] {
			continue
		}
		seen[path] = true
		layer, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		merged = mergeLayers(merged, layer)
		loaded = append(loaded, path)
	}

	if options.ExplicitPath != "" {
		layer, err := readLayer(options.ExplicitPath)
		if err != nil {
			return nil, err
		}
		merged = mergeLayers(merged, layer)
		loaded = append(loaded, options.ExplicitPath)
	}

	cfg, err := decodeConfig(merged)
	if err != nil {
		return nil, err
	}
	cfg.Sources = loaded
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		cfg.Gateway.APIKey = key
	}
	cfg.applyDefaults(home)
	return cfg, nil
}

// configSources resolves user, project, and local config directories.
func configSources(home string, cwd string) []configSource {
	return []configSource{
		{Source: "user", Dir: filepath.Join(home, configDirName)},
		{Source: "project", Dir: filepath.Join(findProjectRoot(cwd), configDirName)},
		{Source: "local", Dir: filepath.Join(cwd, configDirName)},
	}
}

// defaultTranscriptDir is where transcripts go when none is configured.
func defaultTranscriptDir(home string) string {
	return filepath.Join(home, configDirName, "transcripts")
}

// findConfigFile returns the first existing config file in dir.
func findConfigFile(dir string) (string, bool) {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// normalizeSources returns a set of allowed sources, or nil if unrestricted.
func normalizeSources(sources []string) map[string]bool {
	if len(sources) == 0 {
		return nil
	}
	set := make(map[string]bool)
	for _, entry := range sources {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		set[strings.ToLower(entry)] = true
	}
	return set
}

// readLayer parses one config file into a generic map. JSON files use
// encoding/json; everything else is YAML.
func readLayer(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	layer := map[string]any{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(raw, &layer); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		return layer, nil
	}
	if err := yaml.Unmarshal(raw, &layer); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if layer == nil {
		layer = map[string]any{}
	}
	return layer, nil
}

// mergeLayers applies overlay on top of base. Nested maps merge key by key;
// every other value, lists included, is replaced.
func mergeLayers(base map[string]any, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range overlay {
		overlayMap, overlayIsMap := value.(map[string]any)
		baseMap, baseIsMap := merged[key].(map[string]any)
		if overlayIsMap && baseIsMap {
			merged[key] = mergeLayers(baseMap, overlayMap)
			continue
		}
		merged[key] = value
	}
	return merged
}

// decodeConfig converts the merged map into a typed Config.
func decodeConfig(merged map[string]any) (*Config, error) {
	encoded, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(encoded, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// findProjectRoot locates the nearest parent directory containing .git.
func findProjectRoot(cwd string) string {
	current := filepath.Clean(cwd)
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			// No repository root; the project layer collapses onto the local one.
			return cwd
		}
		current = parent
	}
}
