// Package config loads and saves the gitmuse settings file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// FileConfig mirrors ~/.gitmuse.json. Pointer fields distinguish
// "unset" from zero values when merging with flags.
type FileConfig struct {
	Model        string `json:"model,omitempty"`
	APIEndpoint  string `json:"api_endpoint,omitempty"`
	APIKeyEnvVar string `json:"api_key_env_var,omitempty"`

	Choices         *int   `json:"choices,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
	Verbosity       string `json:"verbosity,omitempty"`
	Stream          *bool  `json:"stream,omitempty"`

	// RewriteDefault makes --rewrite the default for jj repositories.
	RewriteDefault *bool `json:"rewrite_default,omitempty"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() FileConfig {
	choices := 3
	stream := true
	return FileConfig{
		Model:           "gpt-5.1",
		APIEndpoint:     defaultEndpoint,
		APIKeyEnvVar:    "OPENAI_API_KEY",
		Choices:         &choices,
		ReasoningEffort: "low",
		Verbosity:       "medium",
		Stream:          &stream,
	}
}

// DefaultPath is ~/.gitmuse.json; an empty string when the home
// directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gitmuse.json")
}

// Load reads the config at path, falling back to DefaultPath. A
// missing file yields the defaults without error; an explicitly named
// file must exist.
func Load(path string) (FileConfig, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if explicit {
			return cfg, fmt.Errorf("config file %s does not exist", path)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	fillDefaults(&cfg)
	return cfg, nil
}

func fillDefaults(cfg *FileConfig) {
	def := Defaults()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = def.APIEndpoint
	}
	if cfg.APIKeyEnvVar == "" {
		cfg.APIKeyEnvVar = def.APIKeyEnvVar
	}
	if cfg.Choices == nil {
		cfg.Choices = def.Choices
	}
	if cfg.ReasoningEffort == "" {
		cfg.ReasoningEffort = def.ReasoningEffort
	}
	if cfg.Verbosity == "" {
		cfg.Verbosity = def.Verbosity
	}
	if cfg.Stream == nil {
		cfg.Stream = def.Stream
	}
}

// Save writes the config as indented JSON.
func Save(cfg FileConfig, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return fmt.Errorf("cannot resolve home directory for config path")
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ResolveString picks the first non-empty value in precedence order
// flag > env > file > default.
func ResolveString(flagVal, envVal, fileVal, defVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if envVal != "" {
		return envVal
	}
	if fileVal != "" {
		return fileVal
	}
	return defVal
}

func ResolveInt(flagVal int, flagSet bool, fileVal *int, defVal int) int {
	if flagSet {
		return flagVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return defVal
}

func ResolveBool(flagVal bool, flagSet bool, fileVal *bool, defVal bool) bool {
	if flagSet {
		return flagVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return defVal
}
