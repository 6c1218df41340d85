// Package config resolves runtime configuration with the priority:
// flags (applied by the caller) > environment > project file > defaults.
// The core pipeline only ever receives an already-resolved Config; it never
// reads the environment or prompts for anything itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileName is the optional per-repository config file.
const FileName = ".changemoji.yml"

const envPrefix = "CHANGEMOJI_"

// Config holds everything the pipeline and its gateways need.
type Config struct {
	// Model is the chat model identifier sent to the OpenAI API.
	Model string `koanf:"model"`
	// Parallelism bounds how many pull requests are summarized concurrently.
	Parallelism int `koanf:"parallelism"`
	// RequestTimeoutSeconds bounds each external call attempt.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`
	// OpenAIKey authenticates against the OpenAI API.
	OpenAIKey string `koanf:"openai_key"`
	// GitHubKey authenticates against the GitHub API.
	GitHubKey string `koanf:"github_key"`
}

// Load reads the optional project config file under repoPath, then layers
// CHANGEMOJI_* environment variables on top, then fills defaults. The
// conventional OPENAI_API_KEY and GITHUB_TOKEN variables are honored as key
// sources when no more specific value is present.
func Load(repoPath string) (*Config, error) {
	k := koanf.New(".")

	path := filepath.Join(repoPath, FileName)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GitHubKey == "" {
		cfg.GitHubKey = os.Getenv("GITHUB_TOKEN")
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 30
	}
}

// envTransform converts environment variable names to config keys.
// Example: CHANGEMOJI_REQUEST_TIMEOUT_SECONDS -> request_timeout_seconds.
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, envPrefix))
}
