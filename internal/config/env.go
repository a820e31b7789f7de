// Package config provides centralized configuration management.
package config

import (
	"os"
	"path/filepath"
	"sync"
)

// ObsEnv holds all obsreport environment variables.
type ObsEnv struct {
	// Home overrides the data directory root (OBSREPORT_HOME)
	Home string

	// Provider selects the generative provider: openai, google, anthropic, mock (OBSREPORT_PROVIDER)
	Provider string

	// Model is the default model hint (OBSREPORT_MODEL)
	Model string

	// Store selects the snapshot backend: sqlite or graph (OBSREPORT_STORE)
	Store string

	// ConfigFile points at a YAML run configuration (OBSREPORT_CONFIG)
	ConfigFile string

	// OpenAIKey is the OpenAI API key (OPENAI_API_KEY)
	OpenAIKey string

	// OpenAIBaseURL overrides the OpenAI-compatible endpoint (OPENAI_BASE_URL)
	OpenAIBaseURL string

	// GoogleKey is the Gemini API key (GOOGLE_API_KEY or GEMINI_API_KEY)
	GoogleKey string

	// AnthropicKey is the Anthropic API key (ANTHROPIC_API_KEY)
	AnthropicKey string

	// AnthropicBaseURL overrides the Anthropic API base URL (ANTHROPIC_BASE_URL)
	AnthropicBaseURL string

	// Neo4jURI is the graph database URI (NEO4J_URI)
	Neo4jURI string

	// Neo4jUser is the graph database user (NEO4J_USER)
	Neo4jUser string

	// Neo4jPassword is the graph database password (NEO4J_PASSWORD)
	Neo4jPassword string
}

var (
	env     *ObsEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *ObsEnv {
	envOnce.Do(func() {
		env = &ObsEnv{
			Home:             os.Getenv("OBSREPORT_HOME"),
			Provider:         getEnvDefault("OBSREPORT_PROVIDER", "openai"),
			Model:            os.Getenv("OBSREPORT_MODEL"),
			Store:            getEnvDefault("OBSREPORT_STORE", "sqlite"),
			ConfigFile:       os.Getenv("OBSREPORT_CONFIG"),
			OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
			GoogleKey:        getEnvDefault("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
			AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			Neo4jURI:         getEnvDefault("NEO4J_URI", "bolt://localhost:7687"),
			Neo4jUser:        os.Getenv("NEO4J_USER"),
			Neo4jPassword:    os.Getenv("NEO4J_PASSWORD"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// HomeDir returns the obsreport data directory (~/.obsreport unless overridden).
func HomeDir() string {
	if h := Env().Home; h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".obsreport")
}

// Path returns a path under the obsreport home directory.
func Path(parts ...string) string {
	return filepath.Join(append([]string{HomeDir()}, parts...)...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
