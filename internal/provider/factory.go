// Package provider implements the generative call clients behind llm.Generator.
package provider

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/joss/obsreport/internal/config"
	"github.com/joss/obsreport/pkg/llm"
)

// ProviderType identifies supported providers.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderMock      ProviderType = "mock"
)

// Config holds provider configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient HTTPClient
}

// ConfigOption modifies provider configuration.
type ConfigOption func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) { c.BaseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client HTTPClient) ConfigOption {
	return func(c *Config) { c.HTTPClient = client }
}

// Builder constructs a generator from config.
type Builder func(cfg Config) llm.Generator

// Factory creates generators and caches them by type and credentials.
type Factory struct {
	mu       sync.RWMutex
	cache    map[string]llm.Generator
	builders map[ProviderType]Builder
}

// NewFactory creates a factory with default builders.
func NewFactory() *Factory {
	f := &Factory{
		cache:    make(map[string]llm.Generator),
		builders: make(map[ProviderType]Builder),
	}
	f.RegisterDefaults()
	return f
}

// RegisterDefaults registers the built-in builders.
func (f *Factory) RegisterDefaults() {
	f.Register(ProviderAnthropic, func(cfg Config) llm.Generator {
		return NewAnthropicWithClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient)
	})
	f.Register(ProviderOpenAI, func(cfg Config) llm.Generator {
		return NewOpenAIWithClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient)
	})
	f.Register(ProviderGoogle, func(cfg Config) llm.Generator {
		return NewGoogleWithClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient)
	})
	f.Register(ProviderMock, func(cfg Config) llm.Generator {
		m := NewMock()
		m.Delay = 50 * time.Millisecond
		return m
	})
}

// Register adds a builder. Allows extension with custom providers.
func (f *Factory) Register(pt ProviderType, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[pt] = builder
}

// Create returns a generator, caching by type+key prefix+base URL.
func (f *Factory) Create(pt ProviderType, opts ...ConfigOption) (llm.Generator, error) {
	cfg := Config{HTTPClient: &http.Client{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = envKey(pt)
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", pt, cfg.APIKey[:min(8, len(cfg.APIKey))], cfg.BaseURL)

	f.mu.RLock()
	if g, ok := f.cache[cacheKey]; ok {
		f.mu.RUnlock()
		return g, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.cache[cacheKey]; ok {
		return g, nil
	}
	builder, ok := f.builders[pt]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", pt)
	}
	g := builder(cfg)
	f.cache[cacheKey] = g
	return g, nil
}

// CreateByID creates a generator from a string ID or alias.
func (f *Factory) CreateByID(id string, opts ...ConfigOption) (llm.Generator, error) {
	switch id {
	case "anthropic", "claude":
		return f.Create(ProviderAnthropic, opts...)
	case "openai", "gpt":
		return f.Create(ProviderOpenAI, opts...)
	case "google", "gemini":
		return f.Create(ProviderGoogle, opts...)
	case "mock":
		return f.Create(ProviderMock, opts...)
	default:
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
}

// Clear removes cached generators.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]llm.Generator)
}

// Default is the global factory instance.
var Default = NewFactory()

func envKey(pt ProviderType) string {
	env := config.Env()
	switch pt {
	case ProviderAnthropic:
		return env.AnthropicKey
	case ProviderOpenAI:
		return env.OpenAIKey
	case ProviderGoogle:
		return env.GoogleKey
	}
	return ""
}
