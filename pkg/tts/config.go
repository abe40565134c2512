package tts

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-drivemind/internal/httpc"
)

// Config holds provider settings. Use the With options to set them.
type Config struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Client *http.Client
	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the API endpoint. Tests point this at httptest.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice.
func WithVoice(id string) Option {
	return func(c *Config) { c.VoiceID = id }
}

// WithModel sets the model.
func WithModel(id string) Option {
	return func(c *Config) { c.ModelID = id }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets how many times a retryable failure is retried and the base
// delay between attempts. The delay grows linearly.
func WithRetry(n int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = n
		c.RetryDelay = delay
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.Client = client }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func newConfig(opts []Option) *Config {
	cfg := &Config{
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Client == nil {
		cfg.Client = httpc.New(cfg.Timeout)
	}
	return cfg
}
