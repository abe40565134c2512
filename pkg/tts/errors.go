package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoAPIKey is returned when a provider is built without credentials.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoiceID is returned when a provider needs a voice and has none.
	ErrNoVoiceID = errors.New("tts: voice ID required")

	// ErrNoProviders is returned by NewChain with nothing to chain.
	ErrNoProviders = errors.New("tts: no providers available")
)

// APIError is a non-200 response from a speech API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports rate limits and server errors.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError collects the failure of every provider in a Chain.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tts chain: no errors recorded"
	case 1:
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("tts chain: all %d providers failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
