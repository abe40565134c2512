package tts

import (
	"context"
	"sync"
)

// Mock is a Provider for tests. Nil funcs fall back to silence and success.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)
	HealthFunc     func(ctx context.Context) error

	mu    sync.Mutex
	texts []string
}

// NewMock returns a mock that synthesizes 20ms of PCM silence per character.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// Name implements Provider.
func (m *Mock) Name() string { return "mock" }

// Synthesize implements Provider and records the text.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return &AudioResult{
		Audio:     make([]byte, len(text)*960),
		Format:    AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1},
		CharCount: len(text),
	}, nil
}

// Health implements Provider.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close implements Provider.
func (m *Mock) Close() error { return nil }

// Texts returns every synthesized text in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

var _ Provider = (*Mock)(nil)
