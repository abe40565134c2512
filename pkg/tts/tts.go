// Package tts turns advisory text into audio.
//
// Providers talk to a hosted speech API. A Chain tries providers in order so
// a missing or failing key on one falls through to the next:
//
//	openai, _ := tts.NewOpenAI(tts.WithAPIKey(key))
//	chain, _ := tts.NewChain(openai)
//	res, err := chain.Synthesize(ctx, "Take a short break.")
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Synthesize converts text to a complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases idle connections.
	Close() error
}

// AudioResult is a synthesized utterance.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	CharCount int
	Latency   time.Duration
}

// AudioFormat describes the encoding of AudioResult.Audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// MIMEType returns the content type browsers expect for the encoding.
func (f AudioFormat) MIMEType() string {
	switch f.Encoding {
	case EncodingMP3:
		return "audio/mpeg"
	case EncodingPCM24, EncodingPCM16:
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}

// Encoding names an output format.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingMP3   Encoding = "mp3_44100_128"
)
