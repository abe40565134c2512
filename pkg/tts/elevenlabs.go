package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// ModelTurboV2_5 is the lowest latency English model.
	ModelTurboV2_5 = "eleven_turbo_v2_5"
)

// ElevenLabs synthesizes speech with a cloned or library voice.
type ElevenLabs struct {
	cfg    *Config
	base   string
	poster *poster
}

// NewElevenLabs builds an ElevenLabs provider. Both an API key and a voice
// ID are required.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := newConfig(opts)
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.VoiceID == "" {
		return nil, ErrNoVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = ModelTurboV2_5
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = elevenLabsBaseURL
	}

	e := &ElevenLabs{cfg: cfg, base: base}
	e.poster = &poster{
		provider: providerElevenLabs,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "tts.elevenlabs"),
		headers: func(r *http.Request) {
			r.Header.Set("xi-api-key", cfg.APIKey)
		},
		errorMsg: elevenLabsErrorMessage,
	}
	return e, nil
}

// Name implements Provider.
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Synthesize implements Provider. Audio comes back as MP3.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	url := e.base + "/text-to-speech/" + e.cfg.VoiceID + "?output_format=" + string(EncodingMP3)
	audio, err := e.poster.post(ctx, url, map[string]any{
		"text":     text,
		"model_id": e.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        0.6,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, err
	}
	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		CharCount: len(text),
		Latency:   time.Since(start),
	}, nil
}

// Health implements Provider by reading the account.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.poster.get(ctx, e.base+"/user")
}

// Close implements Provider.
func (e *ElevenLabs) Close() error {
	e.cfg.Client.CloseIdleConnections()
	return nil
}

func elevenLabsErrorMessage(body []byte) string {
	var resp struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.Detail.Message != "" {
		return resp.Detail.Message
	}
	return string(body)
}

var _ Provider = (*ElevenLabs)(nil)
