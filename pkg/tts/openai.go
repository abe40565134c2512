package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"

	// VoiceShimmer is a soft, calm voice suited to in-cab prompts.
	VoiceShimmer = "shimmer"
	// ModelTTS1 favours latency over quality.
	ModelTTS1 = "tts-1"
)

// OpenAI synthesizes speech through the OpenAI audio API.
type OpenAI struct {
	cfg    *Config
	base   string
	poster *poster
}

// NewOpenAI builds an OpenAI provider. An API key is required.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := newConfig(opts)
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceShimmer
	}
	if cfg.ModelID == "" {
		cfg.ModelID = ModelTTS1
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = openAIBaseURL
	}

	o := &OpenAI{cfg: cfg, base: base}
	o.poster = &poster{
		provider: providerOpenAI,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "tts.openai"),
		headers: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		},
		errorMsg: openAIErrorMessage,
	}
	return o, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return providerOpenAI }

// Synthesize implements Provider. Audio comes back as MP3.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	audio, err := o.poster.post(ctx, o.base+"/audio/speech", map[string]string{
		"model": o.cfg.ModelID,
		"voice": o.cfg.VoiceID,
		"input": text,
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

// Health implements Provider by listing models.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.poster.get(ctx, o.base+"/models")
}

// Close implements Provider.
func (o *OpenAI) Close() error {
	o.cfg.Client.CloseIdleConnections()
	return nil
}

func openAIErrorMessage(body []byte) string {
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &resp) == nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return string(body)
}

var _ Provider = (*OpenAI)(nil)
