package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// poster sends JSON requests with linear-backoff retries on 429 and 5xx.
type poster struct {
	provider string
	cfg      *Config
	logger   *slog.Logger
	headers  func(*http.Request)
	errorMsg func(body []byte) string
}

func (p *poster) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrap(p.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		audio, err := p.once(ctx, url, body)
		if err == nil {
			return audio, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("retrying request", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (p *poster) once(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, wrap(p.provider, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	p.headers(req)

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return nil, wrap(p.provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrap(p.provider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: p.provider, StatusCode: resp.StatusCode, Message: p.errorMsg(data)}
	}
	return data, nil
}

func (p *poster) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return wrap(p.provider, err)
	}
	p.headers(req)

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return wrap(p.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Provider: p.provider, StatusCode: resp.StatusCode, Message: p.errorMsg(data)}
	}
	return nil
}
