package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Chain implements Provider over an ordered list of providers. The provider
// that last succeeded is tried first, then the rest in order.
type Chain struct {
	providers []Provider
	preferred atomic.Int32
	logger    *slog.Logger
}

// NewChain creates a chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return &Chain{
		providers: providers,
		logger:    slog.Default().With("component", "tts.chain"),
	}, nil
}

// WithLogger replaces the chain logger and returns the chain.
func (c *Chain) WithLogger(l *slog.Logger) *Chain {
	c.logger = l.With("component", "tts.chain")
	return c
}

// Name implements Provider.
func (c *Chain) Name() string { return "chain" }

// Synthesize returns the first successful synthesis. When every provider
// fails the result is a *ChainError holding each failure.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error
	for _, i := range c.order() {
		p := c.providers[i]
		res, err := p.Synthesize(ctx, text)
		if err == nil {
			if c.preferred.Swap(int32(i)) != int32(i) {
				c.logger.Info("switched speech provider", "provider", p.Name())
			}
			return res, nil
		}
		errs = append(errs, err)
		c.logger.Warn("speech provider failed", "provider", p.Name(), "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Errors: errs}
}

func (c *Chain) order() []int {
	first := int(c.preferred.Load())
	idx := make([]int, 0, len(c.providers))
	idx = append(idx, first)
	for i := range c.providers {
		if i != first {
			idx = append(idx, i)
		}
	}
	return idx
}

// Health succeeds if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, wrap(p.Name(), err))
	}
	return errors.Join(errs...)
}

// Close closes every provider.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the chained providers.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)
