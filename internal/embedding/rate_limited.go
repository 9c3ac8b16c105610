package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider with a token-bucket rate limiter so
// bulk operations (bootstrap, nightly refresh) don't overwhelm the embedding
// service.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner allowing at most perMinute requests per
// minute with the given burst.
func NewRateLimitedProvider(inner Provider, perMinute int, burst int) *RateLimitedProvider {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

// Embed blocks until the limiter grants a token, then delegates to the
// wrapped provider.
func (p *RateLimitedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Embed(ctx, text)
}

// Model returns the wrapped provider's model identifier.
func (p *RateLimitedProvider) Model() string {
	return p.inner.Model()
}
