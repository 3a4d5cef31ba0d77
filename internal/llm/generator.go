package llm

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/souvenir-ai/souvenir/internal/stream"
	"github.com/souvenir-ai/souvenir/pkg/types"
)

// ApologyResponse is the user-safe fallback returned when the generation
// service keeps failing after all retries. It is a normal response, not an
// error: generation failure must never propagate as an exception to the
// conversation path.
const ApologyResponse = "Désolé, je rencontre un problème technique. Pouvez-vous réessayer dans un instant ?"

// Tiered maps complexity tiers to per-tier generators. Low-tier requests
// (voice mode, short utterances) run on a smaller model; a missing tier
// falls back to the medium generator.
type Tiered struct {
	generators map[types.Tier]StreamingGenerator
}

// NewTiered builds a tiered generator from per-tier backends. The medium
// generator is required; low and high may be nil.
func NewTiered(low, medium, high StreamingGenerator) *Tiered {
	g := map[types.Tier]StreamingGenerator{types.TierMedium: medium}
	if low != nil {
		g[types.TierLow] = low
	}
	if high != nil {
		g[types.TierHigh] = high
	}
	return &Tiered{generators: g}
}

// GenerateTier completes the prompt on the generator for the given tier,
// streaming through sink when one is attached.
func (t *Tiered) GenerateTier(ctx context.Context, prompt string, tier types.Tier, sink stream.Sink) (string, error) {
	gen, ok := t.generators[tier]
	if !ok {
		gen = t.generators[types.TierMedium]
	}
	return gen.CompleteStream(ctx, prompt, sink)
}

// Retrying wraps a TieredGenerator with bounded retries, a call-rate limit,
// and the apology fallback. This is the generator the router talks to: its
// GenerateTier never returns an error, only text.
type Retrying struct {
	inner      TieredGenerator
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
}

// NewRetrying builds the retrying wrapper. maxRetries is the number of
// retries after the first attempt; callRate bounds generation calls per
// second (0 disables the limiter).
func NewRetrying(inner TieredGenerator, maxRetries int, retryDelay time.Duration, callRate float64) *Retrying {
	var limiter *rate.Limiter
	if callRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(callRate), 1)
	}
	return &Retrying{
		inner:      inner,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    limiter,
	}
}

// GenerateTier attempts the generation up to 1+maxRetries times with a short
// delay between attempts. When every attempt fails it logs the last error
// and returns ApologyResponse. The sink is only attached on the first
// attempt; retries fall back to non-streaming completion so a partially
// streamed failure is not replayed into the channel.
func (r *Retrying) GenerateTier(ctx context.Context, prompt string, tier types.Tier, sink stream.Sink) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			log.Printf("llm: rate limiter aborted: %v", err)
			return ApologyResponse, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				log.Printf("llm: generation cancelled after %d attempts: %v", attempt, ctx.Err())
				return ApologyResponse, nil
			case <-time.After(r.retryDelay):
			}
			sink = nil
		}

		text, err := r.inner.GenerateTier(ctx, prompt, tier, sink)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Printf("llm: generation attempt %d/%d failed: %v", attempt+1, r.maxRetries+1, err)
	}

	log.Printf("llm: generation exhausted retries, returning fallback: %v", lastErr)
	return ApologyResponse, nil
}

var (
	_ TieredGenerator = (*Tiered)(nil)
	_ TieredGenerator = (*Retrying)(nil)
)
