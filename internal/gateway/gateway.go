// Package gateway dispatches prompts across the provider chain in fixed
// priority order, with a circuit breaker around the high-latency remote
// dependency and an optional response cache for read-mostly prompts.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pedrovictor26/ofix-assistant/internal/cache"
	"github.com/pedrovictor26/ofix-assistant/internal/provider"
)

const (
	// DefaultCallTimeout bounds a single provider call; on expiry the call
	// counts as a provider failure and the chain falls through.
	DefaultCallTimeout = 30 * time.Second

	// DefaultCacheTTL is how long cached remote responses stay valid.
	DefaultCacheTTL = 24 * time.Hour
)

// ErrCircuitOpen signals a short-circuited call; handled like a provider
// failure but without any network attempt.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrUnavailable is returned when every provider in the chain failed.
var ErrUnavailable = errors.New("all providers unavailable")

// Request is one gateway dispatch.
type Request struct {
	Prompt    string
	Preferred string // provider name to try first; empty keeps chain order
	Cacheable bool   // read-mostly prompt, response may be cached
	Options   provider.Options
}

// Response is a successful gateway dispatch.
type Response struct {
	Text     string
	Provider string
	Cached   bool
}

// Gateway tries providers in priority order and returns the first success.
type Gateway struct {
	providers     []provider.Provider
	breaker       *Breaker
	breakerTarget string
	cache         cache.Cache
	cacheTTL      time.Duration
	callTimeout   time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCache enables response caching through c.
func WithCache(c cache.Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithBreaker guards the named provider with b.
func WithBreaker(b *Breaker, providerName string) Option {
	return func(g *Gateway) {
		g.breaker = b
		g.breakerTarget = providerName
	}
}

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.callTimeout = d }
}

// New creates a Gateway over the given providers, in chain priority order.
func New(providers []provider.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		providers:   providers,
		cache:       cache.Noop{},
		cacheTTL:    DefaultCacheTTL,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send dispatches the prompt through the chain and returns the first
// successful response. Providers lacking text generation are skipped;
// a breaker-guarded provider is skipped while the breaker is open.
func (g *Gateway) Send(ctx context.Context, req Request) (Response, error) {
	key := cacheKey(req.Prompt)
	if req.Cacheable {
		if val, ok, err := g.cache.Get(ctx, key); err == nil && ok {
			return Response{Text: val, Provider: "cache", Cached: true}, nil
		} else if err != nil {
			slog.Warn("response cache read failed", "error", err)
		}
	}

	var lastErr error
	for _, p := range g.ordered(req.Preferred) {
		if !p.Supports(provider.CapabilityText) {
			continue
		}

		if g.breaker != nil && p.Name() == g.breakerTarget && !g.breaker.Allow() {
			slog.Debug("provider skipped, circuit open", "provider", p.Name())
			lastErr = fmt.Errorf("%w: %s", ErrCircuitOpen, p.Name())
			continue
		}

		gen, err := g.call(ctx, p, req)
		if err != nil {
			if errors.Is(err, provider.ErrNoAnswer) {
				// Local provider opted out; not a failure worth logging.
			} else {
				slog.Warn("provider call failed", "provider", p.Name(), "error", err)
				lastErr = err
			}
			if provider.IsRateLimit(err) && g.breaker != nil && p.Name() == g.breakerTarget {
				g.breaker.Trip()
				slog.Info("circuit breaker opened", "provider", p.Name())
			}
			continue
		}

		if req.Cacheable && p.Name() != "rules" {
			if err := g.cache.Set(ctx, key, gen.Text, g.cacheTTL); err != nil {
				slog.Warn("response cache write failed", "error", err)
			}
		}
		return Response{Text: gen.Text, Provider: p.Name()}, nil
	}

	if lastErr != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
	}
	return Response{}, ErrUnavailable
}

// call runs one provider under the per-call timeout.
func (g *Gateway) call(ctx context.Context, p provider.Provider, req Request) (provider.Generation, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	return p.GenerateText(callCtx, req.Prompt, req.Options)
}

// ordered returns the chain, with the preferred provider moved to the
// front when set.
func (g *Gateway) ordered(preferred string) []provider.Provider {
	if preferred == "" {
		return g.providers
	}
	out := make([]provider.Provider, 0, len(g.providers))
	for _, p := range g.providers {
		if p.Name() == preferred {
			out = append(out, p)
		}
	}
	for _, p := range g.providers {
		if p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}

// cacheKey hashes the prompt content so semantically identical prompts
// share one cache entry.
func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "assistant:response:" + hex.EncodeToString(sum[:])
}
