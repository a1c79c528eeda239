package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pedrovictor26/ofix-assistant/internal/provider"
)

// fakeProvider is a scriptable provider for chain tests.
type fakeProvider struct {
	name  string
	caps  map[provider.Capability]bool
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(c provider.Capability) bool {
	if f.caps == nil {
		return c == provider.CapabilityText
	}
	return f.caps[c]
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string, opts provider.Options) (provider.Generation, error) {
	f.calls++
	if f.err != nil {
		return provider.Generation{}, f.err
	}
	return provider.Generation{Text: f.text, Model: f.name}, nil
}

func (f *fakeProvider) GenerateJSON(ctx context.Context, prompt string, schema *provider.Schema, opts provider.Options) (json.RawMessage, error) {
	return nil, provider.ErrUnsupported
}

func (f *fakeProvider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "", provider.ErrUnsupported
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, provider.ErrUnsupported
}

// mapCache is an in-memory cache.Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (m *mapCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mapCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestSendFirstSuccessWins(t *testing.T) {
	first := &fakeProvider{name: "a", text: "from a"}
	second := &fakeProvider{name: "b", text: "from b"}
	g := New([]provider.Provider{first, second})

	resp, err := g.Send(context.Background(), Request{Prompt: "oi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Text != "from a" || resp.Provider != "a" {
		t.Errorf("resp = %+v, want from a", resp)
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times, want 0", second.calls)
	}
}

func TestSendFallsThroughOnFailure(t *testing.T) {
	first := &fakeProvider{name: "a", err: errors.New("boom")}
	noAnswer := &fakeProvider{name: "rules", err: provider.ErrNoAnswer}
	last := &fakeProvider{name: "c", text: "from c"}
	g := New([]provider.Provider{noAnswer, first, last})

	resp, err := g.Send(context.Background(), Request{Prompt: "pergunta"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Provider != "c" {
		t.Errorf("Provider = %q, want c", resp.Provider)
	}
}

func TestSendSkipsProvidersWithoutText(t *testing.T) {
	embedOnly := &fakeProvider{name: "embedder", caps: map[provider.Capability]bool{provider.CapabilityEmbed: true}}
	answering := &fakeProvider{name: "b", text: "ok"}
	g := New([]provider.Provider{embedOnly, answering})

	resp, err := g.Send(context.Background(), Request{Prompt: "oi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Provider != "b" {
		t.Errorf("Provider = %q, want b", resp.Provider)
	}
	if embedOnly.calls != 0 {
		t.Errorf("embed-only provider was called %d times", embedOnly.calls)
	}
}

func TestSendAllFail(t *testing.T) {
	g := New([]provider.Provider{
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("also down")},
	})

	_, err := g.Send(context.Background(), Request{Prompt: "oi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestSendPreferredGoesFirst(t *testing.T) {
	a := &fakeProvider{name: "a", text: "from a"}
	rules := &fakeProvider{name: "rules", text: "from rules"}
	g := New([]provider.Provider{a, rules})

	resp, err := g.Send(context.Background(), Request{Prompt: "oi", Preferred: "rules"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Provider != "rules" {
		t.Errorf("Provider = %q, want rules", resp.Provider)
	}
	if a.calls != 0 {
		t.Errorf("non-preferred provider called %d times, want 0", a.calls)
	}
}

func TestSendRateLimitTripsBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	breaker := NewBreaker(5 * time.Minute)
	breaker.now = func() time.Time { return now }

	limited := &fakeProvider{name: "anthropic", err: &provider.RateLimitError{Status: 429}}
	backup := &fakeProvider{name: "openrouter", text: "fallback"}
	g := New([]provider.Provider{limited, backup}, WithBreaker(breaker, "anthropic"))

	// First call hits the rate limit, trips the breaker, falls through.
	resp, err := g.Send(context.Background(), Request{Prompt: "oi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Provider != "openrouter" {
		t.Errorf("Provider = %q, want openrouter", resp.Provider)
	}
	if limited.calls != 1 {
		t.Fatalf("guarded provider calls = %d, want 1", limited.calls)
	}
	if !breaker.Open() {
		t.Fatal("breaker did not open on rate limit")
	}

	// While open, the guarded provider gets no network attempt at all.
	if _, err := g.Send(context.Background(), Request{Prompt: "oi de novo"}); err != nil {
		t.Fatalf("Send while open: %v", err)
	}
	if limited.calls != 1 {
		t.Errorf("guarded provider calls = %d while breaker open, want still 1", limited.calls)
	}

	// After the cooldown the next call goes through again.
	now = now.Add(5*time.Minute + time.Second)
	if _, err := g.Send(context.Background(), Request{Prompt: "mais tarde"}); err != nil {
		t.Fatalf("Send after cooldown: %v", err)
	}
	if limited.calls != 2 {
		t.Errorf("guarded provider calls = %d after cooldown, want 2", limited.calls)
	}
}

func TestSendRateLimitOnUnguardedProviderDoesNotTrip(t *testing.T) {
	breaker := NewBreaker(5 * time.Minute)
	limited := &fakeProvider{name: "openrouter", err: &provider.RateLimitError{Status: 429}}
	backup := &fakeProvider{name: "b", text: "ok"}
	g := New([]provider.Provider{limited, backup}, WithBreaker(breaker, "anthropic"))

	if _, err := g.Send(context.Background(), Request{Prompt: "oi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if breaker.Open() {
		t.Error("breaker opened for a provider it does not guard")
	}
}

func TestSendCachesCacheableResponses(t *testing.T) {
	c := newMapCache()
	p := &fakeProvider{name: "anthropic", text: "resposta"}
	g := New([]provider.Provider{p}, WithCache(c))

	resp, err := g.Send(context.Background(), Request{Prompt: "quanto custa?", Cacheable: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Cached {
		t.Error("first response marked as cached")
	}
	if c.sets != 1 {
		t.Errorf("cache writes = %d, want 1", c.sets)
	}

	resp, err = g.Send(context.Background(), Request{Prompt: "quanto custa?", Cacheable: true})
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if !resp.Cached {
		t.Error("second response not served from cache")
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (second served from cache)", p.calls)
	}
}

func TestSendNonCacheableSkipsCache(t *testing.T) {
	c := newMapCache()
	p := &fakeProvider{name: "anthropic", text: "diagnóstico"}
	g := New([]provider.Provider{p}, WithCache(c))

	for i := 0; i < 2; i++ {
		if _, err := g.Send(context.Background(), Request{Prompt: "meu carro faz barulho"}); err != nil {
			t.Fatalf("Send #%d: %v", i+1, err)
		}
	}
	if c.sets != 0 {
		t.Errorf("cache writes = %d, want 0", c.sets)
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
}

func TestSendNeverCachesRuleResponses(t *testing.T) {
	c := newMapCache()
	rules := &fakeProvider{name: "rules", text: "olá"}
	g := New([]provider.Provider{rules}, WithCache(c))

	if _, err := g.Send(context.Background(), Request{Prompt: "oi", Cacheable: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.sets != 0 {
		t.Errorf("cache writes = %d, want 0 for rule-based responses", c.sets)
	}
}

func TestBreakerLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	b := NewBreaker(5 * time.Minute)
	b.now = func() time.Time { return now }

	if !b.Allow() {
		t.Fatal("new breaker is not closed")
	}

	b.Trip()
	if b.Allow() {
		t.Fatal("breaker allows calls right after Trip")
	}

	now = now.Add(4 * time.Minute)
	if b.Allow() {
		t.Error("breaker closed before cooldown elapsed")
	}

	now = now.Add(time.Minute)
	if !b.Allow() {
		t.Error("breaker still open after cooldown")
	}
}
