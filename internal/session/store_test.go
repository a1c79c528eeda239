package session

import (
	"testing"
	"time"

	"github.com/pedrovictor26/ofix-assistant/internal/extract"
)

// clockAt pins the store's clock to a mutable instant.
func clockAt(s *Store, at *time.Time) {
	s.now = func() time.Time { return *at }
}

func TestStoreUpdateAndGet(t *testing.T) {
	s := NewStore(DefaultTTL)

	s.Update("user-1", extract.Entities{CustomerName: "João"})
	s.Update("user-1", extract.Entities{Hour: "14:00"})

	ctx := s.Get("user-1")
	if ctx == nil {
		t.Fatal("Get returned nil for live context")
	}
	if ctx.Entities.CustomerName != "João" {
		t.Errorf("CustomerName = %q, want João", ctx.Entities.CustomerName)
	}
	if ctx.Entities.Hour != "14:00" {
		t.Errorf("Hour = %q, want 14:00", ctx.Entities.Hour)
	}
}

func TestStoreGetExpiredIsNil(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(15 * time.Minute)
	clockAt(s, &now)

	s.Update("user-1", extract.Entities{CustomerName: "João"})

	// One second past the TTL: logically gone even though still stored.
	now = now.Add(15*time.Minute + time.Second)
	if ctx := s.Get("user-1"); ctx != nil {
		t.Errorf("Get returned expired context: %+v", ctx)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 (sweep has not run)", s.Len())
	}
}

func TestStoreHas(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(15 * time.Minute)
	clockAt(s, &now)

	if s.Has("user-1") {
		t.Error("Has = true before any update")
	}
	s.Update("user-1", extract.Entities{CustomerName: "João"})
	if !s.Has("user-1") {
		t.Error("Has = false for live context")
	}
	now = now.Add(15*time.Minute + time.Second)
	if s.Has("user-1") {
		t.Error("Has = true for expired context")
	}
}

func TestStoreUpdateRefreshesTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(15 * time.Minute)
	clockAt(s, &now)

	s.Update("user-1", extract.Entities{CustomerName: "João"})

	now = now.Add(10 * time.Minute)
	s.Update("user-1", extract.Entities{Hour: "14:00"})

	// 10 + 10 minutes after creation, but only 10 after last update.
	now = now.Add(10 * time.Minute)
	ctx := s.Get("user-1")
	if ctx == nil {
		t.Fatal("Get returned nil, update did not refresh TTL")
	}
	if ctx.Entities.CustomerName != "João" || ctx.Entities.Hour != "14:00" {
		t.Errorf("merged entities = %+v", ctx.Entities)
	}
}

func TestStoreUpdateAfterExpiryStartsFresh(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(15 * time.Minute)
	clockAt(s, &now)

	s.Update("user-1", extract.Entities{CustomerName: "João"})

	now = now.Add(16 * time.Minute)
	ctx := s.Update("user-1", extract.Entities{Hour: "14:00"})

	if ctx.Entities.CustomerName != "" {
		t.Errorf("CustomerName = %q, want empty (stale data must not survive expiry)", ctx.Entities.CustomerName)
	}
	if ctx.Entities.Hour != "14:00" {
		t.Errorf("Hour = %q, want 14:00", ctx.Entities.Hour)
	}
}

func TestStoreSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(15 * time.Minute)
	clockAt(s, &now)

	s.Update("stale", extract.Entities{CustomerName: "João"})

	now = now.Add(10 * time.Minute)
	s.Update("fresh", extract.Entities{CustomerName: "Maria"})

	now = now.Add(6 * time.Minute)
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if s.Get("fresh") == nil {
		t.Error("fresh context removed by sweep")
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore(DefaultTTL)
	s.Update("user-1", extract.Entities{CustomerName: "João"})
	s.Delete("user-1")
	if s.Get("user-1") != nil {
		t.Error("Get returned context after Delete")
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := NewStore(DefaultTTL)
	s.Update("user-1", extract.Entities{CustomerName: "João"})

	ctx := s.Get("user-1")
	ctx.Entities.CustomerName = "mutated"

	if got := s.Get("user-1"); got.Entities.CustomerName != "João" {
		t.Errorf("stored context mutated through Get copy: %q", got.Entities.CustomerName)
	}
}

func TestSweepPreservesHeldLocks(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(15 * time.Minute)
	clockAt(s, &now)

	s.Update("user-1", extract.Entities{CustomerName: "João"})
	now = now.Add(16 * time.Minute)

	// A turn in flight holds the subject's mutex while the sweep removes the
	// expired context. The mutex must stay the same instance, or a second
	// turn could run concurrently with the first.
	unlock := s.Lock("user-1")
	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}

	acquired := make(chan struct{})
	go func() {
		u := s.Lock("user-1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first still held across a sweep")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}

func TestStoreLockSerializes(t *testing.T) {
	s := NewStore(DefaultTTL)

	unlock := s.Lock("user-1")
	acquired := make(chan struct{})
	go func() {
		u := s.Lock("user-1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}
