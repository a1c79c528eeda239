// Package session holds per-subject conversation state for in-flight
// scheduling dialogues. Contexts expire 15 minutes after their last update;
// an expired context is treated as absent on read even before the periodic
// sweep physically removes it.
package session

import (
	"sync"
	"time"

	"github.com/pedrovictor26/ofix-assistant/internal/extract"
)

// DefaultTTL is how long a context stays alive after its last update.
const DefaultTTL = 15 * time.Minute

// Context is the accumulated state of one subject's scheduling dialogue.
type Context struct {
	SubjectID   string
	Entities    extract.Entities
	CreatedAt   time.Time
	LastUpdated time.Time
}

// Store is an in-memory context store. All methods are safe for concurrent
// use; Lock additionally provides per-subject serialization so that a whole
// dialogue turn (read, merge, write) runs without interleaving.
type Store struct {
	mu    sync.Mutex
	items map[string]*Context
	locks map[string]*sync.Mutex
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a Store with the given TTL. A non-positive ttl falls
// back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		items: make(map[string]*Context),
		locks: make(map[string]*sync.Mutex),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Lock acquires the per-subject mutex and returns the unlock function.
// Callers hold it for the full duration of a dialogue turn.
func (s *Store) Lock(subjectID string) func() {
	s.mu.Lock()
	m, ok := s.locks[subjectID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[subjectID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Get returns a copy of the subject's context, or nil if none exists or the
// stored one has logically expired.
func (s *Store) Get(subjectID string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.items[subjectID]
	if !ok {
		return nil
	}
	if s.now().Sub(ctx.LastUpdated) > s.ttl {
		return nil
	}
	copied := *ctx
	return &copied
}

// Has reports whether the subject has a live (non-expired) context.
func (s *Store) Has(subjectID string) bool {
	return s.Get(subjectID) != nil
}

// Create initializes an empty context for the subject, replacing any
// previous (possibly expired) one.
func (s *Store) Create(subjectID string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ctx := &Context{
		SubjectID:   subjectID,
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.items[subjectID] = ctx
	copied := *ctx
	return &copied
}

// Update merges delta into the stored entities, right-biased, and refreshes
// LastUpdated. If no live context exists one is created first.
func (s *Store) Update(subjectID string, delta extract.Entities) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ctx, ok := s.items[subjectID]
	if !ok || now.Sub(ctx.LastUpdated) > s.ttl {
		ctx = &Context{SubjectID: subjectID, CreatedAt: now}
		s.items[subjectID] = ctx
	}
	ctx.Entities = ctx.Entities.Merge(delta)
	ctx.LastUpdated = now

	copied := *ctx
	return &copied
}

// Delete removes the subject's context.
func (s *Store) Delete(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, subjectID)
}

// Sweep removes expired contexts and returns how many were deleted. It
// compares against LastUpdated under the store lock, so a context refreshed
// concurrently with the sweep is never dropped. Lock entries are never
// evicted: a turn in flight may hold its subject's mutex across the sweep,
// and replacing the mutex would let two turns for that subject interleave.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, ctx := range s.items {
		if now.Sub(ctx.LastUpdated) > s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Len reports how many contexts are physically stored, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
