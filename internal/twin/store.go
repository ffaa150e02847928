package twin

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Store is a thread-safe in-memory table of T keyed by ID, listed in
// insertion order.
type Store[T any] struct {
	mu      sync.RWMutex
	items   map[string]T
	order   []string
	prefix  string
	counter atomic.Uint64
}

// NewStore creates a Store whose generated IDs carry prefix ("conv", "msg").
func NewStore[T any](prefix string) *Store[T] {
	return &Store[T]{
		items:  make(map[string]T),
		prefix: prefix,
	}
}

// NextID returns an ID of the form "{prefix}_{counter}", e.g. "conv_000001".
func (s *Store[T]) NextID() string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s_%06d", s.prefix, n)
}

// Set stores item under id. Overwrites keep the original position.
func (s *Store[T]) Set(id string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

// Get returns the item stored under id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Delete removes id and reports whether it existed.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false
	}
	s.removeLocked(id)
	return true
}

// Update runs fn on the item stored under id while holding the write lock.
// fn edits the item in place; returning false deletes it instead. Update
// returns the item as fn left it and whether id existed. fn is not called
// for a missing id.
func (s *Store[T]) Update(id string, fn func(item *T) (keep bool)) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, exists := s.items[id]
	if !exists {
		var zero T
		return zero, false
	}
	if fn(&item) {
		s.items[id] = item
	} else {
		s.removeLocked(id)
	}
	return item, true
}

func (s *Store[T]) removeLocked(id string) {
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// List returns all items in insertion order.
func (s *Store[T]) List() []T {
	return s.Filter(func(T) bool { return true })
}

// Filter returns the items matching keep, in insertion order.
func (s *Store[T]) Filter(keep func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]T, 0)
	for _, id := range s.order {
		if keep(s.items[id]) {
			result = append(result, s.items[id])
		}
	}
	return result
}

// Find returns the first item matching match.
func (s *Store[T]) Find(match func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if match(s.items[id]) {
			return s.items[id], true
		}
	}
	var zero T
	return zero, false
}

// Count returns the number of stored items.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset clears all items and restarts ID generation.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
	s.order = nil
	s.counter.Store(0)
}

// Clock is a simulated clock that can be moved forward to expire OTPs.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset sets the offset back to zero.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}
