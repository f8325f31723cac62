// Package cache provides an in-memory TTL registry with sliding expiration.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	lastSeen time.Time
}

// Registry maps keys to values that expire after ttl without a Get or Set.
// OnEvict runs outside the lock for every entry removed by Sweep, Delete or Clear.
type Registry[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	ttl     time.Duration
	now     func() time.Time

	OnEvict func(key string, value V)
}

// New creates a registry with the given idle TTL
func New[V any](ttl time.Duration) *Registry[V] {
	return &Registry[V]{
		entries: make(map[string]*entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (r *Registry[V]) WithClock(now func() time.Time) *Registry[V] {
	r.now = now
	return r
}

// Get returns the value for key and refreshes its expiry
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok || r.expired(e) {
		var zero V
		return zero, false
	}
	e.lastSeen = r.now()
	return e.value, true
}

// Set stores value under key
func (r *Registry[V]) Set(key string, value V) {
	r.mu.Lock()
	old, replaced := r.entries[key]
	r.entries[key] = &entry[V]{value: value, lastSeen: r.now()}
	r.mu.Unlock()

	if replaced {
		r.evict(key, old.value)
	}
}

// GetOrCreate returns the live value for key or stores the result of create
func (r *Registry[V]) GetOrCreate(key string, create func() V) (V, bool) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok && !r.expired(e) {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.value, false
	}
	stale, hadStale := r.entries[key]
	v := create()
	r.entries[key] = &entry[V]{value: v, lastSeen: r.now()}
	r.mu.Unlock()

	if hadStale {
		r.evict(key, stale.value)
	}
	return v, true
}

// Delete removes key
func (r *Registry[V]) Delete(key string) {
	r.mu.Lock()
	e, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if ok {
		r.evict(key, e.value)
	}
}

// Len counts entries, expired ones included until the next Sweep
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes every entry
func (r *Registry[V]) Clear() {
	r.mu.Lock()
	old := r.entries
	r.entries = make(map[string]*entry[V])
	r.mu.Unlock()

	for k, e := range old {
		r.evict(k, e.value)
	}
}

// Sweep removes expired entries and returns how many were dropped
func (r *Registry[V]) Sweep() int {
	r.mu.Lock()
	var dropped []string
	var values []V
	for k, e := range r.entries {
		if r.expired(e) {
			dropped = append(dropped, k)
			values = append(values, e.value)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()

	for i, k := range dropped {
		r.evict(k, values[i])
	}
	return len(dropped)
}

// Run sweeps every interval until ctx is done
func (r *Registry[V]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry[V]) expired(e *entry[V]) bool {
	return r.now().Sub(e.lastSeen) > r.ttl
}

func (r *Registry[V]) evict(key string, value V) {
	if r.OnEvict != nil {
		r.OnEvict(key, value)
	}
}
