package rpc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Listener receives the outcome of a call. It is invoked at most once.
type Listener func(Outcome)

// pending is a call that has not been resolved yet. Entries are removed from
// the registry the moment they resolve, so every entry in the map is live.
type pending struct {
	key      Key
	deadline time.Time
	listener Listener
}

// Registry maps (reply queue, correlation id) to pending calls. It is safe for
// concurrent use by broker goroutines and callers.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*pending
	logger  *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[Key]*pending),
		logger:  logger,
	}
}

// Register adds a pending call. It fails if key already holds a live entry.
func (r *Registry) Register(key Key, deadline time.Time, listener Listener) error {
	if !key.valid() {
		return ErrInvalidKey
	}
	if listener == nil {
		return fmt.Errorf("%w: nil listener", ErrInvalidKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		r.logger.Error("pending call already registered",
			"queue", key.ReplyTo,
			"correlationId", key.CorrelationID,
		)
		return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, key.ReplyTo, key.CorrelationID)
	}

	r.entries[key] = &pending{
		key:      key,
		deadline: deadline,
		listener: listener,
	}
	return nil
}

// ResolveAndRemove removes the entry for key and hands outcome to its
// listener. It returns false, without side effects, when no live entry exists.
func (r *Registry) ResolveAndRemove(key Key, outcome Outcome) bool {
	r.mu.Lock()
	entry, exists := r.entries[key]
	if exists {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}

	entry.listener(outcome)
	return true
}

// ForceRemove drops the entry for key without notifying its listener. It
// returns true if an entry was removed, meaning no resolver got there first.
func (r *Registry) ForceRemove(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; !exists {
		return false
	}
	delete(r.entries, key)
	return true
}

// Contains reports whether key holds a live entry
func (r *Registry) Contains(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.entries[key]
	return exists
}

// Len returns the number of pending calls
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Expired returns the keys whose deadline is before now
func (r *Registry) Expired(now time.Time) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []Key
	for key, entry := range r.entries {
		if !entry.deadline.IsZero() && entry.deadline.Before(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear removes every entry and resolves each with outcome. Used on shutdown.
func (r *Registry) Clear(outcome Outcome) int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Key]*pending)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.listener(outcome)
	}
	return len(entries)
}
