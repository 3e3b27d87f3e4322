// Package store persists helmet readings in an append-only collection.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// ErrWrite marks a failed append. The previously persisted readings are
// left intact.
var ErrWrite = errors.New("storage write failure")

// Store is an append-only collection of readings.
//
// ReadAll returns readings in arrival order. Implementations treat an
// unreadable or malformed collection as empty instead of failing.
type Store interface {
	Append(ctx context.Context, r reading.Reading) error
	ReadAll(ctx context.Context) ([]reading.Reading, error)
	Close() error
}

// Serialized funnels every append through a single lock so that
// read-modify-write backends never lose an update. Reads are not locked:
// they observe whatever the backend has committed.
type Serialized struct {
	mu      sync.Mutex
	backend Store
}

// Serialize wraps a backend with the single-writer lock
func Serialize(backend Store) *Serialized {
	return &Serialized{backend: backend}
}

// Append stores r after all previously started appends have completed
func (s *Serialized) Append(ctx context.Context, r reading.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.Append(ctx, r)
}

// ReadAll returns a snapshot of the stored readings
func (s *Serialized) ReadAll(ctx context.Context) ([]reading.Reading, error) {
	return s.backend.ReadAll(ctx)
}

// Close closes the backend once in-flight appends have finished
func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}
