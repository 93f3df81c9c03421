package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable is returned by MemoryStore when it has been marked unavailable.
var ErrUnavailable = errors.New("storage unavailable")

// MemoryStore is an in-memory KVStore for tests and ephemeral sessions.
// Like the SQLite store it fails calls made with a done context.
type MemoryStore struct {
	mu          sync.RWMutex
	values      map[string]string
	unavailable bool
	writes      int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable.
func (s *MemoryStore) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	s.unavailable = unavailable
	s.mu.Unlock()
}

// Writes returns the number of successful Set calls.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return "", false, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.values[key] = value
	s.writes++
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
