// Package recent keeps the list of recent search terms.
package recent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmynk/orderstate/internal/metrics"
	"github.com/mmynk/orderstate/internal/storage"
)

// MaxTerms caps the list length.
const MaxTerms = 10

// Searches is the recent-search list, newest first. It is safe for concurrent use.
// Writes go straight to the store; a failed write is logged and the in-memory
// list stays authoritative.
type Searches struct {
	mu      sync.Mutex
	terms   []string
	store   storage.KVStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New loads the persisted list from store.
func New(ctx context.Context, store storage.KVStore, logger *slog.Logger, m *metrics.Metrics) *Searches {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Searches{store: store, logger: logger, metrics: m}

	var terms []string
	if _, err := storage.GetJSON(ctx, store, storage.KeyRecentSearches, &terms); err != nil {
		logger.Warn("Failed to load recent searches", "error", err)
		m.LocalStoreError(storage.KeyRecentSearches)
	}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" || index(s.terms, t) >= 0 || len(s.terms) == MaxTerms {
			continue
		}
		s.terms = append(s.terms, t)
	}
	return s
}

// Add moves term to the front. Blank terms are ignored. Matching is case-insensitive.
func (s *Searches) Add(ctx context.Context, term string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(term) == "" {
		return s.copyLocked()
	}
	s.terms = push(s.terms, term)
	s.persistLocked(ctx)
	return s.copyLocked()
}

// Remove drops term from the list.
func (s *Searches) Remove(ctx context.Context, term string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := index(s.terms, term); i >= 0 {
		s.terms = append(s.terms[:i:i], s.terms[i+1:]...)
		s.persistLocked(ctx)
	}
	return s.copyLocked()
}

// Clear empties the list and deletes the stored key.
func (s *Searches) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terms = nil
	if err := s.store.Delete(ctx, storage.KeyRecentSearches); err != nil {
		s.logger.Warn("Failed to clear recent searches", "error", err)
		s.metrics.LocalStoreError(storage.KeyRecentSearches)
	}
}

// List returns the terms, newest first.
func (s *Searches) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Searches) copyLocked() []string {
	return append([]string{}, s.terms...)
}

func (s *Searches) persistLocked(ctx context.Context) {
	if err := storage.SetJSON(ctx, s.store, storage.KeyRecentSearches, s.terms); err != nil {
		s.logger.Warn("Failed to persist recent searches", "error", err)
		s.metrics.LocalStoreError(storage.KeyRecentSearches)
	}
}

func push(terms []string, term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return terms
	}
	if i := index(terms, term); i >= 0 {
		terms = append(terms[:i:i], terms[i+1:]...)
	}
	terms = append([]string{term}, terms...)
	if len(terms) > MaxTerms {
		terms = terms[:MaxTerms]
	}
	return terms
}

func index(terms []string, term string) int {
	term = strings.TrimSpace(term)
	for i, t := range terms {
		if strings.EqualFold(t, term) {
			return i
		}
	}
	return -1
}
