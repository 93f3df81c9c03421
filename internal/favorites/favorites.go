// Package favorites keeps the favorites list local-first and reconciles it with
// the remote store once per signed-in identity.
//
// Adds and removes are optimistic. A failed remote insert is not rolled back:
// the entry stays local until the next sync replaces the list with the remote
// one. A failed remote delete is rolled back and the entry reappears.
package favorites

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/orderstate/internal/async"
	"github.com/mmynk/orderstate/internal/auth"
	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/metrics"
	"github.com/mmynk/orderstate/internal/models"
	"github.com/mmynk/orderstate/internal/storage"
)

// Phase is the reconciliation state for the current identity.
type Phase int

const (
	Unsynced Phase = iota
	Syncing
	Synced
)

func (p Phase) String() string {
	switch p {
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "unsynced"
	}
}

// MarshalText renders the phase by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is a consistent copy of the favorites list.
type State struct {
	Entries   []models.FavoriteEntry `json:"entries"`
	Loading   bool                   `json:"loading"`
	HasSynced bool                   `json:"hasSynced"`
	Phase     Phase                  `json:"phase"`
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Now stamps optimistic entries. Defaults to time.Now.
	Now func() time.Time
}

// Engine owns the favorites list. It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	entries  []models.FavoriteEntry // newest first
	phase    Phase
	userID   string
	syncSeq  uint64
	observer async.Observers[State]

	gen       uint64
	persistMu sync.Mutex
	persisted uint64

	store   storage.KVStore
	remote  gateway.FavoritesGateway
	runner  *async.Runner
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an Engine showing the favorites persisted in store.
func New(ctx context.Context, store storage.KVStore, remote gateway.FavoritesGateway, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		store:   store,
		remote:  remote,
		runner:  async.NewRunner(ctx, logger),
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}

	var entries []models.FavoriteEntry
	if _, err := storage.GetJSON(ctx, store, storage.KeyFavorites, &entries); err != nil {
		logger.Warn("Failed to load favorites", "error", err)
		e.metrics.LocalStoreError(storage.KeyFavorites)
	}
	e.entries = dedupe(entries)
	return e
}

// Bind follows session identity changes and applies the current identity.
// It returns a function that stops following.
func (e *Engine) Bind(s *auth.Session) func() {
	unsubscribe := s.Subscribe(func(id *auth.Identity) {
		if id == nil {
			e.OnIdentityChange("")
			return
		}
		e.OnIdentityChange(id.UserID)
	})
	e.OnIdentityChange(s.UserID())
	return unsubscribe
}

// OnIdentityChange reacts to the signed-in user ("" when signed out).
//
// A new identity resets the synced flag. A signed-in identity that has not been
// synced, and has no sync in flight, starts exactly one remote fetch. Signing out
// keeps the local list on display.
func (e *Engine) OnIdentityChange(userID string) {
	e.mu.Lock()
	if userID != e.userID {
		e.userID = userID
		e.phase = Unsynced
		e.syncSeq++
	}
	if userID == "" || e.phase != Unsynced {
		st := e.stateLocked()
		e.mu.Unlock()
		e.observer.Notify(st)
		return
	}

	e.phase = Syncing
	seq := e.syncSeq
	st := e.stateLocked()
	e.mu.Unlock()
	e.observer.Notify(st)

	e.runner.Go("sync favorites", func(ctx context.Context) {
		e.sync(ctx, userID, seq)
	})
}

// sync replaces the local list with the remote one for userID.
func (e *Engine) sync(ctx context.Context, userID string, seq uint64) {
	rows, err := e.remote.FetchFavorites(ctx, userID)

	e.mu.Lock()
	if seq != e.syncSeq {
		// The identity changed while fetching; this result belongs to an old session.
		e.mu.Unlock()
		e.metrics.FavoritesSync(metrics.OutcomeSkipped)
		return
	}
	if err != nil {
		e.phase = Unsynced
		st := e.stateLocked()
		e.mu.Unlock()

		e.logger.Warn("Favorites sync failed, keeping local list", "user_id", userID, "error", err)
		e.metrics.FavoritesSync(metrics.OutcomeError)
		e.observer.Notify(st)
		return
	}

	entries := make([]models.FavoriteEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.Entry())
	}
	e.entries = dedupe(entries)
	e.phase = Synced
	st := e.stateLocked()
	gen, snap := e.bumpLocked()
	e.mu.Unlock()

	e.logger.Info("Favorites synced", "user_id", userID, "count", len(entries))
	e.metrics.FavoritesSync(metrics.OutcomeOK)
	e.observer.Notify(st)
	e.persist(ctx, gen, snap)
}

// Toggle adds merchant when it is not a favorite and removes it otherwise.
// It returns whether merchant is a favorite afterwards.
func (e *Engine) Toggle(m models.Merchant) bool {
	if e.IsFavorite(m.ID) {
		e.Remove(m.ID)
		return false
	}
	e.Add(m)
	return true
}

// Add inserts merchant immediately and, when signed in, confirms it remotely in
// the background. It returns false if merchant was already a favorite.
func (e *Engine) Add(m models.Merchant) bool {
	e.mu.Lock()
	if e.indexOf(m.ID) >= 0 {
		e.mu.Unlock()
		return false
	}
	entry := models.FavoriteEntry{Merchant: m, AddedAt: e.now()}
	e.entries = append([]models.FavoriteEntry{entry}, e.entries...)
	userID := e.userID
	st := e.stateLocked()
	gen, snap := e.bumpLocked()
	e.mu.Unlock()

	e.observer.Notify(st)
	e.schedulePersist(gen, snap)

	if userID == "" {
		return true
	}
	e.runner.Go("insert favorite", func(ctx context.Context) {
		e.confirmAdd(ctx, userID, m.ID)
	})
	return true
}

func (e *Engine) confirmAdd(ctx context.Context, userID, merchantID string) {
	rowID, err := e.remote.InsertFavorite(ctx, userID, merchantID)
	e.metrics.FavoritesWrite("insert", metrics.Outcome(err))
	if err != nil {
		// Not rolled back: the next sync reconciles with the remote list.
		e.logger.Warn("Remote favorite insert failed", "merchant_id", merchantID, "error", err)
		return
	}

	e.mu.Lock()
	i := e.indexOf(merchantID)
	if i < 0 || e.entries[i].RemoteRowID != "" {
		e.mu.Unlock()
		return
	}
	e.entries[i].RemoteRowID = rowID
	st := e.stateLocked()
	gen, snap := e.bumpLocked()
	e.mu.Unlock()

	e.observer.Notify(st)
	e.persist(ctx, gen, snap)
}

// Remove deletes the entry immediately and, when signed in, deletes it remotely
// in the background. If the remote delete fails the entry is restored.
// It returns false if merchantID was not a favorite.
func (e *Engine) Remove(merchantID string) bool {
	e.mu.Lock()
	i := e.indexOf(merchantID)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	removed := e.entries[i]
	e.entries = append(e.entries[:i:i], e.entries[i+1:]...)
	userID := e.userID
	st := e.stateLocked()
	gen, snap := e.bumpLocked()
	e.mu.Unlock()

	e.observer.Notify(st)
	e.schedulePersist(gen, snap)

	if userID == "" {
		return true
	}
	e.runner.Go("delete favorite", func(ctx context.Context) {
		e.confirmRemove(ctx, userID, removed, i)
	})
	return true
}

func (e *Engine) confirmRemove(ctx context.Context, userID string, removed models.FavoriteEntry, pos int) {
	err := e.remote.DeleteFavorite(ctx, userID, removed.ID)
	e.metrics.FavoritesWrite("delete", metrics.Outcome(err))
	if err == nil {
		return
	}
	e.logger.Warn("Remote favorite delete failed, restoring entry", "merchant_id", removed.ID, "error", err)

	e.mu.Lock()
	if e.indexOf(removed.ID) >= 0 {
		// Re-added in the meantime; nothing to restore.
		e.mu.Unlock()
		return
	}
	if pos > len(e.entries) {
		pos = len(e.entries)
	}
	e.entries = append(e.entries[:pos], append([]models.FavoriteEntry{removed}, e.entries[pos:]...)...)
	st := e.stateLocked()
	gen, snap := e.bumpLocked()
	e.mu.Unlock()

	e.observer.Notify(st)
	e.persist(ctx, gen, snap)
}

// IsFavorite reports whether merchantID is in the current list.
func (e *Engine) IsFavorite(merchantID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexOf(merchantID) >= 0
}

// Entries returns a copy of the list, newest first.
func (e *Engine) Entries() []models.FavoriteEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.FavoriteEntry(nil), e.entries...)
}

// State returns a copy of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Subscribe registers fn to receive the new state after every change.
func (e *Engine) Subscribe(fn func(State)) func() {
	return e.observer.Subscribe(fn)
}

// Wait blocks until background syncs, remote writes and store writes have finished.
func (e *Engine) Wait() {
	e.runner.Wait()
}

// Close stops background work.
func (e *Engine) Close() {
	e.runner.Close()
}

func (e *Engine) stateLocked() State {
	return State{
		Entries:   append([]models.FavoriteEntry{}, e.entries...),
		Loading:   e.phase == Syncing,
		HasSynced: e.phase == Synced,
		Phase:     e.phase,
	}
}

func (e *Engine) indexOf(merchantID string) int {
	for i := range e.entries {
		if e.entries[i].ID == merchantID {
			return i
		}
	}
	return -1
}

// bumpLocked starts a new persistence generation and snapshots the list for it.
func (e *Engine) bumpLocked() (uint64, []models.FavoriteEntry) {
	e.gen++
	return e.gen, append([]models.FavoriteEntry{}, e.entries...)
}

func (e *Engine) schedulePersist(gen uint64, snap []models.FavoriteEntry) {
	e.runner.Go("persist favorites", func(ctx context.Context) {
		e.persist(ctx, gen, snap)
	})
}

// persist writes snap unless a newer generation has already been written.
// Writes still land after the owner's context is cancelled.
func (e *Engine) persist(ctx context.Context, gen uint64, snap []models.FavoriteEntry) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if gen <= e.persisted {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := storage.SetJSON(ctx, e.store, storage.KeyFavorites, snap); err != nil {
		e.logger.Warn("Failed to persist favorites", "error", err)
		e.metrics.LocalStoreError(storage.KeyFavorites)
		return
	}
	e.persisted = gen
}

func dedupe(entries []models.FavoriteEntry) []models.FavoriteEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]models.FavoriteEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" || seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		out = append(out, entry)
	}
	return out
}
