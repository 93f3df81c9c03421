// Package auth holds the current session identity and validates session tokens.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/models"
)

// Listener is notified with the new identity (nil on sign-out) whenever it changes.
type Listener func(id *Identity)

// Session holds the current identity for the process.
// It is constructed once at startup and shared by the engines.
type Session struct {
	mu        sync.RWMutex
	identity  *Identity
	token     string
	profile   *models.Profile
	listeners map[int]Listener
	nextID    int

	jwt      *JWTManager
	profiles gateway.ProfileReader
	logger   *slog.Logger
}

// NewSession creates a signed-out session.
// profiles may be nil, in which case RefreshProfile is a no-op.
func NewSession(jwt *JWTManager, profiles gateway.ProfileReader, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		jwt:       jwt,
		profiles:  profiles,
		logger:    logger,
		listeners: map[int]Listener{},
	}
}

// Current returns a copy of the current identity, or nil when signed out.
func (s *Session) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// UserID returns the current user ID, or "" when signed out.
func (s *Session) UserID() string {
	if id := s.Current(); id != nil {
		return id.UserID
	}
	return ""
}

// Token returns the raw token of the current session.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SignIn validates token and makes its identity current.
// Listeners fire only when the user actually changes.
func (s *Session) SignIn(token string) (*Identity, error) {
	id, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	s.set(id, token)
	return id, nil
}

// SignOut clears the current identity.
func (s *Session) SignOut() {
	s.set(nil, "")
}

func (s *Session) set(id *Identity, token string) {
	s.mu.Lock()
	changed := !sameUser(s.identity, id)
	s.identity = id
	s.token = token
	if changed {
		s.profile = nil
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	if id != nil {
		s.logger.Info("Session identity changed", "user_id", id.UserID)
	} else {
		s.logger.Info("Session signed out")
	}
	for _, l := range listeners {
		if id == nil {
			l(nil)
			continue
		}
		cp := *id
		l(&cp)
	}
}

// Subscribe registers l and returns a function that removes it.
// l is not called with the current identity; callers read Current() for that.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.nextID
	s.nextID++
	s.listeners[key] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, key)
		s.mu.Unlock()
	}
}

// RefreshProfile re-reads the current user's profile and caches it.
func (s *Session) RefreshProfile(ctx context.Context) error {
	userID := s.UserID()
	if userID == "" {
		return ErrNotAuthenticated
	}
	if s.profiles == nil {
		return nil
	}

	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to refresh profile: %w", err)
	}

	s.mu.Lock()
	if s.identity != nil && s.identity.UserID == userID {
		s.profile = p
	}
	s.mu.Unlock()
	return nil
}

// Profile returns the cached profile, or nil if none has been loaded for the current user.
func (s *Session) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

func sameUser(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UserID == b.UserID
}
