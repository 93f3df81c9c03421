package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/orderstate/internal/auth"
	"github.com/mmynk/orderstate/internal/middleware"
	"github.com/mmynk/orderstate/internal/models"
)

// SessionService signs the process-wide session in and out.
type SessionService struct {
	session *auth.Session
	logger  *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(session *auth.Session, logger *slog.Logger) *SessionService {
	return &SessionService{session: session, logger: logger}
}

// sessionResponse describes the current session. Identity is nil when signed out.
type sessionResponse struct {
	Identity *auth.Identity `json:"identity"`
	Profile  *models.Profile `json:"profile,omitempty"`
}

// Routes mounts the session routes.
func (s *SessionService) Routes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Post("/", s.SignIn)
		r.Delete("/", s.SignOut)
		r.With(middleware.RequireAuth).Post("/refresh-profile", s.RefreshProfile)
	})
}

func (s *SessionService) current() sessionResponse {
	return sessionResponse{Identity: s.session.Current(), Profile: s.session.Profile()}
}

// GetSession handles GET /api/session.
func (s *SessionService) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.current())
}

// SignIn handles POST /api/session. The token comes from the Authorization
// header or, failing that, a {"token": "..."} body.
func (s *SessionService) SignIn(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.BearerToken(r)
	if errors.Is(err, auth.ErrMissingToken) {
		var req struct {
			Token string `json:"token"`
		}
		if !decode(w, r, &req) {
			return
		}
		token, err = req.Token, nil
		if token == "" {
			err = auth.ErrMissingToken
		}
	}
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := s.session.SignIn(token)
	if err != nil {
		s.logger.Warn("Sign in failed", "error", err)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.session.RefreshProfile(r.Context()); err != nil {
		s.logger.Warn("Profile refresh failed", "user_id", id.UserID, "error", err)
	}

	s.logger.Info("Signed in", "user_id", id.UserID)
	writeJSON(w, http.StatusOK, s.current())
}

// SignOut handles DELETE /api/session.
func (s *SessionService) SignOut(w http.ResponseWriter, r *http.Request) {
	s.session.SignOut()
	writeJSON(w, http.StatusOK, s.current())
}

// RefreshProfile handles POST /api/session/refresh-profile.
func (s *SessionService) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RefreshProfile(r.Context()); err != nil {
		s.logger.Warn("Profile refresh failed", "user_id", middleware.GetUserID(r.Context()), "error", err)
		writeError(w, http.StatusBadGateway, "failed to refresh profile")
		return
	}
	writeJSON(w, http.StatusOK, s.current())
}
