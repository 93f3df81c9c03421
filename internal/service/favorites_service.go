package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/orderstate/internal/favorites"
	"github.com/mmynk/orderstate/internal/models"
)

// FavoritesService serves the favorites engine.
type FavoritesService struct {
	engine *favorites.Engine
}

// Routes mounts the favorites routes.
func (s *FavoritesService) Routes(r chi.Router) {
	r.Route("/favorites", func(r chi.Router) {
		r.Get("/", s.List)
		r.Post("/", s.Add)
		r.Post("/toggle", s.Toggle)
		r.Get("/{id}", s.IsFavorite)
		r.Delete("/{id}", s.Remove)
	})
}

// List handles GET /api/favorites.
func (s *FavoritesService) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func decodeMerchant(w http.ResponseWriter, r *http.Request) (models.Merchant, bool) {
	var m models.Merchant
	if !decode(w, r, &m) {
		return m, false
	}
	if m.ID == "" {
		writeError(w, http.StatusUnprocessableEntity, "id is required")
		return m, false
	}
	return m, true
}

// Add handles POST /api/favorites. Adding an existing favorite is a no-op.
func (s *FavoritesService) Add(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMerchant(w, r)
	if !ok {
		return
	}
	s.engine.Add(m)
	writeJSON(w, http.StatusOK, s.engine.State())
}

// Toggle handles POST /api/favorites/toggle.
func (s *FavoritesService) Toggle(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMerchant(w, r)
	if !ok {
		return
	}
	fav := s.engine.Toggle(m)
	writeJSON(w, http.StatusOK, map[string]any{
		"isFavorite": fav,
		"favorites":  s.engine.State(),
	})
}

// IsFavorite handles GET /api/favorites/{id}.
func (s *FavoritesService) IsFavorite(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"isFavorite": s.engine.IsFavorite(chi.URLParam(r, "id"))})
}

// Remove handles DELETE /api/favorites/{id}.
func (s *FavoritesService) Remove(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "favorite not found")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}
