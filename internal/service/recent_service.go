package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/orderstate/internal/recent"
)

// RecentService serves the recent-search list.
type RecentService struct {
	searches *recent.Searches
}

// Routes mounts the recent-search routes.
func (s *RecentService) Routes(r chi.Router) {
	r.Route("/recent-searches", func(r chi.Router) {
		r.Get("/", s.List)
		r.Post("/", s.Add)
		r.Delete("/", s.Clear)
		r.Delete("/{term}", s.Remove)
	})
}

func (s *RecentService) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"terms": s.searches.List()})
}

func (s *RecentService) Add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Term string `json:"term"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"terms": s.searches.Add(r.Context(), req.Term)})
}

func (s *RecentService) Remove(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"terms": s.searches.Remove(r.Context(), chi.URLParam(r, "term"))})
}

func (s *RecentService) Clear(w http.ResponseWriter, r *http.Request) {
	s.searches.Clear(r.Context())
	writeJSON(w, http.StatusOK, map[string][]string{"terms": {}})
}
