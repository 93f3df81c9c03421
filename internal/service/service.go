// Package service exposes the engines as a local JSON HTTP API for a UI shell.
package service

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/orderstate/internal/auth"
	"github.com/mmynk/orderstate/internal/cart"
	"github.com/mmynk/orderstate/internal/favorites"
	"github.com/mmynk/orderstate/internal/middleware"
	"github.com/mmynk/orderstate/internal/recent"
	"github.com/mmynk/orderstate/internal/registration"
)

// Deps are the engines served by the API. Metrics may be nil.
type Deps struct {
	Cart      *cart.Engine
	Favorites *favorites.Engine
	Session   *auth.Session
	Driver    *registration.Accumulator
	Merchant  *registration.Accumulator
	Recent    *recent.Searches
	Metrics   http.Handler
	Logger    *slog.Logger
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.WithSession(d.Session))
	r.Use(middleware.RequestLogger(d.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		(&CartService{engine: d.Cart}).Routes(r)
		(&FavoritesService{engine: d.Favorites}).Routes(r)
		NewSessionService(d.Session, d.Logger).Routes(r)
		NewRegistrationService(d.Driver, d.Merchant).Routes(r)
		(&RecentService{searches: d.Recent}).Routes(r)
	})
	return r
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into dst, writing a 400 and returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
