package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/orderstate/internal/cart"
	"github.com/mmynk/orderstate/internal/models"
)

// CartService serves the cart engine.
type CartService struct {
	engine *cart.Engine
}

// Routes mounts the cart routes.
func (s *CartService) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.GetCart)
		r.Delete("/", s.ClearCart)
		r.Post("/items", s.AddItem)
		r.Patch("/items/{id}", s.UpdateItem)
		r.Delete("/items/{id}", s.RemoveItem)
		r.Put("/notes/{merchant}", s.SetMerchantNote)
		r.Post("/delivery-fee/quote", s.QuoteDeliveryFee)
		r.Put("/delivery-fee", s.SetDeliveryFee)
	})
}

// GetCart handles GET /api/cart.
func (s *CartService) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

// ClearCart handles DELETE /api/cart.
func (s *CartService) ClearCart(w http.ResponseWriter, r *http.Request) {
	s.engine.Clear()
	writeJSON(w, http.StatusOK, s.engine.State())
}

// AddItem handles POST /api/cart/items.
func (s *CartService) AddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item     cart.ItemInput   `json:"item"`
		Merchant *models.Merchant `json:"merchant"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Item.ID == "" {
		writeError(w, http.StatusUnprocessableEntity, "item.id is required")
		return
	}
	if req.Item.Price < 0 {
		writeError(w, http.StatusUnprocessableEntity, "item.price must not be negative")
		return
	}

	s.engine.AddItem(req.Item, req.Merchant)
	writeJSON(w, http.StatusOK, s.engine.State())
}

// UpdateItem handles PATCH /api/cart/items/{id}. Quantity <= 0 removes the item.
func (s *CartService) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Quantity *int    `json:"quantity"`
		Notes    *string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}

	if req.Notes != nil {
		s.engine.UpdateNotes(id, *req.Notes)
	}
	if req.Quantity != nil {
		s.engine.UpdateQuantity(id, *req.Quantity)
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}

// RemoveItem handles DELETE /api/cart/items/{id}.
func (s *CartService) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s.engine.RemoveItem(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, s.engine.State())
}

// SetMerchantNote handles PUT /api/cart/notes/{merchant}.
func (s *CartService) SetMerchantNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.engine.SetMerchantNote(chi.URLParam(r, "merchant"), req.Note)
	writeJSON(w, http.StatusOK, s.engine.State())
}

// QuoteDeliveryFee handles POST /api/cart/delivery-fee/quote.
// A failed quote still answers 200 with the fee in effect.
func (s *CartService) QuoteDeliveryFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MerchantID string  `json:"merchantId"`
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.MerchantID == "" {
		writeError(w, http.StatusUnprocessableEntity, "merchantId is required")
		return
	}

	fee := s.engine.CalculateDeliveryFee(r.Context(), req.MerchantID, req.Latitude, req.Longitude)
	writeJSON(w, http.StatusOK, map[string]any{
		"fee":  fee,
		"cart": s.engine.State(),
	})
}

// SetDeliveryFee handles PUT /api/cart/delivery-fee. A null fee clears the override.
func (s *CartService) SetDeliveryFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fee *int64 `json:"fee"`
	}
	if !decode(w, r, &req) {
		return
	}

	switch {
	case req.Fee == nil:
		s.engine.ClearDeliveryFee()
	case *req.Fee < 0:
		writeError(w, http.StatusUnprocessableEntity, "fee must not be negative")
		return
	default:
		s.engine.SetDeliveryFee(*req.Fee)
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}
