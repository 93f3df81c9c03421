package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/orderstate/internal/models"
	"github.com/mmynk/orderstate/internal/registration"
)

// RegistrationService serves the driver and merchant wizards.
type RegistrationService struct {
	wizards map[registration.Kind]*registration.Accumulator
}

// NewRegistrationService creates a service over the two wizards.
func NewRegistrationService(driver, merchant *registration.Accumulator) *RegistrationService {
	return &RegistrationService{wizards: map[registration.Kind]*registration.Accumulator{
		registration.KindDriver:   driver,
		registration.KindMerchant: merchant,
	}}
}

// Routes mounts the registration routes.
func (s *RegistrationService) Routes(r chi.Router) {
	r.Route("/registration/{kind}", func(r chi.Router) {
		r.Get("/", s.GetDraft)
		r.Delete("/", s.ClearDraft)
		r.Put("/steps/{step}", s.SaveStep)
		r.Post("/submit", s.Submit)
	})
}

func (s *RegistrationService) wizard(w http.ResponseWriter, r *http.Request) (*registration.Accumulator, bool) {
	a := s.wizards[registration.Kind(chi.URLParam(r, "kind"))]
	if a == nil {
		writeError(w, http.StatusNotFound, "unknown registration kind")
		return nil, false
	}
	return a, true
}

type draftResponse struct {
	registration.Draft
	InProgress bool `json:"inProgress"`
}

// GetDraft handles GET /api/registration/{kind}.
func (s *RegistrationService) GetDraft(w http.ResponseWriter, r *http.Request) {
	a, ok := s.wizard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Draft: a.Draft(), InProgress: a.InProgress()})
}

// ClearDraft handles DELETE /api/registration/{kind}.
func (s *RegistrationService) ClearDraft(w http.ResponseWriter, r *http.Request) {
	a, ok := s.wizard(w, r)
	if !ok {
		return
	}
	a.ClearDraft()
	writeJSON(w, http.StatusOK, draftResponse{Draft: a.Draft()})
}

// SaveStep handles PUT /api/registration/{kind}/steps/{step}.
func (s *RegistrationService) SaveStep(w http.ResponseWriter, r *http.Request) {
	a, ok := s.wizard(w, r)
	if !ok {
		return
	}
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil || step < 1 {
		writeError(w, http.StatusBadRequest, "step must be a positive integer")
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	a.SaveStepData(step, fields)
	writeJSON(w, http.StatusOK, draftResponse{Draft: a.Draft(), InProgress: a.InProgress()})
}

// Submit handles POST /api/registration/{kind}/submit. The body holds the
// terminal step's fields. Failures answer 422 with the Result.
func (s *RegistrationService) Submit(w http.ResponseWriter, r *http.Request) {
	a, ok := s.wizard(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	res := a.Submit(r.Context(), fields)
	if !res.OK {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeFields reads a flat JSON object of step fields. Objects carrying a
// "data" member are artifacts with base64 data; other values decode as plain JSON.
func decodeFields(w http.ResponseWriter, r *http.Request) (models.Fields, bool) {
	var raw map[string]json.RawMessage
	if !decode(w, r, &raw) {
		return nil, false
	}

	fields := make(models.Fields, len(raw))
	for key, msg := range raw {
		v, err := decodeField(msg)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid field %s", key))
			return nil, false
		}
		fields[key] = v
	}
	return fields, true
}

func decodeField(msg json.RawMessage) (any, error) {
	if trimmed := bytes.TrimSpace(msg); len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(msg, &probe); err != nil {
			return nil, err
		}
		if _, ok := probe["data"]; ok {
			var a models.Artifact
			if err := json.Unmarshal(msg, &a); err != nil {
				return nil, err
			}
			return &a, nil
		}
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, err
	}
	return v, nil
}
