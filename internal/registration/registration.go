// Package registration accumulates multi-step driver and merchant sign-up drafts
// and submits them as one pending record.
package registration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmynk/orderstate/internal/gateway"
	"github.com/mmynk/orderstate/internal/metrics"
	"github.com/mmynk/orderstate/internal/models"
)

// Identity is the session collaborator used by Submit.
// *auth.Session satisfies it.
type Identity interface {
	UserID() string
	RefreshProfile(ctx context.Context) error
}

// Draft is the partial input collected so far.
type Draft struct {
	Steps       map[int]models.Fields `json:"steps"`
	CurrentStep int                   `json:"currentStep"`
}

// Result is the outcome of Submit. Message is suitable for direct display.
type Result struct {
	OK             bool              `json:"ok"`
	Message        string            `json:"message"`
	RecordID       string            `json:"recordId,omitempty"`
	ArtifactURLs   map[string]string `json:"artifactUrls,omitempty"`
	ProfileUpdated bool              `json:"profileUpdated"`
}

// Options configures an Accumulator.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Accumulator holds one wizard's draft. It is safe for concurrent use.
type Accumulator struct {
	mu         sync.Mutex
	steps      map[int]models.Fields
	current    int
	version    uint64 // bumped by every draft edit
	inProgress bool

	form     form
	gw       gateway.RegistrationGateway
	identity Identity
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewDriver creates the driver registration wizard.
func NewDriver(gw gateway.RegistrationGateway, identity Identity, opts Options) *Accumulator {
	return newAccumulator(driverForm, gw, identity, opts)
}

// NewMerchant creates the merchant registration wizard.
func NewMerchant(gw gateway.RegistrationGateway, identity Identity, opts Options) *Accumulator {
	return newAccumulator(merchantForm, gw, identity, opts)
}

func newAccumulator(f form, gw gateway.RegistrationGateway, identity Identity, opts Options) *Accumulator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		steps:    map[int]models.Fields{},
		current:  1,
		form:     f,
		gw:       gw,
		identity: identity,
		logger:   logger.With("kind", string(f.kind)),
		metrics:  opts.Metrics,
	}
}

// Kind reports which wizard this is.
func (a *Accumulator) Kind() Kind {
	return a.form.kind
}

// SaveStepData merges fields into the stored fields of step and advances
// CurrentStep to step+1. Keys absent from fields keep their values.
func (a *Accumulator) SaveStepData(step int, fields models.Fields) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged := a.steps[step].Clone()
	for k, v := range fields {
		merged[k] = v
	}
	a.steps[step] = merged
	a.current = step + 1
	a.version++
}

// ClearDraft discards all steps and returns to step 1.
func (a *Accumulator) ClearDraft() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLocked()
}

func (a *Accumulator) clearLocked() {
	a.steps = map[int]models.Fields{}
	a.current = 1
	a.version++
}

// Draft returns a copy of the current draft.
func (a *Accumulator) Draft() Draft {
	a.mu.Lock()
	defer a.mu.Unlock()

	steps := make(map[int]models.Fields, len(a.steps))
	for n, f := range a.steps {
		steps[n] = f.Clone()
	}
	return Draft{Steps: steps, CurrentStep: a.current}
}

// Merged flattens the draft in step order with final overlaid on the terminal step.
func (a *Accumulator) Merged(final models.Fields) models.Fields {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mergedLocked(final)
}

func (a *Accumulator) mergedLocked(final models.Fields) models.Fields {
	steps := make(map[int]models.Fields, len(a.steps)+1)
	for n, f := range a.steps {
		steps[n] = f
	}
	terminal := steps[TerminalStep].Clone()
	for k, v := range final {
		terminal[k] = v
	}
	steps[TerminalStep] = terminal

	order := make([]int, 0, len(steps))
	for n := range steps {
		order = append(order, n)
	}
	sort.Ints(order)

	out := models.Fields{}
	for _, n := range order {
		for k, v := range steps[n] {
			out[k] = v
		}
	}
	return out
}

// InProgress reports whether a submission is running.
func (a *Accumulator) InProgress() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inProgress
}

// Submit uploads the draft's artifacts and inserts a pending record.
// Failures are reported in the Result; Submit never returns an error.
// Artifacts uploaded before a later failure are not deleted.
// On success the draft is cleared, unless it was edited while the
// submission ran; those edits are kept for the next attempt.
func (a *Accumulator) Submit(ctx context.Context, final models.Fields) Result {
	userID := ""
	if a.identity != nil {
		userID = a.identity.UserID()
	}
	if userID == "" {
		a.metrics.Registration(string(a.form.kind), metrics.OutcomeError)
		return Result{Message: "Please sign in before submitting your registration."}
	}

	a.mu.Lock()
	if a.inProgress {
		a.mu.Unlock()
		a.metrics.Registration(string(a.form.kind), metrics.OutcomeSkipped)
		return Result{Message: "A registration is already being submitted."}
	}
	a.inProgress = true
	merged := a.mergedLocked(final)
	version := a.version
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inProgress = false
		a.mu.Unlock()
	}()

	res := a.submit(ctx, userID, merged, version)
	a.metrics.Registration(string(a.form.kind), outcome(res))
	return res
}

func (a *Accumulator) submit(ctx context.Context, userID string, merged models.Fields, version uint64) Result {
	artifacts := make(map[string]*models.Artifact, len(a.form.artifacts))
	for _, field := range a.form.artifacts {
		art := merged.Artifact(field)
		if art == nil || len(art.Data) == 0 {
			return Result{Message: fmt.Sprintf("Missing required photo: %s.", field)}
		}
		artifacts[field] = art
	}

	urls := make(map[string]string, len(artifacts))
	for _, field := range a.form.artifacts {
		category := a.form.category + "/" + field
		url, err := a.gw.UploadArtifact(ctx, *artifacts[field], category, userID)
		if err != nil {
			a.logger.Error("Artifact upload failed", "field", field, "user_id", userID, "uploaded", len(urls), "error", err)
			return Result{Message: fmt.Sprintf("Failed to upload %s. Please try again.", field)}
		}
		urls[field] = url
	}

	recordID, err := a.form.insert(ctx, a.gw, userID, merged, urls)
	if err != nil {
		a.logger.Error("Registration insert failed", "user_id", userID, "error", err)
		return Result{Message: "Failed to save your registration. Please try again."}
	}

	res := Result{
		OK:           true,
		Message:      "Registration submitted and awaiting review.",
		RecordID:     recordID,
		ArtifactURLs: urls,
	}

	if update := a.form.profile(merged); !update.IsEmpty() {
		if err := a.gw.UpdateProfile(ctx, userID, update); err != nil {
			a.logger.Warn("Profile update failed", "user_id", userID, "error", err)
		} else {
			res.ProfileUpdated = true
		}
	}

	a.mu.Lock()
	if a.version == version {
		a.clearLocked()
	} else {
		a.logger.Info("Draft edited during submission, keeping it", "user_id", userID)
	}
	a.mu.Unlock()

	if err := a.identity.RefreshProfile(ctx); err != nil {
		a.logger.Warn("Profile refresh failed", "user_id", userID, "error", err)
	}

	a.logger.Info("Registration submitted", "user_id", userID, "record_id", recordID)
	return res
}

func outcome(r Result) string {
	if r.OK {
		return metrics.OutcomeOK
	}
	return metrics.OutcomeError
}
