// Package metrics exposes Prometheus counters for the state engines.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orderstate"

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds every counter the engines record.
type Metrics struct {
	CartMutations         *prometheus.CounterVec
	DeliveryFeeQuotes     *prometheus.CounterVec
	FavoritesSyncs        *prometheus.CounterVec
	FavoritesRemoteWrites *prometheus.CounterVec
	Registrations         *prometheus.CounterVec
	LocalStoreErrors      *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"op"}),
		DeliveryFeeQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_fee_quotes_total",
			Help:      "Delivery fee quotes by outcome.",
		}, []string{"outcome"}),
		FavoritesSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_syncs_total",
			Help:      "Favorites reconciliations by outcome.",
		}, []string{"outcome"}),
		FavoritesRemoteWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_remote_writes_total",
			Help:      "Remote favorite inserts and deletes by outcome.",
		}, []string{"op", "outcome"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_submissions_total",
			Help:      "Registration submissions by wizard and outcome.",
		}, []string{"kind", "outcome"}),
		LocalStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_store_errors_total",
			Help:      "Failed local store reads and writes by key.",
		}, []string{"key"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CartMutations,
			m.DeliveryFeeQuotes,
			m.FavoritesSyncs,
			m.FavoritesRemoteWrites,
			m.Registrations,
			m.LocalStoreErrors,
		)
	}
	return m
}

func (m *Metrics) CartMutation(op string) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) FeeQuote(outcome string) {
	if m == nil {
		return
	}
	m.DeliveryFeeQuotes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FavoritesSync(outcome string) {
	if m == nil {
		return
	}
	m.FavoritesSyncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FavoritesWrite(op, outcome string) {
	if m == nil {
		return
	}
	m.FavoritesRemoteWrites.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Registration(kind, outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) LocalStoreError(key string) {
	if m == nil {
		return
	}
	m.LocalStoreErrors.WithLabelValues(key).Inc()
}

// Outcome maps an error to OutcomeOK or OutcomeError.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
