// Package metrics defines the Prometheus instrumentation for the
// ledger engine. A single Metrics value is created in main and shared
// by the service and API layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine exports.
type Metrics struct {
	PaymentsRecorded *prometheus.CounterVec
	RecordsCreated   prometheus.Counter
	Undos            *prometheus.CounterVec
	SettlementsDone  prometheus.Counter
	TransfersPlanned prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with the registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tallybot_payments_recorded_total",
			Help: "Payments recorded, by split kind.",
		}, []string{"kind"}),
		RecordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tallybot_records_created_total",
			Help: "Individual obligation records written.",
		}),
		Undos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tallybot_undo_total",
			Help: "Undo attempts, by outcome (deleted or empty).",
		}, []string{"outcome"}),
		SettlementsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tallybot_settlements_completed_total",
			Help: "Settlement plans computed.",
		}),
		TransfersPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tallybot_transfers_planned_total",
			Help: "Transfers across all computed settlement plans.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tallybot_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "code"}),
	}
	reg.MustRegister(
		m.PaymentsRecorded,
		m.RecordsCreated,
		m.Undos,
		m.SettlementsDone,
		m.TransfersPlanned,
		m.RequestDuration,
	)
	return m
}

// NewNop returns metrics backed by a throwaway registry. Intended for
// tests that exercise code paths which bump counters.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
