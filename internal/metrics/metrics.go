// Package metrics declares the Prometheus collectors of the progression server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signal outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeStale     = "stale"
	OutcomeUnknown   = "unknown"
	OutcomeViolation = "violation"
	OutcomePanic     = "panic"
)

// Persistence write statuses.
const (
	WriteOK      = "ok"
	WriteRetried = "retried"
	WriteFailed  = "failed"
)

var (
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantern_signals_total",
			Help: "Inbound progression signals by signal name and outcome.",
		},
		[]string{"signal", "outcome"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantern_transitions_total",
			Help: "Scene transitions requested, by content category.",
		},
		[]string{"category"},
	)

	PersistenceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantern_persistence_writes_total",
			Help: "Save-slot writes by status.",
		},
		[]string{"status"},
	)

	PersistenceDirty = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lantern_persistence_dirty",
		Help: "1 while the in-memory progress has not reached storage.",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lantern_websocket_clients",
		Help: "Connected transition stream clients.",
	})
)
