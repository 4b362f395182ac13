package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Escrow holds the state machine's Prometheus collectors.
type Escrow struct {
	TransitionsTotal *prometheus.CounterVec
	RejectedTotal    *prometheus.CounterVec
	OpenDisputes     prometheus.Gauge
}

// NewEscrow registers the escrow collectors on the given registerer.
func NewEscrow(reg prometheus.Registerer) *Escrow {
	m := &Escrow{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peacelink",
			Name:      "transitions_total",
			Help:      "Committed transitions by target state.",
		}, []string{"to_state"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peacelink",
			Name:      "transitions_rejected_total",
			Help:      "Rejected transition requests by error kind.",
		}, []string{"reason"}),
		OpenDisputes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peacelink",
			Name:      "open_disputes",
			Help:      "PeaceLinks currently in the disputed state.",
		}),
	}
	reg.MustRegister(m.TransitionsTotal, m.RejectedTotal, m.OpenDisputes)
	return m
}
