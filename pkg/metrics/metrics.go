// Package metrics holds the Prometheus collectors for command handling.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stock"

type Metrics struct {
	Commands     *prometheus.CounterVec
	Reservations *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands by route and disposition.",
		}, []string{"route", "disposition"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation outcomes published.",
		}, []string{"success"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent handling one inbound command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.Commands, m.Reservations, m.Duration)
	return m
}

func (m *Metrics) ObserveCommand(route, disposition string, started time.Time) {
	m.Commands.WithLabelValues(route, disposition).Inc()
	m.Duration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveReservation(success bool) {
	label := "false"
	if success {
		label = "true"
	}
	m.Reservations.WithLabelValues(label).Inc()
}
