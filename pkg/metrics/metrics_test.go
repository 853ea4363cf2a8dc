package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommand("reserve-stock", "ack", time.Now())
	m.ObserveCommand("reserve-stock", "ack", time.Now())
	m.ObserveCommand("release-stock", "requeue", time.Now())
	m.ObserveReservation(true)
	m.ObserveReservation(false)
	m.ObserveReservation(true)

	if got := testutil.ToFloat64(m.Commands.WithLabelValues("reserve-stock", "ack")); got != 2 {
		t.Errorf("reserve acks: %v", got)
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("release-stock", "requeue")); got != 1 {
		t.Errorf("release requeues: %v", got)
	}
	if got := testutil.ToFloat64(m.Reservations.WithLabelValues("true")); got != 2 {
		t.Errorf("successful reservations: %v", got)
	}
	if n := testutil.CollectAndCount(m.Duration); n != 2 {
		t.Errorf("expected 2 histogram series, got %d", n)
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected panic on second registration")
		}
	}()
	New(reg)
}
