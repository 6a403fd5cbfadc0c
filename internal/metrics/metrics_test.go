package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveMessage("twilio", "ok")
	m.ObserveMessage("twilio", "ok")
	m.ObserveTransition("awaiting_option", "choosing_farm_type")
	m.ObserveBooking("farm", "created")
	m.ObserveCollaboratorFailure("catalog")
	m.ObserveOutbound("whatsapp", "sent")
	m.ObserveProcessLatency("twilio", 0.02)

	if got := testutil.ToFloat64(m.messagesTotal.WithLabelValues("twilio", "ok")); got != 2 {
		t.Fatalf("expected 2 messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("awaiting_option", "choosing_farm_type")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.collaboratorFailures.WithLabelValues("catalog")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if n := testutil.CollectAndCount(m.processLatency); n != 1 {
		t.Fatalf("expected 1 latency series, got %d", n)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveMessage("http", "ok")
	m.ObserveTransition("new", "awaiting_option")
	m.ObserveBooking("venue", "created")
	m.ObserveCollaboratorFailure("booking")
	m.ObserveOutbound("twilio", "failed")
	m.ObserveProcessLatency("http", 0.1)
}
