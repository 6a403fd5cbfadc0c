// Package metrics holds the Prometheus collectors for the booking bot.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bookingbot"

// Metrics exposes counters and histograms for conversation processing.
// All Observe methods are safe to call on a nil *Metrics.
type Metrics struct {
	messagesTotal        *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	bookingsTotal        *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
	outboundTotal        *prometheus.CounterVec
	processLatency       *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by channel and result",
		}, []string{"channel", "result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "Phase transitions performed by the conversation engine",
		}, []string{"from", "to"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "total",
			Help:      "Booking writes, by kind and status",
		}, []string{"kind", "status"}),
		collaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "collaborator_failures_total",
			Help:      "Catalog, booking and session store failures or timeouts",
		}, []string{"operation"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound replies, by transport and status",
		}, []string{"transport", "status"}),
		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "process_seconds",
			Help:      "Time to lock, load, handle and save one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.transitionsTotal, m.bookingsTotal,
		m.collaboratorFailures, m.outboundTotal, m.processLatency)
	return m
}

func (m *Metrics) ObserveMessage(channel, result string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveBooking(kind, status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveCollaboratorFailure(operation string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveOutbound(transport, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(transport, status).Inc()
}

func (m *Metrics) ObserveProcessLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.processLatency.WithLabelValues(channel).Observe(seconds)
}
