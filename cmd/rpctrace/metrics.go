package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/rpctrace"
)

var (
	wrappersLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpctrace_wrappers_live",
			Help: "Number of wrapper entries currently registered, by kind.",
		},
		[]string{"kind"},
	)

	messagesForwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpctrace_messages_forwarded_total",
			Help: "Total number of messages the forward loop relayed to their destination.",
		},
	)

	messagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpctrace_messages_dropped_total",
			Help: "Total number of messages the forward loop dropped, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(wrappersLive)
	prometheus.MustRegister(messagesForwardedTotal)
	prometheus.MustRegister(messagesDroppedTotal)
}

func kindLabel(kind rpctrace.Kind) string {
	if kind == rpctrace.SendOnceWrapper {
		return "send-once"
	}
	return "send"
}

// promMetrics implements rpctrace.Metrics on top of the package-level
// collectors above, so a process can run more than one Tracer (e.g. across
// test cases) without re-registering collectors.
type promMetrics struct{}

func (promMetrics) WrapperRegistered(kind rpctrace.Kind) {
	wrappersLive.WithLabelValues(kindLabel(kind)).Inc()
}

func (promMetrics) WrapperFreed(kind rpctrace.Kind) {
	wrappersLive.WithLabelValues(kindLabel(kind)).Dec()
}

func (promMetrics) MessageForwarded() {
	messagesForwardedTotal.Inc()
}

func (promMetrics) MessageDropped(reason string) {
	messagesDroppedTotal.WithLabelValues(reason).Inc()
}
