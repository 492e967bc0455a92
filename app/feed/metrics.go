package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_engine",
		Subsystem: "feed",
		Name:      "published_total",
		Help:      "Updates published per bus.",
	}, []string{"bus"})
	deliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_engine",
		Subsystem: "feed",
		Name:      "delivered_total",
		Help:      "Updates handed to subscriber buffers per bus.",
	}, []string{"bus"})
	droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_engine",
		Subsystem: "feed",
		Name:      "dropped_total",
		Help:      "Updates dropped because a subscriber buffer was full.",
	}, []string{"bus"})
	subscribersGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "challenge_engine",
		Subsystem: "feed",
		Name:      "subscribers",
		Help:      "Live subscriptions per bus.",
	}, []string{"bus"})
	resubscribesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_engine",
		Subsystem: "feed",
		Name:      "resubscribes_total",
		Help:      "Resilient subscriptions re-established after a delivery error.",
	}, []string{"bus"})
	relayErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_engine",
		Subsystem: "feed",
		Name:      "relay_errors_total",
		Help:      "Failures mirroring updates to or from Redis.",
	}, []string{"bus"})
)

func init() {
	prometheus.MustRegister(publishedTotal, deliveredTotal, droppedTotal, subscribersGauge, resubscribesTotal, relayErrorsTotal)
}
