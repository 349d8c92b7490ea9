// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "web_bridge"

var (
	// Dispatches counts dispatcher calls by command and outcome code.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatches_total",
		Help:      "Commands dispatched, by command and outcome.",
	}, []string{"command", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent dispatching a command.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"command"})

	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_skipped_total",
		Help:      "Frames left out of an aggregated result.",
	}, []string{"reason"})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Outbound requests awaiting a reply.",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Reconnect attempts scheduled after the bridge channel closed or failed.",
	})

	ChannelUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_up",
		Help:      "1 while the named transport channel is open.",
	}, []string{"channel"})

	MutationReports = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutation_reports_total",
		Help:      "Mutation reports forwarded upstream.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
