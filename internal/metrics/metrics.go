package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshd_messages_forwarded_total",
			Help: "Messages forwarded toward a non-local gateway.",
		},
		[]string{"result"},
	)

	MessagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshd_messages_processed_total",
			Help: "Messages decoded by the selective decoder, by type.",
		},
		[]string{"type"},
	)

	BacklogDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshd_backlog_depth",
			Help: "Number of message collections currently queued in the backlog.",
		},
	)

	BacklogDispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshd_backlog_dispatch_duration_seconds",
			Help:    "Time to process one condensed backlog batch.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	RouteTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshd_route_table_size",
			Help: "Number of rows currently in the route table.",
		},
	)

	RoutesAgedOutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshd_routes_aged_out_total",
			Help: "Routes evicted for exceeding maxrouteweight.",
		},
	)

	RoutesRemovedByURLTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshd_routes_removed_by_url_total",
			Help: "Routes removed after a transport failure to a peer url.",
		},
	)

	TicketLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshd_ticket_latency_seconds",
			Help:    "Time from send_ticket to a received response.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"outcome"},
	)

	BroadcastResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshd_broadcast_responses_total",
			Help: "Broadcast responses collected, by outcome.",
		},
		[]string{"outcome"},
	)

	TraceHopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meshd_trace_hops_total",
			Help: "Trace events recorded across all in-flight traces.",
		},
	)

	CodecErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshd_codec_errors_total",
			Help: "Message codec encode/decode failures.",
		},
		[]string{"direction"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default prometheus registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MessagesForwardedTotal,
			MessagesProcessedTotal,
			BacklogDepth,
			BacklogDispatchDuration,
			RouteTableSize,
			RoutesAgedOutTotal,
			RoutesRemovedByURLTotal,
			TicketLatency,
			BroadcastResponsesTotal,
			TraceHopsTotal,
			CodecErrorsTotal,
		)
	})
}
