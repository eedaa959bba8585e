package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MonitorsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlswatch",
		Name:      "monitors_running",
		Help:      "Number of playlist monitors currently holding a pool slot.",
	})

	MonitorsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlswatch",
		Name:      "monitors_pending",
		Help:      "Number of admitted playlist monitors waiting for a pool slot.",
	})

	MonitorStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "monitor_starts_total",
		Help:      "Total number of playlist monitors started.",
	})

	MonitorExitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "monitor_exits_total",
		Help:      "Total number of playlist monitor exits by reason.",
	}, []string{"reason"})

	MonitorPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "monitor_panics_total",
		Help:      "Total number of recovered playlist monitor panics.",
	})

	ParseFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "parse_failures_total",
		Help:      "Total number of manifest reads that failed transiently.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlswatch",
		Name:      "dispatch_queue_depth",
		Help:      "Dispatch units enqueued and not yet acknowledged, across all monitors.",
	})

	SegmentsEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "segments_enqueued_total",
		Help:      "Total number of dispatch units enqueued.",
	})

	SegmentsDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "segments_dispatched_total",
		Help:      "Total number of segments forwarded to the sink.",
	})

	SegmentsDuplicateTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "segments_duplicate_total",
		Help:      "Total number of dispatch units discarded as repeats of the previous segment.",
	})

	DispatchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlswatch",
		Name:      "dispatch_errors_total",
		Help:      "Total number of failed dispatch steps by stage.",
	}, []string{"stage"})

	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlswatch",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of segment fetches in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlswatch",
		Name:      "websocket_clients",
		Help:      "Number of connected segment feed clients.",
	})
)

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		MonitorsRunning,
		MonitorsPending,
		MonitorStartsTotal,
		MonitorExitsTotal,
		MonitorPanicsTotal,
		ParseFailuresTotal,
		QueueDepth,
		SegmentsEnqueuedTotal,
		SegmentsDispatchedTotal,
		SegmentsDuplicateTotal,
		DispatchErrorsTotal,
		FetchDuration,
		WebsocketClients,
	)
}
