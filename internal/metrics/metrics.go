package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logbook_events_captured_total",
			Help: "Events accepted into the ingress queue",
		}, []string{"severity"},
	)
	EventsFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logbook_events_filtered_total",
			Help: "Events dropped by the severity filter",
		}, []string{"severity"},
	)
	Occurrences = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logbook_occurrences_total",
			Help: "Events drained into the occurrence index",
		},
	)
	DistinctEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "logbook_distinct_entries",
			Help: "Collapsed entries held in memory",
		},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "logbook_queue_depth",
			Help: "Events waiting in the ingress queue at the start of the last drain",
		},
	)
	DrainLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logbook_drain_seconds",
			Help:    "Time spent draining and collapsing per tick",
			Buckets: prometheus.DefBuckets,
		},
	)
	Flushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logbook_flushes_total",
			Help: "File appends performed by the durable writer",
		},
	)
	FlushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logbook_flush_errors_total",
			Help: "Failed appends; the batch is dropped",
		},
	)
	FlushedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logbook_flushed_lines_total",
			Help: "Lines written by the durable writer",
		},
	)
	Rotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logbook_file_rotations_total",
			Help: "Size-based rotations of the persisted log file",
		},
	)
	Snapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logbook_snapshots_total",
			Help: "Snapshot exports by trigger",
		}, []string{"trigger"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logbook_api_requests_total",
			Help: "HTTP API requests by route",
		}, []string{"route"},
	)
)

var registerOnce sync.Once

// MustRegister registers every collector with the default registry. Calls
// after the first are no-ops.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EventsCaptured, EventsFiltered, Occurrences, DistinctEntries, QueueDepth,
			DrainLatency, Flushes, FlushErrors, FlushedLines, Rotations, Snapshots, APIRequests,
		)
	})
}

func Handler() http.Handler { return promhttp.Handler() }
