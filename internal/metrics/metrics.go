// Package metrics provides Prometheus metrics for the object store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for sos.
type Metrics struct {
	// ODS heap metrics
	AllocTotal      *prometheus.CounterVec
	FreeTotal       *prometheus.CounterVec
	ExtendTotal     prometheus.Counter
	CommitDuration  *prometheus.HistogramVec
	BytesMapped     prometheus.Gauge
	HandlesLive     prometheus.Gauge

	// Schema/registry metrics
	SchemaAddTotal          *prometheus.CounterVec
	SchemaAddDuration       prometheus.Histogram
	SchemasRegistered       prometheus.Gauge

	// Index metrics
	IndexInsertsTotal prometheus.Counter
	IndexOpsDuration  *prometheus.HistogramVec

	// Container metrics
	ContainersOpenTotal prometheus.Counter
	ServerStartTime     time.Time
	UptimeSeconds       prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{ServerStartTime: time.Now()}

	m.AllocTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_ods_alloc_total",
			Help: "Total number of ODS object allocations",
		},
		[]string{"status"},
	)

	m.FreeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_ods_free_total",
			Help: "Total number of ODS object frees",
		},
		[]string{"status"},
	)

	m.ExtendTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_ods_extend_total",
			Help: "Total number of heap extend (grow-the-mapping) operations",
		},
	)

	m.CommitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_ods_commit_duration_seconds",
			Help:    "Duration of ODS commit operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5, 1},
		},
		[]string{"mode"},
	)

	m.BytesMapped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_ods_bytes_mapped",
			Help: "Current size of the ODS mmap mapping in bytes",
		},
	)

	m.HandlesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_handles_live",
			Help: "Number of currently live object handles",
		},
	)

	m.SchemaAddTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_schema_add_total",
			Help: "Total number of schema registrations attempted",
		},
		[]string{"status"},
	)

	m.SchemaAddDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_schema_add_duration_seconds",
			Help:    "Duration of schema_add in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.SchemasRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_schemas_registered",
			Help: "Number of schemas currently registered in the schema registry",
		},
	)

	m.IndexInsertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_index_inserts_total",
			Help: "Total number of index collaborator insert calls",
		},
	)

	m.IndexOpsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_index_op_duration_seconds",
			Help:    "Duration of index collaborator operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	m.ContainersOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_containers_open_total",
			Help: "Total number of containers opened or created",
		},
	)

	m.UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.UptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordAlloc records an allocation attempt's outcome.
func (m *Metrics) RecordAlloc(status string) { m.AllocTotal.WithLabelValues(status).Inc() }

// RecordFree records a free's outcome.
func (m *Metrics) RecordFree(status string) { m.FreeTotal.WithLabelValues(status).Inc() }

// RecordCommit records a commit's latency for the given mode ("sync"/"async").
func (m *Metrics) RecordCommit(mode string, d time.Duration) {
	m.CommitDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordSchemaAdd records a schema_add attempt's outcome and latency.
func (m *Metrics) RecordSchemaAdd(status string, d time.Duration) {
	m.SchemaAddTotal.WithLabelValues(status).Inc()
	m.SchemaAddDuration.Observe(d.Seconds())
}

// RecordIndexOp records an index collaborator operation's latency.
func (m *Metrics) RecordIndexOp(op string, d time.Duration) {
	m.IndexOpsDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordContainerOpen records a container create/open.
func (m *Metrics) RecordContainerOpen() { m.ContainersOpenTotal.Inc() }
