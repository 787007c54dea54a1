package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Export outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeBusy    = "busy"
	OutcomeFailed  = "failed"
)

// Metrics holds the Prometheus metrics of the export pipeline.
type Metrics struct {
	ExportsTotal       *prometheus.CounterVec
	ExportDuration     prometheus.Histogram
	ExportRows         prometheus.Gauge
	LastExportSuccess  prometheus.Gauge
	AuditWriteFailures prometheus.Counter
	TempFilesSwept     prometheus.Counter
}

// NewMetrics creates and registers the metrics on reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "studydata_exports_total",
			Help: "Export attempts by outcome (success, busy, failed)",
		}, []string{"outcome"}),
		ExportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "studydata_export_duration_seconds",
			Help:    "Time spent holding the export lock and writing the snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		ExportRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studydata_export_rows",
			Help: "Number of entries in the last published export",
		}),
		LastExportSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "studydata_export_last_success_timestamp_seconds",
			Help: "Unix time of the last successful export",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "studydata_audit_write_failures_total",
			Help: "Audit events that could not be appended to the audit store",
		}),
		TempFilesSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "studydata_export_temp_files_swept_total",
			Help: "Orphaned export temp files removed by the sweeper",
		}),
	}
}
