package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run holds the metrics of one scraper run on a private registry, written out
// for the node_exporter textfile collector when the process ends.
type Run struct {
	registry *prometheus.Registry

	FeaturesFetched   prometheus.Gauge
	RecordsNormalized prometheus.Gauge
	RowsAdded         prometheus.Gauge
	ReportRows        prometheus.Gauge
	ReportGaps        prometheus.Gauge
	NotifyFailures    prometheus.Gauge
	Duration          prometheus.Gauge
	Finished          prometheus.Gauge
	Success           prometheus.Gauge
	StageFailures     *prometheus.CounterVec
}

func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		FeaturesFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "features_fetched",
			Help:      "Features returned by the remote feed in the last run",
		}),
		RecordsNormalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "records_normalized",
			Help:      "Records kept after normalization in the last run",
		}),
		RowsAdded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "report_rows_added",
			Help:      "Rows appended to the cumulative report in the last run",
		}),
		ReportRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "report_rows",
			Help:      "Rows in the cumulative report after the last run",
		}),
		ReportGaps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "report_missing_days",
			Help:      "Calendar days missing between the first and last report rows",
		}),
		NotifyFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "notification_failures",
			Help:      "Webhooks that could not be notified in the last run",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		Finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "run_finished_timestamp_seconds",
			Help:      "Unix time the last run ended",
		}),
		Success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vacinacao",
			Name:      "run_success",
			Help:      "1 if the last run completed, 0 if a stage aborted it",
		}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vacinacao",
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that aborted the run",
		}, []string{"stage"}),
	}

	r.registry.MustRegister(
		r.FeaturesFetched,
		r.RecordsNormalized,
		r.RowsAdded,
		r.ReportRows,
		r.ReportGaps,
		r.NotifyFailures,
		r.Duration,
		r.Finished,
		r.Success,
		r.StageFailures,
	)

	return r
}

func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// Finish records when a run that began at start ended and whether it succeeded.
func (r *Run) Finish(start, end time.Time, ok bool) {
	r.Duration.Set(end.Sub(start).Seconds())
	r.Finished.Set(float64(end.Unix()))
	if ok {
		r.Success.Set(1)
	} else {
		r.Success.Set(0)
	}
}

// WriteTextfile stores the registry in Prometheus text format at path.
func (r *Run) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
