// Package metrics exposes pipeline counters for batch runs. A run owns its
// own registry and dumps it in the node-exporter textfile format when it
// finishes, since there is no long-lived process to scrape.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playlake"

// Pipeline captures row flow through one run. A nil *Pipeline is a no-op.
type Pipeline struct {
	registry      *prometheus.Registry
	recordsLoaded *prometheus.CounterVec
	recordsBad    *prometheus.CounterVec
	filesLoaded   *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
	bytesWritten  *prometheus.CounterVec
	filesWritten  *prometheus.CounterVec
	stageRowsIn   *prometheus.CounterVec
	stageRowsOut  *prometheus.CounterVec
	phaseDuration *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
	runFailed     prometheus.Gauge
}

// New creates pipeline metrics on a fresh registry labelled with the run id
func New(runID string) *Pipeline {
	return newPipeline(prometheus.NewRegistry(), runID)
}

func newPipeline(registry *prometheus.Registry, runID string) *Pipeline {
	constLabels := prometheus.Labels{"run_id": runID}

	p := &Pipeline{
		registry: registry,
		recordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_loaded_total",
			Help:        "JSON records decoded from input files.",
			ConstLabels: constLabels,
		}, []string{"dataset"}),
		recordsBad: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_malformed_total",
			Help:        "Input lines dropped because they are not JSON objects.",
			ConstLabels: constLabels,
		}, []string{"dataset"}),
		filesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "input_files_total",
			Help:        "Input files read.",
			ConstLabels: constLabels,
		}, []string{"dataset"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rows_written_total",
			Help:        "Rows written per output table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "bytes_written_total",
			Help:        "Data file bytes written per output table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		filesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "files_written_total",
			Help:        "Data files written per output table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		stageRowsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "stage_rows_in_total",
			Help:        "Rows entering a transform stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		stageRowsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "stage_rows_out_total",
			Help:        "Rows leaving a transform stage.",
			ConstLabels: constLabels,
		}, []string{"stage"}),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "phase_duration_seconds",
			Help:        "Wall time of each pipeline phase.",
			ConstLabels: constLabels,
		}, []string{"phase"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of the whole run.",
			ConstLabels: constLabels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time the run finished successfully.",
			ConstLabels: constLabels,
		}),
		runFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_failed",
			Help:        "1 when the run failed.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		p.recordsLoaded,
		p.recordsBad,
		p.filesLoaded,
		p.rowsWritten,
		p.bytesWritten,
		p.filesWritten,
		p.stageRowsIn,
		p.stageRowsOut,
		p.phaseDuration,
		p.runDuration,
		p.lastSuccess,
		p.runFailed,
	)

	return p
}

// Registry returns the registry backing the metrics
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// ObserveFile records one loaded input file
func (p *Pipeline) ObserveFile(dataset string, records, malformed int) {
	if p == nil {
		return
	}
	p.filesLoaded.WithLabelValues(dataset).Inc()
	p.recordsLoaded.WithLabelValues(dataset).Add(float64(records))
	p.recordsBad.WithLabelValues(dataset).Add(float64(malformed))
}

// ObserveWrite records a completed table write
func (p *Pipeline) ObserveWrite(table string, rows int64, files int, bytes int64) {
	if p == nil {
		return
	}
	p.rowsWritten.WithLabelValues(table).Add(float64(rows))
	p.filesWritten.WithLabelValues(table).Add(float64(files))
	p.bytesWritten.WithLabelValues(table).Add(float64(bytes))
}

// ObserveStage records the row flow through a transform stage
func (p *Pipeline) ObserveStage(stage string, rowsIn, rowsOut int) {
	if p == nil {
		return
	}
	p.stageRowsIn.WithLabelValues(stage).Add(float64(rowsIn))
	p.stageRowsOut.WithLabelValues(stage).Add(float64(rowsOut))
}

// ObservePhase records the wall time of a phase
func (p *Pipeline) ObservePhase(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Set(d.Seconds())
}

// ObserveRun records the outcome of the run
func (p *Pipeline) ObserveRun(d time.Duration, err error) {
	if p == nil {
		return
	}
	p.runDuration.Set(d.Seconds())
	if err != nil {
		p.runFailed.Set(1)
		return
	}
	p.runFailed.Set(0)
	p.lastSuccess.SetToCurrentTime()
}

// WriteTextfile dumps all metrics to path in the text exposition format
func (p *Pipeline) WriteTextfile(path string) error {
	if p == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
