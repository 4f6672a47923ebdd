package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesys_frames_extracted_total",
		Help: "Total number of frames committed by scans",
	})

	GrabFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesys_grab_failures_total",
		Help: "Total number of timestamps skipped because the still could not be grabbed",
	})

	AnalysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesys_analysis_total",
		Help: "Total number of frame analyses, by result",
	}, []string{"result"})

	EnhancementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesys_enhancements_total",
		Help: "Total number of enhancement calls, by result",
	}, []string{"result"})

	ProviderRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesys_provider_retries_total",
		Help: "Total number of rate-limited provider calls that were retried",
	}, []string{"operation"})

	DurableWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framesys_durable_write_failures_total",
		Help: "Total number of durable store writes that failed after the in-memory change was applied",
	})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framesys_scan_duration_seconds",
		Help:    "Duration of scan runs, by outcome",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framesys_exports_total",
		Help: "Total number of library exports, by target and result",
	}, []string{"target", "result"})

	EnhanceQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framesys_enhance_queue_depth",
		Help: "Number of enhancement jobs waiting or running",
	})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framesys_realtime_clients",
		Help: "Number of connected websocket clients",
	})
)

// Result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultStale   = "stale"
)
