package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketpulse"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	ticks           *prometheus.CounterVec
	commits         *prometheus.CounterVec
	confidence      prometheus.Histogram
	cacheResults    *prometheus.CounterVec
	rankingSize     prometheus.Gauge
	consensusWeight *prometheus.GaugeVec
	apiLatency      *prometheus.HistogramVec
	apiErrors       *prometheus.CounterVec
}

// New creates a Prometheus recorder registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "ticks_total",
				Help:      "Scheduler ticks by outcome",
			},
			[]string{"outcome"},
		),
		commits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "commits_total",
				Help:      "Committed predictions by direction",
			},
			[]string{"direction"},
		),
		confidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "commit_confidence",
				Help:      "Confidence of committed predictions",
				Buckets:   prometheus.LinearBuckets(50, 5, 9),
			},
		),
		cacheResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "results_total",
				Help:      "Market data cache results by freshness",
			},
			[]string{"cache", "status"},
		),
		rankingSize: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "ranked_traders",
				Help:      "Traders in the current ranking",
			},
		),
		consensusWeight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "consensus",
				Name:      "weight",
				Help:      "Weighted consensus per outcome",
			},
			[]string{"outcome"},
		),
		apiLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of snapshot endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		apiErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by snapshot endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordTick counts one scheduler tick.
func (r *Recorder) RecordTick(outcome string) {
	r.ticks.WithLabelValues(outcome).Inc()
}

// RecordCommit records a committed prediction.
func (r *Recorder) RecordCommit(direction string, confidence int) {
	r.commits.WithLabelValues(direction).Inc()
	r.confidence.Observe(float64(confidence))
}

// RecordCacheResult counts a market data cache result.
func (r *Recorder) RecordCacheResult(cache, status string) {
	r.cacheResults.WithLabelValues(cache, status).Inc()
}

// RecordRankingSize sets the number of ranked traders.
func (r *Recorder) RecordRankingSize(n int) {
	r.rankingSize.Set(float64(n))
}

// RecordConsensus sets the latest weighted tally.
func (r *Recorder) RecordConsensus(yes, no float64) {
	r.consensusWeight.WithLabelValues("YES").Set(yes)
	r.consensusWeight.WithLabelValues("NO").Set(no)
}

// RecordRequest records one API request.
func (r *Recorder) RecordRequest(endpoint string, seconds float64, failed bool) {
	r.apiLatency.WithLabelValues(endpoint).Observe(seconds)
	if failed {
		r.apiErrors.WithLabelValues(endpoint).Inc()
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordTick(string) {}
func (Nop) RecordCommit(string, int) {}
func (Nop) RecordCacheResult(string, string) {}
func (Nop) RecordRankingSize(int) {}
func (Nop) RecordConsensus(float64, float64) {}
func (Nop) RecordRequest(string, float64, bool) {}
