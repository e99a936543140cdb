package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HitsTrackedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hits_tracked_total",
			Help: "Total number of hits accepted by Track (count)",
		},
		[]string{"engine"},
	)

	HitTransmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hit_transmissions_total",
			Help: "Total number of transmission attempts by outcome (count)",
		},
		[]string{"engine", "status"},
	)

	HitRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hit_retries_total",
			Help: "Total number of hits scheduled for another attempt (count)",
		},
		[]string{"engine"},
	)

	HitExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hit_expired_total",
			Help: "Total number of hits discarded after their queue life span (count)",
		},
		[]string{"engine"},
	)

	HitQueueTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hit_queue_time_ms",
			Help:    "Time between hit creation and a successful transmission in milliseconds",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000, 60000, 300000, 3600000},
		},
		[]string{"engine"},
	)

	HitTransmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hit_transmission_duration_ms",
			Help:    "Duration of a single HTTP transmission in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"engine"},
	)

	PipelineLiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_live_requests",
			Help: "Number of requests owned by this process and not yet settled (count)",
		},
	)

	PipelineDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dropped_total",
			Help: "Total number of requests dropped by a full subscription buffer (count)",
		},
		[]string{"subscription"},
	)

	QueueStoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_store_operations_total",
			Help: "Total number of queue store operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	QueueStoreCorruptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_store_corrupt_entries_total",
			Help: "Total number of stored entries skipped because they could not be decoded (count)",
		},
		[]string{"backend"},
	)

	RecoveryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_requests_total",
			Help: "Total number of stored requests seen by recovery, by outcome (count)",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HitsTrackedTotal,
			HitTransmissionsTotal,
			HitRetriesTotal,
			HitExpiredTotal,
			HitQueueTime,
			HitTransmissionDuration,
			PipelineLiveRequests,
			PipelineDroppedTotal,
			QueueStoreOperationsTotal,
			QueueStoreCorruptTotal,
			RecoveryRequestsTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
		)
	})
}

func IncHitsTracked(engine string) {
	HitsTrackedTotal.WithLabelValues(engine).Inc()
}

func IncTransmission(engine, status string) {
	HitTransmissionsTotal.WithLabelValues(engine, status).Inc()
}

func IncRetry(engine string) {
	HitRetriesTotal.WithLabelValues(engine).Inc()
}

func IncExpired(engine string) {
	HitExpiredTotal.WithLabelValues(engine).Inc()
}

func ObserveQueueTime(engine string, d time.Duration) {
	HitQueueTime.WithLabelValues(engine).Observe(float64(d.Milliseconds()))
}

func ObserveTransmissionDuration(engine string, d time.Duration) {
	HitTransmissionDuration.WithLabelValues(engine).Observe(float64(d.Milliseconds()))
}

func SetLiveRequests(n int) {
	PipelineLiveRequests.Set(float64(n))
}

func IncPipelineDropped(subscription string) {
	PipelineDroppedTotal.WithLabelValues(subscription).Inc()
}

func IncStoreOperation(backend, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	QueueStoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func IncStoreCorrupt(backend string) {
	QueueStoreCorruptTotal.WithLabelValues(backend).Inc()
}

func IncRecovery(outcome string) {
	RecoveryRequestsTotal.WithLabelValues(outcome).Inc()
}
