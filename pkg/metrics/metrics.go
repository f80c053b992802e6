package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_gains_operations_total",
		Help: "Total number of operations evaluated",
	}, []string{"operation", "outcome"})

	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capital_gains_batches_total",
		Help: "Total number of batches evaluated",
	}, []string{"status"})

	BatchProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "capital_gains_batch_duration_seconds",
		Help:    "Duration of batch evaluation",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	TaxAssessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capital_gains_tax_assessed_total",
		Help: "Sum of tax amounts emitted",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of cache misses",
	})

	DatabaseQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "database_queries_total",
		Help: "Total number of database queries",
	}, []string{"query_type", "status"})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "database_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type"})
)

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}

func RecordDatabaseQuery(queryType, status string, duration float64) {
	DatabaseQueries.WithLabelValues(queryType, status).Inc()
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(duration)
}

// RecordOperation counts one evaluated operation. outcome is "tax", "error" or "blocked".
func RecordOperation(operation, outcome string) {
	OperationsProcessed.WithLabelValues(operation, outcome).Inc()
}

func RecordBatch(status string) {
	BatchesProcessed.WithLabelValues(status).Inc()
}

func RecordTax(amount float64) {
	if amount > 0 {
		TaxAssessed.Add(amount)
	}
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
