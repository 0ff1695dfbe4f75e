package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Milestone update latency, labelled by outcome (ok / not_found / invalid / error)
	MilestoneUpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "milestone_update_duration_seconds",
			Help:    "Milestone update unit-of-work duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"outcome"},
	)

	// Downstream milestones rewritten by one cascade
	CascadeRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "milestone_cascade_rows",
			Help:    "Number of downstream milestones changed by a date cascade",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	// Order shifts, labelled by direction (up / down)
	OrderShiftCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_order_shift_total",
			Help: "Total number of bulk order shifts",
		},
		[]string{"direction"},
	)

	// milestone.updated publish results (sent / failed / parked)
	EventPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_event_publish_total",
			Help: "Total number of milestone change events by publish result",
		},
		[]string{"event", "result"},
	)

	// MQ consume latency (ms)
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// HTTP request latency (s)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries above the slow threshold",
		},
		[]string{"sql"},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)
)

func RecordMilestoneUpdate(outcome string, duration time.Duration) {
	MilestoneUpdateDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordCascadeRows(n int) {
	CascadeRows.Observe(float64(n))
}

func IncrementOrderShift(direction string) {
	OrderShiftCount.WithLabelValues(direction).Inc()
}

func IncrementEventPublish(event, result string) {
	EventPublishCount.WithLabelValues(event, result).Inc()
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery sql is expected to be truncated by the caller
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}
