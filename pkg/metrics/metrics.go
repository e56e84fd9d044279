package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MatchesEvaluatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_matches_total",
			Help: "Total number of match events evaluated (count)",
		},
		[]string{"status"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluator_processing_duration_ms",
			Help:    "Processing duration of one match event in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	LabelsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_labels_resolved_total",
			Help: "Total number of resolved action and reaction labels (count)",
		},
		[]string{"kind", "value"},
	)

	LabelsSupersededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_labels_superseded_total",
			Help: "Total number of action labels removed by supersession (count)",
		},
		[]string{"value"},
	)

	RuleEvaluationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_rule_errors_total",
			Help: "Total number of rules skipped because they could not be evaluated (count)",
		},
		[]string{"rule_type", "rule_name"},
	)

	CatalogEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_entries",
			Help: "Number of entries in the current catalog snapshot (count)",
		},
		[]string{"config_type"},
	)

	CatalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_reloads_total",
			Help: "Total number of catalog reload attempts (count)",
		},
		[]string{"status"},
	)

	CatalogDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_degraded",
			Help: "1 while the catalog serves a stale snapshot after a failed reload (state)",
		},
	)

	CatalogSnapshotAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_snapshot_age_seconds",
			Help: "Age of the catalog snapshot at the last reload attempt (seconds)",
		},
	)

	DispatchMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Total number of action and reaction messages dispatched (count)",
		},
		[]string{"topic", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_ms",
			Help:    "Duration of publishing one outcome message including retries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
		[]string{"topic"},
	)

	PerformerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "performer_requests_total",
			Help: "Total number of action performer invocations (count)",
		},
		[]string{"performer", "status"},
	)

	PerformerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "performer_duration_ms",
			Help:    "Duration of action performer invocations in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"performer"},
	)

	PerformDedupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "performer_dedup_total",
			Help: "Total number of perform claims by outcome (count)",
		},
		[]string{"status"},
	)

	RecordsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_written_total",
			Help: "Total number of match records written (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
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
		[]string{"key", "status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"database", "operation"},
	)
)

func RegisterEvaluatorMetrics() {
	prometheus.MustRegister(MatchesEvaluatedTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(LabelsResolvedTotal)
	prometheus.MustRegister(LabelsSupersededTotal)
	prometheus.MustRegister(RuleEvaluationErrorsTotal)
	prometheus.MustRegister(DispatchMessagesTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(RecordsWrittenTotal)
}

func RegisterCatalogMetrics() {
	prometheus.MustRegister(CatalogEntries)
	prometheus.MustRegister(CatalogReloadsTotal)
	prometheus.MustRegister(CatalogDegraded)
	prometheus.MustRegister(CatalogSnapshotAge)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterPerformerMetrics() {
	prometheus.MustRegister(PerformerRequestsTotal)
	prometheus.MustRegister(PerformerDuration)
	prometheus.MustRegister(PerformDedupTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveEvaluationDuration(duration time.Duration, status string) {
	EvaluationDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveDispatchDuration(topic string, duration time.Duration) {
	DispatchDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}

func ObservePerformerDuration(performer string, duration time.Duration) {
	PerformerDuration.WithLabelValues(performer).Observe(float64(duration.Milliseconds()))
}

func SetCatalogEntries(configType string, count int) {
	CatalogEntries.WithLabelValues(configType).Set(float64(count))
}

func SetCatalogDegraded(degraded bool) {
	if degraded {
		CatalogDegraded.Set(1)
		return
	}
	CatalogDegraded.Set(0)
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}
