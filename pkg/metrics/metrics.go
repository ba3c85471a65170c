package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_events_submitted_total",
			Help: "Total number of events submitted to the router by ingress and routing status (count)",
		},
		[]string{"ingress", "status"},
	)

	SubmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_submit_duration_ms",
			Help:    "Time spent validating and routing one submitted event in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"status"},
	)

	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_rule_evaluations_total",
			Help: "Total number of rule evaluations that matched or raised a condition error (count)",
		},
		[]string{"rule_id", "result"},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_active_rules",
			Help: "Number of rules in the registry (count)",
		},
	)

	ActiveSchedules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_active_schedules",
			Help: "Number of registered schedules (count)",
		},
	)

	SchedulerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_scheduler_ticks_total",
			Help: "Total number of schedule ticks by outcome (count)",
		},
		[]string{"schedule_id", "status"},
	)

	TargetInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_target_invocations_total",
			Help: "Total number of target invocations by outcome (count)",
		},
		[]string{"target_id", "outcome"},
	)

	TargetInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_target_invocation_duration_ms",
			Help:    "Duration of target invocations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"target_id"},
	)

	OutstandingDeliveries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_outstanding_deliveries",
			Help: "Deliveries queued, in flight or waiting for a retry (count)",
		},
	)

	InFlightInvocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_inflight_invocations",
			Help: "Target invocations currently running (count)",
		},
	)

	ActiveLanes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "router_active_lanes",
			Help: "Rule and target lanes with a running worker (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_retry_attempts_total",
			Help: "Total number of delivery retries scheduled (count)",
		},
		[]string{"rule_id", "target_id"},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_dead_letters_total",
			Help: "Total number of deliveries recorded to the dead-letter sink (count)",
		},
		[]string{"sink", "reason"},
	)

	DeadLetterSinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_dead_letter_sink_errors_total",
			Help: "Total number of dead-letter records that could not be written (count)",
		},
		[]string{"sink"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_dedup_checks_total",
			Help: "Total number of ingress duplicate checks by status (count)",
		},
		[]string{"status"},
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

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from a broker (count)",
		},
		[]string{"broker", "topic"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to a broker (count)",
		},
		[]string{"broker", "topic"},
	)

	BrokerMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_message_size_bytes",
			Help:    "Size of broker messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"broker", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"topic", "partition"},
	)

	BrokerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_write_duration_ms",
			Help:    "Duration of writing messages to a broker in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"broker", "topic"},
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

var (
	routerOnce         sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	managementOnce     sync.Once
)

func RegisterRouterMetrics() {
	routerOnce.Do(func() {
		prometheus.MustRegister(EventsSubmittedTotal)
		prometheus.MustRegister(SubmitDuration)
		prometheus.MustRegister(RuleEvaluationsTotal)
		prometheus.MustRegister(ActiveRules)
		prometheus.MustRegister(ActiveSchedules)
		prometheus.MustRegister(SchedulerTicksTotal)
		prometheus.MustRegister(TargetInvocationsTotal)
		prometheus.MustRegister(TargetInvocationDuration)
		prometheus.MustRegister(OutstandingDeliveries)
		prometheus.MustRegister(InFlightInvocations)
		prometheus.MustRegister(ActiveLanes)
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DeadLettersTotal)
		prometheus.MustRegister(DeadLetterSinkErrorsTotal)
		prometheus.MustRegister(DedupChecksTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(BrokerMessagesReadTotal)
		prometheus.MustRegister(BrokerMessagesWrittenTotal)
		prometheus.MustRegister(BrokerMessageSizeBytes)
		prometheus.MustRegister(KafkaConsumerLag)
		prometheus.MustRegister(BrokerWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterManagementMetrics() {
	managementOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func ObserveSubmitDuration(duration time.Duration, status string) {
	SubmitDuration.WithLabelValues(status).Observe(float64(duration.Microseconds()) / 1000)
}

func IncEventsSubmitted(ingress, status string) {
	EventsSubmittedTotal.WithLabelValues(ingress, status).Inc()
}

func IncRuleEvaluation(ruleID, result string) {
	RuleEvaluationsTotal.WithLabelValues(ruleID, result).Inc()
}

func SetActiveRules(count int) {
	ActiveRules.Set(float64(count))
}

func SetActiveSchedules(count int) {
	ActiveSchedules.Set(float64(count))
}

func IncSchedulerTick(scheduleID, status string) {
	SchedulerTicksTotal.WithLabelValues(scheduleID, status).Inc()
}

func ObserveTargetInvocation(targetID, outcome string, duration time.Duration) {
	TargetInvocationsTotal.WithLabelValues(targetID, outcome).Inc()
	TargetInvocationDuration.WithLabelValues(targetID).Observe(float64(duration.Milliseconds()))
}

func IncRetryAttempt(ruleID, targetID string) {
	RetryAttemptsTotal.WithLabelValues(ruleID, targetID).Inc()
}

func IncDeadLetter(sink, reason string) {
	DeadLettersTotal.WithLabelValues(sink, reason).Inc()
}

func IncDeadLetterSinkError(sink string) {
	DeadLetterSinkErrorsTotal.WithLabelValues(sink).Inc()
}

func IncDedupCheck(status string) {
	DedupChecksTotal.WithLabelValues(status).Inc()
}

func IncBrokerMessagesRead(broker, topic string) {
	BrokerMessagesReadTotal.WithLabelValues(broker, topic).Inc()
}

func IncBrokerMessagesWritten(broker, topic string) {
	BrokerMessagesWrittenTotal.WithLabelValues(broker, topic).Inc()
}

func ObserveBrokerMessageSize(broker, topic, direction string, sizeBytes int) {
	BrokerMessageSizeBytes.WithLabelValues(broker, topic, direction).Observe(float64(sizeBytes))
}

func ObserveBrokerWriteDuration(broker, topic string, duration time.Duration) {
	BrokerWriteDuration.WithLabelValues(broker, topic).Observe(float64(duration.Milliseconds()))
}

func SetKafkaConsumerLag(topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(topic, strconv.Itoa(partition)).Set(float64(lag))
}

func IncDatabaseQuery(database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}
