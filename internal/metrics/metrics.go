package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// RecordsGeneratedTotal counts records produced by the generators, by kind and currency.
	RecordsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_records_generated_total",
			Help: "Total number of records generated",
		},
		[]string{"record_type", "currency"},
	)

	// RecordsPerSecond is the current generation throughput.
	RecordsPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_records_per_second",
			Help: "Current record generation throughput",
		},
		[]string{"component"},
	)

	// LabelsEmittedTotal counts ground-truth labels emitted, by anomaly type.
	LabelsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_labels_emitted_total",
			Help: "Total number of ground-truth labels emitted",
		},
		[]string{"anomaly_type", "severity"},
	)

	// BufferDepth is the current occupancy of the streaming runtime's ring buffer.
	BufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synthledger_buffer_depth",
		Help: "Current number of events queued in the stream buffer",
	})

	// BufferUtilization is buffer depth as a fraction of capacity.
	BufferUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synthledger_buffer_utilization",
		Help: "Stream buffer utilization (0.0 to 1.0)",
	})

	// BackpressureEventsTotal counts backpressure activations by policy applied.
	BackpressureEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_backpressure_events_total",
			Help: "Total number of backpressure events by policy",
		},
		[]string{"policy"},
	)

	// ProcessorStepDuration times each post-processor pipeline stage.
	ProcessorStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthledger_processor_step_duration_seconds",
			Help:    "Time spent in each post-processor stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"processor"},
	)

	// RecordsSentTotal counts records delivered to sinks.
	RecordsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_records_sent_total",
			Help: "Total number of records sent to sinks",
		},
		[]string{"sink_type", "status"},
	)

	// ErrorsTotal counts errors by originating component and kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_kind"},
	)

	// ComponentHealth reports liveness per component (1 healthy, 0 unhealthy).
	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_component_health",
			Help: "Health status of components (1 = healthy, 0 = unhealthy)",
		},
		[]string{"component"},
	)

	// GenerationDuration times end-to-end generation of a single record.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthledger_generation_duration_seconds",
			Help:    "Time spent generating a single record",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"record_type"},
	)

	// SinkSendDuration times writes to sinks.
	SinkSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthledger_sink_send_duration_seconds",
			Help:    "Time spent writing records to sinks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"sink_type"},
	)

	// ConfidenceScore distributes the confidence/provenance score assigned to generated records.
	ConfidenceScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synthledger_confidence_score",
		Help:    "Distribution of confidence scores assigned to generated records",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	// EpsilonSpent tracks cumulative differential-privacy budget consumed by the fingerprint extractor.
	EpsilonSpent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synthledger_epsilon_spent",
		Help: "Cumulative differential privacy epsilon budget spent",
	})

	// KAnonymitySuppressionsTotal counts statistics suppressed for failing the k-anonymity threshold.
	KAnonymitySuppressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_k_anonymity_suppressions_total",
			Help: "Total statistics suppressed by k-anonymity enforcement",
		},
		[]string{"statistic"},
	)

	// GraphNodesTotal and GraphEdgesTotal report the size of the last built graph.
	GraphNodesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_graph_nodes",
			Help: "Number of nodes in the last built graph",
		},
		[]string{"graph_type"},
	)
	GraphEdgesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_graph_edges",
			Help: "Number of edges in the last built graph",
		},
		[]string{"graph_type"},
	)

	// EvaluationSeverityTotal counts evaluator findings by severity.
	EvaluationSeverityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_evaluation_findings_total",
			Help: "Total evaluator findings by severity",
		},
		[]string{"severity"},
	)

	// DLQStoredTotal and DLQSizeBytes mirror the dead letter queue's occupancy.
	DLQStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_dlq_stored_total",
			Help: "Total records stored in the dead letter queue",
		},
		[]string{"sink", "reason"},
	)
	DLQEntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_dlq_entries",
			Help: "Current number of entries in the dead letter queue",
		},
		[]string{"sink"},
	)
	DLQSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_dlq_size_bytes",
			Help: "Current size of the dead letter queue in bytes",
		},
		[]string{"sink"},
	)
	DLQReprocessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_dlq_reprocess_total",
			Help: "Total dead letter queue reprocessing attempts",
		},
		[]string{"sink", "result"},
	)

	// Kafka sink metrics.
	KafkaMessagesProducedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_kafka_messages_produced_total",
			Help: "Total number of messages produced to Kafka",
		},
		[]string{"topic", "status"},
	)
	KafkaProducerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthledger_kafka_producer_errors_total",
			Help: "Total number of Kafka producer errors",
		},
		[]string{"topic", "error_type"},
	)
	KafkaBatchSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthledger_kafka_batch_send_duration_seconds",
			Help:    "Time spent sending a batch to Kafka",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"topic"},
	)
	KafkaCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_kafka_circuit_breaker_state",
			Help: "Kafka sink circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"sink_name"},
	)

	// Memory/GC/goroutine metrics, sampled periodically by EnhancedMetrics.
	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthledger_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
		[]string{"type"},
	)
	GCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthledger_gc_runs_total",
		Help: "Total number of garbage collection runs",
	})
	Goroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synthledger_goroutines",
		Help: "Number of goroutines",
	})
	GCPauseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synthledger_gc_pause_duration_seconds",
		Help:    "GC pause duration in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})
)

// MetricsServer serves the Prometheus /metrics endpoint and a liveness probe.
type MetricsServer struct {
	server *http.Server
	logger *logrus.Logger
}

// NewMetricsServer builds the HTTP server exposing generation metrics.
// promauto already registers each collector against the default registry at
// var-init time, so this only needs to build the mux.
func NewMetricsServer(addr string, logger *logrus.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving metrics in the background.
func (ms *MetricsServer) Start() error {
	ms.logger.WithField("addr", ms.server.Addr).Info("starting metrics server")

	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.logger.WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Stop shuts down the metrics server.
func (ms *MetricsServer) Stop() error {
	ms.logger.Info("stopping metrics server")
	return ms.server.Close()
}

// RecordGenerated records one generated record of the given type and currency.
func RecordGenerated(recordType, currency string) {
	RecordsGeneratedTotal.WithLabelValues(recordType, currency).Inc()
}

// RecordLabelEmitted records a ground-truth label of the given anomaly type and severity.
func RecordLabelEmitted(anomalyType, severity string) {
	LabelsEmittedTotal.WithLabelValues(anomalyType, severity).Inc()
}

// RecordSent records a record delivered (or failed to deliver) to a sink.
func RecordSent(sinkType, status string) {
	RecordsSentTotal.WithLabelValues(sinkType, status).Inc()
}

// RecordError records an error from a named component.
func RecordError(component, errorKind string) {
	ErrorsTotal.WithLabelValues(component, errorKind).Inc()
}

// SetComponentHealth reports whether a component is currently healthy.
func SetComponentHealth(component string, healthy bool) {
	var value float64
	if healthy {
		value = 1
	}
	ComponentHealth.WithLabelValues(component).Set(value)
}

// ObserveGenerationDuration records the time spent generating one record.
func ObserveGenerationDuration(recordType string, d time.Duration) {
	GenerationDuration.WithLabelValues(recordType).Observe(d.Seconds())
}

// ObserveSinkSendDuration records the time spent writing to a sink.
func ObserveSinkSendDuration(sinkType string, d time.Duration) {
	SinkSendDuration.WithLabelValues(sinkType).Observe(d.Seconds())
}

// ObserveProcessorStep records the time spent in a post-processor stage.
func ObserveProcessorStep(processor string, d time.Duration) {
	ProcessorStepDuration.WithLabelValues(processor).Observe(d.Seconds())
}

// ObserveConfidenceScore records the confidence score assigned to a record.
func ObserveConfidenceScore(score float64) {
	ConfidenceScore.Observe(score)
}

// SetEpsilonSpent updates the cumulative differential privacy budget consumed.
func SetEpsilonSpent(epsilon float64) {
	EpsilonSpent.Set(epsilon)
}

// RecordKAnonymitySuppression records a statistic suppressed by the k-anonymity rule.
func RecordKAnonymitySuppression(statistic string) {
	KAnonymitySuppressionsTotal.WithLabelValues(statistic).Inc()
}

// SetGraphSize records the node/edge counts of the most recently built graph.
func SetGraphSize(graphType string, nodes, edges int) {
	GraphNodesTotal.WithLabelValues(graphType).Set(float64(nodes))
	GraphEdgesTotal.WithLabelValues(graphType).Set(float64(edges))
}

// RecordEvaluationFinding records an evaluator finding of the given severity.
func RecordEvaluationFinding(severity string) {
	EvaluationSeverityTotal.WithLabelValues(severity).Inc()
}

// RecordBackpressureEvent records a backpressure activation under the given policy.
func RecordBackpressureEvent(policy string) {
	BackpressureEventsTotal.WithLabelValues(policy).Inc()
}

// SetBufferOccupancy updates the stream buffer depth/utilization gauges.
func SetBufferOccupancy(depth, capacity int) {
	BufferDepth.Set(float64(depth))
	if capacity > 0 {
		BufferUtilization.Set(float64(depth) / float64(capacity))
	}
}

// RecordDLQStore records an entry stored in the dead letter queue.
func RecordDLQStore(sink, reason string) {
	DLQStoredTotal.WithLabelValues(sink, reason).Inc()
}

// RecordDLQReprocess records a dead letter queue reprocessing attempt.
func RecordDLQReprocess(sink, result string) {
	DLQReprocessTotal.WithLabelValues(sink, result).Inc()
}

// UpdateDLQStats updates the dead letter queue occupancy gauges.
func UpdateDLQStats(sink string, entryCount int, sizeBytes int64) {
	DLQEntriesTotal.WithLabelValues(sink).Set(float64(entryCount))
	DLQSizeBytes.WithLabelValues(sink).Set(float64(sizeBytes))
}

// EnhancedMetrics periodically samples process-level metrics (memory, GC, goroutines).
type EnhancedMetrics struct {
	logger    *logrus.Logger
	isRunning bool
	startTime time.Time
	stop      chan struct{}
	lastNumGC uint32
}

// NewEnhancedMetrics constructs a process metrics sampler.
func NewEnhancedMetrics(logger *logrus.Logger) *EnhancedMetrics {
	return &EnhancedMetrics{
		logger:    logger,
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}
}

// UpdateSystemMetrics samples runtime.MemStats and the goroutine count once.
func (em *EnhancedMetrics) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsage.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryUsage.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
	MemoryUsage.WithLabelValues("heap_idle").Set(float64(m.HeapIdle))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))

	Goroutines.Set(float64(runtime.NumGoroutine()))
	GCRuns.Add(float64(m.NumGC - em.lastNumGC))
	em.lastNumGC = m.NumGC

	if m.NumGC > 0 {
		lastPauseNs := m.PauseNs[(m.NumGC+255)%256]
		GCPauseDuration.Observe(float64(lastPauseNs) / 1e9)
	}
}

// Start begins periodic sampling of process-level metrics.
func (em *EnhancedMetrics) Start() error {
	if em.isRunning {
		return nil
	}
	em.isRunning = true
	em.logger.Info("enhanced metrics collection started")
	go em.loop()
	return nil
}

// Stop halts periodic sampling.
func (em *EnhancedMetrics) Stop() error {
	if !em.isRunning {
		return nil
	}
	em.isRunning = false
	close(em.stop)
	em.logger.Info("enhanced metrics collection stopped")
	return nil
}

func (em *EnhancedMetrics) loop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			em.UpdateSystemMetrics()
		case <-em.stop:
			return
		}
	}
}
