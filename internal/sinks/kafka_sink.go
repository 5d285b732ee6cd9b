package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"synthledger/internal/metrics"
	"synthledger/pkg/circuit"
	"synthledger/pkg/dlq"
	"synthledger/pkg/types"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaSinkConfig configures the Kafka sink.
type KafkaSinkConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Brokers         []string `yaml:"brokers"`
	Topic           string `yaml:"topic"`
	Compression     string `yaml:"compression"`
	BatchSize       int    `yaml:"batch_size"`
	BatchTimeout    string `yaml:"batch_timeout"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`
	RetryMax        int    `yaml:"retry_max"`
	Timeout         string `yaml:"timeout"`
	RequiredAcks    int16  `yaml:"required_acks"`
	QueueSize       int    `yaml:"queue_size"`

	Auth struct {
		Enabled   bool   `yaml:"enabled"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		Mechanism string `yaml:"mechanism"`
	} `yaml:"auth"`

	TLS TLSConfig `yaml:"tls"`

	Partitioning struct {
		Enabled  bool   `yaml:"enabled"`
		Strategy string `yaml:"strategy"`
		KeyField string `yaml:"key_field"`
	} `yaml:"partitioning"`

	BackpressureConfig struct {
		QueueEmergencyThreshold float64 `yaml:"queue_emergency_threshold"`
	} `yaml:"backpressure"`

	DLQConfig struct {
		SendOnError bool `yaml:"send_on_error"`
	} `yaml:"dlq"`
}

// KafkaSink implements types.Sink[types.Record], publishing generated
// records to a Kafka topic, keyed by record ID when partitioning is enabled
// (empty key otherwise).
type KafkaSink struct {
	config          KafkaSinkConfig
	logger          *logrus.Logger
	producer        sarama.AsyncProducer
	breaker         *circuit.Breaker
	deadLetterQueue *dlq.DeadLetterQueue

	queue      chan types.Record
	batch      []types.Record
	batchMutex sync.Mutex
	lastSent   time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	mutex     sync.RWMutex

	loopWg sync.WaitGroup
	sendWg sync.WaitGroup

	backpressureCount int64
	droppedCount      int64
	sentCount         int64
	errorCount        int64

	itemsProcessed uint64
}

// NewKafkaSink constructs a Kafka sink from config.
func NewKafkaSink(config KafkaSinkConfig, logger *logrus.Logger, deadLetterQueue *dlq.DeadLetterQueue) (*KafkaSink, error) {
	ctx, cancel := context.WithCancel(context.Background())

	if len(config.Brokers) == 0 {
		cancel()
		return nil, fmt.Errorf("kafka sink: no brokers configured")
	}
	if config.Topic == "" {
		cancel()
		return nil, fmt.Errorf("kafka sink: no topic configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(config.RequiredAcks)

	switch strings.ToLower(config.Compression) {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if config.BatchSize > 0 {
		saramaConfig.Producer.Flush.Messages = config.BatchSize
	}
	if config.BatchTimeout != "" {
		if timeout, err := time.ParseDuration(config.BatchTimeout); err == nil {
			saramaConfig.Producer.Flush.Frequency = timeout
		}
	}
	if config.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes
	}
	if config.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = config.RetryMax
	}
	if config.Timeout != "" {
		if timeout, err := time.ParseDuration(config.Timeout); err == nil {
			saramaConfig.Net.DialTimeout = timeout
			saramaConfig.Net.ReadTimeout = timeout
			saramaConfig.Net.WriteTimeout = timeout
		}
	}

	if config.Auth.Enabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = config.Auth.Username
		saramaConfig.Net.SASL.Password = config.Auth.Password

		switch strings.ToUpper(config.Auth.Mechanism) {
		case "PLAIN":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
			}
		case "SCRAM-SHA-512":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
			}
		}
	}

	if config.TLS.Enabled {
		tlsConfig, err := createTLSConfig(config.TLS)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("kafka sink: tls config: %w", err)
		}
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.TLS.Config = tlsConfig
	}

	switch strings.ToLower(config.Partitioning.Strategy) {
	case "hash":
		saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	case "round-robin":
		saramaConfig.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	case "random":
		saramaConfig.Producer.Partitioner = sarama.NewRandomPartitioner
	default:
		saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	}

	producer, err := sarama.NewAsyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("kafka sink: failed to create producer: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"brokers":     config.Brokers,
		"topic":       config.Topic,
		"compression": config.Compression,
		"batch_size":  config.BatchSize,
		"queue_size":  config.QueueSize,
	}).Info("kafka sink initialized")

	breaker := circuit.NewBreaker(circuit.BreakerConfig{
		Name:             "kafka_sink",
		FailureThreshold: 10,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}, logger)

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 25000
	}

	return &KafkaSink{
		config:          config,
		logger:          logger,
		producer:        producer,
		breaker:         breaker,
		deadLetterQueue: deadLetterQueue,
		queue:           make(chan types.Record, queueSize),
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Start begins the background publish, flush, and response-handling loops.
func (ks *KafkaSink) Start(ctx context.Context) error {
	if !ks.config.Enabled {
		ks.logger.Info("kafka sink disabled")
		return nil
	}

	ks.mutex.Lock()
	if ks.isRunning {
		ks.mutex.Unlock()
		return fmt.Errorf("kafka sink already running")
	}
	ks.isRunning = true
	ks.lastSent = time.Now()
	ks.mutex.Unlock()

	ks.loopWg.Add(3)
	go ks.processLoop()
	go ks.flushLoop()
	go ks.handleProducerResponses()

	ks.logger.Info("kafka sink started")
	return nil
}

// Stop drains the queue, flushes the final batch, and closes the producer.
func (ks *KafkaSink) Stop() error {
	ks.mutex.Lock()
	if !ks.isRunning {
		ks.mutex.Unlock()
		return nil
	}
	ks.isRunning = false
	ks.mutex.Unlock()

	ks.cancel()
	ks.loopWg.Wait()
	for drained := false; !drained; {
		select {
		case record := <-ks.queue:
			ks.batchMutex.Lock()
			ks.batch = append(ks.batch, record)
			ks.batchMutex.Unlock()
		default:
			drained = true
		}
	}
	ks.flushBatch()
	ks.sendWg.Wait()

	if err := ks.producer.Close(); err != nil {
		ks.logger.WithError(err).Error("error closing kafka producer")
	}

	ks.logger.WithFields(logrus.Fields{
		"sent":    atomic.LoadInt64(&ks.sentCount),
		"errors":  atomic.LoadInt64(&ks.errorCount),
		"dropped": atomic.LoadInt64(&ks.droppedCount),
	}).Info("kafka sink stopped")

	return nil
}

// Close satisfies types.Sink.
func (ks *KafkaSink) Close() error { return ks.Stop() }

// ItemsProcessed satisfies types.Sink.
func (ks *KafkaSink) ItemsProcessed() uint64 { return atomic.LoadUint64(&ks.itemsProcessed) }

// Flush blocks until the current batch has been handed to the producer.
func (ks *KafkaSink) Flush() error {
	ks.flushBatch()
	return nil
}

// Process consumes one stream event, queuing data records for Kafka publish.
func (ks *KafkaSink) Process(event types.StreamEvent[types.Record]) error {
	if !ks.config.Enabled {
		return nil
	}
	if event.Kind != types.EventData {
		return nil
	}

	record := event.Data
	select {
	case ks.queue <- record:
		atomic.AddUint64(&ks.itemsProcessed, 1)
		return nil
	case <-ks.ctx.Done():
		return ks.ctx.Err()
	default:
		atomic.AddInt64(&ks.backpressureCount, 1)
		metrics.RecordBackpressureEvent("kafka_queue_full")

		queueUsage := float64(len(ks.queue)) / float64(cap(ks.queue))
		if queueUsage >= ks.config.BackpressureConfig.QueueEmergencyThreshold {
			atomic.AddInt64(&ks.droppedCount, 1)
			if ks.deadLetterQueue != nil && ks.config.DLQConfig.SendOnError {
				ks.deadLetterQueue.AddValue(record, "kafka_queue_full", "backpressure", "kafka_sink", 0, nil)
			}
			ks.logger.Warn("kafka sink queue full, dropping record to dead letter queue")
			return nil
		}

		select {
		case ks.queue <- record:
			atomic.AddUint64(&ks.itemsProcessed, 1)
			return nil
		case <-time.After(100 * time.Millisecond):
			atomic.AddInt64(&ks.droppedCount, 1)
			if ks.deadLetterQueue != nil && ks.config.DLQConfig.SendOnError {
				ks.deadLetterQueue.AddValue(record, "kafka_queue_timeout", "timeout", "kafka_sink", 0, nil)
			}
			return nil
		case <-ks.ctx.Done():
			return ks.ctx.Err()
		}
	}
}

func (ks *KafkaSink) processLoop() {
	defer ks.loopWg.Done()

	batchTimeout := 5 * time.Second
	if ks.config.BatchTimeout != "" {
		if timeout, err := time.ParseDuration(ks.config.BatchTimeout); err == nil {
			batchTimeout = timeout
		}
	}

	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ks.ctx.Done():
			return
		case record := <-ks.queue:
			ks.batchMutex.Lock()
			ks.batch = append(ks.batch, record)
			shouldFlush := len(ks.batch) >= ks.config.BatchSize
			ks.batchMutex.Unlock()

			if shouldFlush {
				ks.flushBatch()
			}
		case <-ticker.C:
			ks.flushBatch()
		}
	}
}

func (ks *KafkaSink) flushLoop() {
	defer ks.loopWg.Done()

	flushInterval := 10 * time.Second
	if ks.config.BatchTimeout != "" {
		if interval, err := time.ParseDuration(ks.config.BatchTimeout); err == nil {
			flushInterval = interval * 2
		}
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ks.ctx.Done():
			return
		case <-ticker.C:
			ks.batchMutex.Lock()
			shouldFlush := len(ks.batch) > 0 && time.Since(ks.lastSent) > flushInterval
			ks.batchMutex.Unlock()

			if shouldFlush {
				ks.flushBatch()
			}
		}
	}
}

func (ks *KafkaSink) flushBatch() {
	ks.batchMutex.Lock()
	if len(ks.batch) == 0 {
		ks.batchMutex.Unlock()
		return
	}

	batch := ks.batch
	ks.batch = make([]types.Record, 0, ks.config.BatchSize)
	ks.lastSent = time.Now()
	ks.batchMutex.Unlock()

	err := ks.breaker.Execute(func() error {
		return ks.sendBatch(batch)
	})

	if err != nil {
		ks.logger.WithError(err).WithField("batch_size", len(batch)).Error("failed to send batch to kafka")
		atomic.AddInt64(&ks.errorCount, int64(len(batch)))

		if ks.deadLetterQueue != nil && ks.config.DLQConfig.SendOnError {
			for _, record := range batch {
				ks.deadLetterQueue.AddValue(record, fmt.Sprintf("kafka_send_error: %v", err), "send_error", "kafka_sink", 0, nil)
			}
		}
	}
}

func (ks *KafkaSink) sendBatch(records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	successCount, errorCount := 0, 0

	for _, record := range records {
		topic := ks.determineTopic(record)
		partitionKey := ks.determinePartitionKey(record)

		value, err := json.Marshal(record)
		if err != nil {
			ks.logger.WithError(err).Error("failed to marshal record to json")
			errorCount++
			metrics.RecordError("kafka_sink", "marshal_error")
			if ks.deadLetterQueue != nil {
				ks.deadLetterQueue.AddValue(record, fmt.Sprintf("marshal_error: %v", err), "marshal_error", "kafka_sink", 0, nil)
			}
			continue
		}

		msg := &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(partitionKey),
			Value: sarama.ByteEncoder(value),
		}

		ks.producer.Input() <- msg
		successCount++
		metrics.KafkaMessagesProducedTotal.WithLabelValues(topic, "sent").Inc()
	}

	duration := time.Since(start)

	atomic.AddInt64(&ks.sentCount, int64(successCount))
	atomic.AddInt64(&ks.errorCount, int64(errorCount))

	metrics.KafkaBatchSendDuration.WithLabelValues(ks.config.Topic).Observe(duration.Seconds())
	metrics.ObserveSinkSendDuration("kafka", duration)

	cbState := 0.0
	switch ks.breaker.State() {
	case circuit.StateHalfOpen:
		cbState = 1.0
	case circuit.StateOpen:
		cbState = 2.0
	}
	metrics.KafkaCircuitBreakerState.WithLabelValues("kafka_sink").Set(cbState)

	metrics.RecordSent("kafka", "success")
	if errorCount > 0 {
		metrics.RecordSent("kafka", "error")
		metrics.KafkaProducerErrorsTotal.WithLabelValues(ks.config.Topic, "batch_error").Add(float64(errorCount))
	}

	ks.logger.WithFields(logrus.Fields{
		"batch_size":  len(records),
		"success":     successCount,
		"errors":      errorCount,
		"duration_ms": duration.Milliseconds(),
	}).Debug("kafka batch sent")

	if errorCount > 0 {
		return fmt.Errorf("kafka sink: %d/%d records failed", errorCount, len(records))
	}
	return nil
}

func (ks *KafkaSink) handleProducerResponses() {
	defer ks.loopWg.Done()

	for {
		select {
		case <-ks.ctx.Done():
			return
		case success := <-ks.producer.Successes():
			if success != nil {
				metrics.KafkaMessagesProducedTotal.WithLabelValues(success.Topic, "delivered").Inc()
			}
		case err := <-ks.producer.Errors():
			if err != nil {
				ks.logger.WithError(err.Err).WithField("topic", err.Msg.Topic).Error("failed to produce message to kafka")
				atomic.AddInt64(&ks.errorCount, 1)
				metrics.KafkaMessagesProducedTotal.WithLabelValues(err.Msg.Topic, "failed").Inc()
				metrics.KafkaProducerErrorsTotal.WithLabelValues(err.Msg.Topic, "produce_error").Inc()
				metrics.RecordError("kafka_sink", "produce_error")
			}
		}
	}
}

// determineTopic routes a record to a topic, defaulting to the configured one.
func (ks *KafkaSink) determineTopic(record types.Record) string {
	return ks.config.Topic
}

// determinePartitionKey partitions by record ID so updates to the same
// record land on the same partition.
func (ks *KafkaSink) determinePartitionKey(record types.Record) string {
	if !ks.config.Partitioning.Enabled {
		return ""
	}
	return record.RecordID()
}

// GetStats returns a snapshot of sink activity for diagnostics.
func (ks *KafkaSink) GetStats() map[string]interface{} {
	ks.mutex.RLock()
	defer ks.mutex.RUnlock()

	return map[string]interface{}{
		"enabled":            ks.config.Enabled,
		"running":            ks.isRunning,
		"queue_size":         len(ks.queue),
		"queue_capacity":     cap(ks.queue),
		"queue_utilization":  float64(len(ks.queue)) / float64(cap(ks.queue)),
		"sent_total":         atomic.LoadInt64(&ks.sentCount),
		"error_total":        atomic.LoadInt64(&ks.errorCount),
		"dropped_total":      atomic.LoadInt64(&ks.droppedCount),
		"backpressure_count": atomic.LoadInt64(&ks.backpressureCount),
		"circuit_breaker":    ks.breaker.State().String(),
	}
}

// IsHealthy reports whether the sink can currently accept writes.
func (ks *KafkaSink) IsHealthy() bool {
	select {
	case <-ks.ctx.Done():
		return false
	default:
	}

	if ks.breaker.State() == circuit.StateOpen {
		return false
	}
	if ks.producer == nil {
		return false
	}

	queueUsage := float64(len(ks.queue)) / float64(cap(ks.queue))
	return queueUsage < ks.config.BackpressureConfig.QueueEmergencyThreshold
}
