package stream

import (
	"fmt"
	"time"

	"synthledger/pkg/types"
)

// LoadMonitor is the CPU monitor collaborator: a periodic sampler the
// runner consults between records to decide whether to insert a throttle
// delay. Implementations (e.g. a gopsutil-backed sampler) live outside this
// package; the runner only needs this narrow read surface.
type LoadMonitor interface {
	CurrentLoad() float64
	IsThrottling() bool
}

// Producer yields the next record for sequence number seq. done=true with a
// nil error signals a normal end of stream; a non-nil error is surfaced as a
// recoverable StreamError and the record is discarded.
type Producer[R any] func(seq uint64) (item R, done bool, err error)

// RunnerConfig bundles the streaming and throttle parameters a single run
// needs.
type RunnerConfig struct {
	Stream          types.StreamConfig
	ThrottleDelay   time.Duration
	HighLoad        float64
	CriticalLoad    float64
	AutoThrottle    bool
}

// Run drives producer through a bounded ring buffer into sink, implementing
// the full event lifecycle: Data per record, Progress every
// ProgressInterval items (or sooner, once more than a second has passed
// since the last Progress), BatchComplete at BatchSize boundaries, Error for
// recoverable producer failures, and exactly one terminal Complete. control
// governs cooperative pause/cancel; monitor may be nil (no throttling).
//
// One goroutine pulls from the producer and pushes onto the bounded
// buffer, checking control before each record; the calling goroutine
// drains the buffer into the sink until it sees Complete.
func Run[R any](producer Producer[R], sink types.Sink[R], control *Control, cfg RunnerConfig, monitor LoadMonitor) types.StreamSummary {
	buf := newRingBuffer[R](cfg.Stream.BufferSize, cfg.Stream.Policy, cfg.Stream.MaxOverflow)

	producerDone := make(chan types.StreamSummary, 1)
	go runProducer(producer, buf, control, cfg, monitor, producerDone)

	var processed uint64
	var errCount int
	for {
		event, ok := buf.Pop()
		if !ok {
			break
		}
		if event.Kind == types.EventError {
			errCount++
		}
		if err := sink.Process(event); err != nil {
			errCount++
		}
		processed++
		if event.Kind == types.EventComplete {
			break
		}
	}

	summary := <-producerDone
	summary.ErrorCount = errCount
	summary.DroppedCount = buf.DroppedCount()

	sink.Flush()
	sink.Close()

	return summary
}

func runProducer[R any](producer Producer[R], buf *ringBuffer[R], control *Control, cfg RunnerConfig, monitor LoadMonitor, done chan<- types.StreamSummary) {
	defer buf.Close()

	start := time.Now()
	var seq uint64
	var generated uint64
	var errCount int
	batchID := uint64(0)
	batchCount := 0
	lastProgress := time.Now()
	phases := []string{"generation"}
	throttling := false

	emitProgress := func() {
		elapsed := time.Since(start)
		var rate float64
		if elapsed.Seconds() > 0 {
			rate = float64(generated) / elapsed.Seconds()
		}
		fill := buf.FillRatio()
		buf.Push(types.ProgressEvent[R](types.StreamProgress{
			ItemsGenerated:  generated,
			ItemsPerSecond:  rate,
			ElapsedMS:       elapsed.Milliseconds(),
			Phase:           "generation",
			BufferFillRatio: &fill,
		}), false)
	}

	for {
		control.WaitWhilePaused()

		if control.IsCancelled() {
			break
		}

		if cfg.AutoThrottle && monitor != nil {
			load := monitor.CurrentLoad()
			if load >= cfg.CriticalLoad {
				throttling = true
			} else if load < cfg.HighLoad {
				throttling = false
			}
			if throttling {
				time.Sleep(cfg.ThrottleDelay)
			}
		}

		item, done, err := producer(seq)
		seq++

		if err != nil {
			errCount++
			buf.Push(types.ErrorEvent[R](&types.StreamError{
				Category:    types.ErrGeneration,
				Message:     err.Error(),
				Recoverable: true,
				Cause:       err,
			}), false)
			continue
		}
		if done {
			break
		}

		generated++
		buf.Push(types.DataEvent(item), false)
		batchCount++

		if cfg.Stream.BatchSize > 0 && batchCount >= cfg.Stream.BatchSize {
			batchID++
			buf.Push(types.BatchCompleteEvent[R](batchID, batchCount), false)
			batchCount = 0
		}

		if cfg.Stream.ProgressInterval > 0 {
			if generated%uint64(cfg.Stream.ProgressInterval) == 0 || time.Since(lastProgress) > time.Second {
				emitProgress()
				lastProgress = time.Now()
			}
		}

		// cooperative cancellation contract: after cancel the producer
		// emits at most one additional Data and then Complete.
		if control.IsCancelled() {
			break
		}
	}

	if batchCount > 0 {
		batchID++
		buf.Push(types.BatchCompleteEvent[R](batchID, batchCount), false)
	}

	elapsed := time.Since(start)
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(generated) / elapsed.Seconds()
	}
	summary := types.StreamSummary{
		TotalItems:      generated,
		TotalMS:         elapsed.Milliseconds(),
		AvgItemsPerSec:  rate,
		ErrorCount:      errCount,
		PhasesCompleted: phases,
	}
	buf.Push(types.CompleteEvent[R](summary), true)
	done <- summary
}

// ValidateRunnerConfig rejects nonsensical runtime parameters at
// construction time.
func ValidateRunnerConfig(cfg RunnerConfig) error {
	if cfg.Stream.BufferSize < 1 {
		return fmt.Errorf("stream: buffer_size must be >= 1, got %d", cfg.Stream.BufferSize)
	}
	if cfg.Stream.BatchSize < 0 {
		return fmt.Errorf("stream: batch_size must be >= 0, got %d", cfg.Stream.BatchSize)
	}
	if cfg.Stream.ProgressInterval < 0 {
		return fmt.Errorf("stream: progress_interval must be >= 0, got %d", cfg.Stream.ProgressInterval)
	}
	return nil
}
