// Package monitoring implements the CPU monitor collaborator: a
// periodic host-CPU sampler the streaming runtime (internal/stream)
// consults between records to decide whether to insert a throttle delay.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sirupsen/logrus"
)

// Config parameterizes the CPU monitor.
type Config struct {
	Enabled               bool          `yaml:"enabled"`
	CheckInterval         time.Duration `yaml:"check_interval"`
	HighLoadThreshold     float64       `yaml:"high_load_threshold"`     // fraction 0-1
	CriticalLoadThreshold float64       `yaml:"critical_load_threshold"` // fraction 0-1
	AutoThrottle          bool          `yaml:"auto_throttle"`
	ThrottleDelay         time.Duration `yaml:"throttle_delay"`
}

// Snapshot is the CPU monitor's externally observable state.
type Snapshot struct {
	Current          float64 `json:"current"`
	Average          float64 `json:"average"`
	Peak             float64 `json:"peak"`
	IsThrottling     bool    `json:"is_throttling"`
	SamplesCollected uint64  `json:"samples_collected"`
}

// CPUMonitor samples host CPU utilization on an interval and exposes a
// running current/average/peak view plus a throttling flag that asserts at
// CriticalLoadThreshold and deasserts at HighLoadThreshold, hysteresis
// that prevents the flag from chattering around a single threshold.
//
// It follows the same ticker-driven background-goroutine shape and
// thread-safe snapshot read as a classic threshold-sampling resource
// monitor, applied to host CPU load sampled via gopsutil rather than
// in-process Go runtime stats.
type CPUMonitor struct {
	config Config
	logger *logrus.Logger

	mu         sync.RWMutex
	current    float64
	sum        float64
	peak       float64
	samples    uint64
	throttling bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCPUMonitor constructs a monitor; call Start to begin sampling.
func NewCPUMonitor(config Config, logger *logrus.Logger) *CPUMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &CPUMonitor{config: config, logger: logger, ctx: ctx, cancel: cancel}
}

// Start begins background sampling. A no-op if disabled.
func (m *CPUMonitor) Start() {
	if !m.config.Enabled {
		m.logger.Info("cpu monitor disabled")
		return
	}
	m.wg.Add(1)
	go m.sampleLoop()
}

// Stop halts background sampling and waits for it to exit.
func (m *CPUMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *CPUMonitor) sampleLoop() {
	defer m.wg.Done()
	interval := m.config.CheckInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce()
		}
	}
}

func (m *CPUMonitor) sampleOnce() {
	percents, err := cpu.PercentWithContext(m.ctx, 0, false)
	if err != nil || len(percents) == 0 {
		m.logger.WithError(err).Warn("cpu monitor: sample failed")
		return
	}
	load := percents[0] / 100.0

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = load
	m.sum += load
	m.samples++
	if load > m.peak {
		m.peak = load
	}

	switch {
	case load >= m.config.CriticalLoadThreshold:
		m.throttling = true
	case load < m.config.HighLoadThreshold:
		m.throttling = false
	}
}

// Snapshot returns the current observable state (thread-safe).
func (m *CPUMonitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var avg float64
	if m.samples > 0 {
		avg = m.sum / float64(m.samples)
	}
	return Snapshot{
		Current:          m.current,
		Average:          avg,
		Peak:             m.peak,
		IsThrottling:     m.throttling,
		SamplesCollected: m.samples,
	}
}

// CurrentLoad implements internal/stream's LoadMonitor interface.
func (m *CPUMonitor) CurrentLoad() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsThrottling implements internal/stream's LoadMonitor interface.
func (m *CPUMonitor) IsThrottling() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.throttling
}
