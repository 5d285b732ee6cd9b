// Package circuit implements a three-state circuit breaker (closed / open /
// half-open) used to wrap sink writes (Kafka batch publish) so a
// failing downstream collaborator does not block the streaming runtime.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Stats snapshots a breaker's counters for metrics export.
type Stats struct {
	State         State
	Failures      int64
	Successes     int64
	Requests      int64
	LastFailure   time.Time
	LastSuccess   time.Time
	NextRetryTime time.Time
}

// BreakerConfig configures a circuit breaker instance.
type BreakerConfig struct {
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"`   // Failure count before opening; each closed-state success subtracts one
	SuccessThreshold int           `yaml:"success_threshold"`   // Successes required to close
	Timeout          time.Duration `yaml:"timeout"`             // Time spent in the open state
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"` // Max calls allowed in the half-open state
	ResetTimeout     time.Duration `yaml:"reset_timeout"`       // Defaulted but not consulted by Breaker
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config BreakerConfig
	logger *logrus.Logger

	state         State
	failures      int64
	successes     int64
	requests      int64
	lastFailure   time.Time
	lastSuccess   time.Time
	nextRetryTime time.Time

	// Half-open bookkeeping
	halfOpenCalls     int
	halfOpenSuccesses int
	halfOpenStartTime time.Time
	maxHalfOpen       int

	// Event callbacks
	onStateChange func(from, to State)
	onFailure     func(error)
	onSuccess     func()

	mu sync.RWMutex
}

// NewBreaker constructs a new circuit breaker
func NewBreaker(config BreakerConfig, logger *logrus.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 10
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 10 * time.Minute
	}

	return &Breaker{
		config:      config,
		logger:      logger,
		state:       StateClosed,
		maxHalfOpen: config.HalfOpenMaxCalls,
	}
}

// Execute runs fn guarded by the circuit breaker.
// The call is split into three phases so the lock is never held during fn's execution:
// 1. pre-check (locked): validate state, decide whether to admit the call
// 2. execution (unlocked): run fn() concurrently with other callers
// 3. post-record (locked): update counters/state and check for a trip
func (b *Breaker) Execute(fn func() error) error {
	// PHASE 1: pre-check (locked)
	b.mu.Lock()

	b.requests++

	// check whether a retry is due (circuit open?)
	if b.state == StateOpen {
		if time.Now().Before(b.nextRetryTime) {
			b.mu.Unlock()
			return fmt.Errorf("circuit breaker %s is open", b.config.Name)
		}
		// transition to half-open
		b.setState(StateHalfOpen)
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
		b.halfOpenStartTime = time.Now()
	}

	// check the half-open call limit
	if b.state == StateHalfOpen {
		// check the half-open timeout (avoids getting stuck)
		halfOpenTimeout := b.config.Timeout * 2 // doubled timeout while half-open
		if time.Since(b.halfOpenStartTime) > halfOpenTimeout {
			b.logger.WithField("breaker", b.config.Name).Warn("Circuit breaker half-open timeout, reopening")
			b.trip()
			b.mu.Unlock()
			return fmt.Errorf("circuit breaker %s half-open timeout", b.config.Name)
		}

		if b.halfOpenCalls >= b.maxHalfOpen {
			b.mu.Unlock()
			return fmt.Errorf("circuit breaker %s is half-open (max calls reached)", b.config.Name)
		}
		b.halfOpenCalls++
	}

	b.mu.Unlock()
	// END PHASE 1

	// PHASE 2: execution (unlocked) - allows concurrency
	err := fn()
	// END PHASE 2

	// PHASE 3: post-record (locked)
	b.mu.Lock()

	if err != nil {
		b.onExecutionFailure(err)
		// check whether the circuit should trip after recording the failure
		if b.shouldTrip() {
			b.trip()
		}
		b.mu.Unlock()
		return err
	}

	b.onExecutionSuccess()
	b.mu.Unlock()
	return nil
	// END PHASE 3
}

// shouldTrip reports whether the closed breaker has accumulated enough
// failures to open.
func (b *Breaker) shouldTrip() bool {
	if b.state != StateClosed {
		return false
	}

	return b.failures >= int64(b.config.FailureThreshold)
}

// trip opens the circuit breaker.
func (b *Breaker) trip() {
	if b.state == StateOpen {
		return
	}

	b.setState(StateOpen)
	b.nextRetryTime = time.Now().Add(b.config.Timeout)

	b.logger.WithFields(logrus.Fields{
		"breaker":         b.config.Name,
		"failures":        b.failures,
		"next_retry_time": b.nextRetryTime,
	}).Warn("Circuit breaker opened")
}

// onExecutionFailure records a failed call
func (b *Breaker) onExecutionFailure(err error) {
	b.failures++
	b.lastFailure = time.Now()

	if b.onFailure != nil {
		b.onFailure(err)
	}

	// in half-open, a single failure reopens immediately
	if b.state == StateHalfOpen {
		b.trip()
	}
}

// onExecutionSuccess records a successful call
func (b *Breaker) onExecutionSuccess() {
	b.successes++
	b.lastSuccess = time.Now()

	if b.onSuccess != nil {
		b.onSuccess()
	}

	// in half-open, check whether enough successes have accrued to close
	if b.state == StateHalfOpen {
		// track half-open successes
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.SuccessThreshold {
			b.setState(StateClosed)
			b.reset()
		}
	} else if b.state == StateClosed {
		// decay the failure count on success
		if b.failures > 0 {
			b.failures = max(0, b.failures-1)
		}
	}
}

// reset clears the breaker's counters
func (b *Breaker) reset() {
	b.failures = 0
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
	b.nextRetryTime = time.Time{}

	b.logger.WithFields(logrus.Fields{
		"breaker":   b.config.Name,
		"successes": b.successes,
	}).Info("Circuit breaker reset")
}

// setState transitions the breaker and notifies the callback
func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	if b.onStateChange != nil {
		b.onStateChange(oldState, newState)
	}

	b.logger.WithFields(logrus.Fields{
		"breaker":   b.config.Name,
		"old_state": oldState,
		"new_state": newState,
		"failures":  b.failures,
		"successes": b.successes,
	}).Info("Circuit breaker state changed")
}

// State returns the breaker's current state
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// IsOpen reports whether the breaker is currently open
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateOpen
}

// Reset forces the breaker back to closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(StateClosed)
	b.reset()
}

// GetStats returns a snapshot of the breaker's counters
func (b *Breaker) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		State:         b.state,
		Failures:      b.failures,
		Successes:     b.successes,
		Requests:      b.requests,
		LastFailure:   b.lastFailure,
		LastSuccess:   b.lastSuccess,
		NextRetryTime: b.nextRetryTime,
	}
}

// SetStateChangeCallback registers a state-transition callback
func (b *Breaker) SetStateChangeCallback(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// SetFailureCallback registers a failure callback.
func (b *Breaker) SetFailureCallback(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFailure = fn
}

// SetSuccessCallback registers a success callback.
func (b *Breaker) SetSuccessCallback(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSuccess = fn
}

// CanExecute reports whether a call would currently be admitted
func (b *Breaker) CanExecute() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return time.Now().After(b.nextRetryTime)
	case StateHalfOpen:
		return b.halfOpenCalls < b.maxHalfOpen
	default:
		return false
	}
}

// ForceOpen trips the breaker regardless of its failure count
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trip()
}

func max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
