package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the breaker's position in the Closed/Open/HalfOpen machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds breaker tunables.
type Config struct {
	FailureThreshold int           // Consecutive failures before tripping
	Cooldown         time.Duration // Initial open window
	CooldownMax      time.Duration // Cap for the doubling cooldown
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		CooldownMax:      5 * time.Minute,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg    Config
	logger *slog.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	trippedAt           time.Time
	cooldownUntil       time.Time
	cooldown            time.Duration // current window, doubles on repeated trips

	nowFunc func() time.Time // injectable clock for testing
}

// New creates a Breaker in the closed state.
func New(cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		cfg:      cfg,
		logger:   logger,
		state:    StateClosed,
		cooldown: cfg.Cooldown,
		nowFunc:  time.Now,
	}
}

// Allow reports whether a connection attempt may proceed. While open it
// returns false until the cooldown elapses; the first call after cooldown
// transitions to half-open and is admitted, subsequent calls are rejected
// until the probe attempt is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.nowFunc().Before(b.cooldownUntil) {
			return false
		}
		b.state = StateHalfOpen
		b.logger.Info("circuit breaker half-open, admitting probe attempt")
		return true
	case StateHalfOpen:
		// One probe at a time.
		return false
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count and
// cooldown from any state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.logger.Info("circuit breaker closed", "previous_state", b.state)
	}
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.cooldown = b.cfg.Cooldown
	b.trippedAt = time.Time{}
	b.cooldownUntil = time.Time{}
}

// RecordFailure counts a failed attempt. Crossing the threshold from
// closed, or any failure while half-open, trips the breaker open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.tripLocked()
		}
	case StateHalfOpen:
		// Probe failed: re-open with a longer cooldown.
		b.cooldown *= 2
		if b.cooldown > b.cfg.CooldownMax {
			b.cooldown = b.cfg.CooldownMax
		}
		b.tripLocked()
	case StateOpen:
		// Failures while open (e.g. keepalive reports) keep the count but
		// do not extend the cooldown.
	}
}

func (b *Breaker) tripLocked() {
	now := b.nowFunc()
	b.state = StateOpen
	b.trippedAt = now
	b.cooldownUntil = now.Add(b.cooldown)
	b.logger.Warn("circuit breaker open",
		"consecutive_failures", b.consecutiveFailures,
		"cooldown", b.cooldown,
	)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CooldownUntil returns when the open window ends. Zero unless open.
func (b *Breaker) CooldownUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldownUntil
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
