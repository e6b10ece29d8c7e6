package ai

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker is skipping oracle calls.
var ErrCircuitOpen = errors.New("ai: circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the breaker in front of the oracle.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the circuit. Zero disables the breaker.
	MaxFailures int
	// Cooldown is how long the circuit stays open before one probe is let through.
	Cooldown time.Duration
}

// breaker is a consecutive-failure circuit breaker. A single probe is admitted
// in half-open; its outcome closes or re-opens the circuit.
type breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
	logger   *zap.Logger
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *breaker {
	return &breaker{cfg: cfg, now: time.Now, logger: logger}
}

// allow reports whether a call may proceed.
func (b *breaker) allow() error {
	if b.cfg.MaxFailures <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.state = stateHalfOpen
		b.probing = true
		b.logger.Info("advisory circuit half-open")
		return nil
	case stateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// record updates the state with the outcome of an admitted call.
func (b *breaker) record(err error) {
	if b.cfg.MaxFailures <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != stateClosed {
			b.logger.Info("advisory circuit closed")
		}
		b.state = stateClosed
		b.failures = 0
		b.probing = false
		return
	}

	b.failures++
	switch {
	case b.state == stateHalfOpen:
		b.state = stateOpen
		b.openedAt = b.now()
		b.probing = false
		b.logger.Warn("advisory circuit re-opened after probe failure", zap.Error(err))
	case b.failures >= b.cfg.MaxFailures && b.state == stateClosed:
		b.state = stateOpen
		b.openedAt = b.now()
		b.logger.Warn("advisory circuit opened", zap.Int("failures", b.failures), zap.Error(err))
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
