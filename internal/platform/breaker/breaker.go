// Package breaker implements a stateful gate in front of an unreliable
// downstream call: a rolling window of call outcomes, a failure-rate
// threshold that opens the gate, and a half-open probe phase.
// github.com/eapache/go-resiliency's breaker opens on a consecutive-failure
// count rather than a windowed failure rate, so this is hand-rolled.
package breaker

import (
	"sync"
	"time"
)

// State is one of CLOSED, OPEN, HALF_OPEN.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Config configures a Breaker.
type Config struct {
	WindowSize          int           // rolling window of call outcomes
	FailureRateThresh   float64       // fraction of failures in the window that opens the breaker
	OpenDuration        time.Duration // time the breaker stays open before a half-open probe
	HalfOpenProbes      int           // number of probes allowed through per half-open phase
}

// ErrOpen is returned by Allow when the breaker is fast-failing calls.
type ErrOpen struct{}

func (ErrOpen) Error() string { return "circuit breaker open" }

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu            sync.Mutex
	state         State
	outcomes      []bool // true = success, ring buffer
	openedAt      time.Time
	halfOpenInUse int
}

func New(cfg Config) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call may proceed. When it returns an error the
// caller must treat the attempt as Unavailable without touching the
// network. On success the caller MUST call Report with the outcome of the
// call it was allowed to make.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = HalfOpen
			b.halfOpenInUse = 0
			// fall through to HalfOpen handling below
		} else {
			return ErrOpen{}
		}
		fallthrough
	case HalfOpen:
		if b.halfOpenInUse >= b.cfg.HalfOpenProbes {
			return ErrOpen{}
		}
		b.halfOpenInUse++
		return nil
	}
	return nil
}

// Report records the outcome of a call that Allow permitted.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		if success {
			b.state = Closed
			b.outcomes = nil
		} else {
			b.state = Open
			b.openedAt = time.Now()
			b.outcomes = nil
		}
		return
	case Open:
		// A report arriving after the breaker re-closed/opened again is stale; ignore.
		return
	}

	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.cfg.WindowSize {
		b.outcomes = b.outcomes[len(b.outcomes)-b.cfg.WindowSize:]
	}

	if len(b.outcomes) < b.cfg.WindowSize {
		return
	}

	failures := 0
	for _, ok := range b.outcomes {
		if !ok {
			failures++
		}
	}
	rate := float64(failures) / float64(len(b.outcomes))
	if rate >= b.cfg.FailureRateThresh {
		b.state = Open
		b.openedAt = time.Now()
		b.outcomes = nil
	}
}

// State returns the current state, for metrics/inspection.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
