package resilience

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpenCircuit is returned while the breaker refuses calls.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker opens after a run of consecutive failures and lets a single probe
// through once the cool-off has elapsed.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	threshold int
	openFor   time.Duration
	openedAt  time.Time
	probing   bool
	target    string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBreaker constructs a closed breaker for target.
func NewBreaker(target string, threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	b := &Breaker{
		state:     Closed,
		threshold: threshold,
		openFor:   openFor,
		target:    strings.TrimSpace(target),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	if b.target == "" {
		b.target = "default"
	}
	breakerState.WithLabelValues(b.target).Set(float64(Closed))
	return b
}

// WithLogger sets the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. In half-open only one probe is
// admitted until it reports.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.transitionLocked(HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probing = false
		if success {
			b.transitionLocked(Closed)
		} else {
			b.transitionLocked(Open)
		}
	case Closed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.transitionLocked(Open)
		}
	}
}

func (b *Breaker) transitionLocked(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.failures = 0
	if next == Open {
		b.openedAt = b.now()
		breakerOpened.WithLabelValues(b.target).Inc()
	}
	breakerState.WithLabelValues(b.target).Set(float64(next))
	breakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	b.logger.Info().Str("target", b.target).Str("from_state", prev.String()).Str("to_state", next.String()).Msg("breaker_transition")
}
