package reliability

import (
	"sync"
	"time"

	"github.com/dipteshhh/learnease-backend/internal/modules/generation/generr"
	"github.com/dipteshhh/learnease-backend/internal/observability"
)

// Retry hint handed out when the breaker is half-open and every probe slot is taken.
const halfOpenRetryAfter = time.Second

type BreakerConfig struct {
	// FailureThreshold <= 0 disables the breaker.
	FailureThreshold   int
	Cooldown           time.Duration
	HalfOpenProbeLimit int
}

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Ticket is an admission returned by Allow and handed back to Record.
type Ticket struct {
	probe bool
	epoch uint64
}

func (t Ticket) Probe() bool { return t.probe }

// Breaker guards the provider after repeated transient failures. Safe for concurrent use.
type Breaker struct {
	cfg     BreakerConfig
	now     func() time.Time
	metrics *observability.Metrics

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probes   int
	// epoch changes whenever the breaker opens or closes so late probe results are not misread.
	epoch uint64
}

type BreakerOption func(*Breaker)

func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

func WithBreakerMetrics(m *observability.Metrics) BreakerOption {
	return func(b *Breaker) { b.metrics = m }
}

func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.HalfOpenProbeLimit <= 0 {
		cfg.HalfOpenProbeLimit = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) enabled() bool {
	return b != nil && b.cfg.FailureThreshold > 0
}

// Allow admits a call or returns a GENERATION_FAILED *generr.UnavailableError carrying the retry hint.
func (b *Breaker) Allow() (Ticket, error) {
	if !b.enabled() {
		return Ticket{}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return Ticket{epoch: b.epoch}, nil
	}
	elapsed := b.now().Sub(b.openedAt)
	if elapsed < b.cfg.Cooldown {
		b.metrics.IncBreakerRejection()
		return Ticket{}, b.rejection(b.cfg.Cooldown - elapsed)
	}
	if b.probes >= b.cfg.HalfOpenProbeLimit {
		b.metrics.IncBreakerRejection()
		return Ticket{}, b.rejection(halfOpenRetryAfter)
	}
	if b.probes == 0 {
		b.metrics.SetBreakerState(observability.BreakerHalfOpen)
	}
	b.probes++
	return Ticket{probe: true, epoch: b.epoch}, nil
}

func (b *Breaker) rejection(retryAfter time.Duration) error {
	return &generr.UnavailableError{
		Code:       generr.CodeGenerationFailed,
		Message:    "generation provider circuit is open",
		RetryAfter: retryAfter,
	}
}

// Record reports the provider outcome for an admitted call. providerErr is the provider's
// error only; output the validator later rejects still counts as a success here.
func (b *Breaker) Record(t Ticket, providerErr error) {
	if !b.enabled() {
		return
	}
	success := providerErr == nil
	transient := !success && Classify(providerErr) == Transient

	b.mu.Lock()
	defer b.mu.Unlock()

	if t.probe && t.epoch == b.epoch {
		if b.probes > 0 {
			b.probes--
		}
		if success {
			b.closeLocked()
		} else {
			b.openLocked()
		}
		return
	}

	if !b.openedAt.IsZero() {
		// Outcome of a call admitted before the breaker opened; the cooldown stands.
		return
	}
	switch {
	case success:
		b.failures = 0
	case transient:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	}
}

func (b *Breaker) openLocked() {
	b.openedAt = b.now()
	b.probes = 0
	b.epoch++
	b.metrics.SetBreakerState(observability.BreakerOpen)
}

func (b *Breaker) closeLocked() {
	b.failures = 0
	b.openedAt = time.Time{}
	b.probes = 0
	b.epoch++
	b.metrics.SetBreakerState(observability.BreakerClosed)
}

// Reset closes the breaker and clears every counter.
func (b *Breaker) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Breaker) State() BreakerState {
	if !b.enabled() {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return BreakerClosed
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return BreakerOpen
	}
	return BreakerHalfOpen
}

// Failures is the current consecutive transient-failure count.
func (b *Breaker) Failures() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
