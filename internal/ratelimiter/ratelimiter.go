package ratelimiter

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

/*
Responsibilities
- Throttle outgoing requests to the primary target site to a rate that
  reacts to HTTP 429 responses
- Back off quadratically on repeated 429s, recover gradually on success
- Knows nothing about proxies, user agents, or which URL is being fetched

This is independent from pkg/limiter, the per-host delay-and-backoff
limiter the scheduler applies before this one on every crawl fetch: that
one spaces requests to each host, this one tracks a single adaptive rate
for the target site and reacts to 429s.
*/

const jitterFraction = 0.10

// Limiter is an adaptive token bucket: capacity is the configured burst
// size, refill rate tracks currentRate/60 tokens per second. Wait()
// suspends until a token is available; OnFailure()/OnSuccess() are the
// only mutators of currentRate.
type Limiter struct {
	mu sync.Mutex

	baseRate    float64 // requests per minute, ceiling for recovery
	currentRate float64 // requests per minute, current effective rate
	burstSize   int
	maxBackoff  time.Duration
	decrease    float64 // multiplier applied to currentRate on failure, default 0.5
	recover     float64 // multiplier applied to currentRate on success, default 1.1

	limiter      *rate.Limiter
	failureCount int
	backoffUntil time.Time
	rng          *rand.Rand
}

type Option func(*Limiter)

func WithDecreaseFactor(f float64) Option { return func(l *Limiter) { l.decrease = f } }
func WithRecoveryFactor(f float64) Option { return func(l *Limiter) { l.recover = f } }
func WithRandomSeed(seed int64) Option    { return func(l *Limiter) { l.rng = rand.New(rand.NewSource(seed)) } }

// New builds an adaptive limiter. requestsPerMinute is both the initial
// and the ceiling ("base") rate; burstSize is the bucket capacity;
// maxBackoff caps the 429 backoff window.
func New(requestsPerMinute float64, burstSize int, maxBackoff time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		baseRate:    requestsPerMinute,
		currentRate: requestsPerMinute,
		burstSize:   burstSize,
		maxBackoff:  maxBackoff,
		decrease:    0.5,
		recover:     1.1,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.limiter = rate.NewLimiter(rate.Limit(l.currentRate/60), l.burstSize)
	return l
}

// Wait suspends until a token is available, honoring any active 429
// backoff window first, with uniform ±10% jitter applied to the delay.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	backoffUntil := l.backoffUntil
	l.mu.Unlock()

	if wait := time.Until(backoffUntil); wait > 0 {
		if err := sleepWithJitter(ctx, wait, l.rng); err != nil {
			return err
		}
	}
	return l.limiter.Wait(ctx)
}

// OnFailure reacts to an HTTP 429 (or equivalent rate-limit signal):
// currentRate ← max(1, currentRate * decrease); the bucket is drained and
// an effective backoff window of min(maxBackoff, failureCount^2 * 10s) is
// opened.
func (l *Limiter) OnFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failureCount++
	l.currentRate = math.Max(1, l.currentRate*l.decrease)
	l.limiter.SetLimit(rate.Limit(l.currentRate / 60))

	backoff := time.Duration(float64(l.failureCount*l.failureCount)*10) * time.Second
	if backoff > l.maxBackoff {
		backoff = l.maxBackoff
	}
	l.backoffUntil = time.Now().Add(backoff)
	l.limiter.AllowN(time.Now(), l.burstSize) // drain any accumulated tokens
}

// OnSuccess gradually recovers currentRate ← min(baseRate, currentRate *
// recover). Does not reset failureCount: a quiet success streak earns back
// rate, but a fresh 429 still escalates the backoff window from where it
// left off.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentRate = math.Min(l.baseRate, l.currentRate*l.recover)
	l.limiter.SetLimit(rate.Limit(l.currentRate / 60))
}

// CurrentRate reports the limiter's current effective rate, in requests
// per minute. Exposed for observability and tests, never for control flow
// outside this package.
func (l *Limiter) CurrentRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentRate
}

func sleepWithJitter(ctx context.Context, d time.Duration, rng *rand.Rand) error {
	jitter := 1 + (rng.Float64()*2-1)*jitterFraction
	actual := time.Duration(float64(d) * jitter)
	if actual < 0 {
		actual = 0
	}
	timer := time.NewTimer(actual)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
