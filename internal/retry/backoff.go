// Package retry paces repeated failures: the SSH tunnel handshake
// retries under a budget, and a failing accept loop backs off without
// one.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is returned by [Pacer.Fail] once the attempt budget is
// spent.
var ErrExhausted = errors.New("retry budget exhausted")

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable; [Backoff.Do] returns the inner
// error without another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Policy ───────────────────────────────────────────────────────────

// Backoff is an exponential delay policy.  Zero fields take the
// defaults noted beside them.
type Backoff struct {
	InitialDelay time.Duration // 1s
	MaxDelay     time.Duration // 60s
	Multiplier   float64       // 2.0
	MaxAttempts  int           // tries including the first; 0 = unlimited
	Jitter       bool          // ±25%
}

// DefaultBackoff is the policy for reaching an SSH gateway: 1s doubling
// to 60s, ten tries, jittered.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// AcceptBackoff is the pacing between failed accept calls: 5ms doubling
// up to 1s, unlimited, without jitter.
func AcceptBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
}

// Duration returns the wait after the given 1-based failed attempt,
// before jitter.
func (b *Backoff) Duration(attempt int) time.Duration {
	delay, ceiling, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if delay == 0 {
		delay = time.Second
	}
	if ceiling == 0 {
		ceiling = 60 * time.Second
	}
	if mult <= 0 {
		mult = 2.0
	}

	for i := 1; i < attempt && delay < ceiling; i++ {
		delay = time.Duration(float64(delay) * mult)
	}
	return min(delay, ceiling)
}

// Pacer returns a fresh failure counter governed by b.
func (b *Backoff) Pacer() *Pacer {
	return &Pacer{b: b}
}

// Do calls fn until it succeeds, returns a [Permanent] error, the
// attempt budget runs out, or ctx ends.  fn receives the 1-based
// attempt number.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	p := b.Pacer()
	for {
		err := fn(p.Failures() + 1)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}

		switch werr := p.Fail(ctx); {
		case werr == nil:
		case errors.Is(werr, ErrExhausted):
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		default:
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// ── Pacer ────────────────────────────────────────────────────────────

// Pacer counts consecutive failures and sleeps between them.  It is not
// safe for concurrent use; each loop owns one.
type Pacer struct {
	b        *Backoff
	failures int
}

// Failures returns the number of failures since the last Reset.
func (p *Pacer) Failures() int { return p.failures }

// Reset forgets past failures after a success.
func (p *Pacer) Reset() { p.failures = 0 }

// Fail records a failure and sleeps for the next delay.  It returns
// [ErrExhausted] without sleeping once the budget is spent, or ctx's
// error if ctx ends during the sleep.
func (p *Pacer) Fail(ctx context.Context) error {
	p.failures++
	if p.b.MaxAttempts > 0 && p.failures >= p.b.MaxAttempts {
		return ErrExhausted
	}
	wait := p.b.Duration(p.failures)
	if p.b.Jitter {
		wait = addJitter(wait)
	}
	return Sleep(ctx, wait)
}

// Sleep waits for d or until ctx ends, returning ctx's error in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter adds ±25% randomisation to a duration, floored at 1ms.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
