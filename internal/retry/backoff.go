// Package retry re-attempts connection setup with exponential backoff and
// keeps a per-host circuit breaker so a dead server is not hammered.
//
// Nothing below the CLI retries on its own: a session operation fails once
// and the caller decides, via [ftperr.IsRetryable], whether another attempt
// could help.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	ftperr "goftp/internal/errors"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError stops a [Backoff] loop.  The wrapped error is returned to
// the caller unchanged.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return ftperr.As(err, &pe)
}

// Classify marks err permanent unless [ftperr.IsRetryable] says a second
// attempt may succeed (a 4xx reply, a timeout, a reset connection).  A 530
// login refusal or a 550 will not improve by waiting.
func Classify(err error) error {
	if err == nil || ftperr.IsRetryable(err) {
		return err
	}
	return Permanent(err)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff implements exponential backoff with optional jitter.
type Backoff struct {
	// InitialDelay is the wait before the second attempt (default 500ms).
	InitialDelay time.Duration
	// MaxDelay caps a single wait (default 10s).
	MaxDelay time.Duration
	// Multiplier grows the wait after each failure (default 2.0).
	Multiplier float64
	// MaxAttempts counts every try including the first.  Zero means
	// retry until ctx is done.
	MaxAttempts int
	// Jitter spreads each wait by ±25%.
	Jitter bool
	// OnRetry, when set, is told about every failed attempt that will be
	// followed by another one.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff suits reconnecting to an FTP server from the CLI.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	}
}

// ForAttempts returns [DefaultBackoff] limited to n tries.  n below one
// means a single try.
func ForAttempts(n int) *Backoff {
	b := DefaultBackoff()
	if n < 1 {
		n = 1
	}
	b.MaxAttempts = n
	return b
}

// Do calls fn until it returns nil, returns a [Permanent] error, or the
// attempt budget or ctx runs out.  attempt is 1-based.
//
// The last error is returned as is when the budget is exhausted so that
// callers can still match it with errors.Is / errors.As.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if ftperr.As(err, &pe) {
			return pe.Err
		}

		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			if b.MaxAttempts == 1 {
				return err
			}
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ftperr.Join(err, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// addJitter moves d by up to a quarter in either direction, never below
// one millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
