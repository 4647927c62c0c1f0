// Package backoff repeats operations that fail with transient errors.
//
// A Retrier is a strategy value: it classifies errors as transient, counts
// attempts and decides how long to wait before the next one. Retriers keep
// no state between calls to Run, so one value can be shared.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/datascanner/internal/logger"
)

var log = logger.Named("backoff")

// Defaults shared by the counting strategies.
const (
	DefaultMaxTries  = 10
	DefaultWarnAfter = 6
)

// Retrier repeats an operation until it succeeds, fails with a permanent
// error, or runs out of attempts.
type Retrier struct {
	// Transient reports whether err is worth another attempt. A nil
	// Transient treats every error as permanent.
	Transient func(err error) bool

	// MaxTries bounds the number of attempts. Zero means no bound.
	MaxTries int

	// WarnAfter is the number of failures after which each further failure
	// is logged as a warning. Zero disables the warning.
	WarnAfter int

	// Delay returns the wait before the next attempt, given the number of
	// failures so far and the latest error. A nil Delay retries at once.
	Delay func(tries int, err error) time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Retrier that retries transient errors forever without
// waiting.
func New(transient func(error) bool) *Retrier {
	return &Retrier{Transient: transient}
}

// NewCounting returns a Retrier that gives up after maxTries attempts.
func NewCounting(transient func(error) bool, maxTries, warnAfter int) *Retrier {
	return &Retrier{Transient: transient, MaxTries: maxTries, WarnAfter: warnAfter}
}

// NewSleeping returns a counting Retrier that waits one second between
// attempts.
func NewSleeping(transient func(error) bool) *Retrier {
	r := NewCounting(transient, DefaultMaxTries, DefaultWarnAfter)
	r.Delay = func(int, error) time.Duration { return time.Second }
	return r
}

// Exponential configures the delay of NewExponential.
type Exponential struct {
	// Base is the unit of delay.
	Base time.Duration
	// Ceiling caps the exponent.
	Ceiling int
	// Fuzz randomises each delay by up to this fraction either way.
	Fuzz float64
}

// DefaultExponential is a one second base, an exponent capped at 7 and
// twenty percent fuzz.
var DefaultExponential = Exponential{Base: time.Second, Ceiling: 7, Fuzz: 0.2}

// Compute returns base*(2^min(tries,ceiling)-1), fuzzed.
func (e Exponential) Compute(tries int) time.Duration {
	d := float64(e.Base) * (math.Pow(2, float64(min(tries, e.Ceiling))) - 1)
	if e.Fuzz > 0 {
		diff := d * e.Fuzz
		d += -diff + 2*rand.Float64()*diff
	}
	return time.Duration(d)
}

// NewExponential returns a counting Retrier whose delay doubles with every
// failure.
func NewExponential(transient func(error) bool, e Exponential) *Retrier {
	r := NewCounting(transient, DefaultMaxTries, DefaultWarnAfter)
	r.Delay = func(tries int, _ error) time.Duration { return e.Compute(tries) }
	return r
}

// Run calls op until it returns nil or an error that should not be retried.
// The last error is returned.
func (r *Retrier) Run(ctx context.Context, op func(ctx context.Context) error) error {
	s := &schedule{delay: r.Delay}
	var b cbackoff.BackOff = s
	if r.MaxTries > 0 {
		b = cbackoff.WithMaxRetries(b, uint64(r.MaxTries-1))
	}
	b = cbackoff.WithContext(b, ctx)

	var last error
	attempts := 0
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		log.Debug("attempt failed: %v", err)
		last, s.err = err, err
		if r.Transient == nil || !r.Transient(err) {
			return cbackoff.Permanent(err)
		}
		return err
	}
	notify := func(_ error, next time.Duration) {
		if r.WarnAfter > 0 && s.tries >= r.WarnAfter {
			log.Warn("backoff failed, delaying %s (iterations=%d)", next, s.tries)
		}
	}

	var timer cbackoff.Timer
	if r.Sleep != nil {
		timer = &sleepTimer{ctx: ctx, sleep: r.Sleep}
	}
	err := cbackoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err != nil && last != nil && ctx.Err() != nil {
		return last
	}
	if err != nil && r.MaxTries > 0 && attempts >= r.MaxTries {
		log.Debug("not proceeding: %d attempts reached the maximum of %d", attempts, r.MaxTries)
	}
	return err
}

// schedule is the BackOff behind Run. It counts failures and asks the
// Retrier's Delay for each wait.
type schedule struct {
	delay func(tries int, err error) time.Duration
	tries int
	err   error
}

func (s *schedule) NextBackOff() time.Duration {
	s.tries++
	if s.delay == nil {
		return 0
	}
	return s.delay(s.tries, s.err)
}

func (s *schedule) Reset() {
	s.tries = 0
	s.err = nil
}

// sleepTimer fires once sleep returns without error.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if t.sleep(t.ctx, d) == nil {
		t.c <- time.Now()
	}
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.c
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var v T
	err := r.Run(ctx, func(ctx context.Context) error {
		var err error
		v, err = op(ctx)
		return err
	})
	return v, err
}
