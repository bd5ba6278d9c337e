// Package retry runs stage operations under a bounded attempt budget.
//
// Every stage that talks to an external backend funnels through Do, which
// applies linear backoff between attempts, abandons attempts that outlive
// their per-attempt deadline, and fires an optional hook when a failure
// looks like a dropped connection. The executor performs no I/O of its own;
// callers supply the operation and receive either its result or an
// ExhaustedError carrying the final failure.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/logging"
	"murmur/internal/services"
)

// Policy bounds a stage's attempts.
type Policy struct {
	// MaxAttempts is the total number of invocations allowed, including the
	// first. Values below 1 behave as 1.
	MaxAttempts int
	// Backoff is the base delay between attempts; the wait before retrying
	// attempt n+1 is Backoff × n.
	Backoff time.Duration
	// Timeout bounds a single attempt. Zero disables the per-attempt
	// deadline; the parent context still applies.
	Timeout time.Duration
}

// Executor applies a Policy to operations. Construct with New and share
// freely; Do is safe for concurrent use.
type Executor struct {
	policy            Policy
	logger            *slog.Logger
	sleeper           func(time.Duration)
	onConnectionError func()
}

// Option customizes the executor.
type Option func(*Executor)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(e *Executor) {
		e.sleeper = sleeper
	}
}

// WithConnectionErrorHook registers a callback invoked whenever an attempt
// fails with a connection-class error. Session owners use this to tear down
// a wedged connection before the next attempt dials fresh.
func WithConnectionErrorHook(hook func()) Option {
	return func(e *Executor) {
		e.onConnectionError = hook
	}
}

// New constructs an executor for the supplied policy.
func New(policy Policy, opts ...Option) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff < 0 {
		policy.Backoff = 0
	}
	if policy.Timeout < 0 {
		policy.Timeout = 0
	}
	executor := &Executor{
		policy: policy,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Policy returns the executor's attempt budget.
func (e *Executor) Policy() Policy {
	return e.policy
}

// ExhaustedError reports that every allowed attempt failed. It unwraps to
// the last attempt's error so marker classification still works.
type ExhaustedError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type attemptResult[T any] struct {
	value T
	err   error
}

// Do runs op under the executor's policy and returns its result. The
// operation is invoked at most Policy.MaxAttempts times. A retryable
// failure sleeps Backoff × attempt before the next try; terminal failures
// (parent cancellation, validation or configuration errors, an unavailable
// backend) return immediately. When the budget is spent the last error is
// returned wrapped in *ExhaustedError.
func Do[T any](ctx context.Context, e *Executor, stage string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if op == nil {
		return zero, services.Wrap(services.ErrConfiguration, stage, "execute", "operation required", nil)
	}

	attempts := e.policy.MaxAttempts
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := runAttempt(ctx, e, op)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("attempt succeeded after retries",
					logging.String(logging.FieldStage, stage),
					logging.Int(logging.FieldAttempt, attempt),
					logging.Int(logging.FieldMaxAttempts, attempts),
				)
			}
			return value, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		e.logger.Warn("attempt failed",
			logging.String(logging.FieldStage, stage),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int(logging.FieldMaxAttempts, attempts),
			logging.Error(err),
		)

		if terminal(err) {
			return zero, err
		}

		if services.ConnectionRelated(err) && e.onConnectionError != nil {
			e.onConnectionError()
		}

		if attempt >= attempts {
			break
		}

		delay := e.policy.Backoff * time.Duration(attempt)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Stage: stage, Attempts: attempts, Err: lastErr}
}

// runAttempt executes a single invocation of op, applying the per-attempt
// deadline. The operation runs on its own goroutine so a callee that
// ignores cancellation is abandoned when the deadline fires; its eventual
// result lands in a buffered channel and is discarded.
func runAttempt[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attemptCtx := ctx
	cancel := func() {}
	if e.policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
	}
	defer cancel()

	results := make(chan attemptResult[T], 1)
	go func() {
		value, err := op(attemptCtx)
		results <- attemptResult[T]{value: value, err: err}
	}()

	select {
	case res := <-results:
		return res.value, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, services.Wrap(services.ErrTimeout, "", "attempt", fmt.Sprintf("no result within %s", e.policy.Timeout), context.DeadlineExceeded)
	}
}

// terminal reports whether err should stop the attempt loop immediately.
// Unclassified errors stay retryable; the caller's backends fail in enough
// novel ways that optimistic retries recover more cycles than they waste.
func terminal(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrConfiguration),
		errors.Is(err, services.ErrUnavailable):
		return true
	default:
		return false
	}
}

func (e *Executor) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if e.sleeper != nil {
		e.sleeper(delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
