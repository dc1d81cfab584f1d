package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Attempt describes one failed attempt. Delay is the wait before the next
// attempt, or zero when no further attempt will be made.
type Attempt struct {
	Operation string
	Number    int
	Err       error
	Delay     time.Duration
}

type options struct {
	name     string
	observer func(Attempt)
}

type Option func(*options)

// WithName names the operation in timeout and exhaustion errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithObserver is called after every failed attempt, on the caller's
// goroutine, before the backoff sleep.
func WithObserver(fn func(Attempt)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// Do runs op until it succeeds, fails permanently, ctx is done or
// p.MaxAttempts attempts have failed. Attempts never overlap.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	var zero T

	if err := p.Validate(); err != nil {
		return zero, err
	}

	o := options{name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		result   T
		attempts int
		lastErr  error
	)

	retries := 0
	backoff := goretry.WithMaxRetries(uint64(p.MaxAttempts-1), goretry.BackoffFunc(func() (time.Duration, bool) {
		retries++
		return p.Delay(retries), false
	}))

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		v, err := attempt(ctx, p.Timeout, o.name, op)
		if err == nil {
			result = v
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		permanent := IsPermanent(err)

		if o.observer != nil {
			a := Attempt{Operation: o.name, Number: attempts, Err: err}
			if !permanent && attempts < p.MaxAttempts {
				a.Delay = p.Delay(attempts)
			}
			o.observer(a)
		}

		if permanent {
			return err
		}
		return goretry.RetryableError(err)
	})

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return zero, ctx.Err()
	case IsPermanent(err):
		var perm *permanentError
		errors.As(err, &perm)
		return zero, perm.err
	case attempts >= p.MaxAttempts:
		return zero, &ExhaustedError{Operation: o.name, Attempts: attempts, LastErr: lastErr}
	default:
		return zero, err
	}
}

// attempt races one call of op against timeout. op receives a context that
// is cancelled when the attempt is abandoned.
func attempt[T any](ctx context.Context, timeout time.Duration, name string, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- outcome{v, err}
	}()

	var zero T

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(out.err, context.DeadlineExceeded) && attemptCtx.Err() != nil {
			return zero, &TimeoutError{Operation: name, Timeout: timeout}
		}
		return out.v, out.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{Operation: name, Timeout: timeout}
	}
}

// Coordinator applies one policy and observer to many operations.
type Coordinator struct {
	policy   Policy
	observer func(Attempt)
}

func NewCoordinator(p Policy, observer func(Attempt)) (*Coordinator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{policy: p, observer: observer}, nil
}

// Execute runs op under the coordinator's policy.
func (c *Coordinator) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	opts := []Option{WithName(name)}
	if c.observer != nil {
		opts = append(opts, WithObserver(c.observer))
	}

	_, err := Do(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
