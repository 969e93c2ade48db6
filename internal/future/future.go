package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled is the rejection error of a future whose Cancel method was
// called before it settled on its own.
var ErrCanceled = errors.New("future canceled")

// A Future is the receiving end of a one-shot asynchronous computation.
// It settles exactly once: fulfilled with a value, or rejected with an error.
// All methods are safe for concurrent use.
type Future[T any] struct {
	done chan struct{}

	startOnce  sync.Once
	settleOnce sync.Once

	// start launches the underlying computation. Nil for promise-backed and
	// pre-settled futures, which have no computation of their own.
	start func()
	// cancel tears down the computation's context. Nil when there is nothing
	// to tear down.
	cancel context.CancelFunc

	// value and err are written exactly once, before done is closed, and are
	// only read after done is closed.
	value T
	err   error
}

// A Promise is the producing end of a [Future]. Resolve and Reject settle the
// future; only the first settlement takes effect.
type Promise[T any] struct {
	f *Future[T]
}

// New returns a connected promise/future pair.
func New[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return &Promise[T]{f: f}, f
}

// Resolve fulfills the future with v. It reports whether this call settled
// the future.
func (p *Promise[T]) Resolve(v T) bool {
	return p.f.settle(v, nil)
}

// Reject settles the future with err. It reports whether this call settled
// the future.
func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.f.settle(zero, err)
}

// Future returns the future this promise settles.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// Go runs fn in a new goroutine immediately and returns a future for its
// result. The goroutine's context is canceled once the future settles.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := Lazy(ctx, fn)
	f.Start()
	return f
}

// Lazy returns a future for fn without running it. The computation starts on
// the first call to Start or Await, or when the future enters a [Race] or
// [All]. A lazy future that is never demanded never runs.
func Lazy[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.start = func() {
		go func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					var zero T
					f.settle(zero, newPanicError(r))
				}
			}()
			v, err := fn(runCtx)
			f.settle(v, err)
		}()
	}
	return f
}

// Resolved returns a future that is already fulfilled with v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.settle(v, nil)
	return f
}

// Rejected returns a future that is already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	var zero T
	f.settle(zero, err)
	return f
}

func (f *Future[T]) settle(v T, err error) bool {
	won := false
	f.settleOnce.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
		won = true
	})
	if won && f.cancel != nil {
		f.cancel()
	}
	return won
}

// Start demands a lazy future. It is a no-op on eager, promise-backed and
// settled futures, and on repeated calls.
func (f *Future[T]) Start() {
	if f.start != nil {
		f.startOnce.Do(f.start)
	}
}

// Await demands the future and blocks until it settles or ctx is done.
// Awaiting an already settled future returns immediately.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	f.Start()
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Poll is a non-blocking readiness probe. The boolean reports whether the
// future has settled; value and error are only meaningful when it has.
func (f *Future[T]) Poll() (T, error, bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Done returns a channel that is closed once the future settles. Done does
// not demand a lazy future.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Err returns the settlement error: nil while the future is pending or when
// it fulfilled, the rejection error otherwise.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Cancel settles the future with [ErrCanceled] and cancels its computation's
// context. The computation itself stops at its next context check; Cancel
// does not wait for it. Canceling a settled future is a no-op.
func (f *Future[T]) Cancel() {
	// Mark the lazy start as consumed so a later Await cannot launch work
	// for a future that is already dead.
	f.startOnce.Do(func() {})
	var zero T
	f.settle(zero, ErrCanceled)
}
