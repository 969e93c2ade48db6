package future

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// A Waiter is the type-erased view of a [Future], used to race futures whose
// result types differ.
type Waiter interface {
	Start()
	Cancel()
	Done() <-chan struct{}
	Err() error
}

// Race demands every future and returns the index and result of the first
// one to settle, fulfilled or rejected alike. The losing futures are
// canceled; Race does not wait for them to unwind. The tie-break between
// futures that settle simultaneously is unspecified.
//
// If ctx is done before any future settles, every future is canceled and
// Race returns -1 with the context's error.
func Race[T any](ctx context.Context, futures ...*Future[T]) (int, T, error) {
	var zero T
	waiters := make([]Waiter, len(futures))
	for i, f := range futures {
		waiters[i] = f
	}

	i, err := RaceAny(ctx, waiters...)
	if i < 0 {
		return i, zero, err
	}
	v, err, _ := futures[i].Poll()
	return i, v, err
}

// RaceAny is [Race] over futures of mixed result types. It returns the index
// of the first future to settle and that future's settlement error; the
// winner's value, if any, is read from the concrete future.
func RaceAny(ctx context.Context, futures ...Waiter) (int, error) {
	if len(futures) == 0 {
		return -1, fmt.Errorf("race requires at least one future")
	}

	for _, f := range futures {
		f.Start()
	}

	first := make(chan int, len(futures))
	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	for i, f := range futures {
		go func() {
			select {
			case <-f.Done():
				first <- i
			case <-watchCtx.Done():
			}
		}()
	}

	select {
	case i := <-first:
		for j, f := range futures {
			if j != i {
				f.Cancel()
			}
		}
		return i, futures[i].Err()
	case <-ctx.Done():
		// A future that settled just as ctx expired still counts as the
		// winner: first settlement beats the context. The watcher goroutine
		// may not have reported it yet, so check the futures directly.
		for i, f := range futures {
			select {
			case <-f.Done():
				for j, g := range futures {
					if j != i {
						g.Cancel()
					}
				}
				return i, f.Err()
			default:
			}
		}
		for _, f := range futures {
			f.Cancel()
		}
		return -1, ctx.Err()
	}
}

// All demands every future and awaits them all. On success it returns the
// values in the order the futures were given. The first rejection wins:
// remaining futures are canceled and their results discarded.
func All[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, f := range futures {
			f.Cancel()
		}
		return nil, err
	}
	return results, nil
}
