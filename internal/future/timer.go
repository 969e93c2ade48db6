package future

import (
	"context"
	"time"
)

// After returns an eager future that fulfills with the fire time once d has
// elapsed. The timer starts immediately. Canceling the future, or canceling
// ctx, stops the timer and rejects the future.
//
// Racing an After future against another future is the idiomatic way to
// bound the other future with a deadline.
func After(ctx context.Context, d time.Duration) *Future[time.Time] {
	return Go(ctx, func(ctx context.Context) (time.Time, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case t := <-timer.C:
			return t, nil
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	})
}
