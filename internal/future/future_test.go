package future

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGoResolves(t *testing.T) {
	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestGoRejects(t *testing.T) {
	boom := errors.New("boom")
	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	})

	_, err := f.Await(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestLazyRunsOnlyWhenDemanded(t *testing.T) {
	var ran atomic.Bool
	f := Lazy(context.Background(), func(ctx context.Context) (string, error) {
		ran.Store(true)
		return "done", nil
	})

	time.Sleep(20 * time.Millisecond)
	require.False(t, ran.Load(), "lazy future ran before being demanded")

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "done", v)
	require.True(t, ran.Load())
}

func TestAwaitSettledFutureReturnsImmediately(t *testing.T) {
	f := Resolved("cached")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A done context must not mask a settlement that already happened.
	v, err := f.Await(ctx)
	if err != nil {
		// Await may legitimately observe the canceled context first; the
		// settled result is still reachable through Poll.
		v, err, ok := f.Poll()
		require.True(t, ok)
		require.NoError(t, err)
		require.Equal(t, "cached", v)
		return
	}
	require.Equal(t, "cached", v)
}

func TestAwaitHonorsContext(t *testing.T) {
	p, f := New[int]()
	defer p.Reject(ErrCanceled)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoll(t *testing.T) {
	p, f := New[int]()

	_, _, ok := f.Poll()
	require.False(t, ok)

	p.Resolve(7)

	v, err, ok := f.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestPromiseFirstSettlementWins(t *testing.T) {
	p, f := New[int]()

	require.True(t, p.Resolve(1))
	require.False(t, p.Resolve(2))
	require.False(t, p.Reject(errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestCancelSettlesImmediately(t *testing.T) {
	started := make(chan struct{})
	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started

	f.Cancel()

	_, err := f.Await(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
}

func TestCancelUnstartedLazyNeverRuns(t *testing.T) {
	var ran atomic.Bool
	f := Lazy(context.Background(), func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 0, nil
	})

	f.Cancel()

	_, err := f.Await(context.Background())
	require.ErrorIs(t, err, ErrCanceled)
	require.False(t, ran.Load(), "canceled lazy future still ran")
}

func TestPanicBecomesRejection(t *testing.T) {
	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		panic("kaboom")
	})

	_, err := f.Await(context.Background())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kaboom", pe.Value)
	require.NotEmpty(t, pe.Stack)
}

func TestPanicErrorUnwrapsErrorValues(t *testing.T) {
	boom := errors.New("boom")
	f := Go(context.Background(), func(ctx context.Context) (int, error) {
		panic(boom)
	})

	_, err := f.Await(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRejectedAndResolved(t *testing.T) {
	boom := errors.New("boom")

	_, err := Rejected[int](boom).Await(context.Background())
	require.ErrorIs(t, err, boom)

	v, err := Resolved(99).Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 99, v)
}
