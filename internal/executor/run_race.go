package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/asynckit/flowrace/internal/future"
	"github.com/zclconf/go-cty/cty"
)

// runRaceNode awaits the first settlement among a race's candidate steps
// and cancels the rest. The winner is the first racer to settle, even when
// it settles with an error.
func (e *Executor) runRaceNode(ctx context.Context, n *dag.Node, readyChan chan *dag.Node) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("race", n.ID)
	logger.Info("🏎️ Racing steps", "count", len(n.Racers))
	started := time.Now()

	for _, racer := range n.Racers {
		e.demand(racer, readyChan)
	}

	waiters := make([]future.Waiter, len(n.Racers))
	for i, racer := range n.Racers {
		waiters[i] = racer.Future
	}

	idx, err := future.RaceAny(ctx, waiters...)
	if idx < 0 {
		e.releaseRacers(ctx, n, nil)
		return cty.NilVal, err
	}
	winner := n.Racers[idx]
	e.releaseRacers(ctx, n, winner)

	if err != nil {
		return cty.NilVal, fmt.Errorf("race '%s': winner '%s' settled with error: %w", n.Name, winner.ID, err)
	}

	out, _, _ := winner.Future.Poll()
	logger.Info("🏁 Race settled", "winner", winner.ID, "duration", time.Since(started).Round(time.Millisecond))
	return cty.ObjectVal(map[string]cty.Value{
		"output": out,
		"winner": cty.StringVal(strings.TrimPrefix(winner.ID, "step.")),
	}), nil
}

// demand asks the scheduler to run a racer. Non-lazy racers are already on
// their normal path, so this only matters for lazy ones: the first race to
// demand a lazy step is what causes it to run at all.
func (e *Executor) demand(n *dag.Node, readyChan chan *dag.Node) {
	if n.Lazy() {
		n.Demand()
	}
	if n.DepCount() == 0 {
		n.EnqueueOnce(func() { readyChan <- n })
	}
}
