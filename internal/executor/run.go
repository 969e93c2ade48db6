package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/asynckit/flowrace/internal/future"
	"github.com/zclconf/go-cty/cty"
)

// Run executes the entire graph concurrently and returns an error if any
// node fails. It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	defer e.executeCleanupStack(ctx)

	readyChan := make(chan *dag.Node, len(e.graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, node := range e.graph.Nodes {
		if node.DepCount() == 0 && !node.Lazy() {
			node.EnqueueOnce(func() { readyChan <- node })
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(e.graph.Nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}

	logger.Info("Waiting for all nodes to complete...")
	e.wg.Wait()
	logger.Info("All nodes completed.")
	close(readyChan)

	var failedNodes []string
	var rootCauseError error
	for _, node := range e.graph.Nodes {
		if node.GetState() != dag.Failed {
			continue
		}
		logger.Error("Node failed execution.", "nodeID", node.ID, "error", node.Error)
		if node.Error != nil && !errors.Is(node.Error, context.Canceled) {
			failedNodes = append(failedNodes, node.ID)
			if rootCauseError == nil {
				rootCauseError = node.Error
			}
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	return nil
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *dag.Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.ID)

		if ctx.Err() != nil {
			e.finalizeSkipped(ctx, n, ctx.Err())
			continue
		}
		if n.GetState() != dag.Pending {
			// A race settled this node while it sat in the queue.
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		n.SetState(dag.Running)

		if n.Type == dag.RaceNode {
			// A race only waits on its racers; waiting must not occupy a
			// worker or a flow with many races could starve the pool of the
			// very workers its racers need.
			node := n
			go func() {
				out, err := e.runRaceNode(ctx, node, readyChan)
				e.settle(ctx, node, out, err, cancel, readyChan)
			}()
			continue
		}

		var out cty.Value
		var err error
		switch n.Type {
		case dag.ResourceNode:
			out, err = e.runResourceNode(ctx, n)
		case dag.StepNode:
			out, err = e.runStepNode(ctx, n)
		}
		e.settle(ctx, n, out, err, cancel, readyChan)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// settle routes a node's execution outcome to the right finalizer. An error
// that mirrors the run context's own termination is a cancellation, not a
// node failure: the run is ending, the node is a casualty. A per-step
// timeout fires while the run context is still live, so it stays a failure.
func (e *Executor) settle(ctx context.Context, n *dag.Node, out cty.Value, err error, cancel context.CancelFunc, readyChan chan *dag.Node) {
	logger := ctxlog.FromContext(ctx).With("nodeID", n.ID)
	if err != nil {
		runEnding := ctx.Err() != nil && errors.Is(err, ctx.Err())
		if errors.Is(err, future.ErrCanceled) || errors.Is(err, context.Canceled) || runEnding {
			logger.Debug("Node execution canceled.", "error", err)
			e.finalizeCanceled(ctx, n, err)
			return
		}
		logger.Error("Node execution failed.", "error", err)
		e.finalizeFailed(ctx, n, err, cancel)
		return
	}
	logger.Debug("Node execution succeeded.")
	e.finalizeDone(ctx, n, out, readyChan)
}

// finalizeDone settles a node that ran to completion, unlocking dependents.
// If a race canceled the node between its handler returning and settlement,
// the cancellation wins.
func (e *Executor) finalizeDone(ctx context.Context, n *dag.Node, out cty.Value, readyChan chan *dag.Node) {
	n.Finalize(func() {
		if !n.Promise.Resolve(out) {
			n.SetState(dag.Canceled)
			n.Error = future.ErrCanceled
			e.skipDependents(ctx, n, dag.Canceled)
			e.wg.Done()
			return
		}
		n.SetState(dag.Done)
		if n.Type != dag.ResourceNode {
			n.Output = out
		}
		for _, dependent := range n.Dependents {
			if dependent.DecrementDepCount() == 0 {
				if !dependent.Lazy() || dependent.Demanded() {
					d := dependent
					d.EnqueueOnce(func() { readyChan <- d })
				}
			}
		}
		e.wg.Done()
	})
}

// finalizeFailed settles a failed node, cancels the run and skips all of
// the node's dependents.
func (e *Executor) finalizeFailed(ctx context.Context, n *dag.Node, err error, cancel context.CancelFunc) {
	n.Finalize(func() {
		n.SetState(dag.Failed)
		n.Error = err
		n.Promise.Reject(err)
		cancel()
		e.releaseRacers(ctx, n, nil)
		e.skipDependents(ctx, n, dag.Skipped)
		e.wg.Done()
	})
}

// finalizeCanceled settles a node that lost a race or was interrupted by
// run cancellation. Unlike a failure it does not cancel the run.
func (e *Executor) finalizeCanceled(ctx context.Context, n *dag.Node, err error) {
	n.Finalize(func() {
		n.SetState(dag.Canceled)
		n.Error = err
		n.Future.Cancel()
		n.CancelRunning()
		e.releaseRacers(ctx, n, nil)
		e.skipDependents(ctx, n, dag.Canceled)
		e.wg.Done()
	})
}

// finalizeSkipped settles a node that never ran because the run context was
// canceled before a worker reached it.
func (e *Executor) finalizeSkipped(ctx context.Context, n *dag.Node, err error) {
	n.Finalize(func() {
		ctxlog.FromContext(ctx).Warn("Context canceled, skipping node execution.", "nodeID", n.ID)
		n.SetState(dag.Skipped)
		n.Error = err
		n.Promise.Reject(err)
		e.releaseRacers(ctx, n, nil)
		e.skipDependents(ctx, n, dag.Skipped)
		e.wg.Done()
	})
}

// skipDependents recursively settles all downstream nodes that can no
// longer run. The state argument distinguishes an upstream failure from an
// upstream race loss; only the former contributes to the run's outcome.
func (e *Executor) skipDependents(ctx context.Context, n *dag.Node, state dag.State) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.Dependents {
		d := dependent
		d.Finalize(func() {
			logger.Warn("Skipping dependent node.", "nodeID", d.ID, "dependency", n.ID, "state", state.String())
			d.SetState(state)
			if state == dag.Canceled {
				d.Error = fmt.Errorf("%w: upstream '%s' lost its race", future.ErrCanceled, n.ID)
				d.Future.Cancel()
			} else {
				d.Error = fmt.Errorf("skipped due to upstream failure of '%s'", n.ID)
				d.Promise.Reject(d.Error)
			}
			e.releaseRacers(ctx, d, nil)
			e.skipDependents(ctx, d, state)
			e.wg.Done()
		})
	}
}

// releaseRacers settles every racer of a race node except the winner. It is
// a no-op for non-race nodes and for racers that already settled on their
// own. Lazy racers that were never demanded are settled here too, so the
// run can drain even when their race is skipped.
func (e *Executor) releaseRacers(ctx context.Context, race *dag.Node, winner *dag.Node) {
	if race.Type != dag.RaceNode {
		return
	}
	for _, racer := range race.Racers {
		if racer == winner {
			continue
		}
		r := racer
		r.Future.Cancel()
		r.CancelRunning()
		r.Finalize(func() {
			r.SetState(dag.Canceled)
			r.Error = future.ErrCanceled
			e.skipDependents(ctx, r, dag.Canceled)
			e.wg.Done()
		})
	}
}
