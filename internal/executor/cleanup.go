package executor

import (
	"context"

	"github.com/asynckit/flowrace/internal/ctxlog"
)

// pushCleanup records a resource teardown to run when the graph finishes.
func (e *Executor) pushCleanup(f func()) {
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()
	e.cleanupStack = append(e.cleanupStack, f)
}

// executeCleanupStack destroys resources in reverse creation order. It runs
// even when the graph fails, so partially created runs still tear down.
func (e *Executor) executeCleanupStack(ctx context.Context) {
	e.cleanupMu.Lock()
	stack := e.cleanupStack
	e.cleanupStack = nil
	e.cleanupMu.Unlock()

	if len(stack) == 0 {
		return
	}
	ctxlog.FromContext(ctx).Debug("Executing cleanup stack.", "count", len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i]()
	}
}
