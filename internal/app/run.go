package app

import (
	"context"
	"fmt"
	"time"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/asynckit/flowrace/internal/executor"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
)

// Run executes the loaded flow. On success it prints the transcript footer
// with the wall-clock duration of the execution.
func (a *App) Run(ctx context.Context) error {
	runID := ksuid.New().String()
	logger := a.logger.With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.")

	if a.appConfig.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.appConfig.HealthcheckPort)
		defer a.closeHealthcheckServer(ctx)
	}

	logger.Debug("Building dependency graph from config model...")
	graph, err := dag.Build(ctx, a.config, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	if len(graph.Nodes) == 0 {
		logger.Warn("No nodes found in flow, execution not required.")
		return nil
	}

	logger.Info("🚀 Starting concurrent execution...", "nodes", len(graph.Nodes))
	started := time.Now()

	exec := executor.New(graph, a.registry, a.converter, a.appConfig.WorkerCount)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exec.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	elapsed := time.Since(started)
	logger.Info("🏁 Execution finished.", "duration", elapsed.Round(time.Microsecond))

	fmt.Fprintf(a.outW, "== Unit (%s)\n", elapsed.Round(time.Microsecond))
	logger.Debug("App.Run method finished.")
	return nil
}
