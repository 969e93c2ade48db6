package executor

import (
	"sync"

	"github.com/asynckit/flowrace/internal/config"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/asynckit/flowrace/internal/registry"
)

// DefaultWorkers is the worker pool size used when the caller does not
// specify one.
const DefaultWorkers = 10

// Executor walks a built graph with a pool of workers, running step
// handlers, creating resources and settling races.
type Executor struct {
	graph     *dag.Graph
	registry  *registry.Registry
	converter config.Converter

	// numWorkers sizes the worker pool. Race waits run off-worker, so the
	// pool only bounds step and resource execution.
	numWorkers int

	wg sync.WaitGroup

	// resourceInstances maps resource node IDs to their live objects for
	// injection into step handlers.
	resourceInstances sync.Map

	cleanupMu    sync.Mutex
	cleanupStack []func()
}

// New creates an executor for the given graph.
func New(graph *dag.Graph, r *registry.Registry, conv config.Converter, numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &Executor{
		graph:      graph,
		registry:   r,
		converter:  conv,
		numWorkers: numWorkers,
	}
}
