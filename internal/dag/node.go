package dag

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/asynckit/flowrace/internal/config"
	"github.com/asynckit/flowrace/internal/future"
	"github.com/zclconf/go-cty/cty"
)

// NodeType distinguishes between different kinds of nodes in the graph.
type NodeType int

const (
	// StepNode represents a node that executes a runner handler.
	StepNode NodeType = iota
	// ResourceNode represents a node that manages a stateful resource.
	ResourceNode
	// RaceNode represents a node that awaits the first settlement among a
	// set of candidate step nodes and cancels the rest.
	RaceNode
)

func (t NodeType) String() string {
	switch t {
	case StepNode:
		return "step"
	case ResourceNode:
		return "resource"
	case RaceNode:
		return "race"
	}
	return "unknown"
}

// State represents the execution state of a node in the graph.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies to complete.
	Pending State = iota
	// Running indicates the node is currently being executed by a worker.
	Running
	// Done indicates the node has completed execution successfully.
	Done
	// Failed indicates the node has failed execution.
	Failed
	// Skipped indicates the node was never executed because an upstream
	// node failed or the run was canceled.
	Skipped
	// Canceled indicates the node was canceled after losing a race. Unlike
	// Failed, a Canceled node does not fail the run.
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Node represents a single vertex in the execution graph.
type Node struct {
	// ID is the unique identifier, e.g. "step.http_request.login",
	// "resource.http_client.shared" or "race.fastest_mirror".
	ID string
	// Name is the human-readable instance name from the configuration.
	Name string
	// Type distinguishes between step, resource and race nodes.
	Type NodeType

	// StepConfig holds the configuration for a step node. Nil otherwise.
	StepConfig *config.Step
	// ResourceConfig holds the configuration for a resource node. Nil otherwise.
	ResourceConfig *config.Resource
	// RaceConfig holds the configuration for a race node. Nil otherwise.
	RaceConfig *config.Race

	// Deps holds the nodes that this node waits on before becoming ready.
	Deps map[string]*Node
	// Dependents holds the nodes that wait on this node.
	Dependents map[string]*Node
	// Racers holds the candidate step nodes of a race node, in `of` order.
	// Racers are not Deps: a race becomes ready independently of them and
	// awaits their futures instead of the scheduler's counters.
	Racers []*Node

	// Error stores any error that occurred during the node's execution.
	Error error
	// Output stores the result of the node's execution for downstream nodes.
	// For step and race nodes it is a cty.Value; for resources it is the
	// live resource object.
	Output any

	// Promise settles Future when the node reaches a terminal state. Race
	// nodes await these futures rather than dependency counters.
	Promise *future.Promise[cty.Value]
	// Future is the read side of Promise.
	Future *future.Future[cty.Value]

	// depCount is an atomic counter for unmet dependencies, used by the scheduler.
	depCount atomic.Int32
	// state is the node's current execution state, managed atomically.
	state atomic.Int32
	// demanded records that a race has demanded this lazy node, so the
	// scheduler enqueues it once its dependencies are met.
	demanded atomic.Bool
	// finalOnce ensures the node's terminal bookkeeping runs exactly once,
	// whether it finishes, fails, is skipped or loses a race.
	finalOnce sync.Once
	// enqueueOnce guards against the demand path and the dependency
	// counter both handing the node to the worker pool.
	enqueueOnce sync.Once
	// cancelRun holds the context.CancelFunc for an in-flight execution.
	cancelRun atomic.Value
}

// Lazy reports whether this node is a lazy step. Lazy steps are only
// scheduled once a race demands them.
func (n *Node) Lazy() bool {
	return n.Type == StepNode && n.StepConfig != nil && n.StepConfig.Lazy
}

// SetInitialCounters primes the dependency counter after linking.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}

// DepCount atomically returns the current number of unmet dependencies.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}

// DecrementDepCount atomically decrements the dependency counter and returns
// the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// GetState atomically retrieves the node's execution state.
func (n *Node) GetState() State {
	return State(n.state.Load())
}

// Demand marks a lazy node as wanted by a race. It reports whether this call
// was the first demand.
func (n *Node) Demand() bool {
	return n.demanded.CompareAndSwap(false, true)
}

// Demanded reports whether a race has demanded this node.
func (n *Node) Demanded() bool {
	return n.demanded.Load()
}

// Finalize runs f exactly once across all paths that drive the node into a
// terminal state. It reports whether f ran in this call.
func (n *Node) Finalize(f func()) bool {
	ran := false
	n.finalOnce.Do(func() {
		f()
		ran = true
	})
	return ran
}

// EnqueueOnce runs f the first time the node is handed to the scheduler
// and never again.
func (n *Node) EnqueueOnce(f func()) {
	n.enqueueOnce.Do(f)
}

// StoreCancel records the cancel function of the node's in-flight execution
// so a race can interrupt a losing node.
func (n *Node) StoreCancel(cancel context.CancelFunc) {
	n.cancelRun.Store(cancel)
}

// CancelRunning interrupts the node's in-flight execution, if any.
func (n *Node) CancelRunning() {
	if cancel, ok := n.cancelRun.Load().(context.CancelFunc); ok {
		cancel()
	}
}
