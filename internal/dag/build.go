package dag

import (
	"context"
	"fmt"

	"github.com/asynckit/flowrace/internal/config"
	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/future"
	"github.com/asynckit/flowrace/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Build constructs a complete, validated execution graph from a config model.
func Build(ctx context.Context, model *config.Model, r *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := &Graph{Nodes: make(map[string]*Node)}

	// First pass: create all nodes for steps, resources and races.
	createNodes(ctx, model.Flow, graph)
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link dependencies and resolve race candidates.
	if err := linkNodes(ctx, graph, r); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: initialize counters.
	for _, node := range graph.Nodes {
		node.SetInitialCounters()
	}
	logger.Debug("Build: Counter initialization complete.")

	if err := validateRaces(graph); err != nil {
		return nil, err
	}
	logger.Debug("Build: Race and lazy step validation passed.")

	if err := graph.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	logger.Debug("Build: Graph construction successful.")
	return graph, nil
}

// createNodes performs the first pass of graph creation.
func createNodes(ctx context.Context, flow *config.Flow, graph *Graph) {
	logger := ctxlog.FromContext(ctx)
	for _, s := range flow.Steps {
		id := fmt.Sprintf("step.%s.%s", s.RunnerType, s.Name)
		if _, exists := graph.Nodes[id]; exists {
			logger.Warn("Duplicate step definition found, it will be overwritten.", "id", id)
		}
		graph.Nodes[id] = newNode(id, s.Name, StepNode, func(n *Node) { n.StepConfig = s })
	}
	for _, r := range flow.Resources {
		id := fmt.Sprintf("resource.%s.%s", r.AssetType, r.Name)
		if _, exists := graph.Nodes[id]; exists {
			logger.Warn("Duplicate resource definition found, it will be overwritten.", "id", id)
		}
		graph.Nodes[id] = newNode(id, r.Name, ResourceNode, func(n *Node) { n.ResourceConfig = r })
	}
	for _, rc := range flow.Races {
		id := fmt.Sprintf("race.%s", rc.Name)
		if _, exists := graph.Nodes[id]; exists {
			logger.Warn("Duplicate race definition found, it will be overwritten.", "id", id)
		}
		graph.Nodes[id] = newNode(id, rc.Name, RaceNode, func(n *Node) { n.RaceConfig = rc })
	}
}

func newNode(id, name string, t NodeType, configure func(*Node)) *Node {
	n := &Node{
		ID:         id,
		Name:       name,
		Type:       t,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
	n.Promise, n.Future = future.New[cty.Value]()
	configure(n)
	return n
}

// validateRaces enforces the structural rules around races and lazy steps:
// a step belongs to at most one race, since losing a race cancels the step
// and a shared racer would let one race cancel work another still needs;
// nothing may depend on a lazy step through the scheduler; and every lazy
// step must be a racer somewhere, otherwise it could never run.
func validateRaces(graph *Graph) error {
	raced := make(map[string]string)
	for _, n := range graph.Nodes {
		if n.Type != RaceNode {
			continue
		}
		for _, racer := range n.Racers {
			if other, ok := raced[racer.ID]; ok {
				return fmt.Errorf("step '%s' is raced by both '%s' and '%s'; a step may belong to at most one race", racer.ID, other, n.ID)
			}
			raced[racer.ID] = n.ID
		}
	}

	for _, n := range graph.Nodes {
		for _, dep := range n.Deps {
			if dep.Lazy() {
				return fmt.Errorf("node '%s' depends on lazy step '%s'; lazy steps may only be referenced in a race's 'of' list", n.ID, dep.ID)
			}
		}
		if _, ok := raced[n.ID]; n.Lazy() && !ok {
			return fmt.Errorf("lazy step '%s' is not referenced by any race and would never run", n.ID)
		}
	}
	return nil
}
