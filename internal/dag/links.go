package dag

import (
	"context"
	"fmt"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/registry"
	"github.com/hashicorp/hcl/v2"
)

// linkNodes performs the second pass, establishing dependency links.
func linkNodes(ctx context.Context, graph *Graph, r *registry.Registry) error {
	for _, node := range graph.Nodes {
		var dependsOn []string
		var expressions []hcl.Expression

		switch node.Type {
		case StepNode:
			dependsOn = node.StepConfig.DependsOn
			for _, expr := range node.StepConfig.Arguments {
				expressions = append(expressions, expr)
			}
			for _, expr := range node.StepConfig.Uses {
				expressions = append(expressions, expr)
			}
		case ResourceNode:
			dependsOn = node.ResourceConfig.DependsOn
			for _, expr := range node.ResourceConfig.Arguments {
				expressions = append(expressions, expr)
			}
		case RaceNode:
			dependsOn = node.RaceConfig.DependsOn
			if err := linkRacers(ctx, node, graph); err != nil {
				return err
			}
		}

		if err := linkExplicitDeps(ctx, node, dependsOn, graph); err != nil {
			return err
		}
		for _, expr := range expressions {
			if err := linkImplicitDeps(ctx, node, expr, graph, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// linkRacers resolves a race node's `of` list to step nodes. Racers are
// recorded on the node but deliberately not added as scheduler dependencies:
// the race settles with the first racer, not with all of them.
func linkRacers(ctx context.Context, node *Node, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)
	seen := make(map[string]bool)
	for _, addr := range node.RaceConfig.Of {
		racerID := "step." + addr
		racer, found := graph.Nodes[racerID]
		if !found {
			return fmt.Errorf("race '%s' references non-existent step '%s'", node.ID, addr)
		}
		if seen[racerID] {
			return fmt.Errorf("race '%s' lists step '%s' more than once", node.ID, addr)
		}
		seen[racerID] = true
		logger.Debug("Linking racer.", "race", node.ID, "racer", racerID)
		node.Racers = append(node.Racers, racer)
	}
	if len(node.Racers) == 0 {
		return fmt.Errorf("race '%s' has an empty 'of' list", node.ID)
	}
	return nil
}

// linkExplicitDeps resolves dependencies from a `depends_on` attribute.
func linkExplicitDeps(ctx context.Context, node *Node, dependsOn []string, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)
	for _, depAddr := range dependsOn {
		var depNode *Node
		var found bool
		for _, candidate := range []string{"step." + depAddr, "resource." + depAddr, depAddr} {
			if depNode, found = graph.Nodes[candidate]; found {
				break
			}
		}
		if !found {
			return fmt.Errorf("node '%s' depends on non-existent identifier '%s'", node.ID, depAddr)
		}
		if depNode.ID == node.ID {
			return fmt.Errorf("node '%s' depends on itself", node.ID)
		}

		if _, exists := node.Deps[depNode.ID]; !exists {
			logger.Debug("Linking explicit dependency.", "from", node.ID, "to", depNode.ID)
			node.Deps[depNode.ID] = depNode
			depNode.Dependents[node.ID] = node
		}
	}
	return nil
}

// linkImplicitDeps parses an expression for variable traversals to create
// dependency links.
func linkImplicitDeps(ctx context.Context, node *Node, expr hcl.Expression, graph *Graph, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	for _, traversal := range expr.Variables() {
		depID, ok := traversalToNodeID(traversal)
		if !ok {
			continue
		}
		depNode, ok := graph.Nodes[depID]
		if !ok {
			// This could be a reference to something else, like a variable.
			continue
		}

		// If referencing a step's output, validate it exists in the manifest.
		if depNode.Type == StepNode && len(traversal) > 3 {
			if outputAttr, isOutput := traversal[3].(hcl.TraverseAttr); isOutput && outputAttr.Name == "output" {
				if err := validateOutputReference(traversal, depNode, r); err != nil {
					return err
				}
			}
		}

		if _, exists := node.Deps[depID]; !exists {
			logger.Debug("Linking implicit dependency.", "from", node.ID, "to", depID)
			node.Deps[depID] = depNode
			depNode.Dependents[node.ID] = node
		}
	}
	return nil
}

// traversalToNodeID maps an HCL traversal onto a node ID. Step and resource
// references carry two address parts after the root, race references one.
func traversalToNodeID(traversal hcl.Traversal) (string, bool) {
	if len(traversal) < 2 {
		return "", false
	}
	switch traversal.RootName() {
	case "step", "resource":
		if len(traversal) < 3 {
			return "", false
		}
		typeAttr, typeOk := traversal[1].(hcl.TraverseAttr)
		nameAttr, nameOk := traversal[2].(hcl.TraverseAttr)
		if !typeOk || !nameOk {
			return "", false
		}
		return fmt.Sprintf("%s.%s.%s", traversal.RootName(), typeAttr.Name, nameAttr.Name), true
	case "race":
		nameAttr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("race.%s", nameAttr.Name), true
	}
	return "", false
}

// validateOutputReference checks if a reference to a step's output is valid.
func validateOutputReference(traversal hcl.Traversal, depNode *Node, r *registry.Registry) error {
	if depNode.Type != StepNode || len(traversal) < 5 {
		return nil
	}

	outputNameAttr, ok := traversal[4].(hcl.TraverseAttr)
	if !ok {
		return nil
	}
	outputName := outputNameAttr.Name

	runnerDef, ok := r.DefinitionRegistry[depNode.StepConfig.RunnerType]
	if !ok {
		return fmt.Errorf("internal error: could not find definition for runner type %s", depNode.StepConfig.RunnerType)
	}

	if _, ok := runnerDef.Outputs[outputName]; ok {
		return nil
	}
	return fmt.Errorf("reference to undeclared output %q on step %q", outputName, depNode.ID)
}
