package dag

import "fmt"

// Graph is the complete execution graph built from a config model.
type Graph struct {
	// Nodes stores all nodes in the graph, keyed by their unique ID.
	Nodes map[string]*Node
}

// detectCycles checks the graph for dependency cycles using a depth-first
// search with the classic three-color marking. Race membership counts as an
// edge: a race cannot complete before its racers settle, so a racer that
// reads the race's output would deadlock.
func (g *Graph) detectCycles() error {
	racesByRacer := make(map[string][]*Node)
	for _, n := range g.Nodes {
		if n.Type != RaceNode {
			continue
		}
		for _, racer := range n.Racers {
			racesByRacer[racer.ID] = append(racesByRacer[racer.ID], n)
		}
	}

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving node '%s'", n.ID)
		}
		temporary[n.ID] = true

		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		for _, race := range racesByRacer[n.ID] {
			if err := visit(race); err != nil {
				return err
			}
		}

		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
