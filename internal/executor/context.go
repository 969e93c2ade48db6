package executor

import (
	"context"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// buildEvalContext creates the HCL evaluation context for a node. Only the
// completed dependencies of the node are visible, under `step.<runner>.<name>`
// and `race.<name>`.
func (e *Executor) buildEvalContext(ctx context.Context, n *dag.Node) *hcl.EvalContext {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building HCL evaluation context.", "node", n.ID)
	vars := make(map[string]cty.Value)

	stepOutputsByRunner := make(map[string]map[string]cty.Value)
	raceOutputs := make(map[string]cty.Value)

	for _, dep := range n.Deps {
		if dep.GetState() != dag.Done {
			continue
		}
		out, ok := dep.Output.(cty.Value)
		if !ok {
			continue
		}
		switch dep.Type {
		case dag.StepNode:
			runnerType := dep.StepConfig.RunnerType
			if _, ok := stepOutputsByRunner[runnerType]; !ok {
				stepOutputsByRunner[runnerType] = make(map[string]cty.Value)
			}
			stepOutputsByRunner[runnerType][dep.Name] = cty.ObjectVal(map[string]cty.Value{
				"output": out,
			})
		case dag.RaceNode:
			raceOutputs[dep.Name] = out
		}
	}

	finalStepOutputs := make(map[string]cty.Value)
	for runnerType, instances := range stepOutputsByRunner {
		finalStepOutputs[runnerType] = cty.ObjectVal(instances)
	}

	vars["step"] = cty.ObjectVal(finalStepOutputs)
	if len(raceOutputs) > 0 {
		vars["race"] = cty.ObjectVal(raceOutputs)
	}
	logger.Debug("Finished building HCL evaluation context.", "node", n.ID, "vars_count", len(vars))
	return &hcl.EvalContext{Variables: vars}
}
