package executor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/asynckit/flowrace/internal/future"
	"github.com/zclconf/go-cty/cty"
)

// runStepNode executes a stateless step. The handler runs inside a future
// so a panic becomes a rejection and a per-step timeout can interrupt a
// handler that overruns it.
func (e *Executor) runStepNode(ctx context.Context, n *dag.Node) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("step", n.ID)
	logger.Info("▶️ Starting step")
	started := time.Now()

	runnerDef, ok := e.registry.DefinitionRegistry[n.StepConfig.RunnerType]
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown runner type '%s'", n.StepConfig.RunnerType)
	}
	handlerName := runnerDef.Lifecycle.OnRun
	handler, ok := e.registry.HandlerRegistry[handlerName]
	if !ok {
		return cty.NilVal, fmt.Errorf("handler '%s' not registered", handlerName)
	}

	var stepCtx context.Context
	var cancel context.CancelFunc
	if n.StepConfig.Timeout != "" {
		timeout, err := time.ParseDuration(n.StepConfig.Timeout)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid timeout for step '%s': %w", n.ID, err)
		}
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		stepCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	n.StoreCancel(cancel)

	logger.Debug("Decoding step arguments.")
	inputStruct := handler.NewInput()
	evalCtx := e.buildEvalContext(ctx, n)
	if inputStruct != nil {
		if err := e.converter.DecodeBody(ctx, inputStruct, n.StepConfig.Arguments, runnerDef.Inputs, evalCtx); err != nil {
			return cty.NilVal, fmt.Errorf("decoding arguments for step '%s': %w", n.ID, err)
		}
	}

	logger.Debug("Building step dependencies.")
	depsStruct, err := e.buildDepsStruct(ctx, n, handler)
	if err != nil {
		return cty.NilVal, err
	}

	logger.Debug("Calling step run handler.", "handler", handlerName)
	handlerFunc := reflect.ValueOf(handler.Fn)
	fut := future.Go(stepCtx, func(c context.Context) (cty.Value, error) {
		callArgs := []reflect.Value{reflect.ValueOf(c), reflect.ValueOf(depsStruct)}
		if inputStruct == nil {
			callArgs = append(callArgs, reflect.Zero(handlerFunc.Type().In(2)))
		} else {
			callArgs = append(callArgs, reflect.ValueOf(inputStruct))
		}
		results := handlerFunc.Call(callArgs)
		outputVal, errResult := results[0].Interface(), results[1].Interface()
		if errResult != nil {
			return cty.NilVal, errResult.(error)
		}
		return e.toStepOutput(outputVal)
	})

	out, err := fut.Await(stepCtx)
	if err != nil {
		return cty.NilVal, err
	}

	logger.Info("✅ Finished step", "duration", time.Since(started).Round(time.Millisecond))
	return out, nil
}

// toStepOutput normalizes a handler's return value to a settable cty.Value.
func (e *Executor) toStepOutput(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	if ctyVal, ok := v.(cty.Value); ok {
		if ctyVal == cty.NilVal {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return ctyVal, nil
	}
	return e.converter.ToCtyValue(v)
}
