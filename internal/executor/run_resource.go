package executor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/zclconf/go-cty/cty"
)

// runResourceNode handles the creation of a stateful resource.
func (e *Executor) runResourceNode(ctx context.Context, n *dag.Node) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("resource", n.ID)
	logger.Info("▶️ Creating resource")

	assetType := n.ResourceConfig.AssetType
	assetDef, ok := e.registry.AssetDefinitionRegistry[assetType]
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown asset type '%s'", assetType)
	}
	createHandlerName := assetDef.Lifecycle.Create
	destroyHandlerName := assetDef.Lifecycle.Destroy

	createHandler, ok := e.registry.AssetHandlerRegistry[createHandlerName]
	if !ok || createHandler.CreateFn == nil {
		return cty.NilVal, fmt.Errorf("create handler '%s' not registered", createHandlerName)
	}
	destroyHandler, ok := e.registry.AssetHandlerRegistry[destroyHandlerName]
	if !ok || destroyHandler.DestroyFn == nil {
		return cty.NilVal, fmt.Errorf("destroy handler '%s' not registered", destroyHandlerName)
	}

	logger.Debug("Decoding resource arguments.")
	inputStruct := createHandler.NewInput()
	evalCtx := e.buildEvalContext(ctx, n)
	if inputStruct != nil {
		if err := e.converter.DecodeBody(ctx, inputStruct, n.ResourceConfig.Arguments, assetDef.Inputs, evalCtx); err != nil {
			return cty.NilVal, fmt.Errorf("decoding arguments for resource '%s': %w", n.ID, err)
		}
	}

	logger.Debug("Calling resource create handler.", "handler", createHandlerName)
	handlerFunc := reflect.ValueOf(createHandler.CreateFn)
	results := handlerFunc.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(inputStruct)})
	resourceObj, errResult := results[0].Interface(), results[1].Interface()
	if errResult != nil {
		return cty.NilVal, errResult.(error)
	}

	n.Output = resourceObj
	e.resourceInstances.Store(n.ID, resourceObj)
	e.pushCleanup(func() {
		logger.Info("🔥 Destroying resource")
		results := reflect.ValueOf(destroyHandler.DestroyFn).Call([]reflect.Value{reflect.ValueOf(resourceObj)})
		if len(results) > 0 {
			if destroyErr, ok := results[0].Interface().(error); ok && destroyErr != nil {
				logger.Error("Resource destroy handler failed.", "error", destroyErr)
			}
		}
		e.resourceInstances.Delete(n.ID)
	})

	logger.Info("✅ Resource created")
	return cty.NullVal(cty.DynamicPseudoType), nil
}
