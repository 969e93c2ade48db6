package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/asynckit/flowrace/internal/config"
	"github.com/asynckit/flowrace/internal/ctxlog"
)

// ValidateRegistry performs a strict parity check between manifests and Go code.
// Every manifest lifecycle handler must be registered, and the declared inputs
// must match the handler's input struct by name and type.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for runnerType, def := range r.DefinitionRegistry {
		if def.Lifecycle == nil || def.Lifecycle.OnRun == "" {
			errs = append(errs, fmt.Sprintf("runner '%s': manifest declares no on_run handler", runnerType))
			continue
		}
		handler, ok := r.HandlerRegistry[def.Lifecycle.OnRun]
		if !ok {
			errs = append(errs, fmt.Sprintf("runner '%s': handler '%s' is not registered", runnerType, def.Lifecycle.OnRun))
			continue
		}

		if handler.InputType == nil {
			if len(def.Inputs) > 0 {
				errs = append(errs, fmt.Sprintf("runner '%s': manifest declares inputs, but Go handler has no input struct", runnerType))
			}
			continue
		}

		hclInputs := make(map[string]struct{})
		for name := range def.Inputs {
			hclInputs[name] = struct{}{}
		}

		goInputs := make(map[string]reflect.StructField)
		inputType := handler.InputType
		for i := 0; i < inputType.NumField(); i++ {
			field := inputType.Field(i)
			if !field.IsExported() {
				continue
			}
			tag := field.Tag.Get("flow")
			tagName := strings.Split(tag, ",")[0]
			if tagName != "" && tagName != "-" {
				goInputs[tagName] = field
			}
		}

		// Check for presence mismatches.
		for name := range goInputs {
			if _, ok := hclInputs[name]; !ok {
				errs = append(errs, fmt.Sprintf("runner '%s': Go struct has field for input '%s' which is not declared in manifest", runnerType, name))
			}
		}
		for name := range hclInputs {
			if _, ok := goInputs[name]; !ok {
				errs = append(errs, fmt.Sprintf("runner '%s': manifest declares input '%s' which is not found in Go struct", runnerType, name))
			}
		}

		// Check for type mismatches.
		for name, inputDef := range def.Inputs {
			goField, ok := goInputs[name]
			if !ok {
				continue // Already handled by presence check.
			}

			manifestType := inputDef.Type
			if manifestType.Equals(cty.DynamicPseudoType) {
				logger.Warn("Manifest input uses 'type = any', which disables static type checking.", "runner", runnerType, "input", name)
				continue
			}

			goFieldType, err := gocty.ImpliedType(reflect.Zero(goField.Type).Interface())
			if err != nil {
				errs = append(errs, fmt.Sprintf("runner '%s', input '%s': could not imply cty type from Go field type %s: %v", runnerType, name, goField.Type, err))
				continue
			}

			if !manifestType.Equals(goFieldType) {
				errs = append(errs, fmt.Sprintf("runner '%s', input '%s': type mismatch between manifest type '%s' and Go field '%s' of type '%s'",
					runnerType, name, manifestType.FriendlyName(), goField.Name, goFieldType.FriendlyName()))
			}
		}

		errs = append(errs, r.validateUses(runnerType, def, handler)...)
	}

	for assetType, def := range r.AssetDefinitionRegistry {
		if def.Lifecycle == nil {
			errs = append(errs, fmt.Sprintf("asset '%s': manifest declares no lifecycle", assetType))
			continue
		}
		if _, ok := r.AssetHandlerRegistry[def.Lifecycle.Create]; !ok {
			errs = append(errs, fmt.Sprintf("asset '%s': create handler '%s' is not registered", assetType, def.Lifecycle.Create))
		}
		if _, ok := r.AssetHandlerRegistry[def.Lifecycle.Destroy]; !ok {
			errs = append(errs, fmt.Sprintf("asset '%s': destroy handler '%s' is not registered", assetType, def.Lifecycle.Destroy))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// validateUses checks each of a runner's asset dependencies against the
// registered interface contract for that asset type, when one exists. The
// deps struct field bound to the dependency must satisfy the contract, or
// injection would fail at execution time.
func (r *Registry) validateUses(runnerType string, def *config.RunnerDefinition, handler *RegisteredRunner) []string {
	if len(def.Uses) == 0 || handler.NewDeps == nil {
		return nil
	}

	depsType := reflect.TypeOf(handler.NewDeps())
	if depsType == nil || depsType.Kind() != reflect.Ptr || depsType.Elem().Kind() != reflect.Struct {
		return nil
	}
	depsType = depsType.Elem()

	depsFields := make(map[string]reflect.StructField)
	for i := 0; i < depsType.NumField(); i++ {
		field := depsType.Field(i)
		tag := strings.Split(field.Tag.Get("flow"), ",")[0]
		if tag != "" && tag != "-" {
			depsFields[tag] = field
		}
	}

	var errs []string
	for localName, use := range def.Uses {
		contract, ok := r.AssetInterfaceRegistry[use.AssetType]
		if !ok {
			continue
		}
		field, ok := depsFields[localName]
		if !ok {
			errs = append(errs, fmt.Sprintf("runner '%s': manifest declares uses '%s', which has no matching field in the Go deps struct", runnerType, localName))
			continue
		}
		satisfied := false
		if field.Type.Kind() == reflect.Interface {
			satisfied = contract.Implements(field.Type)
		} else {
			satisfied = contract.AssignableTo(field.Type)
		}
		if !satisfied {
			errs = append(errs, fmt.Sprintf("runner '%s', uses '%s': deps field '%s' of type %s cannot receive asset type '%s' (%s)",
				runnerType, localName, field.Name, field.Type, use.AssetType, contract))
		}
	}
	return errs
}
