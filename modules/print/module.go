// Package print provides a runner that prints a resolved value to stdout.
package print

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/asynckit/flowrace/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print runner.
type Input struct {
	Value string `flow:"input"`
}

// Deps is empty because this runner does not use any resources.
type Deps struct{}

// OnRunPrint is the handler for the 'print' runner's on_run lifecycle event.
func OnRunPrint(ctx context.Context, deps *Deps, input *Input) (cty.Value, error) {
	slog.Debug("Printing input.")
	fmt.Printf("      %s\n", input.Value)
	return cty.NilVal, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunPrint", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunPrint,
	})
}
