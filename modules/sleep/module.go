// Package sleep provides a runner that fulfills after a fixed duration. It
// is the timer leg of a race: racing a step against a sleep bounds how long
// the run waits for that step.
package sleep

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/asynckit/flowrace/internal/future"
	"github.com/asynckit/flowrace/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the sleep runner.
type Input struct {
	Duration string `flow:"duration"`
}

// Deps is empty because this runner does not use any resources.
type Deps struct{}

// OnRunSleep waits for the configured duration or until the step is
// canceled, whichever comes first.
func OnRunSleep(ctx context.Context, deps *Deps, input *Input) (cty.Value, error) {
	d, err := time.ParseDuration(input.Duration)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
	}

	slog.Debug("Sleeping.", "duration", d)
	if _, err := future.After(ctx, d).Await(ctx); err != nil {
		return cty.NilVal, err
	}

	return cty.ObjectVal(map[string]cty.Value{
		"slept": cty.StringVal(input.Duration),
	}), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunSleep", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunSleep,
	})
}
