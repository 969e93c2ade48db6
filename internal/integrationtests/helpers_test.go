package integration_tests

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zclconf/go-cty/cty"
	"go.uber.org/goleak"

	"github.com/asynckit/flowrace/internal/registry"
	"github.com/asynckit/flowrace/internal/testutil"
)

func TestMain(m *testing.M) {
	// The engine.io client library starts background goroutines from its
	// package init (signal handling and a global timer); they are not leaks
	// from the code under test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
		goleak.IgnoreTopFunction("github.com/zishang520/engine.io-client-go/engine.setupSignalHandling.func1"),
		goleak.IgnoreTopFunction("github.com/zishang520/engine.io/v2/utils.SetInterval.func1"),
	)
}

// journal records execution side effects in order so tests can assert on
// what actually ran.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) contains(entry string) bool {
	for _, e := range j.all() {
		if e == entry {
			return true
		}
	}
	return false
}

// Manifests for the test runners. Each test flow combines these with its
// own flow file through the harness.
const (
	emitManifest = `
	runner "emit" {
		lifecycle { on_run = "TestEmit" }
		input "value" { type = string }
		output "value" { type = string }
	}`

	sleepyManifest = `
	runner "sleepy" {
		lifecycle { on_run = "TestSleepy" }
		input "duration" { type = string }
		output "slept" { type = string }
	}`

	failManifest = `
	runner "fail" {
		lifecycle { on_run = "TestFail" }
	}`

	recordManifest = `
	runner "record" {
		lifecycle { on_run = "TestRecord" }
		input "value" { type = string }
	}`
)

type emitInput struct {
	Value string `flow:"value"`
}

type sleepyInput struct {
	Duration string `flow:"duration"`
}

// testModules builds the runner set shared by the integration tests, with
// all side effects captured in the given journal.
func testModules(j *journal) []registry.Module {
	return []registry.Module{
		&testutil.SimpleModule{
			RunnerName: "TestEmit",
			Runner: &registry.RegisteredRunner{
				NewInput:  func() any { return new(emitInput) },
				InputType: reflect.TypeOf(emitInput{}),
				NewDeps:   func() any { return new(struct{}) },
				Fn: func(ctx context.Context, deps *struct{}, input *emitInput) (cty.Value, error) {
					j.add("emit:" + input.Value)
					return cty.ObjectVal(map[string]cty.Value{
						"value": cty.StringVal(input.Value),
					}), nil
				},
			},
		},
		&testutil.SimpleModule{
			RunnerName: "TestSleepy",
			Runner: &registry.RegisteredRunner{
				NewInput:  func() any { return new(sleepyInput) },
				InputType: reflect.TypeOf(sleepyInput{}),
				NewDeps:   func() any { return new(struct{}) },
				Fn: func(ctx context.Context, deps *struct{}, input *sleepyInput) (cty.Value, error) {
					d, err := time.ParseDuration(input.Duration)
					if err != nil {
						return cty.NilVal, err
					}
					select {
					case <-time.After(d):
					case <-ctx.Done():
						return cty.NilVal, ctx.Err()
					}
					j.add("slept:" + input.Duration)
					return cty.ObjectVal(map[string]cty.Value{
						"slept": cty.StringVal(input.Duration),
					}), nil
				},
			},
		},
		&testutil.SimpleModule{
			RunnerName: "TestFail",
			Runner: &registry.RegisteredRunner{
				NewInput:  func() any { return new(struct{}) },
				InputType: reflect.TypeOf(struct{}{}),
				NewDeps:   func() any { return new(struct{}) },
				Fn: func(ctx context.Context, deps *struct{}, input *struct{}) (cty.Value, error) {
					j.add("fail")
					return cty.NilVal, fmt.Errorf("boom")
				},
			},
		},
		&testutil.SimpleModule{
			RunnerName: "TestRecord",
			Runner: &registry.RegisteredRunner{
				NewInput:  func() any { return new(emitInput) },
				InputType: reflect.TypeOf(emitInput{}),
				NewDeps:   func() any { return new(struct{}) },
				Fn: func(ctx context.Context, deps *struct{}, input *emitInput) (cty.Value, error) {
					j.add("record:" + input.Value)
					return cty.NilVal, nil
				},
			},
		},
	}
}
