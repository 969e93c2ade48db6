package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asynckit/flowrace/internal/config"
	"github.com/asynckit/flowrace/internal/dag"
	"github.com/asynckit/flowrace/internal/future"
	flowracehcl "github.com/asynckit/flowrace/internal/hcl"
	"github.com/asynckit/flowrace/internal/registry"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

// journal records what handlers saw, in order.
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

type noDeps struct{}

type emitInput struct {
	Value string `flow:"value"`
}

type sleepInput struct {
	Duration string `flow:"duration"`
}

// testHarness wires a registry of small runners around a shared journal.
type testHarness struct {
	reg     *registry.Registry
	journal *journal
}

func newTestHarness() *testHarness {
	h := &testHarness{reg: registry.New(), journal: &journal{}}

	h.defineRunner("emit", "OnRunEmit",
		map[string]*config.InputDefinition{
			"value": {Name: "value", Type: cty.String},
		},
		map[string]*config.OutputDefinition{
			"value": {Name: "value"},
		})
	h.reg.RegisterRunner("OnRunEmit", &registry.RegisteredRunner{
		NewInput: func() any { return new(emitInput) },
		NewDeps:  func() any { return new(noDeps) },
		Fn: func(ctx context.Context, deps *noDeps, input *emitInput) (cty.Value, error) {
			h.journal.add("emit:" + input.Value)
			return cty.ObjectVal(map[string]cty.Value{"value": cty.StringVal(input.Value)}), nil
		},
	})

	h.defineRunner("sleepy", "OnRunSleepy",
		map[string]*config.InputDefinition{
			"duration": {Name: "duration", Type: cty.String},
		},
		map[string]*config.OutputDefinition{
			"slept": {Name: "slept"},
		})
	h.reg.RegisterRunner("OnRunSleepy", &registry.RegisteredRunner{
		NewInput: func() any { return new(sleepInput) },
		NewDeps:  func() any { return new(noDeps) },
		Fn: func(ctx context.Context, deps *noDeps, input *sleepInput) (cty.Value, error) {
			d, err := time.ParseDuration(input.Duration)
			if err != nil {
				return cty.NilVal, err
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return cty.NilVal, ctx.Err()
			}
			h.journal.add("slept:" + input.Duration)
			return cty.ObjectVal(map[string]cty.Value{"slept": cty.StringVal(input.Duration)}), nil
		},
	})

	h.defineRunner("fail", "OnRunFail", nil, nil)
	h.reg.RegisterRunner("OnRunFail", &registry.RegisteredRunner{
		NewInput: func() any { return new(struct{}) },
		NewDeps:  func() any { return new(noDeps) },
		Fn: func(ctx context.Context, deps *noDeps, input *struct{}) (cty.Value, error) {
			return cty.NilVal, errors.New("boom")
		},
	})

	h.defineRunner("panicky", "OnRunPanicky", nil, nil)
	h.reg.RegisterRunner("OnRunPanicky", &registry.RegisteredRunner{
		NewInput: func() any { return new(struct{}) },
		NewDeps:  func() any { return new(noDeps) },
		Fn: func(ctx context.Context, deps *noDeps, input *struct{}) (cty.Value, error) {
			panic("handler exploded")
		},
	})

	return h
}

func (h *testHarness) defineRunner(runnerType, onRun string, inputs map[string]*config.InputDefinition, outputs map[string]*config.OutputDefinition) {
	h.reg.DefinitionRegistry[runnerType] = &config.RunnerDefinition{
		Type:      runnerType,
		Lifecycle: &config.Lifecycle{OnRun: onRun},
		Inputs:    inputs,
		Outputs:   outputs,
	}
}

func (h *testHarness) run(t *testing.T, flow *config.Flow) (*dag.Graph, error) {
	t.Helper()
	model := &config.Model{Flow: flow}
	graph, err := dag.Build(context.Background(), model, h.reg)
	require.NoError(t, err)
	exec := New(graph, h.reg, flowracehcl.NewConverter(), DefaultWorkers)
	return graph, exec.Run(context.Background())
}

func TestRunExecutesDependencyChain(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "emit",
				Name:       "first",
				Arguments:  map[string]hcl.Expression{"value": expr(t, `"one"`)},
			},
			{
				RunnerType: "emit",
				Name:       "second",
				Arguments:  map[string]hcl.Expression{"value": expr(t, "step.emit.first.output.value")},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"emit:one", "emit:one"}, h.journal.all())

	second := graph.Nodes["step.emit.second"]
	require.NotNil(t, second)
	assert.Equal(t, dag.Done, second.GetState())
	out, ok := second.Output.(cty.Value)
	require.True(t, ok)
	assert.Equal(t, "one", out.GetAttr("value").AsString())
}

func TestRunRaceFirstSettlementWins(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "sleepy",
				Name:       "fast",
				Lazy:       true,
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"10ms"`)},
			},
			{
				RunnerType: "sleepy",
				Name:       "slow",
				Lazy:       true,
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"5s"`)},
			},
			{
				RunnerType: "emit",
				Name:       "report",
				Arguments:  map[string]hcl.Expression{"value": expr(t, "race.quick.winner")},
			},
		},
		Races: []*config.Race{
			{Name: "quick", Of: []string{"sleepy.fast", "sleepy.slow"}},
		},
	})
	require.NoError(t, err)

	race := graph.Nodes["race.quick"]
	require.NotNil(t, race)
	assert.Equal(t, dag.Done, race.GetState())
	out := race.Output.(cty.Value)
	assert.Equal(t, "sleepy.fast", out.GetAttr("winner").AsString())
	assert.Equal(t, "10ms", out.GetAttr("output").GetAttr("slept").AsString())

	assert.Equal(t, dag.Done, graph.Nodes["step.sleepy.fast"].GetState())
	assert.Equal(t, dag.Canceled, graph.Nodes["step.sleepy.slow"].GetState())
	assert.Contains(t, h.journal.all(), "emit:sleepy.fast")
	assert.NotContains(t, h.journal.all(), "slept:5s")
}

func TestRunRaceDemandsLazySteps(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "emit",
				Name:       "only",
				Lazy:       true,
				Arguments:  map[string]hcl.Expression{"value": expr(t, `"demanded"`)},
			},
		},
		Races: []*config.Race{
			{Name: "solo", Of: []string{"emit.only"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"emit:demanded"}, h.journal.all())
	assert.Equal(t, dag.Done, graph.Nodes["step.emit.only"].GetState())
}

func TestRunFailureSkipsDependents(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{RunnerType: "fail", Name: "broken"},
			{
				RunnerType: "emit",
				Name:       "after",
				Arguments:  map[string]hcl.Expression{"value": expr(t, `"nope"`)},
				DependsOn:  []string{"fail.broken"},
			},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, dag.Failed, graph.Nodes["step.fail.broken"].GetState())
	after := graph.Nodes["step.emit.after"]
	assert.Equal(t, dag.Skipped, after.GetState())
	assert.Contains(t, after.Error.Error(), "upstream failure")
	assert.NotContains(t, h.journal.all(), "emit:nope")
}

func TestRunStepTimeoutFailsStep(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "sleepy",
				Name:       "overrun",
				Timeout:    "30ms",
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"5s"`)},
			},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, dag.Failed, graph.Nodes["step.sleepy.overrun"].GetState())
}

func TestRunHandlerPanicBecomesFailure(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{RunnerType: "panicky", Name: "kaboom"},
		},
	})
	require.Error(t, err)
	var panicErr *future.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "handler exploded", panicErr.Value)
	assert.Equal(t, dag.Failed, graph.Nodes["step.panicky.kaboom"].GetState())
}

type padInput struct {
	Label string `flow:"label"`
}

type pad struct {
	label   string
	journal *journal
}

type padDeps struct {
	Pad *pad `flow:"pad"`
}

func TestRunResourceLifecycle(t *testing.T) {
	h := newTestHarness()

	h.reg.AssetDefinitionRegistry["notepad"] = &config.AssetDefinition{
		Type:      "notepad",
		Lifecycle: &config.AssetLifecycle{Create: "CreatePad", Destroy: "DestroyPad"},
		Inputs: map[string]*config.InputDefinition{
			"label": {Name: "label", Type: cty.String},
		},
	}
	h.reg.RegisterAssetHandler("CreatePad", &registry.RegisteredAsset{
		NewInput: func() any { return new(padInput) },
		CreateFn: func(ctx context.Context, input *padInput) (*pad, error) {
			h.journal.add("create:" + input.Label)
			return &pad{label: input.Label, journal: h.journal}, nil
		},
	})
	h.reg.RegisterAssetHandler("DestroyPad", &registry.RegisteredAsset{
		DestroyFn: func(p *pad) error {
			p.journal.add("destroy:" + p.label)
			return nil
		},
	})

	h.defineRunner("scribble", "OnRunScribble", nil, nil)
	h.reg.RegisterRunner("OnRunScribble", &registry.RegisteredRunner{
		NewInput: func() any { return new(struct{}) },
		NewDeps:  func() any { return new(padDeps) },
		Fn: func(ctx context.Context, deps *padDeps, input *struct{}) (cty.Value, error) {
			h.journal.add("use:" + deps.Pad.label)
			return cty.NilVal, nil
		},
	})

	_, err := h.run(t, &config.Flow{
		Resources: []*config.Resource{
			{
				AssetType: "notepad",
				Name:      "main",
				Arguments: map[string]hcl.Expression{"label": expr(t, `"shared"`)},
			},
		},
		Steps: []*config.Step{
			{
				RunnerType: "scribble",
				Name:       "note",
				Uses:       map[string]hcl.Expression{"pad": expr(t, "resource.notepad.main")},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"create:shared", "use:shared", "destroy:shared"}, h.journal.all())
}

func TestRunCanceledContextSkipsPendingNodes(t *testing.T) {
	h := newTestHarness()
	model := &config.Model{Flow: &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "sleepy",
				Name:       "napping",
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"5s"`)},
			},
		},
	}}
	graph, err := dag.Build(context.Background(), model, h.reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	runErr := New(graph, h.reg, flowracehcl.NewConverter(), DefaultWorkers).Run(ctx)
	require.NoError(t, runErr, fmt.Sprintf("cancellation must not surface as a node failure: %v", runErr))
	assert.Equal(t, dag.Canceled, graph.Nodes["step.sleepy.napping"].GetState())
}

func TestRunRaceErrorWinnerFailsRace(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "fail",
				Name:       "broken",
				Lazy:       true,
			},
			{
				RunnerType: "sleepy",
				Name:       "slow",
				Lazy:       true,
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"5s"`)},
			},
		},
		Races: []*config.Race{
			{Name: "doomed", Of: []string{"fail.broken", "sleepy.slow"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	race := graph.Nodes["race.doomed"]
	require.NotNil(t, race)
	assert.Equal(t, dag.Failed, race.GetState(), "an erroring winner must fail the race, not cancel it")
	require.Error(t, race.Error)
	assert.Contains(t, race.Error.Error(), "winner 'step.fail.broken'")
	assert.Equal(t, dag.Canceled, graph.Nodes["step.sleepy.slow"].GetState())
}

func TestRunRaceLoserDependentsAreCanceled(t *testing.T) {
	h := newTestHarness()
	graph, err := h.run(t, &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "sleepy",
				Name:       "fast",
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"10ms"`)},
			},
			{
				RunnerType: "sleepy",
				Name:       "slow",
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"5s"`)},
			},
			{
				RunnerType: "emit",
				Name:       "after_slow",
				Arguments:  map[string]hcl.Expression{"value": expr(t, `"never"`)},
				DependsOn:  []string{"sleepy.slow"},
			},
		},
		Races: []*config.Race{
			{Name: "quick", Of: []string{"sleepy.fast", "sleepy.slow"}},
		},
	})
	require.NoError(t, err, "a race loss must not fail the run")

	afterSlow := graph.Nodes["step.emit.after_slow"]
	require.NotNil(t, afterSlow)
	assert.Equal(t, dag.Canceled, afterSlow.GetState())
	require.ErrorIs(t, afterSlow.Error, future.ErrCanceled)

	_, futErr, settled := afterSlow.Future.Poll()
	require.True(t, settled, "a canceled dependent must settle its future")
	assert.ErrorIs(t, futErr, future.ErrCanceled)
	assert.NotContains(t, h.journal.all(), "emit:never")
}

func TestRunDeadlineContextDoesNotFailRun(t *testing.T) {
	h := newTestHarness()
	model := &config.Model{Flow: &config.Flow{
		Steps: []*config.Step{
			{
				RunnerType: "sleepy",
				Name:       "napping",
				Arguments:  map[string]hcl.Expression{"duration": expr(t, `"5s"`)},
			},
		},
	}}
	graph, err := dag.Build(context.Background(), model, h.reg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	runErr := New(graph, h.reg, flowracehcl.NewConverter(), DefaultWorkers).Run(ctx)
	require.NoError(t, runErr, fmt.Sprintf("run deadline expiry must not surface as a node failure: %v", runErr))
	assert.Equal(t, dag.Canceled, graph.Nodes["step.sleepy.napping"].GetState())
}
