// Package schema declares the HCL shapes of flow files and module manifests.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Primary Flow Structures ---

// StepArgs represents the content of the 'arguments' block within a step.
type StepArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// UsesBlock represents the content of the 'uses' block within a step.
type UsesBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Step represents a `step` block from a user's flow file. It is a runnable
// instance of a defined runner.
type Step struct {
	RunnerType string     `hcl:"runner_type,label"`
	Name       string     `hcl:"instance_name,label"`
	Arguments  *StepArgs  `hcl:"arguments,block"`
	Uses       *UsesBlock `hcl:"uses,block"`
	DependsOn  []string   `hcl:"depends_on,optional"`
	Lazy       bool       `hcl:"lazy,optional"`
	Timeout    string     `hcl:"timeout,optional"`
}

// Resource represents a `resource` block from a user's flow file. It is a
// managed, stateful instance of a defined asset.
type Resource struct {
	AssetType string    `hcl:"asset_type,label"`
	Name      string    `hcl:"instance_name,label"`
	Arguments *StepArgs `hcl:"arguments,block"`
	DependsOn []string  `hcl:"depends_on,optional"`
}

// Race represents a `race` block from a user's flow file: it demands every
// step listed in `of` concurrently and settles with the first one to finish.
type Race struct {
	Name      string   `hcl:"instance_name,label"`
	Of        []string `hcl:"of"`
	DependsOn []string `hcl:"depends_on,optional"`
}

// FlowConfig represents the top-level structure of a user's flow file,
// containing all defined steps, resources and races.
type FlowConfig struct {
	Steps     []*Step     `hcl:"step,block"`
	Resources []*Resource `hcl:"resource,block"`
	Races     []*Race     `hcl:"race,block"`
	Body      hcl.Body    `hcl:",remain"`
}

// --- Module Manifest Schemas ---

// Lifecycle defines the mapping from a runner's lifecycle event to a
// registered Go handler function.
type Lifecycle struct {
	OnRun string `hcl:"on_run,optional"`
}

// AssetLifecycle defines the mapping from a resource's lifecycle events
// (create, destroy) to registered Go handler functions.
type AssetLifecycle struct {
	Create  string `hcl:"create"`
	Destroy string `hcl:"destroy"`
}

// InputDefinition defines a single input variable for a runner or asset.
// Default is kept as a raw expression so literal defaults of any type can
// be evaluated during translation.
type InputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// OutputDefinition defines a single output value produced by a runner or asset.
type OutputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
}

// UsesDefinition defines an asset dependency required by a runner.
type UsesDefinition struct {
	LocalName string `hcl:"local_name,label"`
	AssetType string `hcl:"asset_type"`
}

// RunnerDefinition represents the HCL manifest for a runnable `runner` type.
type RunnerDefinition struct {
	Type        string              `hcl:"type,label"`
	Description string              `hcl:"description,optional"`
	Lifecycle   *Lifecycle          `hcl:"lifecycle,block"`
	Inputs      []*InputDefinition  `hcl:"input,block"`
	Outputs     []*OutputDefinition `hcl:"output,block"`
	Uses        []*UsesDefinition   `hcl:"uses,block"`
}

// AssetDefinition represents the HCL manifest for a stateful `asset` type.
type AssetDefinition struct {
	Type        string              `hcl:"type,label"`
	Description string              `hcl:"description,optional"`
	Lifecycle   *AssetLifecycle     `hcl:"lifecycle,block"`
	Inputs      []*InputDefinition  `hcl:"input,block"`
	Outputs     []*OutputDefinition `hcl:"output,block"`
}

// DefinitionConfig represents the top-level structure of a module manifest file.
type DefinitionConfig struct {
	Runners []*RunnerDefinition `hcl:"runner,block"`
	Assets  []*AssetDefinition  `hcl:"asset,block"`
	Body    hcl.Body            `hcl:",remain"`
}
