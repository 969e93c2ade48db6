package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/asynckit/flowrace/internal/config"
	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/fsutil"
	"github.com/asynckit/flowrace/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Runners   []*schema.RunnerDefinition `hcl:"runner,block"`
	Assets    []*schema.AssetDefinition  `hcl:"asset,block"`
	Steps     []*schema.Step             `hcl:"step,block"`
	Resources []*schema.Resource         `hcl:"resource,block"`
	Races     []*schema.Race             `hcl:"race,block"`
	Remain    hcl.Body                   `hcl:",remain"`
}

// Load orchestrates the entire HCL configuration loading process. It is
// agnostic to the origin of the paths and parses any valid block from any file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{
		Runners: make(map[string]*config.RunnerDefinition),
		Assets:  make(map[string]*config.AssetDefinition),
		Flow:    &config.Flow{},
	}

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		// Translate and merge all discovered blocks into the model.
		for _, runner := range root.Runners {
			def, err := l.translateRunnerDefinition(ctx, runner)
			if err != nil {
				return nil, nil, err
			}
			model.Runners[def.Type] = def
		}
		for _, asset := range root.Assets {
			def, err := l.translateAssetDefinition(ctx, asset)
			if err != nil {
				return nil, nil, err
			}
			model.Assets[def.Type] = def
		}
		for _, step := range root.Steps {
			model.Flow.Steps = append(model.Flow.Steps, l.translateStep(step))
		}
		for _, resource := range root.Resources {
			model.Flow.Resources = append(model.Flow.Resources, l.translateResource(resource))
		}
		for _, race := range root.Races {
			model.Flow.Races = append(model.Flow.Races, l.translateRace(race))
		}
	}

	logger.Debug("HCL loading complete.",
		"runners", len(model.Runners),
		"assets", len(model.Assets),
		"steps", len(model.Flow.Steps),
		"resources", len(model.Flow.Resources),
		"races", len(model.Flow.Races),
	)
	return model, NewConverter(), nil
}

// findAllHCLFiles expands the given paths into the full set of .hcl files.
// A path may be a single file or a directory, which is searched recursively.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access path %s: %w", path, err)
		}
		if info.IsDir() {
			found, err := fsutil.FindFlowFiles(path)
			if err != nil {
				return nil, fmt.Errorf("failed to search %s: %w", path, err)
			}
			files = append(files, found...)
			continue
		}
		files = append(files, path)
	}
	return files, nil
}
