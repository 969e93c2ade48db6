// Package http_client provides a stateful, shareable HTTP client asset and a
// stateless runner for making individual HTTP requests through it.
package http_client

import (
	"reflect"

	"github.com/asynckit/flowrace/internal/registry"
)

// Module implements the registry.Module interface. It's the main entrypoint
// for the http_client module, responsible for registering all of its
// components with the application's registry.
type Module struct{}

// Register registers all of the module's components (assets and runners)
// with the central registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAssetHandler("CreateHTTPClient", &registry.RegisteredAsset{
		NewInput: func() any { return new(AssetInput) },
		CreateFn: createClient,
	})
	r.RegisterAssetHandler("DestroyHTTPClient", &registry.RegisteredAsset{
		DestroyFn: destroyClient,
	})
	r.RegisterAssetInterface("http_client", reflect.TypeOf((*Client)(nil)))

	r.RegisterRunner("OnRunHTTPRequest", &registry.RegisteredRunner{
		NewInput:  func() any { return new(RunnerInput) },
		InputType: reflect.TypeOf(RunnerInput{}),
		NewDeps:   func() any { return new(RunnerDeps) },
		Fn:        onRunHTTPRequest,
	})
}
