package app

import (
	"github.com/asynckit/flowrace/internal/registry"
	"github.com/asynckit/flowrace/modules/env_vars"
	"github.com/asynckit/flowrace/modules/http_client"
	"github.com/asynckit/flowrace/modules/print"
	"github.com/asynckit/flowrace/modules/sleep"
	"github.com/asynckit/flowrace/modules/socketio"
)

// coreModules is the definitive list of all modules that are compiled into
// the flowrace binary.
var coreModules = []registry.Module{
	&env_vars.Module{},
	&print.Module{},
	&sleep.Module{},
	&http_client.Module{},
	&socketio.Module{},
}
