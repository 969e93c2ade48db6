// Package socketio provides a runner that connects to a Socket.IO server,
// optionally emits an event, and fulfills when a named event arrives. The
// wait on the event is a future raced against a timer, so a slow server
// settles the step as a timeout instead of hanging the run.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/asynckit/flowrace/internal/ctxlog"
	"github.com/asynckit/flowrace/internal/future"
	"github.com/asynckit/flowrace/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the socketio runner.
type Input struct {
	URL                string            `flow:"url"`
	Namespace          string            `flow:"namespace"`
	OnEvent            string            `flow:"on_event"`
	EmitEvent          string            `flow:"emit_event"`
	EmitData           map[string]string `flow:"emit_data"`
	Timeout            string            `flow:"timeout"`
	InsecureSkipVerify bool              `flow:"insecure_skip_verify"`
}

// Deps is empty because this runner does not use any resources.
type Deps struct{}

// defaultTimeout bounds the connect-and-wait cycle when no timeout is set.
const defaultTimeout = 10 * time.Second

// OnRunSocketIO is the handler for the 'socketio' runner's on_run lifecycle event.
func OnRunSocketIO(ctx context.Context, deps *Deps, input *Input) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("runner", "socketio", "url", input.URL, "onEvent", input.OnEvent, "emitEvent", input.EmitEvent)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	timeout := defaultTimeout
	if input.Timeout != "" {
		parsed, err := time.ParseDuration(input.Timeout)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid timeout %q: %w", input.Timeout, err)
		}
		timeout = parsed
	}

	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)

	if input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(input.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	var isConnected atomic.Bool

	// The event wait is a promise settled by the socket listeners. Racing it
	// against a timer future gives the whole connect-emit-wait cycle a single
	// deadline.
	promise, eventFut := future.New[any]()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Successfully connected", "namespace", input.Namespace, "sid", io.Id())
		if input.EmitEvent != "" {
			logger.Info("Emitting event", "event", input.EmitEvent)
			io.Emit(input.EmitEvent, input.EmitData)
		}
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if connErr, ok := errs[0].(error); ok {
				promise.Reject(connErr)
				return
			}
		}
		promise.Reject(fmt.Errorf("connection failed"))
	})

	io.On(types.EventName(input.OnEvent), func(data ...any) {
		var responseData any
		if len(data) > 0 {
			responseData = data[0]
		}
		promise.Resolve(responseData)
	})

	io.Connect()

	responseData, err := awaitEvent(ctx, eventFut, timeout, input.OnEvent, &isConnected)
	if err != nil {
		return cty.NilVal, err
	}

	encoded, err := json.Marshal(responseData)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to encode event payload: %w", err)
	}

	return cty.ObjectVal(map[string]cty.Value{
		"event":         cty.StringVal(input.OnEvent),
		"response_data": cty.StringVal(string(encoded)),
	}), nil
}

// awaitEvent races the event future against a timer that bounds the whole
// connect-emit-wait cycle. A timeout's message distinguishes a connection
// that never happened from a server that connected but stayed silent.
func awaitEvent(ctx context.Context, eventFut *future.Future[any], timeout time.Duration, onEvent string, connected *atomic.Bool) (any, error) {
	timer := future.After(ctx, timeout)
	idx, err := future.RaceAny(ctx, eventFut, timer)
	if idx != 0 {
		if err != nil {
			return nil, err
		}
		if connected.Load() {
			return nil, fmt.Errorf("timed out after connecting while waiting for event '%s'", onEvent)
		}
		return nil, fmt.Errorf("timed out while waiting for initial connection")
	}
	if err != nil {
		return nil, err
	}
	data, _, _ := eventFut.Poll()
	return data, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunSocketIO", &registry.RegisteredRunner{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		NewDeps:   func() any { return new(Deps) },
		Fn:        OnRunSocketIO,
	})
}
