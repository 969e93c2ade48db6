package http_client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// RunnerInput defines the arguments for the http_request runner.
type RunnerInput struct {
	URL     string            `flow:"url"`
	Method  string            `flow:"method,optional"`
	Body    string            `flow:"body,optional"`
	Headers map[string]string `flow:"headers,optional"`
	Timeout string            `flow:"timeout,optional"`
}

// RunnerDeps defines the injected resources from the 'uses' block.
type RunnerDeps struct {
	Client *Client `flow:"client"`
}

// onRunHTTPRequest performs a single request through the shared client.
func onRunHTTPRequest(ctx context.Context, deps *RunnerDeps, input *RunnerInput) (cty.Value, error) {
	if deps.Client == nil {
		return cty.NilVal, fmt.Errorf("http client dependency was not injected")
	}

	method := input.Method
	if method == "" {
		method = http.MethodGet
	}

	if input.Timeout != "" {
		timeout, err := time.ParseDuration(input.Timeout)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid timeout: %w", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slog.Info("Making HTTP request", "method", method, "url", input.URL)
	started := time.Now()
	resp, err := deps.Client.do(ctx, method, input.URL, input.Body, input.Headers)
	if err != nil {
		return cty.NilVal, fmt.Errorf("request to %s failed: %w", input.URL, err)
	}
	elapsed := time.Since(started)
	slog.Info("Received HTTP response", "status", resp.Status, "duration", elapsed.Round(time.Millisecond))

	return cty.ObjectVal(map[string]cty.Value{
		"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
		"status":      cty.StringVal(resp.Status),
		"body":        cty.StringVal(resp.Body),
		"duration_ms": cty.NumberIntVal(elapsed.Milliseconds()),
	}), nil
}
