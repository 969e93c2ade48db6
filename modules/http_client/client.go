package http_client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// AssetInput defines the arguments for creating an http_client resource.
type AssetInput struct {
	Timeout           string  `flow:"timeout,optional"`
	Retries           int     `flow:"retries,optional"`
	RequestsPerSecond float64 `flow:"requests_per_second,optional"`
	CacheTTL          string  `flow:"cache_ttl,optional"`
}

// Client is the live object shared across steps: a resty client plus an
// optional request rate limiter and an optional TTL cache for GET responses.
type Client struct {
	rest    *resty.Client
	limiter *rate.Limiter
	cache   *cache.Cache
}

// response is the part of an HTTP exchange that steps consume and that the
// cache stores.
type response struct {
	StatusCode int
	Status     string
	Body       string
}

// createClient is the 'create' handler for the asset.
func createClient(ctx context.Context, input *AssetInput) (*Client, error) {
	timeout := defaultTimeout
	if input.Timeout != "" {
		parsed, err := time.ParseDuration(input.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = parsed
	}

	rest := resty.New().
		SetTimeout(timeout).
		SetRetryCount(input.Retries)

	c := &Client{rest: rest}

	if input.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(input.RequestsPerSecond), 1)
	}
	if input.CacheTTL != "" {
		ttl, err := time.ParseDuration(input.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache_ttl: %w", err)
		}
		c.cache = cache.New(ttl, 2*ttl)
	}

	slog.Debug("HTTP client created.", "timeout", timeout, "retries", input.Retries,
		"rps", input.RequestsPerSecond, "cache_ttl", input.CacheTTL)
	return c, nil
}

// destroyClient is the 'destroy' handler. Closing idle connections is all
// an HTTP client needs.
func destroyClient(c *Client) error {
	c.rest.GetClient().CloseIdleConnections()
	return nil
}

// do performs a request through the shared client, honoring the rate
// limiter and serving cacheable GETs from the TTL cache.
func (c *Client) do(ctx context.Context, method, url, body string, headers map[string]string) (*response, error) {
	cacheKey := method + " " + url
	cacheable := c.cache != nil && method == http.MethodGet && body == ""
	if cacheable {
		if cached, found := c.cache.Get(cacheKey); found {
			slog.Debug("Serving HTTP response from cache.", "url", url)
			return cached.(*response), nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := c.rest.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if body != "" {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, err
	}

	out := &response{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       string(resp.Body()),
	}
	if cacheable && resp.IsSuccess() {
		c.cache.SetDefault(cacheKey, out)
	}
	return out, nil
}
