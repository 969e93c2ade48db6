package http_client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCreateClientDefaults(t *testing.T) {
	c, err := createClient(context.Background(), &AssetInput{})
	require.NoError(t, err)
	require.NotNil(t, c.rest)
	assert.Nil(t, c.limiter)
	assert.Nil(t, c.cache)
	require.NoError(t, destroyClient(c))
}

func TestCreateClientRejectsBadDurations(t *testing.T) {
	_, err := createClient(context.Background(), &AssetInput{Timeout: "soon"})
	require.Error(t, err)

	_, err = createClient(context.Background(), &AssetInput{CacheTTL: "a while"})
	require.Error(t, err)
}

func TestRunnerPerformsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("made"))
	}))
	defer srv.Close()

	c, err := createClient(context.Background(), &AssetInput{})
	require.NoError(t, err)
	defer destroyClient(c)

	out, err := onRunHTTPRequest(context.Background(), &RunnerDeps{Client: c}, &RunnerInput{
		URL:     srv.URL,
		Method:  http.MethodPost,
		Body:    "payload",
		Headers: map[string]string{"X-Test": "yes"},
	})
	require.NoError(t, err)

	code, _ := out.GetAttr("status_code").AsBigFloat().Int64()
	assert.Equal(t, int64(http.StatusCreated), code)
	assert.Equal(t, "made", out.GetAttr("body").AsString())
	assert.Equal(t, int32(1), hits.Load())
}

func TestRunnerRequiresClient(t *testing.T) {
	_, err := onRunHTTPRequest(context.Background(), &RunnerDeps{}, &RunnerInput{URL: "http://localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not injected")
}

func TestClientCachesGetResponses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("cached body"))
	}))
	defer srv.Close()

	c, err := createClient(context.Background(), &AssetInput{CacheTTL: "1m"})
	require.NoError(t, err)
	defer destroyClient(c)

	for i := 0; i < 3; i++ {
		resp, err := c.do(context.Background(), http.MethodGet, srv.URL, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "cached body", resp.Body)
	}
	assert.Equal(t, int32(1), hits.Load(), "repeat GETs should be served from cache")

	// Non-GET requests bypass the cache.
	_, err = c.do(context.Background(), http.MethodPost, srv.URL, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRunnerTimeoutInterruptsSlowServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := createClient(context.Background(), &AssetInput{})
	require.NoError(t, err)
	defer destroyClient(c)

	out, err := onRunHTTPRequest(context.Background(), &RunnerDeps{Client: c}, &RunnerInput{
		URL:     srv.URL,
		Timeout: "50ms",
	})
	require.Error(t, err)
	assert.Equal(t, cty.NilVal, out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
