package debugsvc_test

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/shieldkit/webshield/internal/debugsvc"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/interceptor"
	"github.com/shieldkit/webshield/internal/page"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/wscache"
	"github.com/shieldkit/webshield/internal/wstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAddr is the address of the test service.
const testAddr = "127.0.0.1:8183"

// newShieldStore returns a map-based shield store for tests.
func newShieldStore() (s *wstest.ShieldStore) {
	mu := &sync.Mutex{}
	confs := map[string]shield.Configuration{}

	return &wstest.ShieldStore{
		OnGet: func(host string) (c shield.Configuration) {
			mu.Lock()
			defer mu.Unlock()

			c, ok := confs[host]
			if !ok {
				return shield.AllOn()
			}

			return c
		},
		OnSet: func(_ context.Context, host string, c shield.Configuration) {
			mu.Lock()
			defer mu.Unlock()

			confs[host] = c
		},
		OnDelete: func(_ context.Context, host string) {
			mu.Lock()
			defer mu.Unlock()

			delete(confs, host)
		},
		OnReset: func(_ context.Context) {
			mu.Lock()
			defer mu.Unlock()

			clear(confs)
		},
	}
}

// newInterceptor returns an interceptor that blocks every request to
// ads.example as an ad.
func newInterceptor(shields shield.Interface) (i *interceptor.Interceptor) {
	notBlocked := &wstest.Classifier{
		OnIsBlocked: func(_ context.Context, _ *filter.Request) (blocked bool) { return false },
	}

	return interceptor.New(&interceptor.Config{
		Logger:  wstest.Logger,
		Shields: shields,
		HTTPS: &wstest.Rewriter{
			OnRewrite: func(_ context.Context, _ *url.URL) (res *filter.RewriteResult) {
				return filter.NoRewrite
			},
		},
		Malware:  notBlocked,
		Trackers: notBlocked,
		Ads: &wstest.Classifier{
			OnIsBlocked: func(_ context.Context, req *filter.Request) (blocked bool) {
				return req.URL.Hostname() == "ads.example"
			},
		},
		Pages: page.NewRegistry(wstest.Logger, wstest.NewVirtualScheduler()),
		Navigator: &wstest.Navigator{
			OnNavigate: func(_ context.Context, _ string, _ *url.URL) {},
		},
	})
}

// testClearer is a [wscache.Clearer] for tests.
type testClearer struct {
	cleared atomic.Bool
}

// Clear implements the [wscache.Clearer] interface for *testClearer.
func (c *testClearer) Clear() {
	c.cleared.Store(true)
}

func TestService_Start(t *testing.T) {
	refreshed := &atomic.Bool{}
	cache := &testClearer{}

	manager := wscache.NewDefaultManager()
	manager.Add("filter/ads", cache)

	shields := newShieldStore()

	svc := debugsvc.New(&debugsvc.Config{
		Logger:      wstest.Logger,
		Manager:     manager,
		Shields:     shields,
		Interceptor: newInterceptor(shields),
		Refreshers: debugsvc.Refreshers{
			"test": &wstest.Refresher{
				OnRefresh: func(_ context.Context) (err error) {
					refreshed.Store(true)

					return nil
				},
			},
		},
		APIAddr:        testAddr,
		PprofAddr:      testAddr,
		PrometheusAddr: testAddr,
	})
	require.NotNil(t, svc)

	err := svc.Start(testutil.ContextWithTimeout(t, wstest.Timeout))
	require.NoError(t, err)

	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		return svc.Shutdown(testutil.ContextWithTimeout(t, wstest.Timeout))
	})

	client := &http.Client{
		Timeout: 2 * time.Second,
	}

	// The service may not be ready yet, so check the health-check
	// periodically.
	require.EventuallyWithT(t, func(ct *assert.CollectT) {
		code, _ := do(ct, client, http.MethodGet, debugsvc.PathPatternHealthCheck, "")
		assert.Equal(ct, http.StatusOK, code)
	}, wstest.Timeout, 100*time.Millisecond)

	t.Run("pprof", func(t *testing.T) {
		code, body := do(t, client, http.MethodGet, "/debug/pprof/", "")
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, body)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := do(t, client, http.MethodGet, debugsvc.PathPatternMetrics, "")
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, body)
	})

	t.Run("refresh", func(t *testing.T) {
		code, body := do(t, client, http.MethodPost, debugsvc.PathPatternDebugAPIRefresh, `{"ids":["*"]}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, `{"results":{"test":"ok"}}`+"\n", body)
		assert.True(t, refreshed.Load())

		code, _ = do(t, client, http.MethodPost, debugsvc.PathPatternDebugAPIRefresh, `{"ids":[]}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("cache", func(t *testing.T) {
		code, body := do(t, client, http.MethodPost, debugsvc.PathPatternDebugAPICache, `{"ids":["filter/*"]}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, `{"results":{"filter/ads":"ok"}}`+"\n", body)
		assert.True(t, cache.cleared.Load())
	})

	t.Run("shields", func(t *testing.T) {
		const path = "/debug/api/shields/example.com"

		code, body := do(t, client, http.MethodPut, path, `{"https_upgrade":true}`)
		require.Equal(t, http.StatusOK, code)

		assert.Contains(t, body, `"ad_block":false`)
		assert.Contains(t, body, `"https_upgrade":true`)

		code, body = do(t, client, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, code)

		assert.Contains(t, body, `"domain":"example.com"`)
		assert.Contains(t, body, `"ad_block":false`)

		code, _ = do(t, client, http.MethodDelete, path, "")
		require.Equal(t, http.StatusNoContent, code)

		assert.Equal(t, shield.AllOn(), shields.Get("example.com"))

		code, _ = do(t, client, http.MethodGet, "/debug/api/shields/bad_domain!", "")
		assert.Equal(t, http.StatusBadRequest, code)

		shields.Set(context.Background(), "example.org", shield.Configuration{})
		code, _ = do(t, client, http.MethodDelete, debugsvc.PathPatternDebugAPIShields, "")
		require.Equal(t, http.StatusNoContent, code)

		assert.Equal(t, shield.AllOn(), shields.Get("example.org"))
	})

	t.Run("check_and_stats", func(t *testing.T) {
		const reqBody = `{"url":"https://ads.example/banner","document_url":"https://news.example/",` +
			`"page_id":"p1"}`

		code, body := do(t, client, http.MethodPost, debugsvc.PathPatternDebugAPICheck, reqBody)
		require.Equal(t, http.StatusOK, code)

		assert.Contains(t, body, `"action":"block"`)

		code, body = do(t, client, http.MethodGet, "/debug/api/stats/p1", "")
		require.Equal(t, http.StatusOK, code)

		assert.Contains(t, body, `"ads_trackers":1`)

		code, _ = do(t, client, http.MethodPost, "/debug/api/pages/p1/fingerprinting", "")
		require.Equal(t, http.StatusNoContent, code)

		code, body = do(t, client, http.MethodGet, "/debug/api/stats/p1", "")
		require.Equal(t, http.StatusOK, code)

		assert.Contains(t, body, `"fingerprinting":1`)

		code, _ = do(t, client, http.MethodDelete, "/debug/api/pages/p1", "")
		require.Equal(t, http.StatusNoContent, code)

		code, _ = do(t, client, http.MethodGet, "/debug/api/stats/p1", "")
		assert.Equal(t, http.StatusNotFound, code)

		code, _ = do(t, client, http.MethodPost, debugsvc.PathPatternDebugAPICheck, `{"url":""}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("bypass", func(t *testing.T) {
		const reqBody = `{"url":"https://ads.example/banner","document_url":"https://news.example/"}`

		code, _ := do(t, client, http.MethodPut, debugsvc.PathPatternDebugAPIBypass, `{"enabled":true}`)
		require.Equal(t, http.StatusNoContent, code)

		code, body := do(t, client, http.MethodPost, debugsvc.PathPatternDebugAPICheck, reqBody)
		require.Equal(t, http.StatusOK, code)

		assert.Contains(t, body, `"action":"pass"`)
	})
}

// do performs a request to the test service and returns the response code and
// body.
func do(
	t assert.TestingT,
	client *http.Client,
	method string,
	path string,
	body string,
) (code int, respBody string) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}

	req, err := http.NewRequest(method, "http://"+testAddr+path, strings.NewReader(body))
	if !assert.NoError(t, err) {
		return 0, ""
	}

	resp, err := client.Do(req)
	if !assert.NoError(t, err) {
		return 0, ""
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)

	return resp.StatusCode, string(b)
}
