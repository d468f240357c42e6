package interceptor_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/interceptor"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/wshttp"
	"github.com/shieldkit/webshield/internal/wstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBody is the body of the responses of the test server.
const testBody = "<html>content</html>"

// newTestServer returns a test server that responds with testBody and sends
// the paths and handled markers of the requests into the returned channel.
func newTestServer(tb testing.TB) (srv *httptest.Server, reqs chan *http.Request) {
	tb.Helper()

	reqs = make(chan *http.Request, 10)
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r
		w.Header().Set(httphdr.ContentType, wshttp.HdrValTextHTML)
		_, _ = io.WriteString(w, testBody)
	}))
	tb.Cleanup(srv.Close)

	return srv, reqs
}

// doRequest performs a GET request to u with the transport and the headers h
// and returns the response and its body.
func doRequest(
	tb testing.TB,
	rt http.RoundTripper,
	u string,
	h http.Header,
) (resp *http.Response, body string) {
	tb.Helper()

	ctx := testutil.ContextWithTimeout(tb, wstest.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	require.NoError(tb, err)

	for k, v := range h {
		req.Header[k] = v
	}

	resp, err = rt.RoundTrip(req)
	require.NoError(tb, err)

	b, err := io.ReadAll(resp.Body)
	require.NoError(tb, err)
	require.NoError(tb, resp.Body.Close())

	return resp, string(b)
}

func TestTransport_RoundTrip(t *testing.T) {
	t.Parallel()

	srv, reqs := newTestServer(t)

	t.Run("pass", func(t *testing.T) {
		env := newTestEnv(t, shield.AllOn())
		rt := interceptor.NewTransport(wstest.Logger, env.interceptor, http.DefaultTransport)

		resp, body := doRequest(t, rt, srv.URL+"/page", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, testBody, body)
		assert.Empty(t, resp.Header.Get(wshttp.HdrNameContentSecurityPolicy))

		r, ok := testutil.RequireReceive(t, reqs, wstest.Timeout)
		require.True(t, ok)

		assert.Equal(t, "/page", r.URL.Path)
	})

	t.Run("strip_scripts", func(t *testing.T) {
		conf := shield.AllOn()
		conf.ScriptBlocking = true

		env := newTestEnv(t, conf)
		rt := interceptor.NewTransport(wstest.Logger, env.interceptor, http.DefaultTransport)

		resp, body := doRequest(t, rt, srv.URL+"/", http.Header{
			interceptor.HdrNameSecFetchDest: []string{"document"},
		})
		assert.Equal(t, testBody, body)
		assert.Equal(t, wshttp.HdrValScriptSrcNone, resp.Header.Get(wshttp.HdrNameContentSecurityPolicy))

		_, ok := testutil.RequireReceive(t, reqs, wstest.Timeout)
		require.True(t, ok)
	})

	t.Run("block", func(t *testing.T) {
		env := newTestEnv(t, shield.AllOn())
		env.ads = func(req *filter.Request) (blocked bool) {
			return req.DocumentURL != nil && req.DocumentURL.Host == "www.example.com"
		}

		rt := interceptor.NewTransport(wstest.Logger, env.interceptor, http.DefaultTransport)

		resp, body := doRequest(t, rt, srv.URL+"/ad", http.Header{
			httphdr.Referer: []string{"https://www.example.com/"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body)
		assert.Equal(t, wshttp.HdrValTextHTML, resp.Header.Get(httphdr.ContentType))
		assert.Empty(t, reqs)
	})

	t.Run("rewrite", func(t *testing.T) {
		env := newTestEnv(t, shield.AllOn())
		env.rewrite = func(u *url.URL) (res *filter.RewriteResult) {
			if u.Path != "/old" {
				return filter.NoRewrite
			}

			to := *u
			to.Path = "/new"

			return &filter.RewriteResult{URL: &to, Kind: filter.RewriteRewritten}
		}

		rt := interceptor.NewTransport(wstest.Logger, env.interceptor, http.DefaultTransport)

		_, body := doRequest(t, rt, srv.URL+"/old", http.Header{
			interceptor.HdrNameDocumentURL: []string{"https://www.example.com/"},
		})
		assert.Equal(t, testBody, body)

		r, ok := testutil.RequireReceive(t, reqs, wstest.Timeout)
		require.True(t, ok)

		assert.Equal(t, "/new", r.URL.Path)
	})

	t.Run("handled", func(t *testing.T) {
		env := newTestEnv(t, shield.AllOn())
		env.ads = blockAll

		rt := interceptor.NewTransport(wstest.Logger, env.interceptor, http.DefaultTransport)

		_, body := doRequest(t, rt, srv.URL+"/ad", http.Header{
			filter.HdrNameHandled: []string{"1"},
		})
		assert.Equal(t, testBody, body)

		r, ok := testutil.RequireReceive(t, reqs, wstest.Timeout)
		require.True(t, ok)

		assert.Empty(t, r.Header.Get(filter.HdrNameHandled))
	})
}

func TestClientNavigator_Navigate(t *testing.T) {
	t.Parallel()

	srv, reqs := newTestServer(t)
	nav := interceptor.NewClientNavigator(wstest.Logger, srv.Client())

	ctx := testutil.ContextWithTimeout(t, wstest.Timeout)
	nav.Navigate(ctx, "page-7", wstest.MustParseURL(t, srv.URL+"/landing"))

	r, ok := testutil.RequireReceive(t, reqs, wstest.Timeout)
	require.True(t, ok)

	assert.Equal(t, "/landing", r.URL.Path)
	assert.Empty(t, r.Header.Get(filter.HdrNameHandled))
	assert.Equal(t, "document", r.Header.Get(interceptor.HdrNameSecFetchDest))
	assert.Contains(t, r.Header.Get(httphdr.UserAgent), "WebShieldPage/page-7")
}

func TestClientNavigator_Navigate_intercepted(t *testing.T) {
	t.Parallel()

	srv, reqs := newTestServer(t)

	env := newTestEnv(t, shield.AllOn())
	env.malware = blockAll

	client := srv.Client()
	client.Transport = interceptor.NewTransport(wstest.Logger, env.interceptor, client.Transport)

	nav := interceptor.NewClientNavigator(wstest.Logger, client)

	ctx := testutil.ContextWithTimeout(t, wstest.Timeout)
	nav.Navigate(ctx, testPageID, wstest.MustParseURL(t, srv.URL+"/login"))

	// The navigation is blocked by the transport and never reaches the server.
	assert.Empty(t, reqs)
}
