package wshttp_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/shieldkit/webshield/internal/wshttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSrv is the common server name for tests.
const testSrv = "TestServer/1.0"

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

func TestCheckStatus(t *testing.T) {
	testCases := []struct {
		name       string
		srv        string
		wantErrMsg string
		exp        int
		got        int
	}{{
		name:       "ok",
		srv:        testSrv,
		wantErrMsg: "",
		exp:        http.StatusOK,
		got:        http.StatusOK,
	}, {
		name:       "not_found",
		srv:        "",
		wantErrMsg: `server "": status code error: expected 200, got 404`,
		exp:        http.StatusOK,
		got:        http.StatusNotFound,
	}, {
		name:       "not_found_srv",
		srv:        testSrv,
		wantErrMsg: `server "` + testSrv + `": status code error: expected 200, got 404`,
		exp:        http.StatusOK,
		got:        http.StatusNotFound,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tc.got,
				Header: http.Header{
					httphdr.Server: []string{tc.srv},
				},
			}
			err := wshttp.CheckStatus(resp, tc.exp)

			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)
		})
	}
}

func TestETag(t *testing.T) {
	testCases := []struct {
		name string
		hdr  string
		want string
	}{{
		name: "empty",
		hdr:  "",
		want: "",
	}, {
		name: "strong",
		hdr:  `"abc"`,
		want: `"abc"`,
	}, {
		name: "weak",
		hdr:  ` W/"abc" `,
		want: `"abc"`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{},
			}
			resp.Header.Set(wshttp.HdrNameETag, tc.hdr)

			assert.Equal(t, tc.want, wshttp.ETag(resp))
		})
	}
}

func TestClient(t *testing.T) {
	reqCh := make(chan *http.Request, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCh <- r
		w.Header().Set(wshttp.HdrNameETag, `"1"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c := wshttp.NewClient(&wshttp.ClientConfig{
		Timeout: testTimeout,
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	resp, err := c.Head(ctx, u)
	require.NoError(t, err)
	testutil.CleanupAndRequireSuccess(t, resp.Body.Close)

	r, _ := testutil.RequireReceive(t, reqCh, testTimeout)
	assert.Equal(t, http.MethodHead, r.Method)
	assert.Equal(t, wshttp.UserAgent(), r.Header.Get(httphdr.UserAgent))
	assert.Equal(t, `"1"`, wshttp.ETag(resp))

	resp, err = c.Get(ctx, u)
	require.NoError(t, err)
	testutil.CleanupAndRequireSuccess(t, resp.Body.Close)

	r, _ = testutil.RequireReceive(t, reqCh, testTimeout)
	assert.Equal(t, http.MethodGet, r.Method)
}
