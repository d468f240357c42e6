package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/page"
	"github.com/shieldkit/webshield/internal/wshttp"
)

// HTTP headers used to describe the intercepted requests.
const (
	// HdrNameDocumentURL is the header with the URL of the main document of
	// the page.  If it is absent, the Referer header is used.
	HdrNameDocumentURL = "X-Webshield-Document-Url"

	// HdrNameSecFetchDest is the standard fetch metadata header, the value
	// "document" of which marks top-level document requests.
	HdrNameSecFetchDest = "Sec-Fetch-Dest"
)

// Transport is an [http.RoundTripper] that intercepts the requests before
// performing them with the base transport.
type Transport struct {
	logger      *slog.Logger
	interceptor *Interceptor
	base        http.RoundTripper
}

// NewTransport returns a new *Transport.  All arguments must not be nil.
func NewTransport(l *slog.Logger, i *Interceptor, base http.RoundTripper) (t *Transport) {
	return &Transport{
		logger:      l,
		interceptor: i,
		base:        base,
	}
}

// type check
var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements the [http.RoundTripper] interface for *Transport.
func (t *Transport) RoundTrip(r *http.Request) (resp *http.Response, err error) {
	ctx := r.Context()
	d := t.interceptor.Intercept(ctx, newRequest(r))

	switch d.Action {
	case ActionPass:
		return t.pass(r, d.StripScripts)
	case ActionRewrite:
		t.logger.DebugContext(ctx, "rewriting", "from", r.URL, "to", d.URL)

		r = r.Clone(ctx)
		r.URL = d.URL
		r.Host = ""

		return t.pass(r, false)
	default:
		return synthesize(r, d), nil
	}
}

// pass performs r with the base transport and, if stripScripts is true,
// forbids scripts in the response.
func (t *Transport) pass(r *http.Request, stripScripts bool) (resp *http.Response, err error) {
	if r.Header.Get(filter.HdrNameHandled) != "" {
		r = r.Clone(r.Context())
		r.Header.Del(filter.HdrNameHandled)
	}

	resp, err = t.base.RoundTrip(r)
	if err != nil {
		// Don't wrap the error, since the callers of RoundTrip may inspect it.
		return nil, err
	}

	if stripScripts {
		resp.Header.Set(wshttp.HdrNameContentSecurityPolicy, wshttp.HdrValScriptSrcNone)
	}

	return resp, nil
}

// synthesize returns the response synthesized from d for r.
func synthesize(r *http.Request, d *Decision) (resp *http.Response) {
	h := http.Header{}
	h.Set(httphdr.ContentType, d.ContentType)
	h.Set(httphdr.ContentLength, strconv.Itoa(len(d.Body)))
	h.Set(httphdr.CacheControl, "no-store")

	return &http.Response{
		Status:        http.StatusText(http.StatusOK),
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(d.Body)),
		ContentLength: int64(len(d.Body)),
		Request:       r,
	}
}

// newRequest returns the request descriptor for r.
func newRequest(r *http.Request) (req *filter.Request) {
	return &filter.Request{
		URL:         r.URL,
		DocumentURL: documentURL(r.Header),
		Header:      r.Header,
		Method:      r.Method,
		IsDocument:  r.Header.Get(HdrNameSecFetchDest) == "document",
	}
}

// documentURL returns the URL of the main document from h or nil if there is
// none.
func documentURL(h http.Header) (u *url.URL) {
	v := h.Get(HdrNameDocumentURL)
	if v == "" {
		v = h.Get(httphdr.Referer)
	}

	if v == "" {
		return nil
	}

	u, err := url.Parse(v)
	if err != nil {
		return nil
	}

	return u
}

// ClientNavigator is a [Navigator] that performs the navigations with an HTTP
// client.
type ClientNavigator struct {
	logger *slog.Logger
	client *http.Client
}

// NewClientNavigator returns a new *ClientNavigator.  All arguments must not be
// nil.
func NewClientNavigator(l *slog.Logger, client *http.Client) (n *ClientNavigator) {
	return &ClientNavigator{
		logger: l,
		client: client,
	}
}

// type check
var _ Navigator = (*ClientNavigator)(nil)

// Navigate implements the [Navigator] interface for *ClientNavigator.
func (n *ClientNavigator) Navigate(ctx context.Context, pageID string, u *url.URL) {
	err := n.navigate(ctx, pageID, u)
	if err != nil {
		n.logger.WarnContext(ctx, "navigating", "url", u, slogutil.KeyError, err)
	}
}

// navigate performs the navigation request.
func (n *ClientNavigator) navigate(ctx context.Context, pageID string, u *url.URL) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set(HdrNameSecFetchDest, "document")
	req.Header.Set(httphdr.UserAgent, wshttp.UserAgent()+" "+page.UserAgentToken+pageID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	_, err = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	return nil
}
