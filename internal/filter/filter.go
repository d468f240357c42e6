// Package filter contains the request descriptor and the interfaces shared by
// the WebShield filters.
package filter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
)

// HdrNameHandled is the header that marks requests that have already been
// intercepted, such as re-issued navigations.  Such requests are not
// intercepted again.
const HdrNameHandled = "X-Webshield-Handled"

// Request is the descriptor of an outgoing request.
type Request struct {
	// URL is the destination URL.  It must not be nil.
	URL *url.URL

	// DocumentURL is the URL of the main document of the page that makes the
	// request.  It is nil if unknown.
	DocumentURL *url.URL

	// Header contains the request headers.  Only Accept, User-Agent, and
	// [HdrNameHandled] are used.  It must not be nil.
	Header http.Header

	// FollowUp is set by the filters when the request requires a follow-up
	// top-level navigation to this URL.
	FollowUp *url.URL

	// Method is the HTTP method of the request.
	Method string

	// PageID is the opaque identity of the page making the request.  If it is
	// empty, the identity is taken from the User-Agent header.
	PageID string

	// IsDocument is true if the request is for the main document itself.
	IsDocument bool
}

// Accept returns the value of the Accept header of r.
func (r *Request) Accept() (accept string) {
	return r.Header.Get(httphdr.Accept)
}

// DocumentHost returns the host of the main document or an empty string if it
// is unknown.
func (r *Request) DocumentHost() (host string) {
	if r.DocumentURL == nil {
		return ""
	}

	return r.DocumentURL.Hostname()
}

// IsHandled returns true if r has been marked as already intercepted.
func (r *Request) IsHandled() (ok bool) {
	return r.Header.Get(HdrNameHandled) != ""
}

// IsWeb returns true if the scheme of the request URL is HTTP or HTTPS.
func (r *Request) IsWeb() (ok bool) {
	return urlutil.IsValidHTTPURLScheme(strings.ToLower(r.URL.Scheme))
}

// Classifier decides whether requests must be blocked.
type Classifier interface {
	// IsBlocked returns true if req must be blocked.  It may set
	// req.FollowUp.  req must not be nil.
	IsBlocked(ctx context.Context, req *Request) (blocked bool)
}

// Rewriter rewrites request URLs.
type Rewriter interface {
	// Rewrite returns the result of rewriting u.  u must not be nil.
	Rewrite(ctx context.Context, u *url.URL) (res *RewriteResult)
}

// RewriteKind is the kind of the result of a rewrite.
type RewriteKind uint8

// RewriteKind values.
const (
	// RewriteNone means that no ruleset applies to the URL.
	RewriteNone RewriteKind = iota

	// RewriteChecked means that there are rulesets for the URL, but none of
	// them changes it.
	RewriteChecked

	// RewriteRewritten means that the URL has been rewritten.
	RewriteRewritten
)

// String implements the [fmt.Stringer] interface for RewriteKind.
func (k RewriteKind) String() (s string) {
	switch k {
	case RewriteNone:
		return "none"
	case RewriteChecked:
		return "checked"
	case RewriteRewritten:
		return "rewritten"
	default:
		return "!bad_rewrite_kind"
	}
}

// RewriteResult is the result of a rewrite.
type RewriteResult struct {
	// URL is the resulting URL.  It is nil if Kind is [RewriteNone].  It is
	// the original URL if Kind is [RewriteChecked].
	URL *url.URL

	// Kind is the kind of the result.
	Kind RewriteKind
}

// NoRewrite is the result for URLs without rulesets.
var NoRewrite = &RewriteResult{
	Kind: RewriteNone,
}
