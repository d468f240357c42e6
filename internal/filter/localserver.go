package filter

import (
	"net/url"
	"strings"
)

// LocalServer is the local content server of the host application, which
// serves internal pages such as error pages.  Requests made from its pages are
// never filtered.  A nil *LocalServer means that there is no local server.
type LocalServer struct {
	scheme string
	host   string
	path   string
}

// NewLocalServer returns a new *LocalServer with the given base URL.  If base
// is nil, NewLocalServer returns nil.
func NewLocalServer(base *url.URL) (s *LocalServer) {
	if base == nil {
		return nil
	}

	return &LocalServer{
		scheme: strings.ToLower(base.Scheme),
		host:   strings.ToLower(base.Host),
		path:   base.Path,
	}
}

// IsLocal returns true if u is served by the local server.  u must not be nil.
func (s *LocalServer) IsLocal(u *url.URL) (ok bool) {
	if s == nil {
		return false
	}

	return strings.EqualFold(u.Scheme, s.scheme) &&
		strings.EqualFold(u.Host, s.host) &&
		strings.HasPrefix(u.Path, s.path)
}

// Strip returns the URL wrapped by a local page, such as an error page for a
// URL, taken from its "url" query parameter.  If u is not local or does not
// wrap a URL, u is returned.  u may be nil.
func (s *LocalServer) Strip(u *url.URL) (stripped *url.URL) {
	if u == nil || !s.IsLocal(u) {
		return u
	}

	wrapped := u.Query().Get("url")
	if wrapped == "" {
		return u
	}

	stripped, err := url.Parse(wrapped)
	if err != nil || stripped.Host == "" {
		return u
	}

	return stripped
}
