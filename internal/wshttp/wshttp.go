// Package wshttp contains common constants, functions, and types for working
// with HTTP.
package wshttp

import "github.com/shieldkit/webshield/internal/version"

// HTTP header name constants that are missing from package httphdr.
const (
	HdrNameContentSecurityPolicy = "Content-Security-Policy"
	HdrNameETag                  = "Etag"
)

// HTTP header value constants.
const (
	HdrValApplicationJSON = "application/json"
	HdrValImageGIF        = "image/gif"
	HdrValTextHTML        = "text/html; charset=utf-8"
	HdrValTextPlain       = "text/plain"
	HdrValScriptSrcNone   = "script-src 'none'"
)

// userAgent is the cached User-Agent string for WebShield.
var userAgent = version.Name() + "/" + version.Version()

// UserAgent returns the ID of the service as a User-Agent string.  It can also
// be used as the value of the Server HTTP header.
func UserAgent() (ua string) {
	return userAgent
}
