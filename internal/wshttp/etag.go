package wshttp

import (
	"net/http"
	"strings"
)

// ETag returns the entity tag of resp without the weak-validator prefix.  etag
// is empty if there is no ETag header.  resp must not be nil.
func ETag(resp *http.Response) (etag string) {
	etag = strings.TrimSpace(resp.Header.Get(HdrNameETag))

	return strings.TrimPrefix(etag, "W/")
}
