package rulelist

import (
	"strings"

	"github.com/AdguardTeam/urlfilter/rules"
)

// RequestType returns the urlfilter request type for a request with the given
// Accept header.  isDocument is true for requests of main documents.
func RequestType(accept string, isDocument bool) (typ rules.RequestType) {
	accept = strings.ToLower(accept)

	switch {
	case isDocument:
		return rules.TypeDocument
	case strings.Contains(accept, "text/css"):
		return rules.TypeStylesheet
	case strings.HasPrefix(accept, "image/"):
		return rules.TypeImage
	case strings.Contains(accept, "javascript"), strings.Contains(accept, "ecmascript"):
		return rules.TypeScript
	case strings.HasPrefix(accept, "video/"), strings.HasPrefix(accept, "audio/"):
		return rules.TypeMedia
	case strings.HasPrefix(accept, "font/"), strings.Contains(accept, "font-woff"):
		return rules.TypeFont
	case strings.HasPrefix(accept, "text/html"), strings.Contains(accept, "application/xhtml"):
		return rules.TypeSubdocument
	default:
		return rules.TypeOther
	}
}
