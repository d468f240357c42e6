package interceptor

import (
	"net/url"

	"github.com/shieldkit/webshield/internal/wshttp"
)

// Action is the action the interceptor takes for a request.
type Action uint8

// Action values.
const (
	// ActionPass means that the request must be performed unmodified.
	ActionPass Action = iota

	// ActionRewrite means that the request must be performed with
	// [Decision.URL] instead of the original URL.
	ActionRewrite

	// ActionNavigate means that the request must be terminated with the
	// synthesized response.  The page then navigates to [Decision.URL].
	ActionNavigate

	// ActionBlock means that the request must be terminated with the
	// synthesized response.
	ActionBlock

	// ActionBlockPage means that the request must be terminated with the
	// blocked page.
	ActionBlockPage
)

// String implements the [fmt.Stringer] interface for Action.
func (a Action) String() (s string) {
	switch a {
	case ActionPass:
		return "pass"
	case ActionRewrite:
		return "rewrite"
	case ActionNavigate:
		return "navigate"
	case ActionBlock:
		return "block"
	case ActionBlockPage:
		return "block_page"
	default:
		return "!bad_action"
	}
}

// Decision is the result of intercepting a request.
type Decision struct {
	// URL is the new URL of the request for [ActionRewrite] and
	// [ActionNavigate].  It is nil otherwise.
	URL *url.URL

	// ContentType is the content type of Body.  It is empty unless the
	// response is synthesized.
	ContentType string

	// Body is the synthesized response body.  It may be empty even when the
	// response is synthesized.
	Body []byte

	// Action is the action to take.
	Action Action

	// StripScripts is true if script execution must be disabled in the
	// response.  It is only set for passed document requests.
	StripScripts bool
}

// IsSynthesized returns true if the response for the request is synthesized
// and the request must not be performed.
func (d *Decision) IsSynthesized() (ok bool) {
	switch d.Action {
	case ActionNavigate, ActionBlock, ActionBlockPage:
		return true
	default:
		return false
	}
}

// pixelGIF is a 1×1 transparent GIF.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// newPass returns a pass-through decision.
func newPass(stripScripts bool) (d *Decision) {
	return &Decision{
		Action:       ActionPass,
		StripScripts: stripScripts,
	}
}

// newEmpty returns a decision with the action a and an empty HTML body.
func newEmpty(a Action, u *url.URL) (d *Decision) {
	return &Decision{
		URL:         u,
		ContentType: wshttp.HdrValTextHTML,
		Body:        []byte{},
		Action:      a,
	}
}

// newPixel returns a blocking decision with a transparent pixel.
func newPixel() (d *Decision) {
	return &Decision{
		ContentType: wshttp.HdrValImageGIF,
		Body:        pixelGIF,
		Action:      ActionBlock,
	}
}
