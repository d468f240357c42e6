package rulelist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	cache "github.com/patrickmn/go-cache"
	"github.com/shieldkit/webshield/internal/filter"
)

// WelcomeBypassConfig is the configuration of the welcome-page bypass.  Some
// sites redirect visitors with ad blockers to a welcome page, which is skipped
// by setting their bypass cookies and navigating to the root of the site.
type WelcomeBypassConfig struct {
	// Root is the URL of the site root.  The cookies are set for it and the
	// follow-up navigation goes to it.  It must not be nil.
	Root *url.URL

	// Host is the substring of the request host that enables the bypass.  It
	// must not be empty.
	Host string

	// WelcomePath is the substring of the URL of the welcome page.  It must
	// not be empty.
	WelcomePath string

	// Cookies are the bypass cookies.
	Cookies []*http.Cookie

	// MaxRedirects is the maximum number of follow-up navigations within
	// Window.  It must be positive.
	MaxRedirects int

	// Window is the duration of the redirect-loop window.  It must be
	// positive.
	Window time.Duration
}

// welcomeBypass sets the bypass cookies and requests follow-up navigations.
type welcomeBypass struct {
	logger *slog.Logger
	jar    http.CookieJar

	// redirects contains the number of follow-up navigations by root host
	// within the current window.
	redirects *cache.Cache

	root        *url.URL
	host        string
	welcomePath string
	cookies     []*http.Cookie

	maxRedirects int
	window       time.Duration
}

// newWelcomeBypass returns a new welcome-page bypass.  c must not be nil.
func newWelcomeBypass(l *slog.Logger, c *WelcomeBypassConfig, jar http.CookieJar) (b *welcomeBypass) {
	return &welcomeBypass{
		logger:       l,
		jar:          jar,
		redirects:    cache.New(c.Window, 2*c.Window),
		root:         c.Root,
		host:         c.Host,
		welcomePath:  c.WelcomePath,
		cookies:      c.Cookies,
		maxRedirects: c.MaxRedirects,
		window:       c.Window,
	}
}

// check sets the cookies if req goes to the bypassed site and requests a
// follow-up navigation if it is for the welcome page.
func (b *welcomeBypass) check(ctx context.Context, req *filter.Request) {
	if !strings.Contains(req.URL.Hostname(), b.host) {
		return
	}

	b.setCookies()

	if !strings.Contains(req.URL.String(), b.welcomePath) {
		return
	}

	n, err := b.countRedirect()
	if err != nil {
		b.logger.WarnContext(ctx, "counting welcome redirects", slogutil.KeyError, err)

		return
	}

	if n > b.maxRedirects {
		b.logger.DebugContext(ctx, "welcome redirect loop", "host", b.root.Host, "num", n)

		return
	}

	req.FollowUp = b.root
}

// setCookies sets the bypass cookies that aren't set already.
func (b *welcomeBypass) setCookies() {
	existing := map[string]struct{}{}
	for _, c := range b.jar.Cookies(b.root) {
		existing[c.Name] = struct{}{}
	}

	var missing []*http.Cookie
	for _, c := range b.cookies {
		if _, ok := existing[c.Name]; !ok {
			missing = append(missing, c)
		}
	}

	if len(missing) > 0 {
		b.jar.SetCookies(b.root, missing)
	}
}

// countRedirect increments and returns the number of redirects within the
// current window.
func (b *welcomeBypass) countRedirect() (n int, err error) {
	key := b.root.Host

	// Ignore the error, since it only means that the window has already
	// started.
	_ = b.redirects.Add(key, 0, b.window)

	n, err = b.redirects.IncrementInt(key, 1)
	if err != nil {
		return 0, fmt.Errorf("incrementing: %w", err)
	}

	return n, nil
}
