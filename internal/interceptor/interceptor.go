// Package interceptor contains the request interceptor, which combines the
// shield configurations, the filters, and the HTTPS rewriter into a single
// decision per request.
package interceptor

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/metrics"
	"github.com/shieldkit/webshield/internal/page"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/wshttp"
)

// blockedPage is the page shown instead of dangerous websites.
//
//go:embed blocked.html
var blockedPage []byte

// DefaultFollowUpDelay is the default delay before follow-up navigations
// requested by the filters.
const DefaultFollowUpDelay = 500 * time.Millisecond

// Navigator performs top-level navigations on behalf of the interceptor.
type Navigator interface {
	// Navigate makes the page with the given id navigate to u.  The request
	// it makes is a new top-level navigation, which is intercepted as usual.
	Navigate(ctx context.Context, pageID string, u *url.URL)
}

// Config is the configuration structure for an [Interceptor].
type Config struct {
	// Logger is used for logging the operation of the interceptor.  It must
	// not be nil.
	Logger *slog.Logger

	// Shields is the store of shield configurations.  It must not be nil.
	Shields shield.Interface

	// LocalServer is the local content server.  It may be nil.
	LocalServer *filter.LocalServer

	// HTTPS is the HTTPS upgrade rewriter.  It must not be nil.
	HTTPS filter.Rewriter

	// Malware is the malware and phishing classifier.  It must not be nil.
	Malware filter.Classifier

	// Trackers is the tracker classifier.  It must not be nil.
	Trackers filter.Classifier

	// Ads is the advertising classifier.  It must not be nil.
	Ads filter.Classifier

	// Pages is the page registry.  It must not be nil.
	Pages *page.Registry

	// Navigator performs the scheduled navigations.  It must not be nil.
	Navigator Navigator

	// BlockedPage is the body of the page shown for dangerous websites.  If
	// it is empty, the bundled page is used.
	BlockedPage []byte

	// PixelHosts are the hosts, blocked requests to which are answered with a
	// transparent pixel instead of an empty response.  Their subdomains are
	// included.
	PixelHosts []string

	// FollowUpDelay is the delay before follow-up navigations requested by
	// the filters.  If it is not positive, [DefaultFollowUpDelay] is used.
	FollowUpDelay time.Duration
}

// Interceptor decides what to do with outgoing requests.
type Interceptor struct {
	logger        *slog.Logger
	shields       shield.Interface
	localServer   *filter.LocalServer
	https         filter.Rewriter
	malware       filter.Classifier
	trackers      filter.Classifier
	ads           filter.Classifier
	pages         *page.Registry
	navigator     Navigator
	pixelHosts    *container.MapSet[string]
	blockedPage   []byte
	bypass        *atomic.Bool
	followUpDelay time.Duration
}

// New returns a new properly initialized *Interceptor.  c must not be nil.
func New(c *Config) (i *Interceptor) {
	body := c.BlockedPage
	if len(body) == 0 {
		body = blockedPage
	}

	delay := c.FollowUpDelay
	if delay <= 0 {
		delay = DefaultFollowUpDelay
	}

	pixelHosts := container.NewMapSet[string]()
	for _, h := range c.PixelHosts {
		pixelHosts.Add(strings.ToLower(h))
	}

	return &Interceptor{
		logger:        c.Logger,
		shields:       c.Shields,
		localServer:   c.LocalServer,
		https:         c.HTTPS,
		malware:       c.Malware,
		trackers:      c.Trackers,
		ads:           c.Ads,
		pages:         c.Pages,
		navigator:     c.Navigator,
		pixelHosts:    pixelHosts,
		blockedPage:   body,
		bypass:        &atomic.Bool{},
		followUpDelay: delay,
	}
}

// SetBypass sets the global bypass switch.  While it is on, all requests are
// passed through.
func (i *Interceptor) SetBypass(bypass bool) {
	i.bypass.Store(bypass)
}

// Intercept returns the decision for req.  req must not be nil.  Intercept is
// safe for concurrent use.
func (i *Interceptor) Intercept(ctx context.Context, req *filter.Request) (d *Decision) {
	d = i.intercept(ctx, req)
	metrics.IncrementDecisions(d.Action.String())

	return d
}

// pageRef is a reference to the page generation of a request.  h is only valid
// if ok is true.
type pageRef struct {
	h  page.Handle
	ok bool
}

// intercept returns the decision for req.
func (i *Interceptor) intercept(ctx context.Context, req *filter.Request) (d *Decision) {
	if i.bypass.Load() || !req.IsWeb() || req.IsHandled() {
		return newPass(false)
	}

	if req.DocumentURL != nil && i.localServer.IsLocal(req.DocumentURL) {
		return newPass(false)
	}

	ref := i.pageRef(req)
	defer i.followUp(ctx, req, ref)

	conf := i.shields.Get(i.documentHost(req))
	if conf.IsAllOff() && !conf.ScriptBlocking {
		return newPass(false)
	}

	if conf.HTTPSUpgrade {
		res := i.https.Rewrite(ctx, req.URL)
		if res.Kind == filter.RewriteRewritten {
			return i.upgrade(ctx, req, ref, res.URL)
		}
	}

	if conf.SafeBrowsing && i.malware.IsBlocked(ctx, req) {
		return &Decision{
			ContentType: wshttp.HdrValTextHTML,
			Body:        i.blockedPage,
			Action:      ActionBlockPage,
		}
	}

	if (conf.TrackingProtection && i.trackers.IsBlocked(ctx, req)) ||
		(conf.AdBlock && i.ads.IsBlocked(ctx, req)) {
		i.increment(ref, page.CounterAdsTrackers)
		if i.isPixelHost(req.URL.Hostname()) {
			return newPixel()
		}

		return newEmpty(ActionBlock, nil)
	}

	if conf.ScriptBlocking && isScript(req.URL) {
		i.increment(ref, page.CounterScripts)

		return newEmpty(ActionBlock, nil)
	}

	return newPass(conf.ScriptBlocking && req.IsDocument)
}

// upgrade returns the decision for a request upgraded to u.  Document requests
// are terminated and re-issued as new top-level navigations, which start a new
// page generation and go through all the checks again.  Document requests without a page identity are rewritten in
// place.
func (i *Interceptor) upgrade(
	ctx context.Context,
	req *filter.Request,
	ref pageRef,
	u *url.URL,
) (d *Decision) {
	if req.IsDocument && ref.ok {
		i.navigate(ctx, ref.h, u, 0)

		return newEmpty(ActionNavigate, u)
	}

	i.increment(ref, page.CounterHTTPSUpgrades)

	return &Decision{
		URL:    u,
		Action: ActionRewrite,
	}
}

// pageRef returns the page generation of req.  Document requests start a new
// generation.
func (i *Interceptor) pageRef(req *filter.Request) (ref pageRef) {
	id := req.PageID
	if id == "" {
		id = page.IDFromUserAgent(req.Header.Get(httphdr.UserAgent))
	}

	if id == "" {
		return pageRef{}
	}

	if req.IsDocument {
		return pageRef{h: i.pages.Navigate(id), ok: true}
	}

	return pageRef{h: i.pages.Current(id), ok: true}
}

// documentHost returns the host of the main document of req with the local
// server wrapping removed.
func (i *Interceptor) documentHost(req *filter.Request) (host string) {
	doc := req.DocumentURL
	if doc == nil {
		if !req.IsDocument {
			return ""
		}

		doc = req.URL
	}

	return i.localServer.Strip(doc).Hostname()
}

// followUp schedules the follow-up navigation requested by the filters, if
// any.
func (i *Interceptor) followUp(ctx context.Context, req *filter.Request, ref pageRef) {
	if req.FollowUp == nil {
		return
	}

	if !ref.ok {
		i.logger.DebugContext(ctx, "no page for follow-up", "url", req.FollowUp)

		return
	}

	i.navigate(ctx, ref.h, req.FollowUp, i.followUpDelay)
}

// navigate schedules a navigation of the page generation h to u after delay.
func (i *Interceptor) navigate(ctx context.Context, h page.Handle, u *url.URL, delay time.Duration) {
	ctx = context.WithoutCancel(ctx)
	i.pages.Schedule(h, delay, func() {
		i.logger.DebugContext(ctx, "navigating", "page", h.ID, "url", u)
		i.navigator.Navigate(ctx, h.ID, u)
	})
}

// increment increments the counter c of the page generation ref, if any.
func (i *Interceptor) increment(ref pageRef, c page.Counter) {
	if ref.ok {
		i.pages.Increment(ref.h, c)
	}
}

// isPixelHost returns true if host or one of its parent domains is a pixel
// host.
func (i *Interceptor) isPixelHost(host string) (ok bool) {
	host = strings.ToLower(host)
	for host != "" {
		if i.pixelHosts.Has(host) {
			return true
		}

		_, host, _ = strings.Cut(host, ".")
	}

	return false
}

// ReportFingerprinting records a fingerprinting attempt reported by the page
// with the given id.
func (i *Interceptor) ReportFingerprinting(ctx context.Context, pageID string) {
	if pageID == "" {
		return
	}

	i.pages.Increment(i.pages.Current(pageID), page.CounterFingerprinting)
	i.logger.DebugContext(ctx, "fingerprinting reported", "page", pageID)
}

// Stats returns the statistics of the page with the given id.
func (i *Interceptor) Stats(pageID string) (s page.Stats, ok bool) {
	return i.pages.Stats(pageID)
}

// isScript returns true if u looks like a script resource: its path or one of
// its query values has a JavaScript extension.
func isScript(u *url.URL) (ok bool) {
	if isScriptPath(u.Path) {
		return true
	}

	for _, vals := range u.Query() {
		for _, v := range vals {
			if isScriptPath(v) {
				return true
			}
		}
	}

	return false
}

// isScriptPath returns true if p has a JavaScript extension.
func isScriptPath(p string) (ok bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs":
		return true
	default:
		return false
	}
}

// ClosePage removes the page with the given id.  Its statistics are lost and
// its scheduled navigations are dropped.
func (i *Interceptor) ClosePage(pageID string) {
	i.pages.Close(pageID)
}
