// Package rulelist contains the filter-list classifier that wraps an urlfilter
// network engine built from an ABP-style rule list.
package rulelist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/filter/decisioncache"
	"github.com/shieldkit/webshield/internal/metrics"
)

// ErrNoRules is returned by [Filter.Parse] when the artifact contains no
// network rules.
const ErrNoRules errors.Error = "no network rules"

// Exception is an entry of the exception table.  Requests whose URL contains
// URL, made by pages whose domain contains Host, are never blocked.
type Exception struct {
	// Host is the substring of the main-document domain.
	Host string

	// URL is the substring of the request URL.
	URL string
}

// Config is the configuration structure for a [Filter].
type Config struct {
	// Logger is used to log the operation of the filter.  It must not be nil.
	Logger *slog.Logger

	// Cache is the decision cache of this filter.  It must not be nil and must
	// not be shared with other filters.
	Cache *decisioncache.Cache

	// LocalServer is the local content server.  It may be nil.
	LocalServer *filter.LocalServer

	// WelcomeBypass is the optional welcome-page bypass.  If it is not nil,
	// CookieJar must not be nil.
	WelcomeBypass *WelcomeBypassConfig

	// CookieJar is the cookie store used by the welcome-page bypass.
	CookieJar http.CookieJar

	// ID is the identifier of the filter used in logs and metrics.  It must
	// not be empty.
	ID string

	// Exceptions is the exception table.
	Exceptions []*Exception

	// FirstPartyExempt, if true, makes the filter allow requests whose URL
	// contains the domain of the main document.
	FirstPartyExempt bool

	// DocumentFallback, if true, makes the filter use the host of the request
	// URL when the main document is unknown.  Otherwise, such requests are
	// allowed.
	DocumentFallback bool

	// IgnoreRequestType, if true, makes the filter match all requests as
	// [rules.TypeOther] regardless of their Accept header.
	IgnoreRequestType bool

	// Enabled is the initial value of the global switch of the filter.
	Enabled bool
}

// ruleEngine is an installed network engine along with its generation.
type ruleEngine struct {
	eng *urlfilter.NetworkEngine

	// gen is incremented with every install.  Decisions are cached per
	// generation, so a decision made with a replaced engine is never returned
	// for the current one.
	gen uint64
}

// Filter is a filter-list classifier.  Without an installed engine, it blocks
// nothing.
type Filter struct {
	logger *slog.Logger
	cache  *decisioncache.Cache
	local  *filter.LocalServer
	bypass *welcomeBypass

	// installMu serializes installs.
	installMu *sync.Mutex
	engine    *atomic.Pointer[ruleEngine]
	enabled   *atomic.Bool

	hits    prometheus.Counter
	misses  prometheus.Counter
	blocked prometheus.Counter

	id         string
	exceptions []*Exception

	firstPartyExempt  bool
	documentFallback  bool
	ignoreRequestType bool
}

// New returns a new filter without rules.  c must not be nil and must be
// valid.
func New(c *Config) (f *Filter) {
	hits, misses := metrics.FilterCacheLookups(c.ID)

	f = &Filter{
		logger:            c.Logger,
		cache:             c.Cache,
		local:             c.LocalServer,
		installMu:         &sync.Mutex{},
		engine:            &atomic.Pointer[ruleEngine]{},
		enabled:           &atomic.Bool{},
		hits:              hits,
		misses:            misses,
		blocked:           metrics.FilterBlocked(c.ID),
		id:                c.ID,
		exceptions:        c.Exceptions,
		firstPartyExempt:  c.FirstPartyExempt,
		documentFallback:  c.DocumentFallback,
		ignoreRequestType: c.IgnoreRequestType,
	}

	if c.WelcomeBypass != nil {
		f.bypass = newWelcomeBypass(c.Logger, c.WelcomeBypass, c.CookieJar)
	}

	f.enabled.Store(c.Enabled)

	return f
}

// SetEnabled sets the global switch of the filter.
func (f *Filter) SetEnabled(enabled bool) {
	f.enabled.Store(enabled)
}

// type check
var _ filter.Classifier = (*Filter)(nil)

// IsBlocked implements the [filter.Classifier] interface for *Filter.
func (f *Filter) IsBlocked(ctx context.Context, req *filter.Request) (blocked bool) {
	if !f.enabled.Load() {
		return false
	}

	if req.DocumentURL == nil && !f.documentFallback {
		return false
	}

	if f.bypass != nil {
		f.bypass.check(ctx, req)
	}

	if f.local.IsLocal(req.URL) ||
		(req.DocumentURL != nil && f.local.IsLocal(req.DocumentURL)) {
		return false
	}

	domain := req.URL.Hostname()
	if doc := f.local.Strip(req.DocumentURL); doc != nil {
		domain = doc.Hostname()
	}

	u := req.URL.String()
	if f.isException(domain, u) {
		return false
	}

	if f.firstPartyExempt && strings.Contains(u, domain) {
		return false
	}

	re := f.engine.Load()
	if re == nil {
		return false
	}

	key := cacheKey(re.gen, domain, u)
	if v, ok := f.cache.Get(key); ok && v != decisioncache.NotApplicable {
		f.hits.Inc()

		return f.countBlocked(v == decisioncache.Blocked)
	}

	f.misses.Inc()

	blocked = f.match(re.eng, req, u)
	f.cache.Set(key, decisioncache.ValueOf(blocked))

	return f.countBlocked(blocked)
}

// cacheKey returns the decision-cache key for the request to u made by a page
// of domain and matched against the engine of generation gen.
func cacheKey(gen uint64, domain, u string) (k string) {
	return strconv.FormatUint(gen, 10) + "_" + decisioncache.Key(domain, u)
}

// countBlocked increments the blocked counter if blocked is true and returns
// blocked.
func (f *Filter) countBlocked(blocked bool) (res bool) {
	if blocked {
		f.blocked.Inc()
	}

	return blocked
}

// isException returns true if the request to u from a page of domain is in the
// exception table.
func (f *Filter) isException(domain, u string) (ok bool) {
	for _, e := range f.exceptions {
		if strings.Contains(domain, e.Host) && strings.Contains(u, e.URL) {
			return true
		}
	}

	return false
}

// match returns true if eng blocks the request to u.
func (f *Filter) match(eng *urlfilter.NetworkEngine, req *filter.Request, u string) (ok bool) {
	var source string
	if req.DocumentURL != nil {
		source = req.DocumentURL.String()
	}

	typ := rules.TypeOther
	if !f.ignoreRequestType {
		typ = RequestType(req.Accept(), req.IsDocument)
	}

	rule, ok := eng.Match(rules.NewRequest(u, source, typ))

	return ok && rule != nil && !rule.Whitelist
}

// type check
var _ artifact.Consumer[*urlfilter.NetworkEngine] = (*Filter)(nil)

// Parse implements the [artifact.Consumer] interface for *Filter.  It compiles
// the rule list in a into a network engine.
func (f *Filter) Parse(
	_ context.Context,
	a *artifact.Artifact,
) (eng *urlfilter.NetworkEngine, err error) {
	lists := []filterlist.Interface{
		filterlist.NewBytes(&filterlist.BytesConfig{
			RulesText:      a.Data,
			IgnoreCosmetic: true,
		}),
	}

	s, err := filterlist.NewRuleStorage(lists)
	if err != nil {
		return nil, fmt.Errorf("rulelist %s: creating rule storage: %w", f.id, err)
	}

	eng = urlfilter.NewNetworkEngine(s)
	if eng.RulesCount == 0 {
		return nil, fmt.Errorf("rulelist %s: %w", f.id, ErrNoRules)
	}

	return eng, nil
}

// Install implements the [artifact.Consumer] interface for *Filter.  It
// replaces the engine and starts a new generation of cached decisions.
func (f *Filter) Install(ctx context.Context, eng *urlfilter.NetworkEngine) {
	f.installMu.Lock()
	defer f.installMu.Unlock()

	var gen uint64
	if prev := f.engine.Load(); prev != nil {
		gen = prev.gen + 1
	}

	f.engine.Store(&ruleEngine{
		eng: eng,
		gen: gen,
	})

	// Decisions of the previous generations are unreachable now, so free
	// them.
	f.cache.Clear()

	metrics.FilterRulesTotal.WithLabelValues(f.id).Set(float64(eng.RulesCount))
	f.logger.InfoContext(ctx, "reset rules", "num", eng.RulesCount)
}

// RulesCount returns the number of rules in the engine of the filter.
func (f *Filter) RulesCount() (n int) {
	re := f.engine.Load()
	if re == nil {
		return 0
	}

	return re.eng.RulesCount
}
