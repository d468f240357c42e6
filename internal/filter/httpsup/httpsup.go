// Package httpsup contains the HTTPS upgrade rewriter, which rewrites plain
// HTTP URLs into HTTPS ones using rulesets in the HTTPS Everywhere format.
package httpsup

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/metrics"
	"github.com/shieldkit/webshield/internal/wscache"
)

const (
	// ErrEmptyIndex is returned when the domain index has no domains.
	ErrEmptyIndex errors.Error = "empty domain index"

	// ErrNoBucket is returned when the ruleset database has no rulesets
	// bucket.
	ErrNoBucket errors.Error = "no rulesets bucket"

	// ErrNoRuleset is returned when a ruleset row has no ruleset object.
	ErrNoRuleset errors.Error = "no ruleset object"

	// ErrNoRulesets is returned when the ruleset database has no rulesets.
	ErrNoRulesets errors.Error = "no rulesets"
)

// Config is the configuration structure for a [Rewriter].
type Config struct {
	// Logger is used to log the operation of the rewriter.  It must not be
	// nil.
	Logger *slog.Logger

	// LocalServer is the local content server.  It may be nil.
	LocalServer *filter.LocalServer

	// Ignored are the substrings of URLs that must never be rewritten.
	Ignored []string

	// CacheSize is the size of the compiled ruleset cache.  If it is zero,
	// rulesets are compiled on every use.  It must not be negative.
	CacheSize int

	// Enabled is the initial value of the global switch of the rewriter.
	Enabled bool
}

// Rewriter is the HTTPS upgrade rewriter.  Until both the domain index and the
// rulesets are installed, it rewrites nothing.
type Rewriter struct {
	logger *slog.Logger
	local  *filter.LocalServer

	// cache contains the compiled rulesets by generation and identifier.  A
	// nil value means that the ruleset is malformed.
	cache wscache.Interface[cacheKey, *Ruleset]

	// mu serializes the updates of cur.
	mu  *sync.Mutex
	cur *atomic.Pointer[view]

	enabled *atomic.Bool

	ignored []string
}

// view is the immutable data of the rewriter.
type view struct {
	index    DomainIndex
	rulesets Rulesets
	gen      uint64
}

// cacheKey is the key of the compiled ruleset cache.
type cacheKey struct {
	gen uint64
	id  uint32
}

// New returns a new rewriter without data.  c must not be nil.
func New(c *Config) (rw *Rewriter) {
	var cache wscache.Interface[cacheKey, *Ruleset]
	if c.CacheSize == 0 {
		cache = wscache.Empty[cacheKey, *Ruleset]{}
	} else {
		cache = wscache.NewLRU[cacheKey, *Ruleset](&wscache.LRUConfig{
			Size: c.CacheSize,
		})
	}

	rw = &Rewriter{
		logger:  c.Logger,
		local:   c.LocalServer,
		cache:   cache,
		mu:      &sync.Mutex{},
		cur:     &atomic.Pointer[view]{},
		enabled: &atomic.Bool{},
		ignored: c.Ignored,
	}

	rw.cur.Store(&view{})
	rw.enabled.Store(c.Enabled)

	return rw
}

// IndexConsumer returns the artifact consumer for the domain index.
func (rw *Rewriter) IndexConsumer() (c artifact.Consumer[DomainIndex]) {
	return indexConsumer{rw: rw}
}

// RulesetsConsumer returns the artifact consumer for the ruleset database.
func (rw *Rewriter) RulesetsConsumer() (c artifact.Consumer[Rulesets]) {
	return rulesetsConsumer{rw: rw}
}

// Cache returns the compiled ruleset cache, so that it can be cleared
// externally.
func (rw *Rewriter) Cache() (c wscache.Clearer) {
	return rw.cache
}

// SetEnabled sets the global switch of the rewriter.
func (rw *Rewriter) SetEnabled(enabled bool) {
	rw.enabled.Store(enabled)
}

// update replaces the current view with a copy changed by f and purges the
// compiled rulesets.
func (rw *Rewriter) update(f func(v *view)) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	v := *rw.cur.Load()
	f(&v)
	v.gen++

	rw.cur.Store(&v)
	rw.cache.Clear()
}

// type check
var _ filter.Rewriter = (*Rewriter)(nil)

// Rewrite implements the [filter.Rewriter] interface for *Rewriter.
func (rw *Rewriter) Rewrite(ctx context.Context, u *url.URL) (res *filter.RewriteResult) {
	res = rw.rewrite(ctx, u)
	switch res.Kind {
	case filter.RewriteChecked:
		metrics.HTTPSUpResultsChecked.Inc()
	case filter.RewriteRewritten:
		metrics.HTTPSUpResultsRewritten.Inc()
	default:
		metrics.HTTPSUpResultsNone.Inc()
	}

	return res
}

// rewrite returns the result of rewriting u.
func (rw *Rewriter) rewrite(ctx context.Context, u *url.URL) (res *filter.RewriteResult) {
	if !rw.enabled.Load() || !strings.EqualFold(u.Scheme, urlutil.SchemeHTTP) {
		return filter.NoRewrite
	}

	stripped := rw.local.Strip(u)
	if !strings.EqualFold(stripped.Scheme, urlutil.SchemeHTTP) || rw.isIgnored(stripped.String()) {
		return filter.NoRewrite
	}

	v := rw.cur.Load()
	if v.index == nil || v.rulesets == nil {
		return filter.NoRewrite
	}

	host := strings.ToLower(stripped.Hostname())
	ids := v.index.Lookup(host)
	if len(ids) == 0 {
		return filter.NoRewrite
	}

	prefix := strings.ToLower(stripped.Scheme) + "://" + host + "/"
	for _, id := range ids {
		rewritten, ok := rw.apply(ctx, v, id, prefix)
		if !ok {
			continue
		}

		if rw.isIgnored(rewritten) {
			return filter.NoRewrite
		}

		newURL, err := url.Parse(rewritten + suffix(stripped))
		if err != nil {
			rw.logger.DebugContext(ctx, "bad rewritten url", "id", id, slogutil.KeyError, err)

			continue
		}

		return &filter.RewriteResult{
			URL:  newURL,
			Kind: filter.RewriteRewritten,
		}
	}

	return &filter.RewriteResult{
		URL:  u,
		Kind: filter.RewriteChecked,
	}
}

// apply applies the ruleset with the given id from v to prefix.
func (rw *Rewriter) apply(
	ctx context.Context,
	v *view,
	id uint32,
	prefix string,
) (rewritten string, ok bool) {
	rs := rw.ruleset(ctx, v, id)
	if rs == nil || !rs.IsActive() {
		return "", false
	}

	rewritten, ok, err := rs.Apply(prefix)
	if err != nil {
		rw.logger.DebugContext(ctx, "applying ruleset", "id", id, slogutil.KeyError, err)

		return "", false
	}

	return rewritten, ok
}

// ruleset returns the compiled ruleset with the given id from v.  It returns
// nil if there is no such ruleset or if it is malformed.
func (rw *Rewriter) ruleset(ctx context.Context, v *view, id uint32) (rs *Ruleset) {
	key := cacheKey{gen: v.gen, id: id}
	rs, ok := rw.cache.Get(key)
	if ok {
		return rs
	}

	data, ok := v.rulesets[id]
	if !ok {
		return nil
	}

	rs, err := ParseRuleset(data)
	if err != nil {
		metrics.HTTPSUpMalformedRulesets.Inc()
		rw.logger.WarnContext(ctx, "skipping malformed ruleset", "id", id, slogutil.KeyError, err)

		rs = nil
	}

	rw.cache.Set(key, rs)

	return rs
}

// isIgnored returns true if s contains one of the ignored substrings.
func (rw *Rewriter) isIgnored(s string) (ok bool) {
	for _, ign := range rw.ignored {
		if strings.Contains(s, ign) {
			return true
		}
	}

	return false
}

// suffix returns the part of u after the "scheme://host/" prefix.
func suffix(u *url.URL) (s string) {
	s = strings.TrimPrefix(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}

	if u.Fragment != "" {
		s += "#" + u.EscapedFragment()
	}

	return s
}
