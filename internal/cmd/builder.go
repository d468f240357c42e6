package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/urlfilter"
	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/debugsvc"
	"github.com/shieldkit/webshield/internal/errcoll"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/filter/httpsup"
	"github.com/shieldkit/webshield/internal/filter/rulelist"
	"github.com/shieldkit/webshield/internal/interceptor"
	"github.com/shieldkit/webshield/internal/page"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/shield/shieldbolt"
	"github.com/shieldkit/webshield/internal/ws"
	"github.com/shieldkit/webshield/internal/wscache"
	"github.com/shieldkit/webshield/internal/wshttp"
	"github.com/shieldkit/webshield/internal/wstime"
	"golang.org/x/net/publicsuffix"
)

// builder contains the logic of configuring and combining together WebShield
// entities.
//
// NOTE:  Keep method definitions in the rough order in which they are intended
// to be called.
type builder struct {
	// The fields below are initialized immediately on construction.  Keep them
	// sorted.

	baseLogger   *slog.Logger
	cacheManager *wscache.DefaultManager
	conf         *configuration
	debugRefrs   debugsvc.Refreshers
	env          *environment
	errColl      errcoll.Interface
	logger       *slog.Logger
	sched        wstime.Scheduler
	sigHdlr      *service.SignalHandler

	// The fields below are initialized later by calling the builder's methods.
	// Keep them sorted.

	ads         *rulelist.Filter
	client      *wshttp.Client
	httpsUp     *httpsup.Rewriter
	interceptor *interceptor.Interceptor
	jar         http.CookieJar
	localServer *filter.LocalServer
	malware     *rulelist.Filter
	shields     *shield.DefaultStore
	trackers    *rulelist.Filter
}

// builderConfig contains the initial configuration for the builder.
type builderConfig struct {
	// envs contains the environment variables for the builder.  It must be
	// valid and must not be nil.
	envs *environment

	// conf contains the configuration from the configuration file for the
	// builder.  It must be valid and must not be nil.
	conf *configuration

	// baseLogger is used to create loggers for other entities.  It should not
	// have a prefix and must not be nil.
	baseLogger *slog.Logger

	// errColl is used to collect errors in the entities.  It must not be nil.
	errColl errcoll.Interface
}

// shutdownTimeout is the default shutdown timeout for all services.
const shutdownTimeout = 5 * time.Second

// Identifiers of the filters and artifacts.  They are used in logs, metrics,
// and as the ids of refreshers and caches.
const (
	idAds           = "ads"
	idTrackers      = "trackers"
	idMalware       = "malware"
	idHTTPSIndex    = "https_index"
	idHTTPSRulesets = "https_rulesets"
)

// newBuilder returns a new properly initialized builder.  c must not be nil.
func newBuilder(c *builderConfig) (b *builder) {
	return &builder{
		baseLogger:   c.baseLogger,
		cacheManager: wscache.NewDefaultManager(),
		conf:         c.conf,
		debugRefrs:   debugsvc.Refreshers{},
		env:          c.envs,
		errColl:      c.errColl,
		logger:       c.baseLogger.With(slogutil.KeyPrefix, "builder"),
		sched:        wstime.SystemScheduler{},
		sigHdlr: service.NewSignalHandler(&service.SignalHandlerConfig{
			Logger:          c.baseLogger.With(slogutil.KeyPrefix, service.SignalHandlerPrefix),
			ShutdownTimeout: shutdownTimeout,
		}),
	}
}

// initCrashReporter initializes the crash reporter.
func (b *builder) initCrashReporter(ctx context.Context) (err error) {
	crashRep, err := newCrashReporter(&crashReporterConfig{
		logger:  b.baseLogger.With(slogutil.KeyPrefix, "crash_reporter"),
		dirPath: b.env.CrashOutputDir,
		prefix:  b.env.CrashOutputPrefix,
		enabled: bool(b.env.CrashOutputEnabled),
	})
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	err = crashRep.Start(ctx)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	b.sigHdlr.AddService(crashRep)

	b.logger.DebugContext(ctx, "initialized crash reporter")

	return nil
}

// initShields initializes and starts the shield configuration store with its
// persistent storage.
func (b *builder) initShields(ctx context.Context) (err error) {
	strg, err := shieldbolt.New(b.env.ShieldsDBPath)
	if err != nil {
		return fmt.Errorf("opening shields db: %w", err)
	}

	c := b.conf.Shields
	b.shields = shield.NewDefaultStore(&shield.Config{
		Logger:     b.baseLogger.With(slogutil.KeyPrefix, "shields"),
		ErrColl:    b.errColl,
		Storage:    strg,
		Normalizer: shield.NewNormalizer(c.NormalizationPrefixes),
		QueueSize:  c.QueueSize,
	})

	svc := &shieldsService{
		store:   b.shields,
		storage: strg,
	}

	err = svc.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting shields: %w", err)
	}

	b.sigHdlr.AddService(svc)

	b.logger.DebugContext(ctx, "initialized shields", "num", len(b.shields.All()))

	return nil
}

// initFilters initializes the classifiers and the HTTPS upgrade rewriter
// without any rules.
func (b *builder) initFilters(ctx context.Context) (err error) {
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}

	b.jar = jar

	var localBase *url.URL
	if u := b.conf.Interceptor.LocalServer; u != nil {
		localBase = &u.URL
	}

	b.localServer = filter.NewLocalServer(localBase)

	c := b.conf.Filters
	excs := c.exceptions()

	b.ads = b.newRuleListFilter(&rulelist.Config{
		LocalServer:      b.localServer,
		WelcomeBypass:    c.WelcomeBypass.toInternal(),
		CookieJar:        jar,
		ID:               idAds,
		Exceptions:       excs,
		FirstPartyExempt: true,
		Enabled:          bool(b.env.AdBlockEnabled),
	})

	b.trackers = b.newRuleListFilter(&rulelist.Config{
		LocalServer:      b.localServer,
		ID:               idTrackers,
		Exceptions:       excs,
		FirstPartyExempt: true,
		Enabled:          bool(b.env.TrackingProtectionEnabled),
	})

	b.malware = b.newRuleListFilter(&rulelist.Config{
		LocalServer:       b.localServer,
		ID:                idMalware,
		DocumentFallback:  true,
		IgnoreRequestType: true,
		Enabled:           bool(b.env.SafeBrowsingEnabled),
	})

	b.httpsUp = httpsup.New(&httpsup.Config{
		Logger:      b.baseLogger.With(slogutil.KeyPrefix, "httpsup"),
		LocalServer: b.localServer,
		Ignored:     b.conf.HTTPSUpgrade.Ignored,
		CacheSize:   b.conf.HTTPSUpgrade.CacheSize,
		Enabled:     bool(b.env.HTTPSUpgradeEnabled),
	})

	b.cacheManager.Add("httpsup/rulesets", b.httpsUp.Cache())

	b.logger.DebugContext(ctx, "initialized filters")

	return nil
}

// newRuleListFilter returns a new rule-list filter with its own decision cache
// registered in the cache manager.  The logger and the cache of c are set by
// this method.
func (b *builder) newRuleListFilter(c *rulelist.Config) (f *rulelist.Filter) {
	c.Logger = b.baseLogger.With(slogutil.KeyPrefix, "filter/"+c.ID)
	c.Cache = b.conf.Filters.Cache.newCache()

	b.cacheManager.Add("filter/"+c.ID, c.Cache)

	return rulelist.New(c)
}

// initDistributors initializes and starts the rule artifact distributors.
// Each of them loads its cached artifact first and then keeps it up to date.
func (b *builder) initDistributors(ctx context.Context) (err error) {
	ac := b.conf.Artifacts

	b.client = wshttp.NewClient(&wshttp.ClientConfig{
		Timeout: time.Duration(ac.Timeout),
	})

	err = os.MkdirAll(b.env.CachePath, ws.DefaultDirPerm)
	if err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	svcs := []service.Interface{}

	for _, f := range []struct {
		filter *rulelist.Filter
		url    *urlutil.URL
		id     string
	}{{
		filter: b.malware,
		url:    b.env.MalwareURL,
		id:     idMalware,
	}, {
		filter: b.trackers,
		url:    b.env.TrackersURL,
		id:     idTrackers,
	}, {
		filter: b.ads,
		url:    b.env.AdsURL,
		id:     idAds,
	}} {
		var d service.Interface
		d, err = newDistributor[*urlfilter.NetworkEngine](b, f.filter, f.url, f.id, f.id+".txt")
		if err != nil {
			return err
		}

		svcs = append(svcs, d)
	}

	idx, err := newDistributor(b, b.httpsUp.IndexConsumer(), b.env.HTTPSIndexURL, idHTTPSIndex, "httpse.json")
	if err != nil {
		return err
	}

	rulesets, err := newDistributor(
		b,
		b.httpsUp.RulesetsConsumer(),
		b.env.HTTPSRulesetsURL,
		idHTTPSRulesets,
		"httpse.db",
	)
	if err != nil {
		return err
	}

	svcs = append(svcs, idx, rulesets)

	for _, svc := range svcs {
		err = svc.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting distributor: %w", err)
		}

		b.sigHdlr.AddService(svc)
	}

	b.logger.DebugContext(ctx, "initialized distributors", "num", len(svcs))

	return nil
}

// newDistributor returns a new distributor of the artifact with the given
// parameters and registers it as a refresher.
func newDistributor[T any](
	b *builder,
	consumer artifact.Consumer[T],
	u *urlutil.URL,
	id string,
	fileName string,
) (d *artifact.Distributor[T], err error) {
	ac := b.conf.Artifacts
	d, err = artifact.New(&artifact.Config[T]{
		Logger:          b.baseLogger.With(slogutil.KeyPrefix, "artifact/"+id),
		ErrColl:         b.errColl,
		Client:          b.client,
		Scheduler:       b.sched,
		Consumer:        consumer,
		Retry:           ac.Retry.toInternal(),
		URL:             &u.URL,
		ID:              id,
		Dir:             b.env.CachePath,
		FileName:        fileName,
		MaxSize:         ac.MaxSize,
		RevalidateDelay: time.Duration(ac.RevalidateDelay),
	})
	if err != nil {
		return nil, fmt.Errorf("creating distributor %q: %w", id, err)
	}

	b.debugRefrs[debugsvc.RefresherID("artifact/"+id)] = d

	return d, nil
}

// initInterceptor initializes the page registry, the navigator, and the
// request interceptor.
func (b *builder) initInterceptor(ctx context.Context) (err error) {
	c := b.conf.Interceptor
	navClient := &http.Client{
		Jar:     b.jar,
		Timeout: time.Duration(c.NavigationTimeout),
	}

	b.interceptor = interceptor.New(&interceptor.Config{
		Logger:        b.baseLogger.With(slogutil.KeyPrefix, "interceptor"),
		Shields:       b.shields,
		LocalServer:   b.localServer,
		HTTPS:         b.httpsUp,
		Malware:       b.malware,
		Trackers:      b.trackers,
		Ads:           b.ads,
		Pages:         page.NewRegistry(b.baseLogger.With(slogutil.KeyPrefix, "pages"), b.sched),
		Navigator:     interceptor.NewClientNavigator(b.baseLogger.With(slogutil.KeyPrefix, "navigator"), navClient),
		PixelHosts:    b.conf.Filters.PixelHosts,
		FollowUpDelay: time.Duration(c.FollowUpDelay),
	})

	// Re-issued navigations carry the handled marker, so the interceptor
	// passes them through.
	navClient.Transport = interceptor.NewTransport(
		b.baseLogger.With(slogutil.KeyPrefix, "transport"),
		b.interceptor,
		http.DefaultTransport,
	)

	b.logger.DebugContext(ctx, "initialized interceptor")

	return nil
}

// mustInitDebugSvc initializes and starts the debug HTTP service.
func (b *builder) mustInitDebugSvc(ctx context.Context) {
	debugSvcConf := b.env.debugConf(b.baseLogger)
	debugSvcConf.Manager = b.cacheManager
	debugSvcConf.Refreshers = b.debugRefrs
	debugSvcConf.Shields = b.shields
	debugSvcConf.Interceptor = b.interceptor
	debugSvc := debugsvc.New(debugSvcConf)

	// The debug HTTP service is considered critical, so its Start method panics
	// instead of returning an error.
	_ = debugSvc.Start(context.WithoutCancel(ctx))

	b.sigHdlr.AddService(debugSvc)

	b.logger.DebugContext(
		ctx,
		"initialized debug",
		"refr_ids", slices.Sorted(maps.Keys(b.debugRefrs)),
	)
}

// handleSignals blocks and processes signals from the OS.  status is
// [osutil.ExitCodeSuccess] on success and [osutil.ExitCodeFailure] on error.
//
// handleSignals must not be called concurrently with any other methods.
func (b *builder) handleSignals(ctx context.Context) (code osutil.ExitCode) {
	b.logger.DebugContext(ctx, "cache manager initialized", "ids", b.cacheManager.IDs())

	return b.sigHdlr.Handle(ctx)
}
