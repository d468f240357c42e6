package debugsvc

import (
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/httputil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shieldkit/webshield/internal/wshttp"
)

// ErrDebugPanic is a default error for panic handler.
const ErrDebugPanic errors.Error = "debug panic"

// Path pattern constants.
const (
	PathPatternDebugAPIBypass  = "/debug/api/bypass"
	PathPatternDebugAPICache   = "/debug/api/cache/clear"
	PathPatternDebugAPICheck   = "/debug/api/check"
	PathPatternDebugAPIPage    = "/debug/api/pages/{" + pathValuePage + "}"
	PathPatternDebugAPIPageFP  = PathPatternDebugAPIPage + "/fingerprinting"
	PathPatternDebugAPIRefresh = "/debug/api/refresh"
	PathPatternDebugAPIShield  = "/debug/api/shields/{" + pathValueDomain + "}"
	PathPatternDebugAPIShields = "/debug/api/shields"
	PathPatternDebugAPIStats   = "/debug/api/stats/{" + pathValuePage + "}"
	PathPatternDebugPanic      = "/debug/panic"
	PathPatternHealthCheck     = "/health-check"
	PathPatternMetrics         = "/metrics"
)

// Path value names.
const (
	pathValueDomain = "domain"
	pathValuePage   = "page"
)

// Route pattern constants.
const (
	routePatternDebugAPIBypass       = http.MethodPut + " " + PathPatternDebugAPIBypass
	routePatternDebugAPICache        = http.MethodPost + " " + PathPatternDebugAPICache
	routePatternDebugAPICheck        = http.MethodPost + " " + PathPatternDebugAPICheck
	routePatternDebugAPIPageDelete   = http.MethodDelete + " " + PathPatternDebugAPIPage
	routePatternDebugAPIPageFP       = http.MethodPost + " " + PathPatternDebugAPIPageFP
	routePatternDebugAPIRefresh      = http.MethodPost + " " + PathPatternDebugAPIRefresh
	routePatternDebugAPIShieldDelete = http.MethodDelete + " " + PathPatternDebugAPIShield
	routePatternDebugAPIShieldGet    = http.MethodGet + " " + PathPatternDebugAPIShield
	routePatternDebugAPIShieldPut    = http.MethodPut + " " + PathPatternDebugAPIShield
	routePatternDebugAPIShieldsReset = http.MethodDelete + " " + PathPatternDebugAPIShields
	routePatternDebugAPIStats        = http.MethodGet + " " + PathPatternDebugAPIStats
	routePatternDebugPanic           = http.MethodPost + " " + PathPatternDebugPanic
	routePatternHealthCheck          = http.MethodGet + " " + PathPatternHealthCheck
	routePatternMetrics              = http.MethodGet + " " + PathPatternMetrics
)

// route further initializes the svc.servers field by adding handlers and
// loggers to each server.
func (svc *Service) route(c *Config) {
	const hdlrGrpKey = "hdlr_grp"

	if srv := svc.servers[c.APIAddr]; srv != nil {
		router := srv.http.Handler.(httputil.Router)
		l := svc.logger.With(hdlrGrpKey, handlerGroupAPI)

		router.Handle(
			routePatternHealthCheck,
			httputil.NewLogMiddleware(l, slogutil.LevelTrace).Wrap(httputil.HealthCheckHandler),
		)

		debugLogMw := httputil.NewLogMiddleware(l, slog.LevelDebug)
		router.Handle(routePatternDebugAPIShieldGet, debugLogMw.Wrap(http.HandlerFunc(svc.shieldHdlr.serveGet)))
		router.Handle(routePatternDebugAPIStats, debugLogMw.Wrap(http.HandlerFunc(svc.pageHdlr.serveStats)))
		router.Handle(routePatternDebugAPICheck, debugLogMw.Wrap(http.HandlerFunc(svc.pageHdlr.serveCheck)))

		infoLogMw := httputil.NewLogMiddleware(l, slog.LevelInfo)
		router.Handle(routePatternDebugAPIRefresh, infoLogMw.Wrap(svc.refrHdlr))
		router.Handle(routePatternDebugAPICache, infoLogMw.Wrap(svc.cacheHdlr))
		router.Handle(routePatternDebugAPIShieldPut, infoLogMw.Wrap(http.HandlerFunc(svc.shieldHdlr.servePut)))
		router.Handle(
			routePatternDebugAPIShieldDelete,
			infoLogMw.Wrap(http.HandlerFunc(svc.shieldHdlr.serveDelete)),
		)
		router.Handle(
			routePatternDebugAPIShieldsReset,
			infoLogMw.Wrap(http.HandlerFunc(svc.shieldHdlr.serveReset)),
		)
		router.Handle(
			routePatternDebugAPIPageFP,
			infoLogMw.Wrap(http.HandlerFunc(svc.pageHdlr.serveFingerprinting)),
		)
		router.Handle(routePatternDebugAPIPageDelete, infoLogMw.Wrap(http.HandlerFunc(svc.pageHdlr.serveClose)))
		router.Handle(routePatternDebugAPIBypass, infoLogMw.Wrap(http.HandlerFunc(svc.pageHdlr.serveBypass)))
		router.Handle(routePatternDebugPanic, infoLogMw.Wrap(httputil.PanicHandler(ErrDebugPanic)))
	}

	if srv := svc.servers[c.PprofAddr]; srv != nil {
		router := srv.http.Handler.(httputil.Router)
		l := svc.logger.With(hdlrGrpKey, handlerGroupPprof)
		mw := httputil.NewLogMiddleware(l, slog.LevelDebug)

		routeWithMw := httputil.RouterFunc(func(pattern string, h http.Handler) {
			router.Handle(pattern, mw.Wrap(h))
		})

		httputil.RoutePprof(routeWithMw)
	}

	if srv := svc.servers[c.PrometheusAddr]; srv != nil {
		router := srv.http.Handler.(httputil.Router)
		l := svc.logger.With(hdlrGrpKey, handlerGroupPrometheus)

		router.Handle(
			routePatternMetrics,
			httputil.NewLogMiddleware(l, slogutil.LevelTrace).Wrap(promhttp.Handler()),
		)
	}

	srvHdrMw := httputil.ServerHeaderMiddleware(wshttp.UserAgent())
	for _, srv := range svc.servers {
		l := svc.logger.With("name", srv.name)
		srv.http.ErrorLog = slog.NewLogLogger(l.Handler(), slog.LevelDebug)
		srv.http.Handler = srvHdrMw.Wrap(srv.http.Handler)
	}
}
