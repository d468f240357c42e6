// Package debugsvc contains the debug HTTP API of WebShield.
package debugsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/shieldkit/webshield/internal/shield"
	"github.com/shieldkit/webshield/internal/wscache"
)

// Handler group names.
const (
	handlerGroupAPI        = "api"
	handlerGroupPprof      = "pprof"
	handlerGroupPrometheus = "prometheus"
)

// Service is the HTTP service of WebShield.  It serves prometheus metrics,
// pprof, health check, and the debug API.
type Service struct {
	logger     *slog.Logger
	refrHdlr   *refreshHandler
	cacheHdlr  *cacheHandler
	shieldHdlr *shieldHandler
	pageHdlr   *pageHandler

	// mu protects servers.
	mu      *sync.Mutex
	servers map[string]*server
}

// Config is the WebShield HTTP service configuration structure.
type Config struct {
	// Logger is used for logging the operation of the service.  It must not be
	// nil.
	Logger *slog.Logger

	// Manager is used to clear the caches.  It must not be nil.
	Manager wscache.Manager

	// Shields is the shield configuration store.  It must not be nil.
	Shields shield.Interface

	// Interceptor is the request interceptor.  It must not be nil.
	Interceptor Interceptor

	// Refreshers are the entities that can be refreshed by id.
	Refreshers Refreshers

	// APIAddr is the address of the health check and debug API server.
	APIAddr string

	// PprofAddr is the address of the pprof server.  If it is empty, pprof is
	// not served.
	PprofAddr string

	// PrometheusAddr is the address of the metrics server.  If it is empty,
	// the metrics are not served.
	PrometheusAddr string
}

// New returns a new properly initialized *Service.  c must not be nil.
func New(c *Config) (svc *Service) {
	svc = &Service{
		logger: c.Logger,
		refrHdlr: &refreshHandler{
			refrs: c.Refreshers,
		},
		cacheHdlr: &cacheHandler{
			manager: c.Manager,
		},
		shieldHdlr: &shieldHandler{
			shields: c.Shields,
		},
		pageHdlr: &pageHandler{
			interceptor: c.Interceptor,
		},
		mu:      &sync.Mutex{},
		servers: map[string]*server{},
	}

	svc.addServer(c.PrometheusAddr, handlerGroupPrometheus)
	svc.addServer(c.PprofAddr, handlerGroupPprof)
	svc.addServer(c.APIAddr, handlerGroupAPI)

	svc.route(c)

	return svc
}

// server is a single server within the WebShield HTTP service.
type server struct {
	http     *http.Server
	listener net.Listener
	name     string
}

// addServer adds a server for the handler group with the given name, reusing
// the server with the same address if there is one.  If addr is empty, the
// server isn't created.
func (svc *Service) addServer(addr, name string) {
	if addr == "" {
		return
	}

	srv, ok := svc.servers[addr]
	if ok {
		srv.name += ";" + name

		return
	}

	svc.servers[addr] = &server{
		// #nosec G112 -- Do not set the timeouts, since debug/pprof and
		// similar debug APIs may be busy for a long time.
		http: &http.Server{
			Addr:    addr,
			Handler: http.NewServeMux(),
		},
		name: name,
	}
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It starts
// listening on all addresses and serving in separate goroutines.  If any
// server fails to serve after that, the process exits.
func (svc *Service) Start(ctx context.Context) (err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var errs []error
	for addr, srv := range svc.servers {
		srv.listener, err = net.Listen("tcp", addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("listening for %s: %w", srv.name, err))

			continue
		}

		go serve(ctx, svc.logger, srv)
	}

	return errors.Join(errs...)
}

// serve serves srv and exits if there is an unexpected error.
func serve(ctx context.Context, l *slog.Logger, srv *server) {
	defer recoverAndExit(ctx, l)

	l.InfoContext(ctx, "listening", "name", srv.name, "addr", srv.listener.Addr())

	err := srv.http.Serve(srv.listener)
	if !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Errorf("serving %s on %s: %w", srv.name, srv.http.Addr, err))
	}
}

// recoverAndExit recovers a panic, logs it using l, and then exits with
// [osutil.ExitCodeFailure].
func recoverAndExit(ctx context.Context, l *slog.Logger) {
	v := recover()
	if v == nil {
		return
	}

	var args []any
	if err, ok := v.(error); ok {
		args = []any{slogutil.KeyError, err}
	} else {
		args = []any{"value", v}
	}

	l.ErrorContext(ctx, "recovered from panic", args...)
	slogutil.PrintStack(ctx, l, slog.LevelError)

	os.Exit(osutil.ExitCodeFailure)
}

// Shutdown implements the [service.Interface] interface for *Service.  It stops
// serving all endpoints.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var errs []error
	for _, srv := range svc.servers {
		if srv.listener == nil {
			continue
		}

		err = srv.http.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("server %s shutdown: %w", srv.name, err))

			continue
		}

		svc.logger.InfoContext(ctx, "server is shutdown", "name", srv.name)
	}

	return errors.Join(errs...)
}
