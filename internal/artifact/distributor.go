package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/c2h5oh/datasize"
	renameio "github.com/google/renameio/v2"
	"github.com/shieldkit/webshield/internal/errcoll"
	"github.com/shieldkit/webshield/internal/metrics"
	"github.com/shieldkit/webshield/internal/ws"
	"github.com/shieldkit/webshield/internal/wshttp"
	"github.com/shieldkit/webshield/internal/wstime"
)

// etagExt is the extension of the file that keeps the entity tag of an
// artifact.
const etagExt = ".etag"

// Config is the configuration structure for a [Distributor].
type Config[T any] struct {
	// Logger is used to log the operation of the distributor.  It must not be
	// nil.
	Logger *slog.Logger

	// ErrColl is used to collect download errors.  It must not be nil.
	ErrColl errcoll.Interface

	// Client is the HTTP client used to download the artifact.  It must not
	// be nil.
	Client *wshttp.Client

	// Scheduler schedules revalidations and retries.  It must not be nil.
	Scheduler wstime.Scheduler

	// Consumer parses and installs the artifact.  It must not be nil.
	Consumer Consumer[T]

	// Retry is the download retry policy.  It must not be nil.
	Retry *RetryPolicy

	// URL is the HTTP(S) URL of the artifact.  It must not be nil.
	URL *url.URL

	// ID is the identifier of the artifact used in logs and metrics.  It must
	// not be empty.
	ID string

	// Dir is the directory where the artifact is kept.  It must exist.
	Dir string

	// FileName is the name of the artifact file in Dir.  It must not be empty.
	FileName string

	// MaxSize is the maximum size of the artifact.  It must be positive.
	MaxSize datasize.ByteSize

	// RevalidateDelay is the delay after which a cached artifact is checked
	// against the server once.
	RevalidateDelay time.Duration
}

// Distributor keeps one rule artifact up to date and hands it to its consumer.
type Distributor[T any] struct {
	logger   *slog.Logger
	errColl  errcoll.Interface
	client   *wshttp.Client
	sched    wstime.Scheduler
	consumer Consumer[T]
	retry    *RetryPolicy
	url      *url.URL

	current *atomic.Pointer[Artifact]

	// dlMu serializes downloads.
	dlMu *sync.Mutex

	// mu protects the fields below.
	mu       *sync.Mutex
	baseCtx  context.Context
	timer    wstime.Timer
	loaded   bool
	shutdown bool

	id              string
	path            string
	etagPath        string
	tmpDir          string
	maxSize         datasize.ByteSize
	revalidateDelay time.Duration
}

// New returns a new distributor.  c must not be nil and must be valid.
func New[T any](c *Config[T]) (d *Distributor[T], err error) {
	if !urlutil.IsValidHTTPURLScheme(c.URL.Scheme) {
		return nil, fmt.Errorf("artifact %s: bad url scheme %q", c.ID, c.URL.Scheme)
	}

	path := filepath.Join(c.Dir, c.FileName)

	return &Distributor[T]{
		logger:          c.Logger,
		errColl:         c.ErrColl,
		client:          c.Client,
		sched:           c.Scheduler,
		consumer:        c.Consumer,
		retry:           c.Retry,
		url:             c.URL,
		current:         &atomic.Pointer[Artifact]{},
		dlMu:            &sync.Mutex{},
		mu:              &sync.Mutex{},
		id:              c.ID,
		path:            path,
		etagPath:        path + etagExt,
		tmpDir:          renameio.TempDir(c.Dir),
		maxSize:         c.MaxSize,
		revalidateDelay: c.RevalidateDelay,
	}, nil
}

// ID returns the identifier of the artifact.
func (d *Distributor[T]) ID() (id string) {
	return d.id
}

// Current returns the currently installed artifact or nil if there is none.
func (d *Distributor[T]) Current() (a *Artifact) {
	return d.current.Load()
}

// Load installs the cached artifact, if there is one, and schedules its
// revalidation.  Otherwise, it starts a download in the background.  Only the
// first call has any effect.  Load never returns errors: problems are logged
// and collected, and the distributor keeps retrying.
func (d *Distributor[T]) Load(ctx context.Context) {
	ctx = errcoll.ContextWithComponent(ctx, "artifact/"+d.id)
	baseCtx := context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.loaded || d.shutdown {
		d.mu.Unlock()

		return
	}

	d.loaded = true
	d.baseCtx = baseCtx
	d.mu.Unlock()

	ok := d.loadCached(ctx)
	if ok {
		d.schedule(d.revalidateDelay, d.revalidate)
	} else {
		d.schedule(0, d.fetch)
	}
}

// loadCached reads, parses, and installs the cached artifact.  ok is false if
// the artifact must be downloaded.
func (d *Distributor[T]) loadCached(ctx context.Context) (ok bool) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		d.logger.InfoContext(ctx, "no cached artifact", "path", d.path)

		return false
	} else if err != nil {
		errcoll.Collect(ctx, d.errColl, d.logger, "reading cached artifact", err)

		return false
	}

	a := &Artifact{
		Data: data,
		ETag: d.readETag(ctx),
		Path: d.path,
	}

	v, err := d.consumer.Parse(ctx, a)
	if err != nil {
		err = fmt.Errorf("artifact %s: parsing cached file: %w", d.id, err)
		errcoll.Collect(ctx, d.errColl, d.logger, "loading cached artifact", err)

		return false
	}

	d.install(ctx, a, v)
	d.logger.InfoContext(ctx, "using cached artifact", "path", d.path, "etag", a.ETag)

	return true
}

// readETag returns the stored entity tag of the artifact or an empty string if
// there is none.
func (d *Distributor[T]) readETag(ctx context.Context) (etag string) {
	b, err := os.ReadFile(d.etagPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.WarnContext(ctx, "reading etag", slogutil.KeyError, err)
		}

		return ""
	}

	return strings.TrimSpace(string(b))
}

// install hands v to the consumer and makes a the current artifact.
func (d *Distributor[T]) install(ctx context.Context, a *Artifact, v T) {
	d.consumer.Install(ctx, v)
	d.current.Store(a)

	metrics.ArtifactUpdatedTime.WithLabelValues(d.id).SetToCurrentTime()
	metrics.ArtifactSize.WithLabelValues(d.id).Set(float64(len(a.Data)))
}

// schedule runs f after delay unless the distributor is shut down.  It
// replaces the previously scheduled function, if any.
func (d *Distributor[T]) schedule(delay time.Duration, f func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	ctx := d.baseCtx
	d.timer = d.sched.AfterFunc(delay, func() { f(ctx) })
}

// revalidate checks whether the server has a different version of the
// artifact and downloads it if it does.
func (d *Distributor[T]) revalidate(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, d.logger)

	changed, err := d.isChanged(ctx)
	if err != nil {
		errcoll.Collect(ctx, d.errColl, d.logger, "revalidating artifact", err)

		return
	}

	metrics.IncrementRevalidations(d.id, changed)
	if !changed {
		d.logger.DebugContext(ctx, "artifact is up to date")

		return
	}

	d.logger.InfoContext(ctx, "artifact changed on server")
	d.fetch(ctx)
}

// isChanged compares the entity tag on the server with the stored one.  If the
// server does not send an entity tag, the artifact is considered unchanged.
func (d *Distributor[T]) isChanged(ctx context.Context) (changed bool, err error) {
	defer func() { err = errors.Annotate(err, "artifact %s: %w", d.id) }()

	resp, err := d.client.Head(ctx, d.url)
	if err != nil {
		return false, fmt.Errorf("requesting: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	err = wshttp.CheckStatus(resp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return false, err
	}

	etag := wshttp.ETag(resp)
	if etag == "" {
		return false, nil
	}

	return etag != d.readETag(ctx), nil
}

// fetch downloads the artifact and schedules a retry on failure.
func (d *Distributor[T]) fetch(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, d.logger)

	err := d.download(ctx)
	if err == nil {
		return
	}

	errcoll.Collect(ctx, d.errColl, d.logger, "downloading artifact", err)

	delay := d.retry.Next()
	metrics.ArtifactRetries.WithLabelValues(d.id).Inc()
	d.logger.InfoContext(ctx, "scheduling retry", "delay", delay)

	d.schedule(delay, d.fetch)
}

// Refresh implements the [ws.Refresher] interface for *Distributor.  It
// downloads the artifact synchronously regardless of the cached version.
func (d *Distributor[T]) Refresh(ctx context.Context) (err error) {
	err = d.download(ctx)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	return nil
}

// type check
var _ ws.Refresher = (*Distributor[any])(nil)

// download downloads, parses, commits, and installs the artifact.  The
// previous artifact stays in place unless all steps before the installation
// succeed.
func (d *Distributor[T]) download(ctx context.Context) (err error) {
	d.dlMu.Lock()
	defer d.dlMu.Unlock()

	defer func() {
		metrics.SetStatusGauge(metrics.ArtifactUpdateStatus.WithLabelValues(d.id), err)
		err = errors.Annotate(err, "artifact %s: %w", d.id)
	}()

	ru := urlutil.RedactUserinfo(d.url)
	d.logger.InfoContext(ctx, "downloading", "url", ru)

	resp, err := d.client.Get(ctx, d.url)
	if err != nil {
		return fmt.Errorf("requesting %q: %w", ru, err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	d.logger.InfoContext(
		ctx,
		"got data from url",
		"code", resp.StatusCode,
		"content-length", resp.ContentLength,
		"server", resp.Header.Get(httphdr.Server),
	)

	err = wshttp.CheckStatus(resp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	tmpFile, err := renameio.TempFile(d.tmpDir, d.path)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, tmpFile.Cleanup()) }()

	a, v, err := d.readAndParse(ctx, resp, tmpFile)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	err = tmpFile.CloseAtomicallyReplace()
	if err != nil {
		return fmt.Errorf("replacing file: %w", err)
	}

	a.Path = d.path

	err = renameio.WriteFile(d.etagPath, []byte(a.ETag), ws.DefaultPerm)
	if err != nil {
		// The artifact itself is in place, so only report the error.  A stale
		// entity tag leads to another download on the next revalidation.
		errcoll.Collect(ctx, d.errColl, d.logger, "writing etag", err)
	}

	d.install(ctx, a, v)
	d.logger.InfoContext(ctx, "installed artifact", "size", len(a.Data), "etag", a.ETag)

	return nil
}

// readAndParse reads the body of resp into tmpFile and parses it.
func (d *Distributor[T]) readAndParse(
	ctx context.Context,
	resp *http.Response,
	tmpFile *renameio.PendingFile,
) (a *Artifact, v T, err error) {
	buf := &bytes.Buffer{}
	mw := io.MultiWriter(buf, tmpFile)
	_, err = io.Copy(mw, ioutil.LimitReader(resp.Body, d.maxSize.Bytes()))
	if err != nil {
		return nil, v, wshttp.WrapServerError(fmt.Errorf("reading into file: %w", err), resp)
	}

	if buf.Len() == 0 {
		return nil, v, wshttp.WrapServerError(wshttp.ErrEmptyBody, resp)
	}

	a = &Artifact{
		Data: buf.Bytes(),
		ETag: wshttp.ETag(resp),
		Path: tmpFile.Name(),
	}

	v, err = d.consumer.Parse(ctx, a)
	if err != nil {
		return nil, v, fmt.Errorf("parsing: %w", err)
	}

	return a, v, nil
}

// type check
var _ service.Interface = (*Distributor[struct{}])(nil)

// Start implements the [service.Interface] interface for *Distributor.  It
// calls [Distributor.Load] and always returns nil.
func (d *Distributor[T]) Start(ctx context.Context) (err error) {
	d.Load(ctx)

	return nil
}

// Shutdown implements the [service.Interface] interface for *Distributor.  It
// stops the scheduled revalidations and retries.  It does not wait for a
// download in progress.
func (d *Distributor[T]) Shutdown(_ context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shutdown = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	return nil
}
