package errcoll

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/getsentry/sentry-go"
	"github.com/shieldkit/webshield/internal/version"
	"golang.org/x/sys/unix"
)

// SentryErrorCollector is an [Interface] implementation that sends errors to a
// Sentry-like HTTP API.
type SentryErrorCollector struct {
	logger *slog.Logger
	sentry *sentry.Client
}

// NewSentryErrorCollector returns a new SentryErrorCollector.  All arguments
// must be non-nil.
func NewSentryErrorCollector(cli *sentry.Client, l *slog.Logger) (c *SentryErrorCollector) {
	return &SentryErrorCollector{
		logger: l,
		sentry: cli,
	}
}

// type check
var _ Interface = (*SentryErrorCollector)(nil)

// Collect implements the [Interface] interface for *SentryErrorCollector.
func (c *SentryErrorCollector) Collect(ctx context.Context, err error) {
	if !isReportable(err) {
		c.logger.DebugContext(ctx, "non-reportable error", slogutil.KeyError, err)

		return
	}

	scope := sentry.NewScope()
	scope.SetTags(tagsFromCtx(ctx))

	_ = c.sentry.CaptureException(err, &sentry.EventHint{
		Context: ctx,
	}, scope)
}

// ErrorFlushCollector collects information about errors, possibly sending them
// to a remote location.  The collected errors should be flushed with Flush.
type ErrorFlushCollector interface {
	Interface

	// Flush waits until the underlying transport sends any buffered events to
	// the sentry server, blocking for at most the predefined timeout.
	Flush()
}

// type check
var _ ErrorFlushCollector = (*SentryErrorCollector)(nil)

// flushTimeout is the timeout for flushing sentry errors.
const flushTimeout = 1 * time.Second

// Flush implements the [ErrorFlushCollector] interface for
// *SentryErrorCollector.
func (c *SentryErrorCollector) Flush() {
	_ = c.sentry.Flush(flushTimeout)
}

// SentryReportableError is the interface for errors and wrapper that can tell
// whether they should be reported or not.
type SentryReportableError interface {
	error

	IsSentryReportable() (ok bool)
}

// isReportable returns true if the error is worth reporting.  Artifact
// downloads fail routinely when the device is offline, so connection breaks
// and timeouts are not reported.
func isReportable(err error) (ok bool) {
	var sentryRepErr SentryReportableError
	if errors.As(err, &sentryRepErr) {
		return sentryRepErr.IsSentryReportable()
	}

	if isConnectionBreak(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}

	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}

// isConnectionBreak returns true if err is an error about connection breaking
// or timing out.
func isConnectionBreak(err error) (ok bool) {
	switch {
	case
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, unix.ECONNREFUSED),
		errors.Is(err, unix.ECONNRESET),
		errors.Is(err, unix.EHOSTUNREACH),
		errors.Is(err, unix.ENETUNREACH),
		errors.Is(err, unix.EPIPE),
		errors.Is(err, unix.ETIMEDOUT):
		return true
	default:
		return false
	}
}

// sentryTags is a convenient alias for map[string]string.
type sentryTags = map[string]string

// ctxKey is the type for context keys of this package.
type ctxKey int

// ctxKeyComponent is the context key for the name of the component that
// produced an error.
const ctxKeyComponent ctxKey = iota

// ContextWithComponent returns a copy of parent with the name of the
// component, which is added to the reported events as a tag.
func ContextWithComponent(parent context.Context, name string) (ctx context.Context) {
	return context.WithValue(parent, ctxKeyComponent, name)
}

// tagsFromCtx returns Sentry tags based on the information from ctx.
func tagsFromCtx(ctx context.Context) (tags sentryTags) {
	tags = sentryTags{
		"git_revision": version.Revision(),
	}

	if name, ok := ctx.Value(ctxKeyComponent).(string); ok {
		tags["component"] = name
	}

	return tags
}
