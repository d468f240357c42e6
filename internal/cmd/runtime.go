package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/errcoll"
)

// setMaxThreads sets the maximum number of threads for the Go runtime, if
// necessary.  l must not be nil, n must not be negative.
func setMaxThreads(ctx context.Context, l *slog.Logger, n int) {
	if n == 0 {
		l.Log(ctx, slogutil.LevelTrace, "go max threads not set")

		return
	}

	debug.SetMaxThreads(n)

	l.InfoContext(ctx, "set go max threads", "n", n)
}

// reportPanics reports all panics in Main using the Sentry client, logs them,
// and repanics.  It should be called in a defer.
func reportPanics(ctx context.Context, errColl errcoll.Interface, l *slog.Logger) {
	v := recover()
	if v == nil {
		return
	}

	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}

	errColl.Collect(ctx, fmt.Errorf("panic in main: %w", err))
	if f, isFlusher := errColl.(errcoll.ErrorFlushCollector); isFlusher {
		f.Flush()
	}

	l.ErrorContext(ctx, "recovered from panic", slogutil.KeyError, err)
	slogutil.PrintStack(ctx, l, slog.LevelError)

	panic(v)
}
