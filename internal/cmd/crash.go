package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
)

// crashReporter redirects Go runtime crashes and unhandled panics into a file.
// A nil *crashReporter is a valid service that does nothing.
type crashReporter struct {
	logger *slog.Logger
	file   *os.File

	dir     string
	pattern string
}

// crashReporterConfig is the configuration structure for a [crashReporter].
type crashReporterConfig struct {
	// logger is used to log the operation of the crash reporter.  It must not
	// be nil if enabled is true.
	logger *slog.Logger

	// dirPath is the directory for crash files.  It must be an existing
	// directory if enabled is true.
	dirPath string

	// prefix is the prefix of the crash file names.
	prefix string

	// enabled shows if a crash file should be created.
	enabled bool
}

// crashTimeFormat is the layout of the start time in crash file names.
const crashTimeFormat = "20060102150405"

// newCrashReporter returns a new crash reporter or nil if c.enabled is false.
// c must not be nil.
func newCrashReporter(c *crashReporterConfig) (r *crashReporter, err error) {
	if !c.enabled {
		return nil, nil
	}

	err = validateDir(c.dirPath)
	if err != nil {
		return nil, fmt.Errorf("crash reporter: dir %q: %w", c.dirPath, err)
	}

	return &crashReporter{
		logger:  c.logger,
		dir:     c.dirPath,
		pattern: fmt.Sprintf("%s_%s_%07d_*.txt", c.prefix, time.Now().Format(crashTimeFormat), os.Getpid()),
	}, nil
}

// type check
var _ service.Interface = (*crashReporter)(nil)

// Start implements the [service.Interface] for *crashReporter.
func (r *crashReporter) Start(ctx context.Context) (err error) {
	if r == nil {
		return nil
	}

	defer func() { err = errors.Annotate(err, "starting crash reporter: %w") }()

	r.file, err = os.CreateTemp(r.dir, r.pattern)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	r.logger = r.logger.With("path", r.file.Name())

	err = debug.SetCrashOutput(r.file, debug.CrashOptions{})
	if err != nil {
		return errors.WithDeferred(fmt.Errorf("setting crash output: %w", err), r.file.Close())
	}

	r.logger.InfoContext(ctx, "crash output set")

	return nil
}

// Shutdown implements the [service.Interface] for *crashReporter.  The crash
// file is removed unless something has been written into it.
func (r *crashReporter) Shutdown(ctx context.Context) (err error) {
	if r == nil {
		return nil
	}

	defer func() { err = errors.Annotate(err, "shutting down crash reporter: %w") }()

	fi, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("getting file info: %w", err)
	} else if fi.Size() > 0 {
		r.logger.WarnContext(ctx, "crash output is not empty; keeping")

		return nil
	}

	name := r.file.Name()
	err = r.file.Close()
	if err != nil {
		return fmt.Errorf("closing: %w", err)
	}

	r.logger.DebugContext(ctx, "removing empty crash output")

	return os.Remove(name)
}
