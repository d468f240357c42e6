package cmd

import (
	"context"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

func TestNewCrashReporter(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		r, err := newCrashReporter(&crashReporterConfig{
			enabled: false,
		})
		require.NoError(t, err)
		require.Nil(t, r)

		ctx := context.Background()
		assert.NoError(t, r.Start(ctx))
		assert.NoError(t, r.Shutdown(ctx))
	})

	t.Run("bad_dir", func(t *testing.T) {
		t.Parallel()

		_, err := newCrashReporter(&crashReporterConfig{
			logger:  testLogger,
			dirPath: "/nonexistent/webshield/crash",
			prefix:  "webshield",
			enabled: true,
		})
		assert.Error(t, err)
	})
}
