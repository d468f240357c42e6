// Package wstest contains simple mocks for common interfaces and other test
// utilities.
package wstest

import (
	"net/url"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/stretchr/testify/require"
)

// Timeout is the common timeout for tests.
const Timeout = 1 * time.Second

// Logger is the common discarding logger for tests.
var Logger = slogutil.NewDiscardLogger()

// MustParseURL parses s as a URL and fails the test if it cannot.
func MustParseURL(tb testing.TB, s string) (u *url.URL) {
	tb.Helper()

	u, err := url.Parse(s)
	require.NoError(tb, err)

	return u
}
