package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	c, err := parseConfig(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, 256*datasize.MB, c.Artifacts.MaxSize)
	assert.Equal(t, time.Minute, time.Duration(c.Artifacts.Retry.Delay))
	assert.Equal(t, 500*time.Millisecond, time.Duration(c.Interceptor.FollowUpDelay))
	assert.Equal(t, "localhost:6571", c.Interceptor.LocalServer.Host)
	assert.Equal(t, []string{"m.slashdot.org"}, c.HTTPSUpgrade.Ignored)

	excs := c.Filters.exceptions()
	require.Len(t, excs, 1)

	assert.Equal(t, "yahoo", excs[0].Host)
	assert.Equal(t, "s.yimg.com/zz/combo", excs[0].URL)

	wb := c.Filters.WelcomeBypass.toInternal()
	require.NotNil(t, wb)

	assert.Equal(t, "www.forbes.com", wb.Root.Host)
	assert.Equal(t, 3, wb.MaxRedirects)
	require.Len(t, wb.Cookies, 4)

	// The cookies are sorted by name.
	assert.Equal(t, "adblock_session", wb.Cookies[0].Name)
	assert.Equal(t, "Off", wb.Cookies[0].Value)
}

func TestParseConfig_notFound(t *testing.T) {
	t.Parallel()

	_, err := parseConfig(filepath.Join("testdata", "nonexistent.yaml"))
	assert.Error(t, err)
}

func TestConfiguration_Validate(t *testing.T) {
	t.Parallel()

	validConf := func(tb testing.TB) (c *configuration) {
		tb.Helper()

		c, err := parseConfig(filepath.Join("testdata", "config.yaml"))
		require.NoError(tb, err)

		return c
	}

	testCases := []struct {
		modify      func(c *configuration)
		name        string
		wantErrPart string
	}{{
		modify:      func(_ *configuration) {},
		name:        "valid",
		wantErrPart: "",
	}, {
		modify: func(c *configuration) {
			c.Shields = nil
		},
		name:        "no_shields",
		wantErrPart: "no value",
	}, {
		modify: func(c *configuration) {
			c.Filters.Cache.Generations = 0
		},
		name:        "bad_cache",
		wantErrPart: "generations",
	}, {
		modify: func(c *configuration) {
			c.Filters.WelcomeBypass.Enabled = false
			c.Filters.WelcomeBypass.Host = ""
		},
		name:        "disabled_bypass",
		wantErrPart: "",
	}, {
		modify: func(c *configuration) {
			c.HTTPSUpgrade.Ignored = append(c.HTTPSUpgrade.Ignored, "")
		},
		name:        "empty_ignored",
		wantErrPart: "ignored: at index 1",
	}, {
		modify: func(c *configuration) {
			c.HTTPSUpgrade.CacheSize = 0
		},
		name:        "no_ruleset_cache",
		wantErrPart: "",
	}, {
		modify: func(c *configuration) {
			c.HTTPSUpgrade.CacheSize = -1
		},
		name:        "negative_ruleset_cache",
		wantErrPart: "cache_size",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := validConf(t)
			tc.modify(c)

			err := c.Validate()
			if tc.wantErrPart == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErrPart)
			}
		})
	}
}

func TestWelcomeBypassConfig_toInternal_disabled(t *testing.T) {
	t.Parallel()

	var c *welcomeBypassConfig
	assert.Nil(t, c.toInternal())
	assert.Nil(t, (&welcomeBypassConfig{}).toInternal())
}
