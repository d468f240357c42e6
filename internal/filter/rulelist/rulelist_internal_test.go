package rulelist

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/filter/decisioncache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_IsBlocked_lateDecision(t *testing.T) {
	const (
		domain = "ads.example.net"
		rawURL = "https://ads.example.net/track.js"
	)

	cache := decisioncache.New(&decisioncache.Config{})
	f := New(&Config{
		Logger:           slogutil.NewDiscardLogger(),
		Cache:            cache,
		ID:               "test",
		DocumentFallback: true,
		Enabled:          true,
	})

	ctx := context.Background()
	install := func(text string) {
		eng, err := f.Parse(ctx, &artifact.Artifact{Data: []byte(text)})
		require.NoError(t, err)

		f.Install(ctx, eng)
	}

	install("||ads.example.net^\n")
	oldGen := f.engine.Load().gen

	install("||other.example^\n")
	require.Greater(t, f.engine.Load().gen, oldGen)

	// A lookup that started with the previous engine finishes after the
	// install and stores its decision.
	cache.Set(cacheKey(oldGen, domain, rawURL), decisioncache.Blocked)

	u, err := url.Parse(rawURL)
	require.NoError(t, err)

	req := &filter.Request{
		URL:    u,
		Header: http.Header{},
	}

	assert.False(t, f.IsBlocked(ctx, req))
}
