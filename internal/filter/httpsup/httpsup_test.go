package httpsup_test

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/filter"
	"github.com/shieldkit/webshield/internal/filter/httpsup"
	"github.com/shieldkit/webshield/internal/wstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

// testIndex is the domain index for tests.
const testIndex = `{
	"example.org": [42],
	"*.example.org": [42],
	"*.example.net": [7, 8],
	"www.googleadservices.com": [9],
	"excluded.example": [10],
	"off.example": [11],
	"*.slashdot.org": [12],
	"broken.example": [13, 14]
}`

// testRulesets are the ruleset rows for tests.
var testRulesets = map[uint32]string{
	7: `{"ruleset":{"$":{"name":"Example Net"},` +
		`"rule":[{"$":{"from":"^http://(www\\.)?example\\.net/","to":"https://$1example.net/"}}]}}`,
	8: `{"ruleset":{"$":{"name":"Unused"},` +
		`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
	9: `{"ruleset":{"$":{"name":"Google"},` +
		`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
	10: `{"ruleset":{"$":{"name":"Excluded"},"exclusion":"^http://excluded\\.example/",` +
		`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
	11: `{"ruleset":{"$":{"name":"Off","default_off":"breaks things"},` +
		`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
	12: `{"ruleset":{"$":{"name":"Slashdot"},` +
		`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
	13: `{"ruleset": not json`,
	14: `{"ruleset":{"$":{"name":"Broken Fallback"},` +
		`"rule":[{"$":{"from":"^http://broken\\.example/","to":"https://fixed.example/"}}]}}`,
	42: `{"ruleset":{"$":{"name":"Bank"},` +
		`"exclusion":[{"$":{"pattern":"^http://static\\.example\\.org/"}}],` +
		`"rule":[` +
		`{"$":{"from":"^http://www\\.example\\.org/","to":"http://www.example.org/"}},` +
		`{"$":{"from":"^http://bank\\.example\\.org/","to":"https://bank.example.org/"}},` +
		`{"$":{"from":"^http://(?!www\\.)([a-z]+)\\.example\\.org/","to":"https://$1.example.org/"}}` +
		`]}}`,
}

// testLocalBase is the base URL of the local server for tests.
const testLocalBase = "http://localhost:6571/"

// testCacheSize is the size of the compiled ruleset cache for tests.
const testCacheSize = 100

// newRulesetsDB writes rows into a new ruleset database and returns its path.
// extraKeys are added with invalid keys.
func newRulesetsDB(tb testing.TB, rows map[uint32]string, extraKeys ...string) (path string) {
	tb.Helper()

	path = filepath.Join(tb.TempDir(), "rulesets.db")
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(tb, err)

	err = db.Update(func(tx *bbolt.Tx) (ferr error) {
		b, ferr := tx.CreateBucket([]byte(httpsup.RulesetsBucket))
		if ferr != nil {
			return ferr
		}

		for id, row := range rows {
			k := binary.BigEndian.AppendUint32(nil, id)
			ferr = b.Put(k, []byte(row))
			if ferr != nil {
				return ferr
			}
		}

		for _, k := range extraKeys {
			ferr = b.Put([]byte(k), []byte("{}"))
			if ferr != nil {
				return ferr
			}
		}

		return nil
	})
	require.NoError(tb, err)
	require.NoError(tb, db.Close())

	return path
}

// newRewriter returns a new enabled rewriter with the test data installed.
func newRewriter(tb testing.TB, cacheSize int) (rw *httpsup.Rewriter) {
	tb.Helper()

	rw = httpsup.New(&httpsup.Config{
		Logger:      wstest.Logger,
		LocalServer: filter.NewLocalServer(wstest.MustParseURL(tb, testLocalBase)),
		Ignored:     []string{"m.slashdot.org"},
		CacheSize:   cacheSize,
		Enabled:     true,
	})

	ctx := context.Background()

	ic := rw.IndexConsumer()
	idx, err := ic.Parse(ctx, &artifact.Artifact{Data: []byte(testIndex)})
	require.NoError(tb, err)

	ic.Install(ctx, idx)

	rc := rw.RulesetsConsumer()
	rs, err := rc.Parse(ctx, &artifact.Artifact{Path: newRulesetsDB(tb, testRulesets)})
	require.NoError(tb, err)

	rc.Install(ctx, rs)

	return rw
}

func TestRewriter_Rewrite(t *testing.T) {
	rw := newRewriter(t, testCacheSize)

	testCases := []struct {
		name     string
		in       string
		want     string
		wantKind filter.RewriteKind
	}{{
		name:     "rewritten",
		in:       "http://bank.example.org/login",
		want:     "https://bank.example.org/login",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "first_changing_rule",
		in:       "http://mail.example.org/inbox",
		want:     "https://mail.example.org/inbox",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "no_change",
		in:       "http://www.example.org/",
		want:     "http://www.example.org/",
		wantKind: filter.RewriteChecked,
	}, {
		name:     "exclusion",
		in:       "http://static.example.org/a.css",
		want:     "http://static.example.org/a.css",
		wantKind: filter.RewriteChecked,
	}, {
		name:     "template_group",
		in:       "http://www.example.net/path/to?x=1#frag",
		want:     "https://www.example.net/path/to?x=1#frag",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "query",
		in:       "http://www.googleadservices.com/pagead/aclk?sa=L&ai=CD0d",
		want:     "https://www.googleadservices.com/pagead/aclk?sa=L&ai=CD0d",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "exclusion_string",
		in:       "http://excluded.example/",
		want:     "http://excluded.example/",
		wantKind: filter.RewriteChecked,
	}, {
		name:     "default_off",
		in:       "http://off.example/",
		want:     "http://off.example/",
		wantKind: filter.RewriteChecked,
	}, {
		name:     "malformed_skipped",
		in:       "http://broken.example/page",
		want:     "https://fixed.example/page",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "ignored",
		in:       "http://m.slashdot.org/story",
		want:     "",
		wantKind: filter.RewriteNone,
	}, {
		name:     "not_ignored_subdomain",
		in:       "http://news.slashdot.org/story",
		want:     "https://news.slashdot.org/story",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "https",
		in:       "https://bank.example.org/login",
		want:     "",
		wantKind: filter.RewriteNone,
	}, {
		name:     "unknown",
		in:       "http://unknown.example/",
		want:     "",
		wantKind: filter.RewriteNone,
	}, {
		name:     "local_wrapped",
		in:       testLocalBase + "errors/error.html?url=http%3A%2F%2Fbank.example.org%2Flogin",
		want:     "https://bank.example.org/login",
		wantKind: filter.RewriteRewritten,
	}}

	ctx := context.Background()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := rw.Rewrite(ctx, wstest.MustParseURL(t, tc.in))
			require.NotNil(t, res)

			assert.Equal(t, tc.wantKind, res.Kind)
			if tc.want == "" {
				assert.Nil(t, res.URL)
			} else {
				require.NotNil(t, res.URL)
				assert.Equal(t, tc.want, res.URL.String())
			}

			// The result doesn't change with the compiled rulesets cached.
			again := rw.Rewrite(ctx, wstest.MustParseURL(t, tc.in))
			assert.Equal(t, res, again)
		})
	}
}

func TestRewriter_Rewrite_noCache(t *testing.T) {
	rw := newRewriter(t, 0)
	ctx := context.Background()

	testCases := []struct {
		name     string
		in       string
		want     string
		wantKind filter.RewriteKind
	}{{
		name:     "rewritten",
		in:       "http://bank.example.org/login",
		want:     "https://bank.example.org/login",
		wantKind: filter.RewriteRewritten,
	}, {
		name:     "exclusion",
		in:       "http://static.example.org/a.css",
		want:     "http://static.example.org/a.css",
		wantKind: filter.RewriteChecked,
	}, {
		name:     "malformed_skipped",
		in:       "http://broken.example/page",
		want:     "https://fixed.example/page",
		wantKind: filter.RewriteRewritten,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for range 2 {
				res := rw.Rewrite(ctx, wstest.MustParseURL(t, tc.in))
				require.NotNil(t, res)
				require.NotNil(t, res.URL)

				assert.Equal(t, tc.wantKind, res.Kind)
				assert.Equal(t, tc.want, res.URL.String())
			}
		})
	}

	rw.Cache().Clear()
	assert.Equal(t, filter.RewriteRewritten, rw.Rewrite(
		ctx,
		wstest.MustParseURL(t, "http://bank.example.org/login"),
	).Kind)
}

func TestRewriter_Rewrite_noData(t *testing.T) {
	rw := httpsup.New(&httpsup.Config{
		Logger:  wstest.Logger,
		Enabled: true,
	})

	ctx := context.Background()
	u := wstest.MustParseURL(t, "http://bank.example.org/login")

	assert.Equal(t, filter.NoRewrite, rw.Rewrite(ctx, u))

	// Only the index is not enough.
	ic := rw.IndexConsumer()
	idx, err := ic.Parse(ctx, &artifact.Artifact{Data: []byte(testIndex)})
	require.NoError(t, err)

	ic.Install(ctx, idx)
	assert.Equal(t, filter.NoRewrite, rw.Rewrite(ctx, u))
}

func TestRewriter_SetEnabled(t *testing.T) {
	rw := newRewriter(t, testCacheSize)
	ctx := context.Background()
	u := wstest.MustParseURL(t, "http://bank.example.org/login")

	rw.SetEnabled(false)
	assert.Equal(t, filter.RewriteNone, rw.Rewrite(ctx, u).Kind)

	rw.SetEnabled(true)
	assert.Equal(t, filter.RewriteRewritten, rw.Rewrite(ctx, u).Kind)
}

func TestRewriter_swap(t *testing.T) {
	rw := newRewriter(t, testCacheSize)
	ctx := context.Background()
	u := wstest.MustParseURL(t, "http://bank.example.org/login")

	require.Equal(t, filter.RewriteRewritten, rw.Rewrite(ctx, u).Kind)

	rc := rw.RulesetsConsumer()
	rs, err := rc.Parse(ctx, &artifact.Artifact{
		Path: newRulesetsDB(t, map[uint32]string{
			42: `{"ruleset":{"$":{"name":"Bank","platform":"mixedcontent"},` +
				`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
		}),
	})
	require.NoError(t, err)

	rc.Install(ctx, rs)
	assert.Equal(t, filter.RewriteChecked, rw.Rewrite(ctx, u).Kind)
}

func TestRewriter_swap_concurrent(t *testing.T) {
	rw := newRewriter(t, testCacheSize)
	ctx := context.Background()
	u := wstest.MustParseURL(t, "http://bank.example.org/login")

	rc := rw.RulesetsConsumer()
	full, err := rc.Parse(ctx, &artifact.Artifact{Path: newRulesetsDB(t, testRulesets)})
	require.NoError(t, err)

	mixed, err := rc.Parse(ctx, &artifact.Artifact{
		Path: newRulesetsDB(t, map[uint32]string{
			42: `{"ruleset":{"$":{"name":"Bank","platform":"mixedcontent"},` +
				`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
		}),
	})
	require.NoError(t, err)

	ic := rw.IndexConsumer()
	idx, err := ic.Parse(ctx, &artifact.Artifact{Data: []byte(testIndex)})
	require.NoError(t, err)

	const (
		rewriters = 8
		installs  = 100
	)

	wg := &sync.WaitGroup{}
	wg.Add(rewriters + 1)

	go func() {
		defer wg.Done()

		for i := range installs {
			ic.Install(ctx, idx)
			if i%2 == 0 {
				rc.Install(ctx, mixed)
			} else {
				rc.Install(ctx, full)
			}
		}

		rc.Install(ctx, mixed)
	}()

	for range rewriters {
		go func() {
			defer wg.Done()

			for range installs {
				res := rw.Rewrite(ctx, u)
				assert.Contains(t, []filter.RewriteKind{
					filter.RewriteChecked,
					filter.RewriteRewritten,
				}, res.Kind)
			}
		}()
	}

	wg.Wait()

	// The results must follow the last installed rulesets, both before and
	// after the compiled ruleset is cached.
	assert.Equal(t, filter.RewriteChecked, rw.Rewrite(ctx, u).Kind)
	assert.Equal(t, filter.RewriteChecked, rw.Rewrite(ctx, u).Kind)
}

func TestDomainIndex_Lookup(t *testing.T) {
	idx := httpsup.DomainIndex{
		"a.b.c.example.com": {1},
		"*.b.c.example.com": {2, 1},
		"b.c.example.com":   {3},
		"*.c.example.com":   {4},
		"*.example.com":     {5},
		"*.com":             {6},
	}

	assert.Equal(t, []uint32{1, 2, 4, 5}, idx.Lookup("a.b.c.example.com"))
	assert.Equal(t, []uint32{3, 4, 5}, idx.Lookup("b.c.example.com"))
	assert.Empty(t, idx.Lookup("example.org"))
	assert.Empty(t, idx.Lookup("localhost"))
}

func TestParseIndex(t *testing.T) {
	_, err := httpsup.ParseIndex([]byte(`{}`))
	assert.ErrorIs(t, err, httpsup.ErrEmptyIndex)

	_, err = httpsup.ParseIndex([]byte(`{"example.org": [-1]}`))
	assert.Error(t, err)

	_, err = httpsup.ParseIndex([]byte(`not json`))
	assert.Error(t, err)

	idx, err := httpsup.ParseIndex([]byte(testIndex))
	require.NoError(t, err)

	assert.Equal(t, []uint32{7, 8}, idx["*.example.net"])
}

func TestReadRulesets(t *testing.T) {
	path := newRulesetsDB(t, map[uint32]string{
		1: `{"ruleset":{}}`,
	}, "bad")

	rs, malformed, err := httpsup.ReadRulesets(path)
	require.NoError(t, err)

	assert.Equal(t, 1, malformed)
	assert.Equal(t, httpsup.Rulesets{1: []byte(`{"ruleset":{}}`)}, rs)
}

func TestReadRulesets_noBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, _, err = httpsup.ReadRulesets(path)
	assert.ErrorIs(t, err, httpsup.ErrNoBucket)
}

func TestParseRuleset(t *testing.T) {
	testCases := []struct {
		name       string
		data       string
		wantErrMsg string
		wantErr    bool
		wantActive bool
	}{{
		name:       "plain",
		data:       `{"ruleset":{"$":{"name":"A"},"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
		wantErrMsg: "",
		wantErr:    false,
		wantActive: true,
	}, {
		name: "exclusion_list",
		data: `{"ruleset":{"$":{"name":"A"},"exclusion":["^http://a/","^http://b/"],` +
			`"rule":[{"$":{"from":"^http:","to":"https:"}}]}}`,
		wantErrMsg: "",
		wantErr:    false,
		wantActive: true,
	}, {
		name:       "platform",
		data:       `{"ruleset":{"$":{"name":"A","platform":"x"},"rule":[]}}`,
		wantErrMsg: "",
		wantErr:    false,
		wantActive: false,
	}, {
		name:       "no_ruleset",
		data:       `{}`,
		wantErrMsg: "decoding: no ruleset object",
		wantErr:    true,
		wantActive: false,
	}, {
		name:       "bad_exclusion",
		data:       `{"ruleset":{"exclusion":42,"rule":[]}}`,
		wantErrMsg: "",
		wantErr:    true,
		wantActive: false,
	}, {
		name:       "bad_pattern",
		data:       `{"ruleset":{"rule":[{"$":{"from":"(","to":"https:"}}]}}`,
		wantErrMsg: "",
		wantErr:    true,
		wantActive: false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rs, err := httpsup.ParseRuleset([]byte(tc.data))
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tc.wantActive, rs.IsActive())

				return
			}

			require.Error(t, err)
			if tc.wantErrMsg != "" {
				assert.EqualError(t, err, tc.wantErrMsg)
			}
		})
	}
}

func TestRuleset_Apply(t *testing.T) {
	rs, err := httpsup.ParseRuleset([]byte(`{"ruleset":{` +
		`"exclusion":"^http://skip\\.example/",` +
		`"rule":[{"$":{"from":"^http://(\\w+)\\.example/","to":"https://$1.example/"}}]}}`))
	require.NoError(t, err)

	got, ok, err := rs.Apply("http://www.example/")
	require.NoError(t, err)

	assert.True(t, ok)
	assert.Equal(t, "https://www.example/", got)

	_, ok, err = rs.Apply("http://skip.example/")
	require.NoError(t, err)

	assert.False(t, ok)
}
