package cmd

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/shieldkit/webshield/internal/filter/decisioncache"
	"github.com/shieldkit/webshield/internal/filter/rulelist"
)

// filtersConfig is the configuration of the filter-list classifiers.
type filtersConfig struct {
	// Cache is the configuration of the decision caches.  Each classifier has
	// its own cache with these parameters.
	Cache *decisionCacheConfig `yaml:"cache"`

	// WelcomeBypass is the optional configuration of the welcome-page bypass
	// of the ad classifier.
	WelcomeBypass *welcomeBypassConfig `yaml:"welcome_bypass"`

	// Exceptions is the exception table shared by the ad and tracker
	// classifiers.
	Exceptions []*exceptionConfig `yaml:"exceptions"`

	// PixelHosts are the hosts for which blocked requests are answered with a
	// transparent image.
	PixelHosts []string `yaml:"pixel_hosts"`
}

// type check
var _ validate.Interface = (*filtersConfig)(nil)

// Validate implements the [validate.Interface] interface for *filtersConfig.
func (c *filtersConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := validate.Append(nil, "cache", c.Cache)

	if c.WelcomeBypass != nil {
		errs = validate.Append(errs, "welcome_bypass", c.WelcomeBypass)
	}

	for i, e := range c.Exceptions {
		errs = validate.Append(errs, fmt.Sprintf("exceptions: at index %d", i), e)
	}

	for i, h := range c.PixelHosts {
		errs = append(errs, validate.NotEmpty(fmt.Sprintf("pixel_hosts: at index %d", i), h))
	}

	return errors.Join(errs...)
}

// exceptions returns the exception table for the classifiers.  c must be
// valid.
func (c *filtersConfig) exceptions() (excs []*rulelist.Exception) {
	excs = make([]*rulelist.Exception, 0, len(c.Exceptions))
	for _, e := range c.Exceptions {
		excs = append(excs, &rulelist.Exception{
			Host: e.Host,
			URL:  e.URL,
		})
	}

	return excs
}

// decisionCacheConfig is the configuration of a decision cache.
type decisionCacheConfig struct {
	// Generations is the number of cache generations.
	Generations int `yaml:"generations"`

	// GenerationSize is the maximum number of decisions in a generation.
	GenerationSize int `yaml:"generation_size"`
}

// type check
var _ validate.Interface = (*decisionCacheConfig)(nil)

// Validate implements the [validate.Interface] interface for
// *decisionCacheConfig.
func (c *decisionCacheConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.Positive("generations", c.Generations),
		validate.Positive("generation_size", c.GenerationSize),
	)
}

// newCache returns a new decision cache with the configured parameters.  c
// must be valid.
func (c *decisionCacheConfig) newCache() (cache *decisioncache.Cache) {
	return decisioncache.New(&decisioncache.Config{
		Generations:    c.Generations,
		GenerationSize: c.GenerationSize,
	})
}

// exceptionConfig is an entry of the exception table.
type exceptionConfig struct {
	// Host is the substring of the main-document domain.
	Host string `yaml:"host"`

	// URL is the substring of the request URL.
	URL string `yaml:"url"`
}

// type check
var _ validate.Interface = (*exceptionConfig)(nil)

// Validate implements the [validate.Interface] interface for *exceptionConfig.
func (c *exceptionConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.NotEmpty("host", c.Host),
		validate.NotEmpty("url", c.URL),
	)
}

// welcomeBypassConfig is the configuration of the welcome-page bypass.
type welcomeBypassConfig struct {
	// RootURL is the root of the bypassed site.
	RootURL *urlutil.URL `yaml:"root_url"`

	// Cookies are the bypass cookies by name.
	Cookies map[string]string `yaml:"cookies"`

	// Host is the substring of the request host that enables the bypass.
	Host string `yaml:"host"`

	// WelcomePath is the substring of the URL of the welcome page.
	WelcomePath string `yaml:"welcome_path"`

	// Window is the duration of the redirect-loop window.
	Window timeutil.Duration `yaml:"window"`

	// MaxRedirects is the maximum number of follow-up navigations within
	// Window.
	MaxRedirects int `yaml:"max_redirects"`

	// Enabled shows if the bypass is used.
	Enabled bool `yaml:"enabled"`
}

// type check
var _ validate.Interface = (*welcomeBypassConfig)(nil)

// Validate implements the [validate.Interface] interface for
// *welcomeBypassConfig.
func (c *welcomeBypassConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	} else if !c.Enabled {
		return nil
	}

	errs := []error{
		validate.NotNil("root_url", c.RootURL),
		validate.NotEmpty("host", c.Host),
		validate.NotEmpty("welcome_path", c.WelcomePath),
		validate.Positive("window", c.Window),
		validate.Positive("max_redirects", c.MaxRedirects),
	}

	if c.RootURL != nil {
		err = urlutil.ValidateHTTPURL(&c.RootURL.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("root_url: %w", err))
		}
	}

	return errors.Join(errs...)
}

// toInternal returns the bypass configuration for the ad classifier or nil if
// the bypass is disabled.  c must be valid.
func (c *welcomeBypassConfig) toInternal() (conf *rulelist.WelcomeBypassConfig) {
	if c == nil || !c.Enabled {
		return nil
	}

	cookies := make([]*http.Cookie, 0, len(c.Cookies))
	for _, name := range slices.Sorted(maps.Keys(c.Cookies)) {
		cookies = append(cookies, &http.Cookie{
			Name:  name,
			Value: c.Cookies[name],
			Path:  "/",
		})
	}

	return &rulelist.WelcomeBypassConfig{
		Root:         &c.RootURL.URL,
		Host:         c.Host,
		WelcomePath:  c.WelcomePath,
		Cookies:      cookies,
		MaxRedirects: c.MaxRedirects,
		Window:       time.Duration(c.Window),
	}
}
