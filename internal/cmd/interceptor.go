package cmd

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// interceptorConfig is the configuration of the request interceptor.
type interceptorConfig struct {
	// LocalServer is the base URL of the local content server.  Pages served
	// from it are never filtered.  It may be nil.
	LocalServer *urlutil.URL `yaml:"local_server"`

	// FollowUpDelay is the delay before a follow-up navigation.
	FollowUpDelay timeutil.Duration `yaml:"follow_up_delay"`

	// NavigationTimeout is the timeout of a re-issued navigation request.
	NavigationTimeout timeutil.Duration `yaml:"navigation_timeout"`
}

// type check
var _ validate.Interface = (*interceptorConfig)(nil)

// Validate implements the [validate.Interface] interface for
// *interceptorConfig.
func (c *interceptorConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("follow_up_delay", c.FollowUpDelay),
		validate.Positive("navigation_timeout", c.NavigationTimeout),
	}

	if c.LocalServer != nil && c.LocalServer.Host == "" {
		errs = append(errs, fmt.Errorf("local_server: %w", errors.ErrEmptyValue))
	}

	return errors.Join(errs...)
}
