package cmd

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// httpsUpgradeConfig is the configuration of the HTTPS upgrade rewriter.
type httpsUpgradeConfig struct {
	// Ignored are the substrings of URLs that are never upgraded.
	Ignored []string `yaml:"ignored"`

	// CacheSize is the size of the compiled ruleset cache.  Zero disables the
	// cache.
	CacheSize int `yaml:"cache_size"`
}

// type check
var _ validate.Interface = (*httpsUpgradeConfig)(nil)

// Validate implements the [validate.Interface] interface for
// *httpsUpgradeConfig.
func (c *httpsUpgradeConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNegative("cache_size", c.CacheSize),
	}

	for i, s := range c.Ignored {
		errs = append(errs, validate.NotEmpty(fmt.Sprintf("ignored: at index %d", i), s))
	}

	return errors.Join(errs...)
}
