package cmd

import (
	"math"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/shieldkit/webshield/internal/artifact"
)

// artifactsConfig is the configuration of the rule artifact downloads.
type artifactsConfig struct {
	// Retry is the download retry policy.
	Retry *retryConfig `yaml:"retry"`

	// Timeout is the timeout of a single HTTP request.
	Timeout timeutil.Duration `yaml:"timeout"`

	// RevalidateDelay is the delay after which the cached artifacts are
	// checked against the servers.
	RevalidateDelay timeutil.Duration `yaml:"revalidate_delay"`

	// MaxSize is the maximum size of an artifact.
	MaxSize datasize.ByteSize `yaml:"max_size"`
}

// type check
var _ validate.Interface = (*artifactsConfig)(nil)

// Validate implements the [validate.Interface] interface for *artifactsConfig.
func (c *artifactsConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("timeout", c.Timeout),
		validate.NotNegative("revalidate_delay", c.RevalidateDelay),
		validate.Positive("max_size", c.MaxSize),
		validate.NoGreaterThan("max_size", c.MaxSize, math.MaxInt),
	}

	errs = validate.Append(errs, "retry", c.Retry)

	return errors.Join(errs...)
}

// retryConfig is the configuration of the download retry policy.
type retryConfig struct {
	// Delay is the fixed delay between the download attempts.
	Delay timeutil.Duration `yaml:"delay"`

	// Jitter is the maximum random duration added to Delay.
	Jitter timeutil.Duration `yaml:"jitter"`
}

// type check
var _ validate.Interface = (*retryConfig)(nil)

// Validate implements the [validate.Interface] interface for *retryConfig.
func (c *retryConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.Positive("delay", c.Delay),
		validate.NotNegative("jitter", c.Jitter),
	)
}

// toInternal returns the retry policy for the distributors.  c must be valid.
func (c *retryConfig) toInternal() (p *artifact.RetryPolicy) {
	return &artifact.RetryPolicy{
		Delay:  time.Duration(c.Delay),
		Jitter: time.Duration(c.Jitter),
	}
}
