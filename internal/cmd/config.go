package cmd

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"gopkg.in/yaml.v2"
)

// configuration represents the on-disk configuration of WebShield.  The order
// of the fields should generally not be altered.
type configuration struct {
	// Artifacts is the configuration of the rule artifact downloads.
	Artifacts *artifactsConfig `yaml:"artifacts"`

	// Filters is the configuration of the filter-list classifiers.
	Filters *filtersConfig `yaml:"filters"`

	// HTTPSUpgrade is the configuration of the HTTPS upgrade rewriter.
	HTTPSUpgrade *httpsUpgradeConfig `yaml:"https_upgrade"`

	// Shields is the configuration of the shield configuration store.
	Shields *shieldsConfig `yaml:"shields"`

	// Interceptor is the configuration of the request interceptor.
	Interceptor *interceptorConfig `yaml:"interceptor"`
}

// type check
var _ validate.Interface = (*configuration)(nil)

// Validate implements the [validate.Interface] interface for *configuration.
func (c *configuration) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	// Keep this in the same order as the fields in the config.
	validators := container.KeyValues[string, validate.Interface]{{
		Key:   "artifacts",
		Value: c.Artifacts,
	}, {
		Key:   "filters",
		Value: c.Filters,
	}, {
		Key:   "https_upgrade",
		Value: c.HTTPSUpgrade,
	}, {
		Key:   "shields",
		Value: c.Shields,
	}, {
		Key:   "interceptor",
		Value: c.Interceptor,
	}}

	var errs []error
	for _, kv := range validators {
		errs = validate.Append(errs, kv.Key, kv.Value)
	}

	return errors.Join(errs...)
}

// parseConfig reads the configuration.
func parseConfig(confPath string) (c *configuration, err error) {
	// #nosec G304 -- Trust the path to the configuration file that is given
	// from the environment.
	yamlFile, err := os.ReadFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	c = &configuration{}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return c, nil
}
