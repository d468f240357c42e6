package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/caarlos0/env/v7"
	"github.com/getsentry/sentry-go"
	"github.com/shieldkit/webshield/internal/debugsvc"
	"github.com/shieldkit/webshield/internal/errcoll"
	"github.com/shieldkit/webshield/internal/version"
)

// environment represents the configuration that is kept in the environment.
type environment struct {
	AdsURL            *urlutil.URL `env:"ADS_URL"`
	HTTPSIndexURL     *urlutil.URL `env:"HTTPS_INDEX_URL"`
	HTTPSRulesetsURL  *urlutil.URL `env:"HTTPS_RULESETS_URL"`
	MalwareURL        *urlutil.URL `env:"MALWARE_URL"`
	TrackersURL       *urlutil.URL `env:"TRACKERS_URL"`
	ConfPath          string       `env:"CONFIG_PATH" envDefault:"./config.yaml"`
	CachePath         string       `env:"CACHE_PATH" envDefault:"./artifacts/"`
	CrashOutputDir    string       `env:"CRASH_OUTPUT_DIR"`
	CrashOutputPrefix string       `env:"CRASH_OUTPUT_PREFIX" envDefault:"webshield"`
	LogFormat         string       `env:"LOG_FORMAT" envDefault:"text"`
	SentryDSN         string       `env:"SENTRY_DSN" envDefault:"stderr"`
	ShieldsDBPath     string       `env:"SHIELDS_DB_PATH" envDefault:"./shields.db"`

	ListenAddr net.IP `env:"LISTEN_ADDR" envDefault:"127.0.0.1"`

	MaxThreads int `env:"MAX_THREADS"`

	ListenPort uint16 `env:"LISTEN_PORT" envDefault:"8181"`

	Verbosity uint8 `env:"VERBOSE" envDefault:"0"`

	AdBlockEnabled            strictBool `env:"ADBLOCK_ENABLED" envDefault:"1"`
	CrashOutputEnabled        strictBool `env:"CRASH_OUTPUT_ENABLED" envDefault:"0"`
	HTTPSUpgradeEnabled       strictBool `env:"HTTPS_UPGRADE_ENABLED" envDefault:"1"`
	LogTimestamp              strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
	SafeBrowsingEnabled       strictBool `env:"SAFE_BROWSING_ENABLED" envDefault:"1"`
	TrackingProtectionEnabled strictBool `env:"TRACKING_PROTECTION_ENABLED" envDefault:"1"`
}

// parseEnvironment reads the configuration.
func parseEnvironment() (envs *environment, err error) {
	envs = &environment{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// type check
var _ validate.Interface = (*environment)(nil)

// Validate implements the [validate.Interface] interface for *environment.
func (envs *environment) Validate() (err error) {
	errs := []error{
		validate.NotNegative("MAX_THREADS", envs.MaxThreads),
		validate.NotEmpty("CACHE_PATH", envs.CachePath),
		validate.NotEmpty("SHIELDS_DB_PATH", envs.ShieldsDBPath),
	}

	errs = envs.validateHTTPURLs(errs)

	_, err = slogutil.NewFormat(envs.LogFormat)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: %w", err))
	}

	_, err = slogutil.VerbosityToLevel(envs.Verbosity)
	if err != nil {
		errs = append(errs, fmt.Errorf("VERBOSE: %w", err))
	}

	errs = envs.validateCrashOutput(errs)

	return errors.Join(errs...)
}

// urlEnvData is a helper struct for validation of URLs set in environment
// variables.
type urlEnvData struct {
	url        *urlutil.URL
	name       string
	isRequired bool
}

// validateHTTPURLs appends validation errors to the given errs if HTTP(S) URLs
// in environment variables are invalid.  All errors are appended to errs and
// returned as res.
func (envs *environment) validateHTTPURLs(errs []error) (res []error) {
	httpOnlyURLs := []*urlEnvData{{
		url:        envs.AdsURL,
		name:       "ADS_URL",
		isRequired: true,
	}, {
		url:        envs.TrackersURL,
		name:       "TRACKERS_URL",
		isRequired: true,
	}, {
		url:        envs.MalwareURL,
		name:       "MALWARE_URL",
		isRequired: true,
	}, {
		url:        envs.HTTPSIndexURL,
		name:       "HTTPS_INDEX_URL",
		isRequired: true,
	}, {
		url:        envs.HTTPSRulesetsURL,
		name:       "HTTPS_RULESETS_URL",
		isRequired: true,
	}}}

	res = errs
	for _, urlData := range httpOnlyURLs {
		if !urlData.isRequired {
			continue
		}

		var u *url.URL
		if urlData.url != nil {
			u = &urlData.url.URL
		}

		err := urlutil.ValidateHTTPURL(u)
		if err != nil {
			res = append(res, fmt.Errorf("env %s: %w", urlData.name, err))
		}
	}

	return res
}

// validateDir is a best-effort check to make sure the directory exists.
func validateDir(dirPath string) (err error) {
	fi, err := os.Stat(dirPath)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		return errors.Error("not a directory")
	}

	return nil
}

// validateCrashOutput appends validation errors to errs if the environment
// variables for crash reporting contain errors.
func (envs *environment) validateCrashOutput(orig []error) (errs []error) {
	errs = orig

	if !envs.CrashOutputEnabled {
		return errs
	}

	return append(errs,
		validate.NotEmpty("CRASH_OUTPUT_DIR", envs.CrashOutputDir),
		validate.NotEmpty("CRASH_OUTPUT_PREFIX", envs.CrashOutputPrefix),
	)
}

// buildErrColl builds and returns an error collector from environment.
// baseLogger must not be nil.
func (envs *environment) buildErrColl(
	baseLogger *slog.Logger,
) (errColl errcoll.Interface, err error) {
	dsn := envs.SentryDSN
	if dsn == "stderr" {
		return errcoll.NewWriterErrorCollector(os.Stderr), nil
	}

	cli, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          version.Version(),
	})
	if err != nil {
		return nil, err
	}

	l := baseLogger.With(slogutil.KeyPrefix, "sentry_errcoll")

	return errcoll.NewSentryErrorCollector(cli, l), nil
}

// debugConf returns a debug HTTP service configuration from environment.
func (envs *environment) debugConf(logger *slog.Logger) (conf *debugsvc.Config) {
	addr := netutil.JoinHostPort(envs.ListenAddr.String(), envs.ListenPort)

	return &debugsvc.Config{
		Logger:         logger.With(slogutil.KeyPrefix, "debugsvc"),
		APIAddr:        addr,
		PprofAddr:      addr,
		PrometheusAddr: addr,
	}
}

// strictBool is a type for booleans that are parsed from the environment more
// strictly than the usual bool.  It only accepts "0" and "1" as valid values.
type strictBool bool

// UnmarshalText implements the encoding.TextUnmarshaler interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	if len(b) == 1 {
		switch b[0] {
		case '0':
			*sb = false

			return nil
		case '1':
			*sb = true

			return nil
		default:
			// Go on and return an error.
		}
	}

	return fmt.Errorf("invalid value %q, supported: %q, %q", b, "0", "1")
}
