// Package shield contains the per-domain shield configurations and the store
// that keeps them.
package shield

// Configuration is the set of protections enabled for one normalized domain.
// The zero value has every protection off, use [AllOn] for the default.
type Configuration struct {
	// AdBlock enables the advertising blocklist.
	AdBlock bool `json:"ad_block"`

	// TrackingProtection enables the tracker blocklist.
	TrackingProtection bool `json:"tracking_protection"`

	// HTTPSUpgrade enables HTTPS upgrade rewriting.
	HTTPSUpgrade bool `json:"https_upgrade"`

	// SafeBrowsing enables the malware and phishing blocklist.
	SafeBrowsing bool `json:"safe_browsing"`

	// FingerprintProtection enables fingerprinting protection.  It is enforced
	// by the page scripts of the host, WebShield only keeps the setting and
	// counts the reported attempts.
	FingerprintProtection bool `json:"fingerprint_protection"`

	// ScriptBlocking disables scripts.  Unlike the other flags, it is off by
	// default.
	ScriptBlocking bool `json:"script_blocking"`
}

// AllOn returns the default configuration: every protection is on and script
// blocking is off.
func AllOn() (c Configuration) {
	return Configuration{
		AdBlock:               true,
		TrackingProtection:    true,
		HTTPSUpgrade:          true,
		SafeBrowsing:          true,
		FingerprintProtection: true,
	}
}

// IsDefault returns true if c is the same as [AllOn].
func (c Configuration) IsDefault() (ok bool) {
	return c == AllOn()
}

// IsAllOff returns true if all protections that are on by default are off.
// ScriptBlocking is not taken into account.
func (c Configuration) IsAllOff() (ok bool) {
	return !c.AdBlock &&
		!c.TrackingProtection &&
		!c.HTTPSUpgrade &&
		!c.SafeBrowsing &&
		!c.FingerprintProtection
}
