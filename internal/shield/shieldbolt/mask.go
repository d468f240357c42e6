package shieldbolt

import "github.com/shieldkit/webshield/internal/shield"

// mask is the persisted form of [shield.Configuration].  The zero mask is the
// default configuration, so the bits for the protections that are on by
// default mean "off".
type mask uint8

// Bits of the persisted mask.
const (
	maskAdBlockOff               mask = 1 << 0
	maskTrackingProtectionOff    mask = 1 << 1
	maskHTTPSUpgradeOff          mask = 1 << 2
	maskSafeBrowsingOff          mask = 1 << 3
	maskFingerprintProtectionOff mask = 1 << 4
	maskScriptBlockingOn         mask = 1 << 5
)

// toMask converts c into a mask.
func toMask(c shield.Configuration) (m mask) {
	m |= maskIf(!c.AdBlock, maskAdBlockOff)
	m |= maskIf(!c.TrackingProtection, maskTrackingProtectionOff)
	m |= maskIf(!c.HTTPSUpgrade, maskHTTPSUpgradeOff)
	m |= maskIf(!c.SafeBrowsing, maskSafeBrowsingOff)
	m |= maskIf(!c.FingerprintProtection, maskFingerprintProtectionOff)
	m |= maskIf(c.ScriptBlocking, maskScriptBlockingOn)

	return m
}

// maskIf returns bit if cond is true and zero otherwise.
func maskIf(cond bool, bit mask) (m mask) {
	if cond {
		return bit
	}

	return 0
}

// fromMask converts m into a configuration.  Unknown bits are ignored.
func fromMask(m mask) (c shield.Configuration) {
	return shield.Configuration{
		AdBlock:               m&maskAdBlockOff == 0,
		TrackingProtection:    m&maskTrackingProtectionOff == 0,
		HTTPSUpgrade:          m&maskHTTPSUpgradeOff == 0,
		SafeBrowsing:          m&maskSafeBrowsingOff == 0,
		FingerprintProtection: m&maskFingerprintProtectionOff == 0,
		ScriptBlocking:        m&maskScriptBlockingOn != 0,
	}
}
