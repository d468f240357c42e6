package shield

import (
	"net/netip"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultPrefixes are the generic subdomain prefixes removed by [Normalizer]
// by default.
var DefaultPrefixes = []string{"www.", "m.", "mobile."}

// Normalizer turns hosts into normalized domains, which are the keys of shield
// configurations and statistics.
type Normalizer struct {
	prefixes []string
}

// NewNormalizer returns a new properly initialized *Normalizer that strips
// prefixes.  If prefixes is empty, [DefaultPrefixes] are used.
func NewNormalizer(prefixes []string) (n *Normalizer) {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}

	ps := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.ToLower(p)
		if !strings.HasSuffix(p, ".") {
			p += "."
		}

		ps = append(ps, p)
	}

	return &Normalizer{
		prefixes: ps,
	}
}

// Normalize returns the normalized domain for host.  It folds the case, removes
// the trailing dot, and strips the configured prefixes as long as the rest is
// still a registrable domain, so that "www.co.uk" is kept intact.  IP
// addresses are returned as is.
func (n *Normalizer) Normalize(host string) (domain string) {
	domain = strings.TrimSuffix(strings.ToLower(host), ".")
	if _, err := netip.ParseAddr(domain); err == nil {
		return domain
	}

	for stripped := true; stripped; {
		stripped = false
		for _, p := range n.prefixes {
			rest, ok := strings.CutPrefix(domain, p)
			if ok && isRegistrable(rest) {
				domain, stripped = rest, true

				break
			}
		}
	}

	return domain
}

// isRegistrable returns true if domain is at least an eTLD+1.
func isRegistrable(domain string) (ok bool) {
	_, err := publicsuffix.EffectiveTLDPlusOne(domain)

	return err == nil
}
