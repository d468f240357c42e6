package httpsup

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout is the timeout for a single regular expression operation.
const matchTimeout = 100 * time.Millisecond

// Ruleset is a compiled ruleset.
type Ruleset struct {
	// exclusions are the patterns of the scheme and host parts that must not
	// be rewritten.
	exclusions []*regexp2.Regexp

	// rules are the rewrite rules in the order of their priority.
	rules []*Rule

	// Name is the human-readable name of the ruleset.
	Name string

	// DefaultOff is true if the ruleset is disabled by default.
	DefaultOff bool

	// Platform is true if the ruleset is restricted to some platforms.
	Platform bool
}

// Rule is a single compiled rewrite rule.
type Rule struct {
	from *regexp2.Regexp
	to   string
}

// jsonRuleset is the JSON form of a ruleset row.
type jsonRuleset struct {
	Ruleset *struct {
		Attrs struct {
			DefaultOff json.RawMessage `json:"default_off"`
			Platform   json.RawMessage `json:"platform"`
			Name       string          `json:"name"`
		} `json:"$"`
		Exclusion jsonExclusions `json:"exclusion"`
		Rule      []*jsonRule    `json:"rule"`
	} `json:"ruleset"`
}

// jsonRule is the JSON form of a rule.
type jsonRule struct {
	Attrs struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"$"`
}

// jsonExclusions is the JSON form of the exclusions of a ruleset.  It can be a
// single pattern, a list of patterns, or a list of objects with the "pattern"
// attribute.
type jsonExclusions []string

// type check
var _ json.Unmarshaler = (*jsonExclusions)(nil)

// UnmarshalJSON implements the [json.Unmarshaler] interface for
// *jsonExclusions.
func (e *jsonExclusions) UnmarshalJSON(b []byte) (err error) {
	var single string
	if json.Unmarshal(b, &single) == nil {
		*e = jsonExclusions{single}

		return nil
	}

	var raws []json.RawMessage
	err = json.Unmarshal(b, &raws)
	if err != nil {
		return fmt.Errorf("exclusion: %w", err)
	}

	for i, raw := range raws {
		var p string
		if json.Unmarshal(raw, &p) != nil {
			var obj struct {
				Attrs struct {
					Pattern string `json:"pattern"`
				} `json:"$"`
			}

			err = json.Unmarshal(raw, &obj)
			if err != nil {
				return fmt.Errorf("exclusion at index %d: %w", i, err)
			}

			p = obj.Attrs.Pattern
		}

		*e = append(*e, p)
	}

	return nil
}

// ParseRuleset parses and compiles the JSON ruleset row in data.
func ParseRuleset(data []byte) (rs *Ruleset, err error) {
	j := &jsonRuleset{}
	err = json.Unmarshal(data, j)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	if j.Ruleset == nil {
		return nil, fmt.Errorf("decoding: %w", ErrNoRuleset)
	}

	r := j.Ruleset
	rs = &Ruleset{
		Name:       r.Attrs.Name,
		DefaultOff: len(r.Attrs.DefaultOff) > 0,
		Platform:   len(r.Attrs.Platform) > 0,
	}

	for i, p := range r.Exclusion {
		var re *regexp2.Regexp
		re, err = compile(p)
		if err != nil {
			return nil, fmt.Errorf("exclusion at index %d: %w", i, err)
		}

		rs.exclusions = append(rs.exclusions, re)
	}

	for i, jr := range r.Rule {
		var re *regexp2.Regexp
		re, err = compile(jr.Attrs.From)
		if err != nil {
			return nil, fmt.Errorf("rule at index %d: %w", i, err)
		}

		rs.rules = append(rs.rules, &Rule{
			from: re,
			to:   jr.Attrs.To,
		})
	}

	return rs, nil
}

// compile compiles the pattern p.
func compile(p string) (re *regexp2.Regexp, err error) {
	re, err = regexp2.Compile(p, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", p, err)
	}

	re.MatchTimeout = matchTimeout

	return re, nil
}

// IsActive returns true if rs may rewrite URLs.
func (rs *Ruleset) IsActive() (ok bool) {
	return !rs.DefaultOff && !rs.Platform
}

// Apply returns the rewritten prefix, which is a "scheme://host/" string, and
// true if one of the rules has changed it.  The ruleset must be active.
func (rs *Ruleset) Apply(prefix string) (rewritten string, ok bool, err error) {
	for _, re := range rs.exclusions {
		var excluded bool
		excluded, err = re.MatchString(prefix)
		if err != nil {
			return "", false, fmt.Errorf("matching exclusion: %w", err)
		} else if excluded {
			return "", false, nil
		}
	}

	for _, r := range rs.rules {
		rewritten, err = r.from.Replace(prefix, r.to, -1, -1)
		if err != nil {
			return "", false, fmt.Errorf("applying rule: %w", err)
		}

		if rewritten != prefix {
			return rewritten, true, nil
		}
	}

	return "", false, nil
}
