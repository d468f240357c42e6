package httpsup

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/metrics"
	"go.etcd.io/bbolt"
)

// RulesetsBucket is the name of the bucket with ruleset rows in the ruleset
// database.
const RulesetsBucket = "rulesets"

// openTimeout is the timeout for acquiring the lock on the ruleset database.
const openTimeout = 1 * time.Second

// Rulesets are the raw JSON ruleset rows by identifier.
type Rulesets map[uint32][]byte

// ReadRulesets reads all ruleset rows from the BoltDB database at path.  Keys
// that are not four-byte big-endian identifiers are skipped and reported in
// malformed.
func ReadRulesets(path string) (rs Rulesets, malformed int, err error) {
	defer func() { err = errors.Annotate(err, "reading rulesets: %w") }()

	db, err := bbolt.Open(path, 0o400, &bbolt.Options{
		Timeout:  openTimeout,
		ReadOnly: true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("opening: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, db.Close()) }()

	rs = Rulesets{}
	err = db.View(func(tx *bbolt.Tx) (ferr error) {
		b := tx.Bucket([]byte(RulesetsBucket))
		if b == nil {
			return ErrNoBucket
		}

		return b.ForEach(func(k, v []byte) (fErr error) {
			if len(k) != 4 {
				malformed++

				return nil
			}

			// The values are only valid during the transaction.
			rs[binary.BigEndian.Uint32(k)] = append([]byte(nil), v...)

			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	return rs, malformed, nil
}

// rulesetsConsumer is the [artifact.Consumer] of the ruleset database.
type rulesetsConsumer struct {
	rw *Rewriter
}

// type check
var _ artifact.Consumer[Rulesets] = rulesetsConsumer{}

// Parse implements the [artifact.Consumer] interface for rulesetsConsumer.
func (c rulesetsConsumer) Parse(ctx context.Context, a *artifact.Artifact) (rs Rulesets, err error) {
	rs, malformed, err := ReadRulesets(a.Path)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	if malformed > 0 {
		metrics.HTTPSUpMalformedRulesets.Add(float64(malformed))
		c.rw.logger.WarnContext(ctx, "skipped malformed ruleset keys", "num", malformed)
	}

	if len(rs) == 0 {
		return nil, fmt.Errorf("reading rulesets: %w", ErrNoRulesets)
	}

	return rs, nil
}

// Install implements the [artifact.Consumer] interface for rulesetsConsumer.
func (c rulesetsConsumer) Install(ctx context.Context, rs Rulesets) {
	c.rw.update(func(v *view) { v.rulesets = rs })

	metrics.HTTPSUpRulesetsTotal.Set(float64(len(rs)))
	c.rw.logger.InfoContext(ctx, "reset rulesets", "num", len(rs))
}
