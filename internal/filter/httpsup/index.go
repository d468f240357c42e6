package httpsup

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/shieldkit/webshield/internal/artifact"
	"github.com/shieldkit/webshield/internal/metrics"
)

// DomainIndex maps exact domains and wildcard domains, such as
// "*.example.com", to the identifiers of rulesets.
type DomainIndex map[string][]uint32

// ParseIndex parses the JSON domain index in data.
func ParseIndex(data []byte) (idx DomainIndex, err error) {
	err = json.Unmarshal(data, &idx)
	if err != nil {
		return nil, fmt.Errorf("decoding domain index: %w", err)
	}

	if len(idx) == 0 {
		return nil, fmt.Errorf("decoding domain index: %w", ErrEmptyIndex)
	}

	return idx, nil
}

// Lookup returns the identifiers of the rulesets for host.  The exact host is
// tested first and then the wildcard forms of its parent domains from the most
// specific one down to the second level.  The identifiers are accumulated in
// this order without duplicates.
func (idx DomainIndex) Lookup(host string) (ids []uint32) {
	labels := strings.Split(host, ".")
	for i := range len(labels) - 1 {
		key := strings.Join(labels[i:], ".")
		if i > 0 {
			key = "*." + key
		}

		for _, id := range idx[key] {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}

	return ids
}

// indexConsumer is the [artifact.Consumer] of the domain index.
type indexConsumer struct {
	rw *Rewriter
}

// type check
var _ artifact.Consumer[DomainIndex] = indexConsumer{}

// Parse implements the [artifact.Consumer] interface for indexConsumer.
func (c indexConsumer) Parse(_ context.Context, a *artifact.Artifact) (idx DomainIndex, err error) {
	return ParseIndex(a.Data)
}

// Install implements the [artifact.Consumer] interface for indexConsumer.
func (c indexConsumer) Install(ctx context.Context, idx DomainIndex) {
	c.rw.update(func(v *view) { v.index = idx })

	metrics.HTTPSUpTargetsTotal.Set(float64(len(idx)))
	c.rw.logger.InfoContext(ctx, "reset domain index", "num", len(idx))
}
