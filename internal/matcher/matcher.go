// Package matcher compares a query descriptor against enrolled identities
// using k-nearest-neighbour voting over cosine distances.
package matcher

import (
	"fmt"
	"slices"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/constants"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"go.uber.org/zap"
)

// Matcher decides whether a query face belongs to an identity.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	cfg     config.MatchConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a matcher. logger and m may be nil.
func New(cfg config.MatchConfig, logger *zap.Logger, m *metrics.Metrics) *Matcher {
	return &Matcher{cfg: cfg, logger: logging.Or(logger), metrics: m}
}

// Verify matches query against a single claimed identity.
// It returns face.ErrNoEnrolledDescriptors when no stored descriptor is comparable.
func (m *Matcher) Verify(query face.Descriptor, id face.StoredIdentity) (face.MatchResult, error) {
	distances := distancesTo(query, id)
	if len(distances) == 0 {
		return face.MatchResult{}, fmt.Errorf("identity %s: %w", id.ID, face.ErrNoEnrolledDescriptors)
	}

	res := m.decide(distances, query.Family())
	res.MatchedIdentityID = id.ID
	m.record(res, len(distances))
	return res, nil
}

// Identify finds the identity holding the single closest descriptor and then
// applies the voting policy to that identity's full descriptor set.
func (m *Matcher) Identify(query face.Descriptor, identities []face.StoredIdentity) (face.MatchResult, error) {
	var (
		best      float64
		bestIdx   = -1
		bestDists []float64
	)
	for i, id := range identities {
		d := distancesTo(query, id)
		if len(d) == 0 {
			continue
		}
		if bestIdx < 0 || d[0] < best {
			best, bestIdx, bestDists = d[0], i, d
		}
	}
	if bestIdx < 0 {
		return face.MatchResult{}, fmt.Errorf("%s gallery of %d identities: %w",
			query.Family(), len(identities), face.ErrNoEnrolledDescriptors)
	}

	res := m.decide(bestDists, query.Family())
	res.MatchedIdentityID = identities[bestIdx].ID
	m.record(res, len(bestDists))
	return res, nil
}

// IdentifyIndexed narrows large galleries with the HNSW index before the exact
// scan. Small galleries, a nil index or an index of another family use the
// exact scan directly.
func (m *Matcher) IdentifyIndexed(query face.Descriptor, identities []face.StoredIdentity, idx *Index) (face.MatchResult, error) {
	if idx == nil || idx.Family() != query.Family() || idx.Len() < constants.HNSWMinGallerySize {
		return m.Identify(query, identities)
	}

	shortlist := idx.Shortlist(query, constants.HNSWShortlistSize)
	wanted := make(map[string]bool, len(shortlist))
	for _, id := range shortlist {
		wanted[id] = true
	}

	candidates := make([]face.StoredIdentity, 0, len(shortlist))
	for _, id := range identities {
		if wanted[id.ID] {
			candidates = append(candidates, id)
		}
	}
	m.logger.Debug("hnsw shortlist",
		zap.Int("gallery", idx.Len()),
		zap.Int("candidates", len(candidates)),
	)
	if len(candidates) == 0 {
		return m.Identify(query, identities)
	}
	return m.Identify(query, candidates)
}

// decide applies the acceptance policy to ascending distances.
func (m *Matcher) decide(distances []float64, family face.Family) face.MatchResult {
	threshold := m.cfg.Thresholds.For(family)

	if len(distances) >= m.cfg.MinVotingSamples {
		k := min(m.cfg.K, len(distances))
		top := distances[:k]

		var sum float64
		strong := 0
		for _, d := range top {
			sum += d
			if d < m.cfg.StrongPair {
				strong++
			}
		}
		mean := sum / float64(k)

		return face.MatchResult{
			Accepted:   mean < threshold || strong >= m.cfg.MinStrongPairs,
			Confidence: round3(1 - mean),
			Distance:   round3(mean),
			Method:     face.MethodKNN,
		}
	}

	best := distances[0]
	return face.MatchResult{
		Accepted:   best < threshold,
		Confidence: round3(1 - best),
		Distance:   round3(best),
		Method:     face.MethodSingleBest,
	}
}

func (m *Matcher) record(res face.MatchResult, samples int) {
	m.logger.Info("match decision",
		zap.String("identity_id", res.MatchedIdentityID),
		zap.Bool("accepted", res.Accepted),
		zap.Float64("distance", res.Distance),
		zap.String("method", res.Method),
		zap.Int("samples", samples),
	)
	m.metrics.ObserveMatch(res.Method, res.Distance)
}

// distancesTo returns the ascending distances between query and the
// identity's comparable descriptors. Other families, other lengths and zero
// vectors are skipped.
func distancesTo(query face.Descriptor, id face.StoredIdentity) []float64 {
	if id.Family != query.Family() {
		return nil
	}
	out := make([]float64, 0, len(id.Descriptors))
	for _, d := range id.Descriptors {
		if d.Family() != query.Family() {
			continue
		}
		dist, ok := CosineDistance(query.Values(), d.Values())
		if !ok {
			continue
		}
		out = append(out, dist)
	}
	slices.Sort(out)
	return out
}
