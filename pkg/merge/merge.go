// Package merge picks the winning version of one entity out of the candidates
// found across sessions, and folds every candidate's evidence into it.
package merge

import (
	"errors"
	"fmt"
	"sort"

	"travel-intel/internal/entity"
	"travel-intel/pkg/evidence"
)

// Strategy names how a winner is chosen.
type Strategy string

const (
	// StrategyQualityFirst ranks by QualityScore, then ProducedAt, then ContentHash.
	StrategyQualityFirst Strategy = "quality_first"
	// StrategyRecencyFirst ranks by ProducedAt, then QualityScore, then ContentHash.
	StrategyRecencyFirst Strategy = "recency_first"
)

func (s Strategy) Valid() bool {
	return s == StrategyQualityFirst || s == StrategyRecencyFirst
}

// ParseStrategy accepts the strategy names plus the legacy aliases
// "quality_based" and "latest_wins". Empty means quality-first.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", string(StrategyQualityFirst), "quality_based":
		return StrategyQualityFirst, nil
	case string(StrategyRecencyFirst), "latest_wins":
		return StrategyRecencyFirst, nil
	}
	return "", fmt.Errorf("merge: unknown strategy %q", name)
}

var (
	ErrNoCandidates  = errors.New("merge: no candidates")
	ErrMixedEntities = errors.New("merge: candidates describe different entities")
	ErrMissingHash   = errors.New("merge: candidate has no content hash")
)

// Policy is a pure merge function over one entity's candidates.
type Policy struct {
	Strategy Strategy
	Dedup    *evidence.Deduplicator
}

func NewPolicy(strategy Strategy, dedup *evidence.Deduplicator) *Policy {
	if !strategy.Valid() {
		strategy = StrategyQualityFirst
	}
	if dedup == nil {
		dedup = evidence.NewDeduplicator(0)
	}
	return &Policy{Strategy: strategy, Dedup: dedup}
}

// Merge returns the winner, carrying the deduplicated union of all candidates'
// evidence, together with that evidence. The outcome does not depend on the
// order of candidates, and the inputs are not modified.
func (p *Policy) Merge(candidates []entity.Record) (entity.Record, []entity.EvidenceItem, error) {
	if len(candidates) == 0 {
		return entity.Record{}, nil, ErrNoCandidates
	}
	id := candidates[0].EntityID
	var pool []entity.EvidenceItem
	for _, c := range candidates {
		if c.EntityID != id {
			return entity.Record{}, nil, fmt.Errorf("%w: %q and %q", ErrMixedEntities, id, c.EntityID)
		}
		if c.ContentHash == "" {
			return entity.Record{}, nil, fmt.Errorf("%w: %s from session %s", ErrMissingHash, c.EntityID, c.SourceSessionID)
		}
		pool = append(pool, c.Evidence...)
	}

	absorbed := p.Dedup.Dedupe(pool)
	winner := p.Rank(candidates)[0].Clone()
	winner.Evidence = absorbed
	return winner, absorbed, nil
}

// Rank returns the candidates best-first without merging evidence.
func (p *Policy) Rank(candidates []entity.Record) []entity.Record {
	ranked := make([]entity.Record, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool { return p.less(ranked[i], ranked[j]) })
	return ranked
}

func (p *Policy) less(a, b entity.Record) bool {
	if p.Strategy == StrategyRecencyFirst {
		if !a.ProducedAt.Equal(b.ProducedAt) {
			return a.ProducedAt.After(b.ProducedAt)
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
	} else {
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		if !a.ProducedAt.Equal(b.ProducedAt) {
			return a.ProducedAt.After(b.ProducedAt)
		}
	}
	if a.ContentHash != b.ContentHash {
		return a.ContentHash < b.ContentHash
	}
	return a.SourceSessionID < b.SourceSessionID
}
