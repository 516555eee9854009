package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Analysis is the bidirectional view of a relationship.
type Analysis struct {
	UserA            string           `json:"user_a"`
	UserB            string           `json:"user_b"`
	NameA            string           `json:"name_a"`
	NameB            string           `json:"name_b"`
	Guild            string           `json:"guild"`
	AtoB             AffinityScore    `json:"a_to_b"`
	BtoA             AffinityScore    `json:"b_to_a"`
	MutualScore      float64          `json:"mutual_score"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Insights         []string         `json:"insights"`
	EvaluatedAt      time.Time        `json:"evaluated_at"`
}

// AnalyzeRelationship scores both directions of the pair against a single
// evaluation time, classifies the mutual score and derives insights.
func (e *Engine) AnalyzeRelationship(ctx context.Context, a, b, guild string) (Analysis, error) {
	now := e.now()

	var ab, ba AffinityScore
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ab, err = e.calculate(gctx, a, b, guild, now)
		return err
	})
	g.Go(func() error {
		var err error
		ba, err = e.calculate(gctx, b, a, guild, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return Analysis{}, err
	}

	nameA := e.displayName(ctx, a, guild)
	nameB := e.displayName(ctx, b, guild)
	mutual := ab.TotalScore + ba.TotalScore

	return Analysis{
		UserA:            a,
		UserB:            b,
		NameA:            nameA,
		NameB:            nameB,
		Guild:            guild,
		AtoB:             ab,
		BtoA:             ba,
		MutualScore:      mutual,
		RelationshipType: e.classifier.Classify(mutual),
		Insights:         GenerateInsights(ab, ba, nameA, nameB),
		EvaluatedAt:      now,
	}, nil
}

// displayName resolves a label for insights. Lookup failures only cost
// the pretty name, so they are logged and the ID is used instead.
func (e *Engine) displayName(ctx context.Context, id, guild string) string {
	u, err := e.src.GetUser(ctx, id, guild)
	if err != nil {
		e.log.Warn("user lookup failed", "user", id, "guild", guild, "err", err)
		return id
	}
	if u == nil {
		return id
	}
	return u.Name()
}

// TopRelationships scores user's strongest relationships. Candidates are
// the top text partners over the rank window plus the top voice partners;
// each is fully scored, zero scores are dropped and the rest are returned
// strongest first.
func (e *Engine) TopRelationships(ctx context.Context, user, guild string, limit int) ([]AffinityScore, error) {
	if limit <= 0 {
		limit = 10
	}
	now := e.now()

	candidates, err := e.candidates(ctx, user, guild, now, e.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	population, err := e.distribution(ctx, user, guild, now)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var scores []AffinityScore

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, partner := range candidates {
		g.Go(func() error {
			s, err := e.compute(gctx, user, partner, guild, now)
			if err != nil {
				return err
			}
			if s.TotalScore <= 0 {
				return nil
			}
			r := RankAgainst(population, s.TotalScore)
			s.RelativeScore, s.Rank = r.RelativeScore, r.Rank
			mu.Lock()
			scores = append(scores, s)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].TotalScore != scores[j].TotalScore {
			return scores[i].TotalScore > scores[j].TotalScore
		}
		return scores[i].ToUser < scores[j].ToUser
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}
