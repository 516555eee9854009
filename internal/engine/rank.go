package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lazypower/rapport/internal/config"
)

// Ranking positions a score within a user's other relationships.
type Ranking struct {
	RelativeScore float64 `json:"relative_score"`
	Rank          int     `json:"rank"`
}

// RankAgainst places current within values. values are sorted descending;
// Rank is one plus the index of the first value not above current (one past
// the end when every value is higher). RelativeScore is Rank as a
// percentage of the population, capped at 100. An empty population or a
// score with nothing behind it yields {0, 1}.
func RankAgainst(values []float64, current float64) Ranking {
	if len(values) == 0 || current <= 0 {
		return Ranking{RelativeScore: 0, Rank: 1}
	}

	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	pos := sort.Search(len(sorted), func(i int) bool { return sorted[i] <= current })
	rank := pos + 1
	relative := float64(rank) / float64(len(sorted)) * 100
	if relative > 100 {
		relative = 100
	}
	return Ranking{RelativeScore: relative, Rank: rank}
}

// Rank places currentScore within user's relationships. In counts mode the
// population is raw interaction counts per target over the rank window,
// which compares a weighted score against counts. In composite mode every
// candidate target is scored with the same formula first.
func (e *Engine) Rank(ctx context.Context, user, guild string, currentScore float64, now time.Time) (Ranking, error) {
	values, err := e.distribution(ctx, user, guild, now)
	if err != nil {
		return Ranking{}, err
	}
	return RankAgainst(values, currentScore), nil
}

// distribution returns the population user's scores are ranked against.
// It depends only on user and now, so callers scoring many targets for the
// same user build it once.
func (e *Engine) distribution(ctx context.Context, user, guild string, now time.Time) ([]float64, error) {
	if e.cfg.RankMode == config.RankModeComposite {
		return e.compositeDistribution(ctx, user, guild, now)
	}
	return e.countDistribution(ctx, user, guild, now)
}

func (e *Engine) rankSince(now time.Time) time.Time {
	return now.AddDate(0, 0, -e.cfg.RankWindowDays)
}

func (e *Engine) countDistribution(ctx context.Context, user, guild string, now time.Time) ([]float64, error) {
	partners, err := e.src.TopInteractionPartners(ctx, user, guild, e.rankSince(now), 0)
	if err != nil {
		return nil, storageErr("top interaction partners", err)
	}
	values := make([]float64, 0, len(partners))
	for _, p := range partners {
		values = append(values, p.Count)
	}
	return values, nil
}

func (e *Engine) compositeDistribution(ctx context.Context, user, guild string, now time.Time) ([]float64, error) {
	candidates, err := e.candidates(ctx, user, guild, now, e.cfg.RankCandidates)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	values := make([]float64, 0, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, partner := range candidates {
		g.Go(func() error {
			s, err := e.compute(gctx, user, partner, guild, now)
			if err != nil {
				return err
			}
			mu.Lock()
			values = append(values, s.TotalScore)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// candidates merges user's recent text partners and voice partners,
// deduplicated, in source order, without user itself.
func (e *Engine) candidates(ctx context.Context, user, guild string, now time.Time, limit int) ([]string, error) {
	text, err := e.src.TopInteractionPartners(ctx, user, guild, e.rankSince(now), limit)
	if err != nil {
		return nil, storageErr("top interaction partners", err)
	}
	voice, err := e.src.TopVoicePartners(ctx, user, guild, now, limit)
	if err != nil {
		return nil, storageErr("top voice partners", err)
	}

	seen := map[string]bool{user: true}
	var out []string
	for _, p := range append(text, voice...) {
		if seen[p.Partner] {
			continue
		}
		seen[p.Partner] = true
		out = append(out, p.Partner)
	}
	return out, nil
}
