package engine

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lazypower/rapport/internal/interval"
	"github.com/lazypower/rapport/internal/signal"
)

// Breakdown holds the points contributed by each signal. The fields always
// sum to AffinityScore.TotalScore.
type Breakdown struct {
	Reactions  float64 `json:"reactions"`
	Mentions   float64 `json:"mentions"`
	Replies    float64 `json:"replies"`
	VCRelative float64 `json:"vc_relative"`
}

// Counts are the raw, undecayed signal counts behind a score.
type Counts struct {
	Reactions     int `json:"reactions"`
	Mentions      int `json:"mentions"`
	Replies       int `json:"replies"`
	VoiceSessions int `json:"voice_sessions"` // merged co-presence intervals
}

// Text returns the number of text interactions.
func (c Counts) Text() int {
	return c.Reactions + c.Mentions + c.Replies
}

// TimeRange spans the interactions a score was built from.
type TimeRange struct {
	First      *time.Time `json:"first"`
	Last       *time.Time `json:"last"`
	DaysActive int        `json:"days_active"`
}

// VCDetails describes voice co-presence between the pair.
type VCDetails struct {
	CoPresenceMinutes float64                   `json:"co_presence_minutes"`
	TotalMinutes      float64                   `json:"total_minutes"`    // all voice time of the scoring user
	RelativePercent   float64                   `json:"relative_percent"` // co-presence / total * 100
	SessionCount      int                       `json:"session_count"`
	AvgSessionMinutes float64                   `json:"avg_session_minutes"`
	Channels          []interval.ChannelMinutes `json:"channels,omitempty"`
	TopChannel        *interval.ChannelMinutes  `json:"top_channel,omitempty"`
}

// AffinityScore is the directional affinity of FromUser toward ToUser.
type AffinityScore struct {
	FromUser      string    `json:"from_user"`
	ToUser        string    `json:"to_user"`
	Guild         string    `json:"guild"`
	TotalScore    float64   `json:"total_score"`
	Breakdown     Breakdown `json:"breakdown"`
	Counts        Counts    `json:"counts"`
	TimeRange     TimeRange `json:"time_range"`
	RelativeScore float64   `json:"relative_score"`
	Rank          int       `json:"rank"`
	VC            VCDetails `json:"vc_details"`
	Skipped       int       `json:"skipped,omitempty"` // malformed records left out
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// CalculateAffinity scores from's affinity toward to within guild. Missing
// data yields a zero score; store failures are returned as *StorageError.
func (e *Engine) CalculateAffinity(ctx context.Context, from, to, guild string) (AffinityScore, error) {
	return e.calculate(ctx, from, to, guild, e.now())
}

func (e *Engine) calculate(ctx context.Context, from, to, guild string, now time.Time) (AffinityScore, error) {
	score, err := e.compute(ctx, from, to, guild, now)
	if err != nil {
		return AffinityScore{}, err
	}

	r, err := e.Rank(ctx, from, guild, score.TotalScore, now)
	if err != nil {
		return AffinityScore{}, err
	}
	score.RelativeScore = r.RelativeScore
	score.Rank = r.Rank
	return score, nil
}

// compute builds the score without ranking it.
func (e *Engine) compute(ctx context.Context, from, to, guild string, now time.Time) (AffinityScore, error) {
	var (
		interactions []signal.Interaction
		fromSessions []signal.VoiceSession
		toSessions   []signal.VoiceSession
		totalMinutes float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		interactions, err = e.src.FetchInteractions(gctx, from, to, guild, e.cfg.InteractionCap)
		if err != nil {
			return storageErr("fetch interactions", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fromSessions, err = e.src.FetchVoiceSessions(gctx, from, guild, e.cfg.SessionCap)
		if err != nil {
			return storageErr("fetch voice sessions", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		toSessions, err = e.src.FetchVoiceSessions(gctx, to, guild, e.cfg.SessionCap)
		if err != nil {
			return storageErr("fetch voice sessions", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		totalMinutes, err = e.src.TotalVoiceMinutes(gctx, from, guild, now)
		if err != nil {
			return storageErr("total voice minutes", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return AffinityScore{}, err
	}

	score := AffinityScore{
		FromUser:    from,
		ToUser:      to,
		Guild:       guild,
		Rank:        1,
		EvaluatedAt: now,
	}

	score.Skipped += e.scoreInteractions(&score, interactions, now)

	fromValid, bad := e.validSessions(fromSessions)
	score.Skipped += bad
	toValid, bad := e.validSessions(toSessions)
	score.Skipped += bad
	e.scoreVoice(&score, interval.CoPresence(fromValid, toValid, now), totalMinutes)

	b := score.Breakdown
	score.TotalScore = b.Reactions + b.Mentions + b.Replies + b.VCRelative
	return score, nil
}

// scoreInteractions accumulates decayed, weighted interactions into the
// breakdown and returns the number of records skipped.
func (e *Engine) scoreInteractions(score *AffinityScore, interactions []signal.Interaction, now time.Time) int {
	skipped := 0
	var first, last time.Time
	for _, ev := range interactions {
		age := now.Sub(ev.Timestamp).Hours() / 24
		if age < 0 {
			e.log.Warn("skipping interaction from the future",
				"id", ev.ID, "from", ev.FromUser, "to", ev.ToUser, "timestamp", ev.Timestamp)
			skipped++
			continue
		}
		w := e.decay.Weight(age)

		switch ev.Kind {
		case signal.KindReaction:
			score.Breakdown.Reactions += w * e.cfg.Weights.Reaction
			score.Counts.Reactions++
		case signal.KindMention:
			score.Breakdown.Mentions += w * e.cfg.Weights.Mention
			score.Counts.Mentions++
		case signal.KindReply:
			score.Breakdown.Replies += w * e.cfg.Weights.Reply
			score.Counts.Replies++
		default:
			e.log.Warn("skipping interaction of unknown kind", "id", ev.ID, "kind", ev.Kind)
			skipped++
			continue
		}

		if first.IsZero() || ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if last.IsZero() || ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}

	if !first.IsZero() {
		score.TimeRange = TimeRange{First: &first, Last: &last, DaysActive: daysActive(first, last)}
	}
	return skipped
}

func (e *Engine) scoreVoice(score *AffinityScore, sum interval.Summary, totalMinutes float64) {
	vc := VCDetails{
		CoPresenceMinutes: sum.TotalMinutes,
		TotalMinutes:      totalMinutes,
		SessionCount:      sum.SessionCount,
		AvgSessionMinutes: sum.AvgMinutes,
		Channels:          sum.Channels,
		TopChannel:        sum.TopChannel(),
	}
	if totalMinutes > 0 {
		vc.RelativePercent = math.Min(100, sum.TotalMinutes/totalMinutes*100)
	}

	points := vc.RelativePercent / 100 * e.cfg.VCWeight
	if e.cfg.VCCapPoints > 0 && points > e.cfg.VCCapPoints {
		points = e.cfg.VCCapPoints
	}

	score.VC = vc
	score.Breakdown.VCRelative = points
	score.Counts.VoiceSessions = sum.SessionCount
}

// validSessions drops sessions that end before they start.
func (e *Engine) validSessions(sessions []signal.VoiceSession) ([]signal.VoiceSession, int) {
	valid := sessions[:0:0]
	skipped := 0
	for _, s := range sessions {
		if err := s.Validate(); err != nil {
			e.log.Warn("skipping voice session", "err", err)
			skipped++
			continue
		}
		valid = append(valid, s)
	}
	return valid, skipped
}

// daysActive counts the calendar span between two interactions, rounding
// up, with a minimum of one day once anything happened.
func daysActive(first, last time.Time) int {
	days := int(math.Ceil(last.Sub(first).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}
