package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Thresholds for when an observation is worth stating.
const (
	minInsightInteractions = 5
	initiationShare        = 0.7
	dominantShare          = 0.5
	voiceShareCallout      = 20.0 // percent of one user's voice time
	longSessionMinutes     = 60.0
	recentWindow           = 24 * time.Hour
	quietWindow            = 30 * 24 * time.Hour
	topRankCallout         = 3
)

// GenerateInsights returns human-readable observations about the pair, in a
// fixed order: initiation, interaction style, voice time, shared channel,
// session length, longevity, recency, rank. Output depends only on the
// inputs; recency is measured against ab.EvaluatedAt.
func GenerateInsights(ab, ba AffinityScore, nameA, nameB string) []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}

	add(initiationInsight(ab, ba, nameA, nameB))
	add(styleInsight(ab, ba))
	for _, s := range voiceInsights(ab, ba, nameA, nameB) {
		add(s)
	}
	add(channelInsight(ab))
	add(longSessionInsight(ab))
	add(longevityInsight(ab, ba))
	add(recencyInsight(ab, ba))
	add(rankInsight(ab, nameA, nameB))
	add(rankInsight(ba, nameB, nameA))
	return out
}

func initiationInsight(ab, ba AffinityScore, nameA, nameB string) string {
	sentA, sentB := ab.Counts.Text(), ba.Counts.Text()
	total := sentA + sentB
	if total < minInsightInteractions {
		return ""
	}
	share := float64(sentA) / float64(total)
	switch {
	case share >= initiationShare:
		return fmt.Sprintf("%s initiates most of the interaction (%.0f%% of %s direct signals)", nameA, share*100, humanize.Comma(int64(total)))
	case 1-share >= initiationShare:
		return fmt.Sprintf("%s initiates most of the interaction (%.0f%% of %s direct signals)", nameB, (1-share)*100, humanize.Comma(int64(total)))
	}
	return ""
}

func styleInsight(ab, ba AffinityScore) string {
	reactions := ab.Counts.Reactions + ba.Counts.Reactions
	mentions := ab.Counts.Mentions + ba.Counts.Mentions
	replies := ab.Counts.Replies + ba.Counts.Replies
	total := reactions + mentions + replies
	if total < minInsightInteractions {
		return ""
	}

	pct := func(n int) float64 { return float64(n) / float64(total) * 100 }
	switch {
	case float64(replies)/float64(total) >= dominantShare:
		return fmt.Sprintf("Conversation-driven: replies make up %.0f%% of their interactions", pct(replies))
	case float64(mentions)/float64(total) >= dominantShare:
		return fmt.Sprintf("Mention-heavy: @-mentions make up %.0f%% of their interactions", pct(mentions))
	case float64(reactions)/float64(total) >= dominantShare:
		return fmt.Sprintf("Mostly reactions: %.0f%% of their interactions are emoji reactions", pct(reactions))
	}
	return ""
}

func voiceInsights(ab, ba AffinityScore, nameA, nameB string) []string {
	minutes := math.Max(ab.VC.CoPresenceMinutes, ba.VC.CoPresenceMinutes)
	if minutes < 1 {
		return nil
	}
	out := []string{fmt.Sprintf("Spent %s together in voice channels", formatMinutes(minutes))}
	if ab.VC.RelativePercent >= voiceShareCallout {
		out = append(out, fmt.Sprintf("%.0f%% of %s's voice time is spent with %s", ab.VC.RelativePercent, nameA, nameB))
	}
	if ba.VC.RelativePercent >= voiceShareCallout {
		out = append(out, fmt.Sprintf("%.0f%% of %s's voice time is spent with %s", ba.VC.RelativePercent, nameB, nameA))
	}
	return out
}

func channelInsight(ab AffinityScore) string {
	top := ab.VC.TopChannel
	if top == nil || top.Minutes < 1 {
		return ""
	}
	name := top.ChannelName
	if name == "" {
		name = top.ChannelID
	}
	return fmt.Sprintf("Most time together in #%s (%s)", name, formatMinutes(top.Minutes))
}

func longSessionInsight(ab AffinityScore) string {
	if ab.VC.AvgSessionMinutes < longSessionMinutes {
		return ""
	}
	return fmt.Sprintf("Long voice sessions together: %s on average", formatMinutes(ab.VC.AvgSessionMinutes))
}

func longevityInsight(ab, ba AffinityScore) string {
	first, last := combinedRange(ab, ba)
	if first == nil {
		return ""
	}
	days := int(last.Sub(*first).Hours() / 24)
	switch {
	case days >= 365:
		years := days / 365
		if years == 1 {
			return "Long-standing connection: interacting for over a year"
		}
		return fmt.Sprintf("Long-standing connection: interacting for over %d years", years)
	case days >= 30:
		return fmt.Sprintf("Interacting for %d days", days)
	}
	return ""
}

func recencyInsight(ab, ba AffinityScore) string {
	_, last := combinedRange(ab, ba)
	if last == nil || ab.EvaluatedAt.IsZero() {
		return ""
	}
	age := ab.EvaluatedAt.Sub(*last)
	switch {
	case age < 0:
		return ""
	case age <= recentWindow:
		return "Interacted within the last day"
	case age >= quietWindow:
		return "Quiet lately: last interaction " + humanize.RelTime(*last, ab.EvaluatedAt, "ago", "from now")
	}
	return ""
}

func rankInsight(s AffinityScore, from, to string) string {
	if s.TotalScore <= 0 || s.Rank < 1 || s.Rank > topRankCallout {
		return ""
	}
	if s.Rank == 1 {
		return fmt.Sprintf("%s is %s's strongest connection", to, from)
	}
	return fmt.Sprintf("%s is %s's %s strongest connection", to, from, humanize.Ordinal(s.Rank))
}

func combinedRange(ab, ba AffinityScore) (first, last *time.Time) {
	for _, tr := range []TimeRange{ab.TimeRange, ba.TimeRange} {
		if tr.First != nil && (first == nil || tr.First.Before(*first)) {
			first = tr.First
		}
		if tr.Last != nil && (last == nil || tr.Last.After(*last)) {
			last = tr.Last
		}
	}
	return first, last
}

// formatMinutes renders a duration in minutes as "45 minutes" or "3.5 hours".
func formatMinutes(m float64) string {
	if m < 60 {
		n := int(math.Round(m))
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	hours := m / 60
	if hours >= 100 {
		return humanize.Comma(int64(math.Round(hours))) + " hours"
	}
	return fmt.Sprintf("%.1f hours", hours)
}
