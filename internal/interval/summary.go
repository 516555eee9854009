package interval

import (
	"sort"
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

// ChannelMinutes is the co-presence total for a single channel.
type ChannelMinutes struct {
	ChannelID   string  `json:"channel_id"`
	ChannelName string  `json:"channel_name,omitempty"`
	Minutes     float64 `json:"minutes"`
}

// Summary aggregates merged co-presence between two users.
type Summary struct {
	Intervals    []Overlap        `json:"intervals"`
	TotalMinutes float64          `json:"total_minutes"`
	Channels     []ChannelMinutes `json:"channels"` // descending by minutes
	SessionCount int              `json:"session_count"`
	AvgMinutes   float64          `json:"avg_minutes"`
}

// TopChannel returns the channel with the most shared minutes, or nil.
func (s Summary) TopChannel() *ChannelMinutes {
	if len(s.Channels) == 0 {
		return nil
	}
	top := s.Channels[0]
	return &top
}

// CoPresence intersects and merges the sessions of two users and
// summarises the result.
func CoPresence(a, b []signal.VoiceSession, now time.Time) Summary {
	merged := Merge(Intersect(a, b, now))
	return Summarize(merged)
}

// Summarize totals already-merged overlaps.
func Summarize(merged []Overlap) Summary {
	sum := Summary{Intervals: merged, SessionCount: len(merged)}
	if len(merged) == 0 {
		return sum
	}

	perChannel := make(map[string]*ChannelMinutes)
	for _, o := range merged {
		m := o.Minutes()
		sum.TotalMinutes += m
		cm, ok := perChannel[o.ChannelID]
		if !ok {
			cm = &ChannelMinutes{ChannelID: o.ChannelID, ChannelName: o.ChannelName}
			perChannel[o.ChannelID] = cm
		}
		cm.Minutes += m
	}

	for _, cm := range perChannel {
		sum.Channels = append(sum.Channels, *cm)
	}
	sort.Slice(sum.Channels, func(i, j int) bool {
		if sum.Channels[i].Minutes != sum.Channels[j].Minutes {
			return sum.Channels[i].Minutes > sum.Channels[j].Minutes
		}
		return sum.Channels[i].ChannelID < sum.Channels[j].ChannelID
	})

	sum.AvgMinutes = sum.TotalMinutes / float64(sum.SessionCount)
	return sum
}
