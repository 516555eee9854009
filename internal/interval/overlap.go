// Package interval computes voice channel co-presence: the wall-clock ranges
// two users spent in the same channel, merged so no minute counts twice.
package interval

import (
	"sort"
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

// Overlap is a time range during which two users shared a channel.
type Overlap struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Minutes returns the length of the overlap in fractional minutes.
func (o Overlap) Minutes() float64 {
	d := o.End.Sub(o.Start)
	if d <= 0 {
		return 0
	}
	return float64(d.Milliseconds()) / 60000
}

// Intersect returns the raw pairwise overlaps between sessions in a and
// sessions in b. Only sessions in the same channel and belonging to
// different users are compared. Open sessions end at now. Malformed
// sessions are ignored.
//
// The result can contain overlaps that cover the same wall-clock range;
// pass it through Merge before summing durations.
func Intersect(a, b []signal.VoiceSession, now time.Time) []Overlap {
	bucketsA := byChannel(a)
	bucketsB := byChannel(b)

	var out []Overlap
	for _, channel := range sortedKeys(bucketsA) {
		other, ok := bucketsB[channel]
		if !ok {
			continue
		}
		for _, sa := range bucketsA[channel] {
			endA := sa.EffectiveEnd(now)
			for _, sb := range other {
				// other is sorted by JoinedAt: nothing further can start before endA.
				if !sb.JoinedAt.Before(endA) {
					break
				}
				if sa.User == sb.User {
					continue
				}
				start := latest(sa.JoinedAt, sb.JoinedAt)
				end := earliest(endA, sb.EffectiveEnd(now))
				if !start.Before(end) {
					continue
				}
				name := sa.ChannelName
				if name == "" {
					name = sb.ChannelName
				}
				out = append(out, Overlap{ChannelID: channel, ChannelName: name, Start: start, End: end})
			}
		}
	}
	return out
}

// Merge collapses overlapping ranges within each channel into a single
// range. Ranges in different channels are never combined. The result is
// ordered by channel, then by start time, and merging it again is a no-op.
func Merge(overlaps []Overlap) []Overlap {
	if len(overlaps) == 0 {
		return nil
	}

	groups := make(map[string][]Overlap)
	for _, o := range overlaps {
		groups[o.ChannelID] = append(groups[o.ChannelID], o)
	}

	var merged []Overlap
	for _, channel := range sortedKeys(groups) {
		group := groups[channel]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Start.Before(group[j].Start)
		})

		current := group[0]
		for _, o := range group[1:] {
			if !o.Start.After(current.End) {
				if o.End.After(current.End) {
					current.End = o.End
				}
				if current.ChannelName == "" {
					current.ChannelName = o.ChannelName
				}
				continue
			}
			merged = append(merged, current)
			current = o
		}
		merged = append(merged, current)
	}
	return merged
}

func byChannel(sessions []signal.VoiceSession) map[string][]signal.VoiceSession {
	buckets := make(map[string][]signal.VoiceSession)
	for _, s := range sessions {
		if s.Validate() != nil {
			continue
		}
		buckets[s.ChannelID] = append(buckets[s.ChannelID], s)
	}
	for _, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool {
			return bucket[i].JoinedAt.Before(bucket[j].JoinedAt)
		})
	}
	return buckets
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
