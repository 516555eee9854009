package interval

import (
	"testing"

	"github.com/lazypower/rapport/internal/signal"
)

func TestCoPresenceDeduplicates(t *testing.T) {
	// alice has two overlapping sessions in c1 (e.g. a reconnect), bob one.
	a := []signal.VoiceSession{
		session("alice", "c1", 0, 60),
		session("alice", "c1", 20, 40),
	}
	b := []signal.VoiceSession{session("bob", "c1", 10, 50)}

	sum := CoPresence(a, b, at(100))
	if sum.TotalMinutes != 40 {
		t.Errorf("TotalMinutes = %v, want 40", sum.TotalMinutes)
	}
	if sum.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1", sum.SessionCount)
	}
	if sum.AvgMinutes != 40 {
		t.Errorf("AvgMinutes = %v, want 40", sum.AvgMinutes)
	}
}

func TestCoPresencePerChannel(t *testing.T) {
	a := []signal.VoiceSession{
		session("alice", "c1", 0, 30),
		session("alice", "c2", 100, 200),
	}
	a[1].ChannelName = "late-night"
	b := []signal.VoiceSession{
		session("bob", "c1", 0, 10),
		session("bob", "c2", 120, 180),
	}

	sum := CoPresence(a, b, at(300))
	if sum.TotalMinutes != 70 {
		t.Errorf("TotalMinutes = %v, want 70", sum.TotalMinutes)
	}
	if len(sum.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(sum.Channels))
	}
	top := sum.TopChannel()
	if top == nil || top.ChannelID != "c2" || top.Minutes != 60 {
		t.Errorf("TopChannel = %+v, want c2 with 60 minutes", top)
	}
	if top.ChannelName != "late-night" {
		t.Errorf("TopChannel name = %q, want late-night", top.ChannelName)
	}
	if sum.AvgMinutes != 35 {
		t.Errorf("AvgMinutes = %v, want 35", sum.AvgMinutes)
	}
}

func TestCoPresenceEmpty(t *testing.T) {
	sum := CoPresence(nil, nil, at(0))
	if sum.TotalMinutes != 0 || sum.SessionCount != 0 || sum.AvgMinutes != 0 {
		t.Errorf("empty summary = %+v, want zero", sum)
	}
	if sum.TopChannel() != nil {
		t.Error("TopChannel should be nil for empty summary")
	}
}
