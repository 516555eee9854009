package engine

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/interval"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(src Source, mutate ...func(*config.ScoringConfig)) *Engine {
	cfg := config.DefaultScoring()
	for _, m := range mutate {
		m(&cfg)
	}
	return New(src, cfg, WithClock(func() time.Time { return now }))
}

func seedInteraction(t *testing.T, db *store.DB, from, to string, kind signal.Kind, ago time.Duration) {
	t.Helper()
	ev := &signal.Interaction{FromUser: from, ToUser: to, Guild: "g1", Kind: kind, Timestamp: now.Add(-ago)}
	if err := db.RecordInteraction(context.Background(), ev); err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
}

// seedVoice inserts a closed session that started startAgo before now and
// lasted length.
func seedVoice(t *testing.T, db *store.DB, user, channel string, startAgo, length time.Duration) {
	t.Helper()
	ctx := context.Background()
	s := &signal.VoiceSession{User: user, Guild: "g1", ChannelID: channel, ChannelName: channel, JoinedAt: now.Add(-startAgo)}
	if err := db.OpenVoiceSession(ctx, s); err != nil {
		t.Fatalf("OpenVoiceSession: %v", err)
	}
	if _, err := db.CloseVoiceSession(ctx, user, "g1", s.JoinedAt.Add(length)); err != nil {
		t.Fatalf("CloseVoiceSession: %v", err)
	}
}

// fakeSource is an in-memory Source for cases the SQLite store refuses to
// hold, such as malformed sessions or failing reads.
type fakeSource struct {
	interactions []signal.Interaction
	sessions     []signal.VoiceSession
	users        map[string]*signal.User
	textPartners []signal.PartnerCount // overrides the derived partner list when set

	err     error
	userErr error
}

func (f *fakeSource) FetchInteractions(_ context.Context, from, to, guild string, limit int) ([]signal.Interaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []signal.Interaction
	for _, ev := range f.interactions {
		if ev.FromUser == from && ev.ToUser == to && ev.Guild == guild {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) FetchVoiceSessions(_ context.Context, user, guild string, limit int) ([]signal.VoiceSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []signal.VoiceSession
	for _, s := range f.sessions {
		if s.User == user && s.Guild == guild {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) TotalVoiceMinutes(_ context.Context, user, guild string, now time.Time) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var total time.Duration
	for _, s := range f.sessions {
		if s.User == user && s.Guild == guild {
			total += s.Duration(now)
		}
	}
	return total.Minutes(), nil
}

func (f *fakeSource) TopInteractionPartners(_ context.Context, user, guild string, since time.Time, limit int) ([]signal.PartnerCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.textPartners != nil {
		return f.textPartners, nil
	}
	counts := map[string]float64{}
	for _, ev := range f.interactions {
		if ev.FromUser == user && ev.ToUser != user && ev.Guild == guild && !ev.Timestamp.Before(since) {
			counts[ev.ToUser]++
		}
	}
	return sortedPartners(counts, limit), nil
}

func (f *fakeSource) TopVoicePartners(_ context.Context, user, guild string, now time.Time, limit int) ([]signal.PartnerCount, error) {
	if f.err != nil {
		return nil, f.err
	}
	mine, _ := f.FetchVoiceSessions(context.Background(), user, guild, 0)
	others := map[string][]signal.VoiceSession{}
	for _, s := range f.sessions {
		if s.User != user && s.Guild == guild {
			others[s.User] = append(others[s.User], s)
		}
	}
	minutes := map[string]float64{}
	for partner, theirs := range others {
		if m := interval.CoPresence(mine, theirs, now).TotalMinutes; m > 0 {
			minutes[partner] = m
		}
	}
	return sortedPartners(minutes, limit), nil
}

func (f *fakeSource) GetUser(_ context.Context, id, guild string) (*signal.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.users[id], nil
}

func sortedPartners(m map[string]float64, limit int) []signal.PartnerCount {
	out := make([]signal.PartnerCount, 0, len(m))
	for p, c := range m {
		out = append(out, signal.PartnerCount{Partner: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Partner < out[j].Partner
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func TestNewUsesConfig(t *testing.T) {
	e := testEngine(&fakeSource{}, func(c *config.ScoringConfig) {
		c.DecayTau = 45
		c.Thresholds.Strong = 80
	})
	if e.decay.Tau != 45 {
		t.Errorf("decay tau = %v, want 45", e.decay.Tau)
	}
	if e.Classifier().Thresholds.Strong != 80 {
		t.Errorf("strong threshold = %v, want 80", e.Classifier().Thresholds.Strong)
	}
	if e.Config().VCWeight != 50 {
		t.Errorf("VCWeight = %v, want 50", e.Config().VCWeight)
	}
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := storageErr("fetch interactions", cause)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("expected errors.Is ErrStorageUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is cause")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "fetch interactions" {
		t.Errorf("errors.As StorageError = %+v", se)
	}

	// Wrapping again keeps the innermost operation.
	again := storageErr("rank", err)
	if !errors.As(again, &se) || se.Op != "fetch interactions" {
		t.Errorf("rewrapped Op = %q, want fetch interactions", se.Op)
	}
}

func TestNewZeroConcurrency(t *testing.T) {
	db := testDB(t)
	seedInteraction(t, db, "alice", "bob", signal.KindReply, time.Hour)
	seedInteraction(t, db, "alice", "carol", signal.KindReply, time.Hour)

	e := testEngine(db, func(c *config.ScoringConfig) {
		c.Concurrency = 0
		c.RankMode = config.RankModeComposite
	})
	if e.Config().Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", e.Config().Concurrency)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.TopRelationships(context.Background(), "alice", "g1", 5)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("TopRelationships: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("TopRelationships did not return with Concurrency = 0")
	}
}
