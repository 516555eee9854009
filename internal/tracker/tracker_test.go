package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
)

var t0 = time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) (*Registry, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, nil), db
}

func TestJoinLeave(t *testing.T) {
	r, db := testRegistry(t)
	ctx := context.Background()

	s, err := r.Join(ctx, "g1", "alice", "c1", "general", t0)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if s.ID == "" || !s.Open() {
		t.Errorf("joined session = %+v", s)
	}
	if len(r.Active()) != 1 {
		t.Errorf("Active = %d, want 1", len(r.Active()))
	}

	closed, err := r.Leave(ctx, "g1", "alice", t0.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if closed.LeftAt == nil || closed.Duration(t0) != 45*time.Minute {
		t.Errorf("closed session = %+v", closed)
	}
	if len(r.Active()) != 0 {
		t.Errorf("Active = %d, want 0", len(r.Active()))
	}

	total, err := db.TotalVoiceMinutes(ctx, "alice", "g1", t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("TotalVoiceMinutes: %v", err)
	}
	if total != 45 {
		t.Errorf("TotalVoiceMinutes = %v, want 45", total)
	}
}

func TestLeaveWithoutJoin(t *testing.T) {
	r, _ := testRegistry(t)
	if _, err := r.Leave(context.Background(), "g1", "ghost", t0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestDoubleJoinClosesPrevious(t *testing.T) {
	r, db := testRegistry(t)
	ctx := context.Background()

	if _, err := r.Join(ctx, "g1", "alice", "c1", "general", t0); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := r.Join(ctx, "g1", "alice", "c2", "music", t0.Add(10*time.Minute)); err != nil {
		t.Fatalf("second Join: %v", err)
	}

	sessions, err := db.FetchVoiceSessions(ctx, "alice", "g1", 0)
	if err != nil {
		t.Fatalf("FetchVoiceSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	// Newest first: the c2 session is open, the c1 session was closed.
	if sessions[0].ChannelID != "c2" || !sessions[0].Open() {
		t.Errorf("newest = %+v", sessions[0])
	}
	if sessions[1].Open() || !sessions[1].LeftAt.Equal(t0.Add(10*time.Minute)) {
		t.Errorf("previous = %+v", sessions[1])
	}
}

func TestSwitch(t *testing.T) {
	r, db := testRegistry(t)
	ctx := context.Background()

	if _, err := r.Join(ctx, "g1", "alice", "c1", "general", t0); err != nil {
		t.Fatalf("Join: %v", err)
	}
	s, err := r.Switch(ctx, "g1", "alice", "c2", "music", t0.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if s.ChannelID != "c2" || !s.JoinedAt.Equal(t0.Add(20*time.Minute)) {
		t.Errorf("switched session = %+v", s)
	}

	// Switching to the channel you are already in is a no-op.
	same, err := r.Switch(ctx, "g1", "alice", "c2", "music", t0.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Switch same: %v", err)
	}
	if same.ID != s.ID {
		t.Errorf("same-channel switch opened a new session")
	}

	sessions, err := db.FetchVoiceSessions(ctx, "alice", "g1", 0)
	if err != nil {
		t.Fatalf("FetchVoiceSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(sessions))
	}
}

func TestSwitchWithoutJoin(t *testing.T) {
	r, _ := testRegistry(t)
	s, err := r.Switch(context.Background(), "g1", "alice", "c1", "general", t0)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if s.ChannelID != "c1" || len(r.Active()) != 1 {
		t.Errorf("session = %+v, active = %d", s, len(r.Active()))
	}
}

func TestShutdownFlushes(t *testing.T) {
	r, db := testRegistry(t)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob", "carol"} {
		if _, err := r.Join(ctx, "g1", u, "c1", "general", t0); err != nil {
			t.Fatalf("Join %s: %v", u, err)
		}
	}
	if err := r.Shutdown(ctx, t0.Add(time.Hour)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(r.Active()) != 0 {
		t.Errorf("Active after shutdown = %d", len(r.Active()))
	}
	open, err := db.OpenVoiceSessions(ctx)
	if err != nil {
		t.Fatalf("OpenVoiceSessions: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("store still has %d open sessions", len(open))
	}
}

func TestRecoverClosesStale(t *testing.T) {
	_, db := testRegistry(t)
	ctx := context.Background()

	// A previous process crashed with two members connected.
	for _, u := range []string{"alice", "bob"} {
		if err := db.OpenVoiceSession(ctx, &signal.VoiceSession{User: u, Guild: "g1", ChannelID: "c1", JoinedAt: t0}); err != nil {
			t.Fatalf("OpenVoiceSession: %v", err)
		}
	}
	// One joined "after" the recovery time, e.g. clock skew.
	if err := db.OpenVoiceSession(ctx, &signal.VoiceSession{User: "carol", Guild: "g1", ChannelID: "c1", JoinedAt: t0.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("OpenVoiceSession: %v", err)
	}

	r := New(db, nil)
	n, err := r.Recover(ctx, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 3 {
		t.Errorf("Recover closed %d, want 3", n)
	}

	sessions, err := db.FetchVoiceSessions(ctx, "carol", "g1", 0)
	if err != nil {
		t.Fatalf("FetchVoiceSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Duration(t0) != 0 {
		t.Errorf("carol's session = %+v, want zero length", sessions)
	}
}

func TestJoinSinkFailure(t *testing.T) {
	r := New(brokenSink{}, nil)
	if _, err := r.Join(context.Background(), "g1", "alice", "c1", "", t0); err == nil {
		t.Fatal("expected error")
	}
	if len(r.Active()) != 0 {
		t.Errorf("failed join should not be tracked")
	}
}

type brokenSink struct{}

func (brokenSink) OpenVoiceSession(context.Context, *signal.VoiceSession) error {
	return errors.New("disk full")
}

func (brokenSink) CloseVoiceSession(context.Context, string, string, time.Time) (*signal.VoiceSession, error) {
	return nil, errors.New("disk full")
}

func (brokenSink) OpenVoiceSessions(context.Context) ([]signal.VoiceSession, error) {
	return nil, errors.New("disk full")
}
