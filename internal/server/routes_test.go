package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func postInteraction(t *testing.T, srv *Server, from, to, kind string) {
	t.Helper()
	body := `{"from_user":"` + from + `","to_user":"` + to + `","kind":"` + kind + `","timestamp":"2024-06-01T11:00:00Z"}`
	w := do(t, srv, "POST", "/api/guilds/g1/interactions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("record interaction: status = %d; body: %s", w.Code, w.Body.String())
	}
}

func TestRecordInteraction(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/guilds/g1/interactions",
		`{"from_user":"alice","to_user":"bob","kind":"mention","metadata":{"message_id":"m1"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["id"] == "" || resp["guild"] != "g1" {
		t.Errorf("response = %v", resp)
	}
	// Missing timestamp defaults to the server clock.
	if resp["timestamp"] != "2024-06-01T12:00:00Z" {
		t.Errorf("timestamp = %v", resp["timestamp"])
	}
}

func TestRecordInteractionBadInput(t *testing.T) {
	srv := testServer(t)

	cases := []string{
		`not json`,
		`{"from_user":"alice","to_user":"bob","kind":"poke"}`,
		`{"from_user":"alice","kind":"reply"}`,
	}
	for _, body := range cases {
		if w := do(t, srv, "POST", "/api/guilds/g1/interactions", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestAffinityEndpoint(t *testing.T) {
	srv := testServer(t)
	for i := 0; i < 3; i++ {
		postInteraction(t, srv, "alice", "bob", "mention")
	}

	w := do(t, srv, "GET", "/api/guilds/g1/affinity/alice/bob", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		TotalScore float64 `json:"total_score"`
		Rank       int     `json:"rank"`
		Breakdown  struct {
			Mentions float64 `json:"mentions"`
		} `json:"breakdown"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalScore != 6 || resp.Breakdown.Mentions != 6 || resp.Rank != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAffinitySelf(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "GET", "/api/guilds/g1/affinity/alice/alice", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAffinityStorageUnavailable(t *testing.T) {
	srv, db := testServerDB(t)
	db.Close()

	w := do(t, srv, "GET", "/api/guilds/g1/affinity/alice/bob", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.HasPrefix(resp["error"], "could not compute relationship") {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestRelationshipEndpoint(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "POST", "/api/guilds/g1/users", `{"id":"alice","username":"alice","display_name":"Alice"}`); w.Code != http.StatusOK {
		t.Fatalf("upsert user: status = %d", w.Code)
	}
	for i := 0; i < 4; i++ {
		postInteraction(t, srv, "alice", "bob", "reply")
	}
	postInteraction(t, srv, "bob", "alice", "reaction")

	w := do(t, srv, "GET", "/api/guilds/g1/relationships/alice/bob", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		NameA            string   `json:"name_a"`
		MutualScore      float64  `json:"mutual_score"`
		RelationshipType string   `json:"relationship_type"`
		Insights         []string `json:"insights"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NameA != "Alice" || resp.MutualScore != 13 || resp.RelationshipType != "weak" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Insights) == 0 {
		t.Error("expected insights")
	}
}

func TestTopEndpoint(t *testing.T) {
	srv := testServer(t)
	postInteraction(t, srv, "alice", "bob", "reply")
	postInteraction(t, srv, "alice", "carol", "reaction")

	w := do(t, srv, "GET", "/api/guilds/g1/users/alice/top?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Relationships []struct {
			ToUser string `json:"to_user"`
		} `json:"relationships"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Relationships) != 1 || resp.Relationships[0].ToUser != "bob" {
		t.Errorf("relationships = %+v", resp.Relationships)
	}

	if w := do(t, srv, "GET", "/api/guilds/g1/users/alice/top?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
}

func TestTopEndpointEmpty(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/guilds/g1/users/nobody/top", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"relationships":[]`) {
		t.Errorf("body = %s, want empty list", w.Body.String())
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/guilds/g1/users", `{"id":"bob","username":"bobby"}`)
	postInteraction(t, srv, "alice", "bob", "reply")

	w := do(t, srv, "GET", "/api/guilds/g1/users/alice/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	summary := resp["summary"]
	if !strings.Contains(summary, "## Connections for alice") {
		t.Errorf("missing heading:\n%s", summary)
	}
	if !strings.Contains(summary, "1. **bobby** 3.0 points - 1 interactions, last 1 hour ago") {
		t.Errorf("missing entry:\n%s", summary)
	}
}

func TestVoiceJoinLeave(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/guilds/g1/voice/join",
		`{"user":"alice","channel_id":"c1","channel_name":"general","at":"2024-06-01T10:00:00Z"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("join alice: status = %d; body: %s", w.Code, w.Body.String())
	}
	do(t, srv, "POST", "/api/guilds/g1/voice/join", `{"user":"bob","channel_id":"c1","at":"2024-06-01T10:30:00Z"}`)

	w = do(t, srv, "GET", "/api/voice/active", "")
	var active struct {
		Sessions []map[string]any `json:"sessions"`
	}
	json.Unmarshal(w.Body.Bytes(), &active)
	if len(active.Sessions) != 2 {
		t.Errorf("active sessions = %d, want 2", len(active.Sessions))
	}

	for _, body := range []string{
		`{"user":"alice","at":"2024-06-01T11:00:00Z"}`,
		`{"user":"bob","at":"2024-06-01T11:00:00Z"}`,
	} {
		if w := do(t, srv, "POST", "/api/guilds/g1/voice/leave", body); w.Code != http.StatusOK {
			t.Fatalf("leave: status = %d; body: %s", w.Code, w.Body.String())
		}
	}

	// alice spent 30 of her 60 minutes with bob.
	w = do(t, srv, "GET", "/api/guilds/g1/affinity/alice/bob", "")
	var score struct {
		VC struct {
			RelativePercent float64 `json:"relative_percent"`
		} `json:"vc_details"`
		TotalScore float64 `json:"total_score"`
	}
	json.Unmarshal(w.Body.Bytes(), &score)
	if score.VC.RelativePercent != 50 || score.TotalScore != 25 {
		t.Errorf("score = %+v", score)
	}
}

func TestVoiceLeaveWithoutJoin(t *testing.T) {
	srv := testServer(t)
	if w := do(t, srv, "POST", "/api/guilds/g1/voice/leave", `{"user":"ghost"}`); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestVoiceSwitch(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/guilds/g1/voice/join", `{"user":"alice","channel_id":"c1","at":"2024-06-01T10:00:00Z"}`)

	w := do(t, srv, "POST", "/api/guilds/g1/voice/switch", `{"user":"alice","channel_id":"c2","at":"2024-06-01T10:20:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["channel_id"] != "c2" {
		t.Errorf("channel_id = %v", resp["channel_id"])
	}
}

func TestVoiceJoinBadInput(t *testing.T) {
	srv := testServer(t)
	for _, body := range []string{`{`, `{"channel_id":"c1"}`, `{"user":"alice"}`} {
		if w := do(t, srv, "POST", "/api/guilds/g1/voice/join", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, w.Code)
		}
	}
}
