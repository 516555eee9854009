package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/lazypower/rapport/internal/engine"
)

const summaryLimit = 5

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	user := chi.URLParam(r, "user")

	summary, err := s.buildSummary(r.Context(), guild, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// buildSummary renders a user's strongest relationships as markdown, the
// form bots paste straight into a channel.
func (s *Server) buildSummary(ctx context.Context, guild, user string) (string, error) {
	top, err := s.engine.TopRelationships(ctx, user, guild, summaryLimit)
	if err != nil {
		return "", err
	}

	name := user
	if u, err := s.backend.GetUser(ctx, user, guild); err == nil && u != nil {
		name = u.Name()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Connections for %s\n", name)
	if len(top) == 0 {
		b.WriteString("\nNo relationships found yet.\n")
		return b.String(), nil
	}

	b.WriteString("\n")
	for i, score := range top {
		partner := score.ToUser
		if u, err := s.backend.GetUser(ctx, partner, guild); err == nil && u != nil {
			partner = u.Name()
		}
		fmt.Fprintf(&b, "%d. **%s** %.1f points", i+1, partner, score.TotalScore)
		if detail := scoreDetail(score); detail != "" {
			b.WriteString(" - " + detail)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func scoreDetail(s engine.AffinityScore) string {
	var parts []string
	if n := s.Counts.Text(); n > 0 {
		parts = append(parts, humanize.Comma(int64(n))+" interactions")
	}
	if s.VC.CoPresenceMinutes >= 1 {
		parts = append(parts, fmt.Sprintf("%.0f%% of voice time together", s.VC.RelativePercent))
	}
	if s.TimeRange.Last != nil {
		parts = append(parts, "last "+humanize.RelTime(*s.TimeRange.Last, s.EvaluatedAt, "ago", "from now"))
	}
	return strings.Join(parts, ", ")
}
