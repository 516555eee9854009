package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
)

const queryTimeout = 30 * time.Second

var (
	queryGuild string
	queryJSON  bool
	topLimit   int
)

var affinityCmd = &cobra.Command{
	Use:   "affinity <from> <to>",
	Short: "Score how strongly one member is connected to another",
	Args:  cobra.ExactArgs(2),
	RunE:  runAffinity,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <a> <b>",
	Short: "Analyze the relationship between two members in both directions",
	Args:  cobra.ExactArgs(2),
	RunE:  runAnalyze,
}

var topCmd = &cobra.Command{
	Use:   "top <user>",
	Short: "List a member's strongest relationships",
	Args:  cobra.ExactArgs(1),
	RunE:  runTop,
}

func init() {
	for _, c := range []*cobra.Command{affinityCmd, analyzeCmd, topCmd} {
		c.Flags().StringVarP(&queryGuild, "guild", "g", "", "guild (community) ID")
		c.Flags().BoolVar(&queryJSON, "json", false, "print JSON instead of text")
		c.MarkFlagRequired("guild")
	}
	topCmd.Flags().IntVarP(&topLimit, "limit", "n", 10, "maximum number of relationships")
}

// computeErr keeps "could not compute" distinct from an empty result.
func computeErr(err error) error {
	if errors.Is(err, engine.ErrStorageUnavailable) {
		return fmt.Errorf("could not compute relationship: %w", err)
	}
	return err
}

func distinct(a, b string) error {
	if a == b {
		return fmt.Errorf("%s and %s are the same member", a, b)
	}
	return nil
}

func queryContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, queryTimeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAffinity(cmd *cobra.Command, args []string) error {
	from, to := args[0], args[1]
	if err := distinct(from, to); err != nil {
		return err
	}

	ctx, cancel := queryContext(cmd)
	defer cancel()
	eng, _, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	score, err := eng.CalculateAffinity(ctx, from, to, queryGuild)
	if err != nil {
		return computeErr(err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		return printJSON(out, score)
	}
	if score.TotalScore == 0 {
		fmt.Fprintf(out, "No relationship found from %s to %s.\n", from, to)
		return nil
	}
	printScore(out, score)
	return nil
}

func printScore(w io.Writer, s engine.AffinityScore) {
	fmt.Fprintf(w, "%s -> %s: %.2f points (rank %d, top %.0f%%)\n", s.FromUser, s.ToUser, s.TotalScore, s.Rank, s.RelativeScore)
	fmt.Fprintf(w, "  reactions  %6.2f  (%s)\n", s.Breakdown.Reactions, humanize.Comma(int64(s.Counts.Reactions)))
	fmt.Fprintf(w, "  mentions   %6.2f  (%s)\n", s.Breakdown.Mentions, humanize.Comma(int64(s.Counts.Mentions)))
	fmt.Fprintf(w, "  replies    %6.2f  (%s)\n", s.Breakdown.Replies, humanize.Comma(int64(s.Counts.Replies)))
	fmt.Fprintf(w, "  voice      %6.2f  (%.0f%% of voice time, %.0f min together)\n",
		s.Breakdown.VCRelative, s.VC.RelativePercent, s.VC.CoPresenceMinutes)
	if s.TimeRange.Last != nil {
		fmt.Fprintf(w, "  last seen  %s, active over %d days\n",
			humanize.RelTime(*s.TimeRange.Last, s.EvaluatedAt, "ago", "from now"), s.TimeRange.DaysActive)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  skipped    %d malformed records\n", s.Skipped)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, b := args[0], args[1]
	if err := distinct(a, b); err != nil {
		return err
	}

	ctx, cancel := queryContext(cmd)
	defer cancel()
	eng, _, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	analysis, err := eng.AnalyzeRelationship(ctx, a, b, queryGuild)
	if err != nil {
		return computeErr(err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		return printJSON(out, analysis)
	}
	printAnalysis(out, analysis)
	return nil
}

func printAnalysis(w io.Writer, a engine.Analysis) {
	if a.MutualScore == 0 {
		fmt.Fprintf(w, "No relationship found between %s and %s.\n", a.NameA, a.NameB)
		return
	}
	fmt.Fprintf(w, "## %s and %s\n\n", a.NameA, a.NameB)
	fmt.Fprintf(w, "Mutual score: %.2f (%s)\n", a.MutualScore, a.RelationshipType)
	fmt.Fprintf(w, "  %s -> %s: %.2f\n", a.NameA, a.NameB, a.AtoB.TotalScore)
	fmt.Fprintf(w, "  %s -> %s: %.2f\n", a.NameB, a.NameA, a.BtoA.TotalScore)
	if len(a.Insights) > 0 {
		fmt.Fprintln(w)
		for _, line := range a.Insights {
			fmt.Fprintf(w, "- %s\n", line)
		}
	}
}

func runTop(cmd *cobra.Command, args []string) error {
	user := args[0]
	if topLimit <= 0 {
		return errors.New("--limit must be positive")
	}

	ctx, cancel := queryContext(cmd)
	defer cancel()
	eng, backend, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	top, err := eng.TopRelationships(ctx, user, queryGuild, topLimit)
	if err != nil {
		return computeErr(err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		if top == nil {
			top = []engine.AffinityScore{}
		}
		return printJSON(out, top)
	}
	if len(top) == 0 {
		fmt.Fprintf(out, "No relationships found for %s.\n", user)
		return nil
	}
	for i, s := range top {
		name := s.ToUser
		if u, err := backend.GetUser(ctx, s.ToUser, queryGuild); err == nil && u != nil {
			name = u.Name()
		}
		fmt.Fprintf(out, "%2d. %-20s %8.2f\n", i+1, strings.TrimSpace(name), s.TotalScore)
	}
	return nil
}
