package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/export"
)

var (
	exportOut string
	exportS3  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write relationship reports as JSON to a file or S3",
}

var exportRelationshipCmd = &cobra.Command{
	Use:   "relationship <a> <b>",
	Short: "Export the analysis of one pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runExportRelationship,
}

var exportTopCmd = &cobra.Command{
	Use:   "top <user>",
	Short: "Export a member's strongest relationships",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportTop,
}

func init() {
	exportCmd.AddCommand(exportRelationshipCmd)
	exportCmd.AddCommand(exportTopCmd)

	pf := exportCmd.PersistentFlags()
	pf.StringVarP(&queryGuild, "guild", "g", "", "guild (community) ID")
	pf.StringVarP(&exportOut, "out", "o", "", "output file")
	pf.BoolVar(&exportS3, "s3", false, "upload to the configured export bucket")
	exportCmd.MarkPersistentFlagRequired("guild")
	exportTopCmd.Flags().IntVarP(&topLimit, "limit", "n", 10, "maximum number of relationships")
}

func reportWriter(cmd *cobra.Command) (export.Writer, error) {
	switch {
	case exportS3 && exportOut != "":
		return nil, errors.New("--out and --s3 are mutually exclusive")
	case exportS3:
		return export.NewS3Writer(cmd.Context(), cfg.Export)
	case exportOut != "":
		return export.FileWriter{Path: exportOut}, nil
	default:
		return nil, errors.New("one of --out or --s3 is required")
	}
}

func writeReport(cmd *cobra.Command, w export.Writer, r export.Report) error {
	ctx, cancel := queryContext(cmd)
	defer cancel()
	loc, err := w.Write(ctx, r)
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s report to %s\n", r.Kind, loc)
	return nil
}

func runExportRelationship(cmd *cobra.Command, args []string) error {
	a, b := args[0], args[1]
	if err := distinct(a, b); err != nil {
		return err
	}
	w, err := reportWriter(cmd)
	if err != nil {
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
	return writeReport(cmd, w, export.RelationshipReport(analysis))
}

func runExportTop(cmd *cobra.Command, args []string) error {
	user := args[0]
	w, err := reportWriter(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := queryContext(cmd)
	defer cancel()
	eng, _, closeFn, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	top, err := eng.TopRelationships(ctx, user, queryGuild, topLimit)
	if err != nil {
		return computeErr(err)
	}
	return writeReport(cmd, w, export.TopReport(queryGuild, user, top, time.Now()))
}
