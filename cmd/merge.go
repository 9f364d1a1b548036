package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/pipeline"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Append a vendor pricing file to the master table",
	Long: `Maps the input file onto the master schema, stamps every row with today's
price date, derives start dates from the input, and appends the rows to the
master. By default the result is written next to the master as
master-file-updated.xlsx; --in-place overwrites the master after backing it up.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, source, err := mergeRequest(cmd)
		if err != nil {
			return err
		}
		cfg.Master.Path = req.MasterPath
		cfg.Master.Source = source

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req.MasterPath, err = resolveMaster(ctx, env.Resolver, req.MasterPath, source)
		if err != nil {
			return err
		}

		sum, err := env.Runner.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		}
		formatSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

// mergeRequest builds the pipeline request from config, with flags taking
// precedence when set.
func mergeRequest(cmd *cobra.Command) (pipeline.Request, string, error) {
	flags := cmd.Flags()
	input, _ := flags.GetString("input")

	req := pipeline.Request{
		InputPath:      input,
		MasterPath:     cfg.Master.Path,
		OutputPath:     cfg.Merge.Output,
		Mode:           model.WriteMode(cfg.Merge.Mode),
		RuleSet:        cfg.Mapping.DefaultRuleSet,
		Strict:         cfg.Merge.Strict,
		SkipDuplicates: cfg.Merge.SkipDuplicates,
	}
	source := cfg.Master.Source

	if flags.Changed("master") {
		req.MasterPath, _ = flags.GetString("master")
		source = ""
	}
	if flags.Changed("source") {
		source, _ = flags.GetString("source")
	}
	if flags.Changed("output") {
		req.OutputPath, _ = flags.GetString("output")
	}
	if flags.Changed("in-place") {
		inPlace, _ := flags.GetBool("in-place")
		req.Mode = model.WriteModeNewFile
		if inPlace {
			req.Mode = model.WriteModeInPlace
		}
	}
	if flags.Changed("rules") {
		req.RuleSet, _ = flags.GetString("rules")
	}
	if flags.Changed("strict") {
		req.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("skip-duplicates") {
		req.SkipDuplicates, _ = flags.GetBool("skip-duplicates")
	}

	if req.Mode == model.WriteModeInPlace && flags.Changed("output") {
		return req, "", eris.New("--output cannot be combined with --in-place")
	}
	return req, source, nil
}

// formatSummary writes a human-readable run summary to out.
func formatSummary(out io.Writer, s *pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(s.RunID))
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	_, _ = fmt.Fprintf(w, "Run date:\t%s\n", s.RunDate.Format(model.DateLayout))
	_, _ = fmt.Fprintf(w, "Rule set:\t%s (score %.2f)\n", s.RuleSet, s.Score)
	_, _ = fmt.Fprintf(w, "Rows read:\t%d\n", s.RowsRead)
	_, _ = fmt.Fprintf(w, "Rows mapped:\t%d\n", s.RowsMapped)
	_, _ = fmt.Fprintf(w, "Rows appended:\t%d\n", s.RowsAppended)
	if s.RowsAppended > 0 {
		_, _ = fmt.Fprintf(w, "New IDs:\t%d-%d\n", s.FirstID, s.LastID)
	}
	_, _ = fmt.Fprintf(w, "Master rows:\t%d -> %d\n", s.MasterRowsBefore, s.MasterRowsAfter)

	reasons := make([]string, 0, len(s.DroppedByReason))
	for r := range s.DroppedByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		_, _ = fmt.Fprintf(w, "Dropped (%s):\t%d\n", r, s.DroppedByReason[model.DropReason(r)])
	}

	if len(s.UnmappedColumns) > 0 {
		_, _ = fmt.Fprintf(w, "Unmapped columns:\t%s\n", strings.Join(s.UnmappedColumns, ", "))
	}
	if len(s.DroppedColumns) > 0 {
		_, _ = fmt.Fprintf(w, "Dropped master columns:\t%s\n", strings.Join(s.DroppedColumns, ", "))
	}
	if s.BackupPath != "" {
		_, _ = fmt.Fprintf(w, "Backup:\t%s\n", s.BackupPath)
	}
	if s.OutputPath != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", s.OutputPath)
	} else {
		_, _ = fmt.Fprintln(w, "Output:\tnone (nothing to append)")
	}
	_ = w.Flush()
}

func addMergeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("input", "", "vendor pricing file to merge (required)")
	f.String("master", "", "master table path (default from master.path)")
	f.String("source", "", "URL to download the master from before merging")
	f.String("output", "", "output path in new-file mode (default master-file-updated next to the master)")
	f.Bool("in-place", false, "overwrite the master after backing it up")
	f.String("rules", "", "rule set to apply instead of matching by headers")
	f.Bool("strict", false, "abort when any start date cannot be parsed")
	f.Bool("skip-duplicates", false, "skip rows already present in the master")
	f.Bool("json", false, "print the run summary as JSON")
	_ = cmd.MarkFlagRequired("input")
}

func init() {
	addMergeFlags(mergeCmd)
	rootCmd.AddCommand(mergeCmd)
}
