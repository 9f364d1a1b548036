package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pricing-cli/internal/mapping"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the column-mapping rule sets",
}

// -- rules list --

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered rule sets in priority order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := initMapper()
		if err != nil {
			return eris.Wrap(err, "rules list")
		}
		formatRuleSets(cmd.OutOrStdout(), m.RuleSets())
		return nil
	},
}

// -- rules match --

var rulesMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score every rule set against an input file's headers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")

		m, err := initMapper()
		if err != nil {
			return eris.Wrap(err, "rules match")
		}
		t, err := inputCodec(m).Read(input)
		if err != nil {
			return eris.Wrap(err, "rules match")
		}

		formatScores(cmd.OutOrStdout(), m.Scores(t.Columns), cfg.Mapping.SimilarityThreshold)
		rs, score, err := m.Select(t.Columns, "")
		if err != nil {
			return eris.Wrap(err, "rules match")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nSelected: %s (score %.2f)\n", rs.Name, score)
		return nil
	},
}

// formatRuleSets writes a tabular list of rule sets to out.
func formatRuleSets(out io.Writer, sets []*mapping.RuleSet) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tFIELDS\tSIGNATURE\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "----\t------\t---------\t-----------")
	for _, rs := range sets {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			rs.Name,
			len(rs.TargetFields()),
			strings.Join(rs.Signature, ", "),
			rs.Description,
		)
	}
	_ = w.Flush()
}

// formatScores writes rule-set scores, marking those below threshold.
func formatScores(out io.Writer, scores []mapping.Score, threshold float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RULE SET\tSCORE\t")
	_, _ = fmt.Fprintln(w, "--------\t-----\t")
	for _, s := range scores {
		note := ""
		if s.Score < threshold {
			note = "below threshold"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\n", s.RuleSet, s.Score, note)
	}
	_ = w.Flush()
}

func init() {
	rulesMatchCmd.Flags().String("input", "", "vendor pricing file to score (required)")
	_ = rulesMatchCmd.MarkFlagRequired("input")

	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesMatchCmd)
	rootCmd.AddCommand(rulesCmd)
}
