package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect aggregation run history",
	Long:  "Commands for listing, viewing, and summarizing persisted aggregation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List aggregation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		document, _ := cmd.Flags().GetString("document")
		bestSource, _ := cmd.Flags().GetString("best-source")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			DocumentID: document,
			BestSource: bestSource,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run, including field provenance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		provenance, err := st.ListProvenance(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show provenance")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run        *model.AggregationRun   `json:"run"`
			Provenance []model.FieldProvenance `json:"provenance"`
		}{run, provenance})
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("document", "", "filter by document ID")
	runsListCmd.Flags().String("best-source", "", "filter by winning source")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total        int
	AvgScore     float64
	AvgSources   float64
	SourceCounts map[string]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.AggregationRun) runStats {
	s := runStats{
		Total:        len(runs),
		SourceCounts: map[string]int{},
	}
	if len(runs) == 0 {
		return s
	}

	var scoreSum, sourceSum float64
	for _, r := range runs {
		scoreSum += r.Score
		sourceSum += float64(r.SourceCount)
		s.SourceCounts[r.BestSource]++
	}
	s.AvgScore = scoreSum / float64(len(runs))
	s.AvgSources = sourceSum / float64(len(runs))
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.AggregationRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDOCUMENT\tSOURCES\tBEST\tSCORE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t-------\t----\t-----\t-------")

	for _, r := range runs {
		document := r.DocumentID
		if len(document) > 30 {
			document = document[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\t%s\n",
			truncateID(r.ID),
			document,
			r.SourceCount,
			r.BestSource,
			r.Score,
			r.CreatedAt.Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate statistics to w.
func formatRunStats(out io.Writer, stats runStats) {
	fmt.Fprintf(out, "Total runs:       %d\n", stats.Total)
	if stats.Total == 0 {
		return
	}
	fmt.Fprintf(out, "Average score:    %.2f\n", stats.AvgScore)
	fmt.Fprintf(out, "Average sources:  %.1f\n", stats.AvgSources)

	fmt.Fprintln(out, "Best source wins:")
	sources := make([]string, 0, len(stats.SourceCounts))
	for source := range stats.SourceCounts {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		fmt.Fprintf(out, "  %-24s %d\n", source, stats.SourceCounts[source])
	}
}

// truncateID shortens a UUID for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
