package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/aggregate"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/fetcher"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/report"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/store"
)

var (
	aggregateOut  string
	aggregateSave bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <document-dir>",
	Short: "Aggregate one document's extraction envelopes",
	Long:  "Reads every envelope JSON file in the document directory, scores the sources, reconciles them into a single record, and prints the record as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		agg, err := initAggregator(cfg)
		if err != nil {
			return err
		}

		documentID := filepath.Base(filepath.Clean(args[0]))
		envelopes, err := fetcher.LoadDocumentDir(args[0])
		if err != nil {
			return err
		}

		record, err := agg.Aggregate(envelopes)
		if err != nil {
			return eris.Wrapf(err, "aggregate %s", documentID)
		}
		scored := agg.Rank(envelopes)

		if aggregateOut != "" {
			if err := writeArtifacts(aggregateOut, documentID, record, scored); err != nil {
				return err
			}
		}

		if aggregateSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			run, err := saveRunResult(ctx, st, documentID, envelopes, record)
			if err != nil {
				return err
			}
			zap.L().Info("run saved", zap.String("run_id", run.ID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateOut, "out", "", "directory for markdown summary and aggregation context artifacts")
	aggregateCmd.Flags().BoolVar(&aggregateSave, "save", false, "persist the run to the configured store")
	rootCmd.AddCommand(aggregateCmd)
}

// aggregationContext is the decision-context artifact written next to each
// record: the per-source score breakdown that drove field resolution.
type aggregationContext struct {
	DocumentID string                     `json:"document_id"`
	Sources    []aggregate.ScoredEnvelope `json:"scored_sources"`
	Record     *model.AggregatedRecord    `json:"record"`
}

// writeArtifacts writes the markdown summary and the aggregation context
// JSON for one document into dir.
func writeArtifacts(dir, documentID string, record *model.AggregatedRecord, scored []aggregate.ScoredEnvelope) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create output dir %s", dir)
	}

	base := fetcher.SafeFilename(documentID)

	md := report.FormatRecord(documentID, record, scored)
	mdPath := filepath.Join(dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return eris.Wrapf(err, "write summary %s", mdPath)
	}

	contextJSON, err := json.MarshalIndent(aggregationContext{
		DocumentID: documentID,
		Sources:    scored,
		Record:     record,
	}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal aggregation context")
	}
	ctxPath := filepath.Join(dir, base+"_aggregation.json")
	if err := os.WriteFile(ctxPath, contextJSON, 0o644); err != nil {
		return eris.Wrapf(err, "write aggregation context %s", ctxPath)
	}

	zap.L().Info("artifacts written",
		zap.String("document", documentID),
		zap.String("summary", mdPath),
		zap.String("context", ctxPath),
	)
	return nil
}

// saveRunResult persists a batch item's run; shared by batch and aggregate.
func saveRunResult(ctx context.Context, st store.Store, documentID string, envelopes []model.ResultEnvelope, record *model.AggregatedRecord) (*model.AggregationRun, error) {
	run := &model.AggregationRun{
		DocumentID:  documentID,
		Envelopes:   envelopes,
		Record:      record,
		SourceCount: len(envelopes),
		BestSource:  record.BestSource,
		Score:       record.AggregationScore,
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return nil, eris.Wrapf(err, "save run %s", documentID)
	}
	return run, nil
}
