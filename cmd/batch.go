package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/aggregate"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/fetcher"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/report"
)

var (
	batchLimit int
	batchOut   string
	batchSave  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <root-dir>",
	Short: "Aggregate every document directory under a root",
	Long:  "Treats each subdirectory of the root as one document's envelope set, aggregates them concurrently, and writes a run analysis report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		agg, err := initAggregator(cfg)
		if err != nil {
			return err
		}

		dirs, err := listDocumentDirs(args[0])
		if err != nil {
			return err
		}

		outDir := batchOut
		if outDir == "" {
			outDir = args[0]
		}

		runID := "run_" + time.Now().UTC().Format("20060102_150405")
		started := time.Now()

		results := processBatch(ctx, dirs, batchLimit, cfg.Batch.MaxConcurrentDocuments,
			func(ctx context.Context, documentID string, envelopes []model.ResultEnvelope) (*model.AggregatedRecord, []aggregate.ScoredEnvelope, error) {
				record, err := agg.Aggregate(envelopes)
				if err != nil {
					return nil, nil, err
				}
				return record, agg.Rank(envelopes), nil
			})

		for i, r := range results {
			if r.Err != nil || r.Record == nil {
				continue
			}
			scored := agg.Rank(results[i].envelopes)
			if err := writeArtifacts(outDir, r.DocumentID, r.Record, scored); err != nil {
				return err
			}
		}

		if batchSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil || r.Record == nil {
					continue
				}
				if _, err := saveRunResult(ctx, st, r.DocumentID, r.envelopes, r.Record); err != nil {
					return err
				}
			}
		}

		analysis := report.FormatBatch(runID, toDocumentResults(results), time.Since(started))
		reportPath := filepath.Join(outDir, "RUN_ANALYSIS_REPORT.md")
		if err := os.WriteFile(reportPath, []byte(analysis), 0o644); err != nil {
			return eris.Wrapf(err, "write analysis report %s", reportPath)
		}

		zap.L().Info("batch complete",
			zap.String("run_id", runID),
			zap.Int("documents", len(results)),
			zap.String("report", reportPath),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to process (0 = all)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "output directory for artifacts (default: the root dir)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist each run to the configured store")
	rootCmd.AddCommand(batchCmd)
}

// listDocumentDirs lists immediate subdirectories of root, sorted by name.
func listDocumentDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch root %s", root)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// aggregateFunc is the callback signature for aggregating one document.
type aggregateFunc func(ctx context.Context, documentID string, envelopes []model.ResultEnvelope) (*model.AggregatedRecord, []aggregate.ScoredEnvelope, error)

// batchResult extends the report result with the loaded envelopes so the
// caller can persist them.
type batchResult struct {
	report.DocumentResult
	envelopes []model.ResultEnvelope
}

// processBatch applies limit, then aggregates documents concurrently with the
// given function. Individual failures are recorded, not fatal: one bad
// document must not abort the batch. Results come back in input order.
func processBatch(ctx context.Context, dirs []string, limit, concurrency int, fn aggregateFunc) []batchResult {
	if limit > 0 && len(dirs) > limit {
		dirs = dirs[:limit]
	}
	if len(dirs) == 0 {
		zap.L().Info("no document directories found")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(dirs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64
	results := make([]batchResult, len(dirs))

	for i, dir := range dirs {
		documentID := filepath.Base(dir)
		results[i].DocumentID = documentID

		g.Go(func() error {
			log := zap.L().With(zap.String("document", documentID))
			started := time.Now()

			envelopes, err := fetcher.LoadDocumentDir(dir)
			if err == nil {
				var record *model.AggregatedRecord
				record, _, err = fn(gctx, documentID, envelopes)
				results[i].Record = record
				results[i].envelopes = envelopes
			}
			results[i].Duration = time.Since(started)

			if err != nil {
				results[i].Err = err
				failed.Add(1)
				log.Error("aggregation failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("aggregation complete",
				zap.Float64("score", results[i].Record.AggregationScore),
				zap.String("best_source", results[i].Record.BestSource),
			)
			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	zap.L().Info("batch finished",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

func toDocumentResults(results []batchResult) []report.DocumentResult {
	out := make([]report.DocumentResult, len(results))
	for i, r := range results {
		out[i] = r.DocumentResult
	}
	return out
}
