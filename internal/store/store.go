package store

import (
	"context"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

// RunFilter specifies criteria for listing aggregation runs.
type RunFilter struct {
	DocumentID string `json:"document_id,omitempty"`
	BestSource string `json:"best_source,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for aggregation runs. The engine
// itself never touches a store; persistence is a CLI/server concern layered
// on top of the pure aggregate.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.AggregationRun) error
	GetRun(ctx context.Context, runID string) (*model.AggregationRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.AggregationRun, error)

	// Per-field attribution audit trail
	ListProvenance(ctx context.Context, runID string) ([]model.FieldProvenance, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// provenanceRows flattens a run's field attribution into persistable rows.
func provenanceRows(run *model.AggregationRun) []model.FieldProvenance {
	if run.Record == nil {
		return nil
	}

	rows := make([]model.FieldProvenance, 0, len(run.Record.FieldSources))
	for _, key := range model.RecognizedFields() {
		sourceID, ok := run.Record.FieldSources[key]
		if !ok {
			continue
		}
		value := ""
		if v, ok := run.Record.FieldValue(key); ok {
			value = stringify(v)
		}
		rows = append(rows, model.FieldProvenance{
			RunID:    run.ID,
			FieldKey: key,
			SourceID: sourceID,
			Value:    value,
		})
	}
	return rows
}
