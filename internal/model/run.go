package model

import "time"

// AggregationRun is one persisted aggregation of a document's envelopes.
type AggregationRun struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	Envelopes   []ResultEnvelope  `json:"envelopes"`
	Record      *AggregatedRecord `json:"record"`
	SourceCount int               `json:"source_count"`
	BestSource  string            `json:"best_source"`
	Score       float64           `json:"score"`
	CreatedAt   time.Time         `json:"created_at"`
}

// FieldProvenance is one per-field attribution row for a run, persisted so
// downstream reports can audit which source supplied which value.
type FieldProvenance struct {
	ID        int64     `json:"id,omitempty"`
	RunID     string    `json:"run_id"`
	FieldKey  string    `json:"field_key"`
	SourceID  string    `json:"source_id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
