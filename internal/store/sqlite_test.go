package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleRun(documentID string) *model.AggregationRun {
	merchant := "Corner Grocery"
	date := "2024-03-15"
	total := 42.17
	currency := "USD"

	return &model.AggregationRun{
		DocumentID: documentID,
		Envelopes: []model.ResultEnvelope{
			{
				SourceID:     "document_intelligence",
				MerchantName: &merchant,
				TotalAmount:  &total,
				Confidence:   0.92,
			},
			{
				SourceID:        "mistral",
				TransactionDate: &date,
				Currency:        &currency,
				Confidence:      0.81,
			},
		},
		Record: &model.AggregatedRecord{
			MerchantName:    &merchant,
			TransactionDate: &date,
			TotalAmount:     &total,
			Currency:        &currency,
			Items: []model.LineItem{
				{Description: "Whole Milk", UnitPrice: &total, Quantity: 1},
			},
			FieldSources: map[string]string{
				model.FieldMerchantName:    "document_intelligence",
				model.FieldTransactionDate: "mistral",
				model.FieldTotalAmount:     "document_intelligence",
				model.FieldCurrency:        "mistral",
			},
			ItemSources: []model.ItemAttribution{
				{Description: "Whole Milk", SourceID: "document_intelligence"},
			},
			SourcesUsed:       []string{"document_intelligence", "mistral"},
			BestSource:        "document_intelligence",
			ConfidenceScore:   0.92,
			CompletenessScore: 1.25,
			AggregationScore:  1.181,
			SourceScores: map[string]float64{
				"document_intelligence": 1.181,
				"mistral":               0.943,
			},
		},
		SourceCount: 2,
		BestSource:  "document_intelligence",
		Score:       1.181,
	}
}

func TestSQLiteStore_SaveAndGetRun(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run := sampleRun("receipt-001")
	require.NoError(t, s.SaveRun(ctx, run))
	require.NotEmpty(t, run.ID, "SaveRun should assign an ID")
	require.False(t, run.CreatedAt.IsZero(), "SaveRun should assign a timestamp")

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "receipt-001", got.DocumentID)
	assert.Equal(t, 2, got.SourceCount)
	assert.Equal(t, "document_intelligence", got.BestSource)
	assert.InDelta(t, 1.181, got.Score, 1e-9)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)

	require.NotNil(t, got.Record)
	require.NotNil(t, got.Record.MerchantName)
	assert.Equal(t, "Corner Grocery", *got.Record.MerchantName)
	assert.Equal(t, run.Record.FieldSources, got.Record.FieldSources)
	assert.Equal(t, run.Record.SourceScores, got.Record.SourceScores)
	assert.Len(t, got.Envelopes, 2)
	assert.Equal(t, "mistral", got.Envelopes[1].SourceID)
}

func TestSQLiteStore_GetRun_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)

	_, err := s.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_ListRuns_Filters(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	first := sampleRun("receipt-001")
	require.NoError(t, s.SaveRun(ctx, first))

	second := sampleRun("receipt-002")
	second.BestSource = "mistral"
	second.Record.BestSource = "mistral"
	require.NoError(t, s.SaveRun(ctx, second))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byDoc, err := s.ListRuns(ctx, RunFilter{DocumentID: "receipt-002"})
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	assert.Equal(t, second.ID, byDoc[0].ID)

	bySource, err := s.ListRuns(ctx, RunFilter{BestSource: "document_intelligence"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, first.ID, bySource[0].ID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListRuns(ctx, RunFilter{DocumentID: "receipt-404"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ListProvenance(t *testing.T) {
	t.Parallel()
	s := newTestSQLite(t)
	ctx := context.Background()

	run := sampleRun("receipt-001")
	require.NoError(t, s.SaveRun(ctx, run))

	rows, err := s.ListProvenance(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		assert.Equal(t, run.ID, row.RunID)
		keys = append(keys, row.FieldKey)
	}
	// Rows follow canonical field order, not map iteration order.
	assert.Equal(t, []string{
		model.FieldMerchantName,
		model.FieldTransactionDate,
		model.FieldTotalAmount,
		model.FieldCurrency,
	}, keys)

	byKey := make(map[string]model.FieldProvenance, len(rows))
	for _, row := range rows {
		byKey[row.FieldKey] = row
	}
	assert.Equal(t, "document_intelligence", byKey[model.FieldMerchantName].SourceID)
	assert.Equal(t, "Corner Grocery", byKey[model.FieldMerchantName].Value)
	assert.Equal(t, "mistral", byKey[model.FieldCurrency].SourceID)
	assert.Equal(t, "42.17", byKey[model.FieldTotalAmount].Value)
}

func TestProvenanceRows_NilRecord(t *testing.T) {
	t.Parallel()
	assert.Empty(t, provenanceRows(&model.AggregationRun{ID: "r1"}))
}
