package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/aggregate"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	merchant := "Corner Grocery"

	record := &model.AggregatedRecord{
		MerchantName: &merchant,
		FieldSources: map[string]string{model.FieldMerchantName: "mistral"},
		SourcesUsed:  []string{"mistral"},
		BestSource:   "mistral",
	}
	scored := []aggregate.ScoredEnvelope{
		{SourceID: "mistral", Score: 1.1, Completeness: 2.0, Confidence: 0.8},
	}

	require.NoError(t, writeArtifacts(dir, "receipt.001", record, scored))

	// Dots in document IDs are sanitized in artifact names.
	md, err := os.ReadFile(filepath.Join(dir, "receipt_001.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Receipt Summary: receipt.001")
	assert.Contains(t, string(md), "Corner Grocery")

	raw, err := os.ReadFile(filepath.Join(dir, "receipt_001_aggregation.json"))
	require.NoError(t, err)

	var ctx aggregationContext
	require.NoError(t, json.Unmarshal(raw, &ctx))
	assert.Equal(t, "receipt.001", ctx.DocumentID)
	require.Len(t, ctx.Sources, 1)
	assert.Equal(t, "mistral", ctx.Sources[0].SourceID)
	require.NotNil(t, ctx.Record)
	assert.Equal(t, "mistral", ctx.Record.BestSource)
}
