package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

func sampleEnvelopes() []model.ResultEnvelope {
	return []model.ResultEnvelope{
		{
			SourceID:        "mistral",
			TransactionDate: strPtr("2024-03-01"),
			Items: []model.LineItem{
				{Description: "milk", UnitPrice: floatPtr(3.49), Quantity: 1},
				{Description: "Bread", UnitPrice: floatPtr(2.00), Quantity: 1},
			},
			Confidence: 0.75,
		},
		{
			SourceID:        "document_intelligence",
			MerchantName:    strPtr("Globus"),
			TransactionDate: strPtr("2024-03-01"),
			TotalAmount:     floatPtr(40.92),
			Currency:        strPtr("EUR"),
			Items: []model.LineItem{
				{Description: "Milk", UnitPrice: floatPtr(3.49), Quantity: 1},
			},
			Confidence: 0.95,
		},
		{
			SourceID:        "direct_extraction",
			TransactionTime: strPtr("14:32"),
			Confidence:      0.40,
		},
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	t.Parallel()

	_, err := New().Aggregate(nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoEnvelopes))
}

func TestAggregate_FullRecord(t *testing.T) {
	t.Parallel()

	record, err := New().Aggregate(sampleEnvelopes())
	require.NoError(t, err)

	assert.Equal(t, "document_intelligence", record.BestSource)

	// Base fields come from the best envelope; gaps fill from lower ranks.
	require.NotNil(t, record.MerchantName)
	assert.Equal(t, "Globus", *record.MerchantName)
	assert.Equal(t, "document_intelligence", record.FieldSources[model.FieldMerchantName])

	require.NotNil(t, record.TransactionTime)
	assert.Equal(t, "14:32", *record.TransactionTime)
	assert.Equal(t, "direct_extraction", record.FieldSources[model.FieldTransactionTime])

	// Items dedup case-insensitively; the best source's casing wins.
	require.Len(t, record.Items, 2)
	assert.Equal(t, "Milk", record.Items[0].Description)
	assert.Equal(t, "document_intelligence", record.ItemSources[0].SourceID)
	assert.Equal(t, "Bread", record.Items[1].Description)
	assert.Equal(t, "mistral", record.ItemSources[1].SourceID)

	// Every input source is provenance, contribution or not.
	assert.Equal(t, []string{"mistral", "document_intelligence", "direct_extraction"}, record.SourcesUsed)

	// Observability carries the best envelope's score components.
	assert.InDelta(t, 0.95, record.ConfidenceScore, 0.0001)
	assert.Greater(t, record.CompletenessScore, 1.0)
	require.Len(t, record.SourceScores, 3)
}

func TestAggregate_InputOrderInvariant(t *testing.T) {
	t.Parallel()

	envs := sampleEnvelopes()
	reversed := []model.ResultEnvelope{envs[2], envs[1], envs[0]}

	a := New()
	r1, err := a.Aggregate(envs)
	require.NoError(t, err)
	r2, err := a.Aggregate(reversed)
	require.NoError(t, err)

	// sources_used reflects input order by contract; everything else is
	// order-invariant since envelopes are re-ranked internally.
	r2.SourcesUsed = r1.SourcesUsed
	assert.Equal(t, r1, r2)
}

func TestAggregate_Deterministic(t *testing.T) {
	t.Parallel()

	a := New()
	r1, err := a.Aggregate(sampleEnvelopes())
	require.NoError(t, err)
	r2, err := a.Aggregate(sampleEnvelopes())
	require.NoError(t, err)

	b1, err := json.Marshal(r1)
	require.NoError(t, err)
	b2, err := json.Marshal(r2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	envs := []model.ResultEnvelope{
		{SourceID: "mistral", MerchantName: strPtr("Globus"), Confidence: 3.7},
	}

	record, err := New().Aggregate(envs)
	require.NoError(t, err)

	assert.Equal(t, 3.7, envs[0].Confidence)
	assert.InDelta(t, 1.0, record.ConfidenceScore, 0.0001)
}

func TestAggregate_AllNullField(t *testing.T) {
	t.Parallel()

	envs := []model.ResultEnvelope{
		{SourceID: "mistral", MerchantName: strPtr("Globus"), Confidence: 0.8},
		{SourceID: "direct_extraction", MerchantName: strPtr("Globus"), Confidence: 0.4},
	}

	record, err := New().Aggregate(envs)
	require.NoError(t, err)

	// total_amount resolved nowhere: value null, key absent from attribution.
	assert.Nil(t, record.TotalAmount)
	_, present := record.FieldSources[model.FieldTotalAmount]
	assert.False(t, present)
}

func TestAggregate_AttributionSoundness(t *testing.T) {
	t.Parallel()

	envs := sampleEnvelopes()
	record, err := New().Aggregate(envs)
	require.NoError(t, err)

	byID := make(map[string]*model.ResultEnvelope, len(envs))
	for i := range envs {
		byID[envs[i].SourceID] = &envs[i]
	}

	// Every attributed field maps to an input source whose envelope is
	// non-null for that field, and values agree.
	for key, sourceID := range record.FieldSources {
		src, ok := byID[sourceID]
		require.True(t, ok, "attributed source %s not in input", sourceID)

		want, ok := src.FieldValue(key)
		require.True(t, ok, "source %s is null for %s", sourceID, key)

		got, ok := record.FieldValue(key)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestAggregate_SingleEnvelope(t *testing.T) {
	t.Parallel()

	envs := []model.ResultEnvelope{
		{
			SourceID:     "mistral",
			MerchantName: strPtr("Kiosk 24"),
			TotalAmount:  floatPtr(7.80),
			Confidence:   0.6,
		},
	}

	record, err := New().Aggregate(envs)
	require.NoError(t, err)

	assert.Equal(t, "mistral", record.BestSource)
	assert.Equal(t, []string{"mistral"}, record.SourcesUsed)
	assert.Equal(t, "Kiosk 24", *record.MerchantName)
	assert.Empty(t, record.Items)
}
