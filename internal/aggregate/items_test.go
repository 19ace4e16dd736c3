package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/similarity"
)

func TestMergeItems_CaseInsensitiveDedup(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()

	p := model.ResultEnvelope{
		SourceID:        "p",
		MerchantName:    strPtr("Globus"),
		TransactionDate: strPtr("2024-03-01"),
		Items: []model.LineItem{
			{Description: "Milk", UnitPrice: floatPtr(3.49), Quantity: 1},
		},
		Confidence: 0.9,
	}
	q := model.ResultEnvelope{
		SourceID: "q",
		Items: []model.LineItem{
			{Description: "milk", UnitPrice: floatPtr(3.49), Quantity: 1},
			{Description: "Bread", UnitPrice: floatPtr(2.00), Quantity: 1},
		},
		Confidence: 0.5,
	}

	ranked := cfg.Rank([]model.ResultEnvelope{p, q})
	require.Equal(t, "p", ranked[0].SourceID)

	items, sources := MergeItems(ranked, similarity.Exact{}, 1.0)
	require.Len(t, items, 2)
	require.Len(t, sources, 2)

	// P's casing and price survive; Q contributes only the new item.
	assert.Equal(t, "Milk", items[0].Description)
	assert.Equal(t, 3.49, *items[0].UnitPrice)
	assert.Equal(t, "p", sources[0].SourceID)

	assert.Equal(t, "Bread", items[1].Description)
	assert.Equal(t, "q", sources[1].SourceID)
}

func TestMergeItems_FirstSeenPriceNotAveraged(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()

	p := model.ResultEnvelope{
		SourceID:     "p",
		MerchantName: strPtr("Globus"),
		Items: []model.LineItem{
			{Description: "Coffee", UnitPrice: floatPtr(4.00), Quantity: 2},
		},
		Confidence: 0.9,
	}
	q := model.ResultEnvelope{
		SourceID: "q",
		Items: []model.LineItem{
			{Description: "coffee", UnitPrice: floatPtr(6.00), Quantity: 1},
		},
		Confidence: 0.3,
	}

	ranked := cfg.Rank([]model.ResultEnvelope{q, p})
	items, _ := MergeItems(ranked, similarity.Exact{}, 1.0)

	require.Len(t, items, 1)
	assert.Equal(t, 4.00, *items[0].UnitPrice)
	assert.Equal(t, 2.0, items[0].Quantity)
}

func TestMergeItems_EmptyLists(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	ranked := cfg.Rank([]model.ResultEnvelope{
		{SourceID: "p", Confidence: 0.9},
		{SourceID: "q", Confidence: 0.5},
	})

	items, sources := MergeItems(ranked, similarity.Exact{}, 1.0)
	assert.Empty(t, items)
	assert.Empty(t, sources)
}

func TestMergeItems_NullPriceRetained(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	ranked := cfg.Rank([]model.ResultEnvelope{
		{
			SourceID: "p",
			Items: []model.LineItem{
				{Description: "Mystery item", Quantity: 1},
			},
			Confidence: 0.9,
		},
	})

	items, _ := MergeItems(ranked, similarity.Exact{}, 1.0)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].UnitPrice)
}

func TestMergeItems_SkipsBlankDescriptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	ranked := cfg.Rank([]model.ResultEnvelope{
		{
			SourceID: "p",
			Items: []model.LineItem{
				{Description: "", UnitPrice: floatPtr(1.00), Quantity: 1},
				{Description: "Tea", UnitPrice: floatPtr(2.00), Quantity: 1},
			},
			Confidence: 0.9,
		},
	})

	items, _ := MergeItems(ranked, similarity.Exact{}, 1.0)
	require.Len(t, items, 1)
	assert.Equal(t, "Tea", items[0].Description)
}

func TestMergeItems_PreservesFirstSeenOrder(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()

	p := model.ResultEnvelope{
		SourceID:     "p",
		MerchantName: strPtr("Globus"),
		Items: []model.LineItem{
			{Description: "Zucchini", UnitPrice: floatPtr(1.20), Quantity: 1},
			{Description: "Apples", UnitPrice: floatPtr(2.10), Quantity: 1},
		},
		Confidence: 0.9,
	}
	q := model.ResultEnvelope{
		SourceID: "q",
		Items: []model.LineItem{
			{Description: "Bread", UnitPrice: floatPtr(2.00), Quantity: 1},
		},
		Confidence: 0.5,
	}

	ranked := cfg.Rank([]model.ResultEnvelope{q, p})
	items, _ := MergeItems(ranked, similarity.Exact{}, 1.0)

	// Not alphabetical, not by price: highest-ranked source first, then
	// first-seen order within and across envelopes.
	require.Len(t, items, 3)
	assert.Equal(t, "Zucchini", items[0].Description)
	assert.Equal(t, "Apples", items[1].Description)
	assert.Equal(t, "Bread", items[2].Description)
}

func TestMergeItems_FuzzyThreshold(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()

	p := model.ResultEnvelope{
		SourceID:     "p",
		MerchantName: strPtr("Globus"),
		Items: []model.LineItem{
			{Description: "Whole Milk 1L", UnitPrice: floatPtr(3.49), Quantity: 1},
		},
		Confidence: 0.9,
	}
	q := model.ResultEnvelope{
		SourceID: "q",
		Items: []model.LineItem{
			{Description: "Whole Mllk 1L", UnitPrice: floatPtr(3.49), Quantity: 1}, // OCR misread
			{Description: "Orange Juice", UnitPrice: floatPtr(4.20), Quantity: 1},
		},
		Confidence: 0.5,
	}

	ranked := cfg.Rank([]model.ResultEnvelope{p, q})

	// Exact matching keeps the misread as a separate item.
	exact, _ := MergeItems(ranked, similarity.Exact{}, 1.0)
	assert.Len(t, exact, 3)

	// Fuzzy matching at 0.85 merges it.
	fuzzy, _ := MergeItems(ranked, similarity.Levenshtein{}, 0.85)
	require.Len(t, fuzzy, 2)
	assert.Equal(t, "Whole Milk 1L", fuzzy[0].Description)
	assert.Equal(t, "Orange Juice", fuzzy[1].Description)
}

func TestMergeItems_DefaultsZeroQuantity(t *testing.T) {
	t.Parallel()

	cfg := DefaultScoringConfig()
	ranked := cfg.Rank([]model.ResultEnvelope{
		{
			SourceID: "p",
			Items: []model.LineItem{
				{Description: "Eggs", UnitPrice: floatPtr(3.10)},
			},
			Confidence: 0.9,
		},
	})

	items, _ := MergeItems(ranked, similarity.Exact{}, 1.0)
	require.Len(t, items, 1)
	assert.Equal(t, 1.0, items[0].Quantity)
}
