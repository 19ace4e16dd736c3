package aggregate

import (
	"go.uber.org/zap"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/similarity"
)

// MergeItems deduplicates line items across the ranked envelope list.
// Items are taken in score-descending envelope order, so the best source's
// items come first; a later item whose description matches an already-kept
// item at or above the threshold is dropped wholesale; the first-seen
// price, quantity, and casing win, and numeric fields are never averaged.
// Items without a description are skipped; a null price is kept as-is.
// The merged order is first-seen order, not sorted.
func MergeItems(ranked []ScoredEnvelope, matcher similarity.Matcher, threshold float64) ([]model.LineItem, []model.ItemAttribution) {
	merged := make([]model.LineItem, 0)
	attribution := make([]model.ItemAttribution, 0)

	for _, se := range ranked {
		for _, item := range se.Envelope.Items {
			if item.Description == "" {
				continue
			}

			duplicate := false
			for _, kept := range merged {
				if matcher.Score(kept.Description, item.Description) >= threshold {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}

			if item.Quantity <= 0 {
				item.Quantity = 1
			}
			merged = append(merged, item)
			attribution = append(attribution, model.ItemAttribution{
				Description: item.Description,
				SourceID:    se.SourceID,
			})

			zap.L().Debug("aggregate: item kept",
				zap.String("description", item.Description),
				zap.String("source", se.SourceID),
			)
		}
	}

	return merged, attribution
}
