// Package aggregate reconciles extraction results from multiple document
// understanding sources into one attributed record per document. The engine
// is a pure transform: it performs no I/O, holds no shared state, and may be
// called from any number of goroutines. Callers must join all source results
// for a document before invoking Aggregate; partial delivery is unsupported.
package aggregate

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/similarity"
)

// ErrNoEnvelopes is returned when Aggregate is called with zero envelopes.
// Aggregation over zero sources is undefined and must surface to the caller
// rather than default to an empty record.
var ErrNoEnvelopes = eris.New("aggregate: no envelopes supplied")

// Aggregator drives scoring, field resolution, and item merging for one
// document's envelopes. Construct once and reuse; it is safe for concurrent
// use.
type Aggregator struct {
	scoring   ScoringConfig
	matcher   similarity.Matcher
	threshold float64
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithScoring overrides the default scoring constants.
func WithScoring(cfg ScoringConfig) Option {
	return func(a *Aggregator) { a.scoring = cfg }
}

// WithMatcher sets the item-dedup matcher and its merge threshold.
func WithMatcher(m similarity.Matcher, threshold float64) Option {
	return func(a *Aggregator) {
		a.matcher = m
		a.threshold = threshold
	}
}

// New creates an Aggregator with default scoring and exact item matching.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		scoring:   DefaultScoringConfig(),
		matcher:   similarity.Exact{},
		threshold: 1.0,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rank exposes the scored, sorted envelope breakdown so callers can persist
// the decision context alongside the record.
func (a *Aggregator) Rank(envelopes []model.ResultEnvelope) []ScoredEnvelope {
	return a.scoring.Rank(envelopes)
}

// Aggregate produces the reconciled record for one document. The input list
// must be non-empty; its order does not affect the output since envelopes
// are re-ranked internally. Identical input always yields identical output.
func (a *Aggregator) Aggregate(envelopes []model.ResultEnvelope) (*model.AggregatedRecord, error) {
	if len(envelopes) == 0 {
		return nil, ErrNoEnvelopes
	}

	// Envelopes are immutable inputs; clamp confidence on a copy. Item
	// quantities are defaulted by MergeItems on the copies it keeps.
	envs := make([]model.ResultEnvelope, len(envelopes))
	copy(envs, envelopes)
	for i := range envs {
		if envs[i].Confidence < 0 {
			envs[i].Confidence = 0
		}
		if envs[i].Confidence > 1 {
			envs[i].Confidence = 1
		}
	}

	ranked := a.scoring.Rank(envs)
	best := ranked[0]

	zap.L().Info("aggregate: base envelope selected",
		zap.String("source", best.SourceID),
		zap.Float64("score", best.Score),
		zap.Int("envelopes", len(ranked)),
	)

	record := &model.AggregatedRecord{
		FieldSources:      make(map[string]string),
		BestSource:        best.SourceID,
		ConfidenceScore:   best.Confidence,
		CompletenessScore: best.Completeness,
		AggregationScore:  best.Score,
		SourceScores:      make(map[string]float64, len(ranked)),
	}
	for _, se := range ranked {
		record.SourceScores[se.SourceID] = se.Score
	}

	for _, key := range model.RecognizedFields() {
		value, sourceID := ResolveField(ranked, key)
		if value == nil {
			continue
		}
		record.FieldSources[key] = sourceID
		setField(record, key, value)

		if sourceID != best.SourceID {
			zap.L().Debug("aggregate: gap filled",
				zap.String("field", key),
				zap.String("source", sourceID),
			)
		}
	}

	record.Items, record.ItemSources = MergeItems(ranked, a.matcher, a.threshold)

	// Every input source counts as used, in input order, whether or not it
	// contributed a value: absence of contribution is still provenance.
	seen := make(map[string]bool, len(envs))
	for i := range envs {
		id := envs[i].SourceID
		if seen[id] {
			continue
		}
		seen[id] = true
		record.SourcesUsed = append(record.SourcesUsed, id)
	}

	return record, nil
}

// setField assigns a resolved value to its named slot on the record. The
// resolver only returns values read from typed envelope slots, so the type
// assertions here cannot fail for recognized keys.
func setField(r *model.AggregatedRecord, key string, value any) {
	switch key {
	case model.FieldMerchantName:
		if s, ok := value.(string); ok {
			r.MerchantName = &s
		}
	case model.FieldTransactionDate:
		if s, ok := value.(string); ok {
			r.TransactionDate = &s
		}
	case model.FieldTransactionTime:
		if s, ok := value.(string); ok {
			r.TransactionTime = &s
		}
	case model.FieldTotalAmount:
		if f, ok := value.(float64); ok {
			r.TotalAmount = &f
		}
	case model.FieldCurrency:
		if s, ok := value.(string); ok {
			r.Currency = &s
		}
	}
}
