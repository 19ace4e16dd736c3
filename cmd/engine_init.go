package main

import (
	"go.uber.org/zap"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/aggregate"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/config"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/similarity"
)

// initAggregator builds the aggregation engine from configuration: scoring
// constants from the optional YAML file and the configured item matcher.
func initAggregator(cfg *config.Config) (*aggregate.Aggregator, error) {
	var opts []aggregate.Option

	if cfg.Scoring.ConfigPath != "" {
		scoring, err := aggregate.LoadScoringConfig(cfg.Scoring.ConfigPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, aggregate.WithScoring(scoring))
		zap.L().Debug("loaded scoring config", zap.String("path", cfg.Scoring.ConfigPath))
	}

	matcher, err := similarity.ForAlgorithm(cfg.Similarity.Algorithm)
	if err != nil {
		return nil, err
	}
	opts = append(opts, aggregate.WithMatcher(matcher, cfg.Similarity.Threshold))

	return aggregate.New(opts...), nil
}
