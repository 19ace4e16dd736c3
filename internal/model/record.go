package model

// ItemAttribution records which source contributed a merged line item.
type ItemAttribution struct {
	Description string `json:"description"`
	SourceID    string `json:"source"`
}

// AggregatedRecord is the reconciled output for one document. It is built
// once by the aggregator and never mutated afterwards; a retry produces a new
// record from a fresh envelope list.
type AggregatedRecord struct {
	MerchantName    *string    `json:"merchant_name"`
	TransactionDate *string    `json:"transaction_date"`
	TransactionTime *string    `json:"transaction_time"`
	TotalAmount     *float64   `json:"total_amount"`
	Currency        *string    `json:"currency"`
	Items           []LineItem `json:"items"`

	// Attribution metadata. FieldSources only lists fields that resolved to
	// a non-null value; ItemSources parallels Items index-for-index.
	FieldSources map[string]string `json:"field_sources"`
	ItemSources  []ItemAttribution `json:"item_sources"`
	SourcesUsed  []string          `json:"sources_used"`
	BestSource   string            `json:"best_source"`

	// Score components of the best envelope, carried for observability.
	ConfidenceScore   float64            `json:"confidence_score"`
	CompletenessScore float64            `json:"completeness_score"`
	AggregationScore  float64            `json:"aggregation_score"`
	SourceScores      map[string]float64 `json:"source_scores"`
}

// FieldValue returns the record's resolved value for a recognized field key,
// or (nil, false) when the field did not resolve.
func (r *AggregatedRecord) FieldValue(key string) (any, bool) {
	switch key {
	case FieldMerchantName:
		if r.MerchantName != nil {
			return *r.MerchantName, true
		}
	case FieldTransactionDate:
		if r.TransactionDate != nil {
			return *r.TransactionDate, true
		}
	case FieldTransactionTime:
		if r.TransactionTime != nil {
			return *r.TransactionTime, true
		}
	case FieldTotalAmount:
		if r.TotalAmount != nil {
			return *r.TotalAmount, true
		}
	case FieldCurrency:
		if r.Currency != nil {
			return *r.Currency, true
		}
	}
	return nil, false
}
