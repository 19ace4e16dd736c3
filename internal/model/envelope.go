package model

// Recognized receipt field keys. Every extraction source reports values for
// some subset of these; anything else a source returns goes into Extra.
const (
	FieldMerchantName    = "merchant_name"
	FieldTransactionDate = "transaction_date"
	FieldTransactionTime = "transaction_time"
	FieldTotalAmount     = "total_amount"
	FieldCurrency        = "currency"
)

// RecognizedFields lists the recognized field keys in their canonical order.
// The aggregator resolves fields in this order so output is deterministic.
func RecognizedFields() []string {
	return []string{
		FieldMerchantName,
		FieldTransactionDate,
		FieldTransactionTime,
		FieldTotalAmount,
		FieldCurrency,
	}
}

// LineItem is a single purchased item on a receipt.
type LineItem struct {
	Description string   `json:"description"`
	UnitPrice   *float64 `json:"unit_price"` // nil when the source could not read a price
	Quantity    float64  `json:"quantity"`
}

// ResultEnvelope is the normalized extraction result one source produced for
// one document. Envelopes are immutable inputs to the aggregation engine; a
// source that errored or timed out simply has no envelope.
type ResultEnvelope struct {
	SourceID        string         `json:"source_id"`
	MerchantName    *string        `json:"merchant_name"`
	TransactionDate *string        `json:"transaction_date"`
	TransactionTime *string        `json:"transaction_time"`
	TotalAmount     *float64       `json:"total_amount"`
	Currency        *string        `json:"currency"`
	Items           []LineItem     `json:"items"`
	Confidence      float64        `json:"confidence"`
	Extra           map[string]any `json:"extra,omitempty"` // unrecognized source fields, carried but never aggregated
}

// FieldValue returns the envelope's value for a recognized field key, or
// (nil, false) when the field is absent. Unknown keys are always absent.
func (e *ResultEnvelope) FieldValue(key string) (any, bool) {
	switch key {
	case FieldMerchantName:
		if e.MerchantName != nil && *e.MerchantName != "" {
			return *e.MerchantName, true
		}
	case FieldTransactionDate:
		if e.TransactionDate != nil && *e.TransactionDate != "" {
			return *e.TransactionDate, true
		}
	case FieldTransactionTime:
		if e.TransactionTime != nil && *e.TransactionTime != "" {
			return *e.TransactionTime, true
		}
	case FieldTotalAmount:
		if e.TotalAmount != nil {
			return *e.TotalAmount, true
		}
	case FieldCurrency:
		if e.Currency != nil && *e.Currency != "" {
			return *e.Currency, true
		}
	}
	return nil, false
}

// Normalize coerces an envelope into the shape the engine expects: confidence
// clamped to [0,1] and item quantities defaulted to 1. Malformed input is
// corrected rather than rejected so one bad source cannot abort aggregation.
func (e *ResultEnvelope) Normalize() {
	if e.Confidence < 0 {
		e.Confidence = 0
	}
	if e.Confidence > 1 {
		e.Confidence = 1
	}
	for i := range e.Items {
		if e.Items[i].Quantity <= 0 {
			e.Items[i].Quantity = 1
		}
	}
}
