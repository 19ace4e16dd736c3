package aggregate

import (
	"sort"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

// CompletenessCredits holds the per-field credit each populated slot adds to
// an envelope's completeness score. The totals credit outweighs the rest
// because an extraction without an amount is of little use downstream.
type CompletenessCredits struct {
	MerchantName    float64 `yaml:"merchant_name"`
	TransactionDate float64 `yaml:"transaction_date"`
	TransactionTime float64 `yaml:"transaction_time"`
	TotalAmount     float64 `yaml:"total_amount"`
	Currency        float64 `yaml:"currency"`
	ItemUnit        float64 `yaml:"item_unit"` // credit per line item
	ItemCap         float64 `yaml:"item_cap"`  // ceiling on total item credit
}

// ScoringConfig holds the scoring constants. It is injected into the scorer
// rather than hardcoded so tests can vary weighting without touching engine
// code. Instances are treated as immutable once constructed.
type ScoringConfig struct {
	CompletenessWeight float64             `yaml:"completeness_weight"`
	ConfidenceWeight   float64             `yaml:"confidence_weight"`
	PriorityStep       float64             `yaml:"priority_step"`
	Credits            CompletenessCredits `yaml:"credits"`
	// Priorities is a fixed ranking over source IDs used only to break
	// exact completeness/confidence ties. Unknown sources rank 0.
	Priorities map[string]int `yaml:"priorities"`
}

// DefaultScoringConfig returns the production scoring constants: completeness
// weighted over confidence (an empty-but-confident extraction is less useful
// than a partial one) and structured extraction preferred on exact ties.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		CompletenessWeight: 0.7,
		ConfidenceWeight:   0.3,
		PriorityStep:       0.01,
		Credits: CompletenessCredits{
			MerchantName:    2.0,
			TransactionDate: 2.0,
			TransactionTime: 1.0,
			TotalAmount:     3.0,
			Currency:        1.0,
			ItemUnit:        0.5,
			ItemCap:         5.0,
		},
		Priorities: map[string]int{
			"document_intelligence": 3,
			"mistral":               2,
			"direct_extraction":     1,
		},
	}
}

// ScoredEnvelope pairs an envelope with its score breakdown.
type ScoredEnvelope struct {
	Envelope     *model.ResultEnvelope `json:"-"`
	SourceID     string                `json:"source"`
	Score        float64               `json:"final_score"`
	Completeness float64               `json:"completeness_score"`
	Confidence   float64               `json:"confidence_score"`
}

// Completeness computes an envelope's completeness score: the sum of credits
// for populated fields divided by the count of populated field slots. The
// result is deliberately not normalized to [0,1]: a total-only envelope
// scores 3.0, and downstream reports depend on this scale.
func (c ScoringConfig) Completeness(e *model.ResultEnvelope) float64 {
	var credits float64
	var slots int

	if _, ok := e.FieldValue(model.FieldMerchantName); ok {
		credits += c.Credits.MerchantName
		slots++
	}
	if _, ok := e.FieldValue(model.FieldTransactionDate); ok {
		credits += c.Credits.TransactionDate
		slots++
	}
	if _, ok := e.FieldValue(model.FieldTotalAmount); ok {
		credits += c.Credits.TotalAmount
		slots++
	}
	if _, ok := e.FieldValue(model.FieldCurrency); ok {
		credits += c.Credits.Currency
		slots++
	}
	if len(e.Items) > 0 {
		itemCredit := float64(len(e.Items)) * c.Credits.ItemUnit
		if itemCredit > c.Credits.ItemCap {
			itemCredit = c.Credits.ItemCap
		}
		credits += itemCredit
		slots++
	}
	if _, ok := e.FieldValue(model.FieldTransactionTime); ok {
		credits += c.Credits.TransactionTime
		slots++
	}

	if slots == 0 {
		return 0.0
	}
	return credits / float64(slots)
}

// Score computes the single comparable score for one envelope. It is a pure
// function with no failure modes: malformed input scores as if absent.
func (c ScoringConfig) Score(e *model.ResultEnvelope) ScoredEnvelope {
	completeness := c.Completeness(e)

	confidence := e.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	score := completeness*c.CompletenessWeight + confidence*c.ConfidenceWeight
	score += float64(c.Priorities[e.SourceID]) * c.PriorityStep

	return ScoredEnvelope{
		Envelope:     e,
		SourceID:     e.SourceID,
		Score:        score,
		Completeness: completeness,
		Confidence:   confidence,
	}
}

// Rank scores every envelope and sorts descending. The order is total and
// deterministic: score, then source priority, then source ID.
func (c ScoringConfig) Rank(envelopes []model.ResultEnvelope) []ScoredEnvelope {
	scored := make([]ScoredEnvelope, 0, len(envelopes))
	for i := range envelopes {
		scored = append(scored, c.Score(&envelopes[i]))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		pi, pj := c.Priorities[scored[i].SourceID], c.Priorities[scored[j].SourceID]
		if pi != pj {
			return pi > pj
		}
		return scored[i].SourceID < scored[j].SourceID
	})

	return scored
}
