// Package fetcher loads source result envelopes from the places adapters
// leave them: per-source JSON files in a document directory, or a posted
// JSON array. Decoding is fail-soft: a malformed value from one source is
// coerced or dropped, never allowed to abort the document.
package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

// rawEnvelope mirrors ResultEnvelope with loosely typed numerics so adapter
// output with stringly amounts ("$40.92", "3,49") still decodes.
type rawEnvelope struct {
	SourceID        string         `json:"source_id"`
	Source          string         `json:"source"` // legacy adapter key
	MerchantName    *string        `json:"merchant_name"`
	TransactionDate *string        `json:"transaction_date"`
	TransactionTime *string        `json:"transaction_time"`
	TotalAmount     any            `json:"total_amount"`
	Currency        *string        `json:"currency"`
	Items           []rawItem      `json:"items"`
	Confidence      any            `json:"confidence"`
	ConfidenceScore any            `json:"confidence_score"` // legacy adapter key
	Extra           map[string]any `json:"extra"`
}

type rawItem struct {
	Description string `json:"description"`
	UnitPrice   any    `json:"unit_price"`
	Price       any    `json:"price"` // legacy adapter key
	Quantity    any    `json:"quantity"`
}

// ParseAmount extracts a numeric value from loosely formatted text, handling
// currency symbols and comma decimal separators. Returns nil when the text
// holds no number.
func ParseAmount(text string) *float64 {
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "").Replace(text)
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

// coerceFloat converts any JSON value to a float pointer, nil when it cannot.
func coerceFloat(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		return ParseAmount(n)
	default:
		return nil
	}
}

func (r rawEnvelope) toEnvelope() model.ResultEnvelope {
	e := model.ResultEnvelope{
		SourceID:        r.SourceID,
		MerchantName:    r.MerchantName,
		TransactionDate: r.TransactionDate,
		TransactionTime: r.TransactionTime,
		TotalAmount:     coerceFloat(r.TotalAmount),
		Currency:        r.Currency,
		Extra:           r.Extra,
	}
	if e.SourceID == "" {
		e.SourceID = r.Source
	}

	conf := coerceFloat(r.Confidence)
	if conf == nil {
		conf = coerceFloat(r.ConfidenceScore)
	}
	if conf != nil {
		e.Confidence = *conf
	}

	for _, ri := range r.Items {
		item := model.LineItem{Description: strings.TrimSpace(ri.Description)}
		item.UnitPrice = coerceFloat(ri.UnitPrice)
		if item.UnitPrice == nil {
			item.UnitPrice = coerceFloat(ri.Price)
		}
		if q := coerceFloat(ri.Quantity); q != nil {
			item.Quantity = *q
		}
		e.Items = append(e.Items, item)
	}

	e.Normalize()
	return e
}

// LoadEnvelopeFile reads one source's envelope from a JSON file.
func LoadEnvelopeFile(path string) (*model.ResultEnvelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open envelope %s", path)
	}
	defer f.Close() //nolint:errcheck

	var raw rawEnvelope
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, eris.Wrapf(err, "fetcher: envelope %s", path)
	}

	env := raw.toEnvelope()
	if env.SourceID == "" {
		return nil, eris.Errorf("fetcher: envelope %s has no source_id", path)
	}
	return &env, nil
}

// LoadDocumentDir reads all *.json envelope files in a document directory,
// sorted by filename for deterministic ordering. Files that fail to decode
// are logged and skipped: one broken source must not sink the document.
func LoadDocumentDir(dir string) ([]model.ResultEnvelope, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read document dir %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var envelopes []model.ResultEnvelope
	for _, name := range names {
		env, err := LoadEnvelopeFile(filepath.Join(dir, name))
		if err != nil {
			zap.L().Warn("fetcher: skipping unreadable envelope",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}
		envelopes = append(envelopes, *env)
	}

	return envelopes, nil
}

// ReadEnvelopes decodes a JSON array of envelopes element by element, so a
// large posted batch never needs to sit in memory twice. The same fail-soft
// coercion as the file loader applies; envelopes without a source_id are
// dropped.
func ReadEnvelopes(ctx context.Context, r io.Reader) ([]model.ResultEnvelope, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read envelope array")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("fetcher: expected envelope array, got %v", tok)
	}

	var envelopes []model.ResultEnvelope
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "fetcher: read envelopes")
		}

		var raw rawEnvelope
		if err := decoder.Decode(&raw); err != nil {
			return nil, eris.Wrap(err, "fetcher: decode envelope")
		}

		env := raw.toEnvelope()
		if env.SourceID == "" {
			zap.L().Warn("fetcher: dropping envelope without source_id")
			continue
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, nil
}

// SafeFilename converts a document identifier to a filesystem-safe name.
func SafeFilename(value string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_", ".", "_").Replace(value)
}
