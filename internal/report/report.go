// Package report renders human-readable markdown summaries of aggregation
// output. Reports consume the aggregated record and score breakdown only;
// they never re-run any aggregation logic.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/aggregate"
	"github.com/blazekids4/mistral-doc-ai-niq-receipts/internal/model"
)

// FormatRecord generates a markdown summary of one aggregated receipt for
// human review: resolved fields with their sources, merged items, and the
// per-source score breakdown.
func FormatRecord(documentID string, rec *model.AggregatedRecord, scored []aggregate.ScoredEnvelope) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Receipt Summary: %s\n\n", documentID)
	fmt.Fprintf(&b, "**Merchant:** %s _(source: %s)_\n\n",
		strOr(rec.MerchantName, "Unknown"), sourceOr(rec, model.FieldMerchantName))
	fmt.Fprintf(&b, "**Date:** %s _(source: %s)_\n\n",
		strOr(rec.TransactionDate, "Unknown"), sourceOr(rec, model.FieldTransactionDate))
	fmt.Fprintf(&b, "**Time:** %s _(source: %s)_\n\n",
		strOr(rec.TransactionTime, "Not available"), sourceOr(rec, model.FieldTransactionTime))
	fmt.Fprintf(&b, "**Total:** %s %s _(source: %s)_\n\n",
		amountOr(rec.TotalAmount), strOr(rec.Currency, "USD"), sourceOr(rec, model.FieldTotalAmount))

	b.WriteString("## Items\n\n")
	if len(rec.Items) == 0 {
		b.WriteString("No items extracted\n")
	} else {
		for i, item := range rec.Items {
			source := "unknown"
			if i < len(rec.ItemSources) {
				source = rec.ItemSources[i].SourceID
			}
			fmt.Fprintf(&b, "- %s: %s (qty: %g) _[%s]_\n",
				item.Description, amountOr(item.UnitPrice), item.Quantity, source)
		}
	}

	b.WriteString("\n## Processing Details\n\n")
	fmt.Fprintf(&b, "**Sources used:** %s\n\n", strings.Join(rec.SourcesUsed, ", "))
	fmt.Fprintf(&b, "**Best source:** %s\n\n", rec.BestSource)
	fmt.Fprintf(&b, "**Confidence score:** %.2f\n\n", rec.ConfidenceScore)
	fmt.Fprintf(&b, "**Completeness score:** %.2f\n\n", rec.CompletenessScore)

	b.WriteString("## Field Attribution\n\n")
	b.WriteString("| Field | Source |\n")
	b.WriteString("|-------|--------|\n")
	for _, key := range model.RecognizedFields() {
		if source, ok := rec.FieldSources[key]; ok {
			fmt.Fprintf(&b, "| %s | %s |\n", key, source)
		}
	}

	b.WriteString("\n## Source Scores\n\n")
	for _, s := range scored {
		fmt.Fprintf(&b, "- **%s**: %.2f (completeness: %.2f, confidence: %.2f)\n",
			s.SourceID, s.Score, s.Completeness, s.Confidence)
	}

	return b.String()
}

// DocumentResult is one document's outcome within a batch run.
type DocumentResult struct {
	DocumentID string
	Record     *model.AggregatedRecord
	Err        error
	Duration   time.Duration
}

// FormatBatch generates a run-level analysis report across a batch of
// documents: throughput, field extraction rates, source attribution counts,
// and merchant/amount statistics.
func FormatBatch(runID string, results []DocumentResult, elapsed time.Duration) string {
	var b strings.Builder

	b.WriteString("# Workflow Run Analysis Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Run ID:** %s\n\n", runID)
	b.WriteString("---\n\n")

	succeeded := make([]DocumentResult, 0, len(results))
	var failed []DocumentResult
	for _, r := range results {
		if r.Err != nil || r.Record == nil {
			failed = append(failed, r)
			continue
		}
		succeeded = append(succeeded, r)
	}

	b.WriteString("## Processing Performance\n\n")
	fmt.Fprintf(&b, "- Total receipts: %d\n", len(results))
	fmt.Fprintf(&b, "- Successful: %d\n", len(succeeded))
	fmt.Fprintf(&b, "- Failed: %d\n", len(failed))
	fmt.Fprintf(&b, "- Total duration: %.2fs\n", elapsed.Seconds())
	if len(results) > 0 {
		fmt.Fprintf(&b, "- Average per receipt: %.2fs\n", elapsed.Seconds()/float64(len(results)))
	}
	b.WriteString("\n")

	if len(succeeded) == 0 {
		b.WriteString("No receipts aggregated successfully.\n")
		return b.String()
	}

	b.WriteString("## Field Extraction Rates\n\n")
	b.WriteString("| Field | Extracted | Rate |\n")
	b.WriteString("|-------|-----------|------|\n")
	for _, key := range model.RecognizedFields() {
		count := 0
		for _, r := range succeeded {
			if _, ok := r.Record.FieldSources[key]; ok {
				count++
			}
		}
		fmt.Fprintf(&b, "| %s | %d/%d | %.0f%% |\n",
			key, count, len(succeeded), 100*float64(count)/float64(len(succeeded)))
	}
	b.WriteString("\n")

	b.WriteString("## Source Attribution\n\n")
	fieldWins := map[string]int{}
	bestCounts := map[string]int{}
	for _, r := range succeeded {
		for _, source := range r.Record.FieldSources {
			fieldWins[source]++
		}
		bestCounts[r.Record.BestSource]++
	}
	for _, source := range sortedKeys(fieldWins) {
		fmt.Fprintf(&b, "- **%s**: %d field(s), best source for %d receipt(s)\n",
			source, fieldWins[source], bestCounts[source])
	}
	for _, source := range sortedKeys(bestCounts) {
		if _, ok := fieldWins[source]; !ok {
			fmt.Fprintf(&b, "- **%s**: 0 fields, best source for %d receipt(s)\n",
				source, bestCounts[source])
		}
	}
	b.WriteString("\n")

	b.WriteString("## Data Quality\n\n")
	var confidenceSum, scoreSum float64
	var itemCount int
	merchants := map[string]struct{}{}
	currencies := map[string]int{}
	var minTotal, maxTotal float64
	totals := 0
	for _, r := range succeeded {
		confidenceSum += r.Record.ConfidenceScore
		scoreSum += r.Record.AggregationScore
		itemCount += len(r.Record.Items)
		if r.Record.MerchantName != nil {
			merchants[*r.Record.MerchantName] = struct{}{}
		}
		if r.Record.Currency != nil {
			currencies[*r.Record.Currency]++
		}
		if r.Record.TotalAmount != nil {
			v := *r.Record.TotalAmount
			if totals == 0 || v < minTotal {
				minTotal = v
			}
			if totals == 0 || v > maxTotal {
				maxTotal = v
			}
			totals++
		}
	}
	n := float64(len(succeeded))
	fmt.Fprintf(&b, "- Average confidence: %.2f\n", confidenceSum/n)
	fmt.Fprintf(&b, "- Average aggregation score: %.2f\n", scoreSum/n)
	fmt.Fprintf(&b, "- Total line items: %d (%.1f per receipt)\n", itemCount, float64(itemCount)/n)
	fmt.Fprintf(&b, "- Unique merchants: %d\n", len(merchants))
	if totals > 0 {
		fmt.Fprintf(&b, "- Transaction amounts: %.2f to %.2f\n", minTotal, maxTotal)
	}
	for _, cur := range sortedKeys(currencies) {
		fmt.Fprintf(&b, "- Currency %s: %d receipt(s)\n", cur, currencies[cur])
	}

	if len(failed) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, r := range failed {
			reason := "no record produced"
			if r.Err != nil {
				reason = r.Err.Error()
			}
			fmt.Fprintf(&b, "- %s: %s\n", r.DocumentID, reason)
		}
	}

	return b.String()
}

func strOr(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}

func amountOr(v *float64) string {
	if v == nil {
		return "Unknown price"
	}
	return fmt.Sprintf("%.2f", *v)
}

func sourceOr(rec *model.AggregatedRecord, key string) string {
	if source, ok := rec.FieldSources[key]; ok {
		return source
	}
	return "none"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
