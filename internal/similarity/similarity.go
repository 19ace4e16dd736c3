// Package similarity provides pluggable string matchers for line-item
// deduplication. A Matcher scores two descriptions in [0,1]; the merge
// threshold is configuration, not code, so matching strategies can be
// swapped without touching the merge algorithm.
package similarity

import (
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// Matcher scores the similarity of two item descriptions.
// Implementations must be pure and symmetric: Score(a, b) == Score(b, a).
type Matcher interface {
	Name() string
	Score(a, b string) float64
}

// Normalize folds a description to its comparison form: NFKC-normalized,
// lowercased, with surrounding and repeated whitespace collapsed.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// Exact matches descriptions that are identical after normalization.
// This is the minimum dedup bar: "Milk" and "milk" merge, "Milk 1L" does not.
type Exact struct{}

func (Exact) Name() string { return "exact" }

func (Exact) Score(a, b string) float64 {
	if Normalize(a) == Normalize(b) {
		return 1.0
	}
	return 0.0
}

// Levenshtein scores descriptions by normalized edit distance, tolerating
// OCR-level noise ("Whole Mllk" vs "Whole Milk").
type Levenshtein struct{}

func (Levenshtein) Name() string { return "levenshtein" }

func (Levenshtein) Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		if na == nb {
			return 1.0
		}
		return 0.0
	}
	return levenshtein.Similarity(na, nb, levenshtein.NewParams())
}

// ForAlgorithm returns the matcher registered under the given name.
func ForAlgorithm(name string) (Matcher, error) {
	switch name {
	case "", "exact":
		return Exact{}, nil
	case "levenshtein":
		return Levenshtein{}, nil
	default:
		return nil, eris.Errorf("similarity: unknown algorithm %q", name)
	}
}
