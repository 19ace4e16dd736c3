package aggregate

// ResolveField picks the value for one recognized field across the ranked
// envelope list: the first non-null value in descending score order wins.
// Lower-ranked envelopes are consulted only to fill gaps the top envelope
// left. Once a higher-ranked source has supplied a value, nothing overrides
// it, even a source reporting higher confidence for that one field.
// Returns (nil, "") when every envelope is null for the field.
func ResolveField(ranked []ScoredEnvelope, key string) (any, string) {
	for _, se := range ranked {
		if v, ok := se.Envelope.FieldValue(key); ok {
			return v, se.SourceID
		}
	}
	return nil, ""
}
