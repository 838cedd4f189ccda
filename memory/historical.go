package memory

import "strings"

// historicalKeywords are phrases that suggest the user is asking about
// their past rather than their current state.
var historicalKeywords = []string{
	"before", "previously", "used to", "old", "past", "prior", "earlier",
	"last time", "back then", "formerly", "previous", "history", "what was",
	"where did i", "who did i", "when did i", "what did i",
}

// IsHistoricalQuery reports whether the message looks like a question about
// the user's past, in which case retrieval should include superseded
// memories. This is a lexical heuristic, not a classifier: a historical
// question phrased without any trigger phrase silently falls back to
// current-only retrieval.
func IsHistoricalQuery(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range historicalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
