package interp

import "github.com/lithammer/fuzzysearch/fuzzy"

// findClosestMatch ranks candidates against target and returns the
// closest fold-insensitive match, or "" when none rank at all. Grounded
// on the teacher's runtime/planner.findClosestMatch, generalized from
// decorator-name suggestions to CALL/SIGNAL label and function-name
// suggestions.
func findClosestMatch(target string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		return ""
	}
	return ranks[0].Target
}

// withSuggestion appends a "did you mean %q?" hint to message when
// findClosestMatch finds a candidate, per SPEC_FULL.md §4.4.
func withSuggestion(message, target string, candidates []string) string {
	if match := findClosestMatch(target, candidates); match != "" {
		return message + ` (did you mean "` + match + `"?)`
	}
	return message
}
