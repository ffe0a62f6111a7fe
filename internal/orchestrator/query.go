package orchestrator

import "strings"

// stopwords are query tokens that carry no retrieval signal on their own.
// Both official languages appear here because queries arrive in either.
var stopwords = map[string]struct{}{
	// English
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "c": {}, "case": {}, "cases": {}, "for": {}, "from": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "re": {},
	"the": {}, "to": {}, "v": {}, "vs": {}, "was": {}, "were": {},
	"with": {},
	// French
	"au": {}, "aux": {}, "de": {}, "des": {}, "du": {}, "en": {},
	"et": {}, "la": {}, "le": {}, "les": {}, "ou": {}, "un": {},
	"une": {},
}

// tokenize splits text into lowercase alphanumeric tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// meaningfulTokens returns the non-stopword tokens of a query. The
// specificity gate rejects queries whose meaningful token count is below
// the configured minimum before any source is consulted, so pure noise
// ("the", "a case") never produces unranked latest-decision false
// positives.
func meaningfulTokens(text string) []string {
	tokens := tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}
