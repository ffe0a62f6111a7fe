package orchestrator

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/citation"
)

// Scoring weights. Exact citation match dominates court match, which
// dominates keyword overlap; recency only breaks ties in the sort chain.
const (
	scoreExactCitation = 100.0
	scoreCourtMatch    = 25.0
	scorePerKeyword    = 5.0
)

// dedupe collapses candidates sharing a normalized canonical citation.
// When the same decision appears from several sources, the official copy
// wins; among equals the first occurrence wins. Running dedupe on an
// already-deduplicated list is a no-op.
func dedupe(records []caselaw.CaseRecord, isOfficial func(sourceID string) bool) []caselaw.CaseRecord {
	out := make([]caselaw.CaseRecord, 0, len(records))
	index := make(map[string]int, len(records))

	for _, rec := range records {
		key := citation.Normalize(rec.Citation)
		if key == "" {
			continue
		}
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}
		if !isOfficial(out[at].SourceID) && isOfficial(rec.SourceID) {
			out[at] = rec
		}
	}
	return out
}

// score assigns relevance scores for the query in place.
func score(records []caselaw.CaseRecord, queryText, targetCourt string, tokens []string) {
	target := strings.ToUpper(strings.TrimSpace(targetCourt))
	for i := range records {
		var s float64
		if citation.ContainedIn(records[i].Citation, queryText) {
			s += scoreExactCitation
		}
		if target != "" && strings.ToUpper(records[i].Court) == target {
			s += scoreCourtMatch
		}
		title := strings.ToLower(records[i].Title)
		for _, tok := range tokens {
			if strings.Contains(title, tok) {
				s += scorePerKeyword
			}
		}
		records[i].Score = s
	}
}

// sortRanked orders records by score descending with a fully
// deterministic tie-break chain: newer decisions first, then canonical
// citation ascending. Identical inputs always produce identical output
// order regardless of source completion order.
func sortRanked(records []caselaw.CaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		if !records[i].DecisionDate.Equal(records[j].DecisionDate) {
			return records[i].DecisionDate.After(records[j].DecisionDate)
		}
		return citation.Normalize(records[i].Citation) < citation.Normalize(records[j].Citation)
	})
}
