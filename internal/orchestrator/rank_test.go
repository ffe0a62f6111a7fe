package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
)

func officialSet(ids ...string) func(string) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

func TestDedupeCollapsesByCitation(t *testing.T) {
	records := []caselaw.CaseRecord{
		{Citation: "2024 FC 123", Title: "Singh v. Canada", SourceID: "fc"},
		{Citation: "2024 f.c. 123", Title: "Singh v. Canada", SourceID: "canlii"},
		{Citation: "2024 FC 200", Title: "Ahmed v. Canada", SourceID: "fc"},
	}

	out := dedupe(records, officialSet("fc"))
	require.Len(t, out, 2)
	assert.Equal(t, "fc", out[0].SourceID)
	assert.Equal(t, "2024 FC 200", out[1].Citation)
}

func TestDedupeOfficialReplacesUnofficial(t *testing.T) {
	records := []caselaw.CaseRecord{
		{Citation: "2019 SCC 65", Title: "Vavilov", SourceID: "canlii"},
		{Citation: "2019 scc 65", Title: "Vavilov", SourceID: "scc"},
	}

	out := dedupe(records, officialSet("scc"))
	require.Len(t, out, 1)
	assert.Equal(t, "scc", out[0].SourceID, "the official copy wins regardless of arrival order")
}

func TestDedupeFirstOccurrenceWinsAmongEquals(t *testing.T) {
	records := []caselaw.CaseRecord{
		{Citation: "2024 FC 123", Title: "From FC feed", SourceID: "fc"},
		{Citation: "2024 FC 123", Title: "From FCA feed", SourceID: "fca"},
	}

	out := dedupe(records, officialSet("fc", "fca"))
	require.Len(t, out, 1)
	assert.Equal(t, "From FC feed", out[0].Title)
}

func TestDedupeIdempotent(t *testing.T) {
	records := []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc"},
		{Citation: "2024 FC 123", SourceID: "canlii"},
		{Citation: "2024 FC 200", SourceID: "fc"},
	}
	isOfficial := officialSet("fc")

	once := dedupe(records, isOfficial)
	twice := dedupe(once, isOfficial)
	assert.Equal(t, once, twice)
}

func TestDedupeDropsEmptyCitations(t *testing.T) {
	out := dedupe([]caselaw.CaseRecord{{Citation: "", Title: "no citation"}}, officialSet())
	assert.Empty(t, out)
}

func TestScoreWeights(t *testing.T) {
	records := []caselaw.CaseRecord{
		{Citation: "2024 FC 123", Title: "Singh v. Canada", Court: "FC"},
		{Citation: "2024 FCA 50", Title: "Ahmed appeal ruling", Court: "FCA"},
	}

	score(records, "what happened in 2024 FC 123 singh", "FC", []string{"2024", "fc", "123", "singh"})

	// First record: exact citation (100) + court (25) + keyword hits.
	assert.Greater(t, records[0].Score, 125.0)
	// Second record: no citation match, no court match, no title overlap
	// beyond incidental tokens.
	assert.Less(t, records[1].Score, 25.0)
}

func TestSortRankedDeterministic(t *testing.T) {
	newer := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []caselaw.CaseRecord{
		{Citation: "2023 FC 10", Score: 5, DecisionDate: older},
		{Citation: "2024 FC 30", Score: 5, DecisionDate: newer},
		{Citation: "2024 FC 20", Score: 5, DecisionDate: newer},
		{Citation: "2024 FC 1", Score: 105, DecisionDate: older},
	}

	sortRanked(records)

	got := make([]string, 0, len(records))
	for _, r := range records {
		got = append(got, r.Citation)
	}
	// Score first, then newer decisions, then citation as the final
	// tie-break.
	assert.Equal(t, []string{"2024 FC 1", "2024 FC 20", "2024 FC 30", "2023 FC 10"}, got)
}
