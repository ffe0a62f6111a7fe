// Package feedcache caches official court decision feeds.
//
// Each registry source maps to one cache entry holding the parsed records
// from its decision feed. Reads are served from cache inside the fresh
// window, served stale-while-revalidate inside the stale window (with a
// single-flight background refresh), and refetched synchronously past the
// stale ceiling. A permanently failing source degrades to last known good
// rather than failing callers.
package feedcache

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

// citationPattern matches a neutral citation: year, court code, number
// ("2024 FC 123", "2023 SCC 5").
var citationPattern = regexp.MustCompile(`^\d{4}\s+[A-Za-z]+\s+\d+$`)

// atomFeed is the subset of Atom/RSS decision feeds we consume.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string     `xml:"title"`
	Updated string     `xml:"updated"`
	Links   []atomLink `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
	Href string `xml:"href,attr"`
}

// jsonFeed is the JSON decision listing format (used by the IRB feed).
type jsonFeed struct {
	Decisions []jsonDecision `json:"decisions"`
}

type jsonDecision struct {
	Citation    string `json:"citation"`
	Title       string `json:"title"`
	Court       string `json:"court"`
	Date        string `json:"date"`
	URL         string `json:"url"`
	DocumentURL string `json:"document_url"`
}

// Parse converts a raw feed payload into case records for src. Records
// missing a citation or title are dropped, never padded: a CaseRecord
// field always traces to the upstream payload.
func Parse(src registry.Source, payload []byte) ([]caselaw.CaseRecord, error) {
	switch src.FeedFormat {
	case "json":
		return parseJSON(src, payload)
	default:
		return parseAtom(src, payload)
	}
}

func parseAtom(src registry.Source, payload []byte) ([]caselaw.CaseRecord, error) {
	var feed atomFeed
	if err := xml.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("malformed atom feed: %w", err)
	}

	records := make([]caselaw.CaseRecord, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title, cite := splitTitleCitation(entry.Title)
		if title == "" || cite == "" {
			continue
		}

		rec := caselaw.CaseRecord{
			Citation: cite,
			Title:    title,
			Court:    courtFromCitation(cite),
			SourceID: src.ID,
		}
		if t, err := parseFeedTime(entry.Updated); err == nil {
			rec.DecisionDate = t
		}
		for _, link := range entry.Links {
			switch {
			case link.Rel == "" || link.Rel == "alternate":
				if rec.URL == "" {
					rec.URL = link.Href
				}
			case link.Rel == "enclosure":
				rec.DocumentURL = link.Href
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseJSON(src registry.Source, payload []byte) ([]caselaw.CaseRecord, error) {
	var feed jsonFeed
	if err := json.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("malformed json feed: %w", err)
	}

	records := make([]caselaw.CaseRecord, 0, len(feed.Decisions))
	for _, d := range feed.Decisions {
		if d.Citation == "" || d.Title == "" {
			continue
		}
		rec := caselaw.CaseRecord{
			Citation:    d.Citation,
			Title:       d.Title,
			Court:       d.Court,
			URL:         d.URL,
			DocumentURL: d.DocumentURL,
			SourceID:    src.ID,
		}
		if rec.Court == "" {
			rec.Court = courtFromCitation(d.Citation)
		}
		if t, err := parseFeedTime(d.Date); err == nil {
			rec.DecisionDate = t
		}
		records = append(records, rec)
	}
	return records, nil
}

// splitTitleCitation splits an Atom entry title of the form
// "Style of Cause, 2024 FC 123" into its parts. Returns empty strings
// when no trailing neutral citation is present.
func splitTitleCitation(full string) (title, cite string) {
	idx := strings.LastIndex(full, ",")
	if idx < 0 {
		return "", ""
	}
	title = strings.TrimSpace(full[:idx])
	cite = strings.TrimSpace(full[idx+1:])
	if title == "" || !citationPattern.MatchString(cite) {
		return "", ""
	}
	return title, cite
}

// courtFromCitation extracts the court code from a neutral citation
// ("2024 FC 123" -> "FC").
func courtFromCitation(cite string) string {
	parts := strings.Fields(cite)
	if len(parts) == 3 {
		return strings.ToUpper(parts[1])
	}
	return ""
}

// parseFeedTime accepts RFC3339 timestamps and bare dates.
func parseFeedTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
