package search

import (
	"strings"
	"unicode/utf8"
)

const snippetRadius = 60

// Local scans entries in memory. It serves every query when Meilisearch is
// not configured or unreachable.
type Local struct{}

func (Local) Search(entries []Entry, q Query) []Result {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return []Result{}
	}
	results := make([]Result, 0)
	for _, entry := range entries {
		if q.FilterType != "" && string(q.FilterType) != entry.Type {
			continue
		}
		haystack := strings.ToLower(entry.Title + "\n" + entry.Body + "\n" + entry.Author)
		matched := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		results = append(results, Result{
			Type:      ResultType(entry.Type),
			ID:        entry.RefID,
			SectionID: entry.SectionID,
			Title:     entry.Title,
			Snippet:   snippet(entry.Body, terms[0]),
		})
	}
	return results
}

// snippet cuts body around the first occurrence of term.
func snippet(body, term string) string {
	index := strings.Index(strings.ToLower(body), term)
	if index < 0 {
		index = 0
	}
	start := index - snippetRadius
	if start < 0 {
		start = 0
	}
	end := index + len(term) + snippetRadius
	if end > len(body) {
		end = len(body)
	}
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}
	out := strings.TrimSpace(body[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(body) {
		out += "…"
	}
	return out
}
