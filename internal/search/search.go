// Package search finds sections and comments of the brief by text.
package search

import "syncbrief/api/internal/brief"

type ResultType string

const (
	ResultSection ResultType = "section"
	ResultComment ResultType = "comment"
)

type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	SectionID string     `json:"sectionId"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
}

type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Entry is the indexed form of one section or comment.
type Entry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	RefID     string `json:"refId"`
	SectionID string `json:"sectionId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

// Entries flattens a brief into index entries. Entry ids are prefixed by
// type because section and comment ids share one index.
func Entries(doc brief.Document) []Entry {
	sectionTitles := make(map[string]string, len(doc.Sections))
	entries := make([]Entry, 0, len(doc.Sections)+len(doc.Comments))
	for _, section := range doc.Sections {
		sectionTitles[section.ID] = section.Title
		entry := Entry{
			ID:        entryID(ResultSection, section.ID),
			Type:      string(ResultSection),
			RefID:     section.ID,
			SectionID: section.ID,
			Title:     section.Title,
			Body:      joinNonBlank(section.Description, section.Content),
			Timestamp: section.LastEditedAt,
		}
		if section.LastEditedBy != nil {
			entry.Author = section.LastEditedBy.Name
		}
		entries = append(entries, entry)
	}
	for _, comment := range doc.Comments {
		entries = append(entries, Entry{
			ID:        entryID(ResultComment, comment.ID),
			Type:      string(ResultComment),
			RefID:     comment.ID,
			SectionID: comment.SectionID,
			Title:     sectionTitles[comment.SectionID],
			Body:      comment.Text,
			Author:    comment.UserName,
			Timestamp: comment.Timestamp,
		})
	}
	return entries
}

// entryID maps to Meilisearch's primary key alphabet (alphanumerics, - and _).
func entryID(kind ResultType, id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(kind) + "-" + string(out)
}

func joinNonBlank(parts ...string) string {
	out := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += part
	}
	return out
}
