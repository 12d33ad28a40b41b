package brief

import (
	"encoding/json"
	"fmt"

	"syncbrief/api/internal/identity"
)

type Status string

const (
	StatusDraft Status = "draft"
	// StatusReview is accepted in stored records but nothing moves a brief into it.
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
)

const DefaultTitle = "Q3 Mobile App Redesign"

type Section struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Content      string             `json:"content"`
	IsLocked     bool               `json:"isLocked"`
	LastEditedBy *identity.Identity `json:"lastEditedBy"`
	LastEditedAt int64              `json:"lastEditedAt"`
}

// Comment carries a copy of the author's display fields taken when it was posted.
type Comment struct {
	ID         string `json:"id"`
	SectionID  string `json:"sectionId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Document is the whole brief. Timestamps are Unix milliseconds.
type Document struct {
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Sections  []Section `json:"sections"`
	Comments  []Comment `json:"comments"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Seed is the brief used when nothing has been stored yet.
func Seed(now int64) Document {
	return Document{
		Title:  DefaultTitle,
		Status: StatusDraft,
		Sections: []Section{
			{
				ID:           "s1",
				Title:        "Problem Statement",
				Description:  "What user problem are we trying to solve?",
				LastEditedAt: now,
			},
			{
				ID:           "s2",
				Title:        "Target Audience",
				Description:  "Who are the primary users for this feature?",
				LastEditedAt: now,
			},
		},
		Comments:  []Comment{},
		UpdatedAt: now,
	}
}

// Clone returns a deep copy with non-nil section and comment slices.
func Clone(doc Document) Document {
	out := doc
	out.Sections = make([]Section, len(doc.Sections))
	for i, section := range doc.Sections {
		out.Sections[i] = cloneSection(section)
	}
	out.Comments = make([]Comment, len(doc.Comments))
	copy(out.Comments, doc.Comments)
	return out
}

func cloneSection(section Section) Section {
	if section.LastEditedBy != nil {
		editor := *section.LastEditedBy
		section.LastEditedBy = &editor
	}
	return section
}

func (d Document) Section(id string) (Section, bool) {
	for _, section := range d.Sections {
		if section.ID == id {
			return cloneSection(section), true
		}
	}
	return Section{}, false
}

func Encode(doc Document) ([]byte, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode brief: %w", err)
	}
	return payload, nil
}

func Decode(payload []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("decode brief: %w", err)
	}
	switch doc.Status {
	case StatusDraft, StatusReview, StatusApproved:
	case "":
		doc.Status = StatusDraft
	default:
		return Document{}, fmt.Errorf("decode brief: unknown status %q", doc.Status)
	}
	return Clone(doc), nil
}
