package brief

import (
	"sort"
	"strings"

	"syncbrief/api/internal/identity"
)

// SectionPatch lists the fields to overwrite on a section. Nil fields are left alone.
type SectionPatch struct {
	Title        *string
	Description  *string
	Content      *string
	IsLocked     *bool
	LastEditedBy *identity.Identity
	LastEditedAt *int64
}

func (p SectionPatch) apply(section Section) Section {
	if p.Title != nil {
		section.Title = *p.Title
	}
	if p.Description != nil {
		section.Description = *p.Description
	}
	if p.Content != nil {
		section.Content = *p.Content
	}
	if p.IsLocked != nil {
		section.IsLocked = *p.IsLocked
	}
	if p.LastEditedBy != nil {
		editor := *p.LastEditedBy
		section.LastEditedBy = &editor
	}
	if p.LastEditedAt != nil {
		section.LastEditedAt = *p.LastEditedAt
	}
	return section
}

// SetSectionFields merges patch into the section with the given id. An
// unknown id changes nothing except updatedAt.
func SetSectionFields(doc Document, sectionID string, patch SectionPatch, now int64) Document {
	out := Clone(doc)
	for i, section := range out.Sections {
		if section.ID == sectionID {
			out.Sections[i] = patch.apply(section)
		}
	}
	out.UpdatedAt = now
	return out
}

// AddSection appends without checking for duplicate ids.
func AddSection(doc Document, section Section, now int64) Document {
	return AddSections(doc, []Section{section}, now)
}

func AddSections(doc Document, sections []Section, now int64) Document {
	out := Clone(doc)
	for _, section := range sections {
		out.Sections = append(out.Sections, cloneSection(section))
	}
	out.UpdatedAt = now
	return out
}

// ToggleLock flips isLocked and leaves attribution untouched.
func ToggleLock(doc Document, sectionID string, now int64) Document {
	section, ok := doc.Section(sectionID)
	if !ok {
		return SetSectionFields(doc, sectionID, SectionPatch{}, now)
	}
	locked := !section.IsLocked
	return SetSectionFields(doc, sectionID, SectionPatch{IsLocked: &locked}, now)
}

// PostComment appends a comment unless the text is blank or no section is
// selected. It does not touch updatedAt.
func PostComment(doc Document, sectionID string, author identity.Identity, text, id string, now int64) Document {
	if sectionID == "" || strings.TrimSpace(text) == "" {
		return doc
	}
	out := Clone(doc)
	out.Comments = append(out.Comments, Comment{
		ID:         id,
		SectionID:  sectionID,
		UserID:     author.ID,
		UserName:   author.Name,
		UserAvatar: author.Avatar,
		Text:       text,
		Timestamp:  now,
	})
	return out
}

// Approve marks the brief approved. A brief with any unlocked section is
// returned unchanged.
func Approve(doc Document) Document {
	if !IsAllLocked(doc) {
		return doc
	}
	out := Clone(doc)
	out.Status = StatusApproved
	return out
}

func IsAllLocked(doc Document) bool {
	for _, section := range doc.Sections {
		if !section.IsLocked {
			return false
		}
	}
	return true
}

// CommentsForSection returns the section's comments newest first. Comments
// with equal timestamps keep reverse posting order.
func CommentsForSection(doc Document, sectionID string) []Comment {
	out := make([]Comment, 0)
	for i := len(doc.Comments) - 1; i >= 0; i-- {
		if doc.Comments[i].SectionID == sectionID {
			out = append(out, doc.Comments[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}
