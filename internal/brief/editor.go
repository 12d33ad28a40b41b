package brief

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"syncbrief/api/internal/identity"
)

const (
	customSectionTitle       = "New Section"
	customSectionDescription = "Describe what this section is for..."
)

// SectionEdit is a user edit of a section. Nil fields are not edited.
type SectionEdit struct {
	Title       *string
	Description *string
	Content     *string
}

func (e SectionEdit) touchesLockedFields() bool {
	return e.Title != nil || e.Content != nil
}

// SectionDraft is a proposed section before it gets an id.
type SectionDraft struct {
	Title       string
	Description string
}

// Editor enforces the lock and approval rules on top of a Store.
type Editor struct {
	store *Store

	NewCommentID func() string

	idMu   sync.Mutex
	lastID int64
}

func NewEditor(store *Store) *Editor {
	return &Editor{
		store:        store,
		NewCommentID: uuid.NewString,
	}
}

func (e *Editor) Store() *Store {
	return e.store
}

// CanApprove reports whether approval may be offered for doc.
func CanApprove(doc Document) bool {
	return IsAllLocked(doc) && doc.Status != StatusApproved
}

// EditSection applies a user edit. Title and content are refused while the
// section is locked. Content edits record the actor and time; title and
// description edits do not.
func (e *Editor) EditSection(sectionID string, actor identity.Identity, edit SectionEdit) (Document, error) {
	return e.store.Apply(func(doc Document) (Document, error) {
		section, ok := doc.Section(sectionID)
		if !ok {
			return doc, fmt.Errorf("edit %s: %w", sectionID, ErrSectionNotFound)
		}
		if section.IsLocked && edit.touchesLockedFields() {
			return doc, fmt.Errorf("edit %s: %w", sectionID, ErrSectionLocked)
		}

		now := e.store.Now()
		patch := SectionPatch{
			Title:       edit.Title,
			Description: edit.Description,
			Content:     edit.Content,
		}
		if edit.Content != nil {
			patch.LastEditedBy = &actor
			patch.LastEditedAt = &now
		}
		return SetSectionFields(doc, sectionID, patch, now), nil
	})
}

// ToggleLock is allowed in every state, approved briefs included.
func (e *Editor) ToggleLock(sectionID string) (Document, error) {
	return e.store.Apply(func(doc Document) (Document, error) {
		if _, ok := doc.Section(sectionID); !ok {
			return doc, fmt.Errorf("toggle lock %s: %w", sectionID, ErrSectionNotFound)
		}
		return ToggleLock(doc, sectionID, e.store.Now()), nil
	})
}

// AddCustomSection appends an empty, unattributed section.
func (e *Editor) AddCustomSection() (Section, Document) {
	now := e.store.Now()
	section := Section{
		ID:           fmt.Sprintf("new-%d", e.nextStamp(now)),
		Title:        customSectionTitle,
		Description:  customSectionDescription,
		LastEditedAt: now,
	}
	doc := e.store.Update(func(doc Document) Document {
		return AddSection(doc, section, now)
	})
	return section, doc
}

// AddSuggestedSections turns drafts into sections attributed to author, in
// draft order. No drafts means no change at all.
func (e *Editor) AddSuggestedSections(author identity.Identity, drafts []SectionDraft) ([]Section, Document) {
	if len(drafts) == 0 {
		return []Section{}, e.store.Snapshot()
	}
	now := e.store.Now()
	stamp := e.nextStamp(now)
	sections := make([]Section, 0, len(drafts))
	for i, draft := range drafts {
		by := author
		sections = append(sections, Section{
			ID:           fmt.Sprintf("ai-%d-%d", stamp, i),
			Title:        draft.Title,
			Description:  draft.Description,
			LastEditedBy: &by,
			LastEditedAt: now,
		})
	}
	doc := e.store.Update(func(doc Document) Document {
		return AddSections(doc, sections, now)
	})
	return sections, doc
}

func (e *Editor) PostComment(sectionID string, actor identity.Identity, text string) (Comment, Document, error) {
	if strings.TrimSpace(text) == "" {
		return Comment{}, e.store.Snapshot(), ErrCommentEmpty
	}
	if sectionID == "" {
		return Comment{}, e.store.Snapshot(), ErrNoActiveSection
	}

	id := e.NewCommentID()
	doc, err := e.store.Apply(func(doc Document) (Document, error) {
		if _, ok := doc.Section(sectionID); !ok {
			return doc, fmt.Errorf("comment on %s: %w", sectionID, ErrSectionNotFound)
		}
		return PostComment(doc, sectionID, actor, text, id, e.store.Now()), nil
	})
	if err != nil {
		return Comment{}, doc, err
	}
	return doc.Comments[len(doc.Comments)-1], doc, nil
}

// Approve is refused unless every section is locked at the moment of the call.
func (e *Editor) Approve() (Document, error) {
	return e.store.Apply(func(doc Document) (Document, error) {
		if doc.Status == StatusApproved {
			return doc, ErrAlreadyApproved
		}
		if !IsAllLocked(doc) {
			return doc, ErrNotAllLocked
		}
		return Approve(doc), nil
	})
}

// nextStamp returns a millisecond value strictly greater than any this
// editor handed out before, so generated section ids never repeat.
func (e *Editor) nextStamp(now int64) int64 {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	if now <= e.lastID {
		now = e.lastID + 1
	}
	e.lastID = now
	return now
}
