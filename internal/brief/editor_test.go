package brief

import (
	"errors"
	"strings"
	"testing"

	"syncbrief/api/internal/identity"
)

func newTestEditor(ms int64) *Editor {
	editor := NewEditor(NewStore(Seed(1000), fixedClock(ms)))
	editor.NewCommentID = func() string { return "comment-1" }
	return editor
}

func TestEditSectionAttributesContentOnly(t *testing.T) {
	editor := newTestEditor(5000)
	alex := identity.Default()

	doc, err := editor.EditSection("s1", alex, SectionEdit{Title: strPtr("Problem")})
	if err != nil {
		t.Fatalf("title edit: %v", err)
	}
	section, _ := doc.Section("s1")
	if section.Title != "Problem" || section.LastEditedBy != nil || section.LastEditedAt != 1000 {
		t.Fatalf("title edit must not attribute: %+v", section)
	}
	if doc.UpdatedAt != 5000 {
		t.Fatalf("expected updatedAt 5000, got %d", doc.UpdatedAt)
	}

	doc, err = editor.EditSection("s1", alex, SectionEdit{Content: strPtr("Checkout drops users")})
	if err != nil {
		t.Fatalf("content edit: %v", err)
	}
	section, _ = doc.Section("s1")
	if section.LastEditedBy == nil || section.LastEditedBy.ID != "u1" || section.LastEditedAt != 5000 {
		t.Fatalf("content edit must attribute: %+v", section)
	}
}

func TestEditSectionRefusedWhileLocked(t *testing.T) {
	editor := newTestEditor(5000)
	if _, err := editor.ToggleLock("s1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	for _, edit := range []SectionEdit{{Title: strPtr("x")}, {Content: strPtr("y")}} {
		if _, err := editor.EditSection("s1", identity.Default(), edit); !errors.Is(err, ErrSectionLocked) {
			t.Fatalf("expected ErrSectionLocked, got %v", err)
		}
	}
	section, _ := editor.Store().Snapshot().Section("s1")
	if section.Title != "Problem Statement" || section.Content != "" {
		t.Fatalf("locked section changed: %+v", section)
	}

	if _, err := editor.EditSection("s1", identity.Default(), SectionEdit{Description: strPtr("still editable")}); err != nil {
		t.Fatalf("description edit while locked: %v", err)
	}
	if _, err := editor.EditSection("nope", identity.Default(), SectionEdit{}); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestApproveGate(t *testing.T) {
	editor := newTestEditor(5000)
	if _, err := editor.Approve(); !errors.Is(err, ErrNotAllLocked) {
		t.Fatalf("expected ErrNotAllLocked, got %v", err)
	}
	if editor.Store().Snapshot().Status != StatusDraft {
		t.Fatal("refused approve changed status")
	}

	editor.ToggleLock("s1")
	editor.ToggleLock("s2")
	doc, err := editor.Approve()
	if err != nil || doc.Status != StatusApproved {
		t.Fatalf("approve: %v status=%s", err, doc.Status)
	}
	if _, err := editor.Approve(); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}

	doc, err = editor.ToggleLock("s1")
	if err != nil || doc.Sections[0].IsLocked || doc.Status != StatusApproved {
		t.Fatalf("unlock after approval should be allowed and keep status: %v %+v", err, doc)
	}
}

func TestAddCustomSection(t *testing.T) {
	editor := newTestEditor(7000)
	first, _ := editor.AddCustomSection()
	second, doc := editor.AddCustomSection()

	if first.ID != "new-7000" || second.ID != "new-7001" {
		t.Fatalf("unexpected ids %q %q", first.ID, second.ID)
	}
	if first.Title != "New Section" || first.Description != "Describe what this section is for..." || first.IsLocked || first.LastEditedBy != nil {
		t.Fatalf("unexpected defaults %+v", first)
	}
	if len(doc.Sections) != 4 || doc.Sections[3].ID != second.ID {
		t.Fatalf("sections not appended: %+v", doc.Sections)
	}
}

func TestAddSuggestedSections(t *testing.T) {
	editor := newTestEditor(8000)
	author := identity.AssistantFor(identity.Default())

	sections, doc := editor.AddSuggestedSections(author, []SectionDraft{
		{Title: "Success Metrics", Description: "How will we measure it?"},
		{Title: "Constraints", Description: "What limits apply?"},
	})
	if len(sections) != 2 || sections[0].ID != "ai-8000-0" || sections[1].ID != "ai-8000-1" {
		t.Fatalf("unexpected sections %+v", sections)
	}
	if sections[0].LastEditedBy == nil || sections[0].LastEditedBy.Name != "Gemini AI" || sections[0].Content != "" {
		t.Fatalf("unexpected attribution %+v", sections[0])
	}
	if len(doc.Sections) != 4 || doc.Sections[2].Title != "Success Metrics" {
		t.Fatalf("unexpected document sections %+v", doc.Sections)
	}

	before := editor.Store().Snapshot()
	none, after := editor.AddSuggestedSections(author, nil)
	if len(none) != 0 || len(after.Sections) != len(before.Sections) || after.UpdatedAt != before.UpdatedAt {
		t.Fatal("empty suggestion batch must not change the brief")
	}
}

func TestEditorPostComment(t *testing.T) {
	editor := newTestEditor(9000)
	casey, _ := identity.Lookup("u3")

	if _, _, err := editor.PostComment("s1", casey, "   "); !errors.Is(err, ErrCommentEmpty) {
		t.Fatalf("expected ErrCommentEmpty, got %v", err)
	}
	if _, _, err := editor.PostComment("", casey, "hello"); !errors.Is(err, ErrNoActiveSection) {
		t.Fatalf("expected ErrNoActiveSection, got %v", err)
	}
	if _, _, err := editor.PostComment("ghost", casey, "hello"); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
	if got := len(editor.Store().Snapshot().Comments); got != 0 {
		t.Fatalf("refused comments were stored: %d", got)
	}

	comment, doc, err := editor.PostComment("s2", casey, "Is @jordan aware?")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if comment.ID != "comment-1" || comment.UserName != "Casey Eng" || comment.Timestamp != 9000 || !strings.Contains(comment.Text, "@jordan") {
		t.Fatalf("unexpected comment %+v", comment)
	}
	if doc.UpdatedAt != 1000 {
		t.Fatal("posting a comment must not bump updatedAt")
	}
}
