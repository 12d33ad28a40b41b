package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"syncbrief/api/internal/assist"
	"syncbrief/api/internal/brief"
	"syncbrief/api/internal/config"
	"syncbrief/api/internal/email"
	"syncbrief/api/internal/export"
	"syncbrief/api/internal/history"
	"syncbrief/api/internal/identity"
)

const testNow = int64(1_700_000_000_000)

type fakeAssist struct {
	refineFn  func(context.Context, string, string) string
	suggestFn func(context.Context) []assist.Suggestion
	mu        sync.Mutex
	calls     int
}

func (f *fakeAssist) RefineSection(ctx context.Context, text, title string) string {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.refineFn != nil {
		return f.refineFn(ctx, text, title)
	}
	return text
}

func (f *fakeAssist) SuggestSections(ctx context.Context) []assist.Suggestion {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.suggestFn != nil {
		return f.suggestFn(ctx)
	}
	return []assist.Suggestion{}
}

type fakeHistory struct {
	snapshotFn func(brief.Document, string, string) (history.Commit, error)
	tags       []string
	snapshots  []string
}

func (f *fakeHistory) Snapshot(doc brief.Document, author, message string) (history.Commit, error) {
	f.snapshots = append(f.snapshots, author+": "+message)
	if f.snapshotFn != nil {
		return f.snapshotFn(doc, author, message)
	}
	return history.Commit{Hash: "abc1234", FullHash: "abc1234def", Message: message, Author: author}, nil
}

func (f *fakeHistory) Tag(hash, name string) error {
	f.tags = append(f.tags, hash+"@"+name)
	return nil
}

func (f *fakeHistory) History(limit int) ([]history.Commit, error) {
	return []history.Commit{{Hash: "abc1234", Message: "Approve brief"}}, nil
}

func (f *fakeHistory) Content(hash string) (brief.Document, error) {
	if hash != "abc1234" {
		return brief.Document{}, history.ErrSnapshotNotFound
	}
	doc := brief.Seed(testNow)
	doc.Title = "Recorded brief"
	return doc, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	mentions []email.Mention
}

func (f *fakeNotifier) NotifyMentions(m email.Mention) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mentions = append(f.mentions, m)
	return []string{"u2"}, nil
}

type fakeArchive struct {
	stored    []*export.Result
	unhealthy bool
}

func (f *fakeArchive) Healthy(context.Context) bool {
	return !f.unhealthy
}

func (f *fakeArchive) Store(_ context.Context, result *export.Result, at time.Time) (export.Archived, error) {
	f.stored = append(f.stored, result)
	return export.Archived{Bucket: "syncbrief-exports", Key: export.ObjectKey(result, at), Size: int64(len(result.Data))}, nil
}

type fakeBackend struct {
	pingFn func(context.Context) error
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func newTestService(deps Deps) *Service {
	clock := func() time.Time { return time.UnixMilli(testNow) }
	editor := brief.NewEditor(brief.NewStore(brief.Seed(testNow), clock))
	if deps.Assist == nil {
		deps.Assist = &fakeAssist{}
	}
	return New(config.Config{PublicURL: "http://localhost:5173"}, editor, deps)
}

func lockAll(t *testing.T, svc *Service) {
	t.Helper()
	for _, section := range svc.View("").Document.Sections {
		if section.IsLocked {
			continue
		}
		if _, err := svc.ToggleLock(section.ID); err != nil {
			t.Fatalf("ToggleLock(%s) error = %v", section.ID, err)
		}
	}
}

func TestApproveRecordsSnapshotAndTag(t *testing.T) {
	hist := &fakeHistory{}
	svc := newTestService(Deps{History: hist})
	actor := identity.Default()

	if _, _, err := svc.Approve(actor); !errors.Is(err, brief.ErrNotAllLocked) {
		t.Fatalf("expected ErrNotAllLocked, got %v", err)
	}
	if len(hist.snapshots) != 0 {
		t.Fatal("refused approval must not be recorded")
	}

	lockAll(t, svc)
	view, commit, err := svc.Approve(actor)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if view.Document.Status != brief.StatusApproved || view.CanApprove {
		t.Fatalf("unexpected view after approval: %+v", view)
	}
	if commit == nil || len(commit.Tags) != 1 || commit.Tags[0] != "approved-1700000000000" {
		t.Fatalf("unexpected snapshot %+v", commit)
	}
	if len(hist.tags) != 1 || hist.tags[0] != "abc1234def@approved-1700000000000" {
		t.Fatalf("tags = %v", hist.tags)
	}

	if _, _, err := svc.Approve(actor); !errors.Is(err, brief.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}
}

func TestApproveSurvivesHistoryFailure(t *testing.T) {
	hist := &fakeHistory{snapshotFn: func(brief.Document, string, string) (history.Commit, error) {
		return history.Commit{}, errors.New("disk full")
	}}
	svc := newTestService(Deps{History: hist})
	lockAll(t, svc)

	view, commit, err := svc.Approve(identity.Default())
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if commit != nil {
		t.Fatalf("expected no snapshot, got %+v", commit)
	}
	if view.Document.Status != brief.StatusApproved {
		t.Fatalf("status = %s", view.Document.Status)
	}
}

func TestRefineBlankSectionMakesNoCall(t *testing.T) {
	fake := &fakeAssist{}
	svc := newTestService(Deps{Assist: fake})
	before := svc.View("")

	view, refined, err := svc.RefineSection(context.Background(), identity.Default(), "s1")
	if err != nil {
		t.Fatalf("RefineSection() error = %v", err)
	}
	if refined || fake.calls != 0 {
		t.Fatalf("refined = %v, calls = %d", refined, fake.calls)
	}
	if view.Revision != before.Revision {
		t.Fatal("blank section must be left unchanged")
	}
}

func TestRefineFallbackStillRecordsAssistedEdit(t *testing.T) {
	fake := &fakeAssist{}
	svc := newTestService(Deps{Assist: fake})
	jordan, _ := identity.Lookup("u2")
	draft := "Checkout is slow"
	if _, err := svc.EditSection(jordan, "s1", brief.SectionEdit{Content: &draft}); err != nil {
		t.Fatal(err)
	}

	view, refined, err := svc.RefineSection(context.Background(), identity.Default(), "s1")
	if err != nil {
		t.Fatalf("RefineSection() error = %v", err)
	}
	if refined {
		t.Fatal("unchanged text should report refined=false")
	}
	section, _ := view.Document.Section("s1")
	if section.Content != draft {
		t.Fatalf("Content = %q", section.Content)
	}
	if section.LastEditedBy == nil || section.LastEditedBy.Name != "Alex Designer (via AI)" {
		t.Fatalf("LastEditedBy = %+v", section.LastEditedBy)
	}
	if fake.calls != 1 {
		t.Fatalf("calls = %d", fake.calls)
	}
}

func TestRefineAppliesAttributedEdit(t *testing.T) {
	fake := &fakeAssist{refineFn: func(_ context.Context, text, title string) string {
		return "Refined " + title
	}}
	svc := newTestService(Deps{Assist: fake})
	jordan, _ := identity.Lookup("u2")
	draft := "mobile shoppers"
	if _, err := svc.EditSection(identity.Default(), "s2", brief.SectionEdit{Content: &draft}); err != nil {
		t.Fatal(err)
	}

	view, refined, err := svc.RefineSection(context.Background(), jordan, "s2")
	if err != nil {
		t.Fatalf("RefineSection() error = %v", err)
	}
	section, _ := view.Document.Section("s2")
	if !refined || section.Content != "Refined Target Audience" {
		t.Fatalf("unexpected section %+v", section)
	}
	if section.LastEditedBy == nil || section.LastEditedBy.Name != "Jordan PM (via AI)" || section.LastEditedBy.ID != "u2" {
		t.Fatalf("LastEditedBy = %+v", section.LastEditedBy)
	}
}

func TestRefineRefusedWhileLocked(t *testing.T) {
	fake := &fakeAssist{}
	svc := newTestService(Deps{Assist: fake})
	if _, err := svc.ToggleLock("s1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.RefineSection(context.Background(), identity.Default(), "s1"); !errors.Is(err, brief.ErrSectionLocked) {
		t.Fatalf("expected ErrSectionLocked, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatal("locked refine must not reach the gateway")
	}
}

func TestRefineInProgressIsExclusivePerSection(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeAssist{refineFn: func(_ context.Context, text, _ string) string {
		close(started)
		<-release
		return text
	}}
	svc := newTestService(Deps{Assist: fake})
	draft := "draft"
	if _, err := svc.EditSection(identity.Default(), "s1", brief.SectionEdit{Content: &draft}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.RefineSection(context.Background(), identity.Default(), "s1")
		done <- err
	}()
	<-started

	if view := svc.View(""); len(view.InProgress.Refining) != 1 || view.InProgress.Refining[0] != "s1" {
		t.Fatalf("InProgress = %+v", view.InProgress)
	}
	_, _, err := svc.RefineSection(context.Background(), identity.Default(), "s1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "assist_in_progress" {
		t.Fatalf("expected assist_in_progress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first refine error = %v", err)
	}
	if view := svc.View(""); len(view.InProgress.Refining) != 0 {
		t.Fatalf("flag should be released, got %+v", view.InProgress)
	}
}

func TestSuggestFailureAddsNothing(t *testing.T) {
	svc := newTestService(Deps{Assist: &fakeAssist{}})
	before := svc.View("")

	added, view, err := svc.SuggestSections(context.Background(), identity.Default())
	if err != nil {
		t.Fatalf("SuggestSections() error = %v", err)
	}
	if len(added) != 0 || len(view.Document.Sections) != 2 {
		t.Fatalf("expected no sections added, got %d", len(added))
	}
	if view.Revision != before.Revision {
		t.Fatal("failed suggestion must not touch the brief")
	}
	if view.InProgress.Suggesting {
		t.Fatal("suggest flag should be released")
	}
}

func TestSuggestAddsAttributedSections(t *testing.T) {
	fake := &fakeAssist{suggestFn: func(context.Context) []assist.Suggestion {
		return []assist.Suggestion{
			{Title: "Success Metrics", Description: "How will we measure it?"},
			{Title: "Constraints", Description: "What are the limits?"},
			{Title: "Risks", Description: "What could go wrong?"},
		}
	}}
	svc := newTestService(Deps{Assist: fake})

	added, view, err := svc.SuggestSections(context.Background(), identity.Default())
	if err != nil {
		t.Fatalf("SuggestSections() error = %v", err)
	}
	if len(added) != 3 || len(view.Document.Sections) != 5 {
		t.Fatalf("expected 3 added sections, got %d of %d", len(added), len(view.Document.Sections))
	}
	for i, section := range added {
		if !strings.HasPrefix(section.ID, "ai-") {
			t.Errorf("section %d id = %q", i, section.ID)
		}
		if section.LastEditedBy == nil || section.LastEditedBy.Name != identity.AssistantName {
			t.Errorf("section %d attribution = %+v", i, section.LastEditedBy)
		}
	}
	if view.Document.Sections[2].Title != "Success Metrics" {
		t.Fatalf("suggestions should keep their order, got %q", view.Document.Sections[2].Title)
	}
}

func TestPostCommentNotifiesMentions(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(Deps{Mentions: notifier})

	if _, _, err := svc.PostComment(identity.Default(), "s1", "plain note"); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	comment, view, err := svc.PostComment(identity.Default(), "s1", "@jordan can you confirm?")
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	svc.Wait()

	if len(view.ActiveComments) != 2 || view.ActiveComments[0].ID != comment.ID {
		t.Fatalf("active comments should be newest first: %+v", view.ActiveComments)
	}
	if len(notifier.mentions) != 1 {
		t.Fatalf("expected one mention delivery, got %d", len(notifier.mentions))
	}
	m := notifier.mentions[0]
	if m.SectionTitle != "Problem Statement" || m.Link != "http://localhost:5173/?section=s1" {
		t.Fatalf("unexpected mention %+v", m)
	}
}

func TestPostCommentBlankIsRejected(t *testing.T) {
	svc := newTestService(Deps{})
	if _, _, err := svc.PostComment(identity.Default(), "s1", "   "); !errors.Is(err, brief.ErrCommentEmpty) {
		t.Fatalf("expected ErrCommentEmpty, got %v", err)
	}
	if comments, _ := svc.Comments("s1"); len(comments) != 0 {
		t.Fatalf("comments = %+v", comments)
	}
}

func TestArchiveExport(t *testing.T) {
	svc := newTestService(Deps{})
	if _, err := svc.ArchiveExport(context.Background(), "md"); !errors.Is(err, export.ErrArchiveDisabled) {
		t.Fatalf("expected ErrArchiveDisabled, got %v", err)
	}

	archive := &fakeArchive{}
	svc = newTestService(Deps{Archive: archive})
	archived, err := svc.ArchiveExport(context.Background(), "json")
	if err != nil {
		t.Fatalf("ArchiveExport() error = %v", err)
	}
	if len(archive.stored) != 1 || archive.stored[0].MimeType != "application/json" {
		t.Fatalf("unexpected upload %+v", archive.stored)
	}
	if !strings.HasSuffix(archived.Key, "-Q3-Mobile-App-Redesign.json") {
		t.Fatalf("Key = %q", archived.Key)
	}
}

func TestSnapshotWithoutHistory(t *testing.T) {
	svc := newTestService(Deps{})
	_, err := svc.Snapshot(identity.Default(), "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "history_disabled" {
		t.Fatalf("expected history_disabled, got %v", err)
	}
	commits, err := svc.History(10)
	if err != nil || len(commits) != 0 {
		t.Fatalf("History() = %v, %v", commits, err)
	}
}

func TestActor(t *testing.T) {
	svc := newTestService(Deps{})
	if actor, err := svc.Actor(""); err != nil || actor.ID != identity.DefaultID {
		t.Fatalf("Actor(\"\") = %+v, %v", actor, err)
	}
	if actor, err := svc.Actor("u3"); err != nil || actor.Name != "Casey Eng" {
		t.Fatalf("Actor(u3) = %+v, %v", actor, err)
	}
	var domainErr *DomainError
	if _, err := svc.Actor("u9"); !errors.As(err, &domainErr) || domainErr.Code != "unknown_identity" {
		t.Fatalf("expected unknown_identity, got %v", err)
	}
}
