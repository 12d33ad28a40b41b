package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"syncbrief/api/internal/assist"
	"syncbrief/api/internal/bridge"
	"syncbrief/api/internal/brief"
	"syncbrief/api/internal/config"
	"syncbrief/api/internal/email"
	"syncbrief/api/internal/export"
	"syncbrief/api/internal/history"
	"syncbrief/api/internal/identity"
	"syncbrief/api/internal/search"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type assistant interface {
	RefineSection(ctx context.Context, currentText, sectionTitle string) string
	SuggestSections(ctx context.Context) []assist.Suggestion
}

type searcher interface {
	Search(q search.Query) search.Response
	IndexBrief(doc brief.Document)
	Healthy() bool
}

type historian interface {
	Snapshot(doc brief.Document, author, message string) (history.Commit, error)
	Tag(hash, name string) error
	History(limit int) ([]history.Commit, error)
	Content(hash string) (brief.Document, error)
}

type exporter interface {
	Export(ctx context.Context, doc brief.Document, format export.Format) (*export.Result, error)
}

type archiver interface {
	Store(ctx context.Context, result *export.Result, at time.Time) (export.Archived, error)
	Healthy(ctx context.Context) bool
}

type mentionNotifier interface {
	NotifyMentions(m email.Mention) ([]string, error)
}

// Deps are the collaborators of a Service. Search, History, Archive and
// Mentions may be left nil to disable them.
type Deps struct {
	Backend  pinger
	Assist   assistant
	Search   searcher
	History  historian
	Exporter exporter
	Archive  archiver
	Mentions mentionNotifier
}

type InProgress struct {
	Refining   []string `json:"refining"`
	Suggesting bool     `json:"suggesting"`
}

// BriefView is the brief plus everything a client derives from it.
type BriefView struct {
	Document       brief.Document  `json:"document"`
	IsAllLocked    bool            `json:"isAllLocked"`
	CanApprove     bool            `json:"canApprove"`
	InProgress     InProgress      `json:"inProgress"`
	Revision       string          `json:"revision"`
	ActiveSection  string          `json:"activeSection,omitempty"`
	ActiveComments []brief.Comment `json:"activeComments,omitempty"`
}

type Service struct {
	cfg    config.Config
	editor *brief.Editor
	deps   Deps
	hub    *Hub

	assistMu   sync.Mutex
	refining   map[string]bool
	suggesting bool

	background sync.WaitGroup
}

func New(cfg config.Config, editor *brief.Editor, deps Deps) *Service {
	if deps.Exporter == nil {
		deps.Exporter = export.NewService(cfg.PDFTimeout)
	}
	return &Service{
		cfg:      cfg,
		editor:   editor,
		deps:     deps,
		hub:      NewHub(),
		refining: make(map[string]bool),
	}
}

// Start pushes every brief change to the search index and to websocket
// clients until ctx ends or stop is called.
func (s *Service) Start(ctx context.Context) (stop func()) {
	cancel := s.editor.Store().Subscribe(func(change brief.Change) {
		if s.deps.Search != nil {
			s.deps.Search.IndexBrief(change.Document)
		}
		s.hub.Broadcast(streamMessage{Type: "brief", Source: change.Source.String(), View: s.view(change.Document, "")})
	})
	if s.deps.Search != nil {
		s.deps.Search.IndexBrief(s.editor.Store().Snapshot())
	}

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			s.hub.Close()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop
}

// Wait blocks until background mention deliveries finish.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) Hub() *Hub {
	return s.hub
}

func (s *Service) Ping(ctx context.Context) error {
	if s.deps.Backend == nil {
		return nil
	}
	return s.deps.Backend.Ping(ctx)
}

// Ready reports per-dependency status. Only the backend decides readiness;
// search degrades to the local scan and archive only affects exports.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{
		"backend": map[string]any{"status": "ok"},
	}
	ready := true
	if err := s.Ping(ctx); err != nil {
		ready = false
		checks["backend"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if s.deps.Search != nil {
		status := "ok"
		if !s.deps.Search.Healthy() {
			status = "degraded"
		}
		checks["search"] = map[string]any{"status": status}
	}
	if s.deps.Archive != nil {
		status := "ok"
		if !s.deps.Archive.Healthy(ctx) {
			status = "degraded"
		}
		checks["archive"] = map[string]any{"status": status}
	}
	return ready, checks
}

func (s *Service) Identities() []identity.Identity {
	return identity.All()
}

// Actor resolves the acting identity. An empty id means the default user.
func (s *Service) Actor(userID string) (identity.Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return identity.Default(), nil
	}
	item, ok := identity.Lookup(userID)
	if !ok {
		return identity.Identity{}, errUnknownIdentity(userID)
	}
	return item, nil
}

func (s *Service) View(sectionID string) BriefView {
	return s.view(s.editor.Store().Snapshot(), sectionID)
}

func (s *Service) view(doc brief.Document, sectionID string) BriefView {
	view := BriefView{
		Document:    doc,
		IsAllLocked: brief.IsAllLocked(doc),
		CanApprove:  brief.CanApprove(doc),
		InProgress:  s.inProgress(),
		Revision:    revisionOf(doc),
	}
	if sectionID != "" {
		view.ActiveSection = sectionID
		view.ActiveComments = brief.CommentsForSection(doc, sectionID)
	}
	return view
}

func revisionOf(doc brief.Document) string {
	payload, err := brief.Encode(doc)
	if err != nil {
		return ""
	}
	return bridge.Revision(payload)
}

func (s *Service) inProgress() InProgress {
	s.assistMu.Lock()
	defer s.assistMu.Unlock()
	refining := make([]string, 0, len(s.refining))
	for id := range s.refining {
		refining = append(refining, id)
	}
	sort.Strings(refining)
	return InProgress{Refining: refining, Suggesting: s.suggesting}
}

func (s *Service) EditSection(actor identity.Identity, sectionID string, edit brief.SectionEdit) (BriefView, error) {
	doc, err := s.editor.EditSection(sectionID, actor, edit)
	if err != nil {
		return BriefView{}, err
	}
	return s.view(doc, ""), nil
}

func (s *Service) ToggleLock(sectionID string) (BriefView, error) {
	doc, err := s.editor.ToggleLock(sectionID)
	if err != nil {
		return BriefView{}, err
	}
	return s.view(doc, ""), nil
}

func (s *Service) AddSection() (brief.Section, BriefView) {
	section, doc := s.editor.AddCustomSection()
	return section, s.view(doc, "")
}

// RefineSection rewrites the section content through the assist gateway
// and records the result as an AI-assisted edit by actor, fallback included.
// refined reports whether the text changed. Blank content is left alone.
func (s *Service) RefineSection(ctx context.Context, actor identity.Identity, sectionID string) (view BriefView, refined bool, err error) {
	section, ok := s.editor.Store().Snapshot().Section(sectionID)
	if !ok {
		return BriefView{}, false, brief.ErrSectionNotFound
	}
	if section.IsLocked {
		return BriefView{}, false, brief.ErrSectionLocked
	}
	if !s.beginRefine(sectionID) {
		return BriefView{}, false, errAssistInProgress("refine:" + sectionID)
	}
	defer s.endRefine(sectionID)

	if strings.TrimSpace(section.Content) == "" {
		return s.View(""), false, nil
	}
	text := s.deps.Assist.RefineSection(ctx, section.Content, section.Title)
	doc, err := s.editor.EditSection(sectionID, identity.AssistedBy(actor), brief.SectionEdit{Content: &text})
	if err != nil {
		return BriefView{}, false, err
	}
	return s.view(doc, ""), text != section.Content, nil
}

func (s *Service) beginRefine(sectionID string) bool {
	s.assistMu.Lock()
	defer s.assistMu.Unlock()
	if s.refining[sectionID] {
		return false
	}
	s.refining[sectionID] = true
	return true
}

func (s *Service) endRefine(sectionID string) {
	s.assistMu.Lock()
	delete(s.refining, sectionID)
	s.assistMu.Unlock()
}

// SuggestSections appends the gateway's proposed sections. A failed
// suggestion adds nothing and is not an error.
func (s *Service) SuggestSections(ctx context.Context, actor identity.Identity) ([]brief.Section, BriefView, error) {
	s.assistMu.Lock()
	if s.suggesting {
		s.assistMu.Unlock()
		return nil, BriefView{}, errAssistInProgress("suggest")
	}
	s.suggesting = true
	s.assistMu.Unlock()
	defer func() {
		s.assistMu.Lock()
		s.suggesting = false
		s.assistMu.Unlock()
	}()

	suggestions := s.deps.Assist.SuggestSections(ctx)
	drafts := make([]brief.SectionDraft, 0, len(suggestions))
	for _, item := range suggestions {
		drafts = append(drafts, brief.SectionDraft{Title: item.Title, Description: item.Description})
	}
	added, doc := s.editor.AddSuggestedSections(identity.AssistantFor(actor), drafts)
	if added == nil {
		added = []brief.Section{}
	}
	return added, s.view(doc, ""), nil
}

func (s *Service) Comments(sectionID string) ([]brief.Comment, error) {
	doc := s.editor.Store().Snapshot()
	if _, ok := doc.Section(sectionID); !ok {
		return nil, brief.ErrSectionNotFound
	}
	return brief.CommentsForSection(doc, sectionID), nil
}

// PostComment adds a comment and emails anyone it mentions in the background.
func (s *Service) PostComment(actor identity.Identity, sectionID, text string) (brief.Comment, BriefView, error) {
	comment, doc, err := s.editor.PostComment(sectionID, actor, text)
	if err != nil {
		return brief.Comment{}, BriefView{}, err
	}
	if s.deps.Mentions != nil && len(email.ParseMentions(comment.Text)) > 0 {
		section, _ := doc.Section(sectionID)
		mention := email.Mention{
			Author:       actor,
			SectionTitle: section.Title,
			Text:         comment.Text,
			Link:         s.sectionLink(sectionID),
		}
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			notified, err := s.deps.Mentions.NotifyMentions(mention)
			if err != nil {
				slog.Warn("mention email failed", "comment", comment.ID, "err", err)
			}
			if len(notified) > 0 {
				slog.Info("mention email sent", "comment", comment.ID, "notified", notified)
			}
		}()
	}
	return comment, s.view(doc, sectionID), nil
}

func (s *Service) sectionLink(sectionID string) string {
	if s.cfg.PublicURL == "" {
		return ""
	}
	return s.cfg.PublicURL + "/?section=" + url.QueryEscape(sectionID)
}

// Approve approves the brief and records the moment in history. A history
// failure is logged; the approval stands.
func (s *Service) Approve(actor identity.Identity) (BriefView, *history.Commit, error) {
	doc, err := s.editor.Approve()
	if err != nil {
		return BriefView{}, nil, err
	}
	slog.Info("brief approved", "by", actor.ID, "sections", len(doc.Sections))

	var recorded *history.Commit
	if s.deps.History != nil {
		commit, err := s.deps.History.Snapshot(doc, actor.Name, fmt.Sprintf("Approve brief: %s", doc.Title))
		if err != nil {
			slog.Error("approval snapshot failed", "err", err)
		} else {
			tag := fmt.Sprintf("approved-%d", s.editor.Store().Now())
			if err := s.deps.History.Tag(commit.FullHash, tag); err != nil {
				slog.Error("approval tag failed", "tag", tag, "err", err)
			} else {
				commit.Tags = append(commit.Tags, tag)
			}
			recorded = &commit
		}
	}
	return s.view(doc, ""), recorded, nil
}

func (s *Service) Search(text, resultType string, limit int) search.Response {
	q := search.Query{Text: strings.TrimSpace(text), FilterType: search.ResultType(resultType), Limit: limit}
	if s.deps.Search == nil {
		return search.NewService(nil, s.editor.Store().Snapshot).Search(q)
	}
	return s.deps.Search.Search(q)
}

func (s *Service) Export(ctx context.Context, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return s.deps.Exporter.Export(ctx, s.editor.Store().Snapshot(), parsed)
}

// ArchiveExport renders the brief and stores the file in object storage.
func (s *Service) ArchiveExport(ctx context.Context, format string) (export.Archived, error) {
	if s.deps.Archive == nil {
		return export.Archived{}, export.ErrArchiveDisabled
	}
	result, err := s.Export(ctx, format)
	if err != nil {
		return export.Archived{}, err
	}
	return s.deps.Archive.Store(ctx, result, time.UnixMilli(s.editor.Store().Now()))
}

func (s *Service) History(limit int) ([]history.Commit, error) {
	if s.deps.History == nil {
		return []history.Commit{}, nil
	}
	switch {
	case limit <= 0:
		limit = 50
	case limit > 200:
		limit = 200
	}
	return s.deps.History.History(limit)
}

func errHistoryDisabled() *DomainError {
	return domainError(http.StatusServiceUnavailable, "history_disabled", "Snapshot history is not configured", nil)
}

// SnapshotContent returns the brief as it was recorded in a snapshot.
func (s *Service) SnapshotContent(hash string) (brief.Document, error) {
	if s.deps.History == nil {
		return brief.Document{}, errHistoryDisabled()
	}
	return s.deps.History.Content(strings.TrimSpace(hash))
}

// Snapshot commits the current brief to history.
func (s *Service) Snapshot(actor identity.Identity, message string) (history.Commit, error) {
	if s.deps.History == nil {
		return history.Commit{}, errHistoryDisabled()
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "Snapshot brief"
	}
	return s.deps.History.Snapshot(s.editor.Store().Snapshot(), actor.Name, message)
}
