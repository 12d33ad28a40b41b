package search

import (
	"log/slog"

	"syncbrief/api/internal/brief"
)

// Service tries Meilisearch first and falls back to scanning the current
// brief. Meilisearch hits that no longer exist in the brief are dropped,
// since entries are upserted and never deleted from the index.
type Service struct {
	meili   *Meili
	local   Local
	current func() brief.Document
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili, current func() brief.Document) *Service {
	return &Service{meili: meili, current: current}
}

func (s *Service) Healthy() bool {
	return s.meili == nil || s.meili.Healthy()
}

func (s *Service) Search(q Query) Response {
	entries := Entries(s.current())

	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(q)
		if err == nil {
			live := liveResults(results, entries)
			return Response{Results: live, Total: len(live), Query: q.Text, Engine: "meilisearch"}
		}
		slog.Warn("meilisearch error, falling back to local search", "err", err)
	}

	results := s.local.Search(entries, q)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return Response{Results: results, Total: len(results), Query: q.Text, Engine: "local"}
}

// IndexBrief pushes the brief to Meilisearch without waiting for it.
func (s *Service) IndexBrief(doc brief.Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	entries := Entries(doc)
	go func() {
		if err := s.meili.IndexEntries(entries); err != nil {
			slog.Warn("index brief", "entries", len(entries), "err", err)
		}
	}()
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func liveResults(results []Result, entries []Entry) []Result {
	live := make(map[string]bool, len(entries))
	for _, entry := range entries {
		live[entry.Type+"/"+entry.RefID] = true
	}
	out := make([]Result, 0, len(results))
	for _, result := range results {
		if live[string(result.Type)+"/"+result.ID] {
			out = append(out, result)
		}
	}
	return out
}
