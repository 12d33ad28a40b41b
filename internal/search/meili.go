package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxEntries = "syncbrief_entries"

// Meili indexes brief entries in Meilisearch and tracks its health.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili never fails: an unreachable server starts unhealthy and the
// health loop picks it up once it answers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		slog.Warn("meilisearch unavailable", "url", url, "err", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxEntries,
		PrimaryKey: "id",
	}); err != nil {
		slog.Debug("create index (may already exist)", "index", idxEntries, "err", err)
	}

	index := m.client.Index(idxEntries)
	filterable := []interface{}{"type", "sectionId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		slog.Warn("update filterable attributes", "index", idxEntries, "err", err)
	}
	searchable := []string{"title", "body", "author"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		slog.Warn("update searchable attributes", "index", idxEntries, "err", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				slog.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	request := &meili.SearchRequest{
		IndexUID:              idxEntries,
		Query:                 q.Text,
		Limit:                 limit,
		AttributesToHighlight: []string{"title", "body"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.FilterType != "" {
		request.Filter = []string{fmt.Sprintf("type = %q", q.FilterType)}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{request},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		Type:      ResultType(decodeString(hit, "type")),
		ID:        decodeString(hit, "refId"),
		SectionID: decodeString(hit, "sectionId"),
		Title:     firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:   firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexEntries upserts entries by id.
func (m *Meili) IndexEntries(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEntries).AddDocuments(entries, nil)
	return err
}
