package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"syncbrief/api/internal/brief"
	"syncbrief/api/internal/export"
	"syncbrief/api/internal/history"
	"syncbrief/api/internal/identity"
	"syncbrief/api/internal/store"
	"syncbrief/api/internal/util"
)

const userHeader = "X-Brief-User"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	api := mux.NewRouter()
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found", nil)
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	api.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/api/identities", s.handleIdentities).Methods(http.MethodGet)

	api.HandleFunc("/api/brief", s.handleBrief).Methods(http.MethodGet)
	b := api.PathPrefix("/api/brief").Subrouter()
	b.HandleFunc("/sections", s.handleAddSection).Methods(http.MethodPost)
	b.HandleFunc("/sections/{id}", s.handleEditSection).Methods(http.MethodPatch)
	b.HandleFunc("/sections/{id}/toggle-lock", s.handleToggleLock).Methods(http.MethodPost)
	b.HandleFunc("/sections/{id}/refine", s.handleRefine).Methods(http.MethodPost)
	b.HandleFunc("/sections/{id}/comments", s.handleListComments).Methods(http.MethodGet)
	b.HandleFunc("/sections/{id}/comments", s.handlePostComment).Methods(http.MethodPost)
	b.HandleFunc("/suggestions", s.handleSuggest).Methods(http.MethodPost)
	b.HandleFunc("/approve", s.handleApprove).Methods(http.MethodPost)
	b.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	b.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	b.HandleFunc("/exports", s.handleArchiveExport).Methods(http.MethodPost)
	b.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	b.HandleFunc("/history/{hash}", s.handleSnapshotContent).Methods(http.MethodGet)
	b.HandleFunc("/snapshots", s.handleSnapshot).Methods(http.MethodPost)

	// The websocket route must see the raw connection, so it skips gzip.
	root := mux.NewRouter()
	root.HandleFunc("/api/brief/ws", s.handleStream).Methods(http.MethodGet)
	root.PathPrefix("/").Handler(gzhttp.GzipHandler(api))

	return s.withMiddleware(root)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, checks := s.service.Ready(ctx)
	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleIdentities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"identities": s.service.Identities(),
		"defaultId":  identity.DefaultID,
	})
}

func (s *HTTPServer) handleBrief(w http.ResponseWriter, r *http.Request) {
	view := s.service.View(strings.TrimSpace(r.URL.Query().Get("section")))
	etag := strconv.Quote(view.Revision)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleEditSection(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Content     *string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	view, err := s.service.EditSection(actor, mux.Vars(r)["id"], brief.SectionEdit{
		Title:       body.Title,
		Description: body.Description,
		Content:     body.Content,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK, view)
}

func (s *HTTPServer) handleToggleLock(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.ToggleLock(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeView(w, http.StatusOK, view)
}

func (s *HTTPServer) handleAddSection(w http.ResponseWriter, r *http.Request) {
	section, view := s.service.AddSection()
	w.Header().Set("ETag", strconv.Quote(view.Revision))
	writeJSON(w, http.StatusCreated, map[string]any{"section": section, "view": view})
}

func (s *HTTPServer) handleRefine(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	view, refined, err := s.service.RefineSection(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(view.Revision))
	writeJSON(w, http.StatusOK, map[string]any{"refined": refined, "view": view})
}

func (s *HTTPServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	added, view, err := s.service.SuggestSections(r.Context(), actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(view.Revision))
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "view": view})
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.service.Comments(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *HTTPServer) handlePostComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	comment, view, err := s.service.PostComment(actor, mux.Vars(r)["id"], body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"comment": comment, "view": view})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	view, commit, err := s.service.Approve(actor)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(view.Revision))
	writeJSON(w, http.StatusOK, map[string]any{"view": view, "snapshot": commit})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, s.service.Search(query.Get("q"), query.Get("type"), limit))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Export(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleArchiveExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	archived, err := s.service.ArchiveExport(r.Context(), body.Format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, archived)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	commits, err := s.service.History(limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": commits})
}

func (s *HTTPServer) handleSnapshotContent(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.SnapshotContent(mux.Vars(r)["hash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": mux.Vars(r)["hash"], "document": doc})
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	commit, err := s.service.Snapshot(actor, body.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, commit)
}

func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	section := strings.TrimSpace(r.URL.Query().Get("section"))
	s.service.Hub().ServeWS(w, r, func() any {
		return streamMessage{Type: "brief", Source: "snapshot", View: s.service.View(section)}
	})
}

// actor reads the acting identity from the X-Brief-User header, or the
// user query parameter for clients that cannot set headers.
func (s *HTTPServer) actor(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	actor, err := s.service.Actor(userID)
	if err != nil {
		s.fail(w, r, err)
		return identity.Identity{}, false
	}
	return actor, true
}

func (s *HTTPServer) writeView(w http.ResponseWriter, status int, view BriefView) {
	w.Header().Set("ETag", strconv.Quote(view.Revision))
	writeJSON(w, status, view)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "request_id", requestID(r.Context()), "path", r.URL.Path, "err", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		slog.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Brief-User, X-Request-ID, If-None-Match")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID, Content-Disposition")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, brief.ErrSectionNotFound):
		return http.StatusNotFound, "section_not_found", "Section not found", nil
	case errors.Is(err, brief.ErrSectionLocked):
		return http.StatusConflict, "section_locked", "Section is locked", nil
	case errors.Is(err, brief.ErrNotAllLocked):
		return http.StatusConflict, "approve_not_ready", "Every section must be locked before approval", nil
	case errors.Is(err, brief.ErrAlreadyApproved):
		return http.StatusConflict, "already_approved", "Brief is already approved", nil
	case errors.Is(err, brief.ErrCommentEmpty):
		return http.StatusUnprocessableEntity, "comment_empty", "Comment text is required", nil
	case errors.Is(err, brief.ErrNoActiveSection):
		return http.StatusUnprocessableEntity, "no_active_section", "Select a section to comment on", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format", "Unsupported export format", map[string]any{"formats": export.Formats}
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "pdf_unavailable", "PDF export is not available on this server", nil
	case errors.Is(err, export.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, "archive_disabled", "Export archive is not configured", nil
	case errors.Is(err, history.ErrSnapshotNotFound):
		return http.StatusNotFound, "snapshot_not_found", "Snapshot not found", nil
	case errors.Is(err, history.ErrNoHistory):
		return http.StatusNotFound, "no_history", "No snapshots recorded", nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found", nil
	}
	return http.StatusInternalServerError, "internal_error", "Server error", nil
}
