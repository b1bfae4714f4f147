// Package server exposes the memory store and curator over HTTP. Every
// response uses a common envelope carrying a request ID and timing metadata.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/memkeep/memkeep/internal/curator"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/types"
)

const (
	searchResultCap = 10
	listLimitCap    = 50
	defaultListLen  = 10
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	store   store.Store
	curator *curator.Curator
	metrics *Metrics
	debug   bool
}

// New creates a server over the given store and curator.
func New(s store.Store, c *curator.Curator, debug bool) *Server {
	return &Server{
		store:   s,
		curator: c,
		metrics: NewMetrics(),
		debug:   debug,
	}
}

// Handler returns the full route table wrapped in instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/add_memory", s.handleAddMemory)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/memories", s.handleListMemories)
	mux.HandleFunc("DELETE /api/memory/{id}", s.handleDeleteMemory)

	mux.HandleFunc("GET /api/curator/health", s.handleCuratorHealth)
	mux.HandleFunc("GET /api/curator/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/curator/deduplicate", s.handleDeduplicate)
	mux.HandleFunc("POST /api/curator/consolidate", s.handleConsolidate)
	mux.HandleFunc("POST /api/curator/archive", s.handleArchive)
	mux.HandleFunc("POST /api/curator/enhance/{id}", s.handleEnhance)
	mux.HandleFunc("POST /api/curator/auto-curate", s.handleAutoCurate)

	return s.instrument(mux)
}

// ─── Response envelope ───────────────────────────────────────────────────────

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type responseMetadata struct {
	Timestamp       string  `json:"timestamp"`
	RequestID       string  `json:"request_id"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

type envelope struct {
	Success  bool             `json:"success"`
	Data     any              `json:"data,omitempty"`
	Error    *errorBody       `json:"error,omitempty"`
	Metadata responseMetadata `json:"metadata"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	s.writeEnvelope(w, r, status, envelope{Success: true, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeEnvelope(w, r, status, envelope{
		Success: false,
		Error:   &errorBody{Code: code, Message: message},
	})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	elapsed := time.Since(requestStart(r))
	env.Metadata = responseMetadata{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		RequestID:       requestID(r),
		ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Response-Time", fmt.Sprintf("%.1fms", env.Metadata.ExecutionTimeMs))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// decodeBody parses a JSON request body. An empty body decodes into the
// zero value so operations with all-optional parameters accept bare POSTs.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// dryRunDefault resolves an optional dry_run flag; absent means true.
func dryRunDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// ─── Memory endpoints ────────────────────────────────────────────────────────

type searchRequest struct {
	Query               string  `json:"query"`
	MaxResults          int     `json:"max_results,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	SourceFilter        string  `json:"source_filter,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Query == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_query", "query is required")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 5
	}
	if req.MaxResults > searchResultCap {
		req.MaxResults = searchResultCap
	}

	results, err := s.store.Search(req.Query, req.MaxResults, req.SimilarityThreshold, req.SourceFilter)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	s.respond(w, r, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

type addMemoryRequest struct {
	ID           string   `json:"id,omitempty"`
	Content      string   `json:"content"`
	Title        string   `json:"title,omitempty"`
	Date         string   `json:"date,omitempty"`
	Source       string   `json:"source,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Complexity   string   `json:"complexity,omitempty"`
	Project      string   `json:"project,omitempty"`
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req addMemoryRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_content", "content is required")
		return
	}
	if len(req.Content) > types.MaxContentLen {
		s.respondError(w, r, http.StatusBadRequest, "content_too_large",
			fmt.Sprintf("content exceeds %d characters", types.MaxContentLen))
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	source := req.Source
	if source == "" {
		source = string(types.SourceClaudeCode)
	}
	date := req.Date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	m := &types.Memory{
		ID:      id,
		Content: req.Content,
		Metadata: types.Metadata{
			Title:        req.Title,
			Date:         date,
			Source:       types.Source(source),
			Technologies: req.Technologies,
			Complexity:   types.Complexity(req.Complexity),
			Project:      req.Project,
		},
	}
	m.Metadata.SetExtra("via_api", "true")
	m.Metadata.SetExtra("indexed_at", time.Now().UTC().Format(time.RFC3339))
	m.Metadata.SetExtra("conversation_length", strconv.Itoa(len(req.Content)))
	m.Metadata.SetExtra("code_blocks", strconv.Itoa(strings.Count(req.Content, "```")/2))

	if err := s.store.Add(m); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			s.respondError(w, r, http.StatusConflict, "duplicate_id", err.Error())
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, "add_failed", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count()
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "db_unavailable", err.Error())
		return
	}

	health := map[string]any{
		"status":         "ok",
		"total_memories": count,
		"metrics":        s.metrics.Snapshot(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			health["rss_bytes"] = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			health["cpu_percent"] = cpu
		}
	}
	s.respond(w, r, http.StatusOK, health)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", defaultListLen)
	if limit < 1 {
		limit = defaultListLen
	}
	if limit > listLimitCap {
		limit = listLimitCap
	}

	all, err := s.store.GetAll()
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	pageItems := all[start:end]
	if pageItems == nil {
		pageItems = []*types.Memory{}
	}

	s.respond(w, r, http.StatusOK, map[string]any{
		"memories": pageItems,
		"total":    len(all),
		"page":     page,
		"limit":    limit,
	})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Get(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, http.StatusNotFound, "not_found", "no memory with id "+id)
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}

// ─── Curator endpoints ───────────────────────────────────────────────────────

func (s *Server) handleCuratorHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count()
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "db_unavailable", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{
		"status":         "ok",
		"total_memories": count,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, s.curator.AnalyzeHealth())
}

type dryRunRequest struct {
	DryRun *bool `json:"dry_run,omitempty"`
}

func (s *Server) handleDeduplicate(w http.ResponseWriter, r *http.Request) {
	var req dryRunRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	result, err := s.curator.Deduplicate(dryRunDefault(req.DryRun))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "dedupe_failed", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

type consolidateRequest struct {
	MemoryIDs []string `json:"memory_ids"`
	Title     string   `json:"title,omitempty"`
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if len(req.MemoryIDs) == 0 {
		s.respondError(w, r, http.StatusBadRequest, "missing_memory_ids", "memory_ids is required")
		return
	}
	result, err := s.curator.Consolidate(req.MemoryIDs, req.Title)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "consolidate_failed", err.Error())
		return
	}
	if result.Status == "not_found" {
		s.respondError(w, r, http.StatusNotFound, "not_found", "none of the given memory_ids exist")
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

type archiveRequest struct {
	Days   int   `json:"days,omitempty"`
	DryRun *bool `json:"dry_run,omitempty"`
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	result, err := s.curator.Archive(req.Days, dryRunDefault(req.DryRun))
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "archive_failed", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.curator.Enhance(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, http.StatusNotFound, "not_found", "no memory with id "+id)
			return
		}
		s.respondError(w, r, http.StatusInternalServerError, "enhance_failed", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, result)
}

func (s *Server) handleAutoCurate(w http.ResponseWriter, r *http.Request) {
	var req dryRunRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	s.respond(w, r, http.StatusOK, s.curator.AutoCurate(dryRunDefault(req.DryRun)))
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
