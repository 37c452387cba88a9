package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/scrypster/orderscope/internal/dataset"
	"github.com/scrypster/orderscope/internal/query"
	"github.com/scrypster/orderscope/internal/search"
	"github.com/scrypster/orderscope/internal/view"
	"github.com/scrypster/orderscope/pkg/types"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// SearchResponse is returned by GET /api/search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Page    int            `json:"page"`
	Records []types.Record `json:"records"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Text string `json:"text"`
	Page int    `json:"page"`
}

// QueryResponse is returned by POST /api/query.
type QueryResponse struct {
	Conditions []types.ParsedCondition `json:"conditions"`
	Records    []types.Record          `json:"records"`
	Fallback   bool                    `json:"fallback,omitempty"`
}

// ViewRequest is the body of POST /api/view.
type ViewRequest struct {
	State view.State `json:"state"`
	Page  int        `json:"page"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"totalChunks": s.dataset.TotalChunks(r.Context()),
	})
}

// handlePage handles GET /api/page?page=&size=.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 0)

	p, err := s.dataset.GetPage(r.Context(), page, size)
	if err != nil {
		s.respondPageError(w, page, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleSearch handles GET /api/search?q=&page=. The records of page are
// the local set remote hits are reconciled against.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	page := parseInt(r.URL.Query().Get("page"), 1)

	local, ok := s.localRecords(r.Context(), w, page)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, SearchResponse{
		Query:   search.NormalizeQuery(q),
		Page:    page,
		Records: s.search.Search(r.Context(), q, local),
	})
}

// handleQuery handles POST /api/query. Text that yields no conditions is
// answered with a substring search instead.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	local, ok := s.localRecords(r.Context(), w, req.Page)
	if !ok {
		return
	}

	resp := QueryResponse{Conditions: query.Parse(req.Text)}
	if query.Valid(resp.Conditions) {
		resp.Records = query.Apply(local, resp.Conditions)
	} else {
		resp.Conditions = []types.ParsedCondition{}
		resp.Fallback = strings.TrimSpace(req.Text) != ""
		resp.Records = search.LocalFallback(req.Text, local)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleView handles POST /api/view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req ViewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	local, ok := s.localRecords(r.Context(), w, req.Page)
	if !ok {
		return
	}

	res, err := s.views.Resolve(r.Context(), req.State, local)
	if err != nil {
		if errors.Is(err, view.ErrInvalidState) {
			respondError(w, http.StatusBadRequest, "invalid view state", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve view", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleReset handles POST /api/cache/reset.
func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.dataset.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) localRecords(ctx context.Context, w http.ResponseWriter, page int) ([]types.Record, bool) {
	if page < 1 {
		page = 1
	}
	records, err := s.dataset.Records(ctx, page)
	if err != nil {
		s.respondPageError(w, page, err)
		return nil, false
	}
	return records, true
}

func (s *Server) respondPageError(w http.ResponseWriter, page int, err error) {
	s.log.Error("failed to load page", "page", page, "error", err)
	var fetchErr *dataset.ChunkFetchError
	if errors.As(err, &fetchErr) {
		respondError(w, http.StatusBadGateway, "failed to load orders", err)
		return
	}
	respondError(w, http.StatusInternalServerError, "failed to load orders", err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// parseInt parses s, returning defaultValue when s is empty or invalid.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return v
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an ErrorResponse with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		resp.Details = map[string]any{"error": err.Error()}
	}
	respondJSON(w, statusCode, resp)
}
