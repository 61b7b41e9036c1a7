package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/index"
	"github.com/Aman-CERP/codesearch/internal/search"
	"github.com/Aman-CERP/codesearch/pkg/version"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// IndexRequest is the body of POST /v1/index.
type IndexRequest struct {
	Path       string `json:"path,omitempty"`
	Force      bool   `json:"force,omitempty"`
	Background bool   `json:"background,omitempty"`
}

// IndexResponse is returned by POST /v1/index. Summary is set for foreground
// runs, TaskID for background runs.
type IndexResponse struct {
	Root    string         `json:"root"`
	TaskID  string         `json:"task_id,omitempty"`
	Summary *index.Summary `json:"summary,omitempty"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Path           string   `json:"path,omitempty"`
	Query          string   `json:"query"`
	K              int      `json:"k,omitempty"`
	IncludeContext *bool    `json:"include_context,omitempty"`
	Language       string   `json:"language,omitempty"`
	ChunkType      string   `json:"chunk_type,omitempty"`
	Scope          []string `json:"scope,omitempty"`
}

// SearchResponse is returned by POST /v1/search.
type SearchResponse struct {
	Root    string          `json:"root"`
	Results []search.Result `json:"results"`
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error code of the codesearch error taxonomy.
type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) root(path string) string {
	if path == "" {
		return s.defaultRoot
	}
	return path
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	root := s.root(req.Path)

	if req.Background {
		task, err := s.svc.StartIndex(r.Context(), root, req.Force)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusAccepted, IndexResponse{Root: root, TaskID: task.ID()})
		return
	}

	summary, err := s.svc.Index(r.Context(), root, req.Force, nil)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, IndexResponse{Root: root, Summary: summary})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	includeContext := true
	if req.IncludeContext != nil {
		includeContext = *req.IncludeContext
	}
	root := s.root(req.Path)

	results, err := s.svc.Search(r.Context(), root, search.Request{
		Query:          req.Query,
		K:              req.K,
		IncludeContext: includeContext,
		Scopes:         req.Scope,
		Language:       req.Language,
		ChunkType:      req.ChunkType,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	s.respondJSON(w, http.StatusOK, SearchResponse{Root: root, Results: results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context(), s.root(r.URL.Query().Get("path")))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.QueryMetrics())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.respondError(w, cserrors.ValidationError("invalid request body: "+err.Error(), err))
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("http_encode_failed", "error", err.Error())
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("http_request_failed", "code", body.Error.Code, "error", err.Error())
	}
	s.respondJSON(w, status, body)
}

// errorResponse maps an operation error to an HTTP status and body.
func errorResponse(err error) (int, ErrorBody) {
	var csErr *cserrors.CodeSearchError
	if !errors.As(err, &csErr) {
		return http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
			Code:    cserrors.ErrCodeInternal,
			Message: err.Error(),
		}}
	}

	body := ErrorBody{Error: ErrorDetail{
		Code:       csErr.Code,
		Message:    csErr.Message,
		Suggestion: csErr.Suggestion,
	}}

	switch csErr.Code {
	case cserrors.ErrCodeIndexNotFound:
		return http.StatusNotFound, body
	case cserrors.ErrCodeIndexLocked, cserrors.ErrCodeDimensionMismatch:
		return http.StatusConflict, body
	case cserrors.ErrCodeEmbeddingUnavailable, cserrors.ErrCodeModelTimeout:
		return http.StatusServiceUnavailable, body
	}
	if csErr.Category == cserrors.CategoryValidation {
		return http.StatusBadRequest, body
	}
	return http.StatusInternalServerError, body
}
