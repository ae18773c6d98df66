package httpapi

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"doodledoc/internal/errs"
	"doodledoc/internal/retrieve"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type startIngestRequest struct {
	RootPath string `json:"root_path"`
	Force    bool   `json:"force"`
}

func (s *Server) handleStartIngest(w http.ResponseWriter, r *http.Request) {
	var req startIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.RootPath == "" {
		respondError(w, http.StatusBadRequest, errors.New("root_path is required"))
		return
	}
	jobID := s.service.StartIngest(req.RootPath, req.Force)
	respondJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	status, ok := s.service.IngestJobStatus(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("unknown job_id"))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleSearch accepts a multipart form: a "sketch_image" PNG file field,
// plus optional "text_query", "top_k", "mode" ("fast" or "accurate"), and
// "use_rerank" fields. It never partially answers a query: any decode or
// embedding failure returns an error response instead of a truncated result
// list.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	file, _, err := r.FormFile("sketch_image")
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("sketch_image file is required"))
		return
	}
	defer file.Close()
	sketch, err := png.Decode(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	topK, _ := strconv.Atoi(r.FormValue("top_k"))
	if topK <= 0 {
		topK = 20
	}
	mode := retrieve.ModeFast
	if strings.EqualFold(r.FormValue("mode"), "accurate") {
		mode = retrieve.ModeAccurate
	}
	rerank, _ := strconv.ParseBool(r.FormValue("use_rerank"))

	q := retrieve.Query{
		Sketch:    sketch,
		Text:      r.FormValue("text_query"),
		TopK:      topK,
		Mode:      mode,
		UseRerank: rerank,
	}
	results, elapsed, err := s.service.Search(r.Context(), q)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	totalPages, err := s.service.TotalIndexedPages(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"results":             results,
		"query_time_ms":       elapsed.Milliseconds(),
		"total_indexed_pages": totalPages,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListDocuments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

type docIDsRequest struct {
	DocIDs []string `json:"doc_ids"`
}

func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req docIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.DocIDs) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("doc_ids is required"))
		return
	}
	n, err := s.service.DeleteDocuments(r.Context(), req.DocIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (s *Server) handleReindexDocuments(w http.ResponseWriter, r *http.Request) {
	var req docIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.DocIDs) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("doc_ids is required"))
		return
	}
	n, err := s.service.ReindexDocuments(r.Context(), req.DocIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reindexed": n})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	pageNum, err := strconv.Atoi(r.PathValue("pageNum"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("page_num must be an integer"))
		return
	}
	if s.service.pages == nil {
		respondError(w, http.StatusNotFound, errors.New("page source not configured"))
		return
	}
	img, err := s.service.pages.LoadRenderedPage(r.Context(), docID, pageNum)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_ = png.Encode(w, img)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	var inputErr *errs.InputError
	var queryErr *errs.QueryError
	switch {
	case errors.As(err, &inputErr), errors.As(err, &queryErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
