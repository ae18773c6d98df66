// Package httpapi exposes doodledoc's HTTP surface: health, ingest job
// control, sketch search, document listing/removal/reindex, and rendered
// page serving. Routing follows the stdlib ServeMux method+pattern style
// (Go 1.22+) the rest of the example pack's HTTP servers use.
package httpapi

import (
	"net/http"

	"doodledoc/internal/logging"
)

// Server exposes doodledoc's HTTP API wired to a Service.
type Server struct {
	service *Service
	mux     *http.ServeMux
	log     logging.Logger
}

// NewServer creates the HTTP API server wired to service.
func NewServer(service *Service, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop{}
	}
	s := &Server{service: service, mux: http.NewServeMux(), log: log}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)

	s.mux.HandleFunc("POST /v1/ingest", s.handleStartIngest)
	s.mux.HandleFunc("GET /v1/ingest/{jobID}", s.handleIngestStatus)

	s.mux.HandleFunc("POST /v1/search", s.handleSearch)

	s.mux.HandleFunc("GET /v1/documents", s.handleListDocuments)
	s.mux.HandleFunc("DELETE /v1/documents", s.handleDeleteDocuments)
	s.mux.HandleFunc("POST /v1/documents/reindex", s.handleReindexDocuments)

	s.mux.HandleFunc("GET /v1/doc/{docID}/page/{pageNum}", s.handleGetPage)
}
