package httpapi

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"doodledoc/internal/ingest"
	"doodledoc/internal/logging"
	"doodledoc/internal/metadatastore"
	"doodledoc/internal/model"
	"doodledoc/internal/multivec"
	"doodledoc/internal/obs"
	"doodledoc/internal/retrieve"
	"doodledoc/internal/singlevec"
)

// PageSource loads a previously rendered page bitmap, used to serve
// GET /v1/doc/{doc_id}/page/{page_num}.
type PageSource interface {
	LoadRenderedPage(ctx context.Context, docID string, pageNum int) (image.Image, error)
}

// Service bundles the backing components the HTTP layer drives. It holds
// no state of its own beyond in-flight ingest jobs; all durable state
// lives in the C2/C3/C4/C5 stores it was constructed with.
type Service struct {
	coordinator *ingest.Coordinator
	engine      *retrieve.Engine
	meta        metadatastore.Store
	single      singlevec.Index
	multi       multivec.Store
	pages       PageSource
	log         logging.Logger

	mu   sync.Mutex
	jobs map[string]*ingestJob

	// ingestMu serializes coordinator.Ingest calls across jobs.
	ingestMu sync.Mutex
}

type ingestJob struct {
	progress *obs.LatestProgress
	mu       sync.Mutex
	done     bool
	result   ingest.Result
	err      error
}

// NewService constructs a Service. pages may be nil, in which case
// GET /v1/doc/{doc_id}/page/{page_num} always 404s.
func NewService(
	coordinator *ingest.Coordinator,
	engine *retrieve.Engine,
	meta metadatastore.Store,
	single singlevec.Index,
	multi multivec.Store,
	pages PageSource,
	log logging.Logger,
) *Service {
	if log == nil {
		log = logging.Noop{}
	}
	return &Service{
		coordinator: coordinator,
		engine:      engine,
		meta:        meta,
		single:      single,
		multi:       multi,
		pages:       pages,
		log:         log,
		jobs:        make(map[string]*ingestJob),
	}
}

// StartIngest launches an ingest job in the background and returns its
// job ID immediately. Only one ingest job runs per Service at a time: a job
// started while another is running waits for it to finish, so jobs never
// run concurrently against the single data directory.
func (s *Service) StartIngest(rootPath string, force bool) string {
	jobID := uuid.NewString()
	job := &ingestJob{progress: obs.NewLatestProgress()}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	go func() {
		s.ingestMu.Lock()
		result, err := s.coordinator.Ingest(context.Background(), rootPath, force, job.progress)
		s.ingestMu.Unlock()
		job.mu.Lock()
		job.done = true
		job.result = result
		job.err = err
		job.mu.Unlock()
	}()

	return jobID
}

// IngestStatus is the shape returned for a job's progress snapshot.
type IngestStatus struct {
	JobID      string     `json:"job_id"`
	Status     obs.Status `json:"status"`
	DocsDone   int        `json:"docs_done"`
	DocsTotal  int        `json:"docs_total"`
	PagesDone  int        `json:"pages_done"`
	PagesTotal int        `json:"pages_total"`
	CurrentDoc string     `json:"current_doc,omitempty"`
	Error      string     `json:"error,omitempty"`
	ETASeconds *float64   `json:"eta_seconds,omitempty"`
}

// IngestJobStatus reports the latest known progress for jobID, or false if
// no such job exists.
func (s *Service) IngestJobStatus(jobID string) (IngestStatus, bool) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return IngestStatus{}, false
	}

	job.mu.Lock()
	done, result, jobErr := job.done, job.result, job.err
	job.mu.Unlock()

	snap, hasSnap := job.progress.Snapshot()
	status := IngestStatus{JobID: jobID}
	if hasSnap {
		status.Status = snap.Status
		status.DocsDone = snap.DocsDone
		status.DocsTotal = snap.DocsTotal
		status.PagesDone = snap.PagesDone
		status.PagesTotal = snap.PagesTotal
		status.CurrentDoc = snap.CurrentDoc
	}
	if done {
		status.Status = obs.StatusCompleted
		status.DocsDone = result.DocsDone
		status.PagesDone = result.PagesDone
		if jobErr != nil {
			status.Error = jobErr.Error()
		}
	} else if status.PagesTotal > 0 && status.PagesDone > 0 {
		eta := estimateETA(snap)
		status.ETASeconds = &eta
	}
	return status, true
}

func estimateETA(p obs.Progress) float64 {
	if p.PagesDone == 0 {
		return 0
	}
	remaining := p.PagesTotal - p.PagesDone
	if remaining <= 0 {
		return 0
	}
	return float64(remaining) // placeholder unit-rate estimate; refined once per-page timing is tracked
}

// ReindexDocuments reindexes each doc_id in place, stopping at the first
// failure and reporting how many completed.
func (s *Service) ReindexDocuments(ctx context.Context, docIDs []string) (int, error) {
	n := 0
	for _, id := range docIDs {
		if _, err := s.coordinator.ReindexDocument(ctx, id, obs.NopProgress{}); err != nil {
			return n, fmt.Errorf("reindex %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// DeleteDocuments removes each doc_id from every index and the metadata
// store, stopping at the first failure.
func (s *Service) DeleteDocuments(ctx context.Context, docIDs []string) (int, error) {
	n := 0
	for _, id := range docIDs {
		if err := s.single.RemoveByDocID(ctx, id); err != nil {
			return n, err
		}
		if err := s.multi.RemoveByDocID(ctx, id); err != nil {
			return n, err
		}
		if err := s.meta.DeleteDocument(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ListDocuments returns every ingested document.
func (s *Service) ListDocuments(ctx context.Context) ([]model.Document, error) {
	return s.meta.ListDocuments(ctx)
}

// Search runs a sketch query against the retrieval engine.
func (s *Service) Search(ctx context.Context, q retrieve.Query) ([]retrieve.Result, time.Duration, error) {
	return s.engine.Search(ctx, q)
}

// TotalIndexedPages sums the page count of every ingested document, for
// reporting corpus size alongside search results.
func (s *Service) TotalIndexedPages(ctx context.Context) (int, error) {
	docs, err := s.meta.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range docs {
		total += d.NumPages
	}
	return total, nil
}
