// Package errs defines the error kinds produced by the ingestion and
// retrieval pipelines, grouped by where they originate rather than by
// underlying Go error type.
package errs

import "fmt"

// InputError marks a bad path, missing PDF, or invalid configuration.
// Ingest aborts before mutating any state.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input error: %s: %v", e.Msg, e.Err)
	}
	return "input error: " + e.Msg
}
func (e *InputError) Unwrap() error { return e.Err }

// PageRenderError marks a corrupted PDF page. The coordinator logs it and
// proceeds with the remaining pages of the same document.
type PageRenderError struct {
	DocID   string
	PageNum int
	Err     error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("page render error: doc %s page %d: %v", e.DocID, e.PageNum, e.Err)
}
func (e *PageRenderError) Unwrap() error { return e.Err }

// EmbeddingError marks a model failure while embedding a page. It aborts
// the current page; if recovery fails twice in a row for the same page it
// propagates as an ingest-level failure.
type EmbeddingError struct {
	DocID   string
	PageNum int
	Region  string
	Err     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error: doc %s page %d region %s: %v", e.DocID, e.PageNum, e.Region, e.Err)
}
func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionMismatchError is fatal: it indicates a model or config change
// against an existing index. Ingest aborts; fixing it requires an explicit
// reindex.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index has dimension %d, got %d", e.Expected, e.Got)
}

// QueryError marks an unreadable sketch or a dimension mismatch at query
// time. It is returned to the caller; search never partially answers.
type QueryError struct {
	Msg string
	Err error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query error: %s: %v", e.Msg, e.Err)
	}
	return "query error: " + e.Msg
}
func (e *QueryError) Unwrap() error { return e.Err }

// MissingArtifactError marks a rendered page absent on disk during rerank.
// Callers warn and drop the candidate from the rerank set; it never fails
// the whole query.
type MissingArtifactError struct {
	DocID   string
	PageNum int
	Path    string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing artifact: doc %s page %d at %s", e.DocID, e.PageNum, e.Path)
}
