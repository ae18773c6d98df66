// Package model defines the shared record types that flow between the page
// preparer, the indexes, the metadata store, and the retrieval engine.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Region is one of the five sub-images embedded for a page: the full page
// plus four overlapping quadrants.
type Region string

const (
	RegionFull Region = "full"
	RegionQ1   Region = "q1"
	RegionQ2   Region = "q2"
	RegionQ3   Region = "q3"
	RegionQ4   Region = "q4"
)

// Regions lists the closed set of region tags in the order they are
// produced by the page preparer and appended to the single-vector index.
var Regions = []Region{RegionFull, RegionQ1, RegionQ2, RegionQ3, RegionQ4}

// Document is a single ingested PDF. Identity is Sha256: re-indexing the
// same bytes under a different path is a duplicate, not a new document.
type Document struct {
	DocID        string    `json:"doc_id"`
	Path         string    `json:"path"`
	Sha256       string    `json:"sha256"`
	ModifiedTime time.Time `json:"modified_time"`
	NumPages     int       `json:"num_pages"`
}

// Page is keyed by (DocID, PageNum); PageNum is 0-based and dense.
type Page struct {
	DocID     string `json:"doc_id"`
	PageNum   int    `json:"page_num"`
	WidthPx   int    `json:"width_px"`
	HeightPx  int    `json:"height_px"`
	TextLayer string `json:"text_layer,omitempty"`
}

// Key returns the internal "{doc_id}:{page_num}" page key. This encoding is
// an implementation detail and must never be surfaced externally.
func (p Page) Key() string { return PageKey(p.DocID, p.PageNum) }

// PageKey builds the internal page-key encoding from its parts.
func PageKey(docID string, pageNum int) string {
	return docID + ":" + itoa(pageNum)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// NewDocID generates a 128-bit opaque stable document identifier.
func NewDocID() string {
	return uuid.NewString()
}
