package objectstore

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
)

// PageLoader adapts an ObjectStore into the rendered-page lookup the
// retrieval engine's accurate-mode fallback and the eval harness's
// pseudo-query generator both need: given a (doc_id, page_num), return the
// decoded PNG bitmap the ingestion coordinator wrote for that page.
type PageLoader struct {
	store ObjectStore
}

// NewPageLoader wraps store as a page loader. Keys are laid out the same
// way the disk-backed rendered/ directory is: "rendered/{doc_id}/{page_num}.png".
func NewPageLoader(store ObjectStore) *PageLoader {
	return &PageLoader{store: store}
}

func pageKey(docID string, pageNum int) string {
	return fmt.Sprintf("rendered/%s/%d.png", docID, pageNum)
}

// LoadRenderedPage implements retrieve.RenderedPageLoader and eval's page
// source. It returns the backing store's error unchanged, so callers can
// match ErrNotFound to tell a missing page apart from a transient backend
// failure.
func (p *PageLoader) LoadRenderedPage(ctx context.Context, docID string, pageNum int) (image.Image, error) {
	r, _, err := p.store.Get(ctx, pageKey(docID, pageNum))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return png.Decode(r)
}

// PutRenderedPage stores a rendered page bitmap under the same key
// LoadRenderedPage reads back, so the ingestion coordinator can write
// through an ObjectStore instead of directly to the filesystem when an S3
// backend is configured.
func (p *PageLoader) PutRenderedPage(ctx context.Context, docID string, pageNum int, img image.Image) error {
	pr, pw := io.Pipe()
	encodeErrCh := make(chan error, 1)
	go func() {
		encodeErrCh <- png.Encode(pw, img)
		pw.Close()
	}()
	_, err := p.store.Put(ctx, pageKey(docID, pageNum), pr, PutOptions{ContentType: "image/png"})
	if encErr := <-encodeErrCh; encErr != nil {
		return encErr
	}
	return err
}
