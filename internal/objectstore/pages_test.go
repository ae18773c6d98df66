package objectstore

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageLoaderRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	loader := NewPageLoader(store)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(0, 0, color.Gray{Y: 128})

	ctx := context.Background()
	require.NoError(t, loader.PutRenderedPage(ctx, "doc-1", 3, img))

	got, err := loader.LoadRenderedPage(ctx, "doc-1", 3)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), got.Bounds())
}

func TestPageLoaderMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore()
	loader := NewPageLoader(store)

	_, err := loader.LoadRenderedPage(context.Background(), "doc-missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}
