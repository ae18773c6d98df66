package embed

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDeterministicSingleIsL2Normalized(t *testing.T) {
	emb := NewDeterministicSingle(256, 7)
	img := solidImage(64, 64, color.Gray{Y: 120})
	v, err := emb.EmbedOne(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, v, 256)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-3)
}

func TestDeterministicSingleIsDeterministic(t *testing.T) {
	emb := NewDeterministicSingle(128, 42)
	img := solidImage(32, 32, color.Gray{Y: 200})
	a, err := emb.EmbedOne(context.Background(), img)
	require.NoError(t, err)
	b, err := emb.EmbedOne(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeterministicMultiProducesGridSquaredRows(t *testing.T) {
	emb := NewDeterministicMulti(32, 1, 4)
	img := solidImage(128, 128, color.Gray{Y: 50})
	matrix, err := emb.EmbedOne(context.Background(), img)
	require.NoError(t, err)
	assert.Len(t, matrix, 16)
	for _, row := range matrix {
		assert.Len(t, row, 32)
	}
}

func TestEmbedBatchMatchesPerImageOrder(t *testing.T) {
	emb := NewDeterministicSingle(64, 1)
	imgs := []image.Image{
		solidImage(16, 16, color.Gray{Y: 10}),
		solidImage(16, 16, color.Gray{Y: 250}),
	}
	batch, err := emb.EmbedBatch(context.Background(), imgs)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	one0, _ := emb.EmbedOne(context.Background(), imgs[0])
	one1, _ := emb.EmbedOne(context.Background(), imgs[1])
	assert.Equal(t, one0, batch[0])
	assert.Equal(t, one1, batch[1])
}
