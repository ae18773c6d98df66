package prep

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodledoc/internal/model"
)

func whiteImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	fillGray(img, 255)
	return img
}

func TestNormalizeInkShapeAndWhiteCorners(t *testing.T) {
	src := whiteImage(200, 100)
	out := NormalizeInk(src, DefaultParams())
	b := out.Bounds()
	require.Equal(t, CanvasSize, b.Dx())
	require.Equal(t, CanvasSize, b.Dy())

	corners := []image.Point{
		{0, 0}, {CanvasSize - 1, 0}, {0, CanvasSize - 1}, {CanvasSize - 1, CanvasSize - 1},
	}
	for _, c := range corners {
		r, g, bch, _ := out.At(c.X, c.Y).RGBA()
		assert.GreaterOrEqual(t, r>>8, uint32(200))
		assert.GreaterOrEqual(t, g>>8, uint32(200))
		assert.GreaterOrEqual(t, bch>>8, uint32(200))
	}
}

func TestNormalizeInkInvertsLightOnDark(t *testing.T) {
	// Mostly-black page with bright ink: mean intensity < 127 triggers invert.
	src := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			src.SetGray(x, y, color.Gray{Y: 10})
		}
	}
	out := NormalizeInk(src, DefaultParams())
	// After inversion the background should read as bright, not dark.
	r, _, _, _ := out.At(CanvasSize/2, CanvasSize/2).RGBA()
	assert.Greater(t, r>>8, uint32(100))
}

func TestNormalizeSketchCompositesAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	// Fully transparent: after compositing onto white, should look white.
	out := NormalizeSketch(src, DefaultParams())
	r, g, b, _ := out.At(10, 10).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Greater(t, g>>8, uint32(200))
	assert.Greater(t, b>>8, uint32(200))
}

func TestExtractRegionsQuadrantsExceedHalf(t *testing.T) {
	src := whiteImage(384, 384)
	regions := ExtractRegions(src, 0.10)
	require.Len(t, regions, 5)
	for _, r := range []model.Region{model.RegionQ1, model.RegionQ2, model.RegionQ3, model.RegionQ4} {
		b := regions[r].Bounds()
		assert.Greater(t, b.Dx(), 384/2)
		assert.Greater(t, b.Dy(), 384/2)
	}
	full := regions[model.RegionFull].Bounds()
	assert.Equal(t, 384, full.Dx())
	assert.Equal(t, 384, full.Dy())
}

func TestExtractRegionsZeroOverlapIsExactHalf(t *testing.T) {
	src := whiteImage(400, 200)
	regions := ExtractRegions(src, 0)
	q1 := regions[model.RegionQ1].Bounds()
	assert.Equal(t, 200, q1.Dx())
	assert.Equal(t, 100, q1.Dy())
}

func TestPrepareReturnsFiveRegionsAndRaw(t *testing.T) {
	src := whiteImage(300, 150)
	pp := Prepare(src, 0.10, DefaultParams())
	assert.Len(t, pp.Regions, 5)
	assert.NotNil(t, pp.Raw)
	assert.Equal(t, CanvasSize, pp.Normalized.Bounds().Dx())
}
