// Package prep implements the page preparer (C1): deterministic ink
// normalization and region decomposition shared by ingestion and query
// normalization.
package prep

import (
	"image"
	"image/color"
)

// Params configures normalization. Zero values are invalid; use
// DefaultParams or a config-derived value.
type Params struct {
	ClipLimit float64
	GridSize  int
}

// DefaultParams matches the spec's stated defaults (clip limit 2.0, 8x8
// grid).
func DefaultParams() Params {
	return Params{ClipLimit: 2.0, GridSize: 8}
}

// NormalizeInk runs the deterministic ink-normalization pipeline:
// grayscale -> CLAHE -> dark-on-light check (invert if needed) -> resize
// with aspect-preserving padding into a CanvasSize x CanvasSize canvas ->
// expand to 3 channels by replication.
func NormalizeInk(img image.Image, p Params) *image.RGBA {
	gray := toGray(img)
	equalized := applyCLAHE(gray, p.ClipLimit, p.GridSize)
	if meanIntensity(equalized) < 127 {
		equalized = invertGray(equalized)
	}
	padded := resizeWithPadding(equalized, CanvasSize, 255)
	return grayToRGB(padded)
}

// NormalizeSketch runs the same pipeline as NormalizeInk, but first
// composites any alpha channel onto white so a user's sketch (typically
// drawn on a transparent canvas) is flattened before normalization.
func NormalizeSketch(img image.Image, p Params) *image.RGBA {
	flattened := compositeOntoWhite(img)
	return NormalizeInk(flattened, p)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return dst
}

func meanIntensity(img *image.Gray) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 255
	}
	sum := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += int(img.GrayAt(x, y).Y)
		}
	}
	return float64(sum) / float64(n)
}

func invertGray(img *image.Gray) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.GrayAt(x, y).Y
			dst.SetGray(x, y, color.Gray{Y: 255 - v})
		}
	}
	return dst
}
