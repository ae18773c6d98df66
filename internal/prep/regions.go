package prep

import (
	"image"

	"golang.org/x/image/draw"

	"doodledoc/internal/model"
)

// ExtractRegions decomposes img into the five overlapping regions (full +
// four quadrants) per the closed Region set. overlap must be in [0, 0.5);
// values outside that range are clamped.
func ExtractRegions(img image.Image, overlap float64) map[model.Region]image.Image {
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= 0.5 {
		overlap = 0.499
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	halfW := float64(w) / 2
	halfH := float64(h) / 2
	oW := overlap * float64(w)
	oH := overlap * float64(h)

	q1 := image.Rect(0, 0, clampCoord(halfW+oW, w), clampCoord(halfH+oH, h))
	q2 := image.Rect(clampCoord(halfW-oW, w), 0, w, clampCoord(halfH+oH, h))
	q3 := image.Rect(0, clampCoord(halfH-oH, h), clampCoord(halfW+oW, w), h)
	q4 := image.Rect(clampCoord(halfW-oW, w), clampCoord(halfH-oH, h), w, h)

	return map[model.Region]image.Image{
		model.RegionFull: crop(img, image.Rect(0, 0, w, h)),
		model.RegionQ1:    crop(img, q1),
		model.RegionQ2:    crop(img, q2),
		model.RegionQ3:    crop(img, q3),
		model.RegionQ4:    crop(img, q4),
	}
}

func clampCoord(v float64, max int) int {
	n := int(v + 0.5)
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// crop copies the given rectangle (relative to img's origin) of img into a
// freshly allocated RGBA image, regardless of img's concrete type.
func crop(img image.Image, rect image.Rectangle) image.Image {
	b := img.Bounds()
	abs := rect.Add(b.Min)
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, abs.Min, draw.Src)
	return dst
}
