package prep

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// CanvasSize is the fixed square canvas single-vector embedding inputs are
// normalized into.
const CanvasSize = 384

// resizeWithPadding scales src to fit within (size, size) preserving aspect
// ratio, then centers it on a size×size canvas padded with pad (255 = white
// for 8-bit grayscale).
func resizeWithPadding(src *image.Gray, size int, pad uint8) *image.Gray {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		dst := image.NewGray(image.Rect(0, 0, size, size))
		fillGray(dst, pad)
		return dst
	}

	scale := float64(size) / float64(sw)
	if s2 := float64(size) / float64(sh); s2 < scale {
		scale = s2
	}
	dw := maxInt(1, int(float64(sw)*scale+0.5))
	dh := maxInt(1, int(float64(sh)*scale+0.5))

	scaled := image.NewGray(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sb, draw.Over, nil)

	dst := image.NewGray(image.Rect(0, 0, size, size))
	fillGray(dst, pad)
	offX := (size - dw) / 2
	offY := (size - dh) / 2
	draw.Draw(dst, image.Rect(offX, offY, offX+dw, offY+dh), scaled, image.Point{}, draw.Src)
	return dst
}

func fillGray(img *image.Gray, v uint8) {
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: v}}, image.Point{}, draw.Src)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// grayToRGB expands a single-channel image to 3-channel RGB by replication.
func grayToRGB(src *image.Gray) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.GrayAt(x, y).Y
			dst.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return dst
}

// compositeOntoWhite flattens an image with an alpha channel onto a white
// background, producing an opaque RGB image. Images without meaningful
// alpha pass through unchanged in color.
func compositeOntoWhite(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	white := image.NewUniform(color.White)
	draw.Draw(dst, b, white, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}
