package prep

import "image"

// claheTile holds the cumulative-histogram mapping table for one grid tile.
type claheTile struct {
	cdf [256]uint8
}

// applyCLAHE runs Contrast Limited Adaptive Histogram Equalization over a
// single-channel image. clipLimit is expressed as in the classic algorithm:
// a multiple of the average bin count per tile (typical values 1.0-4.0).
// grid is the number of tiles per axis (e.g. 8 for an 8x8 grid).
//
// There is no ecosystem CLAHE implementation among the example programs'
// dependencies; this is a direct, from-scratch port of the standard
// tile-histogram-clip-and-bilinear-interpolate algorithm.
func applyCLAHE(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	if grid < 1 {
		grid = 1
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src
	}

	tileW := ceilDiv(w, grid)
	tileH := ceilDiv(h, grid)
	tiles := make([]claheTile, grid*grid)

	for ty := 0; ty < grid; ty++ {
		for tx := 0; tx < grid; tx++ {
			x0 := b.Min.X + tx*tileW
			y0 := b.Min.Y + ty*tileH
			x1 := minInt(x0+tileW, b.Max.X)
			y1 := minInt(y0+tileH, b.Max.Y)
			tiles[ty*grid+tx] = buildTile(src, x0, y0, x1, y1, clipLimit)
		}
	}

	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		// Tile-center coordinate of this row, in tile units, offset by 0.5
		// so interpolation is centered on tile midpoints.
		fy := (float64(y-b.Min.Y)+0.5)/float64(tileH) - 0.5
		ty0 := clampInt(int(floor(fy)), 0, grid-1)
		ty1 := clampInt(ty0+1, 0, grid-1)
		wy := fy - floor(fy)
		if fy < 0 {
			wy = 0
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			fx := (float64(x-b.Min.X)+0.5)/float64(tileW) - 0.5
			tx0 := clampInt(int(floor(fx)), 0, grid-1)
			tx1 := clampInt(tx0+1, 0, grid-1)
			wx := fx - floor(fx)
			if fx < 0 {
				wx = 0
			}

			v := src.GrayAt(x, y).Y
			v00 := float64(tiles[ty0*grid+tx0].cdf[v])
			v01 := float64(tiles[ty0*grid+tx1].cdf[v])
			v10 := float64(tiles[ty1*grid+tx0].cdf[v])
			v11 := float64(tiles[ty1*grid+tx1].cdf[v])

			top := v00*(1-wx) + v01*wx
			bot := v10*(1-wx) + v11*wx
			val := top*(1-wy) + bot*wy

			dst.SetGray(x, y, grayVal(val))
		}
	}
	return dst
}

func buildTile(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) claheTile {
	var hist [256]int
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(x, y).Y]++
			n++
		}
	}
	if n == 0 {
		var t claheTile
		for i := range t.cdf {
			t.cdf[i] = uint8(i)
		}
		return t
	}

	if clipLimit > 0 {
		limit := int(clipLimit * float64(n) / 256.0)
		if limit < 1 {
			limit = 1
		}
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		// Redistribute the clipped excess uniformly across all bins.
		add := excess / 256
		rem := excess % 256
		for i := range hist {
			hist[i] += add
			if i < rem {
				hist[i]++
			}
		}
	}

	var t claheTile
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		t.cdf[i] = grayVal(float64(cum) * 255.0 / float64(n))
	}
	return t
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floor(f float64) float64 {
	i := int(f)
	if f < 0 && float64(i) != f {
		i--
	}
	return float64(i)
}

func grayVal(f float64) uint8 {
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f + 0.5)
}
