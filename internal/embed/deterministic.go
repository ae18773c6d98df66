package embed

import (
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"math"
)

// deterministicSingle is a lightweight, seeded embedder suitable for tests
// and for environments without access to the real single-vector model. It
// hashes pixel blocks into a fixed-size vector and L2-normalizes the result,
// matching the shape contract (L2-normalized, fixed dimension) the
// retrieval engine requires without depending on a real model weight file.
type deterministicSingle struct {
	dim  int
	seed uint64
}

// NewDeterministicSingle constructs a SingleVectorEmbedder with the given
// output dimension. If dim <= 0, it defaults to 1152 (the spec's default
// D1).
func NewDeterministicSingle(dim int, seed uint64) SingleVectorEmbedder {
	if dim <= 0 {
		dim = 1152
	}
	return &deterministicSingle{dim: dim, seed: seed}
}

func (d *deterministicSingle) Dimension() int { return d.dim }

func (d *deterministicSingle) EmbedOne(_ context.Context, img image.Image) ([]float32, error) {
	return embedImage(img, d.dim, d.seed), nil
}

func (d *deterministicSingle) EmbedBatch(ctx context.Context, imgs []image.Image) ([][]float32, error) {
	out := make([][]float32, len(imgs))
	for i, img := range imgs {
		v, err := d.EmbedOne(ctx, img)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func embedImage(img image.Image, dim int, seed uint64) []float32 {
	v := make([]float32, dim)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return v
	}
	// Sample a coarse grid of pixels so the vector reflects gross visual
	// structure (bright/dark regions) rather than exact byte content.
	const grid = 16
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x := b.Min.X + (gx*w)/grid
			y := b.Min.Y + (gy*h)/grid
			r, g, bch, _ := img.At(x, y).RGBA()
			lum := (299*int(r>>8) + 587*int(g>>8) + 114*int(bch>>8)) / 1000
			addHashed(seed, gx, gy, lum, v)
		}
	}
	normalizeL2(v)
	return v
}

func addHashed(seed uint64, gx, gy, lum int, v []float32) {
	h := fnv.New64a()
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(tmp[:])
	_, _ = h.Write([]byte{byte(gx), byte(gy)})
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	weight := (float32(lum) / 255.0) * signFromHash(hv)
	v[idx] += weight
}

func signFromHash(hv uint64) float32 {
	if hv&1 == 0 {
		return 1
	}
	return -1
}

func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// deterministicMulti is the multi-vector counterpart: it tiles the image
// into a fixed patch grid and produces one row per patch.
type deterministicMulti struct {
	dim      int
	seed     uint64
	gridSize int
}

// NewDeterministicMulti constructs a MultiVectorEmbedder that tiles each
// image into gridSize x gridSize patches, each embedded into a dim-length
// row vector.
func NewDeterministicMulti(dim int, seed uint64, gridSize int) MultiVectorEmbedder {
	if dim <= 0 {
		dim = 128
	}
	if gridSize <= 0 {
		gridSize = 8
	}
	return &deterministicMulti{dim: dim, seed: seed, gridSize: gridSize}
}

func (d *deterministicMulti) Dimension() int { return d.dim }

func (d *deterministicMulti) EmbedOne(_ context.Context, img image.Image) ([][]float32, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	patches := make([][]float32, 0, d.gridSize*d.gridSize)
	for gy := 0; gy < d.gridSize; gy++ {
		y0 := b.Min.Y + (gy*h)/d.gridSize
		y1 := b.Min.Y + ((gy+1)*h)/d.gridSize
		for gx := 0; gx < d.gridSize; gx++ {
			x0 := b.Min.X + (gx*w)/d.gridSize
			x1 := b.Min.X + ((gx+1)*w)/d.gridSize
			patch := subImagePatch(img, x0, y0, x1, y1)
			v := embedImage(patch, d.dim, d.seed+uint64(gy*d.gridSize+gx))
			patches = append(patches, v)
		}
	}
	return patches, nil
}

func subImagePatch(src image.Image, x0, y0, x1, y1 int) image.Image {
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return &rectView{src: src, rect: image.Rect(x0, y0, x1, y1)}
}

// rectView presents a sub-rectangle of src as a standalone image.Image
// without copying pixel data.
type rectView struct {
	src  image.Image
	rect image.Rectangle
}

func (r *rectView) ColorModel() color.Model { return r.src.ColorModel() }
func (r *rectView) Bounds() image.Rectangle { return image.Rect(0, 0, r.rect.Dx(), r.rect.Dy()) }
func (r *rectView) At(x, y int) color.Color {
	return r.src.At(r.rect.Min.X+x, r.rect.Min.Y+y)
}
