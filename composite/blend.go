package composite

import (
	"sort"

	"github.com/mrjoshuak/go-sortlast/frame"
)

// before reports whether a is nearer than b in the blend order. Depth
// grows away from the viewer; equal depths are ordered by producing rank
// and then by the producer's insertion index, which makes the order total
// and the same on every rank.
func before(da float32, ra, ia int, db float32, rb, ib int) bool {
	if da != db {
		return da < db
	}
	if ra != rb {
		return ra < rb
	}
	return ia < ib
}

// sortPatches orders patches nearest first by their scalar depth.
func sortPatches(ps []*frame.Patch) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		return before(a.Depth, a.Rank, a.Index, b.Depth, b.Rank, b.Index)
	})
}

// sample is one patch's contribution to one pixel.
type sample struct {
	depth       float32
	rank, index int
	r, g, b, a  float32
}

// sortSamples orders one pixel's samples nearest first.
func sortSamples(s []sample) {
	sort.SliceStable(s, func(i, j int) bool {
		return before(s[i].depth, s[i].rank, s[i].index, s[j].depth, s[j].rank, s[j].index)
	})
}

// over composites straight color (r,g,b,a) over the premultiplied pixel
// dst, which lies behind it.
func over(dst []float32, r, g, b, a float32) {
	k := 1 - a
	dst[0] = dst[0]*k + r*a
	dst[1] = dst[1]*k + g*a
	dst[2] = dst[2]*k + b*a
	dst[3] = dst[3]*k + a
}

// under accumulates straight color (r,g,b,a) behind the premultiplied
// pixel acc. Saturated pixels are left alone.
func under(acc []float32, r, g, b, a float32) {
	if acc[3] >= 1 {
		return
	}
	t := (1 - acc[3]) * a
	acc[0] += t * r
	acc[1] += t * g
	acc[2] += t * b
	acc[3] += t
}

// regionBlender composites the patches of one region. Patches are clipped
// to the region and sorted nearest first.
type regionBlender struct {
	width    int
	rowStart int
	rowEnd   int
	dir      Direction
	bg       *frame.Color
	patches  []*frame.Patch
	perPixel bool
}

func newRegionBlender(cfg *Config, rowStart, rowEnd int, patches []*frame.Patch) *regionBlender {
	b := &regionBlender{
		width:    cfg.Width,
		rowStart: rowStart,
		rowEnd:   rowEnd,
		dir:      cfg.Direction,
		bg:       cfg.Background,
		patches:  patches,
	}
	for _, p := range patches {
		if p.PixelDepth != nil {
			b.perPixel = true
			break
		}
	}
	sortPatches(b.patches)
	return b
}

// blend fills acc, which holds the region's rows of premultiplied RGBA and
// must start zeroed. Rows are independent and may run concurrently.
func (b *regionBlender) blend(acc []float32, par ParallelConfig) {
	stride := b.width * 4
	ParallelFor(par, b.rowEnd-b.rowStart+1, func(i int) {
		y := b.rowStart + i
		row := acc[i*stride : (i+1)*stride]
		if b.perPixel {
			b.blendRowPerPixel(row, y)
		} else {
			b.blendRow(row, y)
		}
		if b.bg != nil {
			applyBackground(row, *b.bg)
		}
	})
}

// blendRow walks whole patch spans in patch order. It is used when every
// patch has a single depth, so the per-pixel order equals the patch order.
func (b *regionBlender) blendRow(row []float32, y int) {
	n := len(b.patches)
	for k := 0; k < n; k++ {
		p := b.patches[k]
		if b.dir == BackToFront {
			p = b.patches[n-1-k]
		}
		if y < p.Rect.MinY || y > p.Rect.MaxY {
			continue
		}
		for x := p.Rect.MinX; x <= p.Rect.MaxX; x++ {
			r, g, bl, a := p.At(x, y)
			px := row[x*4 : x*4+4]
			if b.dir == BackToFront {
				over(px, r, g, bl, a)
			} else {
				under(px, r, g, bl, a)
			}
		}
	}
}

// blendRowPerPixel sorts the samples of every pixel individually.
func (b *regionBlender) blendRowPerPixel(row []float32, y int) {
	var covering []*frame.Patch
	for _, p := range b.patches {
		if y >= p.Rect.MinY && y <= p.Rect.MaxY {
			covering = append(covering, p)
		}
	}
	if len(covering) == 0 {
		return
	}

	samples := make([]sample, 0, len(covering))
	for x := 0; x < b.width; x++ {
		samples = samples[:0]
		for _, p := range covering {
			if x < p.Rect.MinX || x > p.Rect.MaxX {
				continue
			}
			s := sample{depth: p.DepthAt(x, y), rank: p.Rank, index: p.Index}
			s.r, s.g, s.b, s.a = p.At(x, y)
			samples = append(samples, s)
		}
		if len(samples) == 0 {
			continue
		}
		sortSamples(samples)

		px := row[x*4 : x*4+4]
		if b.dir == BackToFront {
			for k := len(samples) - 1; k >= 0; k-- {
				s := &samples[k]
				over(px, s.r, s.g, s.b, s.a)
			}
		} else {
			for k := range samples {
				s := &samples[k]
				under(px, s.r, s.g, s.b, s.a)
			}
		}
	}
}

// applyBackground places an opaque background behind every pixel of row.
func applyBackground(row []float32, bg frame.Color) {
	for i := 0; i+4 <= len(row); i += 4 {
		k := 1 - row[i+3]
		row[i] += k * bg.R
		row[i+1] += k * bg.G
		row[i+2] += k * bg.B
		row[i+3] = 1
	}
}
