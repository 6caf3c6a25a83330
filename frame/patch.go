package frame

import "fmt"

// Patch is a rectangular float partial image with an associated depth.
// Color channels are straight (not premultiplied); RGB patches are treated
// as fully opaque.
//
// Depth grows away from the viewer. When PixelDepth is set it overrides
// Depth per pixel.
type Patch struct {
	Rect       Rect
	Format     PixelFormat
	Pix        []float32
	Depth      float32
	PixelDepth []float32

	// Rank is the producing rank and Index its local insertion index.
	// Both are assigned by the compositor and break depth ties.
	Rank  int
	Index int
}

// NewPatch allocates a zeroed patch for rect.
func NewPatch(rect Rect, format PixelFormat, depth float32) *Patch {
	return &Patch{
		Rect:   rect,
		Format: format,
		Pix:    make([]float32, int(rect.Area())*format.Channels()),
		Depth:  depth,
	}
}

// Validate checks buffer lengths against the rectangle and format.
func (p *Patch) Validate() error {
	if !p.Format.Valid() {
		return ErrInvalidFormat
	}
	area := int(p.Rect.Area())
	if want := area * p.Format.Channels(); len(p.Pix) != want {
		return fmt.Errorf("%w: patch %v has %d values, want %d", ErrBufferSize, p.Rect, len(p.Pix), want)
	}
	if p.PixelDepth != nil && len(p.PixelDepth) != area {
		return fmt.Errorf("%w: patch %v has %d depth values, want %d", ErrBufferSize, p.Rect, len(p.PixelDepth), area)
	}
	return nil
}

// At returns the straight color and alpha at frame coordinates (x, y).
// The caller guarantees (x, y) lies inside the patch.
func (p *Patch) At(x, y int) (r, g, b, a float32) {
	ch := p.Format.Channels()
	i := ((y-p.Rect.MinY)*p.Rect.Width() + (x - p.Rect.MinX)) * ch
	if ch == 3 {
		return p.Pix[i], p.Pix[i+1], p.Pix[i+2], 1
	}
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]
}

// DepthAt returns the depth at frame coordinates (x, y).
func (p *Patch) DepthAt(x, y int) float32 {
	if p.PixelDepth == nil {
		return p.Depth
	}
	return p.PixelDepth[(y-p.Rect.MinY)*p.Rect.Width()+(x-p.Rect.MinX)]
}

// Set writes straight color and alpha at frame coordinates (x, y).
// Alpha is ignored for RGB patches.
func (p *Patch) Set(x, y int, r, g, b, a float32) {
	ch := p.Format.Channels()
	i := ((y-p.Rect.MinY)*p.Rect.Width() + (x - p.Rect.MinX)) * ch
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
	if ch == 4 {
		p.Pix[i+3] = a
	}
}

// Fill sets every pixel to one color.
func (p *Patch) Fill(r, g, b, a float32) {
	for y := p.Rect.MinY; y <= p.Rect.MaxY; y++ {
		for x := p.Rect.MinX; x <= p.Rect.MaxX; x++ {
			p.Set(x, y, r, g, b, a)
		}
	}
}

// Crop returns a copy of the part of p inside rect, or nil when they do
// not intersect. The copy keeps Depth, Rank, and Index.
func (p *Patch) Crop(rect Rect) *Patch {
	in := p.Rect.Intersect(rect)
	if in.IsEmpty() {
		return nil
	}
	if in == p.Rect {
		return p.clone()
	}

	ch := p.Format.Channels()
	out := &Patch{
		Rect:   in,
		Format: p.Format,
		Pix:    make([]float32, int(in.Area())*ch),
		Depth:  p.Depth,
		Rank:   p.Rank,
		Index:  p.Index,
	}
	if p.PixelDepth != nil {
		out.PixelDepth = make([]float32, in.Area())
	}

	srcW, dstW := p.Rect.Width(), in.Width()
	for y := in.MinY; y <= in.MaxY; y++ {
		srcRow := (y-p.Rect.MinY)*srcW + (in.MinX - p.Rect.MinX)
		dstRow := (y - in.MinY) * dstW
		copy(out.Pix[dstRow*ch:(dstRow+dstW)*ch], p.Pix[srcRow*ch:(srcRow+dstW)*ch])
		if p.PixelDepth != nil {
			copy(out.PixelDepth[dstRow:dstRow+dstW], p.PixelDepth[srcRow:srcRow+dstW])
		}
	}
	return out
}

func (p *Patch) clone() *Patch {
	out := *p
	out.Pix = append([]float32(nil), p.Pix...)
	if p.PixelDepth != nil {
		out.PixelDepth = append([]float32(nil), p.PixelDepth...)
	}
	return &out
}

// ByteSize estimates the wire size of the pixel and depth payload.
func (p *Patch) ByteSize() int64 {
	n := p.Rect.Area() * int64(p.Format.Channels()) * 4
	if p.PixelDepth != nil {
		n += p.Rect.Area() * 4
	}
	return n
}
