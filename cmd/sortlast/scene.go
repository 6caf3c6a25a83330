package main

import (
	"math"
	"math/rand/v2"

	"github.com/mrjoshuak/go-sortlast/composite"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/partition"
)

// palette holds one straight color per rank, cycled for larger groups.
var palette = [][3]float32{
	{0.90, 0.30, 0.25},
	{0.25, 0.65, 0.90},
	{0.35, 0.85, 0.40},
	{0.95, 0.80, 0.25},
	{0.70, 0.40, 0.90},
	{0.95, 0.55, 0.20},
	{0.30, 0.90, 0.85},
	{0.85, 0.85, 0.85},
}

// scene generates a deterministic workload: each rank renders its own band
// for the scanline strategy or a set of translucent splats for the
// region-patch strategy. The same seed yields the same frame on every
// transport.
type scene struct {
	strategy composite.Strategy
	cfg      composite.Config
	patches  int
	seed     uint64
}

func newScene(s *settings) *scene {
	return &scene{strategy: s.Strategy, cfg: s.Config, patches: s.Patches, seed: s.Seed}
}

func (s *scene) input(rank, ranks int) (composite.Input, error) {
	if s.strategy == composite.StrategyScanline {
		b, err := s.band(rank, ranks)
		if err != nil {
			return composite.Input{}, err
		}
		if b == nil {
			return composite.Input{}, nil
		}
		return composite.Input{Bands: []*frame.Band{b}}, nil
	}
	return composite.Input{Patches: s.splats(rank)}, nil
}

// band renders rank's rows as a horizontal ramp of the rank's color.
// It returns nil when the rank owns no rows.
func (s *scene) band(rank, ranks int) (*frame.Band, error) {
	rows := s.cfg.Rows
	if rows == nil {
		var err error
		if rows, err = partition.Uniform(s.cfg.Height, ranks); err != nil {
			return nil, err
		}
	}
	if rows.BandLength(rank) == 0 {
		return nil, nil
	}

	b := frame.NewBand(rows.BandRect(rank, s.cfg.Width), s.cfg.Format)
	col := palette[rank%len(palette)]
	ch := b.Format.Channels()
	stride := b.Stride()
	for x := 0; x < s.cfg.Width; x++ {
		t := 0.25 + 0.75*float32(x)/float32(max(s.cfg.Width-1, 1))
		px := [4]byte{toByte(col[0] * t), toByte(col[1] * t), toByte(col[2] * t), 255}
		for y := 0; y < b.Rect.Height(); y++ {
			copy(b.Pix[y*stride+x*ch:], px[:ch])
		}
	}
	return b, nil
}

// splats returns rank's patches: elliptical translucent blobs at random
// positions and depths. Some extend past the frame edge.
func (s *scene) splats(rank int) []*frame.Patch {
	rng := rand.New(rand.NewPCG(s.seed, uint64(rank)))
	w, h := s.cfg.Width, s.cfg.Height
	col := palette[rank%len(palette)]

	out := make([]*frame.Patch, 0, s.patches)
	for i := 0; i < s.patches; i++ {
		pw := max(1, w/8+rng.IntN(max(1, w/4)))
		ph := max(1, h/8+rng.IntN(max(1, h/4)))
		x0 := rng.IntN(w+pw) - pw/2
		y0 := rng.IntN(h+ph) - ph/2
		rect := frame.Rect{MinX: x0, MinY: y0, MaxX: x0 + pw - 1, MaxY: y0 + ph - 1}

		p := frame.NewPatch(rect, frame.FormatRGBA, rng.Float32()*100)
		opacity := 0.35 + 0.55*rng.Float32()
		cx, cy := float64(pw-1)/2, float64(ph-1)/2
		for y := rect.MinY; y <= rect.MaxY; y++ {
			for x := rect.MinX; x <= rect.MaxX; x++ {
				dx := (float64(x-rect.MinX) - cx) / math.Max(cx, 0.5)
				dy := (float64(y-rect.MinY) - cy) / math.Max(cy, 0.5)
				d := dx*dx + dy*dy
				if d >= 1 {
					continue
				}
				p.Set(x, y, col[0], col[1], col[2], opacity*float32(1-d))
			}
		}
		out = append(out, p)
	}
	return out
}

func toByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}
