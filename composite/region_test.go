package composite

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-sortlast/comm"
	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/partition"
)

func solidPatch(rect frame.Rect, depth, r, g, b, a float32) *frame.Patch {
	p := frame.NewPatch(rect, frame.FormatRGBA, depth)
	p.Fill(r, g, b, a)
	return p
}

// randomPatches returns n patches with distinct depths, some reaching
// past the frame edges.
func randomPatches(rng *rand.Rand, n, width, height int) []*frame.Patch {
	depths := rng.Perm(n)
	out := make([]*frame.Patch, n)
	for i := range out {
		x0, y0 := rng.IntN(width+6)-3, rng.IntN(height+6)-3
		rect := frame.Rect{
			MinX: x0, MinY: y0,
			MaxX: x0 + rng.IntN(width/2+1), MaxY: y0 + rng.IntN(height/2+1),
		}
		format := frame.FormatRGBA
		if i%4 == 3 {
			format = frame.FormatRGB
		}
		p := frame.NewPatch(rect, format, float32(depths[i])*0.25)
		for k := range p.Pix {
			p.Pix[k] = rng.Float32()
		}
		out[i] = p
	}
	return out
}

// regionRun composites perRank[r] on rank r and returns the root's image.
func regionRun(t *testing.T, perRank [][]*frame.Patch, cfg Config) *frame.FloatImage {
	t.Helper()
	results, errs := runRanks(t, len(perRank), func(ctx context.Context, c comm.Comm) (*Result, error) {
		return CompositeRegions(ctx, c, perRank[c.Rank()], cfg)
	})
	requireNoErrors(t, errs)
	require.NotNil(t, results[cfg.Root])
	return results[cfg.Root].Float
}

func assertPixel(t *testing.T, img *frame.FloatImage, x, y int, want [4]float32) {
	t.Helper()
	r, g, b, a := img.At(x, y)
	assert.Equal(t, want, [4]float32{r, g, b, a}, "pixel (%d,%d)", x, y)
}

func TestRegionNearOpaqueCoversFarTranslucent(t *testing.T) {
	const w, h = 10, 10
	for _, dir := range []Direction{BackToFront, FrontToBack} {
		t.Run(dir.String(), func(t *testing.T) {
			cfg := DefaultConfig(w, h)
			cfg.Direction = dir
			red := solidPatch(frame.FullFrame(w, h), 1.0, 1, 0, 0, 0.5)
			blue := solidPatch(frame.FullFrame(w, h), 0.0, 0, 0, 1, 1)

			img := regionRun(t, [][]*frame.Patch{{red}, {blue}}, cfg)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					assertPixel(t, img, x, y, [4]float32{0, 0, 1, 1})
				}
			}
		})
	}
}

func TestRegionDropsPatchOutsideFrame(t *testing.T) {
	const w, h = 20, 12
	rng := rand.New(rand.NewPCG(3, 4))
	patches := randomPatches(rng, 9, w, h)
	cfg := DefaultConfig(w, h)

	split := func(extra *frame.Patch) [][]*frame.Patch {
		perRank := [][]*frame.Patch{patches[:3], patches[3:6], patches[6:]}
		if extra != nil {
			perRank[1] = append(append([]*frame.Patch(nil), perRank[1]...), extra)
		}
		return perRank
	}
	want := regionRun(t, split(nil), cfg)

	outside := solidPatch(frame.Rect{MinX: w + 2, MinY: 0, MaxX: w + 8, MaxY: h - 1}, -5, 1, 1, 1, 1)
	got := regionRun(t, split(outside), cfg)
	assert.Equal(t, want.Pix, got.Pix)
}

func TestRegionDropsAndClampsCounted(t *testing.T) {
	const w, h = 8, 8
	cfg := DefaultConfig(w, h)
	cfg.Broadcast = true
	patches := []*frame.Patch{
		solidPatch(frame.Rect{MinX: 0, MinY: 0, MaxX: -1, MaxY: 3}, 0, 1, 1, 1, 1),    // zero area
		solidPatch(frame.Rect{MinX: -9, MinY: 0, MaxX: -1, MaxY: 3}, 0, 1, 1, 1, 1),   // left of frame
		solidPatch(frame.Rect{MinX: -2, MinY: -2, MaxX: 3, MaxY: 3}, 0, 0, 1, 0, 1),   // clamped
		solidPatch(frame.Rect{MinX: 4, MinY: 4, MaxX: 7, MaxY: 7}, 0.5, 0, 0, 1, 0.5), // inside
	}
	results, errs := runRanks(t, 1, func(ctx context.Context, c comm.Comm) (*Result, error) {
		return CompositeRegions(ctx, c, patches, cfg)
	})
	requireNoErrors(t, errs)

	st := results[0].Stats
	assert.Equal(t, 2, st.PatchesDropped)
	assert.Equal(t, 1, st.PatchesClamped)
	assert.Equal(t, 2, st.PatchesSent)
	assert.Equal(t, 2, st.PatchesReceived)
	assert.Equal(t, frame.Rect{MinX: -2, MinY: -2, MaxX: 3, MaxY: 3}, patches[2].Rect, "caller's patch modified")

	img := results[0].Float
	assertPixel(t, img, 0, 0, [4]float32{0, 1, 0, 1})
	assertPixel(t, img, 3, 3, [4]float32{0, 1, 0, 1})
	assertPixel(t, img, 5, 5, [4]float32{0, 0, 0.5, 0.5})
	assertPixel(t, img, 7, 0, [4]float32{0, 0, 0, 0})
}

func TestRegionPermutationInvariance(t *testing.T) {
	const w, h = 37, 23
	rng := rand.New(rand.NewPCG(5, 6))
	patches := randomPatches(rng, 24, w, h)

	for _, dir := range []Direction{BackToFront, FrontToBack} {
		t.Run(dir.String(), func(t *testing.T) {
			cfg := DefaultConfig(w, h)
			cfg.Direction = dir
			cfg.Parallel = ParallelConfig{NumWorkers: 4, GrainSize: 1}

			want := regionRun(t, [][]*frame.Patch{patches}, cfg)

			// Same patches, shuffled and dealt to three ranks differently.
			for trial := 0; trial < 3; trial++ {
				perm := rng.Perm(len(patches))
				perRank := make([][]*frame.Patch, 3)
				for k, i := range perm {
					r := (k*7 + trial) % 3
					perRank[r] = append(perRank[r], patches[i])
				}
				got := regionRun(t, perRank, cfg)
				require.Equal(t, want.Pix, got.Pix, "trial %d", trial)
			}
		})
	}
}

func TestRegionDirectionsAgree(t *testing.T) {
	const w, h = 31, 17
	rng := rand.New(rand.NewPCG(7, 8))
	patches := randomPatches(rng, 18, w, h)
	perRank := [][]*frame.Patch{patches[:5], patches[5:12], patches[12:], nil}

	cfg := DefaultConfig(w, h)
	bg := frame.Color{R: 0.2, G: 0.3, B: 0.4}
	cfg.Background = &bg
	btf := regionRun(t, perRank, cfg)
	cfg.Direction = FrontToBack
	ftb := regionRun(t, perRank, cfg)

	require.Len(t, ftb.Pix, len(btf.Pix))
	for i := range btf.Pix {
		require.InDelta(t, btf.Pix[i], ftb.Pix[i], 1e-6, "value %d", i)
	}
}

func TestRegionOpaquePatchIgnoresBackground(t *testing.T) {
	const w, h = 9, 11
	rng := rand.New(rand.NewPCG(9, 10))
	p := frame.NewPatch(frame.FullFrame(w, h), frame.FormatRGBA, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p.Set(x, y, rng.Float32(), rng.Float32(), rng.Float32(), 1)
		}
	}

	for _, dir := range []Direction{BackToFront, FrontToBack} {
		for _, bg := range []frame.Color{{}, {R: 1, G: 0.5, B: 0.25}} {
			cfg := DefaultConfig(w, h)
			cfg.Direction = dir
			cfg.Background = &bg
			cfg.Root = 1
			img := regionRun(t, [][]*frame.Patch{nil, {p}, nil}, cfg)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					r, g, b, _ := p.At(x, y)
					assertPixel(t, img, x, y, [4]float32{r, g, b, 1})
				}
			}
		}
	}
}

func TestRegionTransparentPatchIsNoop(t *testing.T) {
	const w, h = 16, 16
	rng := rand.New(rand.NewPCG(11, 12))
	patches := randomPatches(rng, 6, w, h)
	transparent := solidPatch(frame.FullFrame(w, h), 0.6, 1, 1, 1, 0)

	for _, dir := range []Direction{BackToFront, FrontToBack} {
		cfg := DefaultConfig(w, h)
		cfg.Direction = dir
		want := regionRun(t, [][]*frame.Patch{patches[:3], patches[3:]}, cfg)
		got := regionRun(t, [][]*frame.Patch{patches[:3], append([]*frame.Patch{transparent}, patches[3:]...)}, cfg)
		assert.Equal(t, want.Pix, got.Pix, dir.String())
	}
}

func TestRegionEmptyPopulation(t *testing.T) {
	const w, h, n = 5, 10, 3
	cfg := DefaultConfig(w, h)
	cfg.Broadcast = true
	bg := frame.Color{R: 0.5, G: 0.25, B: 1}
	cfg.Background = &bg

	results, errs := runRanks(t, n, func(ctx context.Context, c comm.Comm) (*Result, error) {
		return CompositeRegions(ctx, c, nil, cfg)
	})
	requireNoErrors(t, errs)

	uniform, err := partition.Uniform(h, n)
	require.NoError(t, err)
	total := 0
	for r, res := range results {
		start, end := uniform.RankExtent(r)
		assert.Equal(t, start, res.Stats.RegionStart)
		assert.Equal(t, end, res.Stats.RegionEnd)
		total += res.Stats.RegionEnd - res.Stats.RegionStart + 1
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				assertPixel(t, res.Float, x, y, [4]float32{0.5, 0.25, 1, 1})
			}
		}
	}
	assert.Equal(t, h, total)
}

func TestRegionBalancesOnPatchLoad(t *testing.T) {
	const w, h, n = 10, 40, 4
	cfg := DefaultConfig(w, h)
	cfg.Broadcast = true
	// All the load sits in rows 0..9.
	p := solidPatch(frame.Rect{MinX: 0, MinY: 0, MaxX: w - 1, MaxY: 9}, 1, 1, 0, 0, 1)

	results, errs := runRanks(t, n, func(ctx context.Context, c comm.Comm) (*Result, error) {
		var ps []*frame.Patch
		if c.Rank() == 3 {
			ps = []*frame.Patch{p}
		}
		return CompositeRegions(ctx, c, ps, cfg)
	})
	requireNoErrors(t, errs)

	total := 0
	for r, res := range results {
		st := res.Stats
		total += st.RegionEnd - st.RegionStart + 1
		if r < n-1 {
			assert.Less(t, st.RegionEnd, 10, "region %d should lie in the loaded rows", r)
		}
	}
	assert.Equal(t, h, total)
	assert.Equal(t, h-1, results[n-1].Stats.RegionEnd)
	assert.Less(t, results[n-1].Stats.RegionStart, 10)
}

func TestRegionEqualDepthTieBreak(t *testing.T) {
	const w, h = 6, 6
	for _, dir := range []Direction{BackToFront, FrontToBack} {
		t.Run(dir.String(), func(t *testing.T) {
			cfg := DefaultConfig(w, h)
			cfg.Direction = dir
			full := frame.FullFrame(w, h)
			// Rank 0 precedes rank 1 at equal depth; within a rank the
			// earlier patch precedes the later one.
			perRank := [][]*frame.Patch{
				{solidPatch(full, 2, 1, 0, 0, 1), solidPatch(full, 2, 0, 1, 0, 1)},
				{solidPatch(full, 2, 0, 0, 1, 1)},
			}
			img := regionRun(t, perRank, cfg)
			assertPixel(t, img, 3, 3, [4]float32{1, 0, 0, 1})

			perRank = [][]*frame.Patch{
				{solidPatch(full, 2, 0, 1, 0, 0.5)},
				{solidPatch(full, 2, 0, 0, 1, 1)},
			}
			img = regionRun(t, perRank, cfg)
			assertPixel(t, img, 0, 0, [4]float32{0, 0.5, 0.5, 1})
		})
	}
}

func TestRegionPerPixelDepth(t *testing.T) {
	const w, h = 8, 4
	full := frame.FullFrame(w, h)
	// A is nearest on the left half and farthest on the right half.
	a := solidPatch(full, 0, 1, 0, 0, 1)
	a.PixelDepth = make([]float32, full.Area())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := float32(0)
			if x >= w/2 {
				d = 2
			}
			a.PixelDepth[y*w+x] = d
		}
	}
	b := solidPatch(full, 1, 0, 0, 1, 1)

	for _, dir := range []Direction{BackToFront, FrontToBack} {
		cfg := DefaultConfig(w, h)
		cfg.Direction = dir
		img := regionRun(t, [][]*frame.Patch{{b}, {a}}, cfg)
		for y := 0; y < h; y++ {
			assertPixel(t, img, 0, y, [4]float32{1, 0, 0, 1})
			assertPixel(t, img, w-1, y, [4]float32{0, 0, 1, 1})
		}
	}
}

func TestRegionWireOptions(t *testing.T) {
	const w, h = 24, 24
	rng := rand.New(rand.NewPCG(13, 14))
	patches := randomPatches(rng, 10, w, h)
	perRank := [][]*frame.Patch{patches[:4], patches[4:]}

	cfg := DefaultConfig(w, h)
	want := regionRun(t, perRank, cfg)

	for _, codec := range []compression.Codec{compression.CodecZlib, compression.CodecZstd} {
		cfg.Codec = codec
		cfg.HalfPixels = false
		assert.Equal(t, want.Pix, regionRun(t, perRank, cfg).Pix, "%v lossless", codec)

		cfg.HalfPixels = true
		got := regionRun(t, perRank, cfg)
		for i := range want.Pix {
			require.InDelta(t, want.Pix[i], got.Pix[i], 4e-3, "%v half value %d", codec, i)
		}
	}
}

func TestRegionUsageErrorsFailEveryRank(t *testing.T) {
	const w, h, n = 8, 8, 3
	good := func() *frame.Patch { return solidPatch(frame.FullFrame(w, h), 1, 1, 1, 1, 1) }

	tests := []struct {
		name   string
		patch  func() *frame.Patch
		modify func(c *Config)
		want   error
	}{
		{
			name: "short buffer",
			patch: func() *frame.Patch {
				p := good()
				p.Pix = p.Pix[:5]
				return p
			},
			want: frame.ErrBufferSize,
		},
		{
			name: "nan depth",
			patch: func() *frame.Patch {
				p := good()
				p.Depth = float32(math.NaN())
				return p
			},
			want: frame.ErrInvalidDepth,
		},
		{
			name: "alpha above one",
			patch: func() *frame.Patch {
				return solidPatch(frame.FullFrame(w, h), 1, 1, 0, 0, 1.5)
			},
			want: frame.ErrInvalidPixel,
		},
		{
			name: "negative alpha",
			patch: func() *frame.Patch {
				return solidPatch(frame.FullFrame(w, h), 1, 1, 0, 0, -0.25)
			},
			want: frame.ErrInvalidPixel,
		},
		{
			name: "nan color",
			patch: func() *frame.Patch {
				p := good()
				p.Set(3, 4, 1, float32(math.NaN()), 0, 0.5)
				return p
			},
			want: frame.ErrInvalidPixel,
		},
		{
			name: "nan rgb patch",
			patch: func() *frame.Patch {
				p := frame.NewPatch(frame.FullFrame(w, h), frame.FormatRGB, 1)
				p.Set(0, 0, float32(math.NaN()), 0, 0, 1)
				return p
			},
			want: frame.ErrInvalidPixel,
		},
		{
			name:   "htj2k codec",
			patch:  good,
			modify: func(c *Config) { c.Codec = compression.CodecHTJ2K },
			want:   ErrInvalidConfig,
		},
	}

	const bad = 2
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, errs := runRanks(t, n, func(ctx context.Context, c comm.Comm) (*Result, error) {
				cfg := DefaultConfig(w, h)
				p := good()
				if c.Rank() == bad {
					p = tt.patch()
					if tt.modify != nil {
						tt.modify(&cfg)
					}
				}
				return CompositeRegions(ctx, c, []*frame.Patch{p}, cfg)
			})
			for r := range errs {
				assert.Nil(t, results[r])
				if r == bad {
					assert.ErrorIs(t, errs[r], tt.want)
				} else {
					assert.ErrorIs(t, errs[r], comm.ErrPeerFailed)
				}
			}
		})
	}
}

func TestRegionMemoryLimit(t *testing.T) {
	cfg := DefaultConfig(64, 64)
	cfg.MemoryLimit = 1024
	_, errs := runRanks(t, 2, func(ctx context.Context, c comm.Comm) (*Result, error) {
		return CompositeRegions(ctx, c, nil, cfg)
	})
	for r, err := range errs {
		var mle *frame.MemoryLimitExceededError
		assert.ErrorAs(t, err, &mle, "rank %d", r)
	}
}

func TestRegionMemoryLimitOnOneRank(t *testing.T) {
	cfg := DefaultConfig(64, 64)
	_, errs := runRanks(t, 3, func(ctx context.Context, c comm.Comm) (*Result, error) {
		local := cfg
		if c.Rank() == 1 {
			local.Pool = frame.NewBufferPool(1024)
		}
		return CompositeRegions(ctx, c, []*frame.Patch{solidPatch(frame.FullFrame(64, 64), 5, 1, 0, 0, 1)}, local)
	})
	var mle *frame.MemoryLimitExceededError
	assert.ErrorAs(t, errs[1], &mle)
	assert.ErrorIs(t, errs[0], comm.ErrPeerFailed)
	assert.ErrorIs(t, errs[2], comm.ErrPeerFailed)
}

func TestFindRegionsForPatch(t *testing.T) {
	regions, err := partition.FromBoundaries(20, []int{0, 5, 5, 12, 20})
	require.NoError(t, err)

	tests := []struct {
		rect        frame.Rect
		first, last int
		ok          bool
	}{
		{frame.Rect{MinX: 0, MinY: 0, MaxX: 3, MaxY: 4}, 0, 0, true},
		{frame.Rect{MinX: 0, MinY: 4, MaxX: 3, MaxY: 5}, 0, 2, true},
		{frame.Rect{MinX: 0, MinY: 11, MaxX: 3, MaxY: 30}, 2, 3, true},
		{frame.Rect{MinX: 0, MinY: -4, MaxX: 3, MaxY: -1}, 0, -1, false},
		{frame.Rect{MinX: 5, MinY: 3, MaxX: 4, MaxY: 9}, 0, -1, false},
	}
	for _, tt := range tests {
		first, last, ok := FindRegionsForPatch(regions, tt.rect)
		assert.Equal(t, tt.ok, ok, "%v", tt.rect)
		if tt.ok {
			assert.Equal(t, tt.first, first, "%v", tt.rect)
			assert.Equal(t, tt.last, last, "%v", tt.rect)
		}
	}
}
