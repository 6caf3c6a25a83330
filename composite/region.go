package composite

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mrjoshuak/go-sortlast/comm"
	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/internal/wire"
	"github.com/mrjoshuak/go-sortlast/partition"
)

// CompositeRegions blends overlapping depth-tagged patches from every rank
// into one premultiplied RGBA float image.
//
// A pass runs these phases, all collective:
//   - agreement: every rank validates its patches and configuration, and a
//     failure anywhere fails every rank;
//   - region allocation: each row's incoming patch bytes are summed over
//     all ranks and the rows are split into one region per rank with
//     balanced load;
//   - direct-send: every patch is cropped to each region it touches and
//     sent to the region's owner through a two-phase comm.Exchange;
//   - blending: each rank blends its region in depth order, then applies
//     the background;
//   - gather: regions are collected at the root or on every rank.
//
// Zero-area patches and patches entirely outside the frame are dropped;
// patches partly outside are clamped to it. The caller's patches are not
// modified.
func CompositeRegions(ctx context.Context, c comm.Comm, patches []*frame.Patch, cfg Config) (*Result, error) {
	start := time.Now()
	rank, size := c.Rank(), c.Size()
	log := cfg.logger(rank)

	var stats Stats
	local, err := prepareRegionPass(&cfg, size, rank, patches, &stats)
	if err := comm.Agree(ctx, c, err); err != nil {
		return nil, err
	}
	if stats.PatchesDropped > 0 {
		log.Warn("patches dropped", "count", stats.PatchesDropped, "clamped", stats.PatchesClamped)
	}

	arena := cfg.arena()
	defer arena.Release()

	regions, err := allocateRegions(ctx, c, &cfg, local)
	if err != nil {
		return nil, err
	}
	stats.RegionStart, stats.RegionEnd = regions.RankExtent(rank)
	log.Debug("regions allocated", "regions", regions.Boundaries())

	outgoing, err := directSendPayloads(&cfg, regions, local, &stats)
	if err != nil {
		return nil, err
	}
	incoming, err := comm.Exchange(ctx, c, outgoing)
	if err != nil {
		return nil, err
	}

	received, err := decodeRegionPatches(&cfg, incoming, stats.RegionStart, stats.RegionEnd, &stats)
	if err != nil {
		return nil, err
	}
	log.Debug("direct-send complete",
		"sent", stats.PatchesSent, "sentBytes", stats.BytesSent,
		"received", stats.PatchesReceived, "receivedBytes", stats.BytesReceived)

	rowCount := stats.RegionEnd - stats.RegionStart + 1
	// Agreed so that a rank over its memory limit does not strand the
	// others in the gather.
	acc, err := arena.Floats(rowCount * cfg.Width * 4)
	if err := comm.Agree(ctx, c, err); err != nil {
		return nil, err
	}
	newRegionBlender(&cfg, stats.RegionStart, stats.RegionEnd, received).blend(acc, cfg.Parallel)

	block, err := wire.EncodeBlock(wire.BlockHeader{
		RowStart: stats.RegionStart,
		RowCount: rowCount,
		Width:    cfg.Width,
		Codec:    cfg.Codec,
	}, acc)
	if err != nil {
		return nil, err
	}
	parts, err := exchangeImage(ctx, c, &cfg, block)
	if err != nil {
		return nil, err
	}
	if !cfg.receives(rank) {
		return nil, nil
	}

	img, err := assembleRegions(&cfg, regions, parts)
	if err != nil {
		return nil, err
	}
	stats.Elapsed = time.Since(start)
	log.Info("region composite complete",
		"width", cfg.Width, "height", cfg.Height, "ranks", size,
		"direction", cfg.Direction, "elapsed", stats.Elapsed)
	return &Result{Float: img, Stats: stats}, nil
}

// FindRegionsForPatch returns the inclusive range of regions whose rows
// overlap rect's rows. ok is false when rect misses every row. Regions in
// the range may be empty.
func FindRegionsForPatch(regions *partition.Partition, rect frame.Rect) (first, last int, ok bool) {
	if rect.IsEmpty() {
		return 0, -1, false
	}
	return regions.RanksForRows(rect.MinY, rect.MaxY)
}

// prepareRegionPass validates the configuration and the rank's patches and
// returns them clamped to the frame, tagged with rank and insertion index.
func prepareRegionPass(cfg *Config, size, rank int, patches []*frame.Patch, stats *Stats) ([]*frame.Patch, error) {
	if err := cfg.Validate(size); err != nil {
		return nil, err
	}
	if cfg.Codec == compression.CodecHTJ2K {
		return nil, fmt.Errorf("%w: codec %v cannot carry float patches", ErrInvalidConfig, cfg.Codec)
	}

	full := frame.FullFrame(cfg.Width, cfg.Height)
	local := make([]*frame.Patch, 0, len(patches))
	for i, p := range patches {
		if p == nil {
			return nil, fmt.Errorf("composite: patch %d is nil", i)
		}
		if p.Rect.IsEmpty() {
			stats.PatchesDropped++
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("composite: patch %d: %w", i, err)
		}
		if err := checkValues(p); err != nil {
			return nil, fmt.Errorf("composite: patch %d: %w", i, err)
		}

		in := p.Rect.Intersect(full)
		if in.IsEmpty() {
			stats.PatchesDropped++
			continue
		}
		var q *frame.Patch
		if in != p.Rect {
			q = p.Crop(in)
			stats.PatchesClamped++
		} else {
			cp := *p
			q = &cp
		}
		q.Rank, q.Index = rank, i
		local = append(local, q)
	}
	return local, nil
}

// checkValues rejects NaN depths, NaN color, and alpha outside [0, 1].
func checkValues(p *frame.Patch) error {
	if math.IsNaN(float64(p.Depth)) {
		return fmt.Errorf("%w: NaN depth", frame.ErrInvalidDepth)
	}
	for _, d := range p.PixelDepth {
		if math.IsNaN(float64(d)) {
			return fmt.Errorf("%w: NaN pixel depth", frame.ErrInvalidDepth)
		}
	}
	ch := p.Format.Channels()
	for i := 0; i+ch <= len(p.Pix); i += ch {
		for c := 0; c < ch; c++ {
			if math.IsNaN(float64(p.Pix[i+c])) {
				return fmt.Errorf("%w: NaN at value %d", frame.ErrInvalidPixel, i+c)
			}
		}
		if ch == 4 {
			if a := p.Pix[i+3]; a < 0 || a > 1 {
				return fmt.Errorf("%w: alpha %v at pixel %d", frame.ErrInvalidPixel, a, i/ch)
			}
		}
	}
	return nil
}

// allocateRegions balances regions on the bytes each row will receive.
func allocateRegions(ctx context.Context, c comm.Comm, cfg *Config, local []*frame.Patch) (*partition.Partition, error) {
	// Difference array: cost[y] accumulates until the prefix pass below.
	cost := make([]int64, cfg.Height+1)
	for _, p := range local {
		perRow := p.ByteSize() / int64(p.Rect.Height())
		cost[p.Rect.MinY] += perRow
		cost[p.Rect.MaxY+1] -= perRow
	}
	for y := 1; y < cfg.Height; y++ {
		cost[y] += cost[y-1]
	}
	cost = cost[:cfg.Height]

	total, err := comm.AllreduceInt64(ctx, c, cost)
	if err != nil {
		return nil, fmt.Errorf("composite: region allocation: %w", err)
	}
	return partition.Balanced(cfg.Height, c.Size(), total)
}

// directSendPayloads crops and encodes every local patch for each region it
// touches. The result is indexed by destination rank.
func directSendPayloads(cfg *Config, regions *partition.Partition, local []*frame.Patch, stats *Stats) ([][][]byte, error) {
	type job struct {
		dest  int
		patch *frame.Patch
		data  []byte
	}
	var jobs []job
	for _, p := range local {
		first, last, ok := FindRegionsForPatch(regions, p.Rect)
		if !ok {
			continue
		}
		for r := first; r <= last; r++ {
			if regions.BandLength(r) == 0 {
				continue
			}
			jobs = append(jobs, job{dest: r, patch: p})
		}
	}

	opts := wire.PatchOptions{Codec: cfg.Codec, Half: cfg.HalfPixels}
	err := ParallelForWithError(cfg.Parallel, len(jobs), func(i int) error {
		j := &jobs[i]
		piece := j.patch.Crop(regions.BandRect(j.dest, cfg.Width))
		data, err := wire.EncodePatch(piece, opts)
		if err != nil {
			return fmt.Errorf("composite: encode patch %d for region %d: %w", j.patch.Index, j.dest, err)
		}
		j.data = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	outgoing := make([][][]byte, regions.Ranks())
	for _, j := range jobs {
		outgoing[j.dest] = append(outgoing[j.dest], j.data)
		stats.PatchesSent++
		stats.BytesSent += int64(len(j.data))
	}
	return outgoing, nil
}

// decodeRegionPatches decodes every patch received for the region
// [rowStart, rowEnd] and checks that it lies inside it.
func decodeRegionPatches(cfg *Config, incoming [][][]byte, rowStart, rowEnd int, stats *Stats) ([]*frame.Patch, error) {
	type item struct {
		src  int
		data []byte
	}
	var items []item
	for src, msgs := range incoming {
		for _, m := range msgs {
			items = append(items, item{src, m})
			stats.BytesReceived += int64(len(m))
		}
	}

	region := frame.Rect{MinX: 0, MinY: rowStart, MaxX: cfg.Width - 1, MaxY: rowEnd}
	out := make([]*frame.Patch, len(items))
	err := ParallelForWithError(cfg.Parallel, len(items), func(i int) error {
		p, err := wire.DecodePatch(items[i].data)
		if err != nil {
			return fmt.Errorf("%w: patch from rank %d: %v", ErrRegionMismatch, items[i].src, err)
		}
		if p.Rank != items[i].src || !p.Rect.In(region) {
			return fmt.Errorf("%w: rank %d sent patch of rank %d at %v, region is %v",
				ErrRegionMismatch, items[i].src, p.Rank, p.Rect, region)
		}
		out[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.PatchesReceived = len(out)
	return out, nil
}

// assembleRegions places every rank's region block into a new image.
func assembleRegions(cfg *Config, regions *partition.Partition, parts [][]byte) (*frame.FloatImage, error) {
	img := frame.NewFloatImage(cfg.Width, cfg.Height)
	for src, part := range parts {
		h, pix, err := wire.DecodeBlock(part)
		if err != nil {
			return nil, fmt.Errorf("%w: region of rank %d: %v", ErrRegionMismatch, src, err)
		}
		wantStart, _ := regions.RankExtent(src)
		if h.RowStart != wantStart || h.RowCount != regions.BandLength(src) || h.Width != cfg.Width {
			return nil, fmt.Errorf("%w: rank %d sent rows %d+%d width %d, owns rows %d+%d",
				ErrRegionMismatch, src, h.RowStart, h.RowCount, h.Width, wantStart, regions.BandLength(src))
		}
		if h.RowCount > 0 {
			copy(img.Rows(h.RowStart, h.RowStart+h.RowCount-1), pix)
		}
	}
	return img, nil
}
