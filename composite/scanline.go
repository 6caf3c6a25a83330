package composite

import (
	"context"
	"fmt"
	"time"

	"github.com/mrjoshuak/go-sortlast/comm"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/internal/wire"
	"github.com/mrjoshuak/go-sortlast/partition"
)

// CompositeScanline assembles opaque bands into one 8-bit image.
//
// Each rank supplies the single band covering exactly its rows of
// cfg.Rows (a uniform partition when nil), in cfg.Format. A rank whose band
// is empty may supply none. The bands are gathered to cfg.Root, or to every
// rank when cfg.Broadcast is set, and copied into place; nothing is
// blended.
func CompositeScanline(ctx context.Context, c comm.Comm, bands []*frame.Band, cfg Config) (*Result, error) {
	start := time.Now()
	rank := c.Rank()
	log := cfg.logger(rank)

	rows, err := scanlineRows(&cfg, c.Size())
	var band *frame.Band
	if err == nil {
		band, err = checkBands(bands, rows, rank, &cfg)
	}
	if err := comm.Agree(ctx, c, err); err != nil {
		return nil, err
	}

	rowStart, _ := rows.RankExtent(rank)
	h := wire.BandHeader{
		Rank:     rank,
		RowStart: rowStart,
		RowCount: rows.BandLength(rank),
		Width:    cfg.Width,
		Format:   cfg.Format,
		Codec:    cfg.Codec,
	}
	var pix []byte
	if band != nil {
		pix = band.Pix
	}
	payload, err := wire.EncodeBand(h, pix)
	if err != nil {
		return nil, err
	}
	log.Debug("scanline band encoded", "rows", h.RowCount, "raw", h.RawLen(), "bytes", len(payload))

	parts, err := exchangeImage(ctx, c, &cfg, payload)
	if err != nil {
		return nil, err
	}
	stats := Stats{BytesSent: int64(len(payload))}
	stats.RegionStart, stats.RegionEnd = rows.RankExtent(rank)
	if !cfg.receives(rank) {
		return nil, nil
	}

	img := frame.NewImage(cfg.Width, cfg.Height, cfg.Format)
	stride := img.Stride()
	for src, part := range parts {
		ph, pix, err := wire.DecodeBand(part)
		if err != nil {
			return nil, fmt.Errorf("%w: rank %d: %v", ErrBandMismatch, src, err)
		}
		wantStart, _ := rows.RankExtent(src)
		if ph.Rank != src || ph.RowStart != wantStart || ph.RowCount != rows.BandLength(src) ||
			ph.Width != cfg.Width || ph.Format != cfg.Format {
			return nil, fmt.Errorf("%w: rank %d sent rows %d+%d width %d %v, want rows %d+%d width %d %v",
				ErrBandMismatch, src, ph.RowStart, ph.RowCount, ph.Width, ph.Format,
				wantStart, rows.BandLength(src), cfg.Width, cfg.Format)
		}
		copy(img.Pix[ph.RowStart*stride:], pix)
		stats.BytesReceived += int64(len(part))
	}

	stats.Elapsed = time.Since(start)
	log.Info("scanline composite complete",
		"width", cfg.Width, "height", cfg.Height, "ranks", c.Size(),
		"bytes", stats.BytesReceived, "elapsed", stats.Elapsed)
	return &Result{Image: img, Stats: stats}, nil
}

func scanlineRows(cfg *Config, size int) (*partition.Partition, error) {
	if err := cfg.Validate(size); err != nil {
		return nil, err
	}
	if cfg.Rows != nil {
		return cfg.Rows, nil
	}
	return partition.Uniform(cfg.Height, size)
}

// checkBands returns the rank's band, or nil for a rank with no rows that
// supplied none.
func checkBands(bands []*frame.Band, rows *partition.Partition, rank int, cfg *Config) (*frame.Band, error) {
	want := rows.BandRect(rank, cfg.Width)
	switch len(bands) {
	case 0:
		if rows.BandLength(rank) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: rank %d supplied none for rows %d-%d", ErrBandCount, rank, want.MinY, want.MaxY)
	case 1:
	default:
		return nil, fmt.Errorf("%w: rank %d supplied %d", ErrBandCount, rank, len(bands))
	}

	b := bands[0]
	if b == nil {
		return nil, fmt.Errorf("%w: rank %d supplied a nil band", ErrBandCount, rank)
	}
	if b.Rect != want {
		if rows.BandLength(rank) == 0 && b.Rect.IsEmpty() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: rank %d band %v, assigned %v", ErrBandExtent, rank, b.Rect, want)
	}
	if b.Format != cfg.Format {
		return nil, fmt.Errorf("%w: rank %d band is %v, want %v", ErrBandFormat, rank, b.Format, cfg.Format)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if rows.BandLength(rank) == 0 {
		return nil, nil
	}
	return b, nil
}
