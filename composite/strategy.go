package composite

import (
	"context"
	"fmt"
	"time"

	"github.com/mrjoshuak/go-sortlast/comm"
	"github.com/mrjoshuak/go-sortlast/frame"
)

// Strategy selects a compositing algorithm at setup time.
type Strategy uint8

const (
	// StrategyScanline gathers one opaque band per rank.
	StrategyScanline Strategy = iota

	// StrategyRegionPatch blends overlapping depth-tagged patches.
	StrategyRegionPatch
)

func (s Strategy) String() string {
	switch s {
	case StrategyScanline:
		return "scanline"
	case StrategyRegionPatch:
		return "region-patch"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// ParseStrategy accepts "scanline"/"tiled" and "region-patch"/"slivr".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "scanline", "tiled":
		return StrategyScanline, nil
	case "region-patch", "slivr":
		return StrategyRegionPatch, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Input is one rank's contribution to a pass. The scanline strategy reads
// Bands and the region-patch strategy reads Patches.
type Input struct {
	Bands   []*frame.Band
	Patches []*frame.Patch
}

// Stats describes one rank's share of a pass.
type Stats struct {
	// RegionStart and RegionEnd are the inclusive rows this rank owned.
	// RegionEnd < RegionStart for an empty region.
	RegionStart int
	RegionEnd   int

	PatchesDropped  int
	PatchesClamped  int
	PatchesSent     int
	PatchesReceived int

	BytesSent     int64
	BytesReceived int64

	Elapsed time.Duration
}

// Result is the composited frame. Image is set by the scanline strategy
// and Float by the region-patch strategy.
type Result struct {
	Image *frame.Image
	Float *frame.FloatImage
	Stats Stats
}

// Composite runs the selected strategy. Ranks that do not receive the image
// get a nil Result and a nil error.
func (s Strategy) Composite(ctx context.Context, c comm.Comm, in Input, cfg Config) (*Result, error) {
	switch s {
	case StrategyScanline:
		return CompositeScanline(ctx, c, in.Bands, cfg)
	case StrategyRegionPatch:
		return CompositeRegions(ctx, c, in.Patches, cfg)
	}
	// Every rank holds the same strategy, so none is left waiting.
	return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, s)
}

// exchangeImage sends payload to the root, or to everyone when
// broadcasting, and returns the per-rank payloads on receiving ranks.
func exchangeImage(ctx context.Context, c comm.Comm, cfg *Config, payload []byte) ([][]byte, error) {
	if cfg.Broadcast {
		return comm.Allgatherv(ctx, c, payload)
	}
	return comm.Gatherv(ctx, c, cfg.Root, payload)
}
