// Package composite merges per-rank partial images into one frame.
//
// Two strategies are provided. The scanline strategy gathers one opaque
// 8-bit band per rank into place; bands never overlap, so no blending is
// involved. The region-patch strategy redistributes depth-tagged float
// patches so that each rank owns the blending of one horizontal region,
// blends every region in a fixed depth order, and gathers the regions.
//
// Every entry point is collective: all ranks of the comm.Comm must call the
// same function with the same Config, in the same order. Usage errors on
// any rank are agreed on before the first data exchange, so they fail every
// rank instead of leaving peers blocked.
package composite

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/partition"
)

// Compositing errors
var (
	ErrInvalidConfig    = errors.New("composite: invalid configuration")
	ErrBandCount        = errors.New("composite: rank must supply exactly one band")
	ErrBandExtent       = errors.New("composite: band does not match its assigned rows")
	ErrBandFormat       = errors.New("composite: band format does not match configuration")
	ErrBandMismatch     = errors.New("composite: received band does not match partition")
	ErrRegionMismatch   = errors.New("composite: received data does not match region")
	ErrUnknownStrategy  = errors.New("composite: unknown strategy")
	ErrUnknownDirection = errors.New("composite: unknown blend direction")
)

// Direction selects the blend order within a region.
type Direction uint8

const (
	// BackToFront applies patches farthest first with the over operator.
	BackToFront Direction = iota

	// FrontToBack accumulates patches nearest first with the under
	// operator and stops at saturated pixels.
	FrontToBack
)

func (d Direction) String() string {
	switch d {
	case BackToFront:
		return "back-to-front"
	case FrontToBack:
		return "front-to-back"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// ParseDirection accepts "back-to-front"/"btf" and "front-to-back"/"ftb".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "back-to-front", "btf":
		return BackToFront, nil
	case "front-to-back", "ftb":
		return FrontToBack, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Config is shared by both strategies. Every rank must pass an equivalent
// Config to the same pass.
type Config struct {
	Width  int
	Height int

	// Root receives the image. Ignored when Broadcast is set.
	Root int

	// Broadcast delivers the image to every rank.
	Broadcast bool

	// Background, when set, is composited behind every region pixel and the
	// result is opaque. Region-patch strategy only.
	Background *frame.Color

	Direction Direction

	// Format is the band and output format of the scanline strategy.
	Format frame.PixelFormat

	// Codec compresses pixel payloads on the wire. CodecHTJ2K applies to
	// scanline bands only.
	Codec compression.Codec

	// HalfPixels sends patch colors as binary16. It is lossy; depth is
	// always sent at full precision.
	HalfPixels bool

	// Rows overrides the uniform band layout of the scanline strategy,
	// for example with a partition.Balanced table from the previous frame.
	Rows *partition.Partition

	Parallel ParallelConfig

	// Pool supplies scratch buffers. When nil each pass uses a private pool
	// limited to MemoryLimit bytes (0 = unlimited).
	Pool        *frame.BufferPool
	MemoryLimit int64

	Logger *slog.Logger
}

// DefaultConfig returns a root-only, back-to-front, uncompressed RGB
// configuration for a width x height frame.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:     width,
		Height:    height,
		Direction: BackToFront,
		Format:    frame.FormatRGB,
		Codec:     compression.CodecNone,
		Parallel:  DefaultParallelConfig(),
	}
}

// Validate checks c for a group of size ranks.
func (c *Config) Validate(size int) error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: frame %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case size <= 0:
		return fmt.Errorf("%w: %d ranks", ErrInvalidConfig, size)
	case !c.Broadcast && (c.Root < 0 || c.Root >= size):
		return fmt.Errorf("%w: root %d not in [0, %d)", ErrInvalidConfig, c.Root, size)
	case c.Direction != BackToFront && c.Direction != FrontToBack:
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.Direction)
	case !c.Format.Valid():
		return fmt.Errorf("%w: format %v", ErrInvalidConfig, c.Format)
	case !c.Codec.Valid():
		return fmt.Errorf("%w: codec %v", ErrInvalidConfig, c.Codec)
	case c.MemoryLimit < 0:
		return fmt.Errorf("%w: negative memory limit", ErrInvalidConfig)
	}
	if c.Rows != nil && (c.Rows.Height() != c.Height || c.Rows.Ranks() != size) {
		return fmt.Errorf("%w: %v does not cover %d rows over %d ranks", ErrInvalidConfig, c.Rows, c.Height, size)
	}
	return nil
}

// receives reports whether rank ends the pass holding the image.
func (c *Config) receives(rank int) bool {
	return c.Broadcast || rank == c.Root
}

func (c *Config) arena() *frame.Arena {
	if c.Pool != nil {
		return frame.NewArena(c.Pool)
	}
	return frame.NewArena(frame.NewBufferPool(c.MemoryLimit))
}
