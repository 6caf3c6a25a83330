// Package frame provides the pixel containers exchanged by the compositors:
// opaque 8-bit scanline bands, depth-tagged float patches, and the final
// composited images.
//
// All rectangles are expressed in final-image pixel coordinates with
// inclusive bounds, so a 10x10 frame is Rect{0, 0, 9, 9}.
package frame

import (
	"errors"
	"fmt"
	"strings"
)

// Frame errors
var (
	ErrEmptyRect     = errors.New("frame: empty rectangle")
	ErrBufferSize    = errors.New("frame: pixel buffer size does not match rectangle")
	ErrInvalidFormat = errors.New("frame: invalid pixel format")
	ErrInvalidDepth  = errors.New("frame: invalid depth")
	ErrInvalidPixel  = errors.New("frame: invalid pixel value")
)

// Rect is an axis-aligned integer pixel box with inclusive bounds.
type Rect struct {
	MinX, MinY int
	MaxX, MaxY int
}

// FullFrame returns the rectangle covering a width x height image.
func FullFrame(width, height int) Rect {
	return Rect{MinX: 0, MinY: 0, MaxX: width - 1, MaxY: height - 1}
}

// Width returns the number of columns, or 0 for an empty rectangle.
func (r Rect) Width() int {
	if r.MaxX < r.MinX {
		return 0
	}
	return r.MaxX - r.MinX + 1
}

// Height returns the number of rows, or 0 for an empty rectangle.
func (r Rect) Height() int {
	if r.MaxY < r.MinY {
		return 0
	}
	return r.MaxY - r.MinY + 1
}

// IsEmpty returns true if the rectangle contains no pixels.
func (r Rect) IsEmpty() bool {
	return r.MaxX < r.MinX || r.MaxY < r.MinY
}

// Area returns the pixel count.
func (r Rect) Area() int64 {
	return int64(r.Width()) * int64(r.Height())
}

// Contains reports whether the pixel (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Intersect returns the overlap of r and o. The result may be empty.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		MinX: max(r.MinX, o.MinX),
		MinY: max(r.MinY, o.MinY),
		MaxX: min(r.MaxX, o.MaxX),
		MaxY: min(r.MaxY, o.MaxY),
	}
}

// In reports whether r lies entirely inside o.
func (r Rect) In(o Rect) bool {
	return r.MinX >= o.MinX && r.MaxX <= o.MaxX && r.MinY >= o.MinY && r.MaxY <= o.MaxY
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d]-[%d,%d]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// PixelFormat identifies the channel layout of a pixel buffer.
type PixelFormat uint8

const (
	FormatRGB  PixelFormat = 3
	FormatRGBA PixelFormat = 4
)

// Channels returns the number of interleaved channels per pixel.
func (f PixelFormat) Channels() int {
	return int(f)
}

// Valid reports whether f is a supported format.
func (f PixelFormat) Valid() bool {
	return f == FormatRGB || f == FormatRGBA
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB:
		return "RGB"
	case FormatRGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// ParsePixelFormat converts "rgb" or "rgba" (any case) into a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch {
	case strings.EqualFold(s, "rgb"):
		return FormatRGB, nil
	case strings.EqualFold(s, "rgba"):
		return FormatRGBA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// Color is an opaque linear RGB color.
type Color struct {
	R, G, B float32
}
