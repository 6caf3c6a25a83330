package frame

import "fmt"

// Band is an opaque 8-bit partial image covering a horizontal strip of the
// final frame. Bands from different ranks never overlap.
type Band struct {
	Rect   Rect
	Format PixelFormat
	Pix    []byte
}

// NewBand allocates a zeroed band for rect.
func NewBand(rect Rect, format PixelFormat) *Band {
	return &Band{
		Rect:   rect,
		Format: format,
		Pix:    make([]byte, int(rect.Area())*format.Channels()),
	}
}

// Stride returns the byte length of one row.
func (b *Band) Stride() int {
	return b.Rect.Width() * b.Format.Channels()
}

// Validate checks the buffer length against the rectangle and format.
func (b *Band) Validate() error {
	if !b.Format.Valid() {
		return ErrInvalidFormat
	}
	if want := int(b.Rect.Area()) * b.Format.Channels(); len(b.Pix) != want {
		return fmt.Errorf("%w: band %v has %d bytes, want %d", ErrBufferSize, b.Rect, len(b.Pix), want)
	}
	return nil
}

// Fill sets every pixel of the band to the given channel values.
// Extra values beyond the format's channel count are ignored.
func (b *Band) Fill(values ...byte) {
	ch := b.Format.Channels()
	for i := 0; i+ch <= len(b.Pix); i += ch {
		for c := 0; c < ch && c < len(values); c++ {
			b.Pix[i+c] = values[c]
		}
	}
}
