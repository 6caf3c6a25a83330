package frame

import (
	"image"
	"math"
)

// Image is a composited 8-bit frame with extent (0,0)-(Width-1,Height-1).
type Image struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// NewImage allocates a zeroed 8-bit image.
func NewImage(width, height int, format PixelFormat) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, width*height*format.Channels()),
	}
}

// Stride returns the byte length of one row.
func (m *Image) Stride() int {
	return m.Width * m.Format.Channels()
}

// PixelAt returns the channel bytes of pixel (x, y).
func (m *Image) PixelAt(x, y int) []byte {
	ch := m.Format.Channels()
	i := (y*m.Width + x) * ch
	return m.Pix[i : i+ch]
}

// ToNRGBA converts the image to an *image.NRGBA. RGB images become opaque.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	ch := m.Format.Channels()
	for i, j := 0, 0; i+ch <= len(m.Pix); i, j = i+ch, j+4 {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = m.Pix[i], m.Pix[i+1], m.Pix[i+2]
		if ch == 4 {
			out.Pix[j+3] = m.Pix[i+3]
		} else {
			out.Pix[j+3] = 0xff
		}
	}
	return out
}

// FloatImage is a composited frame of premultiplied RGBA float32 pixels.
type FloatImage struct {
	Width  int
	Height int
	Pix    []float32
}

// NewFloatImage allocates a transparent float image.
func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height*4),
	}
}

// At returns the premultiplied RGBA value of pixel (x, y).
func (m *FloatImage) At(x, y int) (r, g, b, a float32) {
	i := (y*m.Width + x) * 4
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3]
}

// Rows returns the slice of Pix holding rows [y0, y1] inclusive.
func (m *FloatImage) Rows(y0, y1 int) []float32 {
	return m.Pix[y0*m.Width*4 : (y1+1)*m.Width*4]
}

// ToImage quantizes the frame to 8 bits. FormatRGB yields the color as
// composited over black; FormatRGBA yields straight color plus alpha.
func (m *FloatImage) ToImage(format PixelFormat) *Image {
	out := NewImage(m.Width, m.Height, format)
	ch := format.Channels()
	for i, j := 0, 0; i+4 <= len(m.Pix); i, j = i+4, j+ch {
		r, g, b, a := m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3]
		if ch == 4 {
			if a > 0 && a < 1 {
				r, g, b = r/a, g/a, b/a
			}
			out.Pix[j+3] = quantize(a)
		}
		out.Pix[j], out.Pix[j+1], out.Pix[j+2] = quantize(r), quantize(g), quantize(b)
	}
	return out
}

// ToNRGBA converts the frame to a straight-alpha *image.NRGBA.
func (m *FloatImage) ToNRGBA() *image.NRGBA {
	return m.ToImage(FormatRGBA).ToNRGBA()
}

func quantize(v float32) byte {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(math.Round(float64(v) * 255))
}
