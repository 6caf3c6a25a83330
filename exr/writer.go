package exr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/half"
	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// ErrEmptyImage is returned for an image without pixels.
var ErrEmptyImage = errors.New("exr: empty image")

// channelOrder lists the written channels sorted by name, with their
// offset inside an RGBA pixel.
var channelOrder = []struct {
	name   string
	offset int
}{
	{"A", 3},
	{"B", 2},
	{"G", 1},
	{"R", 0},
}

// requiredAttributes is the number of attributes Header returns.
const requiredAttributes = 8

// Header returns the attributes written for a width x height image.
func Header(width, height int) []*Attribute {
	channels := make([]Channel, len(channelOrder))
	for i, c := range channelOrder {
		channels[i] = Channel{Name: c.name, Type: PixelTypeHalf, XSampling: 1, YSampling: 1}
	}
	window := Box2i{XMin: 0, YMin: 0, XMax: int32(width - 1), YMax: int32(height - 1)}
	return []*Attribute{
		{Name: "channels", Type: AttrTypeChlist, Value: channels},
		{Name: "compression", Type: AttrTypeCompression, Value: CompressionNone},
		{Name: "dataWindow", Type: AttrTypeBox2i, Value: window},
		{Name: "displayWindow", Type: AttrTypeBox2i, Value: window},
		{Name: "lineOrder", Type: AttrTypeLineOrder, Value: LineOrderIncreasingY},
		{Name: "pixelAspectRatio", Type: AttrTypeFloat, Value: float32(1)},
		{Name: "screenWindowCenter", Type: AttrTypeV2f, Value: V2f{}},
		{Name: "screenWindowWidth", Type: AttrTypeFloat, Value: float32(1)},
	}
}

// Encode returns img as an OpenEXR file. Each scanline is one chunk holding
// the row's A, B, G, and R values as half floats. meta is appended to the
// required header attributes and may not replace any of them.
func Encode(img *frame.FloatImage, meta ...*Attribute) ([]byte, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(img.Pix) != img.Width*img.Height*4 {
		return nil, fmt.Errorf("exr: %w: %d values for %dx%d", frame.ErrBufferSize, len(img.Pix), img.Width, img.Height)
	}

	header := Header(img.Width, img.Height)
	for _, m := range meta {
		for _, attr := range header[:requiredAttributes] {
			if m.Name == attr.Name {
				return nil, fmt.Errorf("%w: %s", ErrReservedAttribute, m.Name)
			}
		}
		header = append(header, m)
	}

	rowBytes := img.Width * 2 * len(channelOrder)
	w := xdr.NewWriter(512 + img.Height*(16+rowBytes))
	w.WriteInt32(MagicNumber)
	w.WriteInt32(Version)
	for _, attr := range header {
		if err := WriteAttribute(w, attr); err != nil {
			return nil, err
		}
	}
	w.WriteUint8(0) // end of header

	tableStart := w.Len()
	for y := 0; y < img.Height; y++ {
		w.WriteUint64(0)
	}

	plane := make([]float32, img.Width)
	chunk := make([]byte, rowBytes)
	for y := 0; y < img.Height; y++ {
		if err := w.PatchUint64(tableStart+8*y, uint64(w.Len())); err != nil {
			return nil, err
		}
		row := img.Rows(y, y)
		for c, ch := range channelOrder {
			for x := range plane {
				plane[x] = row[x*4+ch.offset]
			}
			half.Encode(chunk[c*img.Width*2:(c+1)*img.Width*2], plane)
		}
		w.WriteInt32(int32(y))
		w.WriteInt32(int32(rowBytes))
		w.WriteBytes(chunk)
	}
	return w.Bytes(), nil
}

// Write encodes img to out.
func Write(out io.Writer, img *frame.FloatImage, meta ...*Attribute) error {
	data, err := Encode(img, meta...)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// WriteFile writes img to path.
func WriteFile(path string, img *frame.FloatImage, meta ...*Attribute) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(f)
	if err := Write(bw, img, meta...); err != nil {
		return err
	}
	return bw.Flush()
}
