// Package exr writes composited frames as OpenEXR files.
//
// Only what a compositing result needs is supported: single-part,
// uncompressed scanline images with HALF channels A, B, G, R holding
// premultiplied color, which is OpenEXR's native convention.
package exr

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// MagicNumber starts every OpenEXR file.
const MagicNumber = 20000630

// Version is the single-part scanline file version.
const Version = 2

// Compression identifies a pixel compression method.
type Compression uint8

// CompressionNone stores pixel data uncompressed.
const CompressionNone Compression = 0

// LineOrder is the order in which scanline chunks are stored.
type LineOrder uint8

// LineOrderIncreasingY stores chunks top to bottom.
const LineOrderIncreasingY LineOrder = 0

// PixelType is the storage type of a channel.
type PixelType int32

const (
	PixelTypeUint  PixelType = 0
	PixelTypeHalf  PixelType = 1
	PixelTypeFloat PixelType = 2
)

// V2f represents a 2D float vector.
type V2f struct {
	X, Y float32
}

// Box2i is an integer box with inclusive corners.
type Box2i struct {
	XMin, YMin, XMax, YMax int32
}

// Channel describes one channel of the channel list.
type Channel struct {
	Name      string
	Type      PixelType
	PLinear   bool
	XSampling int32
	YSampling int32
}

// Attribute errors
var (
	ErrUnknownAttributeType = errors.New("exr: unknown attribute type")
	ErrReservedAttribute    = errors.New("exr: metadata overrides a required attribute")
)

// AttributeType names an attribute's value encoding.
type AttributeType string

// Attribute types written by this package
const (
	AttrTypeBox2i       AttributeType = "box2i"
	AttrTypeChlist      AttributeType = "chlist"
	AttrTypeCompression AttributeType = "compression"
	AttrTypeFloat       AttributeType = "float"
	AttrTypeLineOrder   AttributeType = "lineOrder"
	AttrTypeString      AttributeType = "string"
	AttrTypeV2f         AttributeType = "v2f"
)

// Attribute is a single header attribute.
type Attribute struct {
	Name  string
	Type  AttributeType
	Value interface{}
}

// WriteAttribute writes name, type, value size, and value.
func WriteAttribute(w *xdr.Writer, attr *Attribute) error {
	w.WriteString(attr.Name)
	w.WriteString(string(attr.Type))

	// Write value to a temporary buffer to learn its size.
	vw := xdr.NewWriter(64)
	if err := writeAttributeValue(vw, attr); err != nil {
		return err
	}

	w.WriteInt32(int32(vw.Len()))
	w.WriteBytes(vw.Bytes())
	return nil
}

func writeAttributeValue(w *xdr.Writer, attr *Attribute) error {
	switch attr.Type {
	case AttrTypeBox2i:
		b := attr.Value.(Box2i)
		w.WriteInt32(b.XMin)
		w.WriteInt32(b.YMin)
		w.WriteInt32(b.XMax)
		w.WriteInt32(b.YMax)
	case AttrTypeChlist:
		writeChannelList(w, attr.Value.([]Channel))
	case AttrTypeCompression:
		w.WriteUint8(uint8(attr.Value.(Compression)))
	case AttrTypeFloat:
		w.WriteFloat32(attr.Value.(float32))
	case AttrTypeLineOrder:
		w.WriteUint8(uint8(attr.Value.(LineOrder)))
	case AttrTypeString:
		// Strings carry no terminator; the attribute size delimits them.
		w.WriteBytes([]byte(attr.Value.(string)))
	case AttrTypeV2f:
		v := attr.Value.(V2f)
		w.WriteFloat32(v.X)
		w.WriteFloat32(v.Y)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAttributeType, attr.Type)
	}
	return nil
}

// writeChannelList writes channels, which must be sorted by name, followed
// by the list terminator.
func writeChannelList(w *xdr.Writer, channels []Channel) {
	for _, ch := range channels {
		w.WriteString(ch.Name)
		w.WriteInt32(int32(ch.Type))
		var pLinear uint8
		if ch.PLinear {
			pLinear = 1
		}
		w.WriteUint8(pLinear)
		w.WriteBytes([]byte{0, 0, 0}) // reserved
		w.WriteInt32(ch.XSampling)
		w.WriteInt32(ch.YSampling)
	}
	w.WriteUint8(0)
}
