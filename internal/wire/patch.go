package wire

import (
	"fmt"

	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/half"
	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// Patch envelope flags
const (
	FlagPixelDepth uint8 = 1 << iota // a per-pixel depth section follows
	FlagHalf                         // color values are binary16
)

// PatchOptions controls how patch pixels are encoded.
type PatchOptions struct {
	Codec compression.Codec

	// Half sends color values as binary16. Depth always stays float32 so
	// the blend order is unaffected.
	Half bool
}

// EncodePatch serializes p. Layout:
//
//	magic u32, version u8, format u8, codec u8, flags u8,
//	minX i32, minY i32, maxX i32, maxY i32,
//	depth f32, rank i32, index i32,
//	color section [, depth section]
//
// Each section is rawLen u64, payloadLen u64, payload.
func EncodePatch(p *frame.Patch, opts PatchOptions) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Rect.IsEmpty() {
		return nil, frame.ErrEmptyRect
	}

	var flags uint8
	if p.PixelDepth != nil {
		flags |= FlagPixelDepth
	}
	elemSize := 4
	var color []byte
	if opts.Half {
		flags |= FlagHalf
		elemSize = 2
		color = make([]byte, 2*len(p.Pix))
		half.Encode(color, p.Pix)
	} else {
		color = make([]byte, 4*len(p.Pix))
		xdr.EncodeFloat32s(color, p.Pix)
	}

	w := xdr.NewWriter(48 + len(color))
	writePreamble(w, magicPatch)
	w.WriteUint8(uint8(p.Format))
	w.WriteUint8(uint8(opts.Codec))
	w.WriteUint8(flags)
	w.WriteInt32(int32(p.Rect.MinX))
	w.WriteInt32(int32(p.Rect.MinY))
	w.WriteInt32(int32(p.Rect.MaxX))
	w.WriteInt32(int32(p.Rect.MaxY))
	w.WriteFloat32(p.Depth)
	w.WriteInt32(int32(p.Rank))
	w.WriteInt32(int32(p.Index))

	if err := writeSection(w, opts.Codec, color, elemSize); err != nil {
		return nil, fmt.Errorf("wire: patch color: %w", err)
	}
	if p.PixelDepth != nil {
		depth := make([]byte, 4*len(p.PixelDepth))
		xdr.EncodeFloat32s(depth, p.PixelDepth)
		if err := writeSection(w, opts.Codec, depth, 4); err != nil {
			return nil, fmt.Errorf("wire: patch depth: %w", err)
		}
	}
	return w.Bytes(), nil
}

// DecodePatch parses an envelope written by EncodePatch.
func DecodePatch(data []byte) (*frame.Patch, error) {
	r := xdr.NewReader(data)
	if err := readPreamble(r, magicPatch); err != nil {
		return nil, err
	}
	f, err := r.ReadUint8()
	if err != nil {
		return nil, ErrTruncated
	}
	format := frame.PixelFormat(f)
	if !format.Valid() {
		return nil, fmt.Errorf("%w: format %d", ErrBadHeader, f)
	}
	codec, err := readCodec(r)
	if err != nil {
		return nil, err
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return nil, ErrTruncated
	}
	if flags&^(FlagPixelDepth|FlagHalf) != 0 {
		return nil, fmt.Errorf("%w: flags 0x%02x", ErrBadHeader, flags)
	}

	p := &frame.Patch{Format: format}
	if err := readInt32s(r, &p.Rect.MinX, &p.Rect.MinY, &p.Rect.MaxX, &p.Rect.MaxY); err != nil {
		return nil, err
	}
	if p.Rect.IsEmpty() {
		return nil, fmt.Errorf("%w: empty rect %v", ErrBadHeader, p.Rect)
	}
	if p.Depth, err = r.ReadFloat32(); err != nil {
		return nil, ErrTruncated
	}
	if err := readInt32s(r, &p.Rank, &p.Index); err != nil {
		return nil, err
	}

	area := p.Rect.Area()
	values := area * int64(format.Channels())
	if values > maxSection/4 {
		return nil, fmt.Errorf("%w: patch %v too large", ErrBadHeader, p.Rect)
	}

	elemSize := 4
	if flags&FlagHalf != 0 {
		elemSize = 2
	}
	color, err := readSection(r, codec, int(values)*elemSize, elemSize)
	if err != nil {
		return nil, err
	}
	p.Pix = make([]float32, values)
	if elemSize == 2 {
		half.Decode(p.Pix, color)
	} else {
		xdr.DecodeFloat32s(p.Pix, color)
	}

	if flags&FlagPixelDepth != 0 {
		depth, err := readSection(r, codec, int(area)*4, 4)
		if err != nil {
			return nil, err
		}
		p.PixelDepth = make([]float32, area)
		xdr.DecodeFloat32s(p.PixelDepth, depth)
	}

	if err := checkEnd(r); err != nil {
		return nil, err
	}
	return p, nil
}
