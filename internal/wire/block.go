package wire

import (
	"fmt"

	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// BlockHeader describes a composited region: RowCount full-width rows of
// premultiplied RGBA float32 starting at RowStart.
type BlockHeader struct {
	RowStart int
	RowCount int
	Width    int
	Codec    compression.Codec
}

// Values returns the number of float32 values in the block.
func (h BlockHeader) Values() int {
	return h.RowCount * h.Width * 4
}

// EncodeBlock serializes a region block. Layout:
//
//	magic u32, version u8, rowStart i32, rowCount i32, width i32, codec u8,
//	section
func EncodeBlock(h BlockHeader, pix []float32) ([]byte, error) {
	if h.RowCount < 0 || h.Width <= 0 || len(pix) != h.Values() {
		return nil, fmt.Errorf("%w: %d values for %d rows of width %d", ErrBadHeader, len(pix), h.RowCount, h.Width)
	}
	raw := make([]byte, 4*len(pix))
	xdr.EncodeFloat32s(raw, pix)

	w := xdr.NewWriter(24 + len(raw))
	writePreamble(w, magicBlock)
	w.WriteInt32(int32(h.RowStart))
	w.WriteInt32(int32(h.RowCount))
	w.WriteInt32(int32(h.Width))
	w.WriteUint8(uint8(h.Codec))
	if err := writeSection(w, h.Codec, raw, 4); err != nil {
		return nil, fmt.Errorf("wire: block: %w", err)
	}
	return w.Bytes(), nil
}

// DecodeBlock parses an envelope written by EncodeBlock.
func DecodeBlock(data []byte) (BlockHeader, []float32, error) {
	var h BlockHeader
	r := xdr.NewReader(data)
	if err := readPreamble(r, magicBlock); err != nil {
		return h, nil, err
	}
	if err := readInt32s(r, &h.RowStart, &h.RowCount, &h.Width); err != nil {
		return h, nil, err
	}
	var err error
	if h.Codec, err = readCodec(r); err != nil {
		return h, nil, err
	}
	if h.Codec == compression.CodecHTJ2K {
		return h, nil, fmt.Errorf("%w: HTJ2K float block", ErrBadHeader)
	}
	if h.RowStart < 0 || h.RowCount < 0 || h.Width <= 0 || int64(h.Values()) > maxSection/4 {
		return h, nil, fmt.Errorf("%w: rows %d+%d of width %d", ErrBadHeader, h.RowStart, h.RowCount, h.Width)
	}
	raw, err := readSection(r, h.Codec, 4*h.Values(), 4)
	if err != nil {
		return h, nil, err
	}
	if err := checkEnd(r); err != nil {
		return h, nil, err
	}
	pix := make([]float32, h.Values())
	xdr.DecodeFloat32s(pix, raw)
	return h, pix, nil
}
