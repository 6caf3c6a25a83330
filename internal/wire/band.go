package wire

import (
	"fmt"

	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// BandHeader describes the rows a rank contributes to a scanline
// composite. RowCount is zero for a rank whose band is empty.
type BandHeader struct {
	Rank     int
	RowStart int
	RowCount int
	Width    int
	Format   frame.PixelFormat
	Codec    compression.Codec
}

// RawLen returns the byte length of the band's pixels.
func (h BandHeader) RawLen() int {
	return h.RowCount * h.Width * h.Format.Channels()
}

// EncodeBand serializes a band. Layout:
//
//	magic u32, version u8, rank i32, rowStart i32, rowCount i32, width i32,
//	format u8, codec u8, section
//
// CodecHTJ2K codes the band as a lossless JPEG 2000 image; the other codecs
// use compression.Compress with single-byte elements.
func EncodeBand(h BandHeader, pix []byte) ([]byte, error) {
	if !h.Format.Valid() {
		return nil, frame.ErrInvalidFormat
	}
	if h.RowCount < 0 || h.Width <= 0 {
		return nil, fmt.Errorf("%w: %d rows of width %d", ErrBadHeader, h.RowCount, h.Width)
	}
	if len(pix) != h.RawLen() {
		return nil, fmt.Errorf("%w: band has %d bytes, want %d", frame.ErrBufferSize, len(pix), h.RawLen())
	}

	w := xdr.NewWriter(32 + len(pix))
	writePreamble(w, magicBand)
	w.WriteInt32(int32(h.Rank))
	w.WriteInt32(int32(h.RowStart))
	w.WriteInt32(int32(h.RowCount))
	w.WriteInt32(int32(h.Width))
	w.WriteUint8(uint8(h.Format))

	codec := h.Codec
	if codec == compression.CodecHTJ2K && h.RowCount == 0 {
		codec = compression.CodecNone
	}
	w.WriteUint8(uint8(codec))

	if codec != compression.CodecHTJ2K {
		if err := writeSection(w, codec, pix, 1); err != nil {
			return nil, fmt.Errorf("wire: band: %w", err)
		}
		return w.Bytes(), nil
	}

	payload, err := compression.HTJ2KEncode(pix, h.Width, h.RowCount, h.Format.Channels())
	if err != nil {
		return nil, fmt.Errorf("wire: band: %w", err)
	}
	w.WriteUint64(uint64(len(pix)))
	w.WriteUint64(uint64(len(payload)))
	w.WriteBytes(payload)
	return w.Bytes(), nil
}

// DecodeBand parses an envelope written by EncodeBand.
func DecodeBand(data []byte) (BandHeader, []byte, error) {
	var h BandHeader
	r := xdr.NewReader(data)
	if err := readPreamble(r, magicBand); err != nil {
		return h, nil, err
	}
	if err := readInt32s(r, &h.Rank, &h.RowStart, &h.RowCount, &h.Width); err != nil {
		return h, nil, err
	}
	f, err := r.ReadUint8()
	if err != nil {
		return h, nil, ErrTruncated
	}
	h.Format = frame.PixelFormat(f)
	if !h.Format.Valid() {
		return h, nil, fmt.Errorf("%w: format %d", ErrBadHeader, f)
	}
	if h.Codec, err = readCodec(r); err != nil {
		return h, nil, err
	}
	if h.RowStart < 0 || h.RowCount < 0 || h.Width <= 0 ||
		int64(h.RowCount)*int64(h.Width)*int64(h.Format.Channels()) > maxSection {
		return h, nil, fmt.Errorf("%w: rows %d+%d of width %d", ErrBadHeader, h.RowStart, h.RowCount, h.Width)
	}

	var pix []byte
	if h.Codec == compression.CodecHTJ2K {
		payload, _, err := readSectionHeader(r, h.RawLen())
		if err != nil {
			return h, nil, err
		}
		pix, err = compression.HTJ2KDecode(payload, h.Width, h.RowCount, h.Format.Channels())
		if err != nil {
			return h, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	} else {
		pix, err = readSection(r, h.Codec, h.RawLen(), 1)
		if err != nil {
			return h, nil, err
		}
	}
	if err := checkEnd(r); err != nil {
		return h, nil, err
	}
	return h, pix, nil
}
