// Package wire defines the typed envelopes ranks exchange: depth-tagged
// patches during direct-send, opaque scanline bands, and composited region
// blocks during the final gather.
//
// Every envelope starts with a four-byte magic and a version byte, followed
// by a fixed little-endian header and one or more payload sections. A
// section carries its raw and encoded lengths so the receiver can size the
// decode buffer and reject truncated or inconsistent messages before
// touching pixel data.
package wire

import (
	"errors"
	"fmt"

	"github.com/mrjoshuak/go-sortlast/compression"
	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// Envelope errors
var (
	ErrBadMagic   = errors.New("wire: bad envelope magic")
	ErrVersion    = errors.New("wire: unsupported envelope version")
	ErrTruncated  = errors.New("wire: truncated envelope")
	ErrBadHeader  = errors.New("wire: invalid envelope header")
	ErrTrailing   = errors.New("wire: trailing bytes after envelope")
	ErrBadPayload = errors.New("wire: payload does not match header")
)

// Version is the envelope version written by this package.
const Version = 1

const (
	magicPatch uint32 = 0x54504c53 // "SLPT"
	magicBand  uint32 = 0x44424c53 // "SLBD"
	magicBlock uint32 = 0x4b424c53 // "SLBK"
)

// maxSection bounds the raw size a header may announce.
const maxSection = 1 << 34

func writePreamble(w *xdr.Writer, magic uint32) {
	w.WriteUint32(magic)
	w.WriteUint8(Version)
}

func readPreamble(r *xdr.Reader, magic uint32) error {
	m, err := r.ReadUint32()
	if err != nil {
		return ErrTruncated
	}
	if m != magic {
		return fmt.Errorf("%w: 0x%08x", ErrBadMagic, m)
	}
	v, err := r.ReadUint8()
	if err != nil {
		return ErrTruncated
	}
	if v != Version {
		return fmt.Errorf("%w: %d", ErrVersion, v)
	}
	return nil
}

// writeSection compresses raw and appends rawLen, payloadLen, payload.
func writeSection(w *xdr.Writer, codec compression.Codec, raw []byte, elemSize int) error {
	payload, err := compression.Compress(codec, raw, elemSize)
	if err != nil {
		return err
	}
	w.WriteUint64(uint64(len(raw)))
	w.WriteUint64(uint64(len(payload)))
	w.WriteBytes(payload)
	return nil
}

// readSection reads a section written by writeSection and checks that it
// decodes to exactly wantRaw bytes.
func readSection(r *xdr.Reader, codec compression.Codec, wantRaw, elemSize int) ([]byte, error) {
	payload, rawLen, err := readSectionHeader(r, wantRaw)
	if err != nil {
		return nil, err
	}
	raw, err := compression.Decompress(codec, payload, rawLen, elemSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return raw, nil
}

func readSectionHeader(r *xdr.Reader, wantRaw int) (payload []byte, rawLen int, err error) {
	raw, err := r.ReadUint64()
	if err != nil {
		return nil, 0, ErrTruncated
	}
	n, err := r.ReadUint64()
	if err != nil {
		return nil, 0, ErrTruncated
	}
	if raw > maxSection || n > maxSection {
		return nil, 0, fmt.Errorf("%w: section of %d/%d bytes", ErrBadHeader, raw, n)
	}
	if int(raw) != wantRaw {
		return nil, 0, fmt.Errorf("%w: raw length %d, want %d", ErrBadPayload, raw, wantRaw)
	}
	payload, err = r.ReadBytes(int(n))
	if err != nil {
		return nil, 0, ErrTruncated
	}
	return payload, int(raw), nil
}

func readCodec(r *xdr.Reader) (compression.Codec, error) {
	c, err := r.ReadUint8()
	if err != nil {
		return 0, ErrTruncated
	}
	codec := compression.Codec(c)
	if !codec.Valid() {
		return 0, fmt.Errorf("%w: codec %d", ErrBadHeader, c)
	}
	return codec, nil
}

func readInt32s(r *xdr.Reader, dst ...*int) error {
	for _, d := range dst {
		v, err := r.ReadInt32()
		if err != nil {
			return ErrTruncated
		}
		*d = int(v)
	}
	return nil
}

func checkEnd(r *xdr.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d", ErrTrailing, r.Len())
	}
	return nil
}
