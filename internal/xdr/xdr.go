// Package xdr provides little-endian binary encoding for the message
// envelopes exchanged between ranks and for the OpenEXR output writer.
//
// Reader is bounds-checked and never panics on short input; every read
// past the end returns ErrShortBuffer. Writer grows as needed.
package xdr

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a read runs past the end of the data.
	ErrShortBuffer = errors.New("xdr: buffer too short")

	// ErrNegativeSize is returned when a size parameter is negative.
	ErrNegativeSize = errors.New("xdr: negative size")
)

// ByteOrder is the byte order of every multi-byte value.
var ByteOrder = binary.LittleEndian

// Reader reads little-endian values from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Pos returns the current read position.
func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if n > len(r.data)-r.pos {
		return nil, ErrShortBuffer
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return ByteOrder.Uint32(b), nil
}

// ReadInt32 reads a signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return ByteOrder.Uint64(b), nil
}

// ReadInt64 reads a signed 64-bit integer.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 single.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// ReadFloat32s fills dst with consecutive singles.
func (r *Reader) ReadFloat32s(dst []float32) error {
	b, err := r.take(4 * len(dst))
	if err != nil {
		return err
	}
	DecodeFloat32s(dst, b)
	return nil
}

// Writer appends little-endian values to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with an initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written data. The slice is valid until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint32 writes an unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = ByteOrder.AppendUint32(w.buf, v)
}

// WriteInt32 writes a signed 32-bit integer.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 writes an unsigned 64-bit integer.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = ByteOrder.AppendUint64(w.buf, v)
}

// WriteInt64 writes a signed 64-bit integer.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 writes an IEEE 754 single.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteString writes s followed by a NUL byte.
func (w *Writer) WriteString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteFloat32s writes consecutive singles.
func (w *Writer) WriteFloat32s(src []float32) {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, 4*len(src))...)
	EncodeFloat32s(w.buf[start:], src)
}

// PatchUint64 overwrites 8 bytes at off, for back-filling offset tables.
func (w *Writer) PatchUint64(off int, v uint64) error {
	if off < 0 || off+8 > len(w.buf) {
		return ErrShortBuffer
	}
	ByteOrder.PutUint64(w.buf[off:], v)
	return nil
}

// EncodeFloat32s writes src into dst, which must hold 4*len(src) bytes.
func EncodeFloat32s(dst []byte, src []float32) {
	for i, v := range src {
		ByteOrder.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

// DecodeFloat32s reads len(dst) singles from src.
func DecodeFloat32s(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(ByteOrder.Uint32(src[4*i:]))
	}
}
