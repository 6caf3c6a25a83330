package xdr

import (
	"errors"
	"math"
	"testing"
)

func TestWriterReader(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(7)
	w.WriteUint32(0xdeadbeef)
	w.WriteInt32(-5)
	w.WriteUint64(1 << 40)
	w.WriteFloat32(1.5)
	w.WriteFloat32s([]float32{0.25, float32(math.Inf(-1))})
	w.WriteString("RGBA")

	if w.Bytes()[1] != 0xef {
		t.Errorf("uint32 not little-endian: first byte %#x", w.Bytes()[1])
	}

	r := NewReader(w.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 7 {
		t.Errorf("ReadUint8 = %v, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadUint32 = %#x, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -5 {
		t.Errorf("ReadInt32 = %v, %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1<<40 {
		t.Errorf("ReadUint64 = %v, %v", v, err)
	}
	if v, err := r.ReadFloat32(); err != nil || v != 1.5 {
		t.Errorf("ReadFloat32 = %v, %v", v, err)
	}
	fs := make([]float32, 2)
	if err := r.ReadFloat32s(fs); err != nil || fs[0] != 0.25 || !math.IsInf(float64(fs[1]), -1) {
		t.Errorf("ReadFloat32s = %v, %v", fs, err)
	}
	if b, err := r.ReadBytes(5); err != nil || string(b) != "RGBA\x00" {
		t.Errorf("ReadBytes = %q, %v", b, err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestReaderShort(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
	if r.Pos() != 0 {
		t.Errorf("failed read advanced position to %d", r.Pos())
	}
	if _, err := r.ReadBytes(-1); !errors.Is(err, ErrNegativeSize) {
		t.Errorf("expected ErrNegativeSize, got %v", err)
	}
}

func TestPatchUint64(t *testing.T) {
	w := NewWriter(16)
	w.WriteUint64(0)
	w.WriteUint8(9)
	if err := w.PatchUint64(0, 42); err != nil {
		t.Fatal(err)
	}
	v, _ := NewReader(w.Bytes()).ReadUint64()
	if v != 42 {
		t.Errorf("patched value = %d, want 42", v)
	}
	if err := w.PatchUint64(5, 1); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
