// Package half provides IEEE 754 binary16 conversion used to shrink float
// pixel payloads on the wire.
//
// Half-precision floats use 16 bits: 1 sign bit, 5 exponent bits (bias 15),
// and 10 mantissa bits. Color and alpha in [0, 1] keep about three decimal
// digits, which is enough for display but not for bit-exact compositing, so
// half payloads are opt-in.
package half

import (
	"encoding/binary"
	"math"
)

// Half is an IEEE 754 binary16 value.
type Half uint16

const (
	signBit = 0x8000
	expMask = 0x7c00
	manMask = 0x03ff

	quietNaN = 0x7e00
)

// FromFloat32 converts f using round-to-nearest-even. Values beyond the half
// range become infinities and values below the subnormal range become zero.
func FromFloat32(f float32) Half {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & signBit
	if bits&0x7fffffff > 0x7f800000 {
		return Half(sign | quietNaN)
	}

	exp := int32(bits>>23&0xff) - 127 + 15
	man := bits & 0x007fffff

	switch {
	case exp >= 31:
		return Half(sign | expMask)

	case exp <= 0:
		if exp < -10 {
			return Half(sign)
		}
		man |= 0x00800000
		shift := uint32(14 - exp)
		h := man >> shift
		rem := man & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && h&1 == 1) {
			h++
		}
		// A carry out of the mantissa lands on the smallest normal.
		return Half(sign | uint16(h))
	}

	h := uint32(exp)<<10 | man>>13
	rem := man & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
		// A carry into the exponent may produce infinity, which is correct.
		h++
	}
	return Half(sign | uint16(h))
}

// Float32 converts h to float32 exactly.
func (h Half) Float32() float32 {
	sign := uint32(h&signBit) << 16
	exp := uint32(h&expMask) >> 10
	man := uint32(h & manMask)

	switch exp {
	case 0:
		if man == 0 {
			return math.Float32frombits(sign)
		}
		f := float32(man) / (1 << 24)
		if sign != 0 {
			f = -f
		}
		return f
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | man<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | man<<13)
}

// IsNaN reports whether h is a NaN.
func (h Half) IsNaN() bool {
	return h&expMask == expMask && h&manMask != 0
}

// IsInf reports whether h is an infinity of either sign.
func (h Half) IsInf() bool {
	return h&^signBit == expMask
}

// Encode writes src as little-endian halves into dst, which must hold
// 2*len(src) bytes.
func Encode(dst []byte, src []float32) {
	if len(src) == 0 {
		return
	}
	_ = dst[2*len(src)-1]
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(FromFloat32(v)))
	}
}

// Decode reads len(dst) little-endian halves from src.
func Decode(dst []float32, src []byte) {
	if len(dst) == 0 {
		return
	}
	_ = src[2*len(dst)-1]
	for i := range dst {
		dst[i] = Half(binary.LittleEndian.Uint16(src[2*i:])).Float32()
	}
}
