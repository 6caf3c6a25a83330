// Package shuffle implements the reversible byte filters applied to pixel
// payloads before entropy coding.
//
// Split groups the bytes of fixed-size elements by position, so for float32
// data all low bytes come first and all exponent bytes come last:
//
//	Input:  [A0 A1 A2 A3  B0 B1 B2 B3]
//	Output: [A0 B0  A1 B1  A2 B2  A3 B3]
//
// Delta then replaces every byte with its difference from the previous one.
// Smooth images turn into long runs of small values that compress well.
package shuffle

// Split reorders data into byte planes of the given element size and
// writes the result to out, which is allocated when nil. Trailing bytes
// that do not fill an element are copied unchanged.
func Split(data []byte, size int, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data))
	}
	if size <= 1 || len(data) < size {
		copy(out, data)
		return out
	}

	n := len(data) / size
	for plane := 0; plane < size; plane++ {
		dst := out[plane*n : (plane+1)*n]
		for i := range dst {
			dst[i] = data[i*size+plane]
		}
	}
	copy(out[n*size:], data[n*size:])
	return out
}

// Join reverses Split.
func Join(data []byte, size int, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data))
	}
	if size <= 1 || len(data) < size {
		copy(out, data)
		return out
	}

	n := len(data) / size
	for plane := 0; plane < size; plane++ {
		src := data[plane*n : (plane+1)*n]
		for i, b := range src {
			out[i*size+plane] = b
		}
	}
	copy(out[n*size:], data[n*size:])
	return out
}

// Delta applies the horizontal differencing predictor in place.
func Delta(data []byte) {
	for i := len(data) - 1; i >= 1; i-- {
		data[i] -= data[i-1]
	}
}

// Undelta reverses Delta in place.
func Undelta(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] += data[i-1]
	}
}
