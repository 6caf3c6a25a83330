// Package compression provides the payload codecs used when pixel data
// travels between ranks.
//
// Float payloads go through Compress/Decompress, which split the bytes into
// planes of the element size and delta-code them before zlib or zstd.
// Opaque 8-bit bands may also use HTJ2KEncode/HTJ2KDecode. Every codec here
// is lossless.
package compression

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mrjoshuak/go-sortlast/internal/shuffle"
)

// Codec errors
var (
	ErrUnknownCodec     = errors.New("compression: unknown codec")
	ErrCodecUnsupported = errors.New("compression: codec not supported for this payload")
)

// Codec identifies a payload encoding on the wire.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZlib
	CodecZstd
	CodecHTJ2K
)

var codecNames = [...]string{"none", "zlib", "zstd", "htj2k"}

func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool {
	return int(c) < len(codecNames)
}

// ParseCodec maps a codec name to its value.
func ParseCodec(s string) (Codec, error) {
	for i, name := range codecNames {
		if strings.EqualFold(s, name) {
			return Codec(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// Compress encodes src with codec. elemSize is the size in bytes of one
// value (4 for float32, 2 for half, 1 for 8-bit); it only affects how well
// the data compresses. CodecNone returns src itself.
func Compress(codec Codec, src []byte, elemSize int) ([]byte, error) {
	switch codec {
	case CodecNone:
		return src, nil
	case CodecZlib, CodecZstd:
	case CodecHTJ2K:
		return nil, ErrCodecUnsupported
	default:
		return nil, ErrUnknownCodec
	}
	if len(src) == 0 {
		return []byte{}, nil
	}

	filtered := shuffle.Split(src, elemSize, nil)
	shuffle.Delta(filtered)

	if codec == CodecZlib {
		return ZlibCompress(filtered, LevelBestSpeed)
	}
	return ZstdCompress(filtered)
}

// Decompress reverses Compress. rawSize is the length of the original data;
// a mismatch is reported as corruption.
func Decompress(codec Codec, src []byte, rawSize, elemSize int) ([]byte, error) {
	if codec.Valid() && codec != CodecHTJ2K && rawSize == 0 && len(src) == 0 {
		return []byte{}, nil
	}

	var filtered []byte
	var err error
	switch codec {
	case CodecNone:
		if len(src) != rawSize {
			return nil, fmt.Errorf("compression: raw payload is %d bytes, want %d", len(src), rawSize)
		}
		return src, nil
	case CodecZlib:
		filtered, err = ZlibDecompress(src, rawSize)
	case CodecZstd:
		filtered, err = ZstdDecompress(src, rawSize)
	case CodecHTJ2K:
		return nil, ErrCodecUnsupported
	default:
		return nil, ErrUnknownCodec
	}
	if err != nil {
		return nil, err
	}

	shuffle.Undelta(filtered)
	return shuffle.Join(filtered, elemSize, nil), nil
}
