package compression

import (
	"errors"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd errors
var (
	ErrZstdCorrupted = errors.New("compression: corrupted zstd data")
)

// The encoder and decoder are safe for concurrent EncodeAll/DecodeAll, so
// one of each serves every rank in the process.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func zstdInit() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1))
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(1<<31))
	})
	return zstdInitErr
}

// ZstdCompress compresses src as a single zstd frame.
func ZstdCompress(src []byte) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(src, make([]byte, 0, len(src)/2+64)), nil
}

// ZstdDecompress decodes src and checks that it yields exactly rawSize bytes.
func ZstdDecompress(src []byte, rawSize int) ([]byte, error) {
	if err := zstdInit(); err != nil {
		return nil, err
	}
	dst, err := zstdDecoder.DecodeAll(src, make([]byte, 0, rawSize))
	if err != nil || len(dst) != rawSize {
		return nil, ErrZstdCorrupted
	}
	return dst, nil
}
