package compression

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// zlib errors
var (
	ErrZlibCorrupted = errors.New("compression: corrupted zlib data")
)

// Level is a zlib compression level from -2 to 9:
//   - -2: Huffman-only (klauspost extension)
//   - -1: default (level 6)
//   - 0: store
//   - 1: best speed
//   - 9: best compression
type Level int

const (
	LevelHuffmanOnly Level = -2
	LevelDefault     Level = -1
	LevelNone        Level = 0
	LevelBestSpeed   Level = 1
	LevelBestSize    Level = 9
)

type zlibWriterPoolItem struct {
	writer *zlib.Writer
	buf    *bytes.Buffer
}

// Writers are pooled per level; patches are small and numerous, so writer
// setup would otherwise dominate.
var zlibWriterPools sync.Map // Level -> *sync.Pool

func zlibWriterPool(level Level) *sync.Pool {
	if p, ok := zlibWriterPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := zlibWriterPools.LoadOrStore(level, &sync.Pool{
		New: func() any {
			buf := new(bytes.Buffer)
			w, err := zlib.NewWriterLevel(buf, int(level))
			if err != nil {
				return err
			}
			return &zlibWriterPoolItem{writer: w, buf: buf}
		},
	})
	return p.(*sync.Pool)
}

// ZlibCompress deflates src at the given level.
func ZlibCompress(src []byte, level Level) ([]byte, error) {
	pool := zlibWriterPool(level)
	v := pool.Get()
	item, ok := v.(*zlibWriterPoolItem)
	if !ok {
		return nil, v.(error)
	}
	defer pool.Put(item)

	item.buf.Reset()
	item.writer.Reset(item.buf)
	if _, err := item.writer.Write(src); err != nil {
		return nil, err
	}
	if err := item.writer.Close(); err != nil {
		return nil, err
	}
	return bytes.Clone(item.buf.Bytes()), nil
}

type zlibReaderPoolItem struct {
	reader io.ReadCloser
	src    *bytes.Reader
}

var zlibReaderPool = sync.Pool{
	New: func() any {
		return &zlibReaderPoolItem{src: bytes.NewReader(nil)}
	},
}

// ZlibDecompress inflates src into a new buffer of exactly rawSize bytes.
// Output of any other length is reported as corruption.
func ZlibDecompress(src []byte, rawSize int) ([]byte, error) {
	item := zlibReaderPool.Get().(*zlibReaderPoolItem)
	defer zlibReaderPool.Put(item)
	item.src.Reset(src)

	var err error
	if r, ok := item.reader.(zlib.Resetter); ok {
		err = r.Reset(item.src, nil)
	} else {
		item.reader, err = zlib.NewReader(item.src)
	}
	if err != nil {
		item.reader = nil
		return nil, ErrZlibCorrupted
	}

	dst := make([]byte, rawSize)
	if _, err := io.ReadFull(item.reader, dst); err != nil {
		return nil, ErrZlibCorrupted
	}
	// Anything left over means the sender's raw size was wrong.
	var extra [1]byte
	if n, _ := item.reader.Read(extra[:]); n != 0 {
		return nil, ErrZlibCorrupted
	}
	return dst, nil
}
