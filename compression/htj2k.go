package compression

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/mrjoshuak/go-jpeg2000"
)

// HTJ2K errors
var (
	ErrHTJ2KCorrupted = errors.New("compression: corrupted HTJ2K data")
	ErrHTJ2KChannels  = errors.New("compression: HTJ2K supports 3 or 4 channels of 8-bit data")
)

// htj2kBlockSize is the code-block edge used for high-throughput coding.
const htj2kBlockSize = 64

// HTJ2KEncode losslessly codes an interleaved 8-bit RGB or RGBA block of
// width x height pixels as a raw high-throughput JPEG 2000 codestream.
func HTJ2KEncode(pix []byte, width, height, channels int) ([]byte, error) {
	if channels != 3 && channels != 4 {
		return nil, ErrHTJ2KChannels
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("htj2k: %d bytes for %dx%dx%d block", len(pix), width, height, channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(pix); i, j = i+channels, j+4 {
		img.Pix[j], img.Pix[j+1], img.Pix[j+2] = pix[i], pix[i+1], pix[i+2]
		if channels == 4 {
			img.Pix[j+3] = pix[i+3]
		} else {
			img.Pix[j+3] = 0xff
		}
	}

	opts := &jpeg2000.Options{
		Format:         jpeg2000.FormatJ2K,
		Lossless:       true,
		HighThroughput: true,
		HTBlockWidth:   htj2kBlockSize,
		HTBlockHeight:  htj2kBlockSize,
		NumResolutions: 6,
	}

	var out bytes.Buffer
	if err := jpeg2000.Encode(&out, img, opts); err != nil {
		return nil, fmt.Errorf("htj2k: jpeg2000 encode failed: %w", err)
	}
	return out.Bytes(), nil
}

// HTJ2KDecode reverses HTJ2KEncode. The decoded image must match the
// expected dimensions exactly.
func HTJ2KDecode(src []byte, width, height, channels int) ([]byte, error) {
	if channels != 3 && channels != 4 {
		return nil, ErrHTJ2KChannels
	}
	img, err := jpeg2000.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("htj2k: jpeg2000 decode failed: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("%w: decoded %dx%d, want %dx%d", ErrHTJ2KCorrupted, b.Dx(), b.Dy(), width, height)
	}

	pix := make([]byte, width*height*channels)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			if channels == 4 {
				pix[i+3] = c.A
			}
			i += channels
		}
	}
	return pix, nil
}
