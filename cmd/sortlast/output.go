package main

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/tiff"

	"github.com/mrjoshuak/go-sortlast/composite"
	"github.com/mrjoshuak/go-sortlast/exr"
	"github.com/mrjoshuak/go-sortlast/frame"
)

func checkOutputExt(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".tif", ".tiff", ".exr":
		return nil
	}
	return fmt.Errorf("output %s: unsupported extension (want .png, .tif, .tiff or .exr)", path)
}

// writeResult writes the composited frame in the format named by the
// output extension. OpenEXR keeps the float pixels and records comments
// in the header; PNG and TIFF are quantized to 8 bits with straight alpha.
func writeResult(path string, res *composite.Result, comments string) (err error) {
	if err := checkOutputExt(path); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".exr" {
		fi := res.Float
		if fi == nil {
			fi = floatFromImage(res.Image)
		}
		meta := append([]*exr.Attribute{exr.Comments(comments)}, exr.CapDate(time.Now())...)
		return exr.WriteFile(path, fi, meta...)
	}

	var img image.Image
	if res.Float != nil {
		img = res.Float.ToNRGBA()
	} else {
		img = res.Image.ToNRGBA()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if ext == ".png" {
		err = png.Encode(bw, img)
	} else {
		err = tiff.Encode(bw, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return bw.Flush()
}

// floatFromImage widens an 8-bit frame to premultiplied float pixels.
func floatFromImage(m *frame.Image) *frame.FloatImage {
	out := frame.NewFloatImage(m.Width, m.Height)
	ch := m.Format.Channels()
	for i, j := 0, 0; i+ch <= len(m.Pix); i, j = i+ch, j+4 {
		a := float32(1)
		if ch == 4 {
			a = float32(m.Pix[i+3]) / 255
		}
		out.Pix[j] = float32(m.Pix[i]) / 255 * a
		out.Pix[j+1] = float32(m.Pix[i+1]) / 255 * a
		out.Pix[j+2] = float32(m.Pix[i+2]) / 255 * a
		out.Pix[j+3] = a
	}
	return out
}
