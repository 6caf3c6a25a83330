package sortlast_test

import (
	"context"
	"fmt"

	"github.com/mrjoshuak/go-sortlast/comm"
	"github.com/mrjoshuak/go-sortlast/composite"
	"github.com/mrjoshuak/go-sortlast/frame"
	"github.com/mrjoshuak/go-sortlast/partition"
)

// Example_scanline gathers one opaque band from each of two in-process
// ranks into a single frame on rank 0.
func Example_scanline() {
	const width, height = 4, 4
	cfg := composite.DefaultConfig(width, height)

	world := comm.NewWorld(2)
	defer world.Close()

	var img *frame.Image
	err := world.Run(context.Background(), func(ctx context.Context, c comm.Comm) error {
		rows, err := partition.Uniform(height, c.Size())
		if err != nil {
			return err
		}
		band := frame.NewBand(rows.BandRect(c.Rank(), width), frame.FormatRGB)
		band.Fill(byte(100 * (c.Rank() + 1)))

		res, err := composite.CompositeScanline(ctx, c, []*frame.Band{band}, cfg)
		if res != nil {
			img = res.Image
		}
		return err
	})
	if err != nil {
		fmt.Println("composite failed:", err)
		return
	}
	for y := 0; y < height; y++ {
		fmt.Println("row", y, "red =", img.PixelAt(0, y)[0])
	}
	// Output:
	// row 0 red = 100
	// row 1 red = 100
	// row 2 red = 200
	// row 3 red = 200
}

// Example_regionPatch blends a translucent green patch on rank 1 over an
// opaque red patch on rank 0 that lies farther away.
func Example_regionPatch() {
	cfg := composite.DefaultConfig(4, 2)

	world := comm.NewWorld(2)
	defer world.Close()

	var img *frame.FloatImage
	err := world.Run(context.Background(), func(ctx context.Context, c comm.Comm) error {
		var p *frame.Patch
		if c.Rank() == 0 {
			p = frame.NewPatch(frame.FullFrame(4, 2), frame.FormatRGBA, 10)
			p.Fill(1, 0, 0, 1)
		} else {
			p = frame.NewPatch(frame.Rect{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, frame.FormatRGBA, 5)
			p.Fill(0, 1, 0, 0.5)
		}

		res, err := composite.StrategyRegionPatch.Composite(ctx, c, composite.Input{Patches: []*frame.Patch{p}}, cfg)
		if res != nil {
			img = res.Float
		}
		return err
	})
	if err != nil {
		fmt.Println("composite failed:", err)
		return
	}
	for _, x := range []int{0, 3} {
		r, g, b, a := img.At(x, 0)
		fmt.Printf("(%d,0) = %.2f %.2f %.2f %.2f\n", x, r, g, b, a)
	}
	// Output:
	// (0,0) = 0.50 0.50 0.00 1.00
	// (3,0) = 1.00 0.00 0.00 1.00
}

// Example_balanced splits rows so each rank gets an equal share of the
// cost, here concentrated in the last two rows.
func Example_balanced() {
	p, err := partition.Balanced(8, 2, []int64{0, 0, 0, 0, 0, 0, 4, 4})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(p.Boundaries())
	// Output: [0 7 8]
}
