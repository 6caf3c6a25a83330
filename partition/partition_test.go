package partition

import (
	"errors"
	"testing"

	"github.com/mrjoshuak/go-sortlast/frame"
)

// checkCover verifies that the bands are contiguous and cover [0, height).
func checkCover(t *testing.T, p *Partition, height int) {
	t.Helper()
	sum := 0
	next := 0
	for r := 0; r < p.Ranks(); r++ {
		start, end := p.RankExtent(r)
		if start != next {
			t.Fatalf("band %d starts at %d, want %d", r, start, next)
		}
		if end < start-1 {
			t.Fatalf("band %d has negative length", r)
		}
		sum += p.BandLength(r)
		next = end + 1
		for row := start; row <= end; row++ {
			if got := p.RowToRank(row); got != r {
				t.Fatalf("RowToRank(%d) = %d, want %d", row, got, r)
			}
		}
	}
	if sum != height || next != height {
		t.Fatalf("bands cover %d rows ending at %d, want %d", sum, next, height)
	}
}

func TestUniformCover(t *testing.T) {
	for _, height := range []int{1, 2, 7, 100, 1081} {
		for _, ranks := range []int{1, 2, 3, 4, 7, 16, 200} {
			p, err := Uniform(height, ranks)
			if err != nil {
				t.Fatalf("Uniform(%d, %d): %v", height, ranks, err)
			}
			checkCover(t, p, height)
		}
	}
}

func TestUniformExtents(t *testing.T) {
	p, err := Uniform(100, 4)
	if err != nil {
		t.Fatal(err)
	}
	for r := 0; r < 4; r++ {
		start, end := p.RankExtent(r)
		if start != 25*r || end != 25*r+24 {
			t.Errorf("rank %d extent = [%d,%d], want [%d,%d]", r, start, end, 25*r, 25*r+24)
		}
	}

	p, _ = Uniform(10, 3)
	want := []int{0, 3, 6, 10}
	for i, b := range p.Boundaries() {
		if b != want[i] {
			t.Errorf("boundary %d = %d, want %d", i, b, want[i])
		}
	}
}

func TestBalanced(t *testing.T) {
	t.Run("ZeroCostFallsBackToUniform", func(t *testing.T) {
		p, err := Balanced(10, 3, make([]int64, 10))
		if err != nil {
			t.Fatal(err)
		}
		u, _ := Uniform(10, 3)
		if p.String() != u.String() {
			t.Errorf("got %v, want %v", p, u)
		}
	})

	t.Run("ConcentratedCost", func(t *testing.T) {
		cost := make([]int64, 100)
		for y := 80; y < 100; y++ {
			cost[y] = 10
		}
		p, err := Balanced(100, 2, cost)
		if err != nil {
			t.Fatal(err)
		}
		checkCover(t, p, 100)
		start, _ := p.RankExtent(1)
		if start != 90 {
			t.Errorf("second band starts at %d, want 90", start)
		}
	})

	t.Run("SingleHotRowAllowsEmptyBands", func(t *testing.T) {
		cost := make([]int64, 8)
		cost[3] = 1000
		p, err := Balanced(8, 4, cost)
		if err != nil {
			t.Fatal(err)
		}
		checkCover(t, p, 8)
	})

	t.Run("RandomishCover", func(t *testing.T) {
		cost := make([]int64, 257)
		for i := range cost {
			cost[i] = int64((i * 7919) % 13)
		}
		for ranks := 1; ranks <= 20; ranks++ {
			p, err := Balanced(len(cost), ranks, cost)
			if err != nil {
				t.Fatal(err)
			}
			checkCover(t, p, len(cost))
		}
	})

	t.Run("Errors", func(t *testing.T) {
		if _, err := Balanced(4, 2, make([]int64, 3)); !errors.Is(err, ErrCostLength) {
			t.Errorf("expected ErrCostLength, got %v", err)
		}
		if _, err := Balanced(2, 2, []int64{1, -1}); !errors.Is(err, ErrNegativeCost) {
			t.Errorf("expected ErrNegativeCost, got %v", err)
		}
		if _, err := Uniform(0, 2); !errors.Is(err, ErrInvalidHeight) {
			t.Errorf("expected ErrInvalidHeight, got %v", err)
		}
		if _, err := Uniform(4, 0); !errors.Is(err, ErrInvalidRanks) {
			t.Errorf("expected ErrInvalidRanks, got %v", err)
		}
	})
}

func TestFromBoundaries(t *testing.T) {
	p, err := FromBoundaries(10, []int{0, 4, 4, 10})
	if err != nil {
		t.Fatal(err)
	}
	checkCover(t, p, 10)
	if p.BandLength(1) != 0 {
		t.Errorf("band 1 length = %d, want 0", p.BandLength(1))
	}

	for _, bad := range [][]int{{0, 5, 3, 10}, {1, 10}, {0, 9}, {0}} {
		if _, err := FromBoundaries(10, bad); err == nil {
			t.Errorf("FromBoundaries(%v) should fail", bad)
		}
	}
}

func TestPartitionList(t *testing.T) {
	p, _ := FromBoundaries(100, []int{0, 25, 50, 50, 75, 100})

	got := p.PartitionList(frame.Rect{MinX: 500, MinY: 30, MaxX: 600, MaxY: 80})
	want := []int{1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("PartitionList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PartitionList = %v, want %v", got, want)
		}
	}

	if got := p.PartitionList(frame.Rect{MinX: 0, MinY: 200, MaxX: 5, MaxY: 300}); got != nil {
		t.Errorf("off-frame PartitionList = %v, want nil", got)
	}

	first, last, ok := p.RanksForRows(-10, 10)
	if !ok || first != 0 || last != 0 {
		t.Errorf("RanksForRows(-10, 10) = %d, %d, %v", first, last, ok)
	}
}

func TestUsagePanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		fn()
	}
	p, _ := Uniform(10, 2)
	mustPanic("row below range", func() { p.RowToRank(-1) })
	mustPanic("row above range", func() { p.RowToRank(10) })
	mustPanic("bad rank", func() { p.RankExtent(2) })
	mustPanic("unset partition", func() { var z Partition; z.RowToRank(0) })
}
