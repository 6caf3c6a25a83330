// Package partition assigns horizontal bands of a frame to ranks.
//
// A Partition splits the rows [0, height) into one contiguous band per rank.
// Bands are stored as monotonic boundaries, so every row belongs to exactly
// one band and bands may be empty. The same type serves both the opaque
// scanline bands and the regions that own blending work during patch
// compositing; only the cost model used to build it differs.
//
// Querying a row or rank outside the table, or a Partition that was never
// built, is a programming error and panics.
package partition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mrjoshuak/go-sortlast/frame"
)

// Partition errors
var (
	ErrInvalidHeight     = errors.New("partition: height must be positive")
	ErrInvalidRanks      = errors.New("partition: rank count must be positive")
	ErrCostLength        = errors.New("partition: row cost length does not match height")
	ErrNegativeCost      = errors.New("partition: negative row cost")
	ErrInvalidBoundaries = errors.New("partition: boundaries must be monotonic and span [0, height]")
	ErrNotEstablished    = errors.New("partition: boundaries not established")
)

// Partition maps rows to ranks.
type Partition struct {
	height int
	// starts has ranks+1 entries; band r is [starts[r], starts[r+1]).
	starts []int
}

// Uniform divides height rows into ranks nearly equal bands:
// band r starts at floor(height*r/ranks).
func Uniform(height, ranks int) (*Partition, error) {
	if height <= 0 {
		return nil, ErrInvalidHeight
	}
	if ranks <= 0 {
		return nil, ErrInvalidRanks
	}
	starts := make([]int, ranks+1)
	for r := 0; r <= ranks; r++ {
		starts[r] = int(int64(height) * int64(r) / int64(ranks))
	}
	return &Partition{height: height, starts: starts}, nil
}

// Balanced places band boundaries so each band carries about the same share
// of the total row cost. Boundary r is the first row at which the running
// cost reaches total*r/ranks. A zero total falls back to Uniform.
func Balanced(height, ranks int, rowCost []int64) (*Partition, error) {
	if height <= 0 {
		return nil, ErrInvalidHeight
	}
	if ranks <= 0 {
		return nil, ErrInvalidRanks
	}
	if len(rowCost) != height {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCostLength, len(rowCost), height)
	}

	// prefix[i] is the cost of rows [0, i).
	prefix := make([]int64, height+1)
	for i, c := range rowCost {
		if c < 0 {
			return nil, fmt.Errorf("%w: row %d", ErrNegativeCost, i)
		}
		prefix[i+1] = prefix[i] + c
	}
	total := prefix[height]
	if total == 0 {
		return Uniform(height, ranks)
	}

	starts := make([]int, ranks+1)
	starts[ranks] = height
	row := 0
	for r := 1; r < ranks; r++ {
		target := mulDiv(total, int64(r), int64(ranks))
		for row < height && prefix[row] < target {
			row++
		}
		starts[r] = row
	}
	return &Partition{height: height, starts: starts}, nil
}

// mulDiv computes a*b/c without overflowing for the row-cost magnitudes
// seen in practice.
func mulDiv(a, b, c int64) int64 {
	q, rem := a/c, a%c
	return q*b + rem*b/c
}

// FromBoundaries builds a partition from explicit band starts. starts must
// have ranks+1 entries, begin at 0, end at height, and never decrease.
func FromBoundaries(height int, starts []int) (*Partition, error) {
	if height <= 0 {
		return nil, ErrInvalidHeight
	}
	if len(starts) < 2 {
		return nil, ErrInvalidRanks
	}
	if starts[0] != 0 || starts[len(starts)-1] != height {
		return nil, ErrInvalidBoundaries
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] < starts[i-1] {
			return nil, ErrInvalidBoundaries
		}
	}
	return &Partition{height: height, starts: append([]int(nil), starts...)}, nil
}

func (p *Partition) mustBeEstablished() {
	if p == nil || len(p.starts) < 2 {
		panic(ErrNotEstablished)
	}
}

// Height returns the number of rows covered.
func (p *Partition) Height() int {
	p.mustBeEstablished()
	return p.height
}

// Ranks returns the number of bands.
func (p *Partition) Ranks() int {
	p.mustBeEstablished()
	return len(p.starts) - 1
}

// Boundaries returns a copy of the band starts (ranks+1 entries).
func (p *Partition) Boundaries() []int {
	p.mustBeEstablished()
	return append([]int(nil), p.starts...)
}

// RowToRank returns the rank whose band contains row.
func (p *Partition) RowToRank(row int) int {
	p.mustBeEstablished()
	if row < 0 || row >= p.height {
		panic(fmt.Sprintf("partition: row %d outside [0, %d)", row, p.height))
	}
	n := len(p.starts) - 1
	// First band whose end lies past row; empty bands are skipped naturally.
	return sort.Search(n, func(r int) bool { return p.starts[r+1] > row })
}

// RankExtent returns the inclusive row range of a rank's band. An empty band
// returns end == start-1.
func (p *Partition) RankExtent(rank int) (start, end int) {
	p.checkRank(rank)
	return p.starts[rank], p.starts[rank+1] - 1
}

// BandLength returns the number of rows owned by rank.
func (p *Partition) BandLength(rank int) int {
	p.checkRank(rank)
	return p.starts[rank+1] - p.starts[rank]
}

// BandRect returns the full-width rectangle of a rank's band.
func (p *Partition) BandRect(rank, width int) frame.Rect {
	start, end := p.RankExtent(rank)
	return frame.Rect{MinX: 0, MinY: start, MaxX: width - 1, MaxY: end}
}

func (p *Partition) checkRank(rank int) {
	p.mustBeEstablished()
	if rank < 0 || rank >= len(p.starts)-1 {
		panic(fmt.Sprintf("partition: rank %d outside [0, %d)", rank, len(p.starts)-1))
	}
}

// RanksForRows returns the inclusive range of ranks owning rows minY..maxY
// after clamping them to the partition. ok is false when the rows miss the
// partition entirely. Ranks in the range may own empty bands.
func (p *Partition) RanksForRows(minY, maxY int) (first, last int, ok bool) {
	p.mustBeEstablished()
	minY = max(minY, 0)
	maxY = min(maxY, p.height-1)
	if minY > maxY {
		return 0, -1, false
	}
	return p.RowToRank(minY), p.RowToRank(maxY), true
}

// PartitionList returns, in order, the ranks whose non-empty bands intersect
// the rows of rect. Columns are not consulted.
func (p *Partition) PartitionList(rect frame.Rect) []int {
	first, last, ok := p.RanksForRows(rect.MinY, rect.MaxY)
	if !ok {
		return nil
	}
	ranks := make([]int, 0, last-first+1)
	for r := first; r <= last; r++ {
		if p.starts[r+1] > p.starts[r] {
			ranks = append(ranks, r)
		}
	}
	return ranks
}

func (p *Partition) String() string {
	if p == nil || len(p.starts) < 2 {
		return "Partition(unset)"
	}
	return fmt.Sprintf("Partition(height=%d, starts=%v)", p.height, p.starts)
}
