package frame

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryLimitExceededError is returned when an allocation would exceed the
// pool's memory limit.
type MemoryLimitExceededError struct {
	Requested int64
	Current   int64
	Limit     int64
}

func (e *MemoryLimitExceededError) Error() string {
	return fmt.Sprintf("frame: memory limit exceeded (requested %d, in use %d, limit %d)",
		e.Requested, e.Current, e.Limit)
}

// floatClasses are the pooled float32 slice lengths. A 256x256 RGBA block
// is 1<<18 values.
var floatClasses = []int{
	1 << 12,
	1 << 14,
	1 << 16,
	1 << 18,
	1 << 20,
	1 << 22,
}

// BufferPool recycles float32 pixel buffers between compositing passes and
// tracks how many bytes are checked out against an optional limit.
type BufferPool struct {
	pools       []*sync.Pool
	memoryUsed  int64 // atomic: bytes currently checked out
	memoryLimit int64 // atomic: 0 = unlimited
	hits        int64 // atomic
	misses      int64 // atomic
}

// NewBufferPool creates a pool. A limit of 0 disables the memory limit.
func NewBufferPool(limit int64) *BufferPool {
	p := &BufferPool{
		pools:       make([]*sync.Pool, len(floatClasses)),
		memoryLimit: limit,
	}
	for i := range floatClasses {
		p.pools[i] = &sync.Pool{}
	}
	return p
}

// SetMemoryLimit sets the limit and returns the previous one.
func (p *BufferPool) SetMemoryLimit(limit int64) int64 {
	return atomic.SwapInt64(&p.memoryLimit, limit)
}

// MemoryUsed returns the bytes currently checked out.
func (p *BufferPool) MemoryUsed() int64 {
	return atomic.LoadInt64(&p.memoryUsed)
}

// Stats returns (hits, misses).
func (p *BufferPool) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&p.hits), atomic.LoadInt64(&p.misses)
}

func floatClass(n int) int {
	for i, c := range floatClasses {
		if n <= c {
			return i
		}
	}
	return -1
}

// GetFloats returns a zeroed slice of length n.
func (p *BufferPool) GetFloats(n int) ([]float32, error) {
	idx := floatClass(n)
	capacity := n
	if idx >= 0 {
		capacity = floatClasses[idx]
	}
	bytes := int64(capacity) * 4

	if limit := atomic.LoadInt64(&p.memoryLimit); limit > 0 {
		current := atomic.AddInt64(&p.memoryUsed, bytes)
		if current > limit {
			atomic.AddInt64(&p.memoryUsed, -bytes)
			return nil, &MemoryLimitExceededError{Requested: bytes, Current: current - bytes, Limit: limit}
		}
	} else {
		atomic.AddInt64(&p.memoryUsed, bytes)
	}

	if idx >= 0 {
		if v := p.pools[idx].Get(); v != nil {
			atomic.AddInt64(&p.hits, 1)
			buf := (*(v.(*[]float32)))[:n]
			clear(buf)
			return buf, nil
		}
	}
	atomic.AddInt64(&p.misses, 1)
	return make([]float32, n, capacity), nil
}

// PutFloats returns a slice obtained from GetFloats.
func (p *BufferPool) PutFloats(buf []float32) {
	if buf == nil {
		return
	}
	c := cap(buf)
	atomic.AddInt64(&p.memoryUsed, -int64(c)*4)
	idx := floatClass(c)
	if idx < 0 || floatClasses[idx] != c {
		return
	}
	buf = buf[:c]
	p.pools[idx].Put(&buf)
}

// Arena hands out buffers for one compositing pass and returns all of them
// to the pool on Release. An Arena is safe for concurrent use.
type Arena struct {
	pool *BufferPool
	mu   sync.Mutex
	bufs [][]float32
}

// NewArena creates an arena drawing from pool. A nil pool gets a private
// unlimited one.
func NewArena(pool *BufferPool) *Arena {
	if pool == nil {
		pool = NewBufferPool(0)
	}
	return &Arena{pool: pool}
}

// Floats returns a zeroed slice of length n owned by the arena.
func (a *Arena) Floats(n int) ([]float32, error) {
	buf, err := a.pool.GetFloats(n)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.bufs = append(a.bufs, buf)
	a.mu.Unlock()
	return buf, nil
}

// FloatImage allocates a transparent float image owned by the arena.
func (a *Arena) FloatImage(width, height int) (*FloatImage, error) {
	pix, err := a.Floats(width * height * 4)
	if err != nil {
		return nil, err
	}
	return &FloatImage{Width: width, Height: height, Pix: pix}, nil
}

// Release returns every buffer to the pool. Buffers must not be used after.
func (a *Arena) Release() {
	a.mu.Lock()
	bufs := a.bufs
	a.bufs = nil
	a.mu.Unlock()
	for _, b := range bufs {
		a.pool.PutFloats(b)
	}
}
