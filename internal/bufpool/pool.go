// Package bufpool recycles float32 channel buffers for the cpu device.
package bufpool

import "sync"

// Pool is a thread-safe pool of []float32 buffers grouped by length.
//
// Intermediate buffers of one tree tend to have a handful of distinct
// sizes that recur on every cycle, so exact-length buckets hit well and
// keep the GC out of repeated runs.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[int][][]float32
	maxSize int // max buffers per bucket
	pooled  int // buffers currently held
}

// New creates a pool retaining at most maxPerBucket buffers of each
// length. A maxPerBucket of 0 means unlimited.
func New(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[int][][]float32),
		maxSize: maxPerBucket,
	}
}

// Get returns a zeroed buffer of length n, reusing a pooled one if
// possible.
func (p *Pool) Get(n int) []float32 {
	if n <= 0 {
		return nil
	}

	p.mu.Lock()
	bucket := p.buckets[n]
	if len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.buckets[n] = bucket[:len(bucket)-1]
		p.pooled--
		p.mu.Unlock()

		clear(buf)
		return buf
	}
	p.mu.Unlock()

	return make([]float32, n)
}

// Put returns a buffer to the pool. Nil buffers and buffers beyond the
// bucket capacity are dropped.
func (p *Pool) Put(buf []float32) {
	if len(buf) == 0 {
		return
	}
	n := len(buf)

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[n]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[n] = append(bucket, buf[:n:n])
	p.pooled++
}

// Len returns the number of buffers held by the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pooled
}

// Reset drops every pooled buffer.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.buckets)
	p.pooled = 0
}
