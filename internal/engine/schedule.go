package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roach88/serieswatch/internal/oracle"
)

// Partition splits items into at most n contiguous chunks.
//
// No chunk is empty, no chunk holds more than ceil(len/n) items, and chunk
// sizes differ by at most one (the first len%n chunks carry the extra
// item). The result depends only on the input order.
func Partition[T any](items []T, n int) [][]T {
	if len(items) == 0 {
		return [][]T{}
	}
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	base, extra := len(items)/n, len(items)%n
	chunks := make([][]T, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks = append(chunks, items[start:start+size])
		start += size
	}
	return chunks
}

// Pacer enforces the randomized delay between requests to the portal.
//
// Thread-safety: Pacer is safe for concurrent use; workers share one.
type Pacer struct {
	lo, hi time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPacer creates a pacer drawing uniformly from [lo, hi]. A hi below
// lo is raised to lo.
func NewPacer(lo, hi time.Duration, seed uint64) *Pacer {
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	return &Pacer{
		lo:  lo,
		hi:  hi,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// BaseDelayRange returns the range used when an explicit base delay d is
// given: [d, 2d].
func BaseDelayRange(d time.Duration) (time.Duration, time.Duration) {
	return d, 2 * d
}

// Range returns the configured bounds.
func (p *Pacer) Range() (time.Duration, time.Duration) {
	return p.lo, p.hi
}

// Next draws the next delay.
func (p *Pacer) Next() time.Duration {
	if p.hi == p.lo {
		return p.lo
	}
	p.mu.Lock()
	f := p.rnd.Float64()
	p.mu.Unlock()
	return p.lo + time.Duration(f*float64(p.hi-p.lo))
}

// Wait sleeps for the next delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return oracle.Sleep(ctx, p.Next())
}
