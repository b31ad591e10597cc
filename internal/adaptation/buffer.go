package adaptation

import (
	"sync"
	"time"
)

// BufferMonitor watches the buffer level in buckets of fixed width and
// remembers whether the per-bucket minimum has ever gone down.
type BufferMonitor struct {
	mu         sync.Mutex
	bucket     time.Duration
	started    bool
	origin     time.Time
	index      int64
	curMin     float64
	prevMin    float64
	havePrev   bool
	increasing bool
}

// NewBufferMonitor creates a monitor with the given bucket width.
func NewBufferMonitor(bucket time.Duration) *BufferMonitor {
	if bucket <= 0 {
		bucket = time.Second
	}
	return &BufferMonitor{bucket: bucket, increasing: true}
}

// Observe records buffer level beta (seconds) sampled at time at.
func (b *BufferMonitor) Observe(at time.Time, beta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		b.started = true
		b.origin = at
		b.curMin = beta
		return
	}

	idx := int64(at.Sub(b.origin) / b.bucket)
	if idx <= b.index {
		if beta < b.curMin {
			b.curMin = beta
		}
		return
	}

	if b.havePrev && b.curMin < b.prevMin {
		b.increasing = false
	}
	b.prevMin, b.havePrev = b.curMin, true
	b.index = idx
	b.curMin = beta
}

// Increasing reports whether no closed bucket had a lower minimum than its predecessor.
func (b *BufferMonitor) Increasing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.increasing
}
