package adaptation

import (
	"sync"
	"time"
)

// minTransfer keeps a zero-length transfer from producing an infinite rate.
const minTransfer = time.Millisecond

type transfer struct {
	bytes int64
	busy  time.Duration
}

// ThroughputMeter estimates the download rate. Rho averages over the most
// recent window of transfer time; RhoLast is the rate of the last request.
type ThroughputMeter struct {
	mu        sync.Mutex
	window    time.Duration
	transfers []transfer
	last      float64
	completed int
}

// NewThroughputMeter creates a meter averaging over window.
func NewThroughputMeter(window time.Duration) *ThroughputMeter {
	return &ThroughputMeter{window: window}
}

// Record adds a completed request of n bytes that was in flight from start to end.
func (m *ThroughputMeter) Record(start, end time.Time, n int64) {
	busy := end.Sub(start)
	if busy < minTransfer {
		busy = minTransfer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transfers = append(m.transfers, transfer{bytes: n, busy: busy})
	m.last = bitsPerSecond(n, busy)
	m.completed++
	m.trim()
}

// Rho returns the averaged rate in bits/s, or 0 before the first request.
func (m *ThroughputMeter) Rho() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	var busy time.Duration
	for _, t := range m.transfers {
		n += t.bytes
		busy += t.busy
	}
	if busy == 0 {
		return 0
	}
	return bitsPerSecond(n, busy)
}

// RhoLast returns the rate of the most recent request in bits/s.
func (m *ThroughputMeter) RhoLast() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Completed returns how many requests have been recorded.
func (m *ThroughputMeter) Completed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// trim drops the oldest transfers that are not needed to cover the window.
func (m *ThroughputMeter) trim() {
	var busy time.Duration
	for i := len(m.transfers) - 1; i >= 0; i-- {
		busy += m.transfers[i].busy
		if busy >= m.window {
			m.transfers = m.transfers[i:]
			return
		}
	}
}

func bitsPerSecond(n int64, busy time.Duration) float64 {
	return float64(n*8) / busy.Seconds()
}
