// Package history implements the bounded per-proxy latency window.
package history

import (
	"sync"

	"github.com/August26/proxymon/internal/model"
)

// DefaultCapacity is the number of samples kept per proxy.
const DefaultCapacity = 100

// History is a FIFO ring of latency samples. Once full, Add evicts the
// oldest sample.
//
// History is safe for concurrent use: every method holds the internal lock,
// so concurrent polls touching the same proxy serialise on it and samples
// land in the order their Add calls acquire the lock.
type History struct {
	mu    sync.Mutex
	buf   []model.LatencySample
	start int // index of the oldest sample
	n     int
}

// New returns an empty history. A non-positive capacity uses DefaultCapacity.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{buf: make([]model.LatencySample, capacity)}
}

// Add appends s, evicting the oldest sample when at capacity.
func (h *History) Add(s model.LatencySample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Samples returns a copy of the current window, oldest first.
func (h *History) Samples() []model.LatencySample {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]model.LatencySample, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func (h *History) Cap() int { return len(h.buf) }
