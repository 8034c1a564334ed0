package ledger

import "sync/atomic"

// Height holds the last observed backend sequence height. It only moves
// forward; a lower observation is ignored.
type Height struct {
	v atomic.Uint64
}

// Load returns the current height.
func (h *Height) Load() uint64 { return h.v.Load() }

// Observe records a new height and reports whether it advanced.
func (h *Height) Observe(n uint64) bool {
	for {
		cur := h.v.Load()
		if n <= cur {
			return false
		}
		if h.v.CompareAndSwap(cur, n) {
			return true
		}
	}
}
