package calibrate

import (
	"hash/fnv"
	"sync"
)

// maxHistoryEntries bounds the calibration history across all tokens seen by
// a single Calibrator instance (spec: "history bounded to 20 samples")
const maxHistoryEntries = 20

// TokenKey derives a non-reversible history key from a credential. FNV-1a is
// adequate here: the key is never used for authentication, only to bucket a
// token's best calibration sample, and it must never be the credential
// itself in logs or history (I4).
func TokenKey(token string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return h.Sum64()
}

type historyEntry struct {
	key    uint64
	sample Sample
	order  uint64
}

// History retains, per token key, the single best (lowest-RTT) calibration
// sample seen so far, bounded to a fixed number of distinct keys. It's safe
// for concurrent use.
type History struct {
	mu      sync.Mutex
	entries map[uint64]*historyEntry
	seq     uint64
}

// NewHistory constructs an empty History
func NewHistory() *History {
	return &History{entries: make(map[uint64]*historyEntry)}
}

// Best returns the best retained sample for key, if any
func (h *History) Best(key uint64) (Sample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[key]
	if !ok {
		return Sample{}, false
	}
	return e.sample, true
}

// Offer records sample for key if it improves on (or introduces) the
// retained best for that key, per the best-sample-pool rule: lowest RTTFull
// wins; a tie within 1ms prefers the more recent sample.
func (h *History) Offer(key uint64, sample Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	cur, exists := h.entries[key]
	if !exists {
		h.evictOldestLocked()
		h.entries[key] = &historyEntry{key: key, sample: sample, order: h.seq}
		return
	}

	delta := cur.sample.RTTFull - sample.RTTFull
	if delta < 0 {
		delta = -delta
	}
	const tieWindow = 1_000_000 // 1ms in nanoseconds, as time.Duration units
	switch {
	case delta <= tieWindow:
		// tie: prefer the more recent sample
		cur.sample = sample
		cur.order = h.seq
	case sample.RTTFull < cur.sample.RTTFull:
		cur.sample = sample
		cur.order = h.seq
	}
}

// evictOldestLocked drops the least-recently-offered entry when at capacity.
// Caller must hold h.mu.
func (h *History) evictOldestLocked() {
	if len(h.entries) < maxHistoryEntries {
		return
	}
	var oldestKey uint64
	var oldestOrder uint64
	first := true
	for k, e := range h.entries {
		if first || e.order < oldestOrder {
			oldestKey, oldestOrder, first = k, e.order, false
		}
	}
	if !first {
		delete(h.entries, oldestKey)
	}
}
