package weather

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleSnapshot is returned when a replacement is older than the held snapshot.
var ErrStaleSnapshot = errors.New("snapshot older than current")

// Holder keeps the latest known snapshot for one watch-face engine.
// It starts empty; readers always get a complete snapshot or none at all.
type Holder struct {
	mu      sync.RWMutex
	current *Snapshot
}

// NewHolder creates an empty Holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the held snapshot and whether one exists.
func (h *Holder) Current() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.current == nil {
		return Snapshot{}, false
	}
	return *h.current, true
}

// Replace swaps in snap as a whole. Observation times must not go backwards;
// an equal timestamp is accepted so that re-applying a payload is harmless.
// The returned bool reports whether the held value actually changed.
func (h *Holder) Replace(snap Snapshot) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		if snap.ObservedAtMs < h.current.ObservedAtMs {
			return false, fmt.Errorf("%w: %d < %d", ErrStaleSnapshot, snap.ObservedAtMs, h.current.ObservedAtMs)
		}
		if *h.current == snap {
			return false, nil
		}
	}

	next := snap
	h.current = &next
	return true, nil
}
