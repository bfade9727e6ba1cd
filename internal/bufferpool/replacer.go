package bufferpool

import (
	"fmt"

	"github.com/tuannm99/lunadb/internal/storage"
)

// Replacer decides which unpinned frame the pool evicts next. The pool
// invokes it only under its own mutex, but both implementations carry
// their own lock so they stay safe standalone.
type Replacer interface {
	// Victim selects an eligible frame, removes it from the replacer and
	// returns it. ok is false when no candidate exists.
	Victim() (frameID storage.FrameID, ok bool)

	// Pin notifies that the frame is in use; it must not be selectable
	// until the next Unpin. Idempotent when the frame is not tracked.
	Pin(frameID storage.FrameID)

	// Unpin notifies that the frame has become eligible for eviction.
	// Idempotent when the frame is already tracked.
	Unpin(frameID storage.FrameID)

	// Size returns the count of currently eligible frames.
	Size() int
}

// Policy names a replacement policy in configuration.
type Policy string

const (
	PolicyLRU   Policy = "lru"
	PolicyClock Policy = "clock"
)

// NewReplacer builds the replacer for a policy name.
func NewReplacer(policy Policy, capacity int) (Replacer, error) {
	switch policy {
	case PolicyLRU:
		return NewLRUReplacer(capacity), nil
	case PolicyClock:
		return NewClockReplacer(capacity), nil
	default:
		return nil, fmt.Errorf("bufferpool: unknown replacement policy %q", policy)
	}
}
