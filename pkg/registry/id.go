package registry

import "sync/atomic"

// globalIDCounter is the source of unique registration IDs for listeners
// and observers, shared across all registries.
// Using atomic operations ensures thread-safe ID generation without locks.
var globalIDCounter uint64

// nextID returns the next unique registration ID.
// IDs are monotonically increasing and never reused.
func nextID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}
