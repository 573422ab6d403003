package slab

import "errors"

// Sentinel errors for the error kinds the allocator can report. Wrapped
// with fmt.Errorf("...: %w", ...) at call sites, following the wrapping
// convention used by abiolaogu-MinIO's internal/tracing package.
var (
	// ErrOutOfMemory is returned when the system allocator refuses to grow
	// the Dispatcher's superblock pool. The Dispatcher's existing
	// inventory remains usable after this error.
	ErrOutOfMemory = errors.New("slab: out of memory")

	// ErrBadSize is reserved for a future stricter build that detects
	// mis-sized Deallocate calls. That case is documented, undetected
	// undefined behavior today; nothing currently returns ErrBadSize.
	ErrBadSize = errors.New("slab: deallocate size does not match allocation")

	// ErrShutdown is what Allocator calls made after shutdownForTest fail
	// with: TryAllocate returns it, Allocate and Deallocate panic with a
	// value wrapping it. Used only by tests that need a deterministic way
	// to stop using an allocator instance before asserting no goroutines
	// leaked.
	ErrShutdown = errors.New("slab: allocator has been shut down")
)
