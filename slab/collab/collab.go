// Package collab declares the narrow interfaces this module's
// multi-threaded allocator is designed to sit next to, without depending
// on or implementing them itself: a family of single-threaded
// collaborators — Slab.h's SmallSlab/SmallCache/Slab<Type> and SlabMem.h's
// Interface — that a multi-threaded Cache can hand overflow work to or
// draw raw memory from. Reimplementing those single-threaded structures
// is out of scope here; this package only pins down the shape a real
// implementation would need so the rest of this module can be written
// against it.
package collab

import "unsafe"

// SizeClassSource is the shape of a single-threaded slab collaborator
// such as Slab.h's Slab<Type>: something that can report its fixed block
// size and test whether a pointer falls inside it, with no locking of its
// own. The package's own *slab type already satisfies this interface (see
// BlockSize/Contains in slab.go), which is the reuse point a
// single-threaded SmallSlab/SmallCache port would slot into alongside the
// multi-threaded Bucket.
type SizeClassSource interface {
	BlockSize() uintptr
	Contains(ptr unsafe.Pointer) bool
}

// ByteAllocator is the shape of a raw memory provider such as SlabMem.h's
// Interface: something that can hand back a byte range of a requested size
// and accept it back later, with no notion of size classes or threads at
// all. The allocator Facade's underlying *core already satisfies this
// interface (see Allocate/Deallocate in facade.go), so an out-of-scope
// single-threaded collaborator can draw raw memory from the same
// Dispatcher a Cache would, instead of calling make([]byte, n) directly.
type ByteAllocator interface {
	Allocate(n uintptr) unsafe.Pointer
	Deallocate(ptr unsafe.Pointer, n uintptr)
}
