// Package slab implements a multi-threaded slab allocator: a hierarchy of
// superblocks, slabs and per-size-class caches designed for workloads that
// allocate and free many small, fixed-size objects from many goroutines.
//
// Allocating a small object proceeds up a hierarchy of caches:
//
//  1. Round the size up to one of the fixed size classes and look in the
//     calling Handle's Cache for that class. If it has room, allocate
//     straight from its active Slab. The Cache has no lock of its own; the
//     only synchronization is the shared side of the Bucket container's
//     sharedMutex, which on the common path is a store to the Handle's own
//     slot flag.
//
//  2. If the Cache's active Slab is full, advance the cursor or grow the
//     Cache with a fresh Slab obtained from the Dispatcher.
//
//  3. The Dispatcher hands out slab-sized regions carved from larger
//     superblocks, growing its superblock pool from the system allocator
//     only when its free list is empty.
//
// Freeing a small object proceeds the same way in reverse, except that a
// pointer that was not allocated by the calling Handle's own Bucket cannot be
// freed directly — it is handed to the Foreign-Deallocation Registry, and
// the true owner reconciles it at the start of its next Allocate.
//
// Allocations above the largest size class bypass this machinery entirely
// and are served by the ordinary Go allocator.
package slab

import "math/bits"

// sizeClassTable is the geometric series of block sizes this allocator
// serves, plus an O(1) lookup from a requested byte count to a class index.
//
// Grounded on msize.go's initSizes / size_to_class8 tables: a lookup table
// built once at construction time turns an O(NumCaches) ascending scan
// (ImplSlabMulti.h's Bucket::allocate) into a single table read.
type sizeClassTable struct {
	sizes         []int
	blocksPerSlab []int
	lookup        []int8 // indexed by bits.Len(uint(bytes-1)); -1 means no class fits
}

func buildSizeClassTable(cfg Config) *sizeClassTable {
	sizes := make([]int, 0, cfg.NumCaches)
	for s := cfg.SmallestCache; len(sizes) < cfg.NumCaches; s <<= 1 {
		sizes = append(sizes, s)
	}

	blocksPerSlab := make([]int, len(sizes))
	for i, s := range sizes {
		blocksPerSlab[i] = cfg.SlabSize / s
	}

	largest := sizes[len(sizes)-1]
	maxBits := bits.Len(uint(largest-1)) + 1
	lookup := make([]int8, maxBits+1)
	for i := range lookup {
		lookup[i] = -1
	}
	for idx, s := range sizes {
		b := bits.Len(uint(s - 1))
		if b < len(lookup) && lookup[b] == -1 {
			lookup[b] = int8(idx)
		}
	}
	// Requests shorter than the smallest class have a smaller bit length
	// than any class; they are all served by class 0.
	for b := 0; b < bits.Len(uint(sizes[0]-1)); b++ {
		lookup[b] = 0
	}

	return &sizeClassTable{
		sizes:         sizes,
		blocksPerSlab: blocksPerSlab,
		lookup:        lookup,
	}
}

// classFor returns the index of the smallest size class that can hold
// bytes, or ok == false if bytes exceeds the largest class, in which case
// the caller falls through to the system allocator.
func (t *sizeClassTable) classFor(bytes uintptr) (idx int, ok bool) {
	if bytes == 0 {
		bytes = 1
	}
	b := bits.Len(uint(bytes - 1))
	if b >= len(t.lookup) {
		return 0, false
	}
	c := t.lookup[b]
	if c < 0 {
		return 0, false
	}
	return int(c), true
}

func (t *sizeClassTable) numClasses() int { return len(t.sizes) }

func (t *sizeClassTable) blockSize(idx int) int { return t.sizes[idx] }

func (t *sizeClassTable) blockCount(idx int) int { return t.blocksPerSlab[idx] }

func (t *sizeClassTable) largest() int { return t.sizes[len(t.sizes)-1] }
