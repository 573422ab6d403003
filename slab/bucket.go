package slab

import "unsafe"

// bucket is the full set of per-size-class caches owned by one Handle,
// the Go analogue of ImplSlabMulti.h's struct Bucket / BucketPair: a small
// array indexed by size class rather than one cache per possible size.
type bucket struct {
	table  *sizeClassTable
	caches []*cache
}

func newBucket(table *sizeClassTable, disp *dispatcher, idx *addressIndex, ownerSlot int, cfg Config) *bucket {
	caches := make([]*cache, table.numClasses())
	for i := range caches {
		caches[i] = newCache(i, table, disp, idx, ownerSlot, cfg)
	}
	return &bucket{table: table, caches: caches}
}

// allocate serves bytes from the matching size-class cache. ok is false
// if bytes is larger than the largest size class this bucket serves, in
// which case the caller must fall through to the system allocator.
func (b *bucket) allocate(bytes uintptr) (ptr unsafe.Pointer, ok bool) {
	idx, ok := b.table.classFor(bytes)
	if !ok {
		return nil, false
	}
	return b.caches[idx].allocate(), true
}

// owns reports whether ptr was allocated from one of this bucket's
// caches. A bucket never needs to know the size class to answer this; it
// just asks each cache in turn, mirroring ImplSlabMulti.h's Bucket
// scanning its caches by address range on deallocate.
func (b *bucket) owns(ptr unsafe.Pointer) (classIdx int, ok bool) {
	for i, c := range b.caches {
		if c.owns(ptr) {
			return i, true
		}
	}
	return 0, false
}

// deallocate returns ptr to the cache at classIdx. The caller must have
// already confirmed ownership via owns; deallocate itself does not
// re-scan for the owning cache.
func (b *bucket) deallocate(classIdx int, ptr unsafe.Pointer) {
	b.caches[classIdx].deallocate(ptr)
}
