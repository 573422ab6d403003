package slab

import "unsafe"

// cache holds every slab of one size class owned by one Handle's bucket.
// It is the Go analogue of ImplSlabMulti.h's class Cache: an ordered list
// of slabs with an active cursor, classifying slabs positionally — slabs
// left of the cursor are emptier, the cursor itself is the allocation
// target, slabs right of the cursor are fuller. A cache here is never
// shared between goroutines the way an mcentral is shared between Ps, so
// it needs no lock of its own.
//
// Only the Handle this cache belongs to ever calls allocate or deallocate
// on it directly. Pointers that did not originate from this cache's own
// slabs are never deallocated here; see registry.go for how those are
// routed back to their owning cache.
type cache struct {
	classIdx  int
	blockSize int
	numBlocks int
	ownerSlot int

	disp *dispatcher
	idx  *addressIndex

	slabs  []*slab
	cursor int // index of the active allocation target
	inUse  int // total allocated blocks across every slab in this cache

	minSlabs      int
	freeThreshold float64
}

func newCache(classIdx int, table *sizeClassTable, disp *dispatcher, idx *addressIndex, ownerSlot int, cfg Config) *cache {
	return &cache{
		classIdx:      classIdx,
		blockSize:     table.blockSize(classIdx),
		numBlocks:     table.blockCount(classIdx),
		ownerSlot:     ownerSlot,
		disp:          disp,
		idx:           idx,
		minSlabs:      cfg.MinSlabs,
		freeThreshold: cfg.FreeThreshold,
	}
}

// allocate returns a block from this cache's size class. It never returns
// nil: a cache only fails to produce a block if the dispatcher itself
// panics on out-of-memory.
//
// Invariant: slabs[cursor] is never full when allocate returns. Every
// allocation comes from slabs[cursor]; if that allocation leaves the slab
// full, the cursor is advanced per the rule below before allocate
// returns, so the next call always finds a non-full slab waiting.
func (c *cache) allocate() unsafe.Pointer {
	if len(c.slabs) == 0 {
		c.growFront()
	}
	active := c.cursor
	ptr, ok := c.slabs[active].allocate()
	if !ok {
		// Invariant violated elsewhere: the active slab must never be
		// full when allocate is called.
		panic("slab: cursor slab reported full on entry to allocate")
	}
	c.inUse++
	if c.slabs[active].full() {
		// The active slab just ran out of room: move the cursor one
		// position earlier, toward the emptier end of the slice. At
		// position 0 there is no earlier slab to fall back to, so a
		// fresh one is carved and swapped into position 0 instead,
		// leaving the cursor there.
		if active == 0 {
			c.growFront()
		} else {
			c.cursor = active - 1
		}
	}
	return ptr
}

// growFront carves a fresh slab from the dispatcher and inserts it at
// position 0, shifting every existing slab one position to the right,
// then leaves the cursor at 0.
func (c *cache) growFront() {
	block := c.disp.getBlock()
	template := c.disp.freeTemplateFor(c.classIdx)
	s := newSlab(block, c.blockSize, c.numBlocks, template)
	c.idx.register(s.base, c.ownerSlot, c.classIdx)

	c.slabs = append(c.slabs, nil)
	copy(c.slabs[1:], c.slabs[:len(c.slabs)-1])
	c.slabs[0] = s
	c.cursor = 0
}

// deallocate returns ptr, which must belong to one of this cache's own
// slabs, to that slab's free stack, then reclassifies and possibly
// releases the slab that absorbed it.
func (c *cache) deallocate(ptr unsafe.Pointer) {
	idx := c.locate(ptr)
	if idx < 0 {
		panic("slab: deallocate called with a pointer this cache does not own")
	}
	s := c.slabs[idx]
	s.deallocate(ptr)
	c.inUse--
	c.afterDeallocate(idx)
}

// afterDeallocate reclassifies the slab at idx now that it has one more
// free block, then decides whether it should be released entirely.
func (c *cache) afterDeallocate(idx int) {
	s := c.slabs[idx]
	threshold := int(float64(c.numBlocks) * c.freeThreshold)
	inUse := c.numBlocks - len(s.free)

	if inUse <= threshold && idx > c.cursor {
		// The slab has gone from fuller to emptier: splice it to just
		// after the cursor so emptier slabs keep accumulating on the
		// left, per the cache's positional classification.
		c.spliceAfterCursor(idx)
		idx = c.cursor + 1
	}

	capacity := len(c.slabs) * c.numBlocks
	if s.empty() && len(c.slabs) > c.minSlabs && capacity-c.inUse > c.numBlocks {
		c.release(idx)
	}
}

// spliceAfterCursor moves the slab at idx to position cursor+1, shifting
// the slabs between them over by one. It never allocates: the move is
// plain copy over the existing backing array, safe because slabs are
// referenced only by this slice (no live external references into it, as
// opposed to the source's hand-rolled memmove over non-trivially-movable
// descriptors).
func (c *cache) spliceAfterCursor(idx int) {
	if idx <= c.cursor+1 {
		return
	}
	s := c.slabs[idx]
	copy(c.slabs[c.cursor+2:idx+1], c.slabs[c.cursor+1:idx])
	c.slabs[c.cursor+1] = s
}

// release removes the wholly empty slab at idx from rotation and returns
// its memory to the dispatcher. Positional cleanup mirrors the source's
// removal rules: a slab to the right of the cursor is swapped with the
// last element and the slice truncated; a slab to the left is removed and
// shifted down, and the cursor moves down with it; the cursor's own slab
// is swapped with the last element, truncated, and the cursor follows it
// to the new last position.
func (c *cache) release(idx int) {
	s := c.slabs[idx]
	c.idx.unregister(s.base)
	c.disp.returnBlock(s.region())

	n := len(c.slabs)
	switch {
	case idx == c.cursor:
		c.slabs[idx] = c.slabs[n-1]
		c.slabs = c.slabs[:n-1]
		c.cursor = len(c.slabs) - 1
	case idx > c.cursor:
		c.slabs[idx] = c.slabs[n-1]
		c.slabs = c.slabs[:n-1]
	default: // idx < c.cursor
		copy(c.slabs[idx:], c.slabs[idx+1:])
		c.slabs = c.slabs[:n-1]
		c.cursor--
	}
}

// owns reports whether ptr falls inside one of this cache's slabs,
// without mutating any state. Bucket uses this to decide whether a
// pointer can be freed locally or must go to the foreign registry.
func (c *cache) owns(ptr unsafe.Pointer) bool {
	return c.locate(ptr) >= 0
}

// locate scans from the cursor forward to the end, then wraps to the
// beginning, stopping as soon as a slab reports containing ptr. If the
// scan returns to the cursor without a match, this cache does not own
// ptr.
func (c *cache) locate(ptr unsafe.Pointer) int {
	n := len(c.slabs)
	if n == 0 {
		return -1
	}
	for step := 0; step < n; step++ {
		i := (c.cursor + step) % n
		if c.slabs[i].contains(ptr) {
			return i
		}
	}
	return -1
}

func (c *cache) size() int { return len(c.slabs) }
