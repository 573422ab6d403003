package slab

import (
	"sync/atomic"
	"unsafe"
)

// fptrNode is one pending foreign deallocation: a pointer some Handle
// freed that belongs to a different Handle's bucket. Nodes are linked
// with a stable address for the lifetime of the node (the Go analogue of
// ForeignDeallocs.h's FPtr, minus the "found" flag, which that
// implementation needs only because its central list is scanned by
// multiple threads; here each owner drains only its own stack).
type fptrNode struct {
	ptr  unsafe.Pointer
	next atomic.Pointer[fptrNode]
}

// fcache is the set of pending foreign deallocations for one Handle,
// bucketed by size class, the Go analogue of ForeignDeallocs.h's FCache.
// Each size class is an independent Treiber stack: any Handle may push a
// pointer for any size class concurrently via a CAS loop, and the owner
// drains an entire class in one atomic swap, so pushers and the single
// drainer never block on each other.
type fcache struct {
	heads []atomic.Pointer[fptrNode]
}

func newFCache(numClasses int) *fcache {
	return &fcache{heads: make([]atomic.Pointer[fptrNode], numClasses)}
}

func (f *fcache) push(classIdx int, ptr unsafe.Pointer) {
	node := &fptrNode{ptr: ptr}
	head := &f.heads[classIdx]
	for {
		old := head.Load()
		node.next.Store(old)
		if head.CompareAndSwap(old, node) {
			return
		}
	}
}

// drainClass atomically detaches the whole stack for classIdx and returns
// its pointers oldest-push-last (order does not matter to callers: every
// pointer returned here is simply handed back to a slab's free stack).
func (f *fcache) drainClass(classIdx int) []unsafe.Pointer {
	head := f.heads[classIdx].Swap(nil)
	var out []unsafe.Pointer
	for head != nil {
		out = append(out, head.ptr)
		head = head.next.Load()
	}
	return out
}

func (f *fcache) hasPending(classIdx int) bool {
	return f.heads[classIdx].Load() != nil
}

// registry is the process-wide foreign-deallocation switchboard: a lookup
// from owning Handle slot to that Handle's fcache. It is the Go analogue
// of ForeignDeallocs.h's ForeignDeallocs class, with myMap backed by the
// same smpContainer used elsewhere in this package for small,
// read-mostly, Handle-keyed lookups — registration (one entry per
// Handle's lifetime) is rare compared to the push/drain traffic that runs
// lock-free through fcache itself.
type registry struct {
	owners     *smpContainer[int, *fcache]
	numClasses int
}

func newRegistry(numClasses int, slots int) *registry {
	return &registry{
		owners:     newSmpContainer[int, *fcache](newSharedMutex(slots), newMapFinder[int, *fcache]()),
		numClasses: numClasses,
	}
}

// registerHandle must be called once before any pointer owned by slot can
// be the target of a foreign deallocation, mirroring
// ForeignDeallocs::registerThread.
func (r *registry) registerHandle(slot int) {
	r.owners.emplace(slot, slot, newFCache(r.numClasses))
}

// fcacheFor looks up slot's fcache, taking the owners lock's shared side on
// behalf of lockSlot (the calling Handle's slot, or -1 for the spill path).
func (r *registry) fcacheFor(lockSlot, slot int) *fcache {
	var fc *fcache
	r.owners.findDo(lockSlot, slot, func(v *fcache, ok bool) {
		if ok {
			fc = v
		}
	})
	if fc != nil {
		return fc
	}
	r.registerHandle(slot)
	r.owners.findDo(lockSlot, slot, func(v *fcache, ok bool) {
		fc = v
	})
	return fc
}

// add records that ptr, belonging to size class classIdx, was freed by a
// Handle other than its owner (ownerSlot). It never blocks on the owner
// and never touches the owner's cache directly; the owner reconciles it
// later via drain. The caller is not ownerSlot, so the lookup takes the
// spill path rather than writing ownerSlot's own mutex slot flag.
func (r *registry) add(ownerSlot, classIdx int, ptr unsafe.Pointer) {
	r.fcacheFor(-1, ownerSlot).push(classIdx, ptr)
}

// drain hands every pointer pending for ownerSlot to apply, one size
// class at a time, and is meant to be called only by ownerSlot itself
// (ForeignDeallocs::handleDeallocs is likewise only ever called by the
// owning thread). apply is expected to push the pointer back onto the
// matching cache's free stack.
func (r *registry) drain(ownerSlot int, apply func(classIdx int, ptr unsafe.Pointer)) {
	fc := r.fcacheFor(ownerSlot, ownerSlot)
	for classIdx := 0; classIdx < r.numClasses; classIdx++ {
		for _, ptr := range fc.drainClass(classIdx) {
			apply(classIdx, ptr)
		}
	}
}

// hasPending reports whether ownerSlot has any foreign deallocations
// waiting, without draining them.
func (r *registry) hasPending(ownerSlot int) bool {
	fc := r.fcacheFor(ownerSlot, ownerSlot)
	for classIdx := 0; classIdx < r.numClasses; classIdx++ {
		if fc.hasPending(classIdx) {
			return true
		}
	}
	return false
}
