package slab

import (
	"sort"
	"sync"
	"unsafe"
)

// addrEntry records which Handle's bucket, and which size class, owns the
// slab starting at base.
type addrEntry struct {
	base      uintptr
	ownerSlot int
	classIdx  int
}

// addressIndex maps an arbitrary pointer back to the slab (and therefore
// Handle and size class) that owns it, by keeping slab base addresses
// sorted and floor-searching. It generalizes the address-range scan every
// Bucket performs in ImplSlabMulti.h and the slab search LeftHandCold's
// hybrid-slab.go does on free, into a single shared structure every
// Handle's Deallocate can consult instead of scanning every other
// Handle's caches directly.
type addressIndex struct {
	mu       sync.RWMutex
	entries  []addrEntry
	slabSize uintptr
}

func newAddressIndex(slabSize int) *addressIndex {
	return &addressIndex{slabSize: uintptr(slabSize)}
}

// register records a newly carved slab. Called once per slab, under the
// owning cache's grow, which is rare next to allocate/deallocate traffic.
func (a *addressIndex) register(base unsafe.Pointer, ownerSlot, classIdx int) {
	p := uintptr(base)
	a.mu.Lock()
	defer a.mu.Unlock()
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].base >= p })
	a.entries = append(a.entries, addrEntry{})
	copy(a.entries[i+1:], a.entries[i:])
	a.entries[i] = addrEntry{base: p, ownerSlot: ownerSlot, classIdx: classIdx}
}

// unregister removes a slab's entry, called when a cache returns an empty
// slab's region to the dispatcher so a later slab carved at the same
// address is never attributed to the wrong owner.
func (a *addressIndex) unregister(base unsafe.Pointer) {
	p := uintptr(base)
	a.mu.Lock()
	defer a.mu.Unlock()
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].base >= p })
	if i < len(a.entries) && a.entries[i].base == p {
		a.entries = append(a.entries[:i], a.entries[i+1:]...)
	}
}

// lookup finds the slab containing ptr and reports its owning Handle slot
// and size class.
func (a *addressIndex) lookup(ptr unsafe.Pointer) (ownerSlot, classIdx int, ok bool) {
	p := uintptr(ptr)
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].base > p }) - 1
	if i < 0 {
		return 0, 0, false
	}
	e := a.entries[i]
	if p >= e.base && p < e.base+a.slabSize {
		return e.ownerSlot, e.classIdx, true
	}
	return 0, 0, false
}
