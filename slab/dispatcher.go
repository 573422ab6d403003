package slab

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// dispatcher is the process-wide-from-the-Handle's-point-of-view source of
// slab-sized regions. It owns the superblock pool: large system
// allocations sliced into slab-sized blocks and handed out to Caches on
// demand. It is the Go analogue of ImplSlabMulti.h's GlobalDispatch, with
// growth modeled on mHeap growing a span allocator from the OS in
// mcentral.go's mCentral_Grow.
//
// A dispatcher belongs to exactly one allocator instance; see the
// "Inline globals" note for why this is a per-allocator field rather than
// a package-level global.
type dispatcher struct {
	mu  sync.Mutex
	cfg Config
	log *zap.Logger

	superblocks [][]byte
	free        [][]byte

	freeTemplates [][]uint16
}

func newDispatcher(cfg Config, table *sizeClassTable, log *zap.Logger) *dispatcher {
	d := &dispatcher{
		cfg:           cfg,
		log:           log,
		freeTemplates: buildFreeTemplates(table),
	}
	d.growLocked(cfg.InitSuperblocks)
	return d
}

// buildFreeTemplates precomputes, for each size class, the descending
// index stack a freshly carved slab starts with. Every slab of a given
// class starts identical, so the template is built once instead of once
// per slab.
func buildFreeTemplates(t *sizeClassTable) [][]uint16 {
	out := make([][]uint16, t.numClasses())
	for c := 0; c < t.numClasses(); c++ {
		n := t.blockCount(c)
		idxs := make([]uint16, n)
		for i := 0; i < n; i++ {
			idxs[i] = uint16(n - 1 - i)
		}
		out[c] = idxs
	}
	return out
}

// getBlock removes and returns a slab-sized region from the free list,
// growing the superblock pool first if it is empty. It panics with an
// ErrOutOfMemory-wrapping value on allocation failure, mirroring the
// source throwing std::bad_alloc out of GlobalDispatch::requestMem.
func (d *dispatcher) getBlock() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.free) == 0 {
		func() {
			defer func() {
				if r := recover(); r != nil {
					panic(fmt.Errorf("slab: growing superblock pool: %w (%v)", ErrOutOfMemory, r))
				}
			}()
			d.growLocked(d.cfg.InitSuperblocks)
		}()
	}
	n := len(d.free)
	block := d.free[n-1]
	d.free = d.free[:n-1]
	return block
}

// tryGetBlock is getBlock with the OOM panic converted to ErrOutOfMemory,
// for callers that would rather check an error than recover a panic.
func (d *dispatcher) tryGetBlock() (block []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("slab: growing superblock pool: %w", ErrOutOfMemory)
		}
	}()
	block = d.getBlock()
	return block, nil
}

// returnBlock gives a slab-sized region back to the free list. Dispatcher
// never returns superblocks to the OS: like ImplSlabMulti.h's GlobalDispatch,
// it only ever grows, trading peak memory for never having to coordinate
// a superblock's outstanding slabs before releasing it.
func (d *dispatcher) returnBlock(block []byte) {
	d.mu.Lock()
	d.free = append(d.free, block)
	d.mu.Unlock()
}

// freeTemplateFor returns a fresh copy of the initial free-index stack for
// the given size class, used by Cache when it carves a new slab out of a
// block obtained from getBlock.
func (d *dispatcher) freeTemplateFor(classIdx int) []uint16 {
	template := d.freeTemplates[classIdx]
	out := make([]uint16, len(template))
	copy(out, template)
	return out
}

// growLocked allocates n new superblocks from the system and slices each
// into slab-sized regions on the free list. Both the constructor and
// getBlock's on-empty-free-list path grow by the same InitSuperblocks
// batch size; there is no separate "grow by exactly this many slabs" path.
func (d *dispatcher) growLocked(n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		sb := make([]byte, d.cfg.SuperblockSize)
		d.superblocks = append(d.superblocks, sb)
		for off := 0; off < len(sb); off += d.cfg.SlabSize {
			d.free = append(d.free, sb[off:off+d.cfg.SlabSize:off+d.cfg.SlabSize])
		}
	}
	if d.log != nil {
		d.log.Debug("grew superblock pool",
			zap.Int("new_superblocks", n),
			zap.Int("total_superblocks", len(d.superblocks)),
		)
	}
}

// superblockCount reports how many superblocks have been allocated from
// the system so far, exposed for the observability gauge in internal/obs.
func (d *dispatcher) superblockCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.superblocks)
}
