package slab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.opentelemetry.io/otel/attribute"

	"github.com/maxcarlson/slabmulti/internal/obs"
)

// Handle stands in for std::thread::id: Go has no portable way to key
// per-thread state off the running goroutine, so every goroutine that
// wants its own Bucket must Bind once and thread the returned Handle
// through every subsequent Allocate/Deallocate call.
type Handle struct {
	slot int
}

// core is the type-erased engine behind every Allocator[T]: the whole
// slab hierarchy operates in raw bytes and unsafe.Pointer, since the
// size-class table is derived from Config alone, never from the element
// type. Allocator[T] is a thin generic view over one shared *core, which
// is what makes Rebind possible: two Allocator values for different
// element types backed by the same core see the same Buckets, the same
// Dispatcher, and the same pending foreign deallocations.
type core struct {
	cfg   Config
	table *sizeClassTable
	disp  *dispatcher
	reg   *registry
	idx   *addressIndex
	mu    *sharedMutex

	obs     *obs.Observer
	metrics *obs.Metrics

	// buckets is small (one entry per bound Handle) and overwhelmingly
	// read rather than written, the case smpContainer's linear-scan
	// finder is meant for rather than a hash map.
	buckets *smpContainer[int, *bucket]

	nextSlot int32
	shutdown atomic.Bool

	// boundary is a Bucket bound on its own dedicated slot, used only by
	// the collab.ByteAllocator boundary methods below so that raw,
	// handle-less requests never share bookkeeping with a caller's own
	// Handle.
	boundaryOnce sync.Once
	boundary     *bucket
	boundarySlot int
}

// boundaryBucket lazily binds the slot the collab.ByteAllocator boundary
// methods serve from and returns both the Bucket and the slot its
// sharedMutex operations must use.
func (c *core) boundaryBucket() (*bucket, int) {
	c.boundaryOnce.Do(func() {
		slot := int(atomic.AddInt32(&c.nextSlot, 1)) - 1
		b := newBucket(c.table, c.disp, c.idx, slot, c.cfg)
		c.buckets.emplace(slot, slot, b)
		c.reg.registerHandle(slot)
		c.boundary = b
		c.boundarySlot = slot
	})
	return c.boundary, c.boundarySlot
}

// Allocate implements collab.ByteAllocator: it lets an out-of-scope
// single-threaded collaborator draw raw memory from this allocator's own
// Dispatcher instead of calling make([]byte, n) directly. Requests above
// the largest size class fall through to the Go heap, same as Allocator's
// own Allocate does for oversized T.
func (c *core) Allocate(n uintptr) unsafe.Pointer {
	b, slot := c.boundaryBucket()
	c.mu.lockShared(slot)
	ptr, ok := b.allocate(n)
	c.mu.unlockShared(slot)
	if !ok {
		buf := make([]byte, n)
		return unsafe.Pointer(&buf[0])
	}
	return ptr
}

// Deallocate implements collab.ByteAllocator, returning a range obtained
// from Allocate. A range this core did not hand out, or one larger than
// the largest size class, is silently ignored, the same boundary-no-op
// Allocator.Deallocate applies to oversized T.
func (c *core) Deallocate(ptr unsafe.Pointer, n uintptr) {
	if n == 0 || n > uintptr(c.table.largest()) {
		return
	}
	b, slot := c.boundaryBucket()
	c.mu.lockShared(slot)
	classIdx, ok := b.owns(ptr)
	if ok {
		b.deallocate(classIdx, ptr)
	}
	c.mu.unlockShared(slot)
}

// shutdownForTest makes every subsequent Allocate/Deallocate/TryAllocate
// call fail with ErrShutdown instead of touching the Dispatcher or any
// Bucket. It exists so goroutine-leak tests have a deterministic point
// past which no allocator call can still be in flight or start fresh,
// without tearing down the underlying superblocks themselves.
func (c *core) shutdownForTest() {
	c.shutdown.Store(true)
}

// Allocator is the public facade over the whole slab hierarchy: one
// Dispatcher shared by every Handle's Bucket, one Registry for foreign
// deallocations, and one addressIndex used to resolve which Handle
// (if any) owns an arbitrary pointer. It is the Go analogue of
// ImplSlabMulti.h's BucketPair plumbed through a SmpContainer of threads,
// generalized to arbitrary element type T via a Go generic parameter
// where ImplSlabMulti.h used a C++ template.
type Allocator[T any] struct {
	*core
}

// New constructs an Allocator for element type T. A zero-value Config
// resolves to the package defaults; observer and metrics may be nil.
func New[T any](cfg Config, observer *obs.Observer, metrics *obs.Metrics) *Allocator[T] {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("slab: %w", err))
	}
	if observer == nil {
		observer = defaultObserver()
	}
	if metrics == nil {
		metrics = defaultMetrics
	}
	table := buildSizeClassTable(cfg)
	disp := newDispatcher(cfg, table, observer.Logger())
	mu := newSharedMutex(cfg.SharedMutexSlots)
	c := &core{
		cfg:     cfg,
		table:   table,
		disp:    disp,
		reg:     newRegistry(table.numClasses(), cfg.SharedMutexSlots),
		idx:     newAddressIndex(cfg.SlabSize),
		mu:      mu,
		obs:     observer,
		metrics: metrics,
		buckets: newSmpContainer[int, *bucket](mu, newSliceFinder[int, *bucket]()),
	}
	return &Allocator[T]{core: c}
}

// Rebind returns a view over the same underlying core as a, but serving a
// different element type U. Handles bound on a remain valid on the
// returned Allocator[U] and vice versa, since both share every Bucket,
// the Dispatcher, and the Registry — only elemSize differs between them.
func Rebind[T, U any](a *Allocator[T]) *Allocator[U] {
	return &Allocator[U]{core: a.core}
}

// elemSize reports the size in bytes of one T, the Go equivalent of the
// source's sizeof(Type) template argument.
func (a *Allocator[T]) elemSize() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

// Bind registers the calling goroutine's logical ownership of a new
// Bucket and returns the Handle it must use for every subsequent call.
// It is the Go replacement for ImplSlabMulti.h's implicit
// ForeignDeallocs::registerThread(std::this_thread::get_id()). A Handle
// returned by Bind on one Allocator[T] is valid on any Allocator[U]
// produced from it via Rebind.
func (a *Allocator[T]) Bind() Handle {
	slot := int(atomic.AddInt32(&a.nextSlot, 1)) - 1

	b := newBucket(a.table, a.disp, a.idx, slot, a.cfg)
	a.buckets.emplace(slot, slot, b)

	a.reg.registerHandle(slot)
	return Handle{slot: slot}
}

func (a *Allocator[T]) bucketFor(h Handle) *bucket {
	var b *bucket
	a.buckets.findDo(h.slot, h.slot, func(v *bucket, ok bool) {
		if ok {
			b = v
		}
	})
	if b == nil {
		panic("slab: use of an unbound Handle")
	}
	return b
}

// Allocate returns a pointer to count contiguous values of type T. The
// memory is not zeroed: a reused block still holds whatever was last
// written to it.
// It first reconciles any foreign deallocations pending for h, then
// serves the request from h's own Bucket, falling through to the ordinary
// Go allocator for requests above the largest size class. It panics with
// an error wrapping ErrOutOfMemory if the system allocator cannot grow;
// see TryAllocate for a non-panicking form.
func (a *Allocator[T]) Allocate(h Handle, count int) *T {
	if count <= 0 {
		return nil
	}
	if a.shutdown.Load() {
		panic(fmt.Errorf("slab: %w", ErrShutdown))
	}
	a.reconcile(h)

	bytes := a.elemSize() * uintptr(count)
	b, found, release := a.buckets.findAndStartSharedLock(h.slot, h.slot)
	if !found {
		panic("slab: use of an unbound Handle")
	}
	ptr, ok := b.allocate(bytes)
	release()

	if !ok {
		out := make([]T, count)
		if a.metrics != nil {
			a.metrics.IncAllocations()
		}
		return &out[0]
	}
	if a.metrics != nil {
		a.metrics.IncAllocations()
		a.metrics.SetSuperblocks(a.disp.superblockCount())
	}
	return (*T)(ptr)
}

// TryAllocate is Allocate with the OOM panic converted into ErrOutOfMemory.
func (a *Allocator[T]) TryAllocate(h Handle, count int) (ptr *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrShutdown) {
				err = e
				return
			}
			if a.metrics != nil {
				a.metrics.IncOutOfMemory()
			}
			err = fmt.Errorf("slab: allocating %d elements: %w", count, ErrOutOfMemory)
		}
	}()
	return a.Allocate(h, count), nil
}

// Deallocate returns a value previously obtained from Allocate(h, count)
// (or from a different Handle's Allocate call — cross-Handle frees are
// the whole point of the foreign-deallocation protocol). A pointer larger
// than the largest size class was served by the ordinary Go allocator and
// is simply released to the garbage collector by letting go of the last
// reference; Deallocate is then a documented no-op for it.
func (a *Allocator[T]) Deallocate(h Handle, ptr *T, count int) {
	if a.shutdown.Load() {
		panic(fmt.Errorf("slab: %w", ErrShutdown))
	}
	bytes := a.elemSize() * uintptr(count)
	if bytes == 0 || bytes > uintptr(a.table.largest()) {
		return
	}
	p := unsafe.Pointer(ptr)

	ownerSlot, classIdx, ok := a.idx.lookup(p)
	if !ok {
		panic("slab: deallocate called with a pointer this allocator did not hand out")
	}

	if ownerSlot == h.slot {
		b, found, release := a.buckets.findAndStartSharedLock(h.slot, h.slot)
		if !found {
			panic("slab: use of an unbound Handle")
		}
		b.deallocate(classIdx, p)
		release()
	} else {
		a.reg.add(ownerSlot, classIdx, p)
		if a.metrics != nil {
			a.metrics.IncForeignDeallocs()
		}
	}
	if a.metrics != nil {
		a.metrics.IncDeallocations()
	}
}

// reconcile drains any foreign deallocations pending for h back into h's
// own Bucket, the Go analogue of ForeignDeallocs::handleDeallocs. It is
// called at the start of every Allocate so a Handle that only ever
// allocates still eventually reclaims memory other Handles have freed on
// its behalf.
func (a *Allocator[T]) reconcile(h Handle) {
	if !a.reg.hasPending(h.slot) {
		return
	}
	_, span := a.obs.Tracer().Start(context.Background(), "slab.reconcile")
	defer span.End()
	span.SetAttributes(attribute.Int("handle.slot", h.slot))

	b := a.bucketFor(h)
	a.mu.lock()
	a.reg.drain(h.slot, func(classIdx int, ptr unsafe.Pointer) {
		b.deallocate(classIdx, ptr)
	})
	a.mu.unlock()
}
