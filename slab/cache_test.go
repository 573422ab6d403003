package slab

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, classIdx int, cfg Config) (*cache, *sizeClassTable, *dispatcher) {
	t.Helper()
	cfg = cfg.withDefaults()
	table := buildSizeClassTable(cfg)
	disp := newDispatcher(cfg, table, zap.NewNop())
	idx := newAddressIndex(cfg.SlabSize)
	c := newCache(classIdx, table, disp, idx, 0, cfg)
	return c, table, disp
}

// cursorNotFull is the invariant every cache operation must leave intact:
// slabs[cursor] is never full immediately after allocate/deallocate
// returns.
func cursorNotFull(c *cache) bool {
	if len(c.slabs) == 0 {
		return true
	}
	return !c.slabs[c.cursor].full()
}

func TestCacheGrowsWhenActiveSlabFillsUp(t *testing.T) {
	cfg := Config{SlabSize: 256, SmallestCache: 32, NumCaches: 2, MinSlabs: 1, FreeThreshold: 0.1}
	c, table, _ := newTestCache(t, 0, cfg)

	perSlab := table.blockCount(0)
	for i := 0; i < perSlab; i++ {
		require.NotNil(t, c.allocate())
		require.True(t, cursorNotFull(c))
	}
	// The only slab is now full; its last allocation must have carved a
	// fresh slab and swapped it into position 0.
	require.Equal(t, 2, c.size())
	require.Equal(t, 0, c.cursor)
}

func TestCacheDeallocateRoundTrips(t *testing.T) {
	cfg := Config{SlabSize: 256, SmallestCache: 32, NumCaches: 2, MinSlabs: 1, FreeThreshold: 0.9}
	c, _, _ := newTestCache(t, 0, cfg)

	ptr := c.allocate()
	require.True(t, c.owns(ptr))
	c.deallocate(ptr)

	reused := c.allocate()
	require.Equal(t, ptr, reused)
}

func TestCacheCursorInvariantHoldsAcrossManyOperations(t *testing.T) {
	cfg := Config{SlabSize: 256, SmallestCache: 32, NumCaches: 2, MinSlabs: 1, FreeThreshold: 0.25}
	c, table, _ := newTestCache(t, 0, cfg)
	perSlab := table.blockCount(0)

	var live []unsafe.Pointer
	for i := 0; i < perSlab*6; i++ {
		p := c.allocate()
		require.True(t, cursorNotFull(c))
		live = append(live, p)
		if i%3 == 0 && len(live) > 1 {
			c.deallocate(live[0])
			require.True(t, cursorNotFull(c))
			live = live[1:]
		}
	}
	for _, p := range live {
		c.deallocate(p)
		require.True(t, cursorNotFull(c))
	}
}

func TestCacheReleasesEmptySlabOnceSlackExceedsOneSlab(t *testing.T) {
	cfg := Config{SlabSize: 128, SmallestCache: 32, NumCaches: 2, MinSlabs: 1, FreeThreshold: 0.5}
	c, table, _ := newTestCache(t, 0, cfg)
	perSlab := table.blockCount(0)

	// Filling three slabs' worth grows the cache to 4 slabs (an empty one
	// is always swapped into the cursor once the active slab fills).
	// Freeing everything except the first slab's blocks leaves two slabs
	// wholly empty, well past one slab's worth of slack, so they must be
	// released.
	var allocated []unsafe.Pointer
	for i := 0; i < perSlab*3; i++ {
		allocated = append(allocated, c.allocate())
	}
	peak := c.size()
	require.Greater(t, peak, 1)

	for _, p := range allocated[perSlab:] {
		c.deallocate(p)
	}

	require.Less(t, c.size(), peak, "wholly empty slabs beyond minSlabs should be released once slack exceeds one slab")
	require.True(t, cursorNotFull(c))
}

func TestCacheNeverShrinksBelowMinSlabs(t *testing.T) {
	cfg := Config{SlabSize: 128, SmallestCache: 32, NumCaches: 2, MinSlabs: 2, FreeThreshold: 0.1}
	c, table, _ := newTestCache(t, 0, cfg)
	perSlab := table.blockCount(0)

	var allocated []unsafe.Pointer
	for i := 0; i < perSlab*3; i++ {
		allocated = append(allocated, c.allocate())
	}
	for _, p := range allocated[perSlab:] {
		c.deallocate(p)
	}

	require.GreaterOrEqual(t, c.size(), 2, "minSlabs must never be violated by release")
}

func TestCacheLocateWrapsFromCursor(t *testing.T) {
	cfg := Config{SlabSize: 128, SmallestCache: 32, NumCaches: 2, MinSlabs: 1, FreeThreshold: 0.1}
	c, table, _ := newTestCache(t, 0, cfg)
	perSlab := table.blockCount(0)

	// Fill two slabs completely (growing a third, empty one at index 0),
	// then take one pointer from that third slab.
	for i := 0; i < perSlab; i++ {
		c.allocate()
	}
	for i := 0; i < perSlab; i++ {
		c.allocate()
	}
	require.Equal(t, 3, c.size())
	fromNewest := c.allocate()

	// Point the cursor at the last slab in the slice: finding fromNewest
	// (at index 0) now requires scanning past the end of the slice and
	// wrapping back around to the beginning, not just forward to
	// len(slabs)-1.
	c.cursor = c.size() - 1
	require.True(t, c.owns(fromNewest))
}
