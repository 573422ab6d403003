package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxcarlson/slabmulti/slab/collab"
)

// These compile-time assertions are the whole point of the collab
// package's boundary stubs: if *slab or *core ever drift from what
// collab.SizeClassSource/ByteAllocator declare, this file stops
// compiling rather than the mismatch going unnoticed.
var (
	_ collab.SizeClassSource = (*slab)(nil)
	_ collab.ByteAllocator   = (*core)(nil)
)

func TestCoreSatisfiesByteAllocatorBoundary(t *testing.T) {
	a := New[concurrencyElem](concurrencyTestConfig(), nil, nil)
	var ba collab.ByteAllocator = a.core

	ptr := ba.Allocate(32)
	require.NotNil(t, ptr)
	ba.Deallocate(ptr, 32)
}

func TestSlabSatisfiesSizeClassSourceBoundary(t *testing.T) {
	cfg := Config{SlabSize: 256, SmallestCache: 32, NumCaches: 2, MinSlabs: 1, FreeThreshold: 0.1}
	c, table, _ := newTestCache(t, 0, cfg)
	ptr := c.allocate()

	var src collab.SizeClassSource = c.slabs[0]
	require.Equal(t, uintptr(table.blockSize(0)), src.BlockSize())
	require.True(t, src.Contains(ptr))
}
