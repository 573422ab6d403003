package slab

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Default tunables for the slab hierarchy.
const (
	DefaultSuperblockSize   = 1 << 20
	DefaultSlabSize         = 1 << 14
	DefaultNumCaches        = 8
	DefaultSmallestCache    = 64
	DefaultInitSuperblocks  = 4
	DefaultFreeThreshold    = 0.25
	DefaultMinSlabs         = 1
	DefaultSharedMutexSlots = 8
)

// Config holds the tunables of the slab hierarchy as a runtime-loadable
// struct rather than compile-time constants, letting an embedding
// application override them (e.g. for tests that want a tiny
// SuperblockSize to exercise Dispatcher growth quickly). A zero-value
// Config resolves every field to the package defaults above via
// withDefaults.
type Config struct {
	SuperblockSize   int     `toml:"superblock_size"`
	SlabSize         int     `toml:"slab_size"`
	NumCaches        int     `toml:"num_caches"`
	SmallestCache    int     `toml:"smallest_cache"`
	InitSuperblocks  int     `toml:"init_superblocks"`
	FreeThreshold    float64 `toml:"free_threshold"`
	MinSlabs         int     `toml:"min_slabs"`
	SharedMutexSlots int     `toml:"shared_mutex_slots"`
}

// withDefaults fills every zero-valued field with the package default,
// returning a fully resolved Config. It never mutates the receiver.
func (c Config) withDefaults() Config {
	out := c
	if out.SuperblockSize == 0 {
		out.SuperblockSize = DefaultSuperblockSize
	}
	if out.SlabSize == 0 {
		out.SlabSize = DefaultSlabSize
	}
	if out.NumCaches == 0 {
		out.NumCaches = DefaultNumCaches
	}
	if out.SmallestCache == 0 {
		out.SmallestCache = DefaultSmallestCache
	}
	if out.InitSuperblocks == 0 {
		out.InitSuperblocks = DefaultInitSuperblocks
	}
	if out.FreeThreshold == 0 {
		out.FreeThreshold = DefaultFreeThreshold
	}
	if out.MinSlabs == 0 {
		out.MinSlabs = DefaultMinSlabs
	}
	if out.SharedMutexSlots == 0 {
		out.SharedMutexSlots = DefaultSharedMutexSlots
	}
	return out
}

func (c Config) validate() error {
	if c.SlabSize <= 0 || c.SuperblockSize <= 0 {
		return fmt.Errorf("slab: invalid config: slab and superblock sizes must be positive")
	}
	if c.SuperblockSize%c.SlabSize != 0 {
		return fmt.Errorf("slab: invalid config: superblock size %d is not a multiple of slab size %d", c.SuperblockSize, c.SlabSize)
	}
	largest := c.SmallestCache << (c.NumCaches - 1)
	if largest > c.SlabSize {
		return fmt.Errorf("slab: invalid config: largest size class %d exceeds slab size %d", largest, c.SlabSize)
	}
	return nil
}

// LoadConfig reads a Config from a TOML file, grounded on TimeWtr/slab's use
// of BurntSushi/toml for the same purpose (tuning a Go slab allocator).
// Fields absent from the file resolve to the package defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("slab: reading config %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("slab: parsing config %q: %w", path, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
