package tiffrw

import (
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// TileSupplier resolves a TileIndex to its Tile, either by reading and
// decoding it fresh or by returning a cached decoded copy. Map
// operations fetch tiles exclusively through this interface so a
// caller can observe or override fetch order (spec.md §5).
type TileSupplier interface {
	Get(idx TileIndex) (*Tile, error)
}

// directSupplier always reads+decodes from the backing file, never
// caching the result. This is the "uncached" variant spec.md §4.4
// describes.
type directSupplier struct {
	m *Map
}

func (d *directSupplier) Get(idx TileIndex) (*Tile, error) {
	return d.m.loadAndDecode(idx)
}

// cachedSupplier wraps a directSupplier with an LRU keyed by
// TileIndex. Eviction discards the decoded buffer but keeps
// storedInFile bookkeeping so the tile can be reloaded later,
// matching spec.md §5's "shared-resource policy" for the decoded-tile
// cache.
type cachedSupplier struct {
	m     *Map
	cache *lru.Cache
}

// NewCachedSupplier builds an LRU-backed TileSupplier holding up to
// capacity decoded tiles.
func NewCachedSupplier(m *Map, capacity int) (TileSupplier, error) {
	c, err := lru.NewWithEvict(capacity, func(key, value interface{}) {
		if tile, ok := value.(*Tile); ok {
			logger.Debug("evicting tile from cache", zap.Any("index", tile.Index))
			tile.freeData()
		}
	})
	if err != nil {
		return nil, newErr(IO, "build tile cache: %v", err)
	}
	return &cachedSupplier{m: m, cache: c}, nil
}

func (c *cachedSupplier) Get(idx TileIndex) (*Tile, error) {
	if v, ok := c.cache.Get(idx); ok {
		tile := v.(*Tile)
		if tile.isDecoded() {
			return tile, nil
		}
		// evicted or never decoded: reload through the direct path,
		// then re-adopt into the cache under the same key.
	}
	tile, err := c.m.loadAndDecode(idx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(idx, tile)
	return tile, nil
}
