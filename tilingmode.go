package tiffrw

// TilingMode is a tag-only enum distinguishing a true tile grid from a
// strip-based image. In STRIPS mode, the tile width always equals the
// image width and the final row of blocks may be shorter than the
// nominal block height.
type TilingMode int

const (
	TileGrid TilingMode = iota
	Strips
)

func (m TilingMode) String() string {
	if m == Strips {
		return "Strips"
	}
	return "TileGrid"
}
