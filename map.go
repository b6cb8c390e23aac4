package tiffrw

// Map owns the tile grid for one IFD: a mapping from TileIndex to
// Tile (insertion-order iterable), the pixel geometry derived from
// the IFD at construction, and — for resizable writers — mutable
// dimensions and grid counts that may grow. Map is the base that
// ReadMap and WriteMap specialize.
type Map struct {
	ifd    IFD
	tiling TilingMode

	sampleType              SampleType
	samplesPerPixel         int32
	numberOfSeparatedPlanes int32

	// bitsPerSample is the IFD-declared width rounded up to a byte
	// boundary (sampletype.go's alignedBitsPerSample): the on-disk,
	// pre-unpack width that tiles are allocated at, codecs encode/decode
	// at, and BitCopy strides by. sampleType.BitsPerSample() is the
	// wider native lane UnusualPrecisions widens/narrows to and from
	// at the edges of LoadSamples/UpdateSampleBytes; the two agree for
	// native widths (1/8/16/32/64) and diverge only for unusual
	// precisions.
	bitsPerSample uint32

	tileSizeX, tileSizeY int32
	dimX, dimY           int32
	gridCountX, gridCountY int32

	resizable bool
	options   MapOptions

	tiles map[TileIndex]*Tile
	order []TileIndex

	codec  Codec
	tileIO *TileIO
	up     *UnusualPrecisions
}

// NewMap validates the IFD's declared geometry and builds a Map over
// it. resizable must be false unless tiling is TileGrid (spec.md §3:
// "A resizable map must use TILE_GRID tiling").
func NewMap(ifd IFD, codec Codec, tio *TileIO, opts MapOptions, resizable bool) (*Map, error) {
	bps := ifd.BitsPerSample()
	if len(bps) == 0 {
		return nil, newErr(Format, "ifd declares no bitsPerSample")
	}
	for _, b := range bps[1:] {
		if alignedBitsPerSample(b) != alignedBitsPerSample(bps[0]) {
			return nil, newErr(Incompatible, "channels do not share an aligned bit width: %v", bps)
		}
	}
	st, err := SampleTypeFor(bps[0], ifd.SampleFormat())
	if err != nil {
		return nil, err
	}
	if st.BitsPerSample() < alignedBitsPerSample(bps[0]) {
		return nil, newErr(Incompatible, "sample type width %d below aligned ifd width %d", st.BitsPerSample(), alignedBitsPerSample(bps[0]))
	}

	tiling := TileGrid
	tileSizeX, tileSizeY := ifd.TileSizeX(), ifd.TileSizeY()
	if !ifd.HasTileInformation() {
		tiling = Strips
		tileSizeX = ifd.ImageDimX()
	}
	if resizable && tiling != TileGrid {
		return nil, newErr(Incompatible, "a resizable map must use TILE_GRID tiling")
	}
	if tileSizeX <= 0 || tileSizeY <= 0 {
		return nil, newErr(Format, "non-positive tile size %dx%d", tileSizeX, tileSizeY)
	}

	samplesPerPixel := ifd.SamplesPerPixel()
	numPlanes := int32(1)
	if ifd.IsPlanarSeparated() {
		numPlanes = samplesPerPixel
	}

	bitsPerPixelInTile := uint64(alignedBitsPerSample(bps[0]))
	if !ifd.IsPlanarSeparated() {
		bitsPerPixelInTile *= uint64(samplesPerPixel)
	}
	paddedX := uint64(tileSizeX+7) &^ 7
	if paddedX*uint64(tileSizeY)*bitsPerPixelInTile > uint64(1)<<31 {
		return nil, newErr(TooLarge, "tile %dx%d at %d bits/pixel exceeds 2^31 bits", tileSizeX, tileSizeY, bitsPerPixelInTile)
	}

	dimX, dimY := ifd.ImageDimX(), ifd.ImageDimY()
	gridCountX := ceilDivI32(dimX, tileSizeX)
	gridCountY := ceilDivI32(dimY, tileSizeY)
	total := int64(gridCountX) * int64(gridCountY) * int64(numPlanes)
	if total > maxI32 {
		return nil, newErr(TooLarge, "grid %dx%d x %d planes exceeds 2^31-1 tiles", gridCountX, gridCountY, numPlanes)
	}

	if ifd.IsLoadedFromFile() {
		offs := ifd.CachedOffsets()
		counts := ifd.CachedByteCounts()
		if len(offs) != len(counts) || int64(len(offs)) != total {
			return nil, newErr(Format, "offsets/byteCounts length %d/%d does not match grid*planes=%d", len(offs), len(counts), total)
		}
	}

	m := &Map{
		ifd:                     ifd,
		tiling:                  tiling,
		sampleType:              st,
		samplesPerPixel:         samplesPerPixel,
		numberOfSeparatedPlanes: numPlanes,
		bitsPerSample:           alignedBitsPerSample(bps[0]),
		tileSizeX:               tileSizeX,
		tileSizeY:               tileSizeY,
		dimX:                    dimX,
		dimY:                    dimY,
		gridCountX:              gridCountX,
		gridCountY:              gridCountY,
		resizable:               resizable,
		options:                 opts,
		tiles:                   make(map[TileIndex]*Tile),
		codec:                   codec,
		tileIO:                  tio,
		up:                      NewUnusualPrecisions(ifd.ByteOrder(), opts.AutoScaleWhenIncreasing),
	}
	return m, nil
}

func ceilDivI32(a, b int32) int32 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Get returns the tile at idx if the Map already holds it.
func (m *Map) Get(idx TileIndex) (*Tile, bool) {
	t, ok := m.tiles[idx]
	return t, ok
}

// Put inserts a tile into the grid. On a resizable map this grows the
// grid to fit; otherwise a tile index outside the current grid fails
// with OutOfBounds (spec.md §4.4 "Grid expansion").
func (m *Map) Put(t *Tile) error {
	if t.Index.ifdID != m.ifd.ID() {
		return newTileErr(Incompatible, t.Index, "tile belongs to a different IFD")
	}
	if m.resizable {
		if err := m.expandGrid(t.Index.GridX+1, t.Index.GridY+1); err != nil {
			return err
		}
	} else if t.Index.GridX >= m.gridCountX || t.Index.GridY >= m.gridCountY || t.Index.GridX < 0 || t.Index.GridY < 0 {
		return newTileErr(OutOfBounds, t.Index, "tile index outside non-resizable grid %dx%d", m.gridCountX, m.gridCountY)
	}
	if _, exists := m.tiles[t.Index]; !exists {
		m.order = append(m.order, t.Index)
	}
	t.owner = m
	m.tiles[t.Index] = t
	return nil
}

// expandGrid grows gridCountX/Y to at least (x,y), never shrinking
// either count; dimX/dimY are left unchanged. It rejects totals that
// would reach 2^31 tiles.
func (m *Map) expandGrid(x, y int32) error {
	newGX, newGY := m.gridCountX, m.gridCountY
	if x > newGX {
		newGX = x
	}
	if y > newGY {
		newGY = y
	}
	total := int64(newGX) * int64(newGY) * int64(m.numberOfSeparatedPlanes)
	if total > maxI32 {
		return newErr(TooLarge, "grid expansion to %dx%d would reach 2^31 tiles", newGX, newGY)
	}
	// dimX/dimY only grow when the caller explicitly requests it via
	// expandDimensions; Put() alone does not widen the image.
	m.gridCountX, m.gridCountY = newGX, newGY
	return nil
}

// expandDimensions grows dimX/dimY (and, transitively, the grid) to
// cover (x,y). Used by WriteMap when a write rectangle exceeds the
// current image bounds on a resizable map.
func (m *Map) expandDimensions(x, y int32) error {
	if !m.resizable {
		return newErr(InvalidState, "map is not resizable")
	}
	if x > m.dimX {
		m.dimX = x
	}
	if y > m.dimY {
		m.dimY = y
	}
	gx := ceilDivI32(m.dimX, m.tileSizeX)
	gy := ceilDivI32(m.dimY, m.tileSizeY)
	return m.expandGrid(gx, gy)
}

// validateRect performs the §4.4 step-1 coordinate validation shared
// by both the read and write sample paths.
func validateRect(fromX, fromY, sizeX, sizeY int32) error {
	if sizeX < 0 || sizeY < 0 {
		return newErr(OutOfBounds, "negative size %dx%d", sizeX, sizeY)
	}
	area := int64(sizeX) * int64(sizeY)
	if area > maxI32-1 {
		return newErr(OutOfBounds, "rectangle area %d exceeds 2^31-2", area)
	}
	toX := int64(fromX) + int64(sizeX)
	toY := int64(fromY) + int64(sizeY)
	if fromX < 0 || fromY < 0 || toX > maxI32-1 || toY > maxI32-1 {
		return newErr(OutOfBounds, "rectangle [%d,%d)x[%d,%d) escapes [0,2^31-2]", fromX, toX, fromY, toY)
	}
	return nil
}
