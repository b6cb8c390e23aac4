package tiffrw

import "go.uber.org/zap"

// ReadMap specializes Map for reading: it orchestrates tile supply
// through a TileSupplier, decodes, and assembles user rectangles out
// of the tile grid.
type ReadMap struct {
	*Map
	supplier TileSupplier
}

// NewReadMap builds a ReadMap. If cacheCapacity > 0 tiles are served
// through an LRU-cached supplier; otherwise every tile fetch reads and
// decodes straight from the file.
func NewReadMap(ifd IFD, codec Codec, tio *TileIO, opts MapOptions) (*ReadMap, error) {
	m, err := NewMap(ifd, codec, tio, opts, false)
	if err != nil {
		return nil, err
	}
	rm := &ReadMap{Map: m}
	if opts.CacheCapacity > 0 {
		sup, err := NewCachedSupplier(m, opts.CacheCapacity)
		if err != nil {
			return nil, err
		}
		rm.supplier = sup
	} else {
		rm.supplier = &directSupplier{m: m}
	}
	return rm, nil
}

// WithSupplier overrides the tile supplier, e.g. with a test double
// that records fetch order (spec.md §5 ordering guarantees).
func (rm *ReadMap) WithSupplier(s TileSupplier) { rm.supplier = s }

// loadAndDecode reads and decodes the tile at idx straight from the
// file; this is the uncached path cache.go's cachedSupplier falls
// back to on a miss.
func (m *Map) loadAndDecode(idx TileIndex) (*Tile, error) {
	if existing, ok := m.tiles[idx]; ok && existing.isDecoded() {
		return existing, nil
	}
	offIdx := m.tileOffsetIndex(idx)
	offs := m.ifd.CachedOffsets()
	counts := m.ifd.CachedByteCounts()
	if offIdx < 0 || offIdx >= len(offs) {
		return nil, newTileErr(OutOfBounds, idx, "tile index %d outside offsets table of length %d", offIdx, len(offs))
	}
	fileOffset, byteCount := offs[offIdx], counts[offIdx]

	tile, err := m.newTileForIndex(idx)
	if err != nil {
		return nil, err
	}
	if byteCount == 0 || fileOffset == 0 {
		// Unreferenced tile: treated as empty, filled by caller policy.
		if err := tile.fillWhenEmpty(m.options.tileInitializerFunc()); err != nil {
			return nil, err
		}
		if err := m.Put(tile); err != nil {
			return nil, err
		}
		return tile, nil
	}
	logger.Debug("loading tile", zap.Any("index", idx), zap.Uint64("offset", fileOffset), zap.Uint64("byteCount", byteCount))
	if err := m.tileIO.Read(tile, fileOffset, byteCount); err != nil {
		return nil, err
	}
	encoded, err := tile.encodedData()
	if err != nil {
		return nil, err
	}
	meta := TileMeta{
		BitsPerSample:   m.bitsPerSample,
		SamplesPerPixel: m.tileChannelCount(),
		SizeX:           tile.SizeX,
		SizeY:           tile.SizeY,
		ByteOrder:       m.ifd.ByteOrder(),
		Photometric:     m.ifd.Photometric(),
	}
	decoded, err := m.codec.Decode(encoded, meta)
	if err != nil {
		tile.freeData()
		return nil, newTileErr(Format, idx, "decode: %v", err)
	}
	if err := tile.setDecodedData(decoded, false); err != nil {
		return nil, err
	}
	if tile.Interleaved {
		return nil, newTileErr(InvalidState, idx, "decoder returned interleaved data; engine requires separated tiles on read")
	}
	if err := m.cropStripToMap(tile); err != nil {
		return nil, err
	}
	expectedPixels := int64(tile.SizeX) * int64(tile.SizeY)
	if err := tile.changeNumberOfPixels(expectedPixels, true); err != nil {
		return nil, err
	}
	if err := m.Put(tile); err != nil {
		return nil, err
	}
	return tile, nil
}

// tileChannelCount is the number of channels stored within a single
// tile's buffer: all of them in chunky mode, one in separate mode.
func (m *Map) tileChannelCount() int32 {
	if m.numberOfSeparatedPlanes > 1 {
		return 1
	}
	return m.samplesPerPixel
}

func (m *Map) tileOffsetIndex(idx TileIndex) int {
	perPlane := int(m.gridCountX) * int(m.gridCountY)
	return int(idx.Plane)*perPlane + int(idx.GridY)*int(m.gridCountX) + int(idx.GridX)
}

func (m *Map) newTileForIndex(idx TileIndex) (*Tile, error) {
	sizeX, sizeY := m.tileSizeX, m.tileSizeY
	t, err := NewTile(idx, sizeX, sizeY, m.bitsPerSample, m.tileChannelCount())
	if err != nil {
		return nil, err
	}
	return t, nil
}

// LoadSamples assembles the user rectangle [fromX,fromY)+[sizeX,sizeY)
// into a freshly allocated planar buffer, per spec.md §4.4's read-path
// algorithm.
func (rm *ReadMap) LoadSamples(fromX, fromY, sizeX, sizeY int32) ([]byte, error) {
	if err := validateRect(fromX, fromY, sizeX, sizeY); err != nil {
		return nil, err
	}
	channels := rm.samplesPerPixel
	outLen := ceilDivBits(uint64(sizeX) * uint64(sizeY) * uint64(rm.bitsPerSample) * uint64(channels))
	out := make([]byte, outLen)
	if rm.options.ByteFiller != 0 {
		for i := range out {
			out[i] = rm.options.ByteFiller
		}
	}
	if sizeX == 0 || sizeY == 0 {
		return out, nil
	}

	toX, toY := fromX+sizeX, fromY+sizeY
	if rm.options.CropTilesToImageBoundaries {
		if toX > rm.dimX {
			toX = rm.dimX
		}
		if toY > rm.dimY {
			toY = rm.dimY
		}
	}
	if toX <= fromX || toY <= fromY {
		return out, nil
	}

	minXIdx := fromX / rm.tileSizeX
	maxXIdx := (toX - 1) / rm.tileSizeX
	minYIdx := fromY / rm.tileSizeY
	maxYIdx := (toY - 1) / rm.tileSizeY
	if minXIdx > maxXIdx || minYIdx > maxYIdx {
		return out, nil
	}

	for p := int32(0); p < rm.numberOfSeparatedPlanes; p++ {
		for yIdx := minYIdx; yIdx <= maxYIdx; yIdx++ {
			for xIdx := minXIdx; xIdx <= maxXIdx; xIdx++ {
				idx, err := NewTileIndex(rm.ifd, p, xIdx, yIdx, rm.tileSizeX, rm.tileSizeY)
				if err != nil {
					return nil, err
				}
				tile, err := rm.supplier.Get(idx)
				if err != nil {
					return nil, err
				}
				if tile == nil {
					continue
				}
				if tile.Interleaved {
					return nil, newTileErr(InvalidState, idx, "misbehaving decoder produced interleaved tile")
				}
				tileStartX := maxI32v(xIdx*rm.tileSizeX, fromX)
				tileStartY := maxI32v(yIdx*rm.tileSizeY, fromY)
				fromXInTile := tileStartX - xIdx*rm.tileSizeX
				fromYInTile := tileStartY - yIdx*rm.tileSizeY
				widthInTile := minI32v(toX-tileStartX, rm.tileSizeX-fromXInTile)
				widthInTile = minI32v(widthInTile, tile.SizeX-fromXInTile)
				heightInTile := minI32v(toY-tileStartY, rm.tileSizeY-fromYInTile)
				heightInTile = minI32v(heightInTile, tile.SizeY-fromYInTile)
				if widthInTile <= 0 || heightInTile <= 0 {
					continue
				}

				decoded, err := tile.decodedData()
				if err != nil {
					return nil, err
				}
				startChannel, endChannel := int32(0), rm.tileChannelCount()
				for s := startChannel; s < endChannel; s++ {
					outChannel := p + s
					partWidthBits := uint64(widthInTile) * uint64(rm.bitsPerSample)
					for i := int32(0); i < heightInTile; i++ {
						srcBit := tile.bitOffsetForSample(s, fromYInTile+i, fromXInTile)
						dstRow := tileStartY + i - fromY
						dstCol := tileStartX - fromX
						dstBit := rm.outputBitOffset(outLen, sizeX, sizeY, outChannel, dstRow, dstCol)
						CopyBits(out, dstBit, decoded, srcBit, partWidthBits)
					}
				}
			}
		}
	}

	if rm.options.AutoUnpackUnusualPrecisions {
		widened, _, err := rm.up.UnpackIfNecessary(out, rm.ifd.BitsPerSample()[0], rm.sampleType.IsFloat())
		if err != nil {
			return nil, err
		}
		out = widened
	}
	return out, nil
}

// outputBitOffset computes the bit offset of sample (channel,row,col)
// in the planar (RRR...GGG...BBB...) output buffer. 64-bit arithmetic
// throughout to avoid wraparound on large images (spec.md §4.4 step 6).
func (rm *ReadMap) outputBitOffset(_ uint64, sizeX, sizeY, channel, row, col int32) uint64 {
	planeStride := uint64(sizeX) * uint64(sizeY) * uint64(rm.bitsPerSample)
	rowStride := uint64(sizeX) * uint64(rm.bitsPerSample)
	return uint64(channel)*planeStride + uint64(row)*rowStride + uint64(col)*uint64(rm.bitsPerSample)
}
