package tiffrw

import "go.uber.org/zap"

// WriteMap specializes Map for writing: it accepts user rectangles,
// materializes or preloads the tiles they touch, flushes completed
// tiles to the file, and manages rewriting an existing IFD's tile
// directory.
type WriteMap struct {
	*Map
	ignoreOutsideImage bool
	touchedOrder       []TileIndex
}

// NewWriteMap builds a WriteMap. resizable must only be true for a
// brand-new (not loaded-from-file) IFD — spec.md §3 forbids mixing
// resizing with an existing on-disk tile directory.
func NewWriteMap(ifd IFD, codec Codec, tio *TileIO, opts MapOptions, resizable bool) (*WriteMap, error) {
	if resizable && ifd.IsLoadedFromFile() {
		return nil, newErr(Incompatible, "cannot resize a map built over an existing on-disk IFD")
	}
	m, err := NewMap(ifd, codec, tio, opts, resizable)
	if err != nil {
		return nil, err
	}
	return &WriteMap{Map: m}, nil
}

// IgnoreOutsideImage controls what happens when a write rectangle
// exceeds the image bounds on a non-resizable map: true clamps the
// rectangle to the image, false fails with OutOfBounds.
func (wm *WriteMap) IgnoreOutsideImage(v bool) { wm.ignoreOutsideImage = v }

// UpdateSampleBytes injects a user-supplied planar buffer into the
// tile grid, per spec.md §4.4's write-path algorithm. It returns the
// list of tiles touched by this call, in (plane,y,x) order, for the
// caller to flush in any order it chooses.
func (wm *WriteMap) UpdateSampleBytes(fromX, fromY, sizeX, sizeY int32, buf []byte) ([]*Tile, error) {
	if wm.options.AutoInterleaveSource {
		return nil, newErr(InvalidState, "interleaved source input is not supported; AUTO_INTERLEAVE_SOURCE is kept false per spec open question (see DESIGN.md)")
	}
	if err := validateRect(fromX, fromY, sizeX, sizeY); err != nil {
		return nil, err
	}
	if sizeX == 0 || sizeY == 0 {
		return nil, nil
	}

	toX, toY := fromX+sizeX, fromY+sizeY
	if toX > wm.dimX || toY > wm.dimY {
		switch {
		case wm.resizable:
			if err := wm.expandDimensions(toX, toY); err != nil {
				return nil, err
			}
		case wm.ignoreOutsideImage:
			if toX > wm.dimX {
				toX = wm.dimX
			}
			if toY > wm.dimY {
				toY = wm.dimY
			}
		default:
			return nil, newErr(OutOfBounds, "write rectangle [%d,%d)x[%d,%d) exceeds image %dx%d", fromX, toX, fromY, toY, wm.dimX, wm.dimY)
		}
	}
	if toX <= fromX || toY <= fromY {
		return nil, nil
	}

	minXIdx := fromX / wm.tileSizeX
	maxXIdx := (toX - 1) / wm.tileSizeX
	minYIdx := fromY / wm.tileSizeY
	maxYIdx := (toY - 1) / wm.tileSizeY

	srcBuf := buf
	if wm.options.AutoUnpackUnusualPrecisions {
		expectBps := wm.ifd.BitsPerSample()[0]
		isFloat := wm.sampleType.IsFloat()
		narrowed, _, err := wm.up.PackIfNecessary(srcBuf, expectBps, isFloat)
		if err != nil {
			return nil, err
		}
		srcBuf = narrowed
	}

	var touched []*Tile
	channels := wm.tileChannelCount()

	for p := int32(0); p < wm.numberOfSeparatedPlanes; p++ {
		for yIdx := minYIdx; yIdx <= maxYIdx; yIdx++ {
			for xIdx := minXIdx; xIdx <= maxXIdx; xIdx++ {
				idx, err := NewTileIndex(wm.ifd, p, xIdx, yIdx, wm.tileSizeX, wm.tileSizeY)
				if err != nil {
					return nil, err
				}
				tile, ok := wm.tiles[idx]
				if !ok {
					tile, err = wm.newTileForIndex(idx)
					if err != nil {
						return nil, err
					}
					if err := wm.Put(tile); err != nil {
						return nil, err
					}
				}
				if tile.frozen {
					continue
				}
				if err := tile.fillWhenEmpty(wm.options.tileInitializerFunc()); err != nil {
					return nil, err
				}
				if err := wm.cropStripToMap(tile); err != nil {
					return nil, err
				}
				if err := tile.checkReadyForNewDecodedData(false); err != nil {
					return nil, err
				}

				tileStartX := maxI32v(xIdx*wm.tileSizeX, fromX)
				tileStartY := maxI32v(yIdx*wm.tileSizeY, fromY)
				fromXInTile := tileStartX - xIdx*wm.tileSizeX
				fromYInTile := tileStartY - yIdx*wm.tileSizeY
				widthInTile := minI32v(toX-tileStartX, wm.tileSizeX-fromXInTile)
				widthInTile = minI32v(widthInTile, tile.SizeX-fromXInTile)
				heightInTile := minI32v(toY-tileStartY, wm.tileSizeY-fromYInTile)
				heightInTile = minI32v(heightInTile, tile.SizeY-fromYInTile)
				if widthInTile <= 0 || heightInTile <= 0 {
					continue
				}

				decoded, err := tile.decodedData()
				if err != nil {
					return nil, err
				}
				for s := int32(0); s < channels; s++ {
					srcChannel := p + s
					partWidthBits := uint64(widthInTile) * uint64(wm.bitsPerSample)
					for i := int32(0); i < heightInTile; i++ {
						dstBit := tile.bitOffsetForSample(s, fromYInTile+i, fromXInTile)
						srcRow := tileStartY + i - fromY
						srcCol := tileStartX - fromX
						srcBit := wm.sourceBitOffset(sizeX, sizeY, srcChannel, srcRow, srcCol)
						CopyBits(decoded, dstBit, srcBuf, srcBit, partWidthBits)
					}
				}
				tile.markNewRectangleAsSet(fromXInTile, fromYInTile, widthInTile, heightInTile)
				touched = append(touched, tile)
			}
		}
	}
	wm.touchedOrder = append(wm.touchedOrder, tilesToIndexes(touched)...)
	return touched, nil
}

func (wm *WriteMap) sourceBitOffset(sizeX, sizeY, channel, row, col int32) uint64 {
	planeStride := uint64(sizeX) * uint64(sizeY) * uint64(wm.bitsPerSample)
	rowStride := uint64(sizeX) * uint64(wm.bitsPerSample)
	return uint64(channel)*planeStride + uint64(row)*rowStride + uint64(col)*uint64(wm.bitsPerSample)
}

func tilesToIndexes(tiles []*Tile) []TileIndex {
	out := make([]TileIndex, len(tiles))
	for i, t := range tiles {
		out[i] = t.Index
	}
	return out
}

// PreloadAndStore preloads, decodes, and attaches data for every tile
// whose actual rectangle intersects rect, so that subsequent partial
// writes only mutate a subset of each tile's pixels. When
// loadTilesFullyInsideRect is false, a tile entirely inside rect is
// instead marked unfrozen and left unloaded, since the forthcoming
// write will supply all of its pixels.
func (wm *WriteMap) PreloadAndStore(rect Rect, loadTilesFullyInsideRect bool) error {
	minXIdx := rect.MinX / wm.tileSizeX
	maxXIdx := (rect.MaxX - 1) / wm.tileSizeX
	minYIdx := rect.MinY / wm.tileSizeY
	maxYIdx := (rect.MaxY - 1) / wm.tileSizeY
	if rect.Empty() {
		return nil
	}
	for p := int32(0); p < wm.numberOfSeparatedPlanes; p++ {
		for yIdx := minYIdx; yIdx <= maxYIdx; yIdx++ {
			for xIdx := minXIdx; xIdx <= maxXIdx; xIdx++ {
				idx, err := NewTileIndex(wm.ifd, p, xIdx, yIdx, wm.tileSizeX, wm.tileSizeY)
				if err != nil {
					return err
				}
				tileRect := NewRect(idx.FromX, idx.FromY, wm.tileSizeX, wm.tileSizeY)
				fullyInside := rect.Intersect(tileRect) == tileRect
				if fullyInside && !loadTilesFullyInsideRect {
					if t, ok := wm.tiles[idx]; ok {
						t.frozen = false
					}
					continue
				}
				if _, ok := wm.tiles[idx]; ok {
					continue
				}
				if _, err := wm.loadAndDecode(idx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// CompleteWriting flushes every non-frozen tile that holds decoded
// data, whether or not all of its pixels were written, in
// (plane,y,x) order, then calls UpdateIFD.
func (wm *WriteMap) CompleteWriting() error {
	less := func(a, b TileIndex) bool {
		return a.Plane < b.Plane || a.Plane == b.Plane &&
			(a.GridY < b.GridY || a.GridY == b.GridY && a.GridX < b.GridX)
	}
	order := append([]TileIndex(nil), wm.order...)
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && less(order[j], order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	for _, idx := range order {
		tile := wm.tiles[idx]
		if tile.frozen || tile.isDisposed() {
			continue
		}
		if tile.isDecoded() {
			if err := wm.flushTile(tile); err != nil {
				return err
			}
		}
	}
	return wm.UpdateIFD()
}

// flushTile encodes a tile's decoded buffer and writes it to the
// file. The buffer is already at the IFD's aligned on-disk width:
// UpdateSampleBytes narrows any unusual-precision input down to that
// width before BitCopy ever touches a tile, so no repacking happens
// here.
func (wm *WriteMap) flushTile(tile *Tile) error {
	decoded, err := tile.decodedData()
	if err != nil {
		return err
	}
	meta := TileMeta{
		BitsPerSample:   wm.bitsPerSample,
		SamplesPerPixel: wm.tileChannelCount(),
		SizeX:           tile.SizeX,
		SizeY:           tile.SizeY,
		ByteOrder:       wm.ifd.ByteOrder(),
		Photometric:     wm.ifd.Photometric(),
	}
	encoded, err := wm.codec.Encode(decoded, meta)
	if err != nil {
		return newTileErr(Format, tile.Index, "encode: %v", err)
	}
	if err := tile.setEncodedData(encoded); err != nil {
		return err
	}
	if err := wm.tileIO.Write(tile, wm.options.AlwaysWriteToFileEnd); err != nil {
		return err
	}
	logger.Debug("flushed tile", zap.Any("index", tile.Index), zap.Uint64("offset", tile.StoredInFileDataOffset), zap.Uint64("length", tile.StoredInFileDataLength))
	tile.frozen = true
	return nil
}

// UpdateIFD walks the grid in (plane,y,x) order and writes each
// present, stored-in-file tile's offset/length back into the IFD's
// offsets/byteCounts arrays; tiles never touched keep their original
// offsets. The full arrays are then handed to the IFD's
// UpdateDataPositioning, which decides how to persist them.
func (wm *WriteMap) UpdateIFD() error {
	total := int(wm.gridCountX) * int(wm.gridCountY) * int(wm.numberOfSeparatedPlanes)
	offs := make([]uint64, total)
	counts := make([]uint64, total)
	copy(offs, wm.ifd.CachedOffsets())
	copy(counts, wm.ifd.CachedByteCounts())
	for p := int32(0); p < wm.numberOfSeparatedPlanes; p++ {
		for y := int32(0); y < wm.gridCountY; y++ {
			for x := int32(0); x < wm.gridCountX; x++ {
				idx, err := NewTileIndex(wm.ifd, p, x, y, wm.tileSizeX, wm.tileSizeY)
				if err != nil {
					return err
				}
				tile, ok := wm.tiles[idx]
				if !ok || tile.StoredInFileDataLength == 0 && tile.StoredInFileDataOffset == 0 {
					continue
				}
				k := wm.tileOffsetIndex(idx)
				if k < 0 || k >= len(offs) {
					return newTileErr(OutOfBounds, idx, "tile offset index %d outside table of length %d", k, len(offs))
				}
				offs[k] = tile.StoredInFileDataOffset
				counts[k] = tile.StoredInFileDataLength
			}
		}
	}
	return wm.ifd.UpdateDataPositioning(offs, counts)
}
