package tiffrw

type dataState int

const (
	stateEmpty dataState = iota
	stateDecoded
	stateEncoded
	stateDisposed
)

// Tile is the per-tile container: encoded/decoded byte buffer, size,
// bit/sample layout, interleave flag, stored-in-file range and
// capacity, unset-region bookkeeping, and lifecycle flags. A Tile is
// owned exclusively by its containing Map; the back-reference to that
// Map is a non-owning lookup handle, never serialized or compared
// (see SPEC_FULL.md §9).
type Tile struct {
	Index TileIndex
	owner *Map // non-owning; never dereferenced for ownership decisions

	SizeX, SizeY    int32
	BitsPerSample   uint32
	SamplesPerPixel int32
	BitsPerPixel    uint64
	Interleaved     bool

	state dataState
	data  []byte

	unset *UnsetArea

	StoredInFileDataOffset   uint64
	StoredInFileDataLength   uint64
	StoredInFileDataCapacity uint64

	frozen bool
}

// NewTile allocates an empty tile with the given nominal geometry.
func NewTile(idx TileIndex, sizeX, sizeY int32, bitsPerSample uint32, samplesPerPixel int32) (*Tile, error) {
	t := &Tile{
		Index:           idx,
		SizeX:           sizeX,
		SizeY:           sizeY,
		BitsPerSample:   bitsPerSample,
		SamplesPerPixel: samplesPerPixel,
		state:           stateEmpty,
	}
	if err := t.setSizes(sizeX, sizeY); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tile) setBitsPerPixel() {
	t.BitsPerPixel = uint64(t.BitsPerSample) * uint64(t.SamplesPerPixel)
}

// setSizes validates ((sizeX+7)&~7) * sizeY * bitsPerPixel <= 2^31 and
// recomputes derived sizes.
func (t *Tile) setSizes(sizeX, sizeY int32) error {
	t.setBitsPerPixel()
	paddedX := uint64(sizeX+7) &^ 7
	total := paddedX * uint64(sizeY) * t.BitsPerPixel
	if total > uint64(1)<<31 {
		return newTileErr(TooLarge, t.Index, "tile %dx%d at %d bits/pixel exceeds 2^31 bits", sizeX, sizeY, t.BitsPerPixel)
	}
	t.SizeX, t.SizeY = sizeX, sizeY
	return nil
}

// actualRectangle is the tile's rectangle in tile-local coordinates.
func (t *Tile) actualRectangle() Rect {
	return NewRect(0, 0, t.SizeX, t.SizeY)
}

// cropStripToMap clamps SizeY to what remains of the map's image
// height below this tile's origin, for STRIPS tiling mode only; tiled
// mode is left untouched.
func (m *Map) cropStripToMap(t *Tile) error {
	if m.tiling != Strips {
		return nil
	}
	remaining := m.dimY - t.Index.FromY
	if remaining < 0 {
		remaining = 0
	}
	if remaining < t.SizeY {
		return t.setSizes(t.SizeX, remaining)
	}
	return nil
}

// rectangleInTile produces the absolute tile-local pixel rectangle for
// a local (x,y,w,h) sub-region, used by the unset-area algebra.
func (t *Tile) rectangleInTile(x, y, w, h int32) Rect {
	return NewRect(x, y, w, h)
}

// markNewRectangleAsSet subtracts the given rectangle from unsetArea.
func (t *Tile) markNewRectangleAsSet(x, y, w, h int32) {
	if t.unset == nil {
		return
	}
	t.unset.MarkSet(t.rectangleInTile(x, y, w, h))
}

func (t *Tile) isCompleted() bool {
	return t.unset == nil || t.unset.IsCompleted()
}

// decodedByteLength is ceil(sizeInPixels * bitsPerPixel / 8).
func (t *Tile) decodedByteLength() int {
	pixels := uint64(t.SizeX) * uint64(t.SizeY)
	bitsTotal := pixels * t.BitsPerPixel
	return int((bitsTotal + 7) / 8)
}

// fillWhenEmpty allocates a zero-filled (or initializer-filled)
// decoded buffer if the tile currently holds no data.
func (t *Tile) fillWhenEmpty(initializer func([]byte)) error {
	if t.state == stateDisposed {
		return newTileErr(InvalidState, t.Index, "tile is disposed")
	}
	if t.state != stateEmpty {
		return nil
	}
	buf := make([]byte, t.decodedByteLength())
	if initializer != nil {
		initializer(buf)
	}
	t.data = buf
	t.state = stateDecoded
	t.Interleaved = false
	t.unset = NewUnsetArea(t.actualRectangle())
	return nil
}

// checkReadyForNewDecodedData raises InvalidState if the tile
// currently holds encoded data or the interleaved flag disagrees with
// what the caller expects.
func (t *Tile) checkReadyForNewDecodedData(expectInterleaved bool) error {
	if t.state == stateDisposed {
		return newTileErr(InvalidState, t.Index, "tile is disposed")
	}
	if t.state == stateEncoded {
		return newTileErr(InvalidState, t.Index, "tile holds encoded data, not decoded")
	}
	if t.state == stateDecoded && t.Interleaved != expectInterleaved {
		return newTileErr(InvalidState, t.Index, "tile interleave flag mismatch: have=%v want=%v", t.Interleaved, expectInterleaved)
	}
	return nil
}

// setDecodedData transitions the tile to DECODED, verifying length
// alignment to whole pixels when bitsPerPixel >= 8.
func (t *Tile) setDecodedData(data []byte, interleaved bool) error {
	if t.state == stateDisposed {
		return newTileErr(InvalidState, t.Index, "tile is disposed")
	}
	if t.BitsPerPixel >= 8 {
		bytesPerPixel := t.BitsPerPixel / 8
		if bytesPerPixel > 0 && uint64(len(data))%bytesPerPixel != 0 {
			return newTileErr(Format, t.Index, "decoded length %d is not a multiple of %d bytes/pixel", len(data), bytesPerPixel)
		}
	}
	t.data = data
	t.state = stateDecoded
	t.Interleaved = interleaved
	if t.unset == nil {
		t.unset = NewUnsetArea(t.actualRectangle())
	}
	return nil
}

// setEncodedData transitions the tile to ENCODED, e.g. right after
// TileIO.Read.
func (t *Tile) setEncodedData(data []byte) error {
	if t.state == stateDisposed {
		return newTileErr(InvalidState, t.Index, "tile is disposed")
	}
	t.data = data
	t.state = stateEncoded
	return nil
}

// changeNumberOfPixels grows or (if allowShrink) shrinks the decoded
// buffer to exactly n pixels, used when a decoder returns fewer pixels
// than the nominal tile size (an uncropped last strip).
func (t *Tile) changeNumberOfPixels(n int64, allowShrink bool) error {
	if t.state != stateDecoded {
		return newTileErr(InvalidState, t.Index, "changeNumberOfPixels requires decoded data")
	}
	bytesPerPixel := t.BitsPerPixel
	wantBytes := int((uint64(n)*bytesPerPixel + 7) / 8)
	if wantBytes == len(t.data) {
		return nil
	}
	if wantBytes < len(t.data) {
		if !allowShrink {
			return newTileErr(InvalidState, t.Index, "decoded data longer than expected and shrink not allowed")
		}
		t.data = t.data[:wantBytes]
		return nil
	}
	grown := make([]byte, wantBytes)
	copy(grown, t.data)
	t.data = grown
	return nil
}

// interleaveSamples reshuffles RRR...GGG...BBB... into RGBRGB...;
// valid only when bitsPerSample is a multiple of 8.
func (t *Tile) interleaveSamples() error {
	return t.reshuffle(true)
}

// separateSamples reshuffles RGBRGB... into RRR...GGG...BBB....
func (t *Tile) separateSamples() error {
	return t.reshuffle(false)
}

func (t *Tile) reshuffle(toInterleaved bool) error {
	if t.state != stateDecoded {
		return newTileErr(InvalidState, t.Index, "reshuffle requires decoded data")
	}
	if t.BitsPerSample%8 != 0 {
		return newTileErr(Incompatible, t.Index, "reshuffle requires byte-aligned samples, got %d bits", t.BitsPerSample)
	}
	if t.Interleaved == toInterleaved {
		return nil
	}
	sampleBytes := int(t.BitsPerSample / 8)
	channels := int(t.SamplesPerPixel)
	pixels := int(t.SizeX) * int(t.SizeY)
	out := make([]byte, len(t.data))
	planeStride := pixels * sampleBytes
	pixelStride := channels * sampleBytes
	for p := 0; p < pixels; p++ {
		for c := 0; c < channels; c++ {
			var srcOff, dstOff int
			if toInterleaved {
				srcOff = c*planeStride + p*sampleBytes
				dstOff = p*pixelStride + c*sampleBytes
			} else {
				srcOff = p*pixelStride + c*sampleBytes
				dstOff = c*planeStride + p*sampleBytes
			}
			copy(out[dstOff:dstOff+sampleBytes], t.data[srcOff:srcOff+sampleBytes])
		}
	}
	t.data = out
	t.Interleaved = toInterleaved
	return nil
}

// copyData replicates another tile's data slot, optionally cloning
// the underlying buffer rather than sharing it.
func (t *Tile) copyData(other *Tile, clone bool) {
	t.state = other.state
	t.Interleaved = other.Interleaved
	if other.data == nil {
		t.data = nil
		return
	}
	if clone {
		t.data = append([]byte(nil), other.data...)
	} else {
		t.data = other.data
	}
}

// freeData drops the buffer but keeps storedInFile bookkeeping.
func (t *Tile) freeData() {
	if t.state == stateDisposed {
		return
	}
	t.data = nil
	t.state = stateEmpty
	t.unset = nil
}

// dispose is terminal: any subsequent read/write fails.
func (t *Tile) dispose() {
	t.data = nil
	t.state = stateDisposed
	t.unset = nil
}

func (t *Tile) isEmpty() bool    { return t.state == stateEmpty }
func (t *Tile) isDecoded() bool  { return t.state == stateDecoded }
func (t *Tile) isEncoded() bool  { return t.state == stateEncoded }
func (t *Tile) isDisposed() bool { return t.state == stateDisposed }

func (t *Tile) decodedData() ([]byte, error) {
	if t.state != stateDecoded {
		return nil, newTileErr(InvalidState, t.Index, "tile is not decoded (state=%d)", t.state)
	}
	return t.data, nil
}

func (t *Tile) encodedData() ([]byte, error) {
	if t.state != stateEncoded {
		return nil, newTileErr(InvalidState, t.Index, "tile is not encoded (state=%d)", t.state)
	}
	return t.data, nil
}

// bitOffsetForSample computes the bit offset, within a separated
// (RRR...GGG...BBB...) decoded tile buffer, of sample (channel, row,
// col). All arithmetic is 64-bit to avoid wraparound on large images.
func (t *Tile) bitOffsetForSample(channel int32, row, col int32) uint64 {
	planeStride := uint64(t.SizeX) * uint64(t.SizeY) * uint64(t.BitsPerSample)
	rowStride := uint64(t.SizeX) * uint64(t.BitsPerSample)
	return uint64(channel)*planeStride + uint64(row)*rowStride + uint64(col)*uint64(t.BitsPerSample)
}

// ceilDivBits converts a bit count to the minimal covering byte count.
func ceilDivBits(nBits uint64) uint64 {
	return (nBits + 7) / 8
}
