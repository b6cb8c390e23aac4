package tiffrw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioS1SingleTileRGB8Bit exercises spec.md S1: a single
// 256x256 chunky RGB tile, no compression, written solid red and read
// back whole.
func TestScenarioS1SingleTileRGB8Bit(t *testing.T) {
	ifd := newFakeTiledIFD(256, 256, 256, 256, 8, 3, false, false)
	mem := &memSeekable{buf: make([]byte, 1)}
	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	red := planarFill(256, 256, 8, []byte{0xFF, 0x00, 0x00})
	_, err = wm.UpdateSampleBytes(0, 0, 256, 256, red)
	require.NoError(t, err)
	require.NoError(t, wm.CompleteWriting())

	require.Len(t, ifd.updates, 1)
	offs, counts := ifd.updates[0][0], ifd.updates[0][1]
	require.Len(t, offs, 1)
	assert.EqualValues(t, 196608, counts[0], "3 * 256 * 256 bytes per tile")
	assert.NotZero(t, offs[0])

	ifd.loadedFromFile = true
	rm, err := NewReadMap(ifd, identityCodec{}, tio, MapOptions{})
	require.NoError(t, err)
	out, err := rm.LoadSamples(0, 0, 256, 256)
	require.NoError(t, err)
	assert.Len(t, out, 196608) // 3 * 256 * 256 bytes, planar: a 0xFF plane then two 0x00 planes
	assert.Equal(t, red, out)
}

// TestScenarioS2CrossTileSubRectangle exercises spec.md S2: a 512x512
// 16-bit gray image split into 4 tiles, a diagonal line y=x written
// against a zero background, then a cross-tile sub-rectangle read
// back and checked pixel by pixel.
func TestScenarioS2CrossTileSubRectangle(t *testing.T) {
	ifd := newFakeTiledIFD(512, 512, 256, 256, 16, 1, false, false)
	mem := &memSeekable{buf: make([]byte, 1)}
	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	// prime the whole image to zero background, one tile at a time.
	zeroTile := make([]byte, 256*256*2)
	for _, origin := range [][2]int32{{0, 0}, {256, 0}, {0, 256}, {256, 256}} {
		_, err := wm.UpdateSampleBytes(origin[0], origin[1], 256, 256, zeroTile)
		require.NoError(t, err)
	}

	// now draw the diagonal one pixel write at a time, each a 1x1
	// rectangle that lands in whichever of the four tiles holds that
	// pixel.
	white := []byte{0xFF, 0xFF}
	for i := int32(0); i < 512; i++ {
		_, err := wm.UpdateSampleBytes(i, i, 1, 1, white)
		require.NoError(t, err)
	}
	require.NoError(t, wm.CompleteWriting())

	ifd.loadedFromFile = true
	rm, err := NewReadMap(ifd, identityCodec{}, tio, MapOptions{})
	require.NoError(t, err)
	out, err := rm.LoadSamples(100, 100, 300, 300)
	require.NoError(t, err)

	for y := int32(0); y < 300; y++ {
		for x := int32(0); x < 300; x++ {
			off := (int(y)*300 + int(x)) * 2
			got := uint16(out[off]) | uint16(out[off+1])<<8
			if x == y {
				assert.Equal(t, uint16(0xFFFF), got, "diagonal pixel (%d,%d)", x+100, y+100)
			} else {
				assert.Zero(t, got, "off-diagonal pixel (%d,%d)", x+100, y+100)
			}
		}
	}
}

// TestScenarioS3StrippedBoundary exercises spec.md S3: a 100x300
// STRIPS image with rowsPerStrip=128, giving strips of height 128,
// 128, 44 — the last strip must read back correctly when its
// encoded form claims the nominal 128-row height.
func TestScenarioS3StrippedBoundary(t *testing.T) {
	ifd := newFakeStrippedIFD(100, 300, 128, 8, 1, false)
	mem := &memSeekable{buf: make([]byte, 1)}
	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	buf := make([]byte, 100*300)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	_, err = wm.UpdateSampleBytes(0, 0, 100, 300, buf)
	require.NoError(t, err)

	// the last strip's tile must have been cropped to height 44.
	lastIdx := testIndex(t, ifd, 0, 0, 2, 100, 128)
	lastTile, ok := wm.Get(lastIdx)
	require.True(t, ok)
	assert.EqualValues(t, 44, lastTile.SizeY)

	require.NoError(t, wm.CompleteWriting())

	ifd.loadedFromFile = true
	rm, err := NewReadMap(ifd, identityCodec{}, tio, MapOptions{})
	require.NoError(t, err)
	out, err := rm.LoadSamples(0, 0, 100, 300)
	require.NoError(t, err)
	assert.Equal(t, buf, out)
}

// TestScenarioS4OneBitMonochrome exercises spec.md S4: a 17x17 1-bit
// checkerboard in a single strip, confirming the packed-bit round
// trip including the partial final byte.
func TestScenarioS4OneBitMonochrome(t *testing.T) {
	ifd := newFakeStrippedIFD(17, 17, 17, 1, 1, false)
	mem := &memSeekable{buf: make([]byte, 1)}
	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	// build a packed checkerboard: bit (x+y)%2 per pixel, MSB-first.
	wantLen := (17*17 + 7) / 8
	require.Equal(t, 37, wantLen)
	buf := make([]byte, wantLen)
	for y := int32(0); y < 17; y++ {
		for x := int32(0); x < 17; x++ {
			if (x+y)%2 == 0 {
				bitIdx := uint64(y)*17 + uint64(x)
				buf[bitIdx/8] |= 1 << (7 - bitIdx%8)
			}
		}
	}

	_, err = wm.UpdateSampleBytes(0, 0, 17, 17, buf)
	require.NoError(t, err)
	require.NoError(t, wm.CompleteWriting())

	ifd.loadedFromFile = true
	rm, err := NewReadMap(ifd, identityCodec{}, tio, MapOptions{})
	require.NoError(t, err)
	out, err := rm.LoadSamples(0, 0, 17, 17)
	require.NoError(t, err)
	assert.Len(t, out, 37)
	assert.Equal(t, buf, out)
}

// TestScenarioS5InPlaceOverwrite exercises spec.md S5: overwriting a
// rectangle of an existing uncompressed RGB TIFF leaves pixels outside
// the rectangle byte-identical and the file length unchanged.
func TestScenarioS5InPlaceOverwrite(t *testing.T) {
	ifd := newFakeTiledIFD(1000, 1000, 1000, 1000, 8, 3, false, true)
	original := planarFill(1000, 1000, 8, []byte{0x10, 0x20, 0x30})
	mem := &memSeekable{buf: make([]byte, 1+len(original))}
	copy(mem.buf[1:], original)
	ifd.offsets = []uint64{1}
	ifd.byteCounts = []uint64{uint64(len(original))}

	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	rect := NewRect(50, 50, 200, 50) // (50,50)-(250,100)
	require.NoError(t, wm.PreloadAndStore(rect, false))
	green := planarFill(200, 50, 8, []byte{0x00, 0xFF, 0x00})
	_, err = wm.UpdateSampleBytes(50, 50, 200, 50, green)
	require.NoError(t, err)
	require.NoError(t, wm.CompleteWriting())

	fileLenAfter, err := mem.Length()
	require.NoError(t, err)
	assert.EqualValues(t, len(mem.buf), fileLenAfter)
	assert.Equal(t, 1+len(original), len(mem.buf), "file length must not change for a same-size in-place overwrite")

	rm, err := NewReadMap(ifd, identityCodec{}, tio, MapOptions{})
	require.NoError(t, err)
	whole, err := rm.LoadSamples(0, 0, 1000, 1000)
	require.NoError(t, err)

	rStride := 1000 * 1000
	for y := 0; y < 1000; y++ {
		for x := 0; x < 1000; x++ {
			inRect := x >= 50 && x < 250 && y >= 50 && y < 100
			r, g, b := whole[y*1000+x], whole[rStride+y*1000+x], whole[2*rStride+y*1000+x]
			if inRect {
				assert.EqualValues(t, 0x00, r)
				assert.EqualValues(t, 0xFF, g)
				assert.EqualValues(t, 0x00, b)
			} else {
				assert.EqualValues(t, 0x10, r)
				assert.EqualValues(t, 0x20, g)
				assert.EqualValues(t, 0x30, b)
			}
		}
	}
}

// TestScenarioS6LargeGridFarTileAppendRoundTrip is a scaled-down
// analog of spec.md S6 (a 70000x70000 BigTIFF would take gigabytes to
// hold in a unit test): on a 1600x1600 image (a 25x25 grid of 64x64
// tiles) a single far-off tile is written and appended to the file;
// every tile offset stays within the resulting file length, and the
// exact bytes written to that tile survive the round trip.
func TestScenarioS6LargeGridFarTileAppendRoundTrip(t *testing.T) {
	ifd := newFakeTiledIFD(25*64, 25*64, 64, 64, 8, 3, false, false)
	mem := &memSeekable{buf: make([]byte, 1)}
	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	target := planarFill(64, 64, 8, []byte{0x12, 0x34, 0x56})
	_, err = wm.UpdateSampleBytes(20*64, 20*64, 64, 64, target)
	require.NoError(t, err)
	require.NoError(t, wm.CompleteWriting())

	fileLen, err := mem.Length()
	require.NoError(t, err)
	require.Len(t, ifd.updates, 1)
	offs := ifd.updates[0][0]
	for _, o := range offs {
		assert.LessOrEqual(t, o, fileLen)
	}

	ifd.loadedFromFile = true
	rm, err := NewReadMap(ifd, identityCodec{}, tio, MapOptions{})
	require.NoError(t, err)
	out, err := rm.LoadSamples(20*64, 20*64, 64, 64)
	require.NoError(t, err)
	assert.Equal(t, target, out)
}

// TestScenarioS7UnusualPrecision20BitIntRoundTrip covers a 20-bit
// integer IFD end to end through both UpdateSampleBytes and
// LoadSamples: the caller's buffer is always native 32-bit lanes, but
// the tile grid, codec, and on-file byte count must reflect the
// aligned 24-bit (3-byte) on-disk width.
func TestScenarioS7UnusualPrecision20BitIntRoundTrip(t *testing.T) {
	ifd := newFakeTiledIFD(4, 4, 4, 4, 20, 1, false, false)
	mem := &memSeekable{buf: make([]byte, 1)}
	tio := NewTileIO(mem, false)
	wm, err := NewWriteMap(ifd, identityCodec{}, tio, DefaultMapOptions(), false)
	require.NoError(t, err)

	native := make([]byte, 16*4)
	for i := 0; i < 16; i++ {
		v := uint32(i * 1000) // well within 20 significant bits
		native[i*4] = byte(v)
		native[i*4+1] = byte(v >> 8)
		native[i*4+2] = byte(v >> 16)
		native[i*4+3] = byte(v >> 24)
	}

	_, err = wm.UpdateSampleBytes(0, 0, 4, 4, native)
	require.NoError(t, err)
	require.NoError(t, wm.CompleteWriting())

	require.Len(t, ifd.updates, 1)
	counts := ifd.updates[0][1]
	assert.EqualValues(t, 16*3, counts[0], "on-disk tile is packed at the aligned 24-bit width, not the native 32-bit lane")

	ifd.loadedFromFile = true
	rm, err := NewReadMap(ifd, identityCodec{}, tio, DefaultMapOptions())
	require.NoError(t, err)
	out, err := rm.LoadSamples(0, 0, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, native, out)
}
