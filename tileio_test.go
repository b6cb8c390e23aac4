package tiffrw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTile(t *testing.T) (*Tile, *fakeIFD) {
	t.Helper()
	ifd := newFakeTiledIFD(8, 8, 8, 8, 8, 1, false, true)
	idx := testIndex(t, ifd, 0, 0, 0, 8, 8)
	tile := mustTile(t, idx, 8, 8, 8, 1)
	return tile, ifd
}

func TestTileIOReadRejectsOffsetZero(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: make([]byte, 16)}
	tio := NewTileIO(mem, false)
	err := tio.Read(tile, 0, 8)
	assert.Error(t, err)
}

func TestTileIOReadAttachesEncodedData(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8}}
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Read(tile, 1, 8))
	data, err := tile.encodedData()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
	assert.EqualValues(t, 1, tile.StoredInFileDataOffset)
	assert.EqualValues(t, 8, tile.StoredInFileDataLength)
	assert.EqualValues(t, 8, tile.StoredInFileDataCapacity)
}

func TestTileIOReadRejectsTruncatedBlock(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: []byte{0, 1, 2, 3}}
	tio := NewTileIO(mem, false)
	err := tio.Read(tile, 1, 8)
	assert.Error(t, err)
}

func TestTileIOWriteAppendsAtEOFWhenNoPriorStorage(t *testing.T) {
	tile, _ := newTestTile(t)
	require.NoError(t, tile.setEncodedData([]byte{9, 9, 9}))
	mem := &memSeekable{buf: []byte{0xAA, 0xBB}}
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Write(tile, false))
	assert.EqualValues(t, 2, tile.StoredInFileDataOffset)
	assert.EqualValues(t, 3, tile.StoredInFileDataLength)
	assert.Equal(t, []byte{0xAA, 0xBB, 9, 9, 9}, mem.buf)
}

func TestTileIOWriteAppendsAvoidingOffsetZero(t *testing.T) {
	tile, _ := newTestTile(t)
	require.NoError(t, tile.setEncodedData([]byte{5, 6}))
	mem := &memSeekable{}
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Write(tile, false))
	assert.EqualValues(t, 1, tile.StoredInFileDataOffset)
	assert.Equal(t, []byte{0, 5, 6}, mem.buf)
}

func TestTileIOWriteGrowsInPlaceAtEOF(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: []byte{0, 1, 2, 3}}
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Read(tile, 1, 3))
	require.NoError(t, tile.setEncodedData([]byte{7, 7, 7, 7, 7})) // grows from 3 to 5 bytes
	require.NoError(t, tio.Write(tile, false))
	assert.EqualValues(t, 1, tile.StoredInFileDataOffset, "still at its original slot since it sat at EOF")
	assert.EqualValues(t, 5, tile.StoredInFileDataLength)
	assert.Equal(t, []byte{0, 7, 7, 7, 7, 7}, mem.buf)
}

func TestTileIOWriteReusesCapacityWhenShrinking(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: []byte{0, 1, 2, 3, 4, 5, 9, 9}} // tile block [1,6), then trailing data
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Read(tile, 1, 5))
	require.NoError(t, tile.setEncodedData([]byte{8, 8})) // smaller than original capacity of 5
	require.NoError(t, tio.Write(tile, false))
	assert.EqualValues(t, 1, tile.StoredInFileDataOffset)
	assert.EqualValues(t, 2, tile.StoredInFileDataLength)
	assert.EqualValues(t, 5, tile.StoredInFileDataCapacity, "capacity is preserved for future re-growth")
	assert.Equal(t, []byte{0, 8, 8, 3, 4, 5, 9, 9}, mem.buf)
}

func TestTileIOWriteAppendsWhenGrowingBeyondCapacityAndNotAtEOF(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: []byte{0, 1, 2, 3, 4, 5, 9, 9}}
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Read(tile, 1, 5))
	require.NoError(t, tile.setEncodedData([]byte{7, 7, 7, 7, 7, 7, 7})) // 7 bytes > capacity 5
	require.NoError(t, tio.Write(tile, false))
	assert.EqualValues(t, 8, tile.StoredInFileDataOffset, "relocated to EOF")
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 9, 9, 7, 7, 7, 7, 7, 7, 7}, mem.buf)
}

func TestTileIOWriteAlwaysAppendIgnoresExistingSlot(t *testing.T) {
	tile, _ := newTestTile(t)
	mem := &memSeekable{buf: []byte{0, 1, 2, 3, 4, 5}}
	tio := NewTileIO(mem, false)
	require.NoError(t, tio.Read(tile, 1, 4))
	require.NoError(t, tile.setEncodedData([]byte{9, 9}))
	require.NoError(t, tio.Write(tile, true))
	assert.EqualValues(t, 6, tile.StoredInFileDataOffset)
}

// fixedLengthSeekable reports a large Length() without backing it with
// an actually-allocated buffer, so the classic-TIFF boundary check can
// be exercised without a multi-gigabyte test allocation.
type fixedLengthSeekable struct {
	length uint64
}

func (f *fixedLengthSeekable) Seek(uint64) error        { return nil }
func (f *fixedLengthSeekable) Read([]byte) (int, error) { return 0, nil }
func (f *fixedLengthSeekable) Write(p []byte) (int, error) {
	f.length += uint64(len(p))
	return len(p), nil
}
func (f *fixedLengthSeekable) Length() (uint64, error)  { return f.length, nil }
func (f *fixedLengthSeekable) SetLength(n uint64) error { f.length = n; return nil }

func TestTileIORequire32BitRejectsOffsetsPastBoundary(t *testing.T) {
	tile, _ := newTestTile(t)
	require.NoError(t, tile.setEncodedData([]byte{1, 2, 3}))
	stream := &fixedLengthSeekable{length: maxClassicTiffOffset - 1}
	tio := NewTileIO(stream, true)
	err := tio.Write(tile, false)
	assert.Error(t, err)
}
