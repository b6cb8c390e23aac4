package tiffrw

import (
	"io"
	"sync/atomic"
)

var fakeIDCounter uint64

// fakeIFD is a minimal in-memory IFD double used across the package's
// tests; it never touches a file, storing offsets/byteCounts/geometry
// as plain fields so tests can assert on what UpdateDataPositioning
// was asked to write.
type fakeIFD struct {
	id uint64

	dimX, dimY           int32
	tileSizeX, tileSizeY int32
	hasTile              bool

	bps             []uint32
	sampleFormat    uint16
	samplesPerPixel int32
	byteOrder       ByteOrder
	planarSeparated bool
	compression     uint16
	photometric     uint16

	offsets, byteCounts []uint64
	loadedFromFile      bool
	fileOffsetWriting   uint64

	updates [][2][]uint64
}

func newFakeTiledIFD(dimX, dimY, tileSizeX, tileSizeY int32, bps uint32, samplesPerPixel int32, planarSeparated, loadedFromFile bool) *fakeIFD {
	f := &fakeIFD{
		id:              atomic.AddUint64(&fakeIDCounter, 1),
		dimX:            dimX,
		dimY:            dimY,
		tileSizeX:       tileSizeX,
		tileSizeY:       tileSizeY,
		hasTile:         true,
		bps:             repeatBps(bps, samplesPerPixel),
		samplesPerPixel: samplesPerPixel,
		planarSeparated: planarSeparated,
		loadedFromFile:  loadedFromFile,
	}
	if loadedFromFile {
		gx := ceilDivI32(dimX, tileSizeX)
		gy := ceilDivI32(dimY, tileSizeY)
		planes := int32(1)
		if planarSeparated {
			planes = samplesPerPixel
		}
		total := int(gx) * int(gy) * int(planes)
		f.offsets = make([]uint64, total)
		f.byteCounts = make([]uint64, total)
	}
	return f
}

func newFakeStrippedIFD(dimX, dimY, rowsPerStrip int32, bps uint32, samplesPerPixel int32, loadedFromFile bool) *fakeIFD {
	f := &fakeIFD{
		id:              atomic.AddUint64(&fakeIDCounter, 1),
		dimX:            dimX,
		dimY:            dimY,
		tileSizeX:       dimX,
		tileSizeY:       rowsPerStrip,
		hasTile:         false,
		bps:             repeatBps(bps, samplesPerPixel),
		samplesPerPixel: samplesPerPixel,
		loadedFromFile:  loadedFromFile,
	}
	if loadedFromFile {
		total := int(ceilDivI32(dimY, rowsPerStrip))
		f.offsets = make([]uint64, total)
		f.byteCounts = make([]uint64, total)
	}
	return f
}

// repeatBps returns one bitsPerSample entry per channel.
func repeatBps(bps uint32, samplesPerPixel int32) []uint32 {
	out := make([]uint32, samplesPerPixel)
	for i := range out {
		out[i] = bps
	}
	return out
}

func (f *fakeIFD) ImageDimX() int32              { return f.dimX }
func (f *fakeIFD) ImageDimY() int32               { return f.dimY }
func (f *fakeIFD) TileSizeX() int32                { return f.tileSizeX }
func (f *fakeIFD) TileSizeY() int32                { return f.tileSizeY }
func (f *fakeIFD) BitsPerSample() []uint32         { return f.bps }
func (f *fakeIFD) SampleFormat() uint16            { return f.sampleFormat }
func (f *fakeIFD) SamplesPerPixel() int32          { return f.samplesPerPixel }
func (f *fakeIFD) ByteOrder() ByteOrder            { return f.byteOrder }
func (f *fakeIFD) IsPlanarSeparated() bool         { return f.planarSeparated }
func (f *fakeIFD) HasTileInformation() bool        { return f.hasTile }
func (f *fakeIFD) Compression() uint16             { return f.compression }
func (f *fakeIFD) Photometric() uint16             { return f.photometric }
func (f *fakeIFD) CachedOffsets() []uint64         { return f.offsets }
func (f *fakeIFD) CachedByteCounts() []uint64      { return f.byteCounts }
func (f *fakeIFD) IsLoadedFromFile() bool          { return f.loadedFromFile }
func (f *fakeIFD) SetFileOffsetForWriting(v uint64) { f.fileOffsetWriting = v }
func (f *fakeIFD) ID() uint64                      { return f.id }

func (f *fakeIFD) UpdateDataPositioning(offsets, byteCounts []uint64) error {
	f.updates = append(f.updates, [2][]uint64{
		append([]uint64(nil), offsets...),
		append([]uint64(nil), byteCounts...),
	})
	f.offsets = offsets
	f.byteCounts = byteCounts
	return nil
}

// memSeekable is an in-memory Seekable, growing on write/SetLength the
// way a real file would on truncate/extend.
type memSeekable struct {
	buf []byte
	pos uint64
}

func (m *memSeekable) Seek(offset uint64) error {
	m.pos = offset
	return nil
}

func (m *memSeekable) Read(p []byte) (int, error) {
	if m.pos >= uint64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += uint64(n)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (m *memSeekable) Write(p []byte) (int, error) {
	end := m.pos + uint64(len(p))
	if end > uint64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += uint64(n)
	return n, nil
}

func (m *memSeekable) Length() (uint64, error) { return uint64(len(m.buf)), nil }

func (m *memSeekable) SetLength(n uint64) error {
	if n <= uint64(len(m.buf)) {
		m.buf = m.buf[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

// identityCodec passes decoded bytes through unchanged, so tests can
// exercise the tile/grid/bitcopy machinery without depending on any
// real compression scheme.
type identityCodec struct{}

func (identityCodec) Encode(decoded []byte, meta TileMeta) ([]byte, error) {
	return append([]byte(nil), decoded...), nil
}

func (identityCodec) Decode(encoded []byte, meta TileMeta) ([]byte, error) {
	return append([]byte(nil), encoded...), nil
}
