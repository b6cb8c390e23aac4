// Package tiffifd adapts github.com/google/tiff (and its bigtiff
// extension) into the narrow tiffrw.IFD collaborator interface.
//
// Reading and validating an Image File Directory is delegated to
// google/tiff, the same library the teacher package used for loading
// source TIFFs (see loader.go's loadIFD/sanityCheckIFD). Patching an
// existing directory's tile offset/byte-count arrays in place,
// however, needs byte-exact control google/tiff does not expose, so
// this package does its own lightweight directory scan for that one
// narrow purpose — the same division of labor the teacher itself
// used: google/tiff to parse, hand-rolled binary encoding (cog.go's
// writeField/writeArray) to write.
package tiffifd

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"

	"github.com/airbusgeo/tiffrw"
)

// TIFF tag numbers this adapter cares about.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripOffsets    = 273
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
)

// field type codes, matching the TIFF6/BigTIFF spec (and cog.go's
// TByte.. constants).
const (
	typeShort  = 3
	typeLong   = 4
	typeLong8  = 16
)

var nextID uint64

func allocateID() uint64 { return atomic.AddUint64(&nextID, 1) }

// tiffTags is the subset of baseline TIFF fields this adapter
// round-trips, populated via tiff.UnmarshalIFD the same way the
// teacher's loader.go populates its own ifd struct.
type tiffTags struct {
	ImageWidth          uint64   `tiff:"field,tag=256"`
	ImageLength         uint64   `tiff:"field,tag=257"`
	BitsPerSample       []uint16 `tiff:"field,tag=258"`
	Compression         uint16   `tiff:"field,tag=259"`
	Photometric         uint16   `tiff:"field,tag=262"`
	SamplesPerPixel     uint16   `tiff:"field,tag=277"`
	RowsPerStrip        uint64   `tiff:"field,tag=278"`
	StripOffsets        []uint64 `tiff:"field,tag=273"`
	StripByteCounts     []uint64 `tiff:"field,tag=279"`
	PlanarConfiguration uint16   `tiff:"field,tag=284"`
	TileWidth           uint16   `tiff:"field,tag=322"`
	TileLength          uint16   `tiff:"field,tag=323"`
	TileOffsets         []uint64 `tiff:"field,tag=324"`
	TileByteCounts      []uint64 `tiff:"field,tag=325"`
	SampleFormat        []uint16 `tiff:"field,tag=339"`
}

// rawEntry is one 12- or 20-byte IFD directory entry, with the file
// byte position of its value/offset sub-field recorded so a later
// patch can overwrite just that sub-field.
type rawEntry struct {
	tag          uint16
	typ          uint16
	count        uint64
	valueAt      uint64 // file offset of the value/offset sub-field
	valueWidth   int    // bytes available in that sub-field (4 classic, 8 bigtiff)
	inlineValue  bool   // value fits inside the sub-field itself
}

// FileIFD is the tiffrw.IFD adapter over one on-disk (or
// freshly-bootstrapped) IFD.
type FileIFD struct {
	id uint64

	file    *os.File
	order   binary.ByteOrder
	bigtiff bool

	ifdOffset uint64
	entries   map[uint16]rawEntry

	tags tiffTags

	tiling         tiffrw.TilingMode
	loadedFromFile bool

	fileOffsetForAppend uint64
}

// ID implements tiffrw.IFD.
func (f *FileIFD) ID() uint64 { return f.id }

func (f *FileIFD) ImageDimX() int32 { return int32(f.tags.ImageWidth) }
func (f *FileIFD) ImageDimY() int32 { return int32(f.tags.ImageLength) }

func (f *FileIFD) HasTileInformation() bool { return f.tiling == tiffrw.TileGrid }

func (f *FileIFD) TileSizeX() int32 {
	if f.tiling == tiffrw.TileGrid {
		return int32(f.tags.TileWidth)
	}
	return int32(f.tags.ImageWidth)
}

func (f *FileIFD) TileSizeY() int32 {
	if f.tiling == tiffrw.TileGrid {
		return int32(f.tags.TileLength)
	}
	return int32(f.tags.RowsPerStrip)
}

func (f *FileIFD) BitsPerSample() []uint32 {
	out := make([]uint32, len(f.tags.BitsPerSample))
	for i, b := range f.tags.BitsPerSample {
		out[i] = uint32(b)
	}
	return out
}

func (f *FileIFD) SampleFormat() uint16 {
	if len(f.tags.SampleFormat) == 0 {
		return 1 // unsigned integer, the TIFF6 default
	}
	return f.tags.SampleFormat[0]
}

func (f *FileIFD) SamplesPerPixel() int32 {
	if f.tags.SamplesPerPixel == 0 {
		return 1
	}
	return int32(f.tags.SamplesPerPixel)
}

func (f *FileIFD) ByteOrder() tiffrw.ByteOrder {
	if f.order == binary.BigEndian {
		return tiffrw.BigEndian
	}
	return tiffrw.LittleEndian
}

func (f *FileIFD) IsPlanarSeparated() bool { return f.tags.PlanarConfiguration == 2 }

func (f *FileIFD) Compression() uint16 { return f.tags.Compression }
func (f *FileIFD) Photometric() uint16 { return f.tags.Photometric }

func (f *FileIFD) CachedOffsets() []uint64 {
	if f.tiling == tiffrw.TileGrid {
		return f.tags.TileOffsets
	}
	return f.tags.StripOffsets
}

func (f *FileIFD) CachedByteCounts() []uint64 {
	if f.tiling == tiffrw.TileGrid {
		return f.tags.TileByteCounts
	}
	return f.tags.StripByteCounts
}

func (f *FileIFD) IsLoadedFromFile() bool { return f.loadedFromFile }

// SetFileOffsetForWriting records where newly appended tile data
// should start; CreateFileIFD calls this once after bootstrapping the
// skeleton directory.
func (f *FileIFD) SetFileOffsetForWriting(off uint64) { f.fileOffsetForAppend = off }

// FileOffsetForWriting returns the position SetFileOffsetForWriting
// last recorded (for a file made by CreateFileIFD, the end of its
// skeleton directory).
func (f *FileIFD) FileOffsetForWriting() uint64 { return f.fileOffsetForAppend }

func (f *FileIFD) offsetsTag() uint16 {
	if f.tiling == tiffrw.TileGrid {
		return tagTileOffsets
	}
	return tagStripOffsets
}

func (f *FileIFD) byteCountsTag() uint16 {
	if f.tiling == tiffrw.TileGrid {
		return tagTileByteCounts
	}
	return tagStripByteCounts
}

// UpdateDataPositioning patches the offsets/byteCounts arrays. When
// the new arrays are the same length as what's on disk, both are
// rewritten in place at their existing file location. A longer array
// (grid growth on a resizable map built over a bootstrapped skeleton)
// is appended at EOF and the two directory entries' value/offset
// sub-fields are repointed — the entries themselves stay put, only
// the payload moves, mirroring how cog.go's writeArray spills an
// over-sized array into its "overflow" area instead of growing the
// fixed-size directory entry.
func (f *FileIFD) UpdateDataPositioning(offsets, byteCounts []uint64) error {
	if len(offsets) != len(byteCounts) {
		return fmt.Errorf("tiffifd: offsets/byteCounts length mismatch %d/%d", len(offsets), len(byteCounts))
	}
	f.tags.TileOffsets, f.tags.StripOffsets = nil, nil
	f.tags.TileByteCounts, f.tags.StripByteCounts = nil, nil
	if f.tiling == tiffrw.TileGrid {
		f.tags.TileOffsets, f.tags.TileByteCounts = offsets, byteCounts
	} else {
		f.tags.StripOffsets, f.tags.StripByteCounts = offsets, byteCounts
	}
	if f.file == nil {
		return nil // pure in-memory IFD: only the cached arrays above are updated
	}
	if err := f.patchArray(f.offsetsTag(), offsets); err != nil {
		return err
	}
	if err := f.patchArray(f.byteCountsTag(), byteCounts); err != nil {
		return err
	}
	return nil
}

func (f *FileIFD) patchArray(tag uint16, values []uint64) error {
	entry, ok := f.entries[tag]
	if !ok {
		return fmt.Errorf("tiffifd: tag %d not present in directory", tag)
	}
	if uint64(len(values)) == entry.count {
		return f.rewritePayloadInPlace(entry, values)
	}
	return f.relocatePayload(tag, entry, values)
}

// rewritePayloadInPlace overwrites values into the array's current
// storage location (whether that's inline in the entry or out-of-line
// in the file), without moving anything.
func (f *FileIFD) rewritePayloadInPlace(entry rawEntry, values []uint64) error {
	width := entryValueWidth(entry.typ)
	buf := make([]byte, len(values)*width)
	for i, v := range values {
		putUint(f.order, buf[i*width:], entry.typ, v)
	}
	if entry.inlineValue {
		if len(buf) > entry.valueWidth {
			return fmt.Errorf("tiffifd: %d values overflow inline capacity %d bytes", len(values), entry.valueWidth)
		}
		padded := make([]byte, entry.valueWidth)
		copy(padded, buf)
		_, err := f.file.WriteAt(padded, int64(entry.valueAt))
		return err
	}
	offset, err := f.readValueOffset(entry)
	if err != nil {
		return err
	}
	_, err = f.file.WriteAt(buf, int64(offset))
	return err
}

// relocatePayload appends the new array past the current end of file
// and repoints the entry's value/offset sub-field at it.
func (f *FileIFD) relocatePayload(tag uint16, entry rawEntry, values []uint64) error {
	width := entryValueWidth(entry.typ)
	buf := make([]byte, len(values)*width)
	for i, v := range values {
		putUint(f.order, buf[i*width:], entry.typ, v)
	}
	info, err := f.file.Stat()
	if err != nil {
		return err
	}
	newOffset := uint64(info.Size())
	if _, err := f.file.WriteAt(buf, int64(newOffset)); err != nil {
		return err
	}
	ptr := make([]byte, entry.valueWidth)
	putOffsetField(f.order, ptr, entry.valueWidth, newOffset)
	if _, err := f.file.WriteAt(ptr, int64(entry.valueAt)); err != nil {
		return err
	}
	countBuf := make([]byte, entry.valueWidth)
	countAt := entry.valueAt - uint64(entry.valueWidth) // count sub-field immediately precedes value/offset
	putOffsetField(f.order, countBuf, entry.valueWidth, uint64(len(values)))
	if _, err := f.file.WriteAt(countBuf, int64(countAt)); err != nil {
		return err
	}
	entry.count = uint64(len(values))
	entry.inlineValue = false
	f.entries[tag] = entry
	return nil
}

func (f *FileIFD) readValueOffset(entry rawEntry) (uint64, error) {
	buf := make([]byte, entry.valueWidth)
	if _, err := f.file.ReadAt(buf, int64(entry.valueAt)); err != nil {
		return 0, err
	}
	if entry.valueWidth == 8 {
		return f.order.Uint64(buf), nil
	}
	return uint64(f.order.Uint32(buf)), nil
}

func entryValueWidth(typ uint16) int {
	switch typ {
	case typeShort:
		return 2
	case typeLong8:
		return 8
	default:
		return 4
	}
}

func putUint(order binary.ByteOrder, buf []byte, typ uint16, v uint64) {
	switch typ {
	case typeShort:
		order.PutUint16(buf, uint16(v))
	case typeLong8:
		order.PutUint64(buf, v)
	default:
		order.PutUint32(buf, uint32(v))
	}
}

func putOffsetField(order binary.ByteOrder, buf []byte, width int, v uint64) {
	if width == 8 {
		order.PutUint64(buf, v)
	} else {
		order.PutUint32(buf, uint32(v))
	}
}

// OpenFileIFD opens an existing TIFF/BigTIFF file, parses it with
// google/tiff (mirroring loader.go's loadIFD/sanityCheckIFD), then
// runs its own raw directory scan to learn the byte-exact position of
// the tile/strip offsets and byte-counts entries for later patching.
func OpenFileIFD(path string, ifdIndex int) (*FileIFD, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tiffifd: open %s: %w", path, err)
	}
	tif, err := tiff.Parse(file, nil, nil)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("tiffifd: parse %s: %w", path, err)
	}
	ifds := tif.IFDs()
	if ifdIndex < 0 || ifdIndex >= len(ifds) {
		file.Close()
		return nil, fmt.Errorf("tiffifd: ifd index %d out of range (have %d)", ifdIndex, len(ifds))
	}
	if err := sanityCheckIFD(ifds[ifdIndex]); err != nil {
		file.Close()
		return nil, fmt.Errorf("tiffifd: %w", err)
	}
	var tags tiffTags
	if err := tiff.UnmarshalIFD(ifds[ifdIndex], &tags); err != nil {
		file.Close()
		return nil, fmt.Errorf("tiffifd: unmarshal ifd: %w", err)
	}

	order, bigtiff, err := sniffHeader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	ifdOffset, err := nthIFDOffset(file, order, bigtiff, ifdIndex)
	if err != nil {
		file.Close()
		return nil, err
	}
	entries, err := scanDirectory(file, ifdOffset, bigtiff, order)
	if err != nil {
		file.Close()
		return nil, err
	}

	f := &FileIFD{
		id:             allocateID(),
		file:           file,
		order:          order,
		bigtiff:        bigtiff,
		ifdOffset:      ifdOffset,
		entries:        entries,
		tags:           tags,
		loadedFromFile: true,
	}
	if tags.TileWidth > 0 && tags.TileLength > 0 {
		f.tiling = tiffrw.TileGrid
	} else {
		f.tiling = tiffrw.Strips
	}
	return f, nil
}

// Close releases the underlying file handle.
func (f *FileIFD) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

func sanityCheckIFD(ifd tiff.IFD) error {
	to := ifd.GetField(tagTileOffsets)
	tl := ifd.GetField(tagTileByteCounts)
	so := ifd.GetField(tagStripOffsets)
	sl := ifd.GetField(tagStripByteCounts)
	if (to == nil) != (tl == nil) {
		return fmt.Errorf("inconsistent tile offset/byteCount tags")
	}
	if (so == nil) != (sl == nil) {
		return fmt.Errorf("inconsistent strip offset/byteCount tags")
	}
	if to == nil && so == nil {
		return fmt.Errorf("ifd has neither tiles nor strips")
	}
	if to != nil && so != nil {
		return fmt.Errorf("ifd declares both tiles and strips")
	}
	return nil
}

func sniffHeader(r io.ReaderAt) (binary.ByteOrder, bool, error) {
	var h [8]byte
	if _, err := r.ReadAt(h[:], 0); err != nil {
		return nil, false, fmt.Errorf("tiffifd: read header: %w", err)
	}
	var order binary.ByteOrder
	switch {
	case h[0] == 'I' && h[1] == 'I':
		order = binary.LittleEndian
	case h[0] == 'M' && h[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, false, fmt.Errorf("tiffifd: bad byte-order mark %q", h[0:2])
	}
	magic := order.Uint16(h[2:4])
	switch magic {
	case 42:
		return order, false, nil
	case 43:
		return order, true, nil
	default:
		return nil, false, fmt.Errorf("tiffifd: unrecognized magic %d", magic)
	}
}

func nthIFDOffset(r io.ReaderAt, order binary.ByteOrder, bigtiff bool, n int) (uint64, error) {
	var off uint64
	if bigtiff {
		var b [8]byte
		if _, err := r.ReadAt(b[:], 8); err != nil {
			return 0, err
		}
		off = order.Uint64(b[:])
	} else {
		var b [4]byte
		if _, err := r.ReadAt(b[:], 4); err != nil {
			return 0, err
		}
		off = uint64(order.Uint32(b[:]))
	}
	for i := 0; i < n; i++ {
		next, err := nextIFDOffset(r, order, bigtiff, off)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return 0, fmt.Errorf("tiffifd: only %d ifd(s) in file", i+1)
		}
		off = next
	}
	return off, nil
}

func nextIFDOffset(r io.ReaderAt, order binary.ByteOrder, bigtiff bool, ifdOffset uint64) (uint64, error) {
	entrySize, countWidth := 12, 2
	if bigtiff {
		entrySize, countWidth = 20, 8
	}
	cb := make([]byte, countWidth)
	if _, err := r.ReadAt(cb, int64(ifdOffset)); err != nil {
		return 0, err
	}
	var n uint64
	if bigtiff {
		n = order.Uint64(cb)
	} else {
		n = uint64(order.Uint16(cb))
	}
	nextAt := ifdOffset + uint64(countWidth) + n*uint64(entrySize)
	width := 4
	if bigtiff {
		width = 8
	}
	nb := make([]byte, width)
	if _, err := r.ReadAt(nb, int64(nextAt)); err != nil {
		return 0, err
	}
	if width == 8 {
		return order.Uint64(nb), nil
	}
	return uint64(order.Uint32(nb)), nil
}

// scanDirectory walks one IFD's entries and records, for every entry,
// the file position of its value/offset sub-field and whether that
// sub-field holds the value inline or points elsewhere.
func scanDirectory(r io.ReaderAt, ifdOffset uint64, bigtiff bool, order binary.ByteOrder) (map[uint16]rawEntry, error) {
	entrySize, countWidth, valueWidth := 12, 2, 4
	if bigtiff {
		entrySize, countWidth, valueWidth = 20, 8, 8
	}
	cb := make([]byte, countWidth)
	if _, err := r.ReadAt(cb, int64(ifdOffset)); err != nil {
		return nil, err
	}
	var n uint64
	if bigtiff {
		n = order.Uint64(cb)
	} else {
		n = uint64(order.Uint16(cb))
	}
	out := make(map[uint16]rawEntry, n)
	base := ifdOffset + uint64(countWidth)
	for i := uint64(0); i < n; i++ {
		entryAt := base + i*uint64(entrySize)
		eb := make([]byte, entrySize)
		if _, err := r.ReadAt(eb, int64(entryAt)); err != nil {
			return nil, err
		}
		tag := order.Uint16(eb[0:2])
		typ := order.Uint16(eb[2:4])
		var count uint64
		var valueAt uint64
		if bigtiff {
			count = order.Uint64(eb[4:12])
			valueAt = entryAt + 12
		} else {
			count = uint64(order.Uint32(eb[4:8]))
			valueAt = entryAt + 8
		}
		occupiedBytes := count * uint64(entryValueWidth(typ))
		inline := occupiedBytes <= uint64(valueWidth)
		out[tag] = rawEntry{
			tag:         tag,
			typ:         typ,
			count:       count,
			valueAt:     valueAt,
			valueWidth:  valueWidth,
			inlineValue: inline,
		}
	}
	return out, nil
}
