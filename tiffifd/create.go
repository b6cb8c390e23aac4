package tiffifd

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/airbusgeo/tiffrw"
)

// Geometry describes a brand-new TIFF's directory before any tile
// data exists. CreateFileIFD writes a skeleton header+IFD reserving
// space for exactly gridCountX*gridCountY*planes offset/byteCount
// entries, all zeroed, then hands back a FileIFD whose
// UpdateDataPositioning/CachedOffsets behave exactly like one opened
// over an existing file — unifying the "patch an existing directory"
// code path for both random-access updates and freshly created files.
type Geometry struct {
	DimX, DimY           int32
	TileSizeX, TileSizeY int32
	Tiling               tiffrw.TilingMode
	BitsPerSample        []uint16
	SampleFormat         uint16
	SamplesPerPixel      int32
	PlanarSeparated      bool
	Photometric          uint16
	Compression          uint16
	GridCountX, GridCountY int32
	BigTIFF              bool
	LittleEndian         bool
}

// CreateFileIFD bootstraps path with a single-IFD TIFF/BigTIFF header
// sized for g, then reopens it through the same raw scan OpenFileIFD
// uses so later writes patch rather than rewrite the directory.
func CreateFileIFD(path string, g Geometry) (*FileIFD, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tiffifd: create %s: %w", path, err)
	}
	order := binary.ByteOrder(binary.BigEndian)
	if g.LittleEndian {
		order = binary.LittleEndian
	}
	planes := int32(1)
	if g.PlanarSeparated {
		planes = g.SamplesPerPixel
	}
	total := int(g.GridCountX) * int(g.GridCountY) * int(planes)

	w := &skeletonWriter{order: order, bigtiff: g.BigTIFF}
	if err := w.write(file, g, total); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	skeletonSize := uint64(info.Size())
	if err := file.Close(); err != nil {
		return nil, err
	}
	f, err := OpenFileIFD(path, 0)
	if err != nil {
		return nil, err
	}
	f.SetFileOffsetForWriting(skeletonSize)
	return f, nil
}

// skeletonWriter serializes exactly one IFD with hand-rolled binary
// encoding, the same way the teacher's cog.go/field.go build a COG
// from scratch (writeHeader/writeField/writeArray), narrowed to the
// single tags set the engine actually needs and with all striles
// zeroed pending real tile data.
type skeletonWriter struct {
	order   binary.ByteOrder
	bigtiff bool
}

func (w *skeletonWriter) write(f *os.File, g Geometry, total int) error {
	if err := w.writeHeader(f); err != nil {
		return err
	}

	type tagval struct {
		tag uint16
		typ uint16
		val interface{}
	}
	bps16 := g.BitsPerSample
	offs := make([]uint64, total)
	counts := make([]uint64, total)

	tileW, tileL := uint16(0), uint16(0)
	offsTag, countsTag := uint16(tagStripOffsets), uint16(tagStripByteCounts)
	if g.Tiling == tiffrw.TileGrid {
		tileW, tileL = uint16(g.TileSizeX), uint16(g.TileSizeY)
		offsTag, countsTag = tagTileOffsets, tagTileByteCounts
	}
	offsCountType := uint16(typeLong)
	if g.BigTIFF {
		offsCountType = typeLong8
	}

	fields := []tagval{
		{tagImageWidth, typeLong, uint32(g.DimX)},
		{tagImageLength, typeLong, uint32(g.DimY)},
		{tagBitsPerSample, typeShort, bps16},
		{tagCompression, typeShort, uint16(g.Compression)},
		{tagPhotometric, typeShort, uint16(g.Photometric)},
		{tagSamplesPerPixel, typeShort, uint16(g.SamplesPerPixel)},
	}
	if g.PlanarSeparated {
		fields = append(fields, tagval{tagPlanarConfig, typeShort, uint16(2)})
	} else {
		fields = append(fields, tagval{tagPlanarConfig, typeShort, uint16(1)})
	}
	if g.Tiling == tiffrw.TileGrid {
		fields = append(fields,
			tagval{tagTileWidth, typeShort, tileW},
			tagval{tagTileLength, typeShort, tileL},
		)
	} else {
		fields = append(fields, tagval{tagRowsPerStrip, typeLong, uint32(g.TileSizeY)})
	}
	fields = append(fields,
		tagval{offsTag, offsCountType, offs},
		tagval{countsTag, offsCountType, counts},
		tagval{tagSampleFormat, typeShort, []uint16{g.SampleFormat}},
	)

	// valueOffset is where an entry's value/offset sub-field starts:
	// after tag(2)+type(2)+count(4 classic, 8 bigtiff).
	entrySize, countWidth, valueWidth, valueOffset := 12, 2, 4, 8
	if w.bigtiff {
		entrySize, countWidth, valueWidth, valueOffset = 20, 8, 8, 12
	}
	ifdStart := int64(8)
	if w.bigtiff {
		ifdStart = 16
	}
	dirSize := int64(countWidth) + int64(len(fields))*int64(entrySize) + int64(valueWidth) // +next-ifd pointer
	overflowStart := ifdStart + dirSize

	if err := writeDirCount(f, w.order, w.bigtiff, ifdStart, len(fields)); err != nil {
		return err
	}

	entryAt := ifdStart + int64(countWidth)
	overflow := overflowStart
	for _, fld := range fields {
		n, _ := arrayLen(fld.val)
		width := entryValueWidth(fld.typ)
		occupied := int64(n) * int64(width)
		var valueAt int64
		if occupied <= int64(valueWidth) {
			valueAt = entryAt + int64(valueOffset)
			if err := writeEntryHeader(f, w.order, w.bigtiff, entryAt, fld.tag, fld.typ, uint64(n)); err != nil {
				return err
			}
			if err := writeInlineValue(f, w.order, fld.typ, valueAt, fld.val); err != nil {
				return err
			}
		} else {
			if err := writeEntryHeader(f, w.order, w.bigtiff, entryAt, fld.tag, fld.typ, uint64(n)); err != nil {
				return err
			}
			ptr := entryAt + int64(valueOffset)
			if err := writeOffsetPointer(f, w.order, valueWidth, ptr, uint64(overflow)); err != nil {
				return err
			}
			if err := writeOverflowArray(f, w.order, fld.typ, overflow, fld.val); err != nil {
				return err
			}
			overflow += occupied
		}
		entryAt += int64(entrySize)
	}

	// next-IFD pointer: zero, this is the only directory.
	nextBuf := make([]byte, valueWidth)
	if _, err := f.WriteAt(nextBuf, entryAt); err != nil {
		return err
	}
	return nil
}

func (w *skeletonWriter) writeHeader(f *os.File) error {
	if w.bigtiff {
		buf := [16]byte{}
		if w.order == binary.ByteOrder(binary.LittleEndian) {
			copy(buf[0:], []byte("II"))
		} else {
			copy(buf[0:], []byte("MM"))
		}
		w.order.PutUint16(buf[2:], 43)
		w.order.PutUint16(buf[4:], 8)
		w.order.PutUint16(buf[6:], 0)
		w.order.PutUint64(buf[8:], 16)
		_, err := f.WriteAt(buf[:], 0)
		return err
	}
	buf := [8]byte{}
	if w.order == binary.ByteOrder(binary.LittleEndian) {
		copy(buf[0:], []byte("II"))
	} else {
		copy(buf[0:], []byte("MM"))
	}
	w.order.PutUint16(buf[2:], 42)
	w.order.PutUint32(buf[4:], 8)
	_, err := f.WriteAt(buf[:], 0)
	return err
}

func writeDirCount(f *os.File, order binary.ByteOrder, bigtiff bool, at int64, n int) error {
	if bigtiff {
		buf := make([]byte, 8)
		order.PutUint64(buf, uint64(n))
		_, err := f.WriteAt(buf, at)
		return err
	}
	buf := make([]byte, 2)
	order.PutUint16(buf, uint16(n))
	_, err := f.WriteAt(buf, at)
	return err
}

func writeEntryHeader(f *os.File, order binary.ByteOrder, bigtiff bool, at int64, tag, typ uint16, count uint64) error {
	buf := make([]byte, 4)
	order.PutUint16(buf[0:2], tag)
	order.PutUint16(buf[2:4], typ)
	if _, err := f.WriteAt(buf, at); err != nil {
		return err
	}
	cbuf := make([]byte, 4)
	cwidth := 4
	if bigtiff {
		cbuf = make([]byte, 8)
		cwidth = 8
	}
	putOffsetField(order, cbuf, cwidth, count)
	_, err := f.WriteAt(cbuf, at+4)
	return err
}

func arrayLen(v interface{}) (int, bool) {
	switch d := v.(type) {
	case []uint16:
		return len(d), true
	case []uint64:
		return len(d), true
	default:
		return 1, false
	}
}

func writeInlineValue(f *os.File, order binary.ByteOrder, typ uint16, at int64, v interface{}) error {
	switch d := v.(type) {
	case uint16:
		buf := make([]byte, entryValueWidth(typ))
		order.PutUint16(buf, d)
		_, err := f.WriteAt(buf, at)
		return err
	case uint32:
		buf := make([]byte, entryValueWidth(typ))
		order.PutUint32(buf, d)
		_, err := f.WriteAt(buf, at)
		return err
	case []uint16:
		buf := make([]byte, len(d)*2)
		for i, x := range d {
			order.PutUint16(buf[i*2:], x)
		}
		_, err := f.WriteAt(buf, at)
		return err
	case []uint64:
		buf := make([]byte, len(d)*entryValueWidth(typ))
		for i, x := range d {
			putUint(order, buf[i*entryValueWidth(typ):], typ, x)
		}
		_, err := f.WriteAt(buf, at)
		return err
	default:
		return fmt.Errorf("tiffifd: unsupported inline field type %T", v)
	}
}

func writeOverflowArray(f *os.File, order binary.ByteOrder, typ uint16, at int64, v interface{}) error {
	switch d := v.(type) {
	case []uint16:
		buf := make([]byte, len(d)*2)
		for i, x := range d {
			order.PutUint16(buf[i*2:], x)
		}
		_, err := f.WriteAt(buf, at)
		return err
	case []uint64:
		width := entryValueWidth(typ)
		buf := make([]byte, len(d)*width)
		for i, x := range d {
			putUint(order, buf[i*width:], typ, x)
		}
		_, err := f.WriteAt(buf, at)
		return err
	default:
		return fmt.Errorf("tiffifd: unsupported overflow field type %T", v)
	}
}

func writeOffsetPointer(f *os.File, order binary.ByteOrder, width int, at int64, v uint64) error {
	buf := make([]byte, width)
	putOffsetField(order, buf, width, v)
	_, err := f.WriteAt(buf, at)
	return err
}
