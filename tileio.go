package tiffrw

import "io"

// maxClassicTiffOffset is the largest safe file offset in classic
// (non-BigTIFF) mode, leaving headroom for a trailing tag/pointer
// write, matching spec.md §6's require32BitFile guard.
const maxClassicTiffOffset = uint64(1)<<32 - 16

// TileIO performs seek/read and seek/write of opaque encoded tile
// bytes against a Seekable stream, and decides in-place-vs-append
// placement on write. It never interprets the bytes it moves; codec
// work is entirely the caller's (via Codec).
type TileIO struct {
	Stream       Seekable
	Require32Bit bool
}

func NewTileIO(s Seekable, require32Bit bool) *TileIO {
	return &TileIO{Stream: s, Require32Bit: require32Bit}
}

// Read seeks to fileOffset and reads exactly length bytes, attaching
// them to the tile as encoded data and recording the stored-in-file
// range (capacity starts out equal to length).
func (tio *TileIO) Read(t *Tile, fileOffset, length uint64) error {
	if fileOffset == 0 {
		return newTileErr(Format, t.Index, "tile block at file offset 0 is disallowed by TIFF")
	}
	if err := tio.Stream.Seek(fileOffset); err != nil {
		return newTileErr(IO, t.Index, "seek to %d: %v", fileOffset, err)
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(tio.Stream, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return newTileErr(IO, t.Index, "read %d bytes at %d: %v", length, fileOffset, err)
	}
	if uint64(n) < length {
		return newTileErr(Format, t.Index, "truncated tile: wanted %d bytes at %d, got %d", length, fileOffset, n)
	}
	if err := t.setEncodedData(buf); err != nil {
		return err
	}
	t.StoredInFileDataOffset = fileOffset
	t.StoredInFileDataLength = length
	t.StoredInFileDataCapacity = length
	return nil
}

// Write places a tile's current encoded bytes in the file. If
// alwaysAppend is false and the tile is already stored in the file,
// it first attempts an in-place overwrite: at EOF the block is
// rewritten and the file truncated to the new end; otherwise, if the
// new length fits within the previously reserved capacity, the block
// is overwritten in place and capacity is left unchanged so a future
// re-growth can reuse it. Otherwise the block is appended at the
// current end of file. This mirrors the teacher's computeImageryOffsets
// in-place-vs-append decision (cog.go), generalized from "always
// append when building a fresh COG" to "reuse a slot when rewriting
// an existing file".
func (tio *TileIO) Write(t *Tile, alwaysAppend bool) error {
	encoded, err := t.encodedData()
	if err != nil {
		return err
	}
	encodedLen := uint64(len(encoded))

	if !alwaysAppend && t.StoredInFileDataCapacity > 0 {
		fileLen, err := tio.Stream.Length()
		if err != nil {
			return newTileErr(IO, t.Index, "length: %v", err)
		}
		if t.StoredInFileDataOffset+t.StoredInFileDataLength == fileLen {
			if err := tio.writeAt(t.Index, t.StoredInFileDataOffset, encoded); err != nil {
				return err
			}
			if err := tio.Stream.SetLength(t.StoredInFileDataOffset + encodedLen); err != nil {
				return newTileErr(IO, t.Index, "truncate: %v", err)
			}
			t.StoredInFileDataLength = encodedLen
			t.StoredInFileDataCapacity = encodedLen
			return nil
		}
		if encodedLen <= t.StoredInFileDataCapacity {
			if err := tio.writeAt(t.Index, t.StoredInFileDataOffset, encoded); err != nil {
				return err
			}
			t.StoredInFileDataLength = encodedLen
			return nil
		}
	}

	fileEnd, err := tio.Stream.Length()
	if err != nil {
		return newTileErr(IO, t.Index, "length: %v", err)
	}
	if tio.Require32Bit && fileEnd+encodedLen > maxClassicTiffOffset {
		return newTileErr(TooLarge, t.Index, "append would cross classic-TIFF 4GiB boundary")
	}
	if fileEnd == 0 {
		fileEnd = 1 // TIFF disallows a block at offset 0
	}
	if err := tio.writeAt(t.Index, fileEnd, encoded); err != nil {
		return err
	}
	t.StoredInFileDataOffset = fileEnd
	t.StoredInFileDataLength = encodedLen
	t.StoredInFileDataCapacity = encodedLen
	return nil
}

func (tio *TileIO) writeAt(idx TileIndex, offset uint64, data []byte) error {
	if err := tio.Stream.Seek(offset); err != nil {
		return newTileErr(IO, idx, "seek to %d: %v", offset, err)
	}
	n, err := tio.Stream.Write(data)
	if err != nil {
		return newTileErr(IO, idx, "write %d bytes at %d: %v", len(data), offset, err)
	}
	if n != len(data) {
		return newTileErr(IO, idx, "short write at %d: wrote %d of %d", offset, n, len(data))
	}
	return nil
}
