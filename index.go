package tiffrw

import "fmt"

// TileIndex is the value identity of one tile: which IFD, which
// separated plane, and which cell of the tile grid. Two TileIndex
// values referring to different IFD instances are always distinct
// keys, even if the underlying IFDs describe identical geometry —
// identity is by IFD.ID(), never by content, matching the teacher's
// tile{ifd *IFD; x, y uint64} plus spec.md's identity-hash rule.
type TileIndex struct {
	ifdID uint64
	Plane int32
	GridX int32
	GridY int32

	FromX, FromY int32
	ToX, ToY     int32
}

// NewTileIndex builds a TileIndex and precomputes its pixel-space
// bounds, verifying the arithmetic fits in an int32 as spec.md §3
// requires.
func NewTileIndex(ifd IFD, plane, gridX, gridY, tileSizeX, tileSizeY int32) (TileIndex, error) {
	fromX := int64(gridX) * int64(tileSizeX)
	fromY := int64(gridY) * int64(tileSizeY)
	toX := fromX + int64(tileSizeX)
	toY := fromY + int64(tileSizeY)
	if fromX < 0 || fromY < 0 || toX > maxI32 || toY > maxI32 {
		return TileIndex{}, newErr(OutOfBounds, "tile (%d,%d) pixel bounds overflow i32", gridX, gridY)
	}
	return TileIndex{
		ifdID: ifd.ID(),
		Plane: plane,
		GridX: gridX,
		GridY: gridY,
		FromX: int32(fromX),
		FromY: int32(fromY),
		ToX:   int32(toX),
		ToY:   int32(toY),
	}, nil
}

const maxI32 = int64(1)<<31 - 1

func (t TileIndex) String() string {
	return fmt.Sprintf("{ifd:%d plane:%d x:%d y:%d}", t.ifdID, t.Plane, t.GridX, t.GridY)
}

// Equal is structural equality, matching spec.md's equality rule:
// same IFD identity, same plane, same grid cell.
func (t TileIndex) Equal(o TileIndex) bool {
	return t.ifdID == o.ifdID && t.Plane == o.Plane && t.GridX == o.GridX && t.GridY == o.GridY
}
