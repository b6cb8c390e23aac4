package tiffrw

// Rect is a half-open axis-aligned rectangle in some local coordinate
// space: [MinX,MaxX) x [MinY,MaxY).
type Rect struct {
	MinX, MinY, MaxX, MaxY int32
}

func NewRect(x, y, w, h int32) Rect {
	return Rect{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}

func (r Rect) Empty() bool { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }

func (r Rect) Width() int32  { return r.MaxX - r.MinX }
func (r Rect) Height() int32 { return r.MaxY - r.MinY }

func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		MinX: maxI32v(r.MinX, o.MinX),
		MinY: maxI32v(r.MinY, o.MinY),
		MaxX: minI32v(r.MaxX, o.MaxX),
		MaxY: minI32v(r.MaxY, o.MaxY),
	}
	return out
}

func maxI32v(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
func minI32v(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// subtract returns the 0-4 rectangles that remain of r once o has
// been removed from it. If r and o don't overlap, r is returned
// unchanged as a single piece.
func (r Rect) subtract(o Rect) []Rect {
	o = r.Intersect(o)
	if o.Empty() {
		return []Rect{r}
	}
	var out []Rect
	// top strip
	if o.MinY > r.MinY {
		out = append(out, Rect{r.MinX, r.MinY, r.MaxX, o.MinY})
	}
	// bottom strip
	if o.MaxY < r.MaxY {
		out = append(out, Rect{r.MinX, o.MaxY, r.MaxX, r.MaxY})
	}
	// left strip (within the overlapping rows only)
	if o.MinX > r.MinX {
		out = append(out, Rect{r.MinX, o.MinY, o.MinX, o.MaxY})
	}
	// right strip (within the overlapping rows only)
	if o.MaxX < r.MaxX {
		out = append(out, Rect{o.MaxX, o.MinY, r.MaxX, o.MaxY})
	}
	return out
}

// UnsetArea tracks the regions of a tile that have not yet received
// new data during a partial write, as a small queue of disjoint
// rectangles. Queue size is O(#partial updates); subtraction is
// O(queue size) rectangles produced per call, which is acceptable
// since writes are coarse-grained (spec.md §9).
type UnsetArea struct {
	rects []Rect
}

// NewUnsetArea seeds the queue with the tile's full actual rectangle.
func NewUnsetArea(full Rect) *UnsetArea {
	if full.Empty() {
		return &UnsetArea{}
	}
	return &UnsetArea{rects: []Rect{full}}
}

// MarkSet removes r from every tracked rectangle.
func (u *UnsetArea) MarkSet(r Rect) {
	if r.Empty() || len(u.rects) == 0 {
		return
	}
	next := make([]Rect, 0, len(u.rects))
	for _, existing := range u.rects {
		next = append(next, existing.subtract(r)...)
	}
	u.rects = next
}

// IsCompleted reports whether the tracked area has shrunk to nothing,
// i.e. every pixel of the tile has received new data.
func (u *UnsetArea) IsCompleted() bool { return len(u.rects) == 0 }

// Rects returns the current disjoint unset rectangles (read-only view).
func (u *UnsetArea) Rects() []Rect { return u.rects }
