package tiffrw

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsetAreaFreshIsNotCompleted(t *testing.T) {
	u := NewUnsetArea(NewRect(0, 0, 10, 10))
	assert.False(t, u.IsCompleted())
}

func TestUnsetAreaEmptyRectIsCompleted(t *testing.T) {
	u := NewUnsetArea(NewRect(0, 0, 0, 0))
	assert.True(t, u.IsCompleted())
}

func TestUnsetAreaMarkWholeRectCompletes(t *testing.T) {
	u := NewUnsetArea(NewRect(0, 0, 10, 10))
	u.MarkSet(NewRect(0, 0, 10, 10))
	assert.True(t, u.IsCompleted())
}

func TestUnsetAreaMarkDisjointSequenceCompletes(t *testing.T) {
	u := NewUnsetArea(NewRect(0, 0, 10, 10))
	// cover the tile in four quadrant writes, in an order that forces
	// the subtract algebra to split and re-split the tracked rectangles.
	u.MarkSet(NewRect(0, 0, 5, 5))
	assert.False(t, u.IsCompleted())
	u.MarkSet(NewRect(5, 0, 5, 5))
	u.MarkSet(NewRect(0, 5, 5, 5))
	u.MarkSet(NewRect(5, 5, 5, 5))
	assert.True(t, u.IsCompleted())
}

func TestUnsetAreaMarkOutsideRectIsNoOp(t *testing.T) {
	u := NewUnsetArea(NewRect(0, 0, 10, 10))
	u.MarkSet(NewRect(20, 20, 5, 5))
	assert.False(t, u.IsCompleted())
	assert.Len(t, u.Rects(), 1)
}

func TestUnsetAreaMarkCenterLeavesFourPieces(t *testing.T) {
	u := NewUnsetArea(NewRect(0, 0, 10, 10))
	u.MarkSet(NewRect(4, 4, 2, 2))
	assert.False(t, u.IsCompleted())
	total := int32(0)
	for _, r := range u.Rects() {
		total += r.Width() * r.Height()
	}
	assert.EqualValues(t, 100-4, total)
}

func TestRectSubtractNoOverlapReturnsSelf(t *testing.T) {
	r := NewRect(0, 0, 5, 5)
	o := NewRect(10, 10, 5, 5)
	out := r.subtract(o)
	assert.Len(t, out, 1)
	assert.Equal(t, r, out[0])
}
