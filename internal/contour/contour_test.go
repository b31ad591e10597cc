package contour

import (
	"dashplayer/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContour_SequentialInsert(t *testing.T) {
	c := New()
	for i := int64(0); i < 4; i++ {
		require.NoError(t, c.SetNext(models.NewSegmentID(500000, i)))
	}
	assert.Equal(t, 4, c.Len())

	start, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, models.NewSegmentID(500000, 0), start)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, int64(3), last.SegmentIndex)
}

func TestContour_RejectsGap(t *testing.T) {
	c := New()
	require.NoError(t, c.SetNext(models.NewSegmentID(500000, 0)))

	err := c.SetNext(models.NewSegmentID(500000, 2))
	assert.ErrorIs(t, err, ErrSequenceGap)
	assert.ErrorIs(t, err, models.ErrProtocolViolation)
	assert.Equal(t, 1, c.Len())
}

func TestContour_RejectsDuplicate(t *testing.T) {
	c := New()
	require.NoError(t, c.SetNext(models.NewSegmentID(500000, 0)))
	require.NoError(t, c.SetNext(models.NewSegmentID(500000, 1)))

	assert.ErrorIs(t, c.SetNext(models.NewSegmentID(1000000, 1)), ErrDuplicateIndex)
	// index 0 gets no special treatment once the contour has started
	assert.ErrorIs(t, c.SetNext(models.NewSegmentID(1000000, 0)), ErrDuplicateIndex)
}

func TestContour_NextAndHasNext(t *testing.T) {
	c := New()
	seg0 := models.NewSegmentID(500000, 0)
	seg1 := models.NewSegmentID(2000000, 1)
	require.NoError(t, c.SetNext(seg0))
	require.NoError(t, c.SetNext(seg1))

	assert.True(t, c.HasNext(seg0))
	assert.False(t, c.HasNext(seg1))

	next, err := c.Next(seg0)
	require.NoError(t, err)
	assert.Equal(t, seg1, next)

	next, err = c.Next(seg1)
	require.NoError(t, err)
	assert.Equal(t, models.InvalidSegmentID, next)

	_, err = c.Next(models.NewSegmentID(1000000, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	succ, ok := c.Successor(seg0)
	assert.True(t, ok)
	assert.Equal(t, seg1, succ)
	_, ok = c.Successor(seg1)
	assert.False(t, ok)
}

func TestContour_NonZeroStart(t *testing.T) {
	c := New()
	require.NoError(t, c.SetNext(models.NewSegmentID(500000, 5)))
	require.NoError(t, c.SetNext(models.NewSegmentID(500000, 6)))

	start, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, int64(5), start.SegmentIndex)

	_, ok := c.At(4)
	assert.False(t, ok)
	got, ok := c.At(6)
	assert.True(t, ok)
	assert.Equal(t, int64(6), got.SegmentIndex)
}

func TestContour_EmptyStart(t *testing.T) {
	c := New()
	_, err := c.Start()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.ErrorIs(t, c.SetNext(models.InvalidSegmentID), models.ErrProtocolViolation)
}
