package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContentIDSegment_Compare(t *testing.T) {
	a := ContentIDSegment{0, 0, 500000, 3}
	b := ContentIDSegment{0, 0, 1000000, 0}
	c := ContentIDSegment{0, 0, 1000000, 1}

	assert.Equal(t, -1, a.Compare(b), "bit-rate dominates segment index")
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, b.Compare(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
}

func TestContentIDSegment_Valid(t *testing.T) {
	assert.True(t, NewSegmentID(500000, 0).Valid())
	assert.False(t, InvalidSegmentID.Valid())
	assert.False(t, ContentIDSegment{0, 0, 1, -1}.Valid())
	assert.Equal(t, "segment(invalid)", InvalidSegmentID.String())
	assert.Equal(t, "segment(p0/a0/500bps/#7)", NewSegmentID(500, 7).String())
}

func TestContentID_SumType(t *testing.T) {
	ids := []ContentID{ContentIDMpd{}, NewSegmentID(1, 2)}
	kinds := make([]string, 0, len(ids))
	for _, id := range ids {
		switch id.(type) {
		case ContentIDMpd:
			kinds = append(kinds, "mpd")
		case ContentIDSegment:
			kinds = append(kinds, "segment")
		}
	}
	assert.Equal(t, []string{"mpd", "segment"}, kinds)
}

func TestStreamPosition_Valid(t *testing.T) {
	assert.False(t, InvalidPosition.Valid())
	assert.True(t, StreamPosition{Segment: NewSegmentID(1, 0), Byte: 0}.Valid())
	assert.False(t, StreamPosition{Segment: NewSegmentID(1, 0), Byte: -1}.Valid())
}

func TestSortLadder(t *testing.T) {
	ladder := []Representation{
		{ID: "hi", Bandwidth: 2000000, SegmentDuration: 2 * time.Second},
		{ID: "lo", Bandwidth: 500000},
		{ID: "mid", Bandwidth: 1000000},
	}
	SortLadder(ladder)
	assert.Equal(t, "lo", ladder[0].ID)
	assert.Equal(t, "mid", ladder[1].ID)
	assert.Equal(t, "hi", ladder[2].ID)
	assert.Equal(t, 2, LadderIndex(ladder, 2000000))
	assert.Equal(t, -1, LadderIndex(ladder, 42))
}

func TestResolution(t *testing.T) {
	r := Resolution{Width: 1280, Height: 720}
	assert.True(t, r.Fits(Resolution{Width: 1920, Height: 1080}))
	assert.False(t, r.Fits(Resolution{Width: 640, Height: 360}))
	assert.Equal(t, "1280x720", r.String())
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("%w: dup", ErrProtocolViolation)))
	assert.True(t, IsFatal(fmt.Errorf("wrap: %w", ErrCorruption)))
	assert.False(t, IsFatal(errors.New("timeout")))
}
