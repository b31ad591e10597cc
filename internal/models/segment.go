package models

import (
	"fmt"
)

// ContentID identifies a piece of content the engine downloads. It is a closed set:
// only ContentIDMpd and ContentIDSegment implement it.
type ContentID interface {
	contentID()
	String() string
}

// ContentIDMpd identifies the manifest of the single title being played.
type ContentIDMpd struct{}

func (ContentIDMpd) contentID() {}

func (ContentIDMpd) String() string { return "mpd" }

// ContentIDSegment identifies one encoded media segment.
// This struct is used across the storage, contour and control packages as a map key,
// so it must stay a comparable value type.
type ContentIDSegment struct {
	// PeriodIndex is always 0 for single-period streams.
	PeriodIndex int64
	// AdaptationSetIndex is always 0 for single-adaptation-set streams.
	AdaptationSetIndex int64
	// BitRate is the bandwidth (bits/s) of the representation the segment was encoded at.
	BitRate int64
	// SegmentIndex is the zero-based position of the segment in the presentation.
	SegmentIndex int64
}

// InvalidSegmentID is the "none" sentinel.
var InvalidSegmentID = ContentIDSegment{-1, -1, -1, -1}

// NewSegmentID returns the id of segment index at the given bit-rate in period 0, adaptation set 0.
func NewSegmentID(bitRate, index int64) ContentIDSegment {
	return ContentIDSegment{BitRate: bitRate, SegmentIndex: index}
}

func (ContentIDSegment) contentID() {}

// Valid reports whether all four components are non-negative.
func (id ContentIDSegment) Valid() bool {
	return id.PeriodIndex >= 0 && id.AdaptationSetIndex >= 0 && id.BitRate >= 0 && id.SegmentIndex >= 0
}

// Compare orders ids lexicographically over (period, adaptation set, bit-rate, index).
// It returns -1, 0 or +1.
func (id ContentIDSegment) Compare(other ContentIDSegment) int {
	a := [4]int64{id.PeriodIndex, id.AdaptationSetIndex, id.BitRate, id.SegmentIndex}
	b := [4]int64{other.PeriodIndex, other.AdaptationSetIndex, other.BitRate, other.SegmentIndex}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether id sorts before other.
func (id ContentIDSegment) Less(other ContentIDSegment) bool {
	return id.Compare(other) < 0
}

// WithIndex returns a copy of id addressing another segment index of the same representation.
func (id ContentIDSegment) WithIndex(index int64) ContentIDSegment {
	id.SegmentIndex = index
	return id
}

func (id ContentIDSegment) String() string {
	if !id.Valid() {
		return "segment(invalid)"
	}
	return fmt.Sprintf("segment(p%d/a%d/%dbps/#%d)", id.PeriodIndex, id.AdaptationSetIndex, id.BitRate, id.SegmentIndex)
}
