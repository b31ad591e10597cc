package models

import (
	"fmt"
	"sort"
	"time"
)

// Representation is one entry of the bit-rate ladder offered by the manifest.
type Representation struct {
	// ID is the manifest's Representation@id.
	ID string
	// Bandwidth is the declared bit-rate in bits per second.
	Bandwidth int64
	Width     int
	Height    int
	// SegmentDuration is the nominal duration of one media segment.
	SegmentDuration time.Duration
}

// Resolution returns the spatial resolution of the representation.
func (r Representation) Resolution() Resolution {
	return Resolution{Width: r.Width, Height: r.Height}
}

// Resolution is a spatial resolution in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Pixels returns the pixel count used to order resolutions.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}

// Fits reports whether r is not larger than limit in either dimension.
func (r Resolution) Fits(limit Resolution) bool {
	return r.Width <= limit.Width && r.Height <= limit.Height
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// SortLadder orders representations ascending by bandwidth, the order the adaptation engine indexes into.
func SortLadder(reps []Representation) {
	sort.SliceStable(reps, func(i, j int) bool {
		return reps[i].Bandwidth < reps[j].Bandwidth
	})
}

// LadderIndex returns the position of the representation with the given bandwidth, or -1.
func LadderIndex(ladder []Representation, bandwidth int64) int {
	for i := range ladder {
		if ladder[i].Bandwidth == bandwidth {
			return i
		}
	}
	return -1
}
