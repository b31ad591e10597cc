package models

import "fmt"

// StreamPosition is an exact playback cursor: a byte offset inside one segment.
type StreamPosition struct {
	Segment ContentIDSegment
	Byte    int64
}

// InvalidPosition is returned when no data could be served.
var InvalidPosition = StreamPosition{Segment: InvalidSegmentID, Byte: -1}

// Valid reports whether the position addresses a real byte.
func (p StreamPosition) Valid() bool {
	return p.Segment.Valid() && p.Byte >= 0
}

func (p StreamPosition) String() string {
	if !p.Valid() {
		return "position(invalid)"
	}
	return fmt.Sprintf("%s@%d", p.Segment, p.Byte)
}
