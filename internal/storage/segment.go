package storage

import (
	"dashplayer/internal/models"
	"fmt"
	"sort"
)

// span is a half-open byte range [from, to).
type span struct {
	from, to int64
}

// Segment owns the buffer of one encoded media segment and records which byte
// ranges of it have been received. Segment is not safe for concurrent use;
// SegmentStorage serializes access to it.
type Segment struct {
	id       models.ContentIDSegment
	size     int64 // -1 until known
	duration int64 // microseconds
	data     []byte
	// filled is sorted by from, non-overlapping and non-adjacent.
	filled []span
	nBytes int64
}

// NewSegment creates a segment of numBytes bytes lasting duration microseconds.
// numBytes may be -1 when the size is not known yet.
func NewSegment(id models.ContentIDSegment, numBytes, duration int64) *Segment {
	s := &Segment{id: id, size: -1, duration: duration}
	if numBytes >= 0 {
		s.size = numBytes
		s.data = make([]byte, numBytes)
	}
	return s
}

// ID returns the segment's identity.
func (s *Segment) ID() models.ContentIDSegment { return s.id }

// Size returns the total size in bytes, or -1 if still unknown.
func (s *Segment) Size() int64 { return s.size }

// Duration returns the total duration in microseconds.
func (s *Segment) Duration() int64 { return s.duration }

// BytesFilled returns how many distinct bytes have been written.
func (s *Segment) BytesFilled() int64 { return s.nBytes }

// SetSize resolves an unknown size. It fails if the size was already set.
func (s *Segment) SetSize(numBytes int64) error {
	if s.size >= 0 {
		return fmt.Errorf("%w: size of %s already set to %d", ErrSizeKnown, s.id, s.size)
	}
	if numBytes < 0 {
		return fmt.Errorf("%w: negative size %d for %s", ErrOutOfRange, numBytes, s.id)
	}
	s.size = numBytes
	s.data = make([]byte, numBytes)
	return nil
}

// SetData writes src into the inclusive range [byteFrom, byteTo]. Writing over
// bytes that are already present fails unless overwrite is set.
func (s *Segment) SetData(byteFrom, byteTo int64, src []byte, overwrite bool) error {
	if s.size < 0 {
		return fmt.Errorf("%w: %s", ErrSizeUnknown, s.id)
	}
	if byteFrom < 0 || byteTo < byteFrom || byteTo >= s.size {
		return fmt.Errorf("%w: [%d,%d] outside [0,%d) of %s", ErrOutOfRange, byteFrom, byteTo, s.size, s.id)
	}
	n := byteTo - byteFrom + 1
	if int64(len(src)) < n {
		return fmt.Errorf("%w: %d source bytes for a %d byte range of %s", ErrOutOfRange, len(src), n, s.id)
	}
	if !overwrite && s.overlaps(byteFrom, byteTo+1) {
		return fmt.Errorf("%w: [%d,%d] of %s", ErrOverwrite, byteFrom, byteTo, s.id)
	}

	copy(s.data[byteFrom:byteTo+1], src[:n])
	s.mark(byteFrom, byteTo+1)
	return nil
}

// GetData copies the contiguous run starting at offset into dst, stopping at
// the first gap or when dst is full. usec is bytes*duration/size.
func (s *Segment) GetData(offset int64, dst []byte) (bytes, usec int64) {
	_, run := s.ContigInterval(offset)
	if run == 0 {
		return 0, 0
	}
	if run > int64(len(dst)) {
		run = int64(len(dst))
	}
	copy(dst[:run], s.data[offset:offset+run])
	return run, s.usecFor(run)
}

// ContigInterval returns the length of the occupied run that begins exactly at offset.
func (s *Segment) ContigInterval(offset int64) (usec, bytes int64) {
	if offset < 0 || offset >= s.size {
		return 0, 0
	}
	i := s.spanAt(offset)
	if i < 0 {
		return 0, 0
	}
	bytes = s.filled[i].to - offset
	return s.usecFor(bytes), bytes
}

// Completed reports whether every byte of the segment has been written.
func (s *Segment) Completed() bool {
	return s.size >= 0 && s.nBytes == s.size
}

// HasData reports whether byte byteNr has been written.
func (s *Segment) HasData(byteNr int64) bool {
	if byteNr < 0 || byteNr >= s.size {
		return false
	}
	return s.spanAt(byteNr) >= 0
}

// usecFor maps a byte count to a duration proportionally, truncating.
func (s *Segment) usecFor(bytes int64) int64 {
	if s.size <= 0 {
		return 0
	}
	return bytes * s.duration / s.size
}

// spanAt returns the index of the span containing b, or -1.
func (s *Segment) spanAt(b int64) int {
	i := sort.Search(len(s.filled), func(i int) bool { return s.filled[i].to > b })
	if i < len(s.filled) && s.filled[i].from <= b {
		return i
	}
	return -1
}

func (s *Segment) overlaps(from, to int64) bool {
	i := sort.Search(len(s.filled), func(i int) bool { return s.filled[i].to > from })
	return i < len(s.filled) && s.filled[i].from < to
}

// mark records [from, to) as occupied, merging touching and overlapping spans.
func (s *Segment) mark(from, to int64) {
	// first span that ends at or after from (touching counts)
	lo := sort.Search(len(s.filled), func(i int) bool { return s.filled[i].to >= from })
	hi := lo
	merged := span{from, to}
	for hi < len(s.filled) && s.filled[hi].from <= to {
		if s.filled[hi].from < merged.from {
			merged.from = s.filled[hi].from
		}
		if s.filled[hi].to > merged.to {
			merged.to = s.filled[hi].to
		}
		s.nBytes -= s.filled[hi].to - s.filled[hi].from
		hi++
	}
	s.nBytes += merged.to - merged.from

	out := make([]span, 0, len(s.filled)-(hi-lo)+1)
	out = append(out, s.filled[:lo]...)
	out = append(out, merged)
	out = append(out, s.filled[hi:]...)
	s.filled = out
}
