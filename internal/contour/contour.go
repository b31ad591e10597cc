package contour

import (
	"dashplayer/internal/models"
	"fmt"
	"sync"
)

var (
	ErrEmpty          = fmt.Errorf("%w: contour is empty", models.ErrProtocolViolation)
	ErrNotFound       = fmt.Errorf("%w: segment not in contour", models.ErrProtocolViolation)
	ErrDuplicateIndex = fmt.Errorf("%w: segment index already in contour", models.ErrProtocolViolation)
	ErrSequenceGap    = fmt.Errorf("%w: segment index does not follow the last one", models.ErrProtocolViolation)
)

// Contour records which representation was chosen for each segment index.
// Indices form one gap-free run starting at the first inserted index. Entries
// are never removed.
type Contour struct {
	mutex   sync.RWMutex
	start   int64
	entries []models.ContentIDSegment
}

// New returns an empty contour.
func New() *Contour {
	return &Contour{}
}

// Start returns the first entry.
func (c *Contour) Start() (models.ContentIDSegment, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if len(c.entries) == 0 {
		return models.InvalidSegmentID, ErrEmpty
	}
	return c.entries[0], nil
}

// HasNext reports whether an entry exists for the index following id.SegmentIndex.
func (c *Contour) HasNext(id models.ContentIDSegment) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	_, ok := c.at(id.SegmentIndex + 1)
	return ok
}

// Next returns the entry following id, or models.InvalidSegmentID when id is the
// last entry. id must itself be in the contour.
func (c *Contour) Next(id models.ContentIDSegment) (models.ContentIDSegment, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if cur, ok := c.at(id.SegmentIndex); !ok || cur != id {
		return models.InvalidSegmentID, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, ok := c.at(id.SegmentIndex + 1)
	if !ok {
		return models.InvalidSegmentID, nil
	}
	return next, nil
}

// Successor is Next without the error: ok is false when id is not in the
// contour or has no successor yet.
func (c *Contour) Successor(id models.ContentIDSegment) (models.ContentIDSegment, bool) {
	next, err := c.Next(id)
	if err != nil || !next.Valid() {
		return models.InvalidSegmentID, false
	}
	return next, true
}

// SetNext appends id. The first insertion may use any index; every later one
// must use the last index plus one.
func (c *Contour) SetNext(id models.ContentIDSegment) error {
	if !id.Valid() {
		return fmt.Errorf("%w: cannot append %s", models.ErrProtocolViolation, id)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.entries) == 0 {
		c.start = id.SegmentIndex
		c.entries = append(c.entries, id)
		return nil
	}
	if _, ok := c.at(id.SegmentIndex); ok {
		return fmt.Errorf("%w: %d", ErrDuplicateIndex, id.SegmentIndex)
	}
	want := c.start + int64(len(c.entries))
	if id.SegmentIndex != want {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, want, id.SegmentIndex)
	}
	c.entries = append(c.entries, id)
	return nil
}

// Len returns the number of entries.
func (c *Contour) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Last returns the most recently appended entry.
func (c *Contour) Last() (models.ContentIDSegment, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if len(c.entries) == 0 {
		return models.InvalidSegmentID, false
	}
	return c.entries[len(c.entries)-1], true
}

// At returns the entry for a segment index.
func (c *Contour) At(index int64) (models.ContentIDSegment, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.at(index)
}

func (c *Contour) at(index int64) (models.ContentIDSegment, bool) {
	i := index - c.start
	if len(c.entries) == 0 || i < 0 || i >= int64(len(c.entries)) {
		return models.InvalidSegmentID, false
	}
	return c.entries[i], true
}
