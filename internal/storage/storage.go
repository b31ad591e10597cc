package storage

import (
	"context"
	"dashplayer/internal/logger"
	"dashplayer/internal/models"
	"fmt"
	"sync"
	"time"
)

// DefaultEvictionInterval is used when Start is given a non-positive interval.
const DefaultEvictionInterval = 10 * time.Second

// Chain tells the storage which segment continues the stream after a given one.
// *contour.Contour implements it.
type Chain interface {
	Successor(id models.ContentIDSegment) (models.ContentIDSegment, bool)
}

// noSuccessor restricts a walk to its first segment.
type noSuccessor struct{}

func (noSuccessor) Successor(models.ContentIDSegment) (models.ContentIDSegment, bool) {
	return models.InvalidSegmentID, false
}

// RetentionProvider returns the lowest segment index that must be kept. Segments
// below it are dropped by the eviction worker.
type RetentionProvider func() int64

// Read is the outcome of a buffered read.
type Read struct {
	Data []byte
	// Last is the position of the last copied byte, not the next one to read.
	// Use Resume to continue. It is models.InvalidPosition when nothing was copied.
	Last models.StreamPosition
	Usec int64
}

// Info describes a stored segment.
type Info struct {
	Size      int64
	Duration  int64
	Filled    int64
	Completed bool
}

// SegmentStorage provides thread-safe storage of partially received segments
// and serves contiguous reads that cross segment boundaries.
type SegmentStorage struct {
	mutex    sync.RWMutex
	segments map[models.ContentIDSegment]*Segment
	bytes    int64
	updated  chan struct{}

	logger    logger.Logger
	retention RetentionProvider

	// Control
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty SegmentStorage. retention may be nil, in which case the
// eviction worker never drops anything.
func New(log logger.Logger, retention RetentionProvider) *SegmentStorage {
	ctx, cancel := context.WithCancel(context.Background())
	return &SegmentStorage{
		segments:  make(map[models.ContentIDSegment]*Segment),
		updated:   make(chan struct{}),
		logger:    log,
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the background eviction worker.
func (s *SegmentStorage) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultEvictionInterval
	}
	s.logger.Infof("Starting segment storage eviction worker (every %s)...", interval)
	go s.evictionWorker(interval)
}

// Stop shuts down the eviction worker.
func (s *SegmentStorage) Stop() {
	s.logger.Infof("Stopping segment storage eviction worker...")
	s.cancel()
}

// InitSegment registers a segment of numBytes bytes (-1 if unknown) lasting duration microseconds.
func (s *SegmentStorage) InitSegment(id models.ContentIDSegment, numBytes, duration int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.segments[id]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateSegment, id)
	}
	s.segments[id] = NewSegment(id, numBytes, duration)
	s.logger.Debugf("Initialized %s, size: %d bytes, duration: %d usec", id, numBytes, duration)
	return nil
}

// SetSegmentSize resolves the size of a segment registered with an unknown size.
func (s *SegmentStorage) SetSegmentSize(id models.ContentIDSegment, numBytes int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	seg, found := s.segments[id]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownSegment, id)
	}
	return seg.SetSize(numBytes)
}

// AddData writes buf into the inclusive range [byteFrom, byteTo] of segment id.
func (s *SegmentStorage) AddData(id models.ContentIDSegment, byteFrom, byteTo int64, buf []byte, overwrite bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	seg, found := s.segments[id]
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownSegment, id)
	}
	before := seg.BytesFilled()
	if err := seg.SetData(byteFrom, byteTo, buf, overwrite); err != nil {
		return err
	}
	s.bytes += seg.BytesFilled() - before
	s.notify()
	return nil
}

// GetContigInterval returns the amount of data available without a gap from
// pos, following chain across segment boundaries.
func (s *SegmentStorage) GetContigInterval(pos models.StreamPosition, chain Chain) (usec, bytes int64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.contig(pos, chain)
}

// GetData copies up to len(buf) contiguous bytes starting at pos, crossing into
// successor segments through chain. A nil buf is allocated to exactly the
// available size. When nothing is available the result has no data and
// Read.Last is models.InvalidPosition.
func (s *SegmentStorage) GetData(pos models.StreamPosition, chain Chain, buf []byte) (Read, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.read(pos, chain, buf)
}

// GetSegmentData is GetData restricted to pos.Segment.
func (s *SegmentStorage) GetSegmentData(pos models.StreamPosition, buf []byte) (Read, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.read(pos, noSuccessor{}, buf)
}

// DataAvailable reports whether the byte at pos has been received.
func (s *SegmentStorage) DataAvailable(pos models.StreamPosition) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seg, found := s.segments[pos.Segment]
	return found && seg.HasData(pos.Byte)
}

// Resume returns the position following last: the next byte of the same
// segment, or byte 0 of its successor. ok is false when there is no such position yet.
func (s *SegmentStorage) Resume(last models.StreamPosition, chain Chain) (models.StreamPosition, bool) {
	if !last.Valid() {
		return models.InvalidPosition, false
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seg, found := s.segments[last.Segment]
	if !found || seg.Size() < 0 {
		return models.InvalidPosition, false
	}
	if last.Byte+1 < seg.Size() {
		return models.StreamPosition{Segment: last.Segment, Byte: last.Byte + 1}, true
	}
	next, ok := chain.Successor(last.Segment)
	if !ok {
		return models.InvalidPosition, false
	}
	return models.StreamPosition{Segment: next, Byte: 0}, true
}

// Lookup returns the bookkeeping of segment id.
func (s *SegmentStorage) Lookup(id models.ContentIDSegment) (Info, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seg, found := s.segments[id]
	if !found {
		return Info{}, false
	}
	return Info{
		Size:      seg.Size(),
		Duration:  seg.Duration(),
		Filled:    seg.BytesFilled(),
		Completed: seg.Completed(),
	}, true
}

// Remove drops segment id. It reports whether the segment existed.
func (s *SegmentStorage) Remove(id models.ContentIDSegment) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	seg, found := s.segments[id]
	if !found {
		return false
	}
	s.bytes -= seg.BytesFilled()
	delete(s.segments, id)
	return true
}

// Len returns the number of stored segments.
func (s *SegmentStorage) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.segments)
}

// BytesStored returns the number of received bytes held across all segments.
func (s *SegmentStorage) BytesStored() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.bytes
}

// Updated returns a channel that is closed the next time data is added.
// Callers must fetch the channel before checking for data to avoid missing a wake-up.
func (s *SegmentStorage) Updated() <-chan struct{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.updated
}

// notify wakes every waiter. Must be called with the write lock held.
func (s *SegmentStorage) notify() {
	close(s.updated)
	s.updated = make(chan struct{})
}

func (s *SegmentStorage) contig(pos models.StreamPosition, chain Chain) (usec, bytes int64) {
	if !pos.Valid() {
		return 0, 0
	}
	seg, found := s.segments[pos.Segment]
	if !found {
		return 0, 0
	}
	offset := pos.Byte
	for {
		u, b := seg.ContigInterval(offset)
		usec += u
		bytes += b
		if b == 0 || offset+b < seg.Size() {
			return usec, bytes
		}
		next, ok := chain.Successor(seg.ID())
		if !ok {
			return usec, bytes
		}
		if seg, found = s.segments[next]; !found {
			return usec, bytes
		}
		offset = 0
	}
}

func (s *SegmentStorage) read(pos models.StreamPosition, chain Chain, buf []byte) (Read, error) {
	_, available := s.contig(pos, chain)
	if available == 0 {
		return Read{Last: models.InvalidPosition}, nil
	}
	if buf == nil {
		buf = make([]byte, available)
	}
	want := int64(len(buf))
	if want > available {
		want = available
	}
	if want == 0 {
		return Read{Last: models.InvalidPosition}, nil
	}

	seg := s.segments[pos.Segment]
	offset := pos.Byte
	var copied, usec int64
	last := models.InvalidPosition
	for {
		n, u := seg.GetData(offset, buf[copied:want])
		if n == 0 {
			return Read{}, fmt.Errorf("%w: %s byte %d after %d bytes", ErrBrokenChain, seg.ID(), offset, copied)
		}
		copied += n
		usec += u
		last = models.StreamPosition{Segment: seg.ID(), Byte: offset + n - 1}
		if copied == want {
			break
		}

		next, ok := chain.Successor(seg.ID())
		if !ok {
			return Read{}, fmt.Errorf("%w: no successor of %s after %d bytes", ErrBrokenChain, seg.ID(), copied)
		}
		var found bool
		if seg, found = s.segments[next]; !found {
			return Read{}, fmt.Errorf("%w: successor %s is not stored", ErrBrokenChain, next)
		}
		offset = 0
	}
	return Read{Data: buf[:copied], Last: last, Usec: usec}, nil
}

// evictionWorker runs in the background to drop segments behind the playback cursor.
func (s *SegmentStorage) evictionWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Eviction worker stopped.")
			return
		case <-ticker.C:
			s.RunEviction()
		}
	}
}

// RunEviction drops every segment whose index is below the retention floor.
// It returns the number of evicted segments.
func (s *SegmentStorage) RunEviction() int {
	if s.retention == nil {
		return 0
	}
	floor := s.retention()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	evicted := 0
	for id, seg := range s.segments {
		if id.SegmentIndex < floor {
			s.bytes -= seg.BytesFilled()
			delete(s.segments, id)
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Infof("Evicted %d segments below index %d. Current storage size: %d segments.", evicted, floor, len(s.segments))
	} else {
		s.logger.Debugf("No segments to evict. Current storage size: %d segments.", len(s.segments))
	}
	return evicted
}
