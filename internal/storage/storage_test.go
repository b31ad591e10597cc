package storage

import (
	"bytes"
	"dashplayer/internal/contour"
	"dashplayer/internal/logger"
	"dashplayer/internal/models"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

var _ logger.Logger = (*mockLogger)(nil)

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func TestSegment_CompletedUnderOverlappingWrites(t *testing.T) {
	const size = 997
	src := pattern(size, 1)
	rng := rand.New(rand.NewSource(42))

	seg := NewSegment(models.NewSegmentID(1, 0), size, 1000)
	for !seg.Completed() {
		from := rng.Int63n(size)
		to := from + rng.Int63n(size-from)
		require.NoError(t, seg.SetData(from, to, src[from:to+1], true))
	}

	assert.Equal(t, int64(size), seg.BytesFilled())
	out := make([]byte, size)
	n, usec := seg.GetData(0, out)
	assert.Equal(t, int64(size), n)
	assert.Equal(t, int64(1000), usec)
	assert.Equal(t, src, out)
}

func TestSegment_NotCompletedWithGap(t *testing.T) {
	seg := NewSegment(models.NewSegmentID(1, 0), 10, 100)
	require.NoError(t, seg.SetData(0, 4, pattern(5, 0), false))
	require.NoError(t, seg.SetData(6, 9, pattern(4, 0), false))
	assert.False(t, seg.Completed())
	assert.False(t, seg.HasData(5))
	assert.True(t, seg.HasData(6))

	require.NoError(t, seg.SetData(5, 5, []byte{9}, false))
	assert.True(t, seg.Completed())
}

func TestSegment_ContigIntervalTruncates(t *testing.T) {
	seg := NewSegment(models.NewSegmentID(1, 0), 1000, 2000)
	require.NoError(t, seg.SetData(0, 332, pattern(333, 0), false))

	usec, n := seg.ContigInterval(0)
	assert.Equal(t, int64(333), n)
	assert.Equal(t, int64(666), usec)

	usec, n = seg.ContigInterval(333)
	assert.Zero(t, n)
	assert.Zero(t, usec)
}

func TestSegment_GetDataStopsAtGap(t *testing.T) {
	seg := NewSegment(models.NewSegmentID(1, 0), 100, 100)
	require.NoError(t, seg.SetData(10, 19, pattern(10, 10), false))
	require.NoError(t, seg.SetData(21, 40, pattern(20, 21), false))

	buf := make([]byte, 50)
	n, usec := seg.GetData(10, buf)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, int64(10), usec)
	assert.Equal(t, pattern(10, 10), buf[:10])

	n, _ = seg.GetData(20, buf)
	assert.Zero(t, n)

	n, _ = seg.GetData(15, buf[:3])
	assert.Equal(t, int64(3), n)
}

func TestSegment_OverwriteRules(t *testing.T) {
	seg := NewSegment(models.NewSegmentID(1, 0), 10, 10)
	require.NoError(t, seg.SetData(2, 5, pattern(4, 0), false))

	err := seg.SetData(5, 7, pattern(3, 0), false)
	assert.ErrorIs(t, err, ErrOverwrite)
	assert.ErrorIs(t, err, models.ErrProtocolViolation)

	require.NoError(t, seg.SetData(5, 7, []byte{7, 7, 7}, true))
	assert.Equal(t, int64(6), seg.BytesFilled())

	assert.ErrorIs(t, seg.SetData(8, 10, pattern(3, 0), true), ErrOutOfRange)
	assert.ErrorIs(t, seg.SetData(0, 3, pattern(2, 0), true), ErrOutOfRange)
}

func TestSegment_UnknownSize(t *testing.T) {
	seg := NewSegment(models.NewSegmentID(1, 0), -1, 500)
	assert.ErrorIs(t, seg.SetData(0, 0, []byte{1}, false), ErrSizeUnknown)
	assert.False(t, seg.Completed())

	require.NoError(t, seg.SetSize(4))
	assert.ErrorIs(t, seg.SetSize(8), ErrSizeKnown)
	require.NoError(t, seg.SetData(0, 3, pattern(4, 0), false))
	assert.True(t, seg.Completed())
}

func TestSegment_ZeroDuration(t *testing.T) {
	seg := NewSegment(models.NewSegmentID(1, 0), 0, 500)
	assert.True(t, seg.Completed())
	usec, n := seg.ContigInterval(0)
	assert.Zero(t, usec)
	assert.Zero(t, n)
}

// twoSegments stores seg0 (200 bytes, 1s) and seg1 (100 bytes, 0.5s) linked by a contour.
func twoSegments(t *testing.T) (*SegmentStorage, *contour.Contour, []byte, []byte) {
	t.Helper()
	s := New(&mockLogger{}, nil)
	c := contour.New()
	seg0 := models.NewSegmentID(500000, 0)
	seg1 := models.NewSegmentID(1000000, 1)
	data0 := pattern(200, 0)
	data1 := pattern(100, 100)

	require.NoError(t, s.InitSegment(seg0, 200, 1000000))
	require.NoError(t, s.InitSegment(seg1, 100, 500000))
	require.NoError(t, s.AddData(seg0, 0, 199, data0, false))
	require.NoError(t, s.AddData(seg1, 0, 99, data1, false))
	require.NoError(t, c.SetNext(seg0))
	require.NoError(t, c.SetNext(seg1))
	return s, c, data0, data1
}

func TestSegmentStorage_CrossBoundaryRead(t *testing.T) {
	s, c, data0, data1 := twoSegments(t)
	seg0, _ := c.At(0)
	seg1, _ := c.At(1)

	usec, n := s.GetContigInterval(models.StreamPosition{Segment: seg0, Byte: 150}, c)
	assert.Equal(t, int64(150), n)
	assert.Equal(t, int64(250000+500000), usec)

	buf := make([]byte, 100)
	r, err := s.GetData(models.StreamPosition{Segment: seg0, Byte: 150}, c, buf)
	require.NoError(t, err)
	assert.Len(t, r.Data, 100)
	assert.Equal(t, int64(500000), r.Usec)
	assert.Equal(t, models.StreamPosition{Segment: seg1, Byte: 49}, r.Last)

	expected := append(append([]byte{}, data0[150:]...), data1[:50]...)
	assert.True(t, bytes.Equal(expected, r.Data))

	next, ok := s.Resume(r.Last, c)
	require.True(t, ok)
	assert.Equal(t, models.StreamPosition{Segment: seg1, Byte: 50}, next)
}

func TestSegmentStorage_NilBufferAllocatesAvailable(t *testing.T) {
	s, c, _, _ := twoSegments(t)
	seg0, _ := c.At(0)

	r, err := s.GetData(models.StreamPosition{Segment: seg0, Byte: 0}, c, nil)
	require.NoError(t, err)
	assert.Len(t, r.Data, 300)
	assert.Equal(t, int64(1500000), r.Usec)

	_, ok := s.Resume(r.Last, c)
	assert.False(t, ok, "nothing follows the last segment yet")
}

func TestSegmentStorage_GetSegmentDataStaysInSegment(t *testing.T) {
	s, c, data0, _ := twoSegments(t)
	seg0, _ := c.At(0)

	r, err := s.GetSegmentData(models.StreamPosition{Segment: seg0, Byte: 150}, make([]byte, 100))
	require.NoError(t, err)
	assert.Equal(t, data0[150:], r.Data)
	assert.Equal(t, int64(250000), r.Usec)
	assert.Equal(t, models.StreamPosition{Segment: seg0, Byte: 199}, r.Last)
}

func TestSegmentStorage_NoDataIsNotAnError(t *testing.T) {
	s := New(&mockLogger{}, nil)
	c := contour.New()
	id := models.NewSegmentID(500000, 0)
	require.NoError(t, s.InitSegment(id, 10, 10))

	r, err := s.GetData(models.StreamPosition{Segment: id, Byte: 0}, c, make([]byte, 4))
	require.NoError(t, err)
	assert.Empty(t, r.Data)
	assert.Equal(t, models.InvalidPosition, r.Last)

	r, err = s.GetData(models.InvalidPosition, c, nil)
	require.NoError(t, err)
	assert.Equal(t, models.InvalidPosition, r.Last)

	usec, n := s.GetContigInterval(models.StreamPosition{Segment: models.NewSegmentID(1, 9), Byte: 0}, c)
	assert.Zero(t, usec)
	assert.Zero(t, n)
}

func TestSegmentStorage_StopsAtIncompleteSegment(t *testing.T) {
	s := New(&mockLogger{}, nil)
	c := contour.New()
	seg0 := models.NewSegmentID(1, 0)
	seg1 := models.NewSegmentID(1, 1)
	require.NoError(t, s.InitSegment(seg0, 10, 100))
	require.NoError(t, s.InitSegment(seg1, 10, 100))
	require.NoError(t, c.SetNext(seg0))
	require.NoError(t, c.SetNext(seg1))
	require.NoError(t, s.AddData(seg0, 0, 7, pattern(8, 0), false))
	require.NoError(t, s.AddData(seg1, 0, 9, pattern(10, 0), false))

	_, n := s.GetContigInterval(models.StreamPosition{Segment: seg0, Byte: 0}, c)
	assert.Equal(t, int64(8), n, "a gap at the end of seg0 stops the walk")

	require.NoError(t, s.AddData(seg0, 8, 9, pattern(2, 8), false))
	_, n = s.GetContigInterval(models.StreamPosition{Segment: seg0, Byte: 0}, c)
	assert.Equal(t, int64(20), n)
}

func TestSegmentStorage_Registration(t *testing.T) {
	s := New(&mockLogger{}, nil)
	id := models.NewSegmentID(1, 0)

	assert.ErrorIs(t, s.AddData(id, 0, 0, []byte{1}, false), ErrUnknownSegment)
	require.NoError(t, s.InitSegment(id, -1, 100))
	assert.ErrorIs(t, s.InitSegment(id, 5, 100), ErrDuplicateSegment)

	require.NoError(t, s.SetSegmentSize(id, 2))
	require.NoError(t, s.AddData(id, 0, 1, []byte{1, 2}, false))
	assert.True(t, s.DataAvailable(models.StreamPosition{Segment: id, Byte: 1}))
	assert.False(t, s.DataAvailable(models.StreamPosition{Segment: id, Byte: 2}))

	info, ok := s.Lookup(id)
	require.True(t, ok)
	assert.True(t, info.Completed)
	assert.Equal(t, int64(2), s.BytesStored())

	assert.True(t, s.Remove(id))
	assert.False(t, s.Remove(id))
	assert.Zero(t, s.BytesStored())
}

func TestSegmentStorage_UpdatedIsClosedOnWrite(t *testing.T) {
	s := New(&mockLogger{}, nil)
	id := models.NewSegmentID(1, 0)
	require.NoError(t, s.InitSegment(id, 4, 4))

	ch := s.Updated()
	select {
	case <-ch:
		t.Fatal("channel closed before any write")
	default:
	}

	require.NoError(t, s.AddData(id, 0, 1, []byte{1, 2}, false))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("channel not closed after write")
	}
	assert.NotEqual(t, ch, s.Updated())
}

func TestSegmentStorage_RunEviction(t *testing.T) {
	floor := int64(2)
	s := New(&mockLogger{}, func() int64 { return floor })
	for i := int64(0); i < 4; i++ {
		id := models.NewSegmentID(1, i)
		require.NoError(t, s.InitSegment(id, 1, 1))
		require.NoError(t, s.AddData(id, 0, 0, []byte{1}, false))
	}

	assert.Equal(t, 2, s.RunEviction())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(2), s.BytesStored())
	_, ok := s.Lookup(models.NewSegmentID(1, 1))
	assert.False(t, ok)

	assert.Zero(t, s.RunEviction())
}

func TestSegmentStorage_EvictionWorker(t *testing.T) {
	s := New(&mockLogger{}, func() int64 { return 1 })
	require.NoError(t, s.InitSegment(models.NewSegmentID(1, 0), 1, 1))
	s.Start(10 * time.Millisecond)
	defer s.Stop()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSegmentStorage_ConcurrentWriteAndRead(t *testing.T) {
	const (
		segments = 4
		size     = 1000
		chunk    = 100
	)
	s := New(&mockLogger{}, nil)
	c := contour.New()

	var want []byte
	for i := 0; i < segments; i++ {
		want = append(want, pattern(size, byte(i*7))...)
	}

	writerDone := make(chan error, 1)
	go func() {
		for i := int64(0); i < segments; i++ {
			id := models.NewSegmentID(800000, i)
			if err := s.InitSegment(id, size, 1000000); err != nil {
				writerDone <- err
				return
			}
			if err := c.SetNext(id); err != nil {
				writerDone <- err
				return
			}
			data := want[i*size : (i+1)*size]
			for from := int64(0); from < size; from += chunk {
				if err := s.AddData(id, from, from+chunk-1, data[from:from+chunk], false); err != nil {
					writerDone <- err
					return
				}
			}
		}
		writerDone <- nil
	}()

	var got []byte
	var usec int64
	last := models.InvalidPosition
	buf := make([]byte, 64)
	deadline := time.After(5 * time.Second)
	for len(got) < len(want) {
		updated := s.Updated()

		var pos models.StreamPosition
		ok := false
		if last.Valid() {
			pos, ok = s.Resume(last, c)
		} else if first, err := c.Start(); err == nil {
			pos, ok = models.StreamPosition{Segment: first, Byte: 0}, true
		}
		if ok {
			s.GetContigInterval(pos, c)
			r, err := s.GetData(pos, c, buf)
			require.NoError(t, err)
			if len(r.Data) > 0 {
				got = append(got, r.Data...)
				usec += r.Usec
				last = r.Last
				continue
			}
		}

		select {
		case <-updated:
		case <-deadline:
			t.Fatalf("read stalled after %d of %d bytes", len(got), len(want))
		}
	}

	require.NoError(t, <-writerDone)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(segments*1000000), usec)
}
