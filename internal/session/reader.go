package session

import (
	"context"
	"dashplayer/internal/control"
	"dashplayer/internal/models"
	"io"
)

// Reader is the playback consumer of a session. Read blocks until media
// following the previous read has been received, reports every read to the
// control logic as DataPlayed and returns io.EOF once the last segment has
// been played. The playback cursor belongs to the session, so a new Reader
// continues where the previous one stopped. A Reader is not safe for
// concurrent use.
type Reader struct {
	s   *Session
	ctx context.Context
}

// NewReader returns a reader positioned at the session's playback cursor.
// ctx bounds every blocking Read.
func (s *Session) NewReader(ctx context.Context) *Reader {
	return &Reader{s: s, ctx: ctx}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := r.s

	for {
		// fetch before looking so a write in between still wakes us
		updated := s.Storage.Updated()

		if n, err := s.play(p); n > 0 || err != nil {
			return n, err
		}

		if s.Logic.State() == control.StateDone {
			return 0, io.EOF
		}
		if err := s.Err(); err != nil {
			return 0, err
		}

		select {
		case <-updated:
		case <-s.Done():
			if s.Logic.State() == control.StateDone {
				return 0, io.EOF
			}
			if err := s.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		}
	}
}

// play copies the media after the playback cursor into p, advances the
// cursor and reports the read as played. It returns 0 when nothing follows
// the cursor yet.
func (s *Session) play(p []byte) (int, error) {
	s.playMutex.Lock()
	defer s.playMutex.Unlock()

	pos, ok := s.playPosition()
	if !ok {
		return 0, nil
	}
	read, err := s.Storage.GetData(pos, s.Contour, p)
	if err != nil {
		return 0, s.fail(err)
	}
	n := len(read.Data)
	if n == 0 {
		return 0, nil
	}
	s.played = read.Last

	if !s.playing {
		s.playing = true
		if err := s.handle(control.StartPlayback{}); err != nil {
			return n, err
		}
	}
	return n, s.handle(control.DataPlayed{
		Position: read.Last,
		Bytes:    int64(n),
		Usec:     read.Usec,
	})
}

// playPosition returns the position following the playback cursor.
func (s *Session) playPosition() (models.StreamPosition, bool) {
	if s.played.Valid() {
		return s.Storage.Resume(s.played, s.Contour)
	}
	first, err := s.Contour.Start()
	if err != nil {
		return models.InvalidPosition, false
	}
	return models.StreamPosition{Segment: first, Byte: 0}, true
}
