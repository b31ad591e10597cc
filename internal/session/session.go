package session

import (
	"context"
	"dashplayer/internal/contour"
	"dashplayer/internal/control"
	"dashplayer/internal/dash"
	"dashplayer/internal/dump"
	"dashplayer/internal/logger"
	"dashplayer/internal/metrics"
	"dashplayer/internal/models"
	"dashplayer/internal/storage"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	dumpQueueSize    = 16
	dumpDrainTimeout = 5 * time.Second
)

// Options configure a Session.
type Options struct {
	ManifestURL string
	Control     control.Options
	// Workers is the number of concurrent download workers.
	Workers        int
	RequestTimeout time.Duration
	// RateLimit caps downloads in bytes per second. 0 means unlimited.
	RateLimit int
	// KeepBehind is how many segments behind the playback position stay stored.
	KeepBehind       int64
	EvictionInterval time.Duration
}

// Status is a snapshot of a session for reporting.
type Status struct {
	control.Snapshot
	ManifestURL    string
	SegmentsStored int
	BytesStored    int64
	Error          string
}

// Session plays one manifest: it executes the actions of the control logic on
// a download pool, feeds the results back as events and serves the received
// media to a Reader.
type Session struct {
	opts    Options
	logger  logger.Logger
	metrics *metrics.Metrics
	sink    dump.Sink

	Storage    *storage.SegmentStorage
	Contour    *contour.Contour
	Logic      *control.Logic
	Downloader *dash.Downloader

	dumpQueue chan models.ContentIDSegment

	// playback cursor shared by every Reader
	playMutex sync.Mutex
	played    models.StreamPosition
	playing   bool

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mutex sync.Mutex
	err   error
}

// New assembles a session. m and sink may be nil.
func New(opts Options, client *dash.Client, log logger.Logger, m *metrics.Metrics, sink dump.Sink) *Session {
	if sl, ok := log.(*logger.SlogLogger); ok {
		log = sl.With("manifest", opts.ManifestURL)
	}
	s := &Session{
		opts:      opts,
		logger:    log,
		metrics:   m,
		sink:      sink,
		Contour:   contour.New(),
		dumpQueue: make(chan models.ContentIDSegment, dumpQueueSize),
		played:    models.InvalidPosition,
	}
	s.Storage = storage.New(log, s.retentionFloor)

	var cm control.Metrics
	if m != nil {
		cm = m
	}
	s.Logic = control.New(opts.Control, s.Storage, s.Contour, parseManifest, log, cm)

	s.Downloader = dash.NewDownloader(client, log, opts.Workers)
	if opts.RequestTimeout > 0 {
		s.Downloader.RequestTimeout = opts.RequestTimeout
	}
	s.Downloader.SetRateLimit(opts.RateLimit)
	return s
}

func parseManifest(data []byte, baseURL string) (control.Manifest, error) {
	m, err := dash.ParseManifest(data, baseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Start launches the background loops and requests the manifest. The session
// ends when ctx is cancelled, Stop is called, playback reaches the end or an
// error occurs; Wait reports which.
func (s *Session) Start(ctx context.Context) error {
	s.logger.Infof("Starting session for %s", s.opts.ManifestURL)

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, s.ctx = errgroup.WithContext(ctx)

	s.Storage.Start(s.opts.EvictionInterval)
	s.Downloader.Start(s.ctx)
	s.group.Go(s.resultLoop)
	s.group.Go(s.dumpLoop)

	if err := s.handle(control.StartPlayback{ManifestURL: s.opts.ManifestURL}); err != nil {
		s.Stop()
		return fmt.Errorf("failed to start playback of %s: %w", s.opts.ManifestURL, err)
	}
	return nil
}

// Stop terminates the background loops.
func (s *Session) Stop() {
	s.logger.Infof("Stopping session for %s", s.opts.ManifestURL)
	s.cancel()
	s.Storage.Stop()
}

// Wait blocks until the session has ended and returns the error that ended
// it, or nil when it ended normally.
func (s *Session) Wait() error {
	err := s.group.Wait()
	s.Downloader.Wait()
	s.drainDumps()
	if err == nil {
		err = s.Err()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns the error that stopped the session, if any.
func (s *Session) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Status returns the current session figures.
func (s *Session) Status() Status {
	st := Status{
		Snapshot:       s.Logic.Snapshot(),
		ManifestURL:    s.opts.ManifestURL,
		SegmentsStored: s.Storage.Len(),
		BytesStored:    s.Storage.BytesStored(),
	}
	if err := s.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// RefreshMetrics samples the storage gauges.
func (s *Session) RefreshMetrics() {
	if s.metrics != nil {
		s.metrics.SetStorage(s.Storage.Len(), s.Storage.BytesStored())
	}
}

// handle feeds one event to the control logic and executes the resulting actions.
func (s *Session) handle(ev control.Event) error {
	actions, err := s.Logic.HandleEvent(ev)
	if err != nil {
		return s.fail(fmt.Errorf("handling %v: %w", ev, err))
	}
	for _, a := range actions {
		s.execute(a)
	}
	if s.Logic.State() == control.StateDone {
		s.logger.Infof("Playback of %s finished", s.opts.ManifestURL)
		s.cancel()
	}
	return nil
}

func (s *Session) execute(a control.Action) {
	switch act := a.(type) {
	case control.StartDownload:
		for _, r := range act.Requests {
			s.logger.Debugf("Queueing %s from %s (conn %s)", r.ContentID, r.URL, act.ConnID)
			s.Downloader.QueueDownload(dash.DownloadTask{
				ConnID:    act.ConnID,
				ContentID: r.ContentID,
				URL:       r.URL,
				Method:    r.Method,
			})
		}
	default:
		s.logger.Warnf("Ignoring unknown action %T", a)
	}
}

// fail records the first error and ends the session.
func (s *Session) fail(err error) error {
	s.mutex.Lock()
	if s.err == nil {
		s.err = err
		s.logger.Errorf("Session for %s failed: %v", s.opts.ManifestURL, err)
	}
	s.mutex.Unlock()
	s.cancel()
	return err
}

// retentionFloor keeps KeepBehind segments behind the playback position.
func (s *Session) retentionFloor() int64 {
	snap := s.Logic.Snapshot()
	if snap.PlaybackIndex < 0 {
		return 0
	}
	return snap.PlaybackIndex - s.opts.KeepBehind
}

// resultLoop turns download results into events, one at a time.
func (s *Session) resultLoop() error {
	s.logger.Infof("Starting result processing loop for %s", s.opts.ManifestURL)
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Result processing loop for %s stopped.", s.opts.ManifestURL)
			return nil
		case result := <-s.Downloader.Results():
			if err := s.processResult(result); err != nil {
				return err
			}
		}
	}
}

func (s *Session) processResult(result dash.DownloadResult) error {
	task := result.Task
	if result.Error != nil {
		if s.metrics != nil {
			s.metrics.IncDownloadErrors()
		}
		s.logger.Warnf("Failed to download %s: %v", task.ContentID, result.Error)
		if err := s.handle(control.Disconnect{ConnID: task.ConnID}); err != nil {
			return err
		}
		return s.fail(fmt.Errorf("download of %s failed: %w", task.ContentID, result.Error))
	}

	err := s.handle(control.DataReceived{
		ConnID:    task.ConnID,
		ContentID: task.ContentID,
		URL:       result.URL,
		ByteFrom:  result.From,
		ByteTo:    result.To,
		Data:      result.Data,
		TotalSize: result.Total,
		IsLast:    result.Last,
	})
	if err != nil {
		return err
	}

	if id, ok := task.ContentID.(models.ContentIDSegment); ok && result.Last && s.sink != nil {
		select {
		case s.dumpQueue <- id:
		default:
			s.logger.Warnf("Dump queue full, skipping %s", id)
		}
	}
	return nil
}

// dumpLoop copies completed segments to the dump sink.
func (s *Session) dumpLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case id := <-s.dumpQueue:
			s.dumpSegment(s.ctx, id)
		}
	}
}

// drainDumps writes what was still queued when the loops ended.
func (s *Session) drainDumps() {
	ctx, cancel := context.WithTimeout(context.Background(), dumpDrainTimeout)
	defer cancel()
	for {
		select {
		case id := <-s.dumpQueue:
			s.dumpSegment(ctx, id)
		default:
			return
		}
	}
}

func (s *Session) dumpSegment(ctx context.Context, id models.ContentIDSegment) {
	read, err := s.Storage.GetSegmentData(models.StreamPosition{Segment: id, Byte: 0}, nil)
	if err != nil || len(read.Data) == 0 {
		s.logger.Debugf("Segment %s no longer available for dump", id)
		return
	}
	name := SegmentName(id)
	if err := s.sink.Write(ctx, name, read.Data); err != nil {
		s.logger.Warnf("Failed to dump %s: %v", name, err)
		return
	}
	s.logger.Debugf("Dumped %s (%d bytes)", name, len(read.Data))
}

// SegmentName is the dump object name of a segment.
func SegmentName(id models.ContentIDSegment) string {
	return fmt.Sprintf("%d/%06d.m4s", id.BitRate, id.SegmentIndex)
}
