package control

import (
	"dashplayer/internal/adaptation"
	"dashplayer/internal/contour"
	"dashplayer/internal/logger"
	"dashplayer/internal/models"
	"dashplayer/internal/storage"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the phase of a playback session.
type State int

const (
	StateNoMPD State = iota
	StateHaveMPD
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNoMPD:
		return "NO_MPD"
	case StateHaveMPD:
		return "HAVE_MPD"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrUnexpectedEvent = fmt.Errorf("%w: event not valid in current state", models.ErrProtocolViolation)
	ErrUnknownEvent    = fmt.Errorf("%w: unknown event", models.ErrProtocolViolation)
	ErrUnknownContent  = fmt.Errorf("%w: content was not requested", models.ErrProtocolViolation)
	ErrIncomplete      = fmt.Errorf("%w: transfer ended before the content was complete", models.ErrProtocolViolation)
	ErrManifest        = errors.New("manifest rejected")
)

// Options configure a Logic.
type Options struct {
	Params adaptation.Params
	// MinCompletedRequests is the number of finished segment downloads required
	// before throughput is trusted. Values below 1 are raised to 1.
	MinCompletedRequests int
	Resolution           models.ResolutionPolicy
	// StartSegment is the first segment index requested.
	StartSegment int64
	// MaxSegments limits how many segments are played. 0 plays to the end.
	MaxSegments int64
}

// Snapshot is a consistent view of the session for reporting.
type Snapshot struct {
	State             State
	PlaybackStarted   bool
	PendingActions    int
	BufferLevel       float64
	Bandwidth         int64
	Representation    string
	ContourLength     int
	CompletedRequests int
	Deferred          bool
	DelayUntil        float64
	PlayedUsec        int64
	PlayedBytes       int64
	// PlaybackIndex is the segment index of the last played byte, or -1.
	PlaybackIndex int64
	Rho           float64
}

// Logic is the event-driven coordinator of one playback session. Events are
// processed one at a time; the actions they produce are returned to the caller
// for execution.
type Logic struct {
	mutex sync.Mutex
	opts  Options
	state State

	logger   logger.Logger
	storage  *storage.SegmentStorage
	contour  *contour.Contour
	parse    ManifestParser
	metrics  Metrics
	now      func() time.Time
	pending  []*pendingAction
	deferred *adaptation.Decision

	manifestURL     string
	manifestData    []byte
	manifest        Manifest
	ladder          []models.Representation
	engine          *adaptation.Engine
	meter           *adaptation.ThroughputMeter
	monitor         *adaptation.BufferMonitor
	playbackStarted bool

	currentRep   int
	nextIndex    int64
	endIndex     int64
	requestedAt  map[models.ContentIDSegment]time.Time
	completed    int
	receivedUsec int64
	playedUsec   int64
	playedBytes  int64
	lastPlayed   models.StreamPosition
}

// New creates a Logic in state NO_MPD. metrics may be nil.
func New(opts Options, store *storage.SegmentStorage, c *contour.Contour, parse ManifestParser, log logger.Logger, metrics Metrics) *Logic {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	// the first request has no throughput sample to decide on
	if opts.MinCompletedRequests < 1 {
		opts.MinCompletedRequests = 1
	}
	return &Logic{
		opts:        opts,
		state:       StateNoMPD,
		logger:      log,
		storage:     store,
		contour:     c,
		parse:       parse,
		metrics:     metrics,
		now:         time.Now,
		meter:       adaptation.NewThroughputMeter(opts.Params.DeltaT),
		monitor:     adaptation.NewBufferMonitor(opts.Params.DeltaT),
		requestedAt: make(map[models.ContentIDSegment]time.Time),
		lastPlayed:  models.InvalidPosition,
	}
}

// SetClock replaces the clock used for throughput and buffer sampling.
func (l *Logic) SetClock(now func() time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.now = now
}

// State returns the current state.
func (l *Logic) State() State {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.state
}

// HandleEvent processes one event and returns the actions it produced.
// Events that are not valid in the current state fail with an error wrapping
// models.ErrProtocolViolation. In state DONE every event is discarded.
func (l *Logic) HandleEvent(ev Event) ([]Action, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.state == StateDone {
		l.logger.Debugf("Discarding %T in state %s", ev, l.state)
		return nil, nil
	}

	switch e := ev.(type) {
	case StartPlayback:
		return l.onStartPlayback(e)
	case DataReceived:
		switch id := e.ContentID.(type) {
		case models.ContentIDMpd:
			return l.onManifestData(e)
		case models.ContentIDSegment:
			return l.onSegmentData(id, e)
		default:
			return nil, fmt.Errorf("%w: content id %v", ErrUnknownEvent, e.ContentID)
		}
	case DataPlayed:
		return l.onDataPlayed(e)
	case Disconnect:
		return l.onDisconnect(e)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// AckActionRequestCompleted removes id from every pending action, dropping
// actions left with nothing to fetch. It returns the number of removals.
func (l *Logic) AckActionRequestCompleted(id models.ContentID) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.ack(id)
}

// PendingActions returns the number of actions not yet fully acknowledged.
func (l *Logic) PendingActions() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.pending)
}

// Snapshot returns the current session figures.
func (l *Logic) Snapshot() Snapshot {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	snap := Snapshot{
		State:             l.state,
		PlaybackStarted:   l.playbackStarted,
		PendingActions:    len(l.pending),
		BufferLevel:       l.bufferLevel(),
		ContourLength:     l.contour.Len(),
		CompletedRequests: l.completed,
		Deferred:          l.deferred != nil,
		PlayedUsec:        l.playedUsec,
		PlayedBytes:       l.playedBytes,
		PlaybackIndex:     -1,
		Rho:               l.meter.Rho(),
	}
	if l.deferred != nil {
		snap.DelayUntil = l.deferred.DelayUntil
	}
	if l.lastPlayed.Valid() {
		snap.PlaybackIndex = l.lastPlayed.Segment.SegmentIndex
	}
	if l.currentRep < len(l.ladder) {
		snap.Bandwidth = l.ladder[l.currentRep].Bandwidth
		snap.Representation = l.ladder[l.currentRep].ID
	}
	return snap
}

func (l *Logic) onStartPlayback(e StartPlayback) ([]Action, error) {
	switch l.state {
	case StateNoMPD:
		if l.manifestURL != "" {
			return nil, fmt.Errorf("%w: manifest %s already requested", ErrUnexpectedEvent, l.manifestURL)
		}
		if e.ManifestURL == "" {
			return nil, fmt.Errorf("%w: empty manifest url", ErrManifest)
		}
		l.manifestURL = e.ManifestURL
		l.logger.Infof("Requesting manifest %s", e.ManifestURL)
		return []Action{l.issue(newStartDownload(models.ContentIDMpd{}, e.ManifestURL))}, nil
	default:
		l.playbackStarted = true
		return nil, nil
	}
}

func (l *Logic) onManifestData(e DataReceived) ([]Action, error) {
	if l.state != StateNoMPD || l.contour.Len() != 0 {
		return nil, fmt.Errorf("%w: manifest data in state %s", ErrUnexpectedEvent, l.state)
	}
	if e.ByteFrom != int64(len(l.manifestData)) {
		return nil, fmt.Errorf("%w: manifest chunk at %d, expected %d", models.ErrProtocolViolation, e.ByteFrom, len(l.manifestData))
	}
	l.manifestData = append(l.manifestData, e.Data...)
	if !e.IsLast {
		return nil, nil
	}

	l.ack(models.ContentIDMpd{})
	base := l.manifestURL
	if e.URL != "" {
		base = e.URL
	}
	manifest, err := l.parse(l.manifestData, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	l.manifestData = nil

	if err := l.useManifest(manifest); err != nil {
		return nil, err
	}
	l.state = StateHaveMPD

	first := l.engine.SelectRepresentation(l.input())
	l.metrics.DecisionMade(first.Reason.String(), l.ladder[first.Representation].Bandwidth)
	act, err := l.requestSegment(first.Representation)
	if err != nil {
		return nil, err
	}
	return []Action{act}, nil
}

// useManifest applies the resolution policy and segment bounds.
func (l *Logic) useManifest(m Manifest) error {
	target, err := l.opts.Resolution.Select(m.Resolutions())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}
	ladder := models.CapLadder(m.Representations(), target)
	models.SortLadder(ladder)
	// segment ids carry the bandwidth, so it must identify the representation
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Bandwidth == ladder[i-1].Bandwidth {
			return fmt.Errorf("%w: representations %s and %s share bandwidth %d", ErrManifest, ladder[i-1].ID, ladder[i].ID, ladder[i].Bandwidth)
		}
	}

	engine, err := adaptation.NewEngine(l.opts.Params, ladder)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}

	count := m.SegmentCount()
	if count <= 0 {
		return fmt.Errorf("%w: manifest has no segments", ErrManifest)
	}
	if l.opts.StartSegment < 0 || l.opts.StartSegment >= count {
		return fmt.Errorf("%w: start segment %d outside [0,%d)", ErrManifest, l.opts.StartSegment, count)
	}
	end := count
	if l.opts.MaxSegments > 0 && l.opts.StartSegment+l.opts.MaxSegments < end {
		end = l.opts.StartSegment + l.opts.MaxSegments
	}

	l.manifest = m
	l.ladder = engine.Ladder()
	l.engine = engine
	l.nextIndex = l.opts.StartSegment
	l.endIndex = end
	l.logger.Infof("Manifest accepted: %d representations up to %s, segments [%d,%d)", len(l.ladder), target, l.nextIndex, l.endIndex)
	return nil
}

func (l *Logic) onSegmentData(id models.ContentIDSegment, e DataReceived) ([]Action, error) {
	if l.state != StateHaveMPD || l.contour.Len() == 0 {
		return nil, fmt.Errorf("%w: segment data in state %s", ErrUnexpectedEvent, l.state)
	}
	if cur, ok := l.contour.At(id.SegmentIndex); !ok || cur != id {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContent, id)
	}

	info, known := l.storage.Lookup(id)
	if !known {
		rep := l.ladder[models.LadderIndex(l.ladder, id.BitRate)]
		duration := l.manifest.SegmentDuration(rep, id.SegmentIndex).Microseconds()
		if err := l.storage.InitSegment(id, -1, duration); err != nil {
			return nil, err
		}
		info.Size = -1
	}
	if info.Size < 0 && e.TotalSize >= 0 {
		if err := l.storage.SetSegmentSize(id, e.TotalSize); err != nil {
			return nil, err
		}
	}
	if len(e.Data) > 0 {
		if err := l.storage.AddData(id, e.ByteFrom, e.ByteTo, e.Data, false); err != nil {
			return nil, err
		}
		l.metrics.BytesReceived(len(e.Data))
	}
	if !e.IsLast {
		return nil, nil
	}

	info, _ = l.storage.Lookup(id)
	if !info.Completed {
		return nil, fmt.Errorf("%w: %s has %d of %d bytes", ErrIncomplete, id, info.Filled, info.Size)
	}
	return l.segmentCompleted(id, info)
}

func (l *Logic) segmentCompleted(id models.ContentIDSegment, info storage.Info) ([]Action, error) {
	now := l.now()
	started, ok := l.requestedAt[id]
	if !ok {
		started = now
	}
	delete(l.requestedAt, id)

	l.ack(id)
	l.completed++
	l.receivedUsec += info.Duration
	l.meter.Record(started, now, info.Size)
	l.metrics.SegmentCompleted(info.Size, now.Sub(started))
	l.metrics.BufferLevel(l.bufferLevel())
	l.logger.Debugf("Completed %s: %d bytes in %s, buffer %.3fs", id, info.Size, now.Sub(started), l.bufferLevel())

	if l.nextIndex >= l.endIndex {
		return nil, nil
	}

	decision := l.engine.SelectRepresentation(l.input())
	l.metrics.DecisionMade(decision.Reason.String(), l.ladder[decision.Representation].Bandwidth)
	l.logger.Debugf("Decision for segment %d: %s", l.nextIndex, decision)

	if decision.Delayed() && l.bufferLevel() > decision.DelayUntil {
		l.deferred = &decision
		return nil, nil
	}
	act, err := l.requestSegment(decision.Representation)
	if err != nil {
		return nil, err
	}
	return []Action{act}, nil
}

func (l *Logic) onDataPlayed(e DataPlayed) ([]Action, error) {
	if l.state != StateHaveMPD {
		return nil, fmt.Errorf("%w: data played in state %s", ErrUnexpectedEvent, l.state)
	}

	l.playedUsec += e.Usec
	l.playedBytes += e.Bytes
	if e.Position.Valid() {
		l.lastPlayed = e.Position
	}
	beta := l.bufferLevel()
	l.monitor.Observe(l.now(), beta)
	l.metrics.BufferLevel(beta)

	var actions []Action
	if l.deferred != nil && beta <= l.deferred.DelayUntil {
		rep := l.deferred.Representation
		l.deferred = nil
		act, err := l.requestSegment(rep)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}

	if l.playedToEnd() {
		l.logger.Infof("Played last segment %d, session done", l.endIndex-1)
		l.finish()
	}
	return actions, nil
}

func (l *Logic) onDisconnect(e Disconnect) ([]Action, error) {
	if e.ConnID == uuid.Nil {
		l.logger.Infof("Session disconnected in state %s", l.state)
		l.finish()
		return nil, nil
	}

	kept := l.pending[:0]
	for _, p := range l.pending {
		if p.connID != e.ConnID {
			kept = append(kept, p)
		}
	}
	dropped := len(l.pending) - len(kept)
	l.pending = kept
	l.metrics.PendingActions(len(l.pending))
	l.logger.Debugf("Disconnect %s dropped %d pending actions", e.ConnID, dropped)
	return nil, nil
}

func (l *Logic) playedToEnd() bool {
	if l.nextIndex < l.endIndex || l.deferred != nil || !l.lastPlayed.Valid() {
		return false
	}
	if l.lastPlayed.Segment.SegmentIndex != l.endIndex-1 {
		return false
	}
	info, ok := l.storage.Lookup(l.lastPlayed.Segment)
	return ok && info.Completed && l.lastPlayed.Byte == info.Size-1
}

func (l *Logic) finish() {
	l.state = StateDone
	l.pending = nil
	l.deferred = nil
	l.metrics.PendingActions(0)
}

// requestSegment appends the next segment at representation rep to the contour
// and returns the action that downloads it.
func (l *Logic) requestSegment(rep int) (Action, error) {
	r := l.ladder[rep]
	id := models.NewSegmentID(r.Bandwidth, l.nextIndex)
	url, err := l.manifest.SegmentURL(r, l.nextIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: segment url for %s: %w", ErrManifest, id, err)
	}
	if err := l.contour.SetNext(id); err != nil {
		return nil, err
	}

	l.currentRep = rep
	l.nextIndex++
	l.requestedAt[id] = l.now()
	return l.issue(newStartDownload(id, url)), nil
}

func (l *Logic) issue(a StartDownload) StartDownload {
	l.pending = append(l.pending, newPendingAction(a))
	l.metrics.PendingActions(len(l.pending))
	return a
}

func (l *Logic) ack(id models.ContentID) int {
	removed := 0
	kept := l.pending[:0]
	for _, p := range l.pending {
		removed += p.remove(id)
		if len(p.ids) > 0 {
			kept = append(kept, p)
		}
	}
	l.pending = kept
	l.metrics.PendingActions(len(l.pending))
	return removed
}

func (l *Logic) input() adaptation.Input {
	return adaptation.Input{
		BufferMinIncreasing:  l.monitor.Increasing(),
		Beta:                 l.bufferLevel(),
		Rho:                  l.meter.Rho(),
		RhoLast:              l.meter.RhoLast(),
		CompletedRequests:    l.completed,
		MinCompletedRequests: l.opts.MinCompletedRequests,
		LastRepresentation:   l.currentRep,
	}
}

// bufferLevel is completed-but-unplayed media in seconds, never negative.
func (l *Logic) bufferLevel() float64 {
	usec := l.receivedUsec - l.playedUsec
	if usec < 0 {
		return 0
	}
	return float64(usec) / 1e6
}
