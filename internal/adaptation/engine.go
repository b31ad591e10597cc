package adaptation

import (
	"dashplayer/internal/models"
	"errors"
	"fmt"
	"math"
	"time"
)

// NoDelay as Decision.DelayUntil means the next request is issued immediately.
var NoDelay = math.Inf(1)

// ErrEmptyLadder is returned by NewEngine when there is nothing to choose from.
var ErrEmptyLadder = errors.New("adaptation: empty representation ladder")

// Input is one observation of the session fed to SelectRepresentation.
type Input struct {
	// BufferMinIncreasing reports whether the bucketed buffer minimum has never decreased.
	BufferMinIncreasing bool
	// Beta is the buffer level in seconds.
	Beta float64
	// Rho is the averaged throughput in bits/s.
	Rho float64
	// RhoLast is the throughput of the most recent request in bits/s.
	RhoLast              float64
	CompletedRequests    int
	MinCompletedRequests int
	// LastRepresentation is the ladder index of the previous choice.
	LastRepresentation int
}

// Decision is the outcome of SelectRepresentation.
type Decision struct {
	// Representation is a ladder index.
	Representation int
	// DelayUntil is the buffer level in seconds the next request should wait for,
	// or NoDelay.
	DelayUntil float64
	Reason     Reason
}

// Delayed reports whether the decision asks to wait before requesting.
func (d Decision) Delayed() bool {
	return !math.IsInf(d.DelayUntil, 1)
}

func (d Decision) String() string {
	if d.Delayed() {
		return fmt.Sprintf("rep=%d delay_until=%.3fs reason=%s", d.Representation, d.DelayUntil, d.Reason)
	}
	return fmt.Sprintf("rep=%d reason=%s", d.Representation, d.Reason)
}

// Engine picks the representation of the next segment. It starts in the
// initial increase phase and leaves it for good the first time one of its
// exit conditions holds. Engine is not safe for concurrent use.
type Engine struct {
	params Params
	ladder []models.Representation

	initialIncrease    bool
	initialIncreaseEnd time.Time
	now                func() time.Time
}

// NewEngine creates an engine over a copy of ladder sorted by bandwidth.
func NewEngine(params Params, ladder []models.Representation) (*Engine, error) {
	if len(ladder) == 0 {
		return nil, ErrEmptyLadder
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid adaptation parameters: %w", err)
	}
	sorted := make([]models.Representation, len(ladder))
	copy(sorted, ladder)
	models.SortLadder(sorted)

	return &Engine{
		params:          params,
		ladder:          sorted,
		initialIncrease: true,
		now:             time.Now,
	}, nil
}

// SetClock replaces the clock used to stamp the end of the initial increase phase.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Ladder returns the sorted ladder the engine indexes into.
func (e *Engine) Ladder() []models.Representation {
	return e.ladder
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

// InInitialIncrease reports whether the initial increase phase is still active.
func (e *Engine) InInitialIncrease() bool {
	return e.initialIncrease
}

// InitialIncreaseEnd returns when the initial increase phase ended, or the zero time.
func (e *Engine) InitialIncreaseEnd() time.Time {
	return e.initialIncreaseEnd
}

// SelectRepresentation decides the next representation and how long to wait before requesting it.
func (e *Engine) SelectRepresentation(in Input) Decision {
	if in.CompletedRequests < in.MinCompletedRequests {
		return Decision{Representation: 0, DelayUntil: NoDelay, Reason: ReasonNotEnoughCompletedRequests}
	}

	cur := in.LastRepresentation
	if cur < 0 {
		cur = 0
	}
	if cur > e.highest() {
		cur = e.highest()
	}

	if e.initialIncrease {
		if cur == e.highest() || !in.BufferMinIncreasing || e.bandwidth(cur) > e.params.Alpha1*in.Rho {
			e.initialIncrease = false
			e.initialIncreaseEnd = e.now()
		} else {
			return e.initialPhase(cur, in)
		}
	}
	return e.steadyState(cur, in)
}

// initialPhase requires cur to be below the highest representation.
func (e *Engine) initialPhase(cur int, in Input) Decision {
	p := e.params
	next := e.bandwidth(cur + 1)

	switch {
	case in.Beta < p.BMin:
		if next <= p.Alpha2*in.Rho {
			return Decision{cur + 1, NoDelay, ReasonI0Up}
		}
		return Decision{cur, NoDelay, ReasonI0Hold}
	case in.Beta < p.BLow:
		if next <= p.Alpha3*in.Rho {
			return Decision{cur + 1, NoDelay, ReasonI1Up}
		}
		return Decision{cur, NoDelay, ReasonI1Hold}
	default:
		chosen, reason := cur, ReasonI2Hold
		if next <= p.Alpha4*in.Rho {
			chosen, reason = cur+1, ReasonI2Up
		}
		return Decision{chosen, p.BHigh - e.duration(chosen), reason}
	}
}

func (e *Engine) steadyState(cur int, in Input) Decision {
	p := e.params

	switch {
	case in.Beta < p.BMin:
		return Decision{0, NoDelay, ReasonNO0Lowest}
	case in.Beta < p.BLow:
		if cur == 0 {
			return Decision{0, NoDelay, ReasonNO1HoldLowest}
		}
		if in.RhoLast > e.bandwidth(cur) {
			return Decision{cur, NoDelay, ReasonNO1Hold}
		}
		return Decision{cur - 1, NoDelay, ReasonNO1Down}
	case in.Beta < p.BHigh:
		delay := e.delayTarget(cur, in.Beta)
		if e.cannotStepUp(cur, in.Rho) {
			return Decision{cur, delay, ReasonNO2Delay}
		}
		return Decision{cur, delay, ReasonNO2Hold}
	default:
		if e.cannotStepUp(cur, in.Rho) {
			return Decision{cur, e.delayTarget(cur, in.Beta), ReasonNO3Delay}
		}
		return Decision{cur + 1, NoDelay, ReasonNO3Up}
	}
}

// delayTarget is the buffer level to wait for while holding cur.
func (e *Engine) delayTarget(cur int, beta float64) float64 {
	return math.Max(beta-e.duration(cur), (e.params.BLow+e.params.BHigh)/2)
}

func (e *Engine) cannotStepUp(cur int, rho float64) bool {
	return cur == e.highest() || e.bandwidth(cur+1) >= e.params.Alpha5*rho
}

func (e *Engine) highest() int {
	return len(e.ladder) - 1
}

func (e *Engine) bandwidth(i int) float64 {
	return float64(e.ladder[i].Bandwidth)
}

func (e *Engine) duration(i int) float64 {
	return e.ladder[i].SegmentDuration.Seconds()
}
