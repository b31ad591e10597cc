package adaptation

import (
	"dashplayer/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLadder() []models.Representation {
	return []models.Representation{
		{ID: "hi", Bandwidth: 2000000, SegmentDuration: 2 * time.Second},
		{ID: "lo", Bandwidth: 500000, SegmentDuration: 2 * time.Second},
		{ID: "mid", Bandwidth: 1000000, SegmentDuration: 2 * time.Second},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultParams(), testLadder())
	require.NoError(t, err)
	return e
}

// leaveInitialPhase forces the engine into the steady state.
func leaveInitialPhase(t *testing.T, e *Engine) {
	t.Helper()
	e.SelectRepresentation(Input{BufferMinIncreasing: false, Beta: 30, Rho: 1e6})
	require.False(t, e.InInitialIncrease())
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrEmptyLadder)

	bad := DefaultParams()
	bad.BLow = 5
	_, err = NewEngine(bad, testLadder())
	assert.Error(t, err)

	e := newTestEngine(t)
	assert.Equal(t, "lo", e.Ladder()[0].ID)
	assert.Equal(t, "hi", e.Ladder()[2].ID)
	assert.True(t, e.InInitialIncrease())
}

func TestSelectRepresentation_NotEnoughCompletedRequests(t *testing.T) {
	e := newTestEngine(t)
	inputs := []Input{
		{Beta: 100, Rho: 1e9, RhoLast: 1e9, BufferMinIncreasing: true, LastRepresentation: 2, MinCompletedRequests: 1},
		{Beta: 0, Rho: 0, LastRepresentation: 1, MinCompletedRequests: 3, CompletedRequests: 2},
	}
	for _, in := range inputs {
		d := e.SelectRepresentation(in)
		assert.Equal(t, 0, d.Representation)
		assert.Equal(t, NoDelay, d.DelayUntil)
		assert.False(t, d.Delayed())
		assert.Equal(t, ReasonNotEnoughCompletedRequests, d.Reason)
	}
	assert.True(t, e.InInitialIncrease(), "the warm-up gate does not touch phase state")
}

func TestSelectRepresentation_Deterministic(t *testing.T) {
	in := Input{BufferMinIncreasing: true, Beta: 25, Rho: 2e6, RhoLast: 2e6, LastRepresentation: 0}
	a := newTestEngine(t).SelectRepresentation(in)
	b := newTestEngine(t).SelectRepresentation(in)
	assert.Equal(t, a, b)
}

func TestSelectRepresentation_InitialIncrease(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		expect Decision
	}{
		{
			name:   "I0 hold when next exceeds alpha2*rho",
			in:     Input{BufferMinIncreasing: true, Beta: 5, Rho: 3e6},
			expect: Decision{0, NoDelay, ReasonI0Hold},
		},
		{
			name:   "I0 up",
			in:     Input{BufferMinIncreasing: true, Beta: 5, Rho: 4e6},
			expect: Decision{1, NoDelay, ReasonI0Up},
		},
		{
			name:   "I1 up at bmin boundary",
			in:     Input{BufferMinIncreasing: true, Beta: 10, Rho: 2e6},
			expect: Decision{1, NoDelay, ReasonI1Up},
		},
		{
			name:   "I1 hold",
			in:     Input{BufferMinIncreasing: true, Beta: 15, Rho: 1.9e6},
			expect: Decision{0, NoDelay, ReasonI1Hold},
		},
		{
			name:   "I2 up delays by chosen duration",
			in:     Input{BufferMinIncreasing: true, Beta: 25, Rho: 2e6},
			expect: Decision{1, 48, ReasonI2Up},
		},
		{
			name:   "I2 hold delays by current duration",
			in:     Input{BufferMinIncreasing: true, Beta: 20, Rho: 1e6},
			expect: Decision{0, 48, ReasonI2Hold},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t)
			d := e.SelectRepresentation(tc.in)
			assert.Equal(t, tc.expect, d)
			assert.True(t, e.InInitialIncrease())
		})
	}
}

func TestSelectRepresentation_InitialIncreaseTermination(t *testing.T) {
	end := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("buffer minimum decreased", func(t *testing.T) {
		e := newTestEngine(t)
		e.SetClock(func() time.Time { return end })
		d := e.SelectRepresentation(Input{BufferMinIncreasing: false, Beta: 5, Rho: 1e9})
		assert.Equal(t, Decision{0, NoDelay, ReasonNO0Lowest}, d, "falls through to steady state")
		assert.False(t, e.InInitialIncrease())
		assert.Equal(t, end, e.InitialIncreaseEnd())
	})

	t.Run("highest reached", func(t *testing.T) {
		e := newTestEngine(t)
		d := e.SelectRepresentation(Input{BufferMinIncreasing: true, Beta: 30, Rho: 1e9, LastRepresentation: 2})
		assert.False(t, e.InInitialIncrease())
		assert.Equal(t, Decision{2, 35, ReasonNO2Delay}, d)
	})

	t.Run("current bandwidth above alpha1*rho", func(t *testing.T) {
		e := newTestEngine(t)
		e.SelectRepresentation(Input{BufferMinIncreasing: true, Beta: 5, Rho: 1.2e6, LastRepresentation: 1})
		assert.False(t, e.InInitialIncrease())
	})

	t.Run("ends only once", func(t *testing.T) {
		e := newTestEngine(t)
		e.SetClock(func() time.Time { return end })
		leaveInitialPhase(t, e)
		e.SetClock(func() time.Time { return end.Add(time.Hour) })
		e.SelectRepresentation(Input{BufferMinIncreasing: true, Beta: 5, Rho: 1e9})
		assert.Equal(t, end, e.InitialIncreaseEnd())
	})
}

func TestSelectRepresentation_SteadyState(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		expect Decision
	}{
		{
			name:   "NO0 lowest regardless of rho",
			in:     Input{Beta: 5, Rho: 1e12, LastRepresentation: 2},
			expect: Decision{0, NoDelay, ReasonNO0Lowest},
		},
		{
			name:   "NO0 lowest with no throughput",
			in:     Input{Beta: 5, Rho: 0, LastRepresentation: 1},
			expect: Decision{0, NoDelay, ReasonNO0Lowest},
		},
		{
			name:   "NO1 hold at lowest",
			in:     Input{Beta: 10, LastRepresentation: 0},
			expect: Decision{0, NoDelay, ReasonNO1HoldLowest},
		},
		{
			name:   "NO1 hold when last request was fast",
			in:     Input{Beta: 15, RhoLast: 1.5e6, LastRepresentation: 1},
			expect: Decision{1, NoDelay, ReasonNO1Hold},
		},
		{
			name:   "NO1 down when last request equals current bandwidth",
			in:     Input{Beta: 15, RhoLast: 1e6, LastRepresentation: 1},
			expect: Decision{0, NoDelay, ReasonNO1Down},
		},
		{
			name:   "NO2 hold when throughput supports stepping up",
			in:     Input{Beta: 40, Rho: 4e6, LastRepresentation: 1},
			expect: Decision{1, 38, ReasonNO2Hold},
		},
		{
			name:   "NO2 delay when throughput is insufficient",
			in:     Input{Beta: 20, Rho: 2e6, LastRepresentation: 1},
			expect: Decision{1, 35, ReasonNO2Delay},
		},
		{
			name:   "NO3 up",
			in:     Input{Beta: 60, Rho: 4e6, LastRepresentation: 1},
			expect: Decision{2, NoDelay, ReasonNO3Up},
		},
		{
			name:   "NO3 delay at bhigh when throughput is insufficient",
			in:     Input{Beta: 50, Rho: 2e6, LastRepresentation: 1},
			expect: Decision{1, 48, ReasonNO3Delay},
		},
		{
			name:   "NO3 delay at highest",
			in:     Input{Beta: 80, Rho: 1e12, LastRepresentation: 2},
			expect: Decision{2, 78, ReasonNO3Delay},
		},
		{
			name:   "last representation is clamped",
			in:     Input{Beta: 80, Rho: 1e12, LastRepresentation: 7},
			expect: Decision{2, 78, ReasonNO3Delay},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t)
			leaveInitialPhase(t, e)
			assert.Equal(t, tc.expect, e.SelectRepresentation(tc.in))
		})
	}
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "NOT_ENOUGH_COMPLETED_REQUESTS", ReasonNotEnoughCompletedRequests.String())
	assert.Equal(t, "NO3_UP", ReasonNO3Up.String())
	assert.Equal(t, "Reason(99)", Reason(99).String())
	assert.Len(t, Reasons(), 15)
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Alpha2 = 0
	p.Alpha5 = 1.5
	p.DeltaT = 0
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha2")
	assert.Contains(t, err.Error(), "alpha5")
	assert.Contains(t, err.Error(), "delta_t")
}
