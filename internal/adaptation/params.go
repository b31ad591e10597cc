package adaptation

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Params are the thresholds and weights of the adaptation heuristic.
// Buffer thresholds are in seconds.
type Params struct {
	BMin  float64
	BLow  float64
	BHigh float64

	// Alpha1 ends the initial increase phase once the current bandwidth exceeds Alpha1*rho.
	Alpha1 float64
	// Alpha2..Alpha4 gate stepping up during the initial increase phase, one per buffer tier.
	Alpha2 float64
	Alpha3 float64
	Alpha4 float64
	// Alpha5 gates stepping up in the steady state.
	Alpha5 float64

	// DeltaT is the throughput averaging window and the buffer monitor bucket width.
	DeltaT time.Duration
}

// DefaultParams returns the stock parameter set.
func DefaultParams() Params {
	return Params{
		BMin:   10,
		BLow:   20,
		BHigh:  50,
		Alpha1: 0.75,
		Alpha2: 0.33,
		Alpha3: 0.5,
		Alpha4: 0.75,
		Alpha5: 0.9,
		DeltaT: 10 * time.Second,
	}
}

// Validate reports every inconsistent parameter.
func (p Params) Validate() error {
	var result *multierror.Error

	if p.BMin < 0 {
		result = multierror.Append(result, fmt.Errorf("bmin must not be negative, got %g", p.BMin))
	}
	if !(p.BMin < p.BLow && p.BLow < p.BHigh) {
		result = multierror.Append(result, fmt.Errorf("thresholds must satisfy bmin < blow < bhigh, got %g/%g/%g", p.BMin, p.BLow, p.BHigh))
	}
	for i, a := range []float64{p.Alpha1, p.Alpha2, p.Alpha3, p.Alpha4, p.Alpha5} {
		if a <= 0 || a > 1 {
			result = multierror.Append(result, fmt.Errorf("alpha%d must be in (0,1], got %g", i+1, a))
		}
	}
	if p.DeltaT <= 0 {
		result = multierror.Append(result, fmt.Errorf("delta_t must be positive, got %s", p.DeltaT))
	}
	return result.ErrorOrNil()
}
