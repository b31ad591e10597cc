package adaptation

import "fmt"

// Reason names the branch that produced a decision. It has no effect on behavior.
type Reason int

const (
	ReasonNotEnoughCompletedRequests Reason = iota
	ReasonI0Up
	ReasonI0Hold
	ReasonI1Up
	ReasonI1Hold
	ReasonI2Up
	ReasonI2Hold
	ReasonNO0Lowest
	ReasonNO1HoldLowest
	ReasonNO1Hold
	ReasonNO1Down
	ReasonNO2Delay
	ReasonNO2Hold
	ReasonNO3Delay
	ReasonNO3Up
)

var reasonNames = [...]string{
	ReasonNotEnoughCompletedRequests: "NOT_ENOUGH_COMPLETED_REQUESTS",
	ReasonI0Up:                       "I0_UP",
	ReasonI0Hold:                     "I0_HOLD",
	ReasonI1Up:                       "I1_UP",
	ReasonI1Hold:                     "I1_HOLD",
	ReasonI2Up:                       "I2_UP",
	ReasonI2Hold:                     "I2_HOLD",
	ReasonNO0Lowest:                  "NO0_LOWEST",
	ReasonNO1HoldLowest:              "NO1_HOLD_LOWEST",
	ReasonNO1Hold:                    "NO1_HOLD",
	ReasonNO1Down:                    "NO1_DOWN",
	ReasonNO2Delay:                   "NO2_DELAY",
	ReasonNO2Hold:                    "NO2_HOLD",
	ReasonNO3Delay:                   "NO3_DELAY",
	ReasonNO3Up:                      "NO3_UP",
}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Reasons returns every reason in declaration order.
func Reasons() []Reason {
	out := make([]Reason, len(reasonNames))
	for i := range out {
		out[i] = Reason(i)
	}
	return out
}
