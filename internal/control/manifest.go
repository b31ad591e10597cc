package control

import (
	"dashplayer/internal/models"
	"time"
)

// Manifest is the view of a parsed manifest the control logic needs.
type Manifest interface {
	Representations() []models.Representation
	SegmentURL(rep models.Representation, index int64) (string, error)
	SegmentDuration(rep models.Representation, index int64) time.Duration
	SegmentCount() int64
	Resolutions() []models.Resolution
}

// ManifestParser turns a downloaded manifest into a Manifest. baseURL is the
// address the manifest was fetched from.
type ManifestParser func(data []byte, baseURL string) (Manifest, error)

// Metrics receives observations from the control logic. A nil Metrics is allowed.
type Metrics interface {
	DecisionMade(reason string, bandwidth int64)
	BytesReceived(n int)
	SegmentCompleted(bytes int64, elapsed time.Duration)
	BufferLevel(seconds float64)
	PendingActions(n int)
}

type noopMetrics struct{}

func (noopMetrics) DecisionMade(string, int64)            {}
func (noopMetrics) BytesReceived(int)                     {}
func (noopMetrics) SegmentCompleted(int64, time.Duration) {}
func (noopMetrics) BufferLevel(float64)                   {}
func (noopMetrics) PendingActions(int)                    {}
