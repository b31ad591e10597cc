package storage

import (
	"dashplayer/internal/models"
	"fmt"
)

var (
	ErrDuplicateSegment = fmt.Errorf("%w: segment already initialized", models.ErrProtocolViolation)
	ErrUnknownSegment   = fmt.Errorf("%w: segment not initialized", models.ErrProtocolViolation)
	ErrOverwrite        = fmt.Errorf("%w: byte range already written", models.ErrProtocolViolation)
	ErrOutOfRange       = fmt.Errorf("%w: byte range out of bounds", models.ErrProtocolViolation)
	ErrSizeUnknown      = fmt.Errorf("%w: segment size not known yet", models.ErrProtocolViolation)
	ErrSizeKnown        = fmt.Errorf("%w: segment size already known", models.ErrProtocolViolation)

	// ErrBrokenChain is returned when a read crosses into a successor segment and
	// copies nothing although the contiguity walk said data was there.
	ErrBrokenChain = fmt.Errorf("%w: contiguous read stalled at a segment boundary", models.ErrCorruption)
)
