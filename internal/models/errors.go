package models

import "errors"

var (
	// ErrProtocolViolation marks a broken caller contract: an event that is not valid in the
	// current state, a duplicate registration, an out-of-order contour insertion or a lookup
	// of content that was never registered. These are never transient.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCorruption marks internal state that contradicts itself.
	ErrCorruption = errors.New("internal state corruption")
)

// IsFatal reports whether err belongs to one of the unrecoverable categories.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocolViolation) || errors.Is(err, ErrCorruption)
}
