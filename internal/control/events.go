package control

import (
	"dashplayer/internal/models"
	"fmt"

	"github.com/google/uuid"
)

// Event is one input of the control logic. The set is closed: DataReceived,
// DataPlayed, StartPlayback and Disconnect.
type Event interface {
	event()
}

// DataReceived carries one chunk of a download.
type DataReceived struct {
	ConnID    uuid.UUID
	ContentID models.ContentID
	// URL is where the data was served from after redirects. It may be empty.
	URL string
	// ByteFrom and ByteTo are inclusive. Data is empty for a zero-length body.
	ByteFrom int64
	ByteTo   int64
	Data     []byte
	// TotalSize is the full content size, or -1 if unknown.
	TotalSize int64
	IsLast    bool
}

// DataPlayed reports what the playback consumer read.
type DataPlayed struct {
	// Position is the last byte read.
	Position models.StreamPosition
	Bytes    int64
	Usec     int64
}

// StartPlayback asks for the manifest to be fetched, or marks playback as
// started once it has been.
type StartPlayback struct {
	ManifestURL string
}

// Disconnect drops the pending actions of a connection. The nil UUID ends the session.
type Disconnect struct {
	ConnID uuid.UUID
}

func (DataReceived) event()  {}
func (DataPlayed) event()    {}
func (StartPlayback) event() {}
func (Disconnect) event()    {}

func (e DataReceived) String() string {
	return fmt.Sprintf("DataReceived(%s [%d,%d] last=%t)", e.ContentID, e.ByteFrom, e.ByteTo, e.IsLast)
}

func (e DataPlayed) String() string {
	return fmt.Sprintf("DataPlayed(%s bytes=%d usec=%d)", e.Position, e.Bytes, e.Usec)
}

func (e StartPlayback) String() string {
	return fmt.Sprintf("StartPlayback(%s)", e.ManifestURL)
}

func (e Disconnect) String() string {
	return fmt.Sprintf("Disconnect(%s)", e.ConnID)
}
