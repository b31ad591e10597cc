package dash

import (
	"encoding/xml"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPart = regexp.MustCompile(`(\d+\.?\d*)([DHMS])`)

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MaxSegmentDuration        string   `xml:"maxSegmentDuration,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	BaseURL                   string   `xml:"BaseURL"`
	Periods                   []Period `xml:"Period"`
}

// GetMediaPresentationDuration returns the total presentation length, or 0 if absent.
func (m *MPD) GetMediaPresentationDuration() (time.Duration, error) {
	if m.MediaPresentationDuration == "" {
		return 0, nil
	}
	return parseDuration(m.MediaPresentationDuration)
}

// parseDuration parses an ISO 8601 duration string like "PT8S" or "P1DT2H".
func parseDuration(duration string) (time.Duration, error) {
	if !strings.HasPrefix(duration, "P") {
		// Fallback for simple duration strings like "5s"
		return time.ParseDuration(duration)
	}

	duration = strings.Replace(strings.TrimPrefix(duration, "P"), "T", "", 1)
	if duration == "" {
		return 0, nil
	}
	matches := durationPart.FindAllStringSubmatch(duration, -1)
	if len(matches) == 0 {
		return 0, errors.New("invalid ISO 8601 duration format")
	}

	var totalDuration time.Duration
	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, err
		}

		switch match[2] {
		case "D":
			totalDuration += time.Duration(value * float64(24*time.Hour))
		case "H":
			totalDuration += time.Duration(value * float64(time.Hour))
		case "M":
			totalDuration += time.Duration(value * float64(time.Minute))
		case "S":
			totalDuration += time.Duration(value * float64(time.Second))
		}
	}

	return totalDuration, nil
}

// Period represents a media content period.
type Period struct {
	ID       string          `xml:"id,attr"`
	Start    string          `xml:"start,attr"`
	Duration string          `xml:"duration,attr"`
	BaseURL  string          `xml:"BaseURL"`
	Sets     []AdaptationSet `xml:"AdaptationSet"`
}

// GetDuration returns the Period's duration, or 0 if absent.
func (p *Period) GetDuration() (time.Duration, error) {
	if p.Duration == "" {
		return 0, nil
	}
	return parseDuration(p.Duration)
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	ID               string           `xml:"id,attr"`
	ContentType      string           `xml:"contentType,attr"`
	MimeType         string           `xml:"mimeType,attr"`
	SegmentAlignment bool             `xml:"segmentAlignment,attr"`
	MaxWidth         int              `xml:"maxWidth,attr,omitempty"`
	MaxHeight        int              `xml:"maxHeight,attr,omitempty"`
	BaseURL          string           `xml:"BaseURL"`
	Representations  []Representation `xml:"Representation"`
	SegmentTemplate  *SegmentTemplate `xml:"SegmentTemplate"`
}

// IsVideo reports whether the set carries video.
func (as *AdaptationSet) IsVideo() bool {
	if as.ContentType == "video" || strings.HasPrefix(as.MimeType, "video/") {
		return true
	}
	for _, r := range as.Representations {
		if strings.HasPrefix(r.MimeType, "video/") || r.Width > 0 {
			return true
		}
	}
	return false
}

// Representation represents a specific media stream.
type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int64            `xml:"bandwidth,attr"`
	Codecs          string           `xml:"codecs,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	Width           int              `xml:"width,attr,omitempty"`
	Height          int              `xml:"height,attr,omitempty"`
	FrameRate       string           `xml:"frameRate,attr,omitempty"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
}

// SegmentTemplate defines the URL structure for segments.
type SegmentTemplate struct {
	Timescale      uint64           `xml:"timescale,attr"`
	Duration       uint64           `xml:"duration,attr"`
	StartNumber    *int64           `xml:"startNumber,attr"`
	Initialization string           `xml:"initialization,attr"`
	Media          string           `xml:"media,attr"`
	Timeline       *SegmentTimeline `xml:"SegmentTimeline"`
}

// GetTimescale returns the timescale, defaulting to 1.
func (st *SegmentTemplate) GetTimescale() uint64 {
	if st.Timescale == 0 {
		return 1
	}
	return st.Timescale
}

// GetStartNumber returns the number of the first segment, defaulting to 1.
func (st *SegmentTemplate) GetStartNumber() int64 {
	if st.StartNumber == nil {
		return 1
	}
	return *st.StartNumber
}

// SegmentTimeline defines the timeline of segments.
type SegmentTimeline struct {
	Segments []S `xml:"S"`
}

// S represents a single segment or a series of segments.
type S struct {
	T *uint64 `xml:"t,attr"`           // Start time
	D uint64  `xml:"d,attr"`           // Duration
	R int     `xml:"r,attr,omitempty"` // Repeat count
}
