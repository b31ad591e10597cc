package dash

import (
	"dashplayer/internal/models"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoVideo        = errors.New("manifest has no video adaptation set")
	ErrNoTemplate     = errors.New("representation has no SegmentTemplate")
	ErrUnknownLength  = errors.New("cannot determine the number of segments")
	ErrUnknownRep     = errors.New("representation not in manifest")
	ErrSegmentIndex   = errors.New("segment index out of range")
	templateParameter = regexp.MustCompile(`\$(RepresentationID|Number|Time|Bandwidth)(%0\d+d)?\$`)
)

// track is one representation with the template and base URL that apply to it.
type track struct {
	rep      models.Representation
	template *SegmentTemplate
	base     *url.URL
	timeline []TimelineEntry
}

// Manifest is the single-period, single-adaptation-set view of an MPD the
// player streams from.
type Manifest struct {
	mpd      *MPD
	tracks   map[string]*track
	ladder   []models.Representation
	segments int64
}

// ParseManifest parses an MPD fetched from baseURL. Only the first period and
// its first video adaptation set are used.
func ParseManifest(data []byte, baseURL string) (*Manifest, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MPD XML: %w", err)
	}
	if len(mpd.Periods) == 0 {
		return nil, errors.New("manifest has no period")
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest url '%s': %w", baseURL, err)
	}
	period := &mpd.Periods[0]
	for _, b := range []string{mpd.BaseURL, period.BaseURL} {
		if base, err = resolveBase(base, b); err != nil {
			return nil, err
		}
	}

	var as *AdaptationSet
	for i := range period.Sets {
		if period.Sets[i].IsVideo() {
			as = &period.Sets[i]
			break
		}
	}
	if as == nil {
		return nil, ErrNoVideo
	}
	if base, err = resolveBase(base, as.BaseURL); err != nil {
		return nil, err
	}

	total, err := presentationDuration(&mpd, period)
	if err != nil {
		return nil, err
	}

	m := &Manifest{mpd: &mpd, tracks: make(map[string]*track), segments: -1}
	for _, r := range as.Representations {
		tmpl := r.SegmentTemplate
		if tmpl == nil {
			tmpl = as.SegmentTemplate
		}
		if tmpl == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTemplate, r.ID)
		}
		repBase, err := resolveBase(base, r.BaseURL)
		if err != nil {
			return nil, err
		}

		t := &track{template: tmpl, base: repBase}
		scaledTotal := uint64(total.Seconds() * float64(tmpl.GetTimescale()))
		t.timeline = ExpandTimeline(tmpl.Timeline, scaledTotal)

		count, segDur, err := segmentCount(t, total)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.ID, err)
		}
		if m.segments < 0 || count < m.segments {
			m.segments = count
		}

		t.rep = models.Representation{
			ID:              r.ID,
			Bandwidth:       r.Bandwidth,
			Width:           r.Width,
			Height:          r.Height,
			SegmentDuration: segDur,
		}
		m.tracks[r.ID] = t
		m.ladder = append(m.ladder, t.rep)
	}
	if len(m.ladder) == 0 {
		return nil, fmt.Errorf("%w: no representations", ErrNoVideo)
	}
	models.SortLadder(m.ladder)
	return m, nil
}

// MPD returns the parsed document.
func (m *Manifest) MPD() *MPD {
	return m.mpd
}

// Representations returns the ladder sorted ascending by bandwidth.
func (m *Manifest) Representations() []models.Representation {
	out := make([]models.Representation, len(m.ladder))
	copy(out, m.ladder)
	return out
}

// SegmentCount returns the number of segments every representation provides.
func (m *Manifest) SegmentCount() int64 {
	return m.segments
}

// Resolutions returns the distinct resolutions offered, in ladder order.
func (m *Manifest) Resolutions() []models.Resolution {
	seen := make(map[models.Resolution]struct{})
	var out []models.Resolution
	for _, r := range m.ladder {
		res := r.Resolution()
		if _, ok := seen[res]; ok {
			continue
		}
		seen[res] = struct{}{}
		out = append(out, res)
	}
	return out
}

// SegmentDuration returns the duration of segment index of rep.
func (m *Manifest) SegmentDuration(rep models.Representation, index int64) time.Duration {
	t, ok := m.tracks[rep.ID]
	if !ok {
		return 0
	}
	if t.timeline != nil {
		if index < 0 || index >= int64(len(t.timeline)) {
			return 0
		}
		return scaled(t.timeline[index].Duration, t.template.GetTimescale())
	}
	return t.rep.SegmentDuration
}

// SegmentURL builds the absolute URL of segment index of rep.
func (m *Manifest) SegmentURL(rep models.Representation, index int64) (string, error) {
	t, ok := m.tracks[rep.ID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRep, rep.ID)
	}
	if index < 0 || index >= m.segments {
		return "", fmt.Errorf("%w: %d not in [0,%d)", ErrSegmentIndex, index, m.segments)
	}

	var segTime uint64
	if t.timeline != nil {
		segTime = t.timeline[index].Time
	} else {
		segTime = uint64(index) * t.template.Duration
	}

	mediaPath := templateParameter.ReplaceAllStringFunc(t.template.Media, func(p string) string {
		sub := templateParameter.FindStringSubmatch(p)
		var v int64
		switch sub[1] {
		case "RepresentationID":
			return t.rep.ID
		case "Number":
			v = t.template.GetStartNumber() + index
		case "Time":
			v = int64(segTime)
		case "Bandwidth":
			v = t.rep.Bandwidth
		}
		if sub[2] != "" {
			return fmt.Sprintf(sub[2], v)
		}
		return strconv.FormatInt(v, 10)
	})

	finalURL, err := resolveURL(t.base, mediaPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve media path: %w", err)
	}
	return finalURL.String(), nil
}

func segmentCount(t *track, total time.Duration) (int64, time.Duration, error) {
	ts := t.template.GetTimescale()
	if t.timeline != nil {
		if len(t.timeline) == 0 {
			return 0, 0, ErrUnknownLength
		}
		return int64(len(t.timeline)), scaled(t.timeline[0].Duration, ts), nil
	}
	if t.template.Duration == 0 || total <= 0 {
		return 0, 0, ErrUnknownLength
	}
	segDur := scaled(t.template.Duration, ts)
	return int64((total + segDur - 1) / segDur), segDur, nil
}

func presentationDuration(mpd *MPD, period *Period) (time.Duration, error) {
	d, err := period.GetDuration()
	if err != nil {
		return 0, fmt.Errorf("invalid period duration: %w", err)
	}
	if d > 0 {
		return d, nil
	}
	d, err = mpd.GetMediaPresentationDuration()
	if err != nil {
		return 0, fmt.Errorf("invalid mediaPresentationDuration: %w", err)
	}
	return d, nil
}

func scaled(v, timescale uint64) time.Duration {
	return time.Duration(float64(v) / float64(timescale) * float64(time.Second))
}

func resolveBase(base *url.URL, ref string) (*url.URL, error) {
	if strings.TrimSpace(ref) == "" {
		return base, nil
	}
	resolved, err := resolveURL(base, strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve BaseURL: %w", err)
	}
	return resolved, nil
}
