package dash

// TimelineEntry is one segment of an expanded SegmentTimeline, in timescale units.
type TimelineEntry struct {
	Time     uint64
	Duration uint64
}

// ExpandTimeline flattens a SegmentTimeline into one entry per segment.
// A negative repeat count on the last S element repeats it until total
// (in timescale units) is reached; total 0 treats it as a single segment.
func ExpandTimeline(tl *SegmentTimeline, total uint64) []TimelineEntry {
	if tl == nil {
		return nil
	}

	var entries []TimelineEntry
	var currentTime uint64
	for i, s := range tl.Segments {
		// If t is specified, it's an absolute start time.
		if s.T != nil {
			currentTime = *s.T
		}
		if s.D == 0 {
			continue
		}

		repeats := s.R
		if repeats < 0 {
			repeats = 0
			end := total
			if i+1 < len(tl.Segments) && tl.Segments[i+1].T != nil {
				end = *tl.Segments[i+1].T
			}
			if end > currentTime {
				repeats = int((end-currentTime+s.D-1)/s.D) - 1
			}
		}

		// r counts the segments that follow with the same duration.
		for n := 0; n <= repeats; n++ {
			entries = append(entries, TimelineEntry{Time: currentTime, Duration: s.D})
			currentTime += s.D
		}
	}
	return entries
}
