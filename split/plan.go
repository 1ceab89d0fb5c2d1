// Package split implements the keyframe-aligned range planner that turns a
// requested [start, end) time window (in movie timescale units) into a
// per-track [startSample, endSample) range, rounding both the start and
// the end of every track down to its nearest preceding sync sample.
//
// Grounded on get_aligned_start_and_end in the original C sources: a
// two-pass walk over all tracks, first the tracks that carry sync-sample
// information, then the tracks that don't, each pass re-deriving the
// shared start/end in movie time from whatever track the previous
// iteration refined them against. That cross-track mutation is preserved
// here exactly as in the original, not fixed, per the design notes on
// observed-but-intentional behavior.
package split

import (
	"sort"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/sampletable"
)

// Range is a track's resolved [StartSample, EndSample) window, both
// inclusive-exclusive indices into Track.Samples, always landing on a
// sync sample at both ends (when the track has sync-sample information).
type Range struct {
	Track       *sampletable.Track
	StartSample int
	EndSample   int
}

// Plan resolves start/end (in movie timescale units; end == 0 means "to
// the end of the movie") into a keyframe-aligned Range per track.
// Returns ErrEmptyRange if, after alignment, start >= end for any track.
func Plan(tracks []*sampletable.Track, movieTimeScale uint32, start, end uint64) ([]Range, error) {
	ranges := make([]Range, len(tracks))
	for i, t := range tracks {
		ranges[i] = Range{Track: t}
	}

	for pass := 0; pass != 2; pass++ {
		for i, t := range tracks {
			hasStss := t.HasSyncTable
			if pass == 0 && !hasStss {
				continue
			}
			if pass == 1 && hasStss {
				continue
			}

			if start == 0 {
				ranges[i].StartSample = 0
			} else {
				trakStart := movieTimeToTrackSample(t, movieTimeScale, start)
				trakStart = nearestKeyframeAtOrBefore(t, trakStart+1) - 1
				ranges[i].StartSample = trakStart
				start = trackSampleTimeToMovieTime(t, movieTimeScale, trakStart)
			}

			if end == 0 {
				ranges[i].EndSample = len(t.Samples) - 1
			} else {
				trakEnd := movieTimeToTrackSample(t, movieTimeScale, end)
				if trakEnd >= len(t.Samples)-1 {
					trakEnd = len(t.Samples) - 1
				} else {
					trakEnd = nearestKeyframeAtOrBefore(t, trakEnd+1) - 1
				}
				ranges[i].EndSample = trakEnd
				end = trackSampleTimeToMovieTime(t, movieTimeScale, trakEnd)
			}
		}
	}

	if end != 0 && start >= end {
		return nil, &fmp4split.BoxError{Err: fmp4split.ErrEmptyRange}
	}

	return ranges, nil
}

// movieTimeToTrackSample converts a movie-timescale instant into the
// index of the last sample whose DTS is <= the equivalent track-time
// instant.
func movieTimeToTrackSample(t *sampletable.Track, movieTimeScale uint32, movieTime uint64) int {
	trackTime := int64(movieTime) * int64(t.TimeScale) / int64(movieTimeScale)
	n := len(t.Samples) - 1 // exclude terminal sentinel
	idx := sort.Search(n, func(i int) bool {
		return t.Samples[i].DTS > trackTime
	})
	if idx > 0 {
		idx--
	}
	return idx
}

// nearestKeyframeAtOrBefore returns the sample index of the last sync
// sample at or before sampleIdx (1-based, matching the original's
// 1-based keyframe numbering convention and stss_get_nearest_keyframe's
// floor semantics: scan toward the start of the track and stop at the
// first sync sample found, rather than the first one reached scanning
// forward), or sample 1 if none precedes it.
func nearestKeyframeAtOrBefore(t *sampletable.Track, sampleIdx int) int {
	n := len(t.Samples) - 1
	for i := sampleIdx - 1; i >= 0; i-- {
		if i < n && t.Samples[i].IsSync {
			return i + 1
		}
	}
	return 1
}

func trackSampleTimeToMovieTime(t *sampletable.Track, movieTimeScale uint32, sampleIdx int) uint64 {
	if sampleIdx < 0 {
		sampleIdx = 0
	}
	if sampleIdx >= len(t.Samples) {
		sampleIdx = len(t.Samples) - 1
	}
	trackTime := t.Samples[sampleIdx].DTS
	return uint64(trackTime) * uint64(movieTimeScale) / uint64(t.TimeScale)
}
