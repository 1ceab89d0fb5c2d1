package split

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccampbell/fmp4split/sampletable"
)

// videoTrack builds a 10-sample, 1-second-timescale video track with a
// sync sample every other sample (0, 2, 4, 6, 8), matching the shape
// get_aligned_start_and_end is grounded on: a track with its own stss.
func videoTrack() *sampletable.Track {
	samples := make([]sampletable.Sample, 11)
	for i := 0; i < 10; i++ {
		samples[i] = sampletable.Sample{
			DTS:          int64(i),
			Duration:     1,
			Size:         100,
			IsSync:       i%2 == 0,
			IsSmoothSync: i%2 == 0,
		}
	}
	samples[10] = sampletable.Sample{DTS: 10, IsSync: true, IsSmoothSync: true}
	return &sampletable.Track{
		ID: 1, Kind: sampletable.KindVideo, TimeScale: 10,
		Samples: samples, HasSyncTable: true,
	}
}

func TestPlanAlignsToSyncSample(t *testing.T) {
	tr := videoTrack()
	ranges, err := Plan([]*sampletable.Track{tr}, 10, 3, 7)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	require.Equal(t, 2, ranges[0].StartSample, "rounds start down to the preceding sync sample")
	require.Equal(t, 6, ranges[0].EndSample, "rounds end down to the preceding sync sample")
}

func TestPlanZeroStartAndEndCoverWholeTrack(t *testing.T) {
	tr := videoTrack()
	ranges, err := Plan([]*sampletable.Track{tr}, 10, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, ranges[0].StartSample)
	require.Equal(t, 10, ranges[0].EndSample)
}

func TestPlanEmptyRangeAfterAlignment(t *testing.T) {
	tr := videoTrack()
	// start and end fall in the same sync-sample run (between keyframes
	// 4 and 6), so both floor to sample 4 and the resolved range is empty.
	_, err := Plan([]*sampletable.Track{tr}, 10, 5, 5)
	require.Error(t, err)
}
