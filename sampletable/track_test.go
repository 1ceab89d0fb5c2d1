package sampletable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func videoTrackWithSync() *Track {
	samples := make([]Sample, 5)
	for i := 0; i < 4; i++ {
		samples[i] = Sample{DTS: int64(i) * 1000, IsSync: i%2 == 0, IsSmoothSync: i%2 == 0}
	}
	samples[4] = Sample{DTS: 4000, IsSync: true, IsSmoothSync: true}
	return &Track{ID: 1, Kind: KindVideo, TimeScale: 1000, Samples: samples, HasSyncTable: true}
}

func audioTrackWithoutStss(n int, timeScale uint32, increment int64) *Track {
	samples := make([]Sample, n+1)
	for i := 0; i <= n; i++ {
		samples[i] = Sample{DTS: int64(i) * increment, IsSync: true, IsSmoothSync: true}
	}
	return &Track{ID: 2, Kind: KindAudio, TimeScale: timeScale, Samples: samples, HasSyncTable: false}
}

func TestApplySmoothSyncProjectionFromVideo(t *testing.T) {
	video := videoTrackWithSync()
	audio := audioTrackWithoutStss(8, 1000, 100)

	applySmoothSyncProjection([]*Track{video, audio})

	require.True(t, audio.Samples[0].IsSmoothSync, "first audio sample is always a fragment boundary")

	count := 0
	for _, s := range audio.Samples[:len(audio.Samples)-1] {
		if s.IsSmoothSync {
			count++
		}
	}
	require.Less(t, count, len(audio.Samples)-1,
		"projection must not leave every audio sample marked as a fragment boundary")
}

func TestApplySmoothSyncProjectionEvery2SecondsWithoutVideo(t *testing.T) {
	// timescale 10, 1 unit/sample -> 0.1s apart; a 2s interval is 20 units.
	audio := audioTrackWithoutStss(40, 10, 1)
	applySmoothSyncProjection([]*Track{audio})

	require.True(t, audio.Samples[0].IsSmoothSync)
	boundaries := 0
	for _, s := range audio.Samples[:len(audio.Samples)-1] {
		if s.IsSmoothSync {
			boundaries++
		}
	}
	require.Less(t, boundaries, 40, "a 2-second cadence must produce far fewer boundaries than samples")
	require.Greater(t, boundaries, 0)
}

func TestApplySmoothSyncProjectionLeavesOwnStssTracksAlone(t *testing.T) {
	video := videoTrackWithSync()
	before := make([]bool, len(video.Samples))
	for i, s := range video.Samples {
		before[i] = s.IsSmoothSync
	}

	applySmoothSyncProjection([]*Track{video})

	for i, s := range video.Samples {
		require.Equal(t, before[i], s.IsSmoothSync, "a track with its own stss is never projected onto")
	}
}

func TestSyncRunsUsesSmoothSyncNotSync(t *testing.T) {
	samples := []Sample{
		{DTS: 0, IsSync: true, IsSmoothSync: true},
		{DTS: 1, IsSync: true, IsSmoothSync: false},
		{DTS: 2, IsSync: true, IsSmoothSync: true},
		{DTS: 3, IsSync: true, IsSmoothSync: false}, // terminal sentinel
	}
	tr := &Track{Samples: samples}
	runs := tr.SyncRuns()
	require.Equal(t, [][2]int{{0, 2}, {2, 3}}, runs)
}
