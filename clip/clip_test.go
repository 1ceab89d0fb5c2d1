package clip

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccampbell/fmp4split/sampletable"
)

func TestScaleTime(t *testing.T) {
	require.Equal(t, int64(10), scaleTime(1, 1, 10))
	require.Equal(t, int64(5), scaleTime(5, 1, 1))
	require.Equal(t, int64(0), scaleTime(5, 0, 10))
}

func TestRLEDurationsCollapsesRuns(t *testing.T) {
	samples := []sampletable.Sample{
		{Duration: 10}, {Duration: 10}, {Duration: 20}, {Duration: 20}, {Duration: 20},
	}
	entries := rleDurations(samples)
	require.Equal(t, 2, len(entries))
	require.EqualValues(t, 2, entries[0].Count)
	require.EqualValues(t, 10, entries[0].Duration)
	require.EqualValues(t, 3, entries[1].Count)
	require.EqualValues(t, 20, entries[1].Duration)
}

func TestRLECompositionNilWhenAllZero(t *testing.T) {
	samples := []sampletable.Sample{{PresentationOffset: 0}, {PresentationOffset: 0}}
	require.Nil(t, rleComposition(samples))
}

func TestRLECompositionCollapsesRuns(t *testing.T) {
	samples := []sampletable.Sample{
		{PresentationOffset: 0}, {PresentationOffset: 512}, {PresentationOffset: 512},
	}
	entries := rleComposition(samples)
	require.Len(t, entries, 2)
	require.EqualValues(t, 1, entries[0].Count)
	require.EqualValues(t, 0, entries[0].Offset)
	require.EqualValues(t, 2, entries[1].Count)
	require.EqualValues(t, 512, entries[1].Offset)
}

func TestResolveOffsetsLaysOutTracksContiguously(t *testing.T) {
	layouts := []*trackLayout{{size: 100}, {size: 50}, {size: 25}}
	resolveOffsets(layouts, 1000)
	require.Equal(t, int64(1000), layouts[0].offset)
	require.Equal(t, int64(1100), layouts[1].offset)
	require.Equal(t, int64(1150), layouts[2].offset)
}
