package fragment

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccampbell/fmp4split/sampletable"
)

func TestScaleTime(t *testing.T) {
	require.Equal(t, int64(10), ScaleTime(1, 1, 10))
	require.Equal(t, int64(1), ScaleTime(10, 10, 1))
	require.Equal(t, int64(5), ScaleTime(5, 1, 1))
	require.Equal(t, int64(0), ScaleTime(5, 0, 10))
}

func genericTrack(data string) *sampletable.Track {
	samples := make([]sampletable.Sample, 4)
	offset := int64(0)
	for i := 0; i < 3; i++ {
		samples[i] = sampletable.Sample{
			Offset: offset, Size: 4, Duration: 1, DTS: int64(i),
			IsSync: i == 0, IsSmoothSync: i == 0,
		}
		offset += 4
	}
	samples[3] = sampletable.Sample{DTS: 3, IsSync: true, IsSmoothSync: true}
	return &sampletable.Track{
		ID: 7, Kind: sampletable.KindAudio, TimeScale: 1, Samples: samples,
	}
}

func TestBuildFragmentRawPassesSampleBytesThrough(t *testing.T) {
	src := strings.NewReader("aaaabbbbcccc")
	tr := genericTrack("aaaabbbbcccc")

	result, err := BuildFragment(src, tr, 0, 3, 1, 0, FormatRaw)
	require.NoError(t, err)
	require.Nil(t, result.Moof)

	var buf bytes.Buffer
	_, err = result.Payload.WriteTo(&buf, src)
	require.NoError(t, err)
	require.Equal(t, "aaaabbbbcccc", buf.String())
}

func TestBuildFragmentMP4WrapsMdatAndMoof(t *testing.T) {
	src := strings.NewReader("aaaabbbbcccc")
	tr := genericTrack("aaaabbbbcccc")

	result, err := BuildFragment(src, tr, 0, 3, 5, 1000, FormatMP4)
	require.NoError(t, err)
	require.NotEmpty(t, result.Moof)
	require.Equal(t, "moof", string(result.Moof[4:8]))

	var buf bytes.Buffer
	_, err = result.Payload.WriteTo(&buf, src)
	require.NoError(t, err)
	require.Equal(t, "mdat", buf.String()[4:8])
	require.Contains(t, buf.String(), "aaaabbbbcccc")
}

func TestBuildFragmentRejectsInvalidRange(t *testing.T) {
	tr := genericTrack("aaaabbbbcccc")
	_, err := BuildFragment(strings.NewReader(""), tr, 2, 1, 1, 0, FormatMP4)
	require.Error(t, err)
}
