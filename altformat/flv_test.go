package altformat

import (
	"testing"

	"github.com/stretchr/testify/require"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/bucket"
	"github.com/ccampbell/fmp4split/sampletable"
)

func TestWriteFLVVideoRequiresAvcConfig(t *testing.T) {
	track := &sampletable.Track{Kind: sampletable.KindVideo, TimeScale: 1000}
	var buckets bucket.List
	err := WriteFLVTrack(&buckets, track, 0, 1)
	require.Error(t, err)
}

func TestWriteFLVVideoMarksSyncFramesAsKeyframes(t *testing.T) {
	track := &sampletable.Track{
		Kind: sampletable.KindVideo, TimeScale: 1000,
		AvcConfig: &fmp4split.AvcConfig{Sps: [][]byte{{0x01}}, Pps: [][]byte{{0x02}}},
		Samples: []sampletable.Sample{
			{Offset: 0, Size: 10, IsSync: true},
			{Offset: 10, Size: 10, IsSync: false},
		},
	}
	var buckets bucket.List
	err := WriteFLVTrack(&buckets, track, 0, 2)
	require.NoError(t, err)

	// buckets: [seq header][tag0 header][tag0 payload][tag1 header][tag1 payload]
	require.Len(t, buckets, 5)
	keyframeTag := buckets[1].Bytes
	interTag := buckets[3].Bytes
	require.Equal(t, byte(1<<4|flvVideoCodecIDAVC), keyframeTag[0])
	require.Equal(t, byte(2<<4|flvVideoCodecIDAVC), interTag[0])
}

func TestWriteFLVAudioWithoutEsdsEmitsBareSequenceHeader(t *testing.T) {
	track := &sampletable.Track{Kind: sampletable.KindAudio, TimeScale: 1000}
	var buckets bucket.List
	err := WriteFLVTrack(&buckets, track, 0, 0)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, []byte{0xaf, rtmpAACSequenceHeader}, buckets[0].Bytes)
}
