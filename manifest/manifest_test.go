package manifest

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBitrateFromFilename(t *testing.T) {
	v, err := ParseBitrateFromFilename("video_1200000.ismv")
	require.NoError(t, err)
	require.EqualValues(t, 1200000, v)

	v, err = ParseBitrateFromFilename("/some/dir/audio_64000.mp4")
	require.NoError(t, err)
	require.EqualValues(t, 64000, v)

	_, err = ParseBitrateFromFilename("novalidsuffix.mp4")
	require.Error(t, err)

	_, err = ParseBitrateFromFilename("trailing_.mp4")
	require.Error(t, err)
}

func TestRenderProducesWellFormedXML(t *testing.T) {
	media := &SmoothStreamingMedia{
		MajorVersion: 2,
		MinorVersion: 0,
		Duration:     90000,
		Streams: []*StreamIndex{
			{Type: "video", Chunks: 1, URL: "QualityLevels({bitrate})/Fragments(video={start time})"},
		},
	}

	out, err := Render(media)
	require.NoError(t, err)
	require.Contains(t, string(out), "<SmoothStreamingMedia")
	require.Contains(t, string(out), "Created with")

	var decoded SmoothStreamingMedia
	require.NoError(t, xml.Unmarshal(out, &decoded))
	require.EqualValues(t, 90000, decoded.Duration)
	require.Len(t, decoded.Streams, 1)
	require.Equal(t, "video", decoded.Streams[0].Type)
}
