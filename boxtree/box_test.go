package boxtree

import (
	"testing"

	"github.com/stretchr/testify/require"

	fmp4split "github.com/ccampbell/fmp4split"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mvhd := &Mvhd{TimeScale: 1000, Duration: 5000, NextTrackID: 2}
	tkhd := &Tkhd{TrackID: 1, Duration: 5000, Width: 1280 << 16, Height: 720 << 16}
	mdhd := &Mdhd{TimeScale: 90000, Duration: 450000, Language: 0x55c4}
	hdlr := &Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}

	moov := &Box{
		Type: fmp4split.TypeMoov,
		Children: map[fmp4split.BoxType][]*Box{
			fmp4split.TypeMvhd: {{Type: fmp4split.TypeMvhd, Mvhd: mvhd}},
			fmp4split.TypeTrak: {{
				Type: fmp4split.TypeTrak,
				Children: map[fmp4split.BoxType][]*Box{
					fmp4split.TypeTkhd: {{Type: fmp4split.TypeTkhd, Tkhd: tkhd}},
					fmp4split.TypeMdia: {{
						Type: fmp4split.TypeMdia,
						Children: map[fmp4split.BoxType][]*Box{
							fmp4split.TypeMdhd: {{Type: fmp4split.TypeMdhd, Mdhd: mdhd}},
							fmp4split.TypeHdlr: {{Type: fmp4split.TypeHdlr, Hdlr: hdlr}},
						},
					}},
				},
			}},
		},
	}

	buf, err := EncodeToBytes(moov)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	decoded, err := Decode(buf)
	require.NoError(t, err)

	gotMvhd := decoded.Child(fmp4split.TypeMvhd)
	require.NotNil(t, gotMvhd)
	require.Equal(t, mvhd.TimeScale, gotMvhd.Mvhd.TimeScale)
	require.Equal(t, mvhd.Duration, gotMvhd.Mvhd.Duration)

	trak := decoded.Child(fmp4split.TypeTrak)
	require.NotNil(t, trak)
	gotTkhd := trak.Child(fmp4split.TypeTkhd)
	require.NotNil(t, gotTkhd)
	require.Equal(t, tkhd.TrackID, gotTkhd.Tkhd.TrackID)
	require.Equal(t, tkhd.Width, gotTkhd.Tkhd.Width)

	mdia := trak.Child(fmp4split.TypeMdia)
	require.NotNil(t, mdia)
	gotMdhd := mdia.Child(fmp4split.TypeMdhd)
	require.NotNil(t, gotMdhd)
	require.Equal(t, mdhd.TimeScale, gotMdhd.Mdhd.TimeScale)
	require.Equal(t, mdhd.Duration, gotMdhd.Mdhd.Duration)

	gotHdlr := mdia.Child(fmp4split.TypeHdlr)
	require.NotNil(t, gotHdlr)
	require.Equal(t, hdlr.HandlerType, gotHdlr.Hdlr.HandlerType)
	require.Equal(t, hdlr.Name, gotHdlr.Hdlr.Name)
}

func TestChildListEmptyWhenAbsent(t *testing.T) {
	b := &Box{Type: fmp4split.TypeMoov}
	require.Nil(t, b.Child(fmp4split.TypeMvhd))
	require.Empty(t, b.ChildList(fmp4split.TypeTrak))
}
