package clip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/boxtree"
	"github.com/ccampbell/fmp4split/sampletable"
	"github.com/ccampbell/fmp4split/split"
)

func buildOneTrackMoov(t *testing.T) (*boxtree.Box, []byte, *sampletable.Track) {
	t.Helper()

	src := []byte("sample0-sample1-sample2-sample3")
	samples := []sampletable.Sample{
		{Offset: 0, Size: 8, Duration: 8, DTS: 0, IsSync: true, IsSmoothSync: true},
		{Offset: 8, Size: 8, Duration: 8, DTS: 8, IsSync: false, IsSmoothSync: false},
		{Offset: 16, Size: 8, Duration: 8, DTS: 16, IsSync: true, IsSmoothSync: true},
		{Offset: 24, Size: 8, Duration: 8, DTS: 24, IsSync: false, IsSmoothSync: false},
		{DTS: 32},
	}

	mdhd := &boxtree.Mdhd{TimeScale: 8, Duration: 32}
	mdhdBox := &boxtree.Box{Type: fmp4split.TypeMdhd, Mdhd: mdhd}
	stsdBox := &boxtree.Box{Type: fmp4split.TypeStsd}
	dinfBox := &boxtree.Box{Type: fmp4split.TypeDinf}
	vmhdBox := &boxtree.Box{Type: fmp4split.TypeVmhd, Vmhd: &boxtree.Vmhd{}}
	hdlrBox := &boxtree.Box{Type: fmp4split.TypeHdlr, Hdlr: &boxtree.Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}}}
	tkhdBox := &boxtree.Box{Type: fmp4split.TypeTkhd, Tkhd: &boxtree.Tkhd{TrackID: 1, Duration: 32}}

	minf := &boxtree.Box{Type: fmp4split.TypeMinf, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeVmhd: {vmhdBox},
		fmp4split.TypeDinf: {dinfBox},
	}}
	mdia := &boxtree.Box{Type: fmp4split.TypeMdia, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeMdhd: {mdhdBox},
		fmp4split.TypeHdlr: {hdlrBox},
		fmp4split.TypeMinf: {minf},
	}}
	trak := &boxtree.Box{Type: fmp4split.TypeTrak, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeTkhd: {tkhdBox},
		fmp4split.TypeMdia: {mdia},
	}}
	moov := &boxtree.Box{Type: fmp4split.TypeMoov, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeMvhd: {{Type: fmp4split.TypeMvhd, Mvhd: &boxtree.Mvhd{TimeScale: 8, Duration: 32}}},
		fmp4split.TypeTrak: {trak},
	}}

	track := &sampletable.Track{
		ID: 1, Kind: sampletable.KindVideo, TimeScale: 8, Samples: samples,
		HasSyncTable: true, MdhdBox: mdhdBox, StsdBox: stsdBox, DinfBox: dinfBox,
	}
	return moov, src, track
}

func TestBuildClipProducesPlayableLayout(t *testing.T) {
	moov, src, track := buildOneTrackMoov(t)
	ranges := []split.Range{{Track: track, StartSample: 1, EndSample: 3}}
	ftyp := []byte("FTYPBOX-")

	out, err := BuildClip(moov, ftyp, []*sampletable.Track{track}, ranges)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := out.WriteTo(&buf, bytes.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	got := buf.Bytes()
	require.True(t, bytes.HasPrefix(got, ftyp), "ftyp is copied verbatim at the start")

	mdatIdx := bytes.Index(got, []byte("mdat"))
	require.Greater(t, mdatIdx, 0)
	// mdat payload is samples [1,3): "sample1-sample2-"
	require.Equal(t, "sample1-sample2-", string(got[mdatIdx+4:mdatIdx+4+16]))

	moovIdx := bytes.Index(got, []byte("moov"))
	require.Greater(t, moovIdx, 0)
	require.Less(t, moovIdx, mdatIdx, "moov precedes mdat")
}

func TestBuildClipRejectsRangeTouchingSentinel(t *testing.T) {
	moov, _, track := buildOneTrackMoov(t)
	ranges := []split.Range{{Track: track, StartSample: 1, EndSample: 5}} // [1,5) takes in the terminal sentinel at index 4
	_, err := BuildClip(moov, []byte("ftyp"), []*sampletable.Track{track}, ranges)
	require.Error(t, err)
}
