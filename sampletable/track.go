// Package sampletable interprets a decoded moov box into per-track codec
// metadata and the flat per-sample record list each track's split
// planner and fragment builder work from.
//
// The chunk/RLE walk in ParseTracks is grounded on the same algorithm
// shape as a hand-rolled lazy-iterator sample table walk, adapted to
// walk over boxtree's already-materialised RLE slices (stts/ctts/stsc
// entries) rather than re-deriving them from a raw buffer a second time.
package sampletable

import (
	"errors"
	"fmt"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/boxtree"
)

// Kind distinguishes video and audio tracks. Tracks whose handler is
// neither vide nor soun are dropped at model-load time.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	if k == KindAudio {
		return "audio"
	}
	return "video"
}

var (
	htVide = [4]byte{'v', 'i', 'd', 'e'}
	htSoun = [4]byte{'s', 'o', 'u', 'n'}
)

// ErrMoovNotFound is returned when a buffer has no moov box.
var ErrMoovNotFound = errors.New("sampletable: moov box not found")

// Sample is one derived per-sample record: decode timestamp, presentation
// offset, byte position in the source file, size, and sync-sample status.
type Sample struct {
	Offset             int64
	Size               uint32
	Duration           uint32
	DTS                int64
	PresentationOffset int32

	// IsSync is is_ss: true for every sample of a track with no stss,
	// true for stss-listed samples of a track that has one.
	IsSync bool

	// IsSmoothSync is is_smooth_ss: the subset of sync samples that
	// bound a Smooth Streaming fragment. Equal to IsSync for tracks with
	// an stss. For audio tracks without one it is projected from a
	// sibling video track's sync points (or a 2-second cadence, absent
	// any video track) rather than true for every sample.
	IsSmoothSync bool
}

// PTS returns the sample's presentation timestamp.
func (s Sample) PTS() int64 { return s.DTS + int64(s.PresentationOffset) }

// Track holds the metadata and sample index for one media track.
type Track struct {
	ID        uint32
	Kind      Kind
	TimeScale uint32
	Duration  uint64

	Width        uint16
	Height       uint16
	ChannelCount uint16
	SampleRate   uint32

	Codec string // MIME-ish codec string, e.g. "avc1.64001e" or "mp4a.40.2"

	AvcConfig  *fmp4split.AvcConfig
	EsdsConfig *fmp4split.EsdsConfig

	// Samples has length len(logical samples)+1: Samples[i] describes
	// sample i, and the terminal element carries only a DTS/PTS so
	// duration-of-last-sample is always computable without a bounds
	// check at call sites.
	Samples []Sample

	SampleDescIdx uint32

	// HasSyncTable reports whether the track carries an stss box. Tracks
	// without one (typically audio) are treated as if every sample were
	// a sync point when planning aligned splits.
	HasSyncTable bool

	TkhdBox *boxtree.Box
	MdhdBox *boxtree.Box
	StsdBox *boxtree.Box
	DinfBox *boxtree.Box
	HasVmhd bool
}

// SyncRuns returns the [start, end] sample-index ranges bounded by
// is_smooth_ss samples: each run starts at a fragment boundary (or
// sample 0) and ends at the index of the next one (inclusive of the
// terminal sentinel for the last run).
func (t *Track) SyncRuns() [][2]int {
	n := len(t.Samples) - 1
	if n <= 0 {
		return nil
	}
	var runs [][2]int
	s0 := 0
	for s0 < n {
		s1 := s0 + 1
		for s1 < n && !t.Samples[s1].IsSmoothSync {
			s1++
		}
		runs = append(runs, [2]int{s0, s1})
		s0 = s1
	}
	return runs
}

// FindTrack returns the track with the given ID, or nil.
func FindTrack(tracks []*Track, id uint32) *Track {
	for _, t := range tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ParseTracks walks a decoded moov box and returns every track whose
// handler is vide or soun, with samples already built. Tracks that fail
// sample-table validation (missing stsz/stts/stsc/stco-or-co64) are
// dropped rather than aborting the whole parse, matching the model's
// "best effort over all tracks" load semantics.
func ParseTracks(moov *boxtree.Box) ([]*Track, error) {
	if moov == nil || moov.Type != fmp4split.TypeMoov {
		return nil, ErrMoovNotFound
	}

	var tracks []*Track
	for _, trak := range moov.ChildList(fmp4split.TypeTrak) {
		t, err := parseTrak(trak)
		if err != nil {
			continue // dropped: handler not vide/soun, or corrupt sample table
		}
		tracks = append(tracks, t)
	}
	if len(tracks) > maxTracks {
		return nil, &fmp4split.BoxError{Type: fmp4split.TypeMoov, Err: fmp4split.ErrTrackCapacity}
	}
	applySmoothSyncProjection(tracks)
	return tracks, nil
}

// maxTracks is the model's invariant cap on surviving tracks per movie.
const maxTracks = 8

// applySmoothSyncProjection implements the audio sync propagation rule:
// an audio track with no stss of its own gets its is_smooth_ss points
// projected from the reference video track's sync samples (converted
// to the audio track's timescale), or, absent any video track, marked
// every 2 seconds. Tracks that carry an stss already got IsSmoothSync
// set equal to IsSync while their samples were built, so they are left
// untouched here.
func applySmoothSyncProjection(tracks []*Track) {
	var video *Track
	for _, t := range tracks {
		if t.Kind == KindVideo && t.HasSyncTable {
			video = t
			break
		}
	}

	for _, t := range tracks {
		if t.Kind != KindAudio || t.HasSyncTable {
			continue
		}
		if video != nil {
			projectSmoothSyncFromVideo(t, video)
		} else {
			projectSmoothSyncEvery2Seconds(t)
		}
	}
}

func projectSmoothSyncFromVideo(audio, video *Track) {
	n := len(audio.Samples) - 1
	if n <= 0 {
		return
	}
	for i := range audio.Samples[:n] {
		audio.Samples[i].IsSmoothSync = false
	}

	audioIdx := 0
	for i := 0; i < len(video.Samples)-1; i++ {
		if !video.Samples[i].IsSmoothSync {
			continue
		}
		target := scaleTimeSimple(video.Samples[i].DTS, video.TimeScale, audio.TimeScale)
		for audioIdx < n && audio.Samples[audioIdx].DTS < target {
			audioIdx++
		}
		if audioIdx >= n {
			break
		}
		audio.Samples[audioIdx].IsSmoothSync = true
	}
	audio.Samples[0].IsSmoothSync = true
}

func projectSmoothSyncEvery2Seconds(t *Track) {
	n := len(t.Samples) - 1
	if n <= 0 {
		return
	}
	for i := range t.Samples[:n] {
		t.Samples[i].IsSmoothSync = false
	}

	interval := 2 * int64(t.TimeScale)
	next := int64(0)
	for i := 0; i < n; i++ {
		if t.Samples[i].DTS >= next {
			t.Samples[i].IsSmoothSync = true
			next += interval
		}
	}
	t.Samples[0].IsSmoothSync = true
}

// scaleTimeSimple converts a timestamp between two timescales. Kept
// local to avoid an import cycle with the fragment package, which
// defines the equivalent ScaleTime for its own SmoothTimescale
// conversions.
func scaleTimeSimple(v int64, from, to uint32) int64 {
	if from == 0 {
		return 0
	}
	return v * int64(to) / int64(from)
}

func parseTrak(trak *boxtree.Box) (*Track, error) {
	tkhd := trak.Child(fmp4split.TypeTkhd)
	mdia := trak.Child(fmp4split.TypeMdia)
	if tkhd == nil || mdia == nil {
		return nil, fmt.Errorf("sampletable: trak missing tkhd/mdia")
	}

	mdhd := mdia.Child(fmp4split.TypeMdhd)
	hdlr := mdia.Child(fmp4split.TypeHdlr)
	minf := mdia.Child(fmp4split.TypeMinf)
	if mdhd == nil || hdlr == nil || minf == nil {
		return nil, fmt.Errorf("sampletable: mdia missing mdhd/hdlr/minf")
	}

	if hdlr.Hdlr.HandlerType != htVide && hdlr.Hdlr.HandlerType != htSoun {
		return nil, fmt.Errorf("sampletable: unsupported handler %q", hdlr.Hdlr.HandlerType)
	}
	if mdhd.Mdhd.Duration == 0 {
		return nil, fmt.Errorf("sampletable: track %d has zero mdhd.duration", tkhd.Tkhd.TrackID)
	}

	t := &Track{
		ID:        tkhd.Tkhd.TrackID,
		TimeScale: mdhd.Mdhd.TimeScale,
		Duration:  mdhd.Mdhd.Duration,
		TkhdBox:   tkhd,
		MdhdBox:   mdhd,
	}
	if hdlr.Hdlr.HandlerType == htVide {
		t.Kind = KindVideo
	} else {
		t.Kind = KindAudio
	}

	stbl := minf.Child(fmp4split.TypeStbl)
	if stbl == nil {
		return nil, fmt.Errorf("sampletable: minf missing stbl")
	}
	if dinf := minf.Child(fmp4split.TypeDinf); dinf != nil {
		t.DinfBox = dinf
	}
	t.HasVmhd = minf.Child(fmp4split.TypeVmhd) != nil

	stsd := stbl.Child(fmp4split.TypeStsd)
	if stsd == nil {
		return nil, fmt.Errorf("sampletable: stbl missing stsd")
	}
	t.StsdBox = stsd
	parseSampleEntry(t, stsd)

	samples, descIdx, err := buildSamples(stbl)
	if err != nil {
		return nil, err
	}
	t.Samples = samples
	t.SampleDescIdx = descIdx
	t.HasSyncTable = stbl.Child(fmp4split.TypeStss) != nil

	return t, nil
}

func parseSampleEntry(t *Track, stsd *boxtree.Box) {
	if avc1 := stsd.Child(fmp4split.TypeAvc1); avc1 != nil && t.Kind == KindVideo {
		e := avc1.VisualSampleEntry
		t.Width = e.Width
		t.Height = e.Height
		if avcC := avc1.Child(fmp4split.TypeAvcC); avcC != nil {
			t.AvcConfig = &avcC.AvcC.Config
			t.Codec = fmt.Sprintf("avc1.%02x%02x%02x",
				avcC.AvcC.Config.ProfileIndication,
				avcC.AvcC.Config.ProfileCompatibility,
				avcC.AvcC.Config.LevelIndication)
		} else {
			t.Codec = "avc1"
		}
		return
	}
	if mp4a := stsd.Child(fmp4split.TypeMp4a); mp4a != nil && t.Kind == KindAudio {
		e := mp4a.AudioSampleEntry
		t.ChannelCount = e.ChannelCount
		t.SampleRate = e.SampleRate >> 16
		if esds := mp4a.Child(fmp4split.TypeEsds); esds != nil {
			if cfg, ok := fmp4split.ReadEsdsConfig(esds.Esds.Raw); ok {
				t.EsdsConfig = &cfg
				t.Codec = fmt.Sprintf("mp4a.%s", fmp4split.ReadEsdsCodec(esds.Esds.Raw))
			} else {
				t.Codec = "mp4a"
			}
		} else {
			t.Codec = "mp4a"
		}
	}
}

// buildSamples reconstructs the flat per-sample array from a stbl box's
// RLE tables: stsc (samples-per-chunk runs) drives chunk boundaries,
// stts/ctts give per-run duration and composition offset, stsz gives
// per-sample size, and stco/co64 give each chunk's base file offset.
func buildSamples(stbl *boxtree.Box) ([]Sample, uint32, error) {
	stszBox := stbl.Child(fmp4split.TypeStsz)
	stz2Box := stbl.Child(fmp4split.TypeStz2)
	sttsBox := stbl.Child(fmp4split.TypeStts)
	stscBox := stbl.Child(fmp4split.TypeStsc)
	stcoBox := stbl.Child(fmp4split.TypeStco)
	co64Box := stbl.Child(fmp4split.TypeCo64)
	cttsBox := stbl.Child(fmp4split.TypeCtts)
	stssBox := stbl.Child(fmp4split.TypeStss)

	// stz2 is the compact (4/8/16-bit packed) alternative to stsz; a
	// track carries exactly one of them.
	sizeBox := stszBox
	if sizeBox == nil {
		sizeBox = stz2Box
	}
	if sizeBox == nil || sttsBox == nil || stscBox == nil {
		return nil, 0, &fmp4split.BoxError{Err: fmp4split.ErrMissingMandatory}
	}
	if stcoBox == nil && co64Box == nil {
		return nil, 0, &fmp4split.BoxError{Err: fmp4split.ErrMissingMandatory}
	}

	sizeEntries := sizeBox.Stsz
	if sizeBox == stz2Box {
		sizeEntries = stz2Box.Stz2
	}

	sizes := sizeEntries.Entries
	numSamples := len(sizes)
	if sizeEntries.SampleSize != 0 {
		// Constant sample size: stsz carries no per-sample entries, only
		// a count implied by stco/stsc/stts agreement; fall back to the
		// stts total, since that always reflects the true sample count.
		numSamples = 0
		for _, e := range sttsBox.Stts.Entries {
			numSamples += int(e.Count)
		}
		sizes = nil
	}
	if numSamples == 0 {
		return []Sample{}, 0, nil
	}

	samples := make([]Sample, numSamples+1)

	stsc := stscBox.Stsc.Entries
	if len(stsc) == 0 {
		return nil, 0, &fmp4split.BoxError{Type: fmp4split.TypeStsc, Err: fmp4split.ErrMalformedBox}
	}
	stscIdx := 0
	curStsc := stsc[0]
	haveNextStsc := len(stsc) > 1
	nextStscIdx := 1

	var chunkOffsets []int64
	if co64Box != nil {
		for _, v := range co64Box.Co64.Entries {
			chunkOffsets = append(chunkOffsets, int64(v))
		}
	} else {
		for _, v := range stcoBox.Stco.Entries {
			chunkOffsets = append(chunkOffsets, int64(v))
		}
	}
	if len(chunkOffsets) == 0 {
		return nil, 0, &fmp4split.BoxError{Type: fmp4split.TypeStco, Err: fmp4split.ErrMalformedBox}
	}

	stts := sttsBox.Stts.Entries
	if len(stts) == 0 {
		return nil, 0, &fmp4split.BoxError{Type: fmp4split.TypeStts, Err: fmp4split.ErrMalformedBox}
	}
	sttsIdx := 0
	curStts := stts[0]
	sttsRemaining := int(curStts.Count)

	hasCtts := cttsBox != nil
	var ctts []fmp4split.CttsEntry
	cttsIdx := 0
	var curCtts fmp4split.CttsEntry
	cttsRemaining := 0
	if hasCtts {
		ctts = cttsBox.Ctts.Entries
		if len(ctts) > 0 {
			curCtts = ctts[0]
			cttsRemaining = int(curCtts.Count)
			cttsIdx = 1
		}
	}

	hasSync := stssBox != nil
	var sync []uint32
	syncIdx := 0
	if hasSync {
		sync = stssBox.Stss.Entries
	}

	chunkIdx := uint32(1)
	chunkOffset := chunkOffsets[0]
	coIdx := 1
	sampleInChunk := uint32(0)
	var offsetInChunk int64
	var dts int64

	for i := 0; i < numSamples; i++ {
		var size uint32
		if sizeEntries.SampleSize != 0 {
			size = sizeEntries.SampleSize
		} else if i < len(sizes) {
			size = sizes[i]
		} else {
			return nil, 0, &fmp4split.BoxError{Type: sizeBox.Type, Err: fmp4split.ErrMalformedBox}
		}

		var presOff int32
		if hasCtts && cttsRemaining > 0 {
			presOff = curCtts.Offset
		}

		isSync := true
		if hasSync {
			isSync = syncIdx < len(sync) && sync[syncIdx] == uint32(i+1)
		}

		samples[i] = Sample{
			Offset:             offsetInChunk + chunkOffset,
			Size:               size,
			Duration:           curStts.Duration,
			DTS:                dts,
			PresentationOffset: presOff,
			IsSync:             isSync,
			// Equal to IsSync for now; an audio track without its own
			// stss has this replaced by applySmoothSyncProjection once
			// every track in the movie has been parsed.
			IsSmoothSync: isSync,
		}

		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= curStsc.SamplesPerChunk {
			sampleInChunk = 0
			offsetInChunk = 0
			chunkIdx++
			if coIdx < len(chunkOffsets) {
				chunkOffset = chunkOffsets[coIdx]
				coIdx++
			}
			if haveNextStsc && chunkIdx >= stsc[nextStscIdx].FirstChunk {
				stscIdx = nextStscIdx
				curStsc = stsc[stscIdx]
				nextStscIdx++
				haveNextStsc = nextStscIdx < len(stsc)
			}
		}

		dts += int64(curStts.Duration)
		sttsRemaining--
		if sttsRemaining <= 0 && sttsIdx+1 < len(stts) {
			sttsIdx++
			curStts = stts[sttsIdx]
			sttsRemaining = int(curStts.Count)
		}

		if hasCtts {
			cttsRemaining--
			if cttsRemaining <= 0 && cttsIdx < len(ctts) {
				curCtts = ctts[cttsIdx]
				cttsRemaining = int(curCtts.Count)
				cttsIdx++
			}
		}

		if isSync && hasSync {
			syncIdx++
		}
	}

	samples[numSamples] = Sample{DTS: dts, IsSync: true, IsSmoothSync: true}

	return samples, curStsc.SampleDescriptionId, nil
}
