// Package clip builds the plain, non-fragmented MP4 sub-clip output:
// the original ftyp copied verbatim, a moov rewritten to cover only the
// sample range split.Plan resolved for each track, and a new mdat
// containing the retained sample bytes referenced by file range rather
// than copied into memory.
//
// Grounded on remux/remuxer.go's buildInitSegment for the
// clone-stbl-from-Track shape (generalized here from stripping a stbl
// down to stsd-only to rewriting it to a sample sub-range), and on
// fragment's two-pass moof.data_offset resolution for the same problem
// applied to stco: the absolute chunk offsets the stco table records
// depend on the moov's own encoded size, which depends on whether a
// stco or co64 entry is used, so the moov is measured with 32-bit
// offsets first and built a second time only when a track has to be
// widened to co64.
package clip

import (
	"fmt"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/boxtree"
	"github.com/ccampbell/fmp4split/bucket"
	"github.com/ccampbell/fmp4split/sampletable"
	"github.com/ccampbell/fmp4split/split"
)

// mdatHeaderSize is the fixed 8-byte box header this package prepends
// to the concatenated sample payload; the sub-clip's mdat is always
// small enough (< 2^32-8 bytes of declared size) to need only the
// 32-bit size form, matching every other writer in this codebase.
const mdatHeaderSize = 8

// maxUint32 is the largest chunk offset a stco entry can record before
// the writer must widen that track's chunk table to co64, per spec.md
// §4.6's OffsetOverflow rule.
const maxUint32 = 0xFFFFFFFF

// trackLayout holds the per-track sample range and accumulated byte
// span this package resolves before the moov can be built, since the
// stco chunk offset a track's stbl records depends on where its bytes
// land in the new mdat.
type trackLayout struct {
	track   *sampletable.Track
	origin  *boxtree.Box // this track's original trak box, for cloning unrelated children
	s0, s1  int
	size    int64 // total bytes across [s0,s1)
	offset  int64 // absolute file offset once mdat's start is known
	useCo64 bool
}

// BuildClip implements spec.md §4.6's MP4 sub-clip output: ftyp (copied
// from the source), a rewritten moov, and a new mdat built from the
// sample ranges ranges resolves. moov is the original decoded movie
// box (used to locate each track's original trak for cloning fields
// this package does not itself compute, such as the transform matrix
// and edit list). ftyp is the source file's raw ftyp box bytes.
func BuildClip(moov *boxtree.Box, ftyp []byte, tracks []*sampletable.Track, ranges []split.Range) (bucket.List, error) {
	mvhdBox := moov.Child(fmp4split.TypeMvhd)
	if mvhdBox == nil {
		return nil, &fmp4split.BoxError{Type: fmp4split.TypeMoov, Err: fmp4split.ErrMissingMandatory}
	}
	movieTimeScale := mvhdBox.Mvhd.TimeScale

	rangeByID := make(map[uint32]split.Range, len(ranges))
	for _, r := range ranges {
		rangeByID[r.Track.ID] = r
	}

	layouts := make([]*trackLayout, 0, len(tracks))
	for _, t := range tracks {
		r, ok := rangeByID[t.ID]
		if !ok {
			continue
		}
		if r.StartSample < 0 || r.EndSample <= r.StartSample || r.EndSample >= len(t.Samples) {
			return nil, &fmp4split.BoxError{Err: fmp4split.ErrEmptyRange}
		}
		origin := findOrigTrak(moov, t.ID)
		if origin == nil {
			return nil, fmt.Errorf("clip: no original trak for track %d", t.ID)
		}

		var size int64
		for i := r.StartSample; i < r.EndSample; i++ {
			size += int64(t.Samples[i].Size)
		}
		layouts = append(layouts, &trackLayout{track: t, origin: origin, s0: r.StartSample, s1: r.EndSample, size: size})
	}

	// Pass 1: assume every track fits in a 32-bit stco entry, to learn
	// the moov's encoded size and therefore where mdat (and each
	// track's bytes within it) begins.
	moovBuf, err := encodeClipMoov(mvhdBox, movieTimeScale, layouts)
	if err != nil {
		return nil, err
	}
	mdatStart := int64(len(ftyp) + len(moovBuf) + mdatHeaderSize)
	resolveOffsets(layouts, mdatStart)

	// Pass 2: widen any track whose resolved offset overflowed 32 bits
	// to co64 and re-measure, since that grows the moov by a few bytes
	// per widened track and shifts every later offset forward. Offsets
	// only grow from here, so a widened track never needs un-widening.
	widened := false
	for _, l := range layouts {
		if l.offset > maxUint32 {
			l.useCo64 = true
			widened = true
		}
	}
	if widened {
		moovBuf, err = encodeClipMoov(mvhdBox, movieTimeScale, layouts)
		if err != nil {
			return nil, err
		}
		mdatStart = int64(len(ftyp) + len(moovBuf) + mdatHeaderSize)
		resolveOffsets(layouts, mdatStart)
	}

	var totalMdat int64
	for _, l := range layouts {
		totalMdat += l.size
	}

	var out bucket.List
	out.AppendMemory(append([]byte(nil), ftyp...))
	out.AppendMemory(moovBuf)
	mdatHdr := make([]byte, mdatHeaderSize)
	putBoxHeader(mdatHdr, uint32(mdatHeaderSize+totalMdat), fmp4split.TypeMdat)
	out.AppendMemory(mdatHdr)
	for _, l := range layouts {
		for i := l.s0; i < l.s1; i++ {
			s := l.track.Samples[i]
			out.AppendRange(s.Offset, int64(s.Size))
		}
	}

	return out, nil
}

// resolveOffsets assigns each track's absolute chunk offset in the new
// mdat, laying tracks out contiguously in layouts order.
func resolveOffsets(layouts []*trackLayout, mdatStart int64) {
	offset := mdatStart
	for _, l := range layouts {
		l.offset = offset
		offset += l.size
	}
}

func findOrigTrak(moov *boxtree.Box, id uint32) *boxtree.Box {
	for _, trak := range moov.ChildList(fmp4split.TypeTrak) {
		if tkhd := trak.Child(fmp4split.TypeTkhd); tkhd != nil && tkhd.Tkhd.TrackID == id {
			return trak
		}
	}
	return nil
}

func encodeClipMoov(mvhdBox *boxtree.Box, movieTimeScale uint32, layouts []*trackLayout) ([]byte, error) {
	var duration uint64
	traks := make([]*boxtree.Box, 0, len(layouts))
	for _, l := range layouts {
		trak, trackDuration, err := buildTrimmedTrak(l, movieTimeScale)
		if err != nil {
			return nil, err
		}
		traks = append(traks, trak)
		if d := uint64(scaleTime(trackDuration, l.track.TimeScale, movieTimeScale)); d > duration {
			duration = d
		}
	}

	mvhdCopy := *mvhdBox.Mvhd
	mvhdCopy.Duration = duration
	moov := &boxtree.Box{Type: fmp4split.TypeMoov, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeMvhd: {{Type: fmp4split.TypeMvhd, Mvhd: &mvhdCopy}},
		fmp4split.TypeTrak: traks,
	}}
	return boxtree.EncodeToBytes(moov)
}

func buildTrimmedTrak(l *trackLayout, movieTimeScale uint32) (*boxtree.Box, int64, error) {
	t := l.track
	n := l.s1 - l.s0
	if n <= 0 {
		return nil, 0, fmt.Errorf("clip: empty sample range for track %d", t.ID)
	}
	trackDuration := t.Samples[l.s1].DTS - t.Samples[l.s0].DTS

	origTkhd := l.origin.Child(fmp4split.TypeTkhd)
	tkhdCopy := *origTkhd.Tkhd
	tkhdCopy.Duration = uint64(scaleTime(trackDuration, t.TimeScale, movieTimeScale))
	tkhd := &boxtree.Box{Type: fmp4split.TypeTkhd, Tkhd: &tkhdCopy}

	mdhdCopy := *t.MdhdBox.Mdhd
	mdhdCopy.Duration = uint64(trackDuration)
	mdhd := &boxtree.Box{Type: fmp4split.TypeMdhd, Mdhd: &mdhdCopy}

	origMdia := l.origin.Child(fmp4split.TypeMdia)
	hdlr := origMdia.Child(fmp4split.TypeHdlr)
	origMinf := origMdia.Child(fmp4split.TypeMinf)

	minfChildren := map[fmp4split.BoxType][]*boxtree.Box{}
	if vmhd := origMinf.Child(fmp4split.TypeVmhd); vmhd != nil {
		minfChildren[fmp4split.TypeVmhd] = []*boxtree.Box{vmhd}
	}
	if smhd := origMinf.Child(fmp4split.TypeSmhd); smhd != nil {
		minfChildren[fmp4split.TypeSmhd] = []*boxtree.Box{smhd}
	}
	if t.DinfBox != nil {
		minfChildren[fmp4split.TypeDinf] = []*boxtree.Box{t.DinfBox}
	}

	stbl := buildTrimmedStbl(l)
	minfChildren[fmp4split.TypeStbl] = []*boxtree.Box{stbl}
	minf := &boxtree.Box{Type: fmp4split.TypeMinf, Children: minfChildren}

	mdia := &boxtree.Box{Type: fmp4split.TypeMdia, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeMdhd: {mdhd},
		fmp4split.TypeHdlr: {hdlr},
		fmp4split.TypeMinf: {minf},
	}}

	trak := &boxtree.Box{Type: fmp4split.TypeTrak, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeTkhd: {tkhd},
		fmp4split.TypeMdia: {mdia},
	}}
	if edts := l.origin.Child(fmp4split.TypeEdts); edts != nil {
		trak.Children[fmp4split.TypeEdts] = []*boxtree.Box{edts}
	}
	return trak, trackDuration, nil
}

// buildTrimmedStbl rewrites stts/ctts/stsz/stsc/stco-or-co64/stss to
// cover only l's sample range, laid out as a single chunk holding every
// retained sample for the track, at the absolute offset l.offset
// (resolved by the caller's two-pass layout).
func buildTrimmedStbl(l *trackLayout) *boxtree.Box {
	t := l.track
	n := l.s1 - l.s0
	samples := t.Samples[l.s0:l.s1]

	stbl := &boxtree.Box{Type: fmp4split.TypeStbl, Children: map[fmp4split.BoxType][]*boxtree.Box{
		fmp4split.TypeStsd: {t.StsdBox},
		fmp4split.TypeStts: {{Type: fmp4split.TypeStts, Stts: &boxtree.Stts{Entries: rleDurations(samples)}}},
	}}

	if ctts := rleComposition(samples); ctts != nil {
		stbl.Children[fmp4split.TypeCtts] = []*boxtree.Box{{Type: fmp4split.TypeCtts, Ctts: &boxtree.Ctts{Entries: ctts}}}
	}

	sizes := make([]uint32, n)
	for i, s := range samples {
		sizes[i] = s.Size
	}
	stbl.Children[fmp4split.TypeStsz] = []*boxtree.Box{{Type: fmp4split.TypeStsz, Stsz: &boxtree.Stsz{Entries: sizes}}}

	stbl.Children[fmp4split.TypeStsc] = []*boxtree.Box{{Type: fmp4split.TypeStsc, Stsc: &boxtree.Stsc{
		Entries: []fmp4split.StscEntry{{FirstChunk: 1, SamplesPerChunk: uint32(n), SampleDescriptionId: t.SampleDescIdx}},
	}}}

	coBox := &boxtree.Box{Type: fmp4split.TypeStco, Stco: &boxtree.Stco{Entries: []uint64{uint64(l.offset)}}}
	if l.useCo64 {
		coBox = &boxtree.Box{Type: fmp4split.TypeCo64, Co64: &boxtree.Co64{Entries: []uint64{uint64(l.offset)}}}
	}
	stbl.Children[coBox.Type] = []*boxtree.Box{coBox}

	if t.HasSyncTable {
		var sync []uint32
		for i, s := range samples {
			if s.IsSync {
				sync = append(sync, uint32(i+1))
			}
		}
		if len(sync) > 0 {
			stbl.Children[fmp4split.TypeStss] = []*boxtree.Box{{Type: fmp4split.TypeStss, Stss: &boxtree.Stss{Entries: sync}}}
		}
	}

	return stbl
}

func rleDurations(samples []sampletable.Sample) []fmp4split.SttsEntry {
	var entries []fmp4split.SttsEntry
	for _, s := range samples {
		if n := len(entries); n > 0 && entries[n-1].Duration == s.Duration {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, fmp4split.SttsEntry{Count: 1, Duration: s.Duration})
	}
	return entries
}

func rleComposition(samples []sampletable.Sample) []fmp4split.CttsEntry {
	hasOffset := false
	for _, s := range samples {
		if s.PresentationOffset != 0 {
			hasOffset = true
			break
		}
	}
	if !hasOffset {
		return nil
	}
	var entries []fmp4split.CttsEntry
	for _, s := range samples {
		if n := len(entries); n > 0 && entries[n-1].Offset == s.PresentationOffset {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, fmp4split.CttsEntry{Count: 1, Offset: s.PresentationOffset})
	}
	return entries
}

func scaleTime(v int64, from, to uint32) int64 {
	if from == 0 {
		return 0
	}
	if from == to {
		return v
	}
	return v * int64(to) / int64(from)
}

func putBoxHeader(buf []byte, size uint32, t fmp4split.BoxType) {
	buf[0] = byte(size >> 24)
	buf[1] = byte(size >> 16)
	buf[2] = byte(size >> 8)
	buf[3] = byte(size)
	copy(buf[4:8], t[:])
}
