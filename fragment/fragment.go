// Package fragment builds movie fragments (moof+mdat) from a track's
// sample index: the Smooth Streaming single-fragment builder and the
// whole-file full fragmenter both go through BuildFragment, which
// derives trun entries and the mdat payload bucket list from one
// [s0, s1) sample range.
//
// Grounded on remux/remuxer.go's generateFragment (byte-range
// coalescing, per-sample trun flags) and remux/direct.go's writeMoof
// (moof/traf/tfhd/tfdt/trun layout), adapted to build through the root
// fmp4split.Writer instead of hand-rolled offsets, to a fixed
// 10,000,000 timescale and the 0x000304|0x000800 trun flag set §4.7
// specifies (plus the data-offset-present flag 0x000001), and with the Annex-B/ADTS payload rewriting spec.md §4.7
// describes that the teacher's remuxer does not perform (the teacher
// forwards AVCC samples unmodified; this system must rewrite them to
// Annex-B on the way out).
package fragment

import (
	"fmt"
	"io"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/bucket"
	"github.com/ccampbell/fmp4split/sampletable"
)

// SmoothTimescale is the fixed timescale all fragment and manifest times
// are expressed in.
const SmoothTimescale = 10_000_000

// OutputFormat selects how the sample payload stream is assembled.
type OutputFormat int

const (
	// FormatMP4 wraps the payload in an mdat box, used for fragmented MP4
	// and Smooth Streaming fragment responses.
	FormatMP4 OutputFormat = iota
	// FormatRaw emits the bare concatenated sample stream (Annex-B/ADTS
	// framed), with no moof/mdat wrapper, for the alternate output
	// writers in package altformat.
	FormatRaw
)

// Fixed per spec.md §4.7: mfhd.sequence_number is caller-supplied (§9
// open question keeps this fixed at 1 for single fragments; the full
// fragmenter in fullfrag.go increments it per run), tfhd carries a fixed
// default_sample_flags, and trun's first (and only) sample_flags value
// marks every fragment as starting on a sync sample.
const (
	tfhdFlags          = fmp4split.TfhdDefaultSampleFlagsPresent
	defaultSampleFlags = 0x0000C0
	firstSampleFlags   = 0x00000040
)

// ScaleTime converts a timestamp from one timescale to another.
func ScaleTime(t int64, from, to uint32) int64 {
	if from == 0 {
		return 0
	}
	if from == to {
		return t
	}
	return t * int64(to) / int64(from)
}

// Result is a built fragment: the encoded moof box (nil for FormatRaw)
// and the sample payload as a bucket list ready to stream out.
type Result struct {
	Moof    []byte
	Payload bucket.List
}

// BuildFragment builds one fragment covering samples [s0, s1) of track,
// with baseMediaDecodeTime (already in SmoothTimescale units) for tfdt.
// seqNum is the moof's mfhd.sequence_number. src supplies sample bytes
// when Annex-B or ADTS rewriting is required; it may be nil unless track
// is AVC video, or AAC audio built with FormatRaw.
func BuildFragment(src io.ReaderAt, track *sampletable.Track, s0, s1 int, seqNum uint32, baseMediaDecodeTime uint64, format OutputFormat) (Result, error) {
	if s0 < 0 || s1 <= s0 || s1 >= len(track.Samples) {
		return Result{}, fmt.Errorf("fragment: invalid sample range [%d,%d)", s0, s1)
	}

	n := s1 - s0
	entries := make([]fmp4split.TrunEntry, n)
	payload := bucket.List{}

	trunFlags := uint32(fmp4split.TrunSampleDurationPresent |
		fmp4split.TrunSampleSizePresent |
		fmp4split.TrunFirstSampleFlagsPresent |
		fmp4split.TrunDataOffsetPresent)

	for i := 0; i < n; i++ {
		if track.Samples[s0+i].PresentationOffset != 0 {
			trunFlags |= fmp4split.TrunSampleCompositionTimeOffsetPresent
			break
		}
	}

	isAvc := track.Kind == sampletable.KindVideo && track.AvcConfig != nil
	isRawAAC := track.Kind == sampletable.KindAudio && format == FormatRaw && track.EsdsConfig != nil

	for i := 0; i < n; i++ {
		s := track.Samples[s0+i]
		next := track.Samples[s0+i+1]
		duration := uint32(ScaleTime(next.DTS-s.DTS, track.TimeScale, SmoothTimescale))
		cto := int32(ScaleTime(int64(s.PresentationOffset), track.TimeScale, SmoothTimescale))

		size := s.Size
		switch {
		case isAvc:
			rewritten, err := annexBSample(src, s, track.AvcConfig, i == 0)
			if err != nil {
				return Result{}, err
			}
			size = uint32(len(rewritten))
			payload.AppendMemory(rewritten)
		case isRawAAC:
			framed, err := adtsSample(src, s, track.EsdsConfig, track.ChannelCount, track.SampleRate)
			if err != nil {
				return Result{}, err
			}
			size = uint32(len(framed))
			payload.AppendMemory(framed)
		default:
			payload.AppendRange(s.Offset, int64(s.Size))
		}

		entries[i] = fmp4split.TrunEntry{
			Duration:              duration,
			Size:                  size,
			CompositionTimeOffset: cto,
		}
	}

	if format == FormatRaw {
		return Result{Payload: payload}, nil
	}

	moofBuf := encodeMoof(track.ID, seqNum, baseMediaDecodeTime, trunFlags, entries, 0)
	dataOffset := int32(len(moofBuf) + 8)
	moofBuf = encodeMoof(track.ID, seqNum, baseMediaDecodeTime, trunFlags, entries, dataOffset)

	mdatHdr := make([]byte, 8)
	putMdatHeader(mdatHdr, uint32(8+payload.TotalSize()))

	full := make(bucket.List, 0, len(payload)+1)
	full = append(full, bucket.Bucket{Kind: bucket.Memory, Bytes: mdatHdr})
	full = append(full, payload...)

	return Result{Moof: moofBuf, Payload: full}, nil
}

func putMdatHeader(buf []byte, size uint32) {
	buf[0] = byte(size >> 24)
	buf[1] = byte(size >> 16)
	buf[2] = byte(size >> 8)
	buf[3] = byte(size)
	copy(buf[4:8], "mdat")
}

// encodeMoof encodes a complete moof box: mfhd, and one traf with
// tfhd/tfdt/trun, through the shared atom writer.
func encodeMoof(trackID, seqNum uint32, baseMediaDecodeTime uint64, trunFlags uint32, entries []fmp4split.TrunEntry, dataOffset int32) []byte {
	buf := make([]byte, 0, 256+16*len(entries))
	w := fmp4split.NewWriter(buf)
	w.StartBox(fmp4split.TypeMoof)
	w.WriteMfhd(seqNum)
	w.StartBox(fmp4split.TypeTraf)
	w.WriteTfhdFull(tfhdFlags, trackID, fmp4split.TfhdOptional{DefaultSampleFlags: defaultSampleFlags})
	w.WriteTfdt(baseMediaDecodeTime)
	w.WriteTrunWithFirstSampleFlags(trunFlags, dataOffset, firstSampleFlags, entries)
	w.EndBox() // traf
	w.EndBox() // moof
	return w.Bytes()
}
