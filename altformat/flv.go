package altformat

import (
	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/bucket"
	"github.com/ccampbell/fmp4split/sampletable"
)

// FLV RTMP message type constants, grounded on
// _examples/original_source/output_flv.c.
const (
	rtmpAVCSequenceHeader = 0
	rtmpAVCNALU           = 1
	rtmpAACSequenceHeader = 0
	rtmpAACRaw            = 1

	flvVideoCodecIDAVC = 7
)

// WriteFLVTrack appends one track's FLV tag-body stream to buckets:
// a sequence-header tag carrying the codec private data, then one
// VIDEODATA/AUDIODATA tag per sample. Unlike the fragment builder's MP4
// path, FLV keeps samples in their original AVCC (length-prefixed) form
// — output_flv.c does not rewrite to Annex-B, since FLV's NALU packet
// type already implies length-prefixed framing.
func WriteFLVTrack(buckets *bucket.List, track *sampletable.Track, s0, s1 int) error {
	switch track.Kind {
	case sampletable.KindVideo:
		return writeFLVVideo(buckets, track, s0, s1)
	case sampletable.KindAudio:
		return writeFLVAudio(buckets, track, s0, s1)
	}
	return nil
}

func writeFLVVideo(buckets *bucket.List, track *sampletable.Track, s0, s1 int) error {
	if track.AvcConfig == nil {
		return &fmp4split.BoxError{Err: fmp4split.ErrMissingSpsPps}
	}

	seqHdr := make([]byte, 0, 5+len(track.AvcConfig.Sps)+len(track.AvcConfig.Pps))
	seqHdr = append(seqHdr, (1<<4)|flvVideoCodecIDAVC, rtmpAVCSequenceHeader, 0, 0, 0)
	for _, sps := range track.AvcConfig.Sps {
		seqHdr = append(seqHdr, sps...)
	}
	for _, pps := range track.AvcConfig.Pps {
		seqHdr = append(seqHdr, pps...)
	}
	buckets.AppendMemory(seqHdr)

	for s := s0; s < s1; s++ {
		sample := track.Samples[s]
		compositionTimeMs := scaleToMillis(int64(sample.PresentationOffset), track.TimeScale)

		codecID := byte(2 << 4) // inter frame
		if sample.IsSync {
			codecID = byte(1 << 4)
		}
		codecID |= flvVideoCodecIDAVC

		header := make([]byte, 5)
		header[0] = codecID
		header[1] = rtmpAVCNALU
		header[2] = byte(compositionTimeMs >> 16)
		header[3] = byte(compositionTimeMs >> 8)
		header[4] = byte(compositionTimeMs)
		buckets.AppendMemory(header)
		buckets.AppendRange(sample.Offset, int64(sample.Size))
	}
	return nil
}

func writeFLVAudio(buckets *bucket.List, track *sampletable.Track, s0, s1 int) error {
	seqHdr := []byte{0xaf, rtmpAACSequenceHeader}
	if track.EsdsConfig != nil {
		seqHdr = append(seqHdr, track.EsdsConfig.Asc...)
	}
	buckets.AppendMemory(seqHdr)

	for s := s0; s < s1; s++ {
		sample := track.Samples[s]
		buckets.AppendMemory([]byte{0xaf, rtmpAACRaw})
		buckets.AppendRange(sample.Offset, int64(sample.Size))
	}
	return nil
}

func scaleToMillis(t int64, timescale uint32) int64 {
	if timescale == 0 {
		return 0
	}
	return t * 1000 / int64(timescale)
}
