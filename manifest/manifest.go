// Package manifest builds the Smooth Streaming client manifest: the
// <SmoothStreamingMedia> XML document a Smooth Streaming client
// downloads before requesting fragments, naming every track's
// QualityLevel(s) and the chunk (fragment) boundaries in the 10,000,000
// tick timescale.
//
// Grounded on _examples/original_source/output_ismv.c
// (smooth_streaming_media_write, stream_write, quality_level_write) for
// the element/attribute shape and the CodecPrivateData synthesis rules,
// and on _examples/other_examples/5bd4081d_go-webdl-smoothstreaming's
// struct-tag idiom (XMLName-free field-as-element-name, ",attr" fields,
// pointer fields for attributes that may be absent).
package manifest

import (
	"encoding/xml"
	"fmt"

	"github.com/rs/zerolog"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/fragment"
	"github.com/ccampbell/fmp4split/sampletable"
)

// Generator names this module in the XML prologue comment, replacing
// output_ismv.c's "Created with mod_smooth_streaming(VERSION)" line.
const Generator = "fmp4split"

// SmoothStreamingMedia is the XML document root.
type SmoothStreamingMedia struct {
	XMLName      xml.Name       `xml:"SmoothStreamingMedia"`
	MajorVersion uint           `xml:",attr"`
	MinorVersion uint           `xml:",attr"`
	Duration     uint64         `xml:",attr"`
	Streams      []*StreamIndex `xml:"StreamIndex"`
}

// StreamIndex describes one track (or, after Merge, one bitrate family
// of tracks sharing a type).
type StreamIndex struct {
	Type    string          `xml:",attr"`
	Subtype string          `xml:",attr,omitempty"`
	Chunks  int             `xml:",attr"`
	URL     string          `xml:"Url,attr"`
	Quality []*QualityLevel `xml:"QualityLevel"`
	C       []*Chunk        `xml:"c"`
}

// QualityLevel describes one bitrate variant of a stream.
type QualityLevel struct {
	Index            uint32  `xml:",attr"`
	Bitrate          uint32  `xml:",attr"`
	MaxWidth         *uint32 `xml:",attr,omitempty"`
	MaxHeight        *uint32 `xml:",attr,omitempty"`
	SamplingRate     *uint32 `xml:",attr,omitempty"`
	Channels         *uint16 `xml:",attr,omitempty"`
	BitsPerSample    *uint16 `xml:",attr,omitempty"`
	PacketSize       *uint32 `xml:",attr,omitempty"`
	AudioTag         *uint32 `xml:",attr,omitempty"`
	FourCC           string  `xml:",attr"`
	CodecPrivateData string  `xml:",attr"`
}

// Chunk is one <c n= d=> fragment-duration entry.
type Chunk struct {
	Number   uint32 `xml:"n,attr"`
	Duration uint64 `xml:"d,attr"`
}

// BuildManifest implements spec.md §4.9: one StreamIndex per track,
// Duration taken from the longest track, chunk durations derived from
// each track's sync-sample-bounded runs (the same boundaries the full
// fragmenter builds moofs from). log receives a Warn when a track's
// AudioSpecificConfig channel count disagrees with its sample
// description, per the channel-count reconciliation rule; a nil logger
// is treated as zerolog.Nop().
func BuildManifest(tracks []*sampletable.Track, log *zerolog.Logger) (*SmoothStreamingMedia, error) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	media := &SmoothStreamingMedia{MajorVersion: 1, MinorVersion: 0}
	var duration uint64
	for _, t := range tracks {
		if len(t.Samples) == 0 {
			continue
		}
		d := uint64(fragment.ScaleTime(t.Samples[len(t.Samples)-1].DTS, t.TimeScale, fragment.SmoothTimescale))
		if d > duration {
			duration = d
		}
	}
	media.Duration = duration

	for _, t := range tracks {
		stream, err := buildStreamIndex(t, log)
		if err != nil {
			return nil, err
		}
		media.Streams = append(media.Streams, stream)
	}
	return media, nil
}

func buildStreamIndex(t *sampletable.Track, log *zerolog.Logger) (*StreamIndex, error) {
	streamType := "audio"
	if t.Kind == sampletable.KindVideo {
		streamType = "video"
	}

	runs := t.SyncRuns()
	stream := &StreamIndex{
		Type:   streamType,
		Chunks: len(runs),
		URL:    fmt.Sprintf("QualityLevels({bitrate})/Fragments(%s={start time})", streamType),
	}
	for i, r := range runs {
		start := t.Samples[r[0]].DTS
		end := t.Samples[r[1]].DTS
		d := fragment.ScaleTime(end-start, t.TimeScale, fragment.SmoothTimescale)
		stream.C = append(stream.C, &Chunk{Number: uint32(i), Duration: uint64(d)})
	}

	ql, fourCC, err := buildQualityLevel(t, log)
	if err != nil {
		return nil, err
	}
	stream.Subtype = fourCC
	stream.Quality = []*QualityLevel{ql}
	return stream, nil
}

func buildQualityLevel(t *sampletable.Track, log *zerolog.Logger) (*QualityLevel, string, error) {
	if t.Kind == sampletable.KindVideo {
		return buildVideoQualityLevel(t)
	}
	return buildAudioQualityLevel(t, log)
}

func buildVideoQualityLevel(t *sampletable.Track) (*QualityLevel, string, error) {
	if t.AvcConfig == nil {
		return nil, "", &fmp4split.BoxError{Err: fmp4split.ErrMissingSpsPps}
	}
	width := uint32(t.Width)
	height := uint32(t.Height)
	ql := &QualityLevel{
		Bitrate:          4_500_000, // no bitrate carried on Track; matches output_ismv.c's fallback default
		MaxWidth:         &width,
		MaxHeight:        &height,
		FourCC:           "H264",
		CodecPrivateData: avcCodecPrivateData(t.AvcConfig),
	}
	return ql, "H264", nil
}

func buildAudioQualityLevel(t *sampletable.Track, log *zerolog.Logger) (*QualityLevel, string, error) {
	bitrate := uint32(0)
	var asc []byte
	if t.EsdsConfig != nil {
		bitrate = t.EsdsConfig.AvgBitrate
		if bitrate == 0 {
			bitrate = t.EsdsConfig.MaxBitrate
		}
		asc = t.EsdsConfig.Asc
	}

	channels := t.ChannelCount
	if len(asc) >= 2 {
		ascChannels := uint16((asc[1] >> 3) & 0x0f)
		if ascChannels != 0 && ascChannels != channels {
			log.Warn().
				Uint16("sampleDescriptionChannels", channels).
				Uint16("audioSpecificConfigChannels", ascChannels).
				Msg("channel count mismatch, using AudioSpecificConfig value")
			channels = ascChannels
		}
	}

	bitsPerSample := uint16(16)
	samplingRate := t.SampleRate
	packetSize := uint32(0)
	audioTag := uint32(0x00ff) // WAVE_FORMAT_RAW_AAC1

	cpd, err := synthesizeWaveFormatEx(audioTag, uint32(channels), samplingRate, bitrate, bitsPerSample, asc)
	if err != nil {
		return nil, "", err
	}

	ql := &QualityLevel{
		Bitrate:          bitrate,
		SamplingRate:     &samplingRate,
		Channels:         &channels,
		BitsPerSample:    &bitsPerSample,
		PacketSize:       &packetSize,
		AudioTag:         &audioTag,
		FourCC:           "AACL",
		CodecPrivateData: cpd,
	}
	return ql, "AACL", nil
}

// avcCodecPrivateData builds the hex CodecPrivateData spec.md §4.9
// prescribes for AVC tracks: length-prefixed SPS entries followed by
// length-prefixed PPS entries, mirroring avcC's own 2-byte length-field
// encoding (the Sps/Pps fields already have the avcC header and length
// prefixes stripped off by ReadAvcCFull).
func avcCodecPrivateData(cfg *fmp4split.AvcConfig) string {
	var buf []byte
	for _, sps := range cfg.Sps {
		buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
		buf = append(buf, sps...)
	}
	for _, pps := range cfg.Pps {
		buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
		buf = append(buf, pps...)
	}
	return hexEncode(buf)
}

// synthesizeWaveFormatEx builds the little-endian WAVEFORMATEX prefix
// spec.md §4.9 describes for non-WMA audio, hex-encoded and followed by
// the hex AudioSpecificConfig, per output_ismv.c's quality_level_write.
func synthesizeWaveFormatEx(formatTag, channels uint32, samplesPerSec, avgBytesPerSec uint32, bitsPerSample uint16, asc []byte) (string, error) {
	_ = avgBytesPerSec // bits/sec from esds; WAVEFORMATEX wants bytes/sec, converted below
	nAvgBytesPerSec := avgBytesPerSec / 8
	nBlockAlign := uint16(1) // clamped to >= 1; this model carries no block-align value to clamp down from
	cbSize := uint16(len(asc))

	wfx := make([]byte, 0, 18+len(asc))
	wfx = leUint16(wfx, uint16(formatTag))
	wfx = leUint16(wfx, uint16(channels))
	wfx = leUint32(wfx, samplesPerSec)
	wfx = leUint32(wfx, nAvgBytesPerSec)
	wfx = leUint16(wfx, nBlockAlign)
	wfx = leUint16(wfx, bitsPerSample)
	wfx = leUint16(wfx, cbSize)

	out := hexEncode(wfx) + hexEncode(asc)
	return out, nil
}

func leUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func leUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
