package fragment

import (
	"fmt"
	"io"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/sampletable"
)

// aacSampleRates is the standard AAC sampling_frequency_index table.
var aacSampleRates = [...]uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

func aacSampleRateIndex(rate uint32) int {
	for i, r := range aacSampleRates {
		if r == rate {
			return i
		}
	}
	return 15 // "explicit rate", unused, acts as a safe not-found sentinel
}

// adtsSample prepends a 7-byte ADTS header to one raw AAC sample, per
// spec.md §4.7: profile=1 (AAC LC), sampling_frequency_index from the
// standard rate table, channel_configuration = channelCount,
// aac_frame_length = 7 + sample size.
func adtsSample(src io.ReaderAt, s sampletable.Sample, esds *fmp4split.EsdsConfig, channelCount uint16, sampleRate uint32) ([]byte, error) {
	raw := make([]byte, s.Size)
	if _, err := src.ReadAt(raw, s.Offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fragment: reading sample at %d: %w", s.Offset, err)
	}

	frameLen := 7 + len(raw)
	out := make([]byte, 7, frameLen)

	const profile = 1 // AAC LC
	freqIdx := aacSampleRateIndex(sampleRate)
	chanCfg := byte(channelCount)

	out[0] = 0xFF
	out[1] = 0xF1 // MPEG-4, no CRC
	out[2] = byte(profile<<6) | byte(freqIdx<<2) | (chanCfg >> 2 & 0x1)
	out[3] = (chanCfg&0x3)<<6 | byte(frameLen>>11)&0x3
	out[4] = byte(frameLen >> 3)
	out[5] = byte(frameLen<<5) | 0x1F
	out[6] = 0xFC

	out = append(out, raw...)
	return out, nil
}
