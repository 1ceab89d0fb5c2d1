package fragment

import (
	"encoding/binary"
	"fmt"
	"io"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/sampletable"
)

var annexBStartCode = [4]byte{0, 0, 0, 1}

// annexBSample rewrites one AVCC-framed sample (length-prefixed NAL
// units, prefix width avcCfg.NalLengthSize) into Annex-B (start-code
// prefixed NAL units), per spec.md §4.7: "walk the length-prefixed NAL
// list ... emit [0x00000001] before each NAL and the NAL body." When
// first is true (the fragment's first sample), SPS and PPS are each
// prepended with their own start code ahead of the sample's own NALs.
func annexBSample(src io.ReaderAt, s sampletable.Sample, avcCfg *fmp4split.AvcConfig, first bool) ([]byte, error) {
	if first && (len(avcCfg.Sps) == 0 || len(avcCfg.Pps) == 0) {
		return nil, &fmp4split.BoxError{Err: fmp4split.ErrMissingSpsPps}
	}

	raw := make([]byte, s.Size)
	if _, err := src.ReadAt(raw, s.Offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fragment: reading sample at %d: %w", s.Offset, err)
	}

	out := make([]byte, 0, int(s.Size)+64)
	if first {
		for _, sps := range avcCfg.Sps {
			out = append(out, annexBStartCode[:]...)
			out = append(out, sps...)
		}
		for _, pps := range avcCfg.Pps {
			out = append(out, annexBStartCode[:]...)
			out = append(out, pps...)
		}
	}

	lengthSize := avcCfg.NalLengthSize
	if lengthSize == 0 {
		lengthSize = 4
	}

	ptr := 0
	for ptr+lengthSize <= len(raw) {
		var nalLen int
		switch lengthSize {
		case 1:
			nalLen = int(raw[ptr])
		case 2:
			nalLen = int(binary.BigEndian.Uint16(raw[ptr:]))
		default:
			nalLen = int(binary.BigEndian.Uint32(raw[ptr:]))
		}
		ptr += lengthSize
		if ptr+nalLen > len(raw) {
			return nil, &fmp4split.BoxError{Err: fmp4split.ErrMalformedBox}
		}
		out = append(out, annexBStartCode[:]...)
		out = append(out, raw[ptr:ptr+nalLen]...)
		ptr += nalLen
	}

	return out, nil
}
