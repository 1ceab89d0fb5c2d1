// Package altformat implements the optional non-MP4 sub-clip outputs
// spec.md §1 names: raw elementary streams (Annex-B H.264 / ADTS AAC),
// built from the same per-sample payload rewriting the fragment builder
// performs for fragmented MP4, just without the moof/mdat wrapper; and
// FLV tag bodies, which keep each sample's stored bytes and only add
// FLV tag headers.
package altformat

import (
	"io"

	"github.com/ccampbell/fmp4split/bucket"
	"github.com/ccampbell/fmp4split/fragment"
	"github.com/ccampbell/fmp4split/sampletable"
)

// WriteRawElementaryStream builds the concatenated Annex-B (video) or
// ADTS-framed (audio) sample stream for samples [s0, s1) of track, with
// no container framing at all — grounded on spec.md §4.7's closing
// note that raw ES output reuses the fragment builder's header
// synthesis "without the moof/trun wrapper".
func WriteRawElementaryStream(src io.ReaderAt, track *sampletable.Track, s0, s1 int) (bucket.List, error) {
	res, err := fragment.BuildFragment(src, track, s0, s1, 1, 0, fragment.FormatRaw)
	if err != nil {
		return nil, err
	}
	return res.Payload, nil
}
