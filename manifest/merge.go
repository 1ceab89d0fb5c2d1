package manifest

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	fmp4split "github.com/ccampbell/fmp4split"
)

// ParseBitrateFromFilename extracts the bitrate a multi-bitrate sibling
// file name encodes as the suffix after its last underscore, e.g.
// "video_1200000.ismv" -> 1200000, per spec.md §4.9's merge rule.
func ParseBitrateFromFilename(name string) (uint32, error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	idx := strings.LastIndex(base, "_")
	if idx < 0 || idx == len(base)-1 {
		return 0, fmt.Errorf("manifest: no bitrate suffix in %q", name)
	}
	v, err := strconv.ParseUint(base[idx+1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("manifest: invalid bitrate suffix in %q: %w", name, err)
	}
	return uint32(v), nil
}

// Merge unions the streams of multiple single-file manifests by type,
// overriding every QualityLevel's bitrate with the corresponding entry
// in bitrates (parsed via ParseBitrateFromFilename from each sibling's
// name) and appending each variant's QualityLevel to the existing
// StreamIndex of the same type. Fails with ErrManifestMismatch if two
// variants disagree on chunk count for a type, per spec.md §4.9.
//
// Merging is commutative up to QualityLevel ordering: the result
// depends only on the set {variants, bitrates}, not their order, except
// for which order QualityLevels are appended in.
func Merge(variants []*SmoothStreamingMedia, bitrates []uint32) (*SmoothStreamingMedia, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("manifest: no variants to merge")
	}
	if len(variants) != len(bitrates) {
		return nil, fmt.Errorf("manifest: %d variants but %d bitrates", len(variants), len(bitrates))
	}

	merged := &SmoothStreamingMedia{
		MajorVersion: variants[0].MajorVersion,
		MinorVersion: variants[0].MinorVersion,
		Duration:     variants[0].Duration,
	}

	byType := map[string]*StreamIndex{}
	var order []string
	for vi, v := range variants {
		bitrate := bitrates[vi]
		for _, s := range v.Streams {
			for _, ql := range s.Quality {
				ql.Bitrate = bitrate
			}
			existing, ok := byType[s.Type]
			if !ok {
				clone := *s
				clone.Quality = append([]*QualityLevel(nil), s.Quality...)
				byType[s.Type] = &clone
				order = append(order, s.Type)
				continue
			}
			if existing.Chunks != s.Chunks {
				return nil, &fmp4split.BoxError{Err: fmp4split.ErrManifestMismatch}
			}
			existing.Quality = append(existing.Quality, s.Quality...)
		}
	}

	for _, t := range order {
		stream := byType[t]
		for i, ql := range stream.Quality {
			ql.Index = uint32(i)
		}
		merged.Streams = append(merged.Streams, stream)
	}
	return merged, nil
}
