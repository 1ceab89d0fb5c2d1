// Package boxtree implements a typed parent/child tree over ISOBMFF
// boxes, built on top of fmp4split's zero-allocation atom reader and
// writer. Where fmp4split.Reader/Writer give a flat, stack-based cursor
// over a byte buffer, Box gives callers that need to hold a whole moov
// (or moof) in memory at once a normal Go value they can inspect, mutate,
// and re-encode without re-deriving the tree structure.
//
// Unknown children (boxes this package has no typed representation for)
// are preserved verbatim in Box.Unknown and re-emitted ahead of known
// children, in their original relative order, so a round trip through
// Decode and Encode never silently drops data.
package boxtree

import (
	"fmt"

	fmp4split "github.com/ccampbell/fmp4split"
)

// RawBox is an opaque child box kept for round-tripping content this
// package does not interpret.
type RawBox struct {
	Type BoxType
	Data []byte // full box bytes, including its own header
}

type BoxType = fmp4split.BoxType

// Box is one node of the typed ISOBMFF tree. Exactly one of the typed
// fields below is populated, chosen by Type; Children holds nested boxes
// for container types.
type Box struct {
	Type    BoxType
	Version uint8
	Flags   uint32

	Children map[BoxType][]*Box
	Unknown  []RawBox

	Mvhd              *Mvhd
	Tkhd              *Tkhd
	Mdhd              *Mdhd
	Hdlr              *Hdlr
	Vmhd              *Vmhd
	Smhd              *Smhd
	Stsd              *Stsd
	VisualSampleEntry *VisualSampleEntry
	AudioSampleEntry  *AudioSampleEntry
	AvcC              *AvcC
	Esds              *Esds
	Stsz              *Stsz
	Stz2              *Stsz
	Stco              *Stco
	Co64              *Co64
	Stss              *Stss
	Stts              *Stts
	Ctts              *Ctts
	Stsc              *Stsc
	Dref              *DrefBox
	Elst              *Elst
	Mehd              *Mehd
	Trex              *Trex
	Mfhd              *Mfhd
	Tfhd              *Tfhd
	Tfdt              *Tfdt
	Trun              *Trun
	Mdat              *Mdat
}

// Child returns the first child box of the given type, or nil.
func (b *Box) Child(t BoxType) *Box {
	if c := b.Children[t]; len(c) > 0 {
		return c[0]
	}
	return nil
}

// ChildList returns all children of the given type.
func (b *Box) ChildList(t BoxType) []*Box {
	return b.Children[t]
}

// addChild appends a typed child, preserving insertion order within its type bucket.
func (b *Box) addChild(c *Box) {
	if b.Children == nil {
		b.Children = make(map[BoxType][]*Box)
	}
	b.Children[c.Type] = append(b.Children[c.Type], c)
}

// codec describes how to decode/encode/size one box type's content.
// decode receives the box's data slice (header already consumed).
type codec struct {
	decode         func(b *Box, data []byte) error
	encode         func(b *Box, w *fmp4split.Writer)
	encodingLength func(b *Box) int
}

var codecs = map[BoxType]*codec{}

func getCodec(t BoxType) *codec {
	return codecs[t]
}

// Decode parses the first box in buf, recursing into containers.
// buf must start with the box's full bytes, header included.
func Decode(buf []byte) (*Box, error) {
	r := fmp4split.NewReader(buf)
	if !r.Next() {
		return nil, &fmp4split.BoxError{Err: fmp4split.ErrMalformedBox}
	}
	return decodeOne(&r)
}

// DecodeAll parses every top-level box in buf (used for a moov or moof buffer
// containing one root box, or for a sequence of top-level boxes).
func DecodeAll(buf []byte) ([]*Box, error) {
	r := fmp4split.NewReader(buf)
	var boxes []*Box
	for r.Next() {
		b, err := decodeOne(&r)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

func decodeOne(r *fmp4split.Reader) (*Box, error) {
	b := &Box{
		Type:    r.Type(),
		Version: r.Version(),
		Flags:   r.Flags(),
	}

	if fmp4split.IsContainerBox(b.Type) {
		r.Enter()
		for r.Next() {
			child, err := decodeOne(r)
			if err != nil {
				r.Exit()
				return nil, err
			}
			if !fmp4split.IsContainerBox(child.Type) && getCodec(child.Type) == nil {
				b.Unknown = append(b.Unknown, child.Unknown...)
				continue
			}
			b.addChild(child)
		}
		r.Exit()
		return b, nil
	}

	if c := getCodec(b.Type); c != nil {
		if err := c.decode(b, r.Data()); err != nil {
			return nil, err
		}
		return b, nil
	}

	// Unknown/opaque box: keep the raw bytes, including the header, so a
	// re-encode round trip preserves it exactly.
	b.Unknown = []RawBox{{Type: b.Type, Data: append([]byte(nil), r.RawBox()...)}}
	return b, nil
}

// EncodeToBytes serialises b (and its children) into a fresh byte slice.
func EncodeToBytes(b *Box) ([]byte, error) {
	size := encodingLength(b)
	buf := make([]byte, 0, size)
	w := fmp4split.NewWriter(buf)
	if err := encodeOne(b, &w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeOne(b *Box, w *fmp4split.Writer) error {
	if len(b.Unknown) == 1 && b.Unknown[0].Type == b.Type && b.Children == nil {
		w.Write(b.Unknown[0].Data)
		return nil
	}

	if fmp4split.IsFullBox(b.Type) {
		w.StartFullBox(b.Type, b.Version, b.Flags)
	} else {
		w.StartBox(b.Type)
	}

	if fmp4split.IsContainerBox(b.Type) {
		for _, raw := range b.Unknown {
			w.Write(raw.Data)
		}
		for _, t := range childOrder(b.Type) {
			for _, child := range b.Children[t] {
				if err := encodeOne(child, w); err != nil {
					return err
				}
			}
		}
	} else if c := getCodec(b.Type); c != nil {
		c.encode(b, w)
	} else {
		return fmt.Errorf("boxtree: no codec registered for %q", b.Type)
	}

	w.EndBox()
	return nil
}

func encodingLength(b *Box) int {
	header := 8
	if fmp4split.IsFullBox(b.Type) {
		header += 4
	}
	if len(b.Unknown) == 1 && b.Unknown[0].Type == b.Type && b.Children == nil {
		return len(b.Unknown[0].Data)
	}
	if fmp4split.IsContainerBox(b.Type) {
		total := header
		for _, raw := range b.Unknown {
			total += len(raw.Data)
		}
		for _, t := range childOrder(b.Type) {
			for _, child := range b.Children[t] {
				total += encodingLength(child)
			}
		}
		return total
	}
	if c := getCodec(b.Type); c != nil {
		return header + c.encodingLength(b)
	}
	return header
}

// childOrder returns a stable type order for re-encoding a container's
// children, matching the canonical order the write path of this package
// uses elsewhere (spec.md's requirement that unknown children are kept in
// original relative order, and known children follow in canonical order).
func childOrder(parent BoxType) []BoxType {
	switch parent {
	case fmp4split.TypeMoov:
		return []BoxType{fmp4split.TypeMvhd, fmp4split.TypeTrak, fmp4split.TypeMvex, fmp4split.TypeUdta}
	case fmp4split.TypeTrak:
		return []BoxType{fmp4split.TypeTkhd, fmp4split.TypeTref, fmp4split.TypeEdts, fmp4split.TypeMdia}
	case fmp4split.TypeMdia:
		return []BoxType{fmp4split.TypeMdhd, fmp4split.TypeHdlr, fmp4split.TypeMinf}
	case fmp4split.TypeMinf:
		return []BoxType{fmp4split.TypeVmhd, fmp4split.TypeSmhd, fmp4split.TypeDinf, fmp4split.TypeStbl}
	case fmp4split.TypeDinf:
		return []BoxType{fmp4split.TypeDref}
	case fmp4split.TypeStbl:
		return []BoxType{fmp4split.TypeStsd, fmp4split.TypeStts, fmp4split.TypeCtts, fmp4split.TypeStsc,
			fmp4split.TypeStsz, fmp4split.TypeStz2, fmp4split.TypeStco, fmp4split.TypeCo64, fmp4split.TypeStss}
	case fmp4split.TypeStsd:
		return []BoxType{fmp4split.TypeAvc1, fmp4split.TypeMp4a}
	case fmp4split.TypeAvc1:
		return []BoxType{fmp4split.TypeAvcC, fmp4split.TypeBtrt, fmp4split.TypePasp}
	case fmp4split.TypeMp4a:
		return []BoxType{fmp4split.TypeEsds}
	case fmp4split.TypeMvex:
		return []BoxType{fmp4split.TypeMehd, fmp4split.TypeTrex}
	case fmp4split.TypeMoof:
		return []BoxType{fmp4split.TypeMfhd, fmp4split.TypeTraf}
	case fmp4split.TypeTraf:
		return []BoxType{fmp4split.TypeTfhd, fmp4split.TypeTfdt, fmp4split.TypeTrun}
	case fmp4split.TypeMfra:
		return []BoxType{fmp4split.TypeTfra, fmp4split.TypeMfro}
	}
	return nil
}
