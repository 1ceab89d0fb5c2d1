package boxtree

import (
	"encoding/binary"

	fmp4split "github.com/ccampbell/fmp4split"
)

var be = binary.BigEndian

// Ftyp-less: ftyp/styp are handled directly by the fragment/full-fragmenter
// packages via fmp4split.Writer, since they never need a round trip through
// the tree (they are always freshly synthesised, not copied from source).

// Mvhd holds movie header fields not already summarised by fmp4split.ReadMvhd:
// creation/modification time, rate, volume and the transform matrix are kept
// byte-faithful so an unmodified moov round-trips unchanged.
type Mvhd struct {
	CTime, MTime uint64
	TimeScale    uint32
	Duration     uint64
	Rate         uint32
	Volume       uint16
	Matrix       [36]byte
	NextTrackID  uint32
}

type Tkhd struct {
	CTime, MTime uint64
	TrackID      uint32
	Duration     uint64
	Layer        int16
	AltGroup     int16
	Volume       uint16
	Matrix       [36]byte
	Width        uint32 // 16.16 fixed point
	Height       uint32 // 16.16 fixed point
}

type Mdhd struct {
	CTime, MTime uint64
	TimeScale    uint32
	Duration     uint64
	Language     uint16
}

type Hdlr struct {
	HandlerType [4]byte
	Name        string
}

type Vmhd struct {
	GraphicsMode uint16
	Opcolor      [3]uint16
}

type Smhd struct {
	Balance uint16
}

type Stsd struct{} // entries live as Children[TypeAvc1]/Children[TypeMp4a]

type VisualSampleEntry struct {
	DataReferenceIndex uint16
	Width, Height      uint16
	HResolution        uint32
	VResolution        uint32
	FrameCount         uint16
	CompressorName     string
	Depth              uint16
}

type AudioSampleEntry struct {
	DataReferenceIndex uint16
	ChannelCount       uint16
	SampleSize         uint16
	SampleRate         uint32
}

type AvcC struct {
	Config fmp4split.AvcConfig
	Raw    []byte
}

type Esds struct {
	Raw []byte
}

type Stsz struct {
	SampleSize uint32
	Entries    []uint32

	// FieldSize is the packed bit width (4, 8 or 16) for stz2 entries;
	// unused (and zero) for stsz, which is always a fixed 32-bit field.
	FieldSize uint8
}

type Stco struct {
	Entries []uint64 // widened uint64 regardless of stco/co64 source so callers don't branch
}

type Co64 = Stco

type Stss struct {
	Entries []uint32
}

type Stts struct {
	Entries []fmp4split.SttsEntry
}

type Ctts struct {
	Version uint8
	Entries []fmp4split.CttsEntry
}

type Stsc struct {
	Entries []fmp4split.StscEntry
}

type DrefEntry struct {
	Type [4]byte
	Buf  []byte
}

type DrefBox struct {
	Entries []DrefEntry
}

type Elst struct {
	Entries []fmp4split.ElstEntry
}

type Mehd struct {
	FragmentDuration uint64
}

type Trex struct {
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

type Mfhd struct {
	SequenceNumber uint32
}

type Tfhd struct {
	TrackID uint32
}

type Tfdt struct {
	BaseMediaDecodeTime uint64
}

type Trun struct {
	DataOffset int32
	Entries    []fmp4split.TrunEntry
}

type Mdat struct {
	Data []byte
}

func init() {
	codecs[fmp4split.TypeMvhd] = &codec{decodeMvhd, encodeMvhd, func(b *Box) int { return mvhdLen(b.Mvhd) }}
	codecs[fmp4split.TypeTkhd] = &codec{decodeTkhd, encodeTkhd, func(b *Box) int { return tkhdLen(b.Tkhd) }}
	codecs[fmp4split.TypeMdhd] = &codec{decodeMdhd, encodeMdhd, func(b *Box) int { return mdhdLen(b.Mdhd) }}
	codecs[fmp4split.TypeHdlr] = &codec{decodeHdlr, encodeHdlr, func(b *Box) int { return 20 + len(b.Hdlr.Name) + 1 }}
	codecs[fmp4split.TypeVmhd] = &codec{decodeVmhd, encodeVmhd, func(*Box) int { return 8 }}
	codecs[fmp4split.TypeSmhd] = &codec{decodeSmhd, encodeSmhd, func(*Box) int { return 4 }}
	codecs[fmp4split.TypeStsd] = &codec{decodeStsd, encodeStsd, encodingLengthStsd}
	codecs[fmp4split.TypeAvc1] = &codec{decodeVisual, encodeVisual, encodingLengthVisual}
	codecs[fmp4split.TypeAvcC] = &codec{decodeAvcC, encodeAvcC, func(b *Box) int { return len(b.AvcC.Raw) }}
	codecs[fmp4split.TypeMp4a] = &codec{decodeAudio, encodeAudio, encodingLengthAudio}
	codecs[fmp4split.TypeEsds] = &codec{decodeEsds, encodeEsds, func(b *Box) int { return len(b.Esds.Raw) }}
	codecs[fmp4split.TypeStsz] = &codec{decodeStsz, encodeStsz, func(b *Box) int { return stszLen(b.Stsz) }}
	codecs[fmp4split.TypeStz2] = &codec{decodeStz2, encodeStz2, func(b *Box) int { return stz2Len(b.Stz2) }}
	codecs[fmp4split.TypeStco] = &codec{decodeStco, encodeStco, func(b *Box) int { return 4 + 4*len(b.Stco.Entries) }}
	codecs[fmp4split.TypeCo64] = &codec{decodeCo64, encodeCo64, func(b *Box) int { return 4 + 8*len(b.Co64.Entries) }}
	codecs[fmp4split.TypeStss] = &codec{decodeStss, encodeStss, func(b *Box) int { return 4 + 4*len(b.Stss.Entries) }}
	codecs[fmp4split.TypeStts] = &codec{decodeStts, encodeStts, func(b *Box) int { return 4 + 8*len(b.Stts.Entries) }}
	codecs[fmp4split.TypeCtts] = &codec{decodeCtts, encodeCtts, func(b *Box) int { return 4 + 8*len(b.Ctts.Entries) }}
	codecs[fmp4split.TypeStsc] = &codec{decodeStsc, encodeStsc, func(b *Box) int { return 4 + 12*len(b.Stsc.Entries) }}
	codecs[fmp4split.TypeDref] = &codec{decodeDref, encodeDref, encodingLengthDref}
	codecs[fmp4split.TypeElst] = &codec{decodeElst, encodeElst, encodingLengthElst}
	codecs[fmp4split.TypeMehd] = &codec{decodeMehd, encodeMehd, func(b *Box) int {
		if b.Mehd.FragmentDuration > uint32Max {
			return 8
		}
		return 4
	}}
	codecs[fmp4split.TypeTrex] = &codec{decodeTrex, encodeTrex, func(*Box) int { return 20 }}
	codecs[fmp4split.TypeMfhd] = &codec{decodeMfhd, encodeMfhd, func(*Box) int { return 4 }}
	codecs[fmp4split.TypeTfhd] = &codec{decodeTfhd, encodeTfhd, func(*Box) int { return 4 }}
	codecs[fmp4split.TypeTfdt] = &codec{decodeTfdt, encodeTfdt, func(b *Box) int {
		if b.Tfdt.BaseMediaDecodeTime > uint32Max {
			return 8
		}
		return 4
	}}
	codecs[fmp4split.TypeTrun] = &codec{decodeTrun, encodeTrun, encodingLengthTrun}
	codecs[fmp4split.TypeMdat] = &codec{decodeMdat, encodeMdat, func(b *Box) int { return len(b.Mdat.Data) }}
}

const uint32Max = 1<<32 - 1

func decodeMvhd(b *Box, data []byte) error {
	m := &Mvhd{}
	if b.Version == 1 {
		m.CTime = be.Uint64(data[0:8])
		m.MTime = be.Uint64(data[8:16])
		m.TimeScale = be.Uint32(data[16:20])
		m.Duration = be.Uint64(data[20:28])
		m.Rate = be.Uint32(data[28:32])
		m.Volume = be.Uint16(data[32:34])
		copy(m.Matrix[:], data[44:80])
		m.NextTrackID = be.Uint32(data[104:108])
	} else {
		m.CTime = uint64(be.Uint32(data[0:4]))
		m.MTime = uint64(be.Uint32(data[4:8]))
		m.TimeScale = be.Uint32(data[8:12])
		m.Duration = uint64(be.Uint32(data[12:16]))
		m.Rate = be.Uint32(data[16:20])
		m.Volume = be.Uint16(data[20:22])
		copy(m.Matrix[:], data[32:68])
		m.NextTrackID = be.Uint32(data[92:96])
	}
	b.Mvhd = m
	return nil
}

func mvhdLen(m *Mvhd) int {
	if m.Duration > uint32Max || m.CTime > uint32Max || m.MTime > uint32Max {
		return 108
	}
	return 96
}

func encodeMvhd(b *Box, w *fmp4split.Writer) {
	m := b.Mvhd
	v1 := mvhdLen(m) == 108
	if v1 {
		w.PutUint64(m.CTime)
		w.PutUint64(m.MTime)
		w.PutUint32(m.TimeScale)
		w.PutUint64(m.Duration)
	} else {
		w.PutUint32(uint32(m.CTime))
		w.PutUint32(uint32(m.MTime))
		w.PutUint32(m.TimeScale)
		w.PutUint32(uint32(m.Duration))
	}
	w.PutUint32(m.Rate)
	w.PutUint16(m.Volume)
	w.PutZeros(10)
	w.PutBytes(m.Matrix[:])
	w.PutZeros(24)
	w.PutUint32(m.NextTrackID)
}

func decodeTkhd(b *Box, data []byte) error {
	t := &Tkhd{}
	if b.Version == 1 {
		t.CTime = be.Uint64(data[0:8])
		t.MTime = be.Uint64(data[8:16])
		t.TrackID = be.Uint32(data[16:20])
		t.Duration = be.Uint64(data[24:32])
		t.Layer = int16(be.Uint16(data[40:42]))
		t.AltGroup = int16(be.Uint16(data[42:44]))
		t.Volume = be.Uint16(data[44:46])
		copy(t.Matrix[:], data[48:84])
		t.Width = be.Uint32(data[84:88])
		t.Height = be.Uint32(data[88:92])
	} else {
		t.CTime = uint64(be.Uint32(data[0:4]))
		t.MTime = uint64(be.Uint32(data[4:8]))
		t.TrackID = be.Uint32(data[8:12])
		t.Duration = uint64(be.Uint32(data[16:20]))
		t.Layer = int16(be.Uint16(data[28:30]))
		t.AltGroup = int16(be.Uint16(data[30:32]))
		t.Volume = be.Uint16(data[32:34])
		copy(t.Matrix[:], data[36:72])
		t.Width = be.Uint32(data[72:76])
		t.Height = be.Uint32(data[76:80])
	}
	b.Tkhd = t
	return nil
}

func tkhdLen(t *Tkhd) int {
	if t.Duration > uint32Max || t.CTime > uint32Max || t.MTime > uint32Max {
		return 92
	}
	return 80
}

func encodeTkhd(b *Box, w *fmp4split.Writer) {
	t := b.Tkhd
	v1 := tkhdLen(t) == 92
	if v1 {
		w.PutUint64(t.CTime)
		w.PutUint64(t.MTime)
		w.PutUint32(t.TrackID)
		w.PutZeros(4)
		w.PutUint64(t.Duration)
	} else {
		w.PutUint32(uint32(t.CTime))
		w.PutUint32(uint32(t.MTime))
		w.PutUint32(t.TrackID)
		w.PutZeros(4)
		w.PutUint32(uint32(t.Duration))
	}
	w.PutZeros(8)
	w.PutUint16(uint16(t.Layer))
	w.PutUint16(uint16(t.AltGroup))
	w.PutUint16(t.Volume)
	w.PutZeros(2)
	w.PutBytes(t.Matrix[:])
	w.PutUint32(t.Width)
	w.PutUint32(t.Height)
}

func decodeMdhd(b *Box, data []byte) error {
	m := &Mdhd{}
	if b.Version == 1 {
		m.CTime = be.Uint64(data[0:8])
		m.MTime = be.Uint64(data[8:16])
		m.TimeScale = be.Uint32(data[16:20])
		m.Duration = be.Uint64(data[20:28])
		m.Language = be.Uint16(data[28:30])
	} else {
		m.CTime = uint64(be.Uint32(data[0:4]))
		m.MTime = uint64(be.Uint32(data[4:8]))
		m.TimeScale = be.Uint32(data[8:12])
		m.Duration = uint64(be.Uint32(data[12:16]))
		m.Language = be.Uint16(data[16:18])
	}
	b.Mdhd = m
	return nil
}

func mdhdLen(m *Mdhd) int {
	if m.Duration > uint32Max || m.CTime > uint32Max || m.MTime > uint32Max {
		return 32
	}
	return 20
}

func encodeMdhd(b *Box, w *fmp4split.Writer) {
	m := b.Mdhd
	v1 := mdhdLen(m) == 32
	if v1 {
		w.PutUint64(m.CTime)
		w.PutUint64(m.MTime)
		w.PutUint32(m.TimeScale)
		w.PutUint64(m.Duration)
	} else {
		w.PutUint32(uint32(m.CTime))
		w.PutUint32(uint32(m.MTime))
		w.PutUint32(m.TimeScale)
		w.PutUint32(uint32(m.Duration))
	}
	w.PutUint16(m.Language)
	w.PutUint16(0)
}

func decodeHdlr(b *Box, data []byte) error {
	h := &Hdlr{}
	copy(h.HandlerType[:], data[4:8])
	end := 20
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end > 20 {
		h.Name = string(data[20:end])
	}
	b.Hdlr = h
	return nil
}

func encodeHdlr(b *Box, w *fmp4split.Writer) {
	w.PutZeros(4)
	w.PutBytes(b.Hdlr.HandlerType[:])
	w.PutZeros(12)
	w.PutBytes([]byte(b.Hdlr.Name))
	w.PutUint8(0)
}

func decodeVmhd(b *Box, data []byte) error {
	v := &Vmhd{GraphicsMode: be.Uint16(data[0:2])}
	v.Opcolor[0] = be.Uint16(data[2:4])
	v.Opcolor[1] = be.Uint16(data[4:6])
	v.Opcolor[2] = be.Uint16(data[6:8])
	b.Vmhd = v
	return nil
}

func encodeVmhd(b *Box, w *fmp4split.Writer) {
	w.PutUint16(b.Vmhd.GraphicsMode)
	w.PutUint16(b.Vmhd.Opcolor[0])
	w.PutUint16(b.Vmhd.Opcolor[1])
	w.PutUint16(b.Vmhd.Opcolor[2])
}

func decodeSmhd(b *Box, data []byte) error {
	b.Smhd = &Smhd{Balance: be.Uint16(data[0:2])}
	return nil
}

func encodeSmhd(b *Box, w *fmp4split.Writer) {
	w.PutUint16(b.Smhd.Balance)
	w.PutUint16(0)
}

func decodeStsd(b *Box, data []byte) error {
	b.Stsd = &Stsd{}
	if len(data) < 4 {
		return &fmp4split.BoxError{Type: fmp4split.TypeStsd, Err: fmp4split.ErrMalformedBox}
	}
	entries, err := DecodeAll(data[4:])
	if err != nil {
		return err
	}
	for _, e := range entries {
		b.addChild(e)
	}
	return nil
}

func encodeStsd(b *Box, w *fmp4split.Writer) {
	count := 0
	for _, t := range []BoxType{fmp4split.TypeAvc1, fmp4split.TypeMp4a} {
		count += len(b.Children[t])
	}
	w.PutUint32(uint32(count))
	for _, t := range []BoxType{fmp4split.TypeAvc1, fmp4split.TypeMp4a} {
		for _, child := range b.Children[t] {
			_ = encodeOne(child, w)
		}
	}
}

func encodingLengthStsd(b *Box) int {
	total := 4
	for _, t := range []BoxType{fmp4split.TypeAvc1, fmp4split.TypeMp4a} {
		for _, child := range b.Children[t] {
			total += encodingLength(child)
		}
	}
	return total
}

func decodeVisual(b *Box, data []byte) error {
	e := fmp4split.ReadVisualSampleEntry(data)
	b.VisualSampleEntry = &VisualSampleEntry{
		DataReferenceIndex: e.DataReferenceIndex,
		Width:              e.Width,
		Height:             e.Height,
		HResolution:        e.HResolution,
		VResolution:        e.VResolution,
		FrameCount:         e.FrameCount,
		CompressorName:     e.CompressorName,
		Depth:              e.Depth,
	}
	if e.ChildOffset < len(data) {
		children, err := DecodeAll(data[e.ChildOffset:])
		if err != nil {
			return err
		}
		for _, c := range children {
			b.addChild(c)
		}
	}
	return nil
}

func encodeVisual(b *Box, w *fmp4split.Writer) {
	e := b.VisualSampleEntry
	w.WriteVisualSampleEntry(e.DataReferenceIndex, e.Width, e.Height, e.FrameCount, e.Depth, e.CompressorName)
	for _, t := range []BoxType{fmp4split.TypeAvcC, fmp4split.TypeBtrt, fmp4split.TypePasp} {
		for _, child := range b.Children[t] {
			_ = encodeOne(child, w)
		}
	}
}

func encodingLengthVisual(b *Box) int {
	total := 78
	for _, t := range []BoxType{fmp4split.TypeAvcC, fmp4split.TypeBtrt, fmp4split.TypePasp} {
		for _, child := range b.Children[t] {
			total += encodingLength(child)
		}
	}
	return total
}

func decodeAvcC(b *Box, data []byte) error {
	cfg, err := fmp4split.ReadAvcCFull(data)
	if err != nil {
		return err
	}
	b.AvcC = &AvcC{Config: cfg, Raw: append([]byte(nil), data...)}
	return nil
}

func encodeAvcC(b *Box, w *fmp4split.Writer) {
	w.PutBytes(b.AvcC.Raw)
}

func decodeAudio(b *Box, data []byte) error {
	e := fmp4split.ReadAudioSampleEntry(data)
	b.AudioSampleEntry = &AudioSampleEntry{
		DataReferenceIndex: e.DataReferenceIndex,
		ChannelCount:       e.ChannelCount,
		SampleSize:         e.SampleSize,
		SampleRate:         e.SampleRate,
	}
	if e.ChildOffset < len(data) {
		children, err := DecodeAll(data[e.ChildOffset:])
		if err != nil {
			return err
		}
		for _, c := range children {
			b.addChild(c)
		}
	}
	return nil
}

func encodeAudio(b *Box, w *fmp4split.Writer) {
	e := b.AudioSampleEntry
	w.WriteAudioSampleEntry(e.DataReferenceIndex, e.ChannelCount, e.SampleSize, e.SampleRate)
	for _, child := range b.Children[fmp4split.TypeEsds] {
		_ = encodeOne(child, w)
	}
}

func encodingLengthAudio(b *Box) int {
	total := 28
	for _, child := range b.Children[fmp4split.TypeEsds] {
		total += encodingLength(child)
	}
	return total
}

func decodeEsds(b *Box, data []byte) error {
	b.Esds = &Esds{Raw: append([]byte(nil), data...)}
	return nil
}

func encodeEsds(b *Box, w *fmp4split.Writer) {
	w.PutBytes(b.Esds.Raw)
}

func decodeStsz(b *Box, data []byte) error {
	it := fmp4split.NewStszIter(data)
	s := &Stsz{SampleSize: be.Uint32(data[0:4])}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Stsz = s
	return nil
}

func stszLen(s *Stsz) int {
	if s.SampleSize != 0 {
		return 8
	}
	return 8 + 4*len(s.Entries)
}

func encodeStsz(b *Box, w *fmp4split.Writer) {
	w.PutUint32(b.Stsz.SampleSize)
	w.PutUint32(uint32(len(b.Stsz.Entries)))
	if b.Stsz.SampleSize == 0 {
		for _, e := range b.Stsz.Entries {
			w.PutUint32(e)
		}
	}
}

func decodeStz2(b *Box, data []byte) error {
	it := fmp4split.NewStz2Iter(data)
	s := &Stsz{FieldSize: data[3]}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Stz2 = s
	return nil
}

func stz2Len(s *Stsz) int {
	n := len(s.Entries)
	switch s.FieldSize {
	case 16:
		return 8 + 2*n
	case 8:
		return 8 + n
	default: // 4-bit fields, two per byte
		return 8 + (n+1)/2
	}
}

func encodeStz2(b *Box, w *fmp4split.Writer) {
	w.PutZeros(3) // reserved
	w.PutUint8(b.Stz2.FieldSize)
	w.PutUint32(uint32(len(b.Stz2.Entries)))
	switch b.Stz2.FieldSize {
	case 16:
		for _, e := range b.Stz2.Entries {
			w.PutUint16(uint16(e))
		}
	case 8:
		for _, e := range b.Stz2.Entries {
			w.PutUint8(uint8(e))
		}
	default:
		entries := b.Stz2.Entries
		for i := 0; i < len(entries); i += 2 {
			hi := byte(entries[i] & 0x0f)
			var lo byte
			if i+1 < len(entries) {
				lo = byte(entries[i+1] & 0x0f)
			}
			w.PutUint8(hi<<4 | lo)
		}
	}
}

func decodeStco(b *Box, data []byte) error {
	it := fmp4split.NewUint32Iter(data)
	s := &Stco{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, uint64(v))
	}
	b.Stco = s
	return nil
}

func encodeStco(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Stco.Entries)))
	for _, e := range b.Stco.Entries {
		w.PutUint32(uint32(e))
	}
}

func decodeCo64(b *Box, data []byte) error {
	it := fmp4split.NewCo64Iter(data)
	s := &Co64{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Co64 = s
	return nil
}

func encodeCo64(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Co64.Entries)))
	for _, e := range b.Co64.Entries {
		w.PutUint64(e)
	}
}

func decodeStss(b *Box, data []byte) error {
	it := fmp4split.NewUint32Iter(data)
	s := &Stss{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Stss = s
	return nil
}

func encodeStss(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Stss.Entries)))
	for _, e := range b.Stss.Entries {
		w.PutUint32(e)
	}
}

func decodeStts(b *Box, data []byte) error {
	it := fmp4split.NewSttsIter(data)
	s := &Stts{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Stts = s
	return nil
}

func encodeStts(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Stts.Entries)))
	for _, e := range b.Stts.Entries {
		w.PutUint32(e.Count)
		w.PutUint32(e.Duration)
	}
}

func decodeCtts(b *Box, data []byte) error {
	it := fmp4split.NewCttsIter(data, b.Version)
	s := &Ctts{Version: b.Version}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Ctts = s
	return nil
}

func encodeCtts(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Ctts.Entries)))
	for _, e := range b.Ctts.Entries {
		w.PutUint32(e.Count)
		w.PutUint32(uint32(e.Offset))
	}
}

func decodeStsc(b *Box, data []byte) error {
	it := fmp4split.NewStscIter(data)
	s := &Stsc{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Stsc = s
	return nil
}

func encodeStsc(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Stsc.Entries)))
	for _, e := range b.Stsc.Entries {
		w.PutUint32(e.FirstChunk)
		w.PutUint32(e.SamplesPerChunk)
		w.PutUint32(e.SampleDescriptionId)
	}
}

func decodeDref(b *Box, data []byte) error {
	if len(data) < 4 {
		return &fmp4split.BoxError{Type: fmp4split.TypeDref, Err: fmp4split.ErrMalformedBox}
	}
	count := be.Uint32(data[0:4])
	d := &DrefBox{}
	ptr := 4
	for i := uint32(0); i < count && ptr+8 <= len(data); i++ {
		size := int(be.Uint32(data[ptr:]))
		if ptr+size > len(data) || size < 8 {
			break
		}
		var t [4]byte
		copy(t[:], data[ptr+4:ptr+8])
		d.Entries = append(d.Entries, DrefEntry{Type: t, Buf: append([]byte(nil), data[ptr+8:ptr+size]...)})
		ptr += size
	}
	b.Dref = d
	return nil
}

func encodeDref(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Dref.Entries)))
	for _, e := range b.Dref.Entries {
		w.StartBox(e.Type)
		w.PutBytes(e.Buf)
		w.EndBox()
	}
}

func encodingLengthDref(b *Box) int {
	total := 4
	for _, e := range b.Dref.Entries {
		total += 8 + len(e.Buf)
	}
	return total
}

func decodeElst(b *Box, data []byte) error {
	it := fmp4split.NewElstIter(data, b.Version)
	s := &Elst{}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		s.Entries = append(s.Entries, v)
	}
	b.Elst = s
	return nil
}

func elstV1(s *Elst) bool {
	for _, e := range s.Entries {
		if e.SegmentDuration > uint32Max || e.MediaTime > int64(int32(e.MediaTime)) {
			return true
		}
	}
	return false
}

func encodeElst(b *Box, w *fmp4split.Writer) {
	v1 := elstV1(b.Elst)
	w.PutUint32(uint32(len(b.Elst.Entries)))
	for _, e := range b.Elst.Entries {
		if v1 {
			w.PutUint64(e.SegmentDuration)
			w.PutUint64(uint64(e.MediaTime))
		} else {
			w.PutUint32(uint32(e.SegmentDuration))
			w.PutUint32(uint32(e.MediaTime))
		}
		w.PutUint16(uint16(e.MediaRateInt))
		w.PutUint16(uint16(e.MediaRateFrac))
	}
}

func encodingLengthElst(b *Box) int {
	if elstV1(b.Elst) {
		return 4 + 20*len(b.Elst.Entries)
	}
	return 4 + 12*len(b.Elst.Entries)
}

func decodeMehd(b *Box, data []byte) error {
	m := &Mehd{}
	if b.Version == 1 {
		m.FragmentDuration = be.Uint64(data[0:8])
	} else {
		m.FragmentDuration = uint64(be.Uint32(data[0:4]))
	}
	b.Mehd = m
	return nil
}

func encodeMehd(b *Box, w *fmp4split.Writer) {
	if b.Mehd.FragmentDuration > uint32Max {
		w.PutUint64(b.Mehd.FragmentDuration)
	} else {
		w.PutUint32(uint32(b.Mehd.FragmentDuration))
	}
}

func decodeTrex(b *Box, data []byte) error {
	b.Trex = &Trex{
		TrackID:                       be.Uint32(data[0:4]),
		DefaultSampleDescriptionIndex: be.Uint32(data[4:8]),
		DefaultSampleDuration:         be.Uint32(data[8:12]),
		DefaultSampleSize:             be.Uint32(data[12:16]),
		DefaultSampleFlags:            be.Uint32(data[16:20]),
	}
	return nil
}

func encodeTrex(b *Box, w *fmp4split.Writer) {
	t := b.Trex
	w.PutUint32(t.TrackID)
	w.PutUint32(t.DefaultSampleDescriptionIndex)
	w.PutUint32(t.DefaultSampleDuration)
	w.PutUint32(t.DefaultSampleSize)
	w.PutUint32(t.DefaultSampleFlags)
}

func decodeMfhd(b *Box, data []byte) error {
	b.Mfhd = &Mfhd{SequenceNumber: be.Uint32(data[0:4])}
	return nil
}

func encodeMfhd(b *Box, w *fmp4split.Writer) {
	w.PutUint32(b.Mfhd.SequenceNumber)
}

func decodeTfhd(b *Box, data []byte) error {
	b.Tfhd = &Tfhd{TrackID: be.Uint32(data[0:4])}
	return nil
}

func encodeTfhd(b *Box, w *fmp4split.Writer) {
	w.PutUint32(b.Tfhd.TrackID)
}

func decodeTfdt(b *Box, data []byte) error {
	t := &Tfdt{}
	if b.Version == 1 {
		t.BaseMediaDecodeTime = be.Uint64(data[0:8])
	} else {
		t.BaseMediaDecodeTime = uint64(be.Uint32(data[0:4]))
	}
	b.Tfdt = t
	return nil
}

func encodeTfdt(b *Box, w *fmp4split.Writer) {
	if b.Tfdt.BaseMediaDecodeTime > uint32Max {
		w.PutUint64(b.Tfdt.BaseMediaDecodeTime)
	} else {
		w.PutUint32(uint32(b.Tfdt.BaseMediaDecodeTime))
	}
}

func decodeTrun(b *Box, data []byte) error {
	it := fmp4split.NewTrunIter(data, b.Flags)
	t := &Trun{DataOffset: it.DataOffset()}
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		t.Entries = append(t.Entries, v)
	}
	b.Trun = t
	return nil
}

func encodeTrun(b *Box, w *fmp4split.Writer) {
	w.PutUint32(uint32(len(b.Trun.Entries)))
	if b.Flags&fmp4split.TrunDataOffsetPresent != 0 {
		w.PutInt32(b.Trun.DataOffset)
	}
	for _, e := range b.Trun.Entries {
		if b.Flags&fmp4split.TrunSampleDurationPresent != 0 {
			w.PutUint32(e.Duration)
		}
		if b.Flags&fmp4split.TrunSampleSizePresent != 0 {
			w.PutUint32(e.Size)
		}
		if b.Flags&fmp4split.TrunSampleFlagsPresent != 0 {
			w.PutUint32(e.Flags)
		}
		if b.Flags&fmp4split.TrunSampleCompositionTimeOffsetPresent != 0 {
			w.PutInt32(e.CompositionTimeOffset)
		}
	}
}

func encodingLengthTrun(b *Box) int {
	stride := 0
	if b.Flags&fmp4split.TrunSampleDurationPresent != 0 {
		stride += 4
	}
	if b.Flags&fmp4split.TrunSampleSizePresent != 0 {
		stride += 4
	}
	if b.Flags&fmp4split.TrunSampleFlagsPresent != 0 {
		stride += 4
	}
	if b.Flags&fmp4split.TrunSampleCompositionTimeOffsetPresent != 0 {
		stride += 4
	}
	total := 4
	if b.Flags&fmp4split.TrunDataOffsetPresent != 0 {
		total += 4
	}
	total += stride * len(b.Trun.Entries)
	return total
}

func decodeMdat(b *Box, data []byte) error {
	b.Mdat = &Mdat{Data: data}
	return nil
}

func encodeMdat(b *Box, w *fmp4split.Writer) {
	w.PutBytes(b.Mdat.Data)
}
