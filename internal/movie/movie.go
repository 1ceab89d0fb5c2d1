// Package movie opens an input file and loads just enough of it —
// ftyp and moov — to build the parsed track model every mp4split
// subcommand works from, leaving sample bytes (mdat) addressed by file
// range rather than read into memory.
//
// Grounded on cmd/mp4probe's and cmd/mfdump's Scanner-driven top-level
// walk, generalized from a one-off inline loop into a reusable loader
// shared by every subcommand.
package movie

import (
	"os"

	fmp4split "github.com/ccampbell/fmp4split"
	"github.com/ccampbell/fmp4split/boxtree"
	"github.com/ccampbell/fmp4split/sampletable"
)

// Movie is an opened input file with its moov already parsed into
// tracks. File stays open for the caller's later sample-byte reads
// (fragment/clip building reads sample ranges via FileRange buckets);
// callers must Close it when done.
type Movie struct {
	File      *os.File
	Ftyp      []byte
	Moov      *boxtree.Box
	Tracks    []*sampletable.Track
	TimeScale uint32
}

// Open scans path's top-level boxes, keeps the raw ftyp bytes and the
// decoded moov, and parses every track out of it.
func Open(path string) (*Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := load(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	m.File = f
	return m, nil
}

func load(f *os.File) (*Movie, error) {
	var ftyp []byte
	var moovBuf []byte

	sc := fmp4split.NewScanner(f)
	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case fmp4split.TypeFtyp:
			buf := make([]byte, e.Size)
			if err := sc.ReadBox(buf); err != nil {
				return nil, err
			}
			ftyp = buf
		case fmp4split.TypeMoov:
			buf := make([]byte, e.Size)
			if err := sc.ReadBox(buf); err != nil {
				return nil, err
			}
			moovBuf = buf
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if moovBuf == nil {
		return nil, &fmp4split.BoxError{Type: fmp4split.TypeMoov, Err: fmp4split.ErrMissingMandatory}
	}

	moov, err := boxtree.Decode(moovBuf)
	if err != nil {
		return nil, err
	}
	tracks, err := sampletable.ParseTracks(moov)
	if err != nil {
		return nil, err
	}

	mvhd := moov.Child(fmp4split.TypeMvhd)
	var timeScale uint32
	if mvhd != nil {
		timeScale = mvhd.Mvhd.TimeScale
	}

	return &Movie{Ftyp: ftyp, Moov: moov, Tracks: tracks, TimeScale: timeScale}, nil
}

// Close releases the underlying file handle.
func (m *Movie) Close() error {
	if m.File == nil {
		return nil
	}
	return m.File.Close()
}
