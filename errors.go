package fmp4split

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Sentinel errors for the operation-level failure taxonomy. An error
// that wraps one of these (usually through a *BoxError) can be
// classified with errors.Is without inspecting message text. Some
// argument checks, such as clip's sample-range validation, return plain
// fmt.Errorf errors that wrap none of them.
var (
	ErrIoFailure        = errors.New("io failure")
	ErrMalformedBox     = errors.New("malformed box")
	ErrMissingMandatory = errors.New("missing mandatory box")
	ErrOffsetOverflow   = errors.New("offset overflow")
	ErrMissingSpsPps    = errors.New("missing sps/pps")
	ErrEmptyRange       = errors.New("empty range")
	ErrManifestMismatch = errors.New("manifest mismatch")
	ErrTrackCapacity    = errors.New("track capacity exceeded")
)

// BoxError annotates a sentinel error with the box type and byte offset
// where it was detected, so a caller reading logs can locate the
// offending atom without re-parsing the file.
type BoxError struct {
	Type   BoxType
	Offset int64
	Err    error
}

func (e *BoxError) Error() string {
	if e.Type == (BoxType{}) {
		return fmt.Sprintf("%s at offset %d", e.Err, e.Offset)
	}
	return fmt.Sprintf("%s %q at offset %d", e.Err, e.Type, e.Offset)
}

func (e *BoxError) Unwrap() error {
	return e.Err
}

// LogAndReturn logs err once at the appropriate level and returns it
// unchanged, matching the single-report error policy: every error
// reaches a log sink exactly once, at the boundary where the caller
// would otherwise have to surface it itself.
func LogAndReturn(log zerolog.Logger, err error) error {
	if err == nil {
		return nil
	}
	var be *BoxError
	ev := log.Error()
	if errors.As(err, &be) {
		ev = ev.Stringer("boxType", be.Type).Int64("offset", be.Offset)
	}
	ev.Err(err).Msg("operation failed")
	return err
}
