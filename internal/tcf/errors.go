package tcf

import (
	"errors"
	"fmt"
)

// Predefined codec errors.
var (
	// ErrEmptyConsent is returned when an empty string is passed to Decode.
	ErrEmptyConsent = errors.New("empty consent string")

	// ErrVersionMismatch is returned when the core segment carries a version
	// other than 2.
	ErrVersionMismatch = errors.New("unsupported consent string version")
)

// DecodeError indicates a malformed TC string: bad base64, a truncated
// segment, or a version mismatch.
type DecodeError struct {
	Segment string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s segment: %v", e.Segment, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError indicates a consent model that violates the wire format, e.g.
// a vector containing an id the format cannot represent. It points at an
// integration bug in the caller, not at user input.
type EncodeError struct {
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Field, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
