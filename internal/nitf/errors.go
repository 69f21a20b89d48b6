package nitf

import (
	"errors"
	"fmt"
)

var (
	ErrMissingStore       = errors.New("nitf: offset requires a byte store")
	ErrIndexOutOfRange    = errors.New("nitf: element index out of range")
	ErrMalformedField     = errors.New("nitf: malformed field")
	ErrFieldOverflow      = errors.New("nitf: value does not fit field width")
	ErrFieldAbsent        = errors.New("nitf: optional field not present")
	ErrReadOnly           = errors.New("nitf: byte store is read-only")
	ErrNotEditable        = errors.New("nitf: field cannot be edited in place")
	ErrUnsupportedVersion = errors.New("nitf: unsupported file version")
)

// FieldError reports a field whose bytes could not be decoded.
type FieldError struct {
	Field  FieldID
	Offset int64
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("nitf: malformed %s at offset %d", e.Field, e.Offset)
	if e.Value != "" {
		msg += fmt.Sprintf(" (%q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedField}
	}
	return []error{ErrMalformedField, e.Err}
}

// IndexError reports an element index beyond a kind's count.
type IndexError struct {
	Kind  SegmentKind
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("nitf: %s index %d out of range (count %d)", e.Kind, e.Index, e.Count)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// OverflowError reports a value that needs more digits or bytes than its
// field declares.
type OverflowError struct {
	Field  FieldID
	Needed int
	Actual int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("nitf: %s needs %d bytes but is %d wide", e.Field, e.Needed, e.Actual)
}

func (e *OverflowError) Unwrap() error { return ErrFieldOverflow }
