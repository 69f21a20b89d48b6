package nitf

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// DateTimeLayout is the FDT format (CCYYMMDDhhmmss, UTC).
const DateTimeLayout = "20060102150405"

var supportedVersions = map[string]bool{
	"NITF02.10": true,
	"NSIF01.00": true,
}

// Version returns FHDR and FVER concatenated, e.g. "NITF02.10".
func Version(store ByteStore) (string, error) {
	raw, err := readExact(store, prefixOffsets[FHDR], fieldWidths[FHDR]+fieldWidths[FVER])
	if err != nil {
		return "", &FieldError{Field: FHDR, Offset: 0, Err: err}
	}
	return string(raw), nil
}

// CheckVersion fails with ErrUnsupportedVersion unless the container uses the
// NITF 2.1 (or equivalent NSIF 1.0) header layout.
func CheckVersion(store ByteStore) error {
	v, err := Version(store)
	if err != nil {
		return err
	}
	if !supportedVersions[v] {
		return fmt.Errorf("%q: %w", v, ErrUnsupportedVersion)
	}
	return nil
}

// PatchEdit is an in-place modification that does not change the store
// length.
type PatchEdit struct {
	Offset int64
	Data   []byte
}

// ApplyPatch writes each edit into store. Every edit must lie within the
// current store length; all are checked before the first write.
func ApplyPatch(store ByteStore, edits []PatchEdit) error {
	if store == nil {
		return ErrMissingStore
	}
	ordered := make([]PatchEdit, 0, len(edits))
	for _, e := range edits {
		if len(e.Data) > 0 {
			ordered = append(ordered, e)
		}
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})
	size, err := store.Len()
	if err != nil {
		return err
	}
	for _, e := range ordered {
		if e.Offset < 0 {
			return fmt.Errorf("negative patch offset %d", e.Offset)
		}
		if end := e.Offset + int64(len(e.Data)); end > size {
			return fmt.Errorf("patch at %d with length %d exceeds store size %d", e.Offset, len(e.Data), size)
		}
	}
	for _, e := range ordered {
		if err := writeFull(store, e.Data, e.Offset); err != nil {
			return err
		}
	}
	return nil
}

// FieldEdit records a cosmetic field change.
type FieldEdit struct {
	Field  FieldID
	Offset int64
	Before []byte
	After  []byte
}

// Editable reports whether f is a fixed-prefix text field that can be
// overwritten without touching any length bookkeeping.
func Editable(f FieldID) bool {
	if !inFixedPrefix(f) {
		return false
	}
	switch f {
	case FHDR, FVER, FL, HL, FBKGC:
		return false
	}
	return true
}

// EncodeText renders value as a space padded ISO-8859-1 field of f's width.
func EncodeText(f FieldID, value string) ([]byte, error) {
	if !Editable(f) {
		return nil, fmt.Errorf("%s: %w", f, ErrNotEditable)
	}
	enc, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(value))
	if err != nil {
		return nil, &FieldError{Field: f, Offset: prefixOffsets[f], Value: value, Err: err}
	}
	width := fieldWidths[f]
	if len(enc) > width {
		return nil, &OverflowError{Field: f, Needed: len(enc), Actual: width}
	}
	out := bytes.Repeat([]byte{' '}, width)
	copy(out, enc)
	return out, nil
}

// ReadText decodes f as ISO-8859-1 with trailing spaces removed.
func ReadText(store ByteStore, f FieldID) (string, error) {
	off, width, err := Span(store, f)
	if err != nil {
		return "", err
	}
	raw, err := readExact(store, off, int(width))
	if err != nil {
		return "", &FieldError{Field: f, Offset: off, Err: err}
	}
	dec, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &FieldError{Field: f, Offset: off, Err: err}
	}
	return strings.TrimRight(string(dec), " "), nil
}

// WriteText overwrites f with value and returns the bytes it replaced.
func WriteText(store ByteStore, f FieldID, value string) (FieldEdit, error) {
	encoded, err := EncodeText(f, value)
	if err != nil {
		return FieldEdit{}, err
	}
	off := prefixOffsets[f]
	before, err := readExact(store, off, len(encoded))
	if err != nil {
		return FieldEdit{}, &FieldError{Field: f, Offset: off, Err: err}
	}
	if err := ApplyPatch(store, []PatchEdit{{Offset: off, Data: encoded}}); err != nil {
		return FieldEdit{}, err
	}
	return FieldEdit{Field: f, Offset: off, Before: before, After: encoded}, nil
}

// SetDateTime writes t into FDT.
func SetDateTime(store ByteStore, t time.Time) (FieldEdit, error) {
	return WriteText(store, FDT, t.UTC().Format(DateTimeLayout))
}

// DateTime parses FDT.
func DateTime(store ByteStore) (time.Time, error) {
	s, err := ReadText(store, FDT)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return time.Time{}, &FieldError{Field: FDT, Offset: prefixOffsets[FDT], Value: s, Err: err}
	}
	return t, nil
}
