package nitf

import (
	"fmt"
)

// Offset returns the absolute byte offset of field f. Fields up to and
// including the first image length pair have static offsets and accept a nil
// store; everything later is derived from count and length values read from
// store, so a nil store fails with ErrMissingStore.
//
// For the per-element length fields (LISH, LSSH, ...) the offset of the first
// element is returned. Later elements are located with
// ElementDescriptorOffset.
//
// Nothing is cached. Every call re-reads the fields it depends on.
func Offset(store ByteStore, f FieldID) (int64, error) {
	off, _, err := Span(store, f)
	return off, err
}

// Span returns the offset and byte width of f. Unlike FieldWidth it resolves
// the derived widths of UDHD and XHD. Optional fields that are absent
// because their governing length is zero fail with ErrFieldAbsent.
func Span(store ByteStore, f FieldID) (int64, int64, error) {
	if !f.Valid() {
		return 0, 0, fmt.Errorf("nitf: unknown field %d", int(f))
	}
	if f <= NUMI {
		return prefixOffsets[f], int64(fieldWidths[f]), nil
	}
	width := int64(fieldWidths[f])
	switch f {
	case NUMS, NUMX, NUMT, NUMDES, NUMRES:
		off, err := countOffset(store, f)
		return off, width, err
	case UDHDL:
		off, err := afterChain(store)
		return off, width, err
	case UDHOFL, UDHD:
		return optionalSpan(store, UDHDL, f)
	case XHDL:
		udhOff, udhLen, err := lengthField(store, UDHDL)
		if err != nil {
			return 0, 0, err
		}
		return udhOff + int64(fieldWidths[UDHDL]) + udhLen, width, nil
	case XHDLOFL, XHD:
		return optionalSpan(store, XHDL, f)
	}
	kind, ok := kindOfField(f)
	if !ok {
		return 0, 0, fmt.Errorf("nitf: no resolution rule for %s", f)
	}
	countOff, err := Offset(store, kind.CountField())
	if err != nil {
		return 0, 0, err
	}
	off := countOff + int64(fieldWidths[kind.CountField()])
	if f == kind.DataLenField() {
		off += int64(fieldWidths[kind.DescriptorLenField()])
	}
	return off, width, nil
}

// countOffset walks the count chain back to NUMI.
func countOffset(store ByteStore, f FieldID) (int64, error) {
	idx := -1
	for i, c := range countChain {
		if c == f {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("nitf: %s is not a count field", f)
	}
	if idx == 0 {
		return prefixOffsets[NUMI], nil
	}
	if store == nil {
		return 0, ErrMissingStore
	}
	prev := countChain[idx-1]
	prevOff, err := countOffset(store, prev)
	if err != nil {
		return 0, err
	}
	return chainEnd(store, prev, prevOff)
}

// chainEnd returns the first offset after a count field and its pairs.
func chainEnd(store ByteStore, count FieldID, countOff int64) (int64, error) {
	end := countOff + int64(fieldWidths[count])
	pw := pairWidthOf(count)
	if pw == 0 {
		return end, nil
	}
	n, err := readDecimal(store, count, countOff, fieldWidths[count])
	if err != nil {
		return 0, err
	}
	return end + n*int64(pw), nil
}

func afterChain(store ByteStore) (int64, error) {
	if store == nil {
		return 0, ErrMissingStore
	}
	resOff, err := countOffset(store, NUMRES)
	if err != nil {
		return 0, err
	}
	return chainEnd(store, NUMRES, resOff)
}

// lengthField resolves and reads UDHDL or XHDL. A non-zero value shorter than
// the overflow field it must contain is malformed.
func lengthField(store ByteStore, f FieldID) (int64, int64, error) {
	off, err := Offset(store, f)
	if err != nil {
		return 0, 0, err
	}
	v, err := readDecimal(store, f, off, fieldWidths[f])
	if err != nil {
		return 0, 0, err
	}
	if v != 0 && v < int64(fieldWidths[UDHOFL]) {
		return 0, 0, &FieldError{Field: f, Offset: off, Value: fmt.Sprintf("%0*d", fieldWidths[f], v),
			Err: fmt.Errorf("length %d cannot hold the overflow field", v)}
	}
	return off, v, nil
}

// optionalSpan resolves the overflow and data fields governed by length.
func optionalSpan(store ByteStore, length, f FieldID) (int64, int64, error) {
	lenOff, v, err := lengthField(store, length)
	if err != nil {
		return 0, 0, err
	}
	if v == 0 {
		return 0, 0, fmt.Errorf("%s (%s is zero): %w", f, length, ErrFieldAbsent)
	}
	oflOff := lenOff + int64(fieldWidths[length])
	oflWidth := int64(fieldWidths[UDHOFL])
	switch f {
	case UDHOFL, XHDLOFL:
		return oflOff, oflWidth, nil
	default:
		return oflOff + oflWidth, v - oflWidth, nil
	}
}

// ReadUint decodes the fixed-width ASCII decimal value of f.
func ReadUint(store ByteStore, f FieldID) (int64, error) {
	if store == nil {
		return 0, ErrMissingStore
	}
	off, width, err := Span(store, f)
	if err != nil {
		return 0, err
	}
	return readDecimal(store, f, off, int(width))
}

func readDecimal(store ByteStore, f FieldID, off int64, width int) (int64, error) {
	if store == nil {
		return 0, ErrMissingStore
	}
	raw, err := readExact(store, off, width)
	if err != nil {
		return 0, &FieldError{Field: f, Offset: off, Err: err}
	}
	return parseDecimal(f, off, raw)
}

func parseDecimal(f FieldID, off int64, raw []byte) (int64, error) {
	if len(raw) == 0 {
		return 0, &FieldError{Field: f, Offset: off, Err: fmt.Errorf("empty field")}
	}
	var v int64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, &FieldError{Field: f, Offset: off, Value: string(raw)}
		}
		v = v*10 + int64(c-'0')
	}
	return v, nil
}

// encodeDecimal renders v zero-padded to the width of f.
func encodeDecimal(f FieldID, v int64) ([]byte, error) {
	width := fieldWidths[f]
	if v < 0 {
		return nil, fmt.Errorf("nitf: negative value %d for %s", v, f)
	}
	s := fmt.Sprintf("%0*d", width, v)
	if len(s) > width {
		return nil, &OverflowError{Field: f, Needed: len(s), Actual: width}
	}
	return []byte(s), nil
}
