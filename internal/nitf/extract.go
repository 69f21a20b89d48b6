package nitf

import (
	"fmt"
	"os"
	"path/filepath"
)

// ExtractMode selects which bytes of an element are returned.
type ExtractMode int

const (
	// DataOnly returns the element payload.
	DataOnly ExtractMode = iota
	// WithSubheader returns the subheader followed by the payload.
	WithSubheader
)

func (m ExtractMode) String() string {
	if m == WithSubheader {
		return "subheader+data"
	}
	return "data"
}

// DefaultMode is the extraction mode used for k when the caller has no
// preference: image, graphic and text payloads stand alone, extension
// segments are only meaningful with their subheader.
func DefaultMode(k SegmentKind) ExtractMode {
	switch k {
	case DataExtension, ReservedExtension:
		return WithSubheader
	default:
		return DataOnly
	}
}

// Sink receives one extracted element. Returning an error stops ExtractAll.
type Sink func(kind SegmentKind, index int, data []byte) error

// ExtractElement returns the bytes of the index-th element of k. The read is
// all or nothing: a container truncated inside the element fails with
// ErrMalformedField.
func ExtractElement(store ByteStore, k SegmentKind, index int, mode ExtractMode) ([]byte, error) {
	el, err := ElementAt(store, k, index)
	if err != nil {
		return nil, err
	}
	return readElement(store, el, mode)
}

func readElement(store ByteStore, el Element, mode ExtractMode) ([]byte, error) {
	off, length := el.DataOffset, el.DataLength
	if mode == WithSubheader {
		off, length = el.SubheaderOffset, el.SubheaderLength+el.DataLength
	}
	buf, err := readExact(store, off, int(length))
	if err != nil {
		return nil, &FieldError{Field: el.Kind.DataLenField(), Offset: off,
			Err: fmt.Errorf("%s %d: %w", el.Kind, el.Index, err)}
	}
	return buf, nil
}

// ExtractAll hands every element of k to sink in index order and returns how
// many were delivered. The first failure aborts the enumeration.
func ExtractAll(store ByteStore, k SegmentKind, mode ExtractMode, sink Sink) (int, error) {
	if sink == nil {
		return 0, fmt.Errorf("nitf: nil sink")
	}
	elements, err := Elements(store, k)
	if err != nil {
		return 0, err
	}
	for i, el := range elements {
		data, err := readElement(store, el, mode)
		if err != nil {
			return i, err
		}
		if err := sink(k, i, data); err != nil {
			return i, fmt.Errorf("%s %d: %w", k, i, err)
		}
	}
	return len(elements), nil
}

// DescriptorPairs returns the raw subheader-length and data-length bytes of
// the index-th element of k as they appear in the file header.
func DescriptorPairs(store ByteStore, k SegmentKind, index int) ([]byte, error) {
	off, err := ElementDescriptorOffset(store, k, index)
	if err != nil {
		return nil, err
	}
	return readExact(store, off, k.PairWidth())
}

// ElementFileName is the name FileSink gives to an element: prefix, index and
// the kind's extension, e.g. "image0.jp2".
func ElementFileName(prefix string, k SegmentKind, index int) string {
	return fmt.Sprintf("%s%d%s", prefix, index, k.Extension())
}

// FileSink writes each element to dir/<prefix><index><ext>.
func FileSink(dir, prefix string) Sink {
	return func(k SegmentKind, index int, data []byte) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, ElementFileName(prefix, k, index)), data, 0o644)
	}
}

// CollectSink appends each element to *out.
func CollectSink(out *[][]byte) Sink {
	return func(_ SegmentKind, _ int, data []byte) error {
		*out = append(*out, data)
		return nil
	}
}
