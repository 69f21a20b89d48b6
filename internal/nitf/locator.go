package nitf

import (
	"fmt"
)

// Bounds is a half-open byte range [Start, End).
type Bounds struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered.
func (b Bounds) Len() int64 { return b.End - b.Start }

// Element locates one segment: its subheader followed by its data.
type Element struct {
	Kind            SegmentKind `json:"-"`
	Index           int         `json:"index"`
	SubheaderOffset int64       `json:"subheaderOffset"`
	SubheaderLength int64       `json:"subheaderLength"`
	DataOffset      int64       `json:"dataOffset"`
	DataLength      int64       `json:"dataLength"`
}

// End is the offset just past the element's data.
func (e Element) End() int64 { return e.DataOffset + e.DataLength }

type lengthPair struct {
	subheader int64
	data      int64
}

// Count reads the number of elements of kind k.
func Count(store ByteStore, k SegmentKind) (int, error) {
	if !k.Valid() {
		return 0, fmt.Errorf("nitf: unknown segment kind %d", int(k))
	}
	if store == nil {
		return 0, ErrMissingStore
	}
	n, err := ReadUint(store, k.CountField())
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ElementDescriptorOffset returns the offset of the index-th element's
// subheader length field.
func ElementDescriptorOffset(store ByteStore, k SegmentKind, index int) (int64, error) {
	n, err := Count(store, k)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= n {
		return 0, &IndexError{Kind: k, Index: index, Count: n}
	}
	base, err := Offset(store, k.DescriptorLenField())
	if err != nil {
		return 0, err
	}
	return base + int64(index)*int64(k.PairWidth()), nil
}

// ElementDataOffset returns the offset of the index-th element's data length
// field, which immediately follows its subheader length field.
func ElementDataOffset(store ByteStore, k SegmentKind, index int) (int64, error) {
	off, err := ElementDescriptorOffset(store, k, index)
	if err != nil {
		return 0, err
	}
	return off + int64(fieldWidths[k.DescriptorLenField()]), nil
}

// KindDataStart returns the offset at which the payload of kind k begins:
// HL for images, and for every later kind the previous kind's start plus
// the subheader and data lengths of all its elements.
func KindDataStart(store ByteStore, k SegmentKind) (int64, error) {
	if !k.Valid() {
		return 0, fmt.Errorf("nitf: unknown segment kind %d", int(k))
	}
	if store == nil {
		return 0, ErrMissingStore
	}
	start, err := ReadUint(store, HL)
	if err != nil {
		return 0, err
	}
	for prev := Image; prev < k; prev++ {
		pairs, err := readPairs(store, prev)
		if err != nil {
			return 0, err
		}
		start += sumPairs(pairs)
	}
	return start, nil
}

// KindDescriptorBlockBounds covers the count field of k through the end of
// its last length pair.
func KindDescriptorBlockBounds(store ByteStore, k SegmentKind) (Bounds, error) {
	if !k.Valid() {
		return Bounds{}, fmt.Errorf("nitf: unknown segment kind %d", int(k))
	}
	if store == nil {
		return Bounds{}, ErrMissingStore
	}
	start, err := Offset(store, k.CountField())
	if err != nil {
		return Bounds{}, err
	}
	end, err := chainEnd(store, k.CountField(), start)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{Start: start, End: end}, nil
}

// KindDataBlockBounds covers the contiguous payload of k. The end equals the
// next kind's data start; for the last kind it is the end of its final
// element, which is end of file in a well formed container.
func KindDataBlockBounds(store ByteStore, k SegmentKind) (Bounds, error) {
	start, err := KindDataStart(store, k)
	if err != nil {
		return Bounds{}, err
	}
	pairs, err := readPairs(store, k)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{Start: start, End: start + sumPairs(pairs)}, nil
}

// ElementAt locates the subheader and data of the index-th element of k.
func ElementAt(store ByteStore, k SegmentKind, index int) (Element, error) {
	pairs, err := readPairs(store, k)
	if err != nil {
		return Element{}, err
	}
	if index < 0 || index >= len(pairs) {
		return Element{}, &IndexError{Kind: k, Index: index, Count: len(pairs)}
	}
	start, err := KindDataStart(store, k)
	if err != nil {
		return Element{}, err
	}
	start += sumPairs(pairs[:index])
	return newElement(k, index, start, pairs[index]), nil
}

// Elements locates every element of k.
func Elements(store ByteStore, k SegmentKind) ([]Element, error) {
	pairs, err := readPairs(store, k)
	if err != nil {
		return nil, err
	}
	start, err := KindDataStart(store, k)
	if err != nil {
		return nil, err
	}
	return layoutElements(k, start, pairs), nil
}

func newElement(k SegmentKind, index int, start int64, p lengthPair) Element {
	return Element{
		Kind:            k,
		Index:           index,
		SubheaderOffset: start,
		SubheaderLength: p.subheader,
		DataOffset:      start + p.subheader,
		DataLength:      p.data,
	}
}

func layoutElements(k SegmentKind, start int64, pairs []lengthPair) []Element {
	out := make([]Element, len(pairs))
	for i, p := range pairs {
		out[i] = newElement(k, i, start, p)
		start = out[i].End()
	}
	return out
}

// readPairs reads all length pairs of k with a single read.
func readPairs(store ByteStore, k SegmentKind) ([]lengthPair, error) {
	n, err := Count(store, k)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	base, err := Offset(store, k.DescriptorLenField())
	if err != nil {
		return nil, err
	}
	pw := k.PairWidth()
	raw, err := readExact(store, base, n*pw)
	if err != nil {
		return nil, &FieldError{Field: k.DescriptorLenField(), Offset: base, Err: err}
	}
	dw := fieldWidths[k.DescriptorLenField()]
	pairs := make([]lengthPair, n)
	for i := range pairs {
		off := i * pw
		sub, err := parseDecimal(k.DescriptorLenField(), base+int64(off), raw[off:off+dw])
		if err != nil {
			return nil, err
		}
		data, err := parseDecimal(k.DataLenField(), base+int64(off+dw), raw[off+dw:off+pw])
		if err != nil {
			return nil, err
		}
		pairs[i] = lengthPair{subheader: sub, data: data}
	}
	return pairs, nil
}

func sumPairs(pairs []lengthPair) int64 {
	var total int64
	for _, p := range pairs {
		total += p.subheader + p.data
	}
	return total
}
