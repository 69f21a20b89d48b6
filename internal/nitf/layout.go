package nitf

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// FieldSpan is a resolved header field.
type FieldSpan struct {
	Field  FieldID `json:"-"`
	Name   string  `json:"field"`
	Offset int64   `json:"offset"`
	Width  int64   `json:"width"`
}

// KindLayout is the resolved layout of one segment kind.
type KindLayout struct {
	Kind        SegmentKind `json:"-"`
	Name        string      `json:"kind"`
	Count       int         `json:"count"`
	Descriptors Bounds      `json:"descriptors"`
	Data        Bounds      `json:"data"`
	Elements    []Element   `json:"elements,omitempty"`
}

// Layout is a snapshot of every resolvable offset of a container at the time
// Load was called. It is not updated when the store changes; check Stale and
// load a new one after any mutation.
type Layout struct {
	Version      string       `json:"version"`
	FileLength   int64        `json:"fileLength"`
	HeaderLength int64        `json:"headerLength"`
	HeaderEnd    int64        `json:"headerEnd"`
	StoreLength  int64        `json:"storeLength"`
	Fields       []FieldSpan  `json:"fields"`
	Kinds        []KindLayout `json:"kinds"`

	headerCRC uint32
}

// Load resolves a Layout from store.
func Load(store ByteStore) (*Layout, error) {
	if store == nil {
		return nil, ErrMissingStore
	}
	size, err := store.Len()
	if err != nil {
		return nil, err
	}
	l := &Layout{StoreLength: size}
	if l.Version, err = Version(store); err != nil {
		return nil, err
	}
	if l.FileLength, err = ReadUint(store, FL); err != nil {
		return nil, err
	}
	if l.HeaderLength, err = ReadUint(store, HL); err != nil {
		return nil, err
	}
	for _, f := range Fields() {
		off, width, err := Span(store, f)
		if errors.Is(err, ErrFieldAbsent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l.Fields = append(l.Fields, FieldSpan{Field: f, Name: f.String(), Offset: off, Width: width})
	}
	if l.HeaderEnd, err = headerEnd(store); err != nil {
		return nil, err
	}
	start := l.HeaderLength
	for _, k := range Kinds() {
		descr, err := KindDescriptorBlockBounds(store, k)
		if err != nil {
			return nil, err
		}
		pairs, err := readPairs(store, k)
		if err != nil {
			return nil, err
		}
		elements := layoutElements(k, start, pairs)
		end := start + sumPairs(pairs)
		l.Kinds = append(l.Kinds, KindLayout{
			Kind:        k,
			Name:        k.String(),
			Count:       len(pairs),
			Descriptors: descr,
			Data:        Bounds{Start: start, End: end},
			Elements:    elements,
		})
		start = end
	}
	crc, err := headerChecksum(store, l.HeaderLength)
	if err != nil {
		return nil, err
	}
	l.headerCRC = crc
	return l, nil
}

// Field returns the resolved span of f, if it is present.
func (l *Layout) Field(f FieldID) (FieldSpan, bool) {
	for _, fs := range l.Fields {
		if fs.Field == f {
			return fs, true
		}
	}
	return FieldSpan{}, false
}

// Kind returns the layout of k.
func (l *Layout) Kind(k SegmentKind) KindLayout {
	if !k.Valid() || int(k) >= len(l.Kinds) {
		return KindLayout{Kind: k, Name: k.String()}
	}
	return l.Kinds[k]
}

// Stale reports whether store no longer matches the snapshot: its length or
// header bytes differ from what Load saw.
func (l *Layout) Stale(store ByteStore) (bool, error) {
	if store == nil {
		return false, ErrMissingStore
	}
	size, err := store.Len()
	if err != nil {
		return false, err
	}
	if size != l.StoreLength {
		return true, nil
	}
	hl, err := ReadUint(store, HL)
	if err != nil {
		return false, err
	}
	if hl != l.HeaderLength {
		return true, nil
	}
	crc, err := headerChecksum(store, hl)
	if err != nil {
		return false, err
	}
	return crc != l.headerCRC, nil
}

// headerEnd is the offset just past the extended header data, which equals
// HL in a well formed container.
func headerEnd(store ByteStore) (int64, error) {
	off, length, err := lengthField(store, XHDL)
	if err != nil {
		return 0, err
	}
	return off + int64(fieldWidths[XHDL]) + length, nil
}

func headerChecksum(store ByteStore, hl int64) (uint32, error) {
	size, err := store.Len()
	if err != nil {
		return 0, err
	}
	if hl > size {
		hl = size
	}
	raw, err := readExact(store, 0, int(hl))
	if err != nil {
		return 0, fmt.Errorf("header checksum: %w", err)
	}
	return crc32.ChecksumIEEE(raw), nil
}
