// Package nitftest builds small, deterministic NITF 2.1 containers for tests
// and sample generation.
package nitftest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"example.com/nitfgate/internal/nitf"
)

// Segment is one element: its subheader bytes followed by its data bytes.
type Segment struct {
	Subheader []byte
	Data      []byte
}

// Builder assembles a container. Zero values produce a valid empty NITF
// 02.10 file.
type Builder struct {
	Version    string
	Station    string
	Title      string
	Originator string
	DateTime   time.Time

	Segments [5][]Segment

	// UserHeader and ExtendedHeader, when non-nil, are stored after a "000"
	// overflow field and their length fields set accordingly.
	UserHeader     []byte
	ExtendedHeader []byte

	// Override replaces the encoded value of a header field after layout,
	// which lets tests plant malformed or inconsistent values.
	Override map[nitf.FieldID]string
}

// Add appends an element of kind k.
func (b *Builder) Add(k nitf.SegmentKind, subheader, data []byte) *Builder {
	b.Segments[k] = append(b.Segments[k], Segment{Subheader: subheader, Data: data})
	return b
}

// AddSized appends an element of kind k with generated contents of the
// given lengths.
func (b *Builder) AddSized(k nitf.SegmentKind, subheaderLen, dataLen int) *Builder {
	i := len(b.Segments[k])
	return b.Add(k, SubheaderBytes(k, i, subheaderLen), DataBytes(k, i, dataLen))
}

// SubheaderBytes is the generated subheader for element i of k: a two letter
// segment tag followed by a fill byte derived from i.
func SubheaderBytes(k nitf.SegmentKind, i, n int) []byte {
	tags := [...]string{"IM", "SY", "TE", "DE", "RE"}
	out := bytes.Repeat([]byte{byte('a' + i%26)}, n)
	copy(out, tags[k])
	return out
}

// DataBytes is the generated payload for element i of k.
func DataBytes(k nitf.SegmentKind, i, n int) []byte {
	out := make([]byte, n)
	for j := range out {
		out[j] = byte(int(k)*40 + i*7 + j)
	}
	return out
}

// Build encodes the container.
func (b *Builder) Build() ([]byte, error) {
	var hdr bytes.Buffer
	values := b.prefixValues()
	for _, f := range nitf.FixedPrefix() {
		v, ok := values[f]
		if !ok {
			v = strings.Repeat(" ", nitf.FieldWidth(f))
		}
		if err := put(&hdr, f, v); err != nil {
			return nil, err
		}
	}
	chain := []struct {
		count nitf.FieldID
		kind  nitf.SegmentKind
		pairs bool
	}{
		{nitf.NUMI, nitf.Image, true},
		{nitf.NUMS, nitf.Graphic, true},
		{nitf.NUMX, 0, false},
		{nitf.NUMT, nitf.Text, true},
		{nitf.NUMDES, nitf.DataExtension, true},
		{nitf.NUMRES, nitf.ReservedExtension, true},
	}
	for _, c := range chain {
		if !c.pairs {
			if err := putNum(&hdr, c.count, 0); err != nil {
				return nil, err
			}
			continue
		}
		segs := b.Segments[c.kind]
		if err := putNum(&hdr, c.count, int64(len(segs))); err != nil {
			return nil, err
		}
		for _, s := range segs {
			if err := putNum(&hdr, c.kind.DescriptorLenField(), int64(len(s.Subheader))); err != nil {
				return nil, err
			}
			if err := putNum(&hdr, c.kind.DataLenField(), int64(len(s.Data))); err != nil {
				return nil, err
			}
		}
	}
	if err := putOptional(&hdr, nitf.UDHDL, b.UserHeader); err != nil {
		return nil, err
	}
	if err := putOptional(&hdr, nitf.XHDL, b.ExtendedHeader); err != nil {
		return nil, err
	}

	out := hdr.Bytes()
	hl := int64(len(out))
	for _, k := range nitf.Kinds() {
		for _, s := range b.Segments[k] {
			out = append(out, s.Subheader...)
			out = append(out, s.Data...)
		}
	}
	if err := patch(out, nitf.HL, fmt.Sprintf("%0*d", nitf.FieldWidth(nitf.HL), hl)); err != nil {
		return nil, err
	}
	if err := patch(out, nitf.FL, fmt.Sprintf("%0*d", nitf.FieldWidth(nitf.FL), len(out))); err != nil {
		return nil, err
	}
	for f, v := range b.Override {
		if err := patchResolved(out, f, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MustBuild is Build for tests that cannot fail.
func (b *Builder) MustBuild() []byte {
	out, err := b.Build()
	if err != nil {
		panic(err)
	}
	return out
}

func (b *Builder) prefixValues() map[nitf.FieldID]string {
	version := b.Version
	if version == "" {
		version = "NITF02.10"
	}
	dt := b.DateTime
	if dt.IsZero() {
		dt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	return map[nitf.FieldID]string{
		nitf.FHDR:   version[:4],
		nitf.FVER:   version[4:],
		nitf.CLEVEL: "03",
		nitf.STYPE:  "BF01",
		nitf.OSTAID: pad(b.Station, nitf.OSTAID),
		nitf.FDT:    dt.UTC().Format(nitf.DateTimeLayout),
		nitf.FTITLE: pad(b.Title, nitf.FTITLE),
		nitf.FSCLAS: "U",
		nitf.FSCOP:  "00000",
		nitf.FSCPYS: "00000",
		nitf.ENCRYP: "0",
		nitf.FBKGC:  "\x00\x00\x00",
		nitf.ONAME:  pad(b.Originator, nitf.ONAME),
		nitf.FL:     strings.Repeat("0", nitf.FieldWidth(nitf.FL)),
		nitf.HL:     strings.Repeat("0", nitf.FieldWidth(nitf.HL)),
	}
}

func pad(s string, f nitf.FieldID) string {
	w := nitf.FieldWidth(f)
	if len(s) >= w {
		return s[:w]
	}
	return s + strings.Repeat(" ", w-len(s))
}

func put(buf *bytes.Buffer, f nitf.FieldID, v string) error {
	if len(v) != nitf.FieldWidth(f) {
		return fmt.Errorf("%s: value %q is %d bytes, want %d", f, v, len(v), nitf.FieldWidth(f))
	}
	buf.WriteString(v)
	return nil
}

func putNum(buf *bytes.Buffer, f nitf.FieldID, v int64) error {
	s := fmt.Sprintf("%0*d", nitf.FieldWidth(f), v)
	return put(buf, f, s)
}

func putOptional(buf *bytes.Buffer, length nitf.FieldID, data []byte) error {
	if data == nil {
		return putNum(buf, length, 0)
	}
	ofl := nitf.FieldWidth(nitf.UDHOFL)
	if err := putNum(buf, length, int64(ofl+len(data))); err != nil {
		return err
	}
	buf.WriteString(strings.Repeat("0", ofl))
	buf.Write(data)
	return nil
}

func patch(out []byte, f nitf.FieldID, v string) error {
	off, err := nitf.Offset(nil, f)
	if err != nil {
		return err
	}
	copy(out[off:], v)
	return nil
}

func patchResolved(out []byte, f nitf.FieldID, v string) error {
	off, err := nitf.Offset(nitf.NewMemStore(out), f)
	if err != nil {
		return fmt.Errorf("override %s: %w", f, err)
	}
	if int(off)+len(v) > len(out) {
		return fmt.Errorf("override %s: value runs past end of container", f)
	}
	copy(out[off:], v)
	return nil
}
