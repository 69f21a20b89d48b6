package nitf

import (
	"fmt"
	"strings"
)

// FieldID identifies a NITF 2.1 file header field. Values are ordered as the
// fields appear in the file.
type FieldID int

const (
	FHDR FieldID = iota
	FVER
	CLEVEL
	STYPE
	OSTAID
	FDT
	FTITLE
	FSCLAS
	FSCLSY
	FSCODE
	FSCTLH
	FSREL
	FSDCTP
	FSDCDT
	FSDCXM
	FSDG
	FSDGDT
	FSCLTX
	FSCATP
	FSCAUT
	FSCRSN
	FSSRDT
	FSCTLN
	FSCOP
	FSCPYS
	ENCRYP
	FBKGC
	ONAME
	OPHONE
	FL
	HL
	NUMI
	LISH
	LI
	NUMS
	LSSH
	LS
	NUMX
	NUMT
	LTSH
	LT
	NUMDES
	LDSH
	LD
	NUMRES
	LRESH
	LRE
	UDHDL
	UDHOFL
	UDHD
	XHDL
	XHDLOFL
	XHD

	numFields
)

// fieldWidths holds the declared byte width of every field. UDHD and XHD are
// zero because their width comes from UDHDL and XHDL.
var fieldWidths = [numFields]int{
	FHDR: 4, FVER: 5, CLEVEL: 2, STYPE: 4, OSTAID: 10, FDT: 14, FTITLE: 80,
	FSCLAS: 1, FSCLSY: 2, FSCODE: 11, FSCTLH: 2, FSREL: 20, FSDCTP: 2,
	FSDCDT: 8, FSDCXM: 4, FSDG: 1, FSDGDT: 8, FSCLTX: 43, FSCATP: 1,
	FSCAUT: 40, FSCRSN: 1, FSSRDT: 8, FSCTLN: 15, FSCOP: 5, FSCPYS: 5,
	ENCRYP: 1, FBKGC: 3, ONAME: 24, OPHONE: 18,
	FL: 12, HL: 6,
	NUMI: 3, LISH: 6, LI: 10,
	NUMS: 3, LSSH: 4, LS: 6,
	NUMX: 3,
	NUMT: 3, LTSH: 4, LT: 5,
	NUMDES: 3, LDSH: 4, LD: 9,
	NUMRES: 3, LRESH: 4, LRE: 7,
	UDHDL: 5, UDHOFL: 3, UDHD: 0,
	XHDL: 5, XHDLOFL: 3, XHD: 0,
}

var fieldNames = [numFields]string{
	"FHDR", "FVER", "CLEVEL", "STYPE", "OSTAID", "FDT", "FTITLE",
	"FSCLAS", "FSCLSY", "FSCODE", "FSCTLH", "FSREL", "FSDCTP",
	"FSDCDT", "FSDCXM", "FSDG", "FSDGDT", "FSCLTX", "FSCATP",
	"FSCAUT", "FSCRSN", "FSSRDT", "FSCTLN", "FSCOP", "FSCPYS",
	"ENCRYP", "FBKGC", "ONAME", "OPHONE",
	"FL", "HL",
	"NUMI", "LISH", "LI",
	"NUMS", "LSSH", "LS",
	"NUMX",
	"NUMT", "LTSH", "LT",
	"NUMDES", "LDSH", "LD",
	"NUMRES", "LRESH", "LRE",
	"UDHDL", "UDHOFL", "UDHD",
	"XHDL", "XHDLOFL", "XHD",
}

// prefixOffsets caches the static offsets of FHDR through NUMI.
var prefixOffsets [NUMI + 1]int64

func init() {
	var off int64
	for f := FHDR; f <= NUMI; f++ {
		prefixOffsets[f] = off
		off += int64(fieldWidths[f])
	}
}

func (f FieldID) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FieldID(%d)", int(f))
	}
	return fieldNames[f]
}

// Valid reports whether f names a known field.
func (f FieldID) Valid() bool {
	return f >= 0 && f < numFields
}

// FieldWidth returns the declared byte width of f. Fields whose width is
// derived from another field (UDHD, XHD) and unknown fields report 0.
func FieldWidth(f FieldID) int {
	if !f.Valid() {
		return 0
	}
	return fieldWidths[f]
}

// FixedPrefix lists the fields that precede the first count field. Their
// offsets never depend on container contents.
func FixedPrefix() []FieldID {
	out := make([]FieldID, 0, HL+1)
	for f := FHDR; f <= HL; f++ {
		out = append(out, f)
	}
	return out
}

// Fields returns every known field in file order.
func Fields() []FieldID {
	out := make([]FieldID, 0, numFields)
	for f := FHDR; f < numFields; f++ {
		out = append(out, f)
	}
	return out
}

// ParseField looks up a field by its NITF mnemonic, case-insensitively.
func ParseField(name string) (FieldID, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == upper {
			return FieldID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

func inFixedPrefix(f FieldID) bool {
	return f >= FHDR && f <= HL
}

// SegmentKind enumerates the repeating segment categories in file order.
type SegmentKind int

const (
	Image SegmentKind = iota
	Graphic
	Text
	DataExtension
	ReservedExtension

	numKinds
)

type kindBinding struct {
	name    string
	count   FieldID
	descLen FieldID
	dataLen FieldID
	ext     string
}

var kindBindings = [numKinds]kindBinding{
	Image:             {name: "image", count: NUMI, descLen: LISH, dataLen: LI, ext: ".jp2"},
	Graphic:           {name: "graphic", count: NUMS, descLen: LSSH, dataLen: LS, ext: ".cgm"},
	Text:              {name: "text", count: NUMT, descLen: LTSH, dataLen: LT, ext: ".txt"},
	DataExtension:     {name: "des", count: NUMDES, descLen: LDSH, dataLen: LD, ext: ".des"},
	ReservedExtension: {name: "res", count: NUMRES, descLen: LRESH, dataLen: LRE, ext: ".res"},
}

var kindAliases = map[string]SegmentKind{
	"image":             Image,
	"images":            Image,
	"im":                Image,
	"graphic":           Graphic,
	"graphics":          Graphic,
	"sy":                Graphic,
	"text":              Text,
	"te":                Text,
	"des":               DataExtension,
	"dataextension":     DataExtension,
	"de":                DataExtension,
	"res":               ReservedExtension,
	"reservedextension": ReservedExtension,
	"re":                ReservedExtension,
}

// Kinds returns all segment kinds in file order.
func Kinds() []SegmentKind {
	return []SegmentKind{Image, Graphic, Text, DataExtension, ReservedExtension}
}

// ParseSegmentKind accepts the short kind names used on the command line
// ("image", "graphic", "text", "des", "res") and a few common aliases.
func ParseSegmentKind(name string) (SegmentKind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, "_", "")
	if k, ok := kindAliases[key]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown segment kind %q", name)
}

func (k SegmentKind) Valid() bool {
	return k >= 0 && k < numKinds
}

func (k SegmentKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("SegmentKind(%d)", int(k))
	}
	return kindBindings[k].name
}

// CountField returns the field holding the number of elements of k.
func (k SegmentKind) CountField() FieldID { return kindBindings[k].count }

// DescriptorLenField returns the per-element subheader length field of k.
func (k SegmentKind) DescriptorLenField() FieldID { return kindBindings[k].descLen }

// DataLenField returns the per-element data length field of k.
func (k SegmentKind) DataLenField() FieldID { return kindBindings[k].dataLen }

// Extension is the file suffix used when exporting elements of k.
func (k SegmentKind) Extension() string { return kindBindings[k].ext }

// PairWidth is the byte width of one (subheader length, data length) pair.
func (k SegmentKind) PairWidth() int {
	return fieldWidths[k.DescriptorLenField()] + fieldWidths[k.DataLenField()]
}

// countChain is the order of count fields in the header. NUMX is reserved
// and carries no length pairs.
var countChain = [...]FieldID{NUMI, NUMS, NUMX, NUMT, NUMDES, NUMRES}

// pairWidthOf returns the length-pair width that follows a count field.
func pairWidthOf(count FieldID) int {
	for _, b := range kindBindings {
		if b.count == count {
			return fieldWidths[b.descLen] + fieldWidths[b.dataLen]
		}
	}
	return 0
}

// kindOfField returns the kind a count or length field belongs to.
func kindOfField(f FieldID) (SegmentKind, bool) {
	for k, b := range kindBindings {
		if f == b.count || f == b.descLen || f == b.dataLen {
			return SegmentKind(k), true
		}
	}
	return 0, false
}
