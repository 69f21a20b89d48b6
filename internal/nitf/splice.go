package nitf

import (
	"fmt"

	"example.com/nitfgate/internal/common"
)

// SpliceResult summarises a completed splice.
type SpliceResult struct {
	Kind               SegmentKind `json:"-"`
	DonorCount         int         `json:"donorCount"`
	HostCountBefore    int         `json:"hostCountBefore"`
	HostCountAfter     int         `json:"hostCountAfter"`
	DescriptorBytes    int64       `json:"descriptorBytes"`
	DataBytes          int64       `json:"dataBytes"`
	HeaderLengthBefore int64       `json:"headerLengthBefore"`
	HeaderLength       int64       `json:"headerLength"`
	FileLengthBefore   int64       `json:"fileLengthBefore"`
	FileLength         int64       `json:"fileLength"`
}

type fieldRewrite struct {
	field  FieldID
	offset int64
	value  []byte
}

// SpliceKind appends every element of kind k held by donor to host. The
// donor's length pairs are inserted after the host's last pair of k, the
// donor's payload after the host's last payload of k, and the host's count,
// HL and FL fields are rewritten to match.
//
// All three field values are encoded before the host is touched, so an
// overflow leaves host unchanged. The host is rewritten in full and resized
// to its new length. A donor without elements of k is a no-op.
func SpliceKind(k SegmentKind, donor, host ByteStore) (SpliceResult, error) {
	res := SpliceResult{Kind: k}
	if !k.Valid() {
		return res, fmt.Errorf("nitf: unknown segment kind %d", int(k))
	}
	if donor == nil || host == nil {
		return res, ErrMissingStore
	}

	donorCount, err := Count(donor, k)
	if err != nil {
		return res, fmt.Errorf("donor: %w", err)
	}
	donorDescr, err := KindDescriptorBlockBounds(donor, k)
	if err != nil {
		return res, fmt.Errorf("donor: %w", err)
	}
	donorDataBounds, err := KindDataBlockBounds(donor, k)
	if err != nil {
		return res, fmt.Errorf("donor: %w", err)
	}
	pairsStart := donorDescr.Start + int64(fieldWidths[k.CountField()])
	donorPairs, err := readExact(donor, pairsStart, int(donorDescr.End-pairsStart))
	if err != nil {
		return res, fmt.Errorf("donor %s pairs: %w", k, err)
	}
	donorData, err := readExact(donor, donorDataBounds.Start, int(donorDataBounds.Len()))
	if err != nil {
		return res, fmt.Errorf("donor %s data: %w", k, err)
	}

	hostCount, err := Count(host, k)
	if err != nil {
		return res, fmt.Errorf("host: %w", err)
	}
	hostDescr, err := KindDescriptorBlockBounds(host, k)
	if err != nil {
		return res, fmt.Errorf("host: %w", err)
	}
	hostDataBounds, err := KindDataBlockBounds(host, k)
	if err != nil {
		return res, fmt.Errorf("host: %w", err)
	}
	hl, err := ReadUint(host, HL)
	if err != nil {
		return res, fmt.Errorf("host: %w", err)
	}
	fl, err := ReadUint(host, FL)
	if err != nil {
		return res, fmt.Errorf("host: %w", err)
	}

	if hostDataBounds.Start < hostDescr.End {
		return res, &FieldError{Field: HL, Offset: prefixOffsets[HL],
			Err: fmt.Errorf("host %s data starts at %d inside the header ending at %d", k, hostDataBounds.Start, hostDescr.End)}
	}

	res.DonorCount = donorCount
	res.HostCountBefore = hostCount
	res.HostCountAfter = hostCount
	res.HeaderLengthBefore, res.HeaderLength = hl, hl
	res.FileLengthBefore, res.FileLength = fl, fl
	if donorCount == 0 {
		return res, nil
	}

	descrLen := int64(len(donorPairs))
	dataLen := int64(len(donorData))
	rewrites, err := planRewrites(k, hostDescr.Start, int64(hostCount+donorCount), hl+descrLen, fl+descrLen+dataLen)
	if err != nil {
		return res, err
	}

	buf, err := ReadAll(host)
	if err != nil {
		return res, fmt.Errorf("host: %w", err)
	}
	if hostDataBounds.End > int64(len(buf)) {
		return res, &FieldError{Field: k.DataLenField(), Offset: hostDataBounds.Start,
			Err: fmt.Errorf("host %s data ends at %d beyond store length %d", k, hostDataBounds.End, len(buf))}
	}

	// The data insertion point is always past the descriptor insertion
	// point, so inserting data first keeps hostDescr.End valid.
	buf = insertAt(buf, hostDataBounds.End, donorData)
	buf = insertAt(buf, hostDescr.End, donorPairs)
	for _, rw := range rewrites {
		copy(buf[rw.offset:], rw.value)
	}

	if err := writeFull(host, buf, 0); err != nil {
		return res, fmt.Errorf("host: %w", err)
	}
	if err := host.Resize(int64(len(buf))); err != nil {
		return res, fmt.Errorf("host: resize: %w", err)
	}
	if s, ok := host.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return res, fmt.Errorf("host: sync: %w", err)
		}
	}

	res.HostCountAfter = hostCount + donorCount
	res.DescriptorBytes = descrLen
	res.DataBytes = dataLen
	res.HeaderLength = hl + descrLen
	res.FileLength = fl + descrLen + dataLen
	common.Logf("splice %s: %d+%d elements, HL %d->%d, FL %d->%d",
		k, hostCount, donorCount, hl, res.HeaderLength, fl, res.FileLength)
	return res, nil
}

// planRewrites encodes the count, HL and FL values a splice will write.
// FL and HL sit in the fixed prefix and the count field precedes both
// insertion points, so the pre-splice offsets stay valid.
func planRewrites(k SegmentKind, countOff, count, hl, fl int64) ([]fieldRewrite, error) {
	countBytes, err := encodeDecimal(k.CountField(), count)
	if err != nil {
		return nil, err
	}
	hlBytes, err := encodeDecimal(HL, hl)
	if err != nil {
		return nil, err
	}
	flBytes, err := encodeDecimal(FL, fl)
	if err != nil {
		return nil, err
	}
	return []fieldRewrite{
		{field: k.CountField(), offset: countOff, value: countBytes},
		{field: HL, offset: prefixOffsets[HL], value: hlBytes},
		{field: FL, offset: prefixOffsets[FL], value: flBytes},
	}, nil
}

func insertAt(buf []byte, off int64, data []byte) []byte {
	if len(data) == 0 {
		return buf
	}
	out := make([]byte, 0, len(buf)+len(data))
	out = append(out, buf[:off]...)
	out = append(out, data...)
	return append(out, buf[off:]...)
}
