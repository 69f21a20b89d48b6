package nitf_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/nitfgate/internal/nitf"
	"example.com/nitfgate/internal/nitf/nitftest"
)

// singleImage438 has HL=438 with one image of a 123 byte subheader and 100
// data bytes. The 59 header bytes after NUMS are NUMX, NUMT, NUMDES, NUMRES,
// UDHDL and a 34 byte extended header.
func singleImage438(t *testing.T) []byte {
	t.Helper()
	b := &nitftest.Builder{ExtendedHeader: bytes.Repeat([]byte{'X'}, 31)}
	b.AddSized(nitf.Image, 123, 100)
	out, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, "000438", string(out[354:360]))
	require.Equal(t, "000123", string(out[363:369]))
	require.Equal(t, "0000000100", string(out[369:379]))
	return out
}

func TestSingleImageScenario(t *testing.T) {
	raw := singleImage438(t)
	store := nitf.NewMemStore(raw)

	nums, err := nitf.Offset(store, nitf.NUMS)
	require.NoError(t, err)
	assert.Equal(t, int64(360+3+16), nums)

	start, err := nitf.KindDataStart(store, nitf.Image)
	require.NoError(t, err)
	assert.Equal(t, int64(438), start)

	data, err := nitf.ExtractElement(store, nitf.Image, 0, nitf.DataOnly)
	require.NoError(t, err)
	assert.Equal(t, raw[438+123:438+123+100], data)

	withSub, err := nitf.ExtractElement(store, nitf.Image, 0, nitf.WithSubheader)
	require.NoError(t, err)
	assert.Equal(t, raw[438:438+223], withSub)

	_, err = nitf.ExtractElement(store, nitf.Image, 1, nitf.DataOnly)
	assert.ErrorIs(t, err, nitf.ErrIndexOutOfRange)
}

func TestRoundTripEnumeration(t *testing.T) {
	store := nitf.NewMemStore(mixedContainer(t))
	for _, k := range nitf.Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			n, err := nitf.Count(store, k)
			require.NoError(t, err)
			for i := 0; i < n; i++ {
				data, err := nitf.ExtractElement(store, k, i, nitf.DataOnly)
				require.NoError(t, err)
				el, err := nitf.ElementAt(store, k, i)
				require.NoError(t, err)
				assert.Equal(t, nitftest.DataBytes(k, i, int(el.DataLength)), data)
			}
			_, err = nitf.ExtractElement(store, k, n, nitf.DataOnly)
			var ie *nitf.IndexError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, n, ie.Count)
			assert.True(t, nitf.IsNotFound(err))
		})
	}
}

func TestKindDataBlocksAreContiguous(t *testing.T) {
	store := nitf.NewMemStore(mixedContainer(t))
	hl, err := nitf.ReadUint(store, nitf.HL)
	require.NoError(t, err)
	prevEnd := hl
	for _, k := range nitf.Kinds() {
		bounds, err := nitf.KindDataBlockBounds(store, k)
		require.NoError(t, err)
		assert.Equal(t, prevEnd, bounds.Start, k.String())
		prevEnd = bounds.End
	}
	size, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, size, prevEnd)
}

func TestElementLocations(t *testing.T) {
	store := nitf.NewMemStore(mixedContainer(t))
	el0, err := nitf.ElementAt(store, nitf.Text, 0)
	require.NoError(t, err)
	el1, err := nitf.ElementAt(store, nitf.Text, 1)
	require.NoError(t, err)
	el2, err := nitf.ElementAt(store, nitf.Text, 2)
	require.NoError(t, err)
	assert.Equal(t, el0.End(), el1.SubheaderOffset)
	assert.Equal(t, el1.End(), el2.SubheaderOffset)
	assert.Equal(t, int64(0), el1.DataLength)
	assert.Equal(t, el2.SubheaderOffset+17, el2.DataOffset)

	descr, err := nitf.ElementDescriptorOffset(store, nitf.Text, 2)
	require.NoError(t, err)
	first, err := nitf.Offset(store, nitf.LTSH)
	require.NoError(t, err)
	assert.Equal(t, first+2*9, descr)
	dataLen, err := nitf.ElementDataOffset(store, nitf.Text, 2)
	require.NoError(t, err)
	assert.Equal(t, descr+4, dataLen)

	pairs, err := nitf.DescriptorPairs(store, nitf.Text, 2)
	require.NoError(t, err)
	assert.Equal(t, "001700003", string(pairs))
}

func TestExtractAllToFiles(t *testing.T) {
	store := nitf.NewMemStore(mixedContainer(t))
	dir := t.TempDir()
	n, err := nitf.ExtractAll(store, nitf.Image, nitf.DataOnly, nitf.FileSink(dir, "image"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, err := os.ReadFile(filepath.Join(dir, "image1.jp2"))
	require.NoError(t, err)
	assert.Equal(t, nitftest.DataBytes(nitf.Image, 1, 7), got)

	n, err = nitf.ExtractAll(store, nitf.DataExtension, nitf.DefaultMode(nitf.DataExtension), nitf.FileSink(dir, "des"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = os.ReadFile(filepath.Join(dir, "des0.des"))
	require.NoError(t, err)
	assert.Len(t, got, 250)
	assert.Equal(t, "DE", string(got[:2]))
}

func TestExtractAllCollect(t *testing.T) {
	store := nitf.NewMemStore(mixedContainer(t))
	var got [][]byte
	n, err := nitf.ExtractAll(store, nitf.Text, nitf.WithSubheader, nitf.CollectSink(&got))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 15+12)
	assert.Len(t, got[1], 16)
	assert.Len(t, got[2], 17+3)
}

func TestExtractAllStopsOnSinkError(t *testing.T) {
	store := nitf.NewMemStore(mixedContainer(t))
	calls := 0
	n, err := nitf.ExtractAll(store, nitf.Text, nitf.DataOnly, func(nitf.SegmentKind, int, []byte) error {
		calls++
		if calls == 2 {
			return os.ErrPermission
		}
		return nil
	})
	require.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
}

func TestExtractTruncatedElement(t *testing.T) {
	raw := singleImage438(t)
	store := nitf.NewMemStore(raw[:len(raw)-1])
	_, err := nitf.ExtractElement(store, nitf.Image, 0, nitf.DataOnly)
	assert.ErrorIs(t, err, nitf.ErrMalformedField)
}
