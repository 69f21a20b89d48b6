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

func buildWith(t *testing.T, fn func(b *nitftest.Builder)) []byte {
	t.Helper()
	b := &nitftest.Builder{}
	fn(b)
	out, err := b.Build()
	require.NoError(t, err)
	return out
}

func TestSpliceMatchesDirectBuild(t *testing.T) {
	for _, k := range nitf.Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			host := buildWith(t, func(b *nitftest.Builder) {
				b.AddSized(nitf.Image, 30, 20)
				b.AddSized(nitf.Text, 10, 5)
				b.AddSized(nitf.DataExtension, 40, 8)
				b.AddSized(nitf.ReservedExtension, 6, 2)
				b.Add(k, []byte("host-sub"), []byte("host-data"))
			})
			donor := buildWith(t, func(b *nitftest.Builder) {
				b.AddSized((k+1)%5, 12, 4)
				b.Add(k, []byte("donor-sub-1"), []byte("donor-data-1"))
				b.Add(k, []byte("donor-sub-2"), []byte("d2"))
			})
			want := buildWith(t, func(b *nitftest.Builder) {
				b.AddSized(nitf.Image, 30, 20)
				b.AddSized(nitf.Text, 10, 5)
				b.AddSized(nitf.DataExtension, 40, 8)
				b.AddSized(nitf.ReservedExtension, 6, 2)
				b.Add(k, []byte("host-sub"), []byte("host-data"))
				b.Add(k, []byte("donor-sub-1"), []byte("donor-data-1"))
				b.Add(k, []byte("donor-sub-2"), []byte("d2"))
			})

			hostStore := nitf.NewMemStore(host)
			res, err := nitf.SpliceKind(k, nitf.NewMemStore(donor), hostStore)
			require.NoError(t, err)
			assert.Equal(t, want, hostStore.Bytes())
			assert.Equal(t, 2, res.DonorCount)
			assert.Equal(t, res.HostCountBefore+2, res.HostCountAfter)
			assert.Equal(t, int64(2*k.PairWidth()), res.DescriptorBytes)
		})
	}
}

func TestSpliceAdditivity(t *testing.T) {
	host := nitf.NewMemStore(mixedContainer(t))
	donorRaw := buildWith(t, func(b *nitftest.Builder) {
		b.AddSized(nitf.DataExtension, 100, 33)
		b.AddSized(nitf.DataExtension, 50, 0)
		b.AddSized(nitf.Image, 10, 10)
	})
	donor := nitf.NewMemStore(donorRaw)

	h, err := nitf.Count(host, nitf.DataExtension)
	require.NoError(t, err)
	d, err := nitf.Count(donor, nitf.DataExtension)
	require.NoError(t, err)
	hl, err := nitf.ReadUint(host, nitf.HL)
	require.NoError(t, err)
	fl, err := nitf.ReadUint(host, nitf.FL)
	require.NoError(t, err)
	donorDescr, err := nitf.KindDescriptorBlockBounds(donor, nitf.DataExtension)
	require.NoError(t, err)
	donorData, err := nitf.KindDataBlockBounds(donor, nitf.DataExtension)
	require.NoError(t, err)
	pairBytes := donorDescr.Len() - int64(nitf.FieldWidth(nitf.NUMDES))

	_, err = nitf.SpliceKind(nitf.DataExtension, donor, host)
	require.NoError(t, err)

	n, err := nitf.Count(host, nitf.DataExtension)
	require.NoError(t, err)
	assert.Equal(t, h+d, n)
	newHL, err := nitf.ReadUint(host, nitf.HL)
	require.NoError(t, err)
	assert.Equal(t, hl+pairBytes, newHL)
	newFL, err := nitf.ReadUint(host, nitf.FL)
	require.NoError(t, err)
	assert.Equal(t, fl+pairBytes+donorData.Len(), newFL)

	layout, problems, err := nitf.Inspect(host)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, h+d, layout.Kind(nitf.DataExtension).Count)

	got, err := nitf.ExtractElement(host, nitf.DataExtension, h, nitf.DataOnly)
	require.NoError(t, err)
	assert.Equal(t, nitftest.DataBytes(nitf.DataExtension, 0, 33), got)

	// untouched kinds still read back
	udh, err := nitf.ReadText(host, nitf.UDHD)
	require.NoError(t, err)
	assert.Equal(t, "user-defined", udh)
}

func TestSpliceAdjacentInsertPoints(t *testing.T) {
	// Empty host and donor payloads make the data insertion point sit only
	// a few bytes after the descriptor insertion point.
	host := nitf.NewMemStore(buildWith(t, func(b *nitftest.Builder) {
		b.Add(nitf.ReservedExtension, nil, nil)
	}))
	donor := nitf.NewMemStore(buildWith(t, func(b *nitftest.Builder) {
		b.Add(nitf.ReservedExtension, []byte("R"), nil)
		b.Add(nitf.ReservedExtension, nil, []byte("Z"))
	}))
	res, err := nitf.SpliceKind(nitf.ReservedExtension, donor, host)
	require.NoError(t, err)
	assert.Equal(t, 3, res.HostCountAfter)

	want := buildWith(t, func(b *nitftest.Builder) {
		b.Add(nitf.ReservedExtension, nil, nil)
		b.Add(nitf.ReservedExtension, []byte("R"), nil)
		b.Add(nitf.ReservedExtension, nil, []byte("Z"))
	})
	assert.Equal(t, want, host.Bytes())
}

func TestSpliceIntoEmptyHost(t *testing.T) {
	host := nitf.NewMemStore(buildWith(t, func(*nitftest.Builder) {}))
	donor := nitf.NewMemStore(buildWith(t, func(b *nitftest.Builder) {
		b.AddSized(nitf.Graphic, 8, 8)
	}))
	_, err := nitf.SpliceKind(nitf.Graphic, donor, host)
	require.NoError(t, err)
	got, err := nitf.ExtractElement(host, nitf.Graphic, 0, nitf.DataOnly)
	require.NoError(t, err)
	assert.Equal(t, nitftest.DataBytes(nitf.Graphic, 0, 8), got)
}

func TestSpliceEmptyDonorIsNoop(t *testing.T) {
	raw := mixedContainer(t)
	host := nitf.NewMemStore(append([]byte(nil), raw...))
	donor := nitf.NewMemStore(buildWith(t, func(b *nitftest.Builder) {
		b.AddSized(nitf.Image, 1, 1)
	}))
	res, err := nitf.SpliceKind(nitf.DataExtension, donor, host)
	require.NoError(t, err)
	assert.Equal(t, res.HostCountBefore, res.HostCountAfter)
	assert.Equal(t, raw, host.Bytes())
}

func TestSpliceOverflowLeavesHostUntouched(t *testing.T) {
	hostRaw := buildWith(t, func(b *nitftest.Builder) {
		for i := 0; i < 999; i++ {
			b.Add(nitf.DataExtension, []byte("s"), []byte("d"))
		}
	})
	before := append([]byte(nil), hostRaw...)
	host := nitf.NewMemStore(hostRaw)
	donor := nitf.NewMemStore(buildWith(t, func(b *nitftest.Builder) {
		b.Add(nitf.DataExtension, []byte("x"), []byte("y"))
	}))

	_, err := nitf.SpliceKind(nitf.DataExtension, donor, host)
	require.ErrorIs(t, err, nitf.ErrFieldOverflow)
	var oe *nitf.OverflowError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, nitf.NUMDES, oe.Field)
	assert.Equal(t, 4, oe.Needed)
	assert.Equal(t, 3, oe.Actual)
	assert.True(t, bytes.Equal(before, host.Bytes()))
}

func TestSpliceFileStoreMatchesMemStore(t *testing.T) {
	hostRaw := mixedContainer(t)
	donorRaw := buildWith(t, func(b *nitftest.Builder) {
		b.AddSized(nitf.Text, 9, 90)
	})

	mem := nitf.NewMemStore(append([]byte(nil), hostRaw...))
	_, err := nitf.SpliceKind(nitf.Text, nitf.NewMemStore(donorRaw), mem)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "host.ntf")
	require.NoError(t, os.WriteFile(path, hostRaw, 0o644))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = nitf.SpliceKind(nitf.Text, nitf.NewMemStore(donorRaw), nitf.NewFileStore(f))
	require.NoError(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mem.Bytes(), onDisk)
}

func TestSpliceReadOnlyHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.ntf")
	raw := mixedContainer(t)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	host, err := nitf.OpenMmap(path)
	require.NoError(t, err)
	defer host.Close()

	donor := nitf.NewMemStore(buildWith(t, func(b *nitftest.Builder) {
		b.AddSized(nitf.Image, 4, 4)
	}))
	_, err = nitf.SpliceKind(nitf.Image, donor, host)
	require.ErrorIs(t, err, nitf.ErrReadOnly)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, onDisk)
}

func TestSpliceMissingStore(t *testing.T) {
	_, err := nitf.SpliceKind(nitf.Text, nil, nitf.NewMemStore(nil))
	assert.ErrorIs(t, err, nitf.ErrMissingStore)
}
