//go:build unix

package nitf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MmapStore is a read-only ByteStore over a memory-mapped file.
type MmapStore struct {
	data []byte
}

// OpenMmap maps path read-only. Empty files are served from an empty slice.
func OpenMmap(path string) (*MmapStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &MmapStore{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmap %s: file too large (%d bytes)", path, size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MmapStore{data: data}, nil
}

func (s *MmapStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(s.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *MmapStore) WriteAt(p []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}

func (s *MmapStore) Len() (int64, error) {
	return int64(len(s.data)), nil
}

func (s *MmapStore) Resize(n int64) error {
	return ErrReadOnly
}

// Close unmaps the file. The store must not be used afterwards.
func (s *MmapStore) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	return err
}
