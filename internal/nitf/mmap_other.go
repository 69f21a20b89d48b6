//go:build !unix

package nitf

import (
	"fmt"
	"io"
	"os"
)

// MmapStore is a read-only ByteStore. Without mmap support the file is read
// into memory once.
type MmapStore struct {
	data []byte
}

func OpenMmap(path string) (*MmapStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
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

func (s *MmapStore) Close() error {
	s.data = nil
	return nil
}
