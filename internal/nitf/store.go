package nitf

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ByteStore is random access over a container held in a file or in memory.
// Resolver, locator, extraction and splicing code is written once against
// this interface. A ByteStore is not safe for concurrent use.
type ByteStore interface {
	io.ReaderAt
	io.WriterAt
	// Len returns the current size in bytes.
	Len() (int64, error)
	// Resize truncates or zero-extends the store to n bytes.
	Resize(n int64) error
}

// FileStore adapts an *os.File. The file stays owned by the caller and is
// never closed by the store.
type FileStore struct {
	f *os.File
}

// NewFileStore borrows f.
func NewFileStore(f *os.File) *FileStore {
	return &FileStore{f: f}
}

func (s *FileStore) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *FileStore) WriteAt(p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off)
}

func (s *FileStore) Len() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *FileStore) Resize(n int64) error {
	if n < 0 {
		return fmt.Errorf("negative size %d", n)
	}
	return s.f.Truncate(n)
}

// Sync flushes the underlying file.
func (s *FileStore) Sync() error {
	return s.f.Sync()
}

// MemStore is a ByteStore over an in-memory buffer.
type MemStore struct {
	buf []byte
}

// NewMemStore wraps buf without copying it.
func NewMemStore(buf []byte) *MemStore {
	return &MemStore{buf: buf}
}

// Bytes returns the current buffer. It aliases the store's memory.
func (s *MemStore) Bytes() []byte {
	return s.buf
}

func (s *MemStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(s.buf)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *MemStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	end := off + int64(len(p))
	if end > int64(len(s.buf)) {
		s.grow(end)
	}
	return copy(s.buf[off:], p), nil
}

func (s *MemStore) Len() (int64, error) {
	return int64(len(s.buf)), nil
}

func (s *MemStore) Resize(n int64) error {
	if n < 0 {
		return fmt.Errorf("negative size %d", n)
	}
	if n <= int64(len(s.buf)) {
		s.buf = s.buf[:n]
		return nil
	}
	s.grow(n)
	return nil
}

func (s *MemStore) grow(n int64) {
	if n <= int64(cap(s.buf)) {
		old := len(s.buf)
		s.buf = s.buf[:n]
		clear(s.buf[old:])
		return
	}
	next := make([]byte, n, n+n/4)
	copy(next, s.buf)
	s.buf = next
}

// readExact reads exactly length bytes at offset. Short reads are reported
// as io.ErrUnexpectedEOF.
func readExact(store ByteStore, offset int64, length int) ([]byte, error) {
	if store == nil {
		return nil, ErrMissingStore
	}
	if length < 0 {
		return nil, fmt.Errorf("negative read length %d", length)
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	n, err := store.ReadAt(buf, offset)
	if n == length {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read %d bytes at %d: %w", length, offset, err)
}

// ReadAll copies the full contents of store.
func ReadAll(store ByteStore) ([]byte, error) {
	if store == nil {
		return nil, ErrMissingStore
	}
	size, err := store.Len()
	if err != nil {
		return nil, err
	}
	return readExact(store, 0, int(size))
}

// writeFull writes p at off and fails on short writes.
func writeFull(store ByteStore, p []byte, off int64) error {
	n, err := store.WriteAt(p, off)
	if err != nil {
		return fmt.Errorf("write %d bytes at %d: %w", len(p), off, err)
	}
	if n != len(p) {
		return fmt.Errorf("write %d bytes at %d: %w", len(p), off, io.ErrShortWrite)
	}
	return nil
}
