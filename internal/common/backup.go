package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// BackupExt is appended to compressed container backups.
const BackupExt = ".zst"

// WriteBackup stores a zstd-compressed copy of src at dst and returns the
// SHA-256 of the uncompressed bytes.
func WriteBackup(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return "", err
	}
	h := NewHasher()
	if _, err := io.Copy(enc, io.TeeReader(in, h)); err != nil {
		enc.Close()
		return "", fmt.Errorf("compress %s: %w", src, err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	if err := out.Sync(); err != nil {
		return "", err
	}
	return h.Sum(), nil
}

// RestoreBackup decompresses backup over dst via a temporary file and a
// rename, and returns the SHA-256 of the restored bytes.
func RestoreBackup(backup, dst string) (string, error) {
	in, err := os.Open(backup)
	if err != nil {
		return "", err
	}
	defer in.Close()
	dec, err := zstd.NewReader(in)
	if err != nil {
		return "", err
	}
	defer dec.Close()
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".restore-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if info, err := os.Stat(dst); err == nil {
		if err := tmp.Chmod(info.Mode().Perm()); err != nil {
			cleanup()
			return "", err
		}
	}
	h := NewHasher()
	if _, err := io.Copy(io.MultiWriter(tmp, h), dec); err != nil {
		cleanup()
		return "", fmt.Errorf("decompress %s: %w", backup, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return h.Sum(), nil
}
