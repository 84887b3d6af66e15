// Package fsio implements crash-safe file reads and writes: a size-capped
// read that never rejects invalid UTF-8, and a write-via-temp-then-rename
// that guarantees a reader never observes a partially written file.
package fsio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ehrlich-b/edad/internal/revision"
)

// ErrNotAFile is returned when the target path exists but is not a regular file.
var ErrNotAFile = errors.New("fsio: not a regular file")

// FileTooLargeError is returned when a file exceeds the configured read cap.
type FileTooLargeError struct {
	Size    int64
	MaxSize int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("fsio: file too large: %d bytes (max %d)", e.Size, e.MaxSize)
}

// ReadText reads path, capped at maxBytes, and decodes it as UTF-8. Invalid
// byte sequences are replaced rather than rejected — an editor must be able
// to open something even if the file isn't valid text.
func ReadText(path string, maxBytes int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", path, ErrNotAFile)
	}
	if info.Size() > maxBytes {
		return "", &FileTooLargeError{Size: info.Size(), MaxSize: maxBytes}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return toValidUTF8(data), nil
}

// toValidUTF8 replaces invalid sequences with the Unicode replacement
// character instead of failing, matching a text editor's "open anything"
// contract.
func toValidUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var b []byte
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			b = append(b, "�"...)
			data = data[1:]
			continue
		}
		b = append(b, data[:size]...)
		data = data[size:]
	}
	return string(b)
}

// WriteTextAtomically writes text to path via a sibling temp file followed
// by an atomic rename, preserving the target's existing POSIX permissions
// (or 0644 for a new file). It returns the revision of the written text.
func WriteTextAtomically(text string, path string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmpName := fmt.Sprintf(".%s.tmp.%s", filepath.Base(path), uuid.NewString())
	tmpPath := filepath.Join(dir, tmpName)

	if err := os.WriteFile(tmpPath, []byte(text), perm); err != nil {
		return "", fmt.Errorf("write temp %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("chmod temp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename %s -> %s: %w", tmpPath, path, err)
	}

	return revision.Of(text), nil
}

// EnsureFile creates an empty file (and its parent directory) if one does
// not already exist at path. An existing file is left untouched.
func EnsureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}
