// Package storage keeps uploaded profile images on local disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size cap.
	ErrTooLarge = errors.New("image exceeds the maximum upload size")
	// ErrUnsupportedType is returned for anything but jpeg, png, gif or webp.
	ErrUnsupportedType = errors.New("only jpeg, png, gif and webp images are accepted")
)

// ImageStore saves and removes uploaded images.  Paths are relative to the
// store's root and use forward slashes.
type ImageStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Remove(path string) error
}

var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniffLen is how many leading bytes are read to detect the image type.
const sniffLen = 512

// LocalImages writes images under Root/profiles.
type LocalImages struct {
	Root     string
	MaxBytes int64
}

// NewLocalImages returns a store rooted at root that rejects uploads larger
// than maxBytes.
func NewLocalImages(root string, maxBytes int64) *LocalImages {
	return &LocalImages{Root: root, MaxBytes: maxBytes}
}

// Save sniffs the content type, then streams r to a new uniquely named file.
// Partially written files are removed on failure.
func (s *LocalImages) Save(ctx context.Context, r io.Reader) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]
	ext, ok := allowed[mimetype.Detect(head).String()]
	if !ok {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.Root, "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	name := uuid.NewString() + ext
	full := filepath.Join(dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	src := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(src, s.MaxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return "profiles/" + name, nil
}

// Remove deletes a previously saved image.  Missing files and paths that
// escape the root are ignored.
func (s *LocalImages) Remove(path string) error {
	if path == "" {
		return nil
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.Root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
