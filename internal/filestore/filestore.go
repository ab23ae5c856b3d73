// Package filestore keeps uploaded phase attachments on local disk.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"devmarket/internal/apperr"
)

// URLPrefix is prepended to stored names to form the paths Save returns.
const URLPrefix = "/uploads/"

// Local stores files under a single directory with generated names.
type Local struct {
	dir      string
	maxBytes int64
}

// NewLocal creates dir if needed. maxBytes <= 0 disables the size limit.
func NewLocal(dir string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Local{dir: dir, maxBytes: maxBytes}, nil
}

// Dir is the storage root.
func (l *Local) Dir() string { return l.dir }

// Save writes r to a new file and returns its retrievable path.
func (l *Local) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(filename)))
	dst := filepath.Join(l.dir, name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	src := r
	if l.maxBytes > 0 {
		src = io.LimitReader(r, l.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && l.maxBytes > 0 && n > l.maxBytes {
		err = apperr.Validation("file exceeds %d bytes", l.maxBytes)
	}
	if err != nil {
		_ = os.Remove(dst)
		if apperr.KindOf(err) == apperr.KindValidation {
			return "", err
		}
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return URLPrefix + name, nil
}

// Open returns the body of a file previously returned by Save.
func (l *Local) Open(_ context.Context, url string) (*os.File, error) {
	name, err := storedName(url)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("stored file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes a file previously returned by Save. Missing files are not an error.
func (l *Local) Delete(_ context.Context, url string) error {
	name, err := storedName(url)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// storedName reduces url to a bare file name inside the storage root.
func storedName(url string) (string, error) {
	name := path.Base(strings.TrimPrefix(url, URLPrefix))
	if name == "." || name == "/" || name == "" || name == ".." {
		return "", apperr.Validation("invalid file path %q", url)
	}
	return name, nil
}
