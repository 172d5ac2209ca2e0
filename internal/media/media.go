// Package media stores uploaded images (shipping proofs, designs) and returns
// the public URL recorded on a work item.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// MaxUploadBytes caps a single upload.
const MaxUploadBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrTooLarge        = errors.New("upload too large")
	ErrInvalidKey      = errors.New("invalid object key")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store persists an object and returns its URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// ObjectKey builds a unique key under prefix for the given content type.
func ObjectKey(prefix, contentType string) (string, error) {
	ext, ok := extensions[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	prefix = strings.Trim(prefix, "/")
	name := strings.ToLower(ulid.Make().String()) + ext
	if prefix == "" {
		return name, nil
	}
	return prefix + "/" + name, nil
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "../") && key != ".."
}

// limited fails once more than MaxUploadBytes have been read.
type limited struct {
	r io.Reader
	n int64
}

func (l *limited) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > MaxUploadBytes {
		return n, ErrTooLarge
	}
	return n, err
}

// LocalStore writes objects under Dir and serves them from BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func (s LocalStore) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if _, ok := extensions[strings.ToLower(contentType)]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	if _, err := io.Copy(f, &limited{r: r}); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(f.Name(), dst); err != nil {
		return "", err
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + key, nil
}
