// Package storage holds the raw repository metadata downloaded on
// refresh, one tree per repository alias.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidPath is returned for paths that leave the storage root.
var ErrInvalidPath = errors.New("path outside of the storage")

type Storage interface {
	Store(ctx context.Context, path string, reader io.Reader) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	ListWithOptions(ctx context.Context, prefix string, opts ListOptions) ([]FileInfo, error)
	CreateDir(ctx context.Context, path string) error
	GetPath(path string) string
	Exists(ctx context.Context, path string) (bool, error)
	Close() error
}

type FileInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	IsRepo  bool // directory holding repository metadata
	ModTime time.Time
}

type ListOptions struct {
	MaxDepth    int // -1 for unlimited
	IncludeDirs bool
	Extensions  []string
}

// ReadAll returns the content stored at path.
func ReadAll(ctx context.Context, s Storage, path string) ([]byte, error) {
	rc, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// CopyTo copies every file below prefix into the local directory dest,
// keeping the relative layout. It returns the number of files copied.
func CopyTo(ctx context.Context, s Storage, prefix, dest string) (int, error) {
	files, err := s.ListWithOptions(ctx, prefix, ListOptions{MaxDepth: -1})
	if err != nil {
		return 0, errors.Wrapf(err, "list %s", prefix)
	}

	copied := 0
	for _, f := range files {
		if f.IsDir {
			continue
		}
		target := filepath.Join(dest, prefix, f.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return copied, err
		}
		if err := copyOne(ctx, s, filepath.ToSlash(filepath.Join(prefix, f.Name)), target); err != nil {
			return copied, errors.Wrapf(err, "copy %s", f.Name)
		}
		copied++
	}
	return copied, nil
}

func copyOne(ctx context.Context, s Storage, path, target string) error {
	rc, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
