package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"pkgbind/internal/log"
	"pkgbind/pkg/storage"
)

func init() {
	storage.Register(storage.Local, NewLocalStorage, "raw", "packages")
}

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (storage.Storage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps path below the base. Paths climbing out of the base are
// rejected, and so is the base itself unless allowBase is set.
func (l *LocalStorage) resolve(path string, allowBase bool) (string, error) {
	fullPath := filepath.Join(l.basePath, path)
	rel, err := filepath.Rel(l.basePath, fullPath)
	switch {
	case err != nil, rel == "..", strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", errors.Wrap(storage.ErrInvalidPath, path)
	case rel == "." && !allowBase:
		return "", errors.Wrapf(storage.ErrInvalidPath, "%q is the storage root", path)
	}
	return fullPath, nil
}

func (l *LocalStorage) Store(ctx context.Context, path string, reader io.Reader) error {
	fullPath, err := l.resolve(path, false)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	// write aside and rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".store-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fullPath)
}

func (l *LocalStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := l.resolve(path, false)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if realPath, evalErr := filepath.EvalSymlinks(fullPath); evalErr == nil {
			log.Logger.Debugf("Resolved symlink %s -> %s", fullPath, realPath)
			return os.Open(realPath)
		}
		log.Logger.Debugf("Failed to open file %s: %v", fullPath, err)
	}
	return file, err
}

func (l *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := l.resolve(path, false)
	if err != nil {
		return err
	}
	return os.RemoveAll(fullPath)
}

func (l *LocalStorage) ListWithOptions(ctx context.Context, prefix string, opts storage.ListOptions) ([]storage.FileInfo, error) {
	fullPath, err := l.resolve(prefix, true)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return []storage.FileInfo{}, nil
	}

	var files []storage.FileInfo
	err = filepath.WalkDir(fullPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Logger.Debugf("Failed to access %s: %v", path, err)
			return nil
		}
		if path == fullPath {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".store-") {
			return nil
		}

		relPath, err := filepath.Rel(fullPath, path)
		if err != nil {
			return nil
		}
		if opts.MaxDepth >= 0 && strings.Count(relPath, string(filepath.Separator)) > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			realInfo, err := os.Stat(path)
			if err != nil {
				log.Logger.Debugf("Skipping broken symlink %s: %v", path, err)
				return nil
			}
			d = fs.FileInfoToDirEntry(realInfo)
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if opts.IncludeDirs {
				files = append(files, storage.FileInfo{
					Name:    filepath.ToSlash(relPath),
					IsDir:   true,
					IsRepo:  isRepoDirectory(path),
					ModTime: info.ModTime(),
				})
			}
			return nil
		}

		if !matchExtension(d.Name(), opts.Extensions) {
			return nil
		}
		files = append(files, storage.FileInfo{
			Name:    filepath.ToSlash(relPath),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func matchExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range exts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (l *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := l.resolve(path, true)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isRepoDirectory reports whether dirPath holds raw metadata of an rpm-md
// or a susetags repository.
func isRepoDirectory(dirPath string) bool {
	if resolved, err := filepath.EvalSymlinks(dirPath); err == nil {
		dirPath = resolved
	}
	for _, marker := range []string{"repodata/repomd.xml", "content"} {
		if _, err := os.Stat(filepath.Join(dirPath, marker)); err == nil {
			return true
		}
	}
	return false
}

func (l *LocalStorage) CreateDir(ctx context.Context, path string) error {
	fullPath, err := l.resolve(path, false)
	if err != nil {
		return err
	}
	return os.MkdirAll(fullPath, 0755)
}

// GetPath returns the location of path, confined to the base.
func (l *LocalStorage) GetPath(path string) string {
	return filepath.Join(l.basePath, filepath.Clean("/"+path))
}

func (l *LocalStorage) Close() error { return nil }
