// Package mindb keeps raw repository metadata as objects of an embedded
// mindb bucket.
package mindb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/elastic-io/mindb"
	"github.com/pkg/errors"

	"pkgbind/internal/log"
	"pkgbind/pkg/storage"
)

func init() {
	storage.Register(storage.MinDB, NewMinDBStorage, "objects")
}

const (
	bucket   = "pkgbind"
	pageSize = 1000
)

type MinDBStorage struct {
	db     *mindb.DB
	bucket string
}

func NewMinDBStorage(dbPath string) (storage.Storage, error) {
	db, err := mindb.New(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open mindb")
	}

	exists, err := db.BucketExists(bucket)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "check bucket")
	}
	if !exists {
		if err := db.CreateBucket(bucket); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create bucket")
		}
	}
	return &MinDBStorage{db: db, bucket: bucket}, nil
}

func (m *MinDBStorage) Store(ctx context.Context, path string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return errors.Wrap(err, "read data")
	}

	now := time.Now()
	obj := &mindb.ObjectData{
		Key:         normalizePath(path),
		Data:        data,
		Size:        int64(len(data)),
		ContentType: contentType(path),
		Metadata: map[string]string{
			"upload-time": now.UTC().Format(time.RFC3339),
		},
		LastModified: now,
	}
	if err := m.db.PutObject(m.bucket, obj); err != nil {
		return errors.Wrapf(err, "put %s", obj.Key)
	}
	return nil
}

func (m *MinDBStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := m.db.GetObject(m.bucket, normalizePath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", path)
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

// Delete removes one object, or every object below path when it names a
// directory.
func (m *MinDBStorage) Delete(ctx context.Context, path string) error {
	key := normalizePath(path)
	if strings.HasSuffix(key, "/") || key == "" || m.isDirectory(key) {
		return m.deleteDirectory(key)
	}
	if err := m.db.DeleteObject(m.bucket, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (m *MinDBStorage) ListWithOptions(ctx context.Context, prefix string, opts storage.ListOptions) ([]storage.FileInfo, error) {
	base := normalizePath(prefix)
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var result []storage.FileInfo
	dirs := make(map[string]time.Time)
	err := m.walk(base, func(key string, size int64, mod time.Time) {
		rel := strings.TrimPrefix(key, base)
		if rel == "" {
			return
		}
		if strings.HasSuffix(rel, "/") && size == 0 {
			dirs[strings.TrimSuffix(rel, "/")] = mod
			return
		}

		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			dir := strings.Join(parts[:i], "/")
			if _, ok := dirs[dir]; !ok {
				dirs[dir] = mod
			}
		}
		if !withinDepth(rel, opts.MaxDepth) || !matchExtension(rel, opts.Extensions) {
			return
		}
		result = append(result, storage.FileInfo{Name: rel, Size: size, ModTime: mod})
	})
	if err != nil {
		return nil, err
	}

	if opts.IncludeDirs {
		for dir, mod := range dirs {
			if !withinDepth(dir, opts.MaxDepth) {
				continue
			}
			result = append(result, storage.FileInfo{
				Name:    dir,
				IsDir:   true,
				IsRepo:  m.isRepoDirectory(base + dir),
				ModTime: mod,
			})
		}
	}
	log.Logger.Debugf("Listed %d entries below %q", len(result), base)
	return result, nil
}

func (m *MinDBStorage) walk(prefix string, fn func(key string, size int64, mod time.Time)) error {
	var marker string
	for {
		objects, _, err := m.db.ListObjects(m.bucket, prefix, marker, "", pageSize)
		if err != nil {
			return errors.Wrapf(err, "list %s", prefix)
		}
		for _, obj := range objects {
			if prefix != "" && !strings.HasPrefix(obj.Key, prefix) {
				continue
			}
			fn(obj.Key, obj.Size, obj.LastModified)
		}
		if len(objects) < pageSize {
			return nil
		}
		marker = objects[len(objects)-1].Key
	}
}

func (m *MinDBStorage) isRepoDirectory(dir string) bool {
	dir = strings.TrimSuffix(dir, "/") + "/"
	for _, marker := range []string{"repodata/repomd.xml", "content"} {
		if _, err := m.db.GetObject(m.bucket, dir+marker); err == nil {
			return true
		}
	}
	return false
}

func (m *MinDBStorage) CreateDir(ctx context.Context, path string) error {
	key := normalizePath(path)
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	obj := &mindb.ObjectData{
		Key:         key,
		Data:        []byte{},
		ContentType: "application/x-directory",
		Metadata: map[string]string{
			"is-directory": "true",
		},
		LastModified: time.Now(),
	}
	if err := m.db.PutObject(m.bucket, obj); err != nil {
		return errors.Wrapf(err, "create directory %s", key)
	}
	return nil
}

func (m *MinDBStorage) GetPath(path string) string {
	return fmt.Sprintf("mindb://%s/%s", m.bucket, normalizePath(path))
}

func (m *MinDBStorage) Exists(ctx context.Context, path string) (bool, error) {
	key := normalizePath(path)
	if _, err := m.db.GetObject(m.bucket, key); err == nil {
		return true, nil
	}
	objects, _, err := m.db.ListObjects(m.bucket, strings.TrimSuffix(key, "/")+"/", "", "", 1)
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", key)
	}
	return len(objects) > 0, nil
}

func (m *MinDBStorage) Close() error {
	return m.db.Close()
}

func (m *MinDBStorage) isDirectory(key string) bool {
	objects, _, err := m.db.ListObjects(m.bucket, strings.TrimSuffix(key, "/")+"/", "", "", 1)
	return err == nil && len(objects) > 0
}

func (m *MinDBStorage) deleteDirectory(dir string) error {
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	var keys []string
	if err := m.walk(dir, func(key string, _ int64, _ time.Time) { keys = append(keys, key) }); err != nil {
		return err
	}
	for _, key := range keys {
		if err := m.db.DeleteObject(m.bucket, key); err != nil {
			return errors.Wrapf(err, "delete %s", key)
		}
	}
	if dir != "" {
		_ = m.db.DeleteObject(m.bucket, dir)
	}
	return nil
}

func normalizePath(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

func withinDepth(rel string, maxDepth int) bool {
	if maxDepth < 0 {
		return true
	}
	return strings.Count(strings.Trim(rel, "/"), "/") <= maxDepth
}

func matchExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range exts {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return "application/xml"
	case ".gz":
		return "application/gzip"
	case ".xz":
		return "application/x-xz"
	case ".asc", ".key":
		return "application/pgp-keys"
	default:
		return "application/octet-stream"
	}
}
