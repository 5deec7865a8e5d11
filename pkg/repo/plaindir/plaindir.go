// Package plaindir serves local directories of rpm files as repositories
// by generating rpm-md metadata for them.
package plaindir

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cavaliergopher/rpm"
	"github.com/pkg/errors"
	"github.com/stianwa/createrepo"

	"pkgbind/internal/log"
	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/repo"
	"pkgbind/pkg/repo/rpmmd"
	"pkgbind/pkg/storage"
)

func init() {
	repo.Register(repo.TypePlaindir, &Backend{})
}

var ErrNotLocal = errors.New("plain directory repositories must be local")

type Backend struct {
	md rpmmd.Backend
}

// Probe accepts any directory of a local medium.
func (b *Backend) Probe(ctx context.Context, access *media.Access, dir string) bool {
	if !access.Local() {
		return false
	}
	_, err := access.ProvideDir(ctx, 1, dir, false)
	return err == nil
}

func (b *Backend) dir(ctx context.Context, access *media.Access, info repo.Info) (string, error) {
	if !access.Local() {
		return "", errors.Wrap(ErrNotLocal, info.Alias)
	}
	return access.ProvideDir(ctx, 1, info.Path, true)
}

// rpmFile is an rpm below the repository directory.
type rpmFile struct {
	rel  string
	info fs.FileInfo
}

func scan(dir string) ([]rpmFile, error) {
	var files []rpmFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "repodata" && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".rpm") {
			return nil
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(dir, p)
		files = append(files, rpmFile{rel: filepath.ToSlash(rel), info: info})
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, err
}

// Checksum fingerprints the file list, sizes and modification times.
func (b *Backend) Checksum(ctx context.Context, access *media.Access, info repo.Info) (string, error) {
	dir, err := b.dir(ctx, access, info)
	if err != nil {
		return "", err
	}
	files, err := scan(dir)
	if err != nil {
		return "", err
	}
	return fingerprint(files), nil
}

func fingerprint(files []rpmFile) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s %d %d\n", f.rel, f.info.Size(), f.info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Download stages the valid rpms of the directory, generates rpm-md
// metadata for them and stores it in raw.
func (b *Backend) Download(ctx context.Context, access *media.Access, info repo.Info, raw storage.Storage, prefix string) (string, error) {
	dir, err := b.dir(ctx, access, info)
	if err != nil {
		return "", err
	}
	files, err := scan(dir)
	if err != nil {
		return "", err
	}

	stage, err := os.MkdirTemp("", "pkgbind-plaindir-")
	if err != nil {
		return "", errors.Wrap(err, "create staging dir")
	}
	defer os.RemoveAll(stage)

	staged := 0
	for _, f := range files {
		src := filepath.Join(dir, filepath.FromSlash(f.rel))
		pkg, err := rpm.Open(src)
		if err != nil {
			log.Logger.Warnf("Skipping invalid rpm %s: %v", src, err)
			continue
		}
		dest := filepath.Join(stage, filepath.FromSlash(f.rel))
		if err := linkOrCopy(src, dest); err != nil {
			return "", errors.Wrapf(err, "stage %s", f.rel)
		}
		log.Logger.Debugf("Staged %s-%s-%s.%s", pkg.Name(), pkg.Version(), pkg.Release(), pkg.Architecture())
		staged++
	}

	cr, err := createrepo.NewRepo(stage, &createrepo.Config{
		CompressAlgo:       "gz",
		ExpungeOldMetadata: 86400,
	})
	if err != nil {
		return "", errors.Wrap(err, "init createrepo")
	}
	if _, err := cr.Create(); err != nil {
		return "", errors.Wrap(err, "create metadata")
	}
	log.Logger.Infof("Generated metadata for %d rpms of %s", staged, info.Alias)

	err = filepath.WalkDir(filepath.Join(stage, "repodata"), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(stage, p)
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		return raw.Store(ctx, path.Join(prefix, filepath.ToSlash(rel)), f)
	})
	if err != nil {
		return "", errors.Wrap(err, "store metadata")
	}
	return fingerprint(files), nil
}

func linkOrCopy(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (b *Backend) Parse(ctx context.Context, raw storage.Storage, prefix string, info repo.Info) ([]*pool.Resolvable, error) {
	return b.md.Parse(ctx, raw, prefix, info)
}
