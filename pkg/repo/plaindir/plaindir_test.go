package plaindir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgbind/pkg/media"
	"pkgbind/pkg/repo"
)

func touch(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "x86_64", "b.rpm"), "b")
	touch(t, filepath.Join(dir, "noarch", "a.rpm"), "a")
	touch(t, filepath.Join(dir, "README"), "text")
	touch(t, filepath.Join(dir, "sub", "repodata", "ignored.rpm"), "x")

	files, err := scan(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "noarch/a.rpm", files[0].rel)
	assert.Equal(t, "x86_64/b.rpm", files[1].rel)
}

func TestChecksumTracksChanges(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.rpm"), "a")
	access, err := media.Open("dir://" + dir)
	require.NoError(t, err)
	b := &Backend{}
	info := repo.NewInfo("local", "dir://"+dir)
	ctx := context.Background()

	first, err := b.Checksum(ctx, access, info)
	require.NoError(t, err)
	again, err := b.Checksum(ctx, access, info)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	touch(t, filepath.Join(dir, "b.rpm"), "b")
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "b.rpm"), later, later))
	changed, err := b.Checksum(ctx, access, info)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestProbe(t *testing.T) {
	b := &Backend{}
	ctx := context.Background()

	access, err := media.Open("dir://" + t.TempDir())
	require.NoError(t, err)
	assert.True(t, b.Probe(ctx, access, "/"))
	assert.False(t, b.Probe(ctx, access, "/missing"))

	remote, err := media.Open("http://example.com/repo")
	require.NoError(t, err)
	assert.False(t, b.Probe(ctx, remote, "/"))

	_, err = b.Checksum(ctx, remote, repo.NewInfo("r", "http://example.com/repo"))
	assert.ErrorIs(t, err, ErrNotLocal)
}
