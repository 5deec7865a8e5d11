package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgbind/pkg/storage/local"
)

func TestTypes(t *testing.T) {
	testCases := []struct {
		in     string
		typ    Type
		legacy string
	}{
		{"rpm-md", TypeRpmMd, "YUM"},
		{"YUM", TypeRpmMd, "YUM"},
		{"yast2", TypeYaST, "YaST"},
		{"YaST", TypeYaST, "YaST"},
		{"Plaindir", TypePlaindir, "Plaindir"},
		{"", TypeNone, "NONE"},
		{"bogus", TypeNone, "NONE"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			typ := ParseType(tc.in)
			assert.Equal(t, tc.typ, typ)
			assert.Equal(t, tc.legacy, typ.LegacyName())
		})
	}
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, ClampPriority(0))
	assert.Equal(t, 99, ClampPriority(150))
	assert.Equal(t, 20, ClampPriority(20))
}

func newTestManager(t *testing.T) *Manager {
	root := t.TempDir()
	raw, err := local.NewLocalStorage(filepath.Join(root, "raw"))
	require.NoError(t, err)
	m := NewManager(Options{
		ReposDir: filepath.Join(root, "repos.d"),
		CacheDir: filepath.Join(root, "cache"),
		Raw:      raw,
	})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestReadRepoFile(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(m.ReposDir(), 0755))
	content := `[repo-oss]
name=Main Repository
enabled=1
autorefresh=1
baseurl=http://download.opensuse.org/tumbleweed/repo/oss/
baseurl=http://mirror.example.com/oss/
path=/
type=rpm-md
keeppackages=0

[repo-debug]
name=Debug
enabled=0
baseurl=http://download.opensuse.org/debug/
priority=120
gpgcheck=0
`
	require.NoError(t, os.WriteFile(filepath.Join(m.ReposDir(), "opensuse.repo"), []byte(content), 0644))

	infos, err := m.KnownRepositories()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	debug, oss := infos[0], infos[1]
	assert.Equal(t, "repo-debug", debug.Alias)
	assert.False(t, debug.Enabled)
	assert.False(t, debug.GPGCheck)
	assert.Equal(t, 99, debug.Priority)
	assert.Equal(t, TypeNone, debug.Type)

	assert.Equal(t, "repo-oss", oss.Alias)
	assert.Equal(t, "Main Repository", oss.Name)
	assert.True(t, oss.Enabled)
	assert.True(t, oss.Autorefresh)
	assert.Equal(t, TypeRpmMd, oss.Type)
	assert.Equal(t, []string{"http://download.opensuse.org/tumbleweed/repo/oss/", "http://mirror.example.com/oss/"}, oss.BaseURLs)
	assert.Equal(t, DefaultPriority, oss.Priority)

	// modifying one section keeps the other
	oss.Priority = 10
	_, err = m.ModifyRepository("repo-oss", oss)
	require.NoError(t, err)
	infos, err = m.KnownRepositories()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 10, infos[1].Priority)
	assert.Len(t, infos[1].BaseURLs, 2)

	require.NoError(t, m.RemoveRepository(context.Background(), "repo-debug"))
	infos, err = m.KnownRepositories()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.FileExists(t, filepath.Join(m.ReposDir(), "opensuse.repo"))
}

func TestAddModifyRemove(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	info := NewInfo("local", "dir:///srv/repo")
	info.Name = "Local"
	info, err := m.AddRepository(info)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(m.ReposDir(), "local.repo"), info.File)

	_, err = m.AddRepository(NewInfo("local", "dir:///other"))
	assert.ErrorIs(t, err, ErrRepoExists)
	_, err = m.AddRepository(NewInfo("bad alias", "dir:///other"))
	assert.ErrorIs(t, err, ErrInvalidAlias)

	got, err := m.GetRepositoryInfo("local")
	require.NoError(t, err)
	assert.Equal(t, "Local", got.Name)
	assert.True(t, got.Enabled)
	assert.Equal(t, "/", got.Path)

	got.Alias = "renamed"
	got.Enabled = false
	_, err = m.ModifyRepository("local", got)
	require.NoError(t, err)
	assert.False(t, m.HasRepository("local"))
	renamed, err := m.GetRepositoryInfo("renamed")
	require.NoError(t, err)
	assert.False(t, renamed.Enabled)

	_, err = m.ModifyRepository("missing", got)
	assert.ErrorIs(t, err, ErrRepoNotFound)

	require.NoError(t, m.RemoveRepository(ctx, "renamed"))
	_, err = os.Stat(filepath.Join(m.ReposDir(), "local.repo"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, m.RemoveRepository(ctx, "renamed"), ErrRepoNotFound)
}

func TestStatus(t *testing.T) {
	st := parseStatus([]byte("abc 1700000000"))
	assert.Equal(t, "abc", st.Checksum)
	assert.Equal(t, int64(1700000000), st.Timestamp.Unix())
	assert.Equal(t, "abc 1700000000", st.String())
	assert.True(t, parseStatus(nil).Empty())
}

func TestBuildCacheWithoutMetadata(t *testing.T) {
	m := newTestManager(t)
	info := NewInfo("none", "dir:///srv")
	info.Type = TypeRpmMd
	assert.ErrorIs(t, m.BuildCache(context.Background(), info, false), ErrNotCached)
}
