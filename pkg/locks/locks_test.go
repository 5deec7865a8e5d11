package locks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgbind/pkg/pool"
)

func items() []*pool.Item {
	p := pool.New("x86_64")
	return p.Add([]*pool.Resolvable{
		{Kind: pool.Package, Name: "vim", Summary: "Vi IMproved", Arch: "x86_64", Repo: "oss"},
		{Kind: pool.Package, Name: "vim-data", Summary: "Runtime files", Arch: "noarch", Repo: "oss"},
		{Kind: pool.Package, Name: "Emacs", Summary: "Editor", Arch: "x86_64", Repo: pool.SystemRepo},
		{Kind: pool.Pattern, Name: "vim-devel", Arch: "noarch", Repo: "update"},
	})
}

func names(q *Query) []string {
	var out []string
	for _, it := range items() {
		if q.Matches(it) {
			out = append(out, it.Name)
		}
	}
	return out
}

func TestMatches(t *testing.T) {
	testCases := []struct {
		name  string
		query Query
		want  []string
	}{
		{"substring", Query{Strings: []string{"vim"}}, []string{"vim", "vim-data", "vim-devel"}},
		{"exact", Query{Strings: []string{"vim"}, MatchType: MatchExact}, []string{"vim"}},
		{"glob", Query{Strings: []string{"vim-*"}, MatchType: MatchGlob}, []string{"vim-data", "vim-devel"}},
		{"regex", Query{Strings: []string{"^vim(-data)?$"}, MatchType: MatchRegex}, []string{"vim", "vim-data"}},
		{"kind", Query{Strings: []string{"vim"}, Kinds: []string{"pattern"}}, []string{"vim-devel"}},
		{"repo", Query{Repos: []string{"oss"}}, []string{"vim", "vim-data"}},
		{"installed", Query{InstallStatus: StatusInstalled}, []string{"Emacs"}},
		{"ignore case", Query{Strings: []string{"emacs"}}, []string{"Emacs"}},
		{"case sensitive", Query{Strings: []string{"emacs"}, CaseSensitive: true}, nil},
		{"attribute", Query{Attrs: map[string][]string{"solvable:summary": {"runtime"}}}, []string{"vim-data"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.query.Validate())
			assert.Equal(t, tc.want, names(&tc.query))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Query{MatchType: "fuzzy"}).Validate())
	assert.Error(t, (&Query{InstallStatus: "maybe"}).Validate())
	assert.Error(t, (&Query{Kinds: []string{"widget"}}).Validate())
	assert.Error(t, (&Query{Attrs: map[string][]string{"solvable:color": {"red"}}}).Validate())
	assert.Error(t, (&Query{Strings: []string{"("}, MatchType: MatchRegex}).Validate())
}

func TestSaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "var/lib/pkgbind/locks.yaml")

	queries, err := Load(file)
	require.NoError(t, err)
	assert.Empty(t, queries)

	want := []*Query{
		{Strings: []string{"vim"}, MatchType: MatchExact},
		{Attrs: map[string][]string{"solvable:name": {"kernel-*"}}, MatchType: MatchGlob, CaseSensitive: true},
	}
	require.NoError(t, Save(file, want))

	got, err := Load(file)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.True(t, want[i].Equal(got[i]))
	}
	assert.False(t, got[0].Equal(got[1]))
}

func TestLoadInvalid(t *testing.T) {
	file := filepath.Join(t.TempDir(), "locks.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- match_type: fuzzy\n"), 0644))
	_, err := Load(file)
	assert.Error(t, err)
}
