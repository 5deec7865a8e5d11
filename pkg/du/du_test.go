package du

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkgbind/pkg/pool"
)

func partitions() []MountPoint {
	return []MountPoint{
		{Dir: "usr", TotalSize: 1000, UsedSize: 100},
		{Dir: "/", TotalSize: 5000, UsedSize: 2000},
		{Dir: "/var", TotalSize: 800, UsedSize: 50, GrowOnly: true},
	}
}

func TestSetPartitionsNormalizes(t *testing.T) {
	c := NewCounter()
	assert.True(t, c.Empty())
	c.SetPartitions(partitions())

	mps := c.Partitions()
	require.Len(t, mps, 3)
	assert.Equal(t, []string{"/", "/usr", "/var"}, []string{mps[0].Dir, mps[1].Dir, mps[2].Dir})
	assert.Equal(t, int64(DefaultBlockSize), mps[1].BlockSize)
}

func TestDiskUsage(t *testing.T) {
	c := NewCounter()
	c.SetPartitions(partitions())

	p := pool.New("x86_64")
	items := p.Add([]*pool.Resolvable{
		{Kind: pool.Package, Name: "new", Arch: "x86_64", Repo: "oss",
			DiskUsage: map[string]int64{"/usr/bin": 30, "/etc": 5, "/var/lib/new": 7}},
		{Kind: pool.Package, Name: "old", Arch: "x86_64", Repo: pool.SystemRepo,
			DiskUsage: map[string]int64{"/usr/lib": 10, "/var/log": 4}},
	})
	require.True(t, items[0].SetToBeInstalled(pool.User))
	require.True(t, items[1].SetToBeUninstalled(pool.User))

	byDir := map[string]MountPoint{}
	for _, mp := range c.DiskUsage(p.Items()) {
		byDir[mp.Dir] = mp
	}

	assert.Equal(t, int64(100+30-10), byDir["/usr"].PkgSize)
	assert.Equal(t, int64(2000+5), byDir["/"].PkgSize)
	assert.Equal(t, int64(50+7), byDir["/var"].PkgSize, "growonly ignores removals")

	// stored partitions are untouched
	for _, mp := range c.Partitions() {
		assert.Zero(t, mp.PkgSize)
	}
}

func TestPackageUsage(t *testing.T) {
	c := NewCounter()
	c.SetPartitions(partitions())

	mps := c.PackageUsage(&pool.Resolvable{DiskUsage: map[string]int64{"/usr/share": 12, "/opt": 3}})
	byDir := map[string]int64{}
	for _, mp := range mps {
		byDir[mp.Dir] = mp.PkgSize
	}
	assert.Equal(t, int64(12), byDir["/usr"])
	assert.Equal(t, int64(3), byDir["/"])
	assert.Equal(t, int64(0), byDir["/var"])
}

func TestEstimate(t *testing.T) {
	assert.Nil(t, Estimate(0, nil))
	assert.Equal(t, map[string]int64{"/usr": 2}, Estimate(2048, nil))

	est := Estimate(10*1024, []string{"/usr/bin/a", "/usr/bin/b", "/usr/bin/c", "/etc/a.conf"})
	assert.Equal(t, int64(8), est["/usr/bin"])
	assert.Equal(t, int64(2), est["/etc"])

	var sum int64
	for _, v := range Estimate(1000*1024+5, []string{"/a/x", "/b/y", "/c/z"}) {
		sum += v
	}
	assert.Equal(t, int64(1001), sum)
}

func TestRelativeTo(t *testing.T) {
	dir, ok := relativeTo("/mnt", "/mnt/usr")
	assert.True(t, ok)
	assert.Equal(t, "/usr", dir)

	dir, ok = relativeTo("/mnt", "/mnt")
	assert.True(t, ok)
	assert.Equal(t, "/", dir)

	_, ok = relativeTo("/mnt", "/mntx")
	assert.False(t, ok)
}

func TestStat(t *testing.T) {
	st, err := Stat(t.TempDir())
	require.NoError(t, err)
	assert.True(t, st.BlockSize > 0)
	assert.True(t, st.Total >= st.Used)

	_, err = Stat("/nonexistent/path/for/statfs")
	assert.Error(t, err)
}
