// Package du accounts the disk space the current package selection will
// occupy per mount point. All sizes are KiB.
package du

import (
	"path"
	"sort"
	"strings"

	"pkgbind/pkg/pool"
)

// DefaultBlockSize is used for partitions given without a block size.
const DefaultBlockSize = 4096

type MountPoint struct {
	Dir        string // always absolute, "/" for the root
	Filesystem string
	BlockSize  int64
	TotalSize  int64
	UsedSize   int64
	// PkgSize is the used size after the pending transaction.
	PkgSize  int64
	ReadOnly bool
	// GrowOnly partitions never free space on removal (e.g. snapshots).
	GrowOnly bool
}

// NormalizeDir returns an absolute, clean directory name.
func NormalizeDir(dir string) string {
	return path.Clean("/" + strings.TrimSpace(dir))
}

// Counter holds the partitions the usage is computed for.
type Counter struct {
	partitions []MountPoint
}

func NewCounter() *Counter { return &Counter{} }

// SetPartitions replaces the partition set; dirs are normalized and the
// set is kept sorted by directory.
func (c *Counter) SetPartitions(mps []MountPoint) {
	out := make([]MountPoint, 0, len(mps))
	seen := make(map[string]int)
	for _, mp := range mps {
		mp.Dir = NormalizeDir(mp.Dir)
		if mp.BlockSize <= 0 {
			mp.BlockSize = DefaultBlockSize
		}
		if i, ok := seen[mp.Dir]; ok {
			out[i] = mp
			continue
		}
		seen[mp.Dir] = len(out)
		out = append(out, mp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	c.partitions = out
}

// Partitions returns a copy of the configured partitions.
func (c *Counter) Partitions() []MountPoint {
	return append([]MountPoint(nil), c.partitions...)
}

func (c *Counter) Empty() bool { return len(c.partitions) == 0 }

// DiskUsage computes PkgSize for every partition from the items that are
// scheduled for installation or removal.
func (c *Counter) DiskUsage(items []*pool.Item) []MountPoint {
	mps := c.Partitions()
	for i := range mps {
		mps[i].PkgSize = mps[i].UsedSize
	}
	for _, it := range items {
		switch {
		case it.ToBeInstalled():
			apply(mps, Usage(it.Resolvable), 1)
		case it.ToBeRemoved():
			apply(mps, Usage(it.Resolvable), -1)
		}
	}
	return mps
}

// PackageUsage adds the usage of one resolvable on top of the stored
// package sizes.
func (c *Counter) PackageUsage(r *pool.Resolvable) []MountPoint {
	mps := c.Partitions()
	apply(mps, Usage(r), 1)
	return mps
}

// Usage returns the per-directory usage of r, estimating it from the
// installed size when the metadata carries none.
func Usage(r *pool.Resolvable) map[string]int64 {
	if len(r.DiskUsage) > 0 {
		return r.DiskUsage
	}
	return Estimate(r.InstallSize, r.Files)
}

// apply distributes usage over mps from the deepest mount point up, so
// each directory is counted on exactly one partition.
func apply(mps []MountPoint, usage map[string]int64, sign int64) {
	if len(usage) == 0 {
		return
	}
	rest := make(map[string]int64, len(usage))
	for dir, size := range usage {
		rest[NormalizeDir(dir)] += size
	}
	for i := len(mps) - 1; i >= 0; i-- {
		mp := &mps[i]
		var sum int64
		for dir, size := range rest {
			if under(dir, mp.Dir) {
				sum += size
				delete(rest, dir)
			}
		}
		if sum == 0 || (sign < 0 && mp.GrowOnly) {
			continue
		}
		mp.PkgSize += sign * sum
	}
}

func under(dir, mount string) bool {
	if mount == "/" {
		return true
	}
	return dir == mount || strings.HasPrefix(dir, mount+"/")
}

// Estimate spreads installSize (bytes) over the top level directories of
// files, weighted by file count. Without files everything goes to /usr.
func Estimate(installSize int64, files []string) map[string]int64 {
	kib := (installSize + 1023) / 1024
	if kib <= 0 {
		return nil
	}
	counts := make(map[string]int64)
	var total int64
	for _, f := range files {
		f = NormalizeDir(f)
		parts := strings.SplitN(strings.TrimPrefix(f, "/"), "/", 3)
		dir := "/" + parts[0]
		if len(parts) > 2 {
			dir += "/" + parts[1]
		}
		counts[dir]++
		total++
	}
	if total == 0 {
		return map[string]int64{"/usr": kib}
	}

	out := make(map[string]int64, len(counts))
	var assigned int64
	dirs := make([]string, 0, len(counts))
	for dir := range counts {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		share := kib * counts[dir] / total
		out[dir] = share
		assigned += share
	}
	// rounding remainder goes to the busiest directory
	busiest := dirs[0]
	for _, dir := range dirs {
		if counts[dir] > counts[busiest] {
			busiest = dir
		}
	}
	out[busiest] += kib - assigned
	return out
}
