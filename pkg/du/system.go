package du

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/disk"

	"pkgbind/internal/log"
)

var virtualFS = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true, "tmpfs": true,
	"cgroup": true, "cgroup2": true, "securityfs": true, "debugfs": true,
	"tracefs": true, "pstore": true, "bpf": true, "mqueue": true, "hugetlbfs": true,
	"autofs": true, "configfs": true, "fusectl": true, "binfmt_misc": true,
	"rpc_pipefs": true, "nsfs": true, "overlay": true, "squashfs": true,
	"iso9660": true, "efivarfs": true, "ramfs": true,
}

// DetectMountPoints reads the mounted filesystems under root and returns
// them relative to root.
func DetectMountPoints(root string) ([]MountPoint, error) {
	root = filepath.Clean(root)
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, errors.Wrap(err, "list partitions")
	}

	var mps []MountPoint
	for _, p := range parts {
		if virtualFS[p.Fstype] {
			continue
		}
		dir, ok := relativeTo(root, p.Mountpoint)
		if !ok {
			continue
		}

		st, err := Stat(p.Mountpoint)
		if err != nil {
			log.Logger.Warnf("Skipping mount point %s: %v", p.Mountpoint, err)
			continue
		}

		readonly := false
		for _, opt := range p.Opts {
			if opt == "ro" {
				readonly = true
			}
		}

		mps = append(mps, MountPoint{
			Dir:        dir,
			Filesystem: p.Fstype,
			BlockSize:  st.BlockSize,
			TotalSize:  st.Total / 1024,
			UsedSize:   st.Used / 1024,
			ReadOnly:   readonly,
			GrowOnly:   p.Fstype == "btrfs" && hasSnapshots(p.Mountpoint),
		})
	}

	if len(mps) == 0 {
		// nothing mounted below root: account everything on root itself
		st, err := Stat(root)
		if err != nil {
			return nil, err
		}
		mps = append(mps, MountPoint{
			Dir:       "/",
			BlockSize: st.BlockSize,
			TotalSize: st.Total / 1024,
			UsedSize:  st.Used / 1024,
		})
	}
	return mps, nil
}

func relativeTo(root, mountpoint string) (string, bool) {
	if root == "/" {
		return mountpoint, true
	}
	if mountpoint == root {
		return "/", true
	}
	if strings.HasPrefix(mountpoint, root+"/") {
		return strings.TrimPrefix(mountpoint, root), true
	}
	return "", false
}

func hasSnapshots(mountpoint string) bool {
	matches, _ := filepath.Glob(filepath.Join(mountpoint, ".snapshots", "*"))
	return len(matches) > 0
}
