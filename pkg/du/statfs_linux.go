package du

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Stats are the statvfs figures of a filesystem, in bytes.
type Stats struct {
	BlockSize int64
	Total     int64
	Used      int64
	Available int64 // for unprivileged users
}

// Stat reports the filesystem holding dir.
func Stat(dir string) (Stats, error) {
	var sb unix.Statfs_t
	if err := unix.Statfs(dir, &sb); err != nil {
		return Stats{}, errors.Wrapf(err, "statfs %s", dir)
	}
	bsize := int64(sb.Frsize)
	if bsize == 0 {
		bsize = int64(sb.Bsize)
	}
	return Stats{
		BlockSize: bsize,
		Total:     int64(sb.Blocks) * bsize,
		Used:      int64(sb.Blocks-sb.Bfree) * bsize,
		Available: int64(sb.Bavail) * bsize,
	}, nil
}
