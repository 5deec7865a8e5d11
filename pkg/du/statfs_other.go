//go:build !linux

package du

import (
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/disk"
)

// Stats are the statvfs figures of a filesystem, in bytes.
type Stats struct {
	BlockSize int64
	Total     int64
	Used      int64
	Available int64
}

// Stat reports the filesystem holding dir.
func Stat(dir string) (Stats, error) {
	u, err := disk.Usage(dir)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "statfs %s", dir)
	}
	return Stats{
		BlockSize: DefaultBlockSize,
		Total:     int64(u.Total),
		Used:      int64(u.Used),
		Available: int64(u.Free),
	}, nil
}
