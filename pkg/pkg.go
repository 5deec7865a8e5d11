// Package pkg links the storage and repository backends into the binary.
package pkg

import (
	_ "pkgbind/pkg/repo/plaindir"
	_ "pkgbind/pkg/repo/rpmmd"
	_ "pkgbind/pkg/storage/local"
	_ "pkgbind/pkg/storage/mindb"
)
