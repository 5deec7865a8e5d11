package repo

import (
	"context"
	"fmt"
	"sort"

	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/storage"
)

// Backend reads one repository metadata format.
type Backend interface {
	// Probe reports whether dir on the medium holds this format.
	Probe(ctx context.Context, access *media.Access, dir string) bool

	// Download fetches the raw metadata of info into raw below prefix and
	// returns a checksum identifying the metadata revision.
	Download(ctx context.Context, access *media.Access, info Info, raw storage.Storage, prefix string) (string, error)

	// Checksum returns the revision checksum of the metadata on the
	// medium without downloading everything.
	Checksum(ctx context.Context, access *media.Access, info Info) (string, error)

	// Parse turns the raw metadata below prefix into resolvables.
	Parse(ctx context.Context, raw storage.Storage, prefix string, info Info) ([]*pool.Resolvable, error)
}

var factory = make(map[Type]Backend)

func Register(rt Type, b Backend) {
	if _, ok := factory[rt]; ok {
		return
	}
	factory[rt] = b
}

// Lookup returns the backend of rt.
func Lookup(rt Type) (Backend, error) {
	if b, ok := factory[rt]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("unsupported repository type: %s", rt)
}

// probeOrder lists the registered types in detection order.
func probeOrder() []Type {
	order := map[Type]int{TypeRpmMd: 0, TypeYaST: 1, TypePlaindir: 2}
	types := make([]Type, 0, len(factory))
	for t := range factory {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return order[types[i]] < order[types[j]] })
	return types
}
