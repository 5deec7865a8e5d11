package storage

import (
	"fmt"

	"pkgbind/internal/log"
)

type StorageType string

const (
	Local StorageType = "local"
	MinDB StorageType = "mindb"
)

type storageFn func(string) (Storage, error)

type storageCtx struct {
	labels []string
	fn     storageFn
}

var factory = make(map[StorageType]storageCtx)

func Register(st StorageType, fn storageFn, labels ...string) {
	if _, ok := factory[st]; ok {
		return
	}
	factory[st] = storageCtx{
		fn:     fn,
		labels: labels,
	}
	log.Logger.Debugf("Registered storage %s %v", st, labels)
}

func Create(storeType StorageType, path string) (Storage, error) {
	if fn, ok := factory[storeType]; ok {
		return fn.fn(path)
	}
	return nil, fmt.Errorf("unsupported storage type: %s", storeType)
}

// CreateByLabel picks the storage registered for label, falling back to
// local storage.
func CreateByLabel(path string, label string) (Storage, error) {
	for _, fn := range factory {
		for _, l := range fn.labels {
			if l == label {
				return fn.fn(path)
			}
		}
	}
	log.Logger.Debugf("No storage for label %s, using %s", label, Local)
	if fn, ok := factory[Local]; ok {
		return fn.fn(path)
	}
	return nil, fmt.Errorf("no storage for label %s", label)
}

// Types returns the registered storage types.
func Types() []StorageType {
	types := make([]StorageType, 0, len(factory))
	for st := range factory {
		types = append(types, st)
	}
	return types
}
