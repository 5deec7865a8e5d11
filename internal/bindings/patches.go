package bindings

import (
	"context"

	"pkgbind/internal/callback"
	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/pool"
)

var patchFlags = map[string]func(*pool.PatchInfo) bool{
	"all":                 func(*pool.PatchInfo) bool { return true },
	"interactive":         func(pi *pool.PatchInfo) bool { return pi.Interactive },
	"reboot_needed":       func(pi *pool.PatchInfo) bool { return pi.RebootNeeded },
	"affects_pkg_manager": func(pi *pool.PatchInfo) bool { return pi.AffectsPkgManager },
}

// ResolvableCountPatches counts the applicable non optional patches with
// the flag kind.
func (p *PkgFunctions) ResolvableCountPatches(kind string) int64 {
	return p.setPatches(context.Background(), kind, false)
}

// ResolvablePreselectPatches selects the patches ResolvableCountPatches
// counts and returns their number. A patch with a message is selected only
// when the Message handler does not decline it.
func (p *PkgFunctions) ResolvablePreselectPatches(ctx context.Context, kind string) int64 {
	return p.setPatches(ctx, kind, true)
}

func (p *PkgFunctions) setPatches(ctx context.Context, kind string, preselect bool) int64 {
	flag, ok := patchFlags[kind]
	if !ok {
		log.Logger.Errorf("Wrong patch kind '%s', use: `all, `interactive, `reboot_needed or `affects_pkg_manager", kind)
		p.lastErr.Set("Wrong parameter", kind)
		return 0
	}

	var patches []*pool.Item
	for _, name := range pool.Names(p.pool.ByKind(pool.Patch)) {
		best := p.pool.Best(pool.CandidateQuery{Kind: pool.Patch, Name: name, OnlyNeeded: true})
		if best == nil {
			log.Logger.Debugf("Patch %s is not applicable", name)
			continue
		}
		info := best.Patch
		if info == nil {
			info = &pool.PatchInfo{}
		}
		switch {
		case info.Category == "optional":
			log.Logger.Infof("Ignoring optional patch %s", name)
		case flag(info):
			patches = append(patches, best)
		}
	}
	log.Logger.Infof("Found %d %s patches", len(patches), kind)

	if !preselect {
		return int64(len(patches))
	}
	selected := int64(0)
	for _, it := range patches {
		if it.Patch != nil && it.Patch.Message != "" && !p.callbacks.CallBool(ctx, true, callback.Message,
			value.String(it.Name), value.String(it.Edition.String()), value.String(it.Arch), value.String(it.Patch.Message)) {
			log.Logger.Infof("Patch %s declined", it.Name)
			continue
		}
		if it.SetToBeInstalled(pool.ApplHigh) {
			log.Logger.Infof("Selecting patch %s-%s", it.Name, it.Edition)
		}
		selected++
	}
	return selected
}
