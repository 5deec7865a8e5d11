package bindings

import (
	"path"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/pool"
)

// findPackage returns the candidate of name, falling back to the
// installed package.
func (p *PkgFunctions) findPackage(name string) *pool.Item {
	if name == "" {
		return nil
	}
	if it := p.pool.Best(pool.CandidateQuery{Kind: pool.Package, Name: name}); it != nil {
		return it
	}
	return p.pool.Installed(pool.Package, name)
}

// PkgInstall selects the best candidate of package name.
func (p *PkgFunctions) PkgInstall(name string) bool {
	if name == "" {
		return false
	}
	return p.provide(pool.CandidateQuery{Kind: pool.Package, Name: name})
}

// PkgDelete marks every installed version of name for removal.
func (p *PkgFunctions) PkgDelete(name string) bool {
	return p.ResolvableRemove(name, string(pool.Package))
}

// PkgNeutral drops the application's transactions on name.
func (p *PkgFunctions) PkgNeutral(name string) bool {
	if name == "" {
		return false
	}
	items := p.pool.ByIdent(pool.Package, name)
	ret := len(items) > 0
	for _, it := range items {
		ret = it.ResetTransact(pool.ApplHigh) && ret
	}
	return ret
}

// PkgTaboo locks every available version of name.
func (p *PkgFunctions) PkgTaboo(name string) bool {
	if name == "" {
		return false
	}
	found, ret := false, true
	for _, it := range p.pool.ByIdent(pool.Package, name) {
		if it.Installed() {
			continue
		}
		found = true
		ret = it.ResetTransact(pool.User) && it.SetLock(true, pool.User) && ret
	}
	return found && ret
}

// PkgReset clears every transaction and lock.
func (p *PkgFunctions) PkgReset() bool {
	p.pool.Reset()
	return true
}

// PkgApplReset clears the transactions requested by the application.
func (p *PkgFunctions) PkgApplReset() bool {
	p.pool.ApplReset()
	return true
}

func (p *PkgFunctions) PkgInstalled(name string) bool { return p.searchPackage(name, true) }
func (p *PkgFunctions) PkgAvailable(name string) bool { return p.searchPackage(name, false) }

func (p *PkgFunctions) searchPackage(name string, installed bool) bool {
	if name == "" {
		log.Logger.Warnf("Package name is empty")
		return false
	}
	found := false
	for _, it := range p.pool.ByIdent(pool.Package, name) {
		if it.Installed() == installed {
			found = true
			break
		}
	}
	log.Logger.Infof("Package '%s' installed %v: %v", name, installed, found)
	return found
}

var packageFilters = map[string]func(*pool.Item) bool{
	"installed": func(it *pool.Item) bool { return it.Installed() },
	"selected":  (*pool.Item).ToBeInstalled,
	"removed":   (*pool.Item).ToBeRemoved,
	"available": func(it *pool.Item) bool { return !it.Installed() },
	"locked":    func(it *pool.Item) bool { return it.Locked() && it.Installed() },
	"taboo":     func(it *pool.Item) bool { return it.Locked() && !it.Installed() },
}

// GetPackages lists packages in state which, either by name or as
// "name version release arch".
func (p *PkgFunctions) GetPackages(which string, namesOnly bool) value.Value {
	match, ok := packageFilters[which]
	if !ok {
		log.Logger.Errorf("Wrong parameter for Pkg::GetPackages: %s", which)
		p.lastErr.Set("Wrong parameter for GetPackages", which)
		return value.Nil()
	}
	var out []string
	for _, it := range p.pool.ByKind(pool.Package) {
		if !match(it) {
			continue
		}
		if namesOnly {
			out = append(out, it.Name)
			continue
		}
		out = append(out, it.Name+" "+it.Edition.Version()+" "+it.Edition.Release()+" "+it.Arch)
	}
	return value.Strings(out)
}

func (p *PkgFunctions) anyProvider(tag string, match func(*pool.Item) bool) bool {
	if tag == "" {
		return false
	}
	for _, it := range p.pool.WhatProvides(pool.Package, tag) {
		if match(it) {
			log.Logger.Infof("Tag %s matched by %s", tag, it.Name)
			return true
		}
	}
	return false
}

// IsProvided reports whether an installed package provides tag.
func (p *PkgFunctions) IsProvided(tag string) bool {
	return p.anyProvider(tag, func(it *pool.Item) bool { return it.Installed() })
}

// IsSelected reports whether a package providing tag is to be installed.
func (p *PkgFunctions) IsSelected(tag string) bool {
	return p.anyProvider(tag, (*pool.Item).ToBeInstalled)
}

// IsAvailable reports whether a package providing tag can be installed.
func (p *PkgFunctions) IsAvailable(tag string) bool {
	return p.anyProvider(tag, func(it *pool.Item) bool { return !it.Installed() })
}

// PkgProperties describes the package found by findPackage.
func (p *PkgFunctions) PkgProperties(name string) value.Value {
	it := p.findPackage(name)
	if it == nil {
		return value.Nil()
	}
	return value.Map(map[string]value.Value{
		"arch":     value.String(it.Arch),
		"medianr":  value.Int(int64(it.MediaNr)),
		"srcid":    value.Int(p.logFindAlias(it.Repo)),
		"status":   value.Symbol(it.StatusName()),
		"location": value.String(path.Base(it.Location)),
		"path":     value.String(it.Location),
	})
}

func (p *PkgFunctions) packageAttr(name string, attr func(*pool.Item) value.Value) value.Value {
	it := p.findPackage(name)
	if it == nil {
		return value.Nil()
	}
	return attr(it)
}

func (p *PkgFunctions) PkgSummary(name string) value.Value {
	return p.packageAttr(name, func(it *pool.Item) value.Value { return value.String(it.Summary) })
}

// PkgVersion returns the edition, e.g. "1.2-3".
func (p *PkgFunctions) PkgVersion(name string) value.Value {
	return p.packageAttr(name, func(it *pool.Item) value.Value { return value.String(it.Edition.String()) })
}

// PkgSize returns the installed size in bytes.
func (p *PkgFunctions) PkgSize(name string) value.Value {
	return p.packageAttr(name, func(it *pool.Item) value.Value { return value.Int(it.InstallSize) })
}

// PkgLocation returns the file name of the package on its medium.
func (p *PkgFunctions) PkgLocation(name string) value.Value {
	return p.packageAttr(name, func(it *pool.Item) value.Value { return value.String(path.Base(it.Location)) })
}

// PkgGroup returns the rpm group of the package found by findPackage.
func (p *PkgFunctions) PkgGroup(name string) value.Value {
	return p.packageAttr(name, func(it *pool.Item) value.Value { return value.String(it.Group) })
}

// PkgGetFilelist lists the files of package name. which is any (the
// version PkgProperties reports), installed or candidate.
func (p *PkgFunctions) PkgGetFilelist(name, which string) value.Value {
	var it *pool.Item
	switch which {
	case "any":
		it = p.findPackage(name)
	case "installed":
		it = p.pool.Installed(pool.Package, name)
	case "candidate":
		for _, c := range p.pool.ByIdent(pool.Package, name) {
			if c.ToBeInstalled() {
				it = c
				break
			}
		}
	default:
		log.Logger.Errorf("PkgGetFilelist: Unknown parameter, use `any, `installed or `candidate")
	}
	if it == nil {
		return value.Strings(nil)
	}
	return value.Strings(it.Files)
}

// PkgAnyToInstall reports whether any package is to be installed.
func (p *PkgFunctions) PkgAnyToInstall() bool {
	return p.anyPackage((*pool.Item).ToBeInstalled)
}

// PkgAnyToDelete reports whether any package is to be removed.
func (p *PkgFunctions) PkgAnyToDelete() bool {
	return p.anyPackage((*pool.Item).ToBeRemoved)
}

// IsManualSelection reports whether a package transacts on a direct
// request rather than by the solver or a preselection.
func (p *PkgFunctions) IsManualSelection() bool {
	return p.anyPackage(func(it *pool.Item) bool { return it.Transacts() && it.TransactBy() >= pool.ApplHigh })
}

func (p *PkgFunctions) anyPackage(match func(*pool.Item) bool) bool {
	for _, it := range p.pool.ByKind(pool.Package) {
		if match(it) {
			return true
		}
	}
	return false
}

// PkgMediaNames lists [name, id] of the enabled repositories, the URL or
// alias standing in for an empty name.
func (p *PkgFunctions) PkgMediaNames() value.Value {
	out := []value.Value{}
	for i, r := range p.collection {
		if r.Deleted() || !r.info.Enabled {
			continue
		}
		name := r.info.Name
		if name == "" {
			log.Logger.Warnf("Name of repository '%d' is empty, using URL", i)
			if name = r.info.URL(); name == "" {
				name = r.Alias()
			}
		}
		out = append(out, value.List(value.String(name), value.Int(int64(i))))
	}
	log.Logger.Infof("Pkg::PkgMediaNames result: %s", value.List(out...))
	return value.List(out...)
}

// PkgMediaSizes sums the installed sizes of the selected packages per
// enabled repository and medium.
func (p *PkgFunctions) PkgMediaSizes() value.Value {
	return p.mediaTotals(func(it *pool.Item) int64 { return it.InstallSize })
}

// PkgMediaPackageSizes is PkgMediaSizes for the download sizes.
func (p *PkgFunctions) PkgMediaPackageSizes() value.Value {
	return p.mediaTotals(func(it *pool.Item) int64 { return it.DownloadSize })
}

// PkgMediaCount counts the selected packages per repository and medium.
func (p *PkgFunctions) PkgMediaCount() value.Value {
	return p.mediaTotals(func(*pool.Item) int64 { return 1 })
}

// mediaTotals returns one list per enabled repository in id order, each
// entry holding the total for medium index+1.
func (p *PkgFunctions) mediaTotals(amount func(*pool.Item) int64) value.Value {
	byAlias := make(map[string][]int64)
	var order []string
	for _, r := range p.collection {
		if r.Deleted() || !r.info.Enabled {
			continue
		}
		byAlias[r.Alias()] = []int64{}
		order = append(order, r.Alias())
	}
	for _, it := range p.pool.ByKind(pool.Package) {
		totals, ok := byAlias[it.Repo]
		if !ok || !it.ToBeInstalled() {
			continue
		}
		medium := it.MediaNr
		if medium < 1 {
			medium = 1
		}
		for len(totals) < medium {
			totals = append(totals, 0)
		}
		totals[medium-1] += amount(it)
		byAlias[it.Repo] = totals
	}

	out := make([]value.Value, 0, len(order))
	for _, alias := range order {
		out = append(out, value.Ints(byAlias[alias]))
	}
	return value.List(out...)
}
