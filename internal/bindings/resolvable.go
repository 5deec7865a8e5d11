package bindings

import (
	"path"
	"sort"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/pool"
)

// parseKind converts a kind symbol, storing an error for unknown kinds.
func (p *PkgFunctions) parseKind(kind string) (pool.Kind, bool) {
	k, ok := pool.ParseKind(kind)
	if !ok {
		log.Logger.Errorf("Invalid resolvable kind: %s", kind)
		p.lastErr.Set("Invalid resolvable kind", kind)
	}
	return k, ok
}

func (p *PkgFunctions) resolvableMap(it *pool.Item, deps bool) map[string]value.Value {
	data := map[string]value.Value{
		"name":          value.String(it.Name),
		"kind":          value.Symbol(string(it.Kind)),
		"version":       value.String(it.Edition.String()),
		"arch":          value.String(it.Arch),
		"description":   value.String(it.Description),
		"status":        value.Symbol(it.StatusName()),
		"transact_by":   value.Symbol(it.TransactBy().String()),
		"locked":        value.Bool(it.Locked()),
		"source":        value.Int(p.logFindAlias(it.Repo)),
		"download_size": value.Int(it.DownloadSize),
		"inst_size":     value.Int(it.InstallSize),
		"medium_nr":     value.Int(int64(it.MediaNr)),
		"vendor":        value.String(it.Vendor),
	}
	if it.Summary != "" {
		data["summary"] = value.String(it.Summary)
	}
	if it.License != "" {
		data["license"] = value.String(it.License)
	}
	if it.LicenseToConfirm != "" {
		data["license_to_confirm"] = value.String(it.LicenseToConfirm)
	}
	data["license_confirmed"] = value.Bool(it.LicenseConfirmed())

	switch it.Kind {
	case pool.Package, pool.SrcPackage:
		if it.Location != "" {
			data["path"] = value.String(it.Location)
			data["location"] = value.String(path.Base(it.Location))
		}
	case pool.Product:
		prod := it.Product
		if prod == nil {
			prod = &pool.ProductInfo{}
		}
		shortName := prod.ShortName
		if shortName == "" {
			shortName = it.Summary
		}
		data["category"] = value.String(prod.Type)
		data["type"] = value.String(prod.Type)
		data["relnotes_url"] = value.String(prod.RelNotesURL)
		data["display_name"] = value.String(it.Summary)
		data["short_name"] = value.String(shortName)
		data["update_urls"] = value.Strings(prod.UpdateURLs)
		data["flags"] = value.Strings(prod.Flags)
		if len(prod.ExtraURLs) > 0 {
			data["extra_urls"] = value.Strings(prod.ExtraURLs)
		}
		if len(prod.OptionalURLs) > 0 {
			data["optional_urls"] = value.Strings(prod.OptionalURLs)
		}
	case pool.Pattern:
		pat := it.Pattern
		if pat == nil {
			pat = &pool.PatternInfo{}
		}
		data["category"] = value.String(pat.Category)
		data["user_visible"] = value.Bool(pat.UserVisible)
		data["default"] = value.Bool(pat.Default)
		data["icon"] = value.String(pat.Icon)
		data["script"] = value.String(pat.Script)
		data["order"] = value.String(pat.Order)
	case pool.Patch:
		patch := it.Patch
		if patch == nil {
			patch = &pool.PatchInfo{}
		}
		data["category"] = value.String(patch.Category)
		data["interactive"] = value.Bool(patch.Interactive)
		data["reboot_needed"] = value.Bool(patch.RebootNeeded)
		data["affects_pkg_manager"] = value.Bool(patch.AffectsPkgManager)
		data["is_needed"] = value.Bool(p.pool.Needed(it))
	}

	if deps {
		var list []value.Value
		for _, kind := range pool.DepKinds {
			for _, name := range it.DepNames(kind) {
				list = append(list, value.Map(map[string]value.Value{
					"name":     value.String(name),
					"dep_kind": value.String(kind),
				}))
			}
		}
		data["dependencies"] = value.List(list...)
	}
	return data
}

// ResolvableProperties lists every version of name. An empty version
// matches all of them.
func (p *PkgFunctions) ResolvableProperties(name, kind, version string) value.Value {
	return p.properties(name, kind, version, false)
}

// ResolvableDependencies is ResolvableProperties with the dependencies.
func (p *PkgFunctions) ResolvableDependencies(name, kind, version string) value.Value {
	return p.properties(name, kind, version, true)
}

func (p *PkgFunctions) properties(name, kind, version string, deps bool) value.Value {
	k, ok := p.parseKind(kind)
	if !ok {
		return value.Nil()
	}
	var out []value.Value
	for _, it := range p.pool.ByIdent(k, name) {
		if version != "" && it.Edition.String() != version {
			continue
		}
		out = append(out, value.Map(p.resolvableMap(it, deps)))
	}
	return value.List(out...)
}

// filterResolvables applies a Resolvables filter map. ok is false when
// the filter is invalid, the last error says why.
// filterName reads a filter value given as a symbol or a string.
func filterName(v value.Value) (string, bool) {
	if s, ok := v.AsSymbol(); ok {
		return s, true
	}
	return v.AsString()
}

func (p *PkgFunctions) filterResolvables(filter map[string]value.Value) (items []*pool.Item, ok bool) {
	var preds []func(*pool.Item) bool
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := filter[key]
		switch key {
		case "kind":
			s, isName := filterName(v)
			k, valid := pool.ParseKind(s)
			if !isName || !valid {
				p.lastErr.Set("Invalid value for \"kind\"", v.String())
				return nil, false
			}
			preds = append(preds, func(it *pool.Item) bool { return it.Kind == k })
		case "name":
			s, isString := v.AsString()
			if !isString {
				p.lastErr.Set("Invalid value for \"name\"", v.String())
				return nil, false
			}
			preds = append(preds, func(it *pool.Item) bool { return it.Name == s })
		case "status":
			s, _ := filterName(v)
			switch s {
			case "installed", "available", "selected", "removed":
			default:
				p.lastErr.Set("Invalid value for \"status\"", v.String())
				return nil, false
			}
			preds = append(preds, func(it *pool.Item) bool { return it.StatusName() == s })
		case "repo":
			id, isInt := v.AsInt()
			r := p.logFindRepository(id)
			if !isInt || r == nil {
				return nil, false
			}
			alias := r.Alias()
			preds = append(preds, func(it *pool.Item) bool { return it.Repo == alias })
		case "transact_by":
			s, _ := filterName(v)
			by, valid := pool.ParseCauser(s)
			if !valid {
				p.lastErr.Set("Invalid value for \"transact_by\"", v.String())
				return nil, false
			}
			preds = append(preds, func(it *pool.Item) bool { return it.Transacts() && it.TransactBy() == by })
		default:
			log.Logger.Errorf("Unknown filter key: %s", key)
			p.lastErr.Set("Unknown filter key", key)
			return nil, false
		}
	}

	return p.pool.Select(func(it *pool.Item) bool {
		for _, pred := range preds {
			if !pred(it) {
				return false
			}
		}
		return true
	}), true
}

// Resolvables returns the resolvables matching filter, restricted to the
// attrs keys when attrs is not empty. Dependencies are only computed when
// requested in attrs.
func (p *PkgFunctions) Resolvables(filter map[string]value.Value, attrs []value.Value) value.Value {
	items, ok := p.filterResolvables(filter)
	if !ok {
		return value.Nil()
	}

	wanted := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		s, isString := a.AsString()
		if !isString {
			s, _ = a.AsSymbol()
		}
		wanted[s] = true
	}

	out := make([]value.Value, 0, len(items))
	for _, it := range items {
		data := p.resolvableMap(it, wanted["dependencies"])
		if len(wanted) > 0 {
			for key := range data {
				if !wanted[key] {
					delete(data, key)
				}
			}
		}
		out = append(out, value.Map(data))
	}
	return value.List(out...)
}

// AnyResolvable reports whether any resolvable matches filter.
func (p *PkgFunctions) AnyResolvable(filter map[string]value.Value) value.Value {
	items, ok := p.filterResolvables(filter)
	if !ok {
		return value.Nil()
	}
	return value.Bool(len(items) > 0)
}

// IsAnyResolvable reports whether a resolvable of kind (or `any) is to be
// installed or removed.
func (p *PkgFunctions) IsAnyResolvable(kind, status string) value.Value {
	var match func(*pool.Item) bool
	switch status {
	case "to_install":
		match = (*pool.Item).ToBeInstalled
	case "to_remove":
		match = (*pool.Item).ToBeRemoved
	default:
		log.Logger.Errorf("Invalid status: %s", status)
		p.lastErr.Set("Invalid status", status)
		return value.Nil()
	}

	var k pool.Kind
	if kind != "any" {
		var ok bool
		if k, ok = p.parseKind(kind); !ok {
			return value.Nil()
		}
	}
	for _, it := range p.pool.Items() {
		if (k == "" || it.Kind == k) && match(it) {
			return value.Bool(true)
		}
	}
	return value.Bool(false)
}

// ResolvableInstall selects the best candidate of name for installation.
func (p *PkgFunctions) ResolvableInstall(name, kind string) bool {
	k, ok := p.parseKind(kind)
	if !ok || name == "" {
		return false
	}
	return p.provide(pool.CandidateQuery{Kind: k, Name: name, OnlyNeeded: k == pool.Patch})
}

func (p *PkgFunctions) provide(q pool.CandidateQuery) bool {
	c := p.pool.Candidate(q, pool.ApplHigh)
	if c == nil {
		log.Logger.Warnf("%s '%s' not found", q.Kind, q.Name)
		return false
	}
	if !c.SetToBeInstalled(pool.ApplHigh) {
		log.Logger.Warnf("Cannot select %s %s-%s.%s", q.Kind, c.Name, c.Edition, c.Arch)
		return false
	}
	log.Logger.Infof("Selected %s %s-%s.%s from %s", q.Kind, c.Name, c.Edition, c.Arch, c.Repo)
	return true
}

// ResolvableInstallArchVersion selects exactly name-version.arch.
func (p *PkgFunctions) ResolvableInstallArchVersion(name, kind, arch, version string) bool {
	k, ok := p.parseKind(kind)
	if !ok || name == "" {
		return false
	}
	if arch == "" {
		log.Logger.Errorf("Missing architecture for %s", name)
		p.lastErr.Set("Missing architecture", name)
		return false
	}

	for _, it := range p.pool.ByIdent(k, name) {
		if it.Installed() || it.Arch != arch {
			continue
		}
		if version != "" && it.Edition.String() != version {
			continue
		}
		return it.SetToBeInstalled(pool.ApplHigh)
	}
	log.Logger.Warnf("%s %s-%s.%s not found", k, name, version, arch)
	return false
}

// ResolvableInstallRepo selects name from repository id only. An empty
// name selects every resolvable of kind the repository provides.
func (p *PkgFunctions) ResolvableInstallRepo(name, kind string, id int64) bool {
	k, ok := p.parseKind(kind)
	if !ok {
		return false
	}
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}

	names := []string{name}
	if name == "" {
		names = pool.Names(p.pool.Select(func(it *pool.Item) bool {
			return it.Kind == k && it.Repo == r.Alias()
		}))
	}
	ret := true
	for _, n := range names {
		ret = p.provide(pool.CandidateQuery{Kind: k, Name: n, Repo: r.Alias()}) && ret
	}
	return ret
}

// ResolvableRemove marks the installed name for removal.
func (p *PkgFunctions) ResolvableRemove(name, kind string) bool {
	k, ok := p.parseKind(kind)
	if !ok || name == "" {
		return false
	}
	found, ret := false, true
	for _, it := range p.pool.ByIdent(k, name) {
		if it.Installed() {
			found = true
			ret = it.SetToBeUninstalled(pool.ApplHigh) && ret
		}
	}
	return found && ret
}

// ResolvableUpdate selects the candidate of the installed name when it is
// newer.
func (p *PkgFunctions) ResolvableUpdate(name, kind string) bool {
	k, ok := p.parseKind(kind)
	if !ok || name == "" {
		return false
	}
	inst := p.pool.Installed(k, name)
	if inst == nil {
		log.Logger.Warnf("%s %s is not installed", k, name)
		return false
	}
	c := p.pool.Best(pool.CandidateQuery{Kind: k, Name: name})
	if c == nil || pool.Compare(c.Edition, inst.Edition) <= 0 {
		log.Logger.Infof("No update for %s %s", k, name)
		return false
	}
	return p.provide(pool.CandidateQuery{Kind: k, Name: name})
}

// ResolvableNeutral drops transactions on name. force also removes locks
// set by the user. An empty name resets every resolvable of kind.
func (p *PkgFunctions) ResolvableNeutral(name, kind string, force bool) bool {
	k, ok := p.parseKind(kind)
	if !ok {
		return false
	}
	by := pool.ApplHigh
	if force {
		by = pool.User
	}
	items := p.pool.ByIdent(k, name)
	if len(items) == 0 {
		return false
	}
	ret := true
	for _, it := range items {
		ret = it.ResetTransact(by) && ret
		if force || it.SoftLocked() {
			ret = it.SetLock(false, by) && ret
		}
	}
	return ret
}

// ResolvableSetSoftLock keeps the solver from selecting name. An empty
// name soft locks every resolvable of kind.
func (p *PkgFunctions) ResolvableSetSoftLock(name, kind string) bool {
	k, ok := p.parseKind(kind)
	if !ok {
		return false
	}
	items := p.pool.ByIdent(k, name)
	if len(items) == 0 {
		return false
	}
	ret := true
	for _, it := range items {
		ret = it.SetSoftLock(pool.ApplHigh) && ret
	}
	return ret
}
