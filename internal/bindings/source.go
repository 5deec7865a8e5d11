package bindings

import (
	"context"
	"fmt"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/repo"
)

// SourceGetCurrent returns the indices of the live repositories.
func (p *PkgFunctions) SourceGetCurrent(enabledOnly bool) value.Value {
	var ids []int64
	for i, r := range p.collection {
		if r.Deleted() || (enabledOnly && !r.info.Enabled) {
			continue
		}
		ids = append(ids, int64(i))
	}
	return value.Ints(ids)
}

func (p *PkgFunctions) hiddenURLs(info repo.Info) value.Value {
	vars := p.repos.Vars()
	urls := make([]string, 0, len(info.BaseURLs))
	for _, u := range info.BaseURLs {
		urls = append(urls, media.HidePassword(vars.Expand(u)))
	}
	return value.Strings(urls)
}

// SourceGeneralData describes repository id. Passwords in URLs are
// hidden.
func (p *PkgFunctions) SourceGeneralData(id int64) value.Value {
	r := p.logFindRepository(id)
	if r == nil {
		return value.Nil()
	}
	info := r.info
	vars := p.repos.Vars()

	data := map[string]value.Value{
		"enabled":      value.Bool(info.Enabled),
		"autorefresh":  value.Bool(info.Autorefresh),
		"type":         value.String(info.Type.LegacyName()),
		"product_dir":  value.String(info.Path),
		"alias":        value.String(info.Alias),
		"name":         value.String(vars.Expand(info.Name)),
		"raw_name":     value.String(info.Name),
		"base_urls":    p.hiddenURLs(info),
		"mirror_list":  value.String(media.HidePassword(info.MirrorList)),
		"priority":     value.Int(int64(info.Priority)),
		"service":      value.String(info.Service),
		"keeppackages": value.Bool(info.KeepPackages),
	}
	if len(info.BaseURLs) > 0 {
		data["url"] = value.String(media.HidePassword(info.ExpandedURL(vars)))
		data["raw_url"] = value.String(media.HidePassword(info.URL()))
	}

	// nil while the signature state is unknown
	data["valid_repo_signature"] = value.Nil()
	if valid := p.repos.ValidSignature(info.Alias); valid != nil {
		data["valid_repo_signature"] = value.Bool(*valid)
	}

	if p.pool.AnyFrom(info.Alias) {
		isUpdate := len(p.pool.Select(func(it *pool.Item) bool {
			return it.Repo == info.Alias && it.Kind == pool.Patch
		})) > 0
		data["is_update_repo"] = value.Bool(isUpdate)
	}
	return value.Map(data)
}

// SourceURL returns the expanded URL of id including the password.
func (p *PkgFunctions) SourceURL(id int64) value.Value {
	r := p.logFindRepository(id)
	if r == nil {
		return value.Nil()
	}
	return value.String(r.info.ExpandedURL(p.repos.Vars()))
}

// SourceRawURL returns the URL of id without variable expansion.
func (p *PkgFunctions) SourceRawURL(id int64) value.Value {
	r := p.logFindRepository(id)
	if r == nil {
		return value.Nil()
	}
	return value.String(r.info.URL())
}

// SourceMediaData reports the highest medium number used by the packages
// of id, which needs loaded resolvables.
func (p *PkgFunctions) SourceMediaData(id int64) value.Value {
	r := p.logFindRepository(id)
	if r == nil {
		return value.Nil()
	}
	data := make(map[string]value.Value)

	found, maxMedium := false, 1
	for _, it := range p.pool.ByKind(pool.Package) {
		if it.Repo != r.Alias() {
			continue
		}
		found = true
		if it.MediaNr > maxMedium {
			maxMedium = it.MediaNr
		}
	}
	if found {
		data["media_count"] = value.Int(int64(maxMedium))
	} else {
		log.Logger.Errorf("No resolvable from repository '%s' found, cannot get number of media", r.Alias())
	}

	if len(r.info.BaseURLs) > 0 {
		data["url"] = value.String(media.HidePassword(r.info.ExpandedURL(p.repos.Vars())))
		data["base_urls"] = p.hiddenURLs(r.info)
	}
	return value.Map(data)
}

// SourceProductData describes the first product provided by id.
func (p *PkgFunctions) SourceProductData(id int64) value.Value {
	r := p.logFindRepository(id)
	if r == nil {
		return value.Nil()
	}

	data := make(map[string]value.Value)
	for _, it := range p.pool.ByKind(pool.Product) {
		if it.Repo != r.Alias() {
			continue
		}
		prod := it.Product
		if prod == nil {
			prod = &pool.ProductInfo{}
		}
		var relnotes []string
		if prod.RelNotesURL != "" {
			relnotes = []string{prod.RelNotesURL}
		}
		data["label"] = value.String(it.Summary)
		data["vendor"] = value.String(it.Vendor)
		data["productname"] = value.String(it.Name)
		data["productversion"] = value.String(it.Edition.Version())
		data["relnotesurl"] = value.String(prod.RelNotesURL)
		data["relnotes_urls"] = value.Strings(relnotes)
		data["register_urls"] = value.Strings(nil)
		data["update_urls"] = value.Strings(prod.UpdateURLs)
		data["extra_urls"] = value.Strings(prod.ExtraURLs)
		data["optional_urls"] = value.Strings(prod.OptionalURLs)
		break
	}
	if len(data) == 0 {
		log.Logger.Warnf("Product for source '%d' not found", id)
	}
	return value.Map(data)
}

// SourceEditGet lists the editable properties of every live repository.
func (p *PkgFunctions) SourceEditGet() value.Value {
	vars := p.repos.Vars()
	var out []value.Value
	for i, r := range p.collection {
		if r.Deleted() {
			continue
		}
		out = append(out, value.Map(map[string]value.Value{
			"SrcId":        value.Int(int64(i)),
			"enabled":      value.Bool(r.info.Enabled),
			"autorefresh":  value.Bool(r.info.Autorefresh),
			"name":         value.String(vars.Expand(r.info.Name)),
			"raw_name":     value.String(r.info.Name),
			"priority":     value.Int(int64(r.info.Priority)),
			"service":      value.String(r.info.Service),
			"keeppackages": value.Bool(r.info.KeepPackages),
		}))
	}
	return value.List(out...)
}

// SourceEditSet applies the properties of SourceEditGet style maps. It
// returns false when any entry was invalid; valid entries still apply.
func (p *PkgFunctions) SourceEditSet(items []value.Value) bool {
	ok := true
	for _, item := range items {
		m, isMap := item.AsMap()
		if !isMap {
			log.Logger.Errorf("SourceEditSet: %s is not a map", item)
			ok = false
			continue
		}
		id, hasID := m["SrcId"].AsInt()
		if !hasID {
			log.Logger.Errorf("SourceEditSet: missing SrcId in %s", item)
			p.lastErr.Set("Missing SrcId", fmt.Sprint(item))
			ok = false
			continue
		}
		r := p.logFindRepository(id)
		if r == nil {
			ok = false
			continue
		}

		if b, isBool := m["enabled"].AsBool(); isBool {
			r.info.Enabled = b
		}
		if b, isBool := m["autorefresh"].AsBool(); isBool {
			r.info.Autorefresh = b
		}
		if s, isString := m["name"].AsString(); isString {
			r.info.Name = s
		}
		if prio, isInt := m["priority"].AsInt(); isInt {
			p.setPriority(r, int(prio))
		}
		if b, isBool := m["keeppackages"].AsBool(); isBool {
			r.info.KeepPackages = b
		}
	}
	return ok
}

func (p *PkgFunctions) SourceSetAutorefresh(id int64, autorefresh bool) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	r.info.Autorefresh = autorefresh
	return true
}

func (p *PkgFunctions) setPriority(r *YRepo, prio int) {
	r.info.Priority = repo.ClampPriority(prio)
	p.pool.SetRepoPriority(r.Alias(), r.info.Priority)
}

// SourceSetPriority sets the priority of id, bounded to 1..99.
func (p *PkgFunctions) SourceSetPriority(id, prio int64) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	p.setPriority(r, int(prio))
	return true
}

// SourceRaisePriority moves id one step towards the highest priority 1.
func (p *PkgFunctions) SourceRaisePriority(id int64) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	p.setPriority(r, r.info.Priority-1)
	return true
}

func (p *PkgFunctions) SourceLowerPriority(id int64) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	p.setPriority(r, r.info.Priority+1)
	return true
}

// SourceChangeUrl replaces the first base URL of id.
func (p *PkgFunctions) SourceChangeUrl(id int64, url string) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	if url == "" || media.Scheme(url) == "" {
		p.lastErr.Set("Invalid URL", url)
		return false
	}
	info := r.info
	info.BaseURLs = append([]string{url}, tail(info.BaseURLs)...)
	r.setInfo(info)
	log.Logger.Infof("Changed URL of %s to %s", r.Alias(), media.HidePassword(url))
	return true
}

func tail(s []string) []string {
	if len(s) < 2 {
		return nil
	}
	return append([]string(nil), s[1:]...)
}

// RepositoryProbe returns the legacy type name of the repository at url.
func (p *PkgFunctions) RepositoryProbe(ctx context.Context, url, productDir string) value.Value {
	t, err := p.probeWithCallbacks(ctx, url, productDir)
	if err != nil {
		p.fail("RepositoryProbe", err)
		return value.Nil()
	}
	return value.String(t.LegacyName())
}
