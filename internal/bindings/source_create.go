package bindings

import (
	"bufio"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"pkgbind/internal/callback"
	"pkgbind/internal/log"
	"pkgbind/internal/utils"
	"pkgbind/internal/value"
	"pkgbind/pkg/keyring"
	"pkgbind/pkg/media"
	"pkgbind/pkg/repo"
)

const createHelp = "Adding the repository: searching the products, downloading the metadata and loading the resolvables."

// productsFile lists "<dir> <name>" per product on multi product media.
const productsFile = "media.1/products"

type mediaProduct struct {
	Dir  string
	Name string
}

// removeAlias strips an alias=NAME query parameter from raw.
func removeAlias(raw string) (alias, cleaned string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw
	}
	q := u.Query()
	alias = q.Get("alias")
	if alias == "" {
		return "", raw
	}
	q.Del("alias")
	u.RawQuery = q.Encode()
	return alias, u.String()
}

// scanProducts reads the product list of the medium at raw. Media without
// a list yield nothing.
func (p *PkgFunctions) scanProducts(ctx context.Context, raw string) ([]mediaProduct, error) {
	p.callInitDownload(ctx, "Scanning products in "+media.HidePassword(raw))
	defer p.callDestDownload(ctx)

	access, err := media.Open(raw, p.mediaOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	defer access.Release()

	path, err := access.ProvideFile(ctx, 1, productsFile)
	if errors.Cause(err) == media.ErrFileNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "read product list")
	}
	defer f.Close()

	var products []mediaProduct
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		prod := mediaProduct{Dir: fields[0]}
		if len(fields) > 1 {
			prod.Name = strings.Join(fields[1:], " ")
		}
		products = append(products, prod)
	}
	return products, scanner.Err()
}

// SourceCreate adds the repository at mediaURL, probing its type, and
// loads its resolvables. Without productDir every product listed on the
// medium becomes a repository; the index of the first is returned, -1 on
// failure.
func (p *PkgFunctions) SourceCreate(ctx context.Context, mediaURL, productDir string) int64 {
	return p.sourceCreate(ctx, mediaURL, productDir, false, "", false)
}

// SourceCreateBase is SourceCreate for the medium of the base product.
func (p *PkgFunctions) SourceCreateBase(ctx context.Context, mediaURL, productDir string) int64 {
	return p.sourceCreate(ctx, mediaURL, productDir, true, "", false)
}

// SourceCreateType is SourceCreate with a known type, skipping the probe.
func (p *PkgFunctions) SourceCreateType(ctx context.Context, mediaURL, productDir, repoType string) int64 {
	return p.sourceCreate(ctx, mediaURL, productDir, false, repoType, false)
}

// SourceScan registers the products of a medium without loading them and
// returns their indices.
func (p *PkgFunctions) SourceScan(ctx context.Context, mediaURL, productDir string) value.Value {
	before := len(p.collection)
	if p.sourceCreate(ctx, mediaURL, productDir, false, "", true) < 0 {
		return value.Nil()
	}
	var ids []int64
	for i := before; i < len(p.collection); i++ {
		ids = append(ids, int64(i))
	}
	return value.Ints(ids)
}

func (p *PkgFunctions) sourceCreate(ctx context.Context, mediaURL, productDir string, base bool, repoType string, scanOnly bool) int64 {
	if _, err := url.Parse(mediaURL); err != nil || media.Scheme(mediaURL) == "" {
		log.Logger.Errorf("Invalid URL: %s", media.HidePassword(mediaURL))
		p.lastErr.Set("Invalid URL", media.HidePassword(mediaURL))
		return -1
	}

	stages := []string{"Search Available Products"}
	if repoType == "" {
		stages = append(stages, "Probe Source Type")
	}
	stages = append(stages, "Download Descriptions", "Rebuild Cache")
	if !scanOnly {
		stages = append(stages, "Load Data")
	}
	progress := p.callbacks.StartProgress(ctx, "Adding the Repository...", stages, createHelp)
	defer progress.Done()

	products, err := p.scanProducts(ctx, mediaURL)
	if err != nil {
		if productDir == "" {
			p.fail("SourceCreate", errors.Wrap(err, "cannot read the product list from the media"))
			return -1
		}
		log.Logger.Warnf("Cannot read the product list from the media: %v", err)
	}

	var selected []mediaProduct
	if productDir == "" {
		selected = products
		if len(selected) == 0 {
			selected = []mediaProduct{{Dir: "/"}}
		}
	} else {
		prod := mediaProduct{Dir: productDir}
		for _, candidate := range products {
			if filepath.Clean("/"+candidate.Dir) == filepath.Clean("/"+productDir) {
				prod.Name = candidate.Name
			}
		}
		selected = []mediaProduct{prod}
	}
	progress.NextStage()

	var created []int64
	for _, prod := range selected {
		log.Logger.Infof("Using product %q in directory %s", prod.Name, prod.Dir)
		id, err := p.createManagedSource(ctx, mediaURL, prod.Dir, repoType, strings.ReplaceAll(prod.Name, " ", "-"))
		if err != nil {
			log.Logger.Errorf("SourceCreate for '%s' product '%s' has failed", media.HidePassword(mediaURL), prod.Dir)
			p.lastErr.SetError(err)
			return -1
		}
		created = append(created, id)
	}
	progress.NextStage()

	if !scanOnly {
		for _, id := range created {
			r := p.collection[id]
			if err := p.loadResolvables(ctx, r); err != nil {
				p.fail("SourceCreate", err)
				return -1
			}
			if base {
				log.Logger.Infof("Using %s as the base product repository", r.Alias())
			}
		}
	}
	return created[0]
}

// createManagedSource probes, refreshes and caches one repository and adds
// it to the collection.
func (p *PkgFunctions) createManagedSource(ctx context.Context, rawURL, productDir, repoType, productAlias string) (int64, error) {
	shown := value.String(media.HidePassword(rawURL))
	p.callbacks.Call(ctx, callback.SourceCreateStart, shown)
	id, err := p.addManagedSource(ctx, rawURL, productDir, repoType, productAlias)
	p.callbacks.Call(ctx, callback.SourceCreateEnd, shown, value.String(errorKind(err)), value.String(errorText(err)))
	return id, err
}

func (p *PkgFunctions) addManagedSource(ctx context.Context, rawURL, productDir, repoType, productAlias string) (int64, error) {
	log.Logger.Infof("Original URL: %s, product directory: %s", media.HidePassword(rawURL), productDir)
	alias, cleaned := removeAlias(rawURL)

	t := repo.ParseType(repoType)
	if repoType != "" && t == repo.TypeNone {
		log.Logger.Warnf("Unknown source type '%s'", repoType)
	}
	if t == repo.TypeNone {
		probed, err := p.probeWithCallbacks(ctx, cleaned, productDir)
		if err != nil {
			return -1, err
		}
		if probed == repo.TypeNone {
			return -1, errors.Wrap(repo.ErrUnknownType, media.HidePassword(cleaned))
		}
		t = probed
	}
	log.Logger.Infof("Using source type: %s", t)

	if alias == "" {
		alias = productAlias
	}
	if alias == "" {
		alias = utils.AliasFromURL(cleaned)
	}
	if !utils.IsValidAlias(alias) {
		return -1, errors.Wrap(repo.ErrInvalidAlias, alias)
	}
	name := alias
	alias = p.UniqueAlias(alias)

	info := repo.NewInfo(alias, cleaned)
	info.Name = name
	info.Type = t
	if productDir != "" {
		info.Path = productDir
	}
	if media.SchemeIsVolatile(media.Scheme(cleaned)) {
		log.Logger.Infof("Disabling autorefresh for CD/DVD repository")
		info.Autorefresh = false
	} else {
		info.Autorefresh = true
	}

	log.Logger.Infof("Adding source '%s' (%s, dir: %s)", alias, media.HidePassword(cleaned), info.Path)
	info, _, err := p.refreshWithCallbacks(ctx, info, true)
	if err != nil {
		return -1, err
	}
	if p.repos.IsCached(ctx, alias) {
		log.Logger.Infof("Removing cache for repository '%s'...", alias)
		if err := p.repos.CleanCache(alias); err != nil {
			return -1, err
		}
	}
	if err := p.repos.BuildCache(ctx, info, false); err != nil {
		return -1, err
	}
	return p.addToCollection(info), nil
}

// RepositoryAdd registers a repository from a map without refreshing it.
func (p *PkgFunctions) RepositoryAdd(params map[string]value.Value) value.Value {
	var urls []string
	if l, ok := params["base_urls"].AsList(); ok {
		for i, v := range l {
			s, isString := v.AsString()
			if !isString {
				log.Logger.Errorf("RepositoryAdd: entry not a string at index %d: %s", i, params["base_urls"])
				return value.Nil()
			}
			urls = append(urls, s)
		}
	} else if s, ok := params["base_url"].AsString(); ok {
		urls = []string{s}
	}
	if len(urls) == 0 {
		log.Logger.Errorf("Missing \"base_urls\" key in the map")
		p.lastErr.SetError(repo.ErrNoURL)
		return value.Nil()
	}

	info := repo.NewInfo("")
	info.Autorefresh = true
	var alias string
	for i, raw := range urls {
		if media.Scheme(raw) == "" {
			log.Logger.Errorf("Invalid URL: %s", media.HidePassword(raw))
			p.lastErr.Set("Invalid URL", media.HidePassword(raw))
			return value.Nil()
		}
		if a, cleaned := removeAlias(raw); a != "" {
			info.Name, alias = a, a
			urls[i] = cleaned
		}
	}
	info.BaseURLs = urls

	if b, ok := params["enabled"].AsBool(); ok {
		info.Enabled = b
	}
	if b, ok := params["autorefresh"].AsBool(); ok {
		info.Autorefresh = b
	}
	if b, ok := params["keeppackages"].AsBool(); ok {
		info.KeepPackages = b
	}
	if s, ok := params["alias"].AsString(); ok && s != "" {
		alias = s
	}

	if alias == "" {
		alias = p.UniqueAlias(utils.AliasFromURL(urls[0]))
	} else {
		if !utils.IsValidAlias(alias) {
			log.Logger.Errorf("Invalid repository alias %q", alias)
			p.lastErr.SetError(errors.Wrap(repo.ErrInvalidAlias, alias))
			return value.Nil()
		}
		checkAlias := true
		if b, ok := params["check_alias"].AsBool(); ok {
			checkAlias = b
		}
		if checkAlias && p.aliasExists(alias) {
			log.Logger.Errorf("alias %s already exists", alias)
			p.lastErr.SetError(errors.Wrap(repo.ErrRepoExists, alias))
			return value.Nil()
		}
		if !checkAlias {
			log.Logger.Infof("Skipping alias check (check_alias == false)")
		}
	}
	info.Alias = alias

	if s, ok := params["name"].AsString(); ok {
		info.Name = s
	} else if info.Name == "" {
		info.Name = urls[0]
	}
	if s, ok := params["type"].AsString(); ok {
		t := repo.ParseType(s)
		if t == repo.TypeNone && !strings.EqualFold(s, "NONE") {
			log.Logger.Errorf("Unknown source type '%s'", s)
			p.lastErr.SetError(errors.Wrap(repo.ErrUnknownType, s))
			return value.Nil()
		}
		info.Type = t
	}
	if s, ok := params["prod_dir"].AsString(); ok && s != "" {
		info.Path = s
	}
	if n, ok := params["priority"].AsInt(); ok {
		info.Priority = repo.ClampPriority(int(n))
	}
	if s, ok := params["mirror_list"].AsString(); ok {
		info.MirrorList = s
	}
	if s, ok := params["service"].AsString(); ok {
		info.Service = s
	}

	return value.Int(p.addToCollection(info))
}

// SourceSaveAll writes the collection to the repository directory.
// Deleted repositories lose their metadata, cache and definition.
func (p *PkgFunctions) SourceSaveAll(ctx context.Context) bool {
	log.Logger.Infof("Saving the source setup...")
	if len(p.collection) == 0 {
		log.Logger.Debugf("No repository defined, saving skipped")
		return true
	}

	var stages []string
	removed := 0
	for _, r := range p.collection {
		if r.Deleted() {
			removed++
		}
	}
	if removed > 0 {
		stages = append(stages, "Remove Repositories")
	}
	stages = append(stages, "Save Repositories")
	progress := p.callbacks.StartProgress(ctx, "Saving Repositories...", stages, "")
	defer progress.Done()

	var result *multierror.Error
	for _, r := range p.collection {
		if !r.Deleted() {
			continue
		}
		if !p.repos.HasRepository(r.Alias()) {
			log.Logger.Warnf("No such repository: %s", r.Alias())
			if err := p.repos.CleanMetadata(ctx, r.Alias()); err != nil {
				result = multierror.Append(result, err)
			}
			if err := p.repos.CleanCache(r.Alias()); err != nil {
				result = multierror.Append(result, err)
			}
			continue
		}
		log.Logger.Infof("Removing repository '%s'", r.Alias())
		if err := p.repos.RemoveRepository(ctx, r.Alias()); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "remove %s", r.Alias()))
		}
	}
	if removed > 0 {
		progress.NextStage()
	}

	for _, r := range p.collection {
		if r.Deleted() {
			continue
		}
		var (
			info repo.Info
			err  error
		)
		if p.repos.HasRepository(r.Alias()) {
			info, err = p.repos.ModifyRepository(r.Alias(), r.info)
		} else {
			log.Logger.Infof("Adding repository '%s'", r.Alias())
			info, err = p.repos.AddRepository(r.info)
		}
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "save %s", r.Alias()))
			continue
		}
		r.info = info
	}

	if err := result.ErrorOrNil(); err != nil {
		p.fail("SourceSaveAll", err)
		return false
	}
	return true
}

// SourceFinishAll saves the repositories and disables all of them.
func (p *PkgFunctions) SourceFinishAll(ctx context.Context) bool {
	enabled := false
	for _, r := range p.collection {
		if r.info.Enabled && !r.Deleted() {
			enabled = true
			break
		}
	}
	if !enabled {
		log.Logger.Infof("No enabled sources, skipping SourceFinishAll()")
		return true
	}

	ok := p.SourceSaveAll(ctx)
	log.Logger.Infof("Disabling all sources...")
	for _, r := range p.collection {
		r.info.Enabled = false
	}
	if ok {
		log.Logger.Infof("All sources have been saved and disabled")
	}
	return ok
}

// SourceReleaseAll releases the media of every repository.
func (p *PkgFunctions) SourceReleaseAll() bool {
	if err := p.releaseAll(); err != nil {
		p.fail("SourceReleaseAll", err)
		return false
	}
	return true
}

func (p *PkgFunctions) releaseAll() error {
	var result *multierror.Error
	for _, r := range p.collection {
		if err := r.release(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "release %s", r.Alias()))
		}
	}
	return result.ErrorOrNil()
}

// sourceMedia returns the media handle of id, reporting downloads through
// the callbacks.
func (p *PkgFunctions) sourceMedia(id int64) (*YRepo, *media.Access) {
	r := p.logFindRepository(id)
	if r == nil {
		return nil, nil
	}
	access, err := r.mediaAccess(p.repos, p.mediaOptions(context.Background())...)
	if err != nil {
		p.lastErr.SetWithPrefix(r.Alias(), err)
		return nil, nil
	}
	return r, access
}

// SourceProvideFile provides file of medium nr of id and returns the local
// path. The optional variant does not touch the last error.
func (p *PkgFunctions) SourceProvideFile(ctx context.Context, id, nr int64, file string) value.Value {
	return p.provideFile(ctx, id, nr, file, false)
}

func (p *PkgFunctions) SourceProvideOptionalFile(ctx context.Context, id, nr int64, file string) value.Value {
	return p.provideFile(ctx, id, nr, file, true)
}

func (p *PkgFunctions) provideFile(ctx context.Context, id, nr int64, file string, optional bool) value.Value {
	r, access := p.sourceMedia(id)
	if access == nil {
		return value.Nil()
	}
	report := p.startSourceReport(ctx, id, r.info.URL(), "Downloading file...")

	var path string
	var err error
	for {
		path, err = access.ProvideFile(ctx, int(nr), file)
		if err == nil || optional || !report.retry(err, r.info.Name, nr) {
			break
		}
		log.Logger.Infof("Retrying %s from %s", file, r.Alias())
	}
	report.end(err)
	if err != nil {
		if optional {
			log.Logger.Infof("Optional file %s not found on %s: %v", file, r.Alias(), err)
			return value.Nil()
		}
		log.Logger.Errorf("Pkg::SourceProvideFile %d/%s failed: %v", nr, file, err)
		p.lastErr.SetWithPrefix(r.Alias(), err)
		return value.Nil()
	}
	return value.String(path)
}

// SourceProvideSignedFile provides file like SourceProvideFile and checks
// its detached signature file.asc against the trusted keys. A missing
// signature is an error for repositories with gpgcheck.
func (p *PkgFunctions) SourceProvideSignedFile(ctx context.Context, id, nr int64, file string, optional bool) value.Value {
	path := p.provideFile(ctx, id, nr, file, optional)
	local, ok := path.AsString()
	if !ok {
		return path
	}
	r, access := p.sourceMedia(id)
	if access == nil {
		return value.Nil()
	}
	if err := p.verifyFile(ctx, r, access, int(nr), file, local); err != nil {
		log.Logger.Errorf("Pkg::SourceProvideSignedFile %d/%s failed: %v", nr, file, err)
		p.lastErr.SetWithPrefix(r.Alias(), err)
		return value.Nil()
	}
	return path
}

func (p *PkgFunctions) verifyFile(ctx context.Context, r *YRepo, access *media.Access, nr int, file, local string) error {
	sigPath, err := access.ProvideFile(ctx, nr, file+".asc")
	if err != nil {
		if r.info.GPGCheck {
			return errors.Wrapf(repo.ErrBadSignature, "%s is not signed", file)
		}
		log.Logger.Warnf("File %s of %s is not signed", file, r.Alias())
		return nil
	}
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return errors.Wrapf(err, "read %s", sigPath)
	}
	f, err := os.Open(local)
	if err != nil {
		return errors.Wrapf(err, "open %s", local)
	}
	defer f.Close()

	signer, err := p.keyring.Verify(f, sig)
	switch {
	case err == nil:
		log.Logger.Infof("File %s signed by %s (%s)", file, signer.ID, signer.Name)
		return nil
	case errors.Cause(err) == keyring.ErrUnknownKey && p.acceptUnknownKey(r.Alias(), file, signer.ID):
		log.Logger.Warnf("Using %s signed by unknown key %s", file, signer.ID)
		return nil
	}
	return errors.Wrapf(repo.ErrBadSignature, "%s: %v", file, err)
}

// SourceProvideDirectory provides dir of medium nr of id.
func (p *PkgFunctions) SourceProvideDirectory(ctx context.Context, id, nr int64, dir string, optional, recursive bool) value.Value {
	r, access := p.sourceMedia(id)
	if access == nil {
		return value.Nil()
	}
	report := p.startSourceReport(ctx, id, r.info.URL(), "Downloading directory...")

	var path string
	var err error
	for {
		path, err = access.ProvideDir(ctx, int(nr), dir, recursive)
		if err == nil || optional || !report.retry(err, r.info.Name, nr) {
			break
		}
	}
	report.end(err)
	if err != nil {
		if !optional {
			log.Logger.Errorf("Pkg::SourceProvideDirectory %d/%s failed: %v", nr, dir, err)
			p.lastErr.SetWithPrefix(r.Alias(), err)
		}
		return value.Nil()
	}
	return value.String(path)
}

// SourceCacheCopyTo copies the raw metadata of all stored repositories
// into the same cache location below dir.
func (p *PkgFunctions) SourceCacheCopyTo(ctx context.Context, dir string) bool {
	rel, err := filepath.Rel(p.cfg.Root, p.cfg.Storage.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(p.cfg.Storage.Path)
	}
	dest := filepath.Join(dir, rel)
	n, err := p.repos.CopyRawCache(ctx, dest)
	if err != nil {
		p.fail("SourceCacheCopyTo", err)
		return false
	}
	log.Logger.Infof("Copied %d raw metadata files to %s", n, dest)
	return true
}
