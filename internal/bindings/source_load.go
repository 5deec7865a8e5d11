package bindings

import (
	"context"

	"github.com/pkg/errors"

	"pkgbind/internal/callback"
	"pkgbind/internal/log"
	"pkgbind/pkg/media"
)

const refreshHelp = "Refreshing the repository metadata and rebuilding the cache."

// SourceStartManager restores the stored repositories and loads their
// resolvables when enable is true.
func (p *PkgFunctions) SourceStartManager(ctx context.Context, enable bool) bool {
	if !p.SourceRestore(ctx) {
		return false
	}
	if enable {
		return p.SourceLoad(ctx)
	}
	return true
}

// SourceRestore reads the stored repositories into the collection. It is
// a no-op when repositories are already known.
func (p *PkgFunctions) SourceRestore(ctx context.Context) bool {
	if len(p.collection) > 0 {
		log.Logger.Warnf("Repositories are already loaded, not restoring them")
		return true
	}

	progress := p.callbacks.StartProgress(ctx, "Loading the Repositories", []string{"Read Repositories"}, "")
	defer progress.Done()

	infos, err := p.repos.KnownRepositories()
	if err != nil {
		p.fail("SourceRestore", err)
		return false
	}
	for _, info := range infos {
		p.addToCollection(info)
	}
	log.Logger.Infof("Restored %d repositories", len(infos))
	return true
}

// SkipRefresh stops autorefreshing the remaining repositories of a
// running SourceLoad.
func (p *PkgFunctions) SkipRefresh() {
	log.Logger.Infof("Skipping the autorefresh of the remaining repositories")
	p.skipRefresh.Store(true)
}

// SourceLoad refreshes, caches and loads every enabled repository that has
// no resolvables in the pool yet.
func (p *PkgFunctions) SourceLoad(ctx context.Context) bool {
	progress := p.callbacks.StartProgress(ctx, "Loading the Package Manager",
		[]string{"Refresh Sources", "Rebuild Cache", "Load Data"}, refreshHelp)
	defer progress.Done()
	return p.sourceLoad(ctx, progress)
}

func (p *PkgFunctions) toLoad() []*YRepo {
	var out []*YRepo
	for _, r := range p.collection {
		if r.Deleted() || !r.info.Enabled {
			continue
		}
		if p.pool.AnyFrom(r.Alias()) {
			log.Logger.Infof("Resolvables from '%s' are already present, not loading", r.Alias())
			continue
		}
		out = append(out, r)
	}
	return out
}

func (p *PkgFunctions) sourceLoad(ctx context.Context, progress *callback.Progress) bool {
	success := true
	p.skipRefresh.Store(false)
	p.callbacks.Call(ctx, callback.StartSourceRefresh)

	online := p.online()
	repos := p.toLoad()
	for i, r := range repos {
		if i > 0 && !progress.Update(100*i/len(repos)) {
			p.fail("SourceLoad", errors.Wrap(media.ErrAborted, "repository refresh"))
			return false
		}
		status := p.repos.MetadataStatus(ctx, r.Alias())
		if !r.info.Autorefresh && !status.Empty() {
			continue
		}
		if !online && media.IsRemote(r.info.URL()) {
			log.Logger.Warnf("No network connection, skipping autorefresh of remote repository %s (%s)",
				r.Alias(), media.HidePassword(r.info.URL()))
			continue
		}

		log.Logger.Infof("Autorefreshing source: %s", r.Alias())
		info, _, err := p.refreshWithCallbacks(ctx, r.info, false)
		switch {
		case p.skipRefresh.Load():
			log.Logger.Warnf("Autorefresh skipped, ignoring %v", err)
		case err != nil:
			p.fail("SourceLoad", err)
			success = false
		default:
			r.setInfo(info)
		}
		if p.skipRefresh.Load() {
			log.Logger.Warnf("Skipping autorefresh for the rest of repositories")
			break
		}
	}
	progress.NextStage()

	for _, r := range repos {
		if p.repos.MetadataStatus(ctx, r.Alias()).Empty() {
			log.Logger.Errorf("Missing metadata of %s, not rebuilding the cache", r.Alias())
			continue
		}
		log.Logger.Infof("Rebuilding cache for '%s'...", r.Alias())
		if err := p.repos.BuildCache(ctx, r.info, false); err != nil {
			p.fail("SourceLoad", err)
			success = false
		}
	}
	p.callbacks.Call(ctx, callback.DoneSourceRefresh)
	progress.NextStage()

	for _, r := range repos {
		if p.repos.MetadataStatus(ctx, r.Alias()).Empty() {
			continue
		}
		if err := p.loadResolvables(ctx, r); err != nil {
			p.fail("SourceLoad", err)
			success = false
		}
	}
	return success
}

// loadResolvables adds the cached resolvables of r to the pool.
func (p *PkgFunctions) loadResolvables(ctx context.Context, r *YRepo) error {
	rs, err := p.repos.Load(ctx, r.info)
	if err != nil {
		return errors.Wrapf(err, "load %s", r.Alias())
	}
	p.pool.SetRepoPriority(r.Alias(), r.info.Priority)
	p.applyLocks(p.pool.Add(rs))
	log.Logger.Infof("Loaded %d resolvables from %s", len(rs), r.Alias())
	return nil
}

// SourceRefreshNow refreshes the metadata of id if it changed and rebuilds
// the cache. SourceForceRefreshNow downloads unconditionally.
func (p *PkgFunctions) SourceRefreshNow(ctx context.Context, id int64) bool {
	return p.sourceRefresh(ctx, id, false)
}

func (p *PkgFunctions) SourceForceRefreshNow(ctx context.Context, id int64) bool {
	return p.sourceRefresh(ctx, id, true)
}

func (p *PkgFunctions) sourceRefresh(ctx context.Context, id int64, force bool) bool {
	log.Logger.Infof("Forced refresh: %v", force)
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}

	progress := p.callbacks.StartProgress(ctx, "Refreshing Repository...",
		[]string{"Refresh Metadata", "Rebuild Cache"}, refreshHelp)
	defer progress.Done()

	report := p.startSourceReport(ctx, id, r.info.URL(), "Refreshing repository...")
	err := p.refreshAndCache(ctx, r, force, report, progress)
	report.end(err)
	switch {
	case errors.Cause(err) == errIgnored:
		log.Logger.Warnf("Refresh of %s failed, using the old metadata", r.Alias())
		return true
	case err != nil:
		log.Logger.Errorf("Error while refreshing the source: %v", err)
		p.lastErr.SetWithPrefix(r.Alias(), err)
		return false
	}
	return true
}

// errIgnored marks a refresh failure the host chose to ignore.
var errIgnored = errors.New("refresh failure ignored")

func (p *PkgFunctions) refreshAndCache(ctx context.Context, r *YRepo, force bool, report *sourceReport, progress *callback.Progress) error {
	for {
		info, _, err := p.refreshWithCallbacks(ctx, r.info, force)
		if err == nil {
			r.setInfo(info)
			break
		}
		switch report.problem(err) {
		case answerRetry:
			log.Logger.Infof("Retrying the refresh of %s", r.Alias())
			continue
		case answerIgnore:
			return errors.Wrap(errIgnored, err.Error())
		}
		return err
	}
	if !report.progress(50) {
		return errors.Wrap(media.ErrAborted, r.Alias())
	}
	progress.NextStage()

	log.Logger.Infof("Caching source '%s'...", r.Alias())
	return p.repos.BuildCache(ctx, r.info, force)
}

// SourceSetEnabled enables or disables id. Enabling loads the resolvables
// when none are present, disabling removes them from the pool.
func (p *PkgFunctions) SourceSetEnabled(ctx context.Context, id int64, enabled bool) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	r.info.Enabled = enabled

	if !enabled {
		p.pool.RemoveRepo(r.Alias())
		return true
	}
	if p.pool.AnyFrom(r.Alias()) {
		return true
	}

	if p.repos.MetadataStatus(ctx, r.Alias()).Empty() {
		info, _, err := p.refreshWithCallbacks(ctx, r.info, false)
		if err != nil {
			p.lastErr.SetWithPrefix(r.Alias(), err)
			return false
		}
		r.setInfo(info)
	}
	report := p.startSourceReport(ctx, id, r.info.URL(), "Parsing files...")
	var err error
	if report.progress(0) {
		err = p.loadResolvables(ctx, r)
	} else {
		err = errors.Wrap(media.ErrAborted, r.Alias())
	}
	report.end(err)
	if err != nil {
		p.fail("SourceSetEnabled", err)
		return false
	}
	return true
}

// SourceDelete removes the resolvables of id and marks it deleted. The
// stored definition goes away with SourceSaveAll.
func (p *PkgFunctions) SourceDelete(_ context.Context, id int64) bool {
	r := p.logFindRepository(id)
	if r == nil {
		return false
	}
	n := p.pool.RemoveRepo(r.Alias())
	if err := r.markDeleted(); err != nil {
		log.Logger.Warnf("Cannot release the media of %s: %v", r.Alias(), err)
	}
	p.live.Add(-1)
	log.Logger.Infof("Deleted repository %s (%d resolvables removed)", r.Alias(), n)
	return true
}
