package bindings

import (
	"context"
	"fmt"

	"pkgbind/internal/callback"
	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/media"
	"pkgbind/pkg/repo"
)

// YRepo is one repository of the collection. A deleted handle keeps its
// index but is never handed out again.
type YRepo struct {
	info    repo.Info
	access  *media.Access
	deleted bool
}

func NewYRepo(info repo.Info) *YRepo {
	return &YRepo{info: info}
}

func (r *YRepo) Info() repo.Info { return r.info }
func (r *YRepo) Alias() string   { return r.info.Alias }
func (r *YRepo) Deleted() bool   { return r.deleted }

// setInfo replaces the repository data; a changed URL drops the media
// handle.
func (r *YRepo) setInfo(info repo.Info) {
	if info.URL() != r.info.URL() {
		if err := r.release(); err != nil {
			log.Logger.Warnf("Cannot release the media of %s: %v", r.Alias(), err)
		}
	}
	r.info = info
}

// markDeleted flags r and releases its media. The flag is set even when
// the release fails.
func (r *YRepo) markDeleted() error {
	r.deleted = true
	return r.release()
}

// mediaAccess opens the media of the repository on first use.
func (r *YRepo) mediaAccess(m *repo.Manager, opts ...media.Option) (*media.Access, error) {
	if r.access != nil {
		return r.access, nil
	}
	access, err := m.Open(r.info, opts...)
	if err != nil {
		return nil, err
	}
	r.access = access
	return access, nil
}

func (r *YRepo) release() error {
	if r.access == nil {
		return nil
	}
	err := r.access.Release()
	r.access = nil
	return err
}

// logFindRepository returns the live repository with index id or sets the
// last error.
func (p *PkgFunctions) logFindRepository(id int64) *YRepo {
	if id >= 0 && id < int64(len(p.collection)) && !p.collection[id].Deleted() {
		return p.collection[id]
	}
	log.Logger.Errorf("Cannot find source with ID %d", id)
	p.lastErr.Set("Cannot find source", fmt.Sprintf("Invalid source ID %d", id))
	return nil
}

// logFindAlias returns the index of the live repository alias or -1.
func (p *PkgFunctions) logFindAlias(alias string) int64 {
	for i, r := range p.collection {
		if !r.Deleted() && r.Alias() == alias {
			return int64(i)
		}
	}
	return -1
}

// aliasExists checks the live collection and the stored repositories.
func (p *PkgFunctions) aliasExists(alias string) bool {
	if p.logFindAlias(alias) >= 0 {
		return true
	}
	return p.repos.HasRepository(alias)
}

// UniqueAlias returns alias, or alias with the first free _N suffix.
func (p *PkgFunctions) UniqueAlias(alias string) string {
	if !p.aliasExists(alias) {
		return alias
	}
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("%s_%d", alias, i)
		if !p.aliasExists(candidate) {
			return candidate
		}
	}
}

// addToCollection appends r and returns its index.
func (p *PkgFunctions) addToCollection(info repo.Info) int64 {
	p.collection = append(p.collection, NewYRepo(info))
	p.live.Add(1)
	p.pool.SetRepoPriority(info.Alias, info.Priority)
	return int64(len(p.collection) - 1)
}

func (p *PkgFunctions) callInitDownload(ctx context.Context, task string) {
	p.callbacks.Call(ctx, callback.InitDownload, value.String(task))
}

func (p *PkgFunctions) callDestDownload(ctx context.Context) {
	p.callbacks.Call(ctx, callback.DestDownload)
}

// refreshWithCallbacks frames a metadata refresh by the download task
// callbacks, also when it fails.
func (p *PkgFunctions) refreshWithCallbacks(ctx context.Context, info repo.Info, force bool) (repo.Info, bool, error) {
	p.callInitDownload(ctx, "Refreshing repository "+info.Alias)
	defer p.callDestDownload(ctx)
	return p.repos.RefreshMetadata(ctx, info, force, p.mediaOptions(ctx)...)
}

func (p *PkgFunctions) probeWithCallbacks(ctx context.Context, url, productDir string) (repo.Type, error) {
	p.callInitDownload(ctx, "Probing repository "+media.HidePassword(url))
	defer p.callDestDownload(ctx)

	p.callbacks.Call(ctx, callback.SourceProbeStart, value.String(media.HidePassword(url)))
	t, err := p.repos.Probe(ctx, url, productDir, p.mediaOptions(ctx)...)
	p.callbacks.Call(ctx, callback.SourceProbeEnd, value.String(media.HidePassword(url)),
		value.String(errorKind(err)), value.String(t.LegacyName()))
	return t, err
}

func (p *PkgFunctions) mediaOptions(ctx context.Context) []media.Option {
	return []media.Option{media.WithReport(&downloadReport{ctx: ctx, callbacks: p.callbacks})}
}

// downloadReport forwards media download progress to the download
// callbacks.
type downloadReport struct {
	ctx       context.Context
	callbacks *callback.Registry
}

func (d *downloadReport) Start(url, dest string) {
	d.callbacks.Call(d.ctx, callback.StartDownload, value.String(media.HidePassword(url)), value.String(dest))
}

func (d *downloadReport) Progress(percent int) bool {
	return d.callbacks.CallBool(d.ctx, true, callback.ProgressDownload,
		value.Int(int64(percent)), value.Int(-1), value.Int(-1))
}

func (d *downloadReport) Done(err error) {
	code, reason := int64(0), ""
	if err != nil {
		code, reason = 1, err.Error()
	}
	d.callbacks.Call(d.ctx, callback.DoneDownload, value.Int(code), value.String(reason))
}
