package bindings

import (
	"sort"

	"pkgbind/internal/callback"
	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
)

func (p *PkgFunctions) LastError() string        { return p.lastErr.Message() }
func (p *PkgFunctions) LastErrorDetails() string { return p.lastErr.Details() }

// SetCallback registers handler for id; an empty handler unregisters.
func (p *PkgFunctions) SetCallback(id callback.ID, handler string) {
	p.callbacks.Set(id, handler)
}

// CompareVersions compares two editions, returning -1, 0 or 1.
func (p *PkgFunctions) CompareVersions(a, b string) int64 {
	switch c := pool.CompareStrings(a, b); {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

// GetArchitecture returns the architecture packages are selected for.
func (p *PkgFunctions) GetArchitecture() string { return p.pool.Arch() }

// SystemArchitecture returns the architecture of the running machine.
func (p *PkgFunctions) SystemArchitecture() string { return pool.SystemArch() }

func (p *PkgFunctions) UrlKnownSchemes() value.Value {
	schemes := media.KnownSchemes()
	sort.Strings(schemes)
	return value.Strings(schemes)
}

func (p *PkgFunctions) UrlSchemeIsRemote(scheme string) bool { return media.SchemeIsRemote(scheme) }
func (p *PkgFunctions) UrlSchemeIsLocal(scheme string) bool  { return media.SchemeIsLocal(scheme) }

// UrlSchemeIsVolatile reports removable media such as cd or dvd.
func (p *PkgFunctions) UrlSchemeIsVolatile(scheme string) bool { return media.SchemeIsVolatile(scheme) }

func (p *PkgFunctions) UrlSchemeIsDownloading(scheme string) bool {
	return media.SchemeIsDownloading(scheme)
}

// ExpandedUrl replaces the repository variables in url.
func (p *PkgFunctions) ExpandedUrl(url string) string {
	return p.repos.Vars().Expand(url)
}

func (p *PkgFunctions) ExpandedName(name string) string {
	return p.repos.Vars().Expand(name)
}

// Connect always succeeds, the engine runs in process.
func (p *PkgFunctions) Connect() bool {
	log.Logger.Debugf("Connect")
	return true
}
