// Package bindings implements the package management builtins. Every
// builtin unpacks its scripting arguments, delegates to the engine
// packages and repacks the result; failures are reported through the
// last error and a nil or false result.
package bindings

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v4/net"

	"pkgbind/internal/callback"
	"pkgbind/internal/config"
	"pkgbind/internal/log"
	"pkgbind/internal/pkgerr"
	"pkgbind/internal/value"
	"pkgbind/pkg/du"
	"pkgbind/pkg/keyring"
	"pkgbind/pkg/locks"
	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/repo"
	"pkgbind/pkg/storage"
	"pkgbind/pkg/target"
)

type PkgFunctions struct {
	cfg       *config.Config
	repos     *repo.Manager
	pool      *pool.Pool
	du        *du.Counter
	keyring   *keyring.Keyring
	target    *target.Target
	callbacks *callback.Registry
	lastErr   pkgerr.LastError

	// targetLoaded is set once the installed resolvables are in the pool.
	targetLoaded bool
	collection   []*YRepo
	locks        []*locks.Query
	locales      locales
	// live counts the non deleted repositories for readers that must not
	// wait for the registry lock.
	live atomic.Int64
	// skipRefresh is set by SkipRefresh while SourceLoad runs.
	skipRefresh atomic.Bool
	online      func() bool
}

// New opens the raw metadata storage and the keyring configured in cfg.
// A nil callback registry disables all callbacks.
func New(cfg *config.Config, callbacks *callback.Registry) (*PkgFunctions, error) {
	raw, err := storage.Create(storage.StorageType(cfg.Storage.Type), cfg.Storage.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open raw metadata storage")
	}
	kr, err := keyring.New(cfg.KeyringDir)
	if err != nil {
		if cerr := raw.Close(); cerr != nil {
			log.Logger.Warnf("Cannot close raw metadata storage: %v", cerr)
		}
		return nil, err
	}
	if callbacks == nil {
		callbacks = callback.NewRegistry(nil)
	}

	p := &PkgFunctions{
		cfg:       cfg,
		pool:      pool.New(cfg.Arch),
		du:        du.NewCounter(),
		keyring:   kr,
		callbacks: callbacks,
		online:    networkDetected,
		locales:   locales{text: envLocale()},
	}
	p.loadLocks()
	arch := p.pool.Arch()
	p.repos = repo.NewManager(repo.Options{
		ReposDir:         cfg.ReposDir,
		CacheDir:         cfg.CacheDir,
		Raw:              raw,
		Keyring:          kr,
		Vars:             media.Vars{ReleaseVer: cfg.ReleaseVer, BaseArch: baseArch(arch), Arch: arch},
		AcceptKey:        p.acceptKey,
		AcceptUnknownKey: p.acceptUnknownKey,
	})
	log.Logger.Infof("Package bindings initialized (arch %s, repos %s)", arch, p.repos.ReposDir())
	return p, nil
}

// Repositories returns the number of live repositories. It is safe to
// call while a builtin runs.
func (p *PkgFunctions) Repositories() int { return int(p.live.Load()) }

// Callbacks returns the registry the Callback* builtins write to.
func (p *PkgFunctions) Callbacks() *callback.Registry { return p.callbacks }

// Close releases all media, closes the target store and the raw storage.
func (p *PkgFunctions) Close() error {
	var result *multierror.Error
	if err := p.releaseAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if p.target != nil {
		if err := p.target.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		p.target = nil
	}
	if err := p.repos.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// fail stores err as the last error and logs it.
func (p *PkgFunctions) fail(op string, err error) {
	log.Logger.Errorf("%s failed: %v", op, err)
	p.lastErr.SetError(err)
}

// acceptKey asks the host whether a key shipped with a repository should
// be trusted.
func (p *PkgFunctions) acceptKey(alias string, key keyring.PublicKey) bool {
	accepted := p.callbacks.CallBool(context.Background(), false, callback.ImportGpgKey, GPGMap(key), value.String(alias))
	log.Logger.Infof("Key %s of %s accepted: %v", key.ID, alias, accepted)
	if accepted {
		p.callbacks.Call(context.Background(), callback.TrustedKeyAdded, GPGMap(key))
	}
	return accepted
}

// acceptUnknownKey asks the host whether metadata signed by a key that is
// not in the keyring may be used.
func (p *PkgFunctions) acceptUnknownKey(alias, file, keyID string) bool {
	accepted := p.callbacks.CallBool(context.Background(), false, callback.AcceptUnknownGpgKey,
		value.String(file), value.String(keyID), value.Int(p.logFindAlias(alias)))
	log.Logger.Infof("Unknown key %s signing %s of %s accepted: %v", keyID, file, alias, accepted)
	return accepted
}

func baseArch(arch string) string {
	switch {
	case arch == "i486" || arch == "i586" || arch == "i686" || arch == "athlon":
		return "i386"
	case strings.HasPrefix(arch, "armv7"):
		return "armv7hl"
	case strings.HasPrefix(arch, "armv6"):
		return "armv6hl"
	}
	return arch
}

// networkDetected reports whether any interface carries a non loopback
// IPv4 address.
func networkDetected() bool {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		log.Logger.Warnf("Cannot list network interfaces: %v", err)
		return false
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			if strings.Contains(addr.Addr, ":") || strings.HasPrefix(addr.Addr, "127.") {
				continue
			}
			log.Logger.Debugf("Network is running (%s %s)", iface.Name, addr.Addr)
			return true
		}
	}
	log.Logger.Infof("Network is not running")
	return false
}
