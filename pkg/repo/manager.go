// Package repo manages configured repositories: the stored .repo
// definitions, the raw metadata downloaded on refresh and the parsed
// resolvable cache built from it.
package repo

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pkgbind/internal/cache"
	"pkgbind/internal/log"
	"pkgbind/internal/utils"
	"pkgbind/pkg/keyring"
	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/storage"
)

var (
	ErrRepoNotFound = errors.New("repository not found")
	ErrRepoExists   = errors.New("repository already exists")
	ErrInvalidAlias = errors.New("invalid repository alias")
	ErrUnknownType  = errors.New("unknown repository type")
	ErrNoURL        = errors.New("repository has no base URL")
	ErrNotCached    = errors.New("repository metadata not cached")
	ErrBadSignature = errors.New("repository signature verification failed")
)

// RefreshDelay is the time an autorefresh skips a recently refreshed
// repository.
const RefreshDelay = 10 * time.Minute

const cookieFile = "cookie"

// Status identifies a downloaded metadata revision.
type Status struct {
	Checksum  string
	Timestamp time.Time
}

func (s Status) Empty() bool { return s.Checksum == "" }

func (s Status) String() string {
	return s.Checksum + " " + strconv.FormatInt(s.Timestamp.Unix(), 10)
}

func parseStatus(data []byte) Status {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return Status{}
	}
	st := Status{Checksum: fields[0]}
	if len(fields) > 1 {
		if ts, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			st.Timestamp = time.Unix(ts, 0)
		}
	}
	return st
}

// Signed is implemented by backends whose metadata carries a detached
// signature. Paths are relative to the raw prefix.
type Signed interface {
	SignedFiles() (file, signature, key string)
}

// Options configure a Manager.
type Options struct {
	ReposDir string
	// CacheDir keeps the cookies of built caches.
	CacheDir string
	Raw      storage.Storage
	Keyring  *keyring.Keyring
	Vars     media.Vars
	// AcceptKey decides whether a key shipped with a repository becomes
	// trusted.
	AcceptKey func(alias string, key keyring.PublicKey) bool
	// AcceptUnknownKey decides whether metadata signed by a key that is
	// not in the keyring is used anyway.
	AcceptUnknownKey func(alias, file, keyID string) bool
	MediaOptions     []media.Option
}

type Manager struct {
	opts       Options
	cache      cache.Cache
	signatures map[string]*bool
	now        func() time.Time
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts:       opts,
		cache:      cache.NewMemoryCache(),
		signatures: make(map[string]*bool),
		now:        time.Now,
	}
}

// Close drops the parsed cache and the raw storage handle.
func (m *Manager) Close() error {
	m.cache.Close()
	if m.opts.Raw != nil {
		return m.opts.Raw.Close()
	}
	return nil
}

// checkAlias rejects aliases that cannot name a directory below the raw
// storage and the cache.
func checkAlias(alias string) error {
	if !utils.IsValidAlias(alias) {
		return errors.Wrap(ErrInvalidAlias, alias)
	}
	return nil
}

func (m *Manager) Vars() media.Vars { return m.opts.Vars }

func (m *Manager) SetVars(v media.Vars) { m.opts.Vars = v }

func (m *Manager) ReposDir() string { return m.opts.ReposDir }

// KnownRepositories returns the stored repositories sorted by alias.
func (m *Manager) KnownRepositories() ([]Info, error) {
	return readReposDir(m.opts.ReposDir)
}

func (m *Manager) GetRepositoryInfo(alias string) (Info, error) {
	infos, err := m.KnownRepositories()
	if err != nil {
		return Info{}, err
	}
	for _, info := range infos {
		if info.Alias == alias {
			return info, nil
		}
	}
	return Info{}, errors.Wrap(ErrRepoNotFound, alias)
}

func (m *Manager) HasRepository(alias string) bool {
	_, err := m.GetRepositoryInfo(alias)
	return err == nil
}

// AddRepository stores a new repository definition.
func (m *Manager) AddRepository(info Info) (Info, error) {
	if !utils.IsValidAlias(info.Alias) {
		return info, errors.Wrap(ErrInvalidAlias, info.Alias)
	}
	if m.HasRepository(info.Alias) {
		return info, errors.Wrap(ErrRepoExists, info.Alias)
	}
	info.File = filepath.Join(m.opts.ReposDir, info.Alias+".repo")
	if err := saveRepo(info, ""); err != nil {
		return info, err
	}
	log.Logger.Infof("Added repository %s (%s)", info.Alias, media.HidePassword(info.URL()))
	return info, nil
}

// ModifyRepository replaces the stored definition of alias by info,
// renaming it when the alias changed.
func (m *Manager) ModifyRepository(alias string, info Info) (Info, error) {
	old, err := m.GetRepositoryInfo(alias)
	if err != nil {
		return info, err
	}
	if info.Alias != alias {
		if !utils.IsValidAlias(info.Alias) {
			return info, errors.Wrap(ErrInvalidAlias, info.Alias)
		}
		if m.HasRepository(info.Alias) {
			return info, errors.Wrap(ErrRepoExists, info.Alias)
		}
	}
	info.File = old.File
	if err := saveRepo(info, alias); err != nil {
		return info, err
	}
	log.Logger.Debugf("Modified repository %s", alias)
	return info, nil
}

// RemoveRepository deletes the stored definition, the raw metadata and
// the cache of alias.
func (m *Manager) RemoveRepository(ctx context.Context, alias string) error {
	info, err := m.GetRepositoryInfo(alias)
	if err != nil {
		return err
	}
	if err := deleteRepo(info.File, alias); err != nil {
		return err
	}
	if err := m.CleanMetadata(ctx, alias); err != nil {
		log.Logger.Warnf("Cannot clean metadata of %s: %v", alias, err)
	}
	if err := m.CleanCache(alias); err != nil {
		log.Logger.Warnf("Cannot clean cache of %s: %v", alias, err)
	}
	log.Logger.Infof("Removed repository %s", alias)
	return nil
}

// MetadataStatus returns the revision of the raw metadata of alias.
func (m *Manager) MetadataStatus(ctx context.Context, alias string) Status {
	data, err := storage.ReadAll(ctx, m.opts.Raw, filepath.ToSlash(filepath.Join(alias, cookieFile)))
	if err != nil {
		return Status{}
	}
	return parseStatus(data)
}

// ValidSignature reports the signature state of the last refresh of
// alias: nil when unknown or unsigned.
func (m *Manager) ValidSignature(alias string) *bool { return m.signatures[alias] }

// Open creates media access for info.
func (m *Manager) Open(info Info, opts ...media.Option) (*media.Access, error) {
	if info.URL() == "" {
		return nil, errors.Wrap(ErrNoURL, info.Alias)
	}
	all := append(append([]media.Option{}, m.opts.MediaOptions...), opts...)
	return media.Open(info.ExpandedURL(m.opts.Vars), all...)
}

// Probe detects the repository type at url below productDir.
func (m *Manager) Probe(ctx context.Context, url, productDir string, opts ...media.Option) (Type, error) {
	info := NewInfo("probe", url)
	access, err := m.Open(info, opts...)
	if err != nil {
		return TypeNone, err
	}
	defer access.Release()

	if productDir == "" {
		productDir = "/"
	}
	for _, t := range probeOrder() {
		b := factory[t]
		if b.Probe(ctx, access, productDir) {
			log.Logger.Infof("Probed %s: %s", media.HidePassword(url), t)
			return t, nil
		}
	}
	log.Logger.Infof("Probed %s: no repository found", media.HidePassword(url))
	return TypeNone, nil
}

// RefreshMetadata downloads the raw metadata of info unless it is
// current. Without force a repository refreshed within RefreshDelay is
// left alone. It reports whether new metadata was stored and returns info
// with the detected type.
func (m *Manager) RefreshMetadata(ctx context.Context, info Info, force bool, opts ...media.Option) (Info, bool, error) {
	if err := checkAlias(info.Alias); err != nil {
		return info, false, err
	}
	if info.Type == TypeNone || info.Type == "" {
		t, err := m.Probe(ctx, info.URL(), info.Path, opts...)
		if err != nil {
			return info, false, err
		}
		if t == TypeNone {
			return info, false, errors.Wrap(ErrUnknownType, info.Alias)
		}
		info.Type = t
		if m.HasRepository(info.Alias) {
			if _, err := m.ModifyRepository(info.Alias, info); err != nil {
				log.Logger.Warnf("Cannot store type of %s: %v", info.Alias, err)
			}
		}
	}

	b, err := Lookup(info.Type)
	if err != nil {
		return info, false, err
	}
	access, err := m.Open(info, opts...)
	if err != nil {
		return info, false, err
	}
	defer access.Release()

	old := m.MetadataStatus(ctx, info.Alias)
	if !force && !old.Empty() {
		if m.now().Sub(old.Timestamp) < RefreshDelay {
			log.Logger.Debugf("Repository %s refreshed recently, skipping", info.Alias)
			return info, false, nil
		}
		sum, err := b.Checksum(ctx, access, info)
		if err != nil {
			return info, false, errors.Wrapf(err, "check %s", info.Alias)
		}
		if sum == old.Checksum {
			log.Logger.Debugf("Repository %s is up to date", info.Alias)
			return info, false, m.writeStatus(ctx, info.Alias, Status{Checksum: sum, Timestamp: m.now()})
		}
	}

	if err := m.opts.Raw.Delete(ctx, info.Alias); err != nil {
		return info, false, errors.Wrapf(err, "clean %s", info.Alias)
	}
	sum, err := b.Download(ctx, access, info, m.opts.Raw, info.Alias)
	if err != nil {
		m.opts.Raw.Delete(ctx, info.Alias)
		return info, false, errors.Wrapf(err, "download metadata of %s", info.Alias)
	}

	if err := m.verify(ctx, b, info); err != nil {
		m.opts.Raw.Delete(ctx, info.Alias)
		return info, false, err
	}
	if err := m.writeStatus(ctx, info.Alias, Status{Checksum: sum, Timestamp: m.now()}); err != nil {
		return info, false, err
	}
	log.Logger.Infof("Refreshed repository %s (%s)", info.Alias, sum)
	return info, true, nil
}

func (m *Manager) writeStatus(ctx context.Context, alias string, st Status) error {
	return m.opts.Raw.Store(ctx, filepath.ToSlash(filepath.Join(alias, cookieFile)), strings.NewReader(st.String()))
}

// verify checks the detached signature of signed metadata. Keys shipped
// with the repository are offered to AcceptKey first.
func (m *Manager) verify(ctx context.Context, b Backend, info Info) error {
	delete(m.signatures, info.Alias)
	signed, ok := b.(Signed)
	if !ok || m.opts.Keyring == nil {
		return nil
	}
	file, sigFile, keyFile := signed.SignedFiles()
	raw := func(name string) string { return filepath.ToSlash(filepath.Join(info.Alias, name)) }

	sig, err := storage.ReadAll(ctx, m.opts.Raw, raw(sigFile))
	if err != nil {
		log.Logger.Debugf("Repository %s is not signed", info.Alias)
		if info.GPGCheck {
			log.Logger.Warnf("Repository %s has gpgcheck enabled but no signature", info.Alias)
		}
		return nil
	}
	if keyData, err := storage.ReadAll(ctx, m.opts.Raw, raw(keyFile)); err == nil {
		m.offerKeys(info.Alias, keyData)
	}

	data, err := storage.ReadAll(ctx, m.opts.Raw, raw(file))
	if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}
	signer, err := m.opts.Keyring.Verify(bytes.NewReader(data), sig)
	valid := err == nil
	m.signatures[info.Alias] = &valid
	if errors.Cause(err) == keyring.ErrUnknownKey && m.opts.AcceptUnknownKey != nil &&
		m.opts.AcceptUnknownKey(info.Alias, file, signer.ID) {
		log.Logger.Warnf("Using %s signed by unknown key %s", info.Alias, signer.ID)
		return nil
	}
	if err != nil {
		if info.GPGCheck {
			return errors.Wrap(ErrBadSignature, info.Alias)
		}
		log.Logger.Warnf("Signature of %s not verified: %v", info.Alias, err)
		return nil
	}
	log.Logger.Infof("Repository %s signed by %s (%s)", info.Alias, signer.ID, signer.Name)
	return nil
}

// offerKeys asks AcceptKey about every untrusted key shipped with alias
// and imports exactly the accepted ones.
func (m *Manager) offerKeys(alias string, data []byte) {
	keys, err := keyring.ParseKeys(data)
	if err != nil {
		log.Logger.Warnf("Cannot read key shipped with %s: %v", alias, err)
		return
	}
	for _, key := range keys {
		if known, ok := m.opts.Keyring.Lookup(key.ID); ok && known.Trusted {
			continue
		}
		if m.opts.AcceptKey == nil || !m.opts.AcceptKey(alias, key) {
			log.Logger.Infof("Key %s of %s not accepted", key.ID, alias)
			continue
		}
		if _, err := m.opts.Keyring.ImportKey(key, true); err != nil {
			log.Logger.Warnf("Cannot import key %s: %v", key.ID, err)
		}
	}
}

func (m *Manager) cookiePath(alias string) string {
	return filepath.Join(m.opts.CacheDir, "solv", alias, cookieFile)
}

func cacheKey(alias string) string { return "solv/" + alias }

// IsCached reports whether the cache of alias matches its raw metadata.
func (m *Manager) IsCached(ctx context.Context, alias string) bool {
	st := m.MetadataStatus(ctx, alias)
	if st.Empty() {
		return false
	}
	data, err := os.ReadFile(m.cookiePath(alias))
	return err == nil && parseStatus(data).Checksum == st.Checksum
}

// BuildCache parses the raw metadata of info unless the cache is current.
func (m *Manager) BuildCache(ctx context.Context, info Info, force bool) error {
	if err := checkAlias(info.Alias); err != nil {
		return err
	}
	if !force && m.IsCached(ctx, info.Alias) {
		if _, ok := m.cache.Get(cacheKey(info.Alias)); ok {
			return nil
		}
	}
	st := m.MetadataStatus(ctx, info.Alias)
	if st.Empty() {
		return errors.Wrap(ErrNotCached, info.Alias)
	}

	b, err := Lookup(info.Type)
	if err != nil {
		return err
	}
	rs, err := b.Parse(ctx, m.opts.Raw, info.Alias, info)
	if err != nil {
		return errors.Wrapf(err, "parse metadata of %s", info.Alias)
	}
	for _, r := range rs {
		r.Repo = info.Alias
	}
	m.cache.Set(cacheKey(info.Alias), rs, 0)

	if err := os.MkdirAll(filepath.Dir(m.cookiePath(info.Alias)), 0755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	if err := os.WriteFile(m.cookiePath(info.Alias), []byte(st.String()), 0644); err != nil {
		return errors.Wrap(err, "write cache cookie")
	}
	log.Logger.Infof("Built cache of %s: %d resolvables", info.Alias, len(rs))
	return nil
}

// Load returns the cached resolvables of info, building the cache when
// needed.
func (m *Manager) Load(ctx context.Context, info Info) ([]*pool.Resolvable, error) {
	if v, ok := m.cache.Get(cacheKey(info.Alias)); ok && m.IsCached(ctx, info.Alias) {
		return v.([]*pool.Resolvable), nil
	}
	if err := m.BuildCache(ctx, info, true); err != nil {
		return nil, err
	}
	v, _ := m.cache.Get(cacheKey(info.Alias))
	rs, _ := v.([]*pool.Resolvable)
	return rs, nil
}

// CleanMetadata removes the raw metadata of alias.
func (m *Manager) CleanMetadata(ctx context.Context, alias string) error {
	if err := checkAlias(alias); err != nil {
		return err
	}
	delete(m.signatures, alias)
	return m.opts.Raw.Delete(ctx, alias)
}

// CleanCache removes the parsed cache of alias.
func (m *Manager) CleanCache(alias string) error {
	if err := checkAlias(alias); err != nil {
		return err
	}
	m.cache.Delete(cacheKey(alias))
	return os.RemoveAll(filepath.Dir(m.cookiePath(alias)))
}

// CopyRawCache copies the raw metadata of every stored repository into
// dir and returns how many files were copied.
func (m *Manager) CopyRawCache(ctx context.Context, dir string) (int, error) {
	infos, err := m.KnownRepositories()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, info := range infos {
		n, err := storage.CopyTo(ctx, m.opts.Raw, info.Alias, dir)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "copy %s", info.Alias)
		}
	}
	return total, nil
}
