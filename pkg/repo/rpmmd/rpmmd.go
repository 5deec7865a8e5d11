// Package rpmmd reads rpm-md (repodata/repomd.xml) repositories.
package rpmmd

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/xml"
	"hash"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"pkgbind/internal/log"
	"pkgbind/pkg/media"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/repo"
	"pkgbind/pkg/storage"
)

func init() {
	repo.Register(repo.TypeRpmMd, &Backend{})
}

const (
	RepomdFile    = "repodata/repomd.xml"
	SignatureFile = RepomdFile + ".asc"
	KeyFile       = RepomdFile + ".key"
)

// DataTypes are the repomd entries downloaded on refresh.
var DataTypes = []string{"primary", "updateinfo", "susedata"}

var ErrChecksumMismatch = errors.New("checksum mismatch")

type Backend struct{}

var _ repo.Signed = (*Backend)(nil)

func (b *Backend) SignedFiles() (string, string, string) {
	return RepomdFile, SignatureFile, KeyFile
}

func (b *Backend) Probe(ctx context.Context, access *media.Access, dir string) bool {
	_, err := access.ProvideFile(ctx, 1, path.Join(dir, RepomdFile))
	return err == nil
}

func (b *Backend) Checksum(ctx context.Context, access *media.Access, info repo.Info) (string, error) {
	data, err := provide(ctx, access, path.Join(info.Path, RepomdFile))
	if err != nil {
		return "", err
	}
	return Sum(data), nil
}

// Sum is the revision checksum of a repomd.xml.
func Sum(repomd []byte) string {
	h := sha256.Sum256(repomd)
	return hex.EncodeToString(h[:])
}

func provide(ctx context.Context, access *media.Access, file string) ([]byte, error) {
	local, err := access.ProvideFile(ctx, 1, file)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(local)
}

func (b *Backend) Download(ctx context.Context, access *media.Access, info repo.Info, raw storage.Storage, prefix string) (string, error) {
	data, err := provide(ctx, access, path.Join(info.Path, RepomdFile))
	if err != nil {
		return "", err
	}
	var md Repomd
	if err := xml.Unmarshal(data, &md); err != nil {
		return "", errors.Wrap(err, "parse repomd.xml")
	}
	if err := raw.Store(ctx, path.Join(prefix, RepomdFile), bytes.NewReader(data)); err != nil {
		return "", err
	}

	for _, optional := range []string{SignatureFile, KeyFile} {
		extra, err := provide(ctx, access, path.Join(info.Path, optional))
		if err != nil {
			continue
		}
		if err := raw.Store(ctx, path.Join(prefix, optional), bytes.NewReader(extra)); err != nil {
			return "", err
		}
	}

	for _, t := range DataTypes {
		d, ok := md.Find(t)
		if !ok {
			continue
		}
		content, err := provide(ctx, access, path.Join(info.Path, d.Location.Href))
		if err != nil {
			return "", errors.Wrapf(err, "download %s", t)
		}
		if err := verifyChecksum(content, d.Checksum); err != nil {
			return "", errors.Wrap(err, d.Location.Href)
		}
		if err := raw.Store(ctx, path.Join(prefix, d.Location.Href), bytes.NewReader(content)); err != nil {
			return "", err
		}
	}
	return Sum(data), nil
}

func verifyChecksum(data []byte, sum Checksum) error {
	var h hash.Hash
	switch strings.ToLower(sum.Type) {
	case "sha256":
		h = sha256.New()
	case "sha1", "sha":
		h = sha1.New()
	case "sha512":
		h = sha512.New()
	default:
		return nil
	}
	h.Write(data)
	if got := hex.EncodeToString(h.Sum(nil)); got != strings.TrimSpace(sum.Value) {
		return errors.Wrapf(ErrChecksumMismatch, "%s %s != %s", sum.Type, got, sum.Value)
	}
	return nil
}

// Decompress wraps r according to the extension of name.
func Decompress(r io.Reader, name string) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return gzip.NewReader(r)
	case strings.HasSuffix(name, ".xz"):
		return xz.NewReader(r)
	case strings.HasSuffix(name, ".zst"), strings.HasSuffix(name, ".bz2"):
		return nil, errors.Errorf("unsupported compression of %s", name)
	}
	return r, nil
}

func (b *Backend) Parse(ctx context.Context, raw storage.Storage, prefix string, info repo.Info) ([]*pool.Resolvable, error) {
	data, err := storage.ReadAll(ctx, raw, path.Join(prefix, RepomdFile))
	if err != nil {
		return nil, errors.Wrap(err, "read repomd.xml")
	}
	var md Repomd
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrap(err, "parse repomd.xml")
	}

	var rs []*pool.Resolvable
	if d, ok := md.Find("primary"); ok {
		var meta Metadata
		if err := decodeData(ctx, raw, path.Join(prefix, d.Location.Href), &meta); err != nil {
			return nil, errors.Wrap(err, "primary")
		}
		rs = append(rs, FromPrimary(meta)...)
	}
	if d, ok := md.Find("susedata"); ok {
		var suse SuseData
		if err := decodeData(ctx, raw, path.Join(prefix, d.Location.Href), &suse); err != nil {
			return nil, errors.Wrap(err, "susedata")
		}
		ApplySuseData(rs, suse)
	}
	if d, ok := md.Find("updateinfo"); ok {
		var updates Updates
		if err := decodeData(ctx, raw, path.Join(prefix, d.Location.Href), &updates); err != nil {
			return nil, errors.Wrap(err, "updateinfo")
		}
		rs = append(rs, FromUpdateInfo(updates)...)
	}
	log.Logger.Debugf("Parsed %d resolvables of %s", len(rs), info.Alias)
	return rs, nil
}

func decodeData(ctx context.Context, raw storage.Storage, file string, v interface{}) error {
	rc, err := raw.Get(ctx, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	r, err := Decompress(rc, file)
	if err != nil {
		return err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	return xml.NewDecoder(r).Decode(v)
}

var depKinds = []struct {
	kind    string
	entries func(f *Format) Entries
}{
	{"provides", func(f *Format) Entries { return f.Provides }},
	{"requires", func(f *Format) Entries { return f.Requires }},
	{"conflicts", func(f *Format) Entries { return f.Conflicts }},
	{"obsoletes", func(f *Format) Entries { return f.Obsoletes }},
	{"recommends", func(f *Format) Entries { return f.Recommends }},
	{"suggests", func(f *Format) Entries { return f.Suggests }},
	{"supplements", func(f *Format) Entries { return f.Supplements }},
	{"enhances", func(f *Format) Entries { return f.Enhances }},
}

var flagOps = map[string]string{"EQ": "=", "LT": "<", "LE": "<=", "GT": ">", "GE": ">="}

// Capability renders an entry as "name op [epoch:]ver[-rel]".
func (e Entry) Capability() string {
	op, ok := flagOps[e.Flags]
	if !ok {
		return e.Name
	}
	evr := e.Ver
	if e.Epoch != "" && e.Epoch != "0" {
		evr = e.Epoch + ":" + evr
	}
	if e.Rel != "" {
		evr += "-" + e.Rel
	}
	return e.Name + " " + op + " " + evr
}

// FromPrimary converts primary.xml packages. Packages providing
// pattern() or product() also yield a pattern or product resolvable.
func FromPrimary(meta Metadata) []*pool.Resolvable {
	rs := make([]*pool.Resolvable, 0, len(meta.Packages))
	for i := range meta.Packages {
		p := &meta.Packages[i]
		if p.Type != "" && p.Type != "rpm" {
			continue
		}
		r := packageResolvable(p)
		rs = append(rs, r)
		rs = append(rs, pool.Derived(r)...)
	}
	return rs
}

func packageResolvable(p *Package) *pool.Resolvable {
	epoch, _ := strconv.Atoi(p.Version.Epoch)
	kind := pool.Package
	if p.Arch == "src" || p.Arch == "nosrc" {
		kind = pool.SrcPackage
	}
	r := &pool.Resolvable{
		Kind:         kind,
		Name:         p.Name,
		Edition:      pool.NewEdition(epoch, p.Version.Ver, p.Version.Rel),
		Arch:         p.Arch,
		Summary:      strings.TrimSpace(p.Summary),
		Description:  strings.TrimSpace(p.Description),
		Vendor:       p.Format.Vendor,
		License:      p.Format.License,
		Group:        p.Format.Group,
		DownloadSize: p.Size.Package,
		InstallSize:  p.Size.Installed,
		MediaNr:      1,
		Location:     p.Location.Href,
		Checksum:     p.Checksum.Value,
		Files:        p.Format.Files,
	}
	for _, dk := range depKinds {
		for _, e := range dk.entries(&p.Format).Entries {
			kind := dk.kind
			if kind == "requires" && (e.Pre == "1" || e.Pre == "true") {
				kind = "prerequires"
			}
			r.Deps = append(r.Deps, pool.Dependency{Kind: kind, Name: e.Capability()})
		}
	}
	return r
}

// ApplySuseData attaches the EULAs of suse to the matching packages.
func ApplySuseData(rs []*pool.Resolvable, suse SuseData) {
	eulas := make(map[string]string)
	for _, sp := range suse.Packages {
		if eula := strings.TrimSpace(sp.Eula); eula != "" {
			epoch, _ := strconv.Atoi(sp.Version.Epoch)
			eulas[sp.Name+" "+pool.NewEdition(epoch, sp.Version.Ver, sp.Version.Rel).String()+" "+sp.Arch] = eula
		}
	}
	if len(eulas) == 0 {
		return
	}
	for _, r := range rs {
		if r.Kind != pool.Package {
			continue
		}
		if eula, ok := eulas[r.Name+" "+r.Edition.String()+" "+r.Arch]; ok {
			r.LicenseToConfirm = eula
		}
	}
}

// FromUpdateInfo converts updateinfo.xml updates into patches.
func FromUpdateInfo(updates Updates) []*pool.Resolvable {
	rs := make([]*pool.Resolvable, 0, len(updates.Updates))
	for _, u := range updates.Updates {
		info := &pool.PatchInfo{
			Category: u.Type,
			Severity: u.Severity,
			Message:  strings.TrimSpace(u.Message),
		}
		for _, c := range u.Collections {
			for _, p := range c.Packages {
				epoch, _ := strconv.Atoi(p.Epoch)
				info.Packages = append(info.Packages, pool.PatchPackage{
					Name:    p.Name,
					Edition: pool.NewEdition(epoch, p.Version, p.Release),
					Arch:    p.Arch,
				})
				if p.RebootSuggested != nil {
					info.RebootNeeded = true
				}
				if p.RestartSuggested != nil {
					info.AffectsPkgManager = true
				}
			}
		}
		info.Interactive = info.RebootNeeded || info.Message != ""

		rs = append(rs, &pool.Resolvable{
			Kind:        pool.Patch,
			Name:        u.ID,
			Edition:     pool.ParseEdition(u.Version),
			Arch:        "noarch",
			Summary:     strings.TrimSpace(u.Title),
			Description: strings.TrimSpace(u.Description),
			Vendor:      u.From,
			MediaNr:     1,
			Patch:       info,
		})
	}
	return rs
}
