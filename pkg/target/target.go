// Package target keeps the installed system: an sqlite database of
// installed packages below the target root plus the product files in
// etc/products.d.
package target

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/rpm"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"pkgbind/internal/log"
	"pkgbind/pkg/pool"
)

// DBPath is the location of the database relative to the root.
const DBPath = "var/lib/pkgbind/installed.db"

var ErrNotInstalled = errors.New("package not installed")

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	epoch        INTEGER NOT NULL DEFAULT 0,
	version      TEXT NOT NULL,
	release      TEXT NOT NULL DEFAULT '',
	arch         TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	vendor       TEXT NOT NULL DEFAULT '',
	license      TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL DEFAULT 0,
	install_time INTEGER NOT NULL,
	UNIQUE(name, epoch, version, release, arch)
);
CREATE TABLE IF NOT EXISTS deps (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	kind       TEXT NOT NULL,
	capability TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	path       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS packages_name ON packages(name);
`

type Target struct {
	root string
	db   *sql.DB
	now  func() time.Time
}

// Open opens or creates the database below root.
func Open(ctx context.Context, root string) (*Target, error) {
	if root == "" {
		root = "/"
	}
	path := filepath.Join(root, DBPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "create database dir")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "open target database")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	log.Logger.Infof("Opened target %s", root)
	return &Target{root: root, db: db, now: time.Now}, nil
}

func (t *Target) Root() string { return t.root }

func (t *Target) Close() error {
	return t.db.Close()
}

// Record stores r as installed, replacing the same edition.
func (t *Target) Record(ctx context.Context, r *pool.Resolvable) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	e := r.Edition
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM packages WHERE name = ? AND epoch = ? AND version = ? AND release = ? AND arch = ?`,
		r.Name, e.Epoch(), e.Version(), e.Release(), r.Arch); err != nil {
		return errors.Wrap(err, "replace package")
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO packages (name, epoch, version, release, arch, summary, description, vendor, license, size, install_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, e.Epoch(), e.Version(), e.Release(), r.Arch, r.Summary, r.Description,
		r.Vendor, r.License, r.InstallSize, t.now().Unix())
	if err != nil {
		return errors.Wrap(err, "insert package")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, d := range r.Deps {
		if _, err := tx.ExecContext(ctx, `INSERT INTO deps (package_id, kind, capability) VALUES (?, ?, ?)`, id, d.Kind, d.Name); err != nil {
			return errors.Wrap(err, "insert dependency")
		}
	}
	for _, f := range r.Files {
		if _, err := tx.ExecContext(ctx, `INSERT INTO files (package_id, path) VALUES (?, ?)`, id, f); err != nil {
			return errors.Wrap(err, "insert file")
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Install records the package header of rpmfile.
func (t *Target) Install(ctx context.Context, rpmfile string) (*pool.Resolvable, error) {
	pkg, err := rpm.Open(rpmfile)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", rpmfile)
	}
	r := FromHeader(pkg)
	if err := t.Record(ctx, r); err != nil {
		return nil, err
	}
	log.Logger.Infof("Installed %s-%s.%s", r.Name, r.Edition, r.Arch)
	return r, nil
}

// FromHeader converts an rpm header into an installed resolvable.
func FromHeader(pkg *rpm.Package) *pool.Resolvable {
	r := &pool.Resolvable{
		Kind:        pool.Package,
		Name:        pkg.Name(),
		Edition:     pool.NewEdition(pkg.Epoch(), pkg.Version(), pkg.Release()),
		Arch:        pkg.Architecture(),
		Summary:     pkg.Summary(),
		Description: pkg.Description(),
		Vendor:      pkg.Vendor(),
		License:     pkg.License(),
		InstallSize: int64(pkg.Size()),
		Repo:        pool.SystemRepo,
	}
	if pkg.SourceRPM() == "" {
		r.Kind = pool.SrcPackage
	}
	for _, set := range []struct {
		kind string
		deps []rpm.Dependency
	}{
		{"provides", pkg.Provides()},
		{"requires", pkg.Requires()},
		{"conflicts", pkg.Conflicts()},
		{"obsoletes", pkg.Obsoletes()},
	} {
		for _, d := range set.deps {
			kind := set.kind
			if kind == "requires" && d.Flags()&rpm.DepFlagPrereq != 0 {
				kind = "prerequires"
			}
			r.Deps = append(r.Deps, pool.Dependency{Kind: kind, Name: capability(d)})
		}
	}
	for _, f := range pkg.Files() {
		r.Files = append(r.Files, f.Name())
	}
	return r
}

func capability(d rpm.Dependency) string {
	var op string
	switch f := d.Flags(); {
	case f&rpm.DepFlagLesserOrEqual == rpm.DepFlagLesserOrEqual:
		op = "<="
	case f&rpm.DepFlagGreaterOrEqual == rpm.DepFlagGreaterOrEqual:
		op = ">="
	case f&rpm.DepFlagLesser != 0:
		op = "<"
	case f&rpm.DepFlagGreater != 0:
		op = ">"
	case f&rpm.DepFlagEqual != 0:
		op = "="
	default:
		return d.Name()
	}
	evr := d.Version()
	if d.Epoch() > 0 {
		evr = pool.NewEdition(d.Epoch(), d.Version(), d.Release()).String()
	} else if d.Release() != "" {
		evr += "-" + d.Release()
	}
	return d.Name() + " " + op + " " + evr
}

// Remove forgets every installed edition of name.
func (t *Target) Remove(ctx context.Context, name string) error {
	res, err := t.db.ExecContext(ctx, `DELETE FROM packages WHERE name = ?`, name)
	if err != nil {
		return errors.Wrap(err, "remove package")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(ErrNotInstalled, name)
	}
	log.Logger.Infof("Removed %s from the target", name)
	return nil
}

// Packages returns the installed packages.
func (t *Target) Packages(ctx context.Context) ([]*pool.Resolvable, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, name, epoch, version, release, arch, summary, description, vendor, license, size
		 FROM packages ORDER BY name, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query packages")
	}
	defer rows.Close()

	byID := make(map[int64]*pool.Resolvable)
	var out []*pool.Resolvable
	for rows.Next() {
		var (
			id               int64
			epoch            int
			version, release string
			r                = &pool.Resolvable{Kind: pool.Package, Repo: pool.SystemRepo}
		)
		if err := rows.Scan(&id, &r.Name, &epoch, &version, &release, &r.Arch, &r.Summary,
			&r.Description, &r.Vendor, &r.License, &r.InstallSize); err != nil {
			return nil, errors.Wrap(err, "scan package")
		}
		r.Edition = pool.NewEdition(epoch, version, release)
		if r.Arch == "src" || r.Arch == "nosrc" {
			r.Kind = pool.SrcPackage
		}
		byID[id] = r
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := t.loadDeps(ctx, byID); err != nil {
		return nil, err
	}
	if err := t.loadFiles(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Target) loadDeps(ctx context.Context, byID map[int64]*pool.Resolvable) error {
	rows, err := t.db.QueryContext(ctx, `SELECT package_id, kind, capability FROM deps ORDER BY rowid`)
	if err != nil {
		return errors.Wrap(err, "query dependencies")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var d pool.Dependency
		if err := rows.Scan(&id, &d.Kind, &d.Name); err != nil {
			return err
		}
		if r, ok := byID[id]; ok {
			r.Deps = append(r.Deps, d)
		}
	}
	return rows.Err()
}

func (t *Target) loadFiles(ctx context.Context, byID map[int64]*pool.Resolvable) error {
	rows, err := t.db.QueryContext(ctx, `SELECT package_id, path FROM files ORDER BY rowid`)
	if err != nil {
		return errors.Wrap(err, "query files")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return err
		}
		if r, ok := byID[id]; ok {
			r.Files = append(r.Files, path)
		}
	}
	return rows.Err()
}

// Resolvables returns everything installed: packages, the patterns and
// products they define, and the products of etc/products.d.
func (t *Target) Resolvables(ctx context.Context) ([]*pool.Resolvable, error) {
	pkgs, err := t.Packages(ctx)
	if err != nil {
		return nil, err
	}
	out := append([]*pool.Resolvable{}, pkgs...)
	seen := make(map[string]bool)
	for _, p := range pkgs {
		for _, d := range pool.Derived(p) {
			d.Repo = pool.SystemRepo
			seen[d.Ident()] = true
			out = append(out, d)
		}
	}

	products, err := ReadProducts(filepath.Join(t.root, ProductsDir))
	if err != nil {
		log.Logger.Warnf("Cannot read installed products: %v", err)
	}
	for _, p := range products {
		if seen[p.Ident()] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// BaseProduct returns the product the baseproduct link points to.
func (t *Target) BaseProduct() string {
	link, err := os.Readlink(filepath.Join(t.root, ProductsDir, "baseproduct"))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(link), ".prod")
}
