// Package pool keeps the resolvables known from repositories and the
// installed system together with their transaction status.
package pool

import "strings"

type Kind string

const (
	Package    Kind = "package"
	SrcPackage Kind = "srcpackage"
	Patch      Kind = "patch"
	Pattern    Kind = "pattern"
	Product    Kind = "product"
)

var kinds = []Kind{Package, SrcPackage, Patch, Pattern, Product}

func ParseKind(s string) (Kind, bool) {
	for _, k := range kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// SystemRepo is the repository alias of installed resolvables.
const SystemRepo = "@System"

// DepKinds are the dependency kinds reported for resolvables.
var DepKinds = []string{
	"conflicts", "enhances", "obsoletes", "prerequires", "provides",
	"recommends", "requires", "suggests", "supplements",
}

type Dependency struct {
	Kind string // one of DepKinds
	Name string // capability, e.g. "libc.so.6()(64bit)" or "glibc >= 2.31"
}

// Resolvable is a package, patch, pattern or product.
type Resolvable struct {
	Kind         Kind
	Name         string
	Edition      Edition
	Arch         string
	Summary      string
	Description  string
	Vendor       string
	License      string
	Group        string
	Repo         string
	DownloadSize int64
	InstallSize  int64
	MediaNr      int
	Location     string
	Checksum     string
	Deps         []Dependency
	Files        []string
	// LicenseToConfirm is the EULA shown before installation.
	LicenseToConfirm string
	// DiskUsage maps directories to the KiB the resolvable occupies there.
	DiskUsage map[string]int64

	Patch   *PatchInfo
	Pattern *PatternInfo
	Product *ProductInfo
}

type PatchInfo struct {
	Category          string // security, recommended, optional, ...
	Severity          string
	Interactive       bool
	RebootNeeded      bool
	AffectsPkgManager bool
	// Message is shown to the user before the patch is applied.
	Message  string
	Packages []PatchPackage
}

// PatchPackage is a package edition a patch updates to.
type PatchPackage struct {
	Name    string
	Edition Edition
	Arch    string
}

type PatternInfo struct {
	Category    string
	UserVisible bool
	Default     bool
	Icon        string
	Script      string
	Order       string
}

type ProductInfo struct {
	Type         string
	DisplayName  string
	ShortName    string
	RelNotesURL  string
	UpdateURLs   []string
	ExtraURLs    []string
	OptionalURLs []string
	Flags        []string
}

func (r *Resolvable) Installed() bool { return r.Repo == SystemRepo }

// Ident is kind:name, the key used to group versions of one resolvable.
func (r *Resolvable) Ident() string { return string(r.Kind) + ":" + r.Name }

// Provides reports whether r provides tag by name, capability or file.
func (r *Resolvable) Provides(tag string) bool {
	if r.Name == tag {
		return true
	}
	for _, d := range r.Deps {
		if d.Kind == "provides" && capName(d.Name) == tag {
			return true
		}
	}
	if strings.HasPrefix(tag, "/") {
		for _, f := range r.Files {
			if f == tag {
				return true
			}
		}
	}
	return false
}

// DepNames returns the capabilities of the given dependency kind.
func (r *Resolvable) DepNames(kind string) []string {
	var out []string
	for _, d := range r.Deps {
		if d.Kind == kind {
			out = append(out, d.Name)
		}
	}
	return out
}

func capName(c string) string {
	if i := strings.IndexAny(c, " <>="); i >= 0 {
		return c[:i]
	}
	return c
}
