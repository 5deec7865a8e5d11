package repo

import (
	"strings"

	"pkgbind/pkg/media"
)

// Type is the metadata format of a repository.
type Type string

const (
	TypeNone     Type = "NONE"
	TypeRpmMd    Type = "rpm-md"
	TypeYaST     Type = "yast2"
	TypePlaindir Type = "plaindir"
)

// ParseType accepts both the stored and the legacy type names.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rpm-md", "rpm", "yum", "up2date", "repomd":
		return TypeRpmMd
	case "yast2", "yast", "susetags":
		return TypeYaST
	case "plaindir", "plain":
		return TypePlaindir
	}
	return TypeNone
}

// LegacyName is the type name shown to scripts.
func (t Type) LegacyName() string {
	switch t {
	case TypeRpmMd:
		return "YUM"
	case TypeYaST:
		return "YaST"
	case TypePlaindir:
		return "Plaindir"
	}
	return "NONE"
}

const (
	DefaultPriority = 99
	MinPriority     = 1
	MaxPriority     = 99
)

// Info describes one configured repository.
type Info struct {
	Alias        string
	Name         string
	BaseURLs     []string
	MirrorList   string
	Enabled      bool
	Autorefresh  bool
	Priority     int
	Type         Type
	Path         string // product directory on the medium
	KeepPackages bool
	Service      string
	GPGCheck     bool
	GPGKey       string
	// File is the .repo file the repository was read from.
	File string
}

// NewInfo returns an enabled repository with default priority.
func NewInfo(alias string, urls ...string) Info {
	return Info{
		Alias:    alias,
		BaseURLs: urls,
		Enabled:  true,
		Priority: DefaultPriority,
		Type:     TypeNone,
		Path:     "/",
		GPGCheck: true,
	}
}

// URL returns the first base URL, without variable expansion.
func (i Info) URL() string {
	if len(i.BaseURLs) == 0 {
		return ""
	}
	return i.BaseURLs[0]
}

// ExpandedURL returns the first base URL with variables substituted.
func (i Info) ExpandedURL(v media.Vars) string { return v.Expand(i.URL()) }

// Label is the name, falling back to the alias.
func (i Info) Label() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Alias
}

// ClampPriority bounds prio to the valid range.
func ClampPriority(prio int) int {
	if prio < MinPriority {
		return MinPriority
	}
	if prio > MaxPriority {
		return MaxPriority
	}
	return prio
}
