// Package locks stores the queries that keep resolvables locked across
// sessions.
package locks

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"pkgbind/pkg/pool"
)

// Match types of the strings in a query.
const (
	MatchExact     = "exact"
	MatchSubstring = "substring"
	MatchGlob      = "glob"
	MatchRegex     = "regex"
)

// Install status filters.
const (
	StatusAll         = "all"
	StatusInstalled   = "installed"
	StatusUninstalled = "uninstalled"
)

// AttrPrefix starts the attribute keys, e.g. "solvable:name".
const AttrPrefix = "solvable:"

var ErrBadQuery = errors.New("invalid lock query")

// Query selects the resolvables a lock applies to. Empty fields do not
// restrict the match.
type Query struct {
	// Attrs maps an attribute such as "solvable:name" to the values it
	// may match.
	Attrs         map[string][]string `yaml:"attrs,omitempty"`
	Kinds         []string            `yaml:"kinds,omitempty"`
	InstallStatus string              `yaml:"install_status,omitempty"`
	Repos         []string            `yaml:"repos,omitempty"`
	CaseSensitive bool                `yaml:"case_sensitive"`
	// Strings are matched against the name.
	Strings   []string `yaml:"strings,omitempty"`
	MatchType string   `yaml:"match_type,omitempty"`
}

var attrGetters = map[string]func(*pool.Item) []string{
	"name":        func(it *pool.Item) []string { return []string{it.Name} },
	"summary":     func(it *pool.Item) []string { return []string{it.Summary} },
	"description": func(it *pool.Item) []string { return []string{it.Description} },
	"vendor":      func(it *pool.Item) []string { return []string{it.Vendor} },
	"group":       func(it *pool.Item) []string { return []string{it.Group} },
	"license":     func(it *pool.Item) []string { return []string{it.License} },
	"arch":        func(it *pool.Item) []string { return []string{it.Arch} },
	"provides":    func(it *pool.Item) []string { return it.DepNames("provides") },
	"requires":    func(it *pool.Item) []string { return it.DepNames("requires") },
}

// Validate checks the enumerations and compiles regular expressions.
func (q *Query) Validate() error {
	switch q.MatchType {
	case "", MatchExact, MatchSubstring, MatchGlob, MatchRegex:
	default:
		return errors.Wrapf(ErrBadQuery, "unknown string_type %q", q.MatchType)
	}
	switch q.InstallStatus {
	case "", StatusAll, StatusInstalled, StatusUninstalled:
	default:
		return errors.Wrapf(ErrBadQuery, "unknown install_status %q", q.InstallStatus)
	}
	for _, k := range q.Kinds {
		if _, ok := pool.ParseKind(k); !ok {
			return errors.Wrapf(ErrBadQuery, "unknown kind %q", k)
		}
	}
	for attr := range q.Attrs {
		if _, ok := attrGetters[strings.TrimPrefix(attr, AttrPrefix)]; !ok {
			return errors.Wrapf(ErrBadQuery, "unknown attribute %q", attr)
		}
	}
	if q.MatchType == MatchRegex {
		for _, s := range q.patterns() {
			if _, err := regexp.Compile(s); err != nil {
				return errors.Wrap(ErrBadQuery, err.Error())
			}
		}
	}
	return nil
}

func (q *Query) patterns() []string {
	out := append([]string(nil), q.Strings...)
	for _, vals := range q.Attrs {
		out = append(out, vals...)
	}
	return out
}

// Matches reports whether it is selected by q.
func (q *Query) Matches(it *pool.Item) bool {
	if len(q.Kinds) > 0 && !contains(q.Kinds, string(it.Kind)) {
		return false
	}
	switch q.InstallStatus {
	case StatusInstalled:
		if !it.Installed() {
			return false
		}
	case StatusUninstalled:
		if it.Installed() {
			return false
		}
	}
	if len(q.Repos) > 0 && !contains(q.Repos, it.Repo) {
		return false
	}
	if len(q.Strings) > 0 && !q.matchAny(q.Strings, []string{it.Name}) {
		return false
	}
	for attr, vals := range q.Attrs {
		get, ok := attrGetters[strings.TrimPrefix(attr, AttrPrefix)]
		if !ok || !q.matchAny(vals, get(it)) {
			return false
		}
	}
	return true
}

func (q *Query) matchAny(patterns, subjects []string) bool {
	for _, p := range patterns {
		for _, s := range subjects {
			if q.match(p, s) {
				return true
			}
		}
	}
	return false
}

func (q *Query) match(pattern, s string) bool {
	if !q.CaseSensitive {
		pattern, s = strings.ToLower(pattern), strings.ToLower(s)
	}
	switch q.MatchType {
	case MatchExact:
		return pattern == s
	case MatchGlob:
		ok, err := path.Match(pattern, s)
		return err == nil && ok
	case MatchRegex:
		re, err := regexp.Compile(pattern)
		return err == nil && re.MatchString(s)
	}
	return strings.Contains(s, pattern)
}

// Equal compares the canonical encodings of q and o.
func (q *Query) Equal(o *Query) bool {
	a, errA := yaml.Marshal(q)
	b, errB := yaml.Marshal(o)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

// Load reads the locks stored at file. A missing file has no locks.
func Load(file string) ([]*Query, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read locks %s", file)
	}
	var queries []*Query
	if err := yaml.Unmarshal(data, &queries); err != nil {
		return nil, errors.Wrapf(err, "parse locks %s", file)
	}
	for _, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, errors.Wrapf(err, "locks %s", file)
		}
	}
	return queries, nil
}

// Save writes queries to file through a temporary file.
func Save(file string, queries []*Query) error {
	data, err := yaml.Marshal(queries)
	if err != nil {
		return errors.Wrap(err, "encode locks")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(file))
	}
	tmp := file + ".new"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "write locks %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, file), "write locks %s", file)
}
