package utils

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
)

var aliasRe = regexp.MustCompile(`^[a-zA-Z0-9_.:+@-]+$`)

// IsValidAlias reports whether alias can name a repository file: no
// path separators, no leading dot, bounded length.
func IsValidAlias(alias string) bool {
	if len(alias) == 0 || len(alias) > 256 {
		return false
	}
	if strings.HasPrefix(alias, ".") {
		return false
	}
	return aliasRe.MatchString(alias)
}

// AliasFromURL derives a repository alias from a URL: the last non-empty
// path segment, or the host for bare URLs.
func AliasFromURL(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	// drop credentials
	if i := strings.LastIndex(strings.SplitN(s, "/", 2)[0], "@"); i >= 0 {
		s = s[i+1:]
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	alias := ""
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			alias = parts[i]
			break
		}
	}
	alias = strings.Map(func(r rune) rune {
		if aliasRe.MatchString(string(r)) {
			return r
		}
		return '_'
	}, alias)
	alias = strings.TrimLeft(alias, ".")
	if alias == "" {
		return "repo"
	}
	return alias
}

func WriteTo(m json.Marshaler, w io.Writer) (int64, error) {
	b, err := m.MarshalJSON()
	if err != nil {
		return -1, err
	}
	n, err := w.Write(b)
	return int64(n), err
}
