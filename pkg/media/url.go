package media

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	remoteSchemes      = set("http", "https", "ftp", "sftp", "tftp", "nfs", "nfs4", "smb", "cifs")
	localSchemes       = set("dir", "file", "hd", "iso", "cd", "dvd")
	volatileSchemes    = set("cd", "dvd")
	downloadingSchemes = set("http", "https", "ftp", "sftp", "tftp")
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}

// KnownSchemes lists every URL scheme the media layer recognizes.
func KnownSchemes() []string {
	var out []string
	for s := range remoteSchemes {
		out = append(out, s)
	}
	for s := range localSchemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func SchemeIsRemote(scheme string) bool      { return remoteSchemes[strings.ToLower(scheme)] }
func SchemeIsLocal(scheme string) bool       { return localSchemes[strings.ToLower(scheme)] }
func SchemeIsVolatile(scheme string) bool    { return volatileSchemes[strings.ToLower(scheme)] }
func SchemeIsDownloading(scheme string) bool { return downloadingSchemes[strings.ToLower(scheme)] }

// Scheme returns the lower-case scheme of raw, or "" when unparsable.
func Scheme(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// IsRemote reports whether raw points to a network location.
func IsRemote(raw string) bool { return SchemeIsRemote(Scheme(raw)) }

// HidePassword renders raw with the password masked.
func HidePassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "xxxx")
	return u.String()
}

// Vars are substituted into repository URLs and names.
type Vars struct {
	ReleaseVer string
	BaseArch   string
	Arch       string
}

var varRe = regexp.MustCompile(`\$\{?(releasever_major|releasever_minor|releasever|basearch|arch)\}?`)

// Expand replaces $releasever, $basearch and $arch (also in ${...} form).
// Unknown or unset variables are left untouched.
func (v Vars) Expand(s string) string {
	return varRe.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.Trim(m, "${}")
		var val string
		switch name {
		case "releasever":
			val = v.ReleaseVer
		case "releasever_major":
			val = strings.SplitN(v.ReleaseVer, ".", 2)[0]
		case "releasever_minor":
			if parts := strings.SplitN(v.ReleaseVer, ".", 2); len(parts) == 2 {
				val = parts[1]
			}
		case "basearch":
			val = v.BaseArch
		case "arch":
			val = v.Arch
		}
		if val == "" {
			return m
		}
		return val
	})
}

var mediaRe = regexp.MustCompile(`(CD|DVD|cd|dvd)1`)

// MediaURL rewrites a multi-media base URL for medium nr (CD1 -> CD2).
func MediaURL(base string, nr int) string {
	if nr <= 1 {
		return base
	}
	locs := mediaRe.FindAllStringSubmatchIndex(base, -1)
	if len(locs) == 0 {
		return base
	}
	last := locs[len(locs)-1]
	return base[:last[0]] + base[last[2]:last[3]] + strconv.Itoa(nr) + base[last[1]:]
}
