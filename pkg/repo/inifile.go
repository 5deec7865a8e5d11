package repo

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"pkgbind/internal/log"
)

func loadOptions() ini.LoadOptions {
	return ini.LoadOptions{AllowShadows: true, Loose: true, IgnoreInlineComment: true}
}

// readRepoFile parses every section of a .repo file.
func readRepoFile(path string) ([]Info, error) {
	f, err := ini.LoadSources(loadOptions(), path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	var infos []Info
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		infos = append(infos, sectionToInfo(sec, path))
	}
	return infos, nil
}

func sectionToInfo(sec *ini.Section, path string) Info {
	info := NewInfo(sec.Name())
	info.File = path
	info.Name = sec.Key("name").String()
	info.Enabled = iniBool(sec, "enabled", true)
	info.Autorefresh = iniBool(sec, "autorefresh", false)
	info.KeepPackages = iniBool(sec, "keeppackages", false)
	info.GPGCheck = iniBool(sec, "gpgcheck", true)
	info.GPGKey = sec.Key("gpgkey").String()
	info.MirrorList = sec.Key("mirrorlist").String()
	info.Service = sec.Key("service").String()
	info.Type = ParseType(sec.Key("type").String())
	if p := sec.Key("path").String(); p != "" {
		info.Path = p
	}
	info.Priority = ClampPriority(sec.Key("priority").MustInt(DefaultPriority))

	if sec.HasKey("baseurl") {
		for _, v := range sec.Key("baseurl").ValueWithShadows() {
			for _, u := range strings.Fields(v) {
				info.BaseURLs = append(info.BaseURLs, u)
			}
		}
	}
	return info
}

func iniBool(sec *ini.Section, key string, def bool) bool {
	if !sec.HasKey(key) {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(sec.Key(key).String())) {
	case "1", "yes", "true", "on":
		return true
	case "0", "no", "false", "off":
		return false
	}
	return def
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// saveRepo writes info into its .repo file, replacing the section named
// replace when given. Other sections of the file are kept.
func saveRepo(info Info, replace string) error {
	f, err := ini.LoadSources(loadOptions(), info.File)
	if err != nil {
		return errors.Wrapf(err, "parse %s", info.File)
	}
	if replace != "" {
		f.DeleteSection(replace)
	}
	f.DeleteSection(info.Alias)

	sec, err := f.NewSection(info.Alias)
	if err != nil {
		return errors.Wrapf(err, "section %s", info.Alias)
	}
	if err := fillSection(sec, info); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(info.File), 0755); err != nil {
		return errors.Wrap(err, "create repos dir")
	}
	return errors.Wrapf(f.SaveTo(info.File), "write %s", info.File)
}

func fillSection(sec *ini.Section, info Info) error {
	set := func(key, val string) {
		if _, err := sec.NewKey(key, val); err != nil {
			log.Logger.Warnf("Cannot set %s of %s: %v", key, info.Alias, err)
		}
	}
	set("name", info.Label())
	set("enabled", boolString(info.Enabled))
	set("autorefresh", boolString(info.Autorefresh))
	for i, u := range info.BaseURLs {
		if i == 0 {
			set("baseurl", u)
			continue
		}
		if err := sec.Key("baseurl").AddShadow(u); err != nil {
			return errors.Wrap(err, "add base URL")
		}
	}
	if info.MirrorList != "" {
		set("mirrorlist", info.MirrorList)
	}
	set("path", info.Path)
	if info.Type != TypeNone && info.Type != "" {
		set("type", string(info.Type))
	}
	set("priority", strconv.Itoa(info.Priority))
	set("keeppackages", boolString(info.KeepPackages))
	set("gpgcheck", boolString(info.GPGCheck))
	if info.GPGKey != "" {
		set("gpgkey", info.GPGKey)
	}
	if info.Service != "" {
		set("service", info.Service)
	}
	return nil
}

// deleteRepo removes the section alias from file, and the file once no
// section is left.
func deleteRepo(file, alias string) error {
	f, err := ini.LoadSources(loadOptions(), file)
	if err != nil {
		return errors.Wrapf(err, "parse %s", file)
	}
	f.DeleteSection(alias)
	left := 0
	for _, sec := range f.Sections() {
		if sec.Name() != ini.DefaultSection {
			left++
		}
	}
	if left == 0 {
		return errors.Wrapf(os.Remove(file), "remove %s", file)
	}
	return errors.Wrapf(f.SaveTo(file), "write %s", file)
}

// readReposDir reads all .repo files of dir sorted by alias. A missing
// directory holds no repositories.
func readReposDir(dir string) ([]Info, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.repo"))
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, path := range matches {
		rs, err := readRepoFile(path)
		if err != nil {
			log.Logger.Warnf("Skipping %s: %v", path, err)
			continue
		}
		infos = append(infos, rs...)
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Alias < infos[j].Alias })
	return infos, nil
}
