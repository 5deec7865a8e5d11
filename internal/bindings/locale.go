package bindings

import (
	"os"
	"strings"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
)

// locales holds the text locale of the messages and the locales packages
// are requested for. The preferred package locale is kept apart from the
// additional ones.
type locales struct {
	text       string
	preferred  string
	additional []string
}

// envLocale is the text locale from the environment without the
// codeset, "en" when unset.
func envLocale() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if l := os.Getenv(env); l != "" && l != "C" && l != "POSIX" {
			return strings.SplitN(l, ".", 2)[0]
		}
	}
	return "en"
}

func (p *PkgFunctions) SetTextLocale(locale string) {
	p.locales.text = locale
	log.Logger.Infof("Text locale set to %q", locale)
}

func (p *PkgFunctions) GetTextLocale() string { return p.locales.text }

// SetPackageLocale replaces the preferred locale and keeps the
// additional ones.
func (p *PkgFunctions) SetPackageLocale(locale string) {
	p.locales.preferred = locale
	p.locales.additional = without(p.locales.additional, locale)
}

func (p *PkgFunctions) GetPackageLocale() string {
	if p.locales.preferred == "" {
		log.Logger.Warnf("The package locale hasn't been set, call Pkg::SetPackageLocale() before Pkg::GetPackageLocale()")
	}
	return p.locales.preferred
}

// SetLocale sets both the text and the package locale.
func (p *PkgFunctions) SetLocale(locale string) {
	log.Logger.Warnf("Pkg::SetLocale() is obsoleted, use Pkg::SetTextLocale() and/or Pkg::SetPackageLocale() instead")
	p.SetTextLocale(locale)
	p.SetPackageLocale(locale)
}

func (p *PkgFunctions) GetLocale() string {
	log.Logger.Warnf("Pkg::GetLocale() is obsoleted, use Pkg::GetTextLocale() or Pkg::GetPackageLocale() instead")
	return p.GetTextLocale()
}

// SetAdditionalLocales replaces the additional locales. Entries that are
// not strings are skipped.
func (p *PkgFunctions) SetAdditionalLocales(list []value.Value) {
	var codes []string
	for _, v := range list {
		s, ok := v.AsString()
		if !ok {
			log.Logger.Errorf("Pkg::SetAdditionalLocales ([...,%s,...]) not string", v)
			continue
		}
		if s != p.locales.preferred {
			codes = append(codes, s)
		}
	}
	p.locales.additional = without(codes, "")
}

// GetAdditionalLocales lists the requested locales without the preferred
// one.
func (p *PkgFunctions) GetAdditionalLocales() value.Value {
	return value.Strings(p.locales.additional)
}

// without drops s and duplicates from list.
func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, l := range list {
		if l == s || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
