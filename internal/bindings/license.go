package bindings

import (
	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/pool"
)

// licenseCandidate is the selected, not yet confirmed version of package
// name.
func (p *PkgFunctions) licenseCandidate(name string) *pool.Item {
	if name == "" {
		return nil
	}
	for _, it := range p.pool.ByIdent(pool.Package, name) {
		if it.ToBeInstalled() && !it.LicenseConfirmed() {
			return it
		}
	}
	return nil
}

// PkgGetLicenseToConfirm returns the license the user must accept before
// the selected package is installed, "" when there is none.
func (p *PkgFunctions) PkgGetLicenseToConfirm(name string) string {
	if it := p.licenseCandidate(name); it != nil {
		return it.LicenseToConfirm
	}
	return ""
}

// PkgGetLicensesToConfirm maps the packages in names that still need a
// confirmation to their license. Entries that are not strings are
// skipped.
func (p *PkgFunctions) PkgGetLicensesToConfirm(names []value.Value) value.Value {
	out := make(map[string]value.Value)
	for _, v := range names {
		name, ok := v.AsString()
		if !ok {
			log.Logger.Errorf("PkgGetLicensesToConfirm: not a string: %s", v)
			continue
		}
		if license := p.PkgGetLicenseToConfirm(name); license != "" {
			out[name] = value.String(license)
		}
	}
	return value.Map(out)
}

// PkgMarkLicenseConfirmed confirms the license of the selected package.
func (p *PkgFunctions) PkgMarkLicenseConfirmed(name string) bool {
	if it := p.licenseCandidate(name); it != nil {
		return it.ConfirmLicense()
	}
	return false
}
