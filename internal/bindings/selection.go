package bindings

import (
	"pkgbind/internal/log"
	"pkgbind/internal/value"
)

// Selections were replaced by patterns. The builtins remain so old
// callers keep working.

func (p *PkgFunctions) GetSelections(status, category string) value.Value {
	log.Logger.Warnf("Pkg::GetSelections() is obsoleted, use Pkg::ResolvableProperties(\"\", `pattern, \"\") instead")
	return value.List()
}

func (p *PkgFunctions) SelectionData(name string) value.Value {
	log.Logger.Warnf("Pkg::SelectionData() is obsoleted, use Pkg::ResolvableProperties(%q, `pattern, \"\") instead", name)
	return value.Map(nil)
}

func (p *PkgFunctions) SetSelection(name string) bool {
	log.Logger.Warnf("Pkg::SetSelection() is obsoleted, use Pkg::ResolvableInstall(%q, `pattern) instead", name)
	return false
}

func (p *PkgFunctions) ClearSelection(name string) bool {
	log.Logger.Warnf("Pkg::ClearSelection() is obsoleted, use Pkg::ResolvableNeutral(%q, `pattern, false) instead", name)
	return false
}
