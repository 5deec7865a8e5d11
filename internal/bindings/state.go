package bindings

import "pkgbind/internal/log"

// SaveState records the status of every resolvable for RestoreState. Only
// one snapshot is kept.
func (p *PkgFunctions) SaveState() bool {
	log.Logger.Infof("Saving status...")
	if p.pool.SaveState() {
		log.Logger.Warnf("Pkg::SaveState() has been already called, the saved state was rewritten")
	}
	return true
}

// RestoreState returns to the saved status. With checkOnly it only
// reports whether the current status differs from the saved one.
func (p *PkgFunctions) RestoreState(checkOnly bool) bool {
	if checkOnly {
		return p.pool.DiffState()
	}
	if !p.pool.RestoreState() {
		log.Logger.Errorf("No previous state saved, state cannot be restored")
		return false
	}
	log.Logger.Infof("Restoring the saved status...")
	return true
}

// ClearSaveState keeps the snapshot; it cannot be removed.
func (p *PkgFunctions) ClearSaveState() bool { return true }
