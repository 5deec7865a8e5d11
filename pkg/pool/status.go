package pool

// Causer ranks who requested a transaction; a higher causer overrides a
// lower one.
type Causer int

const (
	Solver Causer = iota
	ApplLow
	ApplHigh
	User
)

var causerNames = map[Causer]string{
	Solver:   "solver",
	ApplLow:  "app_low",
	ApplHigh: "app_high",
	User:     "user",
}

func (c Causer) String() string { return causerNames[c] }

func ParseCauser(s string) (Causer, bool) {
	for c, n := range causerNames {
		if n == s {
			return c, true
		}
	}
	return 0, false
}

type lockState int

const (
	unlocked lockState = iota
	softLocked
	locked
)

// Item is a resolvable in the pool with its status.
type Item struct {
	*Resolvable

	transact bool
	by       Causer
	lock     lockState
	lockBy   Causer
	// licenseConfirmed survives Reset, a confirmed EULA stays confirmed.
	licenseConfirmed bool
}

// status is the part of an item SaveState records.
type status struct {
	transact bool
	by       Causer
	lock     lockState
	lockBy   Causer
}

func (i *Item) status() status {
	return status{transact: i.transact, by: i.by, lock: i.lock, lockBy: i.lockBy}
}

func (i *Item) setStatus(s status) {
	i.transact, i.by, i.lock, i.lockBy = s.transact, s.by, s.lock, s.lockBy
}

func (i *Item) Transacts() bool     { return i.transact }
func (i *Item) TransactBy() Causer  { return i.by }
func (i *Item) Locked() bool        { return i.lock == locked }
func (i *Item) SoftLocked() bool    { return i.lock == softLocked }
func (i *Item) ToBeInstalled() bool { return i.transact && !i.Installed() }
func (i *Item) ToBeRemoved() bool   { return i.transact && i.Installed() }

func (i *Item) LicenseConfirmed() bool { return i.licenseConfirmed }

// ConfirmLicense marks the EULA of an item about to be installed as
// accepted.
func (i *Item) ConfirmLicense() bool {
	if !i.ToBeInstalled() || i.licenseConfirmed {
		return false
	}
	i.licenseConfirmed = true
	return true
}

// StatusName is installed, removed, selected or available.
func (i *Item) StatusName() string {
	switch {
	case i.Installed() && i.transact:
		return "removed"
	case i.Installed():
		return "installed"
	case i.transact:
		return "selected"
	}
	return "available"
}

func (i *Item) setTransact(by Causer) bool {
	if i.lock == locked && by < User {
		return false
	}
	if i.lock == softLocked && by <= Solver {
		return false
	}
	if i.transact && i.by > by {
		return false
	}
	i.transact = true
	i.by = by
	return true
}

// SetToBeInstalled marks an available item for installation.
func (i *Item) SetToBeInstalled(by Causer) bool {
	if i.Installed() {
		return false
	}
	return i.setTransact(by)
}

// SetToBeUninstalled marks an installed item for removal.
func (i *Item) SetToBeUninstalled(by Causer) bool {
	if !i.Installed() {
		return false
	}
	return i.setTransact(by)
}

// ResetTransact drops the transaction unless a higher causer set it.
func (i *Item) ResetTransact(by Causer) bool {
	if !i.transact {
		return true
	}
	if i.by > by {
		return false
	}
	i.transact = false
	i.by = Solver
	return true
}

// SetLock locks or unlocks the item; locking drops a pending transaction.
func (i *Item) SetLock(lock bool, by Causer) bool {
	if !lock {
		if i.lock == locked && i.lockBy > by {
			return false
		}
		i.lock = unlocked
		return true
	}
	if !i.ResetTransact(by) {
		return false
	}
	i.lock = locked
	i.lockBy = by
	return true
}

// SetSoftLock keeps the solver away from an item without a transaction.
func (i *Item) SetSoftLock(by Causer) bool {
	if i.transact || i.lock == locked {
		return false
	}
	i.lock = softLocked
	i.lockBy = by
	return true
}

// Reset clears transaction and locks.
func (i *Item) Reset() {
	i.transact = false
	i.by = Solver
	i.lock = unlocked
}
