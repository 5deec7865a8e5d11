package pool

// SaveState records the status of every item, replacing an earlier
// snapshot. It reports whether a snapshot was overwritten.
func (p *Pool) SaveState() bool {
	overwritten := p.saved != nil
	p.saved = make(map[*Item]status, len(p.items))
	for _, it := range p.items {
		p.saved[it] = it.status()
	}
	return overwritten
}

// HasSavedState reports whether SaveState was called.
func (p *Pool) HasSavedState() bool { return p.saved != nil }

// savedStatus is the snapshot of it; items added later start neutral.
func (p *Pool) savedStatus(it *Item) status {
	if s, ok := p.saved[it]; ok {
		return s
	}
	return status{}
}

// RestoreState returns every item to its saved status. It fails when no
// snapshot exists.
func (p *Pool) RestoreState() bool {
	if p.saved == nil {
		return false
	}
	for _, it := range p.items {
		it.setStatus(p.savedStatus(it))
	}
	return true
}

// DiffState reports whether any item changed since SaveState. Without a
// snapshot every item is compared against the neutral status.
func (p *Pool) DiffState() bool {
	for _, it := range p.items {
		if it.status() != p.savedStatus(it) {
			return true
		}
	}
	return false
}
