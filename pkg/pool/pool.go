package pool

import (
	"sort"

	"pkgbind/internal/log"
)

// Pool is not safe for concurrent use; callers serialize access.
type Pool struct {
	items      []*Item
	priorities map[string]int
	arch       string
	// saved is the status snapshot of SaveState, nil when none was taken.
	saved map[*Item]status
}

func New(arch string) *Pool {
	if arch == "" {
		arch = SystemArch()
	}
	return &Pool{priorities: make(map[string]int), arch: arch}
}

func (p *Pool) Arch() string { return p.arch }

// SetRepoPriority records the priority of a repository; lower wins.
func (p *Pool) SetRepoPriority(alias string, prio int) { p.priorities[alias] = prio }

func (p *Pool) repoPriority(alias string) int {
	if prio, ok := p.priorities[alias]; ok {
		return prio
	}
	return 99
}

// Add inserts resolvables and returns the new items.
func (p *Pool) Add(rs []*Resolvable) []*Item {
	added := make([]*Item, 0, len(rs))
	for _, r := range rs {
		it := &Item{Resolvable: r}
		p.items = append(p.items, it)
		added = append(added, it)
	}
	return added
}

// RemoveRepo drops every resolvable of alias and returns how many.
func (p *Pool) RemoveRepo(alias string) int {
	kept := p.items[:0]
	removed := 0
	for _, it := range p.items {
		if it.Repo == alias {
			delete(p.saved, it)
			removed++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(p.items); i++ {
		p.items[i] = nil
	}
	p.items = kept
	if removed > 0 {
		log.Logger.Debugf("Removed %d resolvables of %s from the pool", removed, alias)
	}
	return removed
}

// AnyFrom reports whether alias contributed resolvables.
func (p *Pool) AnyFrom(alias string) bool {
	for _, it := range p.items {
		if it.Repo == alias {
			return true
		}
	}
	return false
}

func (p *Pool) Len() int { return len(p.items) }

// Items returns the items in insertion order.
func (p *Pool) Items() []*Item { return p.items }

// Select returns the items accepted by match.
func (p *Pool) Select(match func(*Item) bool) []*Item {
	var out []*Item
	for _, it := range p.items {
		if match(it) {
			out = append(out, it)
		}
	}
	return out
}

// ByKind returns every item of kind.
func (p *Pool) ByKind(kind Kind) []*Item {
	return p.Select(func(it *Item) bool { return it.Kind == kind })
}

// ByIdent returns every version of kind:name. An empty name matches all
// items of the kind.
func (p *Pool) ByIdent(kind Kind, name string) []*Item {
	return p.Select(func(it *Item) bool {
		return it.Kind == kind && (name == "" || it.Name == name)
	})
}

// WhatProvides returns the items providing tag.
func (p *Pool) WhatProvides(kind Kind, tag string) []*Item {
	return p.Select(func(it *Item) bool { return it.Kind == kind && it.Provides(tag) })
}

// Installed returns the installed item of kind:name, if any.
func (p *Pool) Installed(kind Kind, name string) *Item {
	for _, it := range p.items {
		if it.Kind == kind && it.Name == name && it.Installed() {
			return it
		}
	}
	return nil
}

// Needed reports whether installing it would change the system: packages
// not installed in that exact edition, patches updating an installed
// package to a newer edition.
func (p *Pool) Needed(it *Item) bool {
	if it.Installed() {
		return false
	}
	switch it.Kind {
	case Patch:
		if it.Patch == nil {
			return false
		}
		for _, pp := range it.Patch.Packages {
			inst := p.Installed(Package, pp.Name)
			if inst != nil && Compare(inst.Edition, pp.Edition) < 0 {
				return true
			}
		}
		return false
	case Package, SrcPackage:
		for _, other := range p.items {
			if other.Installed() && other.Kind == it.Kind && other.Name == it.Name &&
				other.Arch == it.Arch && Compare(other.Edition, it.Edition) == 0 {
				return false
			}
		}
	}
	return true
}

// CandidateQuery narrows the candidate search.
type CandidateQuery struct {
	Kind    Kind
	Name    string
	Arch    string // system arch used for compatibility, empty = pool arch
	Version string // exact edition string, empty = any
	Repo    string // repository alias, empty = any
	// OnlyNeeded skips items that would not change the system.
	OnlyNeeded bool
}

// Candidate picks the best item to install: compatible arch, best arch,
// best repository priority, best edition. Items already selected by a
// lower causer are deselected so only one version stays selected.
func (p *Pool) Candidate(q CandidateQuery, by Causer) *Item {
	for _, it := range p.ByIdent(q.Kind, q.Name) {
		if it.ToBeInstalled() && q.matches(it) {
			it.ResetTransact(by)
		}
	}
	return p.Best(q)
}

func (q CandidateQuery) matches(it *Item) bool {
	return (q.Version == "" || q.Version == it.Edition.String()) &&
		(q.Repo == "" || it.Repo == q.Repo)
}

// Best is Candidate without touching any status.
func (p *Pool) Best(q CandidateQuery) *Item {
	arch := q.Arch
	if arch == "" {
		arch = p.arch
	}

	var best *Item
	bestScore := 0
	for _, it := range p.ByIdent(q.Kind, q.Name) {
		if it.Installed() || !q.matches(it) {
			continue
		}
		if q.OnlyNeeded && !p.Needed(it) {
			continue
		}
		score := ArchScore(arch, it.Arch)
		if score < 0 {
			log.Logger.Debugf("Provider %s has incompatible arch '%s'", it.Name, it.Arch)
			continue
		}
		if best == nil || p.better(it, score, best, bestScore) {
			best, bestScore = it, score
		}
	}
	return best
}

func (p *Pool) better(a *Item, aScore int, b *Item, bScore int) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	if pa, pb := p.repoPriority(a.Repo), p.repoPriority(b.Repo); pa != pb {
		return pa < pb
	}
	return Compare(a.Edition, b.Edition) > 0
}

// Reset clears every transaction and lock.
func (p *Pool) Reset() {
	for _, it := range p.items {
		it.Reset()
	}
}

// ApplReset drops transactions requested by the application.
func (p *Pool) ApplReset() {
	for _, it := range p.items {
		it.ResetTransact(ApplHigh)
	}
}

// Transacting returns the items scheduled for install or removal.
func (p *Pool) Transacting() []*Item {
	return p.Select(func(it *Item) bool { return it.Transacts() })
}

// Names returns the sorted distinct names of items.
func Names(items []*Item) []string {
	seen := make(map[string]bool)
	var names []string
	for _, it := range items {
		if !seen[it.Name] {
			seen[it.Name] = true
			names = append(names, it.Name)
		}
	}
	sort.Strings(names)
	return names
}
