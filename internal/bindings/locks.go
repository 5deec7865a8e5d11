package bindings

import (
	"strings"

	"github.com/pkg/errors"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/locks"
	"pkgbind/pkg/pool"
)

// loadLocks reads the persistent locks; a broken file leaves none.
func (p *PkgFunctions) loadLocks() {
	queries, err := locks.Load(p.cfg.LocksFile)
	if err != nil {
		log.Logger.Warnf("Ignoring the locks: %v", err)
		return
	}
	p.locks = queries
	log.Logger.Infof("Read %d locks from %s", len(queries), p.cfg.LocksFile)
}

// applyLocks locks the items matched by a persistent lock.
func (p *PkgFunctions) applyLocks(items []*pool.Item) {
	for _, it := range items {
		for _, q := range p.locks {
			if q.Matches(it) {
				it.SetLock(true, pool.User)
				break
			}
		}
	}
}

// AddLock stores a lock described by a query map and locks the matching
// resolvables. See lockQuery for the keys.
func (p *PkgFunctions) AddLock(lock map[string]value.Value) bool {
	q, err := p.lockQuery(lock)
	if err != nil {
		log.Logger.Errorf("AddLock: %v", err)
		p.lastErr.SetError(err)
		return false
	}
	p.locks = append(p.locks, q)
	if err := locks.Save(p.cfg.LocksFile, p.locks); err != nil {
		p.fail("AddLock", err)
		return false
	}
	p.applyLocks(p.pool.Items())
	return true
}

// GetLocks lists the stored locks as query maps.
func (p *PkgFunctions) GetLocks() value.Value {
	out := make([]value.Value, 0, len(p.locks))
	for _, q := range p.locks {
		out = append(out, p.lockMap(q))
	}
	return value.List(out...)
}

// RemoveLock drops the lock equal to the given map and unlocks what it
// held. It returns false when no lock matches.
func (p *PkgFunctions) RemoveLock(lock map[string]value.Value) bool {
	q, err := p.lockQuery(lock)
	if err != nil {
		log.Logger.Errorf("RemoveLock: %v", err)
		return false
	}
	for i, stored := range p.locks {
		if !stored.Equal(q) {
			continue
		}
		p.locks = append(p.locks[:i], p.locks[i+1:]...)
		if err := locks.Save(p.cfg.LocksFile, p.locks); err != nil {
			p.fail("RemoveLock", err)
		}
		var released []*pool.Item
		for _, it := range p.pool.Items() {
			if it.Locked() && stored.Matches(it) {
				it.SetLock(false, pool.User)
				released = append(released, it)
			}
		}
		// another lock may still hold them
		p.applyLocks(released)
		return true
	}
	return false
}

// lockQuery converts a lock map. Known keys are kind, install_status,
// repo_id, case_sensitive, global_string and string_type; every other key
// names an attribute such as "solvable:name" with a list of values.
func (p *PkgFunctions) lockQuery(lock map[string]value.Value) (*locks.Query, error) {
	q := &locks.Query{}
	for key, val := range lock {
		if val.IsNil() {
			log.Logger.Warnf("Ignoring 'nil' value at %q in the lock map", key)
			continue
		}
		var err error
		switch key {
		case "kind":
			q.Kinds, err = stringList(key, val)
		case "install_status":
			q.InstallStatus, err = stringValue(key, val)
		case "string_type":
			q.MatchType, err = stringValue(key, val)
		case "global_string":
			q.Strings, err = stringList(key, val)
		case "case_sensitive":
			cs, ok := val.AsBool()
			if !ok {
				err = errors.Wrapf(locks.ErrBadQuery, "%q must be boolean, found %s", key, val)
			}
			q.CaseSensitive = cs
		case "repo_id":
			q.Repos, err = p.lockRepos(val)
		default:
			var vals []string
			if vals, err = stringList(key, val); err == nil {
				if q.Attrs == nil {
					q.Attrs = make(map[string][]string)
				}
				q.Attrs[locks.AttrPrefix+strings.TrimPrefix(key, locks.AttrPrefix)] = vals
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *PkgFunctions) lockRepos(val value.Value) ([]string, error) {
	l, ok := val.AsList()
	if !ok {
		return nil, errors.Wrapf(locks.ErrBadQuery, "'repo_id' value is not list: %s", val)
	}
	aliases := make([]string, 0, len(l))
	for i, v := range l {
		id, ok := v.AsInt()
		if !ok {
			return nil, errors.Wrapf(locks.ErrBadQuery, "invalid item at index %d in \"repo_id\" list", i)
		}
		r := p.logFindRepository(id)
		if r == nil {
			return nil, errors.Errorf("repository %d not found", id)
		}
		aliases = append(aliases, r.Alias())
	}
	return aliases, nil
}

func (p *PkgFunctions) lockMap(q *locks.Query) value.Value {
	m := map[string]value.Value{
		"case_sensitive": value.Bool(q.CaseSensitive),
	}
	for attr, vals := range q.Attrs {
		m[attr] = value.Strings(vals)
	}
	if len(q.Kinds) > 0 {
		m["kind"] = value.Strings(q.Kinds)
	}
	if q.InstallStatus != "" {
		m["install_status"] = value.String(q.InstallStatus)
	}
	if len(q.Repos) > 0 {
		ids := make([]int64, 0, len(q.Repos))
		for _, alias := range q.Repos {
			ids = append(ids, p.logFindAlias(alias))
		}
		m["repo_id"] = value.Ints(ids)
	}
	if len(q.Strings) > 0 {
		m["global_string"] = value.Strings(q.Strings)
	}
	if q.MatchType != "" {
		m["string_type"] = value.String(q.MatchType)
	}
	return value.Map(m)
}

func stringValue(key string, val value.Value) (string, error) {
	s, ok := val.AsString()
	if !ok {
		return "", errors.Wrapf(locks.ErrBadQuery, "%q must be string, found %s", key, val)
	}
	return s, nil
}

func stringList(key string, val value.Value) ([]string, error) {
	l, ok := val.AsList()
	if !ok {
		return nil, errors.Wrapf(locks.ErrBadQuery, "%q value is not list: %s", key, val)
	}
	out := make([]string, 0, len(l))
	for i, v := range l {
		s, ok := v.AsString()
		if !ok {
			return nil, errors.Wrapf(locks.ErrBadQuery, "invalid item at index %d in %q list, string expected", i, key)
		}
		out = append(out, s)
	}
	return out, nil
}
