package bindings

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"pkgbind/internal/log"
	"pkgbind/internal/value"
	"pkgbind/pkg/du"
	"pkgbind/pkg/pool"
	"pkgbind/pkg/target"
)

const loadTargetHelp = "Reading the packages installed on the target system."

// TargetInit opens the target below root and loads the installed
// resolvables. The second argument is ignored.
func (p *PkgFunctions) TargetInit(ctx context.Context, root string) bool {
	if p.target != nil && p.target.Root() == root && p.targetLoaded {
		log.Logger.Infof("Target %s is already initialized", root)
		return true
	}

	progress := p.callbacks.StartProgress(ctx, "Loading the Package Manager...",
		[]string{"Initialize the Target System", "Read Installed Packages"}, loadTargetHelp)
	defer progress.Done()

	if err := p.initializeTarget(ctx, root); err != nil {
		p.fail("TargetInit", err)
		return false
	}
	progress.NextStage()
	if err := p.loadTarget(ctx); err != nil {
		p.fail("TargetInit", err)
		return false
	}
	return true
}

// TargetInitialize opens the target below root without loading it.
func (p *PkgFunctions) TargetInitialize(ctx context.Context, root string) bool {
	if err := p.initializeTarget(ctx, root); err != nil {
		p.fail("TargetInitialize", err)
		return false
	}
	return true
}

func (p *PkgFunctions) initializeTarget(ctx context.Context, root string) error {
	if p.target != nil {
		if err := p.finishTarget(); err != nil {
			return err
		}
	}
	t, err := target.Open(ctx, root)
	if err != nil {
		return err
	}
	p.target = t

	// $releasever follows the installed base product unless configured
	if p.cfg.ReleaseVer == "" {
		if version := p.baseProductVersion(); version != "" {
			vars := p.repos.Vars()
			vars.ReleaseVer = version
			p.repos.SetVars(vars)
		}
	}
	log.Logger.Infof("Initialized target %s", root)
	return nil
}

func (p *PkgFunctions) baseProductVersion() string {
	if p.target.BaseProduct() == "" {
		return ""
	}
	products, err := target.ReadProducts(filepath.Join(p.target.Root(), target.ProductsDir))
	if err != nil {
		return ""
	}
	for _, prod := range products {
		if prod.Product != nil && prod.Product.Type == "base" {
			return prod.Edition.Version()
		}
	}
	return ""
}

// TargetLoad adds the installed resolvables to the pool.
func (p *PkgFunctions) TargetLoad(ctx context.Context) bool {
	if p.targetLoaded {
		log.Logger.Infof("The target system is already loaded")
		return true
	}
	progress := p.callbacks.StartProgress(ctx, "Loading the Package Manager...",
		[]string{"Read Installed Packages"}, loadTargetHelp)
	defer progress.Done()

	if err := p.loadTarget(ctx); err != nil {
		p.fail("TargetLoad", err)
		return false
	}
	return true
}

func (p *PkgFunctions) loadTarget(ctx context.Context) error {
	if p.target == nil {
		return errors.New("target is not initialized")
	}
	rs, err := p.target.Resolvables(ctx)
	if err != nil {
		return err
	}
	p.pool.RemoveRepo(pool.SystemRepo)
	p.applyLocks(p.pool.Add(rs))
	p.targetLoaded = true
	log.Logger.Infof("Loaded %d installed resolvables", len(rs))
	return nil
}

// TargetFinish unloads the installed resolvables and closes the target.
func (p *PkgFunctions) TargetFinish() bool {
	if err := p.finishTarget(); err != nil {
		p.fail("TargetFinish", err)
		return false
	}
	return true
}

func (p *PkgFunctions) finishTarget() error {
	p.pool.RemoveRepo(pool.SystemRepo)
	p.targetLoaded = false
	if p.target == nil {
		return nil
	}
	err := p.target.Close()
	p.target = nil
	return err
}

// TargetInstall records the rpm file in the target store.
func (p *PkgFunctions) TargetInstall(ctx context.Context, rpmfile string) bool {
	if p.target == nil {
		p.lastErr.Set("Target is not initialized", "")
		return false
	}
	r, err := p.target.Install(ctx, rpmfile)
	if err != nil {
		p.fail("TargetInstall", err)
		return false
	}
	if p.targetLoaded {
		p.pool.Add([]*pool.Resolvable{r})
	}
	return true
}

// TargetRemove forgets the installed package name.
func (p *PkgFunctions) TargetRemove(ctx context.Context, name string) bool {
	if p.target == nil {
		p.lastErr.Set("Target is not initialized", "")
		return false
	}
	if err := p.target.Remove(ctx, name); err != nil {
		p.fail("TargetRemove", err)
		return false
	}
	if p.targetLoaded {
		if err := p.loadTarget(ctx); err != nil {
			p.fail("TargetRemove", err)
			return false
		}
	}
	return true
}

func diskStat(dir string, pick func(du.Stats) int64) int64 {
	st, err := du.Stat(dir)
	if err != nil {
		log.Logger.Errorf("Cannot read disk stats of %s: %v", dir, err)
		return -1
	}
	return pick(st)
}

// TargetCapacity returns the size of the filesystem holding dir in bytes,
// -1 on error. TargetUsed, TargetAvailable and TargetBlockSize work alike.
func (p *PkgFunctions) TargetCapacity(dir string) int64 {
	return diskStat(dir, func(st du.Stats) int64 { return st.Total })
}

func (p *PkgFunctions) TargetUsed(dir string) int64 {
	return diskStat(dir, func(st du.Stats) int64 { return st.Used })
}

// TargetAvailable is the space free for unprivileged users.
func (p *PkgFunctions) TargetAvailable(dir string) int64 {
	return diskStat(dir, func(st du.Stats) int64 { return st.Available })
}

func (p *PkgFunctions) TargetBlockSize(dir string) int64 {
	return diskStat(dir, func(st du.Stats) int64 { return st.BlockSize })
}

// TargetInitDU sets the partitions disk usage is computed for. Sizes are
// KiB. An empty list reads the partitions of the system.
func (p *PkgFunctions) TargetInitDU(items []value.Value) {
	if len(items) == 0 {
		log.Logger.Warnf("Empty list of partitions, using the current system")
		p.setCurrentDU()
		return
	}

	var mps []du.MountPoint
	for _, item := range items {
		m, ok := item.AsMap()
		if !ok {
			log.Logger.Errorf("TargetInitDU: not a map: %s", item)
			continue
		}
		name, ok := m["name"].AsString()
		if !ok || name == "" {
			log.Logger.Errorf("TargetInitDU: missing or invalid \"name\" in %s", item)
			continue
		}
		free, ok := m["free"].AsInt()
		if !ok {
			log.Logger.Errorf("TargetInitDU: missing or invalid \"free\" in %s", item)
			continue
		}
		used, ok := m["used"].AsInt()
		if !ok {
			log.Logger.Errorf("TargetInitDU: missing or invalid \"used\" in %s", item)
			continue
		}
		fs, _ := m["filesystem"].AsString()
		readonly, _ := m["readonly"].AsBool()
		growonly, _ := m["growonly"].AsBool()

		mps = append(mps, du.MountPoint{
			Dir:        name,
			Filesystem: fs,
			BlockSize:  du.DefaultBlockSize,
			TotalSize:  free + used,
			UsedSize:   used,
			ReadOnly:   readonly,
			GrowOnly:   growonly,
		})
		log.Logger.Infof("Adding mount point %s (%s) used %d KiB, free %d KiB", du.NormalizeDir(name), fs, used, free)
	}
	p.du.SetPartitions(mps)
}

func (p *PkgFunctions) setCurrentDU() {
	root := "/"
	if p.target != nil {
		root = p.target.Root()
	}
	mps, err := du.DetectMountPoints(root)
	if err != nil {
		log.Logger.Errorf("Cannot detect the mount points: %v", err)
		return
	}
	p.du.SetPartitions(mps)
}

// mountPointsToMap renders mps as {dir: [total, used, pkgusage, readonly]}.
func mountPointsToMap(mps []du.MountPoint) value.Value {
	out := make(map[string]value.Value, len(mps))
	for _, mp := range mps {
		readonly := int64(0)
		if mp.ReadOnly {
			readonly = 1
		}
		out[du.NormalizeDir(mp.Dir)] = value.Ints([]int64{mp.TotalSize, mp.UsedSize, mp.PkgSize, readonly})
	}
	return value.Map(out)
}

// TargetGetDU returns the usage after the pending transaction, reading
// the system partitions when none were set.
func (p *PkgFunctions) TargetGetDU() value.Value {
	if p.du.Empty() {
		log.Logger.Warnf("Pkg::TargetInitDU() has not been called, using data from system...")
		p.setCurrentDU()
	}
	return mountPointsToMap(p.du.DiskUsage(p.pool.Transacting()))
}

// PkgDU returns the usage of one package per partition.
func (p *PkgFunctions) PkgDU(name string) value.Value {
	it := p.findPackage(name)
	if it == nil {
		return value.Nil()
	}
	if len(du.Usage(it.Resolvable)) == 0 {
		log.Logger.Warnf("Disk usage for package %s is unknown", name)
		return value.Nil()
	}
	return mountPointsToMap(p.du.PackageUsage(it.Resolvable))
}

// TargetFileHasOwner reports whether an installed package owns the
// absolute path.
func (p *PkgFunctions) TargetFileHasOwner(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	for _, it := range p.pool.ByKind(pool.Package) {
		if it.Installed() && it.Provides(path) {
			return true
		}
	}
	return false
}
