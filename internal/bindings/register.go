package bindings

import (
	"context"

	"pkgbind/internal/builtin"
	"pkgbind/internal/callback"
	"pkgbind/internal/value"
)

const (
	tBool   = value.BoolKind
	tInt    = value.IntKind
	tString = value.StringKind
	tSymbol = value.SymbolKind
	tList   = value.ListKind
	tMap    = value.MapKind
)

func sig(kinds ...value.Kind) []value.Kind { return kinds }

// Register adds every builtin of p to reg.
func (p *PkgFunctions) Register(reg *builtin.Registry) {
	p.registerSources(reg)
	p.registerTarget(reg)
	p.registerResolvables(reg)
	p.registerPackages(reg)
	p.registerKeyring(reg)
	p.registerLocks(reg)
	p.registerLocales(reg)
	p.registerCallbacks(reg)
	p.registerMisc(reg)
}

func (p *PkgFunctions) registerSources(reg *builtin.Registry) {
	reg.Register("SourceStartManager", sig(tBool), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceStartManager(ctx, a.Bool(0)))
	})
	reg.Register("SourceRestore", nil, func(ctx context.Context, _ builtin.Args) value.Value {
		return value.Bool(p.SourceRestore(ctx))
	})
	reg.Register("SourceLoad", nil, func(ctx context.Context, _ builtin.Args) value.Value {
		return value.Bool(p.SourceLoad(ctx))
	})
	reg.RegisterUnlocked("SkipRefresh", nil, func(context.Context, builtin.Args) value.Value {
		p.SkipRefresh()
		return value.Nil()
	})
	reg.Register("SourceGetCurrent", sig(tBool), func(_ context.Context, a builtin.Args) value.Value {
		return p.SourceGetCurrent(a.Bool(0))
	})
	reg.Register("SourceGeneralData", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return p.SourceGeneralData(a.Int(0))
	})
	reg.Register("SourceURL", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return p.SourceURL(a.Int(0))
	})
	reg.Register("SourceRawURL", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return p.SourceRawURL(a.Int(0))
	})
	reg.Register("SourceMediaData", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return p.SourceMediaData(a.Int(0))
	})
	reg.Register("SourceProductData", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return p.SourceProductData(a.Int(0))
	})
	reg.Register("SourceEditGet", nil, func(context.Context, builtin.Args) value.Value {
		return p.SourceEditGet()
	})
	reg.Register("SourceEditSet", sig(tList), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceEditSet(a.List(0)))
	})
	reg.Register("SourceSetEnabled", sig(tInt, tBool), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceSetEnabled(ctx, a.Int(0), a.Bool(1)))
	})
	reg.Register("SourceSetAutorefresh", sig(tInt, tBool), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceSetAutorefresh(a.Int(0), a.Bool(1)))
	})
	reg.Register("SourceSetPriority", sig(tInt, tInt), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceSetPriority(a.Int(0), a.Int(1)))
	})
	reg.Register("SourceRaisePriority", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceRaisePriority(a.Int(0)))
	})
	reg.Register("SourceLowerPriority", sig(tInt), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceLowerPriority(a.Int(0)))
	})
	reg.Register("SourceChangeUrl", sig(tInt, tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceChangeUrl(a.Int(0), a.String(1)))
	})
	reg.Register("SourceDelete", sig(tInt), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceDelete(ctx, a.Int(0)))
	})

	reg.Register("SourceCreate", sig(tString, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Int(p.SourceCreate(ctx, a.String(0), a.String(1)))
	})
	reg.Register("SourceCreateBase", sig(tString, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Int(p.SourceCreateBase(ctx, a.String(0), a.String(1)))
	})
	reg.Register("SourceCreateType", sig(tString, tString, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Int(p.SourceCreateType(ctx, a.String(0), a.String(1), a.String(2)))
	})
	reg.Register("SourceScan", sig(tString, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return p.SourceScan(ctx, a.String(0), a.String(1))
	})
	reg.Register("RepositoryAdd", sig(tMap), func(_ context.Context, a builtin.Args) value.Value {
		return p.RepositoryAdd(a.Map(0))
	})
	reg.Register("RepositoryProbe", sig(tString, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return p.RepositoryProbe(ctx, a.String(0), a.String(1))
	})
	reg.Register("SourceRefreshNow", sig(tInt), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceRefreshNow(ctx, a.Int(0)))
	})
	reg.Register("SourceForceRefreshNow", sig(tInt), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceForceRefreshNow(ctx, a.Int(0)))
	})
	reg.Register("SourceSaveAll", nil, func(ctx context.Context, _ builtin.Args) value.Value {
		return value.Bool(p.SourceSaveAll(ctx))
	})
	reg.Register("SourceFinishAll", nil, func(ctx context.Context, _ builtin.Args) value.Value {
		return value.Bool(p.SourceFinishAll(ctx))
	})
	reg.Register("SourceReleaseAll", nil, func(context.Context, builtin.Args) value.Value {
		return value.Bool(p.SourceReleaseAll())
	})
	reg.Register("SourceProvideFile", sig(tInt, tInt, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return p.SourceProvideFile(ctx, a.Int(0), a.Int(1), a.String(2))
	})
	reg.Register("SourceProvideOptionalFile", sig(tInt, tInt, tString), func(ctx context.Context, a builtin.Args) value.Value {
		return p.SourceProvideOptionalFile(ctx, a.Int(0), a.Int(1), a.String(2))
	})
	reg.Register("SourceProvideSignedFile", sig(tInt, tInt, tString, tBool), func(ctx context.Context, a builtin.Args) value.Value {
		return p.SourceProvideSignedFile(ctx, a.Int(0), a.Int(1), a.String(2), a.Bool(3))
	})
	reg.Register("SourceProvideDirectory", sig(tInt, tInt, tString, tBool, tBool), func(ctx context.Context, a builtin.Args) value.Value {
		return p.SourceProvideDirectory(ctx, a.Int(0), a.Int(1), a.String(2), a.Bool(3), a.Bool(4))
	})
	reg.Register("SourceCacheCopyTo", sig(tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SourceCacheCopyTo(ctx, a.String(0)))
	})
}

func (p *PkgFunctions) registerTarget(reg *builtin.Registry) {
	reg.RegisterOptional("TargetInit", sig(tString, tBool), 1, func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.TargetInit(ctx, a.String(0)))
	})
	reg.Register("TargetInitialize", sig(tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.TargetInitialize(ctx, a.String(0)))
	})
	reg.Register("TargetLoad", nil, func(ctx context.Context, _ builtin.Args) value.Value {
		return value.Bool(p.TargetLoad(ctx))
	})
	reg.Register("TargetFinish", nil, func(context.Context, builtin.Args) value.Value {
		return value.Bool(p.TargetFinish())
	})
	reg.Register("TargetInstall", sig(tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.TargetInstall(ctx, a.String(0)))
	})
	reg.Register("TargetRemove", sig(tString), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.TargetRemove(ctx, a.String(0)))
	})

	stats := map[string]func(string) int64{
		"TargetCapacity":  p.TargetCapacity,
		"TargetUsed":      p.TargetUsed,
		"TargetAvailable": p.TargetAvailable,
		"TargetBlockSize": p.TargetBlockSize,
	}
	for name, fn := range stats {
		reg.Register(name, sig(tString), func(_ context.Context, a builtin.Args) value.Value {
			return value.Int(fn(a.String(0)))
		})
	}

	reg.Register("TargetInitDU", sig(tList), func(_ context.Context, a builtin.Args) value.Value {
		p.TargetInitDU(a.List(0))
		return value.Nil()
	})
	reg.Register("TargetGetDU", nil, func(context.Context, builtin.Args) value.Value {
		return p.TargetGetDU()
	})
	reg.Register("TargetFileHasOwner", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.TargetFileHasOwner(a.String(0)))
	})
	reg.Register("PkgDU", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return p.PkgDU(a.String(0))
	})
}

func (p *PkgFunctions) registerResolvables(reg *builtin.Registry) {
	reg.Register("Resolvables", sig(tMap, tList), func(_ context.Context, a builtin.Args) value.Value {
		return p.Resolvables(a.Map(0), a.List(1))
	})
	reg.Register("AnyResolvable", sig(tMap), func(_ context.Context, a builtin.Args) value.Value {
		return p.AnyResolvable(a.Map(0))
	})
	reg.Register("ResolvableProperties", sig(tString, tSymbol, tString), func(_ context.Context, a builtin.Args) value.Value {
		return p.ResolvableProperties(a.String(0), a.Symbol(1), a.String(2))
	})
	reg.Register("ResolvableDependencies", sig(tString, tSymbol, tString), func(_ context.Context, a builtin.Args) value.Value {
		return p.ResolvableDependencies(a.String(0), a.Symbol(1), a.String(2))
	})
	reg.Register("IsAnyResolvable", sig(tSymbol, tSymbol), func(_ context.Context, a builtin.Args) value.Value {
		return p.IsAnyResolvable(a.Symbol(0), a.Symbol(1))
	})

	byNameKind := map[string]func(string, string) bool{
		"ResolvableInstall":     p.ResolvableInstall,
		"ResolvableRemove":      p.ResolvableRemove,
		"ResolvableUpdate":      p.ResolvableUpdate,
		"ResolvableSetSoftLock": p.ResolvableSetSoftLock,
	}
	for name, fn := range byNameKind {
		reg.Register(name, sig(tString, tSymbol), func(_ context.Context, a builtin.Args) value.Value {
			return value.Bool(fn(a.String(0), a.Symbol(1)))
		})
	}
	reg.Register("ResolvableInstallArchVersion", sig(tString, tSymbol, tString, tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.ResolvableInstallArchVersion(a.String(0), a.Symbol(1), a.String(2), a.String(3)))
	})
	reg.Register("ResolvableInstallRepo", sig(tString, tSymbol, tInt), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.ResolvableInstallRepo(a.String(0), a.Symbol(1), a.Int(2)))
	})
	reg.Register("ResolvableNeutral", sig(tString, tSymbol, tBool), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.ResolvableNeutral(a.String(0), a.Symbol(1), a.Bool(2)))
	})

	reg.Register("ResolvableCountPatches", sig(tSymbol), func(_ context.Context, a builtin.Args) value.Value {
		return value.Int(p.ResolvableCountPatches(a.Symbol(0)))
	})
	reg.Register("ResolvablePreselectPatches", sig(tSymbol), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Int(p.ResolvablePreselectPatches(ctx, a.Symbol(0)))
	})

	reg.Register("GetSelections", sig(tSymbol, tString), func(_ context.Context, a builtin.Args) value.Value {
		return p.GetSelections(a.Symbol(0), a.String(1))
	})
	reg.Register("SelectionData", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return p.SelectionData(a.String(0))
	})
	reg.Register("SetSelection", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.SetSelection(a.String(0)))
	})
	reg.Register("ClearSelection", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.ClearSelection(a.String(0)))
	})
}

func (p *PkgFunctions) registerPackages(reg *builtin.Registry) {
	predicates := map[string]func(string) bool{
		"PkgInstall":   p.PkgInstall,
		"PkgDelete":    p.PkgDelete,
		"PkgNeutral":   p.PkgNeutral,
		"PkgTaboo":     p.PkgTaboo,
		"PkgInstalled": p.PkgInstalled,
		"PkgAvailable": p.PkgAvailable,
		"IsProvided":   p.IsProvided,
		"IsSelected":   p.IsSelected,
		"IsAvailable":  p.IsAvailable,
	}
	for name, fn := range predicates {
		reg.Register(name, sig(tString), func(_ context.Context, a builtin.Args) value.Value {
			return value.Bool(fn(a.String(0)))
		})
	}

	attrs := map[string]func(string) value.Value{
		"PkgProperties": p.PkgProperties,
		"PkgSummary":    p.PkgSummary,
		"PkgVersion":    p.PkgVersion,
		"PkgSize":       p.PkgSize,
		"PkgLocation":   p.PkgLocation,
		"PkgGroup":      p.PkgGroup,
	}
	for name, fn := range attrs {
		reg.Register(name, sig(tString), func(_ context.Context, a builtin.Args) value.Value {
			return fn(a.String(0))
		})
	}

	reg.Register("PkgReset", nil, func(context.Context, builtin.Args) value.Value {
		return value.Bool(p.PkgReset())
	})
	reg.Register("PkgApplReset", nil, func(context.Context, builtin.Args) value.Value {
		return value.Bool(p.PkgApplReset())
	})
	reg.Register("GetPackages", sig(tSymbol, tBool), func(_ context.Context, a builtin.Args) value.Value {
		return p.GetPackages(a.Symbol(0), a.Bool(1))
	})
	reg.Register("PkgGetFilelist", sig(tString, tSymbol), func(_ context.Context, a builtin.Args) value.Value {
		return p.PkgGetFilelist(a.String(0), a.Symbol(1))
	})

	flags := map[string]func() bool{
		"PkgAnyToInstall":   p.PkgAnyToInstall,
		"PkgAnyToDelete":    p.PkgAnyToDelete,
		"IsManualSelection": p.IsManualSelection,
		"SaveState":         p.SaveState,
		"ClearSaveState":    p.ClearSaveState,
	}
	for name, fn := range flags {
		reg.Register(name, nil, func(context.Context, builtin.Args) value.Value {
			return value.Bool(fn())
		})
	}
	reg.RegisterOptional("RestoreState", sig(tBool), 1, func(_ context.Context, a builtin.Args) value.Value {
		checkOnly, _ := a.Optional(0).AsBool()
		return value.Bool(p.RestoreState(checkOnly))
	})

	totals := map[string]func() value.Value{
		"PkgMediaNames":        p.PkgMediaNames,
		"PkgMediaSizes":        p.PkgMediaSizes,
		"PkgMediaPackageSizes": p.PkgMediaPackageSizes,
		"PkgMediaCount":        p.PkgMediaCount,
	}
	for name, fn := range totals {
		reg.Register(name, nil, func(context.Context, builtin.Args) value.Value {
			return fn()
		})
	}

	reg.Register("PkgGetLicenseToConfirm", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.String(p.PkgGetLicenseToConfirm(a.String(0)))
	})
	reg.Register("PkgGetLicensesToConfirm", sig(tList), func(_ context.Context, a builtin.Args) value.Value {
		return p.PkgGetLicensesToConfirm(a.List(0))
	})
	reg.Register("PkgMarkLicenseConfirmed", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.PkgMarkLicenseConfirmed(a.String(0)))
	})
}

func (p *PkgFunctions) registerKeyring(reg *builtin.Registry) {
	reg.Register("ImportGPGKey", sig(tString, tBool), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.ImportGPGKey(ctx, a.String(0), a.Bool(1)))
	})
	reg.Register("GPGKeys", sig(tBool), func(_ context.Context, a builtin.Args) value.Value {
		return p.GPGKeys(a.Bool(0))
	})
	reg.Register("DeleteGPGKey", sig(tString, tBool), func(ctx context.Context, a builtin.Args) value.Value {
		return value.Bool(p.DeleteGPGKey(ctx, a.String(0), a.Bool(1)))
	})
	reg.Register("CheckGPGKeyFile", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return p.CheckGPGKeyFile(a.String(0))
	})
}

func (p *PkgFunctions) registerLocks(reg *builtin.Registry) {
	reg.Register("AddLock", sig(tMap), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.AddLock(a.Map(0)))
	})
	reg.Register("GetLocks", nil, func(context.Context, builtin.Args) value.Value {
		return p.GetLocks()
	})
	reg.Register("RemoveLock", sig(tMap), func(_ context.Context, a builtin.Args) value.Value {
		return value.Bool(p.RemoveLock(a.Map(0)))
	})
}

func (p *PkgFunctions) registerLocales(reg *builtin.Registry) {
	setters := map[string]func(string){
		"SetTextLocale":    p.SetTextLocale,
		"SetPackageLocale": p.SetPackageLocale,
		"SetLocale":        p.SetLocale,
	}
	for name, fn := range setters {
		reg.Register(name, sig(tString), func(_ context.Context, a builtin.Args) value.Value {
			fn(a.String(0))
			return value.Nil()
		})
	}
	getters := map[string]func() string{
		"GetTextLocale":    p.GetTextLocale,
		"GetPackageLocale": p.GetPackageLocale,
		"GetLocale":        p.GetLocale,
	}
	for name, fn := range getters {
		reg.Register(name, nil, func(context.Context, builtin.Args) value.Value {
			return value.String(fn())
		})
	}
	reg.Register("SetAdditionalLocales", sig(tList), func(_ context.Context, a builtin.Args) value.Value {
		p.SetAdditionalLocales(a.List(0))
		return value.Nil()
	})
	reg.Register("GetAdditionalLocales", nil, func(context.Context, builtin.Args) value.Value {
		return p.GetAdditionalLocales()
	})
}

func (p *PkgFunctions) registerCallbacks(reg *builtin.Registry) {
	for _, id := range callback.All {
		reg.Register("Callback"+string(id), sig(tString), func(_ context.Context, a builtin.Args) value.Value {
			p.SetCallback(id, a.String(0))
			return value.Nil()
		})
	}
}

func (p *PkgFunctions) registerMisc(reg *builtin.Registry) {
	reg.Register("LastError", nil, func(context.Context, builtin.Args) value.Value {
		return value.String(p.LastError())
	})
	reg.Register("LastErrorDetails", nil, func(context.Context, builtin.Args) value.Value {
		return value.String(p.LastErrorDetails())
	})
	reg.Register("CompareVersions", sig(tString, tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.Int(p.CompareVersions(a.String(0), a.String(1)))
	})
	reg.Register("GetArchitecture", nil, func(context.Context, builtin.Args) value.Value {
		return value.String(p.GetArchitecture())
	})
	reg.Register("SystemArchitecture", nil, func(context.Context, builtin.Args) value.Value {
		return value.String(p.SystemArchitecture())
	})
	reg.Register("UrlKnownSchemes", nil, func(context.Context, builtin.Args) value.Value {
		return p.UrlKnownSchemes()
	})

	schemes := map[string]func(string) bool{
		"UrlSchemeIsRemote":      p.UrlSchemeIsRemote,
		"UrlSchemeIsLocal":       p.UrlSchemeIsLocal,
		"UrlSchemeIsVolatile":    p.UrlSchemeIsVolatile,
		"UrlSchemeIsDownloading": p.UrlSchemeIsDownloading,
	}
	for name, fn := range schemes {
		reg.Register(name, sig(tString), func(_ context.Context, a builtin.Args) value.Value {
			return value.Bool(fn(a.String(0)))
		})
	}

	reg.Register("ExpandedUrl", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.String(p.ExpandedUrl(a.String(0)))
	})
	reg.Register("ExpandedName", sig(tString), func(_ context.Context, a builtin.Args) value.Value {
		return value.String(p.ExpandedName(a.String(0)))
	})
	reg.Register("Connect", nil, func(context.Context, builtin.Args) value.Value {
		return value.Bool(p.Connect())
	})
}
