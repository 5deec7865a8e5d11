package bindings

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"pkgbind/internal/builtin"
	"pkgbind/internal/callback"
	"pkgbind/internal/config"
	"pkgbind/internal/value"
	_ "pkgbind/pkg"
	"pkgbind/pkg/pool"
)

const testPrimary = `<?xml version="1.0" encoding="UTF-8"?>
<metadata xmlns="http://linux.duke.edu/metadata/common" xmlns:rpm="http://linux.duke.edu/metadata/rpm" packages="3">
<package type="rpm">
  <name>vim</name>
  <arch>x86_64</arch>
  <version epoch="0" ver="9.1" rel="2.1"/>
  <checksum type="sha256" pkgid="YES">abc</checksum>
  <summary>Vi IMproved</summary>
  <description>An editor.</description>
  <size package="1500000" installed="3600000" archive="3700000"/>
  <location href="x86_64/vim-9.1-2.1.x86_64.rpm"/>
  <format>
    <rpm:license>Vim</rpm:license>
    <rpm:vendor>openSUSE</rpm:vendor>
    <rpm:group>Productivity/Text/Editors</rpm:group>
    <rpm:provides>
      <rpm:entry name="vim" flags="EQ" epoch="0" ver="9.1" rel="2.1"/>
      <rpm:entry name="vi"/>
    </rpm:provides>
    <rpm:requires>
      <rpm:entry name="libc.so.6()(64bit)"/>
    </rpm:requires>
    <file>/usr/bin/vim</file>
  </format>
</package>
<package type="rpm">
  <name>vim</name>
  <arch>x86_64</arch>
  <version epoch="0" ver="9.0" rel="1.1"/>
  <summary>Vi IMproved</summary>
  <size package="1400000" installed="3500000" archive="3600000"/>
  <location href="x86_64/vim-9.0-1.1.x86_64.rpm"/>
</package>
<package type="rpm">
  <name>patterns-base-basesystem</name>
  <arch>x86_64</arch>
  <version epoch="0" ver="20200124" rel="1.1"/>
  <summary>Base System</summary>
  <location href="x86_64/patterns-base-basesystem.rpm"/>
  <format>
    <rpm:provides>
      <rpm:entry name="pattern()" flags="EQ" ver="basesystem"/>
      <rpm:entry name="pattern-visible()"/>
    </rpm:provides>
  </format>
</package>
</metadata>`

const testUpdateinfo = `<?xml version="1.0" encoding="UTF-8"?>
<updates>
  <update from="maint@example.com" status="stable" type="security" version="1">
    <id>openSUSE-2024-101</id>
    <title>Security update for vim</title>
    <message>Restart vim after the update.</message>
    <pkglist>
      <collection>
        <package name="vim" epoch="0" version="9.1" release="2.1" arch="x86_64">
          <filename>vim-9.1-2.1.x86_64.rpm</filename>
          <reboot_suggested/>
        </package>
      </collection>
    </pkglist>
  </update>
  <update from="maint@example.com" status="stable" type="optional" version="1">
    <id>openSUSE-2024-102</id>
    <title>Optional update for vim</title>
    <pkglist>
      <collection>
        <package name="vim" epoch="0" version="9.1" release="2.1" arch="x86_64"/>
      </collection>
    </pkglist>
  </update>
</updates>`

func gzipped(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func sha(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// writeRepo creates an rpm-md repository and returns its dir:// URL.
func writeRepo(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "oss")
	primary := gzipped(t, testPrimary)
	updateinfo := gzipped(t, testUpdateinfo)
	repomd := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<repomd xmlns="http://linux.duke.edu/metadata/repo">
  <revision>1700000000</revision>
  <data type="primary">
    <checksum type="sha256">%s</checksum>
    <location href="repodata/primary.xml.gz"/>
  </data>
  <data type="updateinfo">
    <checksum type="sha256">%s</checksum>
    <location href="repodata/updateinfo.xml.gz"/>
  </data>
</repomd>`, sha(primary), sha(updateinfo))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "repodata"), 0755))
	for name, data := range map[string][]byte{
		"repomd.xml":        []byte(repomd),
		"primary.xml.gz":    primary,
		"updateinfo.xml.gz": updateinfo,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "repodata", name), data, 0644))
	}
	return "dir://" + dir
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Arch = "x86_64"
	cfg.SetRoot(root)
	return cfg
}

func newTestBindings(t *testing.T, root string) *PkgFunctions {
	p, err := New(testConfig(root), nil)
	require.NoError(t, err)
	p.online = func() bool { return false }
	t.Cleanup(func() { p.Close() })
	return p
}

func installed(name, edition string) *pool.Resolvable {
	return &pool.Resolvable{
		Kind:        pool.Package,
		Name:        name,
		Edition:     pool.ParseEdition(edition),
		Arch:        "x86_64",
		InstallSize: 3500000,
		Deps:        []pool.Dependency{{Kind: "provides", Name: name}},
	}
}

func TestSourceCreateAndData(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	url := writeRepo(t)

	id := p.SourceCreate(ctx, url, "")
	require.Equal(t, int64(0), id, p.LastError())
	assert.Equal(t, value.Ints([]int64{0}), p.SourceGetCurrent(true))

	data, ok := p.SourceGeneralData(0).AsMap()
	require.True(t, ok)
	assert.Equal(t, value.String("oss"), data["alias"])
	assert.Equal(t, value.String("YUM"), data["type"])
	assert.Equal(t, value.String(url), data["url"])
	assert.Equal(t, value.Bool(true), data["autorefresh"])
	assert.Equal(t, value.Bool(true), data["is_update_repo"])

	media, ok := p.SourceMediaData(0).AsMap()
	require.True(t, ok)
	assert.Equal(t, value.Int(1), media["media_count"])

	assert.True(t, p.SourceSetPriority(0, 200))
	assert.Equal(t, value.Int(99), p.SourceGeneralData(0).Lookup("priority"))
	assert.True(t, p.SourceRaisePriority(0))
	assert.Equal(t, value.Int(98), p.SourceGeneralData(0).Lookup("priority"))

	assert.True(t, p.SourceGeneralData(7).IsNil())
	assert.Equal(t, "Cannot find source", p.LastError())

	path := p.SourceProvideFile(ctx, 0, 1, "repodata/repomd.xml")
	s, ok := path.AsString()
	require.True(t, ok, p.LastError())
	assert.FileExists(t, s)
	assert.True(t, p.SourceProvideOptionalFile(ctx, 0, 1, "missing.txt").IsNil())
	assert.True(t, p.SourceReleaseAll())

	assert.True(t, p.SourceDelete(ctx, 0))
	assert.Equal(t, value.Ints(nil), p.SourceGetCurrent(false))
	assert.False(t, p.pool.AnyFrom("oss"))
}

func TestCreateInvalidURL(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	assert.Equal(t, int64(-1), p.SourceCreate(context.Background(), "no-scheme", ""))
	assert.Equal(t, "Invalid URL", p.LastError())
}

func TestRepositoryAddSaveRestore(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	p := newTestBindings(t, root)

	id := p.RepositoryAdd(map[string]value.Value{
		"base_urls": value.Strings([]string{"https://download.example.com/repo/oss"}),
		"alias":     value.String("oss"),
		"name":      value.String("Main Repository"),
		"priority":  value.Int(0),
		"enabled":   value.Bool(false),
	})
	assert.Equal(t, value.Int(0), id)
	assert.True(t, p.RepositoryAdd(map[string]value.Value{
		"base_url": value.String("https://download.example.com/other"),
		"alias":    value.String("oss"),
	}).IsNil(), "duplicate alias")
	assert.True(t, p.RepositoryAdd(map[string]value.Value{
		"base_url": value.String("https://download.example.com/other"),
		"type":     value.String("bogus"),
	}).IsNil(), "unknown type")

	require.True(t, p.SourceSaveAll(ctx), p.LastError())

	restored := newTestBindings(t, root)
	require.True(t, restored.SourceRestore(ctx))
	edit, ok := restored.SourceEditGet().AsList()
	require.True(t, ok)
	require.Len(t, edit, 1)
	assert.Equal(t, value.String("Main Repository"), edit[0].Lookup("name"))
	assert.Equal(t, value.Int(1), edit[0].Lookup("priority"))
	assert.Equal(t, value.Bool(false), edit[0].Lookup("enabled"))

	assert.True(t, restored.SourceEditSet([]value.Value{value.Map(map[string]value.Value{
		"SrcId":   value.Int(0),
		"name":    value.String("Renamed"),
		"enabled": value.Bool(true),
	})}))
	assert.False(t, restored.SourceEditSet([]value.Value{value.Map(map[string]value.Value{
		"name": value.String("no id"),
	})}))
	assert.Equal(t, value.String("Renamed"), restored.SourceGeneralData(0).Lookup("name"))

	assert.True(t, restored.SourceDelete(ctx, 0))
	require.True(t, restored.SourceSaveAll(ctx), restored.LastError())
	assert.False(t, restored.repos.HasRepository("oss"))
}

// loadedBindings returns bindings with the test repository loaded and vim
// 9.0 installed on the target.
func loadedBindings(t *testing.T) *PkgFunctions {
	root := t.TempDir()
	ctx := context.Background()
	p := newTestBindings(t, root)

	require.True(t, p.TargetInitialize(ctx, root), p.LastError())
	require.NoError(t, p.target.Record(ctx, installed("vim", "9.0-1.1")))
	require.True(t, p.TargetLoad(ctx), p.LastError())
	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())
	return p
}

func TestPackages(t *testing.T) {
	p := loadedBindings(t)

	assert.True(t, p.PkgInstalled("vim"))
	assert.True(t, p.PkgAvailable("vim"))
	assert.False(t, p.PkgInstalled("emacs"))
	assert.True(t, p.IsProvided("vim"))
	assert.True(t, p.IsAvailable("vi"))
	assert.False(t, p.IsSelected("vi"))

	assert.Equal(t, value.String("9.1-2.1"), p.PkgVersion("vim"))
	assert.Equal(t, value.String("Vi IMproved"), p.PkgSummary("vim"))
	assert.Equal(t, value.Int(3600000), p.PkgSize("vim"))
	assert.Equal(t, value.String("vim-9.1-2.1.x86_64.rpm"), p.PkgLocation("vim"))
	assert.True(t, p.PkgVersion("emacs").IsNil())

	props, ok := p.PkgProperties("vim").AsMap()
	require.True(t, ok)
	assert.Equal(t, value.Int(0), props["srcid"])
	assert.Equal(t, value.Symbol("available"), props["status"])

	require.True(t, p.PkgInstall("vim"))
	assert.True(t, p.IsSelected("vi"))
	assert.Equal(t, value.Strings([]string{"vim"}), p.GetPackages("selected", true))
	assert.Equal(t, value.Strings([]string{"vim 9.0 1.1 x86_64"}), p.GetPackages("installed", false))
	assert.True(t, p.GetPackages("bogus", true).IsNil())
	assert.Equal(t, value.Bool(true), p.IsAnyResolvable("package", "to_install"))

	require.True(t, p.PkgNeutral("vim"))
	assert.Equal(t, value.Bool(false), p.IsAnyResolvable("any", "to_install"))

	require.True(t, p.PkgDelete("vim"))
	assert.Equal(t, value.Bool(true), p.IsAnyResolvable("package", "to_remove"))
	require.True(t, p.PkgApplReset())
	assert.Equal(t, value.Bool(false), p.IsAnyResolvable("package", "to_remove"))

	require.True(t, p.PkgTaboo("vim"))
	assert.Equal(t, value.Strings([]string{"vim", "vim"}), p.GetPackages("taboo", true))
	assert.False(t, p.PkgInstall("vim"), "locked")
	require.True(t, p.PkgReset())
	assert.True(t, p.PkgInstall("vim"))
}

func TestResolvables(t *testing.T) {
	p := loadedBindings(t)

	props, ok := p.ResolvableProperties("vim", "package", "9.1-2.1").AsList()
	require.True(t, ok)
	require.Len(t, props, 1)
	vim := props[0]
	assert.Equal(t, value.String("x86_64"), vim.Lookup("arch"))
	assert.Equal(t, value.String("Vim"), vim.Lookup("license"))
	assert.Equal(t, value.Int(0), vim.Lookup("source"))
	assert.True(t, vim.Lookup("dependencies").IsNil())

	deps, ok := p.ResolvableDependencies("vim", "package", "9.1-2.1").AsList()
	require.True(t, ok)
	require.Len(t, deps, 1)
	assert.Contains(t, deps[0].Lookup("dependencies").String(), "libc.so.6()(64bit)")

	pattern, ok := p.ResolvableProperties("basesystem", "pattern", "").AsList()
	require.True(t, ok)
	require.Len(t, pattern, 1)
	assert.Equal(t, value.Bool(true), pattern[0].Lookup("user_visible"))

	assert.True(t, p.ResolvableProperties("vim", "bogus", "").IsNil())
	assert.Equal(t, "Invalid resolvable kind", p.LastError())

	list, ok := p.Resolvables(map[string]value.Value{
		"kind":   value.Symbol("package"),
		"status": value.Symbol("installed"),
	}, []value.Value{value.String("name"), value.String("version")}).AsList()
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"name", "version"}, list[0].Keys())
	assert.Equal(t, value.String("9.0-1.1"), list[0].Lookup("version"))

	byString, ok := p.Resolvables(map[string]value.Value{
		"kind":   value.String("package"),
		"status": value.String("installed"),
	}, []value.Value{value.String("name"), value.String("version")}).AsList()
	require.True(t, ok)
	assert.Equal(t, list, byString)
	assert.True(t, p.Resolvables(map[string]value.Value{"kind": value.Int(1)}, nil).IsNil())
	assert.Equal(t, "Invalid value for \"kind\"", p.LastError())

	assert.True(t, p.Resolvables(map[string]value.Value{"color": value.String("red")}, nil).IsNil())
	assert.Equal(t, "Unknown filter key", p.LastError())

	assert.Equal(t, value.Bool(true), p.AnyResolvable(map[string]value.Value{"repo": value.Int(0)}))
	assert.Equal(t, value.Bool(false), p.AnyResolvable(map[string]value.Value{"name": value.String("emacs")}))
}

func TestResolvableTransactions(t *testing.T) {
	p := loadedBindings(t)

	assert.False(t, p.ResolvableInstall("", "package"))
	assert.False(t, p.ResolvableInstallArchVersion("vim", "package", "", "9.1-2.1"))

	require.True(t, p.ResolvableInstallArchVersion("vim", "package", "x86_64", "9.1-2.1"))
	sel := p.pool.Select(func(it *pool.Item) bool { return it.ToBeInstalled() })
	require.Len(t, sel, 1)
	assert.Equal(t, "9.1-2.1", sel[0].Edition.String())

	require.True(t, p.ResolvableNeutral("vim", "package", false))
	assert.Empty(t, p.pool.Transacting())

	require.True(t, p.ResolvableUpdate("vim", "package"))
	assert.Equal(t, value.Bool(true), p.IsAnyResolvable("package", "to_install"))

	require.True(t, p.ResolvableNeutral("", "package", true))
	require.True(t, p.ResolvableInstallRepo("", "pattern", 0))
	assert.Equal(t, value.Bool(true), p.IsAnyResolvable("pattern", "to_install"))
	assert.False(t, p.ResolvableInstallRepo("vim", "package", 5))

	require.True(t, p.ResolvableRemove("vim", "package"))
	assert.Equal(t, value.Bool(true), p.IsAnyResolvable("package", "to_remove"))
	assert.False(t, p.ResolvableRemove("emacs", "package"))

	require.True(t, p.ResolvableNeutral("", "package", true))
	require.True(t, p.ResolvableSetSoftLock("vim", "package"))
	assert.True(t, p.IsAnyResolvable("bogus", "to_install").IsNil())
	assert.True(t, p.IsAnyResolvable("package", "bogus").IsNil())
}

func TestPatches(t *testing.T) {
	p := loadedBindings(t)

	assert.Equal(t, int64(1), p.ResolvableCountPatches("all"), "optional patch skipped")
	assert.Equal(t, int64(1), p.ResolvableCountPatches("reboot_needed"))
	assert.Equal(t, int64(0), p.ResolvableCountPatches("affects_pkg_manager"))
	assert.Equal(t, int64(0), p.ResolvableCountPatches("bogus"))
	assert.Equal(t, "Wrong parameter", p.LastError())

	var messages []string
	p.Callbacks().SetInvoker(callback.InvokerFunc(func(_ context.Context, handler string, args []value.Value) (value.Value, error) {
		msg, _ := args[3].AsString()
		messages = append(messages, msg)
		return value.Bool(handler == "accept"), nil
	}))
	p.Callbacks().Set(callback.Message, "decline")
	assert.Equal(t, int64(0), p.ResolvablePreselectPatches(context.Background(), "all"))
	assert.Equal(t, value.Bool(false), p.IsAnyResolvable("patch", "to_install"))

	p.Callbacks().Set(callback.Message, "accept")
	assert.Equal(t, int64(1), p.ResolvablePreselectPatches(context.Background(), "all"))
	assert.Equal(t, value.Bool(true), p.IsAnyResolvable("patch", "to_install"))
	assert.Equal(t, []string{"Restart vim after the update.", "Restart vim after the update."}, messages)

	byCauser, ok := p.Resolvables(map[string]value.Value{"transact_by": value.String("app_high")}, nil).AsList()
	require.True(t, ok)
	require.Len(t, byCauser, 1)
	assert.Equal(t, value.String("openSUSE-2024-101"), byCauser[0].Lookup("name"))
}

func TestDiskUsage(t *testing.T) {
	p := loadedBindings(t)
	p.TargetInitDU([]value.Value{
		value.Map(map[string]value.Value{
			"name": value.String("/"),
			"free": value.Int(9000),
			"used": value.Int(1000),
		}),
		value.Map(map[string]value.Value{"name": value.String("/broken")}),
	})

	require.True(t, p.PkgInstall("vim"))
	du := p.TargetGetDU()
	assert.Equal(t, value.Ints([]int64{10000, 1000, 4516, 0}), du.Lookup("/"))
	assert.True(t, du.Lookup("/broken").IsNil())

	// the package alone
	assert.Equal(t, value.Ints([]int64{10000, 1000, 3516, 0}), p.PkgDU("vim").Lookup("/"))
	assert.True(t, p.PkgDU("emacs").IsNil())
}

func TestRegisteredBuiltins(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	reg := builtin.NewRegistry()
	p.Register(reg)
	ctx := context.Background()

	for _, name := range []string{"SourceCreate", "TargetInit", "Resolvables", "CallbackMessage", "SkipRefresh", "PkgDU",
		"AddLock", "SourceProvideSignedFile", "PkgMediaNames", "SetTextLocale", "TargetFileHasOwner"} {
		assert.True(t, reg.Has(name), name)
	}

	res, err := reg.Call(ctx, "RestoreState", nil)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), res)
	res, err = reg.Call(ctx, "SaveState", nil)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), res)
	res, err = reg.Call(ctx, "RestoreState", []value.Value{value.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), res)

	res, err = reg.Call(ctx, "CompareVersions", []value.Value{value.String("1.0-1"), value.String("1.1-1")})
	require.NoError(t, err)
	assert.Equal(t, value.Int(-1), res)

	_, err = reg.Call(ctx, "CallbackImportGpgKey", []value.Value{value.String("accept_key")})
	require.NoError(t, err)
	assert.Equal(t, "accept_key", p.Callbacks().Handler(callback.ImportGpgKey))

	res, err = reg.Call(ctx, "ExpandedUrl", []value.Value{value.String("http://example.com/$basearch/")})
	require.NoError(t, err)
	assert.Equal(t, value.String("http://example.com/x86_64/"), res)

	res, err = reg.Call(ctx, "UrlSchemeIsVolatile", []value.Value{value.String("dvd")})
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), res)

	_, err = reg.Call(ctx, "TargetInit", []value.Value{value.Int(1)})
	assert.ErrorIs(t, err, builtin.ErrArgumentType)
}

func TestSkipRefreshDuringLoad(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	reg := builtin.NewRegistry()
	p.Register(reg)

	// the handler runs while SourceLoad holds the registry lock
	p.Callbacks().SetInvoker(callback.InvokerFunc(func(ctx context.Context, handler string, _ []value.Value) (value.Value, error) {
		_, err := reg.Call(ctx, "SkipRefresh", nil)
		return value.Nil(), err
	}))
	p.Callbacks().Set(callback.StartSourceRefresh, "skip")

	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())
	p.pool.RemoveRepo("oss")

	res, err := reg.Call(ctx, "SourceLoad", nil)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), res)
	assert.True(t, p.skipRefresh.Load())
	assert.True(t, p.pool.AnyFrom("oss"), "cached metadata still loaded")
}

func TestBaseArch(t *testing.T) {
	for arch, want := range map[string]string{
		"x86_64":  "x86_64",
		"i686":    "i386",
		"armv7hl": "armv7hl",
		"armv6l":  "armv6hl",
	} {
		assert.Equal(t, want, baseArch(arch), arch)
	}
}

func TestInvalidAliasRejected(t *testing.T) {
	root := t.TempDir()
	p := newTestBindings(t, root)
	ctx := context.Background()

	assert.True(t, p.RepositoryAdd(map[string]value.Value{
		"base_url": value.String("https://download.example.com/oss"),
		"alias":    value.String("../../../../victim"),
	}).IsNil())
	assert.Equal(t, "invalid repository alias", p.LastErrorDetails())

	assert.Equal(t, int64(-1), p.SourceCreate(ctx, writeRepo(t)+"?alias=../x", ""))
	assert.Equal(t, "invalid repository alias", p.LastErrorDetails())

	assert.Equal(t, value.Ints(nil), p.SourceGetCurrent(false))
	require.True(t, p.SourceSaveAll(ctx), p.LastError())
	_, err := os.Stat(filepath.Join(filepath.Dir(p.repos.ReposDir()), "x.repo"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteKeepsIDs(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	first, second := writeRepo(t), writeRepo(t)

	require.Equal(t, int64(0), p.SourceCreate(ctx, first, ""), p.LastError())
	require.Equal(t, int64(1), p.SourceCreate(ctx, second, ""), p.LastError())
	assert.Equal(t, 2, p.Repositories())

	require.True(t, p.SourceDelete(ctx, 0))
	assert.Equal(t, 1, p.Repositories())

	assert.Equal(t, value.String(second), p.SourceGeneralData(1).Lookup("url"))
	assert.True(t, p.SourceGeneralData(0).IsNil())
	assert.Equal(t, "Cannot find source", p.LastError())
	assert.Equal(t, value.Ints([]int64{1}), p.SourceGetCurrent(false))

	assert.False(t, p.SourceDelete(ctx, 0), "already deleted")
	assert.Equal(t, 1, p.Repositories())
}

func TestNilSourceIDRejected(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	reg := builtin.NewRegistry()
	p.Register(reg)
	ctx := context.Background()
	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())

	_, err := reg.Call(ctx, "SourceDelete", []value.Value{value.Nil()})
	assert.ErrorIs(t, err, builtin.ErrArgumentType)
	assert.Equal(t, 1, p.Repositories())
}

// recordCallbacks registers every event under its own name and records the
// handlers in call order. answers maps handlers to their replies.
func recordCallbacks(p *PkgFunctions, answers map[string][]value.Value) *[]string {
	var calls []string
	for _, id := range callback.All {
		p.Callbacks().Set(id, string(id))
	}
	p.Callbacks().SetInvoker(callback.InvokerFunc(func(_ context.Context, handler string, _ []value.Value) (value.Value, error) {
		calls = append(calls, handler)
		if replies := answers[handler]; len(replies) > 0 {
			answers[handler] = replies[1:]
			return replies[0], nil
		}
		return value.Nil(), nil
	}))
	return &calls
}

func only(calls []string, ids ...callback.ID) []string {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[string(id)] = true
	}
	var out []string
	for _, c := range calls {
		if keep[c] {
			out = append(out, c)
		}
	}
	return out
}

func TestSourceReportCallbacks(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	calls := recordCallbacks(p, map[string][]value.Value{
		"SourceReportError": {value.String("RETRY"), value.String("ABORT")},
	})

	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())
	assert.Equal(t, []string{"SourceCreateStart", "SourceCreateEnd"},
		only(*calls, callback.SourceCreateStart, callback.SourceCreateEnd))

	*calls = nil
	assert.True(t, p.SourceProvideFile(ctx, 0, 1, "missing.txt").IsNil())
	assert.Equal(t, []string{
		"SourceReportInit", "SourceReportStart",
		"SourceReportError", "SourceReportError",
		"SourceReportEnd", "SourceReportDestroy",
	}, only(*calls, callback.SourceReportInit, callback.SourceReportStart, callback.SourceReportError,
		callback.SourceReportEnd, callback.SourceReportDestroy))

	*calls = nil
	assert.True(t, p.SourceProvideOptionalFile(ctx, 0, 1, "missing.txt").IsNil())
	assert.NotContains(t, *calls, "SourceReportError")

	*calls = nil
	require.True(t, p.SourceRefreshNow(ctx, 0), p.LastError())
	assert.Equal(t, []string{"SourceReportStart", "SourceReportProgress", "SourceReportEnd"},
		only(*calls, callback.SourceReportStart, callback.SourceReportProgress, callback.SourceReportEnd))
}

func TestSourceReportAbort(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())

	recordCallbacks(p, map[string][]value.Value{"SourceReportProgress": {value.Bool(false)}})
	assert.False(t, p.SourceRefreshNow(ctx, 0))
	assert.Contains(t, p.LastErrorDetails(), "download aborted")
}

func TestMediaChangeRetry(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())
	p.collection[0].info.BaseURLs = []string{"dvd://" + strings.TrimPrefix(p.collection[0].info.URL(), "dir://")}

	calls := recordCallbacks(p, map[string][]value.Value{
		"MediaChange": {value.String(""), value.String("S")},
	})
	assert.True(t, p.SourceProvideFile(ctx, 0, 1, "missing.txt").IsNil())
	assert.Equal(t, []string{"MediaChange", "MediaChange"}, only(*calls, callback.MediaChange, callback.SourceReportError))
}

func TestSourceLoadAbort(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())
	require.Equal(t, int64(1), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())
	p.pool.RemoveRepo(p.collection[0].Alias())
	p.pool.RemoveRepo(p.collection[1].Alias())

	recordCallbacks(p, map[string][]value.Value{"ProcessProgress": {value.Bool(false)}})
	assert.False(t, p.SourceLoad(ctx))
	assert.False(t, p.pool.AnyFrom(p.collection[1].Alias()))
}

func TestPackageQueries(t *testing.T) {
	p := loadedBindings(t)
	ctx := context.Background()

	assert.Equal(t, value.String("Productivity/Text/Editors"), p.PkgGroup("vim"))
	assert.True(t, p.PkgGroup("emacs").IsNil())
	assert.Equal(t, value.Strings([]string{"/usr/bin/vim"}), p.PkgGetFilelist("vim", "any"))
	assert.Equal(t, value.Strings(nil), p.PkgGetFilelist("vim", "installed"))
	assert.Equal(t, value.Strings(nil), p.PkgGetFilelist("vim", "candidate"))
	assert.Equal(t, value.Strings(nil), p.PkgGetFilelist("vim", "bogus"))

	assert.False(t, p.PkgAnyToInstall())
	assert.False(t, p.PkgAnyToDelete())
	assert.False(t, p.IsManualSelection())
	empty := value.List(value.Ints(nil))
	assert.Equal(t, empty, p.PkgMediaCount())

	require.True(t, p.PkgInstall("vim"))
	assert.True(t, p.PkgAnyToInstall())
	assert.True(t, p.IsManualSelection())
	assert.Equal(t, value.Strings([]string{"/usr/bin/vim"}), p.PkgGetFilelist("vim", "candidate"))
	assert.Equal(t, value.List(value.Ints([]int64{1})), p.PkgMediaCount())
	assert.Equal(t, value.List(value.Ints([]int64{3600000})), p.PkgMediaSizes())
	assert.Equal(t, value.List(value.Ints([]int64{1500000})), p.PkgMediaPackageSizes())

	names, ok := p.PkgMediaNames().AsList()
	require.True(t, ok)
	require.Len(t, names, 1)
	entry, _ := names[0].AsList()
	require.Len(t, entry, 2)
	assert.Equal(t, value.Int(0), entry[1])

	require.True(t, p.PkgNeutral("vim"))
	require.True(t, p.PkgDelete("vim"))
	assert.True(t, p.PkgAnyToDelete())

	require.True(t, p.SourceSetEnabled(ctx, 0, false))
	assert.Equal(t, value.List(), p.PkgMediaCount())
	assert.Equal(t, value.List(), p.PkgMediaNames())
}

func TestTargetFileHasOwner(t *testing.T) {
	p := loadedBindings(t)
	ctx := context.Background()

	bash := installed("bash", "5.2-1.1")
	bash.Files = []string{"/usr/bin/bash"}
	require.NoError(t, p.target.Record(ctx, bash))
	require.NoError(t, p.loadTarget(ctx))

	assert.True(t, p.TargetFileHasOwner("/usr/bin/bash"))
	assert.False(t, p.TargetFileHasOwner("/usr/bin/vim"), "only the available vim has it")
	assert.False(t, p.TargetFileHasOwner("bash"))
}

func TestSaveRestoreState(t *testing.T) {
	p := loadedBindings(t)

	assert.False(t, p.RestoreState(false), "nothing saved")
	assert.False(t, p.RestoreState(true))

	require.True(t, p.SaveState())
	require.True(t, p.PkgInstall("vim"))
	assert.True(t, p.RestoreState(true))
	assert.True(t, p.IsSelected("vim"), "check only")

	assert.True(t, p.RestoreState(false))
	assert.False(t, p.IsSelected("vim"))
	assert.False(t, p.RestoreState(true))
	assert.True(t, p.ClearSaveState())
}

func TestLicenseToConfirm(t *testing.T) {
	p := loadedBindings(t)
	for _, it := range p.pool.ByIdent(pool.Package, "vim") {
		if !it.Installed() {
			it.LicenseToConfirm = "Accept the vim EULA."
		}
	}

	assert.Equal(t, "", p.PkgGetLicenseToConfirm("vim"), "not selected")
	assert.False(t, p.PkgMarkLicenseConfirmed("vim"))

	require.True(t, p.PkgInstall("vim"))
	assert.Equal(t, "Accept the vim EULA.", p.PkgGetLicenseToConfirm("vim"))
	assert.Equal(t, value.Map(map[string]value.Value{"vim": value.String("Accept the vim EULA.")}),
		p.PkgGetLicensesToConfirm([]value.Value{value.String("vim"), value.String("emacs"), value.Int(1)}))

	props, ok := p.ResolvableProperties("vim", "package", "9.1-2.1").AsList()
	require.True(t, ok)
	assert.Equal(t, value.Bool(false), props[0].Lookup("license_confirmed"))

	require.True(t, p.PkgMarkLicenseConfirmed("vim"))
	assert.False(t, p.PkgMarkLicenseConfirmed("vim"), "already confirmed")
	assert.Equal(t, "", p.PkgGetLicenseToConfirm("vim"))
	props, _ = p.ResolvableProperties("vim", "package", "9.1-2.1").AsList()
	assert.Equal(t, value.Bool(true), props[0].Lookup("license_confirmed"))
}

func TestLocks(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	p := newTestBindings(t, root)
	require.Equal(t, int64(0), p.SourceCreate(ctx, writeRepo(t), ""), p.LastError())

	assert.False(t, p.AddLock(map[string]value.Value{"kind": value.String("package")}), "kind must be a list")
	assert.False(t, p.AddLock(map[string]value.Value{"string_type": value.String("fuzzy")}))
	assert.False(t, p.AddLock(map[string]value.Value{"repo_id": value.Ints([]int64{5})}))

	require.True(t, p.AddLock(map[string]value.Value{
		"solvable:name": value.Strings([]string{"vim"}),
		"string_type":   value.String("exact"),
		"repo_id":       value.Ints([]int64{0}),
	}), p.LastError())
	assert.False(t, p.PkgInstall("vim"), "locked")
	assert.Equal(t, value.Strings([]string{"vim", "vim"}), p.GetPackages("taboo", true))
	assert.FileExists(t, p.cfg.LocksFile)

	lockList, ok := p.GetLocks().AsList()
	require.True(t, ok)
	require.Len(t, lockList, 1)
	lock := lockList[0]
	assert.Equal(t, value.Strings([]string{"vim"}), lock.Lookup("solvable:name"))
	assert.Equal(t, value.Ints([]int64{0}), lock.Lookup("repo_id"))
	assert.Equal(t, value.Bool(false), lock.Lookup("case_sensitive"))

	// a new session reads the stored locks
	second := newTestBindings(t, root)
	require.Equal(t, int64(0), second.SourceCreate(ctx, writeRepo(t), ""), second.LastError())
	assert.Len(t, second.locks, 1)

	lockMap, _ := lock.AsMap()
	assert.False(t, p.RemoveLock(map[string]value.Value{"global_string": value.Strings([]string{"vim"})}))
	require.True(t, p.RemoveLock(lockMap))
	assert.Equal(t, value.List(), p.GetLocks())
	assert.True(t, p.PkgInstall("vim"))
}

func TestLocales(t *testing.T) {
	p := newTestBindings(t, t.TempDir())

	p.SetTextLocale("de_DE")
	assert.Equal(t, "de_DE", p.GetTextLocale())
	assert.Equal(t, "de_DE", p.GetLocale())

	p.SetPackageLocale("cs_CZ")
	p.SetAdditionalLocales([]value.Value{value.String("en_US"), value.String("cs_CZ"), value.Int(1), value.String("en_US")})
	assert.Equal(t, value.Strings([]string{"en_US"}), p.GetAdditionalLocales())

	p.SetLocale("fr_FR")
	assert.Equal(t, "fr_FR", p.GetTextLocale())
	assert.Equal(t, "fr_FR", p.GetPackageLocale())
	assert.Equal(t, value.Strings([]string{"en_US"}), p.GetAdditionalLocales())

	p.SetPackageLocale("en_US")
	assert.Equal(t, value.Strings(nil), p.GetAdditionalLocales())
}

func armoredKey(t *testing.T, e *openpgp.Entity) string {
	path := filepath.Join(t.TempDir(), "key.asc")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := armor.Encode(f, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, e.Serialize(w))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestSourceProvideSignedFile(t *testing.T) {
	p := newTestBindings(t, t.TempDir())
	ctx := context.Background()
	url := writeRepo(t)
	require.Equal(t, int64(0), p.SourceCreate(ctx, url, ""), p.LastError())
	p.collection[0].info.GPGCheck = true
	dir := strings.TrimPrefix(url, "dir://")

	signer, err := openpgp.NewEntity("Media Signer", "", "media@example.com", nil)
	require.NoError(t, err)
	content := []byte("product data\n")
	var sig bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(content), nil))
	for name, data := range map[string][]byte{
		"content":      content,
		"content.asc":  sig.Bytes(),
		"tampered":     []byte("other data\n"),
		"tampered.asc": sig.Bytes(),
		"unsigned":     content,
		"unsigned-too": content,
		"accepted":     content,
		"accepted.asc": sig.Bytes(),
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}

	assert.True(t, p.SourceProvideSignedFile(ctx, 0, 1, "content", false).IsNil(), "unknown key")
	assert.True(t, p.SourceProvideSignedFile(ctx, 0, 1, "unsigned", false).IsNil(), "gpgcheck")

	recordCallbacks(p, map[string][]value.Value{"AcceptUnknownGpgKey": {value.Bool(true)}})
	_, ok := p.SourceProvideSignedFile(ctx, 0, 1, "accepted", false).AsString()
	assert.True(t, ok, p.LastError())

	_, err = p.keyring.Import(armoredKey(t, signer), true)
	require.NoError(t, err)
	path, ok := p.SourceProvideSignedFile(ctx, 0, 1, "content", false).AsString()
	require.True(t, ok, p.LastError())
	assert.FileExists(t, path)
	assert.True(t, p.SourceProvideSignedFile(ctx, 0, 1, "tampered", false).IsNil())
	assert.True(t, p.SourceProvideSignedFile(ctx, 0, 1, "missing", true).IsNil())

	p.collection[0].info.GPGCheck = false
	_, ok = p.SourceProvideSignedFile(ctx, 0, 1, "unsigned-too", false).AsString()
	assert.True(t, ok, p.LastError())
}
