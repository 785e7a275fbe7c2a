package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosmos/audit-guardian/pkg/ident"
)

// writeInstall creates a minimal installed package under root and returns
// the corresponding loaded Install. Partial identifiers get a version and
// release filled in so the install is addressable.
func writeInstall(t *testing.T, root, spec string) *Install {
	t.Helper()

	id, err := ident.Parse(spec)
	require.NoError(t, err)
	if id.Version == "" {
		id.Version = "1.0.0"
	}
	if id.Release == "" {
		id.Release = "20240101120000"
	}

	path := InstallPath(id, root)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, string(MetaIdent)), []byte(id.String()+"\n"), 0o644))

	p, err := Load(id, root)
	require.NoError(t, err)
	return p
}

func writeMetafile(t *testing.T, p *Install, m MetaFile, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(p.Path, string(m)), []byte(content), 0o644))
}

// setPaths writes a PATH metafile with entries under the package's prefix.
func setPaths(t *testing.T, p *Install, subdirs ...string) {
	t.Helper()
	writeMetafile(t, p, MetaPath, strings.Join(prefixPaths(p, subdirs...), string(filepath.ListSeparator)))
}

func prefixPaths(p *Install, subdirs ...string) []string {
	var entries []string
	for _, sub := range subdirs {
		entries = append(entries, filepath.Join(p.Prefix(), sub))
	}
	return entries
}

func depsContent(installs ...*Install) string {
	var b strings.Builder
	for _, p := range installs {
		b.WriteString(p.Ident.String())
		b.WriteString("\n")
	}
	return b.String()
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeInstall(t, root, "core/redis/4.0.14/20200421191514")
	writeInstall(t, root, "core/redis/5.0.1/20210301000000")
	writeInstall(t, root, "acme/widget")

	installed, err := List(root)
	require.NoError(t, err)
	require.Len(t, installed, 3)
	require.Equal(t, "acme/widget", installed[0].Origin+"/"+installed[0].Name)
	require.Equal(t, "4.0.14", installed[1].Version)
	require.Equal(t, "5.0.1", installed[2].Version)
}

func TestList_EmptyRoot(t *testing.T) {
	installed, err := List(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, installed)
}

func TestLoad_FullyQualified(t *testing.T) {
	root := t.TempDir()
	written := writeInstall(t, root, "core/redis/4.0.14/20200421191514")

	p, err := Load(written.Ident, root)
	require.NoError(t, err)
	require.Equal(t, written.Ident, p.Ident)
	require.Equal(t, written.Path, p.Path)
}

func TestLoad_FullyQualifiedMissing(t *testing.T) {
	id, err := ident.Parse("core/redis/4.0.14/20200421191514")
	require.NoError(t, err)

	_, err = Load(id, t.TempDir())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_PartialResolvesLatest(t *testing.T) {
	root := t.TempDir()
	writeInstall(t, root, "core/redis/4.0.14/20200421191514")
	writeInstall(t, root, "core/redis/5.0.1/20210301000000")
	writeInstall(t, root, "core/redis/5.0.1/20210302000000")

	p, err := Load(ident.Ident{Origin: "core", Name: "redis"}, root)
	require.NoError(t, err)
	require.Equal(t, "5.0.1", p.Ident.Version)
	require.Equal(t, "20210302000000", p.Ident.Release)

	// Pinning the version picks the latest release of that version.
	p, err = Load(ident.Ident{Origin: "core", Name: "redis", Version: "4.0.14"}, root)
	require.NoError(t, err)
	require.Equal(t, "20200421191514", p.Ident.Release)
}

func TestLoadAtLeast(t *testing.T) {
	root := t.TempDir()
	writeInstall(t, root, "core/redis/4.0.14/20200421191514")
	writeInstall(t, root, "core/redis/5.0.1/20210301000000")

	p, err := LoadAtLeast(ident.Ident{Origin: "core", Name: "redis", Version: "4.5.0"}, root)
	require.NoError(t, err)
	require.Equal(t, "5.0.1", p.Ident.Version)

	// No version means any installed release satisfies the request.
	p, err = LoadAtLeast(ident.Ident{Origin: "core", Name: "redis"}, root)
	require.NoError(t, err)
	require.Equal(t, "5.0.1", p.Ident.Version)

	_, err = LoadAtLeast(ident.Ident{Origin: "core", Name: "redis", Version: "6.0.0"}, root)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadAtLeast_UnversionedMatchesNonNumericVersion(t *testing.T) {
	root := t.TempDir()
	writeInstall(t, root, "acme/tool/master/20240101120000")

	// A request without a version is satisfied by any installed release,
	// numeric version or not.
	p, err := LoadAtLeast(ident.Ident{Origin: "acme", Name: "tool"}, root)
	require.NoError(t, err)
	require.Equal(t, "master", p.Ident.Version)
}

func TestDeps(t *testing.T) {
	root := t.TempDir()
	dep := writeInstall(t, root, "core/glibc/2.35/20240101120000")
	p := writeInstall(t, root, "core/redis")

	writeMetafile(t, p, MetaDeps, depsContent(dep))

	deps, err := p.Deps()
	require.NoError(t, err)
	require.Equal(t, []ident.Ident{dep.Ident}, deps)
}

func TestDeps_MissingMetafile(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")

	deps, err := p.Deps()
	require.NoError(t, err)
	require.Empty(t, deps)
}

func TestDeps_RequiresFullyQualified(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	writeMetafile(t, p, MetaDeps, "core/glibc\n")

	_, err := p.Deps()
	require.Error(t, err)
	require.Contains(t, err.Error(), "fully qualified")
}

func TestServices_AllowsPartialIdents(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/bundle")
	writeMetafile(t, p, MetaServices, "core/redis\ncore/nginx\n")

	services, err := p.Services()
	require.NoError(t, err)
	require.Len(t, services, 2)
	require.Equal(t, "redis", services[0].Name)
}

func TestPaths(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "acme/pathy")
	setPaths(t, p, "bin", "sbin", ".gem/bin")

	paths, err := p.Paths()
	require.NoError(t, err)
	require.Equal(t, prefixPaths(p, "bin", "sbin", ".gem/bin"), paths)
}

func TestPaths_Missing(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "acme/pathy")

	paths, err := p.Paths()
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestPaths_Empty(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "acme/pathy")
	writeMetafile(t, p, MetaPath, "")

	paths, err := p.Paths()
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestPaths_DropsEntriesOutsidePrefix(t *testing.T) {
	root := t.TempDir()
	p := writeInstall(t, root, "acme/pathy")
	other := writeInstall(t, root, "acme/intruder")

	entries := append(prefixPaths(p, "bin"), prefixPaths(other, "bin", "sbin")...)
	writeMetafile(t, p, MetaPath, strings.Join(entries, string(filepath.ListSeparator)))

	paths, err := p.Paths()
	require.NoError(t, err)
	require.Equal(t, prefixPaths(p, "bin"), paths)
}

func TestRuntimeEnvironment(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	writeMetafile(t, p, MetaRuntimeEnvironment, "PATH=/pkgs/core/redis/1.0.0/1/bin\nLD_LIBRARY_PATH=/pkgs/core/glibc/2.35/1/lib\n")

	env, err := p.RuntimeEnvironment()
	require.NoError(t, err)
	require.Equal(t, "/pkgs/core/redis/1.0.0/1/bin", env["PATH"])
	require.Equal(t, "/pkgs/core/glibc/2.35/1/lib", env["LD_LIBRARY_PATH"])
}

func TestRuntimeEnvironment_Malformed(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	writeMetafile(t, p, MetaRuntimeEnvironment, "no separator here\n")

	_, err := p.RuntimeEnvironment()
	require.Error(t, err)
}

// Packages without a RUNTIME_ENVIRONMENT metafile assemble a PATH from
// their own entries, then direct dependencies in declared order, then any
// remaining transitive dependencies, deduplicated by first appearance.
func TestRuntimeEnvironment_LegacyPathOrdering(t *testing.T) {
	root := t.TempDir()

	foxtrot := writeInstall(t, root, "acme/foxtrot")
	setPaths(t, foxtrot, "bin")

	golf := writeInstall(t, root, "acme/golf")
	setPaths(t, golf, "bin")

	echo := writeInstall(t, root, "acme/echo")
	writeMetafile(t, echo, MetaDeps, depsContent(foxtrot))
	writeMetafile(t, echo, MetaTDeps, depsContent(foxtrot))

	charlie := writeInstall(t, root, "acme/charlie")
	setPaths(t, charlie, "sbin")
	writeMetafile(t, charlie, MetaDeps, depsContent(golf, echo))
	writeMetafile(t, charlie, MetaTDeps, depsContent(echo, foxtrot, golf))

	alpha := writeInstall(t, root, "acme/alpha")
	setPaths(t, alpha, "sbin", "bin")
	writeMetafile(t, alpha, MetaDeps, depsContent(charlie))
	writeMetafile(t, alpha, MetaTDeps, depsContent(charlie, echo, foxtrot, golf))

	env, err := alpha.RuntimeEnvironment()
	require.NoError(t, err)

	var expected []string
	expected = append(expected, prefixPaths(alpha, "sbin", "bin")...)
	expected = append(expected, prefixPaths(charlie, "sbin")...)
	expected = append(expected, prefixPaths(foxtrot, "bin")...)
	expected = append(expected, prefixPaths(golf, "bin")...)

	require.Equal(t, strings.Join(expected, string(filepath.ListSeparator)), env["PATH"])
}

func TestBinds(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/consumer")
	writeMetafile(t, p, MetaBinds, "database=port host\ncache=port\n")

	binds, err := p.Binds()
	require.NoError(t, err)
	require.Equal(t, []Bind{
		{Service: "database", Exports: []string{"port", "host"}},
		{Service: "cache", Exports: []string{"port"}},
	}, binds)
}

func TestBinds_MissingMetafile(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/consumer")

	binds, err := p.Binds()
	require.NoError(t, err)
	require.Empty(t, binds)
}

func TestBinds_Malformed(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/consumer")
	writeMetafile(t, p, MetaBinds, "no separator here\n")

	_, err := p.Binds()
	require.Error(t, err)
}

func TestBindsOptional(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/consumer")
	writeMetafile(t, p, MetaBindsOptional, "metrics=port\n")

	binds, err := p.BindsOptional()
	require.NoError(t, err)
	require.Equal(t, []Bind{{Service: "metrics", Exports: []string{"port"}}}, binds)
}

func TestBindMap(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/composite")
	writeMetafile(t, p, MetaBindMap,
		"core/foo=db:core/database fe:core/front-end be:core/back-end\ncore/bar=pub:core/publish sub:core/subscribe\n")

	bindMap, err := p.BindMap()
	require.NoError(t, err)

	foo := ident.Ident{Origin: "core", Name: "foo"}
	bar := ident.Ident{Origin: "core", Name: "bar"}
	require.Len(t, bindMap, 2)
	require.Equal(t, []BindMapping{
		{Bind: "db", Satisfier: ident.Ident{Origin: "core", Name: "database"}},
		{Bind: "fe", Satisfier: ident.Ident{Origin: "core", Name: "front-end"}},
		{Bind: "be", Satisfier: ident.Ident{Origin: "core", Name: "back-end"}},
	}, bindMap[foo])
	require.Equal(t, []BindMapping{
		{Bind: "pub", Satisfier: ident.Ident{Origin: "core", Name: "publish"}},
		{Bind: "sub", Satisfier: ident.Ident{Origin: "core", Name: "subscribe"}},
	}, bindMap[bar])
}

func TestBindMap_Malformed(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/dud")
	writeMetafile(t, p, MetaBindMap, "core/foo=db:this-is-not-an-identifier\n")

	_, err := p.BindMap()
	require.Error(t, err)
}

// Composite packages need not have a bind map, and standalone packages
// never do.
func TestBindMap_Missing(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/no-binds")

	bindMap, err := p.BindMap()
	require.NoError(t, err)
	require.Empty(t, bindMap)
}

func TestExports(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	writeMetafile(t, p, MetaExports, "port=service.port\nrequirepass=service.password\n")

	exports, err := p.Exports()
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"port":        "service.port",
		"requirepass": "service.password",
	}, exports)
}

func TestExposes(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	writeMetafile(t, p, MetaExposes, "6379 16379\n")

	ports, err := p.Exposes()
	require.NoError(t, err)
	require.Equal(t, []string{"6379", "16379"}, ports)
}

func TestType(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")

	// Default is standalone.
	typ, err := p.Type()
	require.NoError(t, err)
	require.Equal(t, TypeStandalone, typ)

	writeMetafile(t, p, MetaType, "composite\n")
	typ, err = p.Type()
	require.NoError(t, err)
	require.Equal(t, TypeComposite, typ)

	writeMetafile(t, p, MetaType, "bundle\n")
	_, err = p.Type()
	require.Error(t, err)
}

func TestSvcUserAndGroup(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")

	user, err := p.SvcUser()
	require.NoError(t, err)
	require.Empty(t, user)

	writeMetafile(t, p, MetaSvcUser, "hab\n")
	writeMetafile(t, p, MetaSvcGroup, "hab\n")

	user, err = p.SvcUser()
	require.NoError(t, err)
	require.Equal(t, "hab", user)

	group, err := p.SvcGroup()
	require.NoError(t, err)
	require.Equal(t, "hab", group)
}

func TestRunnable(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	require.False(t, p.Runnable())

	require.NoError(t, os.MkdirAll(filepath.Join(p.Path, "hooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.Path, "hooks", "run"), []byte("#!/bin/sh\n"), 0o755))
	require.True(t, p.Runnable())
}

func TestDefaultConfig(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")

	require.Nil(t, p.DefaultConfig())

	require.NoError(t, os.WriteFile(filepath.Join(p.Path, DefaultCfgFile), []byte("port = 6379\n\n[server]\nbind = \"0.0.0.0\"\n"), 0o644))

	cfg := p.DefaultConfig()
	require.NotNil(t, cfg)
	require.EqualValues(t, 6379, cfg["port"])
	server, ok := cfg["server"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "0.0.0.0", server["bind"])
}

func TestDefaultConfig_Malformed(t *testing.T) {
	p := writeInstall(t, t.TempDir(), "core/redis")
	require.NoError(t, os.WriteFile(filepath.Join(p.Path, DefaultCfgFile), []byte("port = = 6379\n"), 0o644))

	require.Nil(t, p.DefaultConfig())
}
