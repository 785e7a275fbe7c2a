package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/cosmos/audit-guardian/pkg/ident"
)

// MetaFile names a metadata file written into a package's install
// directory at build time.
type MetaFile string

const (
	MetaIdent              MetaFile = "IDENT"
	MetaDeps               MetaFile = "DEPS"
	MetaTDeps              MetaFile = "TDEPS"
	MetaServices           MetaFile = "SERVICES"
	MetaBinds              MetaFile = "BINDS"
	MetaBindsOptional      MetaFile = "BINDS_OPTIONAL"
	MetaBindMap            MetaFile = "BIND_MAP"
	MetaExports            MetaFile = "EXPORTS"
	MetaExposes            MetaFile = "EXPOSES"
	MetaPath               MetaFile = "PATH"
	MetaRuntimeEnvironment MetaFile = "RUNTIME_ENVIRONMENT"
	MetaSvcUser            MetaFile = "SVC_USER"
	MetaSvcGroup           MetaFile = "SVC_GROUP"
	MetaType               MetaFile = "TYPE"
)

// DefaultCfgFile is the package's default configuration document.
const DefaultCfgFile = "default.toml"

// PackageType distinguishes standalone packages from composites that bundle
// several services.
type PackageType string

const (
	TypeStandalone PackageType = "standalone"
	TypeComposite  PackageType = "composite"
)

// ParsePackageType returns the package type named by raw.
func ParsePackageType(raw string) (PackageType, error) {
	switch PackageType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeStandalone:
		return TypeStandalone, nil
	case TypeComposite:
		return TypeComposite, nil
	}
	return "", fmt.Errorf("unknown package type %q", raw)
}

// metafile reads a metadata file, reporting whether it exists. Contents
// are whitespace-trimmed.
func (p *Install) metafile(m MetaFile) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(p.Path, string(m)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read metafile %s for %s: %w", m, p.Ident.String(), err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Deps returns the package's direct dependencies. A missing metafile means
// no dependencies.
func (p *Install) Deps() ([]ident.Ident, error) {
	return p.readDeps(MetaDeps, true)
}

// TDeps returns the package's transitive dependencies.
func (p *Install) TDeps() ([]ident.Ident, error) {
	return p.readDeps(MetaTDeps, true)
}

// Services returns the services bundled in a composite package. Unlike
// dependency metafiles, service identifiers need not be fully qualified:
// they are recorded as originally declared.
func (p *Install) Services() ([]ident.Ident, error) {
	return p.readDeps(MetaServices, false)
}

func (p *Install) readDeps(m MetaFile, mustBeFullyQualified bool) ([]ident.Ident, error) {
	body, ok, err := p.metafile(m)
	if err != nil || !ok || body == "" {
		return nil, err
	}

	var deps []ident.Ident
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dep, err := ident.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("malformed metafile %s for %s: %w", m, p.Ident.String(), err)
		}
		if mustBeFullyQualified && !dep.FullyQualified() {
			return nil, fmt.Errorf("malformed metafile %s for %s: fully qualified identifier required, got %q", m, p.Ident.String(), line)
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// Bind declares a service a package consumes and the exports it needs
// from whatever satisfies the bind, recorded as "service=export export...".
type Bind struct {
	Service string
	Exports []string
}

// ParseBind parses a single BINDS metafile line.
func ParseBind(raw string) (Bind, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Bind{}, fmt.Errorf("invalid bind %q: expected service=export...", raw)
	}
	return Bind{Service: parts[0], Exports: strings.Fields(parts[1])}, nil
}

func (b Bind) String() string {
	return b.Service + "=" + strings.Join(b.Exports, " ")
}

// BindMapping names the service that satisfies one bind of a composite's
// member, recorded as "bind:origin/name".
type BindMapping struct {
	Bind      string
	Satisfier ident.Ident
}

// ParseBindMapping parses a single "bind:origin/name" mapping.
func ParseBindMapping(raw string) (BindMapping, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return BindMapping{}, fmt.Errorf("invalid bind mapping %q: expected bind:identifier", raw)
	}
	satisfier, err := ident.Parse(parts[1])
	if err != nil {
		return BindMapping{}, fmt.Errorf("invalid bind mapping %q: %w", raw, err)
	}
	return BindMapping{Bind: parts[0], Satisfier: satisfier}, nil
}

func (m BindMapping) String() string {
	return m.Bind + ":" + m.Satisfier.String()
}

// Binds returns the service binds the package requires. A missing metafile
// means no binds.
func (p *Install) Binds() ([]Bind, error) {
	return p.readBinds(MetaBinds)
}

// BindsOptional returns the binds the package can run without.
func (p *Install) BindsOptional() ([]Bind, error) {
	return p.readBinds(MetaBindsOptional)
}

func (p *Install) readBinds(m MetaFile) ([]Bind, error) {
	body, ok, err := p.metafile(m)
	if err != nil || !ok || body == "" {
		return nil, err
	}

	var binds []Bind
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		bind, err := ParseBind(line)
		if err != nil {
			return nil, fmt.Errorf("malformed metafile %s for %s: %w", m, p.Ident.String(), err)
		}
		binds = append(binds, bind)
	}
	return binds, nil
}

// BindMap returns a composite package's bind mappings: for each member
// service, which services satisfy its binds. Lines have the shape
// "origin/name=bind:origin/name bind:origin/name". Standalone packages
// have no bind map, which is fine.
func (p *Install) BindMap() (map[ident.Ident][]BindMapping, error) {
	body, ok, err := p.metafile(MetaBindMap)
	if err != nil || !ok || body == "" {
		return nil, err
	}

	bindMap := make(map[ident.Ident][]BindMapping)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed metafile %s for %s: expected identifier=mappings, got %q", MetaBindMap, p.Ident.String(), line)
		}
		member, err := ident.Parse(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed metafile %s for %s: %w", MetaBindMap, p.Ident.String(), err)
		}
		var mappings []BindMapping
		for _, raw := range strings.Fields(parts[1]) {
			mapping, err := ParseBindMapping(raw)
			if err != nil {
				return nil, fmt.Errorf("malformed metafile %s for %s: %w", MetaBindMap, p.Ident.String(), err)
			}
			mappings = append(mappings, mapping)
		}
		bindMap[member] = mappings
	}
	return bindMap, nil
}

// Exports returns the key/path mappings the package exposes as public
// configuration.
func (p *Install) Exports() (map[string]string, error) {
	body, ok, err := p.metafile(MetaExports)
	if err != nil || !ok {
		return nil, err
	}
	return p.parseKeyValues(MetaExports, body)
}

// Exposes returns the ports the package exposes.
func (p *Install) Exposes() ([]string, error) {
	body, ok, err := p.metafile(MetaExposes)
	if err != nil || !ok || body == "" {
		return nil, err
	}
	return strings.Fields(body), nil
}

// Paths returns the package's PATH metafile entries. Entries that do not
// live under the package's own prefix are dropped; some older packages
// recorded entries belonging to their dependencies.
func (p *Install) Paths() ([]string, error) {
	body, ok, err := p.metafile(MetaPath)
	if err != nil || !ok || body == "" {
		return nil, err
	}

	prefix := p.Prefix()
	var paths []string
	for _, entry := range filepath.SplitList(body) {
		if entry == "" {
			continue
		}
		if !strings.HasPrefix(entry, prefix) {
			zap.S().Debugw("dropping path entry outside package prefix",
				"package", p.Ident.String(), "entry", entry)
			continue
		}
		paths = append(paths, entry)
	}
	return paths, nil
}

// RuntimeEnvironment returns the package's embedded runtime environment.
// Packages built before the metafile existed fall back to a PATH assembled
// from their own path entries and those of their dependencies.
func (p *Install) RuntimeEnvironment() (map[string]string, error) {
	body, ok, err := p.metafile(MetaRuntimeEnvironment)
	if err != nil {
		return nil, err
	}
	if ok {
		return p.parseKeyValues(MetaRuntimeEnvironment, body)
	}

	paths, err := p.legacyRuntimePath()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"PATH": strings.Join(paths, string(filepath.ListSeparator)),
	}, nil
}

// legacyRuntimePath assembles an ordered PATH for packages lacking a
// RUNTIME_ENVIRONMENT metafile: the package's own entries first, then its
// direct dependencies in declared order, then any remaining transitive
// dependencies. Each entry appears once, at its first occurrence.
func (p *Install) legacyRuntimePath() ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	add := func(entries []string) {
		for _, e := range entries {
			if seen[e] {
				continue
			}
			seen[e] = true
			paths = append(paths, e)
		}
	}

	own, err := p.Paths()
	if err != nil {
		return nil, err
	}
	add(own)

	deps, err := p.Deps()
	if err != nil {
		return nil, err
	}
	tdeps, err := p.TDeps()
	if err != nil {
		return nil, err
	}

	for _, dep := range append(deps, tdeps...) {
		depInstall, err := Load(dep, p.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to load dependency of %s: %w", p.Ident.String(), err)
		}
		entries, err := depInstall.Paths()
		if err != nil {
			return nil, err
		}
		add(entries)
	}

	return paths, nil
}

// SvcUser returns the user the package's service runs as, or "" when the
// package does not specify one.
func (p *Install) SvcUser() (string, error) {
	body, _, err := p.metafile(MetaSvcUser)
	return body, err
}

// SvcGroup returns the group the package's service runs as, or "" when the
// package does not specify one.
func (p *Install) SvcGroup() (string, error) {
	body, _, err := p.metafile(MetaSvcGroup)
	return body, err
}

// Type returns the kind of package. Packages without a TYPE metafile are
// standalone.
func (p *Install) Type() (PackageType, error) {
	body, ok, err := p.metafile(MetaType)
	if err != nil {
		return "", err
	}
	if !ok {
		return TypeStandalone, nil
	}
	t, err := ParsePackageType(body)
	if err != nil {
		return "", fmt.Errorf("malformed metafile %s for %s: %w", MetaType, p.Ident.String(), err)
	}
	return t, nil
}

// Runnable reports whether the package carries a runnable service, i.e. a
// run hook in its hooks directory or directly under the install prefix.
func (p *Install) Runnable() bool {
	for _, candidate := range []string{
		filepath.Join(p.Path, "hooks", "run"),
		filepath.Join(p.Path, "run"),
	} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// DefaultConfig decodes the package's default.toml into a generic map.
// Absent or unreadable configuration yields nil.
func (p *Install) DefaultConfig() map[string]interface{} {
	data, err := os.ReadFile(filepath.Join(p.Path, DefaultCfgFile))
	if err != nil {
		return nil
	}
	var cfg map[string]interface{}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		zap.S().Debugw("failed to parse default configuration",
			"package", p.Ident.String(), "error", err)
		return nil
	}
	return cfg
}

func (p *Install) parseKeyValues(m MetaFile, body string) (map[string]string, error) {
	kv := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed metafile %s for %s: expected key=value, got %q", m, p.Ident.String(), line)
		}
		kv[parts[0]] = parts[1]
	}
	return kv, nil
}
