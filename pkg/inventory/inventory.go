package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/cosmos/audit-guardian/pkg/ident"
)

// ErrNotFound is returned when no installed package satisfies a request.
var ErrNotFound = errors.New("package not found")

// pkgDirName is the directory under the filesystem root that holds the
// installed package tree (root/pkgs/origin/name/version/release).
const pkgDirName = "pkgs"

// PackageRoot returns the installed package tree under root.
func PackageRoot(root string) string {
	return filepath.Join(root, pkgDirName)
}

// InstallPath returns where the fully-qualified ident lives under root.
func InstallPath(id ident.Ident, root string) string {
	return filepath.Join(PackageRoot(root), id.Origin, id.Name, id.Version, id.Release)
}

// Install is a verified installation of a package under a filesystem root.
type Install struct {
	Ident ident.Ident
	Root  string
	Path  string
}

// Prefix returns the runtime install prefix of the package, without the
// filesystem root. PATH metafile entries are expected to live under it.
func (p *Install) Prefix() string {
	return InstallPath(p.Ident, string(filepath.Separator))
}

func (p *Install) String() string {
	return p.Ident.String()
}

// List enumerates every package installed under root, ordered by
// origin/name and then ascending version/release. A missing package tree
// yields an empty inventory.
func List(root string) ([]ident.Ident, error) {
	pkgRoot := PackageRoot(root)
	if _, err := os.Stat(pkgRoot); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read package root %s: %w", pkgRoot, err)
	}

	fsys := os.DirFS(pkgRoot)
	matches, err := doublestar.Glob(fsys, "*/*/*/*")
	if err != nil {
		return nil, fmt.Errorf("failed to walk package root %s: %w", pkgRoot, err)
	}

	var installed []ident.Ident
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil || !info.IsDir() {
			continue
		}
		parts := strings.Split(m, "/")
		id := ident.Ident{Origin: parts[0], Name: parts[1], Version: parts[2], Release: parts[3]}
		installed = append(installed, id)
	}

	sort.Slice(installed, func(i, j int) bool {
		a, b := installed[i], installed[j]
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return ident.Compare(a, b) < 0
	})

	zap.S().Debugw("enumerated installed packages", "root", root, "count", len(installed))

	return installed, nil
}

// Load resolves an installation of a package under root. A fully-qualified
// ident must exist exactly; a partial ident resolves to the latest
// installed release satisfying it.
func Load(id ident.Ident, root string) (*Install, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid package identifier %q", id.String())
	}

	if id.FullyQualified() {
		path := InstallPath(id, root)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id.String())
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		return &Install{Ident: id, Root: root, Path: path}, nil
	}

	installed, err := List(root)
	if err != nil {
		return nil, err
	}

	var latest *ident.Ident
	for i := range installed {
		candidate := installed[i]
		if !candidate.Satisfies(id) {
			continue
		}
		if latest == nil || ident.Compare(candidate, *latest) > 0 {
			latest = &installed[i]
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.String())
	}

	zap.S().Debugw("resolved package install", "requested", id.String(), "resolved", latest.String())

	return &Install{Ident: *latest, Root: root, Path: InstallPath(*latest, root)}, nil
}

// LoadAtLeast resolves the latest installation of the package that is equal
// to or newer than the given ident. A request without a version is
// satisfied by any installed release of the origin/name.
func LoadAtLeast(id ident.Ident, root string) (*Install, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid package identifier %q", id.String())
	}

	installed, err := List(root)
	if err != nil {
		return nil, err
	}

	var latest *ident.Ident
	for i := range installed {
		candidate := installed[i]
		if candidate.Origin != id.Origin || candidate.Name != id.Name {
			continue
		}
		if id.Version != "" && ident.Compare(candidate, id) < 0 {
			continue
		}
		if latest == nil || ident.Compare(candidate, *latest) > 0 {
			latest = &installed[i]
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.String())
	}

	return &Install{Ident: *latest, Root: root, Path: InstallPath(*latest, root)}, nil
}
