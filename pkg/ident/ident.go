package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// Ident identifies a package release as origin/name[/version[/release]].
// Origin and name are always required; version and release narrow the
// identifier down to a concrete installed artifact.
type Ident struct {
	Origin  string
	Name    string
	Version string
	Release string
}

// Parse parses an identifier of the form "origin/name[/version[/release]]".
func Parse(s string) (Ident, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 4 {
		return Ident{}, fmt.Errorf("invalid package identifier %q: expected origin/name[/version[/release]]", s)
	}
	for _, p := range parts {
		if p == "" {
			return Ident{}, fmt.Errorf("invalid package identifier %q: empty component", s)
		}
	}
	id := Ident{Origin: parts[0], Name: parts[1]}
	if len(parts) > 2 {
		id.Version = parts[2]
	}
	if len(parts) > 3 {
		id.Release = parts[3]
	}
	return id, nil
}

func (i Ident) String() string {
	parts := []string{i.Origin, i.Name}
	if i.Version != "" {
		parts = append(parts, i.Version)
		if i.Release != "" {
			parts = append(parts, i.Release)
		}
	}
	return strings.Join(parts, "/")
}

// Valid reports whether the identifier has the required components. A
// release without a version is not addressable and is invalid.
func (i Ident) Valid() bool {
	if i.Origin == "" || i.Name == "" {
		return false
	}
	if i.Release != "" && i.Version == "" {
		return false
	}
	return true
}

// FullyQualified reports whether the identifier pins a single release.
func (i Ident) FullyQualified() bool {
	return i.Origin != "" && i.Name != "" && i.Version != "" && i.Release != ""
}

// Satisfies reports whether this identifier matches the (possibly partial)
// request req: origin and name must match exactly, and any version or
// release present on req must match as well.
func (i Ident) Satisfies(req Ident) bool {
	if i.Origin != req.Origin || i.Name != req.Name {
		return false
	}
	if req.Version != "" && i.Version != req.Version {
		return false
	}
	if req.Release != "" && i.Release != req.Release {
		return false
	}
	return true
}

// Compare orders two identifiers of the same origin/name by version, then
// release. It returns a negative number when a sorts before b, zero when
// they are equal and a positive number otherwise.
func Compare(a, b Ident) int {
	if c := compareVersion(a.Version, b.Version); c != 0 {
		return c
	}
	return strings.Compare(a.Release, b.Release)
}

// compareVersion compares dot-separated version strings. Segments compare
// numerically when both sides are numeric and lexicographically otherwise;
// a numeric segment outranks a non-numeric one, and with a common prefix
// the version with more segments sorts higher.
func compareVersion(a, b string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case aerr == nil:
			return 1
		case berr == nil:
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
