package auditconfig

import "github.com/cosmos/audit-guardian/pkg/advisory"

// Config represents the root audit configuration structure. It is loaded
// once at startup and read-only afterwards; no cross-field consistency is
// enforced.
type Config struct {
	Advisories AdvisoriesConfig `toml:"advisories" yaml:"advisories"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Output     OutputConfig     `toml:"output" yaml:"output"`
	Yanked     YankedConfig     `toml:"yanked" yaml:"yanked"`
}

// AdvisoriesConfig controls which advisories are surfaced in reports.
type AdvisoriesConfig struct {
	// Ignore lists advisory IDs to suppress, in the order given.
	Ignore []advisory.Id `toml:"ignore" yaml:"ignore"`
	// InformationalWarnings selects which informational categories to
	// surface as warnings.
	InformationalWarnings []advisory.Informational `toml:"informational_warnings" yaml:"informational_warnings"`
	// SeverityThreshold is the minimum severity to report; "none" (or
	// unset) disables filtering entirely.
	SeverityThreshold advisory.Severity `toml:"severity_threshold" yaml:"severity_threshold"`
}

// DatabaseConfig locates the advisory database a consuming tool reads.
type DatabaseConfig struct {
	Path string `toml:"path" yaml:"path"`
	URL  string `toml:"url" yaml:"url"`
	// Fetch refreshes the local database copy before each run.
	Fetch bool `toml:"fetch" yaml:"fetch"`
	// Stale accepts an outdated local copy instead of failing.
	Stale bool `toml:"stale" yaml:"stale"`
}

// Format selects how reports are rendered.
type Format string

const (
	FormatTerminal Format = "terminal"
	FormatJSON     Format = "json"
)

// Valid reports whether f names a known output format. The empty string is
// accepted and treated as FormatTerminal.
func (f Format) Valid() bool {
	switch f {
	case "", FormatTerminal, FormatJSON:
		return true
	}
	return false
}

// OutputConfig controls report rendering and exit status.
type OutputConfig struct {
	// Deny lists conditions that force a failing exit status.
	Deny     []advisory.DenyCondition `toml:"deny" yaml:"deny"`
	Format   Format                   `toml:"format" yaml:"format"`
	Quiet    bool                     `toml:"quiet" yaml:"quiet"`
	ShowTree bool                     `toml:"show_tree" yaml:"show_tree"`
}

// YankedConfig controls how yanked package versions are handled.
type YankedConfig struct {
	Enabled     bool `toml:"enabled" yaml:"enabled"`
	UpdateIndex bool `toml:"update_index" yaml:"update_index"`
}
